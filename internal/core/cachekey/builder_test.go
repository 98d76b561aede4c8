package cachekey

import (
	"strings"
	"testing"
)

func TestBuildPlainIdentifier(t *testing.T) {
	key := Build("imgproxy", "abc123")
	if key != "imgproxy:abc123" {
		t.Errorf("Build() = %q, want %q", key, "imgproxy:abc123")
	}
}

func TestBuildParamsOrderIndependent(t *testing.T) {
	// Maps have no deterministic iteration order, so build the same logical
	// request several times and require a stable key.
	params := map[string]string{
		"url":    "https://example.com/img.jpg",
		"w":      "800",
		"q":      "75",
		"format": "webp",
	}

	first := BuildParams("imgproxy", params)
	for i := 0; i < 20; i++ {
		if got := BuildParams("imgproxy", params); got != first {
			t.Fatalf("BuildParams() not stable: %q vs %q", got, first)
		}
	}

	// Same logical content assembled in a different insertion order.
	reordered := map[string]string{}
	reordered["format"] = "webp"
	reordered["q"] = "75"
	reordered["w"] = "800"
	reordered["url"] = "https://example.com/img.jpg"
	if got := BuildParams("imgproxy", reordered); got != first {
		t.Errorf("BuildParams() order-dependent: %q vs %q", got, first)
	}
}

func TestBuildParamsDistinctRequests(t *testing.T) {
	a := BuildParams("imgproxy", map[string]string{"url": "https://x/a.jpg", "w": "800"})
	b := BuildParams("imgproxy", map[string]string{"url": "https://x/a.jpg", "w": "240"})
	if a == b {
		t.Errorf("distinct requests produced identical keys: %q", a)
	}
}

func TestBuildParamsNamespacePrefix(t *testing.T) {
	key := BuildParams("videoproxy", map[string]string{"url": "https://x/v.m3u8"})
	if !strings.HasPrefix(key, "videoproxy:") {
		t.Errorf("key %q missing namespace prefix", key)
	}
	// sha256 hex digest after the prefix
	if len(key) != len("videoproxy:")+64 {
		t.Errorf("key %q has unexpected length %d", key, len(key))
	}
}
