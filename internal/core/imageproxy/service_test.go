package imageproxy

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"Medigate/internal/core/cachestore"
	"Medigate/internal/core/dedupe"
	"Medigate/internal/core/transcode"
)

// MockFetcher implements Fetcher for testing.
type MockFetcher struct {
	mu       sync.Mutex
	data     []byte
	mimeType string
	err      error
	delay    time.Duration
	calls    int
}

func (m *MockFetcher) Fetch(ctx context.Context, sourceURL string) ([]byte, string, error) {
	m.mu.Lock()
	m.calls++
	data, mimeType, err, delay := m.data, m.mimeType, m.err, m.delay
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return nil, "", ctx.Err()
		case <-time.After(delay):
		}
	}
	return data, mimeType, err
}

func (m *MockFetcher) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// MockTranscoder implements transcode.Transcoder and counts invocations.
type MockTranscoder struct {
	calls atomic.Int64
}

func (m *MockTranscoder) Transcode(data []byte, mimeType string, class transcode.SizeClass, quality int, format transcode.Format) transcode.Result {
	m.calls.Add(1)
	return transcode.Result{Payload: data, MimeType: format.MimeType()}
}

func newTestGateway(t *testing.T, store cachestore.Store, fetcher Fetcher, tc transcode.Transcoder) *Gateway {
	t.Helper()
	cfg := Config{
		FetchTimeout:    200 * time.Millisecond,
		RequestTimeout:  400 * time.Millisecond,
		MaxSourceSizeMB: 1,
	}
	gw, err := NewGateway(store, dedupe.New[cachestore.Envelope](0), fetcher, tc, cfg)
	if err != nil {
		t.Fatalf("NewGateway: %v", err)
	}
	return gw
}

func TestGetImageValidation(t *testing.T) {
	fetcher := &MockFetcher{}
	gw := newTestGateway(t, cachestore.NewMemoryStore(), fetcher, &MockTranscoder{})

	cases := []struct {
		name    string
		url     string
		wantErr error
	}{
		{"missing url", "", ErrMissingURL},
		{"blob reference", "blob:abc123", ErrBlobURL},
		{"bad scheme", "ftp://example.com/a.jpg", ErrInvalidURL},
		{"no host", "https:///a.jpg", ErrInvalidURL},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := gw.GetImage(context.Background(), Request{SourceURL: tc.url})
			if !errors.Is(err, tc.wantErr) {
				t.Errorf("got %v, want %v", err, tc.wantErr)
			}
		})
	}

	// Validation failures must never reach the network.
	if fetcher.Calls() != 0 {
		t.Errorf("fetcher ran %d times for invalid requests", fetcher.Calls())
	}
}

func TestGetImageConcurrentRequestsSingleFetch(t *testing.T) {
	fetcher := &MockFetcher{
		data:     []byte("image-bytes"),
		mimeType: "image/jpeg",
		delay:    50 * time.Millisecond,
	}
	tc := &MockTranscoder{}
	gw := newTestGateway(t, cachestore.NewMemoryStore(), fetcher, tc)

	req := Request{SourceURL: "https://x/img.jpg", Width: 800, Quality: 75, Format: transcode.FormatWebP}

	const n = 10
	var wg sync.WaitGroup
	results := make([]Result, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = gw.GetImage(context.Background(), req)
		}(i)
	}
	wg.Wait()

	if got := fetcher.Calls(); got != 1 {
		t.Errorf("origin fetches = %d, want 1", got)
	}
	if got := tc.calls.Load(); got != 1 {
		t.Errorf("transcodes = %d, want 1", got)
	}
	for i := 0; i < n; i++ {
		if errs[i] != nil {
			t.Fatalf("request %d: %v", i, errs[i])
		}
		if string(results[i].Payload) != "image-bytes" {
			t.Errorf("request %d: payload %q", i, results[i].Payload)
		}
		if results[i].MimeType != "image/webp" {
			t.Errorf("request %d: mime %q", i, results[i].MimeType)
		}
	}
}

func TestGetImageWarmCacheSkipsTranscoder(t *testing.T) {
	fetcher := &MockFetcher{data: []byte("image-bytes"), mimeType: "image/png"}
	tc := &MockTranscoder{}
	gw := newTestGateway(t, cachestore.NewMemoryStore(), fetcher, tc)

	req := Request{SourceURL: "https://x/img.png"}

	first, err := gw.GetImage(context.Background(), req)
	if err != nil {
		t.Fatalf("cold call: %v", err)
	}
	second, err := gw.GetImage(context.Background(), req)
	if err != nil {
		t.Fatalf("warm call: %v", err)
	}

	if string(first.Payload) != string(second.Payload) || first.MimeType != second.MimeType {
		t.Error("warm result differs from cold result")
	}
	if fetcher.Calls() != 1 {
		t.Errorf("origin fetches = %d, want 1", fetcher.Calls())
	}
	if tc.calls.Load() != 1 {
		t.Errorf("transcodes = %d, want 1 (warm hit must not re-transcode)", tc.calls.Load())
	}
}

// brokenStore errors on every operation.
type brokenStore struct{}

func (brokenStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return nil, false, errors.New("engine unreachable")
}
func (brokenStore) Set(ctx context.Context, key string, value []byte, ttl cachestore.TTL) error {
	return errors.New("engine unreachable")
}
func (brokenStore) Exists(ctx context.Context, key string) (bool, error) {
	return false, errors.New("engine unreachable")
}
func (brokenStore) Delete(ctx context.Context, key string) error {
	return errors.New("engine unreachable")
}

func TestGetImageSurvivesCacheEngineFailure(t *testing.T) {
	fetcher := &MockFetcher{data: []byte("image-bytes"), mimeType: "image/jpeg"}
	gw := newTestGateway(t, brokenStore{}, fetcher, &MockTranscoder{})

	res, err := gw.GetImage(context.Background(), Request{SourceURL: "https://x/img.jpg"})
	if err != nil {
		t.Fatalf("GetImage with broken store: %v", err)
	}
	if string(res.Payload) != "image-bytes" {
		t.Errorf("payload = %q", res.Payload)
	}
}

func TestGetImageHardTimeout(t *testing.T) {
	fetcher := &MockFetcher{
		data:     []byte("image-bytes"),
		mimeType: "image/jpeg",
		delay:    2 * time.Second,
	}
	gw := newTestGateway(t, cachestore.NewMemoryStore(), fetcher, &MockTranscoder{})

	start := time.Now()
	_, err := gw.GetImage(context.Background(), Request{SourceURL: "https://x/slow.jpg"})
	elapsed := time.Since(start)

	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("got %v, want ErrTimeout", err)
	}
	if elapsed >= 2*time.Second {
		t.Errorf("caller waited %v, budget should have cut the wait", elapsed)
	}
}

func TestGetImageOriginFailurePropagates(t *testing.T) {
	fetcher := &MockFetcher{err: ErrOriginFetch}
	gw := newTestGateway(t, cachestore.NewMemoryStore(), fetcher, &MockTranscoder{})

	_, err := gw.GetImage(context.Background(), Request{SourceURL: "https://x/missing.jpg"})
	if !errors.Is(err, ErrOriginFetch) {
		t.Errorf("got %v, want ErrOriginFetch", err)
	}
}

// emptyTranscoder produces an empty payload.
type emptyTranscoder struct{}

func (emptyTranscoder) Transcode(data []byte, mimeType string, class transcode.SizeClass, quality int, format transcode.Format) transcode.Result {
	return transcode.Result{Payload: nil, MimeType: format.MimeType()}
}

func TestGetImageEmptyResultIsFatal(t *testing.T) {
	fetcher := &MockFetcher{data: []byte("image-bytes"), mimeType: "image/jpeg"}
	gw := newTestGateway(t, cachestore.NewMemoryStore(), fetcher, emptyTranscoder{})

	_, err := gw.GetImage(context.Background(), Request{SourceURL: "https://x/img.jpg"})
	if !errors.Is(err, ErrEmptyResult) {
		t.Errorf("got %v, want ErrEmptyResult", err)
	}
}

func TestRequestNormalize(t *testing.T) {
	cases := []struct {
		name string
		in   Request
		want Request
	}{
		{
			"defaults",
			Request{SourceURL: "https://x/a.jpg"},
			Request{SourceURL: "https://x/a.jpg", Quality: DefaultQuality, Format: transcode.FormatWebP},
		},
		{
			"quality clamped high",
			Request{SourceURL: "u", Quality: 250},
			Request{SourceURL: "u", Quality: 100, Format: transcode.FormatWebP},
		},
		{
			"quality clamped low",
			Request{SourceURL: "u", Quality: -3},
			Request{SourceURL: "u", Quality: 1, Format: transcode.FormatWebP},
		},
		{
			"negative width zeroed",
			Request{SourceURL: "u", Width: -10, Quality: 80, Format: transcode.FormatAVIF},
			Request{SourceURL: "u", Width: 0, Quality: 80, Format: transcode.FormatAVIF},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.in.normalize(); got != tc.want {
				t.Errorf("normalize() = %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestRequestCacheKeyIsStable(t *testing.T) {
	a := Request{SourceURL: "https://x/a.jpg", Width: 800, Quality: 75, Format: transcode.FormatWebP}
	b := Request{Format: transcode.FormatWebP, Quality: 75, Width: 800, SourceURL: "https://x/a.jpg"}
	if a.cacheKey() != b.cacheKey() {
		t.Error("identical requests produced different cache keys")
	}

	c := Request{SourceURL: "https://x/a.jpg", Width: 800, Quality: 75, Format: transcode.FormatAVIF}
	if a.cacheKey() == c.cacheKey() {
		t.Error("distinct requests produced identical cache keys")
	}
}

func TestGetImageCorruptCacheEntryRebuilds(t *testing.T) {
	fetcher := &MockFetcher{
		data:     []byte("fresh-bytes"),
		mimeType: "image/jpeg",
	}
	tc := &MockTranscoder{}
	store := cachestore.NewMemoryStore()
	gw := newTestGateway(t, store, fetcher, tc)

	req := Request{SourceURL: "https://x/img.jpg", Width: 800, Quality: 75, Format: transcode.FormatWebP}
	key := req.normalize().cacheKey()

	// A stored entry that does not decode must degrade to a rebuild, not
	// poison the key until its TTL expires.
	if err := store.Set(context.Background(), key, []byte("not-an-envelope"), cachestore.TTLDay); err != nil {
		t.Fatalf("seeding store: %v", err)
	}

	res, err := gw.GetImage(context.Background(), req)
	if err != nil {
		t.Fatalf("GetImage with corrupt entry: %v", err)
	}
	if string(res.Payload) != "fresh-bytes" {
		t.Errorf("payload = %q", res.Payload)
	}
	if fetcher.Calls() != 1 {
		t.Errorf("fetcher calls = %d, want 1", fetcher.Calls())
	}

	// The rebuilt entry replaces the corrupt one.
	data, found, err := store.Get(context.Background(), key)
	if err != nil || !found {
		t.Fatalf("rebuilt entry missing: found=%v err=%v", found, err)
	}
	env, err := cachestore.DecodeEnvelope(data)
	if err != nil {
		t.Fatalf("rebuilt entry still corrupt: %v", err)
	}
	if string(env.Payload) != "fresh-bytes" {
		t.Errorf("rebuilt payload = %q", env.Payload)
	}

	// And the next call serves from cache without refetching.
	if _, err := gw.GetImage(context.Background(), req); err != nil {
		t.Fatalf("warm call: %v", err)
	}
	if fetcher.Calls() != 1 {
		t.Errorf("fetcher calls after warm hit = %d, want 1", fetcher.Calls())
	}
}

func TestGetImageCallerDisconnect(t *testing.T) {
	fetcher := &MockFetcher{
		data:     []byte("image-bytes"),
		mimeType: "image/jpeg",
		delay:    200 * time.Millisecond,
	}
	gw := newTestGateway(t, cachestore.NewMemoryStore(), fetcher, &MockTranscoder{})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := gw.GetImage(ctx, Request{SourceURL: "https://x/img.jpg"})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("got %v, want context.Canceled", err)
	}
	if errors.Is(err, ErrTimeout) {
		t.Errorf("disconnect reported as hard timeout: %v", err)
	}
}
