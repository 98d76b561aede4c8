package cachestore

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"
)

func TestEnvelopeRoundTrip(t *testing.T) {
	payload := []byte{0x52, 0x49, 0x46, 0x46, 0x00, 0x0a, '\n', 0xff, '{', '}'}
	env := Envelope{MimeType: "image/webp", Payload: payload}

	decoded, err := DecodeEnvelope(env.Encode())
	if err != nil {
		t.Fatalf("DecodeEnvelope: %v", err)
	}
	if decoded.MimeType != "image/webp" {
		t.Errorf("MimeType = %q, want %q", decoded.MimeType, "image/webp")
	}
	if !bytes.Equal(decoded.Payload, payload) {
		t.Errorf("Payload = %v, want %v", decoded.Payload, payload)
	}
}

func TestDecodeEnvelopeMalformed(t *testing.T) {
	cases := []struct {
		name string
		data []byte
	}{
		{"no delimiter", []byte(`{"mimeType":"image/webp"}`)},
		{"bad header json", []byte("not-json\npayload")},
		{"empty mime", []byte(`{"mimeType":""}` + "\npayload")},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := DecodeEnvelope(tc.data); !errors.Is(err, ErrBadEnvelope) {
				t.Errorf("got %v, want ErrBadEnvelope", err)
			}
		})
	}
}

func TestTTLDurations(t *testing.T) {
	if TTLHour.Duration() != time.Hour {
		t.Errorf("TTLHour = %v", TTLHour.Duration())
	}
	if TTLDay.Duration() != 24*time.Hour {
		t.Errorf("TTLDay = %v", TTLDay.Duration())
	}
	if TTLWeek.Duration() != 7*24*time.Hour {
		t.Errorf("TTLWeek = %v", TTLWeek.Duration())
	}
}

func TestMemoryStoreSetGetDelete(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	if _, found, err := store.Get(ctx, "k"); err != nil || found {
		t.Fatalf("Get on empty store: found=%v err=%v", found, err)
	}

	if err := store.Set(ctx, "k", []byte("value"), TTLDay); err != nil {
		t.Fatalf("Set: %v", err)
	}

	data, found, err := store.Get(ctx, "k")
	if err != nil || !found {
		t.Fatalf("Get after Set: found=%v err=%v", found, err)
	}
	if string(data) != "value" {
		t.Errorf("Get = %q, want %q", data, "value")
	}

	exists, err := store.Exists(ctx, "k")
	if err != nil || !exists {
		t.Errorf("Exists = %v, %v", exists, err)
	}

	if err := store.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, found, _ := store.Get(ctx, "k"); found {
		t.Error("entry survived Delete")
	}
	// Deleting a missing key is not an error.
	if err := store.Delete(ctx, "k"); err != nil {
		t.Errorf("Delete missing key: %v", err)
	}
}

func TestMemoryStoreRejectsEmptyKey(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	if _, _, err := store.Get(ctx, ""); !errors.Is(err, ErrEmptyKey) {
		t.Errorf("Get: got %v, want ErrEmptyKey", err)
	}
	if err := store.Set(ctx, "", nil, TTLDay); !errors.Is(err, ErrEmptyKey) {
		t.Errorf("Set: got %v, want ErrEmptyKey", err)
	}
}

// failingStore errors on every operation, standing in for an unreachable engine.
type failingStore struct{}

func (failingStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return nil, false, errors.New("engine unreachable")
}
func (failingStore) Set(ctx context.Context, key string, value []byte, ttl TTL) error {
	return errors.New("engine unreachable")
}
func (failingStore) Exists(ctx context.Context, key string) (bool, error) {
	return false, errors.New("engine unreachable")
}
func (failingStore) Delete(ctx context.Context, key string) error {
	return errors.New("engine unreachable")
}

func TestWithBufferCacheMissProducesAndPersists(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	calls := 0
	producer := func(ctx context.Context) ([]byte, error) {
		calls++
		return []byte("produced"), nil
	}

	data, err := WithBufferCache(ctx, store, "k", TTLDay, producer)
	if err != nil {
		t.Fatalf("WithBufferCache: %v", err)
	}
	if string(data) != "produced" {
		t.Errorf("got %q", data)
	}
	if calls != 1 {
		t.Errorf("producer calls = %d, want 1", calls)
	}

	// Warm cache: the producer must not run again.
	data, err = WithBufferCache(ctx, store, "k", TTLDay, producer)
	if err != nil {
		t.Fatalf("WithBufferCache warm: %v", err)
	}
	if string(data) != "produced" {
		t.Errorf("warm got %q", data)
	}
	if calls != 1 {
		t.Errorf("producer calls after warm hit = %d, want 1", calls)
	}
}

func TestWithBufferCacheFailSoft(t *testing.T) {
	// An unreachable engine degrades to a miss on Get and swallows the Set
	// failure; the caller still receives a correct result.
	data, err := WithBufferCache(context.Background(), failingStore{}, "k", TTLDay, func(ctx context.Context) ([]byte, error) {
		return []byte("produced"), nil
	})
	if err != nil {
		t.Fatalf("WithBufferCache with failing store: %v", err)
	}
	if string(data) != "produced" {
		t.Errorf("got %q", data)
	}
}

func TestWithBufferCachePropagatesProducerError(t *testing.T) {
	wantErr := errors.New("origin down")
	_, err := WithBufferCache(context.Background(), NewMemoryStore(), "k", TTLDay, func(ctx context.Context) ([]byte, error) {
		return nil, wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Errorf("got %v, want producer error", err)
	}
}
