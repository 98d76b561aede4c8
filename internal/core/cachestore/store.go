// Package cachestore provides the durable TTL cache layer for derived media
// payloads. The backing engine is an external key/value service (Valkey);
// payloads are opaque byte envelopes and entries expire through the engine,
// never by mutation in place.
package cachestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/valkey-io/valkey-go"
)

var (
	// ErrEmptyKey is returned when a key is empty.
	ErrEmptyKey = errors.New("cache key cannot be empty")

	// ErrMissingAddress is returned when connecting without an engine address.
	ErrMissingAddress = errors.New("cache engine address is required")
)

// TTL is the bounded set of entry lifetimes the gateway caches at. Arbitrary
// durations are deliberately not accepted; every cacheable asset class maps to
// one of these.
type TTL int

const (
	// TTLHour is for short-lived derived assets.
	TTLHour TTL = iota
	// TTLDay is the default lifetime for transcoded images.
	TTLDay
	// TTLWeek is for effectively immutable assets such as published HLS manifests.
	TTLWeek
)

// Duration returns the concrete lifetime for the TTL class.
func (t TTL) Duration() time.Duration {
	switch t {
	case TTLHour:
		return time.Hour
	case TTLWeek:
		return 7 * 24 * time.Hour
	default:
		return 24 * time.Hour
	}
}

// Store is the TTL cache interface consumed by the gateways. Implementations
// must be safe for unbounded concurrent use at per-key granularity.
type Store interface {
	// Get retrieves the payload for key. Returns the payload, whether it was
	// found, and any engine error.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value under key with the given TTL class.
	Set(ctx context.Context, key string, value []byte, ttl TTL) error

	// Exists reports whether key currently has a live entry.
	Exists(ctx context.Context, key string) (bool, error)

	// Delete removes the entry for key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// Config holds the connection settings for the Valkey-backed store.
type Config struct {
	// Address is the host:port of the Valkey engine. Empty disables the store.
	Address string
	// Password authenticates with the engine; empty for no auth.
	Password string
	// DB selects the logical database.
	DB int
}

// ValkeyStore implements Store over a Valkey engine.
type ValkeyStore struct {
	client valkey.Client
}

// Connect creates a ValkeyStore and verifies the engine is reachable.
func Connect(ctx context.Context, cfg Config) (*ValkeyStore, error) {
	if cfg.Address == "" {
		return nil, ErrMissingAddress
	}

	opts := valkey.ClientOption{
		InitAddress: []string{cfg.Address},
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	if cfg.DB != 0 {
		opts.SelectDB = cfg.DB
	}

	client, err := valkey.NewClient(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache client: %w", err)
	}

	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to reach cache engine: %w", err)
	}

	return &ValkeyStore{client: client}, nil
}

// Get retrieves the payload for key.
func (s *ValkeyStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if key == "" {
		return nil, false, ErrEmptyKey
	}
	data, err := s.client.Do(ctx, s.client.B().Get().Key(key).Build()).AsBytes()
	if err != nil {
		if valkey.IsValkeyNil(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return data, true, nil
}

// Set stores value under key with the given TTL class.
func (s *ValkeyStore) Set(ctx context.Context, key string, value []byte, ttl TTL) error {
	if key == "" {
		return ErrEmptyKey
	}
	cmd := s.client.B().Set().Key(key).Value(valkey.BinaryString(value)).Ex(ttl.Duration()).Build()
	return s.client.Do(ctx, cmd).Error()
}

// Exists reports whether key currently has a live entry.
func (s *ValkeyStore) Exists(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return false, ErrEmptyKey
	}
	n, err := s.client.Do(ctx, s.client.B().Exists().Key(key).Build()).AsInt64()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Delete removes the entry for key.
func (s *ValkeyStore) Delete(ctx context.Context, key string) error {
	if key == "" {
		return ErrEmptyKey
	}
	return s.client.Do(ctx, s.client.B().Del().Key(key).Build()).Error()
}

// Close releases the underlying client.
func (s *ValkeyStore) Close() {
	s.client.Close()
}
