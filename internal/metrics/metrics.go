// Package metrics defines the Prometheus collectors shared by the gateway
// subsystems. Collectors are registered on the default registry and exposed
// through the /metrics endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Label values for DedupeFlightsTotal.
const (
	DedupeInitiated = "initiated"
	DedupeShared    = "shared"
)

// Label values for CacheRequestsTotal.
const (
	CacheHit   = "hit"
	CacheMiss  = "miss"
	CacheError = "error"
)

// Label values for VideoRequestsTotal kinds.
const (
	VideoKindPlaylist = "playlist"
	VideoKindStream   = "stream"
)

// Label values for request outcome counters.
const (
	OutcomeOK      = "ok"
	OutcomeError   = "error"
	OutcomeTimeout = "timeout"
)

var (
	// ImageRequestsTotal counts image proxy requests by outcome.
	ImageRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "medigate_image_requests_total",
			Help: "Image proxy requests by outcome.",
		},
		[]string{"outcome"},
	)

	// VideoRequestsTotal counts video proxy requests by kind (playlist/stream) and outcome.
	VideoRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "medigate_video_requests_total",
			Help: "Video proxy requests by kind and outcome.",
		},
		[]string{"kind", "outcome"},
	)

	// CacheRequestsTotal counts buffer cache lookups by result.
	CacheRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "medigate_cache_requests_total",
			Help: "TTL cache lookups by result.",
		},
		[]string{"result"},
	)

	// DedupeFlightsTotal counts deduplicated flights: initiated when the caller
	// ran the producer, shared when it piggybacked on another caller's flight.
	DedupeFlightsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "medigate_dedupe_flights_total",
			Help: "Deduplication coordinator flights by role.",
		},
		[]string{"role"},
	)

	// DedupeSweptTotal counts in-flight entries discarded by the max-age sweep.
	DedupeSweptTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "medigate_dedupe_swept_total",
			Help: "In-flight dedupe entries discarded by the max-age sweep.",
		},
	)

	// TranscodeFallbacksTotal counts transcode attempts that degraded to the
	// original bytes instead of producing the requested output format.
	TranscodeFallbacksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "medigate_transcode_fallbacks_total",
			Help: "Transcode operations that fell back to the original payload.",
		},
	)

	// StreamCancellationsTotal counts video streams aborted by the downstream consumer.
	StreamCancellationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "medigate_stream_cancellations_total",
			Help: "Video streams cancelled by the downstream consumer before EOF.",
		},
	)
)
