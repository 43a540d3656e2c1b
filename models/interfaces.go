package models

import (
	"context"
	"time"
)

// MetricsSource delivers one raw per-protocol record in the source's
// native field names. Polling and refresh scheduling belong to the caller.
type MetricsSource interface {
	FetchProtocolMetrics(ctx context.Context, protocolID string) (map[string]any, error)
}

// ForecastSource is one independent forecasting backend. Implementations
// are opaque to the ensemble; their number and identity is configuration.
type ForecastSource interface {
	ID() string
	Predict(ctx context.Context, record ProtocolRecord, timeframe string) (PredictionSourceResult, error)
}

// Cache is the resilience layer's last-known-good store. Writes are atomic
// per key: a reader never observes a half-written entry.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
}

// FallbackProvider supplies static reference values when a call has failed
// and the cache holds nothing for the key. Injectable so tests can
// substitute deterministic fixtures.
type FallbackProvider interface {
	ReferenceRecord(protocolID string) (ProtocolRecord, bool)
}

// Clock abstracts time.Now for deterministic plan generation in tests.
type Clock func() time.Time
