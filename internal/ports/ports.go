// Package ports defines the service interfaces (ports) used by the application to decouple implementations.
package ports

import (
	"context"
	"time"

	"github.com/quickstream/quickstream/internal/domain"
)

// RedisClient defines the interface redissource needs against a Redis
// stream: join a consumer group, pull a batch, acknowledge it, and tear
// down. Trimmed to what a single streaming filter actually calls rather
// than the full consumer-group administration surface a standalone
// ops tool would want (pending-entry inspection, consumer eviction,
// stream introspection) — none of that is reachable from a filter graph.
type RedisClient interface {
	CreateConsumerGroup(ctx context.Context, stream, group, startID string) error
	ReadMessages(
		ctx context.Context,
		group, consumer, stream string,
		count int64,
		block time.Duration,
	) ([]*domain.Message, error)
	AckMessages(ctx context.Context, stream, group string, ids ...string) error
	GetConsumerName() string
	Close() error
}

// MQTTClient defines the interface mqttsink needs against a broker:
// connect, publish, and report the certificate-derived topic prefix.
// mqttsink never subscribes, so there is no handler-dispatch surface
// to expose here.
type MQTTClient interface {
	Connect(ctx context.Context) error
	Disconnect(timeout time.Duration)
	IsConnected() bool
	Publish(ctx context.Context, topic string, qos byte, retained bool, payload []byte) error
	GetUserPrefix() string
}

// Logger defines the interface for logging
type Logger interface {
	Trace(msg string, fields ...Field)
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	Fatal(msg string, fields ...Field)
	WithFields(fields ...Field) Logger
}

// Field represents a logging field
type Field struct {
	Key   string
	Value interface{}
}

// CircuitBreakerStats represents circuit breaker statistics, returned by
// pkg/circuitbreaker.CircuitBreaker.GetStats.
type CircuitBreakerStats struct {
	Requests            uint64
	TotalSuccess        uint64
	TotalFailure        uint64
	ConsecutiveFailures uint64
	State               string
}
