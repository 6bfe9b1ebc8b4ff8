// Package redis provides a Redis Streams client implementation with conversion helpers and retry logic.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/quickstream/quickstream/internal/domain"
	"github.com/quickstream/quickstream/internal/ports"
	"github.com/quickstream/quickstream/pkg/jsonx"
	goredis "github.com/redis/go-redis/v9"
)

// Config holds the connection settings a redissource filter needs to reach
// a Redis stream. Built from a filter's own Construct args rather than a
// shared application-wide config object.
type Config struct {
	Addresses       []string
	Username        string
	Password        string
	DB              int
	MasterName      string
	PoolSize        int
	MinIdleConns    int
	ConnMaxLifetime time.Duration
	PoolTimeout     time.Duration
	ConnMaxIdleTime time.Duration
	ConnectTimeout  time.Duration
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	MaxRetries      int
	RetryInterval   time.Duration
}

// client implements ports.RedisClient using go-redis v9
type client struct {
	client       goredis.UniversalClient
	cfg          *Config
	logger       ports.Logger
	consumerName string
}

// NewClient creates a new Redis client from a filter-owned connection config.
func NewClient(cfg *Config, logger ports.Logger) (ports.RedisClient, error) {
	return newClient(cfg, logger)
}

// newClient creates a new Redis client using the redis-specific config
func newClient(cfg *Config, logger ports.Logger) (*client, error) {
	c := goredis.NewUniversalClient(&goredis.UniversalOptions{
		Addrs:           cfg.Addresses,
		Username:        cfg.Username,
		Password:        cfg.Password,
		DB:              cfg.DB,
		PoolSize:        cfg.PoolSize,
		MinIdleConns:    cfg.MinIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		PoolTimeout:     cfg.PoolTimeout,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
		DialTimeout:     cfg.ConnectTimeout,
		ReadTimeout:     cfg.ReadTimeout,
		WriteTimeout:    cfg.WriteTimeout,
		MasterName:      cfg.MasterName, // for sentinel
	})

	consumerName := fmt.Sprintf("consumer-%s", uuid.New().String())

	return &client{
		client:       c,
		cfg:          cfg,
		logger:       logger.WithFields(ports.Field{Key: "component", Value: "redis-client"}),
		consumerName: consumerName,
	}, nil
}

// CreateConsumerGroup creates a new consumer group if it doesn't exist
func (c *client) CreateConsumerGroup(ctx context.Context, stream, group, start string) error {
	// XGROUP CREATE creates the stream if it doesn't exist
	// We can ignore the "BUSYGROUP" error
	return c.executeWithRetry(ctx, "CreateConsumerGroup", func(ctx context.Context) error {
		err := c.client.XGroupCreateMkStream(ctx, stream, group, start).Err()
		if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
			return err
		}
		return nil
	})
}

// ReadMessages reads messages from a stream for a specific consumer
func (c *client) ReadMessages(
	ctx context.Context,
	group, consumer, stream string,
	count int64,
	block time.Duration,
) ([]*domain.Message, error) {
	var messages []*domain.Message

	err := c.executeWithRetry(ctx, "ReadMessages", func(ctx context.Context) error {
		streams, err := c.client.XReadGroup(ctx, &goredis.XReadGroupArgs{
			Group:    group,
			Consumer: consumer,
			Streams:  []string{stream, ">"}, // ">" means new messages only
			Count:    int64(count),
			Block:    block,
			NoAck:    false,
		}).Result()

		if err != nil {
			// Treat redis.Nil as "no new messages" (not an error)
			if errors.Is(err, goredis.Nil) {
				messages = []*domain.Message{}
				return nil
			}
			// Handle missing group after Redis restart: auto-create and continue
			if strings.Contains(err.Error(), "NOGROUP") {
				cgErr := c.client.XGroupCreateMkStream(ctx, stream, group, "0-0").Err()
				if cgErr != nil && !strings.Contains(cgErr.Error(), "BUSYGROUP") {
					return cgErr
				}
				messages = []*domain.Message{}
				return nil
			}
			return err
		}

		messages = c.convertXMessages(streams)
		return nil
	})

	return messages, err
}

// AckMessages acknowledges messages in a stream
func (c *client) AckMessages(ctx context.Context, stream, group string, ids ...string) error {
	return c.executeWithRetry(ctx, "AckMessages", func(ctx context.Context) error {
		err := c.client.XAck(ctx, stream, group, ids...).Err()
		if err != nil && strings.Contains(err.Error(), "NOGROUP") {
			// Group missing (e.g., after Redis restart). Treat as already acked/cleaned up.
			return nil
		}
		return err
	})
}

// Close closes the Redis client
func (c *client) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// GetConsumerName returns the name of the consumer
func (c *client) GetConsumerName() string {
	return c.consumerName
}

// convertXMessages converts goredis.XMessage to domain.Message with minimal allocations.
// Preference: if a "payload" field looks like an already-encoded JSON value (per
// jsonx.IsLikelyJSONBytes/IsLikelyJSONString: object, array, string, literal or number),
// forward it as-is (zero-copy for []byte). Otherwise, JSON-encode just once.
func (c *client) convertXMessages(streams []goredis.XStream) []*domain.Message {
	now := time.Now()
	// Preallocate a small capacity to reduce reslices under load
	messages := make([]*domain.Message, 0, 128)

	for _, stream := range streams {
		for _, xmsg := range stream.Messages {
			data := buildPayload(xmsg.Values)

			messages = append(messages, &domain.Message{
				ID:        xmsg.ID,
				Timestamp: now,
				Data:      data,
				Attempts:  0,
			})
		}
	}
	return messages
}

func buildPayload(values map[string]any) []byte {
	if raw, ok := values["payload"]; ok {
		switch v := raw.(type) {
		case []byte:
			if jsonx.IsLikelyJSONBytes(v) {
				return v
			}
			b, _ := jsonx.Marshal(string(v))
			return b
		case string:
			if jsonx.IsLikelyJSONString(v) {
				return []byte(v)
			}
			b, _ := jsonx.Marshal(v)
			return b
		default:
			b, _ := jsonx.Marshal(v)
			return b
		}
	}
	b, err := jsonx.Marshal(values)
	if err != nil {
		return []byte("{}")
	}
	return b
}

// executeWithRetry runs fn, retrying transient errors up to cfg.MaxRetries times, cfg.RetryInterval apart.
func (c *client) executeWithRetry(ctx context.Context, _ string, fn func(ctx context.Context) error) error {
	var attempt int
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		err := fn(ctx)
		if err == nil {
			return nil
		}
		// Do not retry on redis.Nil (treated as "no data")
		if errors.Is(err, goredis.Nil) {
			return nil
		}

		if !isTransientRedisError(err) || attempt >= c.cfg.MaxRetries {
			return err
		}
		attempt++
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.cfg.RetryInterval):
		}
	}
}

// isTransientRedisError reports whether err appears to be a transient connection/loading issue.
func isTransientRedisError(err error) bool {
	if err == nil {
		return false
	}
	es := err.Error()
	return strings.Contains(es, "LOADING") ||
		strings.Contains(es, "connect: connection refused") ||
		strings.Contains(es, "i/o timeout") ||
		strings.Contains(es, "EOF") ||
		strings.Contains(es, "read: connection reset")
}
