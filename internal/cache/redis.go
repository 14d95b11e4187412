package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sakif/contacts-api/internal/metrics"
	"github.com/sakif/contacts-api/internal/model"
)

const namespace = "identity"

// Redis keeps principals as JSON under "identity:<email>".
type Redis struct {
	client redis.UniversalClient
	logger *slog.Logger
}

// NewRedis wraps an existing client. The client may be shared with other
// components; Close closes it.
func NewRedis(client redis.UniversalClient, logger *slog.Logger) *Redis {
	return &Redis{client: client, logger: logger}
}

func key(email string) string {
	return namespace + ":" + email
}

// Get returns the cached principal for email. A missing or unreadable
// entry is a miss; only transport failures are returned as errors.
func (c *Redis) Get(ctx context.Context, email string) (*model.Principal, bool, error) {
	raw, err := c.client.Get(ctx, key(email)).Bytes()
	if errors.Is(err, redis.Nil) {
		metrics.CacheRequests.WithLabelValues(metrics.CacheMiss).Inc()
		return nil, false, nil
	}
	if err != nil {
		metrics.CacheRequests.WithLabelValues(metrics.CacheError).Inc()
		return nil, false, fmt.Errorf("cache: getting %s: %w", key(email), err)
	}

	var p model.Principal
	if err := json.Unmarshal(raw, &p); err != nil {
		c.logger.WarnContext(ctx, "discarding undecodable cache entry",
			slog.String("key", key(email)),
			slog.String("error", err.Error()),
		)
		metrics.CacheRequests.WithLabelValues(metrics.CacheMiss).Inc()
		return nil, false, nil
	}

	metrics.CacheRequests.WithLabelValues(metrics.CacheHit).Inc()
	return &p, true, nil
}

// Set overwrites the entry for p.Email.
func (c *Redis) Set(ctx context.Context, p *model.Principal, ttl time.Duration) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("cache: encoding principal: %w", err)
	}
	if err := c.client.Set(ctx, key(p.Email), raw, ttl).Err(); err != nil {
		return fmt.Errorf("cache: setting %s: %w", key(p.Email), err)
	}
	return nil
}

func (c *Redis) Delete(ctx context.Context, email string) error {
	if err := c.client.Del(ctx, key(email)).Err(); err != nil {
		return fmt.Errorf("cache: deleting %s: %w", key(email), err)
	}
	return nil
}

func (c *Redis) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *Redis) Close() error {
	return c.client.Close()
}
