package locationhint

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/edgecore/edge-go/core"
)

const redisHintKey = "locationhint:current"

// RedisStore is the durable Store implementation: a single namespaced
// key holding {value, expiresAt} with a native Redis TTL mirroring the
// application-level one.
type RedisStore struct {
	client *core.RedisClient
	logger core.Logger
}

// NewRedisStore wraps an already-connected client scoped to
// RedisDBLocationHint.
func NewRedisStore(client *core.RedisClient, logger core.Logger) *RedisStore {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	if cal, ok := logger.(core.ComponentAwareLogger); ok {
		logger = cal.WithComponent("edge/locationhint")
	}
	return &RedisStore{client: client, logger: logger}
}

type redisHintValue struct {
	Value     string    `json:"value"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Set stores value with ttl, or clears it when value is empty.
func (s *RedisStore) Set(ctx context.Context, value string, ttl time.Duration) error {
	if value == "" {
		return s.Clear(ctx)
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	payload, err := json.Marshal(redisHintValue{Value: value, ExpiresAt: time.Now().Add(ttl)})
	if err != nil {
		return fmt.Errorf("encode location hint: %w", err)
	}
	if err := s.client.Set(ctx, redisHintKey, payload, ttl); err != nil {
		return fmt.Errorf("write location hint: %w", err)
	}
	s.logger.Debug("location hint set", map[string]interface{}{"ttl": ttl.String()})
	return nil
}

// Get returns the current hint, or false if absent or expired.
func (s *RedisStore) Get(ctx context.Context) (Hint, bool, error) {
	raw, err := s.client.Get(ctx, redisHintKey)
	if err != nil {
		return Hint{}, false, nil
	}
	var v redisHintValue
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		s.logger.Warn("dropping malformed location hint", map[string]interface{}{"error": err.Error()})
		_ = s.client.Del(ctx, redisHintKey)
		return Hint{}, false, nil
	}
	if !v.ExpiresAt.After(time.Now()) {
		_ = s.client.Del(ctx, redisHintKey)
		return Hint{}, false, nil
	}
	return Hint{Value: v.Value, ExpiresAt: v.ExpiresAt}, true, nil
}

// Clear removes the current hint.
func (s *RedisStore) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, redisHintKey); err != nil {
		return fmt.Errorf("clear location hint: %w", err)
	}
	s.logger.Debug("location hint cleared", nil)
	return nil
}
