package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"

	"github.com/edgecore/edge-go/core"
)

const (
	redisReadyKey    = "queue:ready"
	redisInFlightKey = "queue:inflight"
)

// RedisStore is the durable Store implementation: hits survive a process
// restart, and an already-sent-but-unacknowledged hit (left in the
// in-flight list when the process died) is picked back up by Acquire
// instead of being lost (spec §4.6).
//
// Enqueue pushes onto the head of "queue:ready"; Acquire atomically moves
// the tail (the oldest entry) into "queue:inflight", preserving FIFO order
// without a separate index structure.
type RedisStore struct {
	client *core.RedisClient
	logger core.Logger
}

// NewRedisStore wraps a Redis client configured for core.RedisDBQueue.
func NewRedisStore(client *core.RedisClient, logger core.Logger) *RedisStore {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	if cal, ok := logger.(core.ComponentAwareLogger); ok {
		logger = cal.WithComponent("edge/queue")
	}
	return &RedisStore{client: client, logger: logger}
}

func (s *RedisStore) Enqueue(ctx context.Context, hit *EdgeHit) error {
	payload, err := json.Marshal(hit)
	if err != nil {
		return fmt.Errorf("queue: marshal hit: %w", err)
	}
	if err := s.client.LPush(ctx, redisReadyKey, string(payload)); err != nil {
		return fmt.Errorf("queue: enqueue: %w", err)
	}
	s.logger.Debug("hit enqueued", map[string]interface{}{"requestId": hit.RequestID})
	return nil
}

func (s *RedisStore) Acquire(ctx context.Context) (*EdgeHit, bool, error) {
	inFlightLen, err := s.client.LLen(ctx, redisInFlightKey)
	if err != nil {
		return nil, false, fmt.Errorf("queue: inspect in-flight: %w", err)
	}

	if inFlightLen > 0 {
		members, err := s.client.LRange(ctx, redisInFlightKey, 0, 0)
		if err != nil {
			return nil, false, fmt.Errorf("queue: read in-flight: %w", err)
		}
		if len(members) == 0 {
			return nil, false, nil
		}
		hit, err := decodeHit(members[0])
		if err != nil {
			return nil, false, err
		}
		return hit, true, nil
	}

	raw, err := s.client.RPopLPush(ctx, redisReadyKey, redisInFlightKey)
	if err != nil {
		if err == redis.Nil {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("queue: acquire: %w", err)
	}
	if raw == "" {
		return nil, false, nil
	}
	hit, err := decodeHit(raw)
	if err != nil {
		return nil, false, err
	}
	return hit, true, nil
}

func (s *RedisStore) Release(ctx context.Context, requestID string) error {
	if _, err := s.client.LPop(ctx, redisInFlightKey); err != nil {
		if err == redis.Nil {
			return nil
		}
		return fmt.Errorf("queue: release: %w", err)
	}
	return nil
}

func (s *RedisStore) Stats(ctx context.Context) (Stats, error) {
	readyLen, err := s.client.LLen(ctx, redisReadyKey)
	if err != nil {
		return Stats{}, fmt.Errorf("queue: stats: %w", err)
	}
	inFlightLen, err := s.client.LLen(ctx, redisInFlightKey)
	if err != nil {
		return Stats{}, fmt.Errorf("queue: stats: %w", err)
	}

	stats := Stats{ReadyCount: int(readyLen), InFlight: inFlightLen > 0}
	if readyLen > 0 {
		members, err := s.client.LRange(ctx, redisReadyKey, readyLen-1, readyLen-1)
		if err == nil && len(members) == 1 {
			if hit, err := decodeHit(members[0]); err == nil {
				stats.OldestReady = hit.CreatedAt
			}
		}
	}
	return stats, nil
}

func decodeHit(raw string) (*EdgeHit, error) {
	var hit EdgeHit
	if err := json.Unmarshal([]byte(raw), &hit); err != nil {
		return nil, fmt.Errorf("queue: decode hit: %w", err)
	}
	return &hit, nil
}
