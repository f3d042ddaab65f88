package state

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/edgecore/edge-go/core"
	"github.com/go-redis/redis/v8"
)

// RedisStore is the durable implementation of Store. Each entry is written
// as its own Redis key with a native EXPIRE so the server-side TTL matches
// the application-level one; a sorted set indexes the live key names by
// expiry so ActiveEntries can enumerate without a KEYS scan.
type RedisStore struct {
	client *core.RedisClient
	logger core.Logger
}

const redisStateIndexKey = "state:index"

// NewRedisStore wraps an already-connected client scoped to RedisDBState.
func NewRedisStore(client *core.RedisClient, logger core.Logger) *RedisStore {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	if cal, ok := logger.(core.ComponentAwareLogger); ok {
		logger = cal.WithComponent("edge/state")
	}
	return &RedisStore{client: client, logger: logger}
}

type redisEntryValue struct {
	Value     string    `json:"value"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func entryKey(key string) string {
	return fmt.Sprintf("state:entry:%s", key)
}

// Merge applies updates; MaxAge == 0 deletes the key.
func (s *RedisStore) Merge(ctx context.Context, updates []Update) error {
	now := time.Now()
	for _, u := range updates {
		if u.MaxAge <= 0 {
			if err := s.client.Del(ctx, entryKey(u.Key)); err != nil {
				return fmt.Errorf("delete state entry %q: %w", u.Key, err)
			}
			if err := s.client.ZRem(ctx, redisStateIndexKey, u.Key); err != nil {
				return fmt.Errorf("unindex state entry %q: %w", u.Key, err)
			}
			continue
		}

		expiresAt := now.Add(u.MaxAge)
		payload, err := json.Marshal(redisEntryValue{Value: u.Value, ExpiresAt: expiresAt})
		if err != nil {
			return fmt.Errorf("encode state entry %q: %w", u.Key, err)
		}
		if err := s.client.Set(ctx, entryKey(u.Key), payload, u.MaxAge); err != nil {
			return fmt.Errorf("write state entry %q: %w", u.Key, err)
		}
		if err := s.client.ZAdd(ctx, redisStateIndexKey, &redis.Z{
			Score:  float64(expiresAt.Unix()),
			Member: u.Key,
		}); err != nil {
			return fmt.Errorf("index state entry %q: %w", u.Key, err)
		}
	}

	s.logger.Debug("state merged", map[string]interface{}{"updates": len(updates)})
	return nil
}

// ActiveEntries returns non-expired entries, pruning index members whose
// underlying key has already expired (naturally, via Redis TTL, or because
// they were never renewed).
func (s *RedisStore) ActiveEntries(ctx context.Context) ([]Entry, error) {
	now := time.Now()

	// Drop index members whose recorded expiry has already passed.
	if err := s.client.ZRemRangeByScore(ctx, redisStateIndexKey, "-inf", strconv.FormatInt(now.Unix()-1, 10)); err != nil {
		return nil, fmt.Errorf("prune state index: %w", err)
	}

	keys, err := s.client.ZRangeByScore(ctx, redisStateIndexKey, strconv.FormatInt(now.Unix(), 10), "+inf")
	if err != nil {
		return nil, fmt.Errorf("enumerate state index: %w", err)
	}

	active := make([]Entry, 0, len(keys))
	for _, k := range keys {
		raw, err := s.client.Get(ctx, entryKey(k))
		if err != nil {
			// Key expired naturally via Redis TTL; drop from index.
			_ = s.client.ZRem(ctx, redisStateIndexKey, k)
			continue
		}
		var v redisEntryValue
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			s.logger.Warn("dropping malformed state entry", map[string]interface{}{"key": k, "error": err.Error()})
			_ = s.client.ZRem(ctx, redisStateIndexKey, k)
			continue
		}
		if !v.ExpiresAt.After(now) {
			_ = s.client.ZRem(ctx, redisStateIndexKey, k)
			continue
		}
		active = append(active, Entry{Key: k, Value: v.Value, ExpiresAt: v.ExpiresAt})
	}
	return active, nil
}

// Clear removes every indexed entry.
func (s *RedisStore) Clear(ctx context.Context) error {
	keys, err := s.client.ZRangeByScore(ctx, redisStateIndexKey, "-inf", "+inf")
	if err != nil {
		return fmt.Errorf("enumerate state index for clear: %w", err)
	}
	for _, k := range keys {
		if err := s.client.Del(ctx, entryKey(k)); err != nil {
			return fmt.Errorf("delete state entry %q during clear: %w", k, err)
		}
	}
	if err := s.client.ZRemRangeByScore(ctx, redisStateIndexKey, "-inf", "+inf"); err != nil {
		return fmt.Errorf("clear state index: %w", err)
	}
	s.logger.Debug("state cleared", nil)
	return nil
}
