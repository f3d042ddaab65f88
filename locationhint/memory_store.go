package locationhint

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/edgecore/edge-go/core"
)

// memoryHintKey is the single well-known key a MemoryStore keeps its hint
// under in the backing core.MemoryStore, since a process only ever holds
// one location hint at a time.
const memoryHintKey = "locationhint:current"

// MemoryStore is a process-local Store backed by core.MemoryStore, the
// same map+mutex+expiry KV core's other components use. It mirrors
// RedisStore's wire shape (a JSON {value, expiresAt} payload under one
// key) rather than relying solely on core.MemoryStore's own TTL bookkeeping,
// so Get can report an accurate ExpiresAt.
type MemoryStore struct {
	backing *core.MemoryStore
}

type memoryHintValue struct {
	Value     string    `json:"value"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// NewMemoryStore creates an empty in-memory location hint store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{backing: core.NewMemoryStore()}
}

// SetLogger configures the logger used for set/clear diagnostics.
func (s *MemoryStore) SetLogger(logger core.Logger) {
	if logger == nil {
		s.backing.SetLogger(&core.NoOpLogger{})
		return
	}
	if cal, ok := logger.(core.ComponentAwareLogger); ok {
		s.backing.SetLogger(cal.WithComponent("edge/locationhint"))
		return
	}
	s.backing.SetLogger(logger)
}

// Set stores value with ttl. An empty value clears the hint.
func (s *MemoryStore) Set(ctx context.Context, value string, ttl time.Duration) error {
	if value == "" {
		return s.backing.Delete(ctx, memoryHintKey)
	}

	if ttl <= 0 {
		ttl = DefaultTTL
	}
	payload, err := json.Marshal(memoryHintValue{Value: value, ExpiresAt: time.Now().Add(ttl)})
	if err != nil {
		return fmt.Errorf("encode location hint: %w", err)
	}
	return s.backing.Set(ctx, memoryHintKey, string(payload), ttl)
}

// Get returns the current hint, or false if absent or expired.
func (s *MemoryStore) Get(ctx context.Context) (Hint, bool, error) {
	raw, err := s.backing.Get(ctx, memoryHintKey)
	if err != nil {
		return Hint{}, false, err
	}
	if raw == "" {
		return Hint{}, false, nil
	}

	var v memoryHintValue
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return Hint{}, false, fmt.Errorf("decode location hint: %w", err)
	}
	if !v.ExpiresAt.After(time.Now()) {
		_ = s.backing.Delete(ctx, memoryHintKey)
		return Hint{}, false, nil
	}
	return Hint{Value: v.Value, ExpiresAt: v.ExpiresAt}, true, nil
}

// Clear removes the current hint.
func (s *MemoryStore) Clear(ctx context.Context) error {
	return s.backing.Delete(ctx, memoryHintKey)
}
