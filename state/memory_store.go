package state

import (
	"context"
	"sync"
	"time"

	"github.com/edgecore/edge-go/core"
)

// MemoryStore is a process-local implementation of Store, grounded on
// core.MemoryStore's map+mutex+expiry shape.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]Entry
	logger  core.Logger
}

// NewMemoryStore creates an empty in-memory state store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]Entry),
		logger:  &core.NoOpLogger{},
	}
}

// SetLogger configures the logger used for merge/clear diagnostics.
func (s *MemoryStore) SetLogger(logger core.Logger) {
	if logger == nil {
		s.logger = &core.NoOpLogger{}
		return
	}
	if cal, ok := logger.(core.ComponentAwareLogger); ok {
		s.logger = cal.WithComponent("edge/state")
		return
	}
	s.logger = logger
}

// Merge applies updates in order; MaxAge == 0 deletes the key.
func (s *MemoryStore) Merge(ctx context.Context, updates []Update) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for _, u := range updates {
		if u.MaxAge <= 0 {
			delete(s.entries, u.Key)
			continue
		}
		s.entries[u.Key] = Entry{
			Key:       u.Key,
			Value:     u.Value,
			ExpiresAt: now.Add(u.MaxAge),
		}
	}

	s.logger.Debug("state merged", map[string]interface{}{
		"updates": len(updates),
		"size":    len(s.entries),
	})

	if registry := core.GetGlobalMetricsRegistry(); registry != nil {
		registry.Gauge("edge.state.entries", float64(len(s.entries)))
	}

	return nil
}

// ActiveEntries returns non-expired entries, pruning expired ones found
// along the way.
func (s *MemoryStore) ActiveEntries(ctx context.Context) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	active := make([]Entry, 0, len(s.entries))
	for k, e := range s.entries {
		if !e.ExpiresAt.After(now) {
			delete(s.entries, k)
			continue
		}
		active = append(active, e)
	}
	return active, nil
}

// Clear removes all entries.
func (s *MemoryStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]Entry)
	s.logger.Debug("state cleared", nil)
	return nil
}

// Snapshot returns a defensive copy of all entries, expired or not, for
// tests and debug log lines. It does not prune.
func (s *MemoryStore) Snapshot() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e)
	}
	return out
}
