package queue

import (
	"context"
	"sync"

	"github.com/edgecore/edge-go/core"
)

// MemoryStore is an in-process Store, useful as a test double and for
// embedding contexts with no durability requirement.
type MemoryStore struct {
	mu       sync.Mutex
	ready    []*EdgeHit
	inFlight *EdgeHit
	logger   core.Logger
}

// NewMemoryStore creates an empty in-memory hit queue.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{logger: &core.NoOpLogger{}}
}

// SetLogger configures the logger used for diagnostics.
func (s *MemoryStore) SetLogger(logger core.Logger) {
	if logger == nil {
		s.logger = &core.NoOpLogger{}
		return
	}
	if cal, ok := logger.(core.ComponentAwareLogger); ok {
		s.logger = cal.WithComponent("edge/queue")
		return
	}
	s.logger = logger
}

func (s *MemoryStore) Enqueue(ctx context.Context, hit *EdgeHit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ready = append(s.ready, hit)
	s.logger.Debug("hit enqueued", map[string]interface{}{"requestId": hit.RequestID, "readyDepth": len(s.ready)})
	return nil
}

func (s *MemoryStore) Acquire(ctx context.Context) (*EdgeHit, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.inFlight != nil {
		return s.inFlight, true, nil
	}
	if len(s.ready) == 0 {
		return nil, false, nil
	}

	hit := s.ready[0]
	s.ready = s.ready[1:]
	s.inFlight = hit
	return hit, true, nil
}

func (s *MemoryStore) Release(ctx context.Context, requestID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.inFlight != nil && s.inFlight.RequestID == requestID {
		s.inFlight = nil
	}
	return nil
}

func (s *MemoryStore) Stats(ctx context.Context) (Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := Stats{
		ReadyCount: len(s.ready),
		InFlight:   s.inFlight != nil,
	}
	if len(s.ready) > 0 {
		stats.OldestReady = s.ready[0].CreatedAt
	}
	return stats, nil
}
