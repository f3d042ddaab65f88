// Package registry implements the completion registry (spec C7): tracks,
// per requestId, which source events produced a hit and the handles
// collected from its response so far, and invokes the caller's completion
// handler exactly once when the hit terminates.
//
// Grounded on the teacher's core/discovery.go MockDiscovery in-memory
// map-plus-mutex shape (service records replaced with per-requestId waiter
// records) and core/async_task.go's handler-panic recovery convention.
package registry

import (
	"context"
	"sync"

	"github.com/edgecore/edge-go/core"
)

// CompletionHandler receives the handles collected for a request. It is
// invoked exactly once per registered request, even if the handles list is
// empty (fatal failure with no successful handles).
type CompletionHandler func(handles []interface{})

type waitingRequest struct {
	sourceEventIDs []string
	handles        []interface{}
	handler        CompletionHandler
}

// Registry is the in-memory completion registry. Safe for concurrent use.
type Registry struct {
	mu      sync.Mutex
	waiting map[string]*waitingRequest
	logger  core.Logger
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		waiting: make(map[string]*waitingRequest),
		logger:  &core.NoOpLogger{},
	}
}

// SetLogger configures the logger used for handler-panic diagnostics.
func (r *Registry) SetLogger(logger core.Logger) {
	if logger == nil {
		r.logger = &core.NoOpLogger{}
		return
	}
	if cal, ok := logger.(core.ComponentAwareLogger); ok {
		r.logger = cal.WithComponent("edge/registry")
		return
	}
	r.logger = logger
}

// Register records a new outstanding request. handler may be nil if the
// caller did not ask for a completion callback.
func (r *Registry) Register(requestID string, sourceEventIDs []string, handler CompletionHandler) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.waiting[requestID]; exists {
		return core.NewFrameworkError("registry.Register", "state", core.ErrAlreadyRegistered)
	}

	r.waiting[requestID] = &waitingRequest{
		sourceEventIDs: sourceEventIDs,
		handler:        handler,
	}
	return nil
}

// AddHandle appends a successfully parsed handle to requestID's collected
// list. It is a no-op (logged) if requestID is not registered, which can
// happen for responses to requests the registry never tracked.
func (r *Registry) AddHandle(requestID string, handle interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.waiting[requestID]
	if !ok {
		r.logger.Debug("handle for unregistered request", map[string]interface{}{"requestId": requestID})
		return
	}
	w.handles = append(w.handles, handle)
}

// Complete invokes the completion handler for requestID exactly once with
// the handles collected so far, then removes the request from the
// registry. A panicking handler is recovered and logged; it does not
// corrupt registry or queue state (spec §4.7).
func (r *Registry) Complete(ctx context.Context, requestID string) {
	r.mu.Lock()
	w, ok := r.waiting[requestID]
	if ok {
		delete(r.waiting, requestID)
	}
	r.mu.Unlock()

	if !ok {
		r.logger.Debug("complete for unregistered request", map[string]interface{}{"requestId": requestID})
		return
	}
	if w.handler == nil {
		return
	}

	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("completion handler panicked", map[string]interface{}{
				"requestId": requestID,
				"panic":     rec,
			})
		}
	}()
	w.handler(w.handles)
}

// SourceEventIDs returns the source event ids registered for requestID, or
// nil and false if requestID is not outstanding.
func (r *Registry) SourceEventIDs(requestID string) ([]string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.waiting[requestID]
	if !ok {
		return nil, false
	}
	return w.sourceEventIDs, true
}

// Pending returns the number of outstanding (unregistered-as-complete)
// requests, for diagnostics and tests.
func (r *Registry) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.waiting)
}
