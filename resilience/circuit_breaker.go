package resilience

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/edgecore/edge-go/core"
)

// CircuitState represents the state of the circuit breaker
type CircuitState int

const (
	// StateClosed allows all requests through
	StateClosed CircuitState = iota
	// StateOpen blocks all requests
	StateOpen
	// StateHalfOpen allows limited requests for testing
	StateHalfOpen
)

// String returns the string representation of the state
func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// MetricsCollector interface for circuit breaker metrics
type MetricsCollector interface {
	RecordSuccess(name string)
	RecordFailure(name string, errorType string)
	RecordStateChange(name string, from, to string)
	RecordRejection(name string)
}

// noopMetrics is a no-op metrics implementation
type noopMetrics struct{}

func (n *noopMetrics) RecordSuccess(name string)                      {}
func (n *noopMetrics) RecordFailure(name string, errorType string)    {}
func (n *noopMetrics) RecordStateChange(name string, from, to string) {}
func (n *noopMetrics) RecordRejection(name string)                    {}

// ErrorClassifier determines which errors should count toward circuit breaker thresholds
type ErrorClassifier func(error) bool

// DefaultErrorClassifier only counts transport failures, matching the hit
// queue's TransientNetwork classification (spec.md §7). Validation, consent
// and state errors are caller mistakes, not endpoint health signals.
func DefaultErrorClassifier(err error) bool {
	if err == nil {
		return false
	}
	if core.IsConfigurationError(err) {
		return false
	}
	if core.IsStateError(err) {
		return false
	}
	if errors.Is(err, core.ErrEmptyEvent) || errors.Is(err, core.ErrInvalidOverride) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, core.ErrContextCanceled) {
		return false
	}
	return true
}

// CircuitBreakerConfig holds configuration for the circuit breaker
type CircuitBreakerConfig struct {
	// Name identifies the circuit breaker
	Name string

	// ErrorThreshold is the error rate (0.0 to 1.0) that triggers opening
	ErrorThreshold float64

	// VolumeThreshold is the minimum number of requests before evaluation
	VolumeThreshold int

	// SleepWindow is how long to wait before entering half-open state
	SleepWindow time.Duration

	// HalfOpenRequests is the number of test requests allowed in half-open state
	HalfOpenRequests int

	// SuccessThreshold is the success rate needed to close from half-open
	SuccessThreshold float64

	// WindowSize is the sliding window duration for metrics
	WindowSize time.Duration

	// BucketCount is the number of buckets in the sliding window
	BucketCount int

	// ErrorClassifier determines which errors count as failures
	ErrorClassifier ErrorClassifier

	// Logger for circuit breaker events
	Logger core.Logger

	// Metrics collector for monitoring
	Metrics MetricsCollector
}

// DefaultConfig returns a production-ready default configuration, tuned for
// protecting the hit queue's POST calls against a stuck Edge Network endpoint.
func DefaultConfig() *CircuitBreakerConfig {
	return &CircuitBreakerConfig{
		Name:             "edge-dispatch",
		ErrorThreshold:   0.5,
		VolumeThreshold:  10,
		SleepWindow:      30 * time.Second,
		HalfOpenRequests: 5,
		SuccessThreshold: 0.6,
		WindowSize:       60 * time.Second,
		BucketCount:      10,
		ErrorClassifier:  DefaultErrorClassifier,
		Logger:           &core.NoOpLogger{},
		Metrics:          &noopMetrics{},
	}
}

// Validate checks the configuration for sane values
func (c *CircuitBreakerConfig) Validate() error {
	if c.Name == "" {
		return errors.New("circuit breaker name is required")
	}
	if c.ErrorThreshold < 0 || c.ErrorThreshold > 1 {
		return errors.New("error threshold must be between 0 and 1")
	}
	if c.VolumeThreshold < 0 {
		return errors.New("volume threshold must be non-negative")
	}
	if c.SleepWindow < 0 {
		return errors.New("sleep window must be non-negative")
	}
	return nil
}

// CircuitBreaker protects an operation (the hit queue's POST send) from
// hammering a failing endpoint, tripping open once the error rate over a
// sliding window crosses the configured threshold.
type CircuitBreaker struct {
	config *CircuitBreakerConfig

	state          atomic.Value // CircuitState
	stateChangedAt atomic.Value // time.Time

	window *SlidingWindow

	halfOpenCount     atomic.Int32
	halfOpenSuccesses atomic.Int32
	halfOpenFailures  atomic.Int32

	forceOpen   atomic.Bool
	forceClosed atomic.Bool

	listeners []func(name string, from, to CircuitState)

	mu sync.Mutex

	totalExecutions    atomic.Uint64
	rejectedExecutions atomic.Uint64
}

// NewCircuitBreaker creates a circuit breaker from the given configuration,
// applying defaults for an unset WindowSize, BucketCount, ErrorClassifier,
// Logger, Metrics, SuccessThreshold and HalfOpenRequests. ErrorThreshold,
// VolumeThreshold and SleepWindow are used as given.
func NewCircuitBreaker(config *CircuitBreakerConfig) (*CircuitBreaker, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid circuit breaker config: %w", err)
	}
	if config.WindowSize == 0 {
		config.WindowSize = 60 * time.Second
	}
	if config.BucketCount == 0 {
		config.BucketCount = 10
	}
	if config.ErrorClassifier == nil {
		config.ErrorClassifier = DefaultErrorClassifier
	}
	if config.Logger == nil {
		config.Logger = &core.NoOpLogger{}
	}
	if config.Metrics == nil {
		config.Metrics = &noopMetrics{}
	}
	if config.SuccessThreshold == 0 {
		config.SuccessThreshold = 0.6
	}
	if config.HalfOpenRequests == 0 {
		config.HalfOpenRequests = 5
	}

	cb := &CircuitBreaker{
		config: config,
		window: NewSlidingWindow(config.WindowSize, config.BucketCount, true),
	}
	cb.state.Store(StateClosed)
	cb.stateChangedAt.Store(time.Now())

	config.Logger.Info("circuit breaker created", map[string]interface{}{
		"name":             config.Name,
		"error_threshold":  config.ErrorThreshold,
		"volume_threshold": config.VolumeThreshold,
	})

	return cb, nil
}

// SetLogger sets the logger provider, always attributing log lines to the
// resilience component regardless of which caller owns the breaker.
func (cb *CircuitBreaker) SetLogger(logger core.Logger) {
	if logger == nil {
		cb.config.Logger = &core.NoOpLogger{}
		return
	}
	if cal, ok := logger.(core.ComponentAwareLogger); ok {
		cb.config.Logger = cal.WithComponent("edge/resilience")
	} else {
		cb.config.Logger = logger
	}
}

// Execute runs fn with circuit breaker protection.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func() error) error {
	return cb.ExecuteWithTimeout(ctx, 0, fn)
}

// ExecuteWithTimeout runs fn with circuit breaker protection and an optional timeout.
func (cb *CircuitBreaker) ExecuteWithTimeout(ctx context.Context, timeout time.Duration, fn func() error) error {
	if !cb.CanExecute() {
		cb.rejectedExecutions.Add(1)
		cb.config.Metrics.RecordRejection(cb.config.Name)
		return fmt.Errorf("circuit breaker %q is open: %w", cb.config.Name, core.ErrCircuitBreakerOpen)
	}

	isHalfOpen := cb.GetState() == StateHalfOpen.String()
	if isHalfOpen {
		cb.halfOpenCount.Add(1)
	}
	cb.totalExecutions.Add(1)

	var cancel context.CancelFunc
	if timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic in protected call: %v", r)
			}
		}()
		done <- fn()
	}()

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}

	cb.recordResult(err, isHalfOpen)
	return err
}

func (cb *CircuitBreaker) recordResult(err error, wasHalfOpen bool) {
	failed := cb.config.ErrorClassifier(err)

	if err != nil && !failed {
		// Errors the classifier does not count are left out of the window;
		// a half-open trial slot they used is released.
		if wasHalfOpen {
			cb.halfOpenCount.Add(-1)
		}
		return
	}

	if failed {
		cb.window.RecordFailure()
		cb.config.Metrics.RecordFailure(cb.config.Name, cb.errorType(err))
		if wasHalfOpen {
			cb.halfOpenFailures.Add(1)
		}
	} else {
		cb.window.RecordSuccess()
		cb.config.Metrics.RecordSuccess(cb.config.Name)
		if wasHalfOpen {
			cb.halfOpenSuccesses.Add(1)
		}
	}

	cb.evaluateState(wasHalfOpen)
}

func (cb *CircuitBreaker) errorType(err error) string {
	switch {
	case err == nil:
		return ""
	case core.IsRetryable(err):
		return "transient_network"
	case core.IsConfigurationError(err):
		return "configuration"
	default:
		return "other"
	}
}

// evaluateState decides whether a transition is needed based on the current
// window and, when in half-open, the outcome of the trial requests.
func (cb *CircuitBreaker) evaluateState(wasHalfOpen bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	state := cb.currentState()

	switch state {
	case StateClosed:
		total := cb.window.GetTotal()
		if total >= uint64(cb.config.VolumeThreshold) && cb.window.GetErrorRate() >= cb.config.ErrorThreshold {
			cb.transitionLocked(StateOpen)
		}
	case StateOpen:
		if time.Since(cb.stateChangedAt.Load().(time.Time)) >= cb.config.SleepWindow {
			cb.transitionLocked(StateHalfOpen)
		}
	case StateHalfOpen:
		if !wasHalfOpen {
			return
		}
		successes := cb.halfOpenSuccesses.Load()
		failures := cb.halfOpenFailures.Load()
		total := successes + failures
		if total < int32(cb.config.HalfOpenRequests) {
			return
		}
		rate := float64(successes) / float64(total)
		if rate >= cb.config.SuccessThreshold {
			cb.transitionLocked(StateClosed)
		} else {
			cb.transitionLocked(StateOpen)
		}
	}
}

func (cb *CircuitBreaker) currentState() CircuitState {
	if cb.forceOpen.Load() {
		return StateOpen
	}
	if cb.forceClosed.Load() {
		return StateClosed
	}
	return cb.state.Load().(CircuitState)
}

func (cb *CircuitBreaker) transitionLocked(newState CircuitState) {
	oldState := cb.state.Load().(CircuitState)
	if oldState == newState {
		return
	}
	cb.state.Store(newState)
	cb.stateChangedAt.Store(time.Now())
	if newState == StateClosed || newState == StateOpen {
		cb.window.reset()
		cb.halfOpenCount.Store(0)
		cb.halfOpenSuccesses.Store(0)
		cb.halfOpenFailures.Store(0)
	}

	cb.config.Metrics.RecordStateChange(cb.config.Name, oldState.String(), newState.String())
	cb.config.Logger.Info("circuit breaker state change", map[string]interface{}{
		"name": cb.config.Name,
		"from": oldState.String(),
		"to":   newState.String(),
	})
	for _, l := range cb.listeners {
		l(cb.config.Name, oldState, newState)
	}
}

// AddStateChangeListener registers a callback invoked on every state transition.
func (cb *CircuitBreaker) AddStateChangeListener(listener func(name string, from, to CircuitState)) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.listeners = append(cb.listeners, listener)
}

// GetState returns the current circuit state as a string.
func (cb *CircuitBreaker) GetState() string {
	return cb.currentState().String()
}

// CanExecute reports whether a call would currently be allowed through.
func (cb *CircuitBreaker) CanExecute() bool {
	state := cb.currentState()
	if state == StateOpen {
		if time.Since(cb.stateChangedAt.Load().(time.Time)) >= cb.config.SleepWindow {
			cb.mu.Lock()
			cb.transitionLocked(StateHalfOpen)
			cb.mu.Unlock()
			return true
		}
		return false
	}
	if state == StateHalfOpen {
		return cb.halfOpenCount.Load() < int32(cb.config.HalfOpenRequests)
	}
	return true
}

// GetMetrics returns a snapshot of circuit breaker counters for diagnostics.
func (cb *CircuitBreaker) GetMetrics() map[string]interface{} {
	success, failure := cb.window.GetCounts()
	return map[string]interface{}{
		"name":                cb.config.Name,
		"state":               cb.GetState(),
		"window_success":      success,
		"window_failure":      failure,
		"error_rate":          cb.window.GetErrorRate(),
		"total_executions":    cb.totalExecutions.Load(),
		"rejected_executions": cb.rejectedExecutions.Load(),
	}
}

// Reset forces the circuit back to closed and clears all counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state.Store(StateClosed)
	cb.stateChangedAt.Store(time.Now())
	cb.window.reset()
	cb.halfOpenCount.Store(0)
	cb.halfOpenSuccesses.Store(0)
	cb.halfOpenFailures.Store(0)
	cb.forceOpen.Store(false)
	cb.forceClosed.Store(false)
}

// ForceOpen manually trips the circuit open, ignoring the sliding window.
func (cb *CircuitBreaker) ForceOpen() {
	cb.forceOpen.Store(true)
	cb.forceClosed.Store(false)
}

// ForceClosed manually holds the circuit closed, ignoring the sliding window.
func (cb *CircuitBreaker) ForceClosed() {
	cb.forceClosed.Store(true)
	cb.forceOpen.Store(false)
}

// ClearForce releases any manual force-open/force-closed override.
func (cb *CircuitBreaker) ClearForce() {
	cb.forceOpen.Store(false)
	cb.forceClosed.Store(false)
}

// bucket holds the success/failure tally for one slice of the sliding window.
type bucket struct {
	success atomic.Uint64
	failure atomic.Uint64
	start   time.Time
}

// SlidingWindow tracks success/failure counts over a rolling time window
// divided into fixed buckets, rotating out the oldest bucket as time passes.
type SlidingWindow struct {
	mu          sync.Mutex
	buckets     []*bucket
	bucketSize  time.Duration
	bucketCount int
	monotonic   bool
	lastRotate  time.Time
}

// NewSlidingWindow creates a sliding window split into bucketCount buckets
// covering windowSize in total.
func NewSlidingWindow(windowSize time.Duration, bucketCount int, monotonic bool) *SlidingWindow {
	if bucketCount <= 0 {
		bucketCount = 10
	}
	sw := &SlidingWindow{
		bucketSize:  windowSize / time.Duration(bucketCount),
		bucketCount: bucketCount,
		monotonic:   monotonic,
		lastRotate:  time.Now(),
	}
	sw.buckets = make([]*bucket, bucketCount)
	for i := range sw.buckets {
		sw.buckets[i] = &bucket{start: sw.lastRotate}
	}
	return sw
}

func (sw *SlidingWindow) rotateBuckets() {
	now := time.Now()
	elapsed := now.Sub(sw.lastRotate)
	if elapsed < sw.bucketSize {
		return
	}
	shifts := int(elapsed / sw.bucketSize)
	if shifts > sw.bucketCount {
		shifts = sw.bucketCount
	}
	for i := 0; i < shifts; i++ {
		sw.buckets = append(sw.buckets[1:], &bucket{start: now})
	}
	sw.lastRotate = now
}

func (sw *SlidingWindow) reset() {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	now := time.Now()
	for i := range sw.buckets {
		sw.buckets[i] = &bucket{start: now}
	}
	sw.lastRotate = now
}

// RecordSuccess records a successful call in the current bucket.
func (sw *SlidingWindow) RecordSuccess() {
	sw.mu.Lock()
	sw.rotateBuckets()
	b := sw.buckets[len(sw.buckets)-1]
	sw.mu.Unlock()
	b.success.Add(1)
}

// RecordFailure records a failed call in the current bucket.
func (sw *SlidingWindow) RecordFailure() {
	sw.mu.Lock()
	sw.rotateBuckets()
	b := sw.buckets[len(sw.buckets)-1]
	sw.mu.Unlock()
	b.failure.Add(1)
}

// GetCounts returns the total success/failure counts across the whole window.
func (sw *SlidingWindow) GetCounts() (success, failure uint64) {
	sw.mu.Lock()
	sw.rotateBuckets()
	buckets := append([]*bucket(nil), sw.buckets...)
	sw.mu.Unlock()
	for _, b := range buckets {
		success += b.success.Load()
		failure += b.failure.Load()
	}
	return success, failure
}

// GetErrorRate returns the failure ratio across the window, 0 if empty.
func (sw *SlidingWindow) GetErrorRate() float64 {
	success, failure := sw.GetCounts()
	total := success + failure
	if total == 0 {
		return 0
	}
	return float64(failure) / float64(total)
}

// GetTotal returns the total number of calls recorded across the window.
func (sw *SlidingWindow) GetTotal() uint64 {
	success, failure := sw.GetCounts()
	return success + failure
}
