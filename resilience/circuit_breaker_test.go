package resilience

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/edgecore/edge-go/core"
)

func testConfig(overrides func(*CircuitBreakerConfig)) *CircuitBreakerConfig {
	cfg := &CircuitBreakerConfig{
		Name:             "test",
		ErrorThreshold:   0.5,
		VolumeThreshold:  5,
		SleepWindow:      100 * time.Millisecond,
		HalfOpenRequests: 2,
		SuccessThreshold: 0.5,
		WindowSize:       1 * time.Second,
		BucketCount:      10,
		ErrorClassifier:  DefaultErrorClassifier,
		Logger:           &core.NoOpLogger{},
		Metrics:          &noopMetrics{},
	}
	if overrides != nil {
		overrides(cfg)
	}
	return cfg
}

func TestCircuitBreakerStateTransitions(t *testing.T) {
	cb, err := NewCircuitBreaker(testConfig(nil))
	if err != nil {
		t.Fatalf("NewCircuitBreaker: %v", err)
	}

	if cb.GetState() != "closed" {
		t.Errorf("expected initial state closed, got %s", cb.GetState())
	}

	for i := 0; i < 6; i++ {
		if execErr := cb.Execute(context.Background(), func() error {
			return errors.New("test error")
		}); execErr == nil {
			t.Error("expected error from Execute")
		}
	}

	if cb.GetState() != "open" {
		t.Errorf("expected state open after failures, got %s", cb.GetState())
	}

	rejected := cb.Execute(context.Background(), func() error { return nil })
	if !errors.Is(rejected, core.ErrCircuitBreakerOpen) {
		t.Errorf("expected ErrCircuitBreakerOpen, got %v", rejected)
	}

	time.Sleep(250 * time.Millisecond)

	for i := 0; i < 2; i++ {
		if execErr := cb.Execute(context.Background(), func() error { return nil }); execErr != nil {
			t.Errorf("expected success in half-open state, got %v", execErr)
		}
	}

	if cb.GetState() != "closed" {
		t.Errorf("expected state closed after recovery, got %s", cb.GetState())
	}
}

func TestCircuitBreakerErrorClassification(t *testing.T) {
	cb, err := NewCircuitBreaker(testConfig(func(c *CircuitBreakerConfig) {
		c.VolumeThreshold = 3
		c.HalfOpenRequests = 3
		c.SuccessThreshold = 0.6
	}))
	if err != nil {
		t.Fatalf("NewCircuitBreaker: %v", err)
	}

	for i := 0; i < 5; i++ {
		if execErr := cb.Execute(context.Background(), func() error {
			return core.ErrInvalidConfiguration
		}); execErr == nil {
			t.Error("expected error from Execute")
		}
	}

	if cb.GetState() != "closed" {
		t.Errorf("expected state to remain closed with configuration errors, got %s", cb.GetState())
	}

	for i := 0; i < 4; i++ {
		if execErr := cb.Execute(context.Background(), func() error {
			return core.ErrConnectionFailed
		}); execErr == nil {
			t.Error("expected error from Execute")
		}
	}

	if cb.GetState() != "open" {
		t.Errorf("expected state open with transport errors, got %s", cb.GetState())
	}
}

func TestCircuitBreakerSlidingWindow(t *testing.T) {
	window := NewSlidingWindow(1*time.Second, 10, true)

	for i := 0; i < 3; i++ {
		window.RecordSuccess()
	}
	for i := 0; i < 2; i++ {
		window.RecordFailure()
	}

	success, failure := window.GetCounts()
	if success != 3 {
		t.Errorf("expected 3 successes, got %d", success)
	}
	if failure != 2 {
		t.Errorf("expected 2 failures, got %d", failure)
	}

	expectedRate := 2.0 / 5.0
	if rate := window.GetErrorRate(); rate != expectedRate {
		t.Errorf("expected error rate %f, got %f", expectedRate, rate)
	}

	if total := window.GetTotal(); total != 5 {
		t.Errorf("expected total 5, got %d", total)
	}
}

func TestCircuitBreakerHalfOpenState(t *testing.T) {
	cb, err := NewCircuitBreaker(testConfig(func(c *CircuitBreakerConfig) {
		c.VolumeThreshold = 2
		c.HalfOpenRequests = 3
		c.SuccessThreshold = 0.6
	}))
	if err != nil {
		t.Fatalf("NewCircuitBreaker: %v", err)
	}

	for i := 0; i < 3; i++ {
		_ = cb.Execute(context.Background(), func() error { return errors.New("test error") })
	}
	if cb.GetState() != "open" {
		t.Fatal("circuit should be open")
	}

	time.Sleep(250 * time.Millisecond)

	for i := 0; i < 3; i++ {
		idx := i
		execErr := cb.Execute(context.Background(), func() error {
			if idx < 2 {
				return nil
			}
			return errors.New("test error")
		})
		if idx < 2 && execErr != nil {
			t.Errorf("expected success, got %v", execErr)
		}
	}

	if cb.GetState() != "closed" {
		t.Errorf("expected closed state after successful recovery, got %s", cb.GetState())
	}
}

func TestCircuitBreakerManualControl(t *testing.T) {
	cb, err := NewCircuitBreaker(testConfig(nil))
	if err != nil {
		t.Fatalf("NewCircuitBreaker: %v", err)
	}

	cb.ForceOpen()
	if cb.GetState() != "open" {
		t.Errorf("expected open state after ForceOpen, got %s", cb.GetState())
	}

	rejected := cb.Execute(context.Background(), func() error { return nil })
	if !errors.Is(rejected, core.ErrCircuitBreakerOpen) {
		t.Errorf("expected ErrCircuitBreakerOpen when forced open, got %v", rejected)
	}

	cb.ForceClosed()
	if cb.GetState() != "closed" {
		t.Errorf("expected closed state after ForceClosed, got %s", cb.GetState())
	}

	for i := 0; i < 10; i++ {
		execErr := cb.Execute(context.Background(), func() error { return errors.New("test error") })
		if execErr == nil || errors.Is(execErr, core.ErrCircuitBreakerOpen) {
			t.Error("expected to execute with forced closed")
		}
	}

	if cb.GetState() != "closed" {
		t.Errorf("expected to remain closed when forced, got %s", cb.GetState())
	}

	cb.ClearForce()
}

func TestCircuitBreakerConcurrentAccess(t *testing.T) {
	cb, err := NewCircuitBreaker(testConfig(func(c *CircuitBreakerConfig) {
		c.VolumeThreshold = 10
	}))
	if err != nil {
		t.Fatalf("NewCircuitBreaker: %v", err)
	}

	var wg sync.WaitGroup
	goroutines := 50
	iterations := 50

	var successCount, failureCount int32

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < iterations; j++ {
				execErr := cb.Execute(context.Background(), func() error {
					if (id+j)%2 == 0 {
						return nil
					}
					return errors.New("test error")
				})
				if execErr == nil {
					atomic.AddInt32(&successCount, 1)
				} else if !errors.Is(execErr, core.ErrCircuitBreakerOpen) {
					atomic.AddInt32(&failureCount, 1)
				}
			}
		}(i)
	}
	wg.Wait()

	if atomic.LoadInt32(&successCount)+atomic.LoadInt32(&failureCount) == 0 {
		t.Error("no operations completed")
	}
}

func TestCircuitBreakerReset(t *testing.T) {
	cb, err := NewCircuitBreaker(testConfig(func(c *CircuitBreakerConfig) {
		c.VolumeThreshold = 2
	}))
	if err != nil {
		t.Fatalf("NewCircuitBreaker: %v", err)
	}

	for i := 0; i < 3; i++ {
		_ = cb.Execute(context.Background(), func() error { return errors.New("test error") })
	}
	if cb.GetState() != "open" {
		t.Fatal("circuit should be open")
	}

	cb.Reset()

	if cb.GetState() != "closed" {
		t.Errorf("expected closed state after reset, got %s", cb.GetState())
	}
	metrics := cb.GetMetrics()
	if metrics["window_success"].(uint64) != 0 || metrics["window_failure"].(uint64) != 0 {
		t.Errorf("expected zeroed window counters after reset, got %v", metrics)
	}
}

func TestCircuitBreakerMetrics(t *testing.T) {
	cb, err := NewCircuitBreaker(testConfig(func(c *CircuitBreakerConfig) {
		c.VolumeThreshold = 100
	}))
	if err != nil {
		t.Fatalf("NewCircuitBreaker: %v", err)
	}

	for i := 0; i < 3; i++ {
		_ = cb.Execute(context.Background(), func() error { return nil })
	}
	for i := 0; i < 2; i++ {
		_ = cb.Execute(context.Background(), func() error { return errors.New("test error") })
	}

	metrics := cb.GetMetrics()
	if metrics["state"] != "closed" {
		t.Errorf("expected closed state in metrics, got %v", metrics["state"])
	}
	if success := metrics["window_success"].(uint64); success != 3 {
		t.Errorf("expected 3 successes in metrics, got %v", success)
	}
	if failure := metrics["window_failure"].(uint64); failure != 2 {
		t.Errorf("expected 2 failures in metrics, got %v", failure)
	}
}

func TestCircuitBreakerVolumeThreshold(t *testing.T) {
	cb, err := NewCircuitBreaker(testConfig(func(c *CircuitBreakerConfig) {
		c.VolumeThreshold = 10
	}))
	if err != nil {
		t.Fatalf("NewCircuitBreaker: %v", err)
	}

	for i := 0; i < 5; i++ {
		_ = cb.Execute(context.Background(), func() error { return errors.New("test error") })
	}
	if cb.GetState() != "closed" {
		t.Errorf("expected closed state below volume threshold, got %s", cb.GetState())
	}

	for i := 0; i < 5; i++ {
		_ = cb.Execute(context.Background(), func() error { return errors.New("test error") })
	}
	if cb.GetState() != "open" {
		t.Errorf("expected open state after reaching volume threshold, got %s", cb.GetState())
	}
}

func TestSlidingWindowRotation(t *testing.T) {
	window := NewSlidingWindow(200*time.Millisecond, 4, true)

	window.RecordSuccess()
	window.RecordSuccess()

	time.Sleep(150 * time.Millisecond)

	window.RecordFailure()

	success, failure := window.GetCounts()
	if success != 2 || failure != 1 {
		t.Errorf("expected 2 successes and 1 failure, got %d and %d", success, failure)
	}

	time.Sleep(400 * time.Millisecond)

	success, failure = window.GetCounts()
	if success != 0 || failure != 0 {
		t.Errorf("expected 0 counts after window expiry, got %d successes and %d failures", success, failure)
	}
}

func TestErrorClassifierCustom(t *testing.T) {
	customClassifier := func(err error) bool {
		return err != nil && err.Error() == "critical"
	}

	cb, err := NewCircuitBreaker(testConfig(func(c *CircuitBreakerConfig) {
		c.VolumeThreshold = 2
		c.ErrorClassifier = customClassifier
	}))
	if err != nil {
		t.Fatalf("NewCircuitBreaker: %v", err)
	}

	for i := 0; i < 5; i++ {
		_ = cb.Execute(context.Background(), func() error { return errors.New("minor") })
	}
	if cb.GetState() != "closed" {
		t.Errorf("expected closed state with non-critical errors, got %s", cb.GetState())
	}

	for i := 0; i < 3; i++ {
		_ = cb.Execute(context.Background(), func() error { return errors.New("critical") })
	}
	if cb.GetState() != "open" {
		t.Errorf("expected open state with critical errors, got %s", cb.GetState())
	}
}

func TestDefaultErrorClassifierSkipsConsentAndValidation(t *testing.T) {
	if DefaultErrorClassifier(core.ErrEmptyEvent) {
		t.Error("ErrEmptyEvent should not count toward circuit breaker thresholds")
	}
	if DefaultErrorClassifier(core.ErrInvalidConfiguration) {
		t.Error("configuration errors should not count toward circuit breaker thresholds")
	}
	if !DefaultErrorClassifier(core.ErrConnectionFailed) {
		t.Error("connection failures should count toward circuit breaker thresholds")
	}
	if DefaultErrorClassifier(nil) {
		t.Error("nil error should never count")
	}
}
