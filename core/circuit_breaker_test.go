package core

import (
	"testing"
	"time"
)

// TestDefaultCircuitBreakerParams tests the DefaultCircuitBreakerParams function
func TestDefaultCircuitBreakerParams(t *testing.T) {
	testName := "test-circuit-breaker"
	params := DefaultCircuitBreakerParams(testName)

	if params.Name != testName {
		t.Errorf("Name = %q, want %q", params.Name, testName)
	}

	if params.Config.ErrorThreshold <= 0 {
		t.Errorf("Config.ErrorThreshold = %f, want > 0", params.Config.ErrorThreshold)
	}
	if params.Config.SleepWindow <= 0 {
		t.Errorf("Config.SleepWindow = %v, want > 0", params.Config.SleepWindow)
	}
	if params.Config.HalfOpenRequests <= 0 {
		t.Errorf("Config.HalfOpenRequests = %d, want > 0", params.Config.HalfOpenRequests)
	}

	expectedSleepWindow := 30 * time.Second
	if params.Config.SleepWindow != expectedSleepWindow {
		t.Errorf("Config.SleepWindow = %v, want %v", params.Config.SleepWindow, expectedSleepWindow)
	}

	expectedHalfOpenRequests := 5
	if params.Config.HalfOpenRequests != expectedHalfOpenRequests {
		t.Errorf("Config.HalfOpenRequests = %d, want %d", params.Config.HalfOpenRequests, expectedHalfOpenRequests)
	}

	// Successive calls with the same name should return consistent values
	params2 := DefaultCircuitBreakerParams(testName)
	if params.Config.ErrorThreshold != params2.Config.ErrorThreshold {
		t.Error("DefaultCircuitBreakerParams() should return consistent ErrorThreshold")
	}

	// Config should be the same regardless of name
	otherName := "other-circuit-breaker"
	params3 := DefaultCircuitBreakerParams(otherName)
	if params3.Name != otherName {
		t.Errorf("Name with different input = %q, want %q", params3.Name, otherName)
	}
	if params3.Config.VolumeThreshold != params.Config.VolumeThreshold {
		t.Error("Config should be same regardless of name")
	}

	// Modifying the returned struct should not affect future calls
	original := params.Config.VolumeThreshold
	params.Config.VolumeThreshold = 999
	params4 := DefaultCircuitBreakerParams(testName)
	if params4.Config.VolumeThreshold != original {
		t.Error("modifying returned params should not affect future calls")
	}
}
