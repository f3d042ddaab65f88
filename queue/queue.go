// Package queue implements the hit queue (spec C6): a durable FIFO of
// pending HTTP hits with a single in-flight invariant and retry on
// transient failure. Retries wait a fixed delay (NextRetryDelay: 5 seconds,
// or the server's Retry-After); the delay does not grow between attempts.
//
// Grounded on the teacher's core/async_task.go queue/store/worker split
// (TaskQueue for submission/retrieval, a worker loop processing the head)
// generalized from a one-shot background task model to a retry-until-
// terminal hit model, and on resilience/retry.go + resilience/circuit_breaker.go
// for backoff and endpoint-health protection.
package queue

import (
	"strconv"
	"time"
)

// EdgeHit is one queued unit of work: a fully-built envelope addressed to
// one URL, representing one or more batched source events (spec §3).
type EdgeHit struct {
	RequestID                string            `json:"requestId"`
	URL                      string            `json:"url"`
	Body                     []byte            `json:"body"`
	SourceEventIDs           []string          `json:"sourceEventIds"`
	DatastreamIDOverride     string                 `json:"datastreamIdOverride,omitempty"`
	DatastreamConfigOverride map[string]interface{} `json:"datastreamConfigOverride,omitempty"`
	CreatedAt                time.Time              `json:"createdAt"`
	Attempts                 int                    `json:"attempts"`

	// TraceID/SpanID carry the dispatching request's trace context across
	// the queue/worker async boundary, so the hit's eventual HTTP send can
	// be linked back to the span that enqueued it.
	TraceID string `json:"traceId,omitempty"`
	SpanID  string `json:"spanId,omitempty"`
}

// Stats summarizes queue depth for operational visibility (supplemented
// feature: the distilled spec names no introspection operation, but any
// production queue needs one).
type Stats struct {
	ReadyCount  int
	InFlight    bool
	OldestReady time.Time
}

// Classification is the outcome category a completed (or failed) POST
// attempt falls into (spec §4.6).
type Classification int

const (
	// ClassificationSuccess covers 200, 204, and 207 — the hit is removed
	// from the queue and any response body is handed to the caller for
	// parsing.
	ClassificationSuccess Classification = iota
	// ClassificationFatal covers any other 4xx and any unrecognized
	// status — the hit is removed from the queue and a generic error is
	// reported.
	ClassificationFatal
	// ClassificationRetryable covers 408/429/502/503/504 and transport
	// failures with no response — the hit stays at the head and is
	// retried after backoff.
	ClassificationRetryable
)

// String renders a Classification for logging and telemetry labels.
func (c Classification) String() string {
	switch c {
	case ClassificationSuccess:
		return "success"
	case ClassificationFatal:
		return "fatal"
	case ClassificationRetryable:
		return "retryable"
	default:
		return "unknown"
	}
}

// ClassifyStatus maps an HTTP status code (and whether the request even
// produced a response) to a Classification per spec §4.6.
func ClassifyStatus(statusCode int, transportErr error) Classification {
	if transportErr != nil {
		return ClassificationRetryable
	}
	switch statusCode {
	case 200, 204, 207:
		return ClassificationSuccess
	case 408, 429, 502, 503, 504:
		return ClassificationRetryable
	}
	if statusCode >= 400 && statusCode < 500 {
		return ClassificationFatal
	}
	return ClassificationFatal
}

const defaultRetryDelay = 5 * time.Second

// minRetryDelay and maxRetryDelay clamp a server-supplied Retry-After to
// sensible bounds (spec §4.6: "clamped to sensible bounds").
const (
	minRetryDelay = 1 * time.Second
	maxRetryDelay = 5 * time.Minute
)

// NextRetryDelay computes the backoff before resending the head hit,
// honoring an integer-seconds Retry-After header when present and valid
// (spec §4.6). retryAfterHeader is the raw header value, possibly empty.
func NextRetryDelay(retryAfterHeader string) time.Duration {
	if retryAfterHeader != "" {
		if secs, err := strconv.Atoi(retryAfterHeader); err == nil {
			delay := time.Duration(secs) * time.Second
			if delay < minRetryDelay {
				return minRetryDelay
			}
			if delay > maxRetryDelay {
				return maxRetryDelay
			}
			return delay
		}
	}
	return defaultRetryDelay
}
