package queue

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/edgecore/edge-go/core"
	"github.com/edgecore/edge-go/resilience"
	"github.com/edgecore/edge-go/telemetry"
)

// Outcome is delivered to a Worker's OutcomeHandler once a hit reaches a
// terminal classification (success or fatal). Retryable outcomes are
// handled internally by the worker and never surface here.
type Outcome struct {
	Hit        *EdgeHit
	StatusCode int
	Body       []byte
	Class      Classification
}

// OutcomeHandler receives a terminal outcome for further processing
// (response parsing via C5, dispatching hub events). It runs on the
// worker's own goroutine and must not block indefinitely.
type OutcomeHandler func(ctx context.Context, outcome Outcome)

// Worker drains Store's head one hit at a time, POSTing its body and
// retrying on transient failure after NextRetryDelay (a fixed 5 seconds, or
// Retry-After clamped to 1s-5m; the delay does not grow between attempts)
// while holding the single in-flight slot (spec §4.6).
//
// Grounded on the teacher's core/async_task.go TaskWorker (dedicated
// goroutine, Start/Stop lifecycle) combined with resilience.CircuitBreaker
// to stop hammering a stuck endpoint.
type Worker struct {
	store   Store
	client  *http.Client
	breaker *resilience.CircuitBreaker
	handler OutcomeHandler
	logger  core.Logger

	wake chan struct{}
	stop chan struct{}
	done chan struct{}

	pollInterval time.Duration
}

// NewWorker creates a Worker. client defaults to http.DefaultClient if nil;
// breaker may be nil to disable circuit-breaking.
func NewWorker(store Store, client *http.Client, breaker *resilience.CircuitBreaker, handler OutcomeHandler, logger core.Logger) *Worker {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	if cal, ok := logger.(core.ComponentAwareLogger); ok {
		logger = cal.WithComponent("edge/queue")
	}
	return &Worker{
		store:        store,
		client:       client,
		breaker:      breaker,
		handler:      handler,
		logger:       logger,
		wake:         make(chan struct{}, 1),
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
		pollInterval: 2 * time.Second,
	}
}

// Wake nudges the worker to check the queue immediately rather than
// waiting for the next poll tick, called by the enqueuer after Enqueue
// succeeds.
func (w *Worker) Wake() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// Run processes hits until ctx is cancelled or Stop is called. It does not
// block the caller's own event loop: callers invoke Run on a dedicated
// goroutine (spec §5 point 2).
func (w *Worker) Run(ctx context.Context) {
	defer close(w.done)

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		hit, ok, err := w.store.Acquire(ctx)
		if err != nil {
			w.logger.Error("acquire failed", map[string]interface{}{"error": err.Error()})
		} else if ok {
			if !w.processOnce(ctx, hit) {
				// retryable: processOnce already slept; loop straight back
				// around to re-acquire the same in-flight hit.
				continue
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-w.stop:
			return
		case <-w.wake:
		case <-ticker.C:
		}
	}
}

// Stop signals Run to return and waits for it to do so.
func (w *Worker) Stop(ctx context.Context) error {
	close(w.stop)
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// processOnce sends hit once and classifies the result. Returns true if the
// hit reached a terminal state (and was released), false if it was
// retryable (and the worker already slept through the backoff).
func (w *Worker) processOnce(ctx context.Context, hit *EdgeHit) bool {
	ctx, endSpan := telemetry.StartLinkedSpan(ctx, "edge.hit.send", hit.TraceID, hit.SpanID, map[string]string{
		"edge.request_id": hit.RequestID,
	})
	defer endSpan()

	send := func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, hit.URL, bytes.NewReader(hit.Body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return w.client.Do(req)
	}

	var resp *http.Response
	var sendErr error
	if w.breaker != nil {
		sendErr = w.breaker.Execute(ctx, func() error {
			var err error
			resp, err = send()
			if err == nil && classifyForBreaker(resp.StatusCode) {
				err = core.ErrRequestFailed
			}
			return err
		})
		if sendErr != nil && resp == nil {
			// Circuit open or transport failure with no response.
		}
	} else {
		resp, sendErr = send()
	}

	hit.Attempts++

	var statusCode int
	var body []byte
	var retryAfter string
	if resp != nil {
		statusCode = resp.StatusCode
		retryAfter = resp.Header.Get("Retry-After")
		body, _ = io.ReadAll(resp.Body)
		resp.Body.Close()
	}

	class := ClassifyStatus(statusCode, transportErrorOrNil(sendErr, resp))

	switch class {
	case ClassificationRetryable:
		delay := NextRetryDelay(retryAfter)
		w.logger.Warn("hit retry scheduled", map[string]interface{}{
			"requestId": hit.RequestID,
			"status":    statusCode,
			"attempt":   hit.Attempts,
			"delayMs":   delay.Milliseconds(),
		})
		telemetry.Counter("edge.queue.hit_retried", "status", statusText(statusCode))
		w.sleep(ctx, delay)
		return false

	default:
		if err := w.store.Release(ctx, hit.RequestID); err != nil {
			w.logger.Error("release failed", map[string]interface{}{"requestId": hit.RequestID, "error": err.Error()})
		}
		if class == ClassificationFatal {
			telemetry.RecordSpanError(ctx, core.ErrRequestFailed)
		}
		telemetry.Counter("edge.queue.hit_completed", "class", class.String())
		telemetry.Histogram("edge.queue.hit_attempts", float64(hit.Attempts), "class", class.String())
		if w.handler != nil {
			w.handler(ctx, Outcome{Hit: hit, StatusCode: statusCode, Body: body, Class: class})
		}
		return true
	}
}

func statusText(statusCode int) string {
	if statusCode == 0 {
		return "transport_error"
	}
	return strconv.Itoa(statusCode)
}

func (w *Worker) sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-w.stop:
	case <-timer.C:
	}
}

// transportErrorOrNil normalizes a send error into the sentinel the
// classifier expects, treating "no response at all" as a transport
// failure regardless of the underlying transport error's type.
func transportErrorOrNil(sendErr error, resp *http.Response) error {
	if resp == nil && sendErr != nil {
		return core.ErrConnectionFailed
	}
	return nil
}

// classifyForBreaker reports whether a completed status code should count
// as a circuit-breaker failure (retryable/fatal server trouble), so the
// breaker trips on a misbehaving endpoint even though the HTTP round trip
// itself succeeded.
func classifyForBreaker(statusCode int) bool {
	switch statusCode {
	case 200, 204, 207:
		return false
	case 408, 429, 502, 503, 504:
		return true
	default:
		return statusCode >= 400
	}
}
