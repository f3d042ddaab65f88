// Package response parses the Edge Network's streamed, U+0000-delimited
// response records (spec C5), applies their per-type side effects to the
// state and location hint stores, and produces the ordered list of hub
// events the dispatch core fans out.
//
// The record framing is adapted from the teacher's SSE chunk reader
// (ai/providers/openai "data: " lines over bufio.Reader) to NUL-delimited
// JSON objects instead of "data: "-prefixed lines.
package response

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/edgecore/edge-go/core"
)

// EventKind classifies a dispatched hub event.
type EventKind string

const (
	KindResponseContent EventKind = "response_content"
	KindErrorResponse   EventKind = "error_response_content"
	KindContentComplete EventKind = "content_complete"
)

const (
	genericHandleSource = "response content"
	errorHandleSource   = "error response content"
)

// DispatchEvent is one hub event produced from a parsed response.
type DispatchEvent struct {
	Kind               EventKind
	Source             string
	Payload            interface{}
	RequestID          string
	RequestEventID     string
	HasRequestEventID  bool
	ParentID           string
}

// SourceEvent is the minimal view of a batched event the parser needs for
// eventIndex correlation and reset-timestamp comparison (spec §4.5, §4.9).
type SourceEvent struct {
	ID        string
	Timestamp time.Time
}

// HitContext carries the per-hit information the parser needs beyond the
// response body itself.
type HitContext struct {
	// SourceEvents is the ordered batch of events this hit was built from;
	// handle.eventIndex indexes into it.
	SourceEvents []SourceEvent

	// LastResetAt is the timestamp of the most recent identity reset.
	// Zero means no reset has occurred. locationHint:result handles whose
	// correlated source event predates this are ignored for C2 (spec §4.9)
	// but are still dispatched as hub events.
	LastResetAt time.Time

	// SendCompletion requests a paired content-complete event on stream end.
	SendCompletion bool

	// ParentEventID is used as the parent/correlation id for the
	// content-complete event.
	ParentEventID string
}

// StateSink receives state:store handle payloads.
type StateSink interface {
	Merge(ctx context.Context, updates []StateUpdate) error
}

// StateUpdate mirrors state.Update without importing the state package,
// keeping response a narrower dependency than the store it writes to.
type StateUpdate struct {
	Key    string
	Value  string
	MaxAge time.Duration
}

// LocationHintSink receives locationHint:result handle payloads.
type LocationHintSink interface {
	Set(ctx context.Context, value string, ttl time.Duration) error
}

// Sinks bundles the side-effect targets for handle processing.
type Sinks struct {
	State        StateSink
	LocationHint LocationHintSink
}

type wireRecord struct {
	RequestID string        `json:"requestId"`
	Handle    []wireHandle  `json:"handle"`
	Errors    []wireProblem `json:"errors"`
	Warnings  []wireProblem `json:"warnings"`
}

type wireHandle struct {
	Type       string                   `json:"type"`
	Payload    []map[string]interface{} `json:"payload"`
	EventIndex *int                     `json:"eventIndex"`
}

type wireProblem struct {
	Type   string                 `json:"type"`
	Status int                    `json:"status"`
	Title  string                 `json:"title"`
	Report *wireReport            `json:"report"`
	Extra  map[string]interface{} `json:"-"`
}

type wireReport struct {
	EventIndex *int `json:"eventIndex"`
}

type stateStorePayload struct {
	Key   string `json:"key"`
	Value string `json:"value"`
	MaxAge int64 `json:"maxAge"`
}

type locationHintPayload struct {
	Scope      string `json:"scope"`
	Hint       string `json:"hint"`
	TTLSeconds *int   `json:"ttlSeconds"`
}

// Parse consumes body, applies side effects through sinks, and returns the
// ordered list of hub events produced by the stream (handles, then
// errors/warnings for each record, then an optional content-complete
// event at stream end). Logger defaults to a no-op if nil.
func Parse(ctx context.Context, body io.Reader, hitCtx HitContext, sinks Sinks, logger core.Logger) ([]DispatchEvent, error) {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	if cal, ok := logger.(core.ComponentAwareLogger); ok {
		logger = cal.WithComponent("edge/response")
	}

	reader := bufio.NewReader(body)
	var events []DispatchEvent

	for {
		select {
		case <-ctx.Done():
			return events, ctx.Err()
		default:
		}

		chunk, err := reader.ReadString(0x00)
		trimmed := strings.TrimRight(strings.TrimSuffix(chunk, "\x00"), "\n")
		if trimmed != "" {
			rec, perr := decodeRecord(trimmed)
			if perr != nil {
				logger.Warn("dropping malformed response record", map[string]interface{}{"error": perr.Error()})
			} else {
				recEvents := processRecord(ctx, rec, hitCtx, sinks, logger)
				events = append(events, recEvents...)
			}
		}

		if err != nil {
			if err == io.EOF {
				break
			}
			return events, fmt.Errorf("response: %w", err)
		}
	}

	if hitCtx.SendCompletion {
		events = append(events, DispatchEvent{
			Kind:              KindContentComplete,
			Source:            "content complete",
			ParentID:          hitCtx.ParentEventID,
			HasRequestEventID: hitCtx.ParentEventID != "",
			RequestEventID:    hitCtx.ParentEventID,
		})
	}

	return events, nil
}

func decodeRecord(raw string) (wireRecord, error) {
	var rec wireRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return wireRecord{}, fmt.Errorf("%w: %v", core.ErrMalformedResponse, err)
	}
	return rec, nil
}

func processRecord(ctx context.Context, rec wireRecord, hitCtx HitContext, sinks Sinks, logger core.Logger) []DispatchEvent {
	var events []DispatchEvent

	for _, h := range rec.Handle {
		applyHandleSideEffects(ctx, h, hitCtx, sinks, logger)

		source := h.Type
		if source == "" {
			source = genericHandleSource
		}
		evt := DispatchEvent{
			Kind:      KindResponseContent,
			Source:    source,
			Payload:   h.Payload,
			RequestID: rec.RequestID,
		}
		if id, ok := resolveEventID(h.EventIndex, hitCtx.SourceEvents); ok {
			evt.RequestEventID = id
			evt.HasRequestEventID = true
			evt.ParentID = id
		}
		events = append(events, evt)
	}

	for _, p := range rec.Errors {
		events = append(events, buildProblemEvent(p, rec.RequestID, hitCtx))
	}
	for _, p := range rec.Warnings {
		events = append(events, buildProblemEvent(p, rec.RequestID, hitCtx))
	}

	return events
}

func buildProblemEvent(p wireProblem, requestID string, hitCtx HitContext) DispatchEvent {
	evt := DispatchEvent{
		Kind:      KindErrorResponse,
		Source:    errorHandleSource,
		Payload:   p,
		RequestID: requestID,
	}
	if p.Report != nil {
		if id, ok := resolveEventID(p.Report.EventIndex, hitCtx.SourceEvents); ok {
			evt.RequestEventID = id
			evt.HasRequestEventID = true
			evt.ParentID = id
		}
	}
	return evt
}

// resolveEventID maps a handle's eventIndex to the originating source
// event's id. Absent or out-of-range indexes correlate to nothing (spec
// §4.5, §8 rule 8).
func resolveEventID(eventIndex *int, sourceEvents []SourceEvent) (string, bool) {
	if eventIndex == nil {
		return "", false
	}
	idx := *eventIndex
	if idx < 0 || idx >= len(sourceEvents) {
		return "", false
	}
	return sourceEvents[idx].ID, true
}

func applyHandleSideEffects(ctx context.Context, h wireHandle, hitCtx HitContext, sinks Sinks, logger core.Logger) {
	switch h.Type {
	case "state:store":
		if sinks.State == nil {
			return
		}
		updates := make([]StateUpdate, 0, len(h.Payload))
		for _, p := range h.Payload {
			var entry stateStorePayload
			if err := remarshal(p, &entry); err != nil {
				logger.Warn("dropping malformed state:store entry", map[string]interface{}{"error": err.Error()})
				continue
			}
			updates = append(updates, StateUpdate{
				Key:    entry.Key,
				Value:  entry.Value,
				MaxAge: time.Duration(entry.MaxAge) * time.Second,
			})
		}
		if len(updates) > 0 {
			if err := sinks.State.Merge(ctx, updates); err != nil {
				logger.Warn("state merge failed", map[string]interface{}{"error": err.Error()})
			}
		}

	case "locationHint:result":
		if sinks.LocationHint == nil {
			return
		}
		eventID, hasID := resolveEventID(h.EventIndex, hitCtx.SourceEvents)
		if hasID && !hitCtx.LastResetAt.IsZero() {
			if originatingEventPredatesReset(eventID, hitCtx) {
				return
			}
		}
		for _, p := range h.Payload {
			var hint locationHintPayload
			if err := remarshal(p, &hint); err != nil {
				logger.Warn("dropping malformed locationHint:result entry", map[string]interface{}{"error": err.Error()})
				continue
			}
			if hint.Scope != "EdgeNetwork" {
				continue
			}
			if hint.Hint == "" {
				logger.Warn("rejecting locationHint:result with missing hint", nil)
				continue
			}
			ttl := core.DefaultLocationHintTTL
			if hint.TTLSeconds != nil {
				ttl = time.Duration(*hint.TTLSeconds) * time.Second
			}
			if err := sinks.LocationHint.Set(ctx, hint.Hint, ttl); err != nil {
				logger.Warn("location hint update failed", map[string]interface{}{"error": err.Error()})
			}
		}
	}
}

func originatingEventPredatesReset(eventID string, hitCtx HitContext) bool {
	for _, se := range hitCtx.SourceEvents {
		if se.ID == eventID {
			return se.Timestamp.Before(hitCtx.LastResetAt)
		}
	}
	return false
}

func remarshal(src map[string]interface{}, dst interface{}) error {
	raw, err := json.Marshal(src)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dst)
}
