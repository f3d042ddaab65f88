// Package dispatch implements the dispatch core (spec C8) and the reset
// protocol (spec C9): the single-goroutine actor that gates inbound hub
// events on consent/configuration/identity, batches and hands them to the
// request builder and hit queue, and routes completed hits' response
// events and completion callbacks back out.
//
// Modeled as a mailbox actor per spec §9's design note: "model the hub as
// a message-passing actor... typed messages {HubEvent, SharedStateChanged,
// ConsentChanged, ResetComplete, NetworkReply}". Grounded on the teacher's
// orchestration.TaskWorkerPool run-loop shape (select on ctx.Done, drain,
// process) generalized from a concurrent worker pool to a single
// serialized mailbox loop, since C1/C2 here are owned exclusively by one
// thread (spec §5).
package dispatch

import (
	"time"

	"github.com/edgecore/edge-go/registry"
	"github.com/edgecore/edge-go/request"
)

// ConsentState mirrors the three-valued consent.collect flag (spec §4.8).
type ConsentState string

const (
	ConsentYes     ConsentState = "y"
	ConsentNo      ConsentState = "n"
	ConsentPending ConsentState = "p"
)

// HubEvent is an inbound "edge / request content" event, or one of the
// two location-hint request shapes that short-circuit C6 (spec §4.8
// points 7-8).
type HubEvent struct {
	ID        string
	Timestamp time.Time

	XDM               map[string]interface{}
	Data              map[string]interface{}
	DatasetIDOverride string

	DatastreamIDOverride     string
	DatastreamConfigOverride map[string]interface{}

	// RequestPath, when non-empty, overrides the URL endpoint segment and
	// forces this event out as a singleton hit (spec §4.8 point 6).
	RequestPath string

	// SendCompletion requests a paired "content complete" event on
	// stream end (spec §4.5 point 4).
	SendCompletion bool

	// CompletionHandler, if non-nil, is invoked exactly once with the
	// handles collected from this event's eventual response (spec C7).
	CompletionHandler registry.CompletionHandler

	// LocationHintGet / LocationHintSet mark the two short-circuiting
	// request shapes; at most one should be set per event.
	LocationHintGet bool

	LocationHintSet   bool
	LocationHintValue string
	LocationHintTTL   time.Duration
}

// SharedStateChanged carries a new snapshot of configuration and/or
// identity shared state (spec §4.8 points 3-4, §9's gating-retry note).
type SharedStateChanged struct {
	HasConfig   bool
	ConfigID    string
	Environment string
	Domain      string

	HasIdentity bool
	Identity    request.IdentityMap
}

// ConsentChanged carries a new consent.collect value (spec §4.8 point 2).
type ConsentChanged struct {
	State ConsentState
}

// ResetComplete signals an identity-reset-complete hub event (spec §4.9).
type ResetComplete struct {
	Timestamp time.Time
}

// NetworkReply carries a terminal hit outcome from the queue worker back
// into the loop for response parsing and state mutation (spec §5 point 2).
type NetworkReply struct {
	RequestID  string
	StatusCode int
	Body       []byte
	Fatal      bool
}

// Message is the mailbox's single envelope type; exactly one field should
// be set.
type Message struct {
	Hub         *HubEvent
	SharedState *SharedStateChanged
	Consent     *ConsentChanged
	Reset       *ResetComplete
	Network     *NetworkReply
}

// OutgoingEvent is one hub event dispatched by the core (spec §6 outputs).
type OutgoingEvent struct {
	Type           string
	Payload        interface{}
	RequestID      string
	RequestEventID string
	HasRequestEventID bool
	ParentID       string
}

// HubSink receives every outgoing event the core produces. Implementations
// must not block for long; the core's own processing waits on the call.
type HubSink func(event OutgoingEvent)
