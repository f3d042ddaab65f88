package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/edgecore/edge-go/core"
	"github.com/edgecore/edge-go/locationhint"
	"github.com/edgecore/edge-go/queue"
	"github.com/edgecore/edge-go/registry"
	"github.com/edgecore/edge-go/request"
	"github.com/edgecore/edge-go/response"
	"github.com/edgecore/edge-go/state"
	"github.com/edgecore/edge-go/telemetry"
	"github.com/edgecore/edge-go/urlbuilder"
)

// Config wires the core to its collaborators. State, LocationHint, Registry
// and Queue are required; the other fields are optional (a nil HubSink
// discards outgoing events).
type Config struct {
	State        state.Store
	LocationHint locationhint.Store
	Registry     *registry.Registry
	Queue        queue.Store

	Implementation request.ImplementationDetails
	URLScheme      string // defaults to "https"

	HubSink HubSink
	Logger  core.Logger

	// MailboxSize is the mailbox channel's buffer capacity. Default 256.
	MailboxSize int
}

// hitMeta is the bookkeeping kept outside EdgeHit's wire shape for each
// in-flight hit: the response parser needs source event timestamps (for
// reset-predates-check) and completion wiring that have no business being
// serialized onto the durable queue entry itself.
type hitMeta struct {
	sourceEvents   []response.SourceEvent
	sendCompletion bool
	parentEventID  string
}

// Core is the dispatch core (C8) plus the reset protocol (C9): a single
// goroutine draining a mailbox of typed messages, the only writer of
// State/LocationHint and the only reader of the cached consent/config/
// identity snapshots (spec §5).
type Core struct {
	mailbox chan Message
	stop    chan struct{}
	done    chan struct{}

	state    state.Store
	hints    locationhint.Store
	registry *registry.Registry
	queue    queue.Store

	implementation request.ImplementationDetails
	urlScheme      string

	hubSink HubSink
	logger  core.Logger

	consent     ConsentState
	hasConfig   bool
	configID    string
	environment string
	domain      string
	hasIdentity bool
	identity    request.IdentityMap

	pending     []*HubEvent
	lastResetAt time.Time

	hitMeta map[string]hitMeta
}

// New creates a Core. Call Run on a dedicated goroutine to start
// processing, and Submit to feed it messages.
func New(cfg Config) *Core {
	size := cfg.MailboxSize
	if size <= 0 {
		size = 256
	}
	logger := cfg.Logger
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	if cal, ok := logger.(core.ComponentAwareLogger); ok {
		logger = cal.WithComponent("edge/dispatch")
	}
	scheme := cfg.URLScheme
	if scheme == "" {
		scheme = "https"
	}

	return &Core{
		mailbox:        make(chan Message, size),
		stop:           make(chan struct{}),
		done:           make(chan struct{}),
		state:          cfg.State,
		hints:          cfg.LocationHint,
		registry:       cfg.Registry,
		queue:          cfg.Queue,
		implementation: cfg.Implementation,
		urlScheme:      scheme,
		hubSink:        cfg.HubSink,
		logger:         logger,
		consent:        ConsentPending,
		hitMeta:        make(map[string]hitMeta),
	}
}

// Submit enqueues a message for processing, blocking only if the mailbox
// is full, and honoring ctx cancellation.
func (c *Core) Submit(ctx context.Context, msg Message) error {
	select {
	case c.mailbox <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// OutcomeHandler adapts queue.OutcomeHandler's signature into a mailbox
// message, preserving the invariant that all state mutation happens on
// the loop goroutine (spec §5 point 2).
func (c *Core) OutcomeHandler(ctx context.Context, outcome queue.Outcome) {
	_ = c.Submit(ctx, Message{Network: &NetworkReply{
		RequestID:  outcome.Hit.RequestID,
		StatusCode: outcome.StatusCode,
		Body:       outcome.Body,
		Fatal:      outcome.Class == queue.ClassificationFatal,
	}})
}

// Run processes messages until ctx is cancelled or Stop is called.
func (c *Core) Run(ctx context.Context) {
	defer close(c.done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stop:
			return
		case msg := <-c.mailbox:
			c.handle(ctx, msg)
		}
	}
}

// Stop signals Run to return and waits for it to do so.
func (c *Core) Stop(ctx context.Context) error {
	close(c.stop)
	select {
	case <-c.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Core) handle(ctx context.Context, msg Message) {
	switch {
	case msg.Hub != nil:
		c.handleHubEvent(ctx, msg.Hub)
	case msg.SharedState != nil:
		c.handleSharedStateChanged(ctx, msg.SharedState)
	case msg.Consent != nil:
		c.handleConsentChanged(ctx, msg.Consent)
	case msg.Reset != nil:
		c.handleReset(ctx, msg.Reset)
	case msg.Network != nil:
		c.handleNetworkReply(ctx, msg.Network)
	}
}

func (c *Core) handleHubEvent(ctx context.Context, ev *HubEvent) {
	if ev.LocationHintGet {
		c.handleLocationHintGet(ctx, ev)
		return
	}
	if ev.LocationHintSet {
		c.handleLocationHintSet(ctx, ev)
		return
	}

	if len(ev.XDM) == 0 && len(ev.Data) == 0 {
		c.logger.Debug("dropping event with empty xdm and data", map[string]interface{}{"eventId": ev.ID})
		return
	}

	if !c.gate(ev) {
		return
	}

	c.dispatchBatches(ctx, []*HubEvent{ev})
}

func (c *Core) handleLocationHintGet(ctx context.Context, ev *HubEvent) {
	hint, ok, err := c.hints.Get(ctx)
	if err != nil {
		c.logger.Warn("location hint read failed", map[string]interface{}{"error": err.Error()})
		return
	}
	value := ""
	if ok {
		value = hint.Value
	}
	c.emit(OutgoingEvent{
		Type:              "edge / response identity",
		Payload:           map[string]interface{}{"locationHint": value},
		RequestEventID:    ev.ID,
		HasRequestEventID: true,
		ParentID:          ev.ID,
	})
}

func (c *Core) handleLocationHintSet(ctx context.Context, ev *HubEvent) {
	if err := c.hints.Set(ctx, ev.LocationHintValue, ev.LocationHintTTL); err != nil {
		c.logger.Warn("location hint set failed", map[string]interface{}{"error": err.Error()})
	}
}

// gate applies the consent/configuration/identity readiness check (spec
// §4.8 points 2-4). Returns true if ev should proceed immediately; false
// if it was dropped (consent=n) or buffered (everything else not ready).
func (c *Core) gate(ev *HubEvent) bool {
	switch c.consent {
	case ConsentNo:
		return false
	case ConsentYes:
		// fall through to config/identity check
	default:
		c.pending = append(c.pending, ev)
		return false
	}

	if !c.hasConfig || c.configID == "" {
		c.pending = append(c.pending, ev)
		return false
	}
	if !c.hasIdentity {
		c.pending = append(c.pending, ev)
		return false
	}
	return true
}

func (c *Core) handleSharedStateChanged(ctx context.Context, change *SharedStateChanged) {
	if change.HasConfig {
		c.hasConfig = true
		c.configID = change.ConfigID
		c.environment = change.Environment
		c.domain = change.Domain
	}
	if change.HasIdentity {
		c.hasIdentity = true
		c.identity = change.Identity
	}
	c.drainPending(ctx)
}

func (c *Core) handleConsentChanged(ctx context.Context, change *ConsentChanged) {
	c.consent = change.State
	if c.consent == ConsentNo {
		c.pending = nil
		return
	}
	c.drainPending(ctx)
}

// drainPending re-evaluates buffered events against the current gate,
// releasing the ready prefix in submission order (spec §8 invariant 4)
// while leaving still-blocked events buffered.
func (c *Core) drainPending(ctx context.Context) {
	if len(c.pending) == 0 {
		return
	}

	remaining := c.pending[:0]
	var ready []*HubEvent
	for _, ev := range c.pending {
		if c.gateNoBuffer() {
			ready = append(ready, ev)
		} else {
			remaining = append(remaining, ev)
		}
	}
	c.pending = remaining

	if len(ready) > 0 {
		c.dispatchBatches(ctx, ready)
	}
}

// gateNoBuffer reports whether the gate would currently pass, without the
// side effect of appending to c.pending (drainPending manages its own
// partition).
func (c *Core) gateNoBuffer() bool {
	if c.consent != ConsentYes {
		return false
	}
	if !c.hasConfig || c.configID == "" {
		return false
	}
	return c.hasIdentity
}

func (c *Core) handleReset(ctx context.Context, reset *ResetComplete) {
	if err := c.state.Clear(ctx); err != nil {
		c.logger.Error("state clear on reset failed", map[string]interface{}{"error": err.Error()})
	}
	c.lastResetAt = reset.Timestamp
}

func (c *Core) dispatchBatches(ctx context.Context, events []*HubEvent) {
	for _, batch := range groupBatchable(events) {
		c.dispatchBatch(ctx, batch)
	}
}

func (c *Core) dispatchBatch(ctx context.Context, batch []*HubEvent) {
	entries, err := c.activeStateEntries(ctx)
	if err != nil {
		c.logger.Warn("state snapshot failed, proceeding without it", map[string]interface{}{"error": err.Error()})
	}

	head := batch[0]
	opts := request.BatchOptions{
		Identity:                 c.identity,
		Implementation:           c.implementation,
		StateEntries:             entries,
		ConfiguredDatastreamID:   c.configID,
		DatastreamIDOverride:     head.DatastreamIDOverride,
		DatastreamConfigOverride: head.DatastreamConfigOverride,
	}

	events := make([]request.Event, 0, len(batch))
	sourceEvents := make([]response.SourceEvent, 0, len(batch))
	sourceEventIDs := make([]string, 0, len(batch))
	var completionHandler registry.CompletionHandler
	var sendCompletion bool
	var parentEventID string

	for _, ev := range batch {
		events = append(events, request.Event{
			ID:                ev.ID,
			Timestamp:         ev.Timestamp,
			XDM:               ev.XDM,
			Data:              ev.Data,
			DatasetIDOverride: ev.DatasetIDOverride,
		})
		sourceEvents = append(sourceEvents, response.SourceEvent{ID: ev.ID, Timestamp: ev.Timestamp})
		sourceEventIDs = append(sourceEventIDs, ev.ID)
		if completionHandler == nil && ev.CompletionHandler != nil {
			completionHandler = ev.CompletionHandler
		}
		if ev.SendCompletion && !sendCompletion {
			sendCompletion = true
			parentEventID = ev.ID
		}
	}

	envelope, err := request.Build(events, opts)
	if err != nil {
		c.logger.Warn("dropping batch: envelope build failed", map[string]interface{}{"error": err.Error()})
		return
	}
	body, err := json.Marshal(envelope)
	if err != nil {
		c.logger.Error("dropping batch: envelope marshal failed", map[string]interface{}{"error": err.Error()})
		return
	}

	requestID := uuid.New().String()

	hintValue := ""
	if hint, ok, err := c.hints.Get(ctx); err == nil && ok {
		hintValue = hint.Value
	}

	urlCfg := urlbuilder.Config{
		Environment: c.environment,
		Domain:      c.domain,
		ConfigID:    c.configID,
		Scheme:      c.urlScheme,
	}
	urlReq := urlbuilder.Request{
		LocationHint: hintValue,
		ConfigID:     request.EffectiveConfigID(opts),
		RequestID:    requestID,
	}
	if head.RequestPath != "" {
		urlReq.Path = head.RequestPath
	}
	url, err := urlbuilder.Build(urlCfg, urlReq)
	if err != nil {
		c.logger.Warn("dropping batch: url build failed", map[string]interface{}{"error": err.Error()})
		return
	}

	tc := telemetry.GetTraceContext(ctx)
	telemetry.AddSpanEvent(ctx, "edge.hit.enqueued", attribute.String("edge.request_id", requestID))

	hit := &queue.EdgeHit{
		RequestID:                requestID,
		URL:                      url,
		Body:                     body,
		SourceEventIDs:           sourceEventIDs,
		DatastreamIDOverride:     head.DatastreamIDOverride,
		DatastreamConfigOverride: head.DatastreamConfigOverride,
		CreatedAt:                time.Now(),
		TraceID:                  tc.TraceID,
		SpanID:                   tc.SpanID,
	}

	if err := c.registry.Register(requestID, sourceEventIDs, completionHandler); err != nil {
		c.logger.Warn("completion registration failed", map[string]interface{}{"requestId": requestID, "error": err.Error()})
	}
	c.hitMeta[requestID] = hitMeta{
		sourceEvents:   sourceEvents,
		sendCompletion: sendCompletion,
		parentEventID:  parentEventID,
	}

	if err := c.queue.Enqueue(ctx, hit); err != nil {
		c.logger.Error("enqueue failed", map[string]interface{}{"requestId": requestID, "error": err.Error()})
		delete(c.hitMeta, requestID)
		telemetry.RecordError("edge.dispatch.batch_enqueued", "enqueue_failed")
		return
	}
	telemetry.Gauge("edge.dispatch.batch_size", float64(len(batch)))
	telemetry.RecordSuccess("edge.dispatch.batch_enqueued")
}

func (c *Core) activeStateEntries(ctx context.Context) ([]request.StateEntryInput, error) {
	active, err := c.state.ActiveEntries(ctx)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	entries := make([]request.StateEntryInput, 0, len(active))
	for _, e := range active {
		entries = append(entries, request.StateEntryInput{
			Key:    e.Key,
			Value:  e.Value,
			MaxAge: e.MaxAge(now),
		})
	}
	return entries, nil
}

func (c *Core) handleNetworkReply(ctx context.Context, reply *NetworkReply) {
	meta, ok := c.hitMeta[reply.RequestID]
	delete(c.hitMeta, reply.RequestID)
	if !ok {
		meta = hitMeta{}
	}

	hitCtx := response.HitContext{
		SourceEvents:   meta.sourceEvents,
		LastResetAt:    c.lastResetAt,
		SendCompletion: meta.sendCompletion,
		ParentEventID:  meta.parentEventID,
	}

	sinks := response.Sinks{
		State:        stateSinkAdapter{c.state},
		LocationHint: hintSinkAdapter{c.hints},
	}

	events, err := response.Parse(ctx, bytes.NewReader(reply.Body), hitCtx, sinks, c.logger)
	if err != nil {
		c.logger.Warn("response parse error", map[string]interface{}{"requestId": reply.RequestID, "error": err.Error()})
		telemetry.RecordError("edge.dispatch.response_parsed", "parse_failed")
	}

	for _, ev := range events {
		if ev.Kind == response.KindResponseContent {
			c.registry.AddHandle(reply.RequestID, ev.Payload)
		}
		c.emit(OutgoingEvent{
			Type:              outgoingType(ev),
			Payload:           ev.Payload,
			RequestID:         ev.RequestID,
			RequestEventID:    ev.RequestEventID,
			HasRequestEventID: ev.HasRequestEventID,
			ParentID:          ev.ParentID,
		})
	}

	c.registry.Complete(ctx, reply.RequestID)
}

func outgoingType(ev response.DispatchEvent) string {
	switch ev.Kind {
	case response.KindErrorResponse:
		return "edge / error response content"
	case response.KindContentComplete:
		return "edge / content complete"
	default:
		return "edge / " + ev.Source
	}
}

func (c *Core) emit(ev OutgoingEvent) {
	if c.hubSink == nil {
		return
	}
	c.hubSink(ev)
}

// stateSinkAdapter narrows state.Store to response.StateSink, translating
// response.StateUpdate (response's own mirror type) into state.Update.
type stateSinkAdapter struct{ store state.Store }

func (a stateSinkAdapter) Merge(ctx context.Context, updates []response.StateUpdate) error {
	converted := make([]state.Update, 0, len(updates))
	for _, u := range updates {
		converted = append(converted, state.Update{Key: u.Key, Value: u.Value, MaxAge: u.MaxAge})
	}
	return a.store.Merge(ctx, converted)
}

// hintSinkAdapter narrows locationhint.Store to response.LocationHintSink.
type hintSinkAdapter struct{ store locationhint.Store }

func (a hintSinkAdapter) Set(ctx context.Context, value string, ttl time.Duration) error {
	return a.store.Set(ctx, value, ttl)
}
