// Package edge is the Edge Network client library's entry point: it wires
// the state store (C1), location hint store (C2), hit queue (C6),
// completion registry (C7) and dispatch core (C8/C9) into one running
// Client, choosing Redis-backed or in-memory stores per Config.Persistence.
package edge

import (
	"context"
	"fmt"

	"github.com/edgecore/edge-go/core"
	"github.com/edgecore/edge-go/dispatch"
	"github.com/edgecore/edge-go/locationhint"
	"github.com/edgecore/edge-go/queue"
	"github.com/edgecore/edge-go/registry"
	"github.com/edgecore/edge-go/request"
	"github.com/edgecore/edge-go/resilience"
	"github.com/edgecore/edge-go/state"
	"github.com/edgecore/edge-go/telemetry"
)

// Re-exported configuration surface so callers only need to import this
// package for the common case.
type (
	Config = core.Config
	Option = core.Option
	Logger = core.Logger
)

var (
	NewConfig     = core.NewConfig
	DefaultConfig = core.DefaultConfig

	WithEnvironment         = core.WithEnvironment
	WithDomain              = core.WithDomain
	WithConfigID            = core.WithConfigID
	WithNamespace           = core.WithNamespace
	WithRedisURL            = core.WithRedisURL
	WithInMemoryPersistence = core.WithInMemoryPersistence
	WithCircuitBreaker      = core.WithCircuitBreaker
	WithRetry               = core.WithRetry
	WithLogLevel            = core.WithLogLevel
	WithLogFormat           = core.WithLogFormat
	WithDevelopmentMode     = core.WithDevelopmentMode
	WithLogger              = core.WithLogger
	WithConfigFile          = core.WithConfigFile
)

// HubEvent, HubSink and the identity/consent/reset message types are
// re-exported from dispatch since they make up this package's public
// submission surface.
type (
	HubEvent              = dispatch.HubEvent
	HubSink               = dispatch.HubSink
	SharedStateChanged    = dispatch.SharedStateChanged
	ConsentChanged        = dispatch.ConsentChanged
	ConsentState          = dispatch.ConsentState
	ResetComplete         = dispatch.ResetComplete
	OutgoingEvent         = dispatch.OutgoingEvent
	ImplementationDetails = request.ImplementationDetails
	IdentityMap           = request.IdentityMap
)

const (
	ConsentYes     = dispatch.ConsentYes
	ConsentNo      = dispatch.ConsentNo
	ConsentPending = dispatch.ConsentPending
)

// Client is a running Edge Network dispatch pipeline: one dispatch core
// goroutine and one hit-queue worker goroutine, sharing the stores built
// from Config.Persistence.
type Client struct {
	cfg    *core.Config
	core   *dispatch.Core
	worker *queue.Worker
}

// New builds a Client from cfg. implementation identifies the calling app
// and SDK version in every outbound request envelope (spec C4); hubSink
// receives every event the core dispatches back out (response content,
// errors, content-complete, location-hint replies).
func New(cfg *core.Config, implementation request.ImplementationDetails, hubSink dispatch.HubSink) (*Client, error) {
	return newClient(cfg, implementation, hubSink, "")
}

// newClient is New's implementation, with an escape hatch for tests that
// need to target an httptest.Server (which never speaks https) instead of
// the real Edge Network domain.
func newClient(cfg *core.Config, implementation request.ImplementationDetails, hubSink dispatch.HubSink, urlSchemeOverride string) (*Client, error) {
	logger := cfg.Logger()

	if err := initTelemetry(cfg); err != nil {
		logger.Warn("telemetry initialization failed, metrics will be discarded", map[string]interface{}{"error": err.Error()})
	}

	stateStore, hintStore, queueStore, err := buildStores(cfg, logger)
	if err != nil {
		return nil, err
	}

	reg := registry.New()
	reg.SetLogger(logger)

	dispatchCore := dispatch.New(dispatch.Config{
		State:          stateStore,
		LocationHint:   hintStore,
		Registry:       reg,
		Queue:          queueStore,
		Implementation: implementation,
		URLScheme:      urlSchemeOverride,
		HubSink:        hubSink,
		Logger:         logger,
	})

	breaker, err := buildCircuitBreaker(cfg, logger)
	if err != nil {
		return nil, err
	}

	httpClient := telemetry.NewTracedHTTPClient(nil)
	worker := queue.NewWorker(queueStore, httpClient, breaker, dispatchCore.OutcomeHandler, logger)

	return &Client{cfg: cfg, core: dispatchCore, worker: worker}, nil
}

func buildStores(cfg *core.Config, logger core.Logger) (state.Store, locationhint.Store, queue.Store, error) {
	if cfg.Persistence.InMemory || cfg.Persistence.RedisURL == "" {
		stateStore := state.NewMemoryStore()
		stateStore.SetLogger(logger)
		hintStore := locationhint.NewMemoryStore()
		hintStore.SetLogger(logger)
		queueStore := queue.NewMemoryStore()
		queueStore.SetLogger(logger)
		return stateStore, hintStore, queueStore, nil
	}

	stateClient, err := core.NewRedisClient(core.RedisClientOptions{
		RedisURL: cfg.Persistence.RedisURL, DB: core.RedisDBState, Namespace: cfg.Namespace, Logger: logger,
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("edge: state redis client: %w", err)
	}
	hintClient, err := core.NewRedisClient(core.RedisClientOptions{
		RedisURL: cfg.Persistence.RedisURL, DB: core.RedisDBLocationHint, Namespace: cfg.Namespace, Logger: logger,
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("edge: location hint redis client: %w", err)
	}
	queueClient, err := core.NewRedisClient(core.RedisClientOptions{
		RedisURL: cfg.Persistence.RedisURL, DB: core.RedisDBQueue, Namespace: cfg.Namespace, Logger: logger,
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("edge: queue redis client: %w", err)
	}

	return state.NewRedisStore(stateClient, logger),
		locationhint.NewRedisStore(hintClient, logger),
		queue.NewRedisStore(queueClient, logger),
		nil
}

// initTelemetry selects a telemetry.Profile from cfg and starts the global
// metrics registry (idempotent process-wide; only the first call's profile
// takes effect). Metrics are silently discarded if this never runs or
// fails, so a failure here never blocks Client construction.
func initTelemetry(cfg *core.Config) error {
	profile := telemetry.ProfileProduction
	switch {
	case cfg.Development.DebugLogging:
		profile = telemetry.ProfileDevelopment
	case cfg.Environment == "integration" || cfg.Environment == "pre-production":
		profile = telemetry.ProfileStaging
	}

	tcfg := telemetry.UseProfile(profile).WithOverrides(telemetry.Config{
		ServiceName: "edge-go",
	})
	return telemetry.Initialize(tcfg)
}

// telemetryCircuitMetrics adapts the dispatch circuit breaker's
// MetricsCollector hooks onto the package's simple metrics API.
type telemetryCircuitMetrics struct{}

func (telemetryCircuitMetrics) RecordSuccess(name string) {
	telemetry.Counter(telemetry.MetricCircuitBreakerSuccess, "breaker", name)
}

func (telemetryCircuitMetrics) RecordFailure(name string, errorType string) {
	telemetry.Counter(telemetry.MetricCircuitBreakerFailure, "breaker", name, "error_type", errorType)
}

func (telemetryCircuitMetrics) RecordStateChange(name string, from, to string) {
	telemetry.Counter(telemetry.MetricCircuitBreakerStateChange, "breaker", name, "from", from, "to", to)
}

func (telemetryCircuitMetrics) RecordRejection(name string) {
	telemetry.Counter(telemetry.MetricCircuitBreakerRejected, "breaker", name)
}

// buildCircuitBreaker translates Config.Resilience into a
// resilience.CircuitBreakerConfig. core deliberately does not import
// resilience (to avoid a dependency cycle); this translation is the
// wiring layer's job.
func buildCircuitBreaker(cfg *core.Config, logger core.Logger) (*resilience.CircuitBreaker, error) {
	rcb := cfg.Resilience.CircuitBreaker

	cbCfg := resilience.DefaultConfig()
	cbCfg.Name = "edge-dispatch"
	cbCfg.Metrics = telemetryCircuitMetrics{}
	if rcb.ErrorThreshold > 0 {
		cbCfg.ErrorThreshold = rcb.ErrorThreshold
	}
	if rcb.VolumeThreshold > 0 {
		cbCfg.VolumeThreshold = rcb.VolumeThreshold
	}
	if rcb.SleepWindow > 0 {
		cbCfg.SleepWindow = rcb.SleepWindow
	}
	if rcb.HalfOpenRequests > 0 {
		cbCfg.HalfOpenRequests = rcb.HalfOpenRequests
	}

	breaker, err := resilience.NewCircuitBreaker(cbCfg)
	if err != nil {
		return nil, fmt.Errorf("edge: circuit breaker: %w", err)
	}
	breaker.SetLogger(logger)
	return breaker, nil
}

// Start runs the dispatch core and hit queue worker on dedicated
// goroutines. It returns immediately; call Stop to shut both down.
func (c *Client) Start(ctx context.Context) {
	go c.core.Run(ctx)
	go c.worker.Run(ctx)
	c.worker.Wake()
}

// Stop signals both goroutines to exit and waits for them, honoring ctx's
// deadline.
func (c *Client) Stop(ctx context.Context) error {
	if err := c.core.Stop(ctx); err != nil {
		return err
	}
	return c.worker.Stop(ctx)
}

// Submit enqueues a hub event for processing (spec C8's primary input).
func (c *Client) Submit(ctx context.Context, event HubEvent) error {
	err := c.core.Submit(ctx, dispatch.Message{Hub: &event})
	if err == nil {
		c.worker.Wake()
	}
	return err
}

// SetSharedState notifies the core of new configuration and/or identity
// state (spec §4.8 points 3-4).
func (c *Client) SetSharedState(ctx context.Context, change SharedStateChanged) error {
	return c.core.Submit(ctx, dispatch.Message{SharedState: &change})
}

// SetConsent notifies the core of a new consent.collect value (spec §4.8
// point 2).
func (c *Client) SetConsent(ctx context.Context, state ConsentState) error {
	return c.core.Submit(ctx, dispatch.Message{Consent: &ConsentChanged{State: state}})
}

// Reset runs the identity-reset protocol (spec §4.9): clears the state
// store and records the reset timestamp for response-parsing purposes.
func (c *Client) Reset(ctx context.Context, reset ResetComplete) error {
	return c.core.Submit(ctx, dispatch.Message{Reset: &reset})
}
