package core

import "time"

// Environment variable names read by core.Config.LoadFromEnv.
const (
	EnvRedisURL    = "EDGE_REDIS_URL"   // Redis connection URL for durable persistence
	EnvNamespace   = "EDGE_NAMESPACE"   // Key-prefix isolation for multi-tenant Redis use
	EnvEnvironment = "EDGE_ENVIRONMENT" // "production", "pre-production" or "integration"
	EnvDomain      = "EDGE_DOMAIN"      // Domain override (Config.Domain)
	EnvConfigID    = "EDGE_CONFIG_ID"   // Datastream/configId (Config.ConfigID)
	EnvDevMode     = "EDGE_DEV_MODE"    // Development mode flag (enables debug logging)
)

// Wire protocol constants.
const (
	// RecordSeparator delimits JSON records in the Edge Network's streaming
	// response body (spec.md §4.5).
	RecordSeparator = byte(0x00)

	// ConfigIDQueryParam is the query-string key carrying the datastream id.
	ConfigIDQueryParam = "configId"

	// LocationHintPathSegment is the "ee" base path segment; an active
	// location hint follows it ("/ee/<hint>/v1/..."). The urlbuilder package
	// uses its own basePath constant rather than this one.
	LocationHintPathSegment = "ee"
)

// Default tuning values, overridable via core.Option or environment.
const (
	// DefaultLocationHintTTL is how long a location hint is honored when a
	// locationHint:result handle carries no ttlSeconds (spec.md §4.2).
	DefaultLocationHintTTL = 1800 * time.Second

	// DefaultStateEntryTTL is a 30-day entry lifetime. The state stores do
	// not read it: each entry expires after the maxAge of its server update.
	DefaultStateEntryTTL = 30 * 24 * time.Hour

	// DefaultRetryInitialDelay is the default Resilience.Retry.InitialDelay.
	DefaultRetryInitialDelay = 5 * time.Second

	// DefaultRetryMaxDelay is the default Resilience.Retry.MaxDelay.
	DefaultRetryMaxDelay = 5 * time.Minute

	// DefaultRedisPrefix is "edge:". The Redis stores do not read it; their
	// keys are namespaced by Config.Namespace.
	DefaultRedisPrefix = "edge:"
)
