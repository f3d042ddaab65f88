package core

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration options for the edge dispatch core. It
// supports three-layer configuration priority:
//  1. Default values (lowest priority)
//  2. Environment variables (medium priority)
//  3. Functional options (highest priority)
//
// Example usage:
//
//	cfg, err := NewConfig(
//	    WithConfigID("abcd1234@AdobeOrg"),
//	    WithEnvironment("production"),
//	    WithRedisURL("redis://localhost:6379"),
//	)
type Config struct {
	// Environment is "production", "pre-production" or "integration"; Validate
	// rejects anything else, and the client uses it to pick a telemetry
	// profile. The dispatch core does not read it: hits are routed by the
	// Environment carried in SharedStateChanged.
	Environment string `json:"environment" env:"EDGE_ENVIRONMENT" default:"production"`

	// Domain is a domain override. The dispatch core does not read it: the
	// domain used for hits is the one carried in SharedStateChanged.
	Domain string `json:"domain" env:"EDGE_DOMAIN"`

	// ConfigID is the datastream identifier, required by Validate. The
	// configId sent with hits is the one carried in SharedStateChanged.
	ConfigID string `json:"config_id" yaml:"config_id" env:"EDGE_CONFIG_ID"`

	// Namespace isolates this instance's keys within a shared Redis.
	Namespace string `json:"namespace" env:"EDGE_NAMESPACE" default:"default"`

	// Persistence configuration (Redis-backed state/location-hint/queue stores).
	Persistence PersistenceConfig `json:"persistence"`

	// Resilience configuration (circuit breaker tuning for the hit queue, plus
	// retry settings that the hit queue worker does not read).
	Resilience ResilienceConfig `json:"resilience"`

	// Logging configuration.
	Logging LoggingConfig `json:"logging"`

	// Development configuration.
	Development DevelopmentConfig `json:"development"`

	logger Logger
}

// PersistenceConfig configures the Redis-backed stores used by the state
// store, location hint store and hit queue.
type PersistenceConfig struct {
	RedisURL string `json:"redis_url" yaml:"redis_url" env:"EDGE_REDIS_URL"`
	// InMemory forces all stores to their process-local implementation,
	// ignoring RedisURL — used for tests and single-process demos.
	InMemory bool `json:"in_memory" env:"EDGE_IN_MEMORY" default:"false"`
}

// ResilienceConfig holds the hit queue's circuit breaker settings and a set
// of retry settings. Only CircuitBreaker is applied; the hit queue worker
// does not read Retry and waits the delay given by queue.NextRetryDelay.
type ResilienceConfig struct {
	CircuitBreaker CircuitBreakerSettings `json:"circuit_breaker"`
	Retry          RetrySettings          `json:"retry"`
}

// CircuitBreakerSettings mirrors the fields of resilience.CircuitBreakerConfig
// that are meaningful to configure from the outside; core does not import
// resilience (to avoid a dependency cycle), so the root package's
// buildCircuitBreaker translates these into a resilience.CircuitBreakerConfig
// at construction time.
type CircuitBreakerSettings struct {
	ErrorThreshold   float64       `json:"error_threshold" default:"0.5"`
	VolumeThreshold  int           `json:"volume_threshold" default:"10"`
	SleepWindow      time.Duration `json:"sleep_window" default:"30s"`
	HalfOpenRequests int           `json:"half_open_requests" default:"5"`
}

// RetrySettings mirrors the fields of resilience.RetryConfig.
type RetrySettings struct {
	MaxAttempts   int           `json:"max_attempts" default:"5"`
	InitialDelay  time.Duration `json:"initial_delay" default:"5s"`
	MaxDelay      time.Duration `json:"max_delay" default:"5m"`
	BackoffFactor float64       `json:"backoff_factor" default:"2.0"`
}

// LoggingConfig configures the ambient structured logger.
type LoggingConfig struct {
	Level  string `json:"level" env:"EDGE_LOG_LEVEL" default:"info"`
	Format string `json:"format" env:"EDGE_LOG_FORMAT" default:"json"`
	Output string `json:"output" env:"EDGE_LOG_OUTPUT" default:"stdout"`
}

// DevelopmentConfig holds settings that only make sense off of production.
type DevelopmentConfig struct {
	DebugLogging bool `json:"debug_logging" env:"EDGE_DEV_MODE" default:"false"`
}

// Option configures a Config. Options run after defaults and environment
// variables have been applied, so they take final priority.
type Option func(*Config) error

// DefaultConfig returns configuration with sane production defaults.
func DefaultConfig() *Config {
	return &Config{
		Environment: "production",
		Namespace:   "default",
		Persistence: PersistenceConfig{},
		Resilience: ResilienceConfig{
			CircuitBreaker: CircuitBreakerSettings{
				ErrorThreshold:   0.5,
				VolumeThreshold:  10,
				SleepWindow:      30 * time.Second,
				HalfOpenRequests: 5,
			},
			Retry: RetrySettings{
				MaxAttempts:   5,
				InitialDelay:  DefaultRetryInitialDelay,
				MaxDelay:      DefaultRetryMaxDelay,
				BackoffFactor: 2.0,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// LoadFromEnv overlays environment variable values onto the config.
func (c *Config) LoadFromEnv() error {
	if v := os.Getenv(EnvEnvironment); v != "" {
		c.Environment = v
	}
	if v := os.Getenv(EnvDomain); v != "" {
		c.Domain = v
	}
	if v := os.Getenv(EnvConfigID); v != "" {
		c.ConfigID = v
	}
	if v := os.Getenv(EnvNamespace); v != "" {
		c.Namespace = v
	}
	if v := os.Getenv(EnvRedisURL); v != "" {
		c.Persistence.RedisURL = v
	}
	if v := os.Getenv("EDGE_IN_MEMORY"); v != "" {
		c.Persistence.InMemory = parseBool(v)
	}
	if v := os.Getenv(EnvDevMode); v != "" {
		c.Development.DebugLogging = parseBool(v)
	}
	if v := os.Getenv("EDGE_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("EDGE_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
	if v := os.Getenv("EDGE_LOG_OUTPUT"); v != "" {
		c.Logging.Output = v
	}
	return nil
}

// LoadFromFile overlays a YAML config file's values onto the config. Used
// for on-device config overlays (e.g. forcing an integration environment on
// QA builds) without rebuilding the host application.
func (c *Config) LoadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return &FrameworkError{Op: "Config.LoadFromFile", Kind: "io", Message: path, Err: err}
	}
	var overlay Config
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return &FrameworkError{Op: "Config.LoadFromFile", Kind: "parse", Message: path, Err: err}
	}
	if overlay.Environment != "" {
		c.Environment = overlay.Environment
	}
	if overlay.Domain != "" {
		c.Domain = overlay.Domain
	}
	if overlay.ConfigID != "" {
		c.ConfigID = overlay.ConfigID
	}
	if overlay.Namespace != "" {
		c.Namespace = overlay.Namespace
	}
	if overlay.Persistence.RedisURL != "" {
		c.Persistence.RedisURL = overlay.Persistence.RedisURL
	}
	return nil
}

// Validate rejects a configuration that cannot be used to dispatch hits,
// matching the original source's fast-fail behavior at extension registration.
func (c *Config) Validate() error {
	if c.ConfigID == "" {
		return &FrameworkError{Op: "Config.Validate", Kind: "validation", Err: ErrMissingConfiguration, Message: "config_id is required"}
	}
	switch c.Environment {
	case "production", "pre-production", "integration":
	default:
		return &FrameworkError{Op: "Config.Validate", Kind: "validation", Err: ErrInvalidConfiguration, Message: "unknown environment: " + c.Environment}
	}
	if c.Resilience.Retry.MaxAttempts < 0 {
		return &FrameworkError{Op: "Config.Validate", Kind: "validation", Err: ErrInvalidConfiguration, Message: "retry max attempts must be non-negative"}
	}
	return nil
}

func parseBool(s string) bool {
	b, _ := strconv.ParseBool(s)
	return b
}

// WithEnvironment sets Config.Environment (validated; selects the telemetry profile).
func WithEnvironment(env string) Option {
	return func(c *Config) error {
		c.Environment = env
		return nil
	}
}

// WithDomain sets Config.Domain; hits use the domain carried in SharedStateChanged.
func WithDomain(domain string) Option {
	return func(c *Config) error {
		c.Domain = domain
		return nil
	}
}

// WithConfigID sets Config.ConfigID, which Validate requires; hits use the
// configId carried in SharedStateChanged.
func WithConfigID(id string) Option {
	return func(c *Config) error {
		c.ConfigID = id
		return nil
	}
}

// WithNamespace sets the Redis key namespace.
func WithNamespace(namespace string) Option {
	return func(c *Config) error {
		c.Namespace = namespace
		return nil
	}
}

// WithRedisURL configures Redis-backed persistence for state/location-hint/queue.
func WithRedisURL(url string) Option {
	return func(c *Config) error {
		c.Persistence.RedisURL = url
		c.Persistence.InMemory = false
		return nil
	}
}

// WithInMemoryPersistence forces process-local stores, ignoring any configured Redis URL.
func WithInMemoryPersistence() Option {
	return func(c *Config) error {
		c.Persistence.InMemory = true
		return nil
	}
}

// WithCircuitBreaker tunes the hit queue's circuit breaker.
func WithCircuitBreaker(errorThreshold float64, sleepWindow time.Duration) Option {
	return func(c *Config) error {
		c.Resilience.CircuitBreaker.ErrorThreshold = errorThreshold
		c.Resilience.CircuitBreaker.SleepWindow = sleepWindow
		return nil
	}
}

// WithRetry records retry settings in Resilience.Retry. The hit queue worker
// does not read them; its delay comes from queue.NextRetryDelay.
func WithRetry(maxAttempts int, initialDelay time.Duration) Option {
	return func(c *Config) error {
		c.Resilience.Retry.MaxAttempts = maxAttempts
		c.Resilience.Retry.InitialDelay = initialDelay
		return nil
	}
}

// WithLogLevel sets Logging.Level. ProductionLogger only checks it for
// "debug", which enables debug entries; info, warn and error are always written.
func WithLogLevel(level string) Option {
	return func(c *Config) error {
		c.Logging.Level = level
		return nil
	}
}

// WithLogFormat sets the log output format ("json" or "text").
func WithLogFormat(format string) Option {
	return func(c *Config) error {
		c.Logging.Format = format
		return nil
	}
}

// WithDevelopmentMode enables verbose debug logging.
func WithDevelopmentMode(enabled bool) Option {
	return func(c *Config) error {
		c.Development.DebugLogging = enabled
		return nil
	}
}

// WithLogger sets a custom logger; overrides Logging-driven ProductionLogger construction.
func WithLogger(logger Logger) Option {
	return func(c *Config) error {
		c.logger = logger
		return nil
	}
}

// WithConfigFile overlays a YAML file's settings at construction time.
func WithConfigFile(path string) Option {
	return func(c *Config) error {
		return c.LoadFromFile(path)
	}
}

// NewConfig builds a Config from defaults, environment variables and the
// given options, in that priority order, then validates it.
func NewConfig(opts ...Option) (*Config, error) {
	cfg := DefaultConfig()
	if err := cfg.LoadFromEnv(); err != nil {
		return nil, err
	}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, fmt.Errorf("applying config option: %w", err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.logger == nil {
		cfg.logger = NewProductionLogger(cfg.Logging, cfg.Development, "edge")
	}
	return cfg, nil
}

// Logger returns the configured logger, constructing a ProductionLogger
// from Logging/Development settings if none was set via WithLogger.
func (c *Config) Logger() Logger {
	if c.logger == nil {
		c.logger = NewProductionLogger(c.Logging, c.Development, "edge")
	}
	return c.logger
}

// ProductionLogger is the default structured Logger implementation, writing
// newline-delimited JSON or human-readable lines depending on LoggingConfig.
type ProductionLogger struct {
	level       string
	debug       bool
	serviceName string
	format      string
	output      io.Writer

	metricsEnabled bool
}

// NewProductionLogger creates a logger from LoggingConfig.
func NewProductionLogger(logging LoggingConfig, dev DevelopmentConfig, serviceName string) Logger {
	var output io.Writer = os.Stdout
	if logging.Output == "stderr" {
		output = os.Stderr
	}
	p := &ProductionLogger{
		level:       strings.ToLower(logging.Level),
		debug:       dev.DebugLogging || logging.Level == "debug",
		serviceName: serviceName,
		format:      logging.Format,
		output:      output,
	}
	trackLogger(p)
	return p
}

// EnableMetrics turns on metric emission once a telemetry provider has registered.
func (p *ProductionLogger) EnableMetrics() {
	p.metricsEnabled = true
}

func (p *ProductionLogger) Info(msg string, fields map[string]interface{}) {
	p.logEvent("INFO", msg, fields, nil)
}

func (p *ProductionLogger) InfoWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	p.logEvent("INFO", msg, fields, ctx)
}

func (p *ProductionLogger) Error(msg string, fields map[string]interface{}) {
	p.logEvent("ERROR", msg, fields, nil)
}

func (p *ProductionLogger) ErrorWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	p.logEvent("ERROR", msg, fields, ctx)
}

func (p *ProductionLogger) Warn(msg string, fields map[string]interface{}) {
	p.logEvent("WARN", msg, fields, nil)
}

func (p *ProductionLogger) WarnWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	p.logEvent("WARN", msg, fields, ctx)
}

func (p *ProductionLogger) Debug(msg string, fields map[string]interface{}) {
	if p.debug {
		p.logEvent("DEBUG", msg, fields, nil)
	}
}

func (p *ProductionLogger) DebugWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	if p.debug {
		p.logEvent("DEBUG", msg, fields, ctx)
	}
}

// WithComponent returns a logger that tags every entry with component,
// satisfying ComponentAwareLogger.
func (p *ProductionLogger) WithComponent(component string) Logger {
	clone := *p
	clone.serviceName = component
	return &clone
}

func (p *ProductionLogger) logEvent(level, msg string, fields map[string]interface{}, ctx context.Context) {
	timestamp := time.Now().Format(time.RFC3339)

	if p.format == "json" {
		logEntry := map[string]interface{}{
			"timestamp": timestamp,
			"level":     level,
			"component": p.serviceName,
			"message":   msg,
		}
		if ctx != nil && p.metricsEnabled {
			for k, v := range getContextBaggage(ctx) {
				logEntry["trace."+k] = v
			}
		}
		for k, v := range fields {
			logEntry[k] = v
		}
		if data, err := json.Marshal(logEntry); err == nil {
			fmt.Fprintln(p.output, string(data))
		}
	} else {
		var fieldStr strings.Builder
		for k, v := range fields {
			fieldStr.WriteString(fmt.Sprintf(" %s=%v", k, v))
		}
		fmt.Fprintf(p.output, "%s [%s] [%s] %s%s\n", timestamp, level, p.serviceName, msg, fieldStr.String())
	}

	if p.metricsEnabled {
		p.emitFrameworkMetric(level, fields, ctx)
	}
}

func (p *ProductionLogger) emitFrameworkMetric(level string, fields map[string]interface{}, ctx context.Context) {
	labels := []string{"level", level, "component", p.serviceName}
	for k, v := range fields {
		switch k {
		case "operation", "status", "error_type":
			labels = append(labels, k, fmt.Sprintf("%v", v))
		}
	}
	if ctx != nil {
		emitMetricWithContext(ctx, "edge.framework.operations", 1.0, labels...)
	} else {
		emitMetric("edge.framework.operations", 1.0, labels...)
	}
}

func emitMetric(name string, value float64, labels ...string) {
	if globalMetricsRegistry != nil {
		globalMetricsRegistry.Counter(name, labels...)
	}
}

func emitMetricWithContext(ctx context.Context, name string, value float64, labels ...string) {
	if globalMetricsRegistry != nil {
		globalMetricsRegistry.EmitWithContext(ctx, name, value, labels...)
	}
}

func getContextBaggage(ctx context.Context) map[string]string {
	if globalMetricsRegistry != nil {
		return globalMetricsRegistry.GetBaggage(ctx)
	}
	return make(map[string]string)
}
