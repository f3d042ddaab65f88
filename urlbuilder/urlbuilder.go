// Package urlbuilder composes the Edge Network request URL from the
// configured environment, an optional domain override, the active location
// hint, and per-event path/datastream overrides (spec C3).
package urlbuilder

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/edgecore/edge-go/core"
)

// Environment selects which Edge Network domain a request is routed to.
type Environment string

const (
	EnvironmentProduction Environment = "production"
	EnvironmentPreProd    Environment = "pre-prod"
	EnvironmentIntegration Environment = "int"
)

// Fixed domains per environment. Only EnvironmentProduction honors a
// Config.Domain override (spec §4.3).
const (
	domainProduction  = "edge.adobedc.net"
	domainPreProd     = "edge.preprod.adobedc.net"
	domainIntegration = "edge-int.adobedc.net"

	basePath       = "ee"
	apiVersion     = "v1"
	defaultEndpoint = "interact"
)

// Config carries the per-request inputs the builder needs beyond the
// endpoint and optional path/requestId overrides.
type Config struct {
	Environment string // raw edge.environment config value
	Domain      string // edge.domain override, production-only
	ConfigID    string // datastream id, defaults unless overridden per-event
	Scheme      string // defaults to "https"; overridable for test harnesses
}

// resolveEnvironment maps the raw config string to a known Environment,
// defaulting to production for unset or unrecognized values.
func resolveEnvironment(raw string) Environment {
	switch raw {
	case "pre-prod":
		return EnvironmentPreProd
	case "int":
		return EnvironmentIntegration
	case "prod", "":
		return EnvironmentProduction
	default:
		return EnvironmentProduction
	}
}

func domainFor(env Environment, override string) string {
	switch env {
	case EnvironmentPreProd:
		return domainPreProd
	case EnvironmentIntegration:
		return domainIntegration
	default:
		if override != "" {
			return override
		}
		return domainProduction
	}
}

// Request describes the per-call overrides layered onto Config.
type Request struct {
	// Path, when non-empty, replaces the endpoint segment verbatim (e.g.
	// "va/v1/sessionstart"), bypassing apiVersion/defaultEndpoint.
	Path string

	// LocationHint is inserted as a path segment when non-empty.
	LocationHint string

	// ConfigID overrides Config.ConfigID for this request's configId query
	// parameter (spec §4.4: datastream override).
	ConfigID string

	// RequestID, when non-empty, is attached as the requestId query param.
	RequestID string
}

// Build composes the full endpoint URL per spec §4.3/§6.
func Build(cfg Config, req Request) (string, error) {
	scheme := cfg.Scheme
	if scheme == "" {
		scheme = "https"
	}

	env := resolveEnvironment(cfg.Environment)
	domain := domainFor(env, cfg.Domain)

	configID := cfg.ConfigID
	if req.ConfigID != "" {
		configID = req.ConfigID
	}
	if configID == "" {
		return "", fmt.Errorf("urlbuilder: %w", core.ErrMissingConfiguration)
	}

	segments := []string{basePath}
	if req.LocationHint != "" {
		// Keep the hint unescaped here: url.URL.Path holds the decoded form
		// and u.String() percent-encodes it on output. Pre-escaping with
		// url.PathEscape and storing the escaped result in Path would get
		// it escaped a second time (e.g. a literal "%2F" becomes "%252F").
		segments = append(segments, req.LocationHint)
	}

	if req.Path != "" {
		segments = append(segments, strings.Trim(req.Path, "/"))
	} else {
		segments = append(segments, apiVersion, defaultEndpoint)
	}

	u := url.URL{
		Scheme: scheme,
		Host:   domain,
		Path:   "/" + strings.Join(segments, "/"),
	}

	q := url.Values{}
	q.Set(core.ConfigIDQueryParam, configID)
	if req.RequestID != "" {
		q.Set("requestId", req.RequestID)
	}
	u.RawQuery = q.Encode()

	return u.String(), nil
}
