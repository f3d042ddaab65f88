// Package telemetry provides distributed tracing HTTP client instrumentation.
//
// This file wraps an http.Client so that every outbound request propagates
// W3C TraceContext headers (traceparent, tracestate), letting the Edge
// Network side of a trace link back to this client's span.
//
// Usage:
//
//	// Create client once, reuse for all requests
//	client := telemetry.NewTracedHTTPClient(nil)
//
//	// Context carries trace information
//	req, _ := http.NewRequestWithContext(ctx, "POST", url, body)
//	resp, err := client.Do(req)
//
// Call telemetry.Initialize() first; if telemetry is not initialized these
// clients still work, using a no-op tracer (safe but no traces recorded).
package telemetry

import (
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// NewTracedHTTPClient creates an HTTP client that automatically propagates
// trace context to downstream services via W3C TraceContext headers.
//
// baseTransport is the underlying transport to use; nil uses
// http.DefaultTransport. The returned client is safe for concurrent use and
// should be reused across requests for connection pooling.
func NewTracedHTTPClient(baseTransport http.RoundTripper) *http.Client {
	if baseTransport == nil {
		baseTransport = http.DefaultTransport
	}

	return &http.Client{
		Transport: otelhttp.NewTransport(baseTransport),
	}
}

// NewTracedHTTPClientWithTransport creates a traced HTTP client with
// connection pooling tuned for steady service-to-service traffic, such as
// the hit queue worker's POSTs to the Edge Network. transport nil uses a
// default pooled configuration.
func NewTracedHTTPClientWithTransport(transport *http.Transport) *http.Client {
	if transport == nil {
		transport = &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
			DisableKeepAlives:   false,
			ForceAttemptHTTP2:   true,
		}
	}

	return &http.Client{
		Transport: otelhttp.NewTransport(transport),
	}
}
