// Package request assembles the JSON envelope POSTed to the Edge Network
// (spec C4): event framing, identity injection, implementation metadata,
// client-side state echo, and datastream overrides.
package request

import (
	"time"

	"github.com/edgecore/edge-go/core"
)

// recordSeparator and lineFeed are the streaming markers advertised in
// meta.konductorConfig.streaming (spec §4.4, §6).
const (
	recordSeparator = "\x00"
	lineFeed        = "\n"
)

// Event is a single ExperienceEvent ready to be framed into a hit. ID and
// Timestamp are injected by the caller at ingest time (spec §3).
type Event struct {
	ID                string
	Timestamp         time.Time
	XDM               map[string]interface{}
	Data              map[string]interface{}
	DatasetIDOverride string
}

// IdentityMap is the identity extension's snapshot, copied verbatim into
// xdm.identityMap. A nil or empty map omits the field.
type IdentityMap map[string]interface{}

// AppInfo carries the optional host-app identity surfaced in
// ImplementationDetails (SPEC_FULL C4 supplement over the distilled spec).
type AppInfo struct {
	ID      string `json:"id,omitempty"`
	Version string `json:"version,omitempty"`
}

// ImplementationDetails is copied into xdm.implementationDetails on every
// hit (spec §4.4).
type ImplementationDetails struct {
	Environment string   `json:"environment"`
	Name        string   `json:"name"`
	Version     string   `json:"version"`
	App         *AppInfo `json:"app,omitempty"`
}

// StateEntryInput is the narrow view of a live state.Entry the builder
// needs; it intentionally does not import the state package so this
// package stays a leaf consumer of a snapshot rather than of state's types.
type StateEntryInput struct {
	Key    string
	Value  string
	MaxAge time.Duration
}

// BatchOptions carries the fields shared by every event in a single hit.
// Per spec §4.4, all events batched into one hit must agree on identity,
// implementation details, environment, location hint, and datastream
// targeting; enforcing that agreement is the caller's (dispatch core's)
// responsibility before calling Build.
type BatchOptions struct {
	Identity       IdentityMap
	Implementation ImplementationDetails
	StateEntries   []StateEntryInput

	// ConfiguredDatastreamID is the statically configured edge.configId.
	ConfiguredDatastreamID string

	// DatastreamIDOverride, when non-empty, is recorded into
	// meta.sdkConfig.datastream.original alongside ConfiguredDatastreamID;
	// the URL builder is responsible for substituting it into the query.
	DatastreamIDOverride string

	// DatastreamConfigOverride is placed verbatim at meta.configOverrides.
	DatastreamConfigOverride map[string]interface{}
}

// Envelope is the wire shape POSTed to the Edge Network (spec §3, §6).
type Envelope struct {
	Events []eventPayload `json:"events"`
	XDM    envelopeXDM    `json:"xdm"`
	Meta   envelopeMeta   `json:"meta"`
}

type eventPayload struct {
	XDM  map[string]interface{} `json:"xdm"`
	Data map[string]interface{} `json:"data,omitempty"`
	Meta *eventMeta             `json:"meta,omitempty"`
}

type eventMeta struct {
	Collect *collectMeta `json:"collect,omitempty"`
}

type collectMeta struct {
	DatasetID string `json:"datasetId,omitempty"`
}

type envelopeXDM struct {
	IdentityMap          IdentityMap           `json:"identityMap,omitempty"`
	ImplementationDetails ImplementationDetails `json:"implementationDetails"`
}

type envelopeMeta struct {
	KonductorConfig konductorConfig        `json:"konductorConfig"`
	State           *stateMeta             `json:"state,omitempty"`
	ConfigOverrides map[string]interface{} `json:"configOverrides,omitempty"`
	SDKConfig       *sdkConfigMeta         `json:"sdkConfig,omitempty"`
}

type konductorConfig struct {
	Streaming streamingConfig `json:"streaming"`
}

type streamingConfig struct {
	Enabled         bool   `json:"enabled"`
	RecordSeparator string `json:"recordSeparator"`
	LineFeed        string `json:"lineFeed"`
}

type stateMeta struct {
	Entries []stateEntryPayload `json:"entries"`
}

type stateEntryPayload struct {
	Key    string `json:"key"`
	Value  string `json:"value"`
	MaxAge int64  `json:"maxAge"`
}

type sdkConfigMeta struct {
	Datastream datastreamMeta `json:"datastream"`
}

type datastreamMeta struct {
	Original string `json:"original"`
}

// Build assembles the envelope for a batch of events sharing the identity,
// implementation details, and overrides in opts.
func Build(events []Event, opts BatchOptions) (Envelope, error) {
	if len(events) == 0 {
		return Envelope{}, core.ErrEmptyEvent
	}

	payloads := make([]eventPayload, 0, len(events))
	for _, e := range events {
		if len(e.XDM) == 0 && len(e.Data) == 0 {
			return Envelope{}, core.ErrEmptyEvent
		}

		xdm := make(map[string]interface{}, len(e.XDM)+2)
		for k, v := range e.XDM {
			xdm[k] = v
		}
		xdm["_id"] = e.ID
		xdm["timestamp"] = e.Timestamp.UTC().Format(time.RFC3339)

		p := eventPayload{XDM: xdm, Data: e.Data}
		if e.DatasetIDOverride != "" {
			p.Meta = &eventMeta{Collect: &collectMeta{DatasetID: e.DatasetIDOverride}}
		}
		payloads = append(payloads, p)
	}

	env := Envelope{
		Events: payloads,
		XDM: envelopeXDM{
			IdentityMap:           opts.Identity,
			ImplementationDetails: opts.Implementation,
		},
		Meta: envelopeMeta{
			KonductorConfig: konductorConfig{
				Streaming: streamingConfig{
					Enabled:         true,
					RecordSeparator: recordSeparator,
					LineFeed:        lineFeed,
				},
			},
		},
	}

	if len(opts.StateEntries) > 0 {
		entries := make([]stateEntryPayload, 0, len(opts.StateEntries))
		for _, s := range opts.StateEntries {
			entries = append(entries, stateEntryPayload{
				Key:    s.Key,
				Value:  s.Value,
				MaxAge: int64(s.MaxAge.Seconds()),
			})
		}
		env.Meta.State = &stateMeta{Entries: entries}
	}

	if len(opts.DatastreamConfigOverride) > 0 {
		env.Meta.ConfigOverrides = opts.DatastreamConfigOverride
	}

	if opts.DatastreamIDOverride != "" {
		env.Meta.SDKConfig = &sdkConfigMeta{
			Datastream: datastreamMeta{Original: opts.ConfiguredDatastreamID},
		}
	}

	return env, nil
}

// EffectiveConfigID returns the datastream id the URL query should use:
// the override when present, otherwise the configured id (spec §4.4).
func EffectiveConfigID(opts BatchOptions) string {
	if opts.DatastreamIDOverride != "" {
		return opts.DatastreamIDOverride
	}
	return opts.ConfiguredDatastreamID
}
