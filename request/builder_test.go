package request

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildFramingRoundTrip(t *testing.T) {
	events := []Event{{
		ID:        "evt-1",
		Timestamp: time.Now(),
		XDM:       map[string]interface{}{"testString": "stringValue", "testInt": float64(10)},
	}}

	env, err := Build(events, BatchOptions{ConfiguredDatastreamID: "1234abcd"})
	require.NoError(t, err)

	require.Len(t, env.Events, 1)
	assert.Equal(t, "stringValue", env.Events[0].XDM["testString"])
	assert.Equal(t, float64(10), env.Events[0].XDM["testInt"])
	assert.Equal(t, "evt-1", env.Events[0].XDM["_id"])
	assert.NotEmpty(t, env.Events[0].XDM["timestamp"])

	assert.True(t, env.Meta.KonductorConfig.Streaming.Enabled)
	assert.Equal(t, "\x00", env.Meta.KonductorConfig.Streaming.RecordSeparator)
}

func TestBuildRejectsEmptyEvent(t *testing.T) {
	_, err := Build([]Event{{ID: "e"}}, BatchOptions{})
	require.Error(t, err)
}

func TestBuildRejectsNoEvents(t *testing.T) {
	_, err := Build(nil, BatchOptions{})
	require.Error(t, err)
}

func TestBuildIdentityInjection(t *testing.T) {
	events := []Event{{ID: "e", XDM: map[string]interface{}{"a": 1}}}
	identity := IdentityMap{"ECID": []map[string]interface{}{{"id": "ecid-value"}}}

	env, err := Build(events, BatchOptions{Identity: identity, ConfiguredDatastreamID: "id"})
	require.NoError(t, err)
	assert.Equal(t, identity, env.XDM.IdentityMap)
}

func TestBuildOmitsIdentityWhenAbsent(t *testing.T) {
	events := []Event{{ID: "e", XDM: map[string]interface{}{"a": 1}}}
	env, err := Build(events, BatchOptions{ConfiguredDatastreamID: "id"})
	require.NoError(t, err)

	raw, err := json.Marshal(env)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "identityMap")
}

func TestBuildDatasetIDOverride(t *testing.T) {
	events := []Event{{ID: "e", XDM: map[string]interface{}{"a": 1}, DatasetIDOverride: "ds-1"}}
	env, err := Build(events, BatchOptions{ConfiguredDatastreamID: "id"})
	require.NoError(t, err)
	require.NotNil(t, env.Events[0].Meta)
	assert.Equal(t, "ds-1", env.Events[0].Meta.Collect.DatasetID)
}

func TestBuildStateEntries(t *testing.T) {
	events := []Event{{ID: "e", XDM: map[string]interface{}{"a": 1}}}
	env, err := Build(events, BatchOptions{
		ConfiguredDatastreamID: "id",
		StateEntries:           []StateEntryInput{{Key: "k1", Value: "v1", MaxAge: 2 * time.Hour}},
	})
	require.NoError(t, err)
	require.NotNil(t, env.Meta.State)
	require.Len(t, env.Meta.State.Entries, 1)
	assert.Equal(t, "k1", env.Meta.State.Entries[0].Key)
	assert.Equal(t, int64(7200), env.Meta.State.Entries[0].MaxAge)
}

func TestBuildOmitsStateWhenEmpty(t *testing.T) {
	events := []Event{{ID: "e", XDM: map[string]interface{}{"a": 1}}}
	env, err := Build(events, BatchOptions{ConfiguredDatastreamID: "id"})
	require.NoError(t, err)
	assert.Nil(t, env.Meta.State)
}

func TestBuildDatastreamIDOverrideRecordsOriginal(t *testing.T) {
	events := []Event{{ID: "e", XDM: map[string]interface{}{"a": 1}}}
	env, err := Build(events, BatchOptions{
		ConfiguredDatastreamID: "1234abcd",
		DatastreamIDOverride:   "5678abcd",
	})
	require.NoError(t, err)
	require.NotNil(t, env.Meta.SDKConfig)
	assert.Equal(t, "1234abcd", env.Meta.SDKConfig.Datastream.Original)
}

func TestEffectiveConfigID(t *testing.T) {
	assert.Equal(t, "1234abcd", EffectiveConfigID(BatchOptions{ConfiguredDatastreamID: "1234abcd"}))
	assert.Equal(t, "5678abcd", EffectiveConfigID(BatchOptions{ConfiguredDatastreamID: "1234abcd", DatastreamIDOverride: "5678abcd"}))
}

func TestBuildConfigOverridesOmittedWhenEmpty(t *testing.T) {
	events := []Event{{ID: "e", XDM: map[string]interface{}{"a": 1}}}
	env, err := Build(events, BatchOptions{ConfiguredDatastreamID: "id"})
	require.NoError(t, err)
	assert.Nil(t, env.Meta.ConfigOverrides)
}

func TestBuildConfigOverridesVerbatim(t *testing.T) {
	events := []Event{{ID: "e", XDM: map[string]interface{}{"a": 1}}}
	override := map[string]interface{}{"com.adobe.edge.configOverrides": map[string]interface{}{"x": "y"}}
	env, err := Build(events, BatchOptions{ConfiguredDatastreamID: "id", DatastreamConfigOverride: override})
	require.NoError(t, err)
	assert.Equal(t, override, env.Meta.ConfigOverrides)
}
