package dispatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGroupBatchableMergesSharedDatastream(t *testing.T) {
	events := []*HubEvent{
		{ID: "e1"},
		{ID: "e2"},
		{ID: "e3"},
	}
	batches := groupBatchable(events)
	assert.Len(t, batches, 1)
	assert.Len(t, batches[0], 3)
}

func TestGroupBatchableSplitsOnDatastreamOverride(t *testing.T) {
	events := []*HubEvent{
		{ID: "e1"},
		{ID: "e2", DatastreamIDOverride: "ds-override"},
		{ID: "e3"},
	}
	batches := groupBatchable(events)
	assert.Len(t, batches, 3)
	assert.Equal(t, "e1", batches[0][0].ID)
	assert.Equal(t, "e2", batches[1][0].ID)
	assert.Equal(t, "e3", batches[2][0].ID)
}

func TestGroupBatchableRegroupsReturnToSharedKey(t *testing.T) {
	events := []*HubEvent{
		{ID: "e1"},
		{ID: "e2"},
		{ID: "e3", DatastreamIDOverride: "ds-override"},
		{ID: "e4"},
		{ID: "e5"},
	}
	batches := groupBatchable(events)
	assert.Len(t, batches, 3)
	assert.Len(t, batches[0], 2)
	assert.Len(t, batches[1], 1)
	assert.Len(t, batches[2], 2)
}

func TestGroupBatchableExplicitRequestPathForcesSingleton(t *testing.T) {
	events := []*HubEvent{
		{ID: "e1"},
		{ID: "e2", RequestPath: "va/v1/sessionstart"},
		{ID: "e3"},
	}
	batches := groupBatchable(events)
	assert.Len(t, batches, 3)
	assert.Len(t, batches[1], 1)
	assert.Equal(t, "e2", batches[1][0].ID)
}

func TestGroupBatchableConsecutiveRequestPathEventsStaySingleton(t *testing.T) {
	events := []*HubEvent{
		{ID: "e1", RequestPath: "va/v1/sessionstart"},
		{ID: "e2", RequestPath: "va/v1/sessionstart"},
	}
	batches := groupBatchable(events)
	assert.Len(t, batches, 2)
	assert.Len(t, batches[0], 1)
	assert.Len(t, batches[1], 1)
}

func TestGroupBatchableEmptyInput(t *testing.T) {
	batches := groupBatchable(nil)
	assert.Empty(t, batches)
}

func TestBatchKeyDiffersOnConfigOverride(t *testing.T) {
	a := batchKey(&HubEvent{DatastreamConfigOverride: map[string]interface{}{"x": "1"}})
	b := batchKey(&HubEvent{DatastreamConfigOverride: map[string]interface{}{"x": "2"}})
	assert.NotEqual(t, a, b)
}

func TestBatchKeySameForIdenticalOverrides(t *testing.T) {
	a := batchKey(&HubEvent{DatastreamIDOverride: "ds1"})
	b := batchKey(&HubEvent{DatastreamIDOverride: "ds1"})
	assert.Equal(t, a, b)
}
