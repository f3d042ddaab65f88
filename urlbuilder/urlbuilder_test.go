package urlbuilder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildDefaultProduction(t *testing.T) {
	u, err := Build(Config{ConfigID: "1234abcd"}, Request{})
	require.NoError(t, err)
	assert.Equal(t, "https://edge.adobedc.net/ee/v1/interact?configId=1234abcd", u)
}

func TestBuildWithLocationHint(t *testing.T) {
	u, err := Build(Config{ConfigID: "1234abcd"}, Request{LocationHint: "or2"})
	require.NoError(t, err)
	assert.Equal(t, "https://edge.adobedc.net/ee/or2/v1/interact?configId=1234abcd", u)
}

func TestBuildWithoutLocationHintHasNoSegment(t *testing.T) {
	u, err := Build(Config{ConfigID: "1234abcd"}, Request{})
	require.NoError(t, err)
	assert.NotContains(t, u, "/or2/")
}

func TestBuildDatastreamOverride(t *testing.T) {
	u, err := Build(Config{ConfigID: "1234abcd"}, Request{ConfigID: "5678abcd"})
	require.NoError(t, err)
	assert.Contains(t, u, "configId=5678abcd")
}

func TestBuildPathOverride(t *testing.T) {
	u, err := Build(Config{ConfigID: "1234abcd"}, Request{Path: "va/v1/sessionstart"})
	require.NoError(t, err)
	assert.Equal(t, "https://edge.adobedc.net/ee/va/v1/sessionstart?configId=1234abcd", u)
}

func TestBuildDomainOverrideOnlyInProduction(t *testing.T) {
	u, err := Build(Config{ConfigID: "id", Domain: "custom.example.com"}, Request{})
	require.NoError(t, err)
	assert.Contains(t, u, "custom.example.com")

	u, err = Build(Config{ConfigID: "id", Domain: "custom.example.com", Environment: "int"}, Request{})
	require.NoError(t, err)
	assert.NotContains(t, u, "custom.example.com")
	assert.Contains(t, u, "edge-int.adobedc.net")
}

func TestBuildPreProdEnvironment(t *testing.T) {
	u, err := Build(Config{ConfigID: "id", Environment: "pre-prod"}, Request{})
	require.NoError(t, err)
	assert.Contains(t, u, "edge.preprod.adobedc.net")
}

func TestBuildUnrecognizedEnvironmentFallsBackToProduction(t *testing.T) {
	u, err := Build(Config{ConfigID: "id", Environment: "staging-7"}, Request{})
	require.NoError(t, err)
	assert.Contains(t, u, "edge.adobedc.net")
}

func TestBuildMissingConfigIDErrors(t *testing.T) {
	_, err := Build(Config{}, Request{})
	require.Error(t, err)
}

func TestBuildRequestIDQueryParam(t *testing.T) {
	u, err := Build(Config{ConfigID: "id"}, Request{RequestID: "abc-123"})
	require.NoError(t, err)
	assert.Contains(t, u, "requestId=abc-123")
}

func TestBuildEncodesLocationHintSegment(t *testing.T) {
	u, err := Build(Config{ConfigID: "id"}, Request{LocationHint: "or 2"})
	require.NoError(t, err)
	assert.Contains(t, u, "/or%202/")
}
