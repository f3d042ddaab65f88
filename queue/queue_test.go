package queue

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClassifyStatusSuccess(t *testing.T) {
	for _, s := range []int{200, 204, 207} {
		assert.Equal(t, ClassificationSuccess, ClassifyStatus(s, nil), "status %d", s)
	}
}

func TestClassifyStatusRetryable(t *testing.T) {
	for _, s := range []int{408, 429, 502, 503, 504} {
		assert.Equal(t, ClassificationRetryable, ClassifyStatus(s, nil), "status %d", s)
	}
}

func TestClassifyStatusTransportFailureRetryable(t *testing.T) {
	assert.Equal(t, ClassificationRetryable, ClassifyStatus(0, errors.New("dial tcp: timeout")))
}

func TestClassifyStatusFatal(t *testing.T) {
	for _, s := range []int{400, 401, 422, 500, 501, 301} {
		assert.Equal(t, ClassificationFatal, ClassifyStatus(s, nil), "status %d", s)
	}
}

func TestNextRetryDelayDefault(t *testing.T) {
	assert.Equal(t, defaultRetryDelay, NextRetryDelay(""))
}

func TestNextRetryDelayHonorsRetryAfter(t *testing.T) {
	assert.Equal(t, 10*time.Second, NextRetryDelay("10"))
}

func TestNextRetryDelayClampsLow(t *testing.T) {
	assert.Equal(t, minRetryDelay, NextRetryDelay("0"))
}

func TestNextRetryDelayClampsHigh(t *testing.T) {
	assert.Equal(t, maxRetryDelay, NextRetryDelay("99999"))
}

func TestNextRetryDelayIgnoresMalformedHeader(t *testing.T) {
	assert.Equal(t, defaultRetryDelay, NextRetryDelay("not-a-number"))
}
