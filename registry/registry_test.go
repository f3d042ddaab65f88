package registry

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterAndComplete(t *testing.T) {
	r := New()
	var got []interface{}
	err := r.Register("req-1", []string{"e1", "e2"}, func(handles []interface{}) {
		got = handles
	})
	require.NoError(t, err)

	r.AddHandle("req-1", "handle-a")
	r.AddHandle("req-1", "handle-b")

	r.Complete(context.Background(), "req-1")
	assert.Equal(t, []interface{}{"handle-a", "handle-b"}, got)
	assert.Equal(t, 0, r.Pending())
}

func TestCompleteInvokedExactlyOnce(t *testing.T) {
	r := New()
	calls := 0
	err := r.Register("req-1", nil, func(handles []interface{}) {
		calls++
	})
	require.NoError(t, err)

	r.Complete(context.Background(), "req-1")
	r.Complete(context.Background(), "req-1")
	assert.Equal(t, 1, calls)
}

func TestCompleteWithNoHandlesStillInvokesHandler(t *testing.T) {
	r := New()
	invoked := false
	err := r.Register("req-1", []string{"e1"}, func(handles []interface{}) {
		invoked = true
		assert.Empty(t, handles)
	})
	require.NoError(t, err)

	r.Complete(context.Background(), "req-1")
	assert.True(t, invoked)
}

func TestRegisterDuplicateErrors(t *testing.T) {
	r := New()
	require.NoError(t, r.Register("req-1", nil, nil))
	err := r.Register("req-1", nil, nil)
	assert.Error(t, err)
}

func TestCompletionHandlerPanicRecovered(t *testing.T) {
	r := New()
	err := r.Register("req-1", nil, func(handles []interface{}) {
		panic("boom")
	})
	require.NoError(t, err)

	assert.NotPanics(t, func() {
		r.Complete(context.Background(), "req-1")
	})
	assert.Equal(t, 0, r.Pending())
}

func TestAddHandleForUnregisteredRequestIsNoop(t *testing.T) {
	r := New()
	assert.NotPanics(t, func() {
		r.AddHandle("missing", "handle")
	})
}

func TestCompleteForUnregisteredRequestIsNoop(t *testing.T) {
	r := New()
	assert.NotPanics(t, func() {
		r.Complete(context.Background(), "missing")
	})
}

func TestSourceEventIDs(t *testing.T) {
	r := New()
	require.NoError(t, r.Register("req-1", []string{"e1", "e2"}, nil))

	ids, ok := r.SourceEventIDs("req-1")
	require.True(t, ok)
	assert.Equal(t, []string{"e1", "e2"}, ids)

	_, ok = r.SourceEventIDs("missing")
	assert.False(t, ok)
}

func TestConcurrentRegisterAddCompleteDoesNotRace(t *testing.T) {
	r := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := string(rune('a' + i%26))
			_ = r.Register(id, nil, func(handles []interface{}) {})
			r.AddHandle(id, "h")
			r.Complete(context.Background(), id)
		}(i)
	}
	wg.Wait()
}
