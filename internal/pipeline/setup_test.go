package pipeline

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithSetup_RetriesUntilPrepared(t *testing.T) {
	t.Parallel()

	var prepares atomic.Int32
	inner := &fakePipeline{RunFn: func(ctx context.Context, _ int32) error {
		<-ctx.Done()
		return ctx.Err()
	}}
	p := WithSetup(inner, func(context.Context) error {
		if prepares.Add(1) <= 2 {
			return errors.New("task store unavailable")
		}
		return nil
	})
	assert.Equal(t, "fake", p.Name())

	emitter, recorder := newRecordingEmitter()
	s := NewSupervisor(p, 10*time.Millisecond, emitter, discardLogger())
	require.True(t, s.Start())

	require.Eventually(t, func() bool { return inner.runs.Load() == 1 }, 2*time.Second, 5*time.Millisecond)
	require.True(t, s.Stop())

	assert.Equal(t, int32(3), prepares.Load())
	status, ok := recorder.Status("fake")
	require.True(t, ok)
	assert.Equal(t, 2, status.Failures)
	assert.Contains(t, status.LastError, "setup of fake failed")
}

func TestWithSetup_PreparesOnce(t *testing.T) {
	t.Parallel()

	var prepares atomic.Int32
	inner := &fakePipeline{RunFn: func(context.Context, int32) error {
		return errors.New("receive failed")
	}}
	p := WithSetup(inner, func(context.Context) error {
		prepares.Add(1)
		return nil
	})

	for range 3 {
		assert.Error(t, p.Run(context.Background()))
	}
	assert.Equal(t, int32(1), prepares.Load())
	assert.Equal(t, int32(3), inner.runs.Load())
}
