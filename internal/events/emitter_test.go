package events

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInMemoryEventEmitter(t *testing.T) {
	// Create a minimal logger that discards output
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("emit event with no handlers", func(t *testing.T) {
		emitter := NewInMemoryEventEmitter(logger)

		err := emitter.EmitEvent(context.Background(), NewPipelineEvent("inbound", PipelineStarted, nil))
		assert.NoError(t, err)
	})

	t.Run("emit event with successful handlers", func(t *testing.T) {
		emitter := NewInMemoryEventEmitter(logger)

		handler1 := &MockEventHandler{}
		recorder := NewStatusRecorder()
		emitter.RegisterHandler(handler1)
		emitter.RegisterHandler(recorder)

		event := NewPipelineEvent("inbound", PipelineStarted, nil)
		err := emitter.EmitEvent(context.Background(), event)
		assert.NoError(t, err)

		assert.Equal(t, 1, handler1.HandledCount)
		assert.Equal(t, event, handler1.LastEvent)
		s, ok := recorder.Status("inbound")
		assert.True(t, ok)
		assert.Equal(t, PipelineStarted, s.LastEvent)
	})

	t.Run("emit event with failing handler", func(t *testing.T) {
		emitter := NewInMemoryEventEmitter(logger)

		// Create handlers - one failing, one successful
		failingHandler := &MockEventHandler{
			HandlerError: errors.New("handler error"),
		}
		successHandler := &MockEventHandler{}

		emitter.RegisterHandler(failingHandler)
		emitter.RegisterHandler(successHandler)

		// Should return an error from the failing handler
		err := emitter.EmitEvent(context.Background(), NewPipelineEvent("inbound", PipelineStopped, nil))
		assert.Error(t, err)
		assert.Equal(t, "handler error", err.Error())

		// Both handlers should still have received the event
		assert.Equal(t, 1, successHandler.HandledCount)
		assert.Equal(t, 1, failingHandler.HandledCount)
	})
}
