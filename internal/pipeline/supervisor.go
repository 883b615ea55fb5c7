package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/phrazzld/measure-hub/internal/events"
	"github.com/sethvargo/go-retry"
)

// DefaultRestartDelay is used when a supervisor is given no positive delay.
const DefaultRestartDelay = time.Second

// errReturned marks a Run that came back without error or cancellation.
var errReturned = errors.New("pipeline returned unexpectedly")

// Pipeline is a long-running process. Run blocks until ctx is cancelled or
// an error ends the current run.
type Pipeline interface {
	Name() string
	Run(ctx context.Context) error
}

// Supervisor runs one Pipeline in the background and restarts it after a
// fixed delay whenever it fails.
type Supervisor struct {
	pipeline     Pipeline
	restartDelay time.Duration
	emitter      events.EventEmitter
	logger       *slog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running atomic.Bool
}

// NewSupervisor creates a stopped supervisor for p. emitter may be nil.
func NewSupervisor(p Pipeline, restartDelay time.Duration, emitter events.EventEmitter, logger *slog.Logger) *Supervisor {
	if restartDelay <= 0 {
		restartDelay = DefaultRestartDelay
	}
	return &Supervisor{
		pipeline:     p,
		restartDelay: restartDelay,
		emitter:      emitter,
		logger:       logger.With("component", "supervisor", "pipeline", p.Name()),
	}
}

// Name returns the name of the supervised pipeline.
func (s *Supervisor) Name() string {
	return s.pipeline.Name()
}

// Running reports whether the pipeline is running or waiting to restart.
func (s *Supervisor) Running() bool {
	return s.running.Load()
}

// Start launches the pipeline. It returns false if it was already running.
func (s *Supervisor) Start() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running.Load() {
		return false
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done
	s.running.Store(true)

	go s.loop(ctx, done)
	return true
}

// Stop cancels the pipeline and waits for it to return. In-flight writes
// are not rolled back. It returns false if the pipeline was not running.
func (s *Supervisor) Stop() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel == nil {
		return false
	}
	s.cancel()
	<-s.done
	s.cancel = nil
	s.done = nil
	return true
}

func (s *Supervisor) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer s.running.Store(false)

	s.logger.InfoContext(ctx, "pipeline started")
	s.emit(events.PipelineStarted, nil)

	backoff := retry.NewConstant(s.restartDelay)
	_ = retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := s.pipeline.Run(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err == nil {
			err = errReturned
		}

		s.logger.ErrorContext(ctx, "pipeline stopped with error, restarting",
			"error", err,
			"restart_delay", s.restartDelay.String())
		s.emit(events.PipelineFailed, err)
		return retry.RetryableError(fmt.Errorf("%s: %w", s.pipeline.Name(), err))
	})

	s.logger.Info("pipeline stopped")
	s.emit(events.PipelineStopped, nil)
}

func (s *Supervisor) emit(eventType events.EventType, err error) {
	if s.emitter == nil {
		return
	}
	// Events outlive the pipeline context, so a stop can still be reported.
	event := events.NewPipelineEvent(s.pipeline.Name(), eventType, err)
	if emitErr := s.emitter.EmitEvent(context.Background(), event); emitErr != nil {
		s.logger.Warn("failed to emit pipeline event",
			"event_type", eventType,
			"error", emitErr)
	}
}
