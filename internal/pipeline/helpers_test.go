package pipeline

import (
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/phrazzld/measure-hub/internal/fhir"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeClock hands out strictly increasing instants one millisecond apart.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Millisecond)
	return c.now
}

func readyTask(measureURL string) *fhir.Task {
	return fhir.NewEvaluateMeasureTask(measureURL, fhir.Correlation{
		InboundMessageID:    "msg-1",
		ResponseDestination: "dest-1",
	}, time.Now())
}
