// Package watermark keeps the high-water marks that bound which tasks a
// sweep considers new.
package watermark

import (
	"context"
	"sync"
	"time"
)

// Store holds named watermarks. A watermark only ever moves forward.
type Store interface {
	// Load returns the watermark called name. ok is false when none was
	// saved yet.
	Load(ctx context.Context, name string) (at time.Time, ok bool, err error)

	// Advance moves the watermark called name to at. Earlier instants than
	// the stored one are ignored.
	Advance(ctx context.Context, name string, at time.Time) error
}

// Memory is a Store that lives as long as the process.
type Memory struct {
	mu    sync.Mutex
	marks map[string]time.Time
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{marks: make(map[string]time.Time)}
}

// Load implements Store.
func (m *Memory) Load(_ context.Context, name string) (time.Time, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	at, ok := m.marks[name]
	return at, ok, nil
}

// Advance implements Store.
func (m *Memory) Advance(_ context.Context, name string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if current, ok := m.marks[name]; ok && !at.After(current) {
		return nil
	}
	m.marks[name] = at
	return nil
}

var _ Store = (*Memory)(nil)
