package mocks

import (
	"context"
	"iter"
	"sync"

	"github.com/phrazzld/measure-hub/internal/fhir"
	"github.com/phrazzld/measure-hub/internal/messaging"
)

// MockBroker implements messaging.Broker and records sent messages.
type MockBroker struct {
	mu   sync.Mutex
	sent []*fhir.Bundle

	SendFn    func(ctx context.Context, msg *fhir.Bundle) error
	ReceiveFn func(ctx context.Context, pred messaging.Predicate) iter.Seq2[*messaging.Record, error]
}

// Send records msg, or delegates to SendFn when set. Only successfully sent
// messages are recorded.
func (m *MockBroker) Send(ctx context.Context, msg *fhir.Bundle) error {
	if m.SendFn != nil {
		if err := m.SendFn(ctx, msg); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return nil
}

// Receive delegates to ReceiveFn, yielding nothing by default.
func (m *MockBroker) Receive(ctx context.Context, pred messaging.Predicate) iter.Seq2[*messaging.Record, error] {
	if m.ReceiveFn != nil {
		return m.ReceiveFn(ctx, pred)
	}
	return func(func(*messaging.Record, error) bool) {}
}

// Sent returns the recorded messages.
func (m *MockBroker) Sent() []*fhir.Bundle {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*fhir.Bundle(nil), m.sent...)
}

var _ messaging.Broker = (*MockBroker)(nil)
