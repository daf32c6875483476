package audit

import (
	"context"
	"sync"
)

// MemoryRecorder is a thread-safe in-memory Recorder for testing and
// single-process deployments.
type MemoryRecorder struct {
	mu     sync.RWMutex
	events []*Event
}

// NewMemoryRecorder creates an empty MemoryRecorder.
func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{}
}

// Record implements Recorder.
func (m *MemoryRecorder) Record(_ context.Context, ev *Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}

// Events returns a snapshot of everything recorded so far.
func (m *MemoryRecorder) Events() []*Event {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Event, len(m.events))
	copy(out, m.events)
	return out
}
