// Package store records accepted leads. Recording is best-effort: the webhook
// pipeline logs a failed Record and carries on with notification.
package store

import (
	"context"
	"sync"

	"github.com/example/lead-intake-service/internal/models"
)

// Recorder persists or forwards a lead.
type Recorder interface {
	Record(ctx context.Context, lead models.LeadRecord) error
}

// Checker is implemented by recorders that can report backend health.
type Checker interface {
	Check(ctx context.Context) error
}

// Memory keeps leads in process memory. It is append-only and unbounded, so
// it suits development and tests only.
type Memory struct {
	mu    sync.RWMutex
	leads []models.LeadRecord
}

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{}
}

// Record appends lead.
func (m *Memory) Record(_ context.Context, lead models.LeadRecord) error {
	m.mu.Lock()
	m.leads = append(m.leads, lead)
	m.mu.Unlock()
	return nil
}

// Leads returns a copy of the recorded leads in arrival order.
func (m *Memory) Leads() []models.LeadRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.LeadRecord, len(m.leads))
	copy(out, m.leads)
	return out
}

// Len reports the number of recorded leads.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.leads)
}

// Nop discards every lead.
type Nop struct{}

// Record implements Recorder.
func (Nop) Record(context.Context, models.LeadRecord) error { return nil }
