// Package events publishes ledger domain events for downstream consumers.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	TypeJournalPosted      = "journal.posted"
	TypeJournalVoided      = "journal.voided"
	TypePeriodClosed       = "period.closed"
	TypeSettlementRecorded = "settlement.recorded"
)

// Event is the envelope published after a ledger transaction commits.
type Event struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	TenantID   int64     `json:"tenant_id"`
	OccurredAt time.Time `json:"occurred_at"`
	Data       any       `json:"data"`
}

// New builds an event with a fresh id.
func New(eventType string, tenantID int64, data any) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		TenantID:   tenantID,
		OccurredAt: time.Now().UTC(),
		Data:       data,
	}
}

// Publisher delivers events. Publishing is best effort: the ledger is the source of truth.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Nop discards events.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

// Types returns the recorded event types in publish order.
func (r *Recorder) Types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

// Events returns a copy of everything recorded.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}
