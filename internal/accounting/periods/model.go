package periods

import (
	"time"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// PeriodStatus enumerates valid period states.
type PeriodStatus string

const (
	PeriodStatusOpen   PeriodStatus = "open"
	PeriodStatusClosed PeriodStatus = "closed"
)

// Period represents a fiscal period window. Closing is terminal.
type Period struct {
	ID        int64        `json:"id"`
	TenantID  int64        `json:"tenant_id"`
	Name      string       `json:"name"`
	StartDate time.Time    `json:"start_date"`
	EndDate   time.Time    `json:"end_date"`
	Status    PeriodStatus `json:"status"`
	ClosedAt  *time.Time   `json:"closed_at,omitempty"`
	ClosedBy  *int64       `json:"closed_by,omitempty"`
	Notes     string       `json:"notes,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// Contains reports whether date falls inside the period, bounds included.
func (p Period) Contains(date time.Time) bool {
	return shared.Within(date, p.StartDate, p.EndDate)
}

// Overlaps reports whether [start, end] intersects the period.
func (p Period) Overlaps(start, end time.Time) bool {
	return !shared.Day(start).After(shared.Day(p.EndDate)) && !shared.Day(end).Before(shared.Day(p.StartDate))
}
