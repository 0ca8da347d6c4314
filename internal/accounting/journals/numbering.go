package journals

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var typePrefixes = map[JournalType]string{
	JournalTypeGeneral:      "JU",
	JournalTypeSales:        "JS",
	JournalTypePurchase:     "JP",
	JournalTypeExpense:      "JE",
	JournalTypeAdjustment:   "JA",
	JournalTypePayment:      "JB",
	JournalTypeReceipt:      "JR",
	JournalTypeDepreciation: "JD",
	JournalTypeRecurring:    "JC",
}

// Prefix returns the two-letter number prefix of a journal type. Types without their own series
// share the general one.
func Prefix(t JournalType) string {
	if p, ok := typePrefixes[t]; ok {
		return p
	}
	return typePrefixes[JournalTypeGeneral]
}

// NumberSource is the storage a Numberer reads from. Implementations must hold the sequence lock
// until the surrounding transaction ends.
type NumberSource interface {
	LockJournalNumbers(ctx context.Context, tenantID int64, prefix string, year int) error
	LastJournalNumber(ctx context.Context, tenantID int64, pattern string) (string, error)
}

// Numberer issues PREFIX-YEAR-NNNN journal numbers per tenant.
type Numberer struct {
	now func() time.Time
}

func NewNumberer() *Numberer {
	return &Numberer{now: time.Now}
}

// WithNow overrides the clock for deterministic tests.
func (n *Numberer) WithNow(now func() time.Time) {
	if now != nil {
		n.now = now
	}
}

// Next returns the number following the greatest existing one for the tenant, type and year of asOf.
// A zero asOf means now.
func (n *Numberer) Next(ctx context.Context, src NumberSource, tenantID int64, t JournalType, asOf time.Time) (string, error) {
	if asOf.IsZero() {
		asOf = n.now()
	}
	prefix := Prefix(t)
	year := asOf.Year()
	if err := src.LockJournalNumbers(ctx, tenantID, prefix, year); err != nil {
		return "", fmt.Errorf("lock journal numbers: %w", err)
	}
	pattern := fmt.Sprintf("%s-%d-", prefix, year)
	last, err := src.LastJournalNumber(ctx, tenantID, pattern)
	if err != nil {
		return "", fmt.Errorf("last journal number: %w", err)
	}
	return pattern + formatCounter(counterOf(last)+1), nil
}

func counterOf(number string) int {
	parts := strings.Split(number, "-")
	if len(parts) != 3 {
		return 0
	}
	v, err := strconv.Atoi(parts[2])
	if err != nil || v < 0 {
		return 0
	}
	return v
}

func formatCounter(v int) string {
	return fmt.Sprintf("%04d", v)
}

// CompareNumbers orders journal numbers of one series: longer counters sort after shorter ones,
// so 10000 follows 9999.
func CompareNumbers(a, b string) int {
	if len(a) != len(b) {
		if len(a) < len(b) {
			return -1
		}
		return 1
	}
	return strings.Compare(a, b)
}
