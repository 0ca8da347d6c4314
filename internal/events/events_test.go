package events

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewAssignsIdentity(t *testing.T) {
	a := New(TypeJournalPosted, 4, map[string]any{"journal_id": 10})
	b := New(TypeJournalPosted, 4, nil)

	require.NotEmpty(t, a.ID)
	require.NotEqual(t, a.ID, b.ID)
	require.Equal(t, int64(4), a.TenantID)
	require.False(t, a.OccurredAt.IsZero())

	raw, err := json.Marshal(a)
	require.NoError(t, err)
	require.Contains(t, string(raw), `"type":"journal.posted"`)
	require.Contains(t, string(raw), `"journal_id":10`)
}

func TestRecorderKeepsOrder(t *testing.T) {
	var rec Recorder
	ctx := context.Background()
	require.NoError(t, rec.Publish(ctx, New(TypeJournalPosted, 1, nil)))
	require.NoError(t, rec.Publish(ctx, New(TypePeriodClosed, 1, nil)))
	require.NoError(t, Nop{}.Publish(ctx, New(TypeJournalVoided, 1, nil)))

	require.Equal(t, []string{TypeJournalPosted, TypePeriodClosed}, rec.Types())
	events := rec.Events()
	events[0].Type = "mutated"
	require.Equal(t, TypeJournalPosted, rec.Types()[0])
}

func TestSubjectUsesPrefix(t *testing.T) {
	p := &NATSPublisher{prefix: "ledger"}
	require.Equal(t, "ledger.settlement.recorded", p.Subject(TypeSettlementRecorded))
	var nilPublisher *NATSPublisher
	require.NoError(t, nilPublisher.Close())
}
