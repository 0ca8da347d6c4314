package journals_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/events"
	"github.com/odyssey-erp/odyssey-ledger/internal/testing/ledgertest"
)

const (
	tenantID = int64(1)
	userID   = int64(7)
)

var now = time.Date(2025, 3, 15, 10, 30, 0, 0, time.UTC)

type fixture struct {
	store     *ledgertest.Store
	svc       *journals.Service
	published *events.Recorder
	cash      accounts.Account
	revenue   accounts.Account
	expense   accounts.Account
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	store := ledgertest.NewStore()
	rec := &events.Recorder{}
	svc := journals.NewService(store, nil, nil, rec, nil)
	svc.WithNow(func() time.Time { return now })
	return fixture{
		store:     store,
		svc:       svc,
		published: rec,
		cash:      store.AddAccount(tenantID, "1101", "Cash", accounts.AccountTypeAsset),
		revenue:   store.AddAccount(tenantID, "4101", "Sales", accounts.AccountTypeRevenue),
		expense:   store.AddAccount(tenantID, "6101", "Salaries", accounts.AccountTypeExpense),
	}
}

func amt(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func (f fixture) sale(value string) journals.CreateInput {
	return journals.CreateInput{
		TenantID:    tenantID,
		UserID:      userID,
		Description: "cash sale",
		Lines: []journals.LineInput{
			{AccountID: f.cash.ID, Debit: amt(value)},
			{AccountID: f.revenue.ID, Credit: amt(value)},
		},
	}
}

func TestCreateDraftJournalNumbersFirstOfYear(t *testing.T) {
	f := newFixture(t)

	entry, err := f.svc.Create(context.Background(), f.sale("100"))
	require.NoError(t, err)
	require.Equal(t, journals.JournalStatusDraft, entry.Status)
	require.Equal(t, "JU-2025-0001", entry.Number)
	require.Equal(t, journals.JournalTypeGeneral, entry.Type)
	require.True(t, amt("100").Equal(entry.TotalDebit))
	require.Len(t, entry.Lines, 2)
	require.Equal(t, "cash sale", entry.Lines[0].Description)
	require.Equal(t, time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC), entry.TransactionDate)
	require.Empty(t, f.store.AllLedgerEntries(tenantID))
	require.Empty(t, f.published.Types())

	next, err := f.svc.Create(context.Background(), f.sale("5"))
	require.NoError(t, err)
	require.Equal(t, "JU-2025-0002", next.Number)
}

func TestCreateRejectsUnbalancedJournal(t *testing.T) {
	f := newFixture(t)
	in := f.sale("100")
	in.Lines[1].Credit = amt("50")

	_, err := f.svc.Create(context.Background(), in)
	require.ErrorIs(t, err, shared.ErrNotBalanced)
	var ledgerErr *shared.Error
	require.True(t, errors.As(err, &ledgerErr))
	require.True(t, amt("50").Equal(ledgerErr.Details["difference"].(decimal.Decimal)))
	require.Empty(t, f.store.Journals(tenantID))
}

func TestCreateAcceptsRoundingWithinTolerance(t *testing.T) {
	f := newFixture(t)
	in := f.sale("100")
	in.Lines[1].Credit = amt("99.99")

	entry, err := f.svc.Create(context.Background(), in)
	require.NoError(t, err)
	require.True(t, amt("100").Equal(entry.TotalDebit))
	require.True(t, amt("99.99").Equal(entry.TotalCredit))
	require.Len(t, f.store.Journals(tenantID), 1)
}

func TestCreateRejectsLinesTheLedgerCannotStore(t *testing.T) {
	f := newFixture(t)
	cases := map[string]func(*journals.CreateInput){
		"empty line": func(in *journals.CreateInput) {
			in.Lines = append(in.Lines, journals.LineInput{AccountID: f.expense.ID})
		},
		"two sided line": func(in *journals.CreateInput) {
			in.Lines[0].Credit = amt("5")
			in.Lines[1].Credit = amt("95")
		},
		"sub cent debit": func(in *journals.CreateInput) {
			in.Lines[0].Debit = amt("100.004")
		},
		"sub cent credit": func(in *journals.CreateInput) {
			in.Lines[1].Credit = amt("99.995")
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			in := f.sale("100")
			mutate(&in)
			_, err := f.svc.Create(context.Background(), in)
			require.ErrorIs(t, err, shared.ErrValidation)
			require.Equal(t, shared.CodeValidation, shared.CodeOf(err))
		})
	}
	require.Empty(t, f.store.Journals(tenantID))
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t)
	cases := map[string]func(*journals.CreateInput){
		"single line":     func(in *journals.CreateInput) { in.Lines = in.Lines[:1] },
		"missing account": func(in *journals.CreateInput) { in.Lines[0].AccountID = 0 },
		"negative amount": func(in *journals.CreateInput) { in.Lines[0].Debit = amt("-1") },
		"missing user":    func(in *journals.CreateInput) { in.UserID = 0 },
		"unknown type":    func(in *journals.CreateInput) { in.Type = "barter" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			in := f.sale("10")
			mutate(&in)
			_, err := f.svc.Create(context.Background(), in)
			require.ErrorIs(t, err, shared.ErrValidation)
		})
	}
}

func TestCreateDoesNotMutateCallerLines(t *testing.T) {
	f := newFixture(t)
	in := f.sale("10")
	in.Lines[0].Description = ""

	_, err := f.svc.Create(context.Background(), in)
	require.NoError(t, err)
	require.Empty(t, in.Lines[0].Description)
}

func TestCreateRejectsClosedPeriod(t *testing.T) {
	f := newFixture(t)
	closed := f.store.AddPeriod(tenantID, "Feb 2025", time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 2, 28, 0, 0, 0, 0, time.UTC), periods.PeriodStatusClosed)
	in := f.sale("10")
	in.TransactionDate = time.Date(2025, 2, 10, 0, 0, 0, 0, time.UTC)

	_, err := f.svc.Create(context.Background(), in)
	require.ErrorIs(t, err, shared.ErrPeriodClosed)
	var ledgerErr *shared.Error
	require.True(t, errors.As(err, &ledgerErr))
	require.Equal(t, closed.ID, ledgerErr.Details["period_id"])
}

func TestPostWritesOneLedgerEntryPerLine(t *testing.T) {
	f := newFixture(t)
	draft, err := f.svc.Create(context.Background(), f.sale("100"))
	require.NoError(t, err)

	posted, err := f.svc.Post(context.Background(), draft.ID, tenantID, userID)
	require.NoError(t, err)
	require.Equal(t, journals.JournalStatusPosted, posted.Status)
	require.Equal(t, userID, *posted.PostedBy)
	require.Equal(t, now, *posted.PostedAt)

	rows := f.store.AllLedgerEntries(tenantID)
	require.Len(t, rows, 2)
	for i, row := range rows {
		require.Equal(t, draft.Lines[i].ID, row.JournalLineID)
		require.True(t, draft.Lines[i].Debit.Equal(row.Debit))
		require.True(t, draft.Lines[i].Credit.Equal(row.Credit))
		require.Equal(t, draft.TransactionDate, row.TransactionDate)
	}

	bal, side := f.store.Balance(tenantID, f.cash.ID)
	require.True(t, amt("100").Equal(bal))
	require.Equal(t, accounts.NormalBalanceDebit, side)
	bal, side = f.store.Balance(tenantID, f.revenue.ID)
	require.True(t, amt("100").Equal(bal))
	require.Equal(t, accounts.NormalBalanceCredit, side)
	require.Equal(t, []string{events.TypeJournalPosted}, f.published.Types())
}

func TestPostTwiceFailsWithoutDuplicateRows(t *testing.T) {
	f := newFixture(t)
	draft, err := f.svc.Create(context.Background(), f.sale("100"))
	require.NoError(t, err)
	_, err = f.svc.Post(context.Background(), draft.ID, tenantID, userID)
	require.NoError(t, err)

	_, err = f.svc.Post(context.Background(), draft.ID, tenantID, userID)
	require.ErrorIs(t, err, shared.ErrInvalidStatus)
	require.Len(t, f.store.AllLedgerEntries(tenantID), 2)
}

func TestPostRollsBackOnLedgerFailure(t *testing.T) {
	f := newFixture(t)
	draft, err := f.svc.Create(context.Background(), f.sale("100"))
	require.NoError(t, err)
	f.store.Fail("MarkJournalPosted", errors.New("disk full"))

	_, err = f.svc.Post(context.Background(), draft.ID, tenantID, userID)
	require.Error(t, err)
	require.Empty(t, f.store.AllLedgerEntries(tenantID))
	got, err := f.svc.Get(context.Background(), tenantID, draft.ID)
	require.NoError(t, err)
	require.Equal(t, journals.JournalStatusDraft, got.Status)
}

func TestRunningBalanceChainsAcrossJournals(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	in := f.sale("100")
	in.Post = true
	_, err := f.svc.Create(ctx, in)
	require.NoError(t, err)

	_, err = f.svc.Create(ctx, journals.CreateInput{
		TenantID: tenantID, UserID: userID, Type: journals.JournalTypeExpense, Description: "payroll", Post: true,
		Lines: []journals.LineInput{
			{AccountID: f.expense.ID, Debit: amt("150")},
			{AccountID: f.cash.ID, Credit: amt("150")},
		},
	})
	require.NoError(t, err)

	bal, side := f.store.Balance(tenantID, f.cash.ID)
	require.True(t, amt("50").Equal(bal))
	require.Equal(t, accounts.NormalBalanceCredit, side)

	_, err = f.svc.Create(ctx, func() journals.CreateInput { in := f.sale("80"); in.Post = true; return in }())
	require.NoError(t, err)
	bal, side = f.store.Balance(tenantID, f.cash.ID)
	require.True(t, amt("30").Equal(bal))
	require.Equal(t, accounts.NormalBalanceDebit, side)
}

func TestVoidPostsSymmetricReversal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	in := f.sale("250")
	in.Post = true
	original, err := f.svc.Create(ctx, in)
	require.NoError(t, err)

	res, err := f.svc.Void(ctx, journals.VoidInput{TenantID: tenantID, UserID: userID, JournalID: original.ID, Reason: "duplicate"})
	require.NoError(t, err)
	require.Equal(t, res.Reversal.ID, res.ReversalJournalID)
	require.Equal(t, journals.JournalStatusVoided, res.Original.Status)
	require.Equal(t, "duplicate", res.Original.VoidReason)
	require.Equal(t, journals.JournalTypeReversal, res.Reversal.Type)
	require.Equal(t, journals.JournalStatusPosted, res.Reversal.Status)
	require.Equal(t, "Reversal of "+original.Number+": duplicate", res.Reversal.Description)
	require.Equal(t, journals.ReferenceJournal, res.Reversal.ReferenceType)
	require.Equal(t, original.ID, *res.Reversal.ReferenceID)
	require.Equal(t, "Reversal: cash sale", res.Reversal.Lines[0].Description)

	for _, acct := range []int64{f.cash.ID, f.revenue.ID} {
		debit, credit := decimal.Zero, decimal.Zero
		for _, row := range f.store.LedgerEntries(tenantID, acct) {
			debit = debit.Add(row.Debit)
			credit = credit.Add(row.Credit)
		}
		require.True(t, debit.Equal(credit), "account %d nets %s/%s", acct, debit, credit)
		bal, _ := f.store.Balance(tenantID, acct)
		require.True(t, bal.IsZero())
	}

	stored, err := f.svc.Get(ctx, tenantID, original.ID)
	require.NoError(t, err)
	require.Equal(t, journals.JournalStatusVoided, stored.Status)
	require.Equal(t, []string{events.TypeJournalPosted, events.TypeJournalPosted, events.TypeJournalVoided}, f.published.Types())
}

func TestVoidReversalLinesFallBackToJournalNumber(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	in := f.sale("40")
	in.Description = ""
	in.Lines[1].Description = "walk-in"
	in.Post = true
	original, err := f.svc.Create(ctx, in)
	require.NoError(t, err)
	require.Empty(t, original.Lines[0].Description)

	res, err := f.svc.Void(ctx, journals.VoidInput{TenantID: tenantID, UserID: userID, JournalID: original.ID, Reason: "test"})
	require.NoError(t, err)
	require.Equal(t, "Reversal of "+original.Number, res.Reversal.Lines[0].Description)
	require.Equal(t, "Reversal: walk-in", res.Reversal.Lines[1].Description)
}

func TestVoidRequiresPostedJournalAndReason(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	draft, err := f.svc.Create(ctx, f.sale("10"))
	require.NoError(t, err)

	_, err = f.svc.Void(ctx, journals.VoidInput{TenantID: tenantID, UserID: userID, JournalID: draft.ID})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = f.svc.Void(ctx, journals.VoidInput{TenantID: tenantID, UserID: userID, JournalID: draft.ID, Reason: "typo"})
	require.ErrorIs(t, err, shared.ErrInvalidStatus)
	require.Len(t, f.store.Journals(tenantID), 1)
}

func TestOtherTenantsJournalsAreNotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	in := f.sale("10")
	in.Post = true
	entry, err := f.svc.Create(ctx, in)
	require.NoError(t, err)

	_, err = f.svc.Get(ctx, 2, entry.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)
	_, err = f.svc.Void(ctx, journals.VoidInput{TenantID: 2, UserID: userID, JournalID: entry.ID, Reason: "x"})
	require.ErrorIs(t, err, shared.ErrNotFound)
	_, err = f.svc.Post(ctx, entry.ID, 2, userID)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestCreateRejectsForeignTenantAccounts(t *testing.T) {
	f := newFixture(t)
	foreign := f.store.AddAccount(2, "1101", "Cash", accounts.AccountTypeAsset)
	for _, post := range []bool{false, true} {
		in := f.sale("10")
		in.Lines[0].AccountID = foreign.ID
		in.Post = post

		_, err := f.svc.Create(context.Background(), in)
		require.ErrorIs(t, err, shared.ErrValidation)
		var ledgerErr *shared.Error
		require.True(t, errors.As(err, &ledgerErr))
		require.Equal(t, []int64{foreign.ID}, ledgerErr.Details["account_ids"])
	}

	in := f.sale("10")
	in.Lines[1].AccountID = 4242
	_, err := f.svc.Create(context.Background(), in)
	require.ErrorIs(t, err, shared.ErrValidation)
	require.Empty(t, f.store.Journals(tenantID))
}

func TestConcurrentCreatesIssueDistinctNumbers(t *testing.T) {
	f := newFixture(t)
	var wg sync.WaitGroup
	numbers := make(chan string, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			in := f.sale("1")
			in.Post = true
			entry, err := f.svc.Create(context.Background(), in)
			if err == nil {
				numbers <- entry.Number
			}
		}()
	}
	wg.Wait()
	close(numbers)
	seen := map[string]bool{}
	for n := range numbers {
		require.False(t, seen[n], "duplicate number %s", n)
		seen[n] = true
	}
	require.Len(t, seen, 20)
	bal, _ := f.store.Balance(tenantID, f.cash.ID)
	require.True(t, amt("20").Equal(bal))
}

func TestListPaginatesNewestFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := f.svc.Create(ctx, f.sale("1"))
		require.NoError(t, err)
	}

	page, pagination, err := f.svc.List(ctx, journals.ListFilter{TenantID: tenantID, Page: 1, PerPage: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)
	require.Equal(t, 3, pagination.Total)
	require.Equal(t, "JU-2025-0003", page[0].Number)

	_, err = f.svc.Ledger(ctx, journals.LedgerFilter{TenantID: tenantID})
	require.ErrorIs(t, err, shared.ErrValidation)
}
