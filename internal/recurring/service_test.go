package recurring_test

import (
	"context"
	"sort"
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
	"github.com/odyssey-erp/odyssey-ledger/internal/recurring"
	"github.com/odyssey-erp/odyssey-ledger/internal/testing/ledgertest"
)

const (
	tenantID = int64(9)
	userID   = int64(30)
)

var now = time.Date(2025, 5, 20, 8, 0, 0, 0, time.UTC)

type fakeRepo struct {
	mu        sync.Mutex
	store     *ledgertest.Store
	templates map[int64]recurring.Template
	runs      []recurring.Run
}

func (r *fakeRepo) WithTx(ctx context.Context, fn func(context.Context, recurring.TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	templates := make(map[int64]recurring.Template, len(r.templates))
	for k, v := range r.templates {
		templates[k] = v
	}
	runs := append([]recurring.Run(nil), r.runs...)
	err := r.store.Run(ctx, func(tx *ledgertest.Tx) error {
		return fn(ctx, &fakeTx{Tx: tx, repo: r})
	})
	if err != nil {
		r.templates = templates
		r.runs = runs
	}
	return err
}

func derive(t recurring.Template) recurring.Template {
	t.NextRunDate = t.Schedule().NextRunDate()
	return t
}

func (r *fakeRepo) GetTemplate(_ context.Context, tenant, id int64) (recurring.Template, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.templates[id]
	if !ok || t.TenantID != tenant {
		return recurring.Template{}, shared.NotFound("recurring template")
	}
	return derive(t), nil
}

func (r *fakeRepo) ListTemplates(_ context.Context, tenant int64, activeOnly bool) ([]recurring.Template, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []recurring.Template
	for _, t := range r.templates {
		if t.TenantID != tenant || (activeOnly && !t.IsActive) {
			continue
		}
		out = append(out, derive(t))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeRepo) ListRuns(_ context.Context, tenant, templateID int64) ([]recurring.Run, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []recurring.Run
	for _, run := range r.runs {
		if run.TenantID == tenant && run.TemplateID == templateID {
			out = append(out, run)
		}
	}
	return out, nil
}

func (r *fakeRepo) ListTenants(context.Context) ([]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	seen := map[int64]bool{}
	var out []int64
	for _, t := range r.templates {
		if t.IsActive && !seen[t.TenantID] {
			seen[t.TenantID] = true
			out = append(out, t.TenantID)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

type fakeTx struct {
	*ledgertest.Tx
	repo *fakeRepo
}

func (t *fakeTx) InsertTemplate(_ context.Context, tmpl recurring.Template) (recurring.Template, error) {
	tmpl.ID = t.NextID()
	tmpl.CreatedAt = now
	tmpl.UpdatedAt = now
	t.repo.templates[tmpl.ID] = tmpl
	return derive(tmpl), nil
}

func (t *fakeTx) GetTemplateForUpdate(_ context.Context, tenant, id int64) (recurring.Template, error) {
	tmpl, ok := t.repo.templates[id]
	if !ok || tmpl.TenantID != tenant {
		return recurring.Template{}, shared.NotFound("recurring template")
	}
	return derive(tmpl), nil
}

func (t *fakeTx) UpdateTemplate(_ context.Context, tmpl recurring.Template) error {
	t.repo.templates[tmpl.ID] = tmpl
	return nil
}

func (t *fakeTx) DeleteTemplate(_ context.Context, tenant, id int64) error {
	tmpl, ok := t.repo.templates[id]
	if !ok || tmpl.TenantID != tenant {
		return shared.NotFound("recurring template")
	}
	delete(t.repo.templates, id)
	return nil
}

func (t *fakeTx) InsertRun(_ context.Context, run recurring.Run) (recurring.Run, error) {
	for _, existing := range t.repo.runs {
		if existing.TemplateID == run.TemplateID && existing.RunDate.Equal(run.RunDate) {
			return recurring.Run{}, shared.ErrDuplicateRun
		}
	}
	run.ID = t.NextID()
	run.CreatedAt = now
	t.repo.runs = append(t.repo.runs, run)
	return run, nil
}

type fixture struct {
	store     *ledgertest.Store
	repo      *fakeRepo
	svc       *recurring.Service
	published *events.Recorder
	rent      accounts.Account
	cash      accounts.Account
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	store := ledgertest.NewStore()
	repo := &fakeRepo{store: store, templates: map[int64]recurring.Template{}}
	rec := &events.Recorder{}
	journalSvc := journals.NewService(store, nil, nil, nil, nil)
	journalSvc.WithNow(func() time.Time { return now })
	svc := recurring.NewService(repo, recurring.Config{Journals: journalSvc, Publisher: rec})
	svc.WithNow(func() time.Time { return now })
	return fixture{
		store:     store,
		repo:      repo,
		svc:       svc,
		published: rec,
		rent:      store.AddAccount(tenantID, "6201", "Rent Expense", accounts.AccountTypeExpense),
		cash:      store.AddAccount(tenantID, "1101", "Cash", accounts.AccountTypeAsset),
	}
}

func (f fixture) rentLines(amount int64) []recurring.Line {
	return []recurring.Line{
		{AccountID: f.rent.ID, Description: "Office rent", Debit: decimal.NewFromInt(amount)},
		{AccountID: f.cash.ID, Description: "Office rent", Credit: decimal.NewFromInt(amount)},
	}
}

func (f fixture) create(t *testing.T, in recurring.CreateInput) recurring.Template {
	t.Helper()
	in.TenantID = tenantID
	in.UserID = userID
	tmpl, err := f.svc.Create(context.Background(), in)
	require.NoError(t, err)
	return tmpl
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestCreateValidatesTemplate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	base := recurring.CreateInput{TenantID: tenantID, UserID: userID, Name: "Rent", Frequency: recurring.FrequencyMonthly, Lines: f.rentLines(100)}

	noName := base
	noName.Name = "  "
	_, err := f.svc.Create(ctx, noName)
	require.ErrorIs(t, err, shared.ErrValidation)

	badFreq := base
	badFreq.Frequency = "hourly"
	_, err = f.svc.Create(ctx, badFreq)
	require.ErrorIs(t, err, shared.ErrValidation)

	oneLine := base
	oneLine.Lines = oneLine.Lines[:1]
	_, err = f.svc.Create(ctx, oneLine)
	require.ErrorIs(t, err, shared.ErrValidation)

	unbalanced := base
	unbalanced.Lines = []recurring.Line{
		{AccountID: f.rent.ID, Debit: decimal.NewFromInt(100)},
		{AccountID: f.cash.ID, Credit: decimal.NewFromInt(90)},
	}
	_, err = f.svc.Create(ctx, unbalanced)
	require.ErrorIs(t, err, shared.ErrNotBalanced)

	emptyLine := base
	emptyLine.Lines = append(f.rentLines(100), recurring.Line{AccountID: f.cash.ID})
	_, err = f.svc.Create(ctx, emptyLine)
	require.ErrorIs(t, err, shared.ErrValidation)

	subCent := base
	subCent.Lines = []recurring.Line{
		{AccountID: f.rent.ID, Debit: decimal.RequireFromString("100.004")},
		{AccountID: f.cash.ID, Credit: decimal.NewFromInt(100)},
	}
	_, err = f.svc.Create(ctx, subCent)
	require.ErrorIs(t, err, shared.ErrValidation)

	tmpl, err := f.svc.Create(ctx, base)
	require.NoError(t, err)
	require.True(t, tmpl.IsActive)
	require.Equal(t, day(2025, 5, 20), tmpl.StartDate)
	require.Equal(t, day(2025, 6, 20), tmpl.NextRunDate)
}

func TestTemplatesAreTenantScoped(t *testing.T) {
	f := newFixture(t)
	tmpl := f.create(t, recurring.CreateInput{Name: "Rent", Frequency: recurring.FrequencyMonthly, Lines: f.rentLines(100)})

	_, err := f.svc.Get(context.Background(), tenantID+1, tmpl.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)
	list, err := f.svc.List(context.Background(), tenantID+1)
	require.NoError(t, err)
	require.Empty(t, list)
	_, err = f.svc.Execute(context.Background(), recurring.ExecuteInput{TenantID: tenantID + 1, UserID: userID, TemplateID: tmpl.ID})
	require.ErrorIs(t, err, shared.ErrNotFound)
	require.ErrorIs(t, f.svc.Delete(context.Background(), tenantID+1, userID, tmpl.ID), shared.ErrNotFound)
}

func TestExecuteCreatesJournalAndAdvancesSchedule(t *testing.T) {
	f := newFixture(t)
	tmpl := f.create(t, recurring.CreateInput{
		Name:        "Rent",
		Description: "Head office",
		Frequency:   recurring.FrequencyMonthly,
		DayOfMonth:  intPtr(1),
		StartDate:   day(2025, 4, 1),
		AutoPost:    true,
		Lines:       f.rentLines(1500),
	})
	require.Equal(t, day(2025, 5, 1), tmpl.NextRunDate)

	res, err := f.svc.Execute(context.Background(), recurring.ExecuteInput{TenantID: tenantID, UserID: userID, TemplateID: tmpl.ID})
	require.NoError(t, err)

	require.Equal(t, journals.JournalTypeRecurring, res.Journal.Type)
	require.Equal(t, "JC-2025-0001", res.Journal.Number)
	require.Equal(t, "[Recurring] Rent: Head office", res.Journal.Description)
	require.Equal(t, journals.JournalStatusPosted, res.Journal.Status)
	require.Equal(t, journals.ReferenceRecurringTemplate, res.Journal.ReferenceType)
	require.Equal(t, tmpl.ID, *res.Journal.ReferenceID)
	require.Equal(t, day(2025, 5, 1), res.Journal.TransactionDate)
	require.Equal(t, day(2025, 5, 1), res.Run.RunDate)
	require.Equal(t, day(2025, 6, 1), res.Template.NextRunDate)

	got, err := f.svc.Get(context.Background(), tenantID, tmpl.ID)
	require.NoError(t, err)
	require.Equal(t, day(2025, 5, 1), *got.LastRunDate)
	require.Equal(t, day(2025, 6, 1), got.NextRunDate)

	require.Len(t, f.store.LedgerEntries(tenantID, f.rent.ID), 1)
	require.Equal(t, []string{events.TypeJournalPosted}, f.published.Types())

	runs, err := f.svc.Runs(context.Background(), tenantID, tmpl.ID)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	require.Equal(t, res.Journal.ID, runs[0].JournalID)
}

func TestExecuteWithoutAutoPostLeavesDraft(t *testing.T) {
	f := newFixture(t)
	tmpl := f.create(t, recurring.CreateInput{Name: "Rent", Frequency: recurring.FrequencyDaily, StartDate: day(2025, 5, 18), Lines: f.rentLines(10)})

	res, err := f.svc.Execute(context.Background(), recurring.ExecuteInput{TenantID: tenantID, UserID: userID, TemplateID: tmpl.ID})
	require.NoError(t, err)
	require.Equal(t, journals.JournalStatusDraft, res.Journal.Status)
	require.Empty(t, f.store.AllLedgerEntries(tenantID))
	require.Empty(t, f.published.Types())
}

func TestExecuteRejectsDuplicateRunDate(t *testing.T) {
	f := newFixture(t)
	tmpl := f.create(t, recurring.CreateInput{Name: "Rent", Frequency: recurring.FrequencyMonthly, StartDate: day(2025, 4, 1), Lines: f.rentLines(10)})

	in := recurring.ExecuteInput{TenantID: tenantID, UserID: userID, TemplateID: tmpl.ID, RunDate: day(2025, 5, 1)}
	_, err := f.svc.Execute(context.Background(), in)
	require.NoError(t, err)
	_, err = f.svc.Execute(context.Background(), in)
	require.ErrorIs(t, err, shared.ErrDuplicateRun)
	require.Len(t, f.store.Journals(tenantID), 1)
}

func TestExecuteIntoClosedPeriodRollsBack(t *testing.T) {
	f := newFixture(t)
	f.store.AddPeriod(tenantID, "April 2025", day(2025, 4, 1), day(2025, 4, 30), periods.PeriodStatusClosed)
	tmpl := f.create(t, recurring.CreateInput{Name: "Rent", Frequency: recurring.FrequencyDaily, StartDate: day(2025, 4, 10), Lines: f.rentLines(10)})

	_, err := f.svc.Execute(context.Background(), recurring.ExecuteInput{TenantID: tenantID, UserID: userID, TemplateID: tmpl.ID})
	require.ErrorIs(t, err, shared.ErrPeriodClosed)

	got, err := f.svc.Get(context.Background(), tenantID, tmpl.ID)
	require.NoError(t, err)
	require.Nil(t, got.LastRunDate)
	require.Empty(t, f.store.Journals(tenantID))
}

func TestProcessDueRunsOnlyDueActiveTemplates(t *testing.T) {
	f := newFixture(t)
	due := f.create(t, recurring.CreateInput{Name: "Due", Frequency: recurring.FrequencyMonthly, StartDate: day(2025, 4, 20), AutoPost: true, Lines: f.rentLines(100)})
	f.create(t, recurring.CreateInput{Name: "Later", Frequency: recurring.FrequencyMonthly, StartDate: day(2025, 5, 1), Lines: f.rentLines(100)})
	paused := f.create(t, recurring.CreateInput{Name: "Paused", Frequency: recurring.FrequencyDaily, StartDate: day(2025, 5, 1), Lines: f.rentLines(100)})
	inactive := false
	_, err := f.svc.Update(context.Background(), recurring.UpdateInput{TenantID: tenantID, UserID: userID, TemplateID: paused.ID, IsActive: &inactive})
	require.NoError(t, err)

	res, err := f.svc.ProcessDue(context.Background(), tenantID, now)
	require.NoError(t, err)
	require.Equal(t, 1, res.Processed)
	require.Equal(t, 0, res.Failed)
	require.Equal(t, due.ID, res.Results[0].Template.ID)
	require.Equal(t, day(2025, 5, 20), res.Results[0].Run.RunDate)

	// Nothing is due again until the next month.
	res, err = f.svc.ProcessDue(context.Background(), tenantID, now)
	require.NoError(t, err)
	require.Zero(t, res.Processed)
}

func TestProcessDueReportsFailuresAndContinues(t *testing.T) {
	f := newFixture(t)
	f.store.AddPeriod(tenantID, "May 2025", day(2025, 5, 1), day(2025, 5, 31), periods.PeriodStatusClosed)
	f.create(t, recurring.CreateInput{Name: "Blocked", Frequency: recurring.FrequencyDaily, StartDate: day(2025, 5, 10), Lines: f.rentLines(10)})
	f.create(t, recurring.CreateInput{Name: "Fine", Frequency: recurring.FrequencyMonthly, StartDate: day(2025, 4, 15), Lines: f.rentLines(10)})

	res, err := f.svc.ProcessAllDue(context.Background(), day(2025, 5, 31))
	require.NoError(t, err)
	// Both next runs fall in closed May.
	require.Equal(t, 0, res.Processed)
	require.Equal(t, 2, res.Failed)
	require.Equal(t, "Blocked", res.Errors[0].TemplateName)
}

func TestUpdateRederivesNextRun(t *testing.T) {
	f := newFixture(t)
	tmpl := f.create(t, recurring.CreateInput{Name: "Rent", Frequency: recurring.FrequencyMonthly, StartDate: day(2025, 5, 1), Lines: f.rentLines(10)})
	require.Equal(t, day(2025, 6, 1), tmpl.NextRunDate)

	weekly := recurring.FrequencyWeekly
	updated, err := f.svc.Update(context.Background(), recurring.UpdateInput{TenantID: tenantID, UserID: userID, TemplateID: tmpl.ID, Frequency: &weekly})
	require.NoError(t, err)
	require.Equal(t, day(2025, 5, 8), updated.NextRunDate)

	_, err = f.svc.Update(context.Background(), recurring.UpdateInput{TenantID: tenantID, UserID: userID, TemplateID: tmpl.ID, Lines: f.rentLines(10)[:1]})
	require.ErrorIs(t, err, shared.ErrValidation)

	// frequency-only changes keep the configured days
	pinned := f.create(t, recurring.CreateInput{Name: "Payroll", Frequency: recurring.FrequencyMonthly, DayOfMonth: intPtr(15), DayOfWeek: intPtr(1), StartDate: day(2025, 5, 1), Lines: f.rentLines(10)})
	require.Equal(t, day(2025, 6, 15), pinned.NextRunDate)

	updated, err = f.svc.Update(context.Background(), recurring.UpdateInput{TenantID: tenantID, UserID: userID, TemplateID: pinned.ID, Frequency: &weekly})
	require.NoError(t, err)
	require.Equal(t, 15, *updated.DayOfMonth)
	require.Equal(t, 1, *updated.DayOfWeek)
	require.Equal(t, day(2025, 5, 12), updated.NextRunDate)

	monthly := recurring.FrequencyMonthly
	updated, err = f.svc.Update(context.Background(), recurring.UpdateInput{TenantID: tenantID, UserID: userID, TemplateID: pinned.ID, Frequency: &monthly})
	require.NoError(t, err)
	stored, err := f.svc.Get(context.Background(), tenantID, pinned.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.DayOfMonth)
	require.Equal(t, 15, *stored.DayOfMonth)
	require.Equal(t, day(2025, 6, 15), stored.NextRunDate)
	require.Equal(t, stored.NextRunDate, updated.NextRunDate)
}

func TestUpcomingSortsWithinWindow(t *testing.T) {
	f := newFixture(t)
	f.create(t, recurring.CreateInput{Name: "Quarterly", Frequency: recurring.FrequencyQuarterly, StartDate: day(2025, 5, 1), Lines: f.rentLines(300)})
	f.create(t, recurring.CreateInput{Name: "Weekly", Frequency: recurring.FrequencyWeekly, StartDate: day(2025, 5, 19), Lines: f.rentLines(70)})
	f.create(t, recurring.CreateInput{Name: "Monthly", Frequency: recurring.FrequencyMonthly, StartDate: day(2025, 5, 10), Lines: f.rentLines(500)})

	items, err := f.svc.Upcoming(context.Background(), tenantID, 30)
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.Equal(t, "Weekly", items[0].Name)
	require.Equal(t, day(2025, 5, 26), items[0].NextRunDate)
	require.True(t, items[0].TotalAmount.Equal(decimal.NewFromInt(70)))
	require.Equal(t, "Monthly", items[1].Name)
}

func TestDeleteRemovesTemplate(t *testing.T) {
	f := newFixture(t)
	tmpl := f.create(t, recurring.CreateInput{Name: "Rent", Frequency: recurring.FrequencyMonthly, Lines: f.rentLines(10)})
	require.NoError(t, f.svc.Delete(context.Background(), tenantID, userID, tmpl.ID))
	_, err := f.svc.Get(context.Background(), tenantID, tmpl.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func intPtr(v int) *int { return &v }
