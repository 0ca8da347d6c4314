// Package ledgertest provides an in-memory ledger store for package tests. Every Run is
// serialized and rolled back on error, mirroring a Postgres transaction.
package ledgertest

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

type state struct {
	nextID   int64
	accounts map[int64]accounts.Account
	journals map[int64]journals.JournalEntry
	ledger   []journals.LedgerEntry
	periods  map[int64]periods.Period
}

func (s state) clone() state {
	out := state{
		nextID:   s.nextID,
		accounts: make(map[int64]accounts.Account, len(s.accounts)),
		journals: make(map[int64]journals.JournalEntry, len(s.journals)),
		ledger:   append([]journals.LedgerEntry(nil), s.ledger...),
		periods:  make(map[int64]periods.Period, len(s.periods)),
	}
	for k, v := range s.accounts {
		out.accounts[k] = v
	}
	for k, v := range s.journals {
		out.journals[k] = v
	}
	for k, v := range s.periods {
		out.periods[k] = v
	}
	return out
}

// Store is the shared in-memory database.
type Store struct {
	mu     sync.Mutex
	st     state
	faults map[string]error
	now    func() time.Time
}

func NewStore() *Store {
	return &Store{
		st: state{
			accounts: map[int64]accounts.Account{},
			journals: map[int64]journals.JournalEntry{},
			periods:  map[int64]periods.Period{},
		},
		faults: map[string]error{},
		now:    time.Now,
	}
}

// Fail makes the named Tx operation return err until cleared with a nil err.
func (s *Store) Fail(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.faults, op)
		return
	}
	s.faults[op] = err
}

// Run executes fn as one transaction.
func (s *Store) Run(ctx context.Context, fn func(*Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := s.st.clone()
	if err := fn(&Tx{s: s}); err != nil {
		s.st = snapshot
		return err
	}
	return ctx.Err()
}

// WithTx satisfies journals.Repository.
func (s *Store) WithTx(ctx context.Context, fn func(context.Context, journals.TxRepository) error) error {
	return s.Run(ctx, func(tx *Tx) error { return fn(ctx, tx) })
}

func (s *Store) id() int64 {
	s.st.nextID++
	return s.st.nextID
}

// AddAccount inserts an active account with the type's default normal balance.
func (s *Store) AddAccount(tenantID int64, code, name string, t accounts.AccountType) accounts.Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := accounts.Account{
		ID:            s.id(),
		TenantID:      tenantID,
		Code:          code,
		Name:          name,
		Type:          t,
		NormalBalance: t.DefaultNormalBalance(),
		IsActive:      true,
		CreatedAt:     s.now(),
		UpdatedAt:     s.now(),
	}
	s.st.accounts[a.ID] = a
	return a
}

// AddPeriod inserts a period with the given status.
func (s *Store) AddPeriod(tenantID int64, name string, start, end time.Time, status periods.PeriodStatus) periods.Period {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := periods.Period{
		ID:        s.id(),
		TenantID:  tenantID,
		Name:      name,
		StartDate: shared.Day(start),
		EndDate:   shared.Day(end),
		Status:    status,
		CreatedAt: s.now(),
		UpdatedAt: s.now(),
	}
	s.st.periods[p.ID] = p
	return p
}

// Journals returns every journal of the tenant ordered by id.
func (s *Store) Journals(tenantID int64) []journals.JournalEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []journals.JournalEntry
	for _, j := range s.st.journals {
		if j.TenantID == tenantID {
			out = append(out, j)
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].ID < out[k].ID })
	return out
}

// LedgerEntries returns the ledger rows of one account in posting order.
func (s *Store) LedgerEntries(tenantID, accountID int64) []journals.LedgerEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []journals.LedgerEntry
	for _, e := range s.st.ledger {
		if e.TenantID == tenantID && e.AccountID == accountID {
			out = append(out, e)
		}
	}
	return out
}

// AllLedgerEntries returns every ledger row of the tenant.
func (s *Store) AllLedgerEntries(tenantID int64) []journals.LedgerEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []journals.LedgerEntry
	for _, e := range s.st.ledger {
		if e.TenantID == tenantID {
			out = append(out, e)
		}
	}
	return out
}

// Period returns the stored period.
func (s *Store) Period(id int64) periods.Period {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.periods[id]
}

// Balance returns the running balance of the newest ledger row of an account.
func (s *Store) Balance(tenantID, accountID int64) (decimal.Decimal, accounts.NormalBalance) {
	entries := s.LedgerEntries(tenantID, accountID)
	if len(entries) == 0 {
		return decimal.Zero, ""
	}
	last := entries[len(entries)-1]
	return last.Balance, last.BalanceSide
}

func (s *Store) GetJournal(_ context.Context, tenantID, id int64) (journals.JournalEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.st.journals[id]
	if !ok || j.TenantID != tenantID {
		return journals.JournalEntry{}, shared.NotFound("journal")
	}
	return j, nil
}

func (s *Store) ListJournals(_ context.Context, filter journals.ListFilter) ([]journals.JournalEntry, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var matched []journals.JournalEntry
	for _, j := range s.st.journals {
		if j.TenantID != filter.TenantID {
			continue
		}
		if filter.Status != "" && j.Status != filter.Status {
			continue
		}
		if filter.Type != "" && j.Type != filter.Type {
			continue
		}
		if filter.From != nil && j.TransactionDate.Before(shared.Day(*filter.From)) {
			continue
		}
		if filter.To != nil && j.TransactionDate.After(shared.Day(*filter.To)) {
			continue
		}
		j.Lines = nil
		matched = append(matched, j)
	}
	sort.Slice(matched, func(i, k int) bool {
		if !matched[i].TransactionDate.Equal(matched[k].TransactionDate) {
			return matched[i].TransactionDate.After(matched[k].TransactionDate)
		}
		return matched[i].ID > matched[k].ID
	})
	total := len(matched)
	start := (filter.Page - 1) * filter.PerPage
	if start > total {
		start = total
	}
	end := start + filter.PerPage
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

func (s *Store) ListLedgerEntries(_ context.Context, filter journals.LedgerFilter) ([]journals.LedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []journals.LedgerEntry
	for _, e := range s.st.ledger {
		if e.TenantID != filter.TenantID || e.AccountID != filter.AccountID {
			continue
		}
		if filter.From != nil && e.TransactionDate.Before(shared.Day(*filter.From)) {
			continue
		}
		if filter.To != nil && e.TransactionDate.After(shared.Day(*filter.To)) {
			continue
		}
		out = append(out, e)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

func (s *Store) ListBalanceChecks(_ context.Context, tenantID int64) ([]journals.BalanceCheck, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byAccount := map[int64]*journals.BalanceCheck{}
	var order []int64
	for _, e := range s.st.ledger {
		if e.TenantID != tenantID {
			continue
		}
		c, ok := byAccount[e.AccountID]
		if !ok {
			c = &journals.BalanceCheck{
				TenantID:      tenantID,
				AccountID:     e.AccountID,
				NormalBalance: s.st.accounts[e.AccountID].NormalBalance,
			}
			byAccount[e.AccountID] = c
			order = append(order, e.AccountID)
		}
		c.TotalDebit = c.TotalDebit.Add(e.Debit)
		c.TotalCredit = c.TotalCredit.Add(e.Credit)
		c.LastBalance = e.Balance
		c.LastSide = e.BalanceSide
	}
	sort.Slice(order, func(i, k int) bool { return order[i] < order[k] })
	out := make([]journals.BalanceCheck, 0, len(order))
	for _, id := range order {
		out = append(out, *byAccount[id])
	}
	return out, nil
}

func (s *Store) ListTenants(context.Context) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := map[int64]struct{}{}
	var out []int64
	for _, a := range s.st.accounts {
		if _, ok := seen[a.TenantID]; ok {
			continue
		}
		seen[a.TenantID] = struct{}{}
		out = append(out, a.TenantID)
	}
	sort.Slice(out, func(i, k int) bool { return out[i] < out[k] })
	return out, nil
}

func (s *Store) ListPeriods(_ context.Context, tenantID int64) ([]periods.Period, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []periods.Period
	for _, p := range s.st.periods {
		if p.TenantID == tenantID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].StartDate.After(out[k].StartDate) })
	return out, nil
}

func (s *Store) GetPeriod(_ context.Context, tenantID, id int64) (periods.Period, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.st.periods[id]
	if !ok || p.TenantID != tenantID {
		return periods.Period{}, shared.NotFound("period")
	}
	return p, nil
}

// Tx is the transactional view handed to Run callbacks. It satisfies journals.TxRepository and the
// period close extensions.
type Tx struct {
	s *Store
}

// NextID allocates an id from the shared sequence.
func (t *Tx) NextID() int64 { return t.s.id() }

func (t *Tx) fault(op string) error {
	return t.s.faults[op]
}

func (t *Tx) LockJournalNumbers(context.Context, int64, string, int) error {
	return t.fault("LockJournalNumbers")
}

func (t *Tx) LastJournalNumber(_ context.Context, tenantID int64, pattern string) (string, error) {
	var last string
	for _, j := range t.s.st.journals {
		if j.TenantID != tenantID || !strings.HasPrefix(j.Number, pattern) {
			continue
		}
		if last == "" || journals.CompareNumbers(j.Number, last) > 0 {
			last = j.Number
		}
	}
	return last, nil
}

func (t *Tx) InsertJournal(_ context.Context, entry journals.JournalEntry) (journals.JournalEntry, error) {
	if err := t.fault("InsertJournal"); err != nil {
		return journals.JournalEntry{}, err
	}
	for _, j := range t.s.st.journals {
		if j.TenantID == entry.TenantID && j.Number == entry.Number {
			return journals.JournalEntry{}, shared.ErrNumberConflict
		}
	}
	if err := checkJournalRow(entry); err != nil {
		return journals.JournalEntry{}, err
	}
	entry.ID = t.s.id()
	entry.CreatedAt = t.s.now()
	entry.UpdatedAt = entry.CreatedAt
	lines := make([]journals.JournalLine, len(entry.Lines))
	for i, l := range entry.Lines {
		l.ID = t.s.id()
		l.JournalID = entry.ID
		lines[i] = l
	}
	entry.Lines = lines
	t.s.st.journals[entry.ID] = entry
	return entry, nil
}

// checkJournalRow applies the journal table CHECK constraints and NUMERIC(18,2) columns.
func checkJournalRow(entry journals.JournalEntry) error {
	if entry.TotalDebit.Sub(entry.TotalCredit).Abs().GreaterThan(shared.BalanceTolerance) {
		return fmt.Errorf("journal %s: check constraint on totals violated", entry.Number)
	}
	for i, l := range entry.Lines {
		if l.Debit.IsNegative() || l.Credit.IsNegative() || l.Debit.IsPositive() == l.Credit.IsPositive() {
			return fmt.Errorf("journal %s line %d: check constraint violated", entry.Number, i+1)
		}
		if !l.Debit.Equal(l.Debit.Round(shared.AmountScale)) || !l.Credit.Equal(l.Credit.Round(shared.AmountScale)) {
			return fmt.Errorf("journal %s line %d: amount exceeds column scale", entry.Number, i+1)
		}
	}
	return nil
}

func (t *Tx) GetJournalForUpdate(_ context.Context, id int64) (journals.JournalEntry, error) {
	j, ok := t.s.st.journals[id]
	if !ok {
		return journals.JournalEntry{}, shared.NotFound("journal")
	}
	j.Lines = append([]journals.JournalLine(nil), j.Lines...)
	return j, nil
}

func (t *Tx) ListPostingLines(_ context.Context, journalID int64) ([]journals.PostingLine, error) {
	j, ok := t.s.st.journals[journalID]
	if !ok {
		return nil, shared.NotFound("journal")
	}
	out := make([]journals.PostingLine, 0, len(j.Lines))
	for _, l := range j.Lines {
		a, ok := t.s.st.accounts[l.AccountID]
		if !ok {
			return nil, shared.NotFound("account")
		}
		out = append(out, journals.PostingLine{JournalLine: l, AccountTenantID: a.TenantID, NormalBalance: a.NormalBalance})
	}
	return out, nil
}

func (t *Tx) LockPeriodsCovering(_ context.Context, tenantID int64, date time.Time) ([]periods.Period, error) {
	day := shared.Day(date)
	var out []periods.Period
	for _, p := range t.s.st.periods {
		if p.TenantID == tenantID && p.Contains(day) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (t *Tx) LockLedgerAccount(context.Context, int64, int64) error {
	return t.fault("LockLedgerAccount")
}

func (t *Tx) LatestLedgerEntry(_ context.Context, tenantID, accountID int64) (journals.LedgerEntry, bool, error) {
	for i := len(t.s.st.ledger) - 1; i >= 0; i-- {
		e := t.s.st.ledger[i]
		if e.TenantID == tenantID && e.AccountID == accountID {
			return e, true, nil
		}
	}
	return journals.LedgerEntry{}, false, nil
}

func (t *Tx) InsertLedgerEntry(_ context.Context, e journals.LedgerEntry) (journals.LedgerEntry, error) {
	if err := t.fault("InsertLedgerEntry"); err != nil {
		return journals.LedgerEntry{}, err
	}
	e.ID = t.s.id()
	e.CreatedAt = t.s.now()
	t.s.st.ledger = append(t.s.st.ledger, e)
	return e, nil
}

func (t *Tx) MarkJournalPosted(_ context.Context, id, userID int64, at time.Time) error {
	if err := t.fault("MarkJournalPosted"); err != nil {
		return err
	}
	j, ok := t.s.st.journals[id]
	if !ok || j.Status != journals.JournalStatusDraft {
		return shared.InvalidStatus("journal %d is no longer a draft", id)
	}
	j.Status = journals.JournalStatusPosted
	j.PostedBy = &userID
	j.PostedAt = &at
	t.s.st.journals[id] = j
	return nil
}

func (t *Tx) MarkJournalVoided(_ context.Context, id, userID int64, at time.Time, reason string) error {
	j, ok := t.s.st.journals[id]
	if !ok || j.Status != journals.JournalStatusPosted {
		return shared.InvalidStatus("journal %d is no longer posted", id)
	}
	j.Status = journals.JournalStatusVoided
	j.VoidedBy = &userID
	j.VoidedAt = &at
	j.VoidReason = reason
	t.s.st.journals[id] = j
	return nil
}

func (t *Tx) UnknownAccounts(_ context.Context, tenantID int64, ids []int64) ([]int64, error) {
	var unknown []int64
	seen := map[int64]bool{}
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		if a, ok := t.s.st.accounts[id]; !ok || a.TenantID != tenantID {
			unknown = append(unknown, id)
		}
	}
	return unknown, nil
}

func (t *Tx) FindAccountByCode(_ context.Context, tenantID int64, code string) (accounts.Account, error) {
	for _, a := range t.s.st.accounts {
		if a.TenantID == tenantID && a.Code == code && a.IsActive {
			return a, nil
		}
	}
	return accounts.Account{}, shared.NotFound("account " + code)
}

func (t *Tx) FindAccountsByType(_ context.Context, tenantID int64, accountType accounts.AccountType) ([]accounts.Account, error) {
	var out []accounts.Account
	for _, a := range t.s.st.accounts {
		if a.TenantID == tenantID && a.Type == accountType && a.IsActive {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].Code < out[k].Code })
	return out, nil
}

// Period close extensions.

func (t *Tx) GetPeriodForUpdate(_ context.Context, tenantID, id int64) (periods.Period, error) {
	p, ok := t.s.st.periods[id]
	if !ok || p.TenantID != tenantID {
		return periods.Period{}, shared.NotFound("period")
	}
	return p, nil
}

func (t *Tx) OverlappingPeriods(_ context.Context, tenantID int64, start, end time.Time) ([]periods.Period, error) {
	var out []periods.Period
	for _, p := range t.s.st.periods {
		if p.TenantID == tenantID && p.Overlaps(start, end) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (t *Tx) InsertPeriod(_ context.Context, tenantID int64, name string, start, end time.Time) (periods.Period, error) {
	p := periods.Period{
		ID:        t.s.id(),
		TenantID:  tenantID,
		Name:      name,
		StartDate: shared.Day(start),
		EndDate:   shared.Day(end),
		Status:    periods.PeriodStatusOpen,
		CreatedAt: t.s.now(),
		UpdatedAt: t.s.now(),
	}
	t.s.st.periods[p.ID] = p
	return p, nil
}

func (t *Tx) CountUnpostedJournals(_ context.Context, tenantID int64, start, end time.Time) (int, error) {
	n := 0
	for _, j := range t.s.st.journals {
		if j.TenantID == tenantID && j.Status == journals.JournalStatusDraft && shared.Within(j.TransactionDate, start, end) {
			n++
		}
	}
	return n, nil
}

func (t *Tx) SumAccountTotals(_ context.Context, tenantID int64, start, end time.Time, types []accounts.AccountType) ([]journals.AccountTotal, error) {
	wanted := map[accounts.AccountType]bool{}
	for _, at := range types {
		wanted[at] = true
	}
	byAccount := map[int64]*journals.AccountTotal{}
	for _, e := range t.s.st.ledger {
		if e.TenantID != tenantID || !shared.Within(e.TransactionDate, start, end) {
			continue
		}
		a := t.s.st.accounts[e.AccountID]
		if !wanted[a.Type] {
			continue
		}
		tot, ok := byAccount[a.ID]
		if !ok {
			tot = &journals.AccountTotal{AccountID: a.ID, AccountType: a.Type}
			byAccount[a.ID] = tot
		}
		tot.Debit = tot.Debit.Add(e.Debit)
		tot.Credit = tot.Credit.Add(e.Credit)
	}
	out := make([]journals.AccountTotal, 0, len(byAccount))
	for _, tot := range byAccount {
		out = append(out, *tot)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].AccountID < out[k].AccountID })
	return out, nil
}

func (t *Tx) MarkPeriodClosed(_ context.Context, id, closedBy int64, closedAt time.Time, notes string) error {
	p, ok := t.s.st.periods[id]
	if !ok || p.Status != periods.PeriodStatusOpen {
		return shared.ErrAlreadyClosed
	}
	p.Status = periods.PeriodStatusClosed
	p.ClosedBy = &closedBy
	p.ClosedAt = &closedAt
	p.Notes = notes
	t.s.st.periods[id] = p
	return nil
}
