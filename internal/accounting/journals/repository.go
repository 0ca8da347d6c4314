package journals

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
)

// Repository encapsulates journal storage outside of a posting transaction.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetJournal(ctx context.Context, tenantID, id int64) (JournalEntry, error)
	ListJournals(ctx context.Context, filter ListFilter) ([]JournalEntry, int, error)
	ListLedgerEntries(ctx context.Context, filter LedgerFilter) ([]LedgerEntry, error)
	ListBalanceChecks(ctx context.Context, tenantID int64) ([]BalanceCheck, error)
	ListTenants(ctx context.Context) ([]int64, error)
}

// TxRepository exposes the operations available inside a ledger transaction.
type TxRepository interface {
	NumberSource
	InsertJournal(ctx context.Context, entry JournalEntry) (JournalEntry, error)
	// GetJournalForUpdate loads a journal with its lines and locks the header row.
	GetJournalForUpdate(ctx context.Context, id int64) (JournalEntry, error)
	ListPostingLines(ctx context.Context, journalID int64) ([]PostingLine, error)
	LockPeriodsCovering(ctx context.Context, tenantID int64, date time.Time) ([]periods.Period, error)
	// LockLedgerAccount serializes postings to one account until the transaction ends.
	LockLedgerAccount(ctx context.Context, tenantID, accountID int64) error
	LatestLedgerEntry(ctx context.Context, tenantID, accountID int64) (LedgerEntry, bool, error)
	InsertLedgerEntry(ctx context.Context, e LedgerEntry) (LedgerEntry, error)
	MarkJournalPosted(ctx context.Context, id, userID int64, at time.Time) error
	MarkJournalVoided(ctx context.Context, id, userID int64, at time.Time, reason string) error
	// UnknownAccounts returns the ids, in input order, that are not accounts of the tenant.
	UnknownAccounts(ctx context.Context, tenantID int64, ids []int64) ([]int64, error)
	FindAccountByCode(ctx context.Context, tenantID int64, code string) (accounts.Account, error)
	FindAccountsByType(ctx context.Context, tenantID int64, accountType accounts.AccountType) ([]accounts.Account, error)
}

const numberConstraint = "uq_journal_entries_tenant_number"

type repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, NewTxRepository(tx))
	})
}

const journalColumns = `id, tenant_id, journal_number, journal_type, transaction_date, COALESCE(description, ''),
COALESCE(reference_type, ''), reference_id, total_debit, total_credit, status, created_by, posted_by, posted_at,
voided_by, voided_at, COALESCE(void_reason, ''), created_at, updated_at`

func (r *repository) GetJournal(ctx context.Context, tenantID, id int64) (JournalEntry, error) {
	entry, err := scanJournal(r.pool.QueryRow(ctx, `SELECT `+journalColumns+` FROM journal_entries WHERE id=$1 AND tenant_id=$2`, id, tenantID))
	if err != nil {
		return JournalEntry{}, notFound(err)
	}
	entry.Lines, err = loadLines(ctx, r.pool, id)
	if err != nil {
		return JournalEntry{}, err
	}
	return entry, nil
}

func (r *repository) ListJournals(ctx context.Context, filter ListFilter) ([]JournalEntry, int, error) {
	where := []string{"tenant_id=$1"}
	args := []any{filter.TenantID}
	if filter.Status != "" {
		args = append(args, filter.Status)
		where = append(where, fmt.Sprintf("status=$%d", len(args)))
	}
	if filter.Type != "" {
		args = append(args, filter.Type)
		where = append(where, fmt.Sprintf("journal_type=$%d", len(args)))
	}
	if filter.From != nil {
		args = append(args, shared.Day(*filter.From))
		where = append(where, fmt.Sprintf("transaction_date >= $%d", len(args)))
	}
	if filter.To != nil {
		args = append(args, shared.Day(*filter.To))
		where = append(where, fmt.Sprintf("transaction_date <= $%d", len(args)))
	}
	clause := strings.Join(where, " AND ")

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM journal_entries WHERE `+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	args = append(args, filter.PerPage, (filter.Page-1)*filter.PerPage)
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`SELECT %s FROM journal_entries WHERE %s
ORDER BY transaction_date DESC, id DESC LIMIT $%d OFFSET $%d`, journalColumns, clause, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var entries []JournalEntry
	for rows.Next() {
		e, err := scanJournal(rows)
		if err != nil {
			return nil, 0, err
		}
		entries = append(entries, e)
	}
	return entries, total, rows.Err()
}

const ledgerColumns = `id, tenant_id, account_id, journal_entry_id, journal_line_id, transaction_date,
COALESCE(description, ''), debit_amount, credit_amount, balance, balance_type, created_at`

func (r *repository) ListLedgerEntries(ctx context.Context, filter LedgerFilter) ([]LedgerEntry, error) {
	args := []any{filter.TenantID, filter.AccountID}
	clause := "tenant_id=$1 AND account_id=$2"
	if filter.From != nil {
		args = append(args, shared.Day(*filter.From))
		clause += fmt.Sprintf(" AND transaction_date >= $%d", len(args))
	}
	if filter.To != nil {
		args = append(args, shared.Day(*filter.To))
		clause += fmt.Sprintf(" AND transaction_date <= $%d", len(args))
	}
	args = append(args, filter.Limit)
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`SELECT %s FROM general_ledger WHERE %s ORDER BY id ASC LIMIT $%d`,
		ledgerColumns, clause, len(args)), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []LedgerEntry
	for rows.Next() {
		e, err := scanLedger(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *repository) ListBalanceChecks(ctx context.Context, tenantID int64) ([]BalanceCheck, error) {
	rows, err := r.pool.Query(ctx, `SELECT g.tenant_id, g.account_id, a.normal_balance,
       SUM(g.debit_amount), SUM(g.credit_amount),
       (ARRAY_AGG(g.balance ORDER BY g.id DESC))[1],
       (ARRAY_AGG(g.balance_type ORDER BY g.id DESC))[1]
FROM general_ledger g
JOIN chart_of_accounts a ON a.id = g.account_id
WHERE g.tenant_id=$1
GROUP BY g.tenant_id, g.account_id, a.normal_balance
ORDER BY g.account_id`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []BalanceCheck
	for rows.Next() {
		var c BalanceCheck
		if err := rows.Scan(&c.TenantID, &c.AccountID, &c.NormalBalance, &c.TotalDebit, &c.TotalCredit, &c.LastBalance, &c.LastSide); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *repository) ListTenants(ctx context.Context) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT DISTINCT tenant_id FROM chart_of_accounts ORDER BY tenant_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// PgTx is the pgx implementation of TxRepository. Packages that extend the ledger transaction
// embed it and reach the raw transaction through Tx.
type PgTx struct {
	tx pgx.Tx
}

func NewTxRepository(tx pgx.Tx) *PgTx {
	return &PgTx{tx: tx}
}

// Tx returns the underlying transaction.
func (r *PgTx) Tx() pgx.Tx { return r.tx }

func (r *PgTx) LockJournalNumbers(ctx context.Context, tenantID int64, prefix string, year int) error {
	return db.AdvisoryXactLock(ctx, r.tx, fmt.Sprintf("journal_number:%d:%s:%d", tenantID, prefix, year))
}

func (r *PgTx) LastJournalNumber(ctx context.Context, tenantID int64, pattern string) (string, error) {
	var number string
	err := r.tx.QueryRow(ctx, `SELECT journal_number FROM journal_entries
WHERE tenant_id=$1 AND journal_number LIKE $2 || '%'
ORDER BY length(journal_number) DESC, journal_number DESC LIMIT 1`, tenantID, pattern).Scan(&number)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	return number, err
}

func (r *PgTx) InsertJournal(ctx context.Context, entry JournalEntry) (JournalEntry, error) {
	var reference any
	if entry.ReferenceType != "" {
		reference = entry.ReferenceType
	}
	err := r.tx.QueryRow(ctx, `INSERT INTO journal_entries (tenant_id, journal_number, journal_type, transaction_date, description,
reference_type, reference_id, total_debit, total_credit, status, created_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11) RETURNING id, created_at, updated_at`,
		entry.TenantID, entry.Number, entry.Type, entry.TransactionDate, entry.Description, reference, entry.ReferenceID,
		entry.TotalDebit, entry.TotalCredit, entry.Status, entry.CreatedBy).Scan(&entry.ID, &entry.CreatedAt, &entry.UpdatedAt)
	if err != nil {
		if db.IsUniqueViolation(err, numberConstraint) {
			return JournalEntry{}, shared.ErrNumberConflict
		}
		return JournalEntry{}, err
	}
	for i := range entry.Lines {
		line := &entry.Lines[i]
		line.JournalID = entry.ID
		if err := r.tx.QueryRow(ctx, `INSERT INTO journal_entry_lines (journal_entry_id, line_no, account_id, description, debit_amount, credit_amount)
VALUES ($1,$2,$3,$4,$5,$6) RETURNING id`, entry.ID, i+1, line.AccountID, line.Description, line.Debit, line.Credit).Scan(&line.ID); err != nil {
			return JournalEntry{}, err
		}
	}
	return entry, nil
}

func (r *PgTx) GetJournalForUpdate(ctx context.Context, id int64) (JournalEntry, error) {
	entry, err := scanJournal(r.tx.QueryRow(ctx, `SELECT `+journalColumns+` FROM journal_entries WHERE id=$1 FOR UPDATE`, id))
	if err != nil {
		return JournalEntry{}, notFound(err)
	}
	entry.Lines, err = loadLines(ctx, r.tx, id)
	if err != nil {
		return JournalEntry{}, err
	}
	return entry, nil
}

func (r *PgTx) ListPostingLines(ctx context.Context, journalID int64) ([]PostingLine, error) {
	rows, err := r.tx.Query(ctx, `SELECT l.id, l.journal_entry_id, l.account_id, COALESCE(l.description, ''), l.debit_amount, l.credit_amount,
       a.tenant_id, a.normal_balance
FROM journal_entry_lines l
JOIN chart_of_accounts a ON a.id = l.account_id
WHERE l.journal_entry_id=$1
ORDER BY l.line_no, l.id`, journalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []PostingLine
	for rows.Next() {
		var pl PostingLine
		if err := rows.Scan(&pl.ID, &pl.JournalID, &pl.AccountID, &pl.Description, &pl.Debit, &pl.Credit, &pl.AccountTenantID, &pl.NormalBalance); err != nil {
			return nil, err
		}
		out = append(out, pl)
	}
	return out, rows.Err()
}

func (r *PgTx) LockPeriodsCovering(ctx context.Context, tenantID int64, date time.Time) ([]periods.Period, error) {
	return periods.LockCovering(ctx, r.tx, tenantID, date)
}

func (r *PgTx) LockLedgerAccount(ctx context.Context, tenantID, accountID int64) error {
	return db.AdvisoryXactLock(ctx, r.tx, fmt.Sprintf("ledger_account:%d:%d", tenantID, accountID))
}

func (r *PgTx) LatestLedgerEntry(ctx context.Context, tenantID, accountID int64) (LedgerEntry, bool, error) {
	e, err := scanLedger(r.tx.QueryRow(ctx, `SELECT `+ledgerColumns+` FROM general_ledger
WHERE tenant_id=$1 AND account_id=$2 ORDER BY id DESC LIMIT 1`, tenantID, accountID))
	if errors.Is(err, pgx.ErrNoRows) {
		return LedgerEntry{}, false, nil
	}
	if err != nil {
		return LedgerEntry{}, false, err
	}
	return e, true, nil
}

func (r *PgTx) InsertLedgerEntry(ctx context.Context, e LedgerEntry) (LedgerEntry, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO general_ledger (tenant_id, account_id, journal_entry_id, journal_line_id, transaction_date,
description, debit_amount, credit_amount, balance, balance_type)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10) RETURNING id, created_at`,
		e.TenantID, e.AccountID, e.JournalID, e.JournalLineID, e.TransactionDate, e.Description,
		e.Debit, e.Credit, e.Balance, e.BalanceSide).Scan(&e.ID, &e.CreatedAt)
	return e, err
}

func (r *PgTx) MarkJournalPosted(ctx context.Context, id, userID int64, at time.Time) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE journal_entries SET status='posted', posted_by=$2, posted_at=$3, updated_at=NOW()
WHERE id=$1 AND status='draft'`, id, userID, at)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.InvalidStatus("journal %d is no longer a draft", id)
	}
	return nil
}

func (r *PgTx) MarkJournalVoided(ctx context.Context, id, userID int64, at time.Time, reason string) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE journal_entries SET status='voided', voided_by=$2, voided_at=$3, void_reason=$4, updated_at=NOW()
WHERE id=$1 AND status='posted'`, id, userID, at, reason)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.InvalidStatus("journal %d is no longer posted", id)
	}
	return nil
}

func (r *PgTx) UnknownAccounts(ctx context.Context, tenantID int64, ids []int64) ([]int64, error) {
	rows, err := r.tx.Query(ctx, `SELECT id FROM chart_of_accounts WHERE tenant_id=$1 AND id = ANY($2)`, tenantID, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	known := make(map[int64]struct{}, len(ids))
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		known[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	var unknown []int64
	for _, id := range ids {
		if _, ok := known[id]; !ok {
			unknown = append(unknown, id)
			known[id] = struct{}{}
		}
	}
	return unknown, nil
}

func (r *PgTx) FindAccountByCode(ctx context.Context, tenantID int64, code string) (accounts.Account, error) {
	return accounts.FindByCode(ctx, r.tx, tenantID, code)
}

func (r *PgTx) FindAccountsByType(ctx context.Context, tenantID int64, accountType accounts.AccountType) ([]accounts.Account, error) {
	return accounts.FindByType(ctx, r.tx, tenantID, accountType)
}

func loadLines(ctx context.Context, q accounts.Querier, journalID int64) ([]JournalLine, error) {
	rows, err := q.Query(ctx, `SELECT id, journal_entry_id, account_id, COALESCE(description, ''), debit_amount, credit_amount
FROM journal_entry_lines WHERE journal_entry_id=$1 ORDER BY line_no, id`, journalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []JournalLine
	for rows.Next() {
		var l JournalLine
		if err := rows.Scan(&l.ID, &l.JournalID, &l.AccountID, &l.Description, &l.Debit, &l.Credit); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func scanJournal(row pgx.Row) (JournalEntry, error) {
	var e JournalEntry
	err := row.Scan(&e.ID, &e.TenantID, &e.Number, &e.Type, &e.TransactionDate, &e.Description,
		&e.ReferenceType, &e.ReferenceID, &e.TotalDebit, &e.TotalCredit, &e.Status, &e.CreatedBy, &e.PostedBy, &e.PostedAt,
		&e.VoidedBy, &e.VoidedAt, &e.VoidReason, &e.CreatedAt, &e.UpdatedAt)
	return e, err
}

func scanLedger(row pgx.Row) (LedgerEntry, error) {
	var e LedgerEntry
	err := row.Scan(&e.ID, &e.TenantID, &e.AccountID, &e.JournalID, &e.JournalLineID, &e.TransactionDate,
		&e.Description, &e.Debit, &e.Credit, &e.Balance, &e.BalanceSide, &e.CreatedAt)
	return e, err
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return shared.NotFound("journal")
	}
	return err
}
