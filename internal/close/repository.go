package close

import (
	"context"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
)

// profitAndLossTypes are the account types zeroed by a period close.
var profitAndLossTypes = []accounts.AccountType{
	accounts.AccountTypeRevenue,
	accounts.AccountTypeExpense,
	accounts.AccountTypeCOGS,
}

// Repository persists period state.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ListPeriods(ctx context.Context, tenantID int64) ([]periods.Period, error)
	GetPeriod(ctx context.Context, tenantID, id int64) (periods.Period, error)
}

// TxRepository extends the ledger transaction with period operations, so the closing journal and
// the status change commit together.
type TxRepository interface {
	journals.TxRepository
	GetPeriodForUpdate(ctx context.Context, tenantID, id int64) (periods.Period, error)
	OverlappingPeriods(ctx context.Context, tenantID int64, start, end time.Time) ([]periods.Period, error)
	InsertPeriod(ctx context.Context, tenantID int64, name string, start, end time.Time) (periods.Period, error)
	CountUnpostedJournals(ctx context.Context, tenantID int64, start, end time.Time) (int, error)
	SumAccountTotals(ctx context.Context, tenantID int64, start, end time.Time, types []accounts.AccountType) ([]journals.AccountTotal, error)
	MarkPeriodClosed(ctx context.Context, id, closedBy int64, closedAt time.Time, notes string) error
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository using the provided pool.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{PgTx: journals.NewTxRepository(tx), tx: tx})
	})
}

func (r *repository) ListPeriods(ctx context.Context, tenantID int64) ([]periods.Period, error) {
	return periods.List(ctx, r.pool, tenantID)
}

func (r *repository) GetPeriod(ctx context.Context, tenantID, id int64) (periods.Period, error) {
	return periods.Get(ctx, r.pool, tenantID, id)
}

type txRepository struct {
	*journals.PgTx
	tx pgx.Tx
}

func (r *txRepository) GetPeriodForUpdate(ctx context.Context, tenantID, id int64) (periods.Period, error) {
	return periods.GetForUpdate(ctx, r.tx, tenantID, id)
}

func (r *txRepository) OverlappingPeriods(ctx context.Context, tenantID int64, start, end time.Time) ([]periods.Period, error) {
	// period inserts are serialized per tenant
	if err := db.AdvisoryXactLock(ctx, r.tx, "accounting_periods:"+strconv.FormatInt(tenantID, 10)); err != nil {
		return nil, err
	}
	return periods.Overlapping(ctx, r.tx, tenantID, start, end)
}

func (r *txRepository) InsertPeriod(ctx context.Context, tenantID int64, name string, start, end time.Time) (periods.Period, error) {
	return periods.Insert(ctx, r.tx, tenantID, name, start, end)
}

func (r *txRepository) CountUnpostedJournals(ctx context.Context, tenantID int64, start, end time.Time) (int, error) {
	var count int
	err := r.tx.QueryRow(ctx, `SELECT COUNT(*) FROM journal_entries
WHERE tenant_id=$1 AND status='draft' AND transaction_date BETWEEN $2::date AND $3::date`, tenantID, start, end).Scan(&count)
	return count, err
}

func (r *txRepository) SumAccountTotals(ctx context.Context, tenantID int64, start, end time.Time, types []accounts.AccountType) ([]journals.AccountTotal, error) {
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = string(t)
	}
	rows, err := r.tx.Query(ctx, `SELECT a.id, a.type, COALESCE(SUM(g.debit_amount), 0), COALESCE(SUM(g.credit_amount), 0)
FROM general_ledger g
JOIN chart_of_accounts a ON a.id = g.account_id
WHERE g.tenant_id=$1 AND g.transaction_date BETWEEN $2::date AND $3::date AND a.type = ANY($4)
GROUP BY a.id, a.type
ORDER BY a.id`, tenantID, start, end, names)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []journals.AccountTotal
	for rows.Next() {
		var t journals.AccountTotal
		if err := rows.Scan(&t.AccountID, &t.AccountType, &t.Debit, &t.Credit); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *txRepository) MarkPeriodClosed(ctx context.Context, id, closedBy int64, closedAt time.Time, notes string) error {
	return periods.MarkClosed(ctx, r.tx, id, closedBy, closedAt, notes)
}
