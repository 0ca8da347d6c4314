package periods

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// Querier is satisfied by *pgxpool.Pool and pgx.Tx.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const columns = `id, tenant_id, name, start_date, end_date, status, closed_at, closed_by, COALESCE(notes, ''), created_at, updated_at`

// List returns a tenant's periods, newest first.
func List(ctx context.Context, q Querier, tenantID int64) ([]Period, error) {
	return queryPeriods(ctx, q, `SELECT `+columns+` FROM accounting_periods WHERE tenant_id=$1 ORDER BY start_date DESC`, tenantID)
}

// Get loads one period of the tenant.
func Get(ctx context.Context, q Querier, tenantID, id int64) (Period, error) {
	return scanOne(q.QueryRow(ctx, `SELECT `+columns+` FROM accounting_periods WHERE id=$1 AND tenant_id=$2`, id, tenantID))
}

// GetForUpdate loads one period and holds its row lock until the transaction ends.
func GetForUpdate(ctx context.Context, q Querier, tenantID, id int64) (Period, error) {
	return scanOne(q.QueryRow(ctx, `SELECT `+columns+` FROM accounting_periods WHERE id=$1 AND tenant_id=$2 FOR UPDATE`, id, tenantID))
}

// LockCovering share-locks every period of the tenant containing date. A concurrent close blocks
// until the caller commits, and the caller blocks while a close is running.
func LockCovering(ctx context.Context, q Querier, tenantID int64, date time.Time) ([]Period, error) {
	return queryPeriods(ctx, q, `SELECT `+columns+` FROM accounting_periods
WHERE tenant_id=$1 AND $2::date BETWEEN start_date AND end_date FOR SHARE`, tenantID, shared.Day(date))
}

// Overlapping returns periods of the tenant intersecting [start, end].
func Overlapping(ctx context.Context, q Querier, tenantID int64, start, end time.Time) ([]Period, error) {
	return queryPeriods(ctx, q, `SELECT `+columns+` FROM accounting_periods
WHERE tenant_id=$1 AND start_date <= $3::date AND end_date >= $2::date`, tenantID, shared.Day(start), shared.Day(end))
}

// Insert creates an open period.
func Insert(ctx context.Context, q Querier, tenantID int64, name string, start, end time.Time) (Period, error) {
	return scanOne(q.QueryRow(ctx, `INSERT INTO accounting_periods (tenant_id, name, start_date, end_date, status)
VALUES ($1,$2,$3,$4,'open') RETURNING `+columns, tenantID, name, shared.Day(start), shared.Day(end)))
}

// MarkClosed flips an open period to closed.
func MarkClosed(ctx context.Context, q Querier, id, closedBy int64, closedAt time.Time, notes string) error {
	cmd, err := q.Exec(ctx, `UPDATE accounting_periods SET status='closed', closed_at=$2, closed_by=$3, notes=$4, updated_at=NOW()
WHERE id=$1 AND status='open'`, id, closedAt, closedBy, notes)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrAlreadyClosed
	}
	return nil
}

func queryPeriods(ctx context.Context, q Querier, sql string, args ...any) ([]Period, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Period
	for rows.Next() {
		p, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanOne(row pgx.Row) (Period, error) {
	p, err := scan(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Period{}, shared.NotFound("period")
		}
		return Period{}, err
	}
	return p, nil
}

func scan(row pgx.Row) (Period, error) {
	var p Period
	err := row.Scan(&p.ID, &p.TenantID, &p.Name, &p.StartDate, &p.EndDate, &p.Status, &p.ClosedAt, &p.ClosedBy, &p.Notes, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}
