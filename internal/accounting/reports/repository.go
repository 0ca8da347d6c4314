package reports

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository reads aggregated ledger movement.
type Repository interface {
	AccountBalances(ctx context.Context, tenantID int64, from, to time.Time) ([]AccountBalance, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a pgx backed Repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

// AccountBalances returns every account of the tenant with movement before from (opening) and
// between from and to inclusive.
func (r *repository) AccountBalances(ctx context.Context, tenantID int64, from, to time.Time) ([]AccountBalance, error) {
	rows, err := r.pool.Query(ctx, `SELECT a.id, a.code, a.name, a.type, a.normal_balance,
       COALESCE(SUM(g.debit_amount) FILTER (WHERE g.transaction_date < $2::date), 0),
       COALESCE(SUM(g.credit_amount) FILTER (WHERE g.transaction_date < $2::date), 0),
       COALESCE(SUM(g.debit_amount) FILTER (WHERE g.transaction_date >= $2::date), 0),
       COALESCE(SUM(g.credit_amount) FILTER (WHERE g.transaction_date >= $2::date), 0)
FROM chart_of_accounts a
LEFT JOIN general_ledger g ON g.account_id = a.id AND g.tenant_id = a.tenant_id AND g.transaction_date <= $3::date
WHERE a.tenant_id=$1
GROUP BY a.id, a.code, a.name, a.type, a.normal_balance
ORDER BY a.code`, tenantID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []AccountBalance
	for rows.Next() {
		var b AccountBalance
		if err := rows.Scan(&b.AccountID, &b.Code, &b.Name, &b.Type, &b.NormalBalance,
			&b.OpeningDebit, &b.OpeningCredit, &b.Debit, &b.Credit); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
