package accounts

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// ErrDuplicateCode indicates the tenant already has an account with the code.
var ErrDuplicateCode = errors.New("accounting: account code already exists")

// Querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Repository interface {
	List(ctx context.Context, tenantID int64) ([]Account, error)
	FindByCode(ctx context.Context, tenantID int64, code string) (Account, error)
	FindByType(ctx context.Context, tenantID int64, accountType AccountType) ([]Account, error)
	Insert(ctx context.Context, in CreateInput) (Account, error)
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const accountColumns = `id, tenant_id, code, name, type, normal_balance, parent_id, is_active, created_at, updated_at`

func (r *repository) List(ctx context.Context, tenantID int64) ([]Account, error) {
	return queryAccounts(ctx, r.db, `SELECT `+accountColumns+` FROM chart_of_accounts WHERE tenant_id=$1 ORDER BY code`, tenantID)
}

func (r *repository) FindByCode(ctx context.Context, tenantID int64, code string) (Account, error) {
	return FindByCode(ctx, r.db, tenantID, code)
}

func (r *repository) FindByType(ctx context.Context, tenantID int64, accountType AccountType) ([]Account, error) {
	return FindByType(ctx, r.db, tenantID, accountType)
}

func (r *repository) Insert(ctx context.Context, in CreateInput) (Account, error) {
	var parentID *int64
	if in.ParentCode != "" {
		parent, err := r.FindByCode(ctx, in.TenantID, in.ParentCode)
		if err != nil {
			return Account{}, err
		}
		parentID = &parent.ID
	}
	row := r.db.QueryRow(ctx, `INSERT INTO chart_of_accounts (tenant_id, code, name, type, normal_balance, parent_id, is_active)
VALUES ($1,$2,$3,$4,$5,$6,TRUE) RETURNING `+accountColumns,
		in.TenantID, in.Code, in.Name, in.Type, in.NormalBalance, parentID)
	a, err := scanAccount(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Account{}, ErrDuplicateCode
		}
		return Account{}, err
	}
	return a, nil
}

// FindByCode resolves an active account by code using any querier, so lookups can join a transaction.
func FindByCode(ctx context.Context, q Querier, tenantID int64, code string) (Account, error) {
	row := q.QueryRow(ctx, `SELECT `+accountColumns+` FROM chart_of_accounts WHERE tenant_id=$1 AND code=$2 AND is_active`, tenantID, code)
	a, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, shared.NotFound("account " + code)
		}
		return Account{}, err
	}
	return a, nil
}

// FindByType lists active accounts of a type ordered by code.
func FindByType(ctx context.Context, q Querier, tenantID int64, accountType AccountType) ([]Account, error) {
	return queryAccounts(ctx, q, `SELECT `+accountColumns+` FROM chart_of_accounts WHERE tenant_id=$1 AND type=$2 AND is_active ORDER BY code`, tenantID, accountType)
}

func queryAccounts(ctx context.Context, q Querier, sql string, args ...any) ([]Account, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var accounts []Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

func scanAccount(row pgx.Row) (Account, error) {
	var a Account
	err := row.Scan(&a.ID, &a.TenantID, &a.Code, &a.Name, &a.Type, &a.NormalBalance, &a.ParentID, &a.IsActive, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}
