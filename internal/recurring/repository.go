package recurring

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
)

const uniqueRunConstraint = "uq_recurring_runs_template_date"

// Repository reads templates outside of a run transaction.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetTemplate(ctx context.Context, tenantID, id int64) (Template, error)
	ListTemplates(ctx context.Context, tenantID int64, activeOnly bool) ([]Template, error)
	ListRuns(ctx context.Context, tenantID, templateID int64) ([]Run, error)
	ListTenants(ctx context.Context) ([]int64, error)
}

// TxRepository adds template writes to the ledger transaction so a run, its journal and the
// template's last run date commit together.
type TxRepository interface {
	journals.TxRepository
	InsertTemplate(ctx context.Context, t Template) (Template, error)
	GetTemplateForUpdate(ctx context.Context, tenantID, id int64) (Template, error)
	UpdateTemplate(ctx context.Context, t Template) error
	DeleteTemplate(ctx context.Context, tenantID, id int64) error
	InsertRun(ctx context.Context, run Run) (Run, error)
}

type repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{PgTx: journals.NewTxRepository(tx), tx: tx})
	})
}

const templateColumns = `id, tenant_id, name, COALESCE(description, ''), frequency, day_of_month, day_of_week, start_date,
last_run_date, is_active, auto_post, lines, created_by, created_at, updated_at`

func (r *repository) GetTemplate(ctx context.Context, tenantID, id int64) (Template, error) {
	t, err := scanTemplate(r.pool.QueryRow(ctx, `SELECT `+templateColumns+` FROM recurring_templates WHERE id=$1 AND tenant_id=$2`, id, tenantID))
	if err != nil {
		return Template{}, templateNotFound(err)
	}
	return t, nil
}

func (r *repository) ListTemplates(ctx context.Context, tenantID int64, activeOnly bool) ([]Template, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+templateColumns+` FROM recurring_templates
WHERE tenant_id=$1 AND ($2::boolean = FALSE OR is_active) ORDER BY name, id`, tenantID, activeOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Template
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *repository) ListRuns(ctx context.Context, tenantID, templateID int64) ([]Run, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, tenant_id, template_id, run_date, journal_entry_id, created_by, created_at
FROM recurring_runs WHERE tenant_id=$1 AND template_id=$2 ORDER BY run_date DESC`, tenantID, templateID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Run
	for rows.Next() {
		var run Run
		if err := rows.Scan(&run.ID, &run.TenantID, &run.TemplateID, &run.RunDate, &run.JournalID, &run.CreatedBy, &run.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

// ListTenants returns the tenants that own at least one active template.
func (r *repository) ListTenants(ctx context.Context) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT DISTINCT tenant_id FROM recurring_templates WHERE is_active ORDER BY tenant_id`)
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

type txRepository struct {
	*journals.PgTx
	tx pgx.Tx
}

func (r *txRepository) InsertTemplate(ctx context.Context, t Template) (Template, error) {
	return scanTemplate(r.tx.QueryRow(ctx, `INSERT INTO recurring_templates (tenant_id, name, description, frequency, day_of_month,
day_of_week, start_date, is_active, auto_post, lines, created_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11) RETURNING `+templateColumns,
		t.TenantID, t.Name, t.Description, t.Frequency, t.DayOfMonth, t.DayOfWeek, t.StartDate, t.IsActive, t.AutoPost, t.Lines, t.CreatedBy))
}

func (r *txRepository) GetTemplateForUpdate(ctx context.Context, tenantID, id int64) (Template, error) {
	t, err := scanTemplate(r.tx.QueryRow(ctx, `SELECT `+templateColumns+` FROM recurring_templates
WHERE id=$1 AND tenant_id=$2 FOR UPDATE`, id, tenantID))
	if err != nil {
		return Template{}, templateNotFound(err)
	}
	return t, nil
}

func (r *txRepository) UpdateTemplate(ctx context.Context, t Template) error {
	_, err := r.tx.Exec(ctx, `UPDATE recurring_templates SET name=$2, description=$3, frequency=$4, day_of_month=$5, day_of_week=$6,
last_run_date=$7, is_active=$8, auto_post=$9, lines=$10, updated_at=NOW() WHERE id=$1`,
		t.ID, t.Name, t.Description, t.Frequency, t.DayOfMonth, t.DayOfWeek, t.LastRunDate, t.IsActive, t.AutoPost, t.Lines)
	return err
}

func (r *txRepository) DeleteTemplate(ctx context.Context, tenantID, id int64) error {
	cmd, err := r.tx.Exec(ctx, `DELETE FROM recurring_templates WHERE id=$1 AND tenant_id=$2`, id, tenantID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.NotFound("recurring template")
	}
	return nil
}

func (r *txRepository) InsertRun(ctx context.Context, run Run) (Run, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO recurring_runs (tenant_id, template_id, run_date, journal_entry_id, created_by)
VALUES ($1,$2,$3,$4,$5) RETURNING id, created_at`, run.TenantID, run.TemplateID, run.RunDate, run.JournalID, run.CreatedBy).
		Scan(&run.ID, &run.CreatedAt)
	if db.IsUniqueViolation(err, uniqueRunConstraint) {
		return Run{}, shared.ErrDuplicateRun
	}
	return run, err
}

func scanTemplate(row pgx.Row) (Template, error) {
	var (
		t          Template
		dayOfMonth *int32
		dayOfWeek  *int32
		lastRun    *time.Time
	)
	err := row.Scan(&t.ID, &t.TenantID, &t.Name, &t.Description, &t.Frequency, &dayOfMonth, &dayOfWeek, &t.StartDate,
		&lastRun, &t.IsActive, &t.AutoPost, &t.Lines, &t.CreatedBy, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return Template{}, err
	}
	if dayOfMonth != nil {
		v := int(*dayOfMonth)
		t.DayOfMonth = &v
	}
	if dayOfWeek != nil {
		v := int(*dayOfWeek)
		t.DayOfWeek = &v
	}
	t.LastRunDate = lastRun
	t.NextRunDate = t.Schedule().NextRunDate()
	return t, nil
}

func templateNotFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return shared.NotFound("recurring template")
	}
	return err
}
