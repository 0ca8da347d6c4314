package settlement

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
)

// Repository reads sub-ledger documents outside of a settlement transaction.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetDocument(ctx context.Context, tenantID int64, kind Kind, id int64) (Document, error)
	ListDocuments(ctx context.Context, filter ListFilter) ([]Document, int, error)
	ListSettlements(ctx context.Context, tenantID int64, kind Kind, documentID int64) ([]Settlement, error)
}

// TxRepository extends the ledger transaction with sub-ledger writes, so a settlement record, the
// document balance and the journal commit together.
type TxRepository interface {
	journals.TxRepository
	GetDocumentForUpdate(ctx context.Context, kind Kind, id int64) (Document, error)
	InsertDocument(ctx context.Context, doc Document) (Document, error)
	UpdateDocument(ctx context.Context, doc Document) error
	InsertSettlement(ctx context.Context, kind Kind, rec Settlement) (Settlement, error)
	AttachJournal(ctx context.Context, kind Kind, settlementID, journalID int64) error
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

func documentColumns(t tables) string {
	return fmt.Sprintf(`id, tenant_id, %s, invoice_number, invoice_date, due_date, amount, %s, balance, status,
COALESCE(reference_type, ''), reference_id, COALESCE(notes, ''), created_at, updated_at`, t.counterparty, t.settled)
}

func settlementColumns(t tables) string {
	return fmt.Sprintf(`id, tenant_id, %s, %s, %s, %s, COALESCE(reference_number, ''), COALESCE(notes, ''),
journal_entry_id, created_by, created_at`, t.recordDocument, t.recordDate, t.recordAmount, t.recordMethod)
}

func (r *repository) GetDocument(ctx context.Context, tenantID int64, kind Kind, id int64) (Document, error) {
	spec, ok := specFor(kind)
	if !ok {
		return Document{}, shared.Validation("unknown document kind %q", kind)
	}
	doc, err := scanDocument(r.pool.QueryRow(ctx, `SELECT `+documentColumns(spec.tables)+` FROM `+spec.tables.document+`
WHERE id=$1 AND tenant_id=$2`, id, tenantID), kind)
	if err != nil {
		return Document{}, documentNotFound(err, spec)
	}
	return doc, nil
}

func (r *repository) ListDocuments(ctx context.Context, filter ListFilter) ([]Document, int, error) {
	spec, ok := specFor(filter.Kind)
	if !ok {
		return nil, 0, shared.Validation("unknown document kind %q", filter.Kind)
	}
	where := []string{"tenant_id=$1"}
	args := []any{filter.TenantID}
	if filter.Status != "" {
		args = append(args, filter.Status)
		where = append(where, fmt.Sprintf("status=$%d", len(args)))
	}
	if filter.CounterpartyID != 0 {
		args = append(args, filter.CounterpartyID)
		where = append(where, fmt.Sprintf("%s=$%d", spec.tables.counterparty, len(args)))
	}
	clause := strings.Join(where, " AND ")
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM `+spec.tables.document+` WHERE `+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	args = append(args, filter.PerPage, (filter.Page-1)*filter.PerPage)
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`SELECT %s FROM %s WHERE %s ORDER BY due_date ASC, id ASC LIMIT $%d OFFSET $%d`,
		documentColumns(spec.tables), spec.tables.document, clause, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []Document
	for rows.Next() {
		doc, err := scanDocument(rows, filter.Kind)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, doc)
	}
	return out, total, rows.Err()
}

func (r *repository) ListSettlements(ctx context.Context, tenantID int64, kind Kind, documentID int64) ([]Settlement, error) {
	spec, ok := specFor(kind)
	if !ok {
		return nil, shared.Validation("unknown document kind %q", kind)
	}
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`SELECT %s FROM %s WHERE tenant_id=$1 AND %s=$2 ORDER BY id`,
		settlementColumns(spec.tables), spec.tables.record, spec.tables.recordDocument), tenantID, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Settlement
	for rows.Next() {
		rec, err := scanSettlement(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type txRepository struct {
	*journals.PgTx
	tx pgx.Tx
}

func (r *txRepository) GetDocumentForUpdate(ctx context.Context, kind Kind, id int64) (Document, error) {
	spec, ok := specFor(kind)
	if !ok {
		return Document{}, shared.Validation("unknown document kind %q", kind)
	}
	doc, err := scanDocument(r.tx.QueryRow(ctx, `SELECT `+documentColumns(spec.tables)+` FROM `+spec.tables.document+`
WHERE id=$1 FOR UPDATE`, id), kind)
	if err != nil {
		return Document{}, documentNotFound(err, spec)
	}
	return doc, nil
}

func (r *txRepository) InsertDocument(ctx context.Context, doc Document) (Document, error) {
	spec, ok := specFor(doc.Kind)
	if !ok {
		return Document{}, shared.Validation("unknown document kind %q", doc.Kind)
	}
	var reference any
	if doc.ReferenceType != "" {
		reference = doc.ReferenceType
	}
	row := r.tx.QueryRow(ctx, fmt.Sprintf(`INSERT INTO %s (tenant_id, %s, invoice_number, invoice_date, due_date, amount, %s, balance,
status, reference_type, reference_id, notes)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12) RETURNING `, spec.tables.document, spec.tables.counterparty, spec.tables.settled)+documentColumns(spec.tables),
		doc.TenantID, doc.CounterpartyID, doc.InvoiceNumber, doc.InvoiceDate, doc.DueDate, doc.Amount, doc.Settled, doc.Balance,
		doc.Status, reference, doc.ReferenceID, doc.Notes)
	out, err := scanDocument(row, doc.Kind)
	if err != nil {
		if db.IsUniqueViolation(err, "") {
			return Document{}, shared.Validation("invoice number %s already registered", doc.InvoiceNumber)
		}
		return Document{}, err
	}
	return out, nil
}

func (r *txRepository) UpdateDocument(ctx context.Context, doc Document) error {
	spec, ok := specFor(doc.Kind)
	if !ok {
		return shared.Validation("unknown document kind %q", doc.Kind)
	}
	_, err := r.tx.Exec(ctx, fmt.Sprintf(`UPDATE %s SET %s=$2, balance=$3, status=$4, notes=$5, updated_at=NOW() WHERE id=$1`,
		spec.tables.document, spec.tables.settled), doc.ID, doc.Settled, doc.Balance, doc.Status, doc.Notes)
	return err
}

func (r *txRepository) InsertSettlement(ctx context.Context, kind Kind, rec Settlement) (Settlement, error) {
	spec, ok := specFor(kind)
	if !ok {
		return Settlement{}, shared.Validation("unknown document kind %q", kind)
	}
	t := spec.tables
	row := r.tx.QueryRow(ctx, fmt.Sprintf(`INSERT INTO %s (tenant_id, %s, %s, %s, %s, reference_number, notes, created_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8) RETURNING `, t.record, t.recordDocument, t.recordDate, t.recordAmount, t.recordMethod)+settlementColumns(t),
		rec.TenantID, rec.DocumentID, rec.Date, rec.Amount, rec.Method, rec.ReferenceNumber, rec.Notes, rec.CreatedBy)
	return scanSettlement(row)
}

func (r *txRepository) AttachJournal(ctx context.Context, kind Kind, settlementID, journalID int64) error {
	spec, ok := specFor(kind)
	if !ok {
		return shared.Validation("unknown document kind %q", kind)
	}
	_, err := r.tx.Exec(ctx, `UPDATE `+spec.tables.record+` SET journal_entry_id=$2 WHERE id=$1`, settlementID, journalID)
	return err
}

func scanDocument(row pgx.Row, kind Kind) (Document, error) {
	doc := Document{Kind: kind}
	err := row.Scan(&doc.ID, &doc.TenantID, &doc.CounterpartyID, &doc.InvoiceNumber, &doc.InvoiceDate, &doc.DueDate,
		&doc.Amount, &doc.Settled, &doc.Balance, &doc.Status, &doc.ReferenceType, &doc.ReferenceID, &doc.Notes,
		&doc.CreatedAt, &doc.UpdatedAt)
	return doc, err
}

func scanSettlement(row pgx.Row) (Settlement, error) {
	var rec Settlement
	err := row.Scan(&rec.ID, &rec.TenantID, &rec.DocumentID, &rec.Date, &rec.Amount, &rec.Method, &rec.ReferenceNumber,
		&rec.Notes, &rec.JournalID, &rec.CreatedBy, &rec.CreatedAt)
	return rec, err
}

func documentNotFound(err error, spec kindSpec) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return shared.NotFound(string(spec.kind))
	}
	return err
}
