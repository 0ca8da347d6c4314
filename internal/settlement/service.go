package settlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/mappings"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/events"
	internalShared "github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

const (
	defaultMethod = "cash"
	maxAttempts   = 3
)

// Service applies payments and collections to sub-ledger documents and mirrors them into the
// general ledger.
type Service struct {
	repo      Repository
	journals  *journals.Service
	accounts  *mappings.Resolver
	audit     journals.AuditPort
	publisher events.Publisher
	logger    *slog.Logger
	now       func() time.Time
}

// Config bundles the collaborators of a Service. Audit and Publisher are optional.
type Config struct {
	Journals  *journals.Service
	Accounts  *mappings.Resolver
	Audit     journals.AuditPort
	Publisher events.Publisher
	Logger    *slog.Logger
}

func NewService(repo Repository, cfg Config) *Service {
	if cfg.Accounts == nil {
		cfg.Accounts = mappings.NewResolver(mappings.MustDefault(), nil)
	}
	if cfg.Publisher == nil {
		cfg.Publisher = events.Nop{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Service{
		repo:      repo,
		journals:  cfg.Journals,
		accounts:  cfg.Accounts,
		audit:     cfg.Audit,
		publisher: cfg.Publisher,
		logger:    cfg.Logger,
		now:       time.Now,
	}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// PayPayable records a supplier payment against a payable.
func (s *Service) PayPayable(ctx context.Context, in SettleInput) (SettleResult, error) {
	return s.settle(ctx, payables, in)
}

// CollectReceivable records a customer collection against a receivable.
func (s *Service) CollectReceivable(ctx context.Context, in SettleInput) (SettleResult, error) {
	return s.settle(ctx, receivables, in)
}

func (s *Service) settle(ctx context.Context, spec kindSpec, in SettleInput) (SettleResult, error) {
	if in.TenantID == 0 || in.UserID == 0 || in.DocumentID == 0 {
		return SettleResult{}, shared.Validation("tenant, user and document are required")
	}
	if !in.Amount.IsPositive() {
		return SettleResult{}, shared.Validation("amount must be greater than zero")
	}
	if s.journals == nil {
		return SettleResult{}, errors.New("settlement: journal service not configured")
	}
	in.Method = strings.ToLower(strings.TrimSpace(in.Method))
	if in.Method == "" {
		in.Method = defaultMethod
	}
	if in.Date.IsZero() {
		in.Date = s.now()
	}
	in.Date = shared.Day(in.Date)

	var res SettleResult
	err := s.withRetry(ctx, func(ctx context.Context, tx TxRepository) error {
		res = SettleResult{}
		doc, err := tx.GetDocumentForUpdate(ctx, spec.kind, in.DocumentID)
		if err != nil {
			return err
		}
		if doc.TenantID != in.TenantID {
			return shared.NotFound(string(spec.kind))
		}
		if spec.isTerminal(doc.Status) {
			return shared.InvalidStatus("%s %s is already %s", spec.label, doc.InvoiceNumber, doc.Status)
		}
		if in.Amount.GreaterThan(doc.Balance) {
			return &shared.Error{
				Code:    shared.CodeOverpayment,
				Message: fmt.Sprintf("amount %s exceeds outstanding balance %s", in.Amount.StringFixed(2), doc.Balance.StringFixed(2)),
				Details: map[string]any{
					"balance": doc.Balance.StringFixed(2),
					"amount":  in.Amount.StringFixed(2),
				},
			}
		}

		rec, err := tx.InsertSettlement(ctx, spec.kind, Settlement{
			TenantID:        in.TenantID,
			DocumentID:      doc.ID,
			Date:            in.Date,
			Amount:          in.Amount,
			Method:          in.Method,
			ReferenceNumber: in.ReferenceNumber,
			Notes:           in.Notes,
			CreatedBy:       in.UserID,
		})
		if err != nil {
			return err
		}
		applySettlement(&doc, in.Amount)
		if err := tx.UpdateDocument(ctx, doc); err != nil {
			return err
		}

		controlID, cashID, missing, err := s.resolveAccounts(ctx, tx, spec, in.TenantID, in.Method)
		if err != nil {
			return err
		}
		res.Document = doc
		res.Settlement = rec
		if len(missing) > 0 {
			res.Warning = &shared.Warning{
				Code:    shared.CodeMissingAccountMapping,
				Message: fmt.Sprintf("%s settlement recorded without a journal: account mapping missing", spec.label),
				Details: map[string]any{
					"missing_account_codes": missing,
					"settlement_id":         rec.ID,
				},
			}
			return nil
		}

		recordID := rec.ID
		entry, err := s.journals.CreateTx(ctx, tx, journals.CreateInput{
			TenantID:        in.TenantID,
			UserID:          in.UserID,
			Type:            spec.journalType,
			TransactionDate: in.Date,
			Description:     spec.description(doc),
			ReferenceType:   spec.reference,
			ReferenceID:     &recordID,
			Lines:           spec.lines(doc, in.Method, controlID, cashID, in.Amount),
			Post:            true,
		})
		if err != nil {
			return err
		}
		if err := tx.AttachJournal(ctx, spec.kind, rec.ID, entry.ID); err != nil {
			return err
		}
		res.Settlement.JournalID = &entry.ID
		res.Journal = &entry
		return nil
	})
	if err != nil {
		return SettleResult{}, err
	}

	attrs := []any{
		slog.String("kind", string(spec.kind)),
		slog.Int64("tenant_id", in.TenantID),
		slog.Int64("document_id", res.Document.ID),
		slog.Int64("settlement_id", res.Settlement.ID),
		slog.String("amount", in.Amount.StringFixed(2)),
		slog.String("status", string(res.Document.Status)),
	}
	if res.Warning != nil {
		s.logger.Warn("settlement recorded without journal", append(attrs, slog.Any("missing_account_codes", res.Warning.Details["missing_account_codes"]))...)
	} else {
		s.logger.Info("settlement recorded", append(attrs, slog.String("journal_number", res.Journal.Number))...)
	}
	s.record(ctx, in.TenantID, in.UserID, string(spec.kind)+".settle", res.Document.ID, map[string]any{
		"settlement_id": res.Settlement.ID,
		"amount":        in.Amount.StringFixed(2),
		"method":        in.Method,
		"warning":       res.Warning != nil,
	})
	if res.Journal != nil {
		s.publish(ctx, events.New(events.TypeJournalPosted, in.TenantID, *res.Journal))
	}
	s.publish(ctx, events.New(events.TypeSettlementRecorded, in.TenantID, res))
	return res, nil
}

// applySettlement moves amount from the outstanding balance to the settled total.
func applySettlement(doc *Document, amount decimal.Decimal) {
	doc.Settled = doc.Settled.Add(amount)
	doc.Balance = doc.Balance.Sub(amount)
	if doc.Balance.IsZero() {
		doc.Status = StatusPaid
	} else {
		doc.Status = StatusPartial
	}
}

// resolveAccounts looks up the control and cash accounts. Codes that are unmapped or absent from the
// chart of accounts are returned in missing instead of failing the settlement.
func (s *Service) resolveAccounts(ctx context.Context, tx TxRepository, spec kindSpec, tenantID int64, method string) (int64, int64, []string, error) {
	var missing []string
	lookup := func(module, key string) (int64, error) {
		code, ok, err := s.accounts.Code(ctx, tenantID, module, key)
		if err != nil {
			return 0, err
		}
		if !ok {
			missing = append(missing, module+"."+key)
			return 0, nil
		}
		acct, err := tx.FindAccountByCode(ctx, tenantID, code)
		if errors.Is(err, shared.ErrNotFound) {
			missing = append(missing, code)
			return 0, nil
		}
		if err != nil {
			return 0, err
		}
		return acct.ID, nil
	}
	controlID, err := lookup(spec.module, mappings.KeyControl)
	if err != nil {
		return 0, 0, nil, err
	}
	cashID, err := lookup(mappings.ModuleCash, method)
	if err != nil {
		return 0, 0, nil, err
	}
	return controlID, cashID, missing, nil
}

// CreateDocument registers an unpaid payable or receivable.
func (s *Service) CreateDocument(ctx context.Context, in CreateDocumentInput) (Document, error) {
	in.InvoiceNumber = strings.TrimSpace(in.InvoiceNumber)
	switch {
	case in.TenantID == 0:
		return Document{}, shared.Validation("tenant required")
	case !in.Kind.Valid():
		return Document{}, shared.Validation("unknown document kind %q", in.Kind)
	case in.CounterpartyID == 0:
		return Document{}, shared.Validation("counterparty required")
	case in.InvoiceNumber == "":
		return Document{}, shared.Validation("invoice number required")
	case !in.Amount.IsPositive():
		return Document{}, shared.Validation("amount must be greater than zero")
	}
	if in.InvoiceDate.IsZero() {
		in.InvoiceDate = s.now()
	}
	in.InvoiceDate = shared.Day(in.InvoiceDate)
	if in.DueDate.IsZero() {
		in.DueDate = in.InvoiceDate
	}
	in.DueDate = shared.Day(in.DueDate)
	if in.DueDate.Before(in.InvoiceDate) {
		return Document{}, shared.Validation("due date precedes invoice date")
	}
	var doc Document
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		doc, err = tx.InsertDocument(ctx, Document{
			TenantID:       in.TenantID,
			Kind:           in.Kind,
			CounterpartyID: in.CounterpartyID,
			InvoiceNumber:  in.InvoiceNumber,
			InvoiceDate:    in.InvoiceDate,
			DueDate:        in.DueDate,
			Amount:         in.Amount,
			Settled:        decimal.Zero,
			Balance:        in.Amount,
			Status:         StatusUnpaid,
			ReferenceType:  in.ReferenceType,
			ReferenceID:    in.ReferenceID,
			Notes:          in.Notes,
		})
		return err
	})
	if err != nil {
		return Document{}, err
	}
	s.logger.Info("document registered", slog.String("kind", string(doc.Kind)), slog.Int64("tenant_id", doc.TenantID), slog.Int64("document_id", doc.ID))
	return doc, nil
}

// WriteOff moves an open document to its terminal write-off status: cancelled for payables and
// bad_debt for receivables. The outstanding balance is left as recorded.
func (s *Service) WriteOff(ctx context.Context, tenantID, userID int64, kind Kind, id int64, reason string) (Document, error) {
	spec, ok := specFor(kind)
	if !ok {
		return Document{}, shared.Validation("unknown document kind %q", kind)
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return Document{}, shared.Validation("write-off reason required")
	}
	var doc Document
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		doc, err = tx.GetDocumentForUpdate(ctx, kind, id)
		if err != nil {
			return err
		}
		if doc.TenantID != tenantID {
			return shared.NotFound(string(kind))
		}
		if spec.isTerminal(doc.Status) {
			return shared.InvalidStatus("%s %s is already %s", spec.label, doc.InvoiceNumber, doc.Status)
		}
		doc.Status = spec.writeOff
		if doc.Notes == "" {
			doc.Notes = reason
		} else {
			doc.Notes = doc.Notes + "\n" + reason
		}
		return tx.UpdateDocument(ctx, doc)
	})
	if err != nil {
		return Document{}, err
	}
	s.record(ctx, tenantID, userID, string(kind)+".write_off", doc.ID, map[string]any{
		"reason":  reason,
		"balance": doc.Balance.StringFixed(2),
	})
	return doc, nil
}

// Get returns one document of the tenant.
func (s *Service) Get(ctx context.Context, tenantID int64, kind Kind, id int64) (Document, error) {
	return s.repo.GetDocument(ctx, tenantID, kind, id)
}

// List returns one page of documents.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Document, internalShared.Pagination, error) {
	if !filter.Kind.Valid() {
		return nil, internalShared.Pagination{}, shared.Validation("unknown document kind %q", filter.Kind)
	}
	filter.Page, filter.PerPage = internalShared.NormalizePage(filter.Page, filter.PerPage)
	docs, total, err := s.repo.ListDocuments(ctx, filter)
	if err != nil {
		return nil, internalShared.Pagination{}, err
	}
	return docs, internalShared.NewPagination(filter.Page, filter.PerPage, total), nil
}

// Settlements lists the payments or collections applied to a document.
func (s *Service) Settlements(ctx context.Context, tenantID int64, kind Kind, documentID int64) ([]Settlement, error) {
	if _, err := s.repo.GetDocument(ctx, tenantID, kind, documentID); err != nil {
		return nil, err
	}
	return s.repo.ListSettlements(ctx, tenantID, kind, documentID)
}

func (s *Service) withRetry(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err = s.repo.WithTx(ctx, fn)
		if !errors.Is(err, shared.ErrNumberConflict) {
			return err
		}
		s.logger.Warn("journal number taken concurrently, retrying settlement", slog.Int("attempt", attempt))
	}
	return err
}

func (s *Service) record(ctx context.Context, tenantID, actorID int64, action string, documentID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, internalShared.AuditLog{
		TenantID: tenantID,
		ActorID:  actorID,
		Action:   action,
		Entity:   "settlement_document",
		EntityID: fmt.Sprintf("%d", documentID),
		Meta:     meta,
		At:       s.now(),
	}); err != nil {
		s.logger.Warn("audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}

func (s *Service) publish(ctx context.Context, e events.Event) {
	if err := s.publisher.Publish(ctx, e); err != nil {
		s.logger.Warn("publish settlement event", slog.String("type", e.Type), slog.Any("error", err))
	}
}
