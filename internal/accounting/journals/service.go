package journals

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/events"
	internalShared "github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

const maxNumberAttempts = 3

type AuditPort interface {
	Record(ctx context.Context, log internalShared.AuditLog) error
}

// Service is the journal entry manager and the public surface for creating, posting and voiding journals.
type Service struct {
	repo      Repository
	poster    *Poster
	numbers   *Numberer
	audit     AuditPort
	publisher events.Publisher
	logger    *slog.Logger
	now       func() time.Time
}

func NewService(repo Repository, poster *Poster, audit AuditPort, publisher events.Publisher, logger *slog.Logger) *Service {
	if poster == nil {
		poster = NewPoster(nil)
	}
	if publisher == nil {
		publisher = events.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:      repo,
		poster:    poster,
		numbers:   NewNumberer(),
		audit:     audit,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

// WithNow overrides the clock of the service, its numberer and its poster.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
		s.numbers.WithNow(now)
		s.poster.WithNow(now)
	}
}

// Create validates and stores a draft journal, posting it when in.Post is set.
func (s *Service) Create(ctx context.Context, in CreateInput) (JournalEntry, error) {
	var entry JournalEntry
	err := s.withNumberRetry(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		entry, err = s.CreateTx(ctx, tx, in)
		return err
	})
	if err != nil {
		return JournalEntry{}, err
	}
	s.record(ctx, entry.TenantID, in.UserID, "journal.create", entry.ID, map[string]any{
		"number": entry.Number,
		"type":   entry.Type,
		"status": entry.Status,
	})
	if entry.Status == JournalStatusPosted {
		s.publish(ctx, events.TypeJournalPosted, entry)
	}
	return entry, nil
}

// CreateTx is Create inside a caller-owned transaction. Settlement, period close and recurring
// runs use it so their journals commit or roll back with the rest of their work.
func (s *Service) CreateTx(ctx context.Context, tx TxRepository, in CreateInput) (JournalEntry, error) {
	in.normalize(s.now())
	totals, err := in.Validate()
	if err != nil {
		return JournalEntry{}, err
	}
	if err := ensureTenantAccounts(ctx, tx, in.TenantID, in.Lines); err != nil {
		return JournalEntry{}, err
	}
	if err := ensurePeriodOpen(ctx, tx, in.TenantID, in.TransactionDate); err != nil {
		return JournalEntry{}, err
	}
	number, err := s.numbers.Next(ctx, tx, in.TenantID, in.Type, time.Time{})
	if err != nil {
		return JournalEntry{}, err
	}
	entry := JournalEntry{
		TenantID:        in.TenantID,
		Number:          number,
		Type:            in.Type,
		TransactionDate: in.TransactionDate,
		Description:     in.Description,
		ReferenceType:   in.ReferenceType,
		ReferenceID:     in.ReferenceID,
		TotalDebit:      totals.Debit,
		TotalCredit:     totals.Credit,
		Status:          JournalStatusDraft,
		CreatedBy:       in.UserID,
		Lines:           make([]JournalLine, 0, len(in.Lines)),
	}
	for _, line := range in.Lines {
		entry.Lines = append(entry.Lines, JournalLine{
			AccountID:   line.AccountID,
			Description: line.Description,
			Debit:       line.Debit,
			Credit:      line.Credit,
		})
	}
	inserted, err := tx.InsertJournal(ctx, entry)
	if err != nil {
		return JournalEntry{}, err
	}
	if !in.Post {
		return inserted, nil
	}
	return s.poster.Post(ctx, tx, inserted.ID, in.TenantID, in.UserID)
}

// Post posts an existing draft journal in its own transaction.
func (s *Service) Post(ctx context.Context, journalID, tenantID, userID int64) (JournalEntry, error) {
	var entry JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		entry, err = s.poster.Post(ctx, tx, journalID, tenantID, userID)
		return err
	})
	if err != nil {
		return JournalEntry{}, err
	}
	s.record(ctx, tenantID, userID, "journal.post", entry.ID, map[string]any{"number": entry.Number})
	s.publish(ctx, events.TypeJournalPosted, entry)
	return entry, nil
}

// PostTx posts inside a caller-owned transaction.
func (s *Service) PostTx(ctx context.Context, tx TxRepository, journalID, tenantID, userID int64) (JournalEntry, error) {
	return s.poster.Post(ctx, tx, journalID, tenantID, userID)
}

// Void reverses a posted journal with a swapped-sides journal, posts it and marks the original voided.
func (s *Service) Void(ctx context.Context, in VoidInput) (VoidResult, error) {
	in.Reason = strings.TrimSpace(in.Reason)
	if in.JournalID == 0 {
		return VoidResult{}, shared.Validation("journal id required")
	}
	if in.Reason == "" {
		return VoidResult{}, shared.Validation("void reason required")
	}
	var res VoidResult
	err := s.withNumberRetry(ctx, func(ctx context.Context, tx TxRepository) error {
		original, err := tx.GetJournalForUpdate(ctx, in.JournalID)
		if err != nil {
			return err
		}
		if original.TenantID != in.TenantID {
			return shared.NotFound("journal")
		}
		if original.Status != JournalStatusPosted {
			return shared.InvalidStatus("journal %s is %s, only posted journals can be voided", original.Number, original.Status)
		}
		originalID := original.ID
		reversal, err := s.CreateTx(ctx, tx, CreateInput{
			TenantID:        in.TenantID,
			UserID:          in.UserID,
			Type:            JournalTypeReversal,
			TransactionDate: s.now(),
			Description:     fmt.Sprintf("Reversal of %s: %s", original.Number, in.Reason),
			ReferenceType:   ReferenceJournal,
			ReferenceID:     &originalID,
			Lines:           reverseLines(original.Number, original.Lines),
			Post:            true,
		})
		if err != nil {
			return err
		}
		voidedAt := s.now()
		if err := tx.MarkJournalVoided(ctx, original.ID, in.UserID, voidedAt, in.Reason); err != nil {
			return err
		}
		original.Status = JournalStatusVoided
		original.VoidedBy = &in.UserID
		original.VoidedAt = &voidedAt
		original.VoidReason = in.Reason
		res = VoidResult{ReversalJournalID: reversal.ID, Original: original, Reversal: reversal}
		return nil
	})
	if err != nil {
		return VoidResult{}, err
	}
	s.record(ctx, in.TenantID, in.UserID, "journal.void", res.Original.ID, map[string]any{
		"reason":          in.Reason,
		"reversal_id":     res.Reversal.ID,
		"reversal_number": res.Reversal.Number,
	})
	s.publish(ctx, events.TypeJournalPosted, res.Reversal)
	s.publish(ctx, events.TypeJournalVoided, res.Original)
	return res, nil
}

// Get returns a journal with its lines. Journals of other tenants are reported as not found.
func (s *Service) Get(ctx context.Context, tenantID, id int64) (JournalEntry, error) {
	return s.repo.GetJournal(ctx, tenantID, id)
}

// List returns one page of journal headers.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]JournalEntry, internalShared.Pagination, error) {
	filter.Page, filter.PerPage = internalShared.NormalizePage(filter.Page, filter.PerPage)
	entries, total, err := s.repo.ListJournals(ctx, filter)
	if err != nil {
		return nil, internalShared.Pagination{}, err
	}
	return entries, internalShared.NewPagination(filter.Page, filter.PerPage, total), nil
}

// Ledger returns the ledger entries of one account in posting order.
func (s *Service) Ledger(ctx context.Context, filter LedgerFilter) ([]LedgerEntry, error) {
	if filter.AccountID == 0 {
		return nil, shared.Validation("account id required")
	}
	if filter.Limit <= 0 || filter.Limit > 1000 {
		filter.Limit = 500
	}
	return s.repo.ListLedgerEntries(ctx, filter)
}

func (s *Service) withNumberRetry(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	var err error
	for attempt := 1; attempt <= maxNumberAttempts; attempt++ {
		err = s.repo.WithTx(ctx, fn)
		if !errors.Is(err, shared.ErrNumberConflict) {
			return err
		}
		s.logger.Warn("journal number taken concurrently, retrying", slog.Int("attempt", attempt))
	}
	return err
}

func (s *Service) record(ctx context.Context, tenantID, actorID int64, action string, journalID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, internalShared.AuditLog{
		TenantID: tenantID,
		ActorID:  actorID,
		Action:   action,
		Entity:   "journal_entry",
		EntityID: fmt.Sprintf("%d", journalID),
		Meta:     meta,
		At:       s.now(),
	}); err != nil {
		s.logger.Warn("audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}

func (s *Service) publish(ctx context.Context, eventType string, entry JournalEntry) {
	if err := s.publisher.Publish(ctx, events.New(eventType, entry.TenantID, entry)); err != nil {
		s.logger.Warn("publish journal event", slog.String("type", eventType), slog.Int64("journal_id", entry.ID), slog.Any("error", err))
	}
}

func reverseLines(number string, lines []JournalLine) []LineInput {
	out := make([]LineInput, 0, len(lines))
	for _, line := range lines {
		desc := "Reversal of " + number
		if strings.TrimSpace(line.Description) != "" {
			desc = "Reversal: " + line.Description
		}
		out = append(out, LineInput{
			AccountID:   line.AccountID,
			Description: desc,
			Debit:       line.Credit,
			Credit:      line.Debit,
		})
	}
	return out
}
