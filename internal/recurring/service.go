package recurring

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/events"
	internalShared "github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

const maxAttempts = 3

// Service manages recurring journal templates and turns due templates into journals.
type Service struct {
	repo      Repository
	journals  *journals.Service
	audit     journals.AuditPort
	publisher events.Publisher
	logger    *slog.Logger
	now       func() time.Time
}

// Config bundles the collaborators of a Service. Audit and Publisher are optional.
type Config struct {
	Journals  *journals.Service
	Audit     journals.AuditPort
	Publisher events.Publisher
	Logger    *slog.Logger
}

func NewService(repo Repository, cfg Config) *Service {
	if cfg.Publisher == nil {
		cfg.Publisher = events.Nop{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Service{
		repo:      repo,
		journals:  cfg.Journals,
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

// Create validates and stores an active template.
func (s *Service) Create(ctx context.Context, in CreateInput) (Template, error) {
	in.Name = strings.TrimSpace(in.Name)
	if in.TenantID == 0 || in.UserID == 0 {
		return Template{}, shared.Validation("tenant and user are required")
	}
	if in.Name == "" {
		return Template{}, shared.Validation("name required")
	}
	if err := validateSchedule(in.Frequency, in.DayOfMonth, in.DayOfWeek); err != nil {
		return Template{}, err
	}
	if err := validateLines(in.Lines); err != nil {
		return Template{}, err
	}
	if in.StartDate.IsZero() {
		in.StartDate = s.now()
	}
	var tmpl Template
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		tmpl, err = tx.InsertTemplate(ctx, Template{
			TenantID:    in.TenantID,
			Name:        in.Name,
			Description: strings.TrimSpace(in.Description),
			Frequency:   in.Frequency,
			DayOfMonth:  in.DayOfMonth,
			DayOfWeek:   in.DayOfWeek,
			StartDate:   shared.Day(in.StartDate),
			IsActive:    true,
			AutoPost:    in.AutoPost,
			Lines:       in.Lines,
			CreatedBy:   in.UserID,
		})
		return err
	})
	if err != nil {
		return Template{}, err
	}
	s.logger.Info("recurring template created", slog.Int64("tenant_id", tmpl.TenantID), slog.Int64("template_id", tmpl.ID), slog.String("frequency", string(tmpl.Frequency)))
	s.record(ctx, in.TenantID, in.UserID, "recurring.create", tmpl.ID, map[string]any{"name": tmpl.Name})
	return tmpl, nil
}

// Update applies the set fields of in. Schedule changes move the derived next run date.
func (s *Service) Update(ctx context.Context, in UpdateInput) (Template, error) {
	var tmpl Template
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		tmpl, err = tx.GetTemplateForUpdate(ctx, in.TenantID, in.TemplateID)
		if err != nil {
			return err
		}
		if in.Name != nil {
			name := strings.TrimSpace(*in.Name)
			if name == "" {
				return shared.Validation("name required")
			}
			tmpl.Name = name
		}
		if in.Description != nil {
			tmpl.Description = strings.TrimSpace(*in.Description)
		}
		if in.Frequency != nil || in.DayOfMonth != nil || in.DayOfWeek != nil {
			if in.Frequency != nil {
				tmpl.Frequency = *in.Frequency
			}
			if in.DayOfMonth != nil {
				tmpl.DayOfMonth = in.DayOfMonth
			}
			if in.DayOfWeek != nil {
				tmpl.DayOfWeek = in.DayOfWeek
			}
			if err := validateSchedule(tmpl.Frequency, tmpl.DayOfMonth, tmpl.DayOfWeek); err != nil {
				return err
			}
		}
		if in.IsActive != nil {
			tmpl.IsActive = *in.IsActive
		}
		if in.AutoPost != nil {
			tmpl.AutoPost = *in.AutoPost
		}
		if in.Lines != nil {
			if err := validateLines(in.Lines); err != nil {
				return err
			}
			tmpl.Lines = in.Lines
		}
		tmpl.NextRunDate = tmpl.Schedule().NextRunDate()
		return tx.UpdateTemplate(ctx, tmpl)
	})
	if err != nil {
		return Template{}, err
	}
	s.record(ctx, in.TenantID, in.UserID, "recurring.update", tmpl.ID, nil)
	return tmpl, nil
}

// Delete removes a template. Journals it produced are kept.
func (s *Service) Delete(ctx context.Context, tenantID, userID, id int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.DeleteTemplate(ctx, tenantID, id)
	})
	if err != nil {
		return err
	}
	s.record(ctx, tenantID, userID, "recurring.delete", id, nil)
	return nil
}

// Get returns a template of the tenant.
func (s *Service) Get(ctx context.Context, tenantID, id int64) (Template, error) {
	return s.repo.GetTemplate(ctx, tenantID, id)
}

// List returns the tenant's templates.
func (s *Service) List(ctx context.Context, tenantID int64) ([]Template, error) {
	return s.repo.ListTemplates(ctx, tenantID, false)
}

// Runs returns the execution history of a template.
func (s *Service) Runs(ctx context.Context, tenantID, templateID int64) ([]Run, error) {
	if _, err := s.repo.GetTemplate(ctx, tenantID, templateID); err != nil {
		return nil, err
	}
	return s.repo.ListRuns(ctx, tenantID, templateID)
}

// Execute creates the journal for one run of a template, posting it when the template auto-posts.
// The run, the journal and the template's last run date commit together; a second run for the
// same date fails with shared.ErrDuplicateRun.
func (s *Service) Execute(ctx context.Context, in ExecuteInput) (ExecuteResult, error) {
	if s.journals == nil {
		return ExecuteResult{}, errors.New("recurring: journal service not configured")
	}
	var res ExecuteResult
	err := s.withRetry(ctx, func(ctx context.Context, tx TxRepository) error {
		res = ExecuteResult{}
		tmpl, err := tx.GetTemplateForUpdate(ctx, in.TenantID, in.TemplateID)
		if err != nil {
			return err
		}
		userID := in.UserID
		if userID == 0 {
			userID = tmpl.CreatedBy
		}
		runDate := in.RunDate
		if runDate.IsZero() {
			runDate = tmpl.Schedule().NextRunDate()
		}
		runDate = shared.Day(runDate)

		templateID := tmpl.ID
		entry, err := s.journals.CreateTx(ctx, tx, journals.CreateInput{
			TenantID:        tmpl.TenantID,
			UserID:          userID,
			Type:            journals.JournalTypeRecurring,
			TransactionDate: runDate,
			Description:     fmt.Sprintf("[Recurring] %s: %s", tmpl.Name, tmpl.Description),
			ReferenceType:   journals.ReferenceRecurringTemplate,
			ReferenceID:     &templateID,
			Lines:           tmpl.journalLines(),
			Post:            tmpl.AutoPost,
		})
		if err != nil {
			return err
		}
		run, err := tx.InsertRun(ctx, Run{
			TenantID:   tmpl.TenantID,
			TemplateID: tmpl.ID,
			RunDate:    runDate,
			JournalID:  entry.ID,
			CreatedBy:  userID,
		})
		if err != nil {
			return err
		}
		if tmpl.LastRunDate == nil || runDate.After(*tmpl.LastRunDate) {
			tmpl.LastRunDate = &runDate
		}
		tmpl.NextRunDate = tmpl.Schedule().NextRunDate()
		if err := tx.UpdateTemplate(ctx, tmpl); err != nil {
			return err
		}
		res = ExecuteResult{Run: run, Journal: entry, Template: tmpl}
		return nil
	})
	if err != nil {
		return ExecuteResult{}, err
	}
	s.logger.Info("recurring template executed",
		slog.Int64("tenant_id", in.TenantID),
		slog.Int64("template_id", res.Template.ID),
		slog.String("run_date", res.Run.RunDate.Format(time.DateOnly)),
		slog.String("journal_number", res.Journal.Number),
		slog.Bool("posted", res.Journal.Status == journals.JournalStatusPosted),
	)
	s.record(ctx, in.TenantID, res.Run.CreatedBy, "recurring.execute", res.Template.ID, map[string]any{
		"run_date":       res.Run.RunDate.Format(time.DateOnly),
		"journal_number": res.Journal.Number,
	})
	if res.Journal.Status == journals.JournalStatusPosted {
		if err := s.publisher.Publish(ctx, events.New(events.TypeJournalPosted, res.Journal.TenantID, res.Journal)); err != nil {
			s.logger.Warn("publish recurring journal", slog.Int64("journal_id", res.Journal.ID), slog.Any("error", err))
		}
	}
	return res, nil
}

// ProcessDue executes every active template of the tenant whose next run is on or before asOf.
// Each template runs at most once per call; failures are reported and do not stop the pass.
func (s *Service) ProcessDue(ctx context.Context, tenantID int64, asOf time.Time) (ProcessResult, error) {
	templates, err := s.repo.ListTemplates(ctx, tenantID, true)
	if err != nil {
		return ProcessResult{}, err
	}
	res := ProcessResult{Results: []ExecuteResult{}, Errors: []RunFailure{}}
	for _, tmpl := range templates {
		if !tmpl.Schedule().Due(asOf) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}
		out, err := s.Execute(ctx, ExecuteInput{TenantID: tenantID, TemplateID: tmpl.ID, RunDate: tmpl.Schedule().NextRunDate()})
		if err != nil {
			s.logger.Warn("recurring run failed", slog.Int64("tenant_id", tenantID), slog.Int64("template_id", tmpl.ID), slog.Any("error", err))
			res.Errors = append(res.Errors, RunFailure{TemplateID: tmpl.ID, TemplateName: tmpl.Name, Error: err.Error()})
			continue
		}
		res.Results = append(res.Results, out)
	}
	res.Processed = len(res.Results)
	res.Failed = len(res.Errors)
	return res, nil
}

// ProcessAllDue runs ProcessDue for every tenant with active templates.
func (s *Service) ProcessAllDue(ctx context.Context, asOf time.Time) (ProcessResult, error) {
	tenants, err := s.repo.ListTenants(ctx)
	if err != nil {
		return ProcessResult{}, err
	}
	total := ProcessResult{Results: []ExecuteResult{}, Errors: []RunFailure{}}
	for _, tenantID := range tenants {
		res, err := s.ProcessDue(ctx, tenantID, asOf)
		if err != nil {
			return total, err
		}
		total.Results = append(total.Results, res.Results...)
		total.Errors = append(total.Errors, res.Errors...)
	}
	total.Processed = len(total.Results)
	total.Failed = len(total.Errors)
	return total, nil
}

// Upcoming lists active templates due within days from now, soonest first.
func (s *Service) Upcoming(ctx context.Context, tenantID int64, days int) ([]Upcoming, error) {
	if days <= 0 {
		days = 30
	}
	templates, err := s.repo.ListTemplates(ctx, tenantID, true)
	if err != nil {
		return nil, err
	}
	cutoff := shared.Day(s.now()).AddDate(0, 0, days)
	out := []Upcoming{}
	for _, tmpl := range templates {
		next := tmpl.Schedule().NextRunDate()
		if next.After(cutoff) {
			continue
		}
		out = append(out, Upcoming{
			ID:          tmpl.ID,
			Name:        tmpl.Name,
			Frequency:   tmpl.Frequency,
			NextRunDate: next,
			AutoPost:    tmpl.AutoPost,
			TotalAmount: tmpl.TotalAmount(),
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].NextRunDate.Before(out[j].NextRunDate) })
	return out, nil
}

func (s *Service) withRetry(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err = s.repo.WithTx(ctx, fn)
		if !errors.Is(err, shared.ErrNumberConflict) {
			return err
		}
	}
	return err
}

func (s *Service) record(ctx context.Context, tenantID, actorID int64, action string, templateID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, internalShared.AuditLog{
		TenantID: tenantID,
		ActorID:  actorID,
		Action:   action,
		Entity:   "recurring_template",
		EntityID: fmt.Sprintf("%d", templateID),
		Meta:     meta,
		At:       s.now(),
	}); err != nil {
		s.logger.Warn("audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}
