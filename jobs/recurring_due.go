package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/odyssey-ledger/internal/jobs"
	"github.com/odyssey-erp/odyssey-ledger/internal/recurring"
)

// RecurringProcessor executes due recurring templates.
type RecurringProcessor interface {
	ProcessDue(ctx context.Context, tenantID int64, asOf time.Time) (recurring.ProcessResult, error)
	ProcessAllDue(ctx context.Context, asOf time.Time) (recurring.ProcessResult, error)
}

// RecurringDueJob turns due recurring templates into journals.
type RecurringDueJob struct {
	Service RecurringProcessor
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewRecurringDueJob constructs the job handler.
func NewRecurringDueJob(service RecurringProcessor, logger *slog.Logger, metrics *jobmetrics.Metrics) *RecurringDueJob {
	return &RecurringDueJob{
		Service: service,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes the recurring due job. Individual template failures are logged and counted
// without failing the task.
func (j *RecurringDueJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Service == nil {
		return errors.New("recurring due: service not configured")
	}
	var payload RecurringDuePayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	asOf := payload.AsOf
	if asOf.IsZero() {
		asOf = j.now()
	}

	tracker := j.metrics().Track(TaskRecurringProcessDue)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	var (
		res recurring.ProcessResult
		err error
	)
	if payload.TenantID != 0 {
		res, err = j.Service.ProcessDue(ctx, payload.TenantID, asOf)
	} else {
		res, err = j.Service.ProcessAllDue(ctx, asOf)
	}
	if err != nil {
		resultErr = err
		j.log().Error("process due templates", slog.Any("error", err))
		return resultErr
	}
	for _, f := range res.Errors {
		j.log().Warn("recurring template failed",
			slog.Int64("template_id", f.TemplateID),
			slog.String("template", f.TemplateName),
			slog.String("error", f.Error),
		)
	}
	j.metrics().AddAnomalies("recurring_failure", payload.TenantID, res.Failed)
	j.log().Info("processed due templates",
		slog.String("as_of", asOf.Format(time.DateOnly)),
		slog.Int("processed", res.Processed),
		slog.Int("failed", res.Failed),
	)
	return resultErr
}

func (j *RecurringDueJob) log() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskRecurringProcessDue))
	}
	return slog.Default().With(slog.String("job", TaskRecurringProcessDue))
}

func (j *RecurringDueJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *RecurringDueJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
