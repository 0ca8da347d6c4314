package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/odyssey-erp/odyssey-ledger/internal/jobs"
	"github.com/odyssey-erp/odyssey-ledger/internal/recurring"
)

func asynqTask(typename string, payload []byte) *asynq.Task {
	return asynq.NewTask(typename, payload)
}

type stubProcessor struct {
	tenantCalls []int64
	allCalls    int
	asOf        time.Time
	result      recurring.ProcessResult
}

func (s *stubProcessor) ProcessDue(_ context.Context, tenantID int64, asOf time.Time) (recurring.ProcessResult, error) {
	s.tenantCalls = append(s.tenantCalls, tenantID)
	s.asOf = asOf
	return s.result, nil
}

func (s *stubProcessor) ProcessAllDue(_ context.Context, asOf time.Time) (recurring.ProcessResult, error) {
	s.allCalls++
	s.asOf = asOf
	return s.result, nil
}

func TestRecurringDueProcessesAllTenantsByDefault(t *testing.T) {
	stub := &stubProcessor{result: recurring.ProcessResult{
		Processed: 2,
		Failed:    1,
		Errors:    []recurring.RunFailure{{TemplateID: 4, TemplateName: "Rent", Error: "period closed"}},
	}}
	job := NewRecurringDueJob(stub, quietLogger(), jobmetrics.NewMetrics(prometheus.NewRegistry()))
	fixed := time.Date(2025, 6, 1, 1, 0, 0, 0, time.UTC)
	job.clock = func() time.Time { return fixed }

	task, err := NewRecurringDueTask(RecurringDuePayload{})
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, 1, stub.allCalls)
	require.Empty(t, stub.tenantCalls)
	require.Equal(t, fixed, stub.asOf)
}

func TestRecurringDueScopedToTenant(t *testing.T) {
	stub := &stubProcessor{}
	job := NewRecurringDueJob(stub, quietLogger(), jobmetrics.NewMetrics(prometheus.NewRegistry()))
	asOf := time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC)

	task, err := NewRecurringDueTask(RecurringDuePayload{TenantID: 12, AsOf: asOf})
	require.NoError(t, err)
	require.Equal(t, TaskRecurringProcessDue, task.Type())
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, []int64{12}, stub.tenantCalls)
	require.Zero(t, stub.allCalls)
	require.True(t, asOf.Equal(stub.asOf))
}

func TestRecurringDueRequiresService(t *testing.T) {
	job := NewRecurringDueJob(nil, quietLogger(), nil)
	require.Error(t, job.Handle(context.Background(), asynqTask(TaskRecurringProcessDue, nil)))
}
