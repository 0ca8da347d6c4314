package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskRecurringProcessDue executes recurring journal templates that have come due.
	TaskRecurringProcessDue = "ledger:recurring_due"
	// TaskGLIntegrity re-derives account balances and compares them with the running balances.
	TaskGLIntegrity = "ledger:gl_integrity"
)

// RecurringDuePayload scopes a recurring run. A zero TenantID processes every tenant and a zero
// AsOf uses the worker clock.
type RecurringDuePayload struct {
	TenantID int64     `json:"tenant_id,omitempty"`
	AsOf     time.Time `json:"as_of,omitempty"`
}

// GLIntegrityPayload scopes an integrity check. An empty Tenants list checks every tenant.
type GLIntegrityPayload struct {
	Tenants []int64 `json:"tenants,omitempty"`
}

// NewRecurringDueTask constructs an Asynq task for recurring journal processing.
func NewRecurringDueTask(payload RecurringDuePayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskRecurringProcessDue, body, asynq.Queue(QueueDefault)), nil
}

// NewGLIntegrityTask constructs an Asynq task for the ledger integrity check.
func NewGLIntegrityTask(payload GLIntegrityPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskGLIntegrity, body, asynq.Queue(QueueDefault)), nil
}
