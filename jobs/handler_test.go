package jobs

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

type stubEnqueuer struct {
	recurring []RecurringDuePayload
	integrity []GLIntegrityPayload
	err       error
}

func (s *stubEnqueuer) EnqueueRecurringDue(_ context.Context, p RecurringDuePayload) (*asynq.TaskInfo, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.recurring = append(s.recurring, p)
	return &asynq.TaskInfo{ID: "task-1", Queue: QueueDefault}, nil
}

func (s *stubEnqueuer) EnqueueGLIntegrity(_ context.Context, p GLIntegrityPayload) (*asynq.TaskInfo, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.integrity = append(s.integrity, p)
	return &asynq.TaskInfo{ID: "task-2", Queue: QueueDefault}, nil
}

func jobsRouter(h *Handler) chi.Router {
	r := chi.NewRouter()
	r.Route("/jobs", h.MountRoutes)
	return r
}

func asTenant(req *http.Request, tenantID int64) *http.Request {
	return req.WithContext(shared.ContextWithIdentity(req.Context(), shared.Identity{TenantID: tenantID, UserID: 1}))
}

func TestHealthWithoutInspector(t *testing.T) {
	rr := httptest.NewRecorder()
	jobsRouter(NewHandler(nil, quietLogger())).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"queue":"default","pending":0,"active":0,"scheduled":0,"retry":0,"failed":0}`, rr.Body.String())
}

func TestTriggerRecurringDueScopesToCaller(t *testing.T) {
	stub := &stubEnqueuer{}
	r := jobsRouter(NewHandler(nil, quietLogger()).WithEnqueuer(stub))

	req := asTenant(httptest.NewRequest(http.MethodPost, "/jobs/recurring-due", strings.NewReader(`{"as_of":"2025-04-30"}`)), 9)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	require.Equal(t, http.StatusAccepted, rr.Code)
	require.JSONEq(t, `{"data":{"task_id":"task-1","queue":"default"}}`, rr.Body.String())
	require.Len(t, stub.recurring, 1)
	require.Equal(t, int64(9), stub.recurring[0].TenantID)
	require.True(t, stub.recurring[0].AsOf.Equal(time.Date(2025, 4, 30, 0, 0, 0, 0, time.UTC)))
}

func TestTriggerGLIntegrityWithoutBody(t *testing.T) {
	stub := &stubEnqueuer{}
	r := jobsRouter(NewHandler(nil, quietLogger()).WithEnqueuer(stub))

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, asTenant(httptest.NewRequest(http.MethodPost, "/jobs/gl-integrity", nil), 3))

	require.Equal(t, http.StatusAccepted, rr.Code)
	require.Equal(t, []GLIntegrityPayload{{Tenants: []int64{3}}}, stub.integrity)
}

func TestTriggerRejections(t *testing.T) {
	cases := []struct {
		name    string
		handler *Handler
		req     *http.Request
		status  int
	}{
		{
			name:    "anonymous",
			handler: NewHandler(nil, quietLogger()).WithEnqueuer(&stubEnqueuer{}),
			req:     httptest.NewRequest(http.MethodPost, "/jobs/gl-integrity", nil),
			status:  http.StatusUnauthorized,
		},
		{
			name:    "no queue",
			handler: NewHandler(nil, quietLogger()),
			req:     asTenant(httptest.NewRequest(http.MethodPost, "/jobs/gl-integrity", nil), 1),
			status:  http.StatusServiceUnavailable,
		},
		{
			name:    "bad date",
			handler: NewHandler(nil, quietLogger()).WithEnqueuer(&stubEnqueuer{}),
			req:     asTenant(httptest.NewRequest(http.MethodPost, "/jobs/recurring-due", strings.NewReader(`{"as_of":"30/04/2025"}`)), 1),
			status:  http.StatusBadRequest,
		},
		{
			name:    "redis down",
			handler: NewHandler(nil, quietLogger()).WithEnqueuer(&stubEnqueuer{err: errors.New("dial tcp: refused")}),
			req:     asTenant(httptest.NewRequest(http.MethodPost, "/jobs/recurring-due", nil), 1),
			status:  http.StatusServiceUnavailable,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			jobsRouter(tc.handler).ServeHTTP(rr, tc.req)
			require.Equal(t, tc.status, rr.Code)
		})
	}
}
