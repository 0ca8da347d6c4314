package closehttp

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/close"
	internalShared "github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

type stubCloseService struct {
	listPeriodsFn  func(ctx context.Context, tenantID int64) ([]periods.Period, error)
	getPeriodFn    func(ctx context.Context, tenantID, id int64) (periods.Period, error)
	createPeriodFn func(ctx context.Context, in close.CreatePeriodInput) (periods.Period, error)
	closePeriodFn  func(ctx context.Context, in close.ClosePeriodInput) (close.CloseResult, error)
}

func (s *stubCloseService) ListPeriods(ctx context.Context, tenantID int64) ([]periods.Period, error) {
	return s.listPeriodsFn(ctx, tenantID)
}

func (s *stubCloseService) GetPeriod(ctx context.Context, tenantID, id int64) (periods.Period, error) {
	return s.getPeriodFn(ctx, tenantID, id)
}

func (s *stubCloseService) CreatePeriod(ctx context.Context, in close.CreatePeriodInput) (periods.Period, error) {
	return s.createPeriodFn(ctx, in)
}

func (s *stubCloseService) ClosePeriod(ctx context.Context, in close.ClosePeriodInput) (close.CloseResult, error) {
	return s.closePeriodFn(ctx, in)
}

func newTestRouter(svc closeService) http.Handler {
	h := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), svc)
	r := chi.NewRouter()
	r.Route("/periods", h.MountRoutes)
	return r
}

func serve(t *testing.T, router http.Handler, method, path, body string, authed bool) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if authed {
		req = req.WithContext(internalShared.ContextWithIdentity(req.Context(), internalShared.Identity{TenantID: 4, UserID: 8}))
	}
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestCreatePeriodParsesDates(t *testing.T) {
	var captured close.CreatePeriodInput
	svc := &stubCloseService{
		createPeriodFn: func(ctx context.Context, in close.CreatePeriodInput) (periods.Period, error) {
			captured = in
			return periods.Period{ID: 21, TenantID: in.TenantID, Name: in.Name, Status: periods.PeriodStatusOpen}, nil
		},
	}
	rr := serve(t, newTestRouter(svc), http.MethodPost, "/periods",
		`{"period_name":"March 2025","start_date":"2025-03-01","end_date":"2025-03-31"}`, true)

	require.Equal(t, http.StatusCreated, rr.Code)
	require.Equal(t, int64(4), captured.TenantID)
	require.Equal(t, time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC), captured.EndDate)
	var body struct {
		Data periods.Period `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, int64(21), body.Data.ID)
}

func TestCreatePeriodRejectsMalformedDate(t *testing.T) {
	svc := &stubCloseService{}
	rr := serve(t, newTestRouter(svc), http.MethodPost, "/periods",
		`{"period_name":"March","start_date":"03/01/2025","end_date":"2025-03-31"}`, true)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Contains(t, rr.Body.String(), string(shared.CodeValidation))
}

func TestClosePeriodMapsUnpostedJournals(t *testing.T) {
	svc := &stubCloseService{
		closePeriodFn: func(ctx context.Context, in close.ClosePeriodInput) (close.CloseResult, error) {
			require.Equal(t, int64(15), in.PeriodID)
			require.Equal(t, int64(8), in.UserID)
			return close.CloseResult{}, shared.UnpostedJournals(1)
		},
	}
	rr := serve(t, newTestRouter(svc), http.MethodPost, "/periods/15/close", "", true)

	require.Equal(t, http.StatusConflict, rr.Code)
	require.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))
	var problem struct {
		Code    string         `json:"code"`
		Details map[string]any `json:"details"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &problem))
	require.Equal(t, "UNPOSTED_JOURNALS", problem.Code)
	require.EqualValues(t, 1, problem.Details["count"])
}

func TestClosePeriodPassesNotes(t *testing.T) {
	svc := &stubCloseService{
		closePeriodFn: func(ctx context.Context, in close.ClosePeriodInput) (close.CloseResult, error) {
			require.Equal(t, "audited", in.Notes)
			return close.CloseResult{Period: periods.Period{ID: in.PeriodID, Status: periods.PeriodStatusClosed}}, nil
		},
	}
	rr := serve(t, newTestRouter(svc), http.MethodPost, "/periods/15/close", `{"notes":"audited"}`, true)
	require.Equal(t, http.StatusOK, rr.Code)
}

func TestNoRetainedEarningsIsUnprocessable(t *testing.T) {
	svc := &stubCloseService{
		closePeriodFn: func(ctx context.Context, in close.ClosePeriodInput) (close.CloseResult, error) {
			return close.CloseResult{}, shared.ErrNoREAccount
		},
	}
	rr := serve(t, newTestRouter(svc), http.MethodPost, "/periods/2/close", "", true)
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
}

func TestPeriodsRequireIdentity(t *testing.T) {
	svc := &stubCloseService{}
	rr := serve(t, newTestRouter(svc), http.MethodGet, "/periods", "", false)
	require.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestGetPeriodNotFound(t *testing.T) {
	svc := &stubCloseService{
		getPeriodFn: func(ctx context.Context, tenantID, id int64) (periods.Period, error) {
			return periods.Period{}, shared.NotFound("period")
		},
	}
	rr := serve(t, newTestRouter(svc), http.MethodGet, "/periods/77", "", true)
	require.Equal(t, http.StatusNotFound, rr.Code)
}
