// Package httpx provides HTTP response utilities following RFC7807 problem details.
package httpx

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	internalShared "github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// ProblemDetail represents RFC7807 problem details extended with the ledger error code.
type ProblemDetail struct {
	Type    string         `json:"type,omitempty"`
	Title   string         `json:"title"`
	Status  int            `json:"status"`
	Detail  string         `json:"detail,omitempty"`
	Code    string         `json:"code,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

var validate = validator.New()

// JSON sends a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// Problem sends an RFC7807 problem details response.
func Problem(w http.ResponseWriter, status int, title, detail string) {
	writeProblem(w, ProblemDetail{
		Title:  title,
		Status: status,
		Detail: detail,
	})
}

func writeProblem(w http.ResponseWriter, p ProblemDetail) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}

// DecodeJSON decodes the request body into target and runs struct validation.
func DecodeJSON(r *http.Request, target any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(target); err != nil {
		if errors.Is(err, io.EOF) {
			return shared.Validation("request body required")
		}
		return shared.Validation("invalid request body: %s", err.Error())
	}
	if err := validate.Struct(target); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return shared.Validation("field %s failed %s", verrs[0].Field(), verrs[0].Tag())
		}
		return shared.Validation("%s", err.Error())
	}
	return nil
}

// IDParam parses a positive int64 path parameter.
func IDParam(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, shared.Validation("invalid %s", name)
	}
	return id, nil
}

// IntQuery parses an optional integer query parameter.
func IntQuery(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

// Identity returns the authenticated caller or ErrUnauthorized.
func Identity(r *http.Request) (internalShared.Identity, error) {
	id, ok := internalShared.IdentityFromContext(r.Context())
	if !ok {
		return internalShared.Identity{}, ErrUnauthorized
	}
	return id, nil
}

// DateQuery parses an optional YYYY-MM-DD query parameter.
func DateQuery(r *http.Request, name string) (*time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	t, err := ParseDate(raw)
	if err != nil {
		return nil, shared.Validation("invalid %s", name)
	}
	return &t, nil
}

// ParseDate parses a YYYY-MM-DD date in UTC.
func ParseDate(raw string) (time.Time, error) {
	return time.ParseInLocation("2006-01-02", raw, time.UTC)
}
