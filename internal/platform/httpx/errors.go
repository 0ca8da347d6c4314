package httpx

import (
	"errors"
	"net/http"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// Sentinel errors for transport concerns.
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
)

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	var ledgerErr *shared.Error
	if errors.As(err, &ledgerErr) {
		status := StatusForCode(ledgerErr.Code)
		writeProblem(w, ProblemDetail{
			Title:   http.StatusText(status),
			Status:  status,
			Detail:  ledgerErr.Error(),
			Code:    string(ledgerErr.Code),
			Details: ledgerErr.Details,
		})
		return
	}
	switch {
	case errors.Is(err, ErrUnauthorized):
		Problem(w, http.StatusUnauthorized, "Unauthorized", err.Error())
	case errors.Is(err, ErrForbidden):
		Problem(w, http.StatusForbidden, "Forbidden", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

// StatusForCode returns the HTTP status used for a ledger error code.
func StatusForCode(code shared.Code) int {
	switch code {
	case shared.CodeValidation, shared.CodeNotBalanced:
		return http.StatusBadRequest
	case shared.CodeNotFound:
		return http.StatusNotFound
	case shared.CodeNoREAccount:
		return http.StatusUnprocessableEntity
	case shared.CodeInvalidStatus, shared.CodeOverpayment, shared.CodeUnpostedJournals,
		shared.CodeAlreadyClosed, shared.CodePeriodClosed, shared.CodePeriodOverlap, shared.CodeCloseInProgress,
		shared.CodeDuplicateRun:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// StatusOf returns the status RespondError would use for err.
func StatusOf(err error) int {
	var ledgerErr *shared.Error
	switch {
	case errors.As(err, &ledgerErr):
		return StatusForCode(ledgerErr.Code)
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}
