package shared

import (
	"errors"
	"fmt"
)

// Code identifies a caller-visible ledger failure.
type Code string

const (
	CodeValidation       Code = "VALIDATION_ERROR"
	CodeNotBalanced      Code = "NOT_BALANCED"
	CodeNotFound         Code = "NOT_FOUND"
	CodeInvalidStatus    Code = "INVALID_STATUS"
	CodeOverpayment      Code = "OVERPAYMENT"
	CodeUnpostedJournals Code = "UNPOSTED_JOURNALS"
	CodeNoREAccount      Code = "NO_RE_ACCOUNT"
	CodeAlreadyClosed    Code = "ALREADY_CLOSED"
	CodePeriodClosed     Code = "PERIOD_CLOSED"
	CodePeriodOverlap    Code = "PERIOD_OVERLAP"
	CodeCloseInProgress  Code = "CLOSE_IN_PROGRESS"
	CodeDuplicateRun     Code = "DUPLICATE_RUN"

	// CodeMissingAccountMapping is only ever raised as a Warning.
	CodeMissingAccountMapping Code = "MISSING_ACCOUNT_MAPPING"
)

// Error is a ledger failure with a stable code. Two errors match under errors.Is when their codes match.
type Error struct {
	Code    Code
	Message string
	Details map[string]any
}

func (e *Error) Error() string {
	if e.Message == "" {
		return "accounting: " + string(e.Code)
	}
	return "accounting: " + e.Message
}

// Is reports code equality so callers can match against the sentinels below.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

var (
	ErrValidation       = &Error{Code: CodeValidation, Message: "validation failed"}
	ErrNotBalanced      = &Error{Code: CodeNotBalanced, Message: "journal lines must balance"}
	ErrNotFound         = &Error{Code: CodeNotFound, Message: "not found"}
	ErrInvalidStatus    = &Error{Code: CodeInvalidStatus, Message: "invalid status transition"}
	ErrOverpayment      = &Error{Code: CodeOverpayment, Message: "amount exceeds outstanding balance"}
	ErrUnpostedJournals = &Error{Code: CodeUnpostedJournals, Message: "period has unposted journals"}
	ErrNoREAccount      = &Error{Code: CodeNoREAccount, Message: "retained earnings account not found"}
	ErrAlreadyClosed    = &Error{Code: CodeAlreadyClosed, Message: "period is not open"}
	ErrPeriodClosed     = &Error{Code: CodePeriodClosed, Message: "transaction date falls in a closed period"}
	ErrPeriodOverlap    = &Error{Code: CodePeriodOverlap, Message: "period overlaps an existing period"}
	ErrCloseInProgress  = &Error{Code: CodeCloseInProgress, Message: "period close already in progress"}
	ErrDuplicateRun     = &Error{Code: CodeDuplicateRun, Message: "recurring run already recorded for this date"}

	// ErrNumberConflict is raised by storage when a journal number is taken concurrently.
	ErrNumberConflict = errors.New("accounting: journal number conflict")
)

// Validation builds a VALIDATION_ERROR with a formatted message.
func Validation(format string, args ...any) error {
	return &Error{Code: CodeValidation, Message: fmt.Sprintf(format, args...)}
}

// NotFound builds a NOT_FOUND error for the named entity.
func NotFound(entity string) error {
	return &Error{Code: CodeNotFound, Message: entity + " not found"}
}

// InvalidStatus builds an INVALID_STATUS error.
func InvalidStatus(format string, args ...any) error {
	return &Error{Code: CodeInvalidStatus, Message: fmt.Sprintf(format, args...)}
}

// UnpostedJournals reports how many drafts block a period close.
func UnpostedJournals(count int) error {
	return &Error{
		Code:    CodeUnpostedJournals,
		Message: fmt.Sprintf("cannot close period: %d unposted journals", count),
		Details: map[string]any{"count": count},
	}
}

// CodeOf extracts the ledger code from err, or "" when err carries none.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// Warning is a non-fatal condition returned next to a successful result.
type Warning struct {
	Code    Code           `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}
