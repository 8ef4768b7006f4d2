// Package apperr holds the closed set of business error kinds returned by the money flows.
package apperr

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Kinds. Match with errors.Is.
var (
	ErrValidation          = errors.New("validation error")
	ErrConflict            = errors.New("conflict")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrNotFound            = errors.New("not found")
	ErrPersistence         = errors.New("persistence error")
)

// Codes carried by Error.
const (
	CodeInvalidAmount        = "invalid_amount"
	CodeInvalidPayoutAddress = "invalid_payout_address"
	CodeInvalidProof         = "invalid_proof"
	CodeInvalidRequest       = "invalid_request"
	CodeBelowMinimum         = "below_minimum"

	CodeAlreadyReviewed  = "already_reviewed"
	CodeAlreadyProcessed = "already_processed"
	CodeDuplicatePending = "duplicate_pending"
	CodeAlreadyApproved  = "already_approved"
	CodeTaskInactive     = "task_inactive"
	CodeMaxLimitReached  = "max_limit_reached"
	CodePendingExists    = "pending_exists"
	CodeKYCNotApproved   = "kyc_not_approved"
	CodeNotStale         = "not_stale"
	CodeDuplicate        = "duplicate"

	CodeInsufficientBalance = "insufficient_balance"
	CodeNotFound            = "not_found"
	CodePersistence         = "persistence"
)

// Error is a coded business error. Kind is one of the Err* sentinels.
type Error struct {
	Kind    error
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func Validation(code, msg string) *Error {
	return &Error{Kind: ErrValidation, Code: code, Message: msg}
}

func Conflict(code, msg string) *Error {
	return &Error{Kind: ErrConflict, Code: code, Message: msg}
}

func NotFound(what string) *Error {
	return &Error{Kind: ErrNotFound, Code: CodeNotFound, Message: what + " not found"}
}

func InsufficientBalance() *Error {
	return &Error{Kind: ErrInsufficientBalance, Code: CodeInsufficientBalance, Message: "insufficient balance"}
}

// Persistence wraps a store failure. Errors that already carry a kind pass through unchanged.
func Persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return &Error{Kind: ErrPersistence, Code: CodePersistence, Message: op, Err: err}
}

// FromPG maps driver errors: no rows becomes NotFound(what), unique violations become Conflict,
// anything else is a persistence failure.
func FromPG(op, what string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return NotFound(what)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return &Error{Kind: ErrConflict, Code: CodeDuplicate, Message: what + " already exists", Err: err}
	}
	return Persistence(op, err)
}

// CodeOf returns the code of the first *Error in err's chain, or "" when there is none.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
