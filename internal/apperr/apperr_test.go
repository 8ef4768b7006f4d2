package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestKindsMatchWithErrorsIs(t *testing.T) {
	cases := []struct {
		name string
		err  error
		kind error
		code string
	}{
		{"validation", Validation(CodeInvalidAmount, "amount must be positive"), ErrValidation, CodeInvalidAmount},
		{"conflict", Conflict(CodeAlreadyReviewed, "already reviewed"), ErrConflict, CodeAlreadyReviewed},
		{"not found", NotFound("submission"), ErrNotFound, CodeNotFound},
		{"insufficient", InsufficientBalance(), ErrInsufficientBalance, CodeInsufficientBalance},
		{"wrapped", fmt.Errorf("approve: %w", Conflict(CodeAlreadyProcessed, "x")), ErrConflict, CodeAlreadyProcessed},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if !errors.Is(c.err, c.kind) {
				t.Errorf("errors.Is(%v, %v) = false", c.err, c.kind)
			}
			if got := CodeOf(c.err); got != c.code {
				t.Errorf("code: got %q, want %q", got, c.code)
			}
			for _, other := range []error{ErrValidation, ErrConflict, ErrNotFound, ErrInsufficientBalance, ErrPersistence} {
				if other != c.kind && errors.Is(c.err, other) {
					t.Errorf("%v unexpectedly matches %v", c.err, other)
				}
			}
		})
	}
}

func TestPersistenceKeepsCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := Persistence("insert transaction", cause)
	if !errors.Is(err, ErrPersistence) || !errors.Is(err, cause) {
		t.Fatalf("got %v, want persistence wrapping cause", err)
	}
	conflict := Conflict(CodePendingExists, "pending")
	if got := Persistence("op", conflict); got != error(conflict) {
		t.Errorf("coded errors must pass through, got %v", got)
	}
	if Persistence("op", nil) != nil {
		t.Error("nil in, nil out")
	}
}

func TestFromPG(t *testing.T) {
	if err := FromPG("get", "task", pgx.ErrNoRows); !errors.Is(err, ErrNotFound) {
		t.Errorf("no rows: got %v", err)
	}
	dup := &pgconn.PgError{Code: "23505", Message: "duplicate key"}
	if err := FromPG("insert", "transaction", dup); !errors.Is(err, ErrConflict) {
		t.Errorf("unique violation: got %v", err)
	}
	if err := FromPG("insert", "x", errors.New("boom")); !errors.Is(err, ErrPersistence) {
		t.Errorf("other: got %v", err)
	}
}
