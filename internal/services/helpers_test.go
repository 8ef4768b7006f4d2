package services

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/neeraj2004kumar2006-pixel/earn4sub/internal/clock"
	"github.com/neeraj2004kumar2006-pixel/earn4sub/internal/ledger"
	"github.com/neeraj2004kumar2006-pixel/earn4sub/internal/models"
	"github.com/neeraj2004kumar2006-pixel/earn4sub/internal/testutil/memstore"
)

// ---------------------------------------------------------------------------
// Fixtures
// ---------------------------------------------------------------------------

var t0 = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// recorder captures audit entries synchronously.
type recorder struct {
	mu      sync.Mutex
	entries []models.AuditEntry
}

func (r *recorder) Record(_ context.Context, e models.AuditEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
}

func (r *recorder) actions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.entries))
	for i, e := range r.entries {
		out[i] = e.Action
	}
	return out
}

type env struct {
	store       *memstore.Store
	clock       *clock.Fake
	audit       *recorder
	ledger      ledger.Service
	review      *ReviewService
	withdrawals *WithdrawalService
}

func newEnv(t *testing.T) *env {
	t.Helper()
	store := memstore.New()
	clk := clock.NewFake(t0)
	rec := &recorder{}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	l := ledger.NewService(store.Ledger(), clk)
	return &env{
		store:       store,
		clock:       clk,
		audit:       rec,
		ledger:      l,
		review:      NewReviewService(store, store.Submissions(), store.Tasks(), l, rec, clk, log),
		withdrawals: NewWithdrawalService(store, store.Users(), store.Withdrawals(), l, rec, dec("50"), clk, log),
	}
}

func (e *env) user(balance string, kyc models.KYCStatus) uuid.UUID {
	id := uuid.New()
	e.store.PutUser(models.User{ID: id, Email: id.String()[:8] + "@example.com", WalletBalance: dec(balance), KYCStatus: kyc})
	return id
}

func (e *env) task(reward string, maxLimit int) uuid.UUID {
	id := uuid.New()
	e.store.PutTask(models.Task{ID: id, Title: "Subscribe to channel", RewardAmount: dec(reward), MaxLimit: maxLimit, Active: true, CreatedAt: t0})
	return id
}

// pending puts a pending submission that was submitted at the given time.
func (e *env) pending(userID, taskID uuid.UUID, at time.Time) uuid.UUID {
	id := uuid.New()
	e.store.PutSubmission(models.Submission{ID: id, UserID: userID, TaskID: taskID, Status: models.SubmissionPending, ProofRef: "proofs/" + id.String() + ".png", SubmittedAt: at})
	return id
}

// assertBalanced checks wallet_balance == Σ credits − Σ debits.
func (e *env) assertBalanced(t *testing.T, userID uuid.UUID) {
	t.Helper()
	bal := e.store.User(userID).WalletBalance
	if sum := e.store.LedgerSum(userID); !bal.Equal(sum) {
		t.Fatalf("wallet_balance %s != ledger sum %s", bal, sum)
	}
	if bal.IsNegative() {
		t.Fatalf("negative balance %s", bal)
	}
}

func countSource(txns []models.Transaction, src models.TransactionSource) int {
	n := 0
	for _, t := range txns {
		if t.Source == src {
			n++
		}
	}
	return n
}
