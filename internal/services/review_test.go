package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/neeraj2004kumar2006-pixel/earn4sub/internal/apperr"
	"github.com/neeraj2004kumar2006-pixel/earn4sub/internal/models"
)

// ---------------------------------------------------------------------------
// Submit
// ---------------------------------------------------------------------------

func TestSubmitCreatesPending(t *testing.T) {
	e := newEnv(t)
	userID, taskID := e.user("0", models.KYCApproved), e.task("3.8", 0)

	sub, err := e.review.Submit(context.Background(), userID, taskID, "  proofs/a.png ")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	got := e.store.Submission(sub.ID)
	if got.Status != models.SubmissionPending || got.ProofRef != "proofs/a.png" || !got.SubmittedAt.Equal(t0) {
		t.Errorf("got %+v", got)
	}
	if n := len(e.store.Transactions(userID)); n != 0 {
		t.Errorf("submitting must not move money, got %d rows", n)
	}
}

func TestSubmitFailures(t *testing.T) {
	ctx := context.Background()

	t.Run("duplicate pending", func(t *testing.T) {
		e := newEnv(t)
		userID, taskID := e.user("0", ""), e.task("5", 0)
		e.pending(userID, taskID, t0)
		_, err := e.review.Submit(ctx, userID, taskID, "p")
		assertCode(t, err, apperr.ErrConflict, apperr.CodeDuplicatePending)
	})

	t.Run("already approved", func(t *testing.T) {
		e := newEnv(t)
		userID, taskID := e.user("0", ""), e.task("5", 0)
		id := e.pending(userID, taskID, t0)
		if _, err := e.review.Approve(ctx, id, "admin"); err != nil {
			t.Fatalf("Approve: %v", err)
		}
		_, err := e.review.Submit(ctx, userID, taskID, "p")
		assertCode(t, err, apperr.ErrConflict, apperr.CodeAlreadyApproved)
	})

	t.Run("inactive task", func(t *testing.T) {
		e := newEnv(t)
		userID := e.user("0", "")
		taskID := uuid.New()
		e.store.PutTask(models.Task{ID: taskID, Title: "old", RewardAmount: dec("1"), Active: false})
		_, err := e.review.Submit(ctx, userID, taskID, "p")
		assertCode(t, err, apperr.ErrConflict, apperr.CodeTaskInactive)
	})

	t.Run("max limit reached", func(t *testing.T) {
		e := newEnv(t)
		taskID := e.task("5", 1)
		first := e.pending(e.user("0", ""), taskID, t0)
		if _, err := e.review.Approve(ctx, first, "admin"); err != nil {
			t.Fatalf("Approve: %v", err)
		}
		_, err := e.review.Submit(ctx, e.user("0", ""), taskID, "p")
		assertCode(t, err, apperr.ErrConflict, apperr.CodeMaxLimitReached)
	})

	t.Run("unknown task", func(t *testing.T) {
		e := newEnv(t)
		_, err := e.review.Submit(ctx, e.user("0", ""), uuid.New(), "p")
		assertCode(t, err, apperr.ErrNotFound, apperr.CodeNotFound)
	})

	t.Run("empty proof", func(t *testing.T) {
		e := newEnv(t)
		_, err := e.review.Submit(ctx, e.user("0", ""), e.task("5", 0), "   ")
		assertCode(t, err, apperr.ErrValidation, apperr.CodeInvalidProof)
	})
}

func TestResubmitAfterRejection(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	userID, taskID := e.user("0", ""), e.task("5", 0)
	id := e.pending(userID, taskID, t0)

	if _, err := e.review.Reject(ctx, id, "admin", ""); err != nil {
		t.Fatalf("Reject: %v", err)
	}
	rejected := e.store.Submission(id)
	if rejected.RejectReason == nil || *rejected.RejectReason != models.DefaultProofRejectReason {
		t.Fatalf("default reason not applied: %+v", rejected.RejectReason)
	}

	e.clock.Advance(10 * time.Minute)
	sub, err := e.review.Submit(ctx, userID, taskID, "proofs/second.png")
	if err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	if sub.ID != id {
		t.Errorf("resubmission must reuse the submission, got new id %s", sub.ID)
	}
	got := e.store.Submission(id)
	if got.Status != models.SubmissionPending || got.ReviewedBy != nil || got.ReviewedAt != nil || got.RejectReason != nil {
		t.Errorf("review metadata not reset: %+v", got)
	}
	if !got.SubmittedAt.Equal(t0.Add(10*time.Minute)) || got.ProofRef != "proofs/second.png" {
		t.Errorf("got submitted_at %v proof %q", got.SubmittedAt, got.ProofRef)
	}
}

// ---------------------------------------------------------------------------
// Approve / Reject
// ---------------------------------------------------------------------------

func TestApproveCreditsRewardOnce(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	userID, taskID := e.user("10", ""), e.task("3.8", 0)
	id := e.pending(userID, taskID, t0)

	sub, err := e.review.Approve(ctx, id, "admin-7")
	if err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if sub.Status != models.SubmissionApproved || *sub.ReviewedBy != "admin-7" {
		t.Errorf("got %+v", sub)
	}
	if got := e.store.User(userID).WalletBalance; !got.Equal(dec("13.8")) {
		t.Errorf("balance: got %s, want 13.8", got)
	}

	// scenario: second approval is a Conflict and changes nothing
	_, err = e.review.Approve(ctx, id, "admin-8")
	assertCode(t, err, apperr.ErrConflict, apperr.CodeAlreadyReviewed)
	if got := e.store.User(userID).WalletBalance; !got.Equal(dec("13.8")) {
		t.Errorf("balance after second approve: got %s, want 13.8", got)
	}
	if n := countSource(e.store.Transactions(userID), models.SourceTask); n != 1 {
		t.Errorf("task transactions: got %d, want 1", n)
	}
	txn := e.store.Transactions(userID)[0]
	if txn.ReferenceID == nil || *txn.ReferenceID != id || txn.Note != models.NoteTaskApproved {
		t.Errorf("transaction: got %+v", txn)
	}
	if acts := e.audit.actions(); len(acts) != 1 || acts[0] != models.ActionApproveProof {
		t.Errorf("audit: got %v", acts)
	}
	e.assertBalanced(t, userID)
}

func TestRejectThenApproveConflicts(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	userID := e.user("0", "")
	id := e.pending(userID, e.task("5", 0), t0)

	if _, err := e.review.Reject(ctx, id, "admin", "blurry"); err != nil {
		t.Fatalf("Reject: %v", err)
	}
	_, err := e.review.Approve(ctx, id, "admin")
	assertCode(t, err, apperr.ErrConflict, apperr.CodeAlreadyReviewed)
	_, err = e.review.Reject(ctx, id, "admin", "again")
	assertCode(t, err, apperr.ErrConflict, apperr.CodeAlreadyReviewed)

	if n := len(e.store.Transactions(userID)); n != 0 {
		t.Errorf("rejection must not move money, got %d rows", n)
	}
}

func TestApproveUnknownSubmission(t *testing.T) {
	e := newEnv(t)
	_, err := e.review.Approve(context.Background(), uuid.New(), "admin")
	assertCode(t, err, apperr.ErrNotFound, apperr.CodeNotFound)
}

func TestApproveRollsBackWhenLedgerFails(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	userID := e.user("0", "")
	id := e.pending(userID, e.task("5", 0), t0)
	e.store.FailNext("InsertTransaction", errors.New("connection reset"))

	if _, err := e.review.Approve(ctx, id, "admin"); !errors.Is(err, apperr.ErrPersistence) {
		t.Fatalf("got %v, want persistence error", err)
	}
	if got := e.store.Submission(id).Status; got != models.SubmissionPending {
		t.Errorf("status: got %s, want pending after rollback", got)
	}
	if got := e.store.User(userID).WalletBalance; !got.IsZero() {
		t.Errorf("balance: got %s, want 0", got)
	}
	if len(e.audit.actions()) != 0 {
		t.Error("failed approval must not be audited")
	}

	// retry succeeds
	if _, err := e.review.Approve(ctx, id, "admin"); err != nil {
		t.Fatalf("retry: %v", err)
	}
	e.assertBalanced(t, userID)
}

func TestApproveLosesGuardedUpdate(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	userID := e.user("10", "")
	id := e.pending(userID, e.task("3.8", 0), t0)
	e.store.SkipNext("MarkReviewed")

	_, err := e.review.Approve(ctx, id, "admin")
	assertCode(t, err, apperr.ErrConflict, apperr.CodeAlreadyReviewed)
	if got := e.store.User(userID).WalletBalance; !got.Equal(dec("10")) {
		t.Errorf("balance: got %s, want 10", got)
	}
	if n := len(e.store.Transactions(userID)); n != 0 {
		t.Errorf("transactions: got %d, want 0", n)
	}
	if len(e.audit.actions()) != 0 {
		t.Error("lost update must not be audited")
	}
}

func TestApproveDuplicateRewardRow(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	userID := e.user("10", "")
	id := e.pending(userID, e.task("3.8", 0), t0)
	e.store.FailNext("InsertTransaction", apperr.Conflict(apperr.CodeDuplicate, "duplicate key value violates unique constraint"))

	_, err := e.review.Approve(ctx, id, "admin")
	assertCode(t, err, apperr.ErrConflict, apperr.CodeAlreadyReviewed)
	if got := e.store.Submission(id).Status; got != models.SubmissionPending {
		t.Errorf("status: got %s, want pending after rollback", got)
	}
	if got := e.store.User(userID).WalletBalance; !got.Equal(dec("10")) {
		t.Errorf("balance: got %s, want 10", got)
	}
	e.assertBalanced(t, userID)
}

func TestApproveStaleHonorsCutoff(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	userID := e.user("0", "")
	id := e.pending(userID, e.task("5", 0), t0)

	_, err := e.review.ApproveStale(ctx, id, t0.Add(-time.Second))
	assertCode(t, err, apperr.ErrConflict, apperr.CodeNotStale)

	sub, err := e.review.ApproveStale(ctx, id, t0)
	if err != nil {
		t.Fatalf("ApproveStale at cutoff: %v", err)
	}
	if *sub.ReviewedBy != models.SystemReviewer {
		t.Errorf("reviewed_by: got %q", *sub.ReviewedBy)
	}
	if note := e.store.Transactions(userID)[0].Note; note != models.NoteTaskAutoApproved {
		t.Errorf("note: got %q", note)
	}
}

// Admin approval and the scheduler racing on the same submission: exactly one wins.
func TestConcurrentApprovalCreditsOnce(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	userID := e.user("0", "")
	id := e.pending(userID, e.task("3.8", 0), t0)

	const racers = 8
	var wg sync.WaitGroup
	errs := make([]error, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				_, errs[i] = e.review.Approve(ctx, id, "admin")
			} else {
				_, errs[i] = e.review.ApproveStale(ctx, id, t0.Add(time.Hour))
			}
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case apperr.CodeOf(err) != apperr.CodeAlreadyReviewed:
			t.Errorf("loser got %v, want already_reviewed", err)
		}
	}
	if wins != 1 {
		t.Fatalf("winners: got %d, want 1", wins)
	}
	if n := countSource(e.store.Transactions(userID), models.SourceTask); n != 1 {
		t.Errorf("task transactions: got %d, want 1", n)
	}
	if got := e.store.User(userID).WalletBalance; !got.Equal(dec("3.8")) {
		t.Errorf("balance: got %s, want 3.8", got)
	}
	e.assertBalanced(t, userID)
}

func TestListings(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	userID, taskID := e.user("0", ""), e.task("5", 0)
	other := e.task("2", 0)
	e.pending(userID, taskID, t0)
	e.pending(e.user("0", ""), other, t0.Add(time.Minute))

	mine, err := e.review.ListForUser(ctx, userID)
	if err != nil || len(mine) != 1 || mine[0].TaskTitle == "" {
		t.Fatalf("ListForUser: %v %+v", err, mine)
	}
	queue, err := e.review.ListByStatus(ctx, models.SubmissionPending)
	if err != nil || len(queue) != 2 {
		t.Fatalf("ListByStatus: %v len=%d", err, len(queue))
	}
	if !queue[0].SubmittedAt.After(queue[1].SubmittedAt) {
		t.Error("review queue should be newest first")
	}
	tasks, err := e.review.ListTasks(ctx, userID)
	if err != nil || len(tasks) != 2 {
		t.Fatalf("ListTasks: %v len=%d", err, len(tasks))
	}
}

func assertCode(t *testing.T, err, kind error, code string) {
	t.Helper()
	if !errors.Is(err, kind) {
		t.Fatalf("got %v, want kind %v", err, kind)
	}
	if got := apperr.CodeOf(err); got != code {
		t.Fatalf("code: got %q, want %q", got, code)
	}
}
