package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/neeraj2004kumar2006-pixel/earn4sub/internal/apperr"
	"github.com/neeraj2004kumar2006-pixel/earn4sub/internal/audit"
	"github.com/neeraj2004kumar2006-pixel/earn4sub/internal/clock"
	"github.com/neeraj2004kumar2006-pixel/earn4sub/internal/ledger"
	"github.com/neeraj2004kumar2006-pixel/earn4sub/internal/metrics"
	"github.com/neeraj2004kumar2006-pixel/earn4sub/internal/models"
)

// TxBeginner abstracts transaction creation so tests don't need a pgxpool.Pool.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Ledger is the subset of ledger.Service the money flows call inside their transactions.
type Ledger interface {
	Credit(ctx context.Context, tx pgx.Tx, e ledger.Entry) (*models.Transaction, error)
	Debit(ctx context.Context, tx pgx.Tx, e ledger.Entry) (*models.Transaction, error)
	AnnotateWithdrawal(ctx context.Context, tx pgx.Tx, userID, withdrawalID uuid.UUID, note string) error
}

// SubmissionRepo is the submission persistence used by ReviewService.
type SubmissionRepo interface {
	GetForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Submission, error)
	GetByUserTaskForUpdate(ctx context.Context, tx pgx.Tx, userID, taskID uuid.UUID) (*models.Submission, error)
	Create(ctx context.Context, tx pgx.Tx, s *models.Submission) error
	Resubmit(ctx context.Context, tx pgx.Tx, id uuid.UUID, proofRef string, at time.Time) (bool, error)
	MarkReviewed(ctx context.Context, tx pgx.Tx, id uuid.UUID, status models.SubmissionStatus, reviewer string, reason *string, at time.Time) (bool, error)
	CountApproved(ctx context.Context, tx pgx.Tx, taskID uuid.UUID) (int, error)
	ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]uuid.UUID, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.Submission, error)
	ListByStatus(ctx context.Context, status models.SubmissionStatus) ([]*models.Submission, error)
}

// TaskRepo is the read-only task access used by ReviewService.
type TaskRepo interface {
	GetByID(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Task, error)
	ListActive(ctx context.Context, userID uuid.UUID) ([]*models.TaskView, error)
}

// ReviewService owns the submission state machine. Admin approval and auto-approval share one
// guarded transition, so a submission is credited at most once whoever gets there first.
type ReviewService struct {
	pool        TxBeginner
	submissions SubmissionRepo
	tasks       TaskRepo
	ledger      Ledger
	audit       audit.Recorder
	clock       clock.Clock
	log         *slog.Logger
}

func NewReviewService(pool TxBeginner, submissions SubmissionRepo, tasks TaskRepo, l Ledger, rec audit.Recorder, clk clock.Clock, log *slog.Logger) *ReviewService {
	if clk == nil {
		clk = clock.Real{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &ReviewService{pool: pool, submissions: submissions, tasks: tasks, ledger: l, audit: rec, clock: clk, log: log}
}

// Submit records proof for a task. A rejected submission is reopened with the new proof; pending
// and approved ones are refused.
func (s *ReviewService) Submit(ctx context.Context, userID, taskID uuid.UUID, proofRef string) (*models.Submission, error) {
	proofRef = strings.TrimSpace(proofRef)
	if proofRef == "" {
		return nil, apperr.Validation(apperr.CodeInvalidProof, "proof is required")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, apperr.Persistence("begin tx", err)
	}
	defer tx.Rollback(ctx)

	task, err := s.tasks.GetByID(ctx, tx, taskID)
	if err != nil {
		return nil, err
	}
	if !task.Active {
		return nil, apperr.Conflict(apperr.CodeTaskInactive, "task is not active")
	}
	if !task.Unlimited() {
		n, err := s.submissions.CountApproved(ctx, tx, taskID)
		if err != nil {
			return nil, err
		}
		if n >= task.MaxLimit {
			return nil, apperr.Conflict(apperr.CodeMaxLimitReached, "task has reached maximum completions")
		}
	}

	existing, err := s.submissions.GetByUserTaskForUpdate(ctx, tx, userID, taskID)
	if err != nil && !errors.Is(err, apperr.ErrNotFound) {
		return nil, err
	}

	now := s.clock.Now()
	var sub *models.Submission
	if existing == nil {
		sub = &models.Submission{
			ID:          uuid.New(),
			UserID:      userID,
			TaskID:      taskID,
			Status:      models.SubmissionPending,
			ProofRef:    proofRef,
			SubmittedAt: now,
		}
		if err := s.submissions.Create(ctx, tx, sub); err != nil {
			if errors.Is(err, apperr.ErrConflict) {
				return nil, apperr.Conflict(apperr.CodeDuplicatePending, "task already submitted, awaiting review")
			}
			return nil, err
		}
	} else {
		switch existing.Status {
		case models.SubmissionPending:
			return nil, apperr.Conflict(apperr.CodeDuplicatePending, "task already submitted, awaiting review")
		case models.SubmissionApproved:
			return nil, apperr.Conflict(apperr.CodeAlreadyApproved, "task already completed")
		case models.SubmissionRejected:
			ok, err := s.submissions.Resubmit(ctx, tx, existing.ID, proofRef, now)
			if err != nil {
				return nil, err
			}
			if !ok {
				return nil, apperr.Conflict(apperr.CodeDuplicatePending, "submission changed concurrently")
			}
		}
		sub = existing
		sub.Status = models.SubmissionPending
		sub.ProofRef = proofRef
		sub.SubmittedAt = now
		sub.ReviewedAt, sub.ReviewedBy, sub.RejectReason = nil, nil, nil
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, apperr.Persistence("commit submit", err)
	}
	metrics.SubmissionTransitions.WithLabelValues(string(models.SubmissionPending), "user").Inc()
	s.log.Info("proof submitted", "submission_id", sub.ID, "user_id", userID, "task_id", taskID)
	return sub, nil
}

// Approve credits the task reward and marks the submission approved. A submission that is no
// longer pending yields a Conflict with code already_reviewed.
func (s *ReviewService) Approve(ctx context.Context, id uuid.UUID, reviewer string) (*models.Submission, error) {
	return s.approve(ctx, id, reviewer, nil)
}

// ApproveStale is Approve on behalf of the scheduler. It also refuses (not_stale) a submission
// whose submitted_at moved past cutoff, e.g. one resubmitted after it was listed.
func (s *ReviewService) ApproveStale(ctx context.Context, id uuid.UUID, cutoff time.Time) (*models.Submission, error) {
	return s.approve(ctx, id, models.SystemReviewer, &cutoff)
}

func (s *ReviewService) approve(ctx context.Context, id uuid.UUID, reviewer string, cutoff *time.Time) (*models.Submission, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, apperr.Persistence("begin tx", err)
	}
	defer tx.Rollback(ctx)

	sub, err := s.submissions.GetForUpdate(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if !sub.Status.CanTransition(models.SubmissionApproved) {
		return nil, apperr.Conflict(apperr.CodeAlreadyReviewed, "submission already "+string(sub.Status))
	}
	if cutoff != nil && sub.SubmittedAt.After(*cutoff) {
		return nil, apperr.Conflict(apperr.CodeNotStale, "submission is newer than the auto-approval cutoff")
	}

	task, err := s.tasks.GetByID(ctx, tx, sub.TaskID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	ok, err := s.submissions.MarkReviewed(ctx, tx, id, models.SubmissionApproved, reviewer, nil, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.Conflict(apperr.CodeAlreadyReviewed, "submission already reviewed")
	}

	note := models.NoteTaskApproved
	if reviewer == models.SystemReviewer {
		note = models.NoteTaskAutoApproved
	}
	ref := sub.ID
	if _, err := s.ledger.Credit(ctx, tx, ledger.Entry{
		UserID:      sub.UserID,
		Amount:      task.RewardAmount,
		Source:      models.SourceTask,
		ReferenceID: &ref,
		Note:        note,
	}); err != nil {
		if errors.Is(err, apperr.ErrConflict) {
			return nil, apperr.Conflict(apperr.CodeAlreadyReviewed, "reward already credited")
		}
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, apperr.Persistence("commit approve", err)
	}

	sub.Status = models.SubmissionApproved
	sub.ReviewedAt = &now
	sub.ReviewedBy = &reviewer
	sub.RewardAmount = task.RewardAmount
	sub.TaskTitle = task.Title

	metrics.SubmissionTransitions.WithLabelValues(string(models.SubmissionApproved), reviewerKind(reviewer)).Inc()
	s.audit.Record(ctx, models.AuditEntry{
		ActorID:    reviewer,
		Action:     models.ActionApproveProof,
		TargetType: models.TargetSubmission,
		TargetID:   sub.ID,
		Details: audit.Details(map[string]any{
			"user_id": sub.UserID,
			"task_id": sub.TaskID,
			"reward":  task.RewardAmount,
		}),
	})
	return sub, nil
}

// Reject marks a pending submission rejected. No money moves.
func (s *ReviewService) Reject(ctx context.Context, id uuid.UUID, reviewer, reason string) (*models.Submission, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = models.DefaultProofRejectReason
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, apperr.Persistence("begin tx", err)
	}
	defer tx.Rollback(ctx)

	sub, err := s.submissions.GetForUpdate(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if !sub.Status.CanTransition(models.SubmissionRejected) {
		return nil, apperr.Conflict(apperr.CodeAlreadyReviewed, "submission already "+string(sub.Status))
	}
	now := s.clock.Now()
	ok, err := s.submissions.MarkReviewed(ctx, tx, id, models.SubmissionRejected, reviewer, &reason, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.Conflict(apperr.CodeAlreadyReviewed, "submission already reviewed")
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, apperr.Persistence("commit reject", err)
	}

	sub.Status = models.SubmissionRejected
	sub.ReviewedAt = &now
	sub.ReviewedBy = &reviewer
	sub.RejectReason = &reason

	metrics.SubmissionTransitions.WithLabelValues(string(models.SubmissionRejected), reviewerKind(reviewer)).Inc()
	s.audit.Record(ctx, models.AuditEntry{
		ActorID:    reviewer,
		Action:     models.ActionRejectProof,
		TargetType: models.TargetSubmission,
		TargetID:   sub.ID,
		Details:    audit.Details(map[string]any{"user_id": sub.UserID, "reason": reason}),
	})
	return sub, nil
}

// ListStalePending is the scheduler's work list.
func (s *ReviewService) ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]uuid.UUID, error) {
	return s.submissions.ListStalePending(ctx, cutoff, limit)
}

func (s *ReviewService) ListForUser(ctx context.Context, userID uuid.UUID) ([]*models.Submission, error) {
	return s.submissions.ListByUser(ctx, userID)
}

func (s *ReviewService) ListByStatus(ctx context.Context, status models.SubmissionStatus) ([]*models.Submission, error) {
	return s.submissions.ListByStatus(ctx, status)
}

func (s *ReviewService) ListTasks(ctx context.Context, userID uuid.UUID) ([]*models.TaskView, error) {
	return s.tasks.ListActive(ctx, userID)
}

func reviewerKind(reviewer string) string {
	if reviewer == models.SystemReviewer {
		return "system"
	}
	return "admin"
}
