package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/neeraj2004kumar2006-pixel/earn4sub/internal/apperr"
	"github.com/neeraj2004kumar2006-pixel/earn4sub/internal/models"
)

const submissionColumns = `s.id, s.user_id, s.task_id, s.status, s.proof_ref, s.submitted_at, s.reviewed_at, s.reviewed_by, s.reject_reason`

type SubmissionRepo struct {
	pool *pgxpool.Pool
}

func NewSubmissionRepo(pool *pgxpool.Pool) *SubmissionRepo {
	return &SubmissionRepo{pool: pool}
}

func submissionDest(s *models.Submission) []any {
	return []any{&s.ID, &s.UserID, &s.TaskID, &s.Status, &s.ProofRef, &s.SubmittedAt, &s.ReviewedAt, &s.ReviewedBy, &s.RejectReason}
}

func scanSubmission(row pgx.Row) (*models.Submission, error) {
	var s models.Submission
	if err := row.Scan(submissionDest(&s)...); err != nil {
		return nil, err
	}
	return &s, nil
}

// GetForUpdate locks the submission row. Call within a transaction.
func (r *SubmissionRepo) GetForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Submission, error) {
	s, err := scanSubmission(tx.QueryRow(ctx, `SELECT `+submissionColumns+` FROM submissions s WHERE s.id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, apperr.FromPG("lock submission", "submission", err)
	}
	return s, nil
}

// GetByUserTaskForUpdate locks the (user, task) submission if one exists.
func (r *SubmissionRepo) GetByUserTaskForUpdate(ctx context.Context, tx pgx.Tx, userID, taskID uuid.UUID) (*models.Submission, error) {
	s, err := scanSubmission(tx.QueryRow(ctx, `
		SELECT `+submissionColumns+` FROM submissions s
		WHERE s.user_id = $1 AND s.task_id = $2 FOR UPDATE
	`, userID, taskID))
	if err != nil {
		return nil, apperr.FromPG("lock submission", "submission", err)
	}
	return s, nil
}

func (r *SubmissionRepo) Create(ctx context.Context, tx pgx.Tx, s *models.Submission) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO submissions (id, user_id, task_id, status, proof_ref, submitted_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, s.ID, s.UserID, s.TaskID, s.Status, s.ProofRef, s.SubmittedAt)
	return apperr.FromPG("insert submission", "submission", err)
}

// Resubmit moves a rejected submission back to pending and clears its review.
func (r *SubmissionRepo) Resubmit(ctx context.Context, tx pgx.Tx, id uuid.UUID, proofRef string, at time.Time) (bool, error) {
	tag, err := tx.Exec(ctx, `
		UPDATE submissions
		SET status = 'pending', proof_ref = $2, submitted_at = $3, reviewed_at = NULL, reviewed_by = NULL, reject_reason = NULL
		WHERE id = $1 AND status = 'rejected'
	`, id, proofRef, at)
	if err != nil {
		return false, apperr.Persistence("resubmit", err)
	}
	return tag.RowsAffected() == 1, nil
}

// MarkReviewed resolves a pending submission. It only matches rows still pending, so a false
// return means another reviewer got there first.
func (r *SubmissionRepo) MarkReviewed(ctx context.Context, tx pgx.Tx, id uuid.UUID, status models.SubmissionStatus, reviewer string, reason *string, at time.Time) (bool, error) {
	tag, err := tx.Exec(ctx, `
		UPDATE submissions
		SET status = $2, reviewed_by = $3, reject_reason = $4, reviewed_at = $5
		WHERE id = $1 AND status = 'pending'
	`, id, status, reviewer, reason, at)
	if err != nil {
		return false, apperr.Persistence("review submission", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *SubmissionRepo) CountApproved(ctx context.Context, tx pgx.Tx, taskID uuid.UUID) (int, error) {
	var n int
	err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM submissions WHERE task_id = $1 AND status = 'approved'`, taskID).Scan(&n)
	if err != nil {
		return 0, apperr.Persistence("count approved", err)
	}
	return n, nil
}

// ListStalePending returns ids of pending submissions submitted at or before cutoff, oldest first.
func (r *SubmissionRepo) ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id FROM submissions
		WHERE status = 'pending' AND submitted_at <= $1
		ORDER BY submitted_at ASC
		LIMIT $2
	`, cutoff, limit)
	if err != nil {
		return nil, apperr.Persistence("list stale submissions", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return nil, apperr.Persistence("list stale submissions", err)
	}
	return ids, nil
}

func (r *SubmissionRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.Submission, error) {
	return r.list(ctx, `WHERE s.user_id = $1 ORDER BY s.submitted_at DESC`, userID)
}

// ListByStatus is the admin review queue, newest first.
func (r *SubmissionRepo) ListByStatus(ctx context.Context, status models.SubmissionStatus) ([]*models.Submission, error) {
	return r.list(ctx, `WHERE s.status = $1 ORDER BY s.submitted_at DESC`, status)
}

func (r *SubmissionRepo) list(ctx context.Context, where string, arg any) ([]*models.Submission, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+submissionColumns+`, t.title, t.reward_amount, u.email
		FROM submissions s
		JOIN tasks t ON t.id = s.task_id
		JOIN users u ON u.id = s.user_id
		`+where, arg)
	if err != nil {
		return nil, apperr.Persistence("list submissions", err)
	}
	defer rows.Close()
	list := []*models.Submission{}
	for rows.Next() {
		var s models.Submission
		dest := append(submissionDest(&s), &s.TaskTitle, &s.RewardAmount, &s.UserEmail)
		if err := rows.Scan(dest...); err != nil {
			return nil, apperr.Persistence("scan submission", err)
		}
		list = append(list, &s)
	}
	return list, apperr.Persistence("list submissions", rows.Err())
}
