package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/neeraj2004kumar2006-pixel/earn4sub/internal/apperr"
	"github.com/neeraj2004kumar2006-pixel/earn4sub/internal/models"
)

type TaskRepo struct {
	pool *pgxpool.Pool
}

func NewTaskRepo(pool *pgxpool.Pool) *TaskRepo {
	return &TaskRepo{pool: pool}
}

// GetByID reads a task inside the caller's transaction.
func (r *TaskRepo) GetByID(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Task, error) {
	var t models.Task
	err := tx.QueryRow(ctx, `
		SELECT id, title, reward_amount, max_limit, active, created_at
		FROM tasks WHERE id = $1
	`, id).Scan(&t.ID, &t.Title, &t.RewardAmount, &t.MaxLimit, &t.Active, &t.CreatedAt)
	if err != nil {
		return nil, apperr.FromPG("get task", "task", err)
	}
	return &t, nil
}

// ListActive returns active tasks newest first, each with the caller's submission status and the
// number of approved completions.
func (r *TaskRepo) ListActive(ctx context.Context, userID uuid.UUID) ([]*models.TaskView, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT t.id, t.title, t.reward_amount, t.max_limit, t.active, t.created_at,
			s.status, s.reject_reason,
			(SELECT COUNT(*) FROM submissions c WHERE c.task_id = t.id AND c.status = 'approved')
		FROM tasks t
		LEFT JOIN submissions s ON s.task_id = t.id AND s.user_id = $1
		WHERE t.active
		ORDER BY t.created_at DESC
	`, userID)
	if err != nil {
		return nil, apperr.Persistence("list tasks", err)
	}
	defer rows.Close()
	list := []*models.TaskView{}
	for rows.Next() {
		var v models.TaskView
		if err := rows.Scan(&v.ID, &v.Title, &v.RewardAmount, &v.MaxLimit, &v.Active, &v.CreatedAt,
			&v.UserStatus, &v.RejectReason, &v.Completions); err != nil {
			return nil, apperr.Persistence("scan task", err)
		}
		list = append(list, &v)
	}
	return list, apperr.Persistence("list tasks", rows.Err())
}

// Upsert is used by the seed command; the catalog itself is managed elsewhere.
func (r *TaskRepo) Upsert(ctx context.Context, t *models.Task) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO tasks (id, title, reward_amount, max_limit, active)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title, reward_amount = EXCLUDED.reward_amount,
			max_limit = EXCLUDED.max_limit, active = EXCLUDED.active
	`, t.ID, t.Title, t.RewardAmount, t.MaxLimit, t.Active)
	return apperr.FromPG("upsert task", "task", err)
}
