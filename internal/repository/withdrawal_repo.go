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

const withdrawalColumns = `w.id, w.user_id, w.amount, w.payout_address, w.status, w.created_at, w.processed_at, w.processed_by, w.reject_reason`

type WithdrawalRepo struct {
	pool *pgxpool.Pool
}

func NewWithdrawalRepo(pool *pgxpool.Pool) *WithdrawalRepo {
	return &WithdrawalRepo{pool: pool}
}

func withdrawalDest(w *models.Withdrawal) []any {
	return []any{&w.ID, &w.UserID, &w.Amount, &w.PayoutAddress, &w.Status, &w.CreatedAt, &w.ProcessedAt, &w.ProcessedBy, &w.RejectReason}
}

func (r *WithdrawalRepo) HasPending(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (bool, error) {
	var exists bool
	err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM withdrawals WHERE user_id = $1 AND status = 'pending')`, userID).Scan(&exists)
	if err != nil {
		return false, apperr.Persistence("check pending withdrawal", err)
	}
	return exists, nil
}

func (r *WithdrawalRepo) Create(ctx context.Context, tx pgx.Tx, w *models.Withdrawal) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO withdrawals (id, user_id, amount, payout_address, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, w.ID, w.UserID, w.Amount, w.PayoutAddress, w.Status, w.CreatedAt)
	return apperr.FromPG("insert withdrawal", "withdrawal", err)
}

// GetForUpdate locks the withdrawal row. Call within a transaction.
func (r *WithdrawalRepo) GetForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Withdrawal, error) {
	var w models.Withdrawal
	err := tx.QueryRow(ctx, `SELECT `+withdrawalColumns+` FROM withdrawals w WHERE w.id = $1 FOR UPDATE`, id).Scan(withdrawalDest(&w)...)
	if err != nil {
		return nil, apperr.FromPG("lock withdrawal", "withdrawal", err)
	}
	return &w, nil
}

// Resolve moves a pending withdrawal to a terminal status. False means it was no longer pending.
func (r *WithdrawalRepo) Resolve(ctx context.Context, tx pgx.Tx, id uuid.UUID, status models.WithdrawalStatus, processedBy string, reason *string, at time.Time) (bool, error) {
	tag, err := tx.Exec(ctx, `
		UPDATE withdrawals
		SET status = $2, processed_by = $3, reject_reason = $4, processed_at = $5
		WHERE id = $1 AND status = 'pending'
	`, id, status, processedBy, reason, at)
	if err != nil {
		return false, apperr.Persistence("resolve withdrawal", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *WithdrawalRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.Withdrawal, error) {
	return r.list(ctx, `WHERE w.user_id = $1 ORDER BY w.created_at DESC`, userID)
}

func (r *WithdrawalRepo) ListByStatus(ctx context.Context, status models.WithdrawalStatus) ([]*models.Withdrawal, error) {
	return r.list(ctx, `WHERE w.status = $1 ORDER BY w.created_at DESC`, status)
}

func (r *WithdrawalRepo) list(ctx context.Context, where string, arg any) ([]*models.Withdrawal, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+withdrawalColumns+`, u.email
		FROM withdrawals w
		JOIN users u ON u.id = w.user_id
		`+where, arg)
	if err != nil {
		return nil, apperr.Persistence("list withdrawals", err)
	}
	defer rows.Close()
	list := []*models.Withdrawal{}
	for rows.Next() {
		var w models.Withdrawal
		if err := rows.Scan(append(withdrawalDest(&w), &w.UserEmail)...); err != nil {
			return nil, apperr.Persistence("scan withdrawal", err)
		}
		list = append(list, &w)
	}
	return list, apperr.Persistence("list withdrawals", rows.Err())
}
