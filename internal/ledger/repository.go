package ledger

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/neeraj2004kumar2006-pixel/earn4sub/internal/apperr"
	"github.com/neeraj2004kumar2006-pixel/earn4sub/internal/models"
)

// Repository is the Postgres Store.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ Store = (*Repository)(nil)

func (r *Repository) AddBalance(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amount decimal.Decimal) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := tx.QueryRow(ctx, `
		UPDATE users SET wallet_balance = wallet_balance + $1
		WHERE id = $2
		RETURNING wallet_balance
	`, amount, userID).Scan(&balance)
	if err != nil {
		return decimal.Zero, apperr.FromPG("add balance", "user", err)
	}
	return balance, nil
}

// SubtractBalance debits only when wallet_balance >= amount. Zero rows means either the user is
// missing or the balance is too low; a second read tells which.
func (r *Repository) SubtractBalance(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amount decimal.Decimal) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := tx.QueryRow(ctx, `
		UPDATE users SET wallet_balance = wallet_balance - $1
		WHERE id = $2 AND wallet_balance >= $1
		RETURNING wallet_balance
	`, amount, userID).Scan(&balance)
	if err == nil {
		return balance, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, apperr.Persistence("subtract balance", err)
	}
	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, userID).Scan(&exists); err != nil {
		return decimal.Zero, apperr.Persistence("check user", err)
	}
	if !exists {
		return decimal.Zero, apperr.NotFound("user")
	}
	return decimal.Zero, apperr.InsufficientBalance()
}

func (r *Repository) InsertTransaction(ctx context.Context, tx pgx.Tx, t *models.Transaction) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO transactions (id, user_id, amount, type, source, reference_id, note, balance_after, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, t.ID, t.UserID, t.Amount, t.Type, t.Source, t.ReferenceID, t.Note, t.BalanceAfter, t.CreatedAt)
	return apperr.FromPG("insert transaction", "transaction", err)
}

func (r *Repository) UpdateNote(ctx context.Context, tx pgx.Tx, userID uuid.UUID, source models.TransactionSource, referenceID uuid.UUID, note string) error {
	_, err := tx.Exec(ctx, `
		UPDATE transactions SET note = $1
		WHERE user_id = $2 AND source = $3 AND reference_id = $4
	`, note, userID, source, referenceID)
	return err
}

func (r *Repository) Balance(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := r.pool.QueryRow(ctx, `SELECT wallet_balance FROM users WHERE id = $1`, userID).Scan(&balance)
	if err != nil {
		return decimal.Zero, apperr.FromPG("read balance", "user", err)
	}
	return balance, nil
}

func (r *Repository) Totals(ctx context.Context, userID uuid.UUID) (*Totals, error) {
	var t Totals
	err := r.pool.QueryRow(ctx, `
		SELECT
			COALESCE(SUM(amount) FILTER (WHERE type = 'credit'), 0),
			COALESCE(SUM(amount) FILTER (WHERE type = 'debit'), 0),
			COUNT(*)
		FROM transactions WHERE user_id = $1
	`, userID).Scan(&t.Credits, &t.Debits, &t.Count)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *Repository) ListRecent(ctx context.Context, userID uuid.UUID, limit int) ([]*models.Transaction, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, amount, type, source, reference_id, note, balance_after, created_at
		FROM transactions WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Transaction
	for rows.Next() {
		var t models.Transaction
		if err := rows.Scan(&t.ID, &t.UserID, &t.Amount, &t.Type, &t.Source, &t.ReferenceID, &t.Note, &t.BalanceAfter, &t.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, &t)
	}
	return list, rows.Err()
}
