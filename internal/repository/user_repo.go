package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/neeraj2004kumar2006-pixel/earn4sub/internal/apperr"
	"github.com/neeraj2004kumar2006-pixel/earn4sub/internal/models"
)

const userColumns = `id, email, name, role, wallet_balance, kyc_status, payout_address, created_at`

type UserRepo struct {
	pool *pgxpool.Pool
}

func NewUserRepo(pool *pgxpool.Pool) *UserRepo {
	return &UserRepo{pool: pool}
}

func scanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &u.Role, &u.WalletBalance, &u.KYCStatus, &u.PayoutAddress, &u.CreatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *UserRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	u, err := scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		return nil, apperr.FromPG("get user", "user", err)
	}
	return u, nil
}

// GetForUpdate locks the user row. Call within a transaction.
func (r *UserRepo) GetForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.User, error) {
	u, err := scanUser(tx.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, apperr.FromPG("lock user", "user", err)
	}
	return u, nil
}

// Upsert inserts or refreshes a user row. Accounts are owned by the auth service; this keeps the
// wallet side in step and never touches wallet_balance of an existing row.
func (r *UserRepo) Upsert(ctx context.Context, u *models.User) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO users (id, email, name, role, kyc_status, payout_address)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			email = EXCLUDED.email, name = EXCLUDED.name, role = EXCLUDED.role,
			kyc_status = EXCLUDED.kyc_status, payout_address = EXCLUDED.payout_address
	`, u.ID, u.Email, u.Name, u.Role, u.KYCStatus, u.PayoutAddress)
	return apperr.FromPG("upsert user", "user", err)
}
