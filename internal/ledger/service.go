package ledger

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/neeraj2004kumar2006-pixel/earn4sub/internal/apperr"
	"github.com/neeraj2004kumar2006-pixel/earn4sub/internal/clock"
	"github.com/neeraj2004kumar2006-pixel/earn4sub/internal/metrics"
	"github.com/neeraj2004kumar2006-pixel/earn4sub/internal/models"
)

// RecentLimit is how many transactions a wallet summary carries.
const RecentLimit = 50

// Entry describes one balance change.
type Entry struct {
	UserID      uuid.UUID
	Amount      decimal.Decimal
	Source      models.TransactionSource
	ReferenceID *uuid.UUID
	Note        string
}

// Store is the persistence the ledger needs. Mutating methods run inside the caller's transaction.
type Store interface {
	AddBalance(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amount decimal.Decimal) (decimal.Decimal, error)
	// SubtractBalance returns apperr InsufficientBalance or NotFound when nothing was debited.
	SubtractBalance(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amount decimal.Decimal) (decimal.Decimal, error)
	InsertTransaction(ctx context.Context, tx pgx.Tx, t *models.Transaction) error
	UpdateNote(ctx context.Context, tx pgx.Tx, userID uuid.UUID, source models.TransactionSource, referenceID uuid.UUID, note string) error

	Balance(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error)
	Totals(ctx context.Context, userID uuid.UUID) (*Totals, error)
	ListRecent(ctx context.Context, userID uuid.UUID, limit int) ([]*models.Transaction, error)
}

// Totals aggregates a user's ledger.
type Totals struct {
	Credits decimal.Decimal
	Debits  decimal.Decimal
	Count   int
}

type Summary struct {
	WalletBalance     decimal.Decimal       `json:"wallet_balance"`
	TotalEarned       decimal.Decimal       `json:"total_earned"`
	TotalWithdrawn    decimal.Decimal       `json:"total_withdrawn"`
	TotalTransactions int                   `json:"total_transactions"`
	Transactions      []*models.Transaction `json:"transactions"`
}

// Reconciliation compares the stored balance with the ledger it should equal.
type Reconciliation struct {
	UserID        uuid.UUID       `json:"user_id"`
	WalletBalance decimal.Decimal `json:"wallet_balance"`
	LedgerBalance decimal.Decimal `json:"ledger_balance"`
	Consistent    bool            `json:"consistent"`
}

type Service interface {
	Credit(ctx context.Context, tx pgx.Tx, e Entry) (*models.Transaction, error)
	Debit(ctx context.Context, tx pgx.Tx, e Entry) (*models.Transaction, error)
	AnnotateWithdrawal(ctx context.Context, tx pgx.Tx, userID, withdrawalID uuid.UUID, note string) error
	Summary(ctx context.Context, userID uuid.UUID) (*Summary, error)
	Reconcile(ctx context.Context, userID uuid.UUID) (*Reconciliation, error)
}

type service struct {
	store Store
	clock clock.Clock
}

func NewService(store Store, clk clock.Clock) Service {
	if clk == nil {
		clk = clock.Real{}
	}
	return &service{store: store, clock: clk}
}

var _ Service = (*service)(nil)

// Credit adds e.Amount to the user's balance and appends a credit row. Call within a transaction.
func (s *service) Credit(ctx context.Context, tx pgx.Tx, e Entry) (*models.Transaction, error) {
	if err := validate(e); err != nil {
		return nil, err
	}
	balance, err := s.store.AddBalance(ctx, tx, e.UserID, e.Amount)
	if err != nil {
		return nil, apperr.Persistence("credit balance", err)
	}
	return s.append(ctx, tx, e, models.TxCredit, balance)
}

// Debit subtracts e.Amount only if the balance covers it, then appends a debit row.
// The check and the update are one statement. Call within a transaction.
func (s *service) Debit(ctx context.Context, tx pgx.Tx, e Entry) (*models.Transaction, error) {
	if err := validate(e); err != nil {
		return nil, err
	}
	balance, err := s.store.SubtractBalance(ctx, tx, e.UserID, e.Amount)
	if err != nil {
		if apperr.CodeOf(err) == apperr.CodeInsufficientBalance {
			metrics.LedgerRejectedDebits.Inc()
		}
		return nil, apperr.Persistence("debit balance", err)
	}
	return s.append(ctx, tx, e, models.TxDebit, balance)
}

// AnnotateWithdrawal rewrites the note on a withdrawal's debit row. It is the only update the ledger allows.
func (s *service) AnnotateWithdrawal(ctx context.Context, tx pgx.Tx, userID, withdrawalID uuid.UUID, note string) error {
	return apperr.Persistence("annotate withdrawal debit",
		s.store.UpdateNote(ctx, tx, userID, models.SourceWithdrawal, withdrawalID, note))
}

func (s *service) append(ctx context.Context, tx pgx.Tx, e Entry, typ models.TransactionType, balance decimal.Decimal) (*models.Transaction, error) {
	t := &models.Transaction{
		ID:           uuid.New(),
		UserID:       e.UserID,
		Amount:       e.Amount,
		Type:         typ,
		Source:       e.Source,
		ReferenceID:  e.ReferenceID,
		Note:         e.Note,
		BalanceAfter: balance,
		CreatedAt:    s.clock.Now(),
	}
	if err := s.store.InsertTransaction(ctx, tx, t); err != nil {
		return nil, apperr.Persistence("insert transaction", err)
	}
	metrics.LedgerEntries.WithLabelValues(string(typ), string(e.Source)).Inc()
	return t, nil
}

func validate(e Entry) error {
	if !e.Amount.IsPositive() {
		return apperr.Validation(apperr.CodeInvalidAmount, "amount must be greater than zero")
	}
	if !models.WholeCents(e.Amount) {
		return apperr.Validation(apperr.CodeInvalidAmount, "amount has more than two decimal places")
	}
	if !e.Source.Valid() {
		return apperr.Validation(apperr.CodeInvalidRequest, "unknown transaction source "+string(e.Source))
	}
	if e.UserID == uuid.Nil {
		return apperr.Validation(apperr.CodeInvalidRequest, "user id is required")
	}
	return nil
}

// Summary returns balance, lifetime totals and the most recent transactions, newest first.
func (s *service) Summary(ctx context.Context, userID uuid.UUID) (*Summary, error) {
	balance, err := s.store.Balance(ctx, userID)
	if err != nil {
		return nil, apperr.Persistence("read balance", err)
	}
	totals, err := s.store.Totals(ctx, userID)
	if err != nil {
		return nil, apperr.Persistence("read totals", err)
	}
	recent, err := s.store.ListRecent(ctx, userID, RecentLimit)
	if err != nil {
		return nil, apperr.Persistence("list transactions", err)
	}
	if recent == nil {
		recent = []*models.Transaction{}
	}
	return &Summary{
		WalletBalance:     balance,
		TotalEarned:       totals.Credits,
		TotalWithdrawn:    totals.Debits,
		TotalTransactions: totals.Count,
		Transactions:      recent,
	}, nil
}

// Reconcile checks wallet_balance against the sum of credits minus debits.
func (s *service) Reconcile(ctx context.Context, userID uuid.UUID) (*Reconciliation, error) {
	balance, err := s.store.Balance(ctx, userID)
	if err != nil {
		return nil, apperr.Persistence("read balance", err)
	}
	totals, err := s.store.Totals(ctx, userID)
	if err != nil {
		return nil, apperr.Persistence("read totals", err)
	}
	ledger := totals.Credits.Sub(totals.Debits)
	return &Reconciliation{
		UserID:        userID,
		WalletBalance: balance,
		LedgerBalance: ledger,
		Consistent:    balance.Equal(ledger),
	}, nil
}
