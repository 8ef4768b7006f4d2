package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/neeraj2004kumar2006-pixel/earn4sub/internal/apperr"
	"github.com/neeraj2004kumar2006-pixel/earn4sub/internal/audit"
	"github.com/neeraj2004kumar2006-pixel/earn4sub/internal/clock"
	"github.com/neeraj2004kumar2006-pixel/earn4sub/internal/ledger"
	"github.com/neeraj2004kumar2006-pixel/earn4sub/internal/metrics"
	"github.com/neeraj2004kumar2006-pixel/earn4sub/internal/models"
)

// MinPayoutAddressLen is the shortest UPI id accepted after trimming.
const MinPayoutAddressLen = 5

// UserRepo is the user access needed by WithdrawalService.
type UserRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.User, error)
}

// WithdrawalRepo is the withdrawal persistence used by WithdrawalService.
type WithdrawalRepo interface {
	HasPending(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (bool, error)
	Create(ctx context.Context, tx pgx.Tx, w *models.Withdrawal) error
	GetForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Withdrawal, error)
	Resolve(ctx context.Context, tx pgx.Tx, id uuid.UUID, status models.WithdrawalStatus, processedBy string, reason *string, at time.Time) (bool, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.Withdrawal, error)
	ListByStatus(ctx context.Context, status models.WithdrawalStatus) ([]*models.Withdrawal, error)
}

// WithdrawalService reserves funds when a withdrawal is requested and either keeps them (approve)
// or refunds them (reject). Every step runs in one transaction with its ledger entry.
type WithdrawalService struct {
	pool          TxBeginner
	users         UserRepo
	withdrawals   WithdrawalRepo
	ledger        Ledger
	audit         audit.Recorder
	clock         clock.Clock
	log           *slog.Logger
	minWithdrawal decimal.Decimal
}

func NewWithdrawalService(pool TxBeginner, users UserRepo, withdrawals WithdrawalRepo, l Ledger, rec audit.Recorder, minWithdrawal decimal.Decimal, clk clock.Clock, log *slog.Logger) *WithdrawalService {
	if clk == nil {
		clk = clock.Real{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &WithdrawalService{
		pool: pool, users: users, withdrawals: withdrawals, ledger: l, audit: rec,
		clock: clk, log: log, minWithdrawal: minWithdrawal,
	}
}

// Info is the caller's withdrawal page.
type Info struct {
	WalletBalance decimal.Decimal      `json:"wallet_balance"`
	KYCStatus     models.KYCStatus     `json:"kyc_status"`
	PayoutAddress string               `json:"upi_id"`
	MinWithdrawal decimal.Decimal      `json:"min_withdrawal"`
	Withdrawals   []*models.Withdrawal `json:"withdrawals"`
}

func (s *WithdrawalService) MinWithdrawal() decimal.Decimal { return s.minWithdrawal }

func (s *WithdrawalService) Info(ctx context.Context, userID uuid.UUID) (*Info, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	list, err := s.withdrawals.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &Info{
		WalletBalance: u.WalletBalance,
		KYCStatus:     u.KYCStatus,
		PayoutAddress: u.PayoutAddress,
		MinWithdrawal: s.minWithdrawal,
		Withdrawals:   list,
	}, nil
}

// Request creates a pending withdrawal and debits amount in the same transaction.
func (s *WithdrawalService) Request(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, payoutAddress string) (*models.Withdrawal, error) {
	payoutAddress = strings.TrimSpace(payoutAddress)
	if !amount.IsPositive() {
		return nil, apperr.Validation(apperr.CodeInvalidAmount, "amount must be greater than zero")
	}
	if !models.WholeCents(amount) {
		return nil, apperr.Validation(apperr.CodeInvalidAmount, "amount has more than two decimal places")
	}
	if utf8.RuneCountInString(payoutAddress) < MinPayoutAddressLen {
		return nil, apperr.Validation(apperr.CodeInvalidPayoutAddress, "valid UPI id is required")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, apperr.Persistence("begin tx", err)
	}
	defer tx.Rollback(ctx)

	// Locking the user serializes concurrent requests by the same user.
	u, err := s.users.GetForUpdate(ctx, tx, userID)
	if err != nil {
		return nil, err
	}
	if u.KYCStatus != models.KYCApproved {
		return nil, apperr.Conflict(apperr.CodeKYCNotApproved, "KYC verification required before withdrawal")
	}
	if amount.LessThan(s.minWithdrawal) {
		return nil, apperr.Validation(apperr.CodeBelowMinimum, "minimum withdrawal is "+s.minWithdrawal.StringFixed(2))
	}
	if amount.GreaterThan(u.WalletBalance) {
		return nil, apperr.InsufficientBalance()
	}
	pending, err := s.withdrawals.HasPending(ctx, tx, userID)
	if err != nil {
		return nil, err
	}
	if pending {
		return nil, apperr.Conflict(apperr.CodePendingExists, "a withdrawal request is already pending")
	}

	w := &models.Withdrawal{
		ID:            uuid.New(),
		UserID:        userID,
		Amount:        amount,
		PayoutAddress: payoutAddress,
		Status:        models.WithdrawalPending,
		CreatedAt:     s.clock.Now(),
	}
	if err := s.withdrawals.Create(ctx, tx, w); err != nil {
		if errors.Is(err, apperr.ErrConflict) {
			return nil, apperr.Conflict(apperr.CodePendingExists, "a withdrawal request is already pending")
		}
		return nil, err
	}
	ref := w.ID
	if _, err := s.ledger.Debit(ctx, tx, ledger.Entry{
		UserID:      userID,
		Amount:      amount,
		Source:      models.SourceWithdrawal,
		ReferenceID: &ref,
		Note:        models.NoteWithdrawalReserved,
	}); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, apperr.Persistence("commit withdrawal request", err)
	}

	metrics.Withdrawals.WithLabelValues("requested").Inc()
	s.log.Info("withdrawal requested", "withdrawal_id", w.ID, "user_id", userID, "amount", amount.String())
	s.audit.Record(ctx, models.AuditEntry{
		ActorID:    userID.String(),
		Action:     models.ActionRequestWithdrawal,
		TargetType: models.TargetWithdrawal,
		TargetID:   w.ID,
		Details:    audit.Details(map[string]any{"amount": amount, "upi_id": payoutAddress}),
	})
	return w, nil
}

// Approve finalizes a pending withdrawal. The funds were already debited at request time, so only
// the status and the debit's note change.
func (s *WithdrawalService) Approve(ctx context.Context, id uuid.UUID, reviewer string) (*models.Withdrawal, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, apperr.Persistence("begin tx", err)
	}
	defer tx.Rollback(ctx)

	w, err := s.lockPending(ctx, tx, id, models.WithdrawalApproved)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	if err := s.resolve(ctx, tx, w, models.WithdrawalApproved, reviewer, nil, now); err != nil {
		return nil, err
	}
	if err := s.ledger.AnnotateWithdrawal(ctx, tx, w.UserID, w.ID, models.NoteWithdrawalPaid); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, apperr.Persistence("commit withdrawal approval", err)
	}

	metrics.Withdrawals.WithLabelValues("approved").Inc()
	s.audit.Record(ctx, models.AuditEntry{
		ActorID:    reviewer,
		Action:     models.ActionApproveWithdrawal,
		TargetType: models.TargetWithdrawal,
		TargetID:   w.ID,
		Details:    audit.Details(map[string]any{"user_id": w.UserID, "amount": w.Amount}),
	})
	return w, nil
}

// Reject refunds exactly the reserved amount and closes the withdrawal.
func (s *WithdrawalService) Reject(ctx context.Context, id uuid.UUID, reviewer, reason string) (*models.Withdrawal, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = models.DefaultWithdrawalRejectReason
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, apperr.Persistence("begin tx", err)
	}
	defer tx.Rollback(ctx)

	w, err := s.lockPending(ctx, tx, id, models.WithdrawalRejected)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	if err := s.resolve(ctx, tx, w, models.WithdrawalRejected, reviewer, &reason, now); err != nil {
		return nil, err
	}
	ref := w.ID
	if _, err := s.ledger.Credit(ctx, tx, ledger.Entry{
		UserID:      w.UserID,
		Amount:      w.Amount,
		Source:      models.SourceWithdrawalRefund,
		ReferenceID: &ref,
		Note:        models.NoteWithdrawalRefunded,
	}); err != nil {
		if errors.Is(err, apperr.ErrConflict) {
			return nil, apperr.Conflict(apperr.CodeAlreadyProcessed, "withdrawal already refunded")
		}
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, apperr.Persistence("commit withdrawal rejection", err)
	}

	metrics.Withdrawals.WithLabelValues("rejected").Inc()
	s.audit.Record(ctx, models.AuditEntry{
		ActorID:    reviewer,
		Action:     models.ActionRejectWithdrawal,
		TargetType: models.TargetWithdrawal,
		TargetID:   w.ID,
		Details:    audit.Details(map[string]any{"user_id": w.UserID, "amount": w.Amount, "reason": reason}),
	})
	return w, nil
}

func (s *WithdrawalService) ListByStatus(ctx context.Context, status models.WithdrawalStatus) ([]*models.Withdrawal, error) {
	return s.withdrawals.ListByStatus(ctx, status)
}

func (s *WithdrawalService) lockPending(ctx context.Context, tx pgx.Tx, id uuid.UUID, next models.WithdrawalStatus) (*models.Withdrawal, error) {
	w, err := s.withdrawals.GetForUpdate(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if !w.Status.CanTransition(next) {
		return nil, apperr.Conflict(apperr.CodeAlreadyProcessed, "withdrawal already "+string(w.Status))
	}
	return w, nil
}

func (s *WithdrawalService) resolve(ctx context.Context, tx pgx.Tx, w *models.Withdrawal, status models.WithdrawalStatus, reviewer string, reason *string, at time.Time) error {
	ok, err := s.withdrawals.Resolve(ctx, tx, w.ID, status, reviewer, reason, at)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.Conflict(apperr.CodeAlreadyProcessed, "withdrawal already processed")
	}
	w.Status = status
	w.ProcessedAt = &at
	w.ProcessedBy = &reviewer
	w.RejectReason = reason
	return nil
}
