package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/neeraj2004kumar2006-pixel/earn4sub/internal/apperr"
	"github.com/neeraj2004kumar2006-pixel/earn4sub/internal/ledger"
	"github.com/neeraj2004kumar2006-pixel/earn4sub/internal/models"
	"github.com/neeraj2004kumar2006-pixel/earn4sub/internal/services"
)

// WalletReader is the read side of the ledger.
type WalletReader interface {
	Summary(ctx context.Context, userID uuid.UUID) (*ledger.Summary, error)
	Reconcile(ctx context.Context, userID uuid.UUID) (*ledger.Reconciliation, error)
}

// WithdrawalFlow is the withdrawal service surface used over HTTP.
type WithdrawalFlow interface {
	Info(ctx context.Context, userID uuid.UUID) (*services.Info, error)
	Request(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, payoutAddress string) (*models.Withdrawal, error)
	Approve(ctx context.Context, id uuid.UUID, reviewer string) (*models.Withdrawal, error)
	Reject(ctx context.Context, id uuid.UUID, reviewer, reason string) (*models.Withdrawal, error)
	ListByStatus(ctx context.Context, status models.WithdrawalStatus) ([]*models.Withdrawal, error)
}

// WalletHandler serves the wallet and withdrawal endpoints.
type WalletHandler struct {
	Wallet      WalletReader
	Withdrawals WithdrawalFlow
	Logger      *slog.Logger
}

// --- GET /api/wallet ---

func (h *WalletHandler) Summary(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(r)
	if !ok {
		unauthorized(w)
		return
	}
	sum, err := h.Wallet.Summary(r.Context(), id.UserID)
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

// --- GET /api/withdraw ---

func (h *WalletHandler) WithdrawInfo(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(r)
	if !ok {
		unauthorized(w)
		return
	}
	info, err := h.Withdrawals.Info(r.Context(), id.UserID)
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// --- POST /api/withdraw/request ---

type withdrawRequest struct {
	Amount decimal.Decimal `json:"amount"`
	UPIID  string          `json:"upi_id"`
}

func (h *WalletHandler) RequestWithdrawal(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(r)
	if !ok {
		unauthorized(w)
		return
	}
	var req withdrawRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.Logger, err)
		return
	}
	wd, err := h.Withdrawals.Request(r.Context(), id.UserID, req.Amount, req.UPIID)
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, wd)
}

// --- GET /api/admin/withdrawals?status= ---

func (h *WalletHandler) AdminList(w http.ResponseWriter, r *http.Request) {
	status := models.WithdrawalPending
	if q := r.URL.Query().Get("status"); q != "" {
		st, err := models.ParseWithdrawalStatus(q)
		if err != nil {
			writeError(w, h.Logger, apperr.Validation(apperr.CodeInvalidRequest, err.Error()))
			return
		}
		status = st
	}
	list, err := h.Withdrawals.ListByStatus(r.Context(), status)
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// --- POST /api/admin/withdrawals/{id}/approve ---

func (h *WalletHandler) AdminApprove(w http.ResponseWriter, r *http.Request) {
	admin, ok := caller(r)
	if !ok {
		unauthorized(w)
		return
	}
	id, err := pathID(r)
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	wd, err := h.Withdrawals.Approve(r.Context(), id, admin.UserID.String())
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, wd)
}

// --- POST /api/admin/withdrawals/{id}/reject ---

func (h *WalletHandler) AdminReject(w http.ResponseWriter, r *http.Request) {
	admin, ok := caller(r)
	if !ok {
		unauthorized(w)
		return
	}
	id, err := pathID(r)
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	var req rejectRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.Logger, err)
		return
	}
	wd, err := h.Withdrawals.Reject(r.Context(), id, admin.UserID.String(), req.Reason)
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, wd)
}

// --- GET /api/admin/users/{id}/reconcile ---

func (h *WalletHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	rec, err := h.Wallet.Reconcile(r.Context(), id)
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	if !rec.Consistent {
		h.Logger.Warn("wallet balance drifted from ledger", "user_id", id,
			"wallet_balance", rec.WalletBalance.String(), "ledger_balance", rec.LedgerBalance.String())
	}
	writeJSON(w, http.StatusOK, rec)
}
