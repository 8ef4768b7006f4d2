package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type WithdrawalStatus string

const (
	WithdrawalPending  WithdrawalStatus = "pending"
	WithdrawalApproved WithdrawalStatus = "approved"
	WithdrawalRejected WithdrawalStatus = "rejected"
)

func ParseWithdrawalStatus(s string) (WithdrawalStatus, error) {
	switch st := WithdrawalStatus(s); st {
	case WithdrawalPending, WithdrawalApproved, WithdrawalRejected:
		return st, nil
	}
	return "", fmt.Errorf("unknown withdrawal status %q", s)
}

// CanTransition reports whether a withdrawal may move from s to next. Both outcomes are terminal.
func (s WithdrawalStatus) CanTransition(next WithdrawalStatus) bool {
	switch s {
	case WithdrawalPending:
		return next == WithdrawalApproved || next == WithdrawalRejected
	case WithdrawalApproved, WithdrawalRejected:
		return false
	}
	return false
}

const DefaultWithdrawalRejectReason = "Request rejected"

// Ledger notes written by the money flows.
const (
	NoteTaskApproved       = "Task reward approved"
	NoteTaskAutoApproved   = "Task reward auto-approved"
	NoteWithdrawalReserved = "Withdrawal request submitted"
	NoteWithdrawalPaid     = "Withdrawal approved and processed"
	NoteWithdrawalRefunded = "Withdrawal rejected - amount refunded"
)

type Withdrawal struct {
	ID            uuid.UUID        `json:"id"`
	UserID        uuid.UUID        `json:"user_id"`
	Amount        decimal.Decimal  `json:"amount"`
	PayoutAddress string           `json:"payout_address"`
	Status        WithdrawalStatus `json:"status"`
	CreatedAt     time.Time        `json:"created_at"`
	ProcessedAt   *time.Time       `json:"processed_at,omitempty"`
	ProcessedBy   *string          `json:"processed_by,omitempty"`
	RejectReason  *string          `json:"reject_reason,omitempty"`

	UserEmail string `json:"user_email,omitempty"`
}
