package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SystemReviewer is recorded as reviewed_by when the scheduler promotes a submission.
const SystemReviewer = "system_auto"

type KYCStatus string

const (
	KYCNotSubmitted KYCStatus = "not_submitted"
	KYCPending      KYCStatus = "pending"
	KYCApproved     KYCStatus = "approved"
	KYCRejected     KYCStatus = "rejected"
)

func (s KYCStatus) Valid() bool {
	switch s {
	case KYCNotSubmitted, KYCPending, KYCApproved, KYCRejected:
		return true
	}
	return false
}

// User is a wallet holder. WalletBalance is only ever changed by the ledger.
type User struct {
	ID            uuid.UUID       `json:"id"`
	Email         string          `json:"email"`
	Name          string          `json:"name"`
	Role          string          `json:"role"`
	WalletBalance decimal.Decimal `json:"wallet_balance"`
	KYCStatus     KYCStatus       `json:"kyc_status"`
	PayoutAddress string          `json:"payout_address,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)
