package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MoneyPlaces is the scale of every stored amount.
const MoneyPlaces = 2

// WholeCents reports whether d can be stored without rounding.
func WholeCents(d decimal.Decimal) bool {
	return d.Equal(d.Round(MoneyPlaces))
}

type TransactionType string

const (
	TxCredit TransactionType = "credit"
	TxDebit  TransactionType = "debit"
)

func (t TransactionType) Valid() bool {
	return t == TxCredit || t == TxDebit
}

// TransactionSource says why money moved.
type TransactionSource string

const (
	SourceTask             TransactionSource = "task"
	SourceReferral         TransactionSource = "referral"
	SourceWithdrawal       TransactionSource = "withdrawal"
	SourceWithdrawalRefund TransactionSource = "withdrawal_refund"
)

func (s TransactionSource) Valid() bool {
	switch s {
	case SourceTask, SourceReferral, SourceWithdrawal, SourceWithdrawalRefund:
		return true
	}
	return false
}

// ParseTransactionSource rejects sources the ledger does not know.
func ParseTransactionSource(s string) (TransactionSource, error) {
	src := TransactionSource(s)
	if !src.Valid() {
		return "", fmt.Errorf("unknown transaction source %q", s)
	}
	return src, nil
}

// Transaction is one append-only wallet ledger row.
type Transaction struct {
	ID           uuid.UUID         `json:"id"`
	UserID       uuid.UUID         `json:"user_id"`
	Amount       decimal.Decimal   `json:"amount"`
	Type         TransactionType   `json:"type"`
	Source       TransactionSource `json:"source"`
	ReferenceID  *uuid.UUID        `json:"reference_id,omitempty"`
	Note         string            `json:"note"`
	BalanceAfter decimal.Decimal   `json:"balance_after"`
	CreatedAt    time.Time         `json:"created_at"`
}

// Signed returns the amount with the sign of its effect on the balance.
func (t *Transaction) Signed() decimal.Decimal {
	if t.Type == TxDebit {
		return t.Amount.Neg()
	}
	return t.Amount
}
