package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type SubmissionStatus string

const (
	SubmissionPending  SubmissionStatus = "pending"
	SubmissionApproved SubmissionStatus = "approved"
	SubmissionRejected SubmissionStatus = "rejected"
)

// ParseSubmissionStatus rejects statuses outside the state machine.
func ParseSubmissionStatus(s string) (SubmissionStatus, error) {
	switch st := SubmissionStatus(s); st {
	case SubmissionPending, SubmissionApproved, SubmissionRejected:
		return st, nil
	}
	return "", fmt.Errorf("unknown submission status %q", s)
}

// CanTransition reports whether a submission may move from s to next.
// approved is terminal; rejected only goes back to pending on resubmission.
func (s SubmissionStatus) CanTransition(next SubmissionStatus) bool {
	switch s {
	case SubmissionPending:
		return next == SubmissionApproved || next == SubmissionRejected
	case SubmissionRejected:
		return next == SubmissionPending
	case SubmissionApproved:
		return false
	}
	return false
}

const DefaultProofRejectReason = "Did not meet requirements"

// Submission is a user's proof for one task. There is at most one per (user, task).
type Submission struct {
	ID           uuid.UUID        `json:"id"`
	UserID       uuid.UUID        `json:"user_id"`
	TaskID       uuid.UUID        `json:"task_id"`
	Status       SubmissionStatus `json:"status"`
	ProofRef     string           `json:"proof_ref"`
	SubmittedAt  time.Time        `json:"submitted_at"`
	ReviewedAt   *time.Time       `json:"reviewed_at,omitempty"`
	ReviewedBy   *string          `json:"reviewed_by,omitempty"`
	RejectReason *string          `json:"reject_reason,omitempty"`

	// Joined for listings.
	TaskTitle    string          `json:"task_title,omitempty"`
	RewardAmount decimal.Decimal `json:"reward_amount"`
	UserEmail    string          `json:"user_email,omitempty"`
}
