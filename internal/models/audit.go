package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Audited actions.
const (
	ActionApproveProof      = "approve_proof"
	ActionRejectProof       = "reject_proof"
	ActionRequestWithdrawal = "request_withdrawal"
	ActionApproveWithdrawal = "approve_withdrawal"
	ActionRejectWithdrawal  = "reject_withdrawal"
)

const (
	TargetSubmission = "submission"
	TargetWithdrawal = "withdrawal"
)

type AuditEntry struct {
	ID         uuid.UUID       `json:"id"`
	ActorID    string          `json:"actor_id"`
	Action     string          `json:"action"`
	TargetType string          `json:"target_type"`
	TargetID   uuid.UUID       `json:"target_id"`
	Details    json.RawMessage `json:"details,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}
