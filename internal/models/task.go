package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Task is a sponsored action. The core only reads tasks.
type Task struct {
	ID           uuid.UUID       `json:"id"`
	Title        string          `json:"title"`
	RewardAmount decimal.Decimal `json:"reward_amount"`
	MaxLimit     int             `json:"max_limit"` // 0 = unlimited approved submissions
	Active       bool            `json:"active"`
	CreatedAt    time.Time       `json:"created_at"`
}

// Unlimited reports whether the task accepts any number of approved submissions.
func (t *Task) Unlimited() bool { return t.MaxLimit <= 0 }

// TaskView is a task as listed to one user.
type TaskView struct {
	Task
	UserStatus   *SubmissionStatus `json:"user_status,omitempty"`
	RejectReason *string           `json:"reject_reason,omitempty"`
	Completions  int               `json:"completions"`
}
