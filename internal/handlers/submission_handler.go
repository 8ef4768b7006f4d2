package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/neeraj2004kumar2006-pixel/earn4sub/internal/apperr"
	"github.com/neeraj2004kumar2006-pixel/earn4sub/internal/models"
)

// SubmissionReviewer is the review service surface used over HTTP.
type SubmissionReviewer interface {
	Submit(ctx context.Context, userID, taskID uuid.UUID, proofRef string) (*models.Submission, error)
	Approve(ctx context.Context, id uuid.UUID, reviewer string) (*models.Submission, error)
	Reject(ctx context.Context, id uuid.UUID, reviewer, reason string) (*models.Submission, error)
	ListForUser(ctx context.Context, userID uuid.UUID) ([]*models.Submission, error)
	ListByStatus(ctx context.Context, status models.SubmissionStatus) ([]*models.Submission, error)
	ListTasks(ctx context.Context, userID uuid.UUID) ([]*models.TaskView, error)
}

// SubmissionHandler serves the task proof endpoints and their admin review queue.
type SubmissionHandler struct {
	Review SubmissionReviewer
	Logger *slog.Logger
}

// --- GET /api/tasks ---

func (h *SubmissionHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(r)
	if !ok {
		unauthorized(w)
		return
	}
	tasks, err := h.Review.ListTasks(r.Context(), id.UserID)
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, tasks)
}

// --- POST /api/tasks/{id}/submit ---

type submitProofRequest struct {
	ProofRef string `json:"proof_ref"`
}

func (h *SubmissionHandler) Submit(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(r)
	if !ok {
		unauthorized(w)
		return
	}
	taskID, err := pathID(r)
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	var req submitProofRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.Logger, err)
		return
	}
	sub, err := h.Review.Submit(r.Context(), id.UserID, taskID, req.ProofRef)
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}

// --- GET /api/tasks/my ---

func (h *SubmissionHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(r)
	if !ok {
		unauthorized(w)
		return
	}
	subs, err := h.Review.ListForUser(r.Context(), id.UserID)
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, subs)
}

// --- GET /api/admin/proofs?status= ---

func (h *SubmissionHandler) AdminList(w http.ResponseWriter, r *http.Request) {
	status := models.SubmissionPending
	if q := r.URL.Query().Get("status"); q != "" {
		st, err := models.ParseSubmissionStatus(q)
		if err != nil {
			writeError(w, h.Logger, apperr.Validation(apperr.CodeInvalidRequest, err.Error()))
			return
		}
		status = st
	}
	subs, err := h.Review.ListByStatus(r.Context(), status)
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, subs)
}

// --- POST /api/admin/proofs/{id}/approve ---

func (h *SubmissionHandler) AdminApprove(w http.ResponseWriter, r *http.Request) {
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
	sub, err := h.Review.Approve(r.Context(), id, admin.UserID.String())
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

// --- POST /api/admin/proofs/{id}/reject ---

type rejectRequest struct {
	Reason string `json:"reason"`
}

func (h *SubmissionHandler) AdminReject(w http.ResponseWriter, r *http.Request) {
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
	sub, err := h.Review.Reject(r.Context(), id, admin.UserID.String(), req.Reason)
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}
