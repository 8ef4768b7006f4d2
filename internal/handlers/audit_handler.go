package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/neeraj2004kumar2006-pixel/earn4sub/internal/models"
)

// AuditLimit is the default number of entries GET /api/admin/audit-logs returns.
const AuditLimit = 100

type AuditLister interface {
	ListRecent(ctx context.Context, limit int) ([]*models.AuditEntry, error)
}

type AuditHandler struct {
	Audit  AuditLister
	Logger *slog.Logger
}

// List handles GET /api/admin/audit-logs. ?limit= is capped at 500.
func (h *AuditHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := AuditLimit
	if q := r.URL.Query().Get("limit"); q != "" {
		if n, err := strconv.Atoi(q); err == nil && n > 0 {
			limit = min(n, 500)
		}
	}
	entries, err := h.Audit.ListRecent(r.Context(), limit)
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	if entries == nil {
		entries = []*models.AuditEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}
