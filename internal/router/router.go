package router

import (
	"net/http"

	"github.com/neeraj2004kumar2006-pixel/earn4sub/internal/handlers"
	"github.com/neeraj2004kumar2006-pixel/earn4sub/internal/middleware"
	"github.com/neeraj2004kumar2006-pixel/earn4sub/internal/services"
)

// Deps are the handlers and guards the API is assembled from.
type Deps struct {
	Tokens      middleware.TokenValidator
	Validator   middleware.BodyValidator
	Submissions *handlers.SubmissionHandler
	Wallet      *handlers.WalletHandler
	Audit       *handlers.AuditHandler
	Metrics     http.Handler
}

// New returns an http.Handler that serves the API under /api.
// User routes: BearerAuth -> (ValidateBody) -> handler.
// Admin routes: BearerAuth -> RequireAdmin -> (ValidateBody) -> handler.
func New(d Deps) http.Handler {
	mux := http.NewServeMux()
	authed := middleware.BearerAuth(d.Tokens)
	admin := func(h http.Handler) http.Handler { return authed(middleware.RequireAdmin(h)) }
	body := func(schema string, h http.HandlerFunc) http.Handler {
		return middleware.ValidateBody(d.Validator, schema)(h)
	}

	mux.HandleFunc("GET /api/health", handlers.Health)
	if d.Metrics != nil {
		mux.Handle("GET /metrics", d.Metrics)
	}

	// tasks and proofs
	mux.Handle("GET /api/tasks", authed(http.HandlerFunc(d.Submissions.ListTasks)))
	mux.Handle("GET /api/tasks/my", authed(http.HandlerFunc(d.Submissions.ListMine)))
	mux.Handle("POST /api/tasks/{id}/submit", authed(body(services.SchemaSubmitProof, d.Submissions.Submit)))

	// wallet and withdrawals
	mux.Handle("GET /api/wallet", authed(http.HandlerFunc(d.Wallet.Summary)))
	mux.Handle("GET /api/withdraw", authed(http.HandlerFunc(d.Wallet.WithdrawInfo)))
	mux.Handle("POST /api/withdraw/request", authed(body(services.SchemaWithdrawRequest, d.Wallet.RequestWithdrawal)))

	// admin
	mux.Handle("GET /api/admin/proofs", admin(http.HandlerFunc(d.Submissions.AdminList)))
	mux.Handle("POST /api/admin/proofs/{id}/approve", admin(http.HandlerFunc(d.Submissions.AdminApprove)))
	mux.Handle("POST /api/admin/proofs/{id}/reject", admin(body(services.SchemaReviewReject, d.Submissions.AdminReject)))
	mux.Handle("GET /api/admin/withdrawals", admin(http.HandlerFunc(d.Wallet.AdminList)))
	mux.Handle("POST /api/admin/withdrawals/{id}/approve", admin(http.HandlerFunc(d.Wallet.AdminApprove)))
	mux.Handle("POST /api/admin/withdrawals/{id}/reject", admin(body(services.SchemaReviewReject, d.Wallet.AdminReject)))
	mux.Handle("GET /api/admin/users/{id}/reconcile", admin(http.HandlerFunc(d.Wallet.Reconcile)))
	mux.Handle("GET /api/admin/audit-logs", admin(http.HandlerFunc(d.Audit.List)))

	return mux
}
