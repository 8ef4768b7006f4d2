package metrics

import (
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ledger
	LedgerEntries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "earn4sub_ledger_entries_total",
			Help: "Wallet ledger rows written, by type and source",
		},
		[]string{"type", "source"},
	)

	LedgerRejectedDebits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "earn4sub_ledger_rejected_debits_total",
		Help: "Debits refused because the balance was too low",
	})

	// review
	SubmissionTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "earn4sub_submission_transitions_total",
			Help: "Submission state changes, by target status and reviewer kind (admin|system|user)",
		},
		[]string{"to", "reviewer"},
	)

	// auto-approval
	AutoApproveTicks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "earn4sub_autoapprove_ticks_total",
		Help: "Auto-approval ticks run",
	})

	AutoApproveItems = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "earn4sub_autoapprove_items_total",
			Help: "Stale submissions handled by auto-approval, by result (approved|skipped|failed)",
		},
		[]string{"result"},
	)

	AutoApproveLastTick = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "earn4sub_autoapprove_last_tick_timestamp_seconds",
		Help: "Unix time of the last completed auto-approval tick",
	})

	// withdrawals
	Withdrawals = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "earn4sub_withdrawals_total",
			Help: "Withdrawal transitions, by action (requested|approved|rejected)",
		},
		[]string{"action"},
	)

	// audit
	AuditDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "earn4sub_audit_dropped_total",
		Help: "Audit entries dropped because the buffer was full",
	})

	AuditSinkFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "earn4sub_audit_sink_failures_total",
			Help: "Audit writes that failed, by sink",
		},
		[]string{"sink"},
	)

	// database
	DBConnectionsAcquired = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "earn4sub_db_connections_acquired",
		Help: "Connections currently checked out of the pool",
	})

	DBConnectionsIdle = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "earn4sub_db_connections_idle",
		Help: "Idle connections in the pool",
	})
)

// Handler serves the default registry, refreshing pool gauges on each scrape.
func Handler(pool *pgxpool.Pool) http.Handler {
	h := promhttp.Handler()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if pool != nil {
			st := pool.Stat()
			DBConnectionsAcquired.Set(float64(st.AcquiredConns()))
			DBConnectionsIdle.Set(float64(st.IdleConns()))
		}
		h.ServeHTTP(w, r)
	})
}
