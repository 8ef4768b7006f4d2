package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/rs/cors"
	"github.com/spf13/cobra"

	"github.com/neeraj2004kumar2006-pixel/earn4sub/internal/audit"
	"github.com/neeraj2004kumar2006-pixel/earn4sub/internal/auth"
	"github.com/neeraj2004kumar2006-pixel/earn4sub/internal/autoapprove"
	"github.com/neeraj2004kumar2006-pixel/earn4sub/internal/clock"
	"github.com/neeraj2004kumar2006-pixel/earn4sub/internal/db"
	"github.com/neeraj2004kumar2006-pixel/earn4sub/internal/handlers"
	"github.com/neeraj2004kumar2006-pixel/earn4sub/internal/ledger"
	"github.com/neeraj2004kumar2006-pixel/earn4sub/internal/metrics"
	"github.com/neeraj2004kumar2006-pixel/earn4sub/internal/repository"
	"github.com/neeraj2004kumar2006-pixel/earn4sub/internal/router"
	"github.com/neeraj2004kumar2006-pixel/earn4sub/internal/services"
)

const shutdownTimeout = 20 * time.Second

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().Bool("migrate", true, "Apply the schema and River migrations before serving")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the auto-approval scheduler",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()
	logger.Info("connected to PostgreSQL")

	if migrate, _ := cmd.Flags().GetBool("migrate"); migrate {
		if err := db.Migrate(ctx, pool, logger); err != nil {
			return err
		}
	}

	clk := clock.Real{}

	// Repositories
	users := repository.NewUserRepo(pool)
	tasks := repository.NewTaskRepo(pool)
	submissions := repository.NewSubmissionRepo(pool)
	withdrawalRepo := repository.NewWithdrawalRepo(pool)
	auditRepo := repository.NewAuditRepo(pool)
	ledgerSvc := ledger.NewService(ledger.NewRepository(pool), clk)

	// Audit trail: postgres always, NATS when configured
	sinks := []audit.Sink{audit.NewStoreSink(auditRepo)}
	if cfg.NATSURL != "" {
		ns, err := audit.ConnectNATS(cfg.NATSURL, cfg.NATSAuditSubject, logger)
		if err != nil {
			logger.Warn("NATS audit sink disabled", "error", err)
		} else {
			defer ns.Close()
			sinks = append(sinks, ns)
		}
	}
	trail := audit.New(sinks, cfg.AuditBuffer, logger, clk)

	review := services.NewReviewService(pool, submissions, tasks, ledgerSvc, trail, clk, logger)
	withdrawals := services.NewWithdrawalService(pool, users, withdrawalRepo, ledgerSvc, trail, cfg.MinWithdrawal, clk, logger)
	validator, err := services.NewValidator()
	if err != nil {
		return fmt.Errorf("compile request schemas: %w", err)
	}

	// Auto-approval runs as a River periodic job on its own single-worker queue
	promoter := autoapprove.NewPromoter(review, cfg.AutoApproveAfter, cfg.AutoApproveBatch, clk, logger)
	workers := river.NewWorkers()
	river.AddWorker(workers, autoapprove.NewTickWorker(promoter))
	riverClient, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			autoapprove.Queue: autoapprove.QueueConfig(),
		},
		Workers:      workers,
		PeriodicJobs: []*river.PeriodicJob{autoapprove.PeriodicJob(cfg.AutoApproveInterval)},
		Logger:       logger,
	})
	if err != nil {
		return fmt.Errorf("create river client: %w", err)
	}
	// Stopped explicitly below so an in-flight tick can finish.
	if err := riverClient.Start(context.WithoutCancel(ctx)); err != nil {
		return fmt.Errorf("start river client: %w", err)
	}
	logger.Info("auto-approval scheduled",
		"threshold", cfg.AutoApproveAfter.String(), "interval", cfg.AutoApproveInterval.String())

	logger = logger.With("component", "http")
	api := router.New(router.Deps{
		Tokens:      auth.NewService(cfg.JWTSecret, clk),
		Validator:   validator,
		Submissions: &handlers.SubmissionHandler{Review: review, Logger: logger},
		Wallet:      &handlers.WalletHandler{Wallet: ledgerSvc, Withdrawals: withdrawals, Logger: logger},
		Audit:       &handlers.AuditHandler{Audit: auditRepo, Logger: logger},
		Metrics:     metrics.Handler(pool),
	})
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}).Handler(api)

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           corsHandler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		logger.Info("starting HTTP server", "addr", srv.Addr)
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server failed", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return shutdown(shutdownCtx, logger, srv, riverClient, trail)
}

// shutdown stops intake first, then the scheduler, then drains the audit trail.
func shutdown(ctx context.Context, logger *slog.Logger, srv *http.Server, rc interface{ Stop(context.Context) error }, trail *audit.Trail) error {
	var errs []error
	if err := srv.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	if err := rc.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("river stop: %w", err))
	}
	if err := trail.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("audit drain: %w", err))
	}
	if len(errs) == 0 {
		logger.Info("shutdown complete")
	}
	return errors.Join(errs...)
}
