// Package autoapprove promotes submissions that stayed pending past a threshold to approved.
// It goes through the same guarded approval as an admin, so a submission reviewed in the
// meantime is skipped.
package autoapprove

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/neeraj2004kumar2006-pixel/earn4sub/internal/apperr"
	"github.com/neeraj2004kumar2006-pixel/earn4sub/internal/clock"
	"github.com/neeraj2004kumar2006-pixel/earn4sub/internal/metrics"
	"github.com/neeraj2004kumar2006-pixel/earn4sub/internal/models"
)

// Approver is the part of the review service the promoter drives.
type Approver interface {
	ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]uuid.UUID, error)
	ApproveStale(ctx context.Context, id uuid.UUID, cutoff time.Time) (*models.Submission, error)
}

// Result counts what one tick did.
type Result struct {
	Approved int
	Skipped  int
	Failed   int
}

type Promoter struct {
	approver  Approver
	threshold time.Duration
	batch     int
	clock     clock.Clock
	log       *slog.Logger
}

func NewPromoter(approver Approver, threshold time.Duration, batch int, clk clock.Clock, log *slog.Logger) *Promoter {
	if clk == nil {
		clk = clock.Real{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Promoter{approver: approver, threshold: threshold, batch: batch, clock: clk, log: log.With("component", "autoapprove")}
}

// Tick approves every submission pending since before now minus the threshold, up to one batch.
// Per-item errors are logged and counted. The returned error is set only when the stale list
// could not be read. Cancelling ctx does not interrupt a tick that already started.
func (p *Promoter) Tick(ctx context.Context) (Result, error) {
	ctx = context.WithoutCancel(ctx)
	metrics.AutoApproveTicks.Inc()

	var res Result
	cutoff := p.clock.Now().Add(-p.threshold)
	ids, err := p.approver.ListStalePending(ctx, cutoff, p.batch)
	if err != nil {
		p.log.Error("list stale submissions", "error", err)
		return res, fmt.Errorf("list stale submissions: %w", err)
	}

	for _, id := range ids {
		_, err := p.approver.ApproveStale(ctx, id, cutoff)
		switch {
		case err == nil:
			res.Approved++
			metrics.AutoApproveItems.WithLabelValues("approved").Inc()
			p.log.Info("submission auto-approved", "submission_id", id)
		case errors.Is(err, apperr.ErrConflict):
			// reviewed by an admin, or resubmitted, since it was listed
			res.Skipped++
			metrics.AutoApproveItems.WithLabelValues("skipped").Inc()
			p.log.Debug("auto-approve skipped", "submission_id", id, "reason", apperr.CodeOf(err))
		default:
			res.Failed++
			metrics.AutoApproveItems.WithLabelValues("failed").Inc()
			p.log.Error("auto-approve failed", "submission_id", id, "error", err)
		}
	}

	metrics.AutoApproveLastTick.Set(float64(p.clock.Now().Unix()))
	if len(ids) > 0 {
		p.log.Info("auto-approve tick", "approved", res.Approved, "skipped", res.Skipped, "failed", res.Failed)
	}
	if p.batch > 0 && len(ids) == p.batch {
		p.log.Warn("auto-approve batch full, remaining submissions wait for the next tick", "batch", p.batch)
	}
	return res, nil
}
