package autoapprove

import (
	"context"
	"time"

	"github.com/riverqueue/river"
)

// Queue is the River queue ticks run on. It gets a single worker so ticks never overlap.
const Queue = "auto_approve"

type TickArgs struct{}

func (TickArgs) Kind() string { return "auto_approve_tick" }

// InsertOpts pins ticks to Queue. A missed tick is not retried; the next one covers it.
func (TickArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{Queue: Queue, MaxAttempts: 1}
}

// Ticker is satisfied by *Promoter.
type Ticker interface {
	Tick(ctx context.Context) (Result, error)
}

type TickWorker struct {
	river.WorkerDefaults[TickArgs]
	ticker Ticker
}

func NewTickWorker(t Ticker) *TickWorker {
	return &TickWorker{ticker: t}
}

// Work runs one tick. A failed listing is already logged by the promoter and is retried on the
// next period, so it is not reported back to River.
func (w *TickWorker) Work(ctx context.Context, job *river.Job[TickArgs]) error {
	_, _ = w.ticker.Tick(ctx)
	return nil
}

// PeriodicJob schedules a tick every interval, plus one as soon as the client starts so items
// that aged past the threshold while the process was down are picked up.
func PeriodicJob(interval time.Duration) *river.PeriodicJob {
	return river.NewPeriodicJob(
		river.PeriodicInterval(interval),
		func() (river.JobArgs, *river.InsertOpts) {
			return TickArgs{}, nil
		},
		&river.PeriodicJobOpts{RunOnStart: true},
	)
}

// QueueConfig is the River queue entry for Queue.
func QueueConfig() river.QueueConfig {
	return river.QueueConfig{MaxWorkers: 1}
}
