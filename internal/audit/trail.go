// Package audit records privileged state changes after they commit. Recording never blocks the
// caller and a failing sink never reaches the business operation that produced the entry.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/neeraj2004kumar2006-pixel/earn4sub/internal/clock"
	"github.com/neeraj2004kumar2006-pixel/earn4sub/internal/metrics"
	"github.com/neeraj2004kumar2006-pixel/earn4sub/internal/models"
)

// Sink persists or forwards one entry.
type Sink interface {
	Name() string
	Write(ctx context.Context, e *models.AuditEntry) error
}

// Recorder is what the money flows depend on.
type Recorder interface {
	Record(ctx context.Context, e models.AuditEntry)
}

const sinkTimeout = 5 * time.Second

// Trail buffers entries and hands them to every sink from one background goroutine.
type Trail struct {
	entries chan *models.AuditEntry
	sinks   []Sink
	log     *slog.Logger
	clock   clock.Clock

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

var _ Recorder = (*Trail)(nil)

// New starts a Trail with room for buffer pending entries.
func New(sinks []Sink, buffer int, log *slog.Logger, clk clock.Clock) *Trail {
	if log == nil {
		log = slog.Default()
	}
	if clk == nil {
		clk = clock.Real{}
	}
	if buffer <= 0 {
		buffer = 1
	}
	t := &Trail{
		entries: make(chan *models.AuditEntry, buffer),
		sinks:   sinks,
		log:     log,
		clock:   clk,
		done:    make(chan struct{}),
	}
	go t.run()
	return t
}

// Record enqueues e. When the buffer is full or the trail is closed the entry is dropped and logged.
func (t *Trail) Record(_ context.Context, e models.AuditEntry) {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = t.clock.Now()
	}

	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.closed {
		t.drop(&e, "closed")
		return
	}
	select {
	case t.entries <- &e:
	default:
		t.drop(&e, "buffer full")
	}
}

func (t *Trail) drop(e *models.AuditEntry, reason string) {
	metrics.AuditDropped.Inc()
	t.log.Warn("audit entry dropped", "reason", reason, "action", e.Action, "target_id", e.TargetID, "actor_id", e.ActorID)
}

func (t *Trail) run() {
	defer close(t.done)
	for e := range t.entries {
		for _, s := range t.sinks {
			t.deliver(s, e)
		}
	}
}

func (t *Trail) deliver(s Sink, e *models.AuditEntry) {
	defer func() {
		if r := recover(); r != nil {
			metrics.AuditSinkFailures.WithLabelValues(s.Name()).Inc()
			t.log.Error("audit sink panicked", "sink", s.Name(), "panic", fmt.Sprint(r), "action", e.Action)
		}
	}()
	ctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
	defer cancel()
	if err := s.Write(ctx, e); err != nil {
		metrics.AuditSinkFailures.WithLabelValues(s.Name()).Inc()
		t.log.Error("audit write failed", "sink", s.Name(), "action", e.Action, "target_id", e.TargetID, "error", err)
	}
}

// Close stops accepting entries and waits for the buffer to drain or ctx to end.
func (t *Trail) Close(ctx context.Context) error {
	t.mu.Lock()
	if !t.closed {
		t.closed = true
		close(t.entries)
	}
	t.mu.Unlock()

	select {
	case <-t.done:
		return nil
	case <-ctx.Done():
		return errors.Join(errors.New("audit trail did not drain"), ctx.Err())
	}
}

// Details marshals v for AuditEntry.Details. Marshal failures yield an empty object.
func Details(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return b
}
