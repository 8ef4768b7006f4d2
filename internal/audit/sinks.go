package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/neeraj2004kumar2006-pixel/earn4sub/internal/models"
)

// EntryWriter is satisfied by repository.AuditRepo.
type EntryWriter interface {
	Insert(ctx context.Context, e *models.AuditEntry) error
}

// StoreSink writes entries to audit_logs.
type StoreSink struct {
	store EntryWriter
}

func NewStoreSink(store EntryWriter) *StoreSink {
	return &StoreSink{store: store}
}

func (s *StoreSink) Name() string { return "postgres" }

func (s *StoreSink) Write(ctx context.Context, e *models.AuditEntry) error {
	return s.store.Insert(ctx, e)
}

// NATSSink publishes each entry as JSON on a subject for downstream consumers.
type NATSSink struct {
	conn    *nats.Conn
	subject string
}

// ConnectNATS dials url and keeps reconnecting in the background for the life of the process.
func ConnectNATS(url, subject string, log *slog.Logger) (*NATSSink, error) {
	conn, err := nats.Connect(url,
		nats.Name("earn4sub-audit"),
		nats.Timeout(10*time.Second),
		nats.ReconnectWait(5*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn("nats disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &NATSSink{conn: conn, subject: subject}, nil
}

func (s *NATSSink) Name() string { return "nats" }

func (s *NATSSink) Write(_ context.Context, e *models.AuditEntry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal audit entry: %w", err)
	}
	return s.conn.Publish(s.subject, data)
}

// Close flushes pending publishes and closes the connection.
func (s *NATSSink) Close() error {
	return s.conn.Drain()
}
