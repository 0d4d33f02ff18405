// Package audit publishes anonymous portal usage events to Kafka for the
// utility's analytics pipeline. Publishing is optional and strictly
// best-effort: audit must never affect what a resident sees.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/jvkenny/CLFleadservice/internal/config"
	"github.com/jvkenny/CLFleadservice/internal/observability"
)

// Event is one recorded portal interaction. Detail carries the operation's
// parameters (a where clause, a search length bucket); it never contains the
// resident's raw search text.
type Event struct {
	ID     string    `json:"id"`
	Kind   string    `json:"kind"` // "query", "search", "detail", "login"
	Detail string    `json:"detail,omitempty"`
	At     time.Time `json:"at"`
}

// NewEvent creates an event stamped with a fresh ID and the current time.
func NewEvent(kind, detail string) Event {
	return Event{ID: uuid.NewString(), Kind: kind, Detail: detail, At: time.Now().UTC()}
}

// Publisher accepts portal usage events.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// Noop discards events; used when audit publishing is disabled.
type Noop struct{}

func (Noop) Publish(context.Context, Event) error { return nil }
func (Noop) Close() error                         { return nil }

// Writer produces events to the configured Kafka topic.
type Writer struct {
	writer  *kafkago.Writer
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewWriter creates a Kafka producer for the audit topic.
func NewWriter(cfg *config.Config, metrics *observability.Metrics, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.AuditBrokers...),
		Topic:        cfg.AuditTopic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireOne,
	}
	return &Writer{writer: w, metrics: metrics, logger: logger}
}

// Publish serializes and writes one event. Errors are returned for the
// caller to log; they are never fatal to the request being audited.
func (w *Writer) Publish(ctx context.Context, e Event) error {
	msg, err := serializeToMessage(e)
	if err != nil {
		w.metrics.AuditEvents.WithLabelValues("error").Inc()
		return err
	}
	if err := w.writer.WriteMessages(ctx, msg); err != nil {
		w.metrics.AuditEvents.WithLabelValues("error").Inc()
		return fmt.Errorf("write audit event: %w", err)
	}
	w.metrics.AuditEvents.WithLabelValues("published").Inc()
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals an Event into a Kafka message keyed by kind so
// per-operation ordering is preserved within a partition.
func serializeToMessage(e Event) (kafkago.Message, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize audit event: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(e.Kind),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "event_id", Value: []byte(e.ID)},
			{Key: "recorded_at", Value: []byte(e.At.Format(time.RFC3339))},
		},
	}, nil
}
