// Package events broadcasts booking sync events over NATS so other screens
// and other instances of the sync layer converge after a mutation settles.
package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel/trace"

	"github.com/example/serviosync/internal/booking/domain"
)

// Publisher writes booking sync events to a NATS subject. A nil connection
// turns publishing into a no-op, which keeps local runs without a broker
// working.
type Publisher struct {
	conn    *nats.Conn
	subject string
}

// NewPublisher builds a Publisher using the provided NATS connection.
func NewPublisher(conn *nats.Conn, subject string) *Publisher {
	if subject == "" {
		subject = "booking.sync"
	}
	return &Publisher{conn: conn, subject: subject}
}

// Publish satisfies domain.EventPublisher.
func (p *Publisher) Publish(ctx context.Context, event domain.Event) error {
	if p == nil || p.conn == nil {
		return nil
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal sync event: %w", err)
	}

	return p.conn.PublishMsg(&nats.Msg{
		Subject: p.subject,
		Data:    payload,
		Header: map[string][]string{
			"x-trace-id":   {traceIDFromContext(ctx)},
			"x-event-type": {string(event.Type)},
			"x-user-id":    {event.UserID},
		},
	})
}

func traceIDFromContext(ctx context.Context) string {
	sc := trace.SpanFromContext(ctx).SpanContext()
	if !sc.IsValid() {
		return ""
	}
	return sc.TraceID().String()
}
