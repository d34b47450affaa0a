package session

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/vinayprograms/agentkit/logging"
)

// Publisher mirrors events to a NATS subject before handing them to the next sink.
// Events are published to "<subject>.<event type>".
type Publisher struct {
	conn    *nats.Conn
	subject string
	next    Sink
	logger  *logging.Logger
}

// NewPublisher connects to url and wraps next.
func NewPublisher(url, subject string, next Sink) (*Publisher, error) {
	logger := logging.New().WithComponent("events")
	nc, err := nats.Connect(url,
		nats.Name("coder"),
		nats.Timeout(5*time.Second),
		nats.ReconnectWait(time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats_disconnected", map[string]interface{}{"error": err.Error()})
			}
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return newPublisher(nc, subject, next, logger), nil
}

func newPublisher(nc *nats.Conn, subject string, next Sink, logger *logging.Logger) *Publisher {
	if subject == "" {
		subject = "coder.events"
	}
	return &Publisher{conn: nc, subject: subject, next: next, logger: logger}
}

// AddEvent records the event on the wrapped sink and publishes it.
// Publish failures are logged, never returned.
func (p *Publisher) AddEvent(event Event) uint64 {
	if p.next != nil {
		event.SeqID = p.next.AddEvent(event)
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	data, err := json.Marshal(event)
	if err != nil {
		p.logger.Warn("event_marshal_failed", map[string]interface{}{"error": err.Error()})
		return event.SeqID
	}
	if err := p.conn.Publish(p.subject+"."+event.Type, data); err != nil {
		p.logger.Warn("event_publish_failed", map[string]interface{}{"error": err.Error(), "type": event.Type})
	}
	return event.SeqID
}

// Close flushes pending messages and closes the connection.
func (p *Publisher) Close() error {
	return p.conn.Drain()
}
