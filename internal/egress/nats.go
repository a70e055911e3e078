package egress

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/fieldgate/fieldgate/internal/config"
	"github.com/fieldgate/fieldgate/internal/record"
)

// NATSSink publishes records as JSON to a subject.
type NATSSink struct {
	conn    *nats.Conn
	subject string
}

// NewNATSSink connects to the server with unbounded reconnects, so a
// server restart only loses the records published during the gap.
func NewNATSSink(cfg config.NATSEgressConfig) (*NATSSink, error) {
	conn, err := nats.Connect(cfg.URL,
		nats.Name("fieldgated"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("egress: nats: connect to %s: %w", cfg.URL, err)
	}
	return &NATSSink{conn: conn, subject: cfg.Subject}, nil
}

func (s *NATSSink) Name() string { return "nats" }

func (s *NATSSink) Emit(rec *record.Record) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("egress: nats: marshal: %w", err)
	}
	if err := s.conn.Publish(s.subject, raw); err != nil {
		return fmt.Errorf("egress: nats: publish to %s: %w", s.subject, err)
	}
	return nil
}

func (s *NATSSink) Close() error {
	if err := s.conn.Drain(); err != nil {
		return fmt.Errorf("egress: nats: drain: %w", err)
	}
	return nil
}
