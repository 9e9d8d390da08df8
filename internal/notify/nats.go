package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"git.home.luguber.info/inful/docdiagram/internal/config"
	"git.home.luguber.info/inful/docdiagram/internal/foundation/errors"
	"git.home.luguber.info/inful/docdiagram/internal/logfields"
)

// conn is the subset of *nats.Conn the publisher uses.
type conn interface {
	Publish(subject string, data []byte) error
	FlushWithContext(ctx context.Context) error
	Close()
}

// NATSPublisher publishes events as JSON messages on a NATS subject.
type NATSPublisher struct {
	conn    conn
	subject string
	logger  *slog.Logger
}

// FromConfig returns a NATS publisher when a server URL is configured and
// Noop otherwise.
func FromConfig(cfg config.NotifyConfig, logger *slog.Logger) (Publisher, error) {
	if cfg.NATSURL == "" {
		return Noop{}, nil
	}
	return NewNATSPublisher(cfg.NATSURL, cfg.Subject, logger)
}

// NewNATSPublisher connects to url.
func NewNATSPublisher(url, subject string, logger *slog.Logger) (*NATSPublisher, error) {
	if subject == "" {
		return nil, errors.ConfigError("notify subject is required").Build()
	}
	nc, err := nats.Connect(url,
		nats.Name("docdiagram"),
		nats.Timeout(5*time.Second),
	)
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryNetwork, "failed to connect to NATS").
			Retryable().
			WithContext("url", url).
			Build()
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("NATS publisher connected", logfields.URL(url), slog.String("subject", subject))
	return newNATSPublisher(nc, subject, logger), nil
}

func newNATSPublisher(c conn, subject string, logger *slog.Logger) *NATSPublisher {
	return &NATSPublisher{conn: c, subject: subject, logger: logger}
}

// Publish sends event and waits for the server to acknowledge the flush.
func (p *NATSPublisher) Publish(ctx context.Context, event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	data, err := json.Marshal(event)
	if err != nil {
		return errors.WrapError(err, errors.CategoryInternal, "failed to marshal event").Build()
	}
	if err := p.conn.Publish(p.subject, data); err != nil {
		return errors.WrapError(err, errors.CategoryNetwork, "failed to publish event").
			Retryable().
			WithContext("subject", p.subject).
			Build()
	}
	if err := p.conn.FlushWithContext(ctx); err != nil {
		return errors.WrapError(err, errors.CategoryNetwork, "failed to flush event").
			Retryable().
			WithContext("subject", p.subject).
			Build()
	}

	p.logger.Debug("Published activation event",
		logfields.RunID(event.RunID),
		logfields.Page(event.Page),
		logfields.Diagrams(event.Diagrams))
	return nil
}

// Close closes the NATS connection.
func (p *NATSPublisher) Close() error {
	if p.conn != nil {
		p.conn.Close()
	}
	return nil
}
