package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"cdpcrawler/internal/domain"
)

// publisher is the subset of *nats.Conn the sink needs
type publisher interface {
	Publish(subject string, data []byte) error
}

// NATSSink publishes crawl events as JSON on <subject>.<event type>
type NATSSink struct {
	conn    publisher
	nc      *nats.Conn
	subject string
	logger  zerolog.Logger
}

// ConnectNATSSink connects to url and returns a sink publishing under subject
func ConnectNATSSink(url, subject string, logger zerolog.Logger) (*NATSSink, error) {
	nc, err := nats.Connect(url,
		nats.Name("cdpcrawler"),
		nats.Timeout(10*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn().Err(err).Msg("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return &NATSSink{conn: nc, nc: nc, subject: subject, logger: logger}, nil
}

// Publish sends one event
func (s *NATSSink) Publish(event domain.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	subject := s.subject + "." + string(event.Type)
	if err := s.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}
	return nil
}

// Run forwards events until ctx is cancelled or events is closed.
// Publish failures are logged and do not stop the loop.
func (s *NATSSink) Run(ctx context.Context, events <-chan domain.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			if err := s.Publish(event); err != nil {
				s.logger.Warn().Err(err).Str("type", string(event.Type)).Msg("Event publish failed")
			}
		}
	}
}

// Close flushes pending messages and closes the connection
func (s *NATSSink) Close() error {
	if s.nc == nil {
		return nil
	}
	return s.nc.Drain()
}
