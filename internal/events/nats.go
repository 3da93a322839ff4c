package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// Conn is the subset of *nats.Conn the publisher uses.
type Conn interface {
	Publish(subject string, data []byte) error
	Close()
}

// NATSPublisher implements Publisher using NATS
type NATSPublisher struct {
	conn    Conn
	subject string
	logger  zerolog.Logger
}

// NewNATSPublisher connects to natsURL and publishes under subject
func NewNATSPublisher(natsURL, subject string, logger zerolog.Logger) (*NATSPublisher, error) {
	conn, err := nats.Connect(natsURL, nats.Name("valuerl-trainer"))
	if err != nil {
		return nil, fmt.Errorf("connect to nats at %s: %w", natsURL, err)
	}
	return NewPublisherWithConn(conn, subject, logger), nil
}

// NewPublisherWithConn wraps an existing connection
func NewPublisherWithConn(conn Conn, subject string, logger zerolog.Logger) *NATSPublisher {
	return &NATSPublisher{
		conn:    conn,
		subject: subject,
		logger:  logger,
	}
}

// Close closes the NATS connection
func (n *NATSPublisher) Close() {
	if n.conn != nil {
		n.conn.Close()
	}
}

// PublishEpisode publishes episode events to <subject>.episodes
func (n *NATSPublisher) PublishEpisode(ctx context.Context, event EpisodeEvent) error {
	subject := n.subject + ".episodes"
	if err := n.publish(subject, event); err != nil {
		n.logger.Error().Err(err).Str("subject", subject).Msg("Failed to publish episode event")
		return err
	}

	n.logger.Debug().
		Str("run_id", event.RunID).
		Int("episode", event.Episode).
		Str("subject", subject).
		Msg("Published episode event")
	return nil
}

// PublishTargetSync publishes target sync events to <subject>.sync
func (n *NATSPublisher) PublishTargetSync(ctx context.Context, event TargetSyncEvent) error {
	subject := n.subject + ".sync"
	if err := n.publish(subject, event); err != nil {
		n.logger.Error().Err(err).Str("subject", subject).Msg("Failed to publish target sync event")
		return err
	}

	n.logger.Debug().
		Str("run_id", event.RunID).
		Int("step", event.Step).
		Str("subject", subject).
		Msg("Published target sync event")
	return nil
}

func (n *NATSPublisher) publish(subject string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return n.conn.Publish(subject, data)
}
