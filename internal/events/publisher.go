package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/JaimeStill/tally/internal/config"
)

// Publisher streams committed audit events.
type Publisher interface {
	Publish(ctx context.Context, events ...Event) error
	Close() error
}

// New returns a Kafka publisher when brokers are configured, otherwise a
// publisher that only logs.
func New(cfg *config.EventsConfig, logger *slog.Logger) Publisher {
	logger = logger.With("system", "events")

	if len(cfg.Brokers) == 0 {
		return &logPublisher{logger: logger}
	}

	return &kafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        cfg.Topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			WriteTimeout: cfg.WriteTimeoutDuration(),
		},
		timeout: cfg.WriteTimeoutDuration(),
		logger:  logger,
	}
}

type kafkaPublisher struct {
	writer  *kafka.Writer
	timeout time.Duration
	logger  *slog.Logger
}

func (p *kafkaPublisher) Publish(ctx context.Context, events ...Event) error {
	if len(events) == 0 {
		return nil
	}

	msgs, err := Messages(events...)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish %d audit events: %w", len(msgs), err)
	}

	p.logger.Debug("audit events published", "count", len(msgs))
	return nil
}

func (p *kafkaPublisher) Close() error {
	return p.writer.Close()
}

// Messages encodes events as Kafka messages keyed by deal.
func Messages(events ...Event) ([]kafka.Message, error) {
	msgs := make([]kafka.Message, 0, len(events))
	for _, e := range events {
		value, err := json.Marshal(e)
		if err != nil {
			return nil, fmt.Errorf("marshal audit event %s: %w", e.ID, err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   e.Key(),
			Value: value,
			Time:  e.CreatedAt,
			Headers: []kafka.Header{
				{Key: "entity", Value: []byte(e.Entity)},
				{Key: "action", Value: []byte(e.Action)},
			},
		})
	}
	return msgs, nil
}

type logPublisher struct {
	logger *slog.Logger
}

func (p *logPublisher) Publish(_ context.Context, events ...Event) error {
	for _, e := range events {
		p.logger.Info(
			"audit event",
			"entity", e.Entity,
			"entity_id", e.EntityID,
			"action", e.Action,
			"actor", e.ActorID,
			"from", e.FromStatus,
			"to", e.ToStatus,
		)
	}
	return nil
}

func (p *logPublisher) Close() error { return nil }
