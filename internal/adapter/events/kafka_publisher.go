package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/tantovale/marketplace/internal/core/domain"
)

const writeTimeout = 10 * time.Second

// messageWriter is the part of *kafka.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaPublisher struct {
	writer messageWriter
	logger *zap.Logger
}

func NewKafkaPublisher(brokers []string, topic string, logger *zap.Logger) *KafkaPublisher {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
	}
	return newKafkaPublisher(writer, logger)
}

func newKafkaPublisher(w messageWriter, logger *zap.Logger) *KafkaPublisher {
	return &KafkaPublisher{writer: w, logger: logger}
}

func (p *KafkaPublisher) PublishPhaseChanged(ctx context.Context, event domain.PhaseChangedEvent) error {
	// keyed by order so a consumer sees one order's phases in order
	return p.publish(ctx, domain.EventPhaseChanged, event.OrderID, event.EventID, event)
}

func (p *KafkaPublisher) PublishProposalDecided(ctx context.Context, event domain.ProposalDecidedEvent) error {
	return p.publish(ctx, domain.EventProposalDecided, event.ProposalID, event.EventID, event)
}

func (p *KafkaPublisher) publish(ctx context.Context, typ domain.EventType, key, eventID string, payload any) error {
	value, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", typ, err)
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(typ)},
		},
	}

	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("failed to publish event",
			zap.String("type", string(typ)),
			zap.String("event_id", eventID),
			zap.Error(err))
		return fmt.Errorf("publish %s: %w", typ, err)
	}

	p.logger.Debug("event published",
		zap.String("type", string(typ)),
		zap.String("event_id", eventID),
		zap.String("key", key))
	return nil
}

func (p *KafkaPublisher) Close() error {
	if p.writer != nil {
		return p.writer.Close()
	}
	return nil
}
