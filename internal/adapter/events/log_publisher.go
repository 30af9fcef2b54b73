package events

import (
	"context"

	"go.uber.org/zap"

	"github.com/tantovale/marketplace/internal/core/domain"
)

// LogPublisher records events in the log only. Used when no brokers are
// configured.
type LogPublisher struct {
	logger *zap.Logger
}

func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) PublishPhaseChanged(_ context.Context, e domain.PhaseChangedEvent) error {
	p.logger.Info("order phase changed event",
		zap.String("event_id", e.EventID),
		zap.String("order_id", e.OrderID),
		zap.String("from", e.From.String()),
		zap.String("to", e.To.String()))
	return nil
}

func (p *LogPublisher) PublishProposalDecided(_ context.Context, e domain.ProposalDecidedEvent) error {
	p.logger.Info("proposal decided event",
		zap.String("event_id", e.EventID),
		zap.String("proposal_id", e.ProposalID),
		zap.String("status", e.Status.String()),
		zap.String("order_id", e.OrderID))
	return nil
}

func (p *LogPublisher) Close() error { return nil }
