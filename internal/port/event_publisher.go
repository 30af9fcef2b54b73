package port

import (
	"context"

	"github.com/tantovale/marketplace/internal/core/domain"
)

// EventPublisher delivers lifecycle events to downstream notification
// consumers (mail, chat, payment capture, label issuance).
type EventPublisher interface {
	PublishPhaseChanged(ctx context.Context, event domain.PhaseChangedEvent) error
	PublishProposalDecided(ctx context.Context, event domain.ProposalDecidedEvent) error
	Close() error
}
