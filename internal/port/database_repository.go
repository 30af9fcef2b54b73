package port

import (
	"context"
	"errors"
	"time"

	"github.com/tantovale/marketplace/internal/core/domain"
)

var (
	ErrNotFound = errors.New("not found")

	// ErrPhaseConflict means the stored phase or status no longer matches the
	// value the caller read.
	ErrPhaseConflict = errors.New("phase changed concurrently")

	// ErrCorruptRow means a stored row holds a value the domain rejects.
	ErrCorruptRow = errors.New("corrupt row")
)

type DatabaseRepository interface {
	CreateOrder(ctx context.Context, order domain.Order) error

	// GetOrder returns ErrNotFound when no order has the given id
	GetOrder(ctx context.Context, orderID string) (*domain.Order, error)

	// ListOrdersByUser returns orders where the user is buyer or seller, newest first
	ListOrdersByUser(ctx context.Context, userID string) ([]domain.Order, error)

	// UpdateOrderPhase moves the order from one phase to another only if the
	// stored phase still equals from
	UpdateOrderPhase(ctx context.Context, orderID string, from, to domain.Phase, at time.Time) error

	// UpdateOrderAmount sets the amount only if the stored phase still equals phase
	UpdateOrderAmount(ctx context.Context, orderID string, phase domain.Phase, amountCents int64, at time.Time) error

	CreateProposal(ctx context.Context, proposal domain.Proposal) error

	GetProposal(ctx context.Context, proposalID string) (*domain.Proposal, error)

	// DecideProposal stores a final status for a proposal that is still pending
	DecideProposal(ctx context.Context, proposalID string, to domain.ProposalStatus, at time.Time) error

	// AcceptProposal marks a pending proposal accepted and inserts the
	// resulting order in one transaction
	AcceptProposal(ctx context.Context, proposalID string, at time.Time, order domain.Order) error
}
