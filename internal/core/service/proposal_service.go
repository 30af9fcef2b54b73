package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/tantovale/marketplace/internal/core/domain"
	"github.com/tantovale/marketplace/internal/port"
)

func (s *OrderService) CreateProposal(ctx context.Context, input domain.CreateProposalInput) (*domain.Proposal, error) {
	proposal, err := domain.NewProposal(input, s.now, s.newID)
	if err != nil {
		return nil, err
	}
	if err := s.db.CreateProposal(ctx, proposal); err != nil {
		return nil, fmt.Errorf("create proposal: %w", err)
	}
	return &proposal, nil
}

func (s *OrderService) GetProposal(ctx context.Context, actorID, proposalID string) (*domain.Proposal, error) {
	proposal, err := s.db.GetProposal(ctx, proposalID)
	if err != nil {
		return nil, fmt.Errorf("get proposal %s: %w", proposalID, err)
	}
	if !proposal.IsParticipant(actorID) {
		return nil, ErrForbidden
	}
	return proposal, nil
}

type DecideInput struct {
	ActorID    string
	ProposalID string
	Status     string
}

// DecisionResult carries the decided proposal and, on acceptance, the order
// created from it.
type DecisionResult struct {
	Proposal *domain.Proposal
	Order    *domain.Order
}

// DecideProposal applies the seller's accept or reject decision. Accepting
// creates an order for the proposed price in the same write.
func (s *OrderService) DecideProposal(ctx context.Context, in DecideInput) (*DecisionResult, error) {
	requested, err := domain.ParseProposalStatus(in.Status)
	if err != nil {
		return nil, err
	}

	proposal, err := s.GetProposal(ctx, in.ActorID, in.ProposalID)
	if err != nil {
		return nil, err
	}
	if proposal.SellerID != in.ActorID {
		return nil, ErrForbidden
	}

	to, err := domain.DecideProposal(proposal.Status, requested)
	if err != nil {
		return nil, err
	}

	at := s.now().UTC()
	result := &DecisionResult{Proposal: proposal}

	if to == domain.ProposalAccepted {
		order, err := domain.OrderFromProposal(*proposal, func() time.Time { return at }, s.newID)
		if err != nil {
			return nil, err
		}
		err = s.db.AcceptProposal(ctx, proposal.ID, at, order)
		if err != nil {
			return nil, s.decisionError(proposal, err)
		}
		result.Order = &order
	} else if err := s.db.DecideProposal(ctx, proposal.ID, to, at); err != nil {
		return nil, s.decisionError(proposal, err)
	}

	proposal.Status = to
	proposal.DecidedAt = &at

	s.logger.Info("proposal decided",
		zap.String("proposal_id", proposal.ID),
		zap.String("status", to.String()),
		zap.String("actor_id", in.ActorID))

	ev := &domain.ProposalDecidedEvent{
		EventID:    s.newID(),
		ProposalID: proposal.ID,
		ProposerID: proposal.ProposerID,
		SellerID:   proposal.SellerID,
		Status:     to,
		At:         at,
	}
	if result.Order != nil {
		ev.OrderID = result.Order.ID
	}
	s.enqueue(ctx, domain.Event{Type: domain.EventProposalDecided, ProposalDecided: ev})

	if o := result.Order; o != nil {
		s.enqueue(ctx, domain.Event{
			Type: domain.EventPhaseChanged,
			PhaseChanged: &domain.PhaseChangedEvent{
				EventID:  s.newID(),
				OrderID:  o.ID,
				BuyerID:  o.BuyerID,
				SellerID: o.SellerID,
				ActorID:  in.ActorID,
				To:       o.Phase,
				At:       at,
			},
		})
	}

	return result, nil
}

func (s *OrderService) decisionError(p *domain.Proposal, err error) error {
	if errors.Is(err, port.ErrPhaseConflict) {
		// someone else decided first; report it as the tracker would
		return &domain.TransitionError{From: string(p.Status), To: "decided", Err: domain.ErrInvalidTransition}
	}
	return fmt.Errorf("decide proposal: %w", err)
}
