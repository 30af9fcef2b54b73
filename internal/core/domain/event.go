package domain

import "time"

type EventType string

const (
	EventPhaseChanged    EventType = "order.phase_changed"
	EventProposalDecided EventType = "proposal.decided"
)

// PhaseChangedEvent is emitted after a phase change is persisted. From is
// empty for a newly created order.
type PhaseChangedEvent struct {
	EventID  string    `json:"event_id"`
	OrderID  string    `json:"order_id"`
	BuyerID  string    `json:"buyer_id"`
	SellerID string    `json:"seller_id"`
	ActorID  string    `json:"actor_id"`
	From     Phase     `json:"from,omitempty"`
	To       Phase     `json:"to"`
	At       time.Time `json:"at"`
}

type ProposalDecidedEvent struct {
	EventID    string         `json:"event_id"`
	ProposalID string         `json:"proposal_id"`
	ProposerID string         `json:"proposer_id"`
	SellerID   string         `json:"seller_id"`
	Status     ProposalStatus `json:"status"`
	OrderID    string         `json:"order_id,omitempty"`
	At         time.Time      `json:"at"`
}

// Event is the unit queued for notification workers. Exactly one payload
// field is set, matching Type.
type Event struct {
	Type            EventType
	PhaseChanged    *PhaseChangedEvent
	ProposalDecided *ProposalDecidedEvent
}
