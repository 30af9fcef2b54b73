package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

const maxProposalMessage = 1000

var (
	ErrEmptyProposerID = errors.New("proposer id is required")
	ErrMessageTooLong  = fmt.Errorf("message exceeds %d characters", maxProposalMessage)
)

// ErrUnknownStatus matches ErrUnknownPhase with errors.Is so both surface as
// client input errors.
var ErrUnknownStatus = fmt.Errorf("%w: unknown proposal status", ErrUnknownPhase)

type ProposalStatus string

const (
	ProposalPending  ProposalStatus = "pending"
	ProposalAccepted ProposalStatus = "accepted"
	ProposalRejected ProposalStatus = "rejected"
)

func ParseProposalStatus(s string) (ProposalStatus, error) {
	st := ProposalStatus(s)
	if !st.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownStatus, s)
	}
	return st, nil
}

func (s ProposalStatus) String() string {
	return string(s)
}

func (s ProposalStatus) Valid() bool {
	switch s {
	case ProposalPending, ProposalAccepted, ProposalRejected:
		return true
	}
	return false
}

// Proposal is a price offer on an item made before any order exists.
type Proposal struct {
	ID         string
	ItemID     string
	ProposerID string
	SellerID   string
	PriceCents int64
	Currency   string
	Message    string
	Status     ProposalStatus
	CreatedAt  time.Time
	DecidedAt  *time.Time
}

func (p Proposal) IsParticipant(userID string) bool {
	return userID != "" && (p.ProposerID == userID || p.SellerID == userID)
}

type CreateProposalInput struct {
	ItemID     string
	ProposerID string
	SellerID   string
	PriceCents int64
	Currency   string
	Message    string
}

func NewProposal(input CreateProposalInput, now func() time.Time, idGen func() string) (Proposal, error) {
	if now == nil {
		now = time.Now
	}
	if idGen == nil {
		idGen = uuid.NewString
	}

	input.ItemID = strings.TrimSpace(input.ItemID)
	input.ProposerID = strings.TrimSpace(input.ProposerID)
	input.SellerID = strings.TrimSpace(input.SellerID)
	input.Currency = strings.ToUpper(strings.TrimSpace(input.Currency))
	input.Message = strings.TrimSpace(input.Message)

	var err error
	switch {
	case input.ItemID == "":
		err = ErrEmptyItemID
	case input.ProposerID == "":
		err = ErrEmptyProposerID
	case input.SellerID == "":
		err = ErrEmptySellerID
	case input.ProposerID == input.SellerID:
		err = ErrSelfPurchase
	case input.PriceCents <= 0:
		err = ErrInvalidAmount
	case utf8.RuneCountInString(input.Message) > maxProposalMessage:
		err = ErrMessageTooLong
	default:
		err = checkIDLength(input.ItemID, input.ProposerID, input.SellerID)
	}
	if err == nil {
		if input.Currency == "" {
			input.Currency = DefaultCurrency
		}
		if !validCurrency(input.Currency) {
			err = fmt.Errorf("%w: %q", ErrInvalidCurrency, input.Currency)
		}
	}
	if err != nil {
		return Proposal{}, fmt.Errorf("new proposal: %w", err)
	}

	return Proposal{
		ID:         idGen(),
		ItemID:     input.ItemID,
		ProposerID: input.ProposerID,
		SellerID:   input.SellerID,
		PriceCents: input.PriceCents,
		Currency:   input.Currency,
		Message:    input.Message,
		Status:     ProposalPending,
		CreatedAt:  now().UTC(),
	}, nil
}

// DecideProposal validates a seller decision. Only pending proposals can
// change, and only to accepted or rejected.
func DecideProposal(current, requested ProposalStatus) (ProposalStatus, error) {
	if !current.Valid() || !requested.Valid() {
		return "", &TransitionError{From: string(current), To: string(requested), Err: ErrUnknownStatus}
	}
	if current != ProposalPending || requested == ProposalPending {
		return "", &TransitionError{From: string(current), To: string(requested), Err: ErrInvalidTransition}
	}
	return requested, nil
}

// OrderFromProposal builds the order created when a proposal is accepted.
func OrderFromProposal(p Proposal, now func() time.Time, idGen func() string) (Order, error) {
	return NewOrder(CreateOrderInput{
		ItemID:      p.ItemID,
		BuyerID:     p.ProposerID,
		SellerID:    p.SellerID,
		AmountCents: p.PriceCents,
		Currency:    p.Currency,
	}, now, idGen)
}
