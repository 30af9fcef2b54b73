package domain

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedNow() time.Time {
	return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
}

func fixedID() string { return "id-1" }

func TestDecideProposal(t *testing.T) {
	got, err := DecideProposal(ProposalPending, ProposalAccepted)
	require.NoError(t, err)
	assert.Equal(t, ProposalAccepted, got)

	got, err = DecideProposal(ProposalPending, ProposalRejected)
	require.NoError(t, err)
	assert.Equal(t, ProposalRejected, got)

	// a decided proposal is immutable
	_, err = DecideProposal(got, ProposalAccepted)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = DecideProposal(ProposalAccepted, ProposalRejected)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = DecideProposal(ProposalPending, ProposalPending)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestDecideProposal_UnknownStatus(t *testing.T) {
	_, err := DecideProposal(ProposalPending, "maybe")
	assert.ErrorIs(t, err, ErrUnknownStatus)
	assert.ErrorIs(t, err, ErrUnknownPhase)

	_, err = ParseProposalStatus("ACCEPTED")
	assert.ErrorIs(t, err, ErrUnknownStatus)

	_, err = ParseProposalStatus(" accepted ")
	assert.ErrorIs(t, err, ErrUnknownStatus)
}

func TestNewProposal(t *testing.T) {
	p, err := NewProposal(CreateProposalInput{
		ItemID:     " item-1 ",
		ProposerID: "buyer",
		SellerID:   "seller",
		PriceCents: 4500,
		Message:    "  would you take 45?  ",
	}, fixedNow, fixedID)
	require.NoError(t, err)

	assert.Equal(t, "id-1", p.ID)
	assert.Equal(t, "item-1", p.ItemID)
	assert.Equal(t, ProposalPending, p.Status)
	assert.Equal(t, DefaultCurrency, p.Currency)
	assert.Equal(t, "would you take 45?", p.Message)
	assert.Nil(t, p.DecidedAt)
	assert.True(t, p.IsParticipant("seller"))
	assert.False(t, p.IsParticipant("stranger"))
}

func TestNewProposal_Validation(t *testing.T) {
	base := CreateProposalInput{ItemID: "i", ProposerID: "b", SellerID: "s", PriceCents: 1}

	tests := []struct {
		name   string
		mutate func(*CreateProposalInput)
		want   error
	}{
		{"missing item", func(in *CreateProposalInput) { in.ItemID = "" }, ErrEmptyItemID},
		{"missing proposer", func(in *CreateProposalInput) { in.ProposerID = " " }, ErrEmptyProposerID},
		{"missing seller", func(in *CreateProposalInput) { in.SellerID = "" }, ErrEmptySellerID},
		{"own item", func(in *CreateProposalInput) { in.SellerID = "b" }, ErrSelfPurchase},
		{"zero price", func(in *CreateProposalInput) { in.PriceCents = 0 }, ErrInvalidAmount},
		{"long message", func(in *CreateProposalInput) { in.Message = strings.Repeat("é", 1001) }, ErrMessageTooLong},
		{"long proposer id", func(in *CreateProposalInput) { in.ProposerID = strings.Repeat("p", MaxIDLength+1) }, ErrIDTooLong},
		{"long item id", func(in *CreateProposalInput) { in.ItemID = strings.Repeat("i", 200) }, ErrIDTooLong},
		{"bad currency", func(in *CreateProposalInput) { in.Currency = "EUROS" }, ErrInvalidCurrency},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := base
			tt.mutate(&in)
			_, err := NewProposal(in, fixedNow, fixedID)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestOrderFromProposal(t *testing.T) {
	p := Proposal{ItemID: "item", ProposerID: "buyer", SellerID: "seller", PriceCents: 900, Currency: "USD"}

	o, err := OrderFromProposal(p, fixedNow, fixedID)
	require.NoError(t, err)
	assert.Equal(t, PhasePaymentPending, o.Phase)
	assert.Equal(t, "buyer", o.BuyerID)
	assert.Equal(t, "seller", o.SellerID)
	assert.Equal(t, int64(900), o.AmountCents)
	assert.Equal(t, "USD", o.Currency)
}
