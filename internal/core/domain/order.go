package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

const DefaultCurrency = "EUR"

// MaxIDLength matches the VARCHAR(64) id columns.
const MaxIDLength = 64

var (
	ErrEmptyItemID     = errors.New("item id is required")
	ErrEmptyBuyerID    = errors.New("buyer id is required")
	ErrEmptySellerID   = errors.New("seller id is required")
	ErrInvalidAmount   = errors.New("amount must be positive")
	ErrSelfPurchase    = errors.New("buyer and seller must differ")
	ErrAmountLocked    = errors.New("amount is locked once payment is confirmed")
	ErrInvalidCurrency = errors.New("currency must be a 3-letter ISO 4217 code")
	ErrIDTooLong       = fmt.Errorf("id exceeds %d characters", MaxIDLength)
)

type Order struct {
	ID             string
	ItemID         string
	BuyerID        string
	SellerID       string
	AmountCents    int64
	Currency       string
	Phase          Phase
	CreatedAt      time.Time
	PhaseChangedAt time.Time
	UpdatedAt      time.Time
}

// IsParticipant reports whether userID is the buyer or the seller.
func (o Order) IsParticipant(userID string) bool {
	return userID != "" && (o.BuyerID == userID || o.SellerID == userID)
}

type CreateOrderInput struct {
	ItemID      string
	BuyerID     string
	SellerID    string
	AmountCents int64
	Currency    string
}

func (in CreateOrderInput) normalize() (CreateOrderInput, error) {
	in.ItemID = strings.TrimSpace(in.ItemID)
	in.BuyerID = strings.TrimSpace(in.BuyerID)
	in.SellerID = strings.TrimSpace(in.SellerID)
	in.Currency = strings.ToUpper(strings.TrimSpace(in.Currency))

	switch {
	case in.ItemID == "":
		return in, ErrEmptyItemID
	case in.BuyerID == "":
		return in, ErrEmptyBuyerID
	case in.SellerID == "":
		return in, ErrEmptySellerID
	case in.BuyerID == in.SellerID:
		return in, ErrSelfPurchase
	case in.AmountCents <= 0:
		return in, ErrInvalidAmount
	}
	if err := checkIDLength(in.ItemID, in.BuyerID, in.SellerID); err != nil {
		return in, err
	}
	if in.Currency == "" {
		in.Currency = DefaultCurrency
	}
	if !validCurrency(in.Currency) {
		return in, fmt.Errorf("%w: %q", ErrInvalidCurrency, in.Currency)
	}
	return in, nil
}

func checkIDLength(ids ...string) error {
	for _, id := range ids {
		if utf8.RuneCountInString(id) > MaxIDLength {
			return ErrIDTooLong
		}
	}
	return nil
}

func validCurrency(c string) bool {
	if len(c) != 3 {
		return false
	}
	for i := 0; i < len(c); i++ {
		if c[i] < 'A' || c[i] > 'Z' {
			return false
		}
	}
	return true
}

// NewOrder builds an order in payment_pending. now and idGen default to
// time.Now and uuid.NewString when nil.
func NewOrder(input CreateOrderInput, now func() time.Time, idGen func() string) (Order, error) {
	if now == nil {
		now = time.Now
	}
	if idGen == nil {
		idGen = uuid.NewString
	}

	in, err := input.normalize()
	if err != nil {
		return Order{}, fmt.Errorf("new order: %w", err)
	}

	createdAt := now().UTC()
	return Order{
		ID:             idGen(),
		ItemID:         in.ItemID,
		BuyerID:        in.BuyerID,
		SellerID:       in.SellerID,
		AmountCents:    in.AmountCents,
		Currency:       in.Currency,
		Phase:          PhasePaymentPending,
		CreatedAt:      createdAt,
		PhaseChangedAt: createdAt,
		UpdatedAt:      createdAt,
	}, nil
}

// AmountMutable reports whether an order in phase p may still change its
// amount. Payment has never been confirmed only in these two phases.
func AmountMutable(p Phase) bool {
	return p == PhasePaymentPending || p == PhasePaymentFailed
}

// ChangeAmount validates a new amount for an order currently in phase p.
func ChangeAmount(p Phase, amountCents int64) error {
	if !p.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownPhase, string(p))
	}
	if amountCents <= 0 {
		return ErrInvalidAmount
	}
	if !AmountMutable(p) {
		return fmt.Errorf("%w: phase %s", ErrAmountLocked, p)
	}
	return nil
}
