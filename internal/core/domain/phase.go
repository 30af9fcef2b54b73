package domain

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownPhase      = errors.New("unknown phase")
	ErrInvalidTransition = errors.New("invalid transition")
)

// Phase is the lifecycle stage of an order.
type Phase string

const (
	PhasePaymentPending    Phase = "payment_pending"
	PhasePaymentConfirmed  Phase = "payment_confirmed"
	PhasePaymentFailed     Phase = "payment_failed"
	PhasePaymentRefunded   Phase = "payment_refunded"
	PhaseShippingPending   Phase = "shipping_pending"
	PhaseShippingConfirmed Phase = "shipping_confirmed"
	PhaseShippingDelivered Phase = "shipping_delivered"
	PhaseShippingFailed    Phase = "shipping_failed"
	PhaseCompleted         Phase = "completed"
	PhaseComplained        Phase = "complained"
	PhaseCancelled         Phase = "cancelled"
	PhaseExpired           Phase = "expired"
)

var allPhases = []Phase{
	PhasePaymentPending,
	PhasePaymentConfirmed,
	PhasePaymentFailed,
	PhasePaymentRefunded,
	PhaseShippingPending,
	PhaseShippingConfirmed,
	PhaseShippingDelivered,
	PhaseShippingFailed,
	PhaseCompleted,
	PhaseComplained,
	PhaseCancelled,
	PhaseExpired,
}

// successors is read-only after init. Terminal phases map to an empty set.
var successors = map[Phase][]Phase{
	PhasePaymentPending:    {PhasePaymentConfirmed, PhasePaymentFailed},
	PhasePaymentConfirmed:  {PhaseShippingPending},
	PhasePaymentFailed:     {PhasePaymentPending, PhaseCancelled},
	PhasePaymentRefunded:   {PhaseCancelled},
	PhaseShippingPending:   {PhaseShippingConfirmed, PhaseShippingFailed},
	PhaseShippingConfirmed: {PhaseShippingDelivered},
	PhaseShippingDelivered: {PhaseCompleted, PhaseComplained},
	PhaseShippingFailed:    {PhaseShippingPending, PhaseCancelled},
	PhaseCompleted:         nil,
	PhaseComplained:        nil,
	PhaseCancelled:         nil,
	PhaseExpired:           nil,
}

// Phases returns every recognized phase in lifecycle order.
func Phases() []Phase {
	out := make([]Phase, len(allPhases))
	copy(out, allPhases)
	return out
}

// ParsePhase converts a wire literal into a Phase. The literal must match
// exactly, including case and surrounding whitespace.
func ParsePhase(s string) (Phase, error) {
	p := Phase(s)
	if !p.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownPhase, s)
	}
	return p, nil
}

func (p Phase) String() string {
	return string(p)
}

func (p Phase) Valid() bool {
	_, ok := successors[p]
	return ok
}

// IsTerminal reports whether p has no outgoing transitions.
// Unknown phases are not terminal.
func (p Phase) IsTerminal() bool {
	next, ok := successors[p]
	return ok && len(next) == 0
}

// Successors returns the phases reachable from p in one step.
func (p Phase) Successors() []Phase {
	next := successors[p]
	out := make([]Phase, len(next))
	copy(out, next)
	return out
}

// CanTransition reports whether to is an allowed successor of p.
func (p Phase) CanTransition(to Phase) bool {
	for _, next := range successors[p] {
		if next == to {
			return true
		}
	}
	return false
}

// TransitionError describes a rejected phase or status change. Err is
// ErrUnknownPhase, ErrUnknownStatus or ErrInvalidTransition.
type TransitionError struct {
	From string
	To   string
	Err  error
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: %s -> %s", e.Err, e.From, e.To)
}

func (e *TransitionError) Unwrap() error {
	return e.Err
}

// Transition validates moving an order from current to requested and returns
// the new phase. It has no side effects; callers persist the result.
func Transition(current, requested Phase) (Phase, error) {
	if !current.Valid() || !requested.Valid() {
		return "", &TransitionError{From: string(current), To: string(requested), Err: ErrUnknownPhase}
	}
	if !current.CanTransition(requested) {
		return "", &TransitionError{From: string(current), To: string(requested), Err: ErrInvalidTransition}
	}
	return requested, nil
}
