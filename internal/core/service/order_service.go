package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tantovale/marketplace/internal/core/domain"
	"github.com/tantovale/marketplace/internal/port"
)

var (
	ErrDuplicateRequest     = errors.New("duplicate request")
	ErrConcurrentTransition = errors.New("order changed concurrently")
	ErrForbidden            = errors.New("forbidden")
	ErrMissingRequestID     = errors.New("request id is required")
	ErrNotFound             = port.ErrNotFound
)

const (
	idempotencyKeyPrefix = "transition:"

	// defaultEnqueueTimeout bounds how long a committed change waits for room
	// in a full event queue.
	defaultEnqueueTimeout = 2 * time.Second
)

type OrderService struct {
	db     port.DatabaseRepository
	cache  port.CacheRepository
	logger *zap.Logger
	now    func() time.Time
	newID  func() string

	enqueueTimeout time.Duration

	mu     sync.RWMutex
	closed bool
	events chan domain.Event
}

func NewOrderService(db port.DatabaseRepository, cache port.CacheRepository, queueSize int, logger *zap.Logger) *OrderService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OrderService{
		db:     db,
		cache:  cache,
		logger: logger,
		now:    time.Now,
		newID:  uuid.NewString,
		events: make(chan domain.Event, queueSize),

		enqueueTimeout: defaultEnqueueTimeout,
	}
}

func (s *OrderService) CreateOrder(ctx context.Context, input domain.CreateOrderInput) (*domain.Order, error) {
	order, err := domain.NewOrder(input, s.now, s.newID)
	if err != nil {
		return nil, err
	}

	if err := s.db.CreateOrder(ctx, order); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	s.enqueue(ctx, domain.Event{
		Type: domain.EventPhaseChanged,
		PhaseChanged: &domain.PhaseChangedEvent{
			EventID:  s.newID(),
			OrderID:  order.ID,
			BuyerID:  order.BuyerID,
			SellerID: order.SellerID,
			ActorID:  order.BuyerID,
			To:       order.Phase,
			At:       order.CreatedAt,
		},
	})

	return &order, nil
}

func (s *OrderService) GetOrder(ctx context.Context, actorID, orderID string) (*domain.Order, error) {
	order, err := s.db.GetOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("get order %s: %w", orderID, err)
	}
	if !order.IsParticipant(actorID) {
		return nil, ErrForbidden
	}
	return order, nil
}

func (s *OrderService) ListOrders(ctx context.Context, actorID string) ([]domain.Order, error) {
	if strings.TrimSpace(actorID) == "" {
		return nil, ErrForbidden
	}
	orders, err := s.db.ListOrdersByUser(ctx, actorID)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return orders, nil
}

type TransitionInput struct {
	RequestID string
	ActorID   string
	OrderID   string
	Phase     string
}

// TransitionOrder moves an order to the requested phase. The tracker decides
// legality; the write is a compare-and-swap on the phase that was read, so of
// two concurrent requests from the same phase at most one succeeds.
func (s *OrderService) TransitionOrder(ctx context.Context, in TransitionInput) (_ *domain.Order, err error) {
	requested, err := domain.ParsePhase(in.Phase)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.RequestID) == "" {
		return nil, ErrMissingRequestID
	}

	key := idempotencyKeyPrefix + in.RequestID
	token := s.newID()

	ok, err := s.cache.SetIdempotency(ctx, key, token)
	if err != nil {
		return nil, fmt.Errorf("idempotency check failed: %w", err)
	}
	if !ok {
		return nil, ErrDuplicateRequest
	}
	defer func() {
		if err == nil {
			return
		}
		// Failed requests can be replayed and must fail the same way.
		if releaseErr := s.cache.ReleaseIdempotency(context.WithoutCancel(ctx), key, token); releaseErr != nil {
			s.logger.Warn("release idempotency key",
				zap.String("request_id", in.RequestID),
				zap.Error(releaseErr))
		}
	}()

	order, err := s.GetOrder(ctx, in.ActorID, in.OrderID)
	if err != nil {
		return nil, err
	}

	from := order.Phase
	to, err := domain.Transition(from, requested)
	if err != nil {
		return nil, err
	}

	at := s.now().UTC()
	if err := s.db.UpdateOrderPhase(ctx, order.ID, from, to, at); err != nil {
		if errors.Is(err, port.ErrPhaseConflict) {
			return nil, fmt.Errorf("%w: order %s left %s", ErrConcurrentTransition, order.ID, from)
		}
		return nil, fmt.Errorf("update order phase: %w", err)
	}

	order.Phase = to
	order.PhaseChangedAt = at
	order.UpdatedAt = at

	s.logger.Info("order phase changed",
		zap.String("order_id", order.ID),
		zap.String("from", from.String()),
		zap.String("to", to.String()),
		zap.String("actor_id", in.ActorID))

	s.enqueue(ctx, domain.Event{
		Type: domain.EventPhaseChanged,
		PhaseChanged: &domain.PhaseChangedEvent{
			EventID:  s.newID(),
			OrderID:  order.ID,
			BuyerID:  order.BuyerID,
			SellerID: order.SellerID,
			ActorID:  in.ActorID,
			From:     from,
			To:       to,
			At:       at,
		},
	})

	return order, nil
}

// UpdateOrderAmount lets the seller correct the amount until payment is
// confirmed.
func (s *OrderService) UpdateOrderAmount(ctx context.Context, actorID, orderID string, amountCents int64) (*domain.Order, error) {
	order, err := s.GetOrder(ctx, actorID, orderID)
	if err != nil {
		return nil, err
	}
	if order.SellerID != actorID {
		return nil, ErrForbidden
	}
	if err := domain.ChangeAmount(order.Phase, amountCents); err != nil {
		return nil, err
	}

	at := s.now().UTC()
	if err := s.db.UpdateOrderAmount(ctx, order.ID, order.Phase, amountCents, at); err != nil {
		if errors.Is(err, port.ErrPhaseConflict) {
			return nil, fmt.Errorf("%w: order %s left %s", ErrConcurrentTransition, order.ID, order.Phase)
		}
		return nil, fmt.Errorf("update order amount: %w", err)
	}

	order.AmountCents = amountCents
	order.UpdatedAt = at
	return order, nil
}

// Events returns the queue drained by notification workers.
func (s *OrderService) Events() <-chan domain.Event {
	return s.events
}

// Close stops accepting events and closes the queue. Calls after the first
// are no-ops.
func (s *OrderService) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.events)
}

// enqueue hands an event to the workers. The state change is already
// persisted, so the wait is detached from the request context and bounded by
// enqueueTimeout, and a dropped event is logged rather than returned.
func (s *OrderService) enqueue(ctx context.Context, ev domain.Event) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.enqueueTimeout)
	defer cancel()

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		s.logger.Warn("event dropped, queue closed", zap.String("type", string(ev.Type)))
		return
	}

	select {
	case s.events <- ev:
	case <-ctx.Done():
		s.logger.Warn("event dropped", zap.String("type", string(ev.Type)), zap.Error(ctx.Err()))
	}
}
