// Package porttest provides in-memory port implementations for transport
// tests.
package porttest

import (
	"context"
	"sync"
	"time"

	"github.com/tantovale/marketplace/internal/core/domain"
	"github.com/tantovale/marketplace/internal/port"
)

var (
	_ port.DatabaseRepository = (*Store)(nil)
	_ port.CacheRepository    = (*Cache)(nil)
)

type Store struct {
	mu        sync.Mutex
	orders    map[string]domain.Order
	proposals map[string]domain.Proposal
}

func NewStore() *Store {
	return &Store{
		orders:    make(map[string]domain.Order),
		proposals: make(map[string]domain.Proposal),
	}
}

// PutOrder stores o as is, bypassing the lifecycle.
func (s *Store) PutOrder(o domain.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[o.ID] = o
}

func (s *Store) CreateOrder(_ context.Context, o domain.Order) error {
	s.PutOrder(o)
	return nil
}

func (s *Store) GetOrder(_ context.Context, id string) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, port.ErrNotFound
	}
	return &o, nil
}

func (s *Store) ListOrdersByUser(_ context.Context, userID string) ([]domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Order
	for _, o := range s.orders {
		if o.IsParticipant(userID) {
			out = append(out, o)
		}
	}
	return out, nil
}

func (s *Store) UpdateOrderPhase(_ context.Context, id string, from, to domain.Phase, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return port.ErrNotFound
	}
	if o.Phase != from {
		return port.ErrPhaseConflict
	}
	o.Phase, o.PhaseChangedAt, o.UpdatedAt = to, at, at
	s.orders[id] = o
	return nil
}

func (s *Store) UpdateOrderAmount(_ context.Context, id string, phase domain.Phase, amount int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return port.ErrNotFound
	}
	if o.Phase != phase {
		return port.ErrPhaseConflict
	}
	o.AmountCents, o.UpdatedAt = amount, at
	s.orders[id] = o
	return nil
}

func (s *Store) CreateProposal(_ context.Context, p domain.Proposal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.proposals[p.ID] = p
	return nil
}

func (s *Store) GetProposal(_ context.Context, id string) (*domain.Proposal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.proposals[id]
	if !ok {
		return nil, port.ErrNotFound
	}
	return &p, nil
}

func (s *Store) DecideProposal(_ context.Context, id string, to domain.ProposalStatus, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.decide(id, to, at)
}

func (s *Store) AcceptProposal(_ context.Context, id string, at time.Time, o domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.decide(id, domain.ProposalAccepted, at); err != nil {
		return err
	}
	s.orders[o.ID] = o
	return nil
}

func (s *Store) decide(id string, to domain.ProposalStatus, at time.Time) error {
	p, ok := s.proposals[id]
	if !ok {
		return port.ErrNotFound
	}
	if p.Status != domain.ProposalPending {
		return port.ErrPhaseConflict
	}
	p.Status, p.DecidedAt = to, &at
	s.proposals[id] = p
	return nil
}

type Cache struct {
	mu   sync.Mutex
	keys map[string]string
}

func NewCache() *Cache {
	return &Cache{keys: make(map[string]string)}
}

func (c *Cache) SetIdempotency(_ context.Context, key, token string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.keys[key]; ok {
		return false, nil
	}
	c.keys[key] = token
	return true, nil
}

func (c *Cache) ReleaseIdempotency(_ context.Context, key, token string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.keys[key] == token {
		delete(c.keys, key)
	}
	return nil
}
