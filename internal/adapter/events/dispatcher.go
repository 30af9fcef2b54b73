package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tantovale/marketplace/internal/core/domain"
	"github.com/tantovale/marketplace/internal/port"
)

const publishTimeout = 15 * time.Second

// StartWorkers drains queue with n goroutines until it is closed. The
// returned WaitGroup is done once every worker has exited.
func StartWorkers(n int, queue <-chan domain.Event, pub port.EventPublisher, logger *zap.Logger) *sync.WaitGroup {
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			workerLoop(id, queue, pub, logger)
		}(i)
	}
	return &wg
}

func workerLoop(id int, queue <-chan domain.Event, pub port.EventPublisher, logger *zap.Logger) {
	for ev := range queue {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)

		if err := Dispatch(ctx, pub, ev); err != nil {
			// the state change is committed; downstream consumers reconcile from the store
			logger.Error("event not delivered",
				zap.Int("worker", id),
				zap.String("type", string(ev.Type)),
				zap.Error(err))
		}

		cancel()
	}
}

// Dispatch routes ev to the publisher method matching its type.
func Dispatch(ctx context.Context, pub port.EventPublisher, ev domain.Event) error {
	switch {
	case ev.Type == domain.EventPhaseChanged && ev.PhaseChanged != nil:
		return pub.PublishPhaseChanged(ctx, *ev.PhaseChanged)
	case ev.Type == domain.EventProposalDecided && ev.ProposalDecided != nil:
		return pub.PublishProposalDecided(ctx, *ev.ProposalDecided)
	default:
		return fmt.Errorf("malformed event of type %q", ev.Type)
	}
}
