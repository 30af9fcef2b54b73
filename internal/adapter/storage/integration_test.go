package storage_test

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tantovale/marketplace/internal/adapter/storage"
	"github.com/tantovale/marketplace/internal/core/domain"
	"github.com/tantovale/marketplace/internal/core/service"
)

type testEnv struct {
	redis   *redis.Client
	mysql   *sql.DB
	svc     *service.OrderService
	cleanup func()
}

func setupTestEnv(t *testing.T) *testEnv {
	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}

	mysqlDSN := os.Getenv("MYSQL_DSN")
	if mysqlDSN == "" {
		mysqlDSN = "root:root@tcp(localhost:3306)/tantovale?parseTime=true"
	}

	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}

	db, err := sql.Open("mysql", mysqlDSN)
	if err != nil {
		t.Skipf("MySQL not available: %v", err)
	}
	if err := db.Ping(); err != nil {
		t.Skipf("MySQL not available: %v", err)
	}

	require.NoError(t, storage.Migrate(context.Background(), db, filepath.Join(".", "migrations")))

	svc := service.NewOrderService(storage.NewMySQLAdapter(db), storage.NewRedisAdapter(rdb, time.Minute), 1000, nil)
	go func() {
		for range svc.Events() {
		}
	}()

	return &testEnv{
		redis: rdb,
		mysql: db,
		svc:   svc,
		cleanup: func() {
			svc.Close()
			rdb.Close()
			db.Close()
		},
	}
}

func TestIntegration_OrderLifecycle(t *testing.T) {
	env := setupTestEnv(t)
	defer env.cleanup()

	ctx := context.Background()
	order, err := env.svc.CreateOrder(ctx, domain.CreateOrderInput{
		ItemID: "integration-item", BuyerID: "buyer-" + uuid.NewString(), SellerID: "seller", AmountCents: 5000,
	})
	require.NoError(t, err)
	defer env.mysql.ExecContext(ctx, `DELETE FROM orders WHERE id = ?`, order.ID)

	path := []domain.Phase{
		domain.PhasePaymentConfirmed,
		domain.PhaseShippingPending,
		domain.PhaseShippingConfirmed,
		domain.PhaseShippingDelivered,
		domain.PhaseCompleted,
	}
	for _, p := range path {
		_, err := env.svc.TransitionOrder(ctx, service.TransitionInput{
			RequestID: uuid.NewString(), ActorID: order.BuyerID, OrderID: order.ID, Phase: p.String(),
		})
		require.NoError(t, err, "transition to %s", p)
	}

	var stored string
	require.NoError(t, env.mysql.QueryRowContext(ctx, `SELECT phase FROM orders WHERE id = ?`, order.ID).Scan(&stored))
	assert.Equal(t, "completed", stored)

	_, err = env.svc.TransitionOrder(ctx, service.TransitionInput{
		RequestID: uuid.NewString(), ActorID: order.BuyerID, OrderID: order.ID, Phase: "cancelled",
	})
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestIntegration_ConcurrentTransitionsFromSamePhase(t *testing.T) {
	env := setupTestEnv(t)
	defer env.cleanup()

	ctx := context.Background()
	order, err := env.svc.CreateOrder(ctx, domain.CreateOrderInput{
		ItemID: "race-item", BuyerID: "buyer", SellerID: "seller", AmountCents: 100,
	})
	require.NoError(t, err)
	defer env.mysql.ExecContext(ctx, `DELETE FROM orders WHERE id = ?`, order.ID)

	var successCount atomic.Int32
	var wg sync.WaitGroup
	targets := []string{"payment_confirmed", "payment_failed"}

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := env.svc.TransitionOrder(ctx, service.TransitionInput{
				RequestID: uuid.NewString(), ActorID: "buyer", OrderID: order.ID, Phase: targets[n%2],
			})
			if err == nil {
				successCount.Add(1)
				return
			}
			if !errors.Is(err, service.ErrConcurrentTransition) && !errors.Is(err, domain.ErrInvalidTransition) {
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), successCount.Load())
}

func TestIntegration_AcceptProposalCreatesOrder(t *testing.T) {
	env := setupTestEnv(t)
	defer env.cleanup()

	ctx := context.Background()
	p, err := env.svc.CreateProposal(ctx, domain.CreateProposalInput{
		ItemID: "proposal-item", ProposerID: "buyer", SellerID: "seller", PriceCents: 3300,
	})
	require.NoError(t, err)
	defer env.mysql.ExecContext(ctx, `DELETE FROM order_proposals WHERE id = ?`, p.ID)

	res, err := env.svc.DecideProposal(ctx, service.DecideInput{ActorID: "seller", ProposalID: p.ID, Status: "accepted"})
	require.NoError(t, err)
	require.NotNil(t, res.Order)
	defer env.mysql.ExecContext(ctx, `DELETE FROM orders WHERE id = ?`, res.Order.ID)

	var amount int64
	require.NoError(t, env.mysql.QueryRowContext(ctx, `SELECT amount_cents FROM orders WHERE id = ?`, res.Order.ID).Scan(&amount))
	assert.Equal(t, int64(3300), amount)

	_, err = env.svc.DecideProposal(ctx, service.DecideInput{ActorID: "seller", ProposalID: p.ID, Status: "rejected"})
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}
