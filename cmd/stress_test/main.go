package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/caarlos0/env/v11"
	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/tantovale/marketplace/internal/adapter/storage"
	"github.com/tantovale/marketplace/internal/core/domain"
	"github.com/tantovale/marketplace/internal/core/service"
)

type stressConfig struct {
	MySQLDSN      string `env:"MYSQL_DSN" envDefault:"root:root@tcp(localhost:3306)/tantovale?parseTime=true"`
	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	MigrationsDir string `env:"MIGRATIONS_DIR" envDefault:"internal/adapter/storage/migrations"`
	Requests      int    `env:"STRESS_REQUESTS" envDefault:"50"`
}

func main() {
	cfg, err := env.ParseAs[stressConfig]()
	if err != nil {
		log.Fatalf("failed to parse env: %v", err)
	}

	ctx := context.Background()

	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		log.Fatalf("failed to open mysql: %v", err)
	}
	defer db.Close()
	if err := storage.Migrate(ctx, db, cfg.MigrationsDir); err != nil {
		log.Fatalf("failed to migrate: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatalf("failed to connect redis: %v", err)
	}
	defer rdb.Close()

	orderService := service.NewOrderService(
		storage.NewMySQLAdapter(db),
		storage.NewRedisAdapter(rdb, time.Hour),
		cfg.Requests*2,
		zap.NewNop(),
	)
	defer orderService.Close()

	// Drain the event queue in background
	go func() {
		for range orderService.Events() {
		}
	}()

	order, err := orderService.CreateOrder(ctx, domain.CreateOrderInput{
		ItemID:      "stress-item",
		BuyerID:     "stress-buyer",
		SellerID:    "stress-seller",
		AmountCents: 1000,
	})
	if err != nil {
		log.Fatalf("failed to create order: %v", err)
	}

	// Counters
	var successCount, conflictCount, otherCount atomic.Int32

	// Every request starts from payment_pending; half confirm, half fail.
	targets := []domain.Phase{domain.PhasePaymentConfirmed, domain.PhasePaymentFailed}

	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < cfg.Requests; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()

			_, err := orderService.TransitionOrder(ctx, service.TransitionInput{
				RequestID: uuid.NewString(),
				ActorID:   "stress-buyer",
				OrderID:   order.ID,
				Phase:     targets[n%2].String(),
			})
			switch {
			case err == nil:
				successCount.Add(1)
			case errors.Is(err, service.ErrConcurrentTransition), errors.Is(err, domain.ErrInvalidTransition):
				conflictCount.Add(1)
			default:
				otherCount.Add(1)
				log.Printf("unexpected error: %v", err)
			}
		}(i)
	}

	wg.Wait()
	elapsed := time.Since(start)

	final, err := orderService.GetOrder(ctx, "stress-buyer", order.ID)
	if err != nil {
		log.Fatalf("failed to reload order: %v", err)
	}

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Order:            %s\n", order.ID)
	fmt.Printf("Total Requests:   %d\n", cfg.Requests)
	fmt.Printf("Applied:          %d\n", successCount.Load())
	fmt.Printf("Rejected:         %d\n", conflictCount.Load())
	fmt.Printf("Errors:           %d\n", otherCount.Load())
	fmt.Printf("Final Phase:      %s\n", final.Phase)
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	if successCount.Load() == 1 && otherCount.Load() == 0 {
		fmt.Println("PASS: exactly one transition applied")
	} else {
		fmt.Printf("FAIL: expected 1 applied transition, got %d\n", successCount.Load())
	}
}
