package subscription_test

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dmitrymomot/subsync/pkg/breaker"
	"github.com/dmitrymomot/subsync/pkg/config"
	"github.com/dmitrymomot/subsync/pkg/ledger"
	"github.com/dmitrymomot/subsync/pkg/lock"
	"github.com/dmitrymomot/subsync/pkg/logger"
	mongoconn "github.com/dmitrymomot/subsync/pkg/mongo"
	redisconn "github.com/dmitrymomot/subsync/pkg/redis"
	"github.com/dmitrymomot/subsync/svc/subscription"
)

// Example shows the production wiring: env-driven config, mongo-backed
// record store and ledger, redis-backed subject locks, a circuit breaker
// and the trial sweeper, all feeding one Processor.
func Example() {
	ctx := context.Background()

	var cfg struct {
		Redis   redisconn.Config
		Mongo   mongoconn.Config
		Lock    lock.Config
		Breaker breaker.Config
		Sweep   subscription.SweeperConfig
		Log     logger.Config
	}
	config.MustLoad(&cfg)

	log := logger.NewFromConfig(cfg.Log, logger.WithAttr(slog.String("service", "subsync")))
	logger.SetAsDefault(log)

	redisClient, err := redisconn.Connect(ctx, cfg.Redis)
	if err != nil {
		log.Error("redis connect failed", logger.Error(err))
		return
	}
	db, err := mongoconn.ConnectDatabase(ctx, cfg.Mongo)
	if err != nil {
		log.Error("mongo connect failed", logger.Error(err))
		return
	}

	store := subscription.NewStore(subscription.NewMongoDriver(db.Collection("subscription_records")))
	proc := subscription.NewProcessor(
		ledger.NewMongoLedger(db.Collection("event_ledger")),
		lock.NewRedisManager(redisClient, cfg.Lock),
		store,
		subscription.WithLockConfig(cfg.Lock),
		subscription.WithBreaker(breaker.New(cfg.Breaker)),
		subscription.WithFailedOps(subscription.NewMongoFailedOpStore(db.Collection("failed_operations"))),
		subscription.WithNotifier(subscription.NewAsyncNotifier(subscription.NewLogNotifier(log), 256)),
		subscription.WithProcessorLogger(log),
	)

	sweeper := subscription.NewSweeper(proc, store, cfg.Sweep, subscription.WithSweeperLogger(log))
	go func() { _ = sweeper.Start(ctx) }()

	res, err := proc.Process(ctx, subscription.Event{
		ID:        "evt_01h8x",
		Type:      subscription.EventCheckoutCompleted,
		SubjectID: "cus_42",
		Payload: subscription.Payload{
			ObjectID:      "sub_01h8x",
			Tier:          subscription.TierGrowth,
			Amount:        2900,
			Currency:      "USD",
			ProviderSubID: "sub_01h8x",
		},
		OccurredAt: time.Now().UTC(),
	})
	if err != nil {
		log.Error("processing failed", logger.Error(err))
		return
	}
	fmt.Println(res.Outcome)
}
