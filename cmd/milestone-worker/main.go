package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/medibridge/medibridge-api/internal/config"
	"github.com/medibridge/medibridge-api/internal/domain/ledger"
	"github.com/medibridge/medibridge-api/internal/domain/notification"
	"github.com/medibridge/medibridge-api/internal/domain/referral"
	"github.com/medibridge/medibridge-api/internal/domain/wallet"
	"github.com/medibridge/medibridge-api/internal/pkg/database"
	"github.com/medibridge/medibridge-api/internal/pkg/logger"
)

const (
	pollInterval = 5 * time.Minute
	batchSize    = 200
)

// milestone-worker sweeps pending referrals and pays any milestone whose
// progress was recorded without the bonus landing, e.g. after a policy
// threshold change.
func main() {
	cfg := config.Load()
	logger.Init(logger.Config{Level: cfg.LogLevel, Environment: cfg.Env, LogFile: cfg.LogFile})

	log.Info().Msg("Starting milestone-worker")

	db, err := database.NewPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer database.ClosePostgres(db)

	tx := database.NewSQLTransactor(db)
	wallets := wallet.NewService(ledger.New(ledger.NewPostgresStore(db)), tx)
	notifications := notification.NewService(notification.NewRepository(db))
	tracker := referral.NewTracker(tx, referral.NewRepository(db), wallets, notifications)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		<-sigChan
		log.Info().Msg("Shutdown signal received")
		cancel()
	}()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		sweep(ctx, tracker)

		select {
		case <-ctx.Done():
			log.Info().Msg("milestone-worker stopped")
			return
		case <-ticker.C:
		}
	}
}

func sweep(ctx context.Context, tracker *referral.Tracker) {
	start := time.Now()
	completed, err := tracker.Reconcile(ctx, batchSize)
	if err != nil && ctx.Err() == nil {
		log.Error().Err(err).Msg("Milestone sweep failed")
		return
	}
	if completed > 0 {
		log.Info().
			Int("completed", completed).
			Dur("took", time.Since(start)).
			Msg("Milestone sweep paid referral bonuses")
		return
	}
	log.Debug().Dur("took", time.Since(start)).Msg("Milestone sweep found nothing to pay")
}
