package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/medibridge/medibridge-api/internal/config"
	"github.com/medibridge/medibridge-api/internal/domain/booking"
	"github.com/medibridge/medibridge-api/internal/domain/ledger"
	"github.com/medibridge/medibridge-api/internal/domain/notification"
	"github.com/medibridge/medibridge-api/internal/domain/redemption"
	"github.com/medibridge/medibridge-api/internal/domain/referral"
	"github.com/medibridge/medibridge-api/internal/domain/statement"
	"github.com/medibridge/medibridge-api/internal/domain/wallet"
	"github.com/medibridge/medibridge-api/internal/domain/withdrawal"
	"github.com/medibridge/medibridge-api/internal/middleware"
	"github.com/medibridge/medibridge-api/internal/pkg/database"
	"github.com/medibridge/medibridge-api/internal/pkg/jwt"
	"github.com/medibridge/medibridge-api/internal/pkg/logger"
	"github.com/medibridge/medibridge-api/internal/pkg/otp"
	pkgresponse "github.com/medibridge/medibridge-api/internal/pkg/response"
	"github.com/medibridge/medibridge-api/internal/pkg/storage"
)

const notificationRetentionDays = 90

func main() {
	cfg := config.Load()
	logger.Init(logger.Config{Level: cfg.LogLevel, Environment: cfg.Env, LogFile: cfg.LogFile})

	log.Info().
		Str("env", cfg.Env).
		Str("port", cfg.Port).
		Msg("Starting MediBridge API")

	db, err := database.NewPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer database.ClosePostgres(db)

	migrateCtx, cancelMigrate := context.WithTimeout(context.Background(), 30*time.Second)
	if err := database.Migrate(migrateCtx, db); err != nil {
		log.Fatal().Err(err).Msg("Failed to apply schema")
	}
	cancelMigrate()

	redisClient, err := database.NewRedis(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer database.CloseRedis(redisClient)

	files, err := newStatementStorage(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to set up statement storage")
	}

	s := postgresStack(db, redisClient, files)
	h := newHandlers(s, cfg.OTPTTL)
	jwtService := jwt.NewService(cfg.JWTSecret, cfg.JWTAccessTTL)

	jobCtx, stopJobs := context.WithCancel(context.Background())
	defer stopJobs()
	go notification.NewCleanupJob(s.notifications, notificationRetentionDays).Start(jobCtx, 24*time.Hour)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      newRouter(cfg, h, jwtService),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")
	stopJobs()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited properly")
}

// newStatementStorage picks S3 when a bucket is configured and the local
// disk otherwise.
func newStatementStorage(cfg *config.Config) (storage.Storage, error) {
	if cfg.StorageEnabled() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return storage.NewS3Storage(ctx, storage.Config{
			S3Endpoint:  cfg.S3Endpoint,
			S3Region:    cfg.S3Region,
			S3Bucket:    cfg.S3Bucket,
			S3AccessKey: cfg.S3AccessKey,
			S3SecretKey: cfg.S3SecretKey,
		})
	}
	log.Warn().Str("dir", cfg.StatementsDir).Msg("S3 not configured, writing statements to local disk")
	return storage.NewLocalStorage(cfg.StatementsDir, cfg.StatementsBaseURL)
}

// stack holds the persistence each service is built on.
type stack struct {
	tx            database.Transactor
	ledger        ledger.Store
	appointments  booking.Repository
	referrals     referral.Repository
	offers        redemption.OfferRepository
	withdrawals   withdrawal.Repository
	notifications notification.Repository
	otp           otp.Store
	files         storage.Storage
}

func postgresStack(db *sqlx.DB, redisClient *redis.Client, files storage.Storage) stack {
	var codes otp.Store = otp.NewMemoryStore()
	if redisClient != nil {
		codes = otp.NewRedisStore(redisClient)
	} else {
		log.Warn().Msg("Redis not configured, OTP codes are kept in process memory")
	}

	return stack{
		tx:            database.NewSQLTransactor(db),
		ledger:        ledger.NewPostgresStore(db),
		appointments:  booking.NewRepository(db),
		referrals:     referral.NewRepository(db),
		offers:        redemption.NewOfferRepository(db),
		withdrawals:   withdrawal.NewRepository(db),
		notifications: notification.NewRepository(db),
		otp:           codes,
		files:         files,
	}
}

func memoryStack(files storage.Storage) stack {
	return stack{
		tx:            database.NewMemoryTransactor(),
		ledger:        ledger.NewMemoryStore(),
		appointments:  booking.NewMemoryRepository(),
		referrals:     referral.NewMemoryRepository(),
		offers:        redemption.NewMemoryOfferRepository(),
		withdrawals:   withdrawal.NewMemoryRepository(),
		notifications: notification.NewMemoryRepository(),
		otp:           otp.NewMemoryStore(),
		files:         files,
	}
}

type handlers struct {
	wallet       *wallet.Handler
	booking      *booking.Handler
	redemption   *redemption.Handler
	referral     *referral.Handler
	withdrawal   *withdrawal.Handler
	notification *notification.Handler
}

func newHandlers(s stack, otpTTL time.Duration) *handlers {
	notifications := notification.NewService(s.notifications)
	wallets := wallet.NewService(ledger.New(s.ledger), s.tx)
	tracker := referral.NewTracker(s.tx, s.referrals, wallets, notifications)
	offers := redemption.NewOfferService(s.offers)
	settler := redemption.NewService(s.tx, wallets, s.offers, tracker, notifications)
	appointments := booking.NewService(s.tx, s.appointments, wallets, tracker, notifications)
	withdrawals := withdrawal.NewService(s.tx, s.withdrawals, wallets, notifications)

	var exporter wallet.StatementExporter
	if s.files != nil {
		exporter = statement.NewService(wallets, s.files)
	}

	return &handlers{
		wallet:       wallet.NewHandler(wallets, exporter),
		booking:      booking.NewHandler(appointments),
		redemption:   redemption.NewHandler(offers, settler, otp.NewService(s.otp, otpTTL), notifications),
		referral:     referral.NewHandler(tracker),
		withdrawal:   withdrawal.NewHandler(withdrawals),
		notification: notification.NewHandler(notifications),
	}
}

func newRouter(cfg *config.Config, h *handlers, tokens middleware.TokenValidator) http.Handler {
	authMiddleware := middleware.Auth(tokens)

	r := chi.NewRouter()

	r.Use(chimw.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recover)
	r.Use(middleware.CORSHandler(cfg.AllowedOrigins))
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		pkgresponse.OK(w, map[string]string{
			"status":  "ok",
			"version": "1.0.0",
		})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
			pkgresponse.OK(w, map[string]string{"message": "pong"})
		})

		r.Mount("/wallet", h.wallet.Routes(authMiddleware))
		r.Mount("/booking", h.booking.QuoteRoutes(authMiddleware))
		r.Mount("/appointments", h.booking.Routes(authMiddleware))
		r.Mount("/redemption/offer", h.redemption.OfferRoutes(authMiddleware))
		r.Mount("/redemptions", h.redemption.Routes(authMiddleware))
		r.Mount("/referrals", h.referral.Routes(authMiddleware))
		r.Mount("/withdrawals", h.withdrawal.Routes(authMiddleware))
		r.Mount("/notifications", h.notification.Routes(authMiddleware))
	})

	r.Route("/api/admin", func(r chi.Router) {
		r.Use(authMiddleware)
		r.Use(middleware.RequireAdmin())

		r.Mount("/withdrawals", h.withdrawal.AdminRoutes())
		r.Mount("/wallets", h.wallet.AdminRoutes())
	})

	return r
}
