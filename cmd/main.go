// cmd/main.go is the application entry point.
// It wires together all layers and starts the HTTP server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/Shivanand-hulikatti/slot-booking/internal/auth"
	"github.com/Shivanand-hulikatti/slot-booking/internal/config"
	"github.com/Shivanand-hulikatti/slot-booking/internal/database"
	"github.com/Shivanand-hulikatti/slot-booking/internal/handler"
	"github.com/Shivanand-hulikatti/slot-booking/internal/logger"
	"github.com/Shivanand-hulikatti/slot-booking/internal/notify"
	"github.com/Shivanand-hulikatti/slot-booking/internal/repository"
	"github.com/Shivanand-hulikatti/slot-booking/internal/service"
	"github.com/Shivanand-hulikatti/slot-booking/internal/store"
)

func main() {
	cfg := config.Load()
	logger.Setup(cfg.LogLevel, cfg.Env)
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx := context.Background()

	// ── 1. Connect to the booking store ──────────────────────────────────
	var (
		bookings    repository.BookingRepository
		health      handler.Pinger
		redisClient *redis.Client
	)
	switch cfg.StoreBackend {
	case config.BackendPostgres:
		pool, err := database.NewPool(ctx, cfg.DB)
		if err != nil {
			log.Fatal().Err(err).Msg("database")
		}
		defer pool.Close()
		if err := database.Migrate(cfg.DB); err != nil {
			log.Fatal().Err(err).Msg("database migrations")
		}
		log.Info().Str("host", cfg.DB.Host).Msg("connected to PostgreSQL")

		bookings = repository.NewPostgresBookingRepository(pool)
		health = pool
	default:
		client, err := store.Dial(ctx, cfg.Redis)
		if err != nil {
			log.Fatal().Err(err).Msg("redis")
		}
		kv := store.NewRedisStore(client, cfg.MaxTxRetries)
		defer kv.Close()
		log.Info().Str("addr", cfg.Redis.Addr).Msg("connected to Redis")

		bookings = repository.NewRedisBookingRepository(kv)
		health = kv
		redisClient = client
	}

	// ── 2. Notifications ─────────────────────────────────────────────────
	sender, closeSender, err := newSender(cfg.Notify, redisClient)
	if err != nil {
		log.Fatal().Err(err).Msg("notifications")
	}
	defer closeSender()
	trigger := notify.NewTrigger(sender, cfg.Notify.Timeout)

	// ── 3. Wire up layers ────────────────────────────────────────────────
	svc := service.NewBookingService(bookings, trigger, cfg.PublicBaseURL)
	router := handler.NewRouter(handler.RouterConfig{
		Bookings:         svc,
		Auth:             auth.NewAuthenticator(cfg.Auth),
		Health:           health,
		CreateRatePerMin: cfg.CreateRatePerMin,
		CORSOrigins:      cfg.CORSOrigins,
	})

	// ── 4. Start server with graceful shutdown ────────────────────────────
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Str("store", cfg.StoreBackend).Str("notify", cfg.Notify.Backend).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}

	// Let in-flight confirmations finish before their transport closes.
	trigger.Wait()
	log.Info().Msg("server stopped")
}

func newSender(cfg config.NotifyConfig, client *redis.Client) (notify.Sender, func(), error) {
	switch cfg.Backend {
	case config.NotifyRedis:
		return notify.NewRedisSender(client, cfg.RedisChannel), func() {}, nil
	case config.NotifyKafka:
		producer, err := notify.NewKafkaProducer(cfg.KafkaBrokers)
		if err != nil {
			return nil, nil, err
		}
		sender := notify.NewKafkaSender(producer, cfg.KafkaTopic)
		return sender, func() {
			if err := sender.Close(); err != nil {
				log.Error().Err(err).Msg("closing kafka producer")
			}
		}, nil
	default:
		return notify.LogSender{}, func() {}, nil
	}
}
