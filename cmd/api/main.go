package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"condotel/internal/adapters/backend"
	"condotel/internal/adapters/events"
	server "condotel/internal/adapters/http_server"
	"condotel/internal/adapters/observability"
	redisad "condotel/internal/adapters/redis"
	"condotel/internal/adapters/session"
	"condotel/internal/app"
	"condotel/internal/domain"
	"condotel/internal/shared"
	mysqlrepo "condotel/internal/storage/mysql"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := shared.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}

	// set global logger (console in dev, JSON otherwise)
	log.Logger = observability.NewLogger(cfg.AppEnv, "api", cfg.LogLevel)
	zerolog.DefaultContextLogger = &log.Logger

	reg := observability.InitRegistry()
	observability.Serve(cfg.MetricsAddr, reg)

	// db
	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("sql.Open failed")
	}
	defer db.Close()
	db.SetMaxOpenConns(20)
	db.SetConnMaxLifetime(5 * time.Minute)
	if err := db.PingContext(ctx); err != nil {
		log.Fatal().Err(err).Msg("db.Ping failed")
	}
	log.Info().Msg("database connection ok")

	// deps
	repo := mysqlrepo.New(db)
	cache := redisad.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
	defer cache.Close()
	if err := cache.Ping(ctx); err != nil {
		log.Warn().Err(err).Msg("redis unreachable; reads will fall through to mysql")
	}

	client, err := backend.New(cfg.BackendBase, cfg.BackendKey, cfg.BackendRPS)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize backend client")
	}

	var publisher domain.EventPublisher = events.NopPublisher{}
	if len(cfg.KafkaBrokers) > 0 {
		kp, err := events.NewKafkaPublisher(cfg.KafkaBrokers, map[string]string{
			events.RefundResubmitted: cfg.KafkaTopicRefunds,
			events.ListingSynced:     cfg.KafkaTopicListings,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize kafka publisher")
		}
		defer kp.Close()
		publisher = kp
	}

	var verifier server.SessionVerifier
	if cfg.JWTSecret != "" {
		v, err := session.NewVerifier(cfg.JWTSecret, cfg.JWTIssuer)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize session verifier")
		}
		verifier = v
	}

	policy := domain.ResubmissionPolicy{MaxResubmissions: cfg.MaxResubmissions}
	q := app.NewQueryService(repo, repo, cache, cfg.CacheTTL, policy).WithBackend(client, cfg.Currency)
	refunds := app.NewRefundService(client, repo, cache, publisher, policy, cfg.Currency)
	syncer := app.NewSyncService(client, repo, repo, cache, publisher, cfg.Currency)

	// http
	srv := server.New(log.Logger, verifier)
	srv.Mount("/metrics", observability.MetricsHandler(reg))
	srv.MountHandlers(&server.Handlers{Q: q, R: refunds, S: syncer})

	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           srv.Mux(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("API listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}
