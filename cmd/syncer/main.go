package main

import (
	"context"
	"database/sql"
	"flag"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"

	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"condotel/internal/adapters/backend"
	"condotel/internal/adapters/events"
	"condotel/internal/adapters/observability"
	redisad "condotel/internal/adapters/redis"
	"condotel/internal/app"
	"condotel/internal/domain"
	"condotel/internal/shared"
	mysqlrepo "condotel/internal/storage/mysql"
)

func main() {
	var (
		listingIDs = flag.String("ids", "", "comma-separated listing ids to sync (default: page through every listing)")
		refundsFor = flag.String("refunds-for", "", "comma-separated user ids whose refund requests to sync")
		skipList   = flag.Bool("skip-listings", false, "do not sync listings")
	)
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := shared.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}

	// 1) initialize global logger (console in dev, JSON otherwise)
	log.Logger = observability.NewLogger(cfg.AppEnv, "syncer", cfg.LogLevel)
	zerolog.DefaultContextLogger = &log.Logger

	log.Info().
		Str("base", cfg.BackendBase).
		Int("workers", cfg.SyncWorkers).
		Int("page_size", cfg.SyncPageSize).
		Msg("syncer starting")

	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("sql.Open failed")
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		log.Fatal().Err(err).Msg("db.Ping failed")
	}
	log.Info().Msg("db ping ok")

	repo := mysqlrepo.New(db)

	client, err := backend.New(cfg.BackendBase, cfg.BackendKey, cfg.BackendRPS)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize backend client")
	}
	cache := redisad.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
	defer cache.Close()

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

	svc := app.NewSyncService(client, repo, repo, cache, publisher, cfg.Currency)

	if !*skipList {
		syncListings(ctx, svc, client, parseIDs(*listingIDs), cfg.SyncWorkers, cfg.SyncPageSize)
	}
	if users := splitCSV(*refundsFor); len(users) > 0 {
		syncRefunds(ctx, svc, users, cfg.SyncWorkers)
	}
	log.Info().Msg("sync completed")
}

// syncListings fans listing ids out to at most workers goroutines. With no
// explicit ids it pages through the backend until an empty page comes back.
func syncListings(ctx context.Context, svc *app.SyncService, client domain.BackendClient, ids []int64, workers, pageSize int) {
	sem := semaphore.NewWeighted(int64(workers))
	var wg sync.WaitGroup
	var ok, failed atomic.Int64

	dispatch := func(id int64) bool {
		// acquire before launching the goroutine; release inside it
		if err := sem.Acquire(ctx, 1); err != nil {
			log.Warn().Err(err).Msg("semaphore acquire aborted")
			return false
		}
		wg.Add(1)
		go func(listingID int64) {
			defer wg.Done()
			defer sem.Release(1)

			if err := svc.SyncListing(ctx, listingID); err != nil {
				failed.Add(1)
				log.Warn().Int64("id", listingID).Err(err).Msg("listing sync failed")
				return
			}
			ok.Add(1)
			log.Debug().Int64("id", listingID).Msg("listing sync ok")
		}(id)
		return true
	}

	if len(ids) > 0 {
		for _, id := range ids {
			if !dispatch(id) {
				break
			}
		}
	} else {
	pages:
		for page := 1; ; page++ {
			batch, err := client.ListListingIDs(ctx, page, pageSize)
			if err != nil {
				log.Error().Err(err).Int("page", page).Msg("listing page fetch failed")
				break
			}
			if len(batch) == 0 {
				break
			}
			for _, id := range batch {
				if !dispatch(id) {
					break pages
				}
			}
			if len(batch) < pageSize {
				break
			}
		}
	}

	wg.Wait()
	log.Info().Int64("ok", ok.Load()).Int64("failed", failed.Load()).Msg("listings synced")
}

func syncRefunds(ctx context.Context, svc *app.SyncService, users []string, workers int) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	var total atomic.Int64
	for _, userID := range users {
		userID := userID
		g.Go(func() error {
			n, err := svc.SyncRefunds(gctx, userID)
			if err != nil {
				log.Warn().Str("user_id", userID).Err(err).Msg("refund sync failed")
				return nil
			}
			total.Add(int64(n))
			return nil
		})
	}
	_ = g.Wait()
	log.Info().Int("users", len(users)).Int64("refunds", total.Load()).Msg("refunds synced")
}

func splitCSV(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func parseIDs(v string) []int64 {
	var out []int64
	for _, s := range splitCSV(v) {
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			log.Warn().Str("id", s).Msg("skipping non-numeric listing id")
			continue
		}
		out = append(out, id)
	}
	return out
}
