package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"monbattle/internal/battle"
	"monbattle/internal/catalog"
	"monbattle/internal/config"
	"monbattle/internal/handlers"
	"monbattle/internal/hub"
	"monbattle/internal/logging"
	"monbattle/internal/notify"
	"monbattle/internal/ranking"
	"monbattle/internal/replay"
	"monbattle/internal/scheduler"
	"monbattle/internal/service"
	"monbattle/internal/storage"
)

func main() {
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()
	logging.Debug = *debug
	resolveBuildInfo()

	cfg, err := config.Load()
	if err != nil {
		logging.Setup("info", true)
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	logging.Setup(cfg.LogLevel, cfg.LogPretty)

	if err := run(cfg); err != nil {
		log.Fatal().Err(err).Msg("Server stopped")
	}
}

func run(cfg config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cat, err := loadCatalog(cfg.CatalogPath)
	if err != nil {
		return err
	}

	db, err := storage.New(cfg.DBDriver, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	store := storage.NewStore(db)
	defer func() {
		if sqlDB, err := store.DB().DB(); err == nil {
			_ = sqlDB.Close()
		}
	}()

	clock := clockwork.NewRealClock()
	rooms := hub.NewHub(clock)

	// With Redis every instance relays the shared channel into its own hub,
	// so watchers see turns committed anywhere.
	var notifier notify.Notifier = rooms
	if cfg.RedisURL != "" {
		rdb, err := notify.DialRedis(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer rdb.Close()
		pub := notify.NewRedis(rdb, "")
		notifier = pub
		ready := make(chan struct{})
		relayErr := make(chan error, 1)
		go func() {
			relayErr <- pub.Relay(ctx, rooms, ready)
		}()
		select {
		case <-ready:
		case err := <-relayErr:
			return err
		}
		go func() {
			if err := <-relayErr; err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("Redis relay stopped")
			}
		}()
		log.Info().Msg("Publishing battle updates through Redis")
	}

	ratings := ranking.NewService(store, cfg.RatingK)
	opts := []service.Option{
		service.WithNotifier(notifier),
		service.WithRater(ratings),
		service.WithClock(clock),
		service.WithTurnTimeout(cfg.TurnTimeout),
	}
	if cfg.Replay.Enabled() {
		client, err := replay.NewS3Client(ctx, replay.ClientConfig{
			Region:          cfg.Replay.Region,
			Endpoint:        cfg.Replay.Endpoint,
			AccessKeyID:     cfg.Replay.AccessKeyID,
			SecretAccessKey: cfg.Replay.SecretAccessKey,
		})
		if err != nil {
			return err
		}
		opts = append(opts, service.WithArchiver(replay.NewArchiver(client, cfg.Replay.Bucket, cfg.Replay.Prefix)))
		log.Info().Str("bucket", cfg.Replay.Bucket).Msg("Archiving replays")
	}
	orch := service.NewOrchestrator(store, rooms, battle.NewResolver(cat), opts...)
	sweeper := service.NewTimeoutResolver(store, orch, clock, cfg.SweepPageSize)
	reconciler := service.NewRatingReconciler(store, ratings, cfg.SweepPageSize)
	matchmaker := ranking.NewMatchmaker(store, store, clock)

	jobs, err := scheduler.New(clock, scheduler.Config{
		SweepInterval:     cfg.SweepInterval,
		ReconcileInterval: cfg.ReconcileInterval,
		MatchmakeInterval: cfg.MatchmakeInterval,
		PruneInterval:     cfg.HubPruneInterval,
		HubIdle:           cfg.HubIdle,
	}, scheduler.Tasks{
		Sweeper:    sweeper,
		Reconciler: reconciler,
		Matchmaker: matchmaker,
		Pruner:     rooms,
	})
	if err != nil {
		return err
	}
	jobs.Start()
	defer func() {
		if err := jobs.Shutdown(); err != nil {
			log.Warn().Err(err).Msg("Scheduler shutdown")
		}
	}()

	h := handlers.NewHandler(handlers.Deps{
		Battles:    orch,
		Hub:        rooms,
		Matchmaker: matchmaker,
		Ratings:    ratings,
		Catalog:    cat,
		Stats:      store,
		Commit:     commit,
	})
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           h.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Addr).Str("commit", commit).Str("built", buildDate).Msg("Battle server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	log.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func loadCatalog(path string) (*catalog.Catalog, error) {
	if path == "" {
		return catalog.Default()
	}
	return catalog.LoadFile(path)
}
