package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	_ "github.com/lib/pq"

	"github.com/example/ride-hail/internal/config"
	"github.com/example/ride-hail/internal/directions"
	"github.com/example/ride-hail/internal/expiry"
	"github.com/example/ride-hail/internal/fare"
	"github.com/example/ride-hail/internal/feed"
	httpapi "github.com/example/ride-hail/internal/http"
	"github.com/example/ride-hail/internal/ingest"
	"github.com/example/ride-hail/internal/lifecycle"
	"github.com/example/ride-hail/internal/logging"
	"github.com/example/ride-hail/internal/match"
	"github.com/example/ride-hail/internal/models"
	"github.com/example/ride-hail/internal/presence"
	"github.com/example/ride-hail/internal/store"
)

func main() {
	cfg, err := config.LoadServerConfig()
	if err != nil {
		slog.Error("bad configuration", "error", err)
		os.Exit(1)
	}
	logger := logging.NewLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	broker := feed.NewBroker()

	var rideStore store.RideStore
	if cfg.PGDSN != "" {
		if cfg.RunMigrations {
			if err := runMigrations(cfg.PGDSN, logger); err != nil {
				logger.Error("migration failed", "error", err)
				os.Exit(1)
			}
		}
		ps, err := store.NewPostgresStore(cfg.PGDSN, broker)
		if err != nil {
			logger.Error("postgres unavailable", "error", err)
			os.Exit(1)
		}
		rideStore = ps
		logger.Info("using postgres ride store")
	} else {
		rideStore = store.NewMemoryStore(broker)
		logger.Info("using in-memory ride store")
	}

	var tracker presence.Tracker
	var approvals presence.Approvals
	if cfg.RedisAddr != "" {
		rt := presence.NewRedisTracker(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisGeoKey)
		if err := rt.Ping(ctx); err != nil {
			logger.Error("redis unavailable", "addr", cfg.RedisAddr, "error", err)
			os.Exit(1)
		}
		tracker, approvals = rt, rt
		logger.Info("using redis presence tracker", "addr", cfg.RedisAddr)
	} else {
		tracker = presence.NewIndex()
		approvals = presence.NewApprovalIndex()
		logger.Info("using in-memory presence tracker")
	}

	var producer *ingest.KafkaProducer
	if len(cfg.KafkaBrokers) > 0 {
		producer = ingest.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer producer.Close()
		logger.Info("publishing presence to kafka", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	}

	var dir *directions.Client
	if cfg.DirectionsEndpoint != "" {
		dir = directions.NewClient(cfg.DirectionsEndpoint, cfg.DirectionsKey)
	}

	estimator := fare.NewEstimator(cfg.FarePerKm)
	rides := lifecycle.NewService(rideStore, estimator)
	matcher := match.NewMatcher(rideStore, tracker, approvals, cfg.MatchRadiusKm)

	scheduler := expiry.NewScheduler(rideStore, cfg.ExpiryTTL, logger)
	// rides already pending from a previous run get a fresh timer
	if pending, err := rideStore.Query(ctx, store.Filter{Status: models.StatusPending}); err == nil {
		for _, r := range pending {
			scheduler.Arm(r.ID)
		}
	}
	expirySub := broker.Subscribe(feed.All())
	go scheduler.Run(ctx, expirySub.C)

	srv := httpapi.NewServer(httpapi.Deps{
		Rides:      rides,
		Matcher:    matcher,
		Store:      rideStore,
		Feed:       broker,
		Presence:   tracker,
		Approvals:  approvals,
		Kafka:      producer,
		Directions: dir,
		Logger:     logger,
	})

	httpServer := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      srv,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.HTTPAddr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
	expirySub.Close()
}

func runMigrations(dsn string, logger *slog.Logger) error {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return err
	}
	defer db.Close()

	b, err := os.ReadFile(filepath.Join("migrations", "001_create_rides.sql"))
	if err != nil {
		return err
	}
	if _, err := db.Exec(string(b)); err != nil {
		return err
	}
	logger.Info("migration applied", "file", "001_create_rides.sql")
	return nil
}
