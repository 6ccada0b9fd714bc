package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Hassanturkie1994-hash/roast-live-app-fauwkm-ymbhwd-sub010/internal/app"
	"github.com/Hassanturkie1994-hash/roast-live-app-fauwkm-ymbhwd-sub010/internal/config"
	"github.com/Hassanturkie1994-hash/roast-live-app-fauwkm-ymbhwd-sub010/internal/coordination"
	"github.com/Hassanturkie1994-hash/roast-live-app-fauwkm-ymbhwd-sub010/internal/eventbus"
	"github.com/Hassanturkie1994-hash/roast-live-app-fauwkm-ymbhwd-sub010/internal/logging"
	"github.com/Hassanturkie1994-hash/roast-live-app-fauwkm-ymbhwd-sub010/internal/momentum"
	"github.com/Hassanturkie1994-hash/roast-live-app-fauwkm-ymbhwd-sub010/internal/postgres"
	"github.com/Hassanturkie1994-hash/roast-live-app-fauwkm-ymbhwd-sub010/internal/presence"
	"github.com/Hassanturkie1994-hash/roast-live-app-fauwkm-ymbhwd-sub010/internal/provider"
	"github.com/Hassanturkie1994-hash/roast-live-app-fauwkm-ymbhwd-sub010/internal/ranking"
	"github.com/Hassanturkie1994-hash/roast-live-app-fauwkm-ymbhwd-sub010/internal/redis"
	"github.com/Hassanturkie1994-hash/roast-live-app-fauwkm-ymbhwd-sub010/internal/resilience"
	"github.com/Hassanturkie1994-hash/roast-live-app-fauwkm-ymbhwd-sub010/internal/server"
	ws "github.com/Hassanturkie1994-hash/roast-live-app-fauwkm-ymbhwd-sub010/internal/websocket"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
)

const orphanSweepInterval = time.Minute

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// slog is not configured yet at this point.
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func setupDB(cfg *config.Config) *pgxpool.Pool {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := postgres.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	if err := postgres.RunMigrationsWithLock(ctx, pool); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}
	return pool
}

func setupRedis(ctx context.Context, cfg *config.Config) *redis.Client {
	client, err := redis.NewClient(ctx, cfg.RedisURL)
	if err != nil {
		slog.Error("Failed to connect to redis", "error", err)
		os.Exit(1)
	}
	return client
}

// providerProbe samples streaming-provider health for the resilience manager.
// A slow answer counts as reachable but degraded.
type providerProbe struct {
	client *provider.Client
}

func (p providerProbe) Sample(ctx context.Context) (resilience.Quality, error) {
	start := time.Now()
	if err := p.client.Ping(ctx); err != nil {
		return resilience.QualityPoor, err
	}
	if time.Since(start) > time.Second {
		return resilience.QualityPoor, nil
	}
	return resilience.QualityGood, nil
}

func instanceID() string {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = uuid.NewString()[:8]
	}
	return fmt.Sprintf("%s-%d", hostname, os.Getpid())
}

func main() {
	cfg := setupConfig()
	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)

	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	pool := setupDB(cfg)
	defer pool.Close()

	redisClient := setupRedis(rootCtx, cfg)
	defer func() { _ = redisClient.Close() }()

	clock := clockwork.NewRealClock()

	bus := eventbus.NewRedisBus(redisClient.Underlying())
	pub := eventbus.NewPublisher(bus, clock)

	sessionRepo := postgres.NewSessionRepo(pool)
	scoreRepo := postgres.NewScoreRepo(pool)
	presenceStore := redis.NewPresenceStore(redisClient)
	providerClient := provider.NewClient(cfg.ProviderBaseURL, cfg.ProviderAPIKey)

	aggregator := presence.NewAggregator(pub, clock)
	aggregator.Start()
	defer aggregator.Stop()

	momentumEngine := momentum.NewEngine(pub, clock, cfg.ComboWindow)
	defer momentumEngine.Stop()

	rankingEngine := ranking.NewEngine(scoreRepo, pub, clock)

	// The hub's viewer hooks need the service and the service needs the hub;
	// the closures break the cycle.
	var svc *app.Service
	hub := ws.NewHub(clock, cfg.MaxClientsPerSession,
		func(sessionID uuid.UUID, viewerID string) { svc.OnViewerJoin(sessionID, viewerID) },
		func(sessionID uuid.UUID, viewerID string) { svc.OnViewerLeave(sessionID, viewerID) },
	)
	defer hub.Stop()

	svc = app.NewService(
		app.Options{
			SeasonID:             cfg.SeasonID,
			SessionCreateTimeout: cfg.SessionCreateTimeout,
			OrphanSessionMaxAge:  cfg.OrphanSessionMaxAge,
		},
		providerClient, sessionRepo, bus, pub, aggregator, presenceStore,
		momentumEngine, rankingEngine, hub, clock,
	)
	defer svc.Stop()

	if err := svc.WatchSeason(rootCtx); err != nil {
		slog.Error("Failed to watch season channel", "error", err)
		os.Exit(1)
	}

	resilienceMgr := resilience.NewManager(providerProbe{client: providerClient}, clock, resilience.Config{
		SampleInterval: cfg.HealthSampleInterval,
		RetryInterval:  cfg.ReconnectInterval,
		MaxAttempts:    cfg.MaxReconnectAttempts,
		OnReconnectSuccess: func() {
			slog.Info("Streaming provider connection restored")
		},
		OnReconnectFailed: func() {
			slog.Error("Streaming provider unreachable, reconnect budget exhausted")
		},
	})
	go resilienceMgr.Run(rootCtx)

	// Presence syncs cover only sessions watched by this instance, so every
	// instance runs its own loop.
	go func() {
		ticker := clock.NewTicker(cfg.PresenceSyncInterval)
		defer ticker.Stop()
		for {
			select {
			case <-rootCtx.Done():
				return
			case <-ticker.Chan():
				svc.SyncPresence(rootCtx)
			}
		}
	}()

	id := instanceID()
	rankJob := coordination.NewLeaderJob("rank-refresh",
		coordination.NewElection(redisClient.Underlying(), id, "leader:rank_refresh", 3*cfg.RankRefreshInterval),
		cfg.RankRefreshInterval, clock, svc.RefreshRanks)
	go rankJob.Run(rootCtx)

	sweepJob := coordination.NewLeaderJob("orphan-sweep",
		coordination.NewElection(redisClient.Underlying(), id, "leader:orphan_sweep", 3*orphanSweepInterval),
		orphanSweepInterval, clock, svc.CleanupOrphanSessions)
	go sweepJob.Run(rootCtx)

	srv := server.NewServer(cfg, svc, hub, redisClient, pool)

	done := make(chan struct{})
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		rankJob.Stop()
		sweepJob.Stop()
		svc.Stop()
		hub.Stop()
		rootCancel()
		close(done)
	}()

	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}
	<-done
	slog.Info("Shutdown complete")
}
