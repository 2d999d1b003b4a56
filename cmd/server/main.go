package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/pscheid92/taskboard/internal/adapter/httpserver"
	"github.com/pscheid92/taskboard/internal/adapter/memory"
	"github.com/pscheid92/taskboard/internal/adapter/metrics"
	"github.com/pscheid92/taskboard/internal/adapter/mongo"
	"github.com/pscheid92/taskboard/internal/adapter/postgres"
	"github.com/pscheid92/taskboard/internal/adapter/redis"
	"github.com/pscheid92/taskboard/internal/adapter/websocket"
	"github.com/pscheid92/taskboard/internal/app"
	"github.com/pscheid92/taskboard/internal/domain"
	"github.com/pscheid92/taskboard/internal/platform/config"
	"github.com/pscheid92/taskboard/internal/platform/logging"
	"github.com/pscheid92/taskboard/internal/platform/retry"
	"github.com/pscheid92/taskboard/internal/platform/token"
	"github.com/pscheid92/taskboard/internal/platform/version"
	goredis "github.com/redis/go-redis/v9"
)

const (
	connectTimeout  = 30 * time.Second
	shutdownTimeout = 10 * time.Second
	maxRelayClients = 10000
)

type store struct {
	users      domain.UserRepository
	containers domain.ContainerRepository
	ping       func(ctx context.Context) error
	close      func()
}

func startupPolicy(service string) retry.Policy {
	p := retry.StartupPolicy
	p.OnRetry = func(attempt int, err error, backoff time.Duration) {
		slog.Warn("Connection attempt failed, retrying", "service", service, "attempt", attempt, "backoff", backoff, "error", err)
	}
	return p
}

// exitOnStartupError logs err and exits. A failure the classifier marked as
// permanent is reported as such so operators do not wait on a restart loop.
func exitOnStartupError(msg string, err error) {
	var permErr *retry.PermanentError
	slog.Error(msg, "error", err, "permanent", errors.As(err, &permErr))
	os.Exit(1)
}

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func setupStore(cfg *config.Config, clock clockwork.Clock, reg prometheus.Registerer) store {
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	switch cfg.StoreBackend {
	case config.BackendPostgres:
		tracer := metrics.NewDBMetrics(reg)
		pool, err := retry.Do(ctx, startupPolicy("postgres"), postgres.ClassifyStartupError, func(ctx context.Context) (*pgxpool.Pool, error) {
			return postgres.Connect(ctx, cfg.DatabaseURL, tracer)
		})
		if err != nil {
			exitOnStartupError("Failed to connect to database", err)
		}
		err = retry.DoVoid(ctx, startupPolicy("postgres migrations"), postgres.ClassifyStartupError, func(ctx context.Context) error {
			return postgres.RunMigrationsWithLock(ctx, pool)
		})
		if err != nil {
			exitOnStartupError("Failed to run migrations", err)
		}
		return store{
			users:      postgres.NewUserRepo(pool),
			containers: postgres.NewContainerRepo(pool, clock),
			ping:       pool.Ping,
			close:      pool.Close,
		}

	case config.BackendMemory:
		slog.Warn("Using in-memory store, data is lost on restart")
		mem := memory.NewStore(clock)
		return store{
			users:      mem.Users(),
			containers: mem.Containers(),
			ping:       mem.Ping,
			close:      func() {},
		}

	default:
		db, err := retry.Do(ctx, startupPolicy("mongo"), retry.Always, func(ctx context.Context) (*mongo.Database, error) {
			return mongo.Connect(ctx, cfg.MongoURI, cfg.MongoDatabase)
		})
		if err != nil {
			exitOnStartupError("Failed to connect to MongoDB", err)
		}
		err = retry.DoVoid(ctx, startupPolicy("mongo indexes"), mongo.ClassifyIndexError, func(ctx context.Context) error {
			return mongo.EnsureIndexes(ctx, db)
		})
		if err != nil {
			exitOnStartupError("Failed to create indexes", err)
		}
		return store{
			users:      mongo.NewUserRepo(db),
			containers: mongo.NewContainerRepo(db, clock),
			ping:       func(ctx context.Context) error { return mongo.Ping(ctx, db) },
			close: func() {
				ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				_ = db.Client().Disconnect(ctx)
			},
		}
	}
}

func setupRedis(cfg *config.Config, reg prometheus.Registerer) *goredis.Client {
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	hook := redis.NewMetricsHook(metrics.NewRedisMetrics(reg))
	client, err := retry.Do(ctx, startupPolicy("redis"), retry.Always, func(ctx context.Context) (*goredis.Client, error) {
		return redis.Connect(ctx, cfg.RedisURL, hook)
	})
	if err != nil {
		exitOnStartupError("Failed to connect to Redis", err)
	}
	return client
}

func runGracefulShutdown(srv *httpserver.Server, hub *websocket.Hub, stopBridge context.CancelFunc) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		stopBridge()
		hub.Stop()

		close(done)
	}()

	return done
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Application starting", "env", cfg.AppEnv, "port", cfg.Port, "store", cfg.StoreBackend, "version", version.Get().String())

	reg := metrics.NewRegistry()

	st := setupStore(cfg, clock, reg)
	defer st.close()

	containers := metrics.InstrumentContainers(st.containers, metrics.NewStoreMetrics(reg))
	appSvc := app.NewService(st.users, containers, clock)

	issuer, err := token.NewIssuer(cfg.AccessTokenSecret, cfg.TokenTTL, clock)
	if err != nil {
		slog.Error("Failed to create token issuer", "error", err)
		os.Exit(1)
	}

	healthChecks := []httpserver.HealthCheck{{Name: "store", Check: st.ping}}

	wsMetrics := metrics.NewWebSocketMetrics(reg)
	hub := websocket.NewHub(maxRelayClients, wsMetrics, clock)

	bridgeCtx, stopBridge := context.WithCancel(context.Background())
	defer stopBridge()

	// Leave fanout as a nil interface when no bridge is configured.
	var fanout websocket.Fanout
	var bridge *redis.RelayBridge
	if cfg.RedisURL != "" {
		rdb := setupRedis(cfg, reg)
		defer func() { _ = rdb.Close() }()

		bridge = redis.NewRelayBridge(rdb)
		fanout = bridge
		healthChecks = append(healthChecks, httpserver.HealthCheck{Name: "relay_bridge", Check: bridge.Check})
	}

	relay := websocket.NewRelay(hub, fanout, wsMetrics)
	if bridge != nil {
		go bridge.Run(bridgeCtx, relay.Deliver)
	}

	checkOrigin := websocket.NewCheckOrigin(cfg.CORSAllowedOrigins, !cfg.IsProduction())
	relayHandler := websocket.NewHandler(hub, relay, checkOrigin)

	srv := httpserver.NewServer(cfg, appSvc, issuer, relayHandler, reg, healthChecks)

	done := runGracefulShutdown(srv, hub, stopBridge)

	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
}
