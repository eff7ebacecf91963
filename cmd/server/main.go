package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"

	"github.com/pscheid92/electionwatch/internal/adapter/delivery"
	"github.com/pscheid92/electionwatch/internal/adapter/httpserver"
	"github.com/pscheid92/electionwatch/internal/adapter/kafka"
	"github.com/pscheid92/electionwatch/internal/adapter/livefeed"
	"github.com/pscheid92/electionwatch/internal/adapter/metrics"
	"github.com/pscheid92/electionwatch/internal/adapter/postgres"
	"github.com/pscheid92/electionwatch/internal/adapter/redis"
	"github.com/pscheid92/electionwatch/internal/adapter/telegram"
	"github.com/pscheid92/electionwatch/internal/adapter/upstream"
	"github.com/pscheid92/electionwatch/internal/app"
	"github.com/pscheid92/electionwatch/internal/domain"
	"github.com/pscheid92/electionwatch/internal/election"
	"github.com/pscheid92/electionwatch/internal/platform/config"
	"github.com/pscheid92/electionwatch/internal/platform/logging"
	"github.com/pscheid92/electionwatch/internal/platform/version"
	"github.com/pscheid92/electionwatch/internal/report"
)

const (
	connectTimeout  = 10 * time.Second
	shutdownTimeout = 10 * time.Second
)

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func setupDB(cfg *config.Config, m *metrics.DBMetrics) *pgxpool.Pool {
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	pool, err := postgres.Connect(ctx, cfg.DatabaseURL, m)
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

func setupRedis(cfg *config.Config, m *metrics.RedisMetrics) *goredis.Client {
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	client, err := redis.NewClient(ctx, cfg.RedisURL, m)
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	return client
}

// infra holds the optional connections and the health checks they bring.
type infra struct {
	pool         *pgxpool.Pool
	redis        *goredis.Client
	healthChecks []httpserver.HealthCheck
}

func (i *infra) close() {
	if i.pool != nil {
		i.pool.Close()
	}
	if i.redis != nil {
		_ = i.redis.Close()
	}
}

func setupInfra(cfg *config.Config, reg prometheus.Registerer) *infra {
	i := &infra{}

	if cfg.RedisURL != "" {
		i.redis = setupRedis(cfg, metrics.NewRedisMetrics(reg))
		i.healthChecks = append(i.healthChecks, httpserver.HealthCheck{
			Name:  "redis",
			Check: func(ctx context.Context) error { return i.redis.Ping(ctx).Err() },
		})
	}

	if cfg.StorageBackend == config.StoragePostgres {
		i.pool = setupDB(cfg, metrics.NewDBMetrics(reg))
		i.healthChecks = append(i.healthChecks, httpserver.HealthCheck{
			Name:  "postgres",
			Check: i.pool.Ping,
		})
	}

	return i
}

func subscriberRepository(cfg *config.Config, i *infra) domain.SubscriberRepository {
	switch cfg.StorageBackend {
	case config.StoragePostgres:
		return postgres.NewSubscriberRepo(i.pool)
	case config.StorageRedis:
		return redis.NewSubscriberStore(i.redis)
	default:
		slog.Warn("Using in-memory subscriber storage, state is lost on restart")
		return app.NewMemoryRepository()
	}
}

// setupDelivery builds the fan-out of configured sinks. The live feed is
// always a sink; the returned bot is nil when no chat token is configured.
func setupDelivery(cfg *config.Config, commands *telegram.Commands, hub *livefeed.Hub, clock clockwork.Clock, reg prometheus.Registerer) (*delivery.Fanout, *telegram.Bot, *kafka.ReportPublisher) {
	var (
		sinks     []delivery.Sink
		bot       *telegram.Bot
		publisher *kafka.ReportPublisher
	)

	if cfg.TelegramBotToken != "" {
		api, err := telegram.Connect(cfg.TelegramBotToken)
		if err != nil {
			slog.Error("Failed to connect to Telegram", "error", err)
			os.Exit(1)
		}
		bot = telegram.NewBot(api, commands, cfg.TelegramSendRate, clock, metrics.NewChatMetrics(reg))
		sinks = append(sinks, delivery.Sink{Name: "telegram", Deliverer: bot})
	}

	if brokers := cfg.Brokers(); len(brokers) > 0 {
		publisher = kafka.NewReportPublisher(brokers, cfg.KafkaTopic, clock)
		sinks = append(sinks, delivery.Sink{Name: "kafka", Deliverer: publisher})
		slog.Info("Publishing reports to Kafka", "topic", cfg.KafkaTopic, "brokers", brokers)
	}

	if len(sinks) == 0 {
		sinks = append(sinks, delivery.Sink{Name: "log", Deliverer: delivery.LogSink{}})
	}
	sinks = append(sinks, delivery.Sink{Name: "livefeed", Deliverer: hub})

	return delivery.NewFanout(metrics.NewDeliveryMetrics(reg), sinks...), bot, publisher
}

// lateDeliverer lets the chat commands and the service reference each other:
// the service needs the fan-out, the fan-out needs the bot, and the bot's
// commands need the service.
type lateDeliverer struct {
	target domain.Deliverer
}

func (d *lateDeliverer) Deliver(ctx context.Context, r domain.Report) error {
	return d.target.Deliver(ctx, r)
}

func runGracefulShutdown(cancel context.CancelFunc, srv *httpserver.Server, hub *livefeed.Hub) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")
		cancel()

		// Hijacked connections are not tracked by the HTTP server.
		hub.Close()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		close(done)
	}()

	return done
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Application starting", "env", cfg.AppEnv, "port", cfg.Port, "storage", cfg.StorageBackend, "build", version.Get())

	reg := metrics.NewRegistry()
	pollMetrics := metrics.NewPollMetrics(reg)
	schedulerMetrics := metrics.NewSchedulerMetrics(reg)

	i := setupInfra(cfg, reg)
	defer i.close()

	formatter, err := report.NewFormatter(cfg.Candidates())
	if err != nil {
		slog.Error("Invalid candidate list", "error", err)
		os.Exit(1)
	}
	regions := election.USRegions()

	var cache domain.SnapshotCache
	if i.redis != nil {
		cache = redis.NewSnapshotCache(i.redis)
	}

	fetcher := upstream.NewClient(cfg.UpstreamURL, cfg.FetchTimeout, pollMetrics)
	source := app.NewSnapshotSource(fetcher, cache, clock, cfg.FetchInterval, pollMetrics, metrics.NewCacheMetrics(reg))
	registry, err := app.NewRegistry(
		subscriberRepository(cfg, i),
		source,
		election.NewDetector(cfg.NoiseThreshold),
		formatter,
		regions,
		clock,
		app.SubscriberDefaults{Watchlist: cfg.Watchlist(), PollInterval: cfg.DefaultPollInterval},
		pollMetrics,
	)
	if err != nil {
		slog.Error("Invalid default watchlist", "error", err)
		os.Exit(1)
	}

	deliverer := &lateDeliverer{}
	svc := app.NewService(registry, source, deliverer, regions.Names(), clock, schedulerMetrics)

	hub := livefeed.NewHub(livefeed.NewCheckOrigin(cfg.PublicURL, cfg.AppEnv != "production"), clock, metrics.NewLiveFeedMetrics(reg))

	fanout, bot, publisher := setupDelivery(cfg, telegram.NewCommands(svc), hub, clock, reg)
	deliverer.target = fanout
	if publisher != nil {
		defer func() { _ = publisher.Close() }()
	}

	srv := httpserver.NewServer(cfg.Port, svc, hub, metrics.NewHTTPMetrics(reg), metrics.Handler(reg), i.healthChecks)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := runGracefulShutdown(cancel, srv, hub)

	work := func(ctx context.Context) error {
		var wg sync.WaitGroup
		if bot != nil {
			wg.Go(func() { bot.Run(ctx) })
		}
		err := svc.Run(ctx)
		wg.Wait()
		return err
	}

	runErr := make(chan error, 1)
	go func() {
		if i.redis == nil {
			runErr <- work(ctx)
			return
		}
		elector := app.NewLeaderElector(i.redis, clock, uuid.NewString())
		runErr <- elector.Run(ctx, work)
	}()

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	select {
	case err := <-runErr:
		if errors.Is(err, app.ErrLeadershipLost) {
			// Exit so the orchestrator restarts us as a fresh standby.
			slog.Error("Lost leadership, exiting", "error", err)
			os.Exit(1)
		}
		if err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("Service error", "error", err)
			os.Exit(1)
		}
		<-done
	case <-done:
		<-runErr
	}

	slog.Info("Shutdown complete")
}
