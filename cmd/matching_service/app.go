package matchingservice

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"logistics/internal/cli"
	"logistics/internal/general/config"
	"logistics/internal/general/contracts"
	"logistics/internal/general/dedup"
	"logistics/internal/general/dispatch"
	"logistics/internal/general/httpx"
	"logistics/internal/general/logger"
	"logistics/internal/general/metrics"
	"logistics/internal/general/postgres"
	"logistics/internal/general/rabbitmq"
	"logistics/internal/general/validation"
	"logistics/internal/software/matching/handler"
	"logistics/internal/software/matching/service"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const (
	relayInterval = 5 * time.Second
	userCacheSize = 10_000
)

func Run(ctx context.Context, opts cli.ServiceOptions) error {
	// set up a new logger for the matching service with a static request ID for startup logs
	logger := logger.New(cli.ModeMatching)
	ctx = logger.WithRequestID(ctx, "startup-001")

	// load configuration
	cfg, err := config.LoadFromFile(opts.ConfigPath)
	if err != nil {
		logger.Error(ctx, "config_load_failed", "Failed to load config", err, map[string]any{"path": opts.ConfigPath})
		return err
	}
	if err := logger.SetLevel(cfg.Log.Level); err != nil {
		logger.Warn(ctx, "log_level_invalid", "Unknown log level; keeping default", map[string]any{"level": cfg.Log.Level})
	}

	prefetch := cfg.RabbitMQ.Prefetch
	if opts.Prefetch > 0 {
		prefetch = opts.Prefetch
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m, err := metrics.New(reg)
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	// set up a Postgres connection pool
	pool, err := postgres.NewPool(ctx, cfg.Database, logger)
	if err != nil {
		logger.Error(ctx, "db_connection_failed", "Failed to initialize Postgres pool", err, nil)
		return err
	}
	defer pool.Close()

	// the outbox keeps orders flowing while the broker is down, so a failed
	// first dial is retried in the background instead of aborting startup
	rmq, err := rabbitmq.ConnectRabbitMQ(ctx, cfg.RabbitMQ, logger, rabbitmq.WithMetrics(m), rabbitmq.WithRetryInitial())
	if err != nil {
		logger.Error(ctx, "rabbitmq_connection_failed", "Failed to connect to RabbitMQ", err, nil)
		return err
	}
	defer rmq.Close()

	store, closeStore, err := dedup.FromConfig(ctx, cfg.Redis, logger)
	if err != nil {
		logger.Error(ctx, "dedup_store_failed", "Failed to open dedup store", err, nil)
		return err
	}
	defer closeStore()

	pub := rabbitmq.NewPublisher(rmq, logger, contracts.ExchangeLogisticsTopic)

	users := validation.NewMemoryUserCache(userCacheSize)
	proxy := validation.NewProxy(cfg.Peer.UserDriverURL,
		validation.WithTimeout(cfg.Peer.Timeout),
		validation.WithLogger(logger),
		validation.WithMetrics(m),
		validation.WithUserCache(users),
	)

	uow := postgres.NewUnitOfWork(pool)
	svc := service.NewMatchingService(logger, uow, postgres.NewOrderRepo(), postgres.NewOutboxRepo(), pub, proxy, users)

	userEvents := dispatch.New(logger, store, m)
	userEvents.Handle(contracts.KindUserRegistered, svc.OnUserRegistered)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		queue := contracts.QueueMatchingUserEvents
		if err := userEvents.Run(runCtx, rmq, queue, cli.ModeMatching+"."+queue, prefetch); err != nil {
			logger.Error(runCtx, "consumer_failed", "Event consumer stopped with error", err, map[string]any{"queue": queue})
		}
	}()
	go func() {
		defer wg.Done()
		service.NewOutboxRelay(svc, logger).Run(runCtx, relayInterval)
	}()

	// set up the HTTP handler and its routes
	mux := http.NewServeMux()
	handler.NewMatchingHTTPHandler(svc, logger).RegisterRoutes(mux)
	mux.Handle("GET /metrics", metrics.Handler(reg))

	srv := httpx.NewServer(ctx, cfg.Services.MatchingPort, httpx.WithConcurrencyLimit(opts.MaxConcurrent, mux))

	logger.Info(ctx, "service_started",
		fmt.Sprintf("Matching Service started on port %d", cfg.Services.MatchingPort),
		map[string]any{"port": cfg.Services.MatchingPort, "max_concurrent": opts.MaxConcurrent, "peer": cfg.Peer.UserDriverURL},
	)

	err = httpx.Serve(ctx, srv, logger)

	cancel()
	wg.Wait()

	logger.Info(context.WithoutCancel(ctx), "service_stopped", "Matching Service stopped", nil)
	return err
}
