package fleetservice

import (
	"context"
	"fmt"
	"net/http"
	"sync"

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
	"logistics/internal/software/fleet/handler"
	"logistics/internal/software/fleet/service"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func Run(ctx context.Context, opts cli.ServiceOptions) error {
	// set up a new logger for the fleet service with a static request ID for startup logs
	logger := logger.New(cli.ModeFleet)
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

	// metrics registry served on /metrics
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

	// connect to RabbitMQ; the fleet service cannot do its job without the broker
	rmq, err := rabbitmq.ConnectRabbitMQ(ctx, cfg.RabbitMQ, logger, rabbitmq.WithMetrics(m))
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

	// set up the necessary repos
	uow := postgres.NewUnitOfWork(pool)
	svc := service.NewFleetService(
		logger,
		uow,
		postgres.NewDriverRepo(),
		postgres.NewVehicleRepo(),
		postgres.NewAssignmentRepo(),
		postgres.NewSettlementRepo(),
	)

	orderEvents := dispatch.New(logger, store, m)
	orderEvents.Handle(contracts.KindOrderMatched, svc.OnOrderMatched)
	orderEvents.Handle(contracts.KindOrderStatusChanged, svc.OnOrderStatusChanged)

	userEvents := dispatch.New(logger, store, m)
	userEvents.Handle(contracts.KindUserRegistered, svc.OnUserRegistered)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	consume := func(d *dispatch.Dispatcher, queue string) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := d.Run(runCtx, rmq, queue, cli.ModeFleet+"."+queue, prefetch); err != nil {
				logger.Error(runCtx, "consumer_failed", "Event consumer stopped with error", err, map[string]any{"queue": queue})
			}
		}()
	}
	consume(orderEvents, contracts.QueueOrderEvents)
	consume(userEvents, contracts.QueueFleetUserEvents)

	// set up the HTTP handler and its routes
	mux := http.NewServeMux()
	handler.NewFleetHTTPHandler(svc, logger).RegisterRoutes(mux)
	mux.Handle("GET /metrics", metrics.Handler(reg))

	srv := httpx.NewServer(ctx, cfg.Services.FleetPort, httpx.WithConcurrencyLimit(opts.MaxConcurrent, mux))

	logger.Info(ctx, "service_started",
		fmt.Sprintf("Fleet Service started on port %d", cfg.Services.FleetPort),
		map[string]any{"port": cfg.Services.FleetPort, "max_concurrent": opts.MaxConcurrent, "prefetch": prefetch},
	)

	err = httpx.Serve(ctx, srv, logger)

	// stop consumers before the pool and broker are closed by the defers
	cancel()
	wg.Wait()

	logger.Info(context.WithoutCancel(ctx), "service_stopped", "Fleet Service stopped", nil)
	return err
}
