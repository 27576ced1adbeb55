package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/dispatch-service/internal/api/http"
	"github.com/spec-kit/dispatch-service/internal/api/http/handlers"
	"github.com/spec-kit/dispatch-service/internal/config"
	"github.com/spec-kit/dispatch-service/internal/events"
	"github.com/spec-kit/dispatch-service/internal/nlu"
	"github.com/spec-kit/dispatch-service/internal/notify"
	"github.com/spec-kit/dispatch-service/internal/observability"
	"github.com/spec-kit/dispatch-service/internal/persistence"
	"github.com/spec-kit/dispatch-service/internal/repository"
	"github.com/spec-kit/dispatch-service/internal/resources"
	"github.com/spec-kit/dispatch-service/internal/service"
	"github.com/spec-kit/dispatch-service/internal/triage"
	"github.com/spec-kit/dispatch-service/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	var (
		incidentRepo   repository.IncidentRepository
		unitRepo       repository.UnitRepository
		allocationRepo repository.AllocationRepository
		dispatchRepo   repository.DispatchRepository
		historyRepo    repository.IncidentHistoryRepository
	)
	if dbPool := pg.PoolHandle(); dbPool != nil {
		if cfg.Postgres.RunMigrations {
			if err := persistence.RunMigrations(ctx, dbPool, logger); err != nil {
				logger.Fatal("failed to run migrations", zap.Error(err))
			}
		}
		incidentRepo = repository.NewIncidentRepository(dbPool)
		unitRepo = repository.NewUnitRepository(dbPool)
		allocationRepo = repository.NewAllocationRepository(dbPool)
		dispatchRepo = repository.NewDispatchRepository(dbPool)
		historyRepo = repository.NewIncidentHistoryRepository(dbPool)
	} else {
		logger.Warn("running with in-memory stores; state is lost on restart")
		incidentRepo = repository.NewMemoryIncidentRepository()
		unitRepo = repository.NewMemoryUnitRepository()
		allocationRepo = repository.NewMemoryAllocationRepository()
		dispatchRepo = repository.NewMemoryDispatchRepository()
		historyRepo = repository.NewMemoryHistoryRepository()
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher()
	pool := resources.NewPool()
	queue := triage.NewQueue()
	locks := service.NewIncidentLocks()

	var classifier nlu.Classifier
	if cfg.Assessment.NLUEndpoint != "" {
		classifier = nlu.NewHTTPClassifier(cfg.Assessment.NLUEndpoint, cfg.Assessment.Timeout())
		logger.Info("using remote classifier", zap.String("endpoint", cfg.Assessment.NLUEndpoint))
	} else {
		classifier = nlu.NewKeywordClassifier()
		logger.Info("using keyword classifier")
	}

	var notifier notify.Notifier
	if err := redis.Ping(ctx); err == nil {
		notifier = notify.NewRedisNotifier(redis.Client, cfg.Notification.ChannelPrefix)
	} else {
		logger.Warn("redis unavailable, unit notifications fall back to logs", zap.Error(err))
		notifier = notify.NewLogNotifier(logger)
	}

	assessmentService := service.NewAssessmentService(service.AssessmentDependencies{
		IncidentRepo: incidentRepo,
		Classifier:   classifier,
		Dispatcher:   dispatcher,
		Metrics:      metrics,
		Logger:       logger,
		Config:       cfg.Assessment,
	})
	matchingService := service.NewMatchingService(service.MatchingDependencies{
		IncidentRepo:   incidentRepo,
		AllocationRepo: allocationRepo,
		UnitRepo:       unitRepo,
		HistoryRepo:    historyRepo,
		Pool:           pool,
		Dispatcher:     dispatcher,
		Metrics:        metrics,
		Logger:         logger,
		Config:         cfg.Matching,
	})
	dispatchService := service.NewDispatchService(service.DispatchDependencies{
		IncidentRepo:   incidentRepo,
		AllocationRepo: allocationRepo,
		DispatchRepo:   dispatchRepo,
		UnitRepo:       unitRepo,
		HistoryRepo:    historyRepo,
		Pool:           pool,
		Queue:          queue,
		Locks:          locks,
		Notifier:       notifier,
		Dispatcher:     dispatcher,
		Metrics:        metrics,
		Logger:         logger,
	})
	incidentService := service.NewIncidentService(service.IncidentQueryDependencies{
		IncidentRepo:   incidentRepo,
		AllocationRepo: allocationRepo,
		DispatchRepo:   dispatchRepo,
		HistoryRepo:    historyRepo,
		Pool:           pool,
		Logger:         logger,
	})
	coordinator := service.NewCoordinator(service.CoordinatorDependencies{
		Assessment:     assessmentService,
		Matching:       matchingService,
		Dispatch:       dispatchService,
		IncidentRepo:   incidentRepo,
		UnitRepo:       unitRepo,
		AllocationRepo: allocationRepo,
		HistoryRepo:    historyRepo,
		Queue:          queue,
		Pool:           pool,
		Locks:          locks,
		Dispatcher:     dispatcher,
		Metrics:        metrics,
		Logger:         logger,
		Config:         cfg.Coordinator,
	})

	notificationService := service.NewNotificationService(dispatcher, redis.Client, logger, cfg.Notification)
	worker.StartNotificationWorker(notificationService)

	if err := coordinator.Recover(ctx); err != nil {
		logger.Fatal("failed to recover coordinator state", zap.Error(err))
	}
	go func() {
		if err := coordinator.Run(ctx); err != nil {
			logger.Error("coordinator stopped", zap.Error(err))
		}
	}()

	reporter := worker.NewStatsReporter(coordinator, metrics, logger, time.Minute)
	go func() {
		_ = reporter.Run(ctx)
	}()

	app := fiber.New()
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	healthHandler := handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis)
	incidentsHandler := handlers.NewIncidentsHandler(coordinator, incidentService, dispatchService)
	unitsHandler := handlers.NewUnitsHandler(dispatchService)
	queueHandler := handlers.NewQueueHandler(coordinator, metrics)

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:    healthHandler,
		Incidents: incidentsHandler,
		Units:     unitsHandler,
		Queue:     queueHandler,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	cancel()
	_ = app.ShutdownWithTimeout(cfg.Coordinator.ShutdownTimeout())
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
