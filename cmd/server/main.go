package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/forgescan/api/internal/app"
	"github.com/forgescan/api/internal/config"
	infrahttp "github.com/forgescan/api/internal/infra/http"
	"github.com/forgescan/api/internal/infra/http/handler"
	"github.com/forgescan/api/internal/infra/http/routes"
	"github.com/forgescan/api/internal/infra/jobs"
	"github.com/forgescan/api/internal/infra/postgres"
	"github.com/forgescan/api/internal/infra/redis"
	"github.com/forgescan/api/internal/scanner"
	"github.com/forgescan/api/pkg/domain/rule"
	"github.com/forgescan/api/pkg/domain/scan"
	"github.com/forgescan/api/pkg/logger"
	"github.com/forgescan/api/pkg/validator"
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		log := logger.NewDefault()
		log.Error("failed to load configuration", "error", err)
		return 1
	}

	log := initLogger(cfg)
	log.Info("starting application", "app", cfg.App.Name, "env", cfg.App.Env)

	// Infrastructure
	db, err := postgres.New(&cfg.Database)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		return 1
	}
	defer closeWithLog(db, "database", log)
	log.Info("database connected")

	redisClient, err := redis.New(&cfg.Redis, log)
	if err != nil {
		log.Error("failed to connect to redis", "error", err)
		return 1
	}
	defer closeWithLog(redisClient, "redis", log)
	log.Info("redis connected")

	// Repositories
	tenantRepo := postgres.NewTenantRepository(db)
	scanRepo := postgres.NewScanRepository(db)
	findingRepo := postgres.NewFindingRepository(db)
	assetRepo := postgres.NewAssetRepository(db)
	evidenceRepo := postgres.NewEvidenceRepository(db)
	decisionRepo := postgres.NewEnforcementRepository(db)

	// Rule bundle
	bundle, err := loadRuleBundle(cfg)
	if err != nil {
		log.Error("failed to load rule bundle", "path", cfg.Rules.BundlePath, "error", err)
		return 1
	}

	// Scanner plugins
	registry, err := buildScannerRegistry(cfg, log)
	if err != nil {
		log.Error("failed to build scanner registry", "error", err)
		return 1
	}

	// Job queue
	jobClient := jobs.NewClient(jobs.ClientConfig{
		RedisAddr:     cfg.Redis.Addr(),
		RedisPassword: cfg.Redis.Password,
		RedisDB:       cfg.Redis.DB,
		ScanTimeout:   cfg.Worker.ScanTimeout,
	}, log)
	defer closeWithLog(jobClient, "job client", log)

	// Services
	admission := redis.NewAdmissionLimiter(redisClient, cfg.Worker.ScanTimeout)
	evidenceSvc := app.NewEvidenceService(evidenceRepo, log)
	findingSvc := app.NewFindingService(findingRepo, log)
	assetSvc := app.NewAssetService(assetRepo, log)
	remediationSvc, err := app.NewRemediationService(findingRepo, assetRepo, bundle, log)
	if err != nil {
		log.Error("failed to initialize remediation service", "error", err)
		return 1
	}
	enforcementSvc := app.NewEnforcementService(db, tenantRepo, decisionRepo, evidenceRepo, remediationSvc, log)
	scanSvc := app.NewScanService(scanRepo, tenantRepo, findingSvc, evidenceSvc,
		registry, admission, jobClient, cfg.Worker.ScanTimeout, log)
	log.Info("services initialized")

	// Handlers
	v := validator.New()
	handlers := &routes.Handlers{
		Health:      handler.NewHealthHandler(handler.WithDatabase(db), handler.WithRedis(redisClient)),
		Scan:        handler.NewScanHandler(scanSvc, v, log),
		Finding:     handler.NewFindingHandler(findingSvc, v, log),
		Asset:       handler.NewAssetHandler(assetSvc, v, log),
		Remediation: handler.NewRemediationHandler(remediationSvc, v, log),
		Enforcement: handler.NewEnforcementHandler(enforcementSvc, v, log),
		Evidence:    handler.NewEvidenceHandler(evidenceSvc, v, log),
	}

	server := infrahttp.NewServer(cfg, log)
	routes.RegisterAll(server.Router(), handlers)

	// Workers
	worker := jobs.NewWorker(jobs.WorkerConfig{
		RedisAddr:     cfg.Redis.Addr(),
		RedisPassword: cfg.Redis.Password,
		RedisDB:       cfg.Redis.DB,
		Concurrency:   cfg.Worker.Concurrency,
	}, scanSvc, log)
	if err := worker.Start(); err != nil {
		log.Error("failed to start worker", "error", err)
		return 1
	}

	schedulerCtx, stopScheduler := context.WithCancel(ctx)
	defer stopScheduler()
	scheduler := jobs.NewScheduler(scanSvc, cfg.Worker.SchedulerInterval, cfg.Worker.SchedulerBatch, log)
	go func() { _ = scheduler.Run(schedulerCtx) }()

	go func() {
		if err := server.Start(); err != nil {
			log.Error("server error", "error", err)
		}
	}()
	log.Info("application started", "http_addr", cfg.Server.Addr())

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	stopScheduler()
	worker.Stop()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", "error", err)
		return 1
	}

	log.Info("application stopped")
	return 0
}

func initLogger(cfg *config.Config) *logger.Logger {
	var log *logger.Logger
	if cfg.IsProduction() {
		log = logger.New(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	} else {
		log = logger.NewDevelopment()
	}
	log.SetDefault()
	return log
}

func loadRuleBundle(cfg *config.Config) (rule.Bundle, error) {
	if cfg.Rules.BundlePath == "" {
		return rule.DefaultBundle(), nil
	}
	return rule.LoadBundleFile(cfg.Rules.BundlePath)
}

// buildScannerRegistry wires one plugin per scan type. Probe limits come
// from configuration so an operator can throttle scans per deployment.
func buildScannerRegistry(cfg *config.Config, log *logger.Logger) (*scanner.Registry, error) {
	httpClient := &http.Client{Timeout: cfg.Scanner.HTTPTimeout}
	intelClient := &http.Client{Timeout: cfg.Intel.Timeout}

	web := scanner.NewWebScanner(httpClient, scanner.WebConfig{
		RequestsPerSecond: cfg.Scanner.RequestsPerSecond,
		CrawlMaxDepth:     cfg.Scanner.CrawlMaxDepth,
		CrawlMaxPages:     cfg.Scanner.CrawlMaxPages,
	}, log)
	api := scanner.NewAPIScanner(httpClient, scanner.APIConfig{
		BurstSize:           cfg.Scanner.BurstSize,
		SaturationThreshold: cfg.Scanner.SaturationThreshold,
	}, log)
	intel := scanner.NewHTTPIntelClient(intelClient, cfg.Intel.BaseURL, log)
	sca := scanner.NewSCAScanner(intel, log)

	registry := scanner.NewRegistry()
	for scanType, plugin := range map[scan.Type]scanner.Plugin{
		scan.TypeWeb: web,
		scan.TypeAPI: api,
		scan.TypeSCA: sca,
	} {
		if err := registry.Register(scanType, plugin); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

type closer interface {
	Close() error
}

func closeWithLog(c closer, name string, log *logger.Logger) {
	if err := c.Close(); err != nil {
		log.Error("failed to close "+name, "error", err)
	}
}
