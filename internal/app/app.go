// Package app wires every component into a running OmniOrchestrator
// process: it owns the dependency graph (config, pools, handlers) that
// cmd/omniorchestrator keeps out of main.go.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"

	"github.com/omnicloudorg/omniorchestrator/internal/alerts"
	"github.com/omnicloudorg/omniorchestrator/internal/apps"
	"github.com/omnicloudorg/omniorchestrator/internal/audit"
	"github.com/omnicloudorg/omniorchestrator/internal/auth"
	"github.com/omnicloudorg/omniorchestrator/internal/autoscaler"
	"github.com/omnicloudorg/omniorchestrator/internal/backup"
	"github.com/omnicloudorg/omniorchestrator/internal/bootstrap"
	"github.com/omnicloudorg/omniorchestrator/internal/config"
	"github.com/omnicloudorg/omniorchestrator/internal/cost"
	"github.com/omnicloudorg/omniorchestrator/internal/dbconn"
	"github.com/omnicloudorg/omniorchestrator/internal/dbschema"
	"github.com/omnicloudorg/omniorchestrator/internal/httpserver"
	"github.com/omnicloudorg/omniorchestrator/internal/migration"
	"github.com/omnicloudorg/omniorchestrator/internal/notify"
	"github.com/omnicloudorg/omniorchestrator/internal/platformdb"
	"github.com/omnicloudorg/omniorchestrator/internal/telemetry"
	"github.com/omnicloudorg/omniorchestrator/internal/tenant"
)

// Run is the process entry point. It reads config, connects to
// infrastructure, and starts the mode cfg.Mode selects ("api" or
// "worker"), both modes sharing one main-database pool and one Redis
// client.
func Run(ctx context.Context, cfg *config.Config) error {
	logger := telemetry.NewLogger(cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(logger)

	logger.Info("starting omniorchestrator",
		"mode", cfg.Mode,
		"listen", cfg.ListenAddr(),
	)

	conn, err := dbconn.New(ctx, cfg.DatabaseBaseURL, logger)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer conn.MainPool().Close()

	rdb, err := newRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("connecting to redis: %w", err)
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Error("closing redis", "error", err)
		}
	}()

	registry := dbschema.New(cfg.SQLDir)
	runner := migration.New(registry, logger, cfg.BypassConfirm)

	dbMgr, err := platformdb.New(ctx, conn, runner, cfg.SchemaVersion, logger)
	if err != nil {
		return fmt.Errorf("initializing platform database manager: %w", err)
	}
	logger.Info("main schema migrated", "version", cfg.SchemaVersion)

	metricsReg := telemetry.NewMetricsRegistry(telemetry.All()...)

	switch cfg.Mode {
	case "api":
		return runAPI(ctx, cfg, logger, conn, dbMgr, rdb, metricsReg)
	case "worker":
		return runWorker(ctx, cfg, logger, dbMgr, rdb)
	default:
		return fmt.Errorf("unknown mode: %s", cfg.Mode)
	}
}

// handleMe responds with the authenticated user Gate.Middleware placed in
// the request context.
func handleMe(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		httpserver.RespondErrorCode(w, http.StatusUnauthorized, "unauthorized", "not authenticated")
		return
	}
	httpserver.Respond(w, http.StatusOK, user)
}

// newRedisClient connects to and pings a Redis server, the same way the
// teacher's internal/platform.NewRedisClient does.
func newRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis URL: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}
	return client, nil
}

func runAPI(ctx context.Context, cfg *config.Config, logger *slog.Logger, conn *dbconn.Manager, dbMgr *platformdb.Manager, rdb *redis.Client, metricsReg *prometheus.Registry) error {
	mainDB := conn.MainPool()

	sessionMaxAge, err := time.ParseDuration(cfg.SessionMaxAge)
	if err != nil {
		return fmt.Errorf("parsing session max age %q: %w", cfg.SessionMaxAge, err)
	}

	jwtSecret := cfg.JWTSecret
	if jwtSecret == "" {
		jwtSecret = auth.GenerateDevSecret()
		logger.Info("jwt: using auto-generated dev secret (set OMNI_ORCH_JWT_SECRET in production)")
	}
	issuer, err := auth.NewTokenIssuer(jwtSecret, sessionMaxAge)
	if err != nil {
		return fmt.Errorf("creating token issuer: %w", err)
	}

	// Rate limiter: 10 failed login attempts per IP per 15 minutes.
	rateLimiter := auth.NewRateLimiter(rdb, 10, 15*time.Minute)

	gate := &auth.Gate{Issuer: issuer, Pool: mainDB, Logger: logger}
	loginHandler := &auth.LoginHandler{Issuer: issuer, Pool: mainDB, RateLimiter: rateLimiter}

	auditWriter := audit.NewWriter(logger)
	auditWriter.Start(ctx)
	defer auditWriter.Close()

	notifier := notify.New(cfg.SlackBotToken, cfg.SlackAlertChannel, logger)
	if notifier.IsEnabled() {
		logger.Info("slack notifications enabled", "channel", cfg.SlackAlertChannel)
	} else {
		logger.Info("slack notifications disabled (SLACK_BOT_TOKEN not set)")
	}

	srv := httpserver.NewServer(cfg, logger, mainDB, rdb, metricsReg)

	// --- Public routes (no AuthGate) ---
	srv.Router.Post("/users/login", loginHandler.HandleLogin)
	srv.Router.Post("/users/create", loginHandler.HandleCreate)

	// --- Main-database-scoped routes (auth required, no tenant) ---
	srv.Router.Group(func(r chi.Router) {
		r.Use(gate.Middleware)
		r.Mount("/platforms", platformdb.NewHandler(dbMgr).Routes())
		r.Get("/me", handleMe)
	})

	// --- Platform-scoped domain routes (auth + tenant resolution) ---
	bootstrapMachine := bootstrap.NewStateMachine(logger)

	isoManager := backup.NewIsoManager(cfg.BackupStorageDir)
	nodeClient := backup.NewHTTPClient(cfg.NodeAgentBaseURL)
	backupCoordinator := backup.NewCoordinator(nodeClient, isoManager, notifier, logger)

	srv.Router.Route("/platform/{platform_id}", func(r chi.Router) {
		r.Use(gate.Middleware)
		r.Use(tenant.Middleware(dbMgr, logger))

		r.Mount("/apps", apps.NewHandler().Routes())
		r.Mount("/alerts", alerts.NewHandler(notifier).Routes())
		r.Mount("/cost", cost.NewHandler().Routes())
		r.Mount("/audit-log", audit.NewHandler(auditWriter).Routes())
		r.Mount("/backups", backup.NewHandler(backupCoordinator).Routes())
		r.Mount("/bootstrap", bootstrap.NewHandler(bootstrapMachine).Routes())
	})

	scheds, err := startAutoscalers(ctx, cfg, dbMgr, rdb, notifier, logger)
	if err != nil {
		return fmt.Errorf("starting autoscalers: %w", err)
	}
	defer func() {
		for _, s := range scheds {
			s.Stop()
		}
	}()

	httpSrv := &http.Server{
		Addr:         cfg.ListenAddr(),
		Handler:      srv,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server listening", "addr", cfg.ListenAddr())
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// runWorker runs the autoscaler tick loop without serving HTTP traffic.
func runWorker(ctx context.Context, cfg *config.Config, logger *slog.Logger, dbMgr *platformdb.Manager, rdb *redis.Client) error {
	logger.Info("worker started")

	notifier := notify.New(cfg.SlackBotToken, cfg.SlackAlertChannel, logger)

	scheds, err := startAutoscalers(ctx, cfg, dbMgr, rdb, notifier, logger)
	if err != nil {
		return fmt.Errorf("starting autoscalers: %w", err)
	}
	defer func() {
		for _, s := range scheds {
			s.Stop()
		}
	}()

	<-ctx.Done()
	logger.Info("worker stopping")
	return nil
}

// startAutoscalers runs one autoscaler Engine per platform, each backed by
// a PgExecutor scoped to that platform's own database (spec.md §3: the
// instances table is per-platform, so one engine cannot serve every
// platform through a single pool). Platforms registered after this call
// only get an engine on the next restart — spec.md leaves autoscaler
// lifecycle tied to process startup, not platform creation.
func startAutoscalers(ctx context.Context, cfg *config.Config, dbMgr *platformdb.Manager, rdb *redis.Client, notifier *notify.Notifier, logger *slog.Logger) ([]*cron.Cron, error) {
	interval, err := time.ParseDuration(cfg.AutoscalerTickInterval)
	if err != nil {
		return nil, fmt.Errorf("parsing autoscaler interval %q: %w", cfg.AutoscalerTickInterval, err)
	}

	platforms, err := dbMgr.ListPlatforms(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing platforms: %w", err)
	}

	redisMetrics := autoscaler.NewRedisProvider(rdb)

	scheds := make([]*cron.Cron, 0, len(platforms))
	for _, p := range platforms {
		pool, err := dbMgr.GetPlatformPool(ctx, p.ID, p.Name)
		if err != nil {
			logger.Error("autoscaler: resolving platform pool failed, skipping", "platform", p.Name, "error", err)
			continue
		}

		engine := autoscaler.NewEngine(defaultResourceConfigs(), redisMetrics, autoscaler.NewPgExecutor(pool), notifier, logger)
		sched, err := engine.Start(ctx, interval)
		if err != nil {
			return nil, fmt.Errorf("starting autoscaler for platform %q: %w", p.Name, err)
		}
		logger.Info("autoscaler started", "platform", p.Name, "interval", interval)
		scheds = append(scheds, sched)
	}

	return scheds, nil
}

// defaultResourceConfigs returns the autoscaler's built-in policy set for
// the two resource types spec.md §4.9/§8 names: applications and worker
// nodes. Per-platform policy overrides are a possible future extension
// (spec.md leaves policy storage unspecified), not built here.
func defaultResourceConfigs() []autoscaler.ResourceConfig {
	appMin, appMax := 1, 10
	workerMin, workerMax := 0, 5

	return []autoscaler.ResourceConfig{
		{
			ResourceType: autoscaler.ResourceApplication,
			Policies: []autoscaler.Policy{
				{
					Name:    "cpu-utilization",
					Enabled: true,
					Thresholds: []autoscaler.Threshold{
						{
							MetricName:         "cpu_percent",
							ScaleUpThreshold:   75,
							ScaleDownThreshold: 20,
							ScaleFactor:        1,
							CooldownSeconds:    120,
						},
					},
					MinCapacity: &appMin,
					MaxCapacity: &appMax,
				},
			},
		},
		{
			ResourceType: autoscaler.ResourceWorkerNode,
			Policies: []autoscaler.Policy{
				{
					Name:    "queue-depth",
					Enabled: true,
					Thresholds: []autoscaler.Threshold{
						{
							MetricName:         "queue_depth",
							ScaleUpThreshold:   50,
							ScaleDownThreshold: 5,
							ScaleFactor:        1,
							CooldownSeconds:    300,
						},
					},
					MinCapacity: &workerMin,
					MaxCapacity: &workerMax,
				},
			},
		},
	}
}
