package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ab-caller/internal/audit"
	"ab-caller/internal/auth"
	"ab-caller/internal/config"
	"ab-caller/internal/httpapi"
	"ab-caller/internal/ratelimit"
	"ab-caller/internal/reporting"
	"ab-caller/internal/routing"
	"ab-caller/internal/telephony"
	"ab-caller/pkg/logger"
	"ab-caller/pkg/tracing"
	"ab-caller/pkg/utils"

	"github.com/gin-gonic/gin"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	shutdownTracing, err := tracing.Init(rootCtx, cfg.Tracing.Endpoint, func(err error) {
		log.Warn("tracing error", "err", err)
	})
	if err != nil {
		log.Error("tracing init failed", "err", err)
		os.Exit(1)
	}
	tracingOn := cfg.Tracing.Endpoint != ""

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	routes := routing.DefaultTable()
	if cfg.RoutingTablePath != "" {
		routes, err = routing.LoadTable(cfg.RoutingTablePath)
		if err != nil {
			log.Error("routing table load failed", "path", cfg.RoutingTablePath, "err", err)
			os.Exit(1)
		}
	}

	dispatcher, err := telephony.NewWebhookDispatcher(telephony.WebhookOptions{
		BaseURL:       cfg.Webhook.BaseURL,
		APIKey:        cfg.Webhook.APIKey,
		Client:        tracing.HTTPClient(tracingOn, cfg.Webhook.Timeout),
		StrictSuccess: cfg.Webhook.StrictSuccess,
	})
	if err != nil {
		log.Error("dispatcher init failed", "err", err)
		os.Exit(1)
	}

	var auditRepo audit.Repository = audit.NewMemoryRepo()
	if cfg.HasDB() {
		db, err := utils.OpenPostgres(rootCtx, cfg.PostgresDSN(), utils.PostgresPoolConfig{})
		if err != nil {
			log.Error("postgres init failed", "err", err)
			os.Exit(1)
		}
		defer db.Close()

		pg := audit.NewPostgresRepo(db)
		if err := pg.EnsureSchema(rootCtx); err != nil {
			log.Error("audit schema init failed", "err", err)
			os.Exit(1)
		}
		auditRepo = pg
	} else {
		log.Info("DB_HOST not set; audit log kept in memory")
	}
	auditSvc := audit.NewService(auditRepo)

	var limiter ratelimit.Limiter = ratelimit.Noop{}
	if cfg.HasRedis() {
		rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
		if err != nil {
			log.Error("redis init failed", "err", err)
			os.Exit(1)
		}
		defer rdb.Close()

		limiter, err = ratelimit.NewRedisLimiter(rdb, cfg.Dispatch.ConcurrencyLimit, cfg.Dispatch.SlotTTL)
		if err != nil {
			log.Error("limiter init failed", "err", err)
			os.Exit(1)
		}
	}

	h := httpapi.Handlers{
		Dispatcher: dispatcher,
		Routes:     routes,
		Audit:      auditSvc,
		Reports:    reporting.NewService(auditSvc),
		MaxBatch:   cfg.Dispatch.MaxBatchSize,
	}

	// Gin router
	r := gin.New()
	r.Use(gin.CustomRecovery(func(c *gin.Context, _ any) {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}))
	r.Use(logger.Middleware(log))

	registerRoutes(r, h, auth.RequireAccessToken(authManager), ratelimit.LimitDispatch(limiter))

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           tracing.WrapHandler(tracingOn, "ab-caller", r),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// Batches run sequentially against the webhook.
		WriteTimeout: cfg.BatchBudget(),
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env, "groups", len(routes.Groups()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Error("tracing shutdown failed", "err", err)
	}
}
