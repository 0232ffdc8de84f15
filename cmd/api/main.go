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

	"crm-softphone/internal/agent"
	"crm-softphone/internal/audit"
	"crm-softphone/internal/auth"
	"crm-softphone/internal/callcap"
	"crm-softphone/internal/config"
	"crm-softphone/internal/dispositions"
	"crm-softphone/internal/httpapi"
	"crm-softphone/internal/leads"
	"crm-softphone/internal/notify"
	"crm-softphone/internal/records"
	"crm-softphone/internal/signaling"
	"crm-softphone/internal/wrapup"
	"crm-softphone/pkg/logger"
	"crm-softphone/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
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

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	// Persistence
	sink := records.NewPostgresRepo(db)
	writer := records.NewWriter(sink, log, records.WriterConfig{
		BaseDelay:   cfg.Softphone.RecordRetryBaseDelay,
		MaxAttempts: cfg.Softphone.RecordRetryMaxAttempts,
		QueueSize:   cfg.Softphone.RecordQueueSize,
	})
	defer writer.Close()

	directory := leads.NewPostgresDirectory(db)
	dispService := dispositions.NewService(dispositions.NewPostgresRepo(db))
	auditService := audit.NewService(audit.NewPostgresRepo(db))

	// Event fan-out: coordinators publish through Redis, the broker feeds the
	// local websocket hub on every instance.
	eventHub := notify.NewHub(log)
	broker := notify.NewBroker(rdb, eventHub, log)
	defer broker.Close()
	go func() {
		if err := broker.Run(rootCtx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("event broker stopped", "err", err)
		}
	}()

	var caps agent.CapGuard
	if cfg.Softphone.WorkspaceCallCap > 0 {
		caps = callcap.NewRedisGuard(rdb, cfg.Softphone.WorkspaceCallCap, cfg.Softphone.LivenessTimeout+time.Hour, log)
	}

	enforcer := wrapup.NewEnforcer(dispService, writer, directory, log)

	// TODO: swap the loopback factory for the SIP adapter once the media
	// gateway rollout settles; the loopback keeps local/dev environments
	// fully driveable without a telephony backend.
	adapterFactory := func(workspaceID, agentID string) signaling.Adapter {
		return signaling.NewLoopback()
	}

	hub := agent.NewHub(agent.Config{
		MandatoryWrapUp: cfg.Softphone.WrapUpMandatory,
		LivenessTimeout: cfg.Softphone.LivenessTimeout,
		CancelTimeout:   cfg.Softphone.CancelTimeout,
	}, adapterFactory, sink, writer, directory, enforcer, broker, caps, log)
	defer hub.Close()

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	handlers := httpapi.Handlers{
		Hub:          hub,
		Dispositions: dispService,
		Records:      sink,
		Directory:    directory,
		Audit:        auditService,
	}
	registerRoutes(r, auth.RequireAccessToken(authManager), handlers, eventHub)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env)
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

	_ = logger.ShutdownFlush(shutdownCtx, 2*time.Second)
}
