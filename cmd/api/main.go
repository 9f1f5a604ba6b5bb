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

	"support-console/internal/audit"
	"support-console/internal/auth"
	"support-console/internal/calls"
	"support-console/internal/config"
	"support-console/internal/documents"
	"support-console/internal/httpapi"
	"support-console/internal/ingest"
	"support-console/internal/rag"
	"support-console/internal/webhook"
	"support-console/pkg/logger"
	"support-console/pkg/utils"

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

	production := cfg.App.Env == "production"
	if production {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}
	users := auth.NewUserStore(cfg.Auth)

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

	// Domain services
	callsSvc := calls.NewService(calls.NewPostgresRepo(db), log)
	docsRepo := documents.NewPostgresRepo(db)
	auditSvc := audit.NewService(audit.NewPostgresRepo(db), log)

	gemini := rag.NewGeminiClient(cfg.Gemini.BaseURL, cfg.Gemini.APIKey, cfg.Gemini.ChatModel, cfg.Gemini.EmbedModel)
	chatSvc := rag.NewService(&rag.Retriever{Embedder: gemini, Store: docsRepo}, gemini, rdb, log)
	ingestSvc := ingest.NewService(gemini, docsRepo, log)

	wh := &webhook.Handler{
		Calls:      callsSvc,
		Answerer:   chatSvc,
		History:    chatSvc,
		Token:      cfg.Vapi.WebhookToken,
		Production: production,
	}

	h := httpapi.Handlers{
		Auth:             authManager,
		Users:            users,
		Calls:            callsSvc,
		RAG:              chatSvc,
		Ingest:           ingestSvc,
		Docs:             docsRepo,
		Audit:            auditSvc,
		DB:               db,
		Redis:            rdb,
		GeminiConfigured: cfg.Gemini.APIKey != "",
	}

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	registerRoutes(r, h, wh, authManager, rdb)

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
