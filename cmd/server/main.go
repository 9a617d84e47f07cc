package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"vrm-avatar/internal/avatar"
	"vrm-avatar/internal/chat"
	"vrm-avatar/internal/motion"
	"vrm-avatar/internal/platform/config"
	"vrm-avatar/internal/platform/logger"
	"vrm-avatar/internal/platform/metrics"
	"vrm-avatar/internal/skeleton"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const shutdownTimeout = 10 * time.Second

func main() {
	_ = config.Load()
	cfg := config.FromEnv()

	log := logger.New(cfg.LogLevel, cfg.LogFormat)

	motionClient := motion.New(cfg.MotionURL, cfg.MotionAPIKey, cfg.Timeout)
	chatClient := chat.New(cfg.ChatURL, cfg.Timeout)
	met := metrics.New()

	repo := avatar.NewInMemoryRepository()
	svc := avatar.NewService(repo, avatar.Options{
		Loader:       skeleton.FileLoader{Dir: cfg.ModelsDir},
		Motion:       motionClient,
		Chat:         chatClient,
		Log:          log,
		Metrics:      met,
		MaxDepth:     cfg.MaxDepth,
		DefaultModel: cfg.DefaultModel,
	})

	clientKey := ""
	if cfg.ExposeClientAPIKey {
		clientKey = cfg.MotionAPIKey
	}
	h := avatar.NewHandler(svc, log, met, avatar.HandlerConfig{
		StaticDir:    cfg.StaticDir,
		ModelsDir:    cfg.ModelsDir,
		IndexFile:    cfg.IndexFile,
		Proxy:        motionClient,
		ClientAPIKey: clientKey,
		FrameRate:    cfg.FrameRate,
	})

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(logger.RequestLogger(log))
	r.Use(metrics.RequestMiddleware(met))
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		met.Handler(func() { met.SetActiveSessions(repo.ActiveSessionCount()) }).ServeHTTP(w, r)
	})
	h.Routes(r)

	addr := ":" + cfg.Port
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	log.Info("server starting",
		"port", cfg.Port,
		"motion_url", cfg.MotionURL,
		"chat_url", cfg.ChatURL,
		"models_dir", cfg.ModelsDir,
		"frame_rate", cfg.FrameRate,
		"log_level", cfg.LogLevel,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("shutdown signal received, draining connections")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	if err := svc.Shutdown(ctx); err != nil {
		log.Warn("background animation requests cancelled", "error", err)
	}

	log.Info("server stopped")
}
