package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shiftregister-vg/gopad-ot/pkg/config"
	"github.com/shiftregister-vg/gopad-ot/pkg/hub"
	"github.com/shiftregister-vg/gopad-ot/pkg/logger"
	"github.com/shiftregister-vg/gopad-ot/pkg/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration", "error", err)
	}
	logger.Init(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to initialize storage", "storage", cfg.Storage, "error", err)
	}
	defer store.Close()

	h := hub.New(store)
	defer h.Close()

	if !cfg.IsDev() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.Default()

	// Debug endpoint to check document state
	r.GET("/debug/doc/:id", h.DebugDocument)

	// WebSocket endpoint
	r.GET("/ws", h.HandleWebSocket)

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	srv := &http.Server{Addr: cfg.Addr, Handler: r}
	go func() {
		logger.Info("Server listening", "addr", cfg.Addr, "storage", cfg.Storage)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")
	shutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdown); err != nil {
		logger.Error("Shutdown failed", "error", err)
	}
}

func openStore(ctx context.Context, cfg *config.Config) (storage.Store, error) {
	switch cfg.Storage {
	case config.StoragePostgres:
		return storage.NewPostgresStore(ctx, cfg.DatabaseURL)
	case config.StorageMemory:
		return storage.NewMemoryStore(), nil
	}
	return storage.NewRedisStore(ctx, cfg.RedisURL)
}
