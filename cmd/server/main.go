package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"my-page/internal/config"
	"my-page/internal/handler"
	"my-page/internal/logger"
	"my-page/internal/service"

	"github.com/gin-gonic/gin"
)

func main() {
	configFile := flag.String("config", "", "config file path (e.g. etc/config-dev.yaml)")
	flag.Parse()

	cfg := config.Load(*configFile)
	closer := logger.Init(cfg.Log)
	defer closer.Close()

	backend, err := openBackend(cfg)
	if err != nil {
		slog.Error("storage init failed", "driver", cfg.Storage.Driver, "err", err)
		os.Exit(1)
	}
	store := service.NewStore(backend, cfg.BackupDir())

	gin.SetMode(gin.ReleaseMode)
	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           handler.NewRouter(cfg, store),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		slog.Info("server starting", "addr", cfg.Addr(), "storage", store.Backend(), "data_dir", cfg.Storage.DataDir)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("server shutdown", "err", err)
	}
	slog.Info("server stopped")
}

func openBackend(cfg *config.Config) (service.Backend, error) {
	switch cfg.Storage.Driver {
	case "mysql":
		db, err := cfg.OpenGormDB()
		if err != nil {
			return nil, err
		}
		return service.NewGormBackend(db)
	case "", "file":
		return service.NewFileBackend(cfg.Storage.DataDir)
	default:
		return nil, errors.New("unknown storage driver: " + cfg.Storage.Driver)
	}
}
