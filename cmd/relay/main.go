package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"stealth-backend/internal/app"
	"stealth-backend/internal/config"
	"stealth-backend/internal/handlers"
	"stealth-backend/internal/router"
)

func main() {
	configPath := flag.String("config", "", "path to config file (default config.yaml)")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configPath); err != nil {
		logrus.WithError(err).Fatal("❌ relay exited")
	}
}

func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	config.AppConfig = cfg
	config.ConfigureLogging(cfg.Log)
	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	container, err := app.NewServiceContainer(ctx, cfg)
	if err != nil {
		return err
	}

	jwtManager := handlers.NewJWTManager(cfg.JWT)
	h := &router.Handlers{
		JWT:       jwtManager,
		Auth:      handlers.NewAuthHandler(jwtManager),
		AdminAuth: handlers.NewAdminAuthHandler(cfg.Admin),
		Intents:   handlers.NewIntentHandler(container.Ledger, container.IntentRepo),
		Releases:  handlers.NewReleaseHandler(container.Ledger),
		Batches:   handlers.NewBatchHandler(container.Ledger, container.BatchRepo, container.Relay),
		Admin:     handlers.NewAdminHandler(container.Ledger, container.Relay, container.Owner),
		WebSocket: handlers.NewWebSocketHandler(container.Hub, jwtManager),
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           router.SetupRouter(cfg, h),
		ReadHeaderTimeout: 10 * time.Second,
	}

	container.Start()
	defer container.Stop()

	serveErr := make(chan error, 1)
	go func() {
		logrus.WithField("addr", srv.Addr).Info("🌐 Relay API listening")
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logrus.Info("🛑 Shutdown signal received")
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Warn("⚠️ HTTP server shutdown incomplete")
	}
	return nil
}
