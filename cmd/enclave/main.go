package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"stealth-backend/internal/batch"
	"stealth-backend/internal/config"
	"stealth-backend/internal/enclave"
)

func main() {
	configPath := flag.String("config", "", "path to config file (default config.yaml)")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configPath); err != nil {
		logrus.WithError(err).Fatal("❌ enclave exited")
	}
}

func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	config.ConfigureLogging(cfg.Log)
	gin.SetMode(gin.ReleaseMode)

	if cfg.Enclave.PrivateKey == "" {
		return errors.New("enclave.privateKey is required")
	}
	signer, err := batch.NewPrivateKeySignerFromHex(cfg.Enclave.PrivateKey)
	if err != nil {
		return err
	}

	e, err := enclave.New(signer, enclave.Config{
		MinDelay:        cfg.Settlement.MinDelayDuration(),
		MaxDelay:        cfg.Settlement.MaxDelayDuration(),
		SubmissionSlack: cfg.Settlement.SubmissionSlackDuration(),
		Workers:         cfg.Settlement.WrapWorkers,
	})
	if err != nil {
		return err
	}
	if cfg.Enclave.AuthToken == "" {
		logrus.Warn("⚠️ enclave.authToken not set, enclave API is unauthenticated")
	}

	r := gin.New()
	r.Use(gin.Recovery())
	enclave.NewServer(e, cfg.Enclave.AuthToken).Register(r)

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.EnclavePort),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logrus.WithFields(logrus.Fields{
			"addr":   srv.Addr,
			"signer": e.Signer().Hex(),
		}).Info("🔐 Enclave listening")
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
