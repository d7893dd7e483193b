package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/zhouzirui/filechat/backend/internal/config"
	"github.com/zhouzirui/filechat/backend/internal/handler"
	"github.com/zhouzirui/filechat/backend/internal/logging"
	"github.com/zhouzirui/filechat/backend/internal/service/ai"
	"github.com/zhouzirui/filechat/backend/internal/service/chat"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		logrus.Debugf("no .env file loaded: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("failed to load configuration: %v", err)
	}
	if err := logging.Setup(cfg.Log); err != nil {
		logrus.Fatalf("failed to configure logging: %v", err)
	}

	if !cfg.Completion.HasAPIKey() {
		logrus.WithField("provider", cfg.Completion.Provider).
			Warn("no API key configured, completions will be rejected by the backend")
	}

	completer, err := ai.NewCompleter(ctx, cfg.Completion)
	if err != nil {
		logrus.Fatalf("failed to initialize completion client: %v", err)
	}
	logrus.WithFields(logrus.Fields{
		"provider": cfg.Completion.Provider,
		"driver":   cfg.Completion.Driver,
		"model":    cfg.Completion.Model,
	}).Info("completion client initialized")

	chatService := chat.NewService(completer, chat.Options{
		IdleTTL:           cfg.Session.IdleTTL,
		SendRatePerMinute: cfg.Session.SendRatePerMinute,
		SendBurst:         cfg.Session.SendBurst,
	})
	chatService.StartJanitor(ctx, cfg.Session.SweepInterval)

	router := handler.NewRouter(cfg, chatService)

	startServer(ctx, cfg.Server, router)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	logrus.Infof("FileChat listening on %s", addr)
	if err := runServer(ctx, srv); err != nil {
		logrus.Fatalf("server error: %v", err)
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
