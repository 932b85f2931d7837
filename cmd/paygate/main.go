package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"checkout-proxy/internal/auth"
	"checkout-proxy/internal/checkout"
	"checkout-proxy/internal/config"
	"checkout-proxy/internal/logger"
	"checkout-proxy/internal/metrics"
	"checkout-proxy/internal/middleware"
	"checkout-proxy/internal/paygate"
	"checkout-proxy/internal/proxy"

	"go.uber.org/zap"
)

const shutdownTimeout = 20 * time.Second

type server struct {
	handler    http.Handler
	limiter    *middleware.Limiter
	dispatcher *proxy.Dispatcher
}

func main() {
	cfg := config.LoadConfig()
	logger.Init(cfg.AppEnv, "paygate")
	defer logger.Sync()
	log := logger.L()

	if err := cfg.ValidateGateway(); err != nil {
		log.Fatal("invalid configuration", zap.Error(err))
	}

	srv := newServer(cfg, metrics.NewRegistry())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go srv.limiter.Cleanup(ctx, time.Minute, 3*time.Minute)

	httpServer := &http.Server{
		Addr:         ":" + cfg.AppPort,
		Handler:      srv.handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("payment service running",
			zap.String("port", cfg.AppPort),
			zap.String("environment", cfg.Gateway.Environment),
			zap.Bool("3ds", cfg.Gateway.Enable3DS),
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown", zap.Error(err))
	}
	if err := srv.dispatcher.Close(shutdownCtx); err != nil {
		log.Error("callbacks abandoned at shutdown", zap.Error(err))
	}
}

// newServer starts the callback dispatcher workers.
func newServer(cfg *config.Config, reg *metrics.Registry) *server {
	gateway := checkout.NewGateway(checkout.Options{
		Environment:         cfg.Gateway.Environment,
		SecretKey:           cfg.Gateway.SecretKey,
		ProcessingChannelID: cfg.Gateway.ProcessingChannelID,
	})
	tokens := auth.NewFrameTokens(cfg.Gateway.FrameTokenSecret, cfg.Gateway.FrameTokenTTL)
	peer := proxy.NewClient(cfg.SharedSecret, cfg.Gateway.LookupTimeout)

	dispatcher := proxy.NewDispatcher(proxy.DispatcherOptions{
		Secret:     cfg.SharedSecret,
		Timeout:    cfg.Dispatch.Timeout,
		MaxRetries: cfg.Dispatch.MaxRetries,
		Workers:    cfg.Dispatch.Workers,
	}, reg)
	dispatcher.Start()

	svc := paygate.NewService(cfg.Gateway, cfg.SharedSecret, gateway, peer, tokens, dispatcher)
	h := paygate.NewHandler(svc, cfg.Gateway, cfg.SharedSecret, reg)
	limiter := middleware.NewLimiter(paygate.StrictPaths, paygate.InternalPaths)

	return &server{
		handler:    paygate.NewRouter(h, tokens, limiter),
		limiter:    limiter,
		dispatcher: dispatcher,
	}
}
