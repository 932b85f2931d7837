package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"checkout-proxy/internal/config"
	"checkout-proxy/internal/db"
	"checkout-proxy/internal/entry"
	"checkout-proxy/internal/logger"
	"checkout-proxy/internal/merchant"
	"checkout-proxy/internal/metrics"
	"checkout-proxy/internal/middleware"
	"checkout-proxy/internal/notify"
	"checkout-proxy/internal/payment"
	"checkout-proxy/internal/payment/webhook"
	"checkout-proxy/internal/proxy"

	"go.uber.org/zap"
)

const shutdownTimeout = 20 * time.Second

type server struct {
	handler   http.Handler
	limiter   *middleware.Limiter
	processor *payment.Processor
	closeFn   notify.Closer
}

func main() {
	cfg := config.LoadConfig()
	logger.Init(cfg.AppEnv, "merchant")
	defer logger.Sync()
	log := logger.L()

	if err := cfg.ValidateMerchant(); err != nil {
		log.Fatal("invalid configuration", zap.Error(err))
	}

	database := db.InitDB(cfg)
	defer database.Close()

	srv, err := newServer(cfg, database, metrics.NewRegistry())
	if err != nil {
		log.Fatal("failed to build merchant service", zap.Error(err))
	}

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
		log.Info("merchant service running", zap.String("port", cfg.AppPort))
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
	srv.shutdown()
}

func newServer(cfg *config.Config, database *sql.DB, reg *metrics.Registry) (*server, error) {
	entries := entry.NewRepository(database)

	notifier, closeFn, err := notify.New(cfg.Notify, database, entries)
	if err != nil {
		return nil, err
	}

	processor := payment.NewProcessor(payment.NewRepository(database), notifier, reg)
	builder := payment.ActionBuilder{PaymentMethod: cfg.Merchant.PaymentMethod}

	callback := webhook.NewCallbackHandler(entries, processor, builder, cfg.SharedSecret)
	peer := proxy.NewClient(cfg.SharedSecret, cfg.Merchant.VerifyTimeout)
	svc := merchant.NewService(entries, processor, builder, peer, cfg.Merchant.VerifyURL)
	h := merchant.NewHandler(svc, cfg.Merchant, cfg.SharedSecret, reg)

	limiter := middleware.NewLimiter(merchant.StrictPaths, merchant.InternalPaths)

	return &server{
		handler:   merchant.NewRouter(h, callback, limiter),
		limiter:   limiter,
		processor: processor,
		closeFn:   closeFn,
	}, nil
}

// shutdown waits for in-flight notifications before releasing the drivers.
func (s *server) shutdown() {
	s.processor.Wait()
	if err := s.closeFn(); err != nil {
		logger.L().Error("notify shutdown", zap.Error(err))
	}
}
