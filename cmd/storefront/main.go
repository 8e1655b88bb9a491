package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fjod/go_cart/storefront/internal/cache"
	"github.com/fjod/go_cart/storefront/internal/config"
	"github.com/fjod/go_cart/storefront/internal/events"
	h "github.com/fjod/go_cart/storefront/internal/http"
	"github.com/fjod/go_cart/storefront/internal/logger"
	"github.com/fjod/go_cart/storefront/internal/metrics"
	"github.com/fjod/go_cart/storefront/internal/payment"
	"github.com/fjod/go_cart/storefront/internal/repository"
	"github.com/fjod/go_cart/storefront/internal/service"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "storefront: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	// Carts and the product catalog live in MongoDB
	mongoStore, err := repository.OpenMongoStore(ctx, cfg.MongoURI, cfg.MongoDBName)
	if err != nil {
		return err
	}
	defer func() { _ = mongoStore.Close(context.Background()) }()
	cartRepo, productRepo := mongoStore.Carts, mongoStore.Products

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	defer redisClient.Close()
	cartCache := cache.NewRedisCache(redisClient)
	if err := cartCache.Ping(ctx); err != nil {
		// reads fall through to MongoDB while Redis is away
		log.Warn("redis unavailable, cart cache degraded", zap.String("addr", cfg.RedisAddr), zap.Error(err))
	}

	orderRepo, err := repository.NewRepository(&cfg.Postgres)
	if err != nil {
		return err
	}
	defer orderRepo.Close()
	if err := orderRepo.RunMigrations(&cfg.Postgres); err != nil {
		return err
	}

	publisher := events.Noop()
	if brokers := events.ParseBrokers(cfg.KafkaBrokers); len(brokers) > 0 {
		publisher = events.NewKafkaPublisher(cfg.OrderEventsTopic, brokers...)
		log.Info("publishing order events", zap.Strings("brokers", brokers), zap.String("topic", cfg.OrderEventsTopic))
	}
	defer publisher.Close()

	verifier, err := newVerifier(cfg.Payment, log)
	if err != nil {
		return err
	}

	cartService := service.NewCartService(cartRepo, productRepo, cartCache, log)
	orderService := service.NewOrderService(orderRepo, productRepo, cartService, verifier, publisher, log)

	router := h.NewRouter(
		h.RouterConfig{
			RequestTimeout:     cfg.RequestTimeout,
			MaxRequestBodySize: cfg.MaxRequestBodySize,
		},
		cartService,
		orderService,
		h.NewAuthenticator(cfg.JWTSecret),
		metrics.NewServerMetrics("storefront"),
		log,
		mongoStore.Ping,
		orderRepo.Ping,
	)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("storefront starting", zap.String("port", cfg.HTTPPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serveErr:
		return fmt.Errorf("server error: %w", err)
	case <-quit:
	}

	log.Info("shutting down server")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Info("server exited")
	return nil
}

func newVerifier(cfg config.PaymentConfig, log *zap.Logger) (payment.Verifier, error) {
	switch {
	case cfg.Configured():
		client, err := payment.NewIamportClient(payment.IamportConfig{
			BaseURL:    cfg.IamportBaseURL,
			APIKey:     cfg.IamportAPIKey,
			APISecret:  cfg.IamportAPISecret,
			Timeout:    cfg.Timeout,
			MaxRetries: cfg.MaxRetries,
		}, log)
		if err != nil {
			return nil, err
		}
		return client, nil
	case cfg.SkipVerify:
		log.Warn("payment verification disabled, claims are accepted without provider lookup")
		return payment.NewSkipVerifier(log), nil
	default:
		log.Warn("payment gateway not configured, orders with a payment claim will be rejected")
		return payment.NotConfigured(), nil
	}
}
