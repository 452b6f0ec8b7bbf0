package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"storefront/internal/cache"
	"storefront/internal/config"
	ctrl "storefront/internal/controllers/http"
	"storefront/internal/infra"
	mmysql "storefront/internal/infra/mysql"
	"storefront/internal/infra/rabbitmq"
	"storefront/internal/repository"
	mysqlrepo "storefront/internal/repository/mysql"
	"storefront/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("Starting storefront BFF",
		zap.String("port", cfg.Port),
		zap.String("environment", cfg.Environment),
		zap.String("backend", cfg.Backend.BaseURL),
	)

	var journal repository.PaymentRepository
	if cfg.MySQL.Host != "" {
		db, err := mmysql.NewMySQL(cfg.MySQL)
		if err != nil {
			logger.Fatal("Failed to connect to payment journal", zap.Error(err))
		}
		journal = mysqlrepo.NewPaymentRepository(db)
	} else {
		logger.Warn("MYSQL_HOST not set, payment journal disabled")
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:         cfg.Redis.Addr,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     50,
		MinIdleConns: 5,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  500 * time.Millisecond,
		WriteTimeout: 500 * time.Millisecond,
	})
	defer redisClient.Close()

	pingCtx, cancelPing := context.WithTimeout(context.Background(), 2*time.Second)
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		logger.Warn("Redis unreachable, caches will miss until it recovers", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
	}
	cancelPing()
	store := cache.NewRedisStore(redisClient)

	var publisher rabbitmq.PublisherInterface
	if cfg.RabbitMQ.URL != "" {
		p, err := rabbitmq.NewPublisher(cfg.RabbitMQ.URL, cfg.RabbitMQ.Exchange, logger)
		if err != nil {
			logger.Fatal("Failed to init publisher", zap.Error(err))
		}
		publisher = p
	} else {
		logger.Warn("RABBITMQ_URL not set, events will not be published")
		publisher = rabbitmq.NewNopPublisher(logger)
	}
	defer publisher.Close()

	backend := infra.NewBackendClient(cfg.Backend.BaseURL, cfg.Backend.Timeout, logger)

	retry := services.DefaultRetryPolicy()
	retry.MaxAttempts = cfg.Retry.MaxAttempts
	retry.BaseDelay = cfg.Retry.BaseDelay
	retry.Logger = logger

	cartSvc := services.NewCartService(backend, retry, logger)
	orderSvc := services.NewOrderService(backend, journal, publisher, retry, cfg.PublicBaseURL+ctrl.SuccessPath, logger)
	callbackSvc := services.NewPaymentCallbackService(orderSvc, store, journal, logger)
	authSvc := services.NewAuthService(backend, logger)

	handler := ctrl.NewHandler(ctrl.HandlerDeps{
		Cart:          cartSvc,
		Orders:        orderSvc,
		Payments:      callbackSvc,
		Auth:          authSvc,
		Drafts:        store,
		OrderCache:    store,
		RedirectDelay: cfg.PaymentRedirectDelay,
		SecureCookies: cfg.IsProduction(),
		Logger:        logger,
	})

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(ctrl.Recovery(logger))
	r.Use(ctrl.RequestLogger(logger))
	handler.RegisterRoutes(r)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.Backend.Timeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()
	logger.Info("Server started", zap.String("address", srv.Addr))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}
	// let in-flight event publishes finish before the channel closes
	orderSvc.Wait()

	logger.Info("Server exited")
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	zcfg := zap.NewDevelopmentConfig()
	if cfg.IsProduction() {
		zcfg = zap.NewProductionConfig()
	}
	if cfg.LogLevel != "" {
		level, err := zap.ParseAtomicLevel(cfg.LogLevel)
		if err != nil {
			return nil, err
		}
		zcfg.Level = level
	}
	return zcfg.Build()
}
