package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Spolkip/AtlasCoreSite/config"
	"github.com/Spolkip/AtlasCoreSite/internal/api"
	"github.com/Spolkip/AtlasCoreSite/internal/auth"
	"github.com/Spolkip/AtlasCoreSite/internal/broker"
	"github.com/Spolkip/AtlasCoreSite/internal/currency"
	"github.com/Spolkip/AtlasCoreSite/internal/delivery"
	"github.com/Spolkip/AtlasCoreSite/internal/gateway"
	"github.com/Spolkip/AtlasCoreSite/internal/httpclient"
	"github.com/Spolkip/AtlasCoreSite/internal/redisclient"
	"github.com/Spolkip/AtlasCoreSite/internal/service"
	"github.com/Spolkip/AtlasCoreSite/internal/store"
	"github.com/Spolkip/AtlasCoreSite/internal/util"
	"github.com/Spolkip/AtlasCoreSite/internal/worker"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const serviceName = "atlas-store"

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env, serviceName); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting store service")

	tp, err := util.InitTracer(serviceName, cfg.Server.Env, cfg.Observ.JaegerEndpoint)
	if err != nil {
		logger.Fatal("Failed to initialize tracer", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			logger.Error("Error shutting down tracer", zap.Error(err))
		}
	}()

	db, err := store.NewStore(cfg.Database.URL, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()
	logger.Info("Database connected")

	if cfg.Database.AutoMigrate {
		if err := db.Migrate(context.Background()); err != nil {
			logger.Fatal("Failed to apply schema", zap.Error(err))
		}
		logger.Info("Schema applied")
	}

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()
	logger.Info("Redis connected")

	hc := httpclient.NewClient(util.GetTracer())
	plugin := delivery.NewClient(hc, cfg.Plugin.BaseURL, cfg.Plugin.WebhookSecret, cfg.Plugin.Timeout)
	converter := currency.NewConverter(hc, cfg.Currency.RatesURL, redisClient, cfg.Currency.CacheTTL)

	var payments service.PaymentGateway
	paypal := gateway.NewPayPal(hc, cfg.PayPal.BaseURL, cfg.PayPal.ClientID, cfg.PayPal.ClientSecret,
		cfg.PayPal.ReturnURL, cfg.PayPal.CancelURL)
	if paypal.IsConfigured() {
		payments = paypal
	} else {
		logger.Warn("PayPal credentials missing, gateway checkout disabled")
	}

	var orderProducer, deliveryProducer *broker.Producer
	if cfg.Kafka.Enabled {
		orderProducer = broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrder)
		defer orderProducer.Close()
		deliveryProducer = broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicDelivery)
		defer deliveryProducer.Close()
		logger.Info("Kafka producers initialized", zap.Strings("brokers", cfg.Kafka.Brokers))
	}
	eventPublisher := broker.NewEventPublisher(orderProducer, deliveryProducer)

	retryDeliveries := cfg.Kafka.Enabled && cfg.Business.DeliveryRetryEnabled

	catalog := service.NewCatalog(db)
	discounts := service.NewDiscountResolver(db, db)
	fulfillment := service.NewFulfillmentEngine(db, plugin, redisClient, eventPublisher, service.FulfillmentConfig{
		ReferralPoints:  cfg.Business.ReferralPoints,
		ClaimTTL:        cfg.Business.FulfillmentLockTTL,
		PublishFailures: retryDeliveries,
	})
	orderService := service.NewOrderService(db, catalog, discounts, converter, payments, fulfillment,
		eventPublisher, cfg.Currency.SettlementCurrency)
	promoService := service.NewPromoService(db, discounts, plugin, redisClient, eventPublisher, retryDeliveries)
	creatorService := service.NewCreatorService(db, discounts)

	tokens, err := auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	if err != nil {
		logger.Fatal("Failed to initialize auth", zap.Error(err))
	}

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	var retryWorker *worker.DeliveryRetryWorker
	if retryDeliveries {
		retrier := service.NewDeliveryRetrier(plugin, redisClient, 24*time.Hour)
		consumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicDelivery, cfg.Kafka.ConsumerGroup)
		retryWorker = worker.NewDeliveryRetryWorker(consumer, retrier)
		go func() {
			if err := retryWorker.Start(workerCtx); err != nil {
				logger.Error("Delivery retry worker error", zap.Error(err))
			}
		}()
	}

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(orderService, catalog, promoService, creatorService,
		auth.NewMiddleware(tokens, db),
		api.Redirects{SuccessURL: cfg.SuccessURL(), CancelURL: cfg.PayPal.CancelURL},
		map[string]api.Pinger{"postgres": db, "redis": redisClient})
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	workerCancel()
	if retryWorker != nil {
		retryWorker.Stop()
	}

	logger.Info("Server exited")
}
