package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"checkout-service/config"
	"checkout-service/internal/api"
	"checkout-service/internal/auth"
	"checkout-service/internal/broker"
	"checkout-service/internal/catalog"
	"checkout-service/internal/gateway"
	"checkout-service/internal/redisclient"
	"checkout-service/internal/service"
	"checkout-service/internal/store"
	"checkout-service/internal/util"
	"checkout-service/internal/worker"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env, cfg.Server.LogLevel); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting checkout service")

	tp, err := util.InitTracer(util.ServiceName, cfg.Observ.JaegerEndpoint, cfg.Observ.TraceSampleRatio)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			log.Printf("Error shutting down tracer: %v", err)
		}
	}()

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	logger.Info("Database connected")

	if cfg.Database.Migrate {
		migrateCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err := db.Migrate(migrateCtx)
		cancel()
		if err != nil {
			log.Fatalf("Failed to run migrations: %v", err)
		}
	}

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()
	logger.Info("Redis connected")

	orderProducer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrders)
	defer orderProducer.Close()
	gatewayProducer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicGatewayEvents)
	defer gatewayProducer.Close()
	logger.Info("Kafka producers initialized")

	eventPublisher := broker.NewEventPublisher(orderProducer, gatewayProducer)

	products, err := catalog.Load(cfg.Checkout.CatalogPath)
	if err != nil {
		log.Fatalf("Failed to load catalog: %v", err)
	}

	gateways := gateway.NewFactory(gateway.WithSumUpEndpoint(cfg.Gateways.SumUpBaseURL, nil))

	coupons := service.NewCouponValidator(db, cfg.Checkout.MinChargeMinor, nil)
	pricing := service.NewPriceCalculator(products, coupons, cfg.Checkout.MinChargeMinor)
	reconciler := service.NewOrderReconciler(db, db, redisClient, eventPublisher, service.DefaultReconcilerConfig())
	orchestrator := service.NewCheckoutOrchestrator(
		db,
		gateways,
		products,
		pricing,
		redisClient,
		db,
		reconciler,
		service.OrchestratorConfig{
			MinCharge:        cfg.Checkout.MinChargeMinor,
			AttemptWindow:    cfg.Checkout.AttemptWindow,
			CreateRetryDelay: cfg.Checkout.CreateRetryDelay,
			ReturnURL:        cfg.Checkout.ReturnURL,
		},
		nil,
	)
	paymentConfig := service.NewPaymentConfigService(db, gateways)
	geoBlocker := service.NewGeoBlocker(
		service.NewIPInfoResolver(cfg.Geo.IPInfoBaseURL, cfg.Geo.IPInfoToken, nil),
		redisClient,
		db,
		cfg.Geo.FallbackCountry,
	)
	authManager := auth.NewManager(cfg.Auth.JWTSecret, cfg.Auth.AdminUsername, cfg.Auth.AdminPassword)
	if cfg.Auth.JWTSecret == "" {
		logger.Warn("JWT_SECRET is not set, admin endpoints will reject every request")
	}

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	webhookConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicGatewayEvents, cfg.Kafka.ConsumerGroup)
	webhookWorker := worker.NewWebhookWorker(webhookConsumer, orchestrator, redisClient, db)
	go func() {
		if err := webhookWorker.Start(workerCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Webhook worker error", zap.Error(err))
		}
	}()

	sweepWorker := worker.NewSweepWorker(orchestrator, cfg.Checkout.SweepInterval, cfg.Checkout.StaleAfter)
	go func() {
		if err := sweepWorker.Start(workerCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Sweep worker error", zap.Error(err))
		}
	}()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(api.Deps{
		Checkout:    orchestrator,
		Pricing:     pricing,
		Catalog:     products,
		Config:      paymentConfig,
		Geo:         geoBlocker,
		Events:      eventPublisher,
		Auth:        authManager,
		Secure:      cfg.Server.Env == "production",
		CORSOrigins: cfg.Server.CORSOrigins,
		Ready: map[string]api.Pinger{
			"database": db,
			"redis":    redisClient,
		},
	})
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
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
	if err := webhookWorker.Stop(); err != nil {
		logger.Warn("Failed to stop webhook worker", zap.Error(err))
	}

	logger.Info("Server exited")
}
