package main

import (
	"context"
	"log"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/shopverse/checkout-service/config"
	"github.com/shopverse/checkout-service/controllers"
	"github.com/shopverse/checkout-service/database"
	"github.com/shopverse/checkout-service/gateway"
	"github.com/shopverse/checkout-service/kafka"
	"github.com/shopverse/checkout-service/logger"
	"github.com/shopverse/checkout-service/middleware"
	"github.com/shopverse/checkout-service/repository"
	"github.com/shopverse/checkout-service/routes"
	"github.com/shopverse/checkout-service/services"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("[CheckoutService] Failed to load config:", err)
	}

	logger.Initialize(cfg.Env)
	defer logger.Log.Sync()

	if err := database.Connect(cfg.MongoURI, cfg.MongoDB); err != nil {
		logger.Log.Fatal("Failed to connect to MongoDB", zap.Error(err))
	}
	defer database.Close()

	orderRepo := repository.NewMongoOrderRepository(database.DB)
	productRepo := repository.NewMongoProductRepository(database.DB)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := orderRepo.EnsureIndexes(ctx); err != nil {
		logger.Log.Fatal("Failed to ensure order indexes", zap.Error(err))
	}
	cancel()

	// Idempotency reservations are optional; the unique transaction-id
	// index remains the durable backstop when Redis is not configured.
	var idem services.IdempotencyStore
	if cfg.RedisURL != "" {
		redisClient, err := database.NewRedisClient(cfg.RedisURL)
		if err != nil {
			logger.Log.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		idem = database.NewIdempotencyStore(redisClient, cfg.IdempotencyTTL)
	}

	var events services.EventPublisher
	if len(cfg.KafkaBrokers) > 0 {
		producer := kafka.NewOrderEventProducer(cfg.KafkaBrokers, cfg.KafkaTopic, logger.Log)
		defer producer.Close()
		events = producer
	}

	gw := gateway.NewBraintreeAdapter(
		cfg.BraintreeEnvironment,
		cfg.BraintreeMerchantID,
		cfg.BraintreePublicKey,
		cfg.BraintreePrivateKey,
		cfg.GatewayTimeout,
		logger.Log,
	)

	checkoutSvc := services.NewCheckoutService(productRepo, orderRepo, gw, idem, events, logger.Log)
	orderSvc := services.NewOrderService(orderRepo, logger.Log)

	pc := controllers.NewPaymentController(checkoutSvc, gw, logger.Log)
	oc := controllers.NewOrderController(orderSvc, logger.Log)

	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.RequestLogger())
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Idempotency-Key", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	r.Use(middleware.SecurityHeaders())

	routes.RegisterRoutes(r, pc, oc, []byte(cfg.JWTSecret))

	logger.Log.Info("Checkout service running", zap.String("port", cfg.Port))
	if err := r.Run(":" + cfg.Port); err != nil {
		logger.Log.Fatal("Server failed", zap.Error(err))
	}
}
