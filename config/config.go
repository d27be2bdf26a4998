package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port string
	Env  string

	MongoURI string
	MongoDB  string

	JWTSecret string

	BraintreeEnvironment string
	BraintreeMerchantID  string
	BraintreePublicKey   string
	BraintreePrivateKey  string
	GatewayTimeout       time.Duration

	RedisURL       string // optional; idempotency reservations disabled when empty
	IdempotencyTTL time.Duration

	KafkaBrokers []string // optional; order events disabled when empty
	KafkaTopic   string

	AllowedOrigins []string
}

func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:                 getEnv("PORT", "8080"),
		Env:                  getEnv("ENV", "development"),
		MongoURI:             os.Getenv("MONGO_URI"),
		MongoDB:              getEnv("MONGO_DB", "ecommerce"),
		JWTSecret:            os.Getenv("JWT_SECRET"),
		BraintreeEnvironment: getEnv("BRAINTREE_ENV", "sandbox"),
		BraintreeMerchantID:  os.Getenv("BRAINTREE_MERCHANT_ID"),
		BraintreePublicKey:   os.Getenv("BRAINTREE_PUBLIC_KEY"),
		BraintreePrivateKey:  os.Getenv("BRAINTREE_PRIVATE_KEY"),
		GatewayTimeout:       getDurationEnv("GATEWAY_TIMEOUT", 15*time.Second),
		RedisURL:             os.Getenv("REDIS_URL"),
		IdempotencyTTL:       getDurationEnv("IDEMPOTENCY_TTL", 24*time.Hour),
		KafkaTopic:           getEnv("KAFKA_ORDER_TOPIC", "order-events"),
		AllowedOrigins:       splitEnv("ALLOWED_ORIGINS", "http://localhost:3000"),
	}

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = strings.Split(brokers, ",")
	}

	if cfg.MongoURI == "" || cfg.JWTSecret == "" {
		return nil, fmt.Errorf("missing required environment variables: MONGO_URI, JWT_SECRET")
	}
	if cfg.BraintreeMerchantID == "" || cfg.BraintreePublicKey == "" || cfg.BraintreePrivateKey == "" {
		return nil, fmt.Errorf("missing required Braintree credentials: BRAINTREE_MERCHANT_ID, BRAINTREE_PUBLIC_KEY, BRAINTREE_PRIVATE_KEY")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getDurationEnv(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return fallback
}

func splitEnv(key, fallback string) []string {
	return strings.Split(getEnv(key, fallback), ",")
}
