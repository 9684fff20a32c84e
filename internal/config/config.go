package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	// Environment
	RunMode      string // Set via flag, not env
	MockServices bool
	LogFile      string

	// MongoDB
	MongoURI    string
	MongoDbName string

	// Redis
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// JWT (tokens are issued by the auth service; we only verify)
	JwtSecret string

	// Server
	ApiPort        string
	ServiceApiPort string
	AllowedOrigin  string

	// Package catalog
	CatalogFile       string
	AllowTestPackages bool

	// Payment processor
	PaymentAPIURL        string
	PaymentAPIKey        string
	PaymentWebhookSecret string
	PaymentTimeout       time.Duration
	CheckoutSuccessURL   string
	CheckoutCancelURL    string
	CheckoutSessionTTL   time.Duration

	// Expiry sweeper
	SweepCron      string
	SweepLeaseTTL  time.Duration
	SweepBatchSize int

	// Owner emails
	NotifyOwners    bool
	SmtpHost        string
	SmtpPort        int
	SmtpUsername    string
	SmtpPassword    string
	SmtpFromAddress string
	EmailLogFile    string

	// Bridge (external syndication)
	BridgeURL     string
	BridgeTimeout time.Duration

	// AWS S3 (checkout session archive)
	AwsAccessKeyID     string
	AwsSecretAccessKey string
	AwsRegion          string
	AwsS3Bucket        string

	// Listing feed
	MaxListingsPerPage int

	// Rate Limiting Defaults
	RateLimitBucketSize        int
	RateLimitRefillRate        int // tokens per second
	RateLimitWebhookBucketSize int
	RateLimitWebhookRefillRate int
}

// Load configuration from environment variables.
// RunMode needs to be passed in as it comes from command-line flags.
func Load(runMode string) (*Config, error) {
	// Load .env file, ignoring errors if it doesn't exist
	godotenv.Load()

	cfg := &Config{
		RunMode: runMode,
	}

	var err error

	getEnv := func(key, defaultValue string) string {
		if value, exists := os.LookupEnv(key); exists {
			return value
		}
		return defaultValue
	}

	getRequiredEnv := func(key string) (string, error) {
		value, exists := os.LookupEnv(key)
		if !exists || value == "" {
			return "", fmt.Errorf("missing required environment variable: %s", key)
		}
		return value, nil
	}

	getSeconds := func(key, defaultValue string) (time.Duration, error) {
		n, err := strconv.ParseInt(getEnv(key, defaultValue), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", key, err)
		}
		if n <= 0 {
			return 0, fmt.Errorf("invalid %s: must be positive", key)
		}
		return time.Duration(n) * time.Second, nil
	}

	getInt := func(key, defaultValue string) (int, error) {
		n, err := strconv.Atoi(getEnv(key, defaultValue))
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", key, err)
		}
		return n, nil
	}

	getBool := func(key, defaultValue string) (bool, error) {
		b, err := strconv.ParseBool(getEnv(key, defaultValue))
		if err != nil {
			return false, fmt.Errorf("invalid %s: %w", key, err)
		}
		return b, nil
	}

	// Strings
	cfg.MongoURI, err = getRequiredEnv("MONGO_URI")
	if err != nil {
		return nil, err
	}
	cfg.MongoDbName = getEnv("MONGO_DB_NAME", "listings")
	cfg.RedisAddr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.RedisPassword = getEnv("REDIS_PASSWORD", "")
	cfg.JwtSecret, err = getRequiredEnv("JWT_SECRET")
	if err != nil {
		return nil, err
	}
	cfg.LogFile = getEnv("LOG_FILE", "")
	cfg.ApiPort = getEnv("API_PORT", "8080")
	cfg.ServiceApiPort = getEnv("SERVICE_API_PORT", "12345")
	cfg.AllowedOrigin = getEnv("ALLOWED_ORIGIN", "*")
	cfg.CatalogFile = getEnv("CATALOG_FILE", "")
	cfg.PaymentAPIURL = getEnv("PAYMENT_API_URL", "")
	cfg.PaymentAPIKey = getEnv("PAYMENT_API_KEY", "")
	cfg.PaymentWebhookSecret = getEnv("PAYMENT_WEBHOOK_SECRET", "")
	cfg.CheckoutSuccessURL = getEnv("CHECKOUT_SUCCESS_URL", "http://localhost:3000/listings/checkout/success")
	cfg.CheckoutCancelURL = getEnv("CHECKOUT_CANCEL_URL", "http://localhost:3000/listings/checkout/cancel")
	cfg.SweepCron = getEnv("SWEEP_CRON", "@every 5m")
	cfg.BridgeURL = getEnv("BRIDGE_URL", "")
	cfg.SmtpHost = getEnv("SMTP_HOST", "")
	cfg.SmtpUsername = getEnv("SMTP_USERNAME", "")
	cfg.SmtpPassword = getEnv("SMTP_PASSWORD", "")
	cfg.SmtpFromAddress = getEnv("SMTP_FROM_ADDRESS", "noreply@maklernull.example")
	cfg.EmailLogFile = getEnv("LOG_EMAILS", "")
	cfg.AwsAccessKeyID = getEnv("AWS_ACCESS_KEY_ID", "")
	cfg.AwsSecretAccessKey = getEnv("AWS_SECRET_ACCESS_KEY", "")
	cfg.AwsRegion = getEnv("AWS_REGION", "eu-central-1")
	cfg.AwsS3Bucket = getEnv("AWS_S3_BUCKET", "")

	// Flags
	if cfg.MockServices, err = getBool("MOCK_SERVICES", "false"); err != nil {
		return nil, err
	}
	if cfg.AllowTestPackages, err = getBool("ALLOW_TEST_PACKAGES", "false"); err != nil {
		return nil, err
	}
	if cfg.NotifyOwners, err = getBool("NOTIFY_OWNERS", "true"); err != nil {
		return nil, err
	}

	// Numbers and durations
	if cfg.RedisDB, err = getInt("REDIS_DB", "0"); err != nil {
		return nil, err
	}
	if cfg.SmtpPort, err = getInt("SMTP_PORT", "587"); err != nil {
		return nil, err
	}
	if cfg.PaymentTimeout, err = getSeconds("PAYMENT_TIMEOUT_SECONDS", "10"); err != nil {
		return nil, err
	}
	sessionTTLMinutes, err := getInt("CHECKOUT_SESSION_TTL_MINUTES", "60")
	if err != nil {
		return nil, err
	}
	if sessionTTLMinutes <= 0 {
		return nil, fmt.Errorf("invalid CHECKOUT_SESSION_TTL_MINUTES: must be positive")
	}
	cfg.CheckoutSessionTTL = time.Duration(sessionTTLMinutes) * time.Minute

	if cfg.SweepLeaseTTL, err = getSeconds("SWEEP_LEASE_SECONDS", "240"); err != nil {
		return nil, err
	}
	if cfg.SweepBatchSize, err = getInt("SWEEP_BATCH_SIZE", "200"); err != nil {
		return nil, err
	}
	if cfg.BridgeTimeout, err = getSeconds("BRIDGE_TIMEOUT_SECONDS", "5"); err != nil {
		return nil, err
	}
	if cfg.MaxListingsPerPage, err = getInt("MAX_LISTINGS_PER_PAGE", "100"); err != nil {
		return nil, err
	}

	// Rate Limiting
	if cfg.RateLimitBucketSize, err = getInt("RATE_LIMIT_BUCKET_SIZE", "20"); err != nil {
		return nil, err
	}
	if cfg.RateLimitRefillRate, err = getInt("RATE_LIMIT_REFILL_RATE", "5"); err != nil {
		return nil, err
	}
	if cfg.RateLimitWebhookBucketSize, err = getInt("RATE_LIMIT_WEBHOOK_BUCKET_SIZE", "100"); err != nil {
		return nil, err
	}
	if cfg.RateLimitWebhookRefillRate, err = getInt("RATE_LIMIT_WEBHOOK_REFILL_RATE", "50"); err != nil {
		return nil, err
	}

	if !cfg.MockServices && cfg.PaymentAPIURL == "" {
		return nil, fmt.Errorf("PAYMENT_API_URL is required unless MOCK_SERVICES=true")
	}

	return cfg, nil
}
