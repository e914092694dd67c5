package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StorageMemory = "memory"
	StorageMongo  = "mongo"
)

// Config aggregates application configuration values loaded from environment variables.
type Config struct {
	Env      string
	LogLevel string
	HTTPAddr string
	Storage  string

	MongoURI          string
	MongoDB           string
	MongoTransactions bool

	KafkaBrokers       []string
	KafkaTopicPrefix   string
	KafkaGroupID       string
	IdempotencyTTL     time.Duration
	OutboxPollInterval time.Duration
	RetryBackoff       []time.Duration

	S3Endpoint       string
	S3PublicEndpoint string
	S3AccessKey      string
	S3SecretKey      string
	S3Bucket         string
	S3UseSSL         bool

	StripeSecretKey     string
	StripeWebhookSecret string
	PaymentSuccessURL   string
	PaymentCancelURL    string
	Currency            string
	ReconcileLookback   time.Duration

	SendgridAPIKey    string
	SendgridTemplates string
	EmailFrom         string
	EmailFromName     string

	GeocoderURL       string
	GeocoderUserAgent string
	RedisAddr         string
	RedisPassword     string
	RedisDB           int
	GeocodeCacheTTL   time.Duration
	VINDecoderURL     string

	ReminderSchedule  string
	ReminderWindow    time.Duration
	SessionTTL        time.Duration
	InsuranceProvider string
}

// Load parses configuration from the current environment. A .env file in the working
// directory is read first when present; real environment variables win.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Env:                 getEnv("APP_ENV", "dev"),
		LogLevel:            strings.ToLower(getEnv("LOG_LEVEL", "info")),
		HTTPAddr:            getEnv("HTTP_ADDR", ":8080"),
		Storage:             strings.ToLower(getEnv("STORAGE", "")),
		MongoURI:            os.Getenv("MONGO_URI"),
		MongoDB:             getEnv("MONGO_DB", "carshare"),
		KafkaTopicPrefix:    getEnv("KAFKA_TOPIC_PREFIX", ""),
		KafkaGroupID:        getEnv("KAFKA_GROUP_ID", "carshare-notifications"),
		S3Endpoint:          getEnv("S3_ENDPOINT", ""),
		S3PublicEndpoint:    getEnv("S3_PUBLIC_ENDPOINT", ""),
		S3AccessKey:         getEnv("S3_ACCESS_KEY", "minioadmin"),
		S3SecretKey:         getEnv("S3_SECRET_KEY", "minioadmin"),
		S3Bucket:            getEnv("S3_BUCKET", "carshare-photos"),
		StripeSecretKey:     os.Getenv("STRIPE_SECRET_KEY"),
		StripeWebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
		PaymentSuccessURL:   getEnv("PAYMENT_SUCCESS_URL", "http://localhost:3000/bookings/{booking_id}?payment=success"),
		PaymentCancelURL:    getEnv("PAYMENT_CANCEL_URL", "http://localhost:3000/bookings/{booking_id}?payment=cancelled"),
		Currency:            strings.ToUpper(getEnv("CURRENCY", "USD")),
		SendgridAPIKey:      os.Getenv("SENDGRID_API_KEY"),
		SendgridTemplates:   os.Getenv("SENDGRID_TEMPLATES"),
		EmailFrom:           getEnv("EMAIL_FROM", "no-reply@carshare.local"),
		EmailFromName:       getEnv("EMAIL_FROM_NAME", "Carshare"),
		GeocoderURL:         getEnv("GEOCODER_URL", "https://nominatim.openstreetmap.org"),
		GeocoderUserAgent:   getEnv("GEOCODER_USER_AGENT", "carshare/1.0"),
		RedisAddr:           os.Getenv("REDIS_ADDR"),
		RedisPassword:       os.Getenv("REDIS_PASSWORD"),
		VINDecoderURL:       getEnv("VIN_DECODER_URL", "https://vpic.nhtsa.dot.gov/api"),
		ReminderSchedule:    getEnv("REMINDER_SCHEDULE", "@every 1h"),
		InsuranceProvider:   getEnv("INSURANCE_PROVIDER", "Carshare Mutual"),
	}
	if brokers := getEnv("KAFKA_BROKERS", ""); brokers != "" {
		for _, b := range strings.Split(brokers, ",") {
			if b = strings.TrimSpace(b); b != "" {
				cfg.KafkaBrokers = append(cfg.KafkaBrokers, b)
			}
		}
	}

	var err error
	if cfg.MongoTransactions, err = parseBoolEnv("MONGO_TRANSACTIONS", false); err != nil {
		return Config{}, err
	}
	if cfg.S3UseSSL, err = parseBoolEnv("S3_USE_SSL", false); err != nil {
		return Config{}, err
	}
	if cfg.RedisDB, err = parseIntEnv("REDIS_DB", 0); err != nil {
		return Config{}, err
	}
	durations := []struct {
		key string
		def time.Duration
		dst *time.Duration
	}{
		{"IDEMP_TTL", 168 * time.Hour, &cfg.IdempotencyTTL},
		{"OUTBOX_POLL_INTERVAL", 500 * time.Millisecond, &cfg.OutboxPollInterval},
		{"RECONCILE_LOOKBACK", 72 * time.Hour, &cfg.ReconcileLookback},
		{"GEOCODE_CACHE_TTL", 720 * time.Hour, &cfg.GeocodeCacheTTL},
		{"REMINDER_WINDOW", 24 * time.Hour, &cfg.ReminderWindow},
		{"SESSION_TTL", 720 * time.Hour, &cfg.SessionTTL},
	}
	for _, d := range durations {
		if *d.dst, err = parseDurationEnv(d.key, d.def); err != nil {
			return Config{}, err
		}
	}

	retryStr := getEnv("RETRY_BACKOFF", "1s,5s,30s")
	for _, raw := range strings.Split(retryStr, ",") {
		val := strings.TrimSpace(raw)
		if val == "" {
			continue
		}
		d, err := time.ParseDuration(val)
		if err != nil {
			return Config{}, fmt.Errorf("invalid RETRY_BACKOFF component %q: %w", raw, err)
		}
		cfg.RetryBackoff = append(cfg.RetryBackoff, d)
	}
	if cfg.S3PublicEndpoint == "" {
		cfg.S3PublicEndpoint = cfg.S3Endpoint
	}

	switch cfg.Storage {
	case "":
		cfg.Storage = StorageMemory
		if cfg.MongoURI != "" {
			cfg.Storage = StorageMongo
		}
	case StorageMemory, StorageMongo:
	default:
		return Config{}, fmt.Errorf("invalid STORAGE %q: want memory or mongo", cfg.Storage)
	}
	if cfg.Storage == StorageMongo && cfg.MongoURI == "" {
		return Config{}, fmt.Errorf("MONGO_URI is required for mongo storage")
	}
	if len(cfg.Currency) != 3 {
		return Config{}, fmt.Errorf("invalid CURRENCY %q", cfg.Currency)
	}
	if cfg.SessionTTL <= 0 {
		return Config{}, fmt.Errorf("SESSION_TTL must be positive")
	}
	return cfg, nil
}

// PaymentsEnabled reports whether a payment processor is configured.
func (c Config) PaymentsEnabled() bool {
	return c.StripeSecretKey != ""
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseDurationEnv(key string, def time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s duration: %w", key, err)
	}
	return d, nil
}

func parseBoolEnv(key string, def bool) (bool, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "t", "true", "yes", "y", "on":
		return true, nil
	case "0", "f", "false", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("invalid %s boolean: %q", key, raw)
	}
}

func parseIntEnv(key string, def int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s integer: %w", key, err)
	}
	return v, nil
}
