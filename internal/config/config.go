package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

// Module provides Config and the pricing holder to the application graph.
var Module = fx.Module("config",
	fx.Provide(Load),
	fx.Provide(LoadPricing),
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	OTLPEndpoint string
	Telemetry    TelemetryConfig

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	Redis RedisConfig

	Stripe StripeConfig

	Credit     CreditConfig
	Generation GenerationConfig

	// ProviderKeySecret derives the encryption key for stored private provider keys.
	ProviderKeySecret string
	OpenAIAPIKey      string
	AnthropicAPIKey   string
	GeminiAPIKey      string
	PricingConfigPath string

	// AdminAPIToken and SupportAPIToken identify operators on the /admin
	// routes. With both empty the routes are not registered.
	AdminAPIToken   string
	SupportAPIToken string

	ReceiptIssuer string
}

// TelemetryConfig drives logging, tracing and OTLP metrics export.
type TelemetryConfig struct {
	LogLevel  string
	LogFormat string

	OtelEnabled   bool
	OtelProtocol  string
	SamplingRatio float64
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Enabled reports whether a redis address was configured.
func (c RedisConfig) Enabled() bool {
	return strings.TrimSpace(c.Addr) != ""
}

type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	Currency      string
}

type CreditConfig struct {
	// MaxRetries bounds the retries of a ledger operation after a version conflict.
	MaxRetries int
}

type GenerationConfig struct {
	RatePerMinute float64
	Burst         int
	// InFlightTTL bounds how long a per-user generation lock is held.
	InFlightTTL time.Duration
	Timeout     time.Duration
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:           getenv("APP_SERVICE", "thinktest"),
		AppVersion:        getenv("APP_VERSION", "0.1.0"),
		Environment:       getenv("ENVIRONMENT", "development"),
		HTTPAddr:          getenv("HTTP_ADDR", ":8080"),
		OTLPEndpoint:      strings.TrimSpace(getenv("OTEL_EXPORTER_OTLP_ENDPOINT", getenv("OTLP_ENDPOINT", "localhost:4317"))),
		Telemetry: TelemetryConfig{
			LogLevel:      strings.ToLower(strings.TrimSpace(getenv("LOG_LEVEL", "info"))),
			LogFormat:     strings.ToLower(strings.TrimSpace(getenv("LOG_FORMAT", "json"))),
			OtelEnabled:   getenvBool("OTEL_ENABLED", true),
			OtelProtocol:  strings.ToLower(strings.TrimSpace(getenv("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc"))),
			SamplingRatio: getenvFloat("OTEL_SAMPLING_RATIO", 0.1),
		},
		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "thinktest"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 25),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),
		Redis: RedisConfig{
			Addr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
			Password: getenv("REDIS_PASSWORD", ""),
			DB:       getenvInt("REDIS_DB", 0),
		},
		Stripe: StripeConfig{
			SecretKey:     strings.TrimSpace(getenv("STRIPE_SECRET_KEY", "")),
			WebhookSecret: strings.TrimSpace(getenv("STRIPE_WEBHOOK_SECRET", "")),
			Currency:      strings.ToLower(strings.TrimSpace(getenv("STRIPE_CURRENCY", "usd"))),
		},
		Credit: CreditConfig{
			MaxRetries: getenvInt("CREDIT_MAX_RETRIES", 3),
		},
		Generation: GenerationConfig{
			RatePerMinute: getenvFloat("GENERATION_RATE_PER_MINUTE", 10),
			Burst:         getenvInt("GENERATION_BURST", 5),
			InFlightTTL:   time.Duration(getenvInt("GENERATION_INFLIGHT_TTL_SECONDS", 120)) * time.Second,
			Timeout:       time.Duration(getenvInt("GENERATION_TIMEOUT_SECONDS", 90)) * time.Second,
		},
		ProviderKeySecret: strings.TrimSpace(getenv("PROVIDER_KEY_SECRET", "")),
		OpenAIAPIKey:      strings.TrimSpace(getenv("OPENAI_API_KEY", "")),
		AnthropicAPIKey:   strings.TrimSpace(getenv("ANTHROPIC_API_KEY", "")),
		GeminiAPIKey:      strings.TrimSpace(getenv("GEMINI_API_KEY", "")),
		AdminAPIToken:     strings.TrimSpace(getenv("ADMIN_API_TOKEN", "")),
		SupportAPIToken:   strings.TrimSpace(getenv("SUPPORT_API_TOKEN", "")),
		ReceiptIssuer:     strings.TrimSpace(getenv("RECEIPT_ISSUER", "ThinkTest")),
		PricingConfigPath: strings.TrimSpace(getenv("PRICING_CONFIG_PATH", "")),
	}

	return cfg
}

func (c Config) IsProduction() bool {
	return c.Environment == "production"
}

// Debug enables verbose logging and gin debug mode outside deployed environments.
func (c Config) Debug() bool {
	if c.Telemetry.LogLevel == "debug" {
		return true
	}
	switch strings.ToLower(strings.TrimSpace(c.Environment)) {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvBool(key string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return def
	}
}
