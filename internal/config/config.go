package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/boddenberg/sales-pipeline-go/internal/domain"

	"github.com/joho/godotenv"
)

// DevJWTSecret is the JWT_SECRET fallback. Only the memory backend accepts it.
const DevJWTSecret = "pipeline-default-dev-secret-change-me"

// Store backends.
const (
	BackendMemory   = "memory"
	BackendSupabase = "supabase"
	BackendPostgres = "postgres"
)

// Config holds all application configuration.
// Values are loaded from environment variables with sensible defaults.
type Config struct {
	// Server
	Port     int
	LogLevel string

	// Store
	StoreBackend string

	// Supabase
	SupabaseURL        string
	SupabaseAnonKey    string
	SupabaseServiceKey string

	// Postgres
	DatabaseURL string
	DBMaxConns  int

	// HTTP client
	HTTPTimeout time.Duration

	// Resilience
	MaxRetries     int
	InitialBackoff time.Duration
	MaxConcurrency int

	// Cache
	CacheTTL time.Duration

	// Observability
	OTLPEndpoint string
	OTelEnabled  bool

	// Operator tokens (issued by the embedding application)
	JWTSecret string

	// Quote defaults
	VATPercent        float64
	QuoteValidityDays int
	QuotePaymentTerms string
	QuoteDeliveryTime string
	QuoteWarranty     string
}

// LoadDotEnv loads a .env file without overriding variables that are
// already set in the environment.
func LoadDotEnv(paths ...string) error {
	return godotenv.Load(paths...)
}

// Load reads configuration from environment variables with defaults.
func Load() *Config {
	return &Config{
		Port:     getEnvInt("PORT", 8080),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		StoreBackend: getEnv("STORE_BACKEND", BackendSupabase),

		SupabaseURL:        getEnv("SUPABASE_URL", ""),
		SupabaseAnonKey:    getEnv("SUPABASE_ANON_KEY", ""),
		SupabaseServiceKey: getEnv("SUPABASE_SERVICE_ROLE_KEY", ""),

		DatabaseURL: getEnv("DATABASE_URL", ""),
		DBMaxConns:  getEnvInt("DB_MAX_CONNS", 10),

		HTTPTimeout: getEnvDuration("HTTP_TIMEOUT", 10*time.Second),

		MaxRetries:     getEnvInt("MAX_RETRIES", 3),
		InitialBackoff: getEnvDuration("INITIAL_BACKOFF", 100*time.Millisecond),
		MaxConcurrency: getEnvInt("MAX_CONCURRENCY", 20),

		CacheTTL: getEnvDuration("CACHE_TTL", 30*time.Second),

		OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		OTelEnabled:  getEnvBool("OTEL_ENABLED", false),

		JWTSecret: getEnv("JWT_SECRET", DevJWTSecret),

		VATPercent:        getEnvFloat("VAT_PERCENT", 24),
		QuoteValidityDays: getEnvInt("QUOTE_VALIDITY_DAYS", 30),
		QuotePaymentTerms: getEnv("QUOTE_PAYMENT_TERMS", "40% on order, 60% on installation"),
		QuoteDeliveryTime: getEnv("QUOTE_DELIVERY_TIME", "6-8 weeks from order confirmation"),
		QuoteWarranty:     getEnv("QUOTE_WARRANTY", "5 years on cabinets, 2 years on hardware"),
	}
}

// Validate checks values that would otherwise fail deep inside a request.
func (c *Config) Validate() error {
	if c.VATPercent < 0 || c.VATPercent > 100 {
		return fmt.Errorf("VAT_PERCENT must be between 0 and 100, got %v", c.VATPercent)
	}
	if c.QuoteValidityDays <= 0 {
		return fmt.Errorf("QUOTE_VALIDITY_DAYS must be positive, got %d", c.QuoteValidityDays)
	}
	switch c.StoreBackend {
	case BackendMemory:
	case BackendSupabase:
		if c.SupabaseURL == "" || c.SupabaseServiceKey == "" {
			return fmt.Errorf("STORE_BACKEND=supabase requires SUPABASE_URL and SUPABASE_SERVICE_ROLE_KEY")
		}
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("STORE_BACKEND=postgres requires DATABASE_URL")
		}
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend)
	}
	if c.StoreBackend != BackendMemory && (c.JWTSecret == "" || c.JWTSecret == DevJWTSecret) {
		return fmt.Errorf("STORE_BACKEND=%s requires JWT_SECRET to be set to a private value", c.StoreBackend)
	}
	return nil
}

// QuoteDefaults returns the terms applied to new quotes.
func (c *Config) QuoteDefaults() domain.QuoteDefaults {
	return domain.QuoteDefaults{
		VATPercent:   c.VATPercent,
		ValidityDays: c.QuoteValidityDays,
		PaymentTerms: c.QuotePaymentTerms,
		DeliveryTime: c.QuoteDeliveryTime,
		Warranty:     c.QuoteWarranty,
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
