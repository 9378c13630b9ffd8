package config

import (
	"os"      // For environment variables
	"strconv" // For string to int conversion
	"time"    // For duration settings

	"github.com/joho/godotenv" // For loading .env files
)

// Config holds the application configuration
type Config struct {
	AppPort    string // Application port
	DBUser     string // Database user
	DBPassword string // Database password
	DBHost     string // Database host
	DBPort     string // Database port
	DBName     string // Database name
	JWTSecret  string // JWT secret key
	RedisAddr  string // Redis server address
	RedisPass  string // Redis password
	RedisDB    int    // Redis database number
	IsProd     bool   // Is production environment
	LogLevel   string // logrus level name
	LogFormat  string // "text" or "json"

	ProcessorBaseURL       string        // Payment processor API base URL
	ProcessorSecretKey     string        // Bearer key for the processor API
	ProcessorWebhookSecret string        // Shared secret for webhook signatures
	ProcessorTimeout       time.Duration // Per-call timeout; a timeout leaves the transaction pending
	DefaultCurrency        string        // Currency used when a request omits one

	ReconcileSchedule string        // Cron expression for the reconciler
	ReconcileBatch    int           // Pending transactions polled per sweep
	ReconcileMinAge   time.Duration // Skip transactions younger than this
	EventsChannel     string        // Redis pub/sub channel for domain events
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	_ = godotenv.Load() // Load .env file if present
	redisDB, _ := strconv.Atoi(os.Getenv("REDIS_DB"))
	return &Config{
		AppPort:    getEnv("APP_PORT", "8080"),     // Application port
		DBUser:     os.Getenv("DB_USER"),           // Database user
		DBPassword: os.Getenv("DB_PASSWORD"),       // Database password
		DBHost:     getEnv("DB_HOST", "127.0.0.1"), // Database host
		DBPort:     getEnv("DB_PORT", "3306"),      // Database port
		DBName:     os.Getenv("DB_NAME"),           // Database name
		JWTSecret:  os.Getenv("JWT_SECRET"),        // JWT secret key
		RedisAddr:  os.Getenv("REDIS_ADDR"),        // Redis server address
		RedisPass:  os.Getenv("REDIS_PASS"),        // Redis password
		RedisDB:    redisDB,                        // Redis database number
		IsProd:     os.Getenv("IS_PROD") == "true", // Is production environment
		LogLevel:   getEnv("LOG_LEVEL", "info"),    // Log level
		LogFormat:  getEnv("LOG_FORMAT", "text"),   // Log format

		ProcessorBaseURL:       os.Getenv("PROCESSOR_BASE_URL"),                  // Processor API
		ProcessorSecretKey:     os.Getenv("PROCESSOR_SECRET_KEY"),                // Processor API key
		ProcessorWebhookSecret: os.Getenv("PROCESSOR_WEBHOOK_SECRET"),            // Webhook secret
		ProcessorTimeout:       getDuration("PROCESSOR_TIMEOUT", 15*time.Second), // Processor timeout
		DefaultCurrency:        getEnv("DEFAULT_CURRENCY", "RWF"),                // Default currency
		ReconcileSchedule:      getEnv("RECONCILE_SCHEDULE", "@every 1m"),        // Reconciler schedule
		ReconcileBatch:         getInt("RECONCILE_BATCH", 50),                    // Sweep batch size
		ReconcileMinAge:        getDuration("RECONCILE_MIN_AGE", 2*time.Minute),  // Sweep minimum age
		EventsChannel:          getEnv("EVENTS_CHANNEL", "backoffice_events"),    // Events channel
	}
}

// DSN returns the MySQL Data Source Name
func (c *Config) DSN() string {
	return c.DBUser + ":" + c.DBPassword + "@tcp(" + c.DBHost + ":" + c.DBPort + ")/" + c.DBName + "?parseTime=true"
}

// getEnv returns the variable or a fallback when unset
func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getInt parses an integer variable, falling back on absence or error
func getInt(key string, fallback int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil && v > 0 {
		return v
	}
	return fallback
}

// getDuration parses a Go duration variable, falling back on absence or error
func getDuration(key string, fallback time.Duration) time.Duration {
	if v, err := time.ParseDuration(os.Getenv(key)); err == nil && v > 0 {
		return v
	}
	return fallback
}
