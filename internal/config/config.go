package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Vendors  VendorConfig
	Pipeline PipelineConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port string
	Host string
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// RedisConfig holds Redis configuration for the run lock
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// KafkaConfig holds Kafka configuration
type KafkaConfig struct {
	Brokers       []string
	EventsTopic   string
	RequestsTopic string
	GroupID       string
}

// VendorConfig holds API keys and rate limits for vendor clients
type VendorConfig struct {
	FMPAPIKey           string
	FMPRequestsPerSec   float64
	AlphaVantageAPIKey  string
	AlphaVantageBudget  int
	YahooRequestsPerSec float64
}

// PipelineConfig holds tuning knobs for the batch optimizer,
// checkpointing, and retention
type PipelineConfig struct {
	Workers             int
	InitialChunkSize    int
	MinChunkSize        int
	MaxChunkSize        int
	TargetChunkDuration time.Duration
	MaxAttempts         int
	RetryBaseDelay      time.Duration
	StalenessWindow     time.Duration
	CheckpointDir       string
	CheckpointEvery     int
	CheckpointMaxAge    time.Duration
	MetricsDir          string
	LockTTL             time.Duration
	PriceRetention      time.Duration
	RunRetention        time.Duration
	DaysAhead           int
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8080"),
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "dividendscout"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Kafka: KafkaConfig{
			Brokers:       strings.Split(getEnv("KAFKA_BROKERS", "localhost:9092"), ","),
			EventsTopic:   getEnv("KAFKA_EVENTS_TOPIC", "pipeline-events"),
			RequestsTopic: getEnv("KAFKA_REQUESTS_TOPIC", "symbol-requests"),
			GroupID:       getEnv("KAFKA_GROUP_ID", "dividend-pipeline"),
		},
		Vendors: VendorConfig{
			FMPAPIKey:           getEnv("FMP_API_KEY", ""),
			FMPRequestsPerSec:   getEnvFloat("FMP_REQUESTS_PER_SEC", 5.0),
			AlphaVantageAPIKey:  getEnv("ALPHAVANTAGE_API_KEY", ""),
			AlphaVantageBudget:  getEnvInt("ALPHAVANTAGE_DAILY_BUDGET", 25),
			YahooRequestsPerSec: getEnvFloat("YAHOO_REQUESTS_PER_SEC", 2.0),
		},
		Pipeline: PipelineConfig{
			Workers:             getEnvInt("PIPELINE_WORKERS", 8),
			InitialChunkSize:    getEnvInt("PIPELINE_CHUNK_SIZE", 100),
			MinChunkSize:        getEnvInt("PIPELINE_MIN_CHUNK_SIZE", 10),
			MaxChunkSize:        getEnvInt("PIPELINE_MAX_CHUNK_SIZE", 500),
			TargetChunkDuration: getEnvDuration("PIPELINE_TARGET_CHUNK_DURATION", 5*time.Second),
			MaxAttempts:         getEnvInt("PIPELINE_MAX_ATTEMPTS", 3),
			RetryBaseDelay:      getEnvDuration("PIPELINE_RETRY_BASE_DELAY", time.Second),
			StalenessWindow:     getEnvDuration("PIPELINE_STALENESS_WINDOW", 18*time.Hour),
			CheckpointDir:       getEnv("PIPELINE_CHECKPOINT_DIR", "data/checkpoints"),
			CheckpointEvery:     getEnvInt("PIPELINE_CHECKPOINT_EVERY", 50),
			CheckpointMaxAge:    getEnvDuration("PIPELINE_CHECKPOINT_MAX_AGE", 7*24*time.Hour),
			MetricsDir:          getEnv("PIPELINE_METRICS_DIR", "data/metrics"),
			LockTTL:             getEnvDuration("PIPELINE_LOCK_TTL", 2*time.Hour),
			PriceRetention:      getEnvDuration("PIPELINE_PRICE_RETENTION", 5*365*24*time.Hour),
			RunRetention:        getEnvDuration("PIPELINE_RUN_RETENTION", 90*24*time.Hour),
			DaysAhead:           getEnvInt("PIPELINE_DAYS_AHEAD", 30),
		},
	}
}

// ConnectionString returns the PostgreSQL connection string
func (d *DatabaseConfig) ConnectionString() string {
	return "postgres://" + d.User + ":" + d.Password + "@" + d.Host + ":" + d.Port + "/" + d.DBName + "?sslmode=" + d.SSLMode
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
