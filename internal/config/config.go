package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

const devJWTSecret = "dev-secret-change-in-production"

type Config struct {
	Env      string
	LogLevel string
	HTTP     HTTPConfig
	Mongo    MongoConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	JWT      JWTConfig
	Cart     CartConfig
}

type HTTPConfig struct {
	Port            uint16
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
	MaxBodyBytes    int64
	CORSOrigins     []string
}

type MongoConfig struct {
	URI      string
	Database string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	// Disabled runs without a cache.
	Disabled bool
}

type KafkaConfig struct {
	// Brokers is empty when publishing is disabled.
	Brokers []string
	Topic   string
}

type JWTConfig struct {
	Secret string
}

type CartConfig struct {
	CacheTTL       time.Duration
	AbandonedAfter time.Duration
	WriteRetries   int
}

// Load reads .env (current directory, then up to two parents) and the process
// environment.
func Load() (*Config, error) {
	loadDotEnv()
	return fromViper(newViper())
}

func loadDotEnv() {
	if err := godotenv.Load(); err == nil {
		return
	}
	dir, _ := os.Getwd()
	for i := 0; i < 2; i++ {
		dir = filepath.Join(dir, "..")
		if err := godotenv.Load(filepath.Join(dir, ".env")); err == nil {
			return
		}
	}
	log.Warn().Msg(".env file not found, using environment variables and defaults")
}

func newViper() *viper.Viper {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("ENV", "dev")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("HTTP_PORT", 8080)
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("SHUTDOWN_TIMEOUT", "15s")
	v.SetDefault("MAX_REQUEST_BODY_SIZE", 1<<20)
	v.SetDefault("CORS_ORIGINS", "")
	v.SetDefault("MONGO_URI", "mongodb://localhost:27017")
	v.SetDefault("MONGO_DB_NAME", "grocery")
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_DISABLED", false)
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("KAFKA_CART_TOPIC", "cart-events")
	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("CART_CACHE_TTL", "15m")
	v.SetDefault("ABANDONED_AFTER", "24h")
	v.SetDefault("CART_WRITE_RETRIES", 3)

	return v
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Env:      v.GetString("ENV"),
		LogLevel: strings.ToLower(v.GetString("LOG_LEVEL")),
		HTTP: HTTPConfig{
			Port:            v.GetUint16("HTTP_PORT"),
			RequestTimeout:  v.GetDuration("REQUEST_TIMEOUT"),
			ShutdownTimeout: v.GetDuration("SHUTDOWN_TIMEOUT"),
			MaxBodyBytes:    v.GetInt64("MAX_REQUEST_BODY_SIZE"),
			CORSOrigins:     splitList(v.GetString("CORS_ORIGINS")),
		},
		Mongo: MongoConfig{
			URI:      v.GetString("MONGO_URI"),
			Database: v.GetString("MONGO_DB_NAME"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("REDIS_ADDR"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
			Disabled: v.GetBool("REDIS_DISABLED"),
		},
		Kafka: KafkaConfig{
			Brokers: splitList(v.GetString("KAFKA_BROKERS")),
			Topic:   v.GetString("KAFKA_CART_TOPIC"),
		},
		JWT: JWTConfig{
			Secret: v.GetString("JWT_SECRET"),
		},
		Cart: CartConfig{
			CacheTTL:       v.GetDuration("CART_CACHE_TTL"),
			AbandonedAfter: v.GetDuration("ABANDONED_AFTER"),
			WriteRetries:   v.GetInt("CART_WRITE_RETRIES"),
		},
	}

	if cfg.Env != "dev" && cfg.Env != "prod" {
		log.Warn().Str("env", cfg.Env).Msg("invalid environment, using prod")
		cfg.Env = "prod"
	}

	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		log.Warn().Str("value", cfg.LogLevel).Msg("invalid log level, using info")
		cfg.LogLevel = "info"
	}

	if cfg.JWT.Secret == "" {
		if cfg.Env == "prod" {
			return nil, errors.New("JWT_SECRET must be set in production environment")
		}
		cfg.JWT.Secret = devJWTSecret
	}

	if cfg.HTTP.Port == 0 {
		return nil, fmt.Errorf("invalid HTTP_PORT %q", v.GetString("HTTP_PORT"))
	}
	if cfg.Cart.WriteRetries < 1 {
		cfg.Cart.WriteRetries = 1
	}
	if cfg.Cart.AbandonedAfter <= 0 {
		cfg.Cart.AbandonedAfter = 24 * time.Hour
	}
	if cfg.HTTP.MaxBodyBytes <= 0 {
		cfg.HTTP.MaxBodyBytes = 1 << 20
	}

	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
