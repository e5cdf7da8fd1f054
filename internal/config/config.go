package config

import (
	"errors"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App      AppConfig
	Database DatabaseConfig
	Auth     AuthConfig
	Redis    RedisConfig
	Realtime RealtimeConfig
}

type AppConfig struct {
	Addr        string
	Environment string
	LogFilePath string
	ClientURL   string // Allowed WebSocket origin
}

type DatabaseConfig struct {
	DSN string
}

type AuthConfig struct {
	JWTSecret string
	TokenTTL  time.Duration
}

type RedisConfig struct {
	Addr string // Empty disables the presence mirror
}

type RealtimeConfig struct {
	PresenceDebounce  time.Duration
	NotifyConcurrency int
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, using system environment")
	}

	return &Config{
		App: AppConfig{
			Addr:        getEnv("APP_ADDR", ":5000"),
			Environment: getEnv("GO_ENV", "development"),
			LogFilePath: getEnv("LOG_FILE_PATH", "taskhub.log"),
			ClientURL:   getEnv("CLIENT_URL", "http://localhost:5173"),
		},
		Database: DatabaseConfig{
			DSN: getEnv("DB_DSN", ""),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", ""),
			TokenTTL:  getEnvAsDuration("TOKEN_TTL", 24*time.Hour),
		},
		Redis: RedisConfig{
			Addr: getEnv("REDIS_ADDR", ""),
		},
		Realtime: RealtimeConfig{
			PresenceDebounce:  getEnvAsDuration("PRESENCE_DEBOUNCE", 100*time.Millisecond),
			NotifyConcurrency: getEnvAsInt("NOTIFY_CONCURRENCY", 8),
		},
	}
}

// Validate reports the first required setting that is missing.
func (c *Config) Validate() error {
	if c.Database.DSN == "" {
		return errors.New("DB_DSN is not set")
	}
	if c.Auth.JWTSecret == "" {
		return errors.New("JWT_SECRET is not set")
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	strValue := getEnv(key, "")
	if value, err := strconv.Atoi(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	strValue := getEnv(key, "")
	if value, err := time.ParseDuration(strValue); err == nil {
		return value
	}
	return fallback
}
