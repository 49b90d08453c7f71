package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	ServerPort string
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	RedisURL   string
	JWTSecret  string

	// LogEnv selects the zap profile: "dev" or "prod".
	LogEnv string

	// EditWindow bounds content edits by the sender; 0 disables the limit.
	EditWindow time.Duration
	// MoveWindow bounds topic/channel moves for non-moderators; 0 disables
	// the limit.
	MoveWindow time.Duration

	MarkAllReadBatchSize int
}

func Load() *Config {
	return &Config{
		ServerPort: getEnv("SERVER_PORT", "8080"),
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "agora"),
		DBPassword: getEnv("DB_PASSWORD", "agora_dev_password"),
		DBName:     getEnv("DB_NAME", "agora"),
		RedisURL:   getEnv("REDIS_URL", "redis://localhost:6379"),
		JWTSecret:  getEnv("JWT_SECRET", "dev-secret-change-me"),

		LogEnv: getEnv("LOG_ENV", "dev"),

		EditWindow:           getEnvSeconds("EDIT_WINDOW_SECONDS", 600),
		MoveWindow:           getEnvSeconds("MOVE_WINDOW_SECONDS", 7*24*3600),
		MarkAllReadBatchSize: getEnvInt("MARK_ALL_READ_BATCH_SIZE", 1000),
	}
}

func getEnv(key, fallback string) string {
	val, exists := os.LookupEnv(key)

	if exists {
		return val
	}

	return fallback
}

func getEnvInt(key string, fallback int) int {
	val, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}

	n, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}

	return n
}

func getEnvSeconds(key string, fallback int) time.Duration {
	return time.Duration(getEnvInt(key, fallback)) * time.Second
}
