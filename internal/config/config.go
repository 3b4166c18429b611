// Package config reads process settings from the environment.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/jason-s-yu/coderoom/internal/database"
)

// Store backends.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

type Config struct {
	Port string
	// Store picks the room store, "memory" or "postgres".
	Store    string
	Postgres database.Options

	// RedisAddr enables shared presence and the event queue when set.
	RedisAddr  string
	RedisDB    int
	EventQueue string

	JudgeURL   string
	JudgeToken string

	LockTimeout  time.Duration
	TickInterval time.Duration
	RoundTicks   int
	PresenceTTL  time.Duration

	TokenTTL       string
	PrivateKeyPath string
	PublicKeyPath  string
	HistorianBatch int
	HistorianFlush time.Duration
	LogLevel       string
}

// Load reads every setting, falling back to defaults.
func Load() Config {
	return Config{
		Port:  getEnv("PORT", "8080"),
		Store: getEnv("STORE", StoreMemory),
		Postgres: database.Options{
			User:     getEnv("POSTGRES_USER", "postgres"),
			Password: getEnv("POSTGRES_PASSWORD", ""),
			Host:     getEnv("PG_HOST", "localhost"),
			Port:     getEnv("PG_PORT", "5432"),
			Database: getEnv("PG_DATABASE", "coderoom"),
		},
		RedisAddr:      getEnv("REDIS_ADDR", ""),
		RedisDB:        getEnvInt("REDIS_DB", 0),
		EventQueue:     getEnv("EVENT_QUEUE_NAME", "coderoom_events"),
		JudgeURL:       getEnv("JUDGE_URL", "http://localhost:9000"),
		JudgeToken:     getEnv("JUDGE_TOKEN", ""),
		LockTimeout:    getEnvDuration("LOCK_TIMEOUT", 5*time.Second),
		TickInterval:   getEnvDuration("TICK_INTERVAL", time.Second),
		RoundTicks:     getEnvInt("ROUND_TICKS", 10),
		PresenceTTL:    getEnvDuration("PRESENCE_TTL", 24*time.Hour),
		TokenTTL:       getEnv("TOKEN_EXPIRE_TIME", "24h"),
		PrivateKeyPath: getEnv("TOKEN_PRIVATE_KEY", ""),
		PublicKeyPath:  getEnv("TOKEN_PUBLIC_KEY", ""),
		HistorianBatch: getEnvInt("HISTORIAN_BATCH_SIZE", 20),
		HistorianFlush: time.Duration(getEnvInt("HISTORIAN_FLUSH_MS", 500)) * time.Millisecond,
		LogLevel:       getEnv("LOG_LEVEL", "info"),
	}
}

// getEnv retrieves an environment variable's value or returns a default.
func getEnv(key, defVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defVal
}

// getEnvInt retrieves an integer value from an environment variable or returns a default value.
func getEnvInt(key string, defVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defVal
	}
	return i
}

func getEnvDuration(key string, defVal time.Duration) time.Duration {
	d, err := time.ParseDuration(os.Getenv(key))
	if err != nil || d <= 0 {
		return defVal
	}
	return d
}
