package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env         string
	ListenAddr  string
	DatabaseURL string
	SeedFile    string

	ScanWorkers      int
	ScanPollInterval time.Duration
	ScanStepInterval time.Duration

	RabbitMQURL      string
	RabbitMQExchange string
	RabbitMQQueue    string

	ViewCacheSize int
	LogLevel      string
	LogFormat     string
}

func getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

// Load reads configuration from the environment after applying an optional
// .env file. An empty DATABASE_URL selects the in-memory store.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Env:              getenv("APP_ENV", "development"),
		ListenAddr:       getenv("LISTEN_ADDR", ":8080"),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		SeedFile:         os.Getenv("SEED_FILE"),
		ScanWorkers:      getenvInt("SCAN_WORKERS", 2),
		ScanPollInterval: getenvDuration("SCAN_POLL_INTERVAL", 500*time.Millisecond),
		ScanStepInterval: getenvDuration("SCAN_STEP_INTERVAL", 150*time.Millisecond),
		RabbitMQURL:      os.Getenv("RABBITMQ_URL"),
		RabbitMQExchange: getenv("RABBITMQ_EXCHANGE", "cybersentinel.asm"),
		RabbitMQQueue:    getenv("RABBITMQ_QUEUE", "asm.rescans"),
		ViewCacheSize:    getenvInt("VIEW_CACHE_SIZE", 1024),
		LogLevel:         getenv("LOG_LEVEL", "info"),
		LogFormat:        getenv("LOG_FORMAT", "text"),
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if c.ScanWorkers < 0 {
		return fmt.Errorf("SCAN_WORKERS must be >= 0, got %d", c.ScanWorkers)
	}
	if c.ScanPollInterval <= 0 || c.ScanStepInterval <= 0 {
		return fmt.Errorf("scan intervals must be positive")
	}
	if c.ViewCacheSize < 1 {
		return fmt.Errorf("VIEW_CACHE_SIZE must be >= 1, got %d", c.ViewCacheSize)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("LOG_FORMAT must be text or json, got %q", c.LogFormat)
	}
	return nil
}

func (c Config) InMemory() bool { return c.DatabaseURL == "" }

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		var out int
		_, err := fmt.Sscanf(v, "%d", &out)
		if err == nil {
			return out
		}
	}
	return def
}

func getenvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
