package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server       ServerConfig
	DB           DatabaseConfig
	Logging      LoggingConfig
	AI           AIConfig
	Connectivity ConnectivityConfig
	Sync         SyncConfig
	Intel        IntelConfig
	Worker       WorkerConfig
	Security     SecurityConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	RateLimitRPS int
	ShareBaseURL string
}

type DatabaseConfig struct {
	Path string
	// LeaseTTL bounds how long a crashed writer blocks the next one.
	LeaseTTL time.Duration
}

type LoggingConfig struct {
	Level  string
	Format string
}

// AIConfig configures the hosted generative-AI endpoint. An empty APIKey
// switches moderation and intel into their degraded modes.
type AIConfig struct {
	APIKey            string
	Model             string
	BaseURL           string
	ModerationTimeout time.Duration
	RequestTimeout    time.Duration
}

type ConnectivityConfig struct {
	ProbeURL      string
	ProbeTimeout  time.Duration
	CheckAddr     string
	WatchInterval time.Duration
}

type SyncConfig struct {
	Auto bool
}

type IntelConfig struct {
	PollInterval      time.Duration
	BroadcastInterval time.Duration
	BroadcastChannels []string
}

type WorkerConfig struct {
	Count      int
	BufferSize int
}

type SecurityConfig struct {
	AdminKey string
}

func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:         getEnv("SERVER_HOST", "localhost"),
			Port:         getEnvInt("SERVER_PORT", 8080),
			RateLimitRPS: getEnvInt("RATE_LIMIT_RPS", 10),
			ShareBaseURL: getEnv("SHARE_BASE_URL", "http://localhost:8080/"),
		},
		DB: DatabaseConfig{
			Path:     getEnv("DB_PATH", "./data/civdef-map.db"),
			LeaseTTL: getEnvDuration("DB_LEASE_TTL", 30*time.Second),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		AI: AIConfig{
			APIKey:            getEnv("GEMINI_API_KEY", ""),
			Model:             getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
			BaseURL:           getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com"),
			ModerationTimeout: getEnvDuration("MODERATION_TIMEOUT", 15*time.Second),
			RequestTimeout:    getEnvDuration("AI_REQUEST_TIMEOUT", 30*time.Second),
		},
		Connectivity: ConnectivityConfig{
			ProbeURL:      getEnv("CONNECTIVITY_PROBE_URL", "https://www.google.com/favicon.ico"),
			ProbeTimeout:  getEnvDuration("CONNECTIVITY_PROBE_TIMEOUT", 5*time.Second),
			CheckAddr:     getEnv("CONNECTIVITY_CHECK_ADDR", ""),
			WatchInterval: getEnvDuration("CONNECTIVITY_WATCH_INTERVAL", 10*time.Second),
		},
		Sync: SyncConfig{
			Auto: getEnvBool("SYNC_AUTO", true),
		},
		Intel: IntelConfig{
			PollInterval:      getEnvDuration("INTEL_POLL_INTERVAL", 30*time.Minute),
			BroadcastInterval: getEnvDuration("BROADCAST_INTERVAL", 120*time.Second),
			BroadcastChannels: getEnvList("BROADCAST_CHANNELS", []string{"civil"}),
		},
		Worker: WorkerConfig{
			Count:      getEnvInt("WORKER_COUNT", 2),
			BufferSize: getEnvInt("WORKER_BUFFER_SIZE", 20),
		},
		Security: SecurityConfig{
			AdminKey: getEnv("ADMIN_KEY", ""),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.RateLimitRPS < 1 {
		return fmt.Errorf("rate limit must be at least 1 req/s, got %d", c.Server.RateLimitRPS)
	}

	if c.DB.LeaseTTL < 3*time.Second {
		return fmt.Errorf("database lease TTL must be at least 3 seconds")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}
	if c.Logging.Format != "json" && c.Logging.Format != "text" {
		return fmt.Errorf("invalid log format: %s", c.Logging.Format)
	}

	if c.AI.ModerationTimeout <= 0 {
		return fmt.Errorf("moderation timeout must be positive")
	}
	if c.Connectivity.WatchInterval < time.Second {
		return fmt.Errorf("connectivity watch interval must be at least 1 second")
	}

	if c.Intel.PollInterval < time.Minute {
		return fmt.Errorf("intel poll interval must be at least 1 minute")
	}
	if c.Intel.BroadcastInterval < 10*time.Second {
		return fmt.Errorf("broadcast interval must be at least 10 seconds")
	}

	if c.Worker.Count < 1 {
		return fmt.Errorf("worker count must be at least 1")
	}

	return nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
