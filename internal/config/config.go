package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the sitegen progress server.
type Config struct {
	Server    ServerConfig
	Redis     RedisConfig
	RateLimit RateLimitConfig
	Progress  ProgressConfig
	WebSocket WebSocketConfig
	Demo      DemoConfig
}

type ServerConfig struct {
	Port int
	Env  string
}

// RedisConfig is optional: with an empty URL the producer API is not rate limited.
type RedisConfig struct {
	URL string
}

type RateLimitConfig struct {
	RequestsPerMinute int
}

type ProgressConfig struct {
	ThrottleWindow  time.Duration
	RetentionWindow time.Duration
}

type WebSocketConfig struct {
	SendBuffer        int
	MessagesPerSecond float64
	WriteTimeout      time.Duration
}

type DemoConfig struct {
	Enabled   bool
	StepDelay time.Duration
}

var validEnvs = map[string]bool{
	"development": true,
	"staging":     true,
	"production":  true,
}

// Load reads configuration from environment variables and returns a validated Config.
// If SITEGEN_ENV_FILE names a .env file it is loaded first; variables already set in
// the environment take precedence over the file.
func Load() (*Config, error) {
	if path := os.Getenv("SITEGEN_ENV_FILE"); path != "" {
		if err := godotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load env file %q: %w", path, err)
		}
	}

	env := envString("SITEGEN_ENV", "development")
	cfg := &Config{
		Server: ServerConfig{
			Port: envInt("SITEGEN_PORT", 8080),
			Env:  env,
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: envInt("RATE_LIMIT_PER_MINUTE", 120),
		},
		Progress: ProgressConfig{
			ThrottleWindow:  envDuration("PROGRESS_THROTTLE_WINDOW", 500*time.Millisecond),
			RetentionWindow: envDuration("PROGRESS_RETENTION_WINDOW", 30*time.Second),
		},
		WebSocket: WebSocketConfig{
			SendBuffer:        envInt("WS_SEND_BUFFER", 64),
			MessagesPerSecond: envFloat("WS_MESSAGES_PER_SECOND", 20),
			WriteTimeout:      envDuration("WS_WRITE_TIMEOUT", 10*time.Second),
		},
		Demo: DemoConfig{
			Enabled:   envBool("DEMO_PIPELINE_ENABLED", env != "production"),
			StepDelay: envDuration("DEMO_STEP_DELAY", 750*time.Millisecond),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("SITEGEN_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}
	if !validEnvs[c.Server.Env] {
		return fmt.Errorf("SITEGEN_ENV must be one of development, staging, production; got %q", c.Server.Env)
	}

	if c.Redis.URL != "" &&
		!strings.HasPrefix(c.Redis.URL, "redis://") && !strings.HasPrefix(c.Redis.URL, "rediss://") {
		return fmt.Errorf("REDIS_URL must start with redis:// or rediss://, got %q", c.Redis.URL)
	}

	if c.Progress.ThrottleWindow <= 0 {
		return fmt.Errorf("PROGRESS_THROTTLE_WINDOW must be positive")
	}
	if c.Progress.RetentionWindow <= 0 {
		return fmt.Errorf("PROGRESS_RETENTION_WINDOW must be positive")
	}

	if c.WebSocket.SendBuffer <= 0 {
		return fmt.Errorf("WS_SEND_BUFFER must be positive, got %d", c.WebSocket.SendBuffer)
	}
	if c.WebSocket.MessagesPerSecond <= 0 {
		return fmt.Errorf("WS_MESSAGES_PER_SECOND must be positive")
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func envBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
