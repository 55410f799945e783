package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	StoreDriver         string `yaml:"store_driver"`
	DatabasePath        string `yaml:"database_path"`
	DatabaseURL         string `yaml:"database_url"`
	RedisAddr           string `yaml:"redis_addr"`
	RedisPassword       string `yaml:"redis_password"`
	RedisDB             int    `yaml:"redis_db"`
	SessionBackend      string `yaml:"session_backend"`
	PromotionTTLSeconds int    `yaml:"promotion_ttl_seconds"`
	LogLevel            string `yaml:"log_level"`
	LogFormat           string `yaml:"log_format"`
	MetricsFile         string `yaml:"metrics_file"`
}

func Default() Config {
	return Config{
		StoreDriver:         "sqlite",
		DatabasePath:        "data/loja.db",
		SessionBackend:      "store",
		PromotionTTLSeconds: 600,
		LogLevel:            "info",
		LogFormat:           "text",
	}
}

// Load builds the configuration from defaults, then the YAML file named by
// LOJA_CONFIG if set, then the environment. A .env file in the working
// directory is loaded into the environment first when present.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := Default()
	if path := os.Getenv("LOJA_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", strconv.Itoa(cfg.RedisDB)))
	if err != nil {
		redisDB = cfg.RedisDB
	}
	ttl, err := strconv.Atoi(getEnv("PROMOTION_TTL_SECONDS", strconv.Itoa(cfg.PromotionTTLSeconds)))
	if err != nil || ttl < 1 {
		ttl = 600
	}

	cfg.StoreDriver = strings.ToLower(getEnv("LOJA_STORE_DRIVER", cfg.StoreDriver))
	cfg.DatabasePath = getEnv("LOJA_DATABASE_PATH", cfg.DatabasePath)
	cfg.DatabaseURL = getEnv("DATABASE_URL", cfg.DatabaseURL)
	cfg.RedisAddr = getEnv("REDIS_ADDR", cfg.RedisAddr)
	cfg.RedisPassword = getEnv("REDIS_PASSWORD", cfg.RedisPassword)
	cfg.RedisDB = redisDB
	cfg.SessionBackend = strings.ToLower(getEnv("LOJA_SESSION_BACKEND", cfg.SessionBackend))
	cfg.PromotionTTLSeconds = ttl
	cfg.LogLevel = strings.ToLower(getEnv("LOG_LEVEL", cfg.LogLevel))
	cfg.LogFormat = strings.ToLower(getEnv("LOG_FORMAT", cfg.LogFormat))
	cfg.MetricsFile = getEnv("LOJA_METRICS_FILE", cfg.MetricsFile)

	return cfg, nil
}

func (c Config) Validate() error {
	switch c.StoreDriver {
	case "sqlite":
		if strings.TrimSpace(c.DatabasePath) == "" {
			return fmt.Errorf("LOJA_DATABASE_PATH is required for the sqlite store")
		}
	case "postgres":
		if strings.TrimSpace(c.DatabaseURL) == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres store")
		}
	default:
		return fmt.Errorf("unknown store driver %q (want sqlite or postgres)", c.StoreDriver)
	}

	switch c.SessionBackend {
	case "store", "none":
	case "redis":
		if c.RedisAddr == "" {
			return fmt.Errorf("REDIS_ADDR is required for the redis session backend")
		}
	default:
		return fmt.Errorf("unknown session backend %q (want store, redis or none)", c.SessionBackend)
	}

	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("unknown log format %q (want text or json)", c.LogFormat)
	}
	return nil
}

func (c Config) PromotionTTL() time.Duration {
	return time.Duration(c.PromotionTTLSeconds) * time.Second
}

// NewLogger builds the process logger writing to w.
func (c Config) NewLogger(w io.Writer) *slog.Logger {
	level, err := parseLevel(c.LogLevel)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("unknown log level %q", s)
	}
	return level, nil
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}
