package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	App     AppConfig     `toml:"app"`
	Log     LogConfig     `toml:"log"`
	Predict PredictConfig `toml:"predict"`
	Upload  UploadConfig  `toml:"upload"`
	Form    FormConfig    `toml:"form"`
	Session SessionConfig `toml:"session"`
	Redis   RedisConfig   `toml:"redis"`
}

type AppConfig struct {
	Name    string `toml:"name"`
	Env     string `toml:"env"`
	Host    string `toml:"host"`
	Port    int    `toml:"port"`
	GinMode string `toml:"gin_mode"`
}

type LogConfig struct {
	Level string `toml:"level"`
}

// PredictConfig points at the remote classification service.
type PredictConfig struct {
	BaseURL        string `toml:"base_url"`
	Path           string `toml:"path"`
	TimeoutSeconds int    `toml:"timeout_seconds"` // 0 = no timeout
}

type UploadConfig struct {
	MaxBytes int64 `toml:"max_bytes"`
}

type FormConfig struct {
	ClearResultOnFailure bool `toml:"clear_result_on_failure"`
}

type SessionConfig struct {
	Backend     string `toml:"backend"` // memory | redis
	CookieName  string `toml:"cookie_name"`
	Secret      string `toml:"secret"`
	TTLMinutes  int    `toml:"ttl_minutes"`
	MaxSessions int    `toml:"max_sessions"`
}

type RedisConfig struct {
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
}

const (
	SessionBackendMemory = "memory"
	SessionBackendRedis  = "redis"
)

func Load() (*Config, error) {
	cfg := defaultConfig()

	configPath := getEnv("CONFIG_FILE", "configs/config.toml")
	if _, err := os.Stat(configPath); err == nil {
		if _, err := toml.DecodeFile(configPath, cfg); err != nil {
			return nil, fmt.Errorf("decode config file failed: %w", err)
		}
	}

	overrideByEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.Predict.BaseURL) == "" {
		return fmt.Errorf("predict.base_url is required")
	}
	switch c.Session.Backend {
	case SessionBackendMemory, SessionBackendRedis:
	default:
		return fmt.Errorf("unknown session backend %q", c.Session.Backend)
	}
	if c.Session.Secret == "" {
		return fmt.Errorf("session.secret is required")
	}
	return nil
}

func (c *Config) HTTPAddr() string {
	return fmt.Sprintf("%s:%d", c.App.Host, c.App.Port)
}

func (c *Config) PredictTimeout() time.Duration {
	if c.Predict.TimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(c.Predict.TimeoutSeconds) * time.Second
}

func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.Session.TTLMinutes) * time.Minute
}

func defaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Name:    "eyecheck-web",
			Env:     "dev",
			Host:    "0.0.0.0",
			Port:    3000,
			GinMode: "debug",
		},
		Log: LogConfig{
			Level: "info",
		},
		Predict: PredictConfig{
			BaseURL: "http://localhost:8000",
			Path:    "/predict",
		},
		Upload: UploadConfig{
			MaxBytes: 20 << 20,
		},
		Session: SessionConfig{
			Backend:     SessionBackendMemory,
			CookieName:  "eyecheck_session",
			Secret:      "change-me-in-production",
			TTLMinutes:  60,
			MaxSessions: 1024,
		},
		Redis: RedisConfig{
			Addr: "127.0.0.1:6379",
			DB:   0,
		},
	}
}

func overrideByEnv(cfg *Config) {
	cfg.App.Name = getEnv("APP_NAME", cfg.App.Name)
	cfg.App.Env = getEnv("APP_ENV", cfg.App.Env)
	cfg.App.Host = getEnv("APP_HOST", cfg.App.Host)
	cfg.App.Port = getEnvAsInt("APP_PORT", cfg.App.Port)
	cfg.App.GinMode = getEnv("GIN_MODE", cfg.App.GinMode)

	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)

	cfg.Predict.BaseURL = getEnv("PREDICT_BASE_URL", cfg.Predict.BaseURL)
	cfg.Predict.Path = getEnv("PREDICT_PATH", cfg.Predict.Path)
	cfg.Predict.TimeoutSeconds = getEnvAsInt("PREDICT_TIMEOUT_SECONDS", cfg.Predict.TimeoutSeconds)

	cfg.Upload.MaxBytes = int64(getEnvAsInt("UPLOAD_MAX_BYTES", int(cfg.Upload.MaxBytes)))

	cfg.Form.ClearResultOnFailure = getEnvAsBool("FORM_CLEAR_RESULT_ON_FAILURE", cfg.Form.ClearResultOnFailure)

	cfg.Session.Backend = getEnv("SESSION_BACKEND", cfg.Session.Backend)
	cfg.Session.CookieName = getEnv("SESSION_COOKIE_NAME", cfg.Session.CookieName)
	cfg.Session.Secret = getEnv("SESSION_SECRET", cfg.Session.Secret)
	cfg.Session.TTLMinutes = getEnvAsInt("SESSION_TTL_MINUTES", cfg.Session.TTLMinutes)
	cfg.Session.MaxSessions = getEnvAsInt("SESSION_MAX_SESSIONS", cfg.Session.MaxSessions)

	cfg.Redis.Addr = getEnv("REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = getEnvAsInt("REDIS_DB", cfg.Redis.DB)
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return parsed
}
