package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

type Config struct {
	DatabaseURL string
	Host        string
	Port        string
	JwtSecret   string
	LogLevel    string
	CORSOrigins []string

	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string
	GeminiAPIKey  string
	GeminiModel   string
	GroqAPIKey    string
	GroqBaseURL   string
	GroqModel     string

	RenderMode           string // "local" or "remote"
	ManimRendererURL     string
	RenderCallbackSecret string
	ManimPython          string
	RenderWorkDir        string
	RenderTimeout        time.Duration

	PipelineWorkers int
	StaleTaskAfter  time.Duration // idle cutoff for manimctl reconcile

	RedisURL          string
	CreateRatePerHour int

	R2AccountID       string
	R2AccessKeyID     string
	R2SecretAccessKey string
	R2Bucket          string
	R2PublicURL       string
}

const (
	RenderModeLocal  = "local"
	RenderModeRemote = "remote"
)

// LoadConfig reads the environment (and .env when present) and exits the
// process when a required value is missing.
func LoadConfig() *Config {
	if err := godotenv.Load(); err != nil {
		log.Debugf("No .env file loaded: %v", err)
	}
	cfg := FromEnv()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	return cfg
}

// FromEnv builds a Config from the current environment and applies defaults.
func FromEnv() *Config {
	cfg := &Config{
		DatabaseURL: os.Getenv("DATABASE_URL"),
		Host:        os.Getenv("HOST"),
		Port:        os.Getenv("PORT"),
		JwtSecret:   os.Getenv("JWT_SECRET"),
		LogLevel:    os.Getenv("LOG_LEVEL"),
		CORSOrigins: splitList(os.Getenv("CORS_ORIGINS")),

		OpenAIAPIKey:  os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL: os.Getenv("OPENAI_BASE_URL"),
		OpenAIModel:   os.Getenv("OPENAI_MODEL"),
		GeminiAPIKey:  os.Getenv("GEMINI_API_KEY"),
		GeminiModel:   os.Getenv("GEMINI_MODEL"),
		GroqAPIKey:    os.Getenv("GROQ_API_KEY"),
		GroqBaseURL:   os.Getenv("GROQ_BASE_URL"),
		GroqModel:     os.Getenv("GROQ_MODEL"),

		RenderMode:           strings.ToLower(os.Getenv("RENDER_MODE")),
		ManimRendererURL:     os.Getenv("MANIM_RENDERER_URL"),
		RenderCallbackSecret: os.Getenv("RENDER_CALLBACK_SECRET"),
		ManimPython:          os.Getenv("MANIM_PYTHON"),
		RenderWorkDir:        os.Getenv("RENDER_WORK_DIR"),
		RenderTimeout:        durationEnv("RENDER_TIMEOUT", 10*time.Minute),

		PipelineWorkers: intEnv("PIPELINE_WORKERS", 8),
		StaleTaskAfter:  durationEnv("STALE_TASK_AFTER", 30*time.Minute),

		RedisURL:          os.Getenv("REDIS_URL"),
		CreateRatePerHour: intEnv("CREATE_RATE_PER_HOUR", 20),

		R2AccountID:       os.Getenv("R2_ACCOUNT_ID"),
		R2AccessKeyID:     os.Getenv("R2_ACCESS_KEY_ID"),
		R2SecretAccessKey: os.Getenv("R2_SECRET_ACCESS_KEY"),
		R2Bucket:          os.Getenv("R2_BUCKET"),
		R2PublicURL:       os.Getenv("R2_PUBLIC_URL"),
	}

	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == "" {
		cfg.Port = "8080"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if len(cfg.CORSOrigins) == 0 {
		cfg.CORSOrigins = []string{"http://localhost:3000"}
	}
	if cfg.OpenAIBaseURL == "" {
		cfg.OpenAIBaseURL = "https://api.openai.com/v1"
	}
	if cfg.OpenAIModel == "" {
		cfg.OpenAIModel = "gpt-4"
	}
	if cfg.GeminiModel == "" {
		cfg.GeminiModel = "gemini-1.5-pro"
	}
	if cfg.GroqBaseURL == "" {
		cfg.GroqBaseURL = "https://api.groq.com/openai/v1"
	}
	if cfg.GroqModel == "" {
		cfg.GroqModel = "llama3-70b-8192"
	}
	if cfg.RenderMode == "" {
		cfg.RenderMode = RenderModeLocal
	}
	if cfg.ManimPython == "" {
		cfg.ManimPython = "python"
	}
	if cfg.RenderWorkDir == "" {
		cfg.RenderWorkDir = "./data"
	}
	return cfg
}

// Validate reports every missing or inconsistent setting at once.
func (c *Config) Validate() error {
	var errs []error
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL is not set"))
	}
	if c.JwtSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is not set"))
	}
	switch c.RenderMode {
	case RenderModeLocal:
	case RenderModeRemote:
		if c.ManimRendererURL == "" {
			errs = append(errs, errors.New("MANIM_RENDERER_URL is required when RENDER_MODE=remote"))
		}
		if c.RenderCallbackSecret == "" {
			errs = append(errs, errors.New("RENDER_CALLBACK_SECRET is required when RENDER_MODE=remote"))
		}
	default:
		errs = append(errs, fmt.Errorf("RENDER_MODE %q is not one of local, remote", c.RenderMode))
	}
	if c.PipelineWorkers <= 0 {
		errs = append(errs, errors.New("PIPELINE_WORKERS must be positive"))
	}
	if c.OpenAIAPIKey == "" && c.GeminiAPIKey == "" && c.GroqAPIKey == "" {
		log.Warn("No default AI provider key configured; generation relies on per-user API keys.")
	}
	return errors.Join(errs...)
}

// R2Enabled reports whether rendered videos should be uploaded to object storage.
func (c *Config) R2Enabled() bool {
	return c.R2AccountID != "" && c.R2AccessKeyID != "" && c.R2SecretAccessKey != "" && c.R2Bucket != ""
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func intEnv(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		log.Warnf("Ignoring invalid %s=%q: %v", key, raw, err)
		return def
	}
	return v
}

func durationEnv(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		log.Warnf("Ignoring invalid %s=%q: %v", key, raw, err)
		return def
	}
	return v
}
