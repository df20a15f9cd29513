package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	DefaultModelID     = "gemma-270m-ai-detector"
	DefaultModelSource = "hf.co/Priyansu19/gemma-270m-ai-detector"
)

type Config struct {
	APIPort  string `yaml:"api_port"`
	LogLevel string `yaml:"log_level"`

	OllamaURL       string `yaml:"ollama_url"`
	OllamaKeepAlive string `yaml:"ollama_keep_alive"`

	ModelID                 string `yaml:"model_id"`
	ModelSource             string `yaml:"model_source"`
	ModelContextWindow      int    `yaml:"model_context_window"`
	ModelLoadTimeoutSeconds int    `yaml:"model_load_timeout_seconds"`
	InferenceTimeoutSeconds int    `yaml:"inference_timeout_seconds"`

	RequireGPU     bool     `yaml:"require_gpu"`
	GPUDevicePaths []string `yaml:"gpu_device_paths"`

	NATSURL              string `yaml:"nats_url"`
	NATSSubjectPrefix    string `yaml:"nats_subject_prefix"`
	NATSRequestTimeoutMS int    `yaml:"nats_request_timeout_ms"`

	PendingTextDelayMS int `yaml:"pending_text_delay_ms"`

	RateLimitRPS   float64 `yaml:"rate_limit_rps"`
	RateLimitBurst int     `yaml:"rate_limit_burst"`

	BreakerEnabled            bool    `yaml:"breaker_enabled"`
	BreakerMinRequests        int     `yaml:"breaker_min_requests"`
	BreakerFailureRatio       float64 `yaml:"breaker_failure_ratio"`
	BreakerOpenTimeoutSeconds int     `yaml:"breaker_open_timeout_seconds"`
	NotifyRetryMaxAttempts    int     `yaml:"notify_retry_max_attempts"`
}

func defaults() Config {
	return Config{
		APIPort:  "8080",
		LogLevel: "info",

		OllamaURL:       "http://localhost:11434",
		OllamaKeepAlive: "30m",

		ModelID:                 DefaultModelID,
		ModelSource:             DefaultModelSource,
		ModelContextWindow:      8192,
		ModelLoadTimeoutSeconds: 300,
		InferenceTimeoutSeconds: 60,

		RequireGPU: true,

		NATSSubjectPrefix:    "detector",
		NATSRequestTimeoutMS: 2000,

		PendingTextDelayMS: 500,

		RateLimitRPS:   2,
		RateLimitBurst: 4,

		BreakerEnabled:            true,
		BreakerMinRequests:        5,
		BreakerFailureRatio:       0.5,
		BreakerOpenTimeoutSeconds: 15,
		NotifyRetryMaxAttempts:    2,
	}
}

// Load reads CONFIG_FILE when set, then lets environment variables override it.
func Load() (Config, error) {
	base := defaults()
	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		fileCfg, err := readFile(path, base)
		if err != nil {
			return Config{}, err
		}
		base = fileCfg
	}

	return Config{
		APIPort:  mustEnv("API_PORT", base.APIPort),
		LogLevel: mustEnv("LOG_LEVEL", base.LogLevel),

		OllamaURL:       mustEnv("OLLAMA_URL", base.OllamaURL),
		OllamaKeepAlive: mustEnv("OLLAMA_KEEP_ALIVE", base.OllamaKeepAlive),

		ModelID:                 mustEnv("MODEL_ID", base.ModelID),
		ModelSource:             mustEnv("MODEL_SOURCE", base.ModelSource),
		ModelContextWindow:      mustEnvInt("MODEL_CONTEXT_WINDOW", base.ModelContextWindow),
		ModelLoadTimeoutSeconds: mustEnvInt("MODEL_LOAD_TIMEOUT_SECONDS", base.ModelLoadTimeoutSeconds),
		InferenceTimeoutSeconds: mustEnvInt("INFERENCE_TIMEOUT_SECONDS", base.InferenceTimeoutSeconds),

		RequireGPU:     mustEnvBool("REQUIRE_GPU", base.RequireGPU),
		GPUDevicePaths: mustEnvList("GPU_DEVICE_PATHS", base.GPUDevicePaths),

		NATSURL:              mustEnv("NATS_URL", base.NATSURL),
		NATSSubjectPrefix:    mustEnv("NATS_SUBJECT_PREFIX", base.NATSSubjectPrefix),
		NATSRequestTimeoutMS: mustEnvInt("NATS_REQUEST_TIMEOUT_MS", base.NATSRequestTimeoutMS),

		PendingTextDelayMS: mustEnvInt("PENDING_TEXT_DELAY_MS", base.PendingTextDelayMS),

		RateLimitRPS:   mustEnvFloat("RATE_LIMIT_RPS", base.RateLimitRPS),
		RateLimitBurst: mustEnvInt("RATE_LIMIT_BURST", base.RateLimitBurst),

		BreakerEnabled:            mustEnvBool("BREAKER_ENABLED", base.BreakerEnabled),
		BreakerMinRequests:        mustEnvInt("BREAKER_MIN_REQUESTS", base.BreakerMinRequests),
		BreakerFailureRatio:       mustEnvFloat("BREAKER_FAILURE_RATIO", base.BreakerFailureRatio),
		BreakerOpenTimeoutSeconds: mustEnvInt("BREAKER_OPEN_TIMEOUT_SECONDS", base.BreakerOpenTimeoutSeconds),
		NotifyRetryMaxAttempts:    mustEnvInt("NOTIFY_RETRY_MAX_ATTEMPTS", base.NotifyRetryMaxAttempts),
	}, nil
}

// readFile overlays the YAML document at path on base; absent keys keep base values.
func readFile(path string, base Config) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}
	out := base
	if err := yaml.Unmarshal(raw, &out); err != nil {
		return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
	}
	return out, nil
}

func mustEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func mustEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func mustEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return n
}

func mustEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return parsed
}

func mustEnvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
