package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Load reads the .env file from the current working directory and sets
// environment variables that are not already set. A missing .env returns an
// error that callers may ignore in favour of the process environment.
// With no paths, ".env" is used.
func Load(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	return godotenv.Load(paths...)
}

// GetEnv returns the value of the environment variable named by key, or fallback
// if the variable is unset or empty.
func GetEnv(key, fallback string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return fallback
}

// GetEnvInt returns the integer value of key, or fallback if the variable is
// unset, empty, or not a valid integer.
func GetEnvInt(key string, fallback int) int {
	if s := os.Getenv(key); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	}
	return fallback
}

// GetEnvFloat is GetEnvInt for floating point values.
func GetEnvFloat(key string, fallback float64) float64 {
	if s := os.Getenv(key); s != "" {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	}
	return fallback
}

// GetEnvBool accepts anything strconv.ParseBool does ("1", "true", "FALSE", ...).
func GetEnvBool(key string, fallback bool) bool {
	if s := os.Getenv(key); s != "" {
		if b, err := strconv.ParseBool(s); err == nil {
			return b
		}
	}
	return fallback
}

// GetEnvDuration parses key with time.ParseDuration ("30s", "1m").
func GetEnvDuration(key string, fallback time.Duration) time.Duration {
	if s := os.Getenv(key); s != "" {
		if d, err := time.ParseDuration(s); err == nil {
			return d
		}
	}
	return fallback
}

// Settings is the resolved process configuration.
type Settings struct {
	Port      string
	LogLevel  string
	LogFormat string

	MotionURL    string
	MotionAPIKey string
	ChatURL      string
	Timeout      time.Duration

	StaticDir    string
	ModelsDir    string
	IndexFile    string
	DefaultModel string

	FrameRate          int
	MaxDepth           int
	ExposeClientAPIKey bool
}

// FromEnv resolves Settings from the environment, applying defaults.
func FromEnv() Settings {
	return Settings{
		Port:      GetEnv("PORT", "8080"),
		LogLevel:  GetEnv("LOG_LEVEL", "info"),
		LogFormat: GetEnv("LOG_FORMAT", "json"),

		MotionURL:    GetEnv("TEXT_TO_MOTION_API_URL", "https://api.text2motion.ai/api/generate"),
		MotionAPIKey: GetEnv("TEXT_TO_MOTION_API_KEY", GetEnv("text_to_motion__api_key", "")),
		ChatURL:      GetEnv("CHAT_API_URL", "http://localhost:8000/api/chat"),
		Timeout:      GetEnvDuration("UPSTREAM_TIMEOUT", 0),

		StaticDir:    GetEnv("STATIC_DIR", "static"),
		ModelsDir:    GetEnv("MODELS_DIR", "models"),
		IndexFile:    GetEnv("INDEX_FILE", "index.html"),
		DefaultModel: GetEnv("DEFAULT_MODEL", ""),

		FrameRate:          GetEnvInt("FRAME_RATE", 30),
		MaxDepth:           GetEnvInt("SKELETON_MAX_DEPTH", 12),
		ExposeClientAPIKey: GetEnvBool("CLIENT_EXPOSE_API_KEY", false),
	}
}
