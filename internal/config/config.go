package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	GeminiAPIKey  string
	TelegramToken string

	LogLevel string
	Debug    bool

	PreferIPv4 bool

	WebAddr        string
	CookieSecure   bool
	MaxUploadBytes int64
	SessionIdleTTL time.Duration

	MediaGroupDebounce time.Duration
	MaxConcurrent      int
	RequestTimeout     time.Duration
	HTTPTimeout        time.Duration

	GeminiBaseURL           string
	GeminiAPIVersion        string
	GeminiPromptModel       string
	GeminiImageModel        string
	GeminiRequestsPerMinute int
}

func Load() (Config, error) {
	cfg := Config{
		LogLevel:                strings.ToLower(strings.TrimSpace(getEnv("LOG_LEVEL", "info"))),
		Debug:                   getEnvBool("DEBUG", false),
		PreferIPv4:              getEnvBool("PREFER_IPV4", true),
		WebAddr:                 strings.TrimSpace(getEnv("WEB_ADDR", ":8080")),
		CookieSecure:            getEnvBool("COOKIE_SECURE", false),
		MaxUploadBytes:          int64(getEnvInt("MAX_UPLOAD_BYTES", 10<<20)),
		SessionIdleTTL:          time.Duration(getEnvInt("SESSION_IDLE_TTL_MINUTES", 120)) * time.Minute,
		MediaGroupDebounce:      time.Duration(getEnvInt("MEDIA_GROUP_DEBOUNCE_MS", 1200)) * time.Millisecond,
		MaxConcurrent:           getEnvInt("MAX_CONCURRENT", 4),
		RequestTimeout:          time.Duration(getEnvInt("REQUEST_TIMEOUT_SECONDS", 240)) * time.Second,
		HTTPTimeout:             time.Duration(getEnvInt("HTTP_TIMEOUT_SECONDS", 180)) * time.Second,
		GeminiBaseURL:           strings.TrimSpace(getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com")),
		GeminiAPIVersion:        strings.TrimSpace(getEnv("GEMINI_API_VERSION", "v1beta")),
		GeminiPromptModel:       strings.TrimSpace(getEnv("GEMINI_PROMPT_MODEL", "gemini-3-flash-preview")),
		GeminiImageModel:        strings.TrimSpace(getEnv("GEMINI_IMAGE_MODEL", "gemini-2.5-flash-image")),
		GeminiRequestsPerMinute: getEnvInt("GEMINI_REQUESTS_PER_MINUTE", 30),
	}

	cfg.GeminiAPIKey = strings.TrimSpace(os.Getenv("GEMINI_API_KEY"))
	cfg.TelegramToken = strings.TrimSpace(os.Getenv("TELEGRAM_BOT_TOKEN"))

	if cfg.GeminiAPIKey == "" {
		return Config{}, errors.New("GEMINI_API_KEY is required")
	}

	if cfg.MaxConcurrent < 1 {
		cfg.MaxConcurrent = 1
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 10 << 20
	}
	if cfg.SessionIdleTTL <= 0 {
		cfg.SessionIdleTTL = 2 * time.Hour
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 240 * time.Second
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 180 * time.Second
	}
	if cfg.GeminiRequestsPerMinute < 0 {
		cfg.GeminiRequestsPerMinute = 0
	}

	return cfg, nil
}

// RequireTelegram reports whether the bot surface can start.
func (c Config) RequireTelegram() error {
	if c.TelegramToken == "" {
		return errors.New("TELEGRAM_BOT_TOKEN is required")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}
