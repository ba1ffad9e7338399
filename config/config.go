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

// ErrMissingAPIKey is returned when no upstream credential is configured.
var ErrMissingAPIKey = errors.New("GEMINI_API_KEY environment variable is required")

// Config holds all server configuration
type Config struct {
	Port             int
	GeminiAPIKey     string
	GeminiModel      string
	GeminiBaseURL    string // Optional override of the Live API endpoint
	VoiceName        string
	LanguageCode     string
	Transcription    bool   // Output audio transcription
	SystemPromptFile string // Read at every session start
	StaticDir        string
	AllowedOrigins   []string
	MaxSessions      int // 0 means unlimited
	KeepAlivePeriod  time.Duration
	RedisURL         string
	RedisPassword    string
	RegistryTTL      time.Duration
}

// LoadConfig loads configuration from environment variables with defaults
func LoadConfig() (*Config, error) {
	// Load .env file if it exists (doesn't error if missing)
	_ = godotenv.Load()

	return fromEnv(os.Getenv)
}

func fromEnv(getenv func(string) string) (*Config, error) {
	config := &Config{
		Port:             3000,
		GeminiModel:      "gemini-2.5-flash-preview-native-audio-dialog",
		VoiceName:        "Puck",
		LanguageCode:     "es-US",
		Transcription:    true,
		SystemPromptFile: "system_prompt.txt",
		StaticDir:        "web",
		AllowedOrigins:   []string{"*"},
		MaxSessions:      100,
		KeepAlivePeriod:  30 * time.Second,
		RegistryTTL:      30 * time.Minute,
	}

	// Required: GEMINI_API_KEY (API_KEY accepted for compatibility)
	config.GeminiAPIKey = getenv("GEMINI_API_KEY")
	if config.GeminiAPIKey == "" {
		config.GeminiAPIKey = getenv("API_KEY")
	}
	if config.GeminiAPIKey == "" {
		return nil, ErrMissingAPIKey
	}

	if port := getenv("PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("invalid PORT: %w", err)
		}
		config.Port = p
	}

	if model := getenv("GEMINI_MODEL"); model != "" {
		config.GeminiModel = model
	}
	config.GeminiBaseURL = getenv("GEMINI_BASE_URL")

	if voice := getenv("VOICE_NAME"); voice != "" {
		config.VoiceName = voice
	}
	if lang := getenv("LANGUAGE_CODE"); lang != "" {
		config.LanguageCode = lang
	}

	if transcription := getenv("OUTPUT_TRANSCRIPTION"); transcription != "" {
		b, err := strconv.ParseBool(transcription)
		if err != nil {
			return nil, fmt.Errorf("invalid OUTPUT_TRANSCRIPTION: %w", err)
		}
		config.Transcription = b
	}

	if promptFile := getenv("SYSTEM_PROMPT_FILE"); promptFile != "" {
		config.SystemPromptFile = promptFile
	}
	if staticDir := getenv("STATIC_DIR"); staticDir != "" {
		config.StaticDir = staticDir
	}

	// Optional: ALLOWED_ORIGINS (comma-separated)
	if origins := getenv("ALLOWED_ORIGINS"); origins != "" {
		config.AllowedOrigins = nil
		for _, o := range strings.Split(origins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				config.AllowedOrigins = append(config.AllowedOrigins, o)
			}
		}
	}

	if maxSessions := getenv("MAX_SESSIONS"); maxSessions != "" {
		m, err := strconv.Atoi(maxSessions)
		if err != nil {
			return nil, fmt.Errorf("invalid MAX_SESSIONS: %w", err)
		}
		config.MaxSessions = m
	}

	// Optional: KEEPALIVE_PERIOD (in seconds, 0 disables pings)
	if keepalive := getenv("KEEPALIVE_PERIOD"); keepalive != "" {
		k, err := strconv.Atoi(keepalive)
		if err != nil {
			return nil, fmt.Errorf("invalid KEEPALIVE_PERIOD: %w", err)
		}
		config.KeepAlivePeriod = time.Duration(k) * time.Second
	}

	config.RedisURL = getenv("REDIS_URL")
	config.RedisPassword = getenv("REDIS_PASSWORD")

	// Optional: REGISTRY_TTL (in minutes)
	if ttl := getenv("REGISTRY_TTL"); ttl != "" {
		t, err := strconv.Atoi(ttl)
		if err != nil {
			return nil, fmt.Errorf("invalid REGISTRY_TTL: %w", err)
		}
		config.RegistryTTL = time.Duration(t) * time.Minute
	}

	return config, nil
}

// AllowsOrigin reports whether a browser origin may open a session.
func (c *Config) AllowsOrigin(origin string) bool {
	for _, allowed := range c.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}
