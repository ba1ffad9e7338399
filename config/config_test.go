package config

import (
	"errors"
	"testing"
	"time"
)

func envFrom(vars map[string]string) func(string) string {
	return func(key string) string { return vars[key] }
}

func TestFromEnv_MissingAPIKey(t *testing.T) {
	_, err := fromEnv(envFrom(nil))
	if !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("err = %v, want ErrMissingAPIKey", err)
	}
}

func TestFromEnv_Defaults(t *testing.T) {
	cfg, err := fromEnv(envFrom(map[string]string{"GEMINI_API_KEY": "k"}))
	if err != nil {
		t.Fatalf("fromEnv: %v", err)
	}
	if cfg.Port != 3000 {
		t.Errorf("Port = %d, want 3000", cfg.Port)
	}
	if cfg.VoiceName != "Puck" || cfg.LanguageCode != "es-US" {
		t.Errorf("voice/language = %q/%q", cfg.VoiceName, cfg.LanguageCode)
	}
	if !cfg.Transcription {
		t.Error("Transcription should default to true")
	}
	if cfg.SystemPromptFile != "system_prompt.txt" {
		t.Errorf("SystemPromptFile = %q", cfg.SystemPromptFile)
	}
	if cfg.StaticDir != "web" {
		t.Errorf("StaticDir = %q", cfg.StaticDir)
	}
	if cfg.KeepAlivePeriod != 30*time.Second {
		t.Errorf("KeepAlivePeriod = %v", cfg.KeepAlivePeriod)
	}
	if !cfg.AllowsOrigin("https://anywhere.example") {
		t.Error("default origins should allow everything")
	}
}

func TestFromEnv_LegacyAPIKey(t *testing.T) {
	cfg, err := fromEnv(envFrom(map[string]string{"API_KEY": "legacy"}))
	if err != nil {
		t.Fatalf("fromEnv: %v", err)
	}
	if cfg.GeminiAPIKey != "legacy" {
		t.Fatalf("GeminiAPIKey = %q, want legacy", cfg.GeminiAPIKey)
	}
}

func TestFromEnv_Overrides(t *testing.T) {
	cfg, err := fromEnv(envFrom(map[string]string{
		"GEMINI_API_KEY":       "k",
		"PORT":                 "8080",
		"VOICE_NAME":           "Kore",
		"LANGUAGE_CODE":        "en-US",
		"OUTPUT_TRANSCRIPTION": "false",
		"ALLOWED_ORIGINS":      "https://a.example, https://b.example",
		"MAX_SESSIONS":         "5",
		"KEEPALIVE_PERIOD":     "0",
		"REGISTRY_TTL":         "2",
	}))
	if err != nil {
		t.Fatalf("fromEnv: %v", err)
	}
	if cfg.Port != 8080 || cfg.MaxSessions != 5 {
		t.Errorf("Port/MaxSessions = %d/%d", cfg.Port, cfg.MaxSessions)
	}
	if cfg.VoiceName != "Kore" || cfg.LanguageCode != "en-US" {
		t.Errorf("voice/language = %q/%q", cfg.VoiceName, cfg.LanguageCode)
	}
	if cfg.Transcription {
		t.Error("Transcription should be disabled")
	}
	if cfg.KeepAlivePeriod != 0 {
		t.Errorf("KeepAlivePeriod = %v, want 0", cfg.KeepAlivePeriod)
	}
	if cfg.RegistryTTL != 2*time.Minute {
		t.Errorf("RegistryTTL = %v", cfg.RegistryTTL)
	}
	if !cfg.AllowsOrigin("https://b.example") {
		t.Error("trimmed origin should be allowed")
	}
	if cfg.AllowsOrigin("https://c.example") {
		t.Error("unlisted origin should be rejected")
	}
}

func TestFromEnv_InvalidValues(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"port", "PORT", "abc"},
		{"max sessions", "MAX_SESSIONS", "many"},
		{"keepalive", "KEEPALIVE_PERIOD", "1m"},
		{"transcription", "OUTPUT_TRANSCRIPTION", "maybe"},
		{"registry ttl", "REGISTRY_TTL", "x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := fromEnv(envFrom(map[string]string{
				"GEMINI_API_KEY": "k",
				tt.key:           tt.val,
			}))
			if err == nil {
				t.Fatalf("expected error for %s=%q", tt.key, tt.val)
			}
		})
	}
}
