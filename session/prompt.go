package session

import (
	"errors"
	"fmt"
	"os"

	"github.com/room4-2/livebridge/config"
	"github.com/room4-2/livebridge/gemini"
)

// ErrInstructionMissing is returned when the system prompt file cannot be read
var ErrInstructionMissing = errors.New("system instruction not available")

// ConfigLoader builds the configuration of a new session
type ConfigLoader func() (gemini.Config, error)

// FileConfigLoader reads the system prompt from cfg.SystemPromptFile on every
// call, so edits to the file apply to the next session without a restart.
func FileConfigLoader(cfg *config.Config) ConfigLoader {
	return func() (gemini.Config, error) {
		text, err := LoadInstruction(cfg.SystemPromptFile)
		if err != nil {
			return gemini.Config{}, err
		}
		return gemini.Config{
			Model:             cfg.GeminiModel,
			SystemInstruction: text,
			VoiceName:         cfg.VoiceName,
			LanguageCode:      cfg.LanguageCode,
			Transcription:     cfg.Transcription,
		}, nil
	}
}

// LoadInstruction reads a system instruction text file
func LoadInstruction(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInstructionMissing, err)
	}
	return string(data), nil
}
