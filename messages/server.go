package messages

import "encoding/base64"

// TypeAudio tags relayed synthesized speech
const TypeAudio = "AUDIO"

// AudioMessage carries upstream audio to the browser
type AudioMessage struct {
	Type string `json:"type"`
	Data string `json:"data"` // Base64 of the upstream bytes, unchanged
}

// ErrorMessage is sent before a session is torn down because of a failure
type ErrorMessage struct {
	Error string `json:"error"`
}

// NewAudioMessage wraps raw upstream audio bytes
func NewAudioMessage(data []byte) *AudioMessage {
	return &AudioMessage{
		Type: TypeAudio,
		Data: base64.StdEncoding.EncodeToString(data),
	}
}

// NewErrorMessage creates an error message
func NewErrorMessage(message string) *ErrorMessage {
	return &ErrorMessage{Error: message}
}
