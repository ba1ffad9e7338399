package messages

// Kind identifies what an inbound client message carries.
type Kind string

const (
	KindAudio   Kind = "audio"
	KindUnknown Kind = "unknown"
)

// ClientMessage represents a message from the browser client.
// Only the audio field is acted upon; any other shape is ignored.
type ClientMessage struct {
	Audio *AudioChunk `json:"audio,omitempty"`
}

// AudioChunk contains one block of captured microphone audio
type AudioChunk struct {
	Data string `json:"data"` // Base64-encoded PCM16 LE, 16kHz, mono
}

// Kind reports the message kind. A message is an audio chunk only when it
// carries non-empty audio data.
func (m *ClientMessage) Kind() Kind {
	if m != nil && m.Audio != nil && m.Audio.Data != "" {
		return KindAudio
	}
	return KindUnknown
}

// DecodeClientMessage parses a raw downstream frame.
func DecodeClientMessage(raw []byte) (*ClientMessage, error) {
	var msg ClientMessage
	if err := Unmarshal(raw, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// NewAudioChunkMessage builds the frame a client sends for one audio chunk
func NewAudioChunkMessage(data string) *ClientMessage {
	return &ClientMessage{Audio: &AudioChunk{Data: data}}
}
