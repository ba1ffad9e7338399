// Package gemini manages upstream sessions on the Gemini Live API.
//
// One Session is opened per downstream connection. Upstream messages are
// delivered through the Handler callbacks from a single receive goroutine,
// in the order the service produced them.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"log"

	"google.golang.org/genai"
)

// InputMIMEType tags realtime audio sent upstream
const InputMIMEType = "audio/pcm;rate=16000"

// ErrHandshake is returned when the upstream rejects or drops the session setup.
var ErrHandshake = errors.New("gemini: session setup failed")

// Config is the immutable per-session configuration sent with the setup message.
type Config struct {
	Model             string
	SystemInstruction string
	VoiceName         string
	LanguageCode      string
	Transcription     bool // Output audio transcription
}

// LiveConnectConfig translates the session configuration to the SDK shape.
func (c Config) LiveConnectConfig() *genai.LiveConnectConfig {
	lc := &genai.LiveConnectConfig{
		ResponseModalities: []genai.Modality{genai.ModalityAudio},
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{
					VoiceName: c.VoiceName,
				},
			},
			LanguageCode: c.LanguageCode,
		},
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{
				{Text: c.SystemInstruction},
			},
		},
	}
	if c.Transcription {
		lc.OutputAudioTranscription = &genai.AudioTranscriptionConfig{}
	}
	return lc
}

// Handler receives upstream session callbacks. Nil fields are skipped.
type Handler struct {
	OnOpen  func()
	OnEvent func(Event)
	OnError func(error)
	OnClose func(reason string)
}

// liveConn is the part of *genai.Session a Session depends on
type liveConn interface {
	SendRealtimeInput(input genai.LiveRealtimeInput) error
	Receive() (*genai.LiveServerMessage, error)
	Close() error
}

type connectFunc func(ctx context.Context, model string, config *genai.LiveConnectConfig) (liveConn, error)

// Client opens upstream sessions using one shared GenAI client
type Client struct {
	connect connectFunc
}

// NewClient creates a GenAI client for the Gemini API backend.
// baseURL is optional and overrides the Live API endpoint.
func NewClient(ctx context.Context, apiKey, baseURL string) (*Client, error) {
	cc := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if baseURL != "" {
		cc.HTTPOptions.BaseURL = baseURL
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	return &Client{
		connect: func(ctx context.Context, model string, config *genai.LiveConnectConfig) (liveConn, error) {
			session, err := client.Live.Connect(ctx, model, config)
			if err != nil {
				return nil, err
			}
			return session, nil
		},
	}, nil
}

// Open connects to the Live API, sends the setup and waits for the
// service to acknowledge it. On success the acknowledgement is delivered as
// the first event and the handler keeps receiving events until the session
// ends. Any failure before that is returned wrapped in ErrHandshake.
func (c *Client) Open(ctx context.Context, cfg Config, h Handler) (*Session, error) {
	conn, err := c.connect(ctx, cfg.Model, cfg.LiveConnectConfig())
	if err != nil {
		return nil, fmt.Errorf("%w: failed to connect to Live API: %v", ErrHandshake, err)
	}

	ack, err := awaitSetup(ctx, conn)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%w: %v", ErrHandshake, err)
	}

	log.Printf("✅ Connected to Gemini Live (%s)", cfg.Model)

	s := newSession(conn, h)
	if h.OnOpen != nil {
		h.OnOpen()
	}
	s.start(ack)
	return s, nil
}

// awaitSetup reads the first upstream message, aborting if ctx ends first.
func awaitSetup(ctx context.Context, conn liveConn) (*genai.LiveServerMessage, error) {
	type result struct {
		msg *genai.LiveServerMessage
		err error
	}
	done := make(chan result, 1)
	go func() {
		msg, err := conn.Receive()
		done <- result{msg, err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return nil, r.err
		}
		return r.msg, nil
	case <-ctx.Done():
		// Unblocks the pending Receive
		_ = conn.Close()
		<-done
		return nil, ctx.Err()
	}
}
