package gemini

import (
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/gorilla/websocket"
	"google.golang.org/genai"
)

// ErrSessionClosed is returned when sending on a closed session
var ErrSessionClosed = errors.New("gemini: session is closed")

// Session is one open Live API session
type Session struct {
	conn    liveConn
	handler Handler

	mu     sync.RWMutex
	closed bool
}

func newSession(conn liveConn, h Handler) *Session {
	return &Session{conn: conn, handler: h}
}

// start delivers the setup acknowledgement and begins the receive loop
func (s *Session) start(ack *genai.LiveServerMessage) {
	go func() {
		if ack != nil {
			s.deliver(ack)
		}
		s.receive()
	}()
}

func (s *Session) receive() {
	for {
		resp, err := s.conn.Receive()
		if err != nil {
			s.finish(err)
			return
		}
		s.deliver(resp)
	}
}

func (s *Session) deliver(msg *genai.LiveServerMessage) {
	if s.handler.OnEvent == nil {
		return
	}
	if ev, ok := EventFromMessage(msg); ok {
		s.handler.OnEvent(ev)
	}
}

// finish reports how the receive loop ended: a local Close or a normal
// close from the service go to OnClose, anything else to OnError.
func (s *Session) finish(err error) {
	if s.IsClosed() {
		if s.handler.OnClose != nil {
			s.handler.OnClose("closed by relay")
		}
		return
	}

	var ce *websocket.CloseError
	if errors.As(err, &ce) && (ce.Code == websocket.CloseNormalClosure || ce.Code == websocket.CloseGoingAway) {
		log.Printf("🔌 Gemini session closed (%d): %s", ce.Code, ce.Text)
		if s.handler.OnClose != nil {
			s.handler.OnClose(ce.Text)
		}
		return
	}

	log.Printf("❌ Gemini receive error: %v", err)
	if s.handler.OnError != nil {
		s.handler.OnError(err)
	}
}

// SendAudio forwards one base64 PCM chunk from the client, tagged 16-bit PCM at 16kHz.
func (s *Session) SendAudio(encodedAudio string) error {
	data, err := base64.StdEncoding.DecodeString(encodedAudio)
	if err != nil {
		return fmt.Errorf("invalid base64: %w", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrSessionClosed
	}

	err = s.conn.SendRealtimeInput(genai.LiveRealtimeInput{
		Audio: &genai.Blob{
			MIMEType: InputMIMEType,
			Data:     data,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to send audio: %w", err)
	}
	return nil
}

// IsClosed returns whether Close has been called
func (s *Session) IsClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

// Close terminates the upstream connection. Calling it again is a no-op.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.conn.Close()
}
