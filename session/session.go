package session

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/room4-2/livebridge/gemini"
	"github.com/room4-2/livebridge/messages"
)

// State is the lifecycle state of a Session
type State string

const (
	StateInitializing State = "initializing"
	StateActive       State = "active"
	StateClosing      State = "closing"
	StateClosed       State = "closed"
	StateFailed       State = "failed"
)

// Terminal reports whether no further forwarding can happen in this state
func (st State) Terminal() bool {
	return st == StateClosed || st == StateFailed
}

// Close reasons sent to the browser
const (
	ReasonInitFailed     = "Failed to initialize upstream session."
	ReasonUpstreamError  = "Upstream session error."
	ReasonUpstreamClosed = "Upstream session closed."
	ReasonShutdown       = "Server shutting down."
)

const queueSize = 256

// Downstream is the browser side of a session
type Downstream interface {
	// Send serializes msg to the client. It is a no-op once the connection is closed.
	Send(msg any)
	// Close ends the connection with a close code and reason.
	Close(code int, reason string)
}

// Upstream is an open session on the remote dialog service
type Upstream interface {
	SendAudio(encodedAudio string) error
	Close() error
}

// Dialer opens the upstream session for a new Session
type Dialer func(ctx context.Context, cfg gemini.Config, h gemini.Handler) (Upstream, error)

// GeminiDialer opens upstream sessions on the Gemini Live API
func GeminiDialer(client *gemini.Client) Dialer {
	return func(ctx context.Context, cfg gemini.Config, h gemini.Handler) (Upstream, error) {
		s, err := client.Open(ctx, cfg, h)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}

// Items on the session queue
type (
	inboundAudio     struct{ data string }
	downstreamClosed struct{}
	upstreamEvent    struct{ ev gemini.Event }
	upstreamError    struct{ err error }
	upstreamClosed   struct{ reason string }
)

// Session pairs one downstream connection with one upstream session.
//
// Inbound client audio and upstream callbacks are both queued and handled
// one at a time by Run, so the session needs no locking beyond its state.
type Session struct {
	ID        string
	CreatedAt time.Time

	downstream Downstream
	upstream   Upstream // nil until the upstream handshake completes
	dial       Dialer
	loadConfig ConfigLoader
	onState    func(State)

	upstreamReleased bool

	queue chan any
	done  chan struct{}

	mu    sync.RWMutex
	state State
}

// New creates a session in the initializing state. Call Run to start it.
func New(id string, downstream Downstream, dial Dialer, loadConfig ConfigLoader) *Session {
	return &Session{
		ID:         id,
		CreatedAt:  time.Now(),
		downstream: downstream,
		dial:       dial,
		loadConfig: loadConfig,
		queue:      make(chan any, queueSize),
		done:       make(chan struct{}),
		state:      StateInitializing,
	}
}

// OnStateChange registers a hook called after every transition. Set it before Run.
func (s *Session) OnStateChange(fn func(State)) {
	s.onState = fn
}

// State returns the current lifecycle state
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Done is closed when the session reaches a terminal state
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// ShortID is the id prefix used in logs
func (s *Session) ShortID() string {
	if len(s.ID) > 8 {
		return s.ID[:8]
	}
	return s.ID
}

// HandleAudio queues one base64 PCM chunk from the client for upstream.
func (s *Session) HandleAudio(data string) {
	s.enqueue(inboundAudio{data: data})
}

// DownstreamClosed signals that the browser connection is gone.
func (s *Session) DownstreamClosed() {
	s.enqueue(downstreamClosed{})
}

func (s *Session) enqueue(item any) {
	select {
	case s.queue <- item:
	case <-s.done:
		// Terminal: nothing is processed any more
	}
}

func (s *Session) upstreamHandler() gemini.Handler {
	return gemini.Handler{
		OnOpen: func() {
			log.Printf("✅ [%s] Upstream session opened", s.ShortID())
		},
		OnEvent: func(ev gemini.Event) {
			s.enqueue(upstreamEvent{ev: ev})
		},
		OnError: func(err error) {
			s.enqueue(upstreamError{err: err})
		},
		OnClose: func(reason string) {
			s.enqueue(upstreamClosed{reason: reason})
		},
	}
}

// Run opens the upstream session and relays messages until the session
// ends. Cancelling ctx tears the session down as a server shutdown.
func (s *Session) Run(ctx context.Context) {
	defer close(s.done)

	if !s.initialize(ctx) {
		return
	}

	for !s.State().Terminal() {
		select {
		case item := <-s.queue:
			s.handle(item)
		case <-ctx.Done():
			s.shutdown()
		}
	}
}

func (s *Session) initialize(ctx context.Context) bool {
	cfg, err := s.loadConfig()
	if err == nil {
		s.upstream, err = s.dial(ctx, cfg, s.upstreamHandler())
	}
	if err != nil {
		log.Printf("❌ [%s] Failed to initialize upstream session: %v", s.ShortID(), err)
		s.setState(StateFailed)
		s.downstream.Close(websocket.CloseInternalServerErr, ReasonInitFailed)
		return false
	}

	s.setState(StateActive)
	return true
}

func (s *Session) handle(item any) {
	if s.State() != StateActive {
		return
	}

	switch it := item.(type) {
	case inboundAudio:
		if err := s.upstream.SendAudio(it.data); err != nil {
			log.Printf("⚠️ [%s] Failed to send audio upstream: %v", s.ShortID(), err)
		}

	case upstreamEvent:
		if msg, ok := translate(it.ev); ok {
			s.downstream.Send(msg)
		}

	case upstreamError:
		log.Printf("❌ [%s] Upstream error: %v", s.ShortID(), it.err)
		s.downstream.Send(messages.NewErrorMessage("Upstream error: " + it.err.Error()))
		s.setState(StateFailed)
		s.releaseUpstream()
		s.downstream.Close(websocket.CloseInternalServerErr, ReasonUpstreamError)

	case upstreamClosed:
		log.Printf("🔌 [%s] Upstream session closed: %s", s.ShortID(), it.reason)
		s.setState(StateClosing)
		s.releaseUpstream()
		s.downstream.Close(websocket.CloseNormalClosure, ReasonUpstreamClosed)
		s.setState(StateClosed)

	case downstreamClosed:
		log.Printf("🔌 [%s] Client disconnected", s.ShortID())
		s.setState(StateClosing)
		s.releaseUpstream()
		s.setState(StateClosed)
	}
}

func (s *Session) shutdown() {
	s.setState(StateClosing)
	s.releaseUpstream()
	s.downstream.Close(websocket.CloseGoingAway, ReasonShutdown)
	s.setState(StateClosed)
}

// releaseUpstream closes the upstream session at most once
func (s *Session) releaseUpstream() {
	if s.upstream == nil || s.upstreamReleased {
		return
	}
	s.upstreamReleased = true
	if err := s.upstream.Close(); err != nil {
		log.Printf("⚠️ [%s] Upstream close error: %v", s.ShortID(), err)
	}
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	prev := s.state
	s.state = st
	s.mu.Unlock()

	if prev == st {
		return
	}
	log.Printf("🔄 [%s] %s -> %s", s.ShortID(), prev, st)
	if s.onState != nil {
		s.onState(st)
	}
}

// translate converts an upstream event to the message sent to the client:
// audio is wrapped and base64 encoded, metadata passes through untouched.
func translate(ev gemini.Event) (any, bool) {
	switch {
	case ev.IsAudio():
		return messages.NewAudioMessage(ev.Audio), true
	case ev.Metadata != nil:
		return ev.Metadata, true
	default:
		return nil, false
	}
}
