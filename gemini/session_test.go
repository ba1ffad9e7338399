package gemini

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"google.golang.org/genai"
)

type recvResult struct {
	msg *genai.LiveServerMessage
	err error
}

// fakeConn is an in-memory stand-in for *genai.Session
type fakeConn struct {
	incoming chan recvResult

	mu     sync.Mutex
	sent   []genai.LiveRealtimeInput
	closes int
	done   chan struct{}
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		incoming: make(chan recvResult, 16),
		done:     make(chan struct{}),
	}
}

func (f *fakeConn) SendRealtimeInput(input genai.LiveRealtimeInput) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, input)
	return nil
}

func (f *fakeConn) Receive() (*genai.LiveServerMessage, error) {
	select {
	case r := <-f.incoming:
		return r.msg, r.err
	case <-f.done:
		return nil, errors.New("use of closed network connection")
	}
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	if f.closes == 1 {
		close(f.done)
	}
	return nil
}

func (f *fakeConn) closeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closes
}

func testClient(conn *fakeConn, connectErr error) (*Client, *genai.LiveConnectConfig) {
	var captured genai.LiveConnectConfig
	c := &Client{
		connect: func(_ context.Context, _ string, cfg *genai.LiveConnectConfig) (liveConn, error) {
			if cfg != nil {
				captured = *cfg
			}
			if connectErr != nil {
				return nil, connectErr
			}
			return conn, nil
		},
	}
	return c, &captured
}

type recorder struct {
	opened chan struct{}
	events chan Event
	errs   chan error
	closed chan string
}

func newRecorder() *recorder {
	return &recorder{
		opened: make(chan struct{}, 1),
		events: make(chan Event, 16),
		errs:   make(chan error, 1),
		closed: make(chan string, 1),
	}
}

func (r *recorder) handler() Handler {
	return Handler{
		OnOpen:  func() { r.opened <- struct{}{} },
		OnEvent: func(ev Event) { r.events <- ev },
		OnError: func(err error) { r.errs <- err },
		OnClose: func(reason string) { r.closed <- reason },
	}
}

func setupComplete() *genai.LiveServerMessage {
	return &genai.LiveServerMessage{SetupComplete: &genai.LiveServerSetupComplete{}}
}

func audioMessage(data []byte) *genai.LiveServerMessage {
	return &genai.LiveServerMessage{
		ServerContent: &genai.LiveServerContent{
			ModelTurn: &genai.Content{
				Parts: []*genai.Part{{InlineData: &genai.Blob{MIMEType: "audio/pcm;rate=24000", Data: data}}},
			},
		},
	}
}

func waitEvent(t *testing.T, r *recorder) Event {
	t.Helper()
	select {
	case ev := <-r.events:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return Event{}
}

func TestConfig_LiveConnectConfig(t *testing.T) {
	cfg := Config{
		Model:             "m",
		SystemInstruction: "be brief",
		VoiceName:         "Puck",
		LanguageCode:      "es-US",
		Transcription:     true,
	}
	lc := cfg.LiveConnectConfig()

	if len(lc.ResponseModalities) != 1 || lc.ResponseModalities[0] != genai.ModalityAudio {
		t.Errorf("ResponseModalities = %v", lc.ResponseModalities)
	}
	if got := lc.SpeechConfig.VoiceConfig.PrebuiltVoiceConfig.VoiceName; got != "Puck" {
		t.Errorf("VoiceName = %q", got)
	}
	if lc.SpeechConfig.LanguageCode != "es-US" {
		t.Errorf("LanguageCode = %q", lc.SpeechConfig.LanguageCode)
	}
	if lc.OutputAudioTranscription == nil {
		t.Error("OutputAudioTranscription should be set")
	}
	if got := lc.SystemInstruction.Parts[0].Text; got != "be brief" {
		t.Errorf("SystemInstruction = %q", got)
	}

	cfg.Transcription = false
	if cfg.LiveConnectConfig().OutputAudioTranscription != nil {
		t.Error("OutputAudioTranscription should be nil when disabled")
	}
}

func TestClient_OpenDeliversSetupAndEvents(t *testing.T) {
	conn := newFakeConn()
	conn.incoming <- recvResult{msg: setupComplete()}
	client, captured := testClient(conn, nil)
	rec := newRecorder()

	sess, err := client.Open(context.Background(), Config{Model: "m", VoiceName: "Puck"}, rec.handler())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer sess.Close()

	select {
	case <-rec.opened:
	default:
		t.Fatal("OnOpen not called before Open returned")
	}
	if captured.SpeechConfig == nil {
		t.Fatal("setup config not passed to connect")
	}

	first := waitEvent(t, rec)
	if first.IsAudio() {
		t.Fatal("setup acknowledgement should be a metadata event")
	}

	conn.incoming <- recvResult{msg: audioMessage([]byte{0x01, 0x02})}
	conn.incoming <- recvResult{msg: &genai.LiveServerMessage{ServerContent: &genai.LiveServerContent{TurnComplete: true}}}

	audio := waitEvent(t, rec)
	if string(audio.Audio) != "\x01\x02" {
		t.Fatalf("audio = %v", audio.Audio)
	}
	meta := waitEvent(t, rec)
	msg, ok := meta.Metadata.(*genai.LiveServerMessage)
	if !ok || !msg.ServerContent.TurnComplete {
		t.Fatalf("metadata = %#v", meta.Metadata)
	}
}

func TestClient_OpenConnectFailure(t *testing.T) {
	client, _ := testClient(nil, errors.New("dial refused"))
	rec := newRecorder()

	_, err := client.Open(context.Background(), Config{}, rec.handler())
	if !errors.Is(err, ErrHandshake) {
		t.Fatalf("err = %v, want ErrHandshake", err)
	}
	select {
	case <-rec.opened:
		t.Fatal("OnOpen must not be called on failure")
	default:
	}
}

func TestClient_OpenSetupRejected(t *testing.T) {
	conn := newFakeConn()
	conn.incoming <- recvResult{err: &websocket.CloseError{Code: 1007, Text: "invalid argument"}}
	client, _ := testClient(conn, nil)

	_, err := client.Open(context.Background(), Config{}, newRecorder().handler())
	if !errors.Is(err, ErrHandshake) {
		t.Fatalf("err = %v, want ErrHandshake", err)
	}
	if conn.closeCount() != 1 {
		t.Fatalf("connection closed %d times, want 1", conn.closeCount())
	}
}

func TestClient_OpenContextCanceled(t *testing.T) {
	conn := newFakeConn()
	client, _ := testClient(conn, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.Open(ctx, Config{}, newRecorder().handler())
	if !errors.Is(err, ErrHandshake) {
		t.Fatalf("err = %v, want ErrHandshake", err)
	}
}

func TestSession_SendAudioTagsPCM(t *testing.T) {
	conn := newFakeConn()
	sess := newSession(conn, Handler{})

	if err := sess.SendAudio("AAA="); err != nil {
		t.Fatalf("SendAudio: %v", err)
	}
	if len(conn.sent) != 1 {
		t.Fatalf("sent %d inputs, want 1", len(conn.sent))
	}
	blob := conn.sent[0].Audio
	if blob == nil || blob.MIMEType != "audio/pcm;rate=16000" {
		t.Fatalf("audio blob = %#v", blob)
	}
	if string(blob.Data) != "\x00\x00" {
		t.Fatalf("data = %v", blob.Data)
	}
}

func TestSession_SendAudioInvalidBase64(t *testing.T) {
	conn := newFakeConn()
	sess := newSession(conn, Handler{})

	if err := sess.SendAudio("%%%"); err == nil {
		t.Fatal("expected error for invalid base64")
	}
	if len(conn.sent) != 0 {
		t.Fatal("nothing should be sent upstream")
	}
}

func TestSession_CloseIsIdempotent(t *testing.T) {
	conn := newFakeConn()
	sess := newSession(conn, Handler{})

	for i := 0; i < 3; i++ {
		if err := sess.Close(); err != nil {
			t.Fatalf("Close #%d: %v", i, err)
		}
	}
	if conn.closeCount() != 1 {
		t.Fatalf("underlying Close called %d times, want 1", conn.closeCount())
	}
	if err := sess.SendAudio("AAA="); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("SendAudio after close = %v, want ErrSessionClosed", err)
	}
}

func TestSession_ReceiveErrorReported(t *testing.T) {
	conn := newFakeConn()
	rec := newRecorder()
	sess := newSession(conn, rec.handler())
	sess.start(nil)
	defer sess.Close()

	conn.incoming <- recvResult{err: errors.New("stream reset")}

	select {
	case err := <-rec.errs:
		if err.Error() != "stream reset" {
			t.Fatalf("err = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("OnError not called")
	}
}

func TestSession_NormalCloseReported(t *testing.T) {
	conn := newFakeConn()
	rec := newRecorder()
	sess := newSession(conn, rec.handler())
	sess.start(nil)
	defer sess.Close()

	conn.incoming <- recvResult{err: &websocket.CloseError{Code: websocket.CloseNormalClosure, Text: "bye"}}

	select {
	case reason := <-rec.closed:
		if reason != "bye" {
			t.Fatalf("reason = %q", reason)
		}
	case err := <-rec.errs:
		t.Fatalf("normal close reported as error: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("OnClose not called")
	}
}

func TestSession_LocalCloseIsNotAnError(t *testing.T) {
	conn := newFakeConn()
	rec := newRecorder()
	sess := newSession(conn, rec.handler())
	sess.start(nil)

	_ = sess.Close()

	select {
	case <-rec.closed:
	case err := <-rec.errs:
		t.Fatalf("local close reported as error: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("OnClose not called")
	}
}
