package session

import (
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/room4-2/livebridge/messages"
)

const (
	writeBufferSize = 256
	writeTimeout    = 10 * time.Second
	maxMessageSize  = 512 * 1024
)

// Inbound receives what the downstream connection reads
type Inbound interface {
	HandleAudio(data string)
	DownstreamClosed()
}

type closeFrame struct {
	code   int
	reason string
}

// Conn is the browser side of a session: one websocket connection with a
// single writer goroutine.
type Conn struct {
	ws        *websocket.Conn
	keepAlive time.Duration

	// Use channels for non-blocking writes
	writeChan chan any
	pumpDone  chan struct{}

	mu       sync.RWMutex
	closed   bool
	gone     chan struct{}
	goneOnce sync.Once
}

// NewConn wraps an upgraded connection and starts its write pump.
// keepAlive > 0 enables periodic pings.
func NewConn(ws *websocket.Conn, keepAlive time.Duration) *Conn {
	// Configure WebSocket for better performance
	ws.SetReadLimit(maxMessageSize)
	ws.EnableWriteCompression(true)
	_ = ws.SetCompressionLevel(6)

	c := &Conn{
		ws:        ws,
		keepAlive: keepAlive,
		writeChan: make(chan any, writeBufferSize),
		pumpDone:  make(chan struct{}),
		gone:      make(chan struct{}),
	}
	go c.writePump()
	return c
}

// IsOpen reports whether messages can still be sent
func (c *Conn) IsOpen() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.closed
}

// Send queues msg for the client. Events can arrive from upstream after the
// client left, so a closed connection silently drops them.
func (c *Conn) Send(msg any) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return
	}
	select {
	case c.writeChan <- msg:
	case <-c.pumpDone:
	}
}

// Close flushes queued messages, then sends a close frame and drops the connection.
func (c *Conn) Close(code int, reason string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	select {
	case c.writeChan <- closeFrame{code: code, reason: reason}:
	case <-c.pumpDone:
	}
}

// markGone stops all writes without a close handshake
func (c *Conn) markGone() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.goneOnce.Do(func() { close(c.gone) })
}

// writePump handles all outgoing messages in a single goroutine
func (c *Conn) writePump() {
	var ping <-chan time.Time
	if c.keepAlive > 0 {
		ticker := time.NewTicker(c.keepAlive)
		defer ticker.Stop()
		ping = ticker.C
	}

	defer func() {
		// pumpDone first: a blocked Send holds the read lock markGone needs
		close(c.pumpDone)
		c.markGone()
		c.ws.Close()
	}()

	for {
		select {
		case <-c.gone:
			return

		case <-ping:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				return
			}

		case item := <-c.writeChan:
			if cf, ok := item.(closeFrame); ok {
				_ = c.ws.WriteControl(
					websocket.CloseMessage,
					websocket.FormatCloseMessage(cf.code, cf.reason),
					time.Now().Add(writeTimeout),
				)
				return
			}

			data, err := messages.Marshal(item)
			if err != nil {
				log.Printf("⚠️ Failed to encode message for client: %v", err)
				continue
			}
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		}
	}
}

// ReadLoop reads client messages until the connection ends, then reports
// the close to sink. tag prefixes log lines.
func (c *Conn) ReadLoop(tag string, sink Inbound) {
	defer sink.DownstreamClosed()
	defer c.markGone()

	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			if c.IsOpen() && websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("❌ [%s] WebSocket read error: %v", tag, err)
			}
			return
		}
		c.onInboundMessage(tag, raw, sink)
	}
}

// onInboundMessage forwards audio chunks; parse failures are logged and the
// connection stays open.
func (c *Conn) onInboundMessage(tag string, raw []byte, sink Inbound) {
	msg, err := messages.DecodeClientMessage(raw)
	if err != nil {
		log.Printf("⚠️ [%s] Failed to parse client message: %v", tag, err)
		return
	}
	if msg.Kind() == messages.KindAudio {
		sink.HandleAudio(msg.Audio.Data)
	}
}
