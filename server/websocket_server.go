package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/room4-2/livebridge/config"
	"github.com/room4-2/livebridge/messages"
	"github.com/room4-2/livebridge/session"
)

type healthResponse struct {
	Status   string `json:"status"`
	Sessions int    `json:"sessions"`
}

type Server struct {
	httpServer     *http.Server
	upgrader       websocket.Upgrader
	sessionManager *session.Manager
	config         *config.Config
	static         http.Handler
}

func NewServerWebsocket(cfg *config.Config, sessionManager *session.Manager) *Server {
	s := &Server{
		sessionManager: sessionManager,
		config:         cfg,
		static:         http.FileServer(http.Dir(cfg.StaticDir)),
		upgrader: websocket.Upgrader{
			ReadBufferSize:    64 * 1024, // 64KB for audio chunks
			WriteBufferSize:   64 * 1024, // 64KB for audio chunks
			EnableCompression: true,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if cfg.AllowsOrigin(origin) {
					return true
				}
				log.Printf("⛔ Rejected upgrade from origin %q", origin)
				return false
			},
		},
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	return s
}

// Handler returns the routes: the bridge endpoint, health and browser assets
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/", s.handleRoot)
	return mux
}

// Start begins listening for connections
func (s *Server) Start() error {
	log.Printf("🚀 Server starting on port %d", s.config.Port)
	log.Printf("📡 WebSocket endpoint: ws://localhost:%d/ws", s.config.Port)
	log.Printf("🌐 Serving browser assets from %s", s.config.StaticDir)
	return s.httpServer.ListenAndServe()
}

// Shutdown stops accepting connections, then tears down every live session
func (s *Server) Shutdown(ctx context.Context) error {
	log.Println("🛑 Shutting down server...")
	err := s.httpServer.Shutdown(ctx)
	s.sessionManager.Shutdown(ctx)
	return err
}

// handleRoot accepts upgrades on "/" like the browser client expects and
// serves static files otherwise.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if websocket.IsWebSocketUpgrade(r) {
		s.handleWebSocket(w, r)
		return
	}
	s.static.ServeHTTP(w, r)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	// Upgrade HTTP to WebSocket
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}
	conn := session.NewConn(ws, s.config.KeepAlivePeriod)

	// Create session
	clientSession, err := s.sessionManager.CreateSession(conn, r.RemoteAddr)
	if err != nil {
		log.Printf("Failed to create session: %v", err)
		// Send error and close
		conn.Send(messages.NewErrorMessage(err.Error()))
		code := websocket.CloseInternalServerErr
		if errors.Is(err, session.ErrMaxSessions) {
			code = websocket.CloseTryAgainLater
		}
		conn.Close(code, err.Error())
		return
	}

	log.Printf("✅ [%s] New session created for %s", clientSession.ShortID(), r.RemoteAddr)

	// Read until the client leaves or the session closes the connection
	conn.ReadLoop(clientSession.ShortID(), clientSession)

	// Wait for session to close
	<-clientSession.Done()
	log.Printf("🔌 [%s] Session ended: %s", clientSession.ShortID(), clientSession.State())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	body, err := messages.Marshal(healthResponse{
		Status:   "ok",
		Sessions: s.sessionManager.GetActiveSessionCount(),
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}
