package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/room4-2/livebridge/config"
	"github.com/room4-2/livebridge/gemini"
	"github.com/room4-2/livebridge/server"
	"github.com/room4-2/livebridge/session"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		if errors.Is(err, config.ErrMissingAPIKey) {
			log.Fatalf("❌ %v", err)
		}
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Upstream client shared by all sessions
	client, err := gemini.NewClient(ctx, cfg.GeminiAPIKey, cfg.GeminiBaseURL)
	if err != nil {
		log.Fatalf("Failed to create Gemini client: %v", err)
	}

	// Create session manager
	sessionManager := session.NewManager(cfg, session.GeminiDialer(client))

	// Keep registry entries alive
	go sessionManager.StartHeartbeat(ctx)

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	srv := server.NewServerWebsocket(cfg, sessionManager)

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		<-sigChan
		log.Println("Received shutdown signal...")
		cancel()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
	}()

	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("Server error: %v", err)
	}

	// Wait for sessions to close
	<-stopped

	log.Println("Server stopped")
}
