package main

import (
	"encoding/base64"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/room4-2/livebridge/messages"
	"github.com/spf13/cobra"
)

// reply is the union of what the bridge sends: relayed audio, an error
// notice, or upstream metadata passed through untouched.
type reply struct {
	Type  string `json:"type"`
	Data  string `json:"data"`
	Error string `json:"error"`
}

var rootCmd = &cobra.Command{
	Use:   "bridge-client",
	Short: "Stream an audio file through the bridge",
	Long: `Connects to the bridge WebSocket endpoint, sends the file as 100ms
audio chunks and writes every relayed AUDIO message to the output file
(24kHz PCM16 as produced upstream).

Input formats:
  pcm16  raw signed 16-bit little-endian mono at --rate
  wav    PCM16 mono WAV, rate read from the header
  f32    raw float32 little-endian mono at --rate (like the browser capture)

Examples:
  bridge-client --file user.pcm --out reply.pcm
  bridge-client --file mic.f32 --format f32 --rate 48000 --play`,
	RunE: func(cmd *cobra.Command, args []string) error {
		serverURL, _ := cmd.Flags().GetString("server")
		file, _ := cmd.Flags().GetString("file")
		format, _ := cmd.Flags().GetString("format")
		rate, _ := cmd.Flags().GetInt("rate")
		out, _ := cmd.Flags().GetString("out")
		play, _ := cmd.Flags().GetBool("play")
		wait, _ := cmd.Flags().GetDuration("wait")

		src, err := loadSource(file, format, rate)
		if err != nil {
			return err
		}
		chunks, err := src.chunks()
		if err != nil {
			return err
		}

		return run(serverURL, chunks, out, play, wait)
	},
}

func init() {
	rootCmd.Flags().String("server", "ws://localhost:3000/ws", "Bridge WebSocket URL")
	rootCmd.Flags().StringP("file", "f", "", "Audio file to send")
	rootCmd.Flags().String("format", "", "Input format: pcm16, wav or f32 (default: from extension)")
	rootCmd.Flags().Int("rate", 16000, "Sample rate of raw input")
	rootCmd.Flags().StringP("out", "o", "reply.pcm", "File receiving relayed audio (empty to skip)")
	rootCmd.Flags().Bool("play", false, "Play relayed audio through sox")
	rootCmd.Flags().Duration("wait", 30*time.Second, "How long to wait for replies after sending")
	_ = rootCmd.MarkFlagRequired("file")
}

func run(serverURL string, chunks []string, outPath string, play bool, wait time.Duration) error {
	log.Printf("🔌 Connecting to %s...", serverURL)

	// Connect to server
	conn, _, err := websocket.DefaultDialer.Dial(serverURL, nil)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer conn.Close()

	log.Println("✅ Connected!")

	var out *os.File
	if outPath != "" {
		out, err = os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create output: %w", err)
		}
		defer out.Close()
	}

	var player *AudioPlayer
	if play {
		player = NewAudioPlayer()
		if player == nil {
			return fmt.Errorf("failed to create audio player (is sox installed?)")
		}
		defer player.Close()
	}

	// Handle interrupt
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	done := make(chan struct{})
	var received atomic.Int64

	// Read responses from server
	go func() {
		defer close(done)
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				if ce, ok := err.(*websocket.CloseError); ok {
					log.Printf("🔌 Closed by bridge: %d %s", ce.Code, ce.Text)
				} else {
					log.Println("Read error:", err)
				}
				return
			}

			var msg reply
			if err := messages.Unmarshal(raw, &msg); err != nil {
				log.Println("Parse error:", err)
				continue
			}

			switch {
			case msg.Type == messages.TypeAudio:
				audioBytes, err := base64.StdEncoding.DecodeString(msg.Data)
				if err != nil {
					log.Println("Bad audio payload:", err)
					continue
				}
				received.Add(int64(len(audioBytes)))
				log.Printf("🔊 Audio: %d bytes", len(audioBytes))
				if out != nil {
					_, _ = out.Write(audioBytes)
				}
				if player != nil {
					player.Play(audioBytes)
				}
			case msg.Error != "":
				log.Printf("❌ Error: %s", msg.Error)
			default:
				log.Printf("📊 %s", raw)
			}
		}
	}()

	// Send audio in chunks (simulating real-time streaming)
	for i, chunk := range chunks {
		data, err := messages.Marshal(messages.NewAudioChunkMessage(chunk))
		if err != nil {
			return err
		}
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			log.Printf("Send error: %v", err)
			break
		}
		log.Printf("📤 Sent chunk %d/%d", i+1, len(chunks))

		// Simulate real-time streaming pace
		select {
		case <-time.After(chunkDuration):
		case <-done:
			return nil
		}
	}

	log.Println("✅ Audio sent, waiting for response...")

	// Wait for response or interrupt
	select {
	case <-done:
	case <-interrupt:
		log.Println("👋 Interrupted, closing...")
	case <-time.After(wait):
		log.Println("⏰ Done waiting for response")
	}

	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	if outPath != "" {
		log.Printf("💾 %d bytes of relayed audio written to %s", received.Load(), outPath)
	}
	return nil
}
