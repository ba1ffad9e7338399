// Command upstream-probe opens one upstream Live session with the bridge's
// configuration to check credentials, model and instruction file.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/room4-2/livebridge/audio"
	"github.com/room4-2/livebridge/config"
	"github.com/room4-2/livebridge/gemini"
	"github.com/room4-2/livebridge/messages"
	"github.com/room4-2/livebridge/session"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "upstream-probe",
	Short: "Open one upstream session with the bridge configuration",
	Long: `Reads the same environment and .env file as the bridge, opens a Live
session with the configured model, voice and instruction file, reports the
setup outcome, then closes the session.

With --silence the probe also streams a second of silent audio and prints
the events that come back during --listen.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		prompt, _ := cmd.Flags().GetString("prompt")
		silence, _ := cmd.Flags().GetBool("silence")
		listen, _ := cmd.Flags().GetDuration("listen")
		timeout, _ := cmd.Flags().GetDuration("timeout")

		cfg, err := config.LoadConfig()
		if err != nil {
			return err
		}
		if prompt != "" {
			cfg.SystemPromptFile = prompt
		}

		liveCfg, err := session.FileConfigLoader(cfg)()
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return probe(ctx, cfg, liveCfg, silence, listen)
	},
}

func init() {
	rootCmd.Flags().String("prompt", "", "Instruction file (default: SYSTEM_PROMPT_FILE)")
	rootCmd.Flags().Bool("silence", false, "Stream one second of silence after setup")
	rootCmd.Flags().Duration("listen", 5*time.Second, "How long to print upstream events")
	rootCmd.Flags().Duration("timeout", 15*time.Second, "Setup timeout")
}

func probe(ctx context.Context, cfg *config.Config, liveCfg gemini.Config, silence bool, listen time.Duration) error {
	client, err := gemini.NewClient(ctx, cfg.GeminiAPIKey, cfg.GeminiBaseURL)
	if err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}

	log.Printf("🔌 Opening %s (voice %s, %s)...", liveCfg.Model, liveCfg.VoiceName, liveCfg.LanguageCode)
	start := time.Now()

	ended := make(chan struct{}, 1)
	sess, err := client.Open(ctx, liveCfg, gemini.Handler{
		OnOpen: func() {
			log.Printf("✅ Setup complete in %v", time.Since(start).Round(time.Millisecond))
		},
		OnEvent: func(ev gemini.Event) {
			if ev.IsAudio() {
				log.Printf("🔊 Received audio: %d bytes", len(ev.Audio))
				return
			}
			data, _ := messages.Marshal(ev.Metadata)
			log.Printf("📊 %s", data)
		},
		OnError: func(err error) {
			log.Printf("❌ Error: %v", err)
			signalEnd(ended)
		},
		OnClose: func(reason string) {
			log.Printf("🔌 Closed: %s", reason)
			signalEnd(ended)
		},
	})
	if err != nil {
		return err
	}
	defer sess.Close()

	if silence {
		enc, err := audio.NewEncoder(audio.TargetRate)
		if err != nil {
			return err
		}
		block := make([]float32, audio.TargetRate/10)
		for i := 0; i < 10; i++ {
			payload, err := enc.Encode(block)
			if err != nil {
				return err
			}
			if err := sess.SendAudio(payload); err != nil {
				return fmt.Errorf("send audio: %w", err)
			}
		}
		log.Println("📤 Sent 1s of silence")
	}

	select {
	case <-time.After(listen):
	case <-ended:
	}
	log.Println("Done")
	return nil
}

func signalEnd(ch chan<- struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
