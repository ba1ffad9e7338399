// Command bridge-client streams an audio file through the bridge the way the
// browser client does and records the relayed reply audio.
//
// Usage:
//
//	bridge-client --server ws://localhost:3000/ws --file user.wav --out reply.pcm
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
