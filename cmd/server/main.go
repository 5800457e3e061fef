// Audio service - normalizes client audio with ffmpeg and serves batch and
// realtime transcription.
//
// Usage:
//
//	audio-service [serve] [--config audio.yaml]
//	audio-service convert <input> <output.wav> [--stream]
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
