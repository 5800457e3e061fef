package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/good-listener/backend/audio/internal/config"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "audio-service",
	Short: "Audio normalization and transcription service",
	Long: `audio-service converts uploaded or streamed audio to 16 kHz mono PCM and
hands it to a speech model.

Commands:
  serve     Run the HTTP and WebSocket server (default)
  convert   Convert a local file to 16 kHz mono WAV`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runServe,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file (environment overrides it)")
	rootCmd.AddCommand(serveCmd, convertCmd)
}

// loadConfig loads configuration and installs the default logger.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	var handler slog.Handler = slog.NewTextHandler(os.Stdout, opts)
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
	return cfg, nil
}
