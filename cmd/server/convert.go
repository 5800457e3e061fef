package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/good-listener/backend/audio/internal/audio"
	"github.com/GriffinCanCode/good-listener/backend/audio/internal/convert"
)

var streamProfile bool

var convertCmd = &cobra.Command{
	Use:   "convert <input> <output.wav>",
	Short: "Convert a local file to 16 kHz mono WAV",
	Long: `Runs the same conversion the server applies to uploads. With --stream the
input is read as a WebM/Opus fragment, the way realtime audio is.`,
	Args: cobra.ExactArgs(2),
	RunE: runConvert,
}

func init() {
	convertCmd.Flags().BoolVar(&streamProfile, "stream", false, "force the WebM/Opus demuxer")
}

func runConvert(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}

	profile := convert.Auto
	if streamProfile {
		profile = convert.Stream
	}
	conv := convert.New(convert.Config{
		Binary:  cfg.FFmpegPath,
		Timeout: cfg.ConversionTimeout,
	})
	pcm, err := conv.Convert(cmd.Context(), audio.Blob{Data: data}, profile)
	if err != nil {
		return err
	}

	wav, err := pcm.WAV()
	if err != nil {
		return err
	}
	if err := os.WriteFile(args[1], wav, 0o644); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s: %s, %d samples\n", args[1], pcm.Duration(), len(pcm.Samples()))
	return nil
}
