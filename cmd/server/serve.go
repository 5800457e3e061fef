package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/GriffinCanCode/good-listener/backend/audio/internal/batch"
	"github.com/GriffinCanCode/good-listener/backend/audio/internal/config"
	"github.com/GriffinCanCode/good-listener/backend/audio/internal/convert"
	"github.com/GriffinCanCode/good-listener/backend/audio/internal/grpcclient"
	"github.com/GriffinCanCode/good-listener/backend/audio/internal/inference"
	"github.com/GriffinCanCode/good-listener/backend/audio/internal/metrics"
	"github.com/GriffinCanCode/good-listener/backend/audio/internal/resilience"
	"github.com/GriffinCanCode/good-listener/backend/audio/internal/server"
)

const (
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 5 * time.Second
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP and WebSocket server",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	srv, b, err := buildServer(cfg, metrics.New())
	if err != nil {
		return err
	}
	defer b.close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		// Realtime sessions end when the process is asked to stop.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("audio service starting",
			"http", cfg.HTTPAddr,
			"transcriber", cfg.Transcriber,
			"inference", cfg.InferenceAddr,
			"model", cfg.WhisperModel,
			"device", cfg.ComputeDevice)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	slog.Info("shutdown complete", "sessions", srv.ActiveSessions())
	return nil
}

// buildServer wires the converter, inference backends and batch service
// into an HTTP server. The caller closes the returned backends.
func buildServer(cfg *config.Config, m *metrics.Metrics) (*server.Server, *backends, error) {
	conv := convert.New(convert.Config{
		Binary:        cfg.FFmpegPath,
		Timeout:       cfg.ConversionTimeout,
		MaxConcurrent: cfg.MaxConcurrentConversions,
		Metrics:       m,
	})

	b, err := newBackends(cfg)
	if err != nil {
		return nil, nil, err
	}

	tr, di := b.transcriber, b.diarizer
	if cfg.ExclusiveModel {
		tr, di = inference.Exclusive(tr, di)
	}
	tr, di = inference.WithDeadline(tr, di, cfg.InferenceTimeout)
	tr, di = inference.Instrument(tr, di, m)

	svc := batch.New(batch.Config{
		MinAudioBytes:      cfg.MinAudioBytes,
		DefaultNumSpeakers: cfg.DefaultNumSpeakers,
		TempDir:            cfg.TempDir,
	}, conv, tr, di)

	srv := server.New(cfg, server.Deps{
		Batch:       svc,
		Converter:   conv,
		Transcriber: tr,
		Checker:     b.checker,
		Metrics:     m,
	})
	return srv, b, nil
}

// backends holds the undecorated inference collaborators.
type backends struct {
	transcriber inference.Transcriber
	diarizer    inference.Diarizer
	checker     inference.Checker
	closers     []func() error
}

func newBackends(cfg *config.Config) (*backends, error) {
	b := &backends{diarizer: inference.Unavailable}

	if cfg.InferenceAddr != "" {
		client, err := grpcclient.New(grpcclient.Config{
			Addr:    cfg.InferenceAddr,
			Model:   cfg.WhisperModel,
			Device:  cfg.ComputeDevice,
			Breaker: resilience.DefaultConfig(),
			Retry:   resilience.DefaultRetryConfig(),
		})
		if err != nil {
			return nil, err
		}
		b.transcriber, b.diarizer, b.checker = client, client, client
		b.closers = append(b.closers, client.Close)
	}

	if cfg.Transcriber == config.TranscriberOpenAI {
		b.transcriber = inference.NewOpenAI(inference.OpenAIConfig{
			APIKey:  cfg.OpenAIAPIKey,
			BaseURL: cfg.OpenAIBaseURL,
		})
	}
	return b, nil
}

func (b *backends) close() {
	for _, c := range b.closers {
		if err := c(); err != nil {
			slog.Warn("failed to close inference backend", "error", err)
		}
	}
}
