// Package convert normalizes arbitrary encoded audio into canonical PCM by
// driving an external ffmpeg process over stdin/stdout.
package convert

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/GriffinCanCode/good-listener/backend/audio/internal/audio"
	apperrors "github.com/GriffinCanCode/good-listener/backend/audio/internal/errors"
	"github.com/GriffinCanCode/good-listener/backend/audio/internal/metrics"
	"github.com/GriffinCanCode/good-listener/backend/audio/internal/trace"
)

// Config tunes the converter.
type Config struct {
	Binary         string
	BaseArgs       []string // placed before the generated ffmpeg flags
	Env            []string // appended to the process environment
	Timeout        time.Duration
	MinOutputBytes int
	MaxConcurrent  int64 // 0 means unbounded
	Metrics        *metrics.Metrics
}

// Converter runs one subprocess per call. It holds no per-call state and is
// safe for concurrent use.
type Converter struct {
	cfg Config
	sem *semaphore.Weighted
}

// New creates a converter, filling zero fields with defaults.
func New(cfg Config) *Converter {
	if cfg.Binary == "" {
		cfg.Binary = DefaultBinary
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MinOutputBytes <= 0 {
		cfg.MinOutputBytes = DefaultMinOutputBytes
	}
	c := &Converter{cfg: cfg}
	if cfg.MaxConcurrent > 0 {
		c.sem = semaphore.NewWeighted(cfg.MaxConcurrent)
	}
	return c
}

// Args returns the full argument list used for profile p.
func (c *Converter) Args(p Profile) []string {
	args := append([]string{}, c.cfg.BaseArgs...)
	args = append(args, "-hide_banner", "-loglevel", "error", "-nostdin",
		"-fflags", "+discardcorrupt", "-ignore_unknown")
	if p == Stream {
		args = append(args, "-f", "webm", "-c:a", "libopus")
	}
	return append(args, "-i", "pipe:0",
		"-vn", "-ar", "16000", "-ac", "1", "-c:a", "pcm_s16le", "-f", "s16le", "pipe:1")
}

// Convert writes in to the converter, waits for it to exit and returns its
// output as canonical PCM. The whole exchange is bounded by the configured
// timeout; on expiry the process is killed and reaped before returning.
func (c *Converter) Convert(ctx context.Context, in audio.Blob, p Profile) (PCM, error) {
	start := time.Now()
	pcm, err := c.convert(ctx, in, p)

	result := "ok"
	if err != nil {
		result = apperrors.CodeOf(err).String()
		trace.Logger(ctx).Warn("audio conversion failed",
			"profile", p.String(), "input_bytes", len(in.Data), "code", result, "error", err)
	}
	c.cfg.Metrics.ObserveConversion(p.String(), result, time.Since(start))
	return pcm, err
}

func (c *Converter) convert(ctx context.Context, in audio.Blob, p Profile) (PCM, error) {
	if len(in.Data) == 0 {
		return PCM{}, apperrors.New(apperrors.InvalidArgument, "empty audio input")
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	if c.sem != nil {
		if err := c.sem.Acquire(ctx, 1); err != nil {
			return PCM{}, contextError(ctx, err)
		}
		defer c.sem.Release(1)
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, c.cfg.Binary, c.Args(p)...)
	cmd.Stdin = bytes.NewReader(in.Data)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = waitDelay
	if len(c.cfg.Env) > 0 {
		cmd.Env = append(os.Environ(), c.cfg.Env...)
	}

	// Run waits for the process in every case, including after a kill.
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return PCM{}, contextError(ctx, err)
		}
		if errors.Is(err, exec.ErrNotFound) {
			return PCM{}, apperrors.Wrapf(err, apperrors.ConversionFailed, "converter binary %q not found", c.cfg.Binary)
		}
		diag := truncate(strings.TrimSpace(stderr.String()), maxStderrBytes)
		if strings.Contains(diag, corruptInputMarker) {
			return PCM{}, apperrors.Wrap(err, apperrors.CorruptHeader, "converter rejected input data").
				WithMetadata("stderr", diag)
		}
		return PCM{}, apperrors.Wrap(err, apperrors.ConversionFailed, "converter exited with error").
			WithMetadata("stderr", diag)
	}

	out := stdout.Bytes()
	if len(out) < c.cfg.MinOutputBytes {
		return PCM{}, apperrors.Newf(apperrors.EmptyResult, "converter produced %d bytes", len(out))
	}
	// Whole samples only.
	out = out[:len(out)&^1]
	return PCM{data: out}, nil
}

func contextError(ctx context.Context, cause error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return apperrors.Wrap(cause, apperrors.ConversionTimeout, "audio conversion timed out")
	}
	return apperrors.Wrap(cause, apperrors.Cancelled, "audio conversion cancelled")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
