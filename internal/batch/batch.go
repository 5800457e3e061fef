// Package batch implements the one-shot transcription and diarization
// endpoints: validate, convert, persist to a scratch file, call the
// collaborator, release the file.
package batch

import (
	"context"
	"strings"

	"github.com/GriffinCanCode/good-listener/backend/audio/internal/audio"
	"github.com/GriffinCanCode/good-listener/backend/audio/internal/convert"
	apperrors "github.com/GriffinCanCode/good-listener/backend/audio/internal/errors"
	"github.com/GriffinCanCode/good-listener/backend/audio/internal/inference"
	"github.com/GriffinCanCode/good-listener/backend/audio/internal/trace"
)

// Converter is satisfied by *convert.Converter.
type Converter interface {
	Convert(ctx context.Context, in audio.Blob, p convert.Profile) (convert.PCM, error)
}

// Config tunes the service.
type Config struct {
	MinAudioBytes      int
	DefaultNumSpeakers int
	TempDir            string
}

// Service runs batch requests. It is safe for concurrent use.
type Service struct {
	cfg  Config
	conv Converter
	tr   inference.Transcriber
	di   inference.Diarizer
}

// New creates a Service.
func New(cfg Config, conv Converter, tr inference.Transcriber, di inference.Diarizer) *Service {
	if cfg.DefaultNumSpeakers <= 0 {
		cfg.DefaultNumSpeakers = 2
	}
	return &Service{cfg: cfg, conv: conv, tr: tr, di: di}
}

// DefaultNumSpeakers is used when a request does not name a speaker count.
func (s *Service) DefaultNumSpeakers() int { return s.cfg.DefaultNumSpeakers }

// TranscribeOnce returns the trimmed transcript of blob. Validation errors
// carry apperrors.InvalidArgument; every other failure is returned as-is.
func (s *Service) TranscribeOnce(ctx context.Context, blob audio.Blob) (string, error) {
	if err := blob.Validate(s.cfg.MinAudioBytes); err != nil {
		return "", err
	}

	var text string
	err := s.withPCM(ctx, blob, func(path string) error {
		var err error
		text, err = s.tr.Transcribe(ctx, path)
		return err
	})
	if err != nil {
		trace.Logger(ctx).Error("batch transcription failed", "code", apperrors.CodeOf(err).String(), "error", err)
		return "", err
	}
	return strings.TrimSpace(text), nil
}

// DiarizeOnce returns speaker turns for blob. It never fails: any error
// degrades to an empty, non-nil slice so a flaky diarization backend cannot
// break the caller.
func (s *Service) DiarizeOnce(ctx context.Context, blob audio.Blob, numSpeakers int) []inference.Segment {
	if numSpeakers <= 0 {
		numSpeakers = s.cfg.DefaultNumSpeakers
	}

	var segs []inference.Segment
	err := blob.Validate(s.cfg.MinAudioBytes)
	if err == nil {
		err = s.withPCM(ctx, blob, func(path string) error {
			var err error
			segs, err = s.di.Diarize(ctx, path, numSpeakers)
			return err
		})
	}
	if err != nil {
		trace.Logger(ctx).Warn("diarization failed, returning no segments",
			"code", apperrors.CodeOf(err).String(), "error", err)
		return []inference.Segment{}
	}
	if segs == nil {
		segs = []inference.Segment{}
	}
	return segs
}

// withPCM converts blob, persists it and hands the file path to fn. The file
// is removed on every return path.
func (s *Service) withPCM(ctx context.Context, blob audio.Blob, fn func(path string) error) error {
	pcm, err := s.conv.Convert(ctx, blob, convert.Auto)
	if err != nil {
		return err
	}
	tf, err := pcm.Persist(s.cfg.TempDir)
	if err != nil {
		return apperrors.Wrap(err, apperrors.Internal, "persist converted audio")
	}
	defer tf.Release()
	return fn(tf.Path())
}
