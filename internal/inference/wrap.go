package inference

import (
	"context"
	"sync"
	"time"

	apperrors "github.com/GriffinCanCode/good-listener/backend/audio/internal/errors"
	"github.com/GriffinCanCode/good-listener/backend/audio/internal/metrics"
	"github.com/GriffinCanCode/good-listener/backend/audio/internal/trace"
)

// Exclusive serializes calls to a model binding that is not safe for
// concurrent use. Both returned collaborators share one lock, so a
// transcription and a diarization never overlap either.
func Exclusive(t Transcriber, d Diarizer) (Transcriber, Diarizer) {
	var mu sync.Mutex
	et := TranscriberFunc(func(ctx context.Context, path string) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		return t.Transcribe(ctx, path)
	})
	ed := DiarizerFunc(func(ctx context.Context, path string, n int) ([]Segment, error) {
		mu.Lock()
		defer mu.Unlock()
		return d.Diarize(ctx, path, n)
	})
	return et, ed
}

// WithDeadline bounds every call by timeout. Zero leaves calls unbounded.
func WithDeadline(t Transcriber, d Diarizer, timeout time.Duration) (Transcriber, Diarizer) {
	if timeout <= 0 {
		return t, d
	}
	bt := TranscriberFunc(func(ctx context.Context, path string) (string, error) {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		text, err := t.Transcribe(ctx, path)
		return text, deadlineError(ctx, err)
	})
	bd := DiarizerFunc(func(ctx context.Context, path string, n int) ([]Segment, error) {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		segs, err := d.Diarize(ctx, path, n)
		return segs, deadlineError(ctx, err)
	})
	return bt, bd
}

func deadlineError(ctx context.Context, err error) error {
	if err != nil && ctx.Err() == context.DeadlineExceeded && !apperrors.IsCode(err, apperrors.Timeout) {
		return apperrors.Wrap(err, apperrors.Timeout, "inference deadline exceeded")
	}
	return err
}

// Instrument records latency and logs failures of every call.
func Instrument(t Transcriber, d Diarizer, m *metrics.Metrics) (Transcriber, Diarizer) {
	it := TranscriberFunc(func(ctx context.Context, path string) (string, error) {
		start := time.Now()
		text, err := t.Transcribe(ctx, path)
		observe(ctx, m, "transcribe", start, err)
		return text, err
	})
	id := DiarizerFunc(func(ctx context.Context, path string, n int) ([]Segment, error) {
		start := time.Now()
		segs, err := d.Diarize(ctx, path, n)
		observe(ctx, m, "diarize", start, err)
		return segs, err
	})
	return it, id
}

func observe(ctx context.Context, m *metrics.Metrics, op string, start time.Time, err error) {
	result := "ok"
	if err != nil {
		result = apperrors.FromGRPCError(err).Code.String()
		trace.Logger(ctx).Warn("inference call failed", "op", op, "code", result, "error", err)
	}
	m.ObserveInference(op, result, time.Since(start))
}

// Unavailable is the diarizer used when no diarization backend is configured.
var Unavailable Diarizer = DiarizerFunc(func(context.Context, string, int) ([]Segment, error) {
	return nil, apperrors.New(apperrors.Unavailable, "no diarization backend configured")
})
