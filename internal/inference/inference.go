// Package inference defines the speech-to-text and diarization
// collaborators the pipeline calls, plus backends and call wrappers.
// Every collaborator takes the path of a 16 kHz mono WAV file.
package inference

import "context"

// Transcriber turns a canonical PCM WAV file into text.
type Transcriber interface {
	Transcribe(ctx context.Context, path string) (string, error)
}

// Diarizer labels who spoke when in a canonical PCM WAV file.
type Diarizer interface {
	Diarize(ctx context.Context, path string, numSpeakers int) ([]Segment, error)
}

// Segment is one diarization turn. Segments are returned in the order the
// backend produced them; callers must not assume they are sorted.
type Segment struct {
	Start float64 // seconds
	End   float64 // seconds
	Label string
}

// Checker is implemented by backends that can report readiness.
type Checker interface {
	Ready(ctx context.Context) error
}

// TranscriberFunc adapts a function to Transcriber.
type TranscriberFunc func(ctx context.Context, path string) (string, error)

func (f TranscriberFunc) Transcribe(ctx context.Context, path string) (string, error) {
	return f(ctx, path)
}

// DiarizerFunc adapts a function to Diarizer.
type DiarizerFunc func(ctx context.Context, path string, numSpeakers int) ([]Segment, error)

func (f DiarizerFunc) Diarize(ctx context.Context, path string, numSpeakers int) ([]Segment, error) {
	return f(ctx, path, numSpeakers)
}
