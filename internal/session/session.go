// Package session implements the realtime transcription protocol: a
// per-connection state machine that buffers base64 audio fragments after a
// readiness handshake and runs a conversion + transcription pass whenever
// enough audio has arrived.
package session

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strings"
	"sync/atomic"

	"github.com/GriffinCanCode/good-listener/backend/audio/internal/audio"
	"github.com/GriffinCanCode/good-listener/backend/audio/internal/convert"
	apperrors "github.com/GriffinCanCode/good-listener/backend/audio/internal/errors"
	"github.com/GriffinCanCode/good-listener/backend/audio/internal/inference"
	"github.com/GriffinCanCode/good-listener/backend/audio/internal/metrics"
	"github.com/GriffinCanCode/good-listener/backend/audio/internal/trace"
)

// Converter is satisfied by *convert.Converter.
type Converter interface {
	Convert(ctx context.Context, in audio.Blob, p convert.Profile) (convert.PCM, error)
}

// Config tunes a session.
type Config struct {
	TriggerBytes   int
	MaxBufferBytes int // 0 disables the guard
	TempDir        string
	Metrics        *metrics.Metrics
}

// Session is bound to one realtime connection. Handle must be called from a
// single goroutine, in message arrival order.
type Session struct {
	cfg   Config
	conv  Converter
	tr    inference.Transcriber
	sink  Sink
	acc   *Accumulator
	state atomic.Int32
}

// New creates a session in AwaitingCommand.
func New(cfg Config, conv Converter, tr inference.Transcriber, sink Sink) *Session {
	s := &Session{
		cfg:  cfg,
		conv: conv,
		tr:   tr,
		sink: sink,
		acc:  NewAccumulator(cfg.TriggerBytes, cfg.MaxBufferBytes),
	}
	s.state.Store(int32(AwaitingCommand))
	return s
}

func (s *Session) State() State      { return State(s.state.Load()) }
func (s *Session) Buffered() int     { return s.acc.Len() }
func (s *Session) setState(st State) { s.state.Store(int32(st)) }

// Close moves the session to Closed and releases the buffer. Further
// messages are ignored. Safe to call from any goroutine once Handle has
// returned.
func (s *Session) Close() {
	s.setState(Closed)
	s.acc.Reset()
}

// Handle processes one client frame. Malformed frames never end the
// session; the returned error is non-nil only when the sink failed.
func (s *Session) Handle(ctx context.Context, raw []byte) error {
	if s.State() == Closed {
		return nil
	}
	log := trace.Logger(ctx)

	var msg inbound
	if err := json.Unmarshal(raw, &msg); err != nil {
		log.Debug("invalid realtime frame", "error", err)
		return s.send(ctx, ErrorEvent("invalid message"))
	}

	if msg.Cmd != nil {
		if *msg.Cmd != CmdStartAnalysis {
			return s.send(ctx, ErrorEvent("unsupported command"))
		}
		if s.State() == AwaitingCommand {
			s.setState(Streaming)
		}
		log.Info("realtime session ready")
		return s.send(ctx, Ready())
	}

	if msg.Audio == nil {
		return nil
	}
	if s.State() != Streaming {
		// Audio before the handshake is dropped, not queued.
		return nil
	}

	frag, err := decodeFragment(*msg.Audio)
	if err != nil {
		log.Debug("skipping undecodable audio fragment", "error", err)
		return nil
	}

	if !s.acc.Fits(len(frag)) {
		err := apperrors.Newf(apperrors.BufferOverflow, "buffer would reach %d bytes, limit %d", s.acc.Len()+len(frag), s.cfg.MaxBufferBytes)
		log.Warn("realtime buffer limit exceeded", "error", err)
		s.acc.Reset()
		s.cfg.Metrics.ObserveTrigger(apperrors.BufferOverflow.String(), 0)
		return s.send(ctx, ErrorEvent(apperrors.PublicMessage(err)))
	}

	if s.acc.Append(frag) {
		return s.trigger(ctx)
	}
	return nil
}

// trigger drains the buffer and runs one transcription pass. The buffer is
// empty and the session back in Streaming on every return path.
func (s *Session) trigger(ctx context.Context) error {
	s.setState(Triggering)
	data := s.acc.Drain()
	defer func() {
		s.acc.Reset()
		s.state.CompareAndSwap(int32(Triggering), int32(Streaming))
	}()

	ctx, span := trace.StartSpan(ctx, "realtime_trigger")
	span.SetAttr("buffered_bytes", len(data))
	text, err := s.transcribe(ctx, data)
	span.End()

	if err != nil {
		code := apperrors.CodeOf(err)
		trace.Logger(ctx).Warn("transcription pass failed", "code", code.String(), "error", err, "span", span)
		s.cfg.Metrics.ObserveTrigger(code.String(), len(data))
		return s.send(ctx, ErrorEvent(apperrors.PublicMessage(err)))
	}

	trace.Logger(ctx).Debug("transcription pass complete", "span", span, "chars", len(text))
	s.cfg.Metrics.ObserveTrigger("ok", len(data))
	return s.send(ctx, Transcript(strings.TrimSpace(text)))
}

func (s *Session) transcribe(ctx context.Context, data []byte) (string, error) {
	// The conversion is not tied to the connection: if the client leaves it
	// still finishes or times out, and the result is dropped.
	pcm, err := s.conv.Convert(context.WithoutCancel(ctx), audio.Blob{Data: data, MIME: "audio/webm"}, convert.Stream)
	if err != nil {
		return "", err
	}
	tf, err := pcm.Persist(s.cfg.TempDir)
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.Internal, "persist converted audio")
	}
	defer tf.Release()

	return s.tr.Transcribe(ctx, tf.Path())
}

func (s *Session) send(ctx context.Context, ev Event) error {
	if s.State() == Closed {
		return nil
	}
	return s.sink.Send(ctx, ev)
}

// decodeFragment accepts plain base64 or a data URL ("data:audio/webm;base64,...").
func decodeFragment(v string) ([]byte, error) {
	if i := strings.LastIndexByte(v, ','); i >= 0 {
		v = v[i+1:]
	}
	v = strings.TrimSpace(v)
	b, err := base64.StdEncoding.DecodeString(v)
	if err != nil {
		if raw, rawErr := base64.RawStdEncoding.DecodeString(strings.TrimRight(v, "=")); rawErr == nil {
			return raw, nil
		}
		return nil, err
	}
	return b, nil
}
