package server

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"net/url"
	"sync/atomic"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/GriffinCanCode/good-listener/backend/audio/internal/session"
	"github.com/GriffinCanCode/good-listener/backend/audio/internal/trace"
)

var errConnClosed = errors.New("realtime connection closed")

// handleRealtime runs one transcription session per connection. A reader
// goroutine feeds a bounded inbox; this goroutine handles frames strictly
// in arrival order. When the inbox is full the reader stops reading, which
// pushes back on the client instead of queueing without bound.
func (s *Server) handleRealtime(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.originPatterns(),
	})
	if err != nil {
		trace.Logger(r.Context()).Error("websocket accept error", "error", err)
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()
	if limit := s.readLimit(); limit > 0 {
		conn.SetReadLimit(limit)
	}

	ctx, cancel := context.WithCancel(trace.WithSession(r.Context(), trace.NewSessionID()))
	defer cancel()
	log := trace.Logger(ctx)

	s.sessions.Add(1)
	s.deps.Metrics.SessionOpened()
	defer func() {
		s.sessions.Add(-1)
		s.deps.Metrics.SessionClosed()
	}()
	log.Info("realtime session connected", "remote", r.RemoteAddr)

	var closed atomic.Bool
	sink := session.SinkFunc(func(ctx context.Context, ev session.Event) error {
		if closed.Load() {
			return errConnClosed
		}
		wctx, wcancel := context.WithTimeout(ctx, WriteTimeout)
		defer wcancel()
		return wsjson.Write(wctx, conn, ev)
	})

	sess := session.New(session.Config{
		TriggerBytes:   s.cfg.TriggerBytes(),
		MaxBufferBytes: s.cfg.MaxBufferBytes,
		TempDir:        s.cfg.TempDir,
		Metrics:        s.deps.Metrics,
	}, s.deps.Converter, s.deps.Transcriber, sink)

	inbox := make(chan []byte, s.cfg.WSInboxSize)
	go s.readLoop(ctx, conn, inbox, sink, func() {
		closed.Store(true)
		cancel()
	})

	for raw := range inbox {
		if err := sess.Handle(ctx, raw); err != nil {
			log.Debug("realtime send failed", "error", err)
			break
		}
	}
	cancel()
	// Wait for the reader to exit.
	for range inbox {
	}
	sess.Close()
	log.Info("realtime session closed", "state", sess.State().String())
}

// readLoop reads text frames into inbox until the connection or ctx ends.
func (s *Server) readLoop(ctx context.Context, conn *websocket.Conn, inbox chan<- []byte, sink session.Sink, onClose func()) {
	defer close(inbox)
	defer onClose()

	log := trace.Logger(ctx)
	rl := newRateLimiter(s.cfg.WSRateLimit, RateLimitWindow)
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			log.Debug("websocket read ended", "error", err)
			return
		}
		if typ != websocket.MessageText {
			continue
		}
		if !rl.allow() {
			log.Warn("rate limit exceeded")
			_ = sink.Send(ctx, session.ErrorEvent("rate limit exceeded"))
			continue
		}
		select {
		case inbox <- data:
		case <-ctx.Done():
			return
		}
	}
}

// readLimit is the largest frame accepted before the connection is closed.
// It is raised above the base64 size of a full buffer so an oversized
// audio chunk reaches the buffer guard and costs only an Error event.
func (s *Server) readLimit() int64 {
	limit := s.cfg.WSMaxFrameBytes
	if s.cfg.MaxBufferBytes > 0 {
		need := int64(base64.StdEncoding.EncodedLen(s.cfg.MaxBufferBytes+1)) + frameOverhead
		limit = max(limit, need)
	}
	return limit
}

// originPatterns converts configured origins to the host patterns the
// websocket library matches against.
func (s *Server) originPatterns() []string {
	patterns := make([]string, 0, len(s.cfg.AllowedOrigins))
	for _, o := range s.cfg.AllowedOrigins {
		if o == "*" {
			return []string{"*"}
		}
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			patterns = append(patterns, u.Host)
			continue
		}
		patterns = append(patterns, o)
	}
	return patterns
}
