// Package server exposes the audio pipeline over HTTP: batch transcription
// and diarization uploads, the realtime WebSocket, health and metrics.
package server

import "time"

const (
	// Realtime connections
	WriteTimeout    = 5 * time.Second
	RateLimitWindow = time.Second
	frameOverhead   = 4 << 10 // JSON envelope and data URL prefix around a fragment

	// Multipart parsing keeps at most this much in memory; the rest spills to disk.
	multipartMemory = 8 << 20

	uploadField = "file"

	genericProcessingError = "error processing audio"
)
