// Package audio holds the byte-level types shared by the conversion and
// inference layers: uploaded blobs, WAV framing and scratch files.
package audio

import (
	"strings"

	"github.com/gabriel-vasile/mimetype"

	apperrors "github.com/GriffinCanCode/good-listener/backend/audio/internal/errors"
)

// Blob is an opaque encoded audio payload as received from a client.
type Blob struct {
	Data []byte
	MIME string // declared content type, may be empty
}

// Validate rejects payloads too small to hold any decodable audio and
// payloads whose declared or sniffed type is not audio.
func (b Blob) Validate(minBytes int) error {
	if len(b.Data) < minBytes {
		return apperrors.Newf(apperrors.InvalidArgument, "audio payload too small: %d bytes", len(b.Data))
	}
	if _, err := DetectMIME(b); err != nil {
		return err
	}
	return nil
}

// DetectMIME returns the effective content type of b. A declared type other
// than application/octet-stream is trusted; otherwise the bytes are sniffed.
func DetectMIME(b Blob) (string, error) {
	declared := strings.ToLower(strings.TrimSpace(b.MIME))
	if i := strings.IndexByte(declared, ';'); i >= 0 {
		declared = strings.TrimSpace(declared[:i])
	}
	if declared != "" && declared != "application/octet-stream" {
		if !isAudioType(declared) {
			return "", apperrors.Newf(apperrors.InvalidArgument, "unsupported content type %q", declared)
		}
		return declared, nil
	}

	m := mimetype.Detect(b.Data)
	if isAudioType(m.String()) || m.Is("audio/webm") || m.Is("video/webm") || m.Is("audio/ogg") {
		return m.String(), nil
	}
	if m.Is("application/octet-stream") {
		return "", apperrors.New(apperrors.InvalidArgument, "content type is not audio and payload is unrecognized")
	}
	return "", apperrors.Newf(apperrors.InvalidArgument, "payload is %s, not audio", m.String())
}

func isAudioType(t string) bool {
	return strings.HasPrefix(t, "audio/") || t == "video/webm" || t == "video/mp4" || t == "application/ogg"
}
