// Package config handles audio service configuration
package config

// Canonical PCM framing shared by every inference collaborator.
const (
	SampleRate     = 16000
	Channels       = 1
	BytesPerSample = 2
)

// Transcriber backends
const (
	TranscriberGRPC   = "grpc"
	TranscriberOpenAI = "openai"
)
