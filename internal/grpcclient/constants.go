// Package grpcclient is the gRPC inference backend: transcription,
// diarization and health checks against the model server.
package grpcclient

import "time"

// Service and method names exposed by the model server.
const (
	ServiceName      = "audio.v1.Inference"
	TranscribeMethod = "/" + ServiceName + "/Transcribe"
	DiarizeMethod    = "/" + ServiceName + "/Diarize"
)

// Request metadata keys.
const (
	ModelKey       = "x-model"
	DeviceKey      = "x-device"
	SampleRateKey  = "x-sample-rate"
	NumSpeakersKey = "x-num-speakers"
)

const (
	DefaultKeepaliveTime    = 10 * time.Second
	DefaultKeepaliveTimeout = 3 * time.Second
	HealthCheckTimeout      = 2 * time.Second
	maxMessageBytes         = 64 << 20
)
