package inference

import (
	"context"
	"errors"
	"net/http"

	"github.com/sashabaranov/go-openai"

	apperrors "github.com/GriffinCanCode/good-listener/backend/audio/internal/errors"
)

// OpenAIConfig configures an OpenAI-compatible transcription endpoint.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string // empty for api.openai.com
	Model   string // defaults to whisper-1
}

// OpenAITranscriber calls /v1/audio/transcriptions.
type OpenAITranscriber struct {
	client *openai.Client
	model  string
}

// NewOpenAI creates a transcriber for cfg.
func NewOpenAI(cfg OpenAIConfig) *OpenAITranscriber {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	model := cfg.Model
	if model == "" {
		model = openai.Whisper1
	}
	return &OpenAITranscriber{client: openai.NewClientWithConfig(clientCfg), model: model}
}

func (o *OpenAITranscriber) Transcribe(ctx context.Context, path string) (string, error) {
	resp, err := o.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    o.model,
		FilePath: path,
		Format:   openai.AudioResponseFormatJSON,
	})
	if err != nil {
		return "", classifyOpenAIError(err)
	}
	return resp.Text, nil
}

func classifyOpenAIError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return apperrors.Wrap(err, apperrors.Timeout, "transcription timed out")
	}
	if errors.Is(err, context.Canceled) {
		return apperrors.Wrap(err, apperrors.Cancelled, "transcription cancelled")
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.HTTPStatusCode == http.StatusTooManyRequests || apiErr.HTTPStatusCode >= 500:
			return apperrors.Wrap(err, apperrors.Unavailable, "transcription backend unavailable")
		case apiErr.HTTPStatusCode == http.StatusBadRequest:
			return apperrors.Wrap(err, apperrors.ModelRejected, "transcription backend rejected audio")
		}
		return apperrors.Wrap(err, apperrors.ModelInference, "transcription failed")
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode >= 500 {
		return apperrors.Wrap(err, apperrors.Unavailable, "transcription backend unavailable")
	}
	return apperrors.Wrap(err, apperrors.ModelInference, "transcription failed")
}
