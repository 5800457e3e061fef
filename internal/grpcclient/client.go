package grpcclient

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/GriffinCanCode/good-listener/backend/audio/internal/config"
	apperrors "github.com/GriffinCanCode/good-listener/backend/audio/internal/errors"
	"github.com/GriffinCanCode/good-listener/backend/audio/internal/inference"
	"github.com/GriffinCanCode/good-listener/backend/audio/internal/resilience"
	"github.com/GriffinCanCode/good-listener/backend/audio/internal/trace"
)

// Config configures the connection to the model server.
type Config struct {
	Addr        string
	Model       string // forwarded as-is, e.g. "small"
	Device      string // forwarded as-is, e.g. "auto"
	Breaker     resilience.Config
	Retry       resilience.RetryConfig
	DialOptions []grpc.DialOption // extra options, appended last
}

// Client implements inference.Transcriber, inference.Diarizer and
// inference.Checker over one shared connection.
type Client struct {
	conn    *grpc.ClientConn
	health  healthpb.HealthClient
	breaker *resilience.Breaker
	retry   resilience.RetryConfig
	model   string
	device  string
}

var (
	_ inference.Transcriber = (*Client)(nil)
	_ inference.Diarizer    = (*Client)(nil)
	_ inference.Checker     = (*Client)(nil)
)

// New creates a client. The connection is established lazily on first use.
func New(cfg Config) (*Client, error) {
	opts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                DefaultKeepaliveTime,
			Timeout:             DefaultKeepaliveTimeout,
			PermitWithoutStream: true,
		}),
		grpc.WithDefaultCallOptions(grpc.MaxCallSendMsgSize(maxMessageBytes)),
		grpc.WithUnaryInterceptor(trace.UnaryClientInterceptor()),
	}
	opts = append(opts, cfg.DialOptions...)

	conn, err := grpc.NewClient(cfg.Addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("create inference client for %s: %w", cfg.Addr, err)
	}
	return &Client{
		conn:    conn,
		health:  healthpb.NewHealthClient(conn),
		breaker: resilience.New(cfg.Breaker),
		retry:   cfg.Retry,
		model:   cfg.Model,
		device:  cfg.Device,
	}, nil
}

// Close closes the gRPC connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// BreakerState reports the circuit state for health output.
func (c *Client) BreakerState() resilience.State {
	return c.breaker.State()
}

// Transcribe sends the WAV file at path and returns the recognized text.
func (c *Client) Transcribe(ctx context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.Internal, "read audio for transcription")
	}
	ctx = c.outgoing(ctx)
	req := wrapperspb.Bytes(data)

	text, err := callT(ctx, c, func(ctx context.Context) (string, error) {
		resp := new(wrapperspb.StringValue)
		if err := c.conn.Invoke(ctx, TranscribeMethod, req, resp); err != nil {
			return "", err
		}
		return resp.GetValue(), nil
	})
	if err != nil {
		return "", apperrors.FromGRPCError(err)
	}
	return text, nil
}

// Diarize sends the WAV file at path and returns speaker turns in the order
// the server produced them.
func (c *Client) Diarize(ctx context.Context, path string, numSpeakers int) ([]inference.Segment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.Internal, "read audio for diarization")
	}
	ctx = metadata.AppendToOutgoingContext(c.outgoing(ctx), NumSpeakersKey, strconv.Itoa(numSpeakers))
	req := wrapperspb.Bytes(data)

	list, err := callT(ctx, c, func(ctx context.Context) (*structpb.ListValue, error) {
		resp := new(structpb.ListValue)
		if err := c.conn.Invoke(ctx, DiarizeMethod, req, resp); err != nil {
			return nil, err
		}
		return resp, nil
	})
	if err != nil {
		return nil, apperrors.FromGRPCError(err)
	}
	return parseSegments(ctx, list), nil
}

// Ready reports whether the model server answers SERVING. An open breaker
// counts as not ready without asking the server.
func (c *Client) Ready(ctx context.Context) error {
	if st := c.breaker.State(); st == resilience.Open {
		return apperrors.Newf(apperrors.Unavailable, "circuit breaker %s", st)
	}
	ctx, cancel := context.WithTimeout(ctx, HealthCheckTimeout)
	defer cancel()
	resp, err := c.health.Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		return apperrors.FromGRPCError(err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return apperrors.Newf(apperrors.Unavailable, "inference server status %s", resp.GetStatus())
	}
	return nil
}

func (c *Client) outgoing(ctx context.Context) context.Context {
	return metadata.AppendToOutgoingContext(ctx,
		ModelKey, c.model,
		DeviceKey, c.device,
		SampleRateKey, strconv.Itoa(config.SampleRate),
	)
}

// callT runs fn behind the breaker, retrying transient transport errors.
func callT[T any](ctx context.Context, c *Client, fn func(context.Context) (T, error)) (T, error) {
	return resilience.Call(ctx, c.breaker, func(ctx context.Context) (T, error) {
		return resilience.Retry(ctx, c.retry, fn)
	})
}

func parseSegments(ctx context.Context, list *structpb.ListValue) []inference.Segment {
	segs := make([]inference.Segment, 0, len(list.GetValues()))
	for i, v := range list.GetValues() {
		s := v.GetStructValue()
		if s == nil {
			trace.Logger(ctx).Warn("skipping malformed diarization segment", "index", i)
			continue
		}
		f := s.GetFields()
		segs = append(segs, inference.Segment{
			Start: f["start"].GetNumberValue(),
			End:   f["end"].GetNumberValue(),
			Label: labelOf(f["label"]),
		})
	}
	return segs
}

// labelOf accepts string labels ("SPEAKER_00") and numeric speaker indexes.
func labelOf(v *structpb.Value) string {
	switch k := v.GetKind().(type) {
	case *structpb.Value_StringValue:
		return k.StringValue
	case *structpb.Value_NumberValue:
		return strconv.FormatFloat(k.NumberValue, 'f', -1, 64)
	}
	return ""
}
