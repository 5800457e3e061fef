package convert

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/GriffinCanCode/good-listener/backend/audio/internal/audio"
	apperrors "github.com/GriffinCanCode/good-listener/backend/audio/internal/errors"
	"github.com/GriffinCanCode/good-listener/backend/audio/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// TestHelperProcess is not a real test. It is re-executed by fakeConverter
// as a stand-in for ffmpeg.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	in, _ := io.ReadAll(os.Stdin)
	switch os.Getenv("HELPER_MODE") {
	case "echo":
		os.Stdout.Write(in)
	case "odd":
		os.Stdout.Write(append(in, 0x7f))
	case "corrupt":
		fmt.Fprintln(os.Stderr, "[in#0 @ 0x1] Error opening input: Invalid data found when processing input")
		os.Exit(1)
	case "fail":
		fmt.Fprintln(os.Stderr, "Conversion failed!")
		os.Exit(1)
	case "empty":
		os.Stdout.Write(make([]byte, 10))
	case "hang":
		time.Sleep(30 * time.Second)
	}
	os.Exit(0)
}

func fakeConverter(mode string, timeout time.Duration) *Converter {
	return New(Config{
		Binary:   os.Args[0],
		BaseArgs: []string{"-test.run=TestHelperProcess", "--"},
		Env:      []string{"GO_WANT_HELPER_PROCESS=1", "HELPER_MODE=" + mode},
		Timeout:  timeout,
	})
}

func blob(n int) audio.Blob {
	return audio.Blob{Data: bytes.Repeat([]byte{0x10, 0x20}, n/2), MIME: "audio/webm"}
}

func TestConvertSuccess(t *testing.T) {
	c := fakeConverter("echo", 5*time.Second)
	pcm, err := c.Convert(context.Background(), blob(4000), Stream)
	if err != nil {
		t.Fatalf("Convert() error = %v", err)
	}
	if pcm.Len() != 4000 {
		t.Errorf("Len() = %d, want 4000", pcm.Len())
	}
}

func TestConvertTrimsPartialSample(t *testing.T) {
	c := fakeConverter("odd", 5*time.Second)
	pcm, err := c.Convert(context.Background(), blob(2048), Auto)
	if err != nil {
		t.Fatalf("Convert() error = %v", err)
	}
	if pcm.Len()%2 != 0 {
		t.Errorf("Len() = %d, want whole samples", pcm.Len())
	}
}

func TestConvertErrors(t *testing.T) {
	tests := []struct {
		mode    string
		timeout time.Duration
		want    apperrors.Code
	}{
		{"corrupt", 5 * time.Second, apperrors.CorruptHeader},
		{"fail", 5 * time.Second, apperrors.ConversionFailed},
		{"empty", 5 * time.Second, apperrors.EmptyResult},
		{"hang", 300 * time.Millisecond, apperrors.ConversionTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.mode, func(t *testing.T) {
			c := fakeConverter(tt.mode, tt.timeout)
			start := time.Now()
			_, err := c.Convert(context.Background(), blob(2048), Stream)
			if !apperrors.IsCode(err, tt.want) {
				t.Fatalf("Convert() error = %v, want code %v", err, tt.want)
			}
			if elapsed := time.Since(start); elapsed > 10*time.Second {
				t.Errorf("Convert() took %v", elapsed)
			}
		})
	}
}

func TestCorruptHeaderIsConversionFailure(t *testing.T) {
	_, err := fakeConverter("corrupt", 5*time.Second).Convert(context.Background(), blob(2048), Stream)
	if !apperrors.IsConversionFailure(err) {
		t.Errorf("CorruptHeader should count as a conversion failure: %v", err)
	}
	var appErr *apperrors.AppError
	if !asAppError(err, &appErr) || !strings.Contains(appErr.Metadata["stderr"], "Invalid data found") {
		t.Errorf("stderr should be kept as metadata: %v", err)
	}
}

func TestConvertEmptyInput(t *testing.T) {
	_, err := fakeConverter("echo", time.Second).Convert(context.Background(), audio.Blob{}, Auto)
	if !apperrors.IsCode(err, apperrors.InvalidArgument) {
		t.Errorf("error = %v, want InvalidArgument", err)
	}
}

func TestConvertCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()
	_, err := fakeConverter("hang", 10*time.Second).Convert(ctx, blob(2048), Stream)
	if !apperrors.IsCode(err, apperrors.Cancelled) {
		t.Errorf("error = %v, want Cancelled", err)
	}
}

func TestConvertMissingBinary(t *testing.T) {
	c := New(Config{Binary: "definitely-not-ffmpeg-binary"})
	_, err := c.Convert(context.Background(), blob(2048), Auto)
	if !apperrors.IsCode(err, apperrors.ConversionFailed) {
		t.Errorf("error = %v, want ConversionFailed", err)
	}
}

func TestConcurrencyLimit(t *testing.T) {
	limited := New(Config{
		Binary:        os.Args[0],
		BaseArgs:      []string{"-test.run=TestHelperProcess", "--"},
		Env:           []string{"GO_WANT_HELPER_PROCESS=1", "HELPER_MODE=echo"},
		Timeout:       300 * time.Millisecond,
		MaxConcurrent: 1,
	})
	// Hold the only slot so the call times out while waiting for it.
	if err := limited.sem.Acquire(context.Background(), 1); err != nil {
		t.Fatal(err)
	}
	defer limited.sem.Release(1)

	_, err := limited.Convert(context.Background(), blob(2048), Auto)
	if !apperrors.IsCode(err, apperrors.ConversionTimeout) {
		t.Errorf("error = %v, want ConversionTimeout while queued", err)
	}
}

func TestConvertRecordsMetrics(t *testing.T) {
	m := metrics.New()
	c := fakeConverter("corrupt", 5*time.Second)
	c.cfg.Metrics = m
	_, _ = c.Convert(context.Background(), blob(2048), Stream)

	if got := testutil.ToFloat64(m.Conversions.WithLabelValues("stream", "CORRUPT_HEADER")); got != 1 {
		t.Errorf("corrupt conversions = %v, want 1", got)
	}
}

func TestArgs(t *testing.T) {
	c := New(Config{})
	stream := strings.Join(c.Args(Stream), " ")
	auto := strings.Join(c.Args(Auto), " ")

	for _, want := range []string{"-ar 16000", "-ac 1", "pcm_s16le", "+discardcorrupt", "-ignore_unknown", "-i pipe:0", "pipe:1"} {
		if !strings.Contains(stream, want) || !strings.Contains(auto, want) {
			t.Errorf("args missing %q", want)
		}
	}
	if !strings.Contains(stream, "-f webm -c:a libopus -i pipe:0") {
		t.Errorf("stream profile should force the webm demuxer: %s", stream)
	}
	if strings.Contains(auto, "-f webm") {
		t.Errorf("auto profile should not force a demuxer: %s", auto)
	}
}

func TestConvertSilentWAVWithFFmpeg(t *testing.T) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not installed")
	}
	wav, err := Silence(2 * time.Second).WAV()
	if err != nil {
		t.Fatal(err)
	}
	pcm, err := New(Config{}).Convert(context.Background(), audio.Blob{Data: wav, MIME: "audio/wav"}, Auto)
	if err != nil {
		t.Fatalf("Convert() error = %v", err)
	}
	if d := pcm.Duration(); d < 1900*time.Millisecond || d > 2100*time.Millisecond {
		t.Errorf("Duration() = %v, want ~2s", d)
	}
}
