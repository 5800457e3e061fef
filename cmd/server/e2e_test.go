package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"math"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/GriffinCanCode/good-listener/backend/audio/internal/audio"
	"github.com/GriffinCanCode/good-listener/backend/audio/internal/config"
	"github.com/GriffinCanCode/good-listener/backend/audio/internal/convert"
	"github.com/GriffinCanCode/good-listener/backend/audio/internal/metrics"
)

const (
	startupTimeout = 30 * time.Second
	testTimeout    = 60 * time.Second
)

// startStack runs the full service against a live model server at
// INFERENCE_ADDR. Set INTEGRATION_TEST=1 to enable.
func startStack(t *testing.T) *httptest.Server {
	t.Helper()
	if os.Getenv("INTEGRATION_TEST") != "1" {
		t.Skip("set INTEGRATION_TEST=1 to run")
	}
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not installed")
	}

	cfg := config.Default()
	if addr := os.Getenv("INFERENCE_ADDR"); addr != "" {
		cfg.InferenceAddr = addr
	}
	cfg.TempDir = t.TempDir()
	cfg.TriggerSeconds = 1

	srv, b, err := buildServer(cfg, metrics.New())
	if err != nil {
		t.Fatalf("buildServer() error = %v", err)
	}
	t.Cleanup(b.close)

	ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	defer cancel()
	for {
		if err := b.checker.Ready(ctx); err == nil {
			break
		}
		select {
		case <-ctx.Done():
			t.Fatalf("inference server at %s not ready", cfg.InferenceAddr)
		case <-time.After(500 * time.Millisecond):
		}
	}

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

// makeTone returns d of a 440 Hz sine as canonical PCM.
func makeTone(d time.Duration) []byte {
	n := int(d.Seconds() * config.SampleRate)
	buf := make([]byte, n*config.BytesPerSample)
	for i := 0; i < n; i++ {
		v := int16(math.Sin(2*math.Pi*440*float64(i)/config.SampleRate) * 8000)
		binary.LittleEndian.PutUint16(buf[2*i:], uint16(v))
	}
	return buf
}

// encodeWebM compresses canonical PCM the way a browser MediaRecorder would.
func encodeWebM(t *testing.T, pcm []byte) []byte {
	t.Helper()
	cmd := exec.Command("ffmpeg", "-hide_banner", "-loglevel", "error",
		"-f", "s16le", "-ar", "16000", "-ac", "1", "-i", "pipe:0",
		"-c:a", "libopus", "-f", "webm", "pipe:1")
	cmd.Stdin = bytes.NewReader(pcm)
	out, err := cmd.Output()
	if err != nil {
		t.Skipf("ffmpeg cannot encode webm/opus: %v", err)
	}
	return out
}

func postFile(t *testing.T, url string, payload []byte, mime string) *http.Response {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="clip"`)
	h.Set("Content-Type", mime)
	part, err := mw.CreatePart(h)
	if err != nil {
		t.Fatal(err)
	}
	part.Write(payload)
	mw.Close()

	resp, err := http.Post(url, mw.FormDataContentType(), &body)
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestE2E_Transcribe(t *testing.T) {
	ts := startStack(t)
	wav, err := audio.EncodeWAV(makeTone(2*time.Second), convert.Format)
	if err != nil {
		t.Fatal(err)
	}

	resp := postFile(t, ts.URL+"/transcribe", wav, "audio/wav")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var out struct {
		Transcript *string `json:"transcript"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil || out.Transcript == nil {
		t.Fatalf("bad response: %v", err)
	}
	t.Logf("transcript: %q", *out.Transcript)
}

func TestE2E_TranscribeCorruptUpload(t *testing.T) {
	ts := startStack(t)
	junk := bytes.Repeat([]byte("not audio at all "), 200)

	resp := postFile(t, ts.URL+"/transcribe", junk, "audio/webm")
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", resp.StatusCode)
	}
}

func TestE2E_Diarize(t *testing.T) {
	ts := startStack(t)
	wav, err := audio.EncodeWAV(makeTone(3*time.Second), convert.Format)
	if err != nil {
		t.Fatal(err)
	}

	resp := postFile(t, ts.URL+"/diarize?num_speakers=2", wav, "audio/wav")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var out struct {
		Segments []struct {
			Speaker string `json:"speaker"`
		} `json:"segments"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	for _, s := range out.Segments {
		if !strings.HasPrefix(s.Speaker, "Speaker ") {
			t.Errorf("speaker label = %q", s.Speaker)
		}
	}
}

func TestE2E_Realtime(t *testing.T) {
	ts := startStack(t)
	webm := encodeWebM(t, makeTone(2*time.Second))

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(ts.URL, "http")+"/ws/audio", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.CloseNow()

	if err := wsjson.Write(ctx, conn, map[string]string{"cmd": "start_analysis"}); err != nil {
		t.Fatal(err)
	}
	var frame map[string]string
	if err := wsjson.Read(ctx, conn, &frame); err != nil || frame["status"] != "ready" {
		t.Fatalf("handshake frame = %v, err %v", frame, err)
	}

	// Send the container in one frame padded past the 1 s trigger.
	payload := append(webm, make([]byte, max(0, 32000-len(webm)))...)
	msg := map[string]string{"audio": "data:audio/webm;base64," + base64.StdEncoding.EncodeToString(payload)}
	if err := wsjson.Write(ctx, conn, msg); err != nil {
		t.Fatal(err)
	}
	if err := wsjson.Read(ctx, conn, &frame); err != nil {
		t.Fatal(err)
	}
	if frame["type"] != "transcript" && frame["type"] != "error" {
		t.Errorf("unexpected frame %v", frame)
	}
	t.Logf("realtime frame: %v", frame)
}
