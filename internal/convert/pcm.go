package convert

import (
	"encoding/binary"
	"time"

	"github.com/GriffinCanCode/good-listener/backend/audio/internal/audio"
	"github.com/GriffinCanCode/good-listener/backend/audio/internal/config"
)

// Format is the canonical PCM layout: 16 kHz, mono, signed 16-bit little-endian.
var Format = audio.Format{
	SampleRate:    config.SampleRate,
	Channels:      config.Channels,
	BitsPerSample: config.BytesPerSample * 8,
}

// PCM is audio in the canonical Format. Values are only produced by a
// Converter (or Silence) so holders never need to re-check the layout.
type PCM struct {
	data []byte
}

// Silence returns d of digital silence.
func Silence(d time.Duration) PCM {
	n := int(d.Seconds() * config.SampleRate)
	return PCM{data: make([]byte, n*config.BytesPerSample)}
}

func (p PCM) Bytes() []byte { return p.data }
func (p PCM) Len() int      { return len(p.data) }

// Samples decodes the payload into signed 16-bit samples.
func (p PCM) Samples() []int16 {
	out := make([]int16, len(p.data)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(p.data[2*i:]))
	}
	return out
}

func (p PCM) Duration() time.Duration {
	samples := len(p.data) / config.BytesPerSample
	return time.Duration(samples) * time.Second / config.SampleRate
}

// WAV wraps the payload in a WAV container.
func (p PCM) WAV() ([]byte, error) {
	return audio.EncodeWAV(p.data, Format)
}

// Persist writes the payload as a WAV file in dir. The caller must Release it.
func (p PCM) Persist(dir string) (*audio.TempFile, error) {
	wav, err := p.WAV()
	if err != nil {
		return nil, err
	}
	return audio.WriteTemp(dir, "pcm-*.wav", wav)
}
