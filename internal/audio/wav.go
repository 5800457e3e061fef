package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// wavHeader is the canonical 44-byte RIFF/WAVE header for PCM data.
type wavHeader struct {
	ChunkID       [4]byte
	ChunkSize     uint32
	Format        [4]byte
	Subchunk1ID   [4]byte
	Subchunk1Size uint32
	AudioFormat   uint16
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
	Subchunk2ID   [4]byte
	Subchunk2Size uint32
}

// WAVHeaderSize is the length of the header written by EncodeWAV.
const WAVHeaderSize = 44

// Format describes a PCM stream.
type Format struct {
	SampleRate    int
	Channels      int
	BitsPerSample int
}

// EncodeWAV wraps little-endian PCM bytes in a WAV container.
func EncodeWAV(pcm []byte, f Format) ([]byte, error) {
	if f.SampleRate <= 0 || f.Channels <= 0 || f.BitsPerSample <= 0 {
		return nil, fmt.Errorf("invalid pcm format %+v", f)
	}
	blockAlign := f.Channels * f.BitsPerSample / 8
	if blockAlign > 0 && len(pcm)%blockAlign != 0 {
		return nil, fmt.Errorf("pcm length %d is not a multiple of block size %d", len(pcm), blockAlign)
	}

	h := wavHeader{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     uint32(36 + len(pcm)),
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   1,
		NumChannels:   uint16(f.Channels),
		SampleRate:    uint32(f.SampleRate),
		ByteRate:      uint32(f.SampleRate * blockAlign),
		BlockAlign:    uint16(blockAlign),
		BitsPerSample: uint16(f.BitsPerSample),
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: uint32(len(pcm)),
	}

	buf := bytes.NewBuffer(make([]byte, 0, WAVHeaderSize+len(pcm)))
	if err := binary.Write(buf, binary.LittleEndian, h); err != nil {
		return nil, fmt.Errorf("failed to write WAV header: %w", err)
	}
	buf.Write(pcm)
	return buf.Bytes(), nil
}

// ParseWAV returns the format and PCM payload of a canonical PCM WAV file.
func ParseWAV(data []byte) (Format, []byte, error) {
	if len(data) < WAVHeaderSize {
		return Format{}, nil, fmt.Errorf("WAV data too short: need at least %d bytes, got %d", WAVHeaderSize, len(data))
	}
	var h wavHeader
	if err := binary.Read(bytes.NewReader(data), binary.LittleEndian, &h); err != nil {
		return Format{}, nil, fmt.Errorf("failed to read WAV header: %w", err)
	}
	switch {
	case string(h.ChunkID[:]) != "RIFF":
		return Format{}, nil, fmt.Errorf("invalid WAV file: missing RIFF header")
	case string(h.Format[:]) != "WAVE":
		return Format{}, nil, fmt.Errorf("invalid WAV file: missing WAVE format")
	case string(h.Subchunk2ID[:]) != "data":
		return Format{}, nil, fmt.Errorf("invalid WAV file: missing data chunk")
	case h.AudioFormat != 1:
		return Format{}, nil, fmt.Errorf("unsupported audio format: %d", h.AudioFormat)
	}

	end := WAVHeaderSize + int(h.Subchunk2Size)
	if end > len(data) {
		end = len(data)
	}
	f := Format{
		SampleRate:    int(h.SampleRate),
		Channels:      int(h.NumChannels),
		BitsPerSample: int(h.BitsPerSample),
	}
	return f, data[WAVHeaderSize:end], nil
}
