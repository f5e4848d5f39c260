package audio

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"github.com/go-audio/wav"

	"github.com/dgnsrekt/aloud/internal/ttypes"
)

// Container names the encoding detected in item audio.
func Container(data []byte) string {
	switch {
	case len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WAVE":
		return "wav"
	case bytes.HasPrefix(data, []byte("ID3")):
		return "mp3"
	case bytes.HasPrefix(data, []byte("OggS")):
		return "ogg"
	case bytes.HasPrefix(data, []byte("fLaC")):
		return "flac"
	case len(data) >= 2 && data[0] == 0xFF && data[1]&0xF6 == 0xF0:
		return "aac"
	case len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0:
		return "mp3"
	default:
		return "pcm"
	}
}

// DecodePCM converts item audio to signed 16-bit little-endian PCM with the
// given layout. WAV is decoded; anything without a recognised container is
// taken as raw PCM already in that layout.
func DecodePCM(data []byte, sampleRate, channels int) ([]byte, error) {
	switch kind := Container(data); kind {
	case "wav":
		return decodeWAV(data, sampleRate, channels)
	case "pcm":
		frame := 2 * channels
		if len(data) < frame {
			return nil, fmt.Errorf("pcm too short: %d bytes", len(data))
		}
		return data[:len(data)-len(data)%frame], nil
	default:
		return nil, ttypes.NewError(ttypes.CodePlayback, kind+" decoding not supported", ttypes.ErrUnsupportedFormat)
	}
}

func decodeWAV(data []byte, sampleRate, channels int) ([]byte, error) {
	d := wav.NewDecoder(bytes.NewReader(data))
	if !d.IsValidFile() {
		return nil, fmt.Errorf("invalid wav data")
	}

	if int(d.SampleRate) != sampleRate || int(d.NumChans) != channels {
		return nil, ttypes.NewError(ttypes.CodePlayback, "wav layout does not match output", ttypes.ErrUnsupportedFormat).
			WithContext("sample_rate", d.SampleRate).
			WithContext("channels", d.NumChans)
	}

	buf, err := d.FullPCMBuffer()
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to decode wav: %w", err)
	}
	if buf == nil {
		return nil, fmt.Errorf("wav has no audio data")
	}

	shift := int(d.BitDepth) - 16
	out := make([]byte, 0, len(buf.Data)*2)
	for _, v := range buf.Data {
		switch {
		case d.BitDepth == 8:
			v = (v - 128) << 8
		case shift > 0:
			v >>= shift
		}
		s := int16(v)
		out = append(out, byte(s), byte(s>>8))
	}
	return out, nil
}

// pcmDuration returns the play time of n bytes of s16le PCM.
func pcmDuration(n, sampleRate, channels int) time.Duration {
	return time.Duration(n) * time.Second / time.Duration(2*channels*sampleRate)
}
