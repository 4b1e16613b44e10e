// Package audio holds the audio plumbing that sits in front of speech
// recognition: RIFF/WAV encoding and parsing, PCM format conversion to the
// canonical 16 kHz mono 16-bit layout, Ogg page demuxing, and the
// [Transcoder] abstraction used to turn arbitrary uploaded containers into
// canonical WAV files.
package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// Canonical recognition format.
const (
	CanonicalSampleRate = 16000
	CanonicalChannels   = 1
	BitsPerSample       = 16
)

const (
	wavHeaderSize    = 44
	formatPCM        = 1
	formatExtensible = 0xFFFE
)

// ErrInvalidWAV is returned when data is not a well-formed RIFF/WAVE file.
var ErrInvalidWAV = errors.New("audio: invalid wav data")

// ErrUnsupportedFormat is returned for WAV files that are not 16-bit PCM.
var ErrUnsupportedFormat = errors.New("audio: unsupported wav encoding")

// WAV is a decoded PCM WAV file.
type WAV struct {
	SampleRate int
	Channels   int
	// PCM holds interleaved 16-bit little-endian samples.
	PCM []byte
}

// Duration returns the playback length of w in seconds.
func (w WAV) Duration() float64 {
	if w.SampleRate <= 0 || w.Channels <= 0 {
		return 0
	}
	return float64(len(w.PCM)) / float64(w.SampleRate*w.Channels*2)
}

// Canonical returns the PCM of w converted to 16 kHz mono.
func (w WAV) Canonical() []byte {
	return Canonicalize(w.PCM, w.SampleRate, w.Channels)
}

// EncodeWAV wraps raw 16-bit signed little-endian PCM data in a standard
// RIFF/WAV container.
func EncodeWAV(pcm []byte, sampleRate, channels int) []byte {
	byteRate := sampleRate * channels * BitsPerSample / 8
	blockAlign := channels * BitsPerSample / 8
	dataSize := len(pcm)

	buf := make([]byte, wavHeaderSize+dataSize)

	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize))
	copy(buf[8:12], "WAVE")

	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], formatPCM)
	binary.LittleEndian.PutUint16(buf[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(buf[34:36], BitsPerSample)

	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))
	copy(buf[44:], pcm)

	return buf
}

// DecodeWAV parses a RIFF/WAVE file holding 16-bit PCM. Unknown chunks (LIST,
// fact, …) are skipped. A data chunk whose declared size overruns the buffer
// is truncated to what is present, which is how streaming encoders that never
// patch the header leave their files.
func DecodeWAV(data []byte) (WAV, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return WAV{}, ErrInvalidWAV
	}

	var w WAV
	haveFmt := false
	pos := 12
	for pos+8 <= len(data) {
		id := string(data[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(data[pos+4 : pos+8]))
		body := pos + 8
		end := body + size
		if end > len(data) {
			end = len(data)
		}

		switch id {
		case "fmt ":
			if end-body < 16 {
				return WAV{}, fmt.Errorf("%w: short fmt chunk", ErrInvalidWAV)
			}
			f := data[body:end]
			format := binary.LittleEndian.Uint16(f[0:2])
			w.Channels = int(binary.LittleEndian.Uint16(f[2:4]))
			w.SampleRate = int(binary.LittleEndian.Uint32(f[4:8]))
			bits := binary.LittleEndian.Uint16(f[14:16])
			if format != formatPCM && format != formatExtensible {
				return WAV{}, fmt.Errorf("%w: format tag %d", ErrUnsupportedFormat, format)
			}
			if bits != BitsPerSample {
				return WAV{}, fmt.Errorf("%w: %d bits per sample", ErrUnsupportedFormat, bits)
			}
			if w.Channels <= 0 || w.SampleRate <= 0 {
				return WAV{}, fmt.Errorf("%w: %d channels at %d Hz", ErrInvalidWAV, w.Channels, w.SampleRate)
			}
			haveFmt = true
		case "data":
			if !haveFmt {
				return WAV{}, fmt.Errorf("%w: data chunk before fmt chunk", ErrInvalidWAV)
			}
			pcm := data[body:end]
			w.PCM = pcm[:len(pcm)-len(pcm)%2]
			return w, nil
		}

		// Chunks are word aligned.
		pos = end + size%2
	}
	if !haveFmt {
		return WAV{}, fmt.Errorf("%w: missing fmt chunk", ErrInvalidWAV)
	}
	return WAV{}, fmt.Errorf("%w: missing data chunk", ErrInvalidWAV)
}

// RMS returns the root-mean-square energy of a 16-bit signed little-endian
// PCM buffer in sample units (0–32 767). Returns 0 for buffers shorter than
// one sample.
func RMS(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := range n {
		v := float64(sampleAt(pcm, i))
		sum += v * v
	}
	return math.Sqrt(sum / float64(n))
}
