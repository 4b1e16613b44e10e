package audio_test

import (
	"encoding/binary"
	"errors"
	"math"
	"slices"
	"testing"

	"github.com/lingualoop/lingualoop/pkg/audio"
)

func TestEncodeDecodeWAV(t *testing.T) {
	t.Parallel()
	pcm := samplesToBytes([]int16{0, 1000, -1000, 32767, -32768})
	data := audio.EncodeWAV(pcm, 22050, 1)

	if len(data) != 44+len(pcm) {
		t.Fatalf("encoded length = %d, want %d", len(data), 44+len(pcm))
	}
	w, err := audio.DecodeWAV(data)
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	if w.SampleRate != 22050 || w.Channels != 1 {
		t.Errorf("format = %d Hz %d ch, want 22050 Hz 1 ch", w.SampleRate, w.Channels)
	}
	if !slices.Equal(w.PCM, pcm) {
		t.Error("PCM payload mismatch")
	}
}

func TestDecodeWAV_SkipsUnknownChunks(t *testing.T) {
	t.Parallel()
	pcm := samplesToBytes([]int16{5, 6, 7})
	plain := audio.EncodeWAV(pcm, 16000, 1)

	// Insert an odd-sized LIST chunk (with pad byte) between fmt and data.
	list := []byte("LIST")
	list = binary.LittleEndian.AppendUint32(list, 3)
	list = append(list, 'a', 'b', 'c', 0)

	data := slices.Concat(plain[:36], list, plain[36:])
	w, err := audio.DecodeWAV(data)
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	if !slices.Equal(w.PCM, pcm) {
		t.Errorf("PCM = %v, want %v", bytesToSamples(w.PCM), bytesToSamples(pcm))
	}
}

func TestDecodeWAV_TruncatedData(t *testing.T) {
	t.Parallel()
	pcm := samplesToBytes([]int16{1, 2, 3, 4})
	data := audio.EncodeWAV(pcm, 16000, 1)
	// Claim a much larger data chunk than present, as streaming encoders do.
	binary.LittleEndian.PutUint32(data[40:44], 0xFFFFFFF0)

	w, err := audio.DecodeWAV(data)
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	if len(w.PCM) != len(pcm) {
		t.Errorf("PCM length = %d, want %d", len(w.PCM), len(pcm))
	}
}

func TestDecodeWAV_Errors(t *testing.T) {
	t.Parallel()
	valid := audio.EncodeWAV(samplesToBytes([]int16{1}), 16000, 1)

	eightBit := slices.Clone(valid)
	binary.LittleEndian.PutUint16(eightBit[34:36], 8)

	float := slices.Clone(valid)
	binary.LittleEndian.PutUint16(float[20:22], 3)

	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"empty", nil, audio.ErrInvalidWAV},
		{"not riff", []byte("this is not a wav file at all"), audio.ErrInvalidWAV},
		{"no data chunk", valid[:36], audio.ErrInvalidWAV},
		{"8-bit", eightBit, audio.ErrUnsupportedFormat},
		{"float", float, audio.ErrUnsupportedFormat},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := audio.DecodeWAV(tt.data); !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestWAV_DurationAndCanonical(t *testing.T) {
	t.Parallel()
	w := audio.WAV{SampleRate: 8000, Channels: 2, PCM: make([]byte, 8000*2*2)}
	if d := w.Duration(); d != 1 {
		t.Errorf("Duration = %v, want 1", d)
	}
	if got := len(w.Canonical()) / 2; got != audio.CanonicalSampleRate {
		t.Errorf("canonical samples = %d, want %d", got, audio.CanonicalSampleRate)
	}
	if d := (audio.WAV{}).Duration(); d != 0 {
		t.Errorf("zero WAV duration = %v, want 0", d)
	}
}

func TestRMS(t *testing.T) {
	t.Parallel()
	if got := audio.RMS(nil); got != 0 {
		t.Errorf("RMS(nil) = %v, want 0", got)
	}
	got := audio.RMS(samplesToBytes([]int16{3000, -3000, 3000, -3000}))
	if math.Abs(got-3000) > 1e-9 {
		t.Errorf("RMS = %v, want 3000", got)
	}
}
