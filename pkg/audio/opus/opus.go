// Package opus decodes Ogg/Opus uploads (the format most browsers record
// voice answers in) into canonical WAV without shelling out to ffmpeg.
package opus

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"layeh.com/gopus"

	"github.com/lingualoop/lingualoop/pkg/audio"
)

// Opus always decodes at 48 kHz. 120 ms is the largest legal frame.
const (
	decodeRate   = 48000
	maxFrameSize = decodeRate * 120 / 1000
	headMinSize  = 19
)

// ErrNotOpus is returned when the Ogg stream does not start with an OpusHead
// identification header.
var ErrNotOpus = errors.New("opus: stream is not ogg/opus")

// Decoder is an [audio.Transcoder] for Ogg/Opus files.
type Decoder struct{}

var _ audio.Transcoder = Decoder{}

// Transcode decodes the Ogg/Opus file at src and writes a 16 kHz mono WAV to
// dst.
func (Decoder) Transcode(ctx context.Context, src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("%w: opus: read source: %w", audio.ErrTranscode, err)
	}
	pcm, err := Decode(ctx, data)
	if err != nil {
		return fmt.Errorf("%w: %w", audio.ErrTranscode, err)
	}
	wav := audio.EncodeWAV(pcm, audio.CanonicalSampleRate, audio.CanonicalChannels)
	if err := os.WriteFile(dst, wav, 0o600); err != nil {
		return fmt.Errorf("%w: opus: write wav: %w", audio.ErrTranscode, err)
	}
	return nil
}

// Head is the subset of the OpusHead identification header used for decoding.
type Head struct {
	Channels int
	PreSkip  int
}

// ParseHead parses an OpusHead packet.
func ParseHead(pkt []byte) (Head, error) {
	if len(pkt) < headMinSize || !bytes.HasPrefix(pkt, []byte("OpusHead")) {
		return Head{}, ErrNotOpus
	}
	h := Head{
		Channels: int(pkt[9]),
		PreSkip:  int(binary.LittleEndian.Uint16(pkt[10:12])),
	}
	if h.Channels < 1 || h.Channels > 2 {
		return Head{}, fmt.Errorf("opus: unsupported channel count %d", h.Channels)
	}
	return h, nil
}

// Decode demuxes and decodes an Ogg/Opus byte stream into 16 kHz mono 16-bit
// PCM.
func Decode(ctx context.Context, data []byte) ([]byte, error) {
	r := audio.NewOggReader(bytes.NewReader(data))

	first, err := r.NextPacket()
	if err != nil {
		return nil, fmt.Errorf("opus: read head: %w", err)
	}
	head, err := ParseHead(first)
	if err != nil {
		return nil, err
	}
	// The second packet is OpusTags.
	if _, err := r.NextPacket(); err != nil {
		return nil, fmt.Errorf("opus: read tags: %w", err)
	}

	dec, err := gopus.NewDecoder(decodeRate, head.Channels)
	if err != nil {
		return nil, fmt.Errorf("opus: create decoder: %w", err)
	}

	var mono []byte
	skip := head.PreSkip
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		pkt, err := r.NextPacket()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("opus: demux: %w", err)
		}
		if len(pkt) == 0 {
			continue
		}
		samples, err := dec.Decode(pkt, maxFrameSize, false)
		if err != nil {
			return nil, fmt.Errorf("opus: decode: %w", err)
		}
		frame := audio.Downmix(audio.Int16sToBytes(samples), head.Channels)
		if skip > 0 {
			n := min(skip, len(frame)/2)
			frame = frame[n*2:]
			skip -= n
		}
		mono = append(mono, frame...)
	}
	return audio.ResampleMono16(mono, decodeRate, audio.CanonicalSampleRate), nil
}
