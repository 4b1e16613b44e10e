package audio

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// ErrInvalidOgg is returned when the input is not a well-formed Ogg stream.
var ErrInvalidOgg = errors.New("audio: invalid ogg stream")

const (
	oggHeaderSize   = 27
	oggContinuation = 0x01
	oggEndOfStream  = 0x04
)

// OggReader splits an Ogg bitstream into packets. Only the first logical
// stream is returned; pages belonging to other serial numbers are skipped.
// Page checksums are not verified.
type OggReader struct {
	r       *bufio.Reader
	serial  uint32
	started bool
	done    bool
	queue   [][]byte
	partial []byte
}

// NewOggReader returns a reader that demuxes packets from r.
func NewOggReader(r io.Reader) *OggReader {
	return &OggReader{r: bufio.NewReader(r)}
}

// NextPacket returns the next complete packet. It returns io.EOF once the
// logical stream has ended.
func (o *OggReader) NextPacket() ([]byte, error) {
	for len(o.queue) == 0 {
		if o.done {
			return nil, io.EOF
		}
		if err := o.readPage(); err != nil {
			return nil, err
		}
	}
	p := o.queue[0]
	o.queue = o.queue[1:]
	return p, nil
}

func (o *OggReader) readPage() error {
	var hdr [oggHeaderSize]byte
	if _, err := io.ReadFull(o.r, hdr[:]); err != nil {
		if errors.Is(err, io.EOF) && o.started {
			o.done = true
			return nil
		}
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: empty input", ErrInvalidOgg)
		}
		return fmt.Errorf("%w: read page header: %w", ErrInvalidOgg, err)
	}
	if string(hdr[0:4]) != "OggS" || hdr[4] != 0 {
		return fmt.Errorf("%w: bad capture pattern", ErrInvalidOgg)
	}
	flags := hdr[5]
	serial := binary.LittleEndian.Uint32(hdr[14:18])

	lacing := make([]byte, int(hdr[26]))
	if _, err := io.ReadFull(o.r, lacing); err != nil {
		return fmt.Errorf("%w: read segment table: %w", ErrInvalidOgg, err)
	}
	total := 0
	for _, l := range lacing {
		total += int(l)
	}
	body := make([]byte, total)
	if _, err := io.ReadFull(o.r, body); err != nil {
		return fmt.Errorf("%w: read page body: %w", ErrInvalidOgg, err)
	}

	if !o.started {
		o.started = true
		o.serial = serial
	}
	if serial != o.serial {
		return nil
	}
	if flags&oggContinuation == 0 {
		o.partial = o.partial[:0]
	}

	off := 0
	for _, l := range lacing {
		o.partial = append(o.partial, body[off:off+int(l)]...)
		off += int(l)
		if l < 255 {
			pkt := make([]byte, len(o.partial))
			copy(pkt, o.partial)
			o.queue = append(o.queue, pkt)
			o.partial = o.partial[:0]
		}
	}
	if flags&oggEndOfStream != 0 {
		o.done = true
	}
	return nil
}
