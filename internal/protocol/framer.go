package protocol

import (
	"bytes"
	"context"
	"io"

	"github.com/FlorentCollin/longshot/internal/metrics"
)

// Framer turns a fragmented byte stream into validated frames. Feed it
// transport reads in any chunking; it aligns on the preamble, checks length
// and checksum, and resynchronises after any mismatch. Not safe for
// concurrent use; each transport owns one.
type Framer struct {
	acc bytes.Buffer
}

// minFrameLen is the LEN value of an empty body (length byte + 2 checksum).
const minFrameLen = frameOverhead

// compactThreshold bounds accumulator growth from misaligned garbage. When
// the buffer is fully drained past this capacity it is reallocated.
const compactThreshold = 16 * 1024

// Push appends raw transport bytes and emits every complete valid frame,
// including preamble, length and checksum trailer. Invalid frames are
// counted and skipped without disturbing the stream.
func (f *Framer) Push(data []byte, emit func(frame []byte)) {
	f.acc.Write(data)
	for {
		buf := f.acc.Bytes()
		// align to preamble
		i := bytes.IndexByte(buf, Preamble)
		if i < 0 {
			f.acc.Reset()
			break
		}
		if i > 0 {
			f.acc.Next(i)
			continue
		}
		if len(buf) < 2 {
			break
		}
		ln := int(buf[1])
		if ln < minFrameLen {
			// malformed length; advance one byte to resync
			metrics.IncMalformed()
			f.acc.Next(1)
			continue
		}
		total := 1 + ln // preamble + everything LEN counts
		if len(buf) < total {
			break
		}
		cs := Checksum(buf[:total-2])
		if cs[0] != buf[total-2] || cs[1] != buf[total-1] {
			metrics.IncMalformed()
			f.acc.Next(1)
			continue
		}
		frame := make([]byte, total)
		copy(frame, buf[:total])
		emit(frame)
		metrics.IncFramesRx()
		f.acc.Next(total)
	}
	if f.acc.Len() == 0 && f.acc.Cap() > compactThreshold {
		f.acc = bytes.Buffer{}
	}
}

// StreamFrames drives a Framer from r until read error or end-of-stream,
// invoking emit for every valid frame. Returns nil on io.EOF; the stream is
// not restartable. Used by the subprocess pipe transport.
func StreamFrames(ctx context.Context, r io.Reader, emit func(frame []byte)) error {
	var framer Framer
	buf := make([]byte, 4096)
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		n, err := r.Read(buf)
		if n > 0 {
			framer.Push(buf[:n], emit)
		}
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
	}
}
