package protocol

import (
	"bytes"
	"context"
	"encoding/hex"
	"io"
	"strings"
	"testing"

	"github.com/FlorentCollin/longshot/internal/metrics"
)

var vectorBodies = []string{
	"83 f0 02 01 01 00 67 02 02 00 00 06",
	"83 f0 05 01 01 00 78 00 00 06",
	"84 0f 02 01",
}

func TestFramerChunkedFeed(t *testing.T) {
	// Build a continuous stream and feed it in irregular small chunks to
	// stress preamble alignment and partial frames.
	var stream []byte
	var want [][]byte
	for _, b := range vectorBodies {
		frame := Packetize(fromHex(t, b))
		stream = append(stream, frame...)
		want = append(want, frame)
	}

	var framer Framer
	var got [][]byte
	chunkSizes := []int{1, 2, 3, 4, 5, 7, 11}
	cs := 0
	for pos := 0; pos < len(stream); {
		n := chunkSizes[cs%len(chunkSizes)]
		cs++
		if pos+n > len(stream) {
			n = len(stream) - pos
		}
		framer.Push(stream[pos:pos+n], func(frame []byte) { got = append(got, frame) })
		pos += n
	}

	if len(got) != len(want) {
		t.Fatalf("decoded %d frames, want %d", len(got), len(want))
	}
	for i := range want {
		if !bytes.Equal(got[i], want[i]) {
			t.Fatalf("frame %d mismatch\n got  % x\n want % x", i, got[i], want[i])
		}
	}
}

func TestFramerResyncOnGarbage(t *testing.T) {
	// Three garbage bytes prepended to each frame must still yield exactly
	// three valid packets.
	var stream []byte
	for _, b := range vectorBodies {
		stream = append(stream, 0xDE, 0xAD, 0xBE)
		stream = append(stream, Packetize(fromHex(t, b))...)
	}
	var framer Framer
	var got [][]byte
	framer.Push(stream, func(frame []byte) { got = append(got, frame) })
	if len(got) != len(vectorBodies) {
		t.Fatalf("decoded %d frames, want %d", len(got), len(vectorBodies))
	}
	for i, b := range vectorBodies {
		if !bytes.Equal(Body(got[i]), fromHex(t, b)) {
			t.Fatalf("frame %d body mismatch: % x", i, Body(got[i]))
		}
	}
}

func TestFramerDropsBadChecksum(t *testing.T) {
	before := metrics.Snap().Malformed

	good := Packetize(fromHex(t, "84 0f 02 01"))
	bad := Packetize(fromHex(t, "84 0f 02 01"))
	bad[len(bad)-1] ^= 0xFF

	var framer Framer
	var got [][]byte
	framer.Push(append(bad, good...), func(frame []byte) { got = append(got, frame) })

	if len(got) != 1 {
		t.Fatalf("decoded %d frames, want 1", len(got))
	}
	if !bytes.Equal(got[0], good) {
		t.Fatalf("surviving frame mismatch: % x", got[0])
	}
	if after := metrics.Snap().Malformed; after <= before {
		t.Fatalf("expected malformed metric increment, before=%d after=%d", before, after)
	}
}

func TestFramerDropsBadLength(t *testing.T) {
	// preamble with an impossible LEN, then a valid frame
	stream := []byte{Preamble, 0x01}
	good := Packetize(fromHex(t, "75 0f"))
	stream = append(stream, good...)

	var framer Framer
	var got [][]byte
	framer.Push(stream, func(frame []byte) { got = append(got, frame) })
	if len(got) != 1 || !bytes.Equal(got[0], good) {
		t.Fatalf("got %d frames: % x", len(got), got)
	}
}

func TestStreamFramesEndsOnEOF(t *testing.T) {
	var stream []byte
	for _, b := range vectorBodies {
		stream = append(stream, Packetize(fromHex(t, b))...)
	}
	var got int
	err := StreamFrames(context.Background(), bytes.NewReader(stream), func([]byte) { got++ })
	if err != nil {
		t.Fatalf("StreamFrames: %v", err)
	}
	if got != len(vectorBodies) {
		t.Fatalf("got %d frames, want %d", got, len(vectorBodies))
	}
}

func TestStreamFramesPropagatesReadError(t *testing.T) {
	r := io.MultiReader(bytes.NewReader(Packetize([]byte{0x75, 0x0F})), errReader{})
	err := StreamFrames(context.Background(), r, func([]byte) {})
	if err == nil {
		t.Fatal("expected read error")
	}
}

type errReader struct{}

func (errReader) Read([]byte) (int, error) { return 0, io.ErrClosedPipe }

func FuzzFramerPush(f *testing.F) {
	for _, b := range []string{
		"0d 0f 83 f0 02 01 01 00 67 02 02 00 00 06 77 ff",
		"0d 07 84 0f 02 01 55 12",
		"00 0d 07 84",
	} {
		seed, err := hex.DecodeString(strings.ReplaceAll(b, " ", ""))
		if err != nil {
			f.Fatal(err)
		}
		f.Add(seed)
	}
	f.Fuzz(func(t *testing.T, data []byte) {
		// The framer must neither panic nor emit an invalid frame.
		var framer Framer
		framer.Push(data, func(frame []byte) {
			if len(frame) < 2 || frame[0] != Preamble {
				t.Fatalf("emitted frame without preamble: % x", frame)
			}
			ln := int(frame[1])
			if len(frame) != 1+ln {
				t.Fatalf("emitted frame with wrong length: % x", frame)
			}
			cs := Checksum(frame[:len(frame)-2])
			if cs[0] != frame[len(frame)-2] || cs[1] != frame[len(frame)-1] {
				t.Fatalf("emitted frame with bad checksum: % x", frame)
			}
		})
	})
}

