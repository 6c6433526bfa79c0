// Package driver defines the contract every device transport satisfies and
// the error kinds surfaced at the core boundary.
package driver

import (
	"context"
	"errors"

	"github.com/FlorentCollin/longshot/internal/protocol"
)

// Sentinel errors used for wrapping so callers can classify via errors.Is.
var (
	// ErrNotFound: no matching device during scan.
	ErrNotFound = errors.New("device not found")
	// ErrTransport: BLE layer error or I/O failure on the subprocess pipe.
	// Always wraps the underlying cause.
	ErrTransport = errors.New("transport")
	// ErrUnknown: internal invariant broke (channel closed unexpectedly,
	// session died before readiness).
	ErrUnknown = errors.New("unknown")
)

// OutputKind discriminates driver events.
type OutputKind int

const (
	// OutputReady: transport handshake complete, the session may begin
	// polling. Emitted exactly once per driver.
	OutputReady OutputKind = iota
	// OutputPacket: one inbound message body.
	OutputPacket
	// OutputDone: upstream closed; no further events follow.
	OutputDone
)

func (k OutputKind) String() string {
	switch k {
	case OutputReady:
		return "ready"
	case OutputPacket:
		return "packet"
	case OutputDone:
		return "done"
	}
	return "invalid"
}

// Output is one device event. For OutputPacket, Packet holds the body and
// Resp its partial decode; consumers may use either.
type Output struct {
	Kind   OutputKind
	Packet protocol.Packet
	Resp   *protocol.Response
}

// Ready constructs the handshake event.
func Ready() Output { return Output{Kind: OutputReady} }

// Done constructs the end-of-stream event.
func Done() Output { return Output{Kind: OutputDone} }

// PacketOutput wraps an inbound body, attempting a partial decode.
func PacketOutput(p protocol.Packet) Output {
	resp := protocol.DecodeResponse(p.Bytes())
	return Output{Kind: OutputPacket, Packet: p, Resp: &resp}
}

// Driver is the uniform async contract over the BLE, subprocess and
// simulator transports. Implementations must allow Write concurrently with
// an outstanding Read; Read itself has a single caller (the session pump).
type Driver interface {
	// Read blocks for the next device event. It returns (nil, nil) at
	// end-of-stream and never blocks forever once the transport is dead.
	Read(ctx context.Context) (*Output, error)

	// Write frames and sends one packet. Fire-and-forget; no response
	// correlation at this layer.
	Write(ctx context.Context, p protocol.Packet) error

	// Alive probes transport liveness; may perform I/O.
	Alive(ctx context.Context) bool

	// Close releases the transport. Idempotent.
	Close() error
}

// ScanResult identifies one discovered device.
type ScanResult struct {
	// Name is the device's advertised human name.
	Name string
	// ID is the transport-level identifier used to connect.
	ID string
}
