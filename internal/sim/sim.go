// Package sim provides an in-process fake machine for tests and demos.
// Device identifiers beginning with "sim" select it.
package sim

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/FlorentCollin/longshot/internal/driver"
	"github.com/FlorentCollin/longshot/internal/protocol"
)

// DefaultName is the identity the simulated machine advertises.
const DefaultName = "sim-1"

// Is reports whether a device identifier selects the simulator.
func Is(deviceID string) bool { return strings.HasPrefix(deviceID, "sim") }

// Scan discovers the simulated machine. Always succeeds immediately.
func Scan(ctx context.Context) (driver.ScanResult, error) {
	return driver.ScanResult{Name: DefaultName, ID: DefaultName}, nil
}

// turnOnTicks is how many monitor responses the machine spends in
// TurningOn before reporting ready.
const turnOnTicks = 3

// brewTicks is the length of the dispensing progress ramp.
const brewTicks = 4

// Simulator is a deterministic Driver backed by a scripted state machine.
// State advances only in response to writes, so runs replay identically.
type Simulator struct {
	mu      sync.Mutex
	state   protocol.MachineState
	tick    int // monitor responses since the last state change
	brewing int // remaining progress ramp ticks, 0 when idle

	out      chan driver.Output
	stopOnce sync.Once
	stopped  chan struct{}

	writes [][]byte
}

// New creates a simulator for the given identifier. The machine starts in
// standby with the handshake event already queued.
func New(deviceID string) (*Simulator, error) {
	if !Is(deviceID) {
		return nil, driver.ErrNotFound
	}
	s := &Simulator{
		state:   protocol.StateStandBy,
		out:     make(chan driver.Output, 32),
		stopped: make(chan struct{}),
	}
	s.out <- driver.Ready()
	return s, nil
}

// Read blocks for the next queued event. Returns (nil, nil) once the
// simulated peripheral is gone.
func (s *Simulator) Read(ctx context.Context) (*driver.Output, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.stopped:
		// drain events queued before the disconnect
		select {
		case out := <-s.out:
			return &out, nil
		default:
			return nil, nil
		}
	case out := <-s.out:
		return &out, nil
	}
}

// Write accepts one framed packet and advances the machine script.
func (s *Simulator) Write(ctx context.Context, p protocol.Packet) error {
	select {
	case <-s.stopped:
		return fmt.Errorf("%w: simulator disconnected", driver.ErrTransport)
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes = append(s.writes, p.Packetize())

	body := p.Bytes()
	if len(body) == 0 {
		return nil
	}
	switch body[0] {
	case 0x75: // monitor request
		s.emit(driver.PacketOutput(protocol.MustPacket(s.monitorBody())))
	case 0x84: // turn on
		if s.state == protocol.StateStandBy {
			s.state = protocol.StateTurningOn
			s.tick = 0
		}
	case 0x83: // brew
		if s.state == protocol.StateReadyOrDispensing && s.brewing == 0 {
			s.brewing = brewTicks
		}
	}
	return nil
}

// monitorBody synthesizes one V2 status report and ticks the clock.
// Caller holds s.mu.
func (s *Simulator) monitorBody() []byte {
	s.tick++
	if s.state == protocol.StateTurningOn && s.tick > turnOnTicks {
		s.state = protocol.StateReadyOrDispensing
		s.tick = 0
	}
	var progress byte
	if s.brewing > 0 {
		progress = byte(brewTicks - s.brewing + 1)
		s.brewing--
	}
	stateByte := machineStateByte(s.state)
	percent := byte(0)
	if progress > 0 {
		percent = progress * (100 / brewTicks)
	}
	return []byte{0x75, 0x0F, 0, 0, 0, 0, 0, stateByte, progress, percent, 0, 0}
}

func (s *Simulator) emit(out driver.Output) {
	select {
	case s.out <- out:
	default:
		// reader fell behind; the device does not buffer
	}
}

// Alive reports whether the simulated peripheral is still attached.
func (s *Simulator) Alive(ctx context.Context) bool {
	select {
	case <-s.stopped:
		return false
	default:
		return true
	}
}

// Disconnect simulates the peripheral dropping off the air mid-session.
func (s *Simulator) Disconnect() {
	s.stopOnce.Do(func() { close(s.stopped) })
}

// Close releases the simulator. Idempotent.
func (s *Simulator) Close() error {
	s.Disconnect()
	return nil
}

// Writes returns a copy of every framed packet written so far, in order.
func (s *Simulator) Writes() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.writes))
	for i, w := range s.writes {
		c := make([]byte, len(w))
		copy(c, w)
		out[i] = c
	}
	return out
}

// machineStateByte is the wire encoding of the states the simulator visits.
func machineStateByte(st protocol.MachineState) byte {
	switch st {
	case protocol.StateStandBy:
		return 0
	case protocol.StateTurningOn:
		return 1
	case protocol.StateReadyOrDispensing:
		return 7
	}
	return 0
}

var _ driver.Driver = (*Simulator)(nil)
