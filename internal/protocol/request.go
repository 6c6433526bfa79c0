package protocol

import (
	"errors"
	"fmt"
)

// ErrUnimplemented marks request encodings whose id tables are not settled.
var ErrUnimplemented = errors.New("protocol: request encoding not implemented")

// Request is one outbound command. Encode returns the body bytes; framing is
// applied by the driver at transmission time.
type Request interface {
	Encode() ([]byte, error)
}

// MonitorVersion selects one of the machine's status report formats.
type MonitorVersion int

const (
	MonitorV0 MonitorVersion = iota
	MonitorV1
	MonitorV2
)

// MonitorRequest asks the machine for a status report.
type MonitorRequest struct {
	Version MonitorVersion
}

func (r MonitorRequest) Encode() ([]byte, error) {
	switch r.Version {
	case MonitorV0:
		return []byte{0x60, 0x0F}, nil
	case MonitorV1:
		return []byte{0x70, 0x0F}, nil
	case MonitorV2:
		return []byte{0x75, 0x0F}, nil
	}
	return nil, fmt.Errorf("protocol: unknown monitor version %d", r.Version)
}

// BrewRequest starts dispensing a beverage.
type BrewRequest struct{}

func (BrewRequest) Encode() ([]byte, error) {
	return []byte{0x83, 0xF0, 0x02, 0x01, 0x01, 0x00, 0x67, 0x02, 0x02, 0x00, 0x00, 0x06}, nil
}

// TurnOnRequest wakes the machine from standby.
type TurnOnRequest struct{}

func (TurnOnRequest) Encode() ([]byte, error) {
	return []byte{0x84, 0x0F, 0x02, 0x01}, nil
}

// RecipeQuantityRequest reads the stored quantities of one recipe slot.
type RecipeQuantityRequest struct {
	Profile byte
	Recipe  byte
}

func (r RecipeQuantityRequest) Encode() ([]byte, error) {
	return []byte{0xA2, 0xF0, r.Profile, r.Recipe}, nil
}

// ParameterReadRequest reads a configuration parameter. The id/length table
// is shared with the ingredient subsystem and not settled yet; encoding
// fails until it is.
type ParameterReadRequest struct {
	ID  uint16
	Len uint8
}

func (r ParameterReadRequest) Encode() ([]byte, error) {
	return nil, fmt.Errorf("%w: parameter read id=%d", ErrUnimplemented, r.ID)
}

// ParameterWriteRequest writes a configuration parameter. Same contract as
// ParameterReadRequest.
type ParameterWriteRequest struct {
	ID uint16
}

func (r ParameterWriteRequest) Encode() ([]byte, error) {
	return nil, fmt.Errorf("%w: parameter write id=%d", ErrUnimplemented, r.ID)
}

// RawRequest reproduces its bytes verbatim.
type RawRequest []byte

func (r RawRequest) Encode() ([]byte, error) {
	b := make([]byte, len(r))
	copy(b, r)
	return b, nil
}

// EncodePacket encodes a request into a Packet ready for a driver write.
func EncodePacket(r Request) (Packet, error) {
	body, err := r.Encode()
	if err != nil {
		return Packet{}, err
	}
	return NewPacket(body)
}
