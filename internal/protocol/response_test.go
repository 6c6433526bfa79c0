package protocol

import (
	"bytes"
	"testing"
)

func TestDecodeResponseState(t *testing.T) {
	// 75 0f | accessory sw0 sw1 sw2 sw3 state progress percent load0 load1
	body := []byte{0x75, 0x0F, 0xAA, 1, 2, 3, 4, 7, 5, 42, 9, 8}
	resp := DecodeResponse(body)
	if resp.State == nil {
		t.Fatal("expected state response")
	}
	st := resp.State
	if st.State != StateReadyOrDispensing {
		t.Errorf("state = %v, want ready_or_dispensing", st.State)
	}
	if st.StateByte != 7 || st.Progress != 5 || st.Percent != 42 || st.Load0 != 9 || st.Load1 != 8 {
		t.Errorf("fields = %+v", st)
	}
	if !bytes.Equal(st.Raw, body[2:]) {
		t.Errorf("raw = % x, want % x", st.Raw, body[2:])
	}
}

func TestDecodeResponseRaw(t *testing.T) {
	cases := [][]byte{
		{0xA2, 0xF0, 0x01},                          // other opcode
		{0x75},                                      // monitor header, no payload
		{0x75, 0x0F, 1, 2, 3},                       // monitor header, short payload
		{0x60, 0x0F, 0, 0, 0, 0, 0, 7, 0, 0, 0, 0}, // old monitor format stays raw
	}
	for _, body := range cases {
		resp := DecodeResponse(body)
		if resp.State != nil {
			t.Errorf("body % x: unexpected state decode", body)
			continue
		}
		if !bytes.Equal(resp.Raw, body) {
			t.Errorf("body % x: raw not preserved exactly: % x", body, resp.Raw)
		}
	}
}

func TestMachineStateTable(t *testing.T) {
	want := map[byte]MachineState{
		0:  StateStandBy,
		1:  StateTurningOn,
		2:  StateShuttingDown,
		4:  StateDescaling,
		5:  StateSteamPreparation,
		6:  StateRecovery,
		7:  StateReadyOrDispensing,
		8:  StateRinsing,
		10: StateMilkPreparation,
		11: StateHotWaterDelivery,
		12: StateMilkCleaning,
	}
	for b, st := range want {
		if got := DecodeMachineState(b); got != st {
			t.Errorf("DecodeMachineState(%d) = %v, want %v", b, got, st)
		}
	}
}

func TestMachineStateUnknownFallthrough(t *testing.T) {
	known := map[byte]bool{0: true, 1: true, 2: true, 4: true, 5: true, 6: true, 7: true, 8: true, 10: true, 11: true, 12: true}
	for b := 0; b <= 0xFF; b++ {
		if known[byte(b)] {
			continue
		}
		if got := DecodeMachineState(byte(b)); got != StateUnknown {
			t.Fatalf("DecodeMachineState(%d) = %v, want unknown", b, got)
		}
	}
}
