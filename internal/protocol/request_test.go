package protocol

import (
	"bytes"
	"errors"
	"testing"
)

func TestRequestEncodings(t *testing.T) {
	cases := []struct {
		name string
		req  Request
		want string
	}{
		{"brew_coffee", BrewRequest{}, "83 f0 02 01 01 00 67 02 02 00 00 06"},
		{"monitor_v0", MonitorRequest{Version: MonitorV0}, "60 0f"},
		{"monitor_v1", MonitorRequest{Version: MonitorV1}, "70 0f"},
		{"monitor_v2", MonitorRequest{Version: MonitorV2}, "75 0f"},
		{"turn_on", TurnOnRequest{}, "84 0f 02 01"},
		{"recipe_quantity", RecipeQuantityRequest{Profile: 1, Recipe: 9}, "a2 f0 01 09"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := tc.req.Encode()
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			if want := fromHex(t, tc.want); !bytes.Equal(got, want) {
				t.Fatalf("got % x, want % x", got, want)
			}
		})
	}
}

func TestRawRequestVerbatim(t *testing.T) {
	in := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	got, err := RawRequest(in).Encode()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, in) {
		t.Fatalf("raw not verbatim: % x", got)
	}
	got[0] = 0
	if in[0] != 0xDE {
		t.Fatal("raw encode aliases input")
	}
}

func TestParameterRequestsUnimplemented(t *testing.T) {
	if _, err := (ParameterReadRequest{ID: 7, Len: 4}).Encode(); !errors.Is(err, ErrUnimplemented) {
		t.Fatalf("parameter read: got %v, want ErrUnimplemented", err)
	}
	if _, err := (ParameterWriteRequest{ID: 7}).Encode(); !errors.Is(err, ErrUnimplemented) {
		t.Fatalf("parameter write: got %v, want ErrUnimplemented", err)
	}
}
