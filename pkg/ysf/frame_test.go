package ysf

import (
	"bytes"
	"testing"
)

func TestPadAndTrimCallsign(t *testing.T) {
	tests := []struct {
		input  string
		padded string
	}{
		{"KB3EFE", "KB3EFE    "},
		{"", "          "},
		{"VERYLONGCALLSIGN", "VERYLONGCA"},
	}
	for _, tt := range tests {
		if got := PadCallsign(tt.input); got != tt.padded {
			t.Errorf("PadCallsign(%q) = %q, want %q", tt.input, got, tt.padded)
		}
	}
	if got := TrimCallsign("N0CALL\x00\x00  "); got != "N0CALL" {
		t.Errorf("TrimCallsign = %q", got)
	}
}

func TestNewFrameLayout(t *testing.T) {
	f := NewFrame("GW1ABC", "N0CALL", "ALL", 0x12)

	if !IsFrame(f) {
		t.Fatal("NewFrame did not produce a YSFD frame")
	}
	if Callsign(f, OffsetGateway) != "GW1ABC" || Callsign(f, OffsetSource) != "N0CALL" || Callsign(f, OffsetDest) != "ALL" {
		t.Errorf("callsign fields wrong: %q", f[:34])
	}
	if f[OffsetSequence] != 0x12 {
		t.Errorf("sequence = %#x", f[OffsetSequence])
	}
	if !bytes.Equal(Payload(f)[:SyncLength], SyncBytes) {
		t.Error("payload sync missing")
	}

	SetCallsign(f, OffsetSource, "K1XYZ")
	if Callsign(f, OffsetSource) != "K1XYZ" {
		t.Error("SetCallsign did not overwrite the field")
	}
}

func TestDataFRRoundTrip(t *testing.T) {
	payload := make([]byte, PayloadLength)
	d1 := []byte("ABCDEFGHIJKLMNOPQRST")
	d2 := []byte("short")

	WriteDataFR(payload, d1, d2)
	r1, r2, ok1, ok2 := ReadDataFR(payload)
	if !ok1 || !ok2 {
		t.Fatal("CRC check failed on freshly written blocks")
	}
	if !bytes.Equal(r1, d1) {
		t.Errorf("data1 = %q", r1)
	}
	if string(r2) != "short               " {
		t.Errorf("data2 should be space padded, got %q", r2)
	}

	payload[dataOffset+3] ^= 0x01
	if _, _, ok1, _ := ReadDataFR(payload); ok1 {
		t.Error("corrupted data1 passed its CRC")
	}
}

func TestDataFRDoesNotTouchFICH(t *testing.T) {
	payload := make([]byte, PayloadLength)
	copy(payload, SyncBytes)
	f := FICH{FI: FIHeader, DT: DTDataFR, FT: 1}
	if err := f.Encode(payload); err != nil {
		t.Fatal(err)
	}
	WriteHeader(payload, []byte("**********N0CALL    "), nil)

	var got FICH
	if ok, _ := got.Decode(payload); !ok || got.DT != DTDataFR {
		t.Fatalf("FICH damaged by header write: %+v", got)
	}
	if src, ok := HeaderSource(payload); !ok || src != "N0CALL" {
		t.Errorf("HeaderSource = %q %v", src, ok)
	}
}

func TestVDMode2Layout(t *testing.T) {
	payload := make([]byte, PayloadLength)
	vch := make([]byte, VCHCount*VCHLength)
	for i := range vch {
		vch[i] = byte(i + 1)
	}

	WriteVDMode2Data(payload, []byte("N0CALL"))
	WriteVCH(payload, vch)

	dch, ok := ReadVDMode2Data(payload)
	if !ok {
		t.Fatal("DCH CRC failed")
	}
	if string(dch) != "N0CALL    " {
		t.Errorf("DCH = %q", dch)
	}
	if !bytes.Equal(ReadVCH(payload), vch) {
		t.Error("VCH slots did not round trip")
	}
	if VCHOffset(VCHCount-1)+VCHLength != PayloadLength {
		t.Errorf("last VCH should end the payload, ends at %d", VCHOffset(VCHCount-1)+VCHLength)
	}
}

func TestGolayRoundTripAndCorrection(t *testing.T) {
	for _, data := range []uint32{0x000, 0x001, 0x123, 0x800, 0xABC, 0xFFF} {
		code := Encode24128(data)
		if got := Decode24128Code(code); got != data {
			t.Errorf("round trip %03X -> %03X", data, got)
		}
		for _, flips := range []uint32{1 << 3, 1<<3 | 1<<9, 1<<3 | 1<<9 | 1<<20} {
			if got := Decode24128Code(code ^ flips); got != data {
				t.Errorf("data %03X with errors %06X decoded as %03X", data, flips, got)
			}
		}
	}
	if Encode23127(0x5A5)>>11 != 0x5A5 {
		t.Error("Golay(23,12) must be systematic")
	}
}
