package protocol

import (
	"bytes"
	"testing"
)

func TestFLCO_String(t *testing.T) {
	if FLCOGroup.String() != "group" || FLCOUserUser.String() != "private" {
		t.Errorf("unexpected names %s/%s", FLCOGroup, FLCOUserUser)
	}
	if FLCO(7).String() != "flco(7)" {
		t.Errorf("unknown FLCO = %s", FLCO(7))
	}
}

func TestLC_BytesRoundTrip(t *testing.T) {
	lc := NewLC(FLCOUserUser, 3120001, 4000)
	b := lc.Bytes()
	if len(b) != LCLength || b[0] != 0x03 {
		t.Fatalf("unexpected packing % X", b)
	}
	if !bytes.Equal(b[3:6], []byte{0x00, 0x0F, 0xA0}) {
		t.Errorf("destination bytes % X", b[3:6])
	}

	parsed, err := ParseLC(b)
	if err != nil {
		t.Fatal(err)
	}
	if *parsed != *lc {
		t.Errorf("round trip %+v != %+v", parsed, lc)
	}

	if _, err := ParseLC(b[:5]); err == nil {
		t.Error("expected error for short LC")
	}
}

func TestFullLC_RoundTrip(t *testing.T) {
	lc := NewLC(FLCOGroup, 1234567, 91)

	for _, dt := range []byte{DataTypeVoiceLCHeader, DataTypeTerminatorWithLC} {
		payload := make([]byte, PayloadSize)
		if err := EncodeFullLC(lc, dt, payload); err != nil {
			t.Fatalf("EncodeFullLC(%d): %v", dt, err)
		}
		got, err := DecodeFullLC(payload, dt)
		if err != nil {
			t.Fatalf("DecodeFullLC(%d): %v", dt, err)
		}
		if got.SrcID != 1234567 || got.DstID != 91 || got.FLCO != FLCOGroup {
			t.Errorf("decoded %+v", got)
		}
	}
}

func TestFullLC_MaskSeparatesHeaderFromTerminator(t *testing.T) {
	payload := make([]byte, PayloadSize)
	if err := EncodeFullLC(NewLC(FLCOGroup, 1, 2), DataTypeVoiceLCHeader, payload); err != nil {
		t.Fatal(err)
	}
	if _, err := DecodeFullLC(payload, DataTypeTerminatorWithLC); err == nil {
		t.Error("header decoded with the terminator mask")
	}
	if err := EncodeFullLC(NewLC(FLCOGroup, 1, 2), DataTypeIdle, payload); err == nil {
		t.Error("expected error for a data type without LC")
	}
}

func TestFullLC_CorrectsSingleBitErrors(t *testing.T) {
	lc := NewLC(FLCOUserUser, 2345678, 9990)
	clean := make([]byte, PayloadSize)
	if err := EncodeFullLC(lc, DataTypeVoiceLCHeader, clean); err != nil {
		t.Fatal(err)
	}

	for _, pos := range []int{3, 40, 97, 170, 263} {
		payload := append([]byte(nil), clean...)
		setBit(payload, pos, !getBit(payload, pos))
		got, err := DecodeFullLC(payload, DataTypeVoiceLCHeader)
		if err != nil {
			t.Fatalf("bit %d: %v", pos, err)
		}
		if got.SrcID != lc.SrcID || got.DstID != lc.DstID {
			t.Errorf("bit %d: decoded %+v", pos, got)
		}
	}
}

func TestFullLC_LeavesSyncAreaAlone(t *testing.T) {
	payload := make([]byte, PayloadSize)
	AddDataSync(payload)
	if err := EncodeFullLC(NewLC(FLCOGroup, 1, 2), DataTypeVoiceLCHeader, payload); err != nil {
		t.Fatal(err)
	}
	if !HasDataSync(payload) {
		t.Error("LC encoding overwrote the sync pattern")
	}
}

func TestGolay2087_KnownCodewords(t *testing.T) {
	// parity of data 0x01 is 0x8EB
	if got := golay2087(0x01); got != 0x018EB {
		t.Errorf("golay2087(1) = %05X", got)
	}
	if golay2087(0) != 0 {
		t.Error("zero must encode to zero")
	}
}

func TestQR1676_KnownCodewords(t *testing.T) {
	tests := map[byte]uint16{0: 0x0000, 1: 0x0273, 2: 0x04E5, 3: 0x0696, 4: 0x09C9, 8: 0x11E2}
	for d, want := range tests {
		if got := qr1676(d); got != want {
			t.Errorf("qr1676(%d) = %04X, want %04X", d, got, want)
		}
	}
}

func TestSlotType_RoundTrip(t *testing.T) {
	payload := make([]byte, PayloadSize)
	WriteSlotType(payload, 1, DataTypeTerminatorWithLC)
	cc, dt := ReadSlotType(payload)
	if cc != 1 || dt != DataTypeTerminatorWithLC {
		t.Errorf("slot type = %d/%d", cc, dt)
	}
}

func TestBuildDataBurst(t *testing.T) {
	burst, err := BuildDataBurst(NewLC(FLCOGroup, 3120001, 91), DataTypeVoiceLCHeader, 1)
	if err != nil {
		t.Fatal(err)
	}
	if !HasDataSync(burst) || HasAudioSync(burst) {
		t.Error("data burst should carry the data sync")
	}
	if _, dt := ReadSlotType(burst); dt != DataTypeVoiceLCHeader {
		t.Errorf("slot type data type = %d", dt)
	}
	if lc, err := DecodeFullLC(burst, DataTypeVoiceLCHeader); err != nil || lc.DstID != 91 {
		t.Errorf("decode = %+v, %v", lc, err)
	}
}
