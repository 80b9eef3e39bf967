package protocol

import (
	"bytes"
	"testing"
)

// reassemble inverts the column read-out of the four fragments
func reassemble(t *testing.T, elc *EmbeddedLC) [128]bool {
	t.Helper()
	var raw [128]bool
	for n := 1; n <= 4; n++ {
		frag, _ := elc.Fragment(n)
		for i := 0; i < 32; i++ {
			raw[(n-1)*32+i] = getBit(frag, i)
		}
	}
	var data [128]bool
	pos := 0
	for a := 0; a < 128; a++ {
		data[pos] = raw[a]
		pos += 16
		if pos > 127 {
			pos -= 127
		}
	}
	return data
}

func TestEmbeddedLC_MatrixCarriesLC(t *testing.T) {
	lc := NewLC(FLCOGroup, 3120001, 91)
	data := reassemble(t, NewEmbeddedLC(lc))

	var lcBits []bool
	for _, r := range [][2]int{{0, 11}, {16, 27}, {32, 42}, {48, 58}, {64, 74}, {80, 90}, {96, 106}} {
		lcBits = append(lcBits, data[r[0]:r[1]]...)
	}
	got := make([]byte, LCLength)
	bitsToBytes(lcBits, got)
	if !bytes.Equal(got, lc.Bytes()) {
		t.Fatalf("LC bits = % X, want % X", got, lc.Bytes())
	}

	for row := 0; row < 7; row++ {
		check := make([]bool, 16)
		copy(check, data[row*16:row*16+16])
		hamming16114(check)
		for i := 11; i < 16; i++ {
			if check[i] != data[row*16+i] {
				t.Fatalf("row %d fails Hamming(16,11)", row)
			}
		}
	}

	for col := 0; col < 16; col++ {
		parity := false
		for row := 0; row < 8; row++ {
			parity = parity != data[row*16+col]
		}
		if parity {
			t.Fatalf("column %d parity is odd", col)
		}
	}

	var sum uint
	for _, b := range lc.Bytes() {
		sum += uint(b)
	}
	crc := sum % 31
	if data[106] != (crc&0x01 != 0) || data[42] != (crc&0x10 != 0) {
		t.Error("checksum bits misplaced")
	}
}

func TestEmbeddedLC_FragmentLCSS(t *testing.T) {
	elc := NewEmbeddedLC(NewLC(FLCOGroup, 1, 2))
	want := []byte{LCSSFirst, LCSSContinuation, LCSSContinuation, LCSSLast}
	for n := 1; n <= 4; n++ {
		if _, lcss := elc.Fragment(n); lcss != want[n-1] {
			t.Errorf("fragment %d LCSS = %d, want %d", n, lcss, want[n-1])
		}
	}
	if frag, lcss := elc.Fragment(5); lcss != LCSSSingle || !bytes.Equal(frag, make([]byte, 4)) {
		t.Error("out of range fragment should be a null fragment")
	}
}

func TestEMB_RoundTrip(t *testing.T) {
	payload := make([]byte, PayloadSize)
	WriteEMB(payload, 1, true, LCSSLast)
	cc, pi, lcss := ReadEMB(payload)
	if cc != 1 || !pi || lcss != LCSSLast {
		t.Errorf("EMB = %d/%v/%d", cc, pi, lcss)
	}

	// the QR code word straddles the fragment field
	word := qr1676(1<<3 | 0x04 | LCSSLast)
	var got uint16
	for i := 0; i < 8; i++ {
		got <<= 1
		if getBit(payload, 108+i) {
			got |= 1
		}
	}
	for i := 0; i < 8; i++ {
		got <<= 1
		if getBit(payload, 148+i) {
			got |= 1
		}
	}
	if got != word {
		t.Errorf("EMB bits %04X, want %04X", got, word)
	}
}

func TestWriteVoiceSignalling_Superframe(t *testing.T) {
	elc := NewEmbeddedLC(NewLC(FLCOGroup, 3120001, 91))

	for n := 0; n < 6; n++ {
		payload := bytes.Repeat([]byte{0xFF}, PayloadSize)
		WriteVoiceSignalling(payload, n, 1, elc)

		if n == 0 {
			if !HasAudioSync(payload) {
				t.Fatal("burst A must carry the audio sync")
			}
			continue
		}
		if HasAudioSync(payload) {
			t.Fatalf("burst %d carries a sync", n)
		}
		cc, _, lcss := ReadEMB(payload)
		if cc != 1 {
			t.Errorf("burst %d colour code %d", n, cc)
		}
		frag := ReadEmbeddedFragment(payload)
		if n == 5 {
			if lcss != LCSSSingle || !bytes.Equal(frag, make([]byte, 4)) {
				t.Error("burst F should carry a null fragment")
			}
			continue
		}
		want, wantLCSS := elc.Fragment(n)
		if !bytes.Equal(frag, want) || lcss != wantLCSS {
			t.Errorf("burst %d fragment % X lcss %d", n, frag, lcss)
		}
		// voice bits around the field stay untouched
		if payload[0] != 0xFF || payload[32] != 0xFF || payload[13]&0xF0 != 0xF0 {
			t.Errorf("burst %d voice bits modified", n)
		}
	}
}

func TestSync_Patterns(t *testing.T) {
	payload := bytes.Repeat([]byte{0xAA}, PayloadSize)
	AddAudioSync(payload)
	if !HasAudioSync(payload) || HasDataSync(payload) {
		t.Error("audio sync not detected")
	}
	if payload[13]&0xF0 != 0xA0 || payload[19]&0x0F != 0x0A {
		t.Error("sync clobbered neighbouring voice bits")
	}

	bs := make([]byte, PayloadSize)
	addSync(bs, BSSourcedDataSync)
	if !HasDataSync(bs) {
		t.Error("BS sourced data sync not accepted")
	}
}
