package ysf

import (
	"bytes"
	"strings"
)

// Network frame layout. A YSFD frame is the 4 byte tag, the gateway
// callsign, the source callsign, the destination field, one sequence byte
// and the 120 byte air payload.
const (
	CallsignLength = 10
	FrameLength    = 155
	PayloadLength  = 120
	SyncLength     = 5
	// FICHLength is the encoded FICH size following the sync
	FICHLength = 25

	OffsetGateway  = 4
	OffsetSource   = 14
	OffsetDest     = 24
	OffsetSequence = 34
	OffsetPayload  = 35
)

// Frame Information (FI) values
const (
	FIHeader        = 0x00
	FICommunication = 0x01
	FITerminator    = 0x02
	FITest          = 0x03
)

// Data Type (DT) values
const (
	DTVDMode1 = 0x00
	DTDataFR  = 0x01
	DTVDMode2 = 0x02
	DTVoiceFR = 0x03
)

// Call sign / message route values used when synthesizing frames
const (
	CSDirect   = 0x00
	CSAssigned = 0x02

	MRDirect  = 0x00
	MRNotBusy = 0x01
	MRBusy    = 0x02
)

var (
	// FrameTag marks a voice/data frame on the network
	FrameTag = []byte("YSFD")
	// PollTag, UnlinkTag are the reflector keepalive and disconnect messages
	PollTag   = []byte("YSFP")
	UnlinkTag = []byte("YSFU")

	// SyncBytes start every air payload
	SyncBytes = []byte{0xD4, 0x71, 0xC9, 0x63, 0x4D}
)

// IsFrame reports whether b is a complete YSFD frame
func IsFrame(b []byte) bool {
	return len(b) >= FrameLength && bytes.Equal(b[0:4], FrameTag)
}

// NewFrame returns a YSFD frame with the tag, padded callsign fields and the
// payload sync written. Callers fill the FICH and payload.
func NewFrame(gateway, source, dest string, seq byte) []byte {
	f := make([]byte, FrameLength)
	copy(f[0:4], FrameTag)
	copy(f[OffsetGateway:], PadCallsign(gateway))
	copy(f[OffsetSource:], PadCallsign(source))
	copy(f[OffsetDest:], PadCallsign(dest))
	f[OffsetSequence] = seq
	copy(f[OffsetPayload:], SyncBytes)
	return f
}

// Payload returns the air payload of a frame without copying
func Payload(frame []byte) []byte {
	return frame[OffsetPayload : OffsetPayload+PayloadLength]
}

// Callsign reads the 10 byte callsign field at off and trims its padding
func Callsign(frame []byte, off int) string {
	return TrimCallsign(string(frame[off : off+CallsignLength]))
}

// SetCallsign writes a padded callsign field at off
func SetCallsign(frame []byte, off int, cs string) {
	copy(frame[off:off+CallsignLength], PadCallsign(cs))
}

// PadCallsign pads or truncates cs to CallsignLength with spaces
func PadCallsign(cs string) string {
	if len(cs) > CallsignLength {
		return cs[:CallsignLength]
	}
	return cs + strings.Repeat(" ", CallsignLength-len(cs))
}

// TrimCallsign removes trailing spaces and NULs from a callsign
func TrimCallsign(cs string) string {
	return strings.TrimRight(cs, " \x00")
}
