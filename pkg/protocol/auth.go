package protocol

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"strings"
)

// RPTLPacket is the login request sent to the master
type RPTLPacket struct {
	RepeaterID uint32
}

// Parse parses an RPTL packet from raw bytes
func (p *RPTLPacket) Parse(data []byte) error {
	if len(data) != RPTLPacketSize {
		return fmt.Errorf("invalid RPTL packet size: %d (expected %d)", len(data), RPTLPacketSize)
	}
	if string(data[0:4]) != PacketTypeRPTL {
		return fmt.Errorf("invalid RPTL signature: %s", string(data[0:4]))
	}
	p.RepeaterID = binary.BigEndian.Uint32(data[4:8])
	return nil
}

// Encode encodes the RPTL packet to raw bytes
func (p *RPTLPacket) Encode() ([]byte, error) {
	data := make([]byte, RPTLPacketSize)
	copy(data[0:4], PacketTypeRPTL)
	binary.BigEndian.PutUint32(data[4:8], p.RepeaterID)
	return data, nil
}

// RPTKPacket answers the login salt with SHA256(salt + password)
type RPTKPacket struct {
	RepeaterID uint32
	Challenge  []byte // 32 bytes
}

// NewRPTK builds the key exchange for the salt received in the login ACK
func NewRPTK(repeaterID uint32, salt []byte, password string) *RPTKPacket {
	h := sha256.New()
	h.Write(salt)
	h.Write([]byte(password))
	return &RPTKPacket{RepeaterID: repeaterID, Challenge: h.Sum(nil)}
}

// Parse parses an RPTK packet from raw bytes
func (p *RPTKPacket) Parse(data []byte) error {
	if len(data) != RPTKPacketSize {
		return fmt.Errorf("invalid RPTK packet size: %d (expected %d)", len(data), RPTKPacketSize)
	}
	if string(data[0:4]) != PacketTypeRPTK {
		return fmt.Errorf("invalid RPTK signature: %s", string(data[0:4]))
	}
	p.RepeaterID = binary.BigEndian.Uint32(data[4:8])
	p.Challenge = make([]byte, ChallengeLength)
	copy(p.Challenge, data[8:8+ChallengeLength])
	return nil
}

// Encode encodes the RPTK packet to raw bytes
func (p *RPTKPacket) Encode() ([]byte, error) {
	if len(p.Challenge) != ChallengeLength {
		return nil, fmt.Errorf("invalid RPTK challenge length: %d", len(p.Challenge))
	}
	data := make([]byte, RPTKPacketSize)
	copy(data[0:4], PacketTypeRPTK)
	binary.BigEndian.PutUint32(data[4:8], p.RepeaterID)
	copy(data[8:], p.Challenge)
	return data, nil
}

// RPTCPacket carries the station configuration
type RPTCPacket struct {
	RepeaterID  uint32
	Callsign    string
	RXFreq      string
	TXFreq      string
	TXPower     string
	ColorCode   string
	Latitude    string
	Longitude   string
	Height      string
	Location    string
	Description string
	Slots       string
	URL         string
	SoftwareID  string
	PackageID   string
}

// rptcFields lists the fixed width fields after the repeater ID
func (p *RPTCPacket) rptcFields() []struct {
	v     *string
	start int
	end   int
} {
	return []struct {
		v     *string
		start int
		end   int
	}{
		{&p.Callsign, 8, 16},
		{&p.RXFreq, 16, 25},
		{&p.TXFreq, 25, 34},
		{&p.TXPower, 34, 36},
		{&p.ColorCode, 36, 38},
		{&p.Latitude, 38, 46},
		{&p.Longitude, 46, 55},
		{&p.Height, 55, 58},
		{&p.Location, 58, 78},
		{&p.Description, 78, 97},
		{&p.Slots, 97, 98},
		{&p.URL, 98, 222},
		{&p.SoftwareID, 222, 262},
		{&p.PackageID, 262, 302},
	}
}

// Parse parses an RPTC packet from raw bytes
func (p *RPTCPacket) Parse(data []byte) error {
	if len(data) != RPTCPacketSize {
		return fmt.Errorf("invalid RPTC packet size: %d (expected %d)", len(data), RPTCPacketSize)
	}
	if string(data[0:4]) != PacketTypeRPTC {
		return fmt.Errorf("invalid RPTC signature: %s", string(data[0:4]))
	}
	p.RepeaterID = binary.BigEndian.Uint32(data[4:8])
	for _, f := range p.rptcFields() {
		*f.v = strings.TrimSpace(strings.Trim(string(data[f.start:f.end]), "\x00"))
	}
	return nil
}

// Encode encodes the RPTC packet to raw bytes
func (p *RPTCPacket) Encode() ([]byte, error) {
	data := make([]byte, RPTCPacketSize)
	copy(data[0:4], PacketTypeRPTC)
	binary.BigEndian.PutUint32(data[4:8], p.RepeaterID)

	for _, f := range p.rptcFields() {
		dst := data[f.start:f.end]
		for i := range dst {
			if i < len(*f.v) {
				dst[i] = (*f.v)[i]
			} else {
				dst[i] = ' '
			}
		}
	}
	return data, nil
}

// RPTOPacket sends master specific options such as static talkgroups
type RPTOPacket struct {
	RepeaterID uint32
	Options    string
}

// Encode encodes the RPTO packet to raw bytes
func (p *RPTOPacket) Encode() ([]byte, error) {
	data := make([]byte, 8+len(p.Options))
	copy(data[0:4], PacketTypeRPTO)
	binary.BigEndian.PutUint32(data[4:8], p.RepeaterID)
	copy(data[8:], p.Options)
	return data, nil
}

// RPTACKPacket acknowledges a login step. The four bytes after the tag are
// the salt when answering RPTL and the repeater ID otherwise.
type RPTACKPacket struct {
	Value [4]byte
}

// Parse parses an RPTACK packet from raw bytes
func (p *RPTACKPacket) Parse(data []byte) error {
	if len(data) < RPTACKPacketSize {
		return fmt.Errorf("invalid RPTACK packet size: %d (expected %d)", len(data), RPTACKPacketSize)
	}
	if string(data[0:6]) != PacketTypeRPTACK {
		return fmt.Errorf("invalid RPTACK signature: %s", string(data[0:6]))
	}
	copy(p.Value[:], data[6:10])
	return nil
}

// Encode encodes the RPTACK packet to raw bytes
func (p *RPTACKPacket) Encode() ([]byte, error) {
	data := make([]byte, RPTACKPacketSize)
	copy(data[0:6], PacketTypeRPTACK)
	copy(data[6:10], p.Value[:])
	return data, nil
}

// Salt returns the login salt
func (p *RPTACKPacket) Salt() []byte {
	return append([]byte(nil), p.Value[:]...)
}

// ControlPacket is a tag followed by a 4 byte repeater ID: RPTPING, MSTPONG,
// MSTNAK, MSTCL and RPTCL.
type ControlPacket struct {
	Type       string
	RepeaterID uint32
}

var controlTypes = []string{PacketTypeRPTPING, PacketTypeMSTPONG, PacketTypeMSTNAK, PacketTypeRPTCL, PacketTypeMSTCL}

// Parse parses a control packet from raw bytes
func (p *ControlPacket) Parse(data []byte) error {
	for _, tag := range controlTypes {
		if len(data) == len(tag)+4 && string(data[:len(tag)]) == tag {
			p.Type = tag
			p.RepeaterID = binary.BigEndian.Uint32(data[len(tag):])
			return nil
		}
	}
	n := len(data)
	if n > 7 {
		n = 7
	}
	return fmt.Errorf("unknown control packet: %q", string(data[:n]))
}

// Encode encodes the control packet to raw bytes
func (p *ControlPacket) Encode() ([]byte, error) {
	known := false
	for _, tag := range controlTypes {
		if tag == p.Type {
			known = true
			break
		}
	}
	if !known {
		return nil, fmt.Errorf("unknown control packet type: %s", p.Type)
	}
	data := make([]byte, len(p.Type)+4)
	copy(data, p.Type)
	binary.BigEndian.PutUint32(data[len(p.Type):], p.RepeaterID)
	return data, nil
}

// ParseRPTL parses an RPTL packet from raw bytes
func ParseRPTL(data []byte) (*RPTLPacket, error) {
	p := &RPTLPacket{}
	err := p.Parse(data)
	return p, err
}

// ParseRPTK parses an RPTK packet from raw bytes
func ParseRPTK(data []byte) (*RPTKPacket, error) {
	p := &RPTKPacket{}
	err := p.Parse(data)
	return p, err
}

// ParseRPTC parses an RPTC packet from raw bytes
func ParseRPTC(data []byte) (*RPTCPacket, error) {
	p := &RPTCPacket{}
	err := p.Parse(data)
	return p, err
}

// ParseRPTACK parses an RPTACK packet from raw bytes
func ParseRPTACK(data []byte) (*RPTACKPacket, error) {
	p := &RPTACKPacket{}
	err := p.Parse(data)
	return p, err
}

// ParseControl parses an RPTPING, MSTPONG, MSTNAK, RPTCL or MSTCL packet
func ParseControl(data []byte) (*ControlPacket, error) {
	p := &ControlPacket{}
	err := p.Parse(data)
	return p, err
}
