package protocol

import (
	"encoding/binary"
	"fmt"
)

// DMRDPacket represents a DMR data packet
type DMRDPacket struct {
	Sequence      byte   // Sequence number
	SourceID      uint32 // Source subscriber ID (24-bit)
	DestinationID uint32 // Destination ID - talkgroup or subscriber (24-bit)
	RepeaterID    uint32 // Repeater/Peer ID
	Timeslot      int    // 1 or 2
	CallType      int    // 0=group, 1=private
	FrameType     byte   // Frame type (voice, voice sync, data sync)
	DataType      byte   // Data type / voice sequence (lower 4 bits)
	StreamID      uint32 // Stream identifier
	Payload       []byte // 33 bytes of voice/data payload
}

// IsVoiceHeader reports a voice LC header burst
func (p *DMRDPacket) IsVoiceHeader() bool {
	return p.FrameType == FrameTypeDataSync && p.DataType == DataTypeVoiceLCHeader
}

// IsTerminator reports a terminator with LC burst
func (p *DMRDPacket) IsTerminator() bool {
	return p.FrameType == FrameTypeDataSync && p.DataType == DataTypeTerminatorWithLC
}

// IsVoice reports any of the six voice bursts A-F
func (p *DMRDPacket) IsVoice() bool {
	return p.FrameType == FrameTypeVoice || p.FrameType == FrameTypeVoiceSync
}

// Parse parses a DMRD packet from raw bytes
func (p *DMRDPacket) Parse(data []byte) error {
	// Some clients append BER and RSSI bytes
	if len(data) < DMRDPacketSize {
		return fmt.Errorf("invalid DMRD packet size: %d (expected %d)", len(data), DMRDPacketSize)
	}

	if string(data[0:4]) != PacketTypeDMRD {
		return fmt.Errorf("invalid DMRD signature: %s", string(data[0:4]))
	}

	p.Sequence = data[DMRDOffsetSeq]
	p.SourceID = get24(data[DMRDOffsetSrcID:])
	p.DestinationID = get24(data[DMRDOffsetDstID:])
	p.RepeaterID = binary.BigEndian.Uint32(data[DMRDOffsetRptID : DMRDOffsetRptID+4])

	slotByte := data[DMRDOffsetSlot]
	if slotByte&SlotTimeslotMask != 0 {
		p.Timeslot = Timeslot2
	} else {
		p.Timeslot = Timeslot1
	}
	if slotByte&SlotCallTypeMask != 0 {
		p.CallType = CallTypePrivate
	} else {
		p.CallType = CallTypeGroup
	}
	p.FrameType = (slotByte & SlotFrameTypeMask) >> 4
	p.DataType = slotByte & SlotDataTypeMask

	p.StreamID = binary.BigEndian.Uint32(data[DMRDOffsetStreamID : DMRDOffsetStreamID+4])

	p.Payload = make([]byte, PayloadSize)
	copy(p.Payload, data[DMRDOffsetPayload:DMRDOffsetPayload+PayloadSize])
	return nil
}

// Encode encodes the DMRD packet to raw bytes
func (p *DMRDPacket) Encode() ([]byte, error) {
	if p.Timeslot != Timeslot1 && p.Timeslot != Timeslot2 {
		return nil, fmt.Errorf("invalid timeslot: %d", p.Timeslot)
	}

	data := make([]byte, DMRDPacketSize)
	copy(data[0:4], PacketTypeDMRD)
	data[DMRDOffsetSeq] = p.Sequence
	put24(data[DMRDOffsetSrcID:], p.SourceID)
	put24(data[DMRDOffsetDstID:], p.DestinationID)
	binary.BigEndian.PutUint32(data[DMRDOffsetRptID:DMRDOffsetRptID+4], p.RepeaterID)

	var slotByte byte
	if p.Timeslot == Timeslot2 {
		slotByte |= SlotTimeslotMask
	}
	if p.CallType == CallTypePrivate {
		slotByte |= SlotCallTypeMask
	}
	slotByte |= (p.FrameType << 4) & SlotFrameTypeMask
	slotByte |= p.DataType & SlotDataTypeMask
	data[DMRDOffsetSlot] = slotByte

	binary.BigEndian.PutUint32(data[DMRDOffsetStreamID:DMRDOffsetStreamID+4], p.StreamID)
	copy(data[DMRDOffsetPayload:DMRDOffsetPayload+PayloadSize], p.Payload)

	return data, nil
}

// ParseDMRD parses a DMRD packet from raw bytes
func ParseDMRD(data []byte) (*DMRDPacket, error) {
	p := &DMRDPacket{}
	err := p.Parse(data)
	return p, err
}

func get24(b []byte) uint32 {
	return uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2])
}

func put24(b []byte, v uint32) {
	b[0] = byte(v >> 16)
	b[1] = byte(v >> 8)
	b[2] = byte(v)
}
