package protocol

// Packet type identifiers (4-7 byte ASCII strings)
const (
	PacketTypeDMRD    = "DMRD"
	PacketTypeRPTL    = "RPTL"
	PacketTypeRPTK    = "RPTK"
	PacketTypeRPTC    = "RPTC"
	PacketTypeRPTO    = "RPTO" // OPTIONS packet
	PacketTypeRPTCL   = "RPTCL"
	PacketTypeRPTACK  = "RPTACK"
	PacketTypeRPTPING = "RPTPING"
	PacketTypeMSTPONG = "MSTPONG"
	PacketTypeMSTNAK  = "MSTNAK"
	PacketTypeMSTCL   = "MSTCL"
)

// Packet size constants (in bytes)
const (
	DMRDPacketSize    = 53  // Standard HBP DMRD packet
	RPTLPacketSize    = 8   // Login request (RPTL + 4 byte repeater ID)
	RPTKPacketSize    = 40  // Key exchange (RPTK + 4 byte repeater ID + 32 byte challenge)
	RPTCPacketSize    = 302 // Configuration packet
	RPTCLPacketSize   = 9   // Close from peer (RPTCL + 4 byte repeater ID)
	RPTACKPacketSize  = 10  // Acknowledgement (RPTACK + 4 bytes: salt or repeater ID)
	RPTPINGPacketSize = 11  // Ping from peer (RPTPING + 4 byte repeater ID)
	MSTPONGPacketSize = 11  // Pong from master (MSTPONG + 4 byte repeater ID)
	MSTNAKPacketSize  = 10  // Negative acknowledgement (MSTNAK + 4 byte repeater ID)
	MSTCLPacketSize   = 9   // Close connection (MSTCL + 4 byte repeater ID)

	// PayloadSize is the DMR burst carried in a DMRD packet
	PayloadSize = 33
)

// Slot byte (byte 15) bit masks - DMR slot information encoding
const (
	SlotTimeslotMask  = 0x80 // Bit 7: Timeslot (0=TS1, 1=TS2)
	SlotCallTypeMask  = 0x40 // Bit 6: Call type (0=group, 1=unit/private)
	SlotFrameTypeMask = 0x30 // Bits 4-5: Frame type
	SlotDataTypeMask  = 0x0F // Bits 0-3: Data type / Voice sequence
)

// Frame types (bits 4-5 of the slot byte)
const (
	FrameTypeVoice     = 0x00 // Voice burst B-F, data type is the voice sequence
	FrameTypeVoiceSync = 0x01 // Voice burst A
	FrameTypeDataSync  = 0x02 // Data burst, data type says which
)

// Data types carried by data sync bursts and the slot type field
const (
	DataTypeVoiceLCHeader    = 0x01
	DataTypeTerminatorWithLC = 0x02
	DataTypeIdle             = 0x09
)

// DMRD packet field offsets
const (
	DMRDOffsetSignature = 0  // 4 bytes: "DMRD"
	DMRDOffsetSeq       = 4  // 1 byte: Sequence number
	DMRDOffsetSrcID     = 5  // 3 bytes: Source subscriber ID
	DMRDOffsetDstID     = 8  // 3 bytes: Destination ID (talkgroup or subscriber)
	DMRDOffsetRptID     = 11 // 4 bytes: Repeater/Peer ID
	DMRDOffsetSlot      = 15 // 1 byte: Slot/Call type bits
	DMRDOffsetStreamID  = 16 // 4 bytes: Stream ID
	DMRDOffsetPayload   = 20 // 33 bytes: Voice/Data payload
)

// Authentication sequence constants
const (
	SaltLength      = 4  // Salt length for challenge
	ChallengeLength = 32 // Challenge length for RPTK
)

// Timeslot values
const (
	Timeslot1 = 1
	Timeslot2 = 2
)

// Call type values
const (
	CallTypeGroup   = 0 // Group/talkgroup call
	CallTypePrivate = 1 // Unit-to-unit/private call
)
