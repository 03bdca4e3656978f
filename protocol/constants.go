package protocol

// Frame layout and MAC-level constants. All higher layers depend on this file.
const (
	// Frame sizing
	// Layout:
	//   Control (2) | Dest MAC (2) | Source MAC (2) | Payload (0-2038) | CRC32 (4)
	// Control word, big-endian within the 16-bit word:
	//   3 bits frame type | 1 bit retry | 12 bits sequence number

	// Sizes of individual components
	ControlSize = 2
	AddrSize    = 2
	CRCSize     = 4 // CRC32 IEEE, big-endian

	// Header preceding the payload: control word + destination + source
	HeaderSize = ControlSize + 2*AddrSize // 6 bytes

	// Fixed per-frame overhead (header plus trailing CRC)
	FrameOverhead = HeaderSize + CRCSize // 10 bytes

	// Total maximum frame length on air
	MaxFrameSize = 2048

	// Application-level payload allowance
	MaxPayloadSize = MaxFrameSize - FrameOverhead // 2038

	// Frame types (3-bit field)
	FrameTypeData   = 0
	FrameTypeAck    = 1
	FrameTypeBeacon = 2
	FrameTypeCTS    = 4 // reserved, not exercised
	FrameTypeRTS    = 5 // reserved, not exercised

	// Sequence numbers occupy 12 bits and wrap modulo SeqModulo.
	SeqModulo = 1 << 12
	seqMask   = SeqModulo - 1

	// Beacon payloads carry exactly one 8-byte millisecond timestamp.
	BeaconPayloadSize = 8
)

// BroadcastAddr is the broadcast MAC address (0xFFFF on the wire).
const BroadcastAddr int16 = -1
