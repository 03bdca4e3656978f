package protocol

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"strconv"
)

// Frame represents a frame of data transferred over the radio link.
// Layout: Control(2) | Dest(2) | Src(2) | Payload(0-2038) | CRC32(4)
// The control word packs, big-endian: 3 bits frame type, 1 bit retry,
// 12 bits sequence number.
type Frame struct {
	Type    int
	Retry   bool
	Seq     int // 0..4095, wraps modulo SeqModulo
	Src     int16
	Dest    int16
	Payload []byte
	CRC     uint32 // decoded frames only; ignored by the encoder
	CRCOK   bool   // decoded frames only
}

// EncodeFrame serialises one frame into on-air bytes. length is the number
// of payload bytes the caller wants carried and is clamped to len(payload);
// the frame itself spans the full payload buffer, so bytes past length stay
// zero. Payloads longer than MaxPayloadSize are truncated.
func EncodeFrame(frameType int, retry bool, src, dest int16, payload []byte, length, seq int) []byte {
	if len(payload) > MaxPayloadSize {
		payload = payload[:MaxPayloadSize]
	}
	if length > len(payload) {
		length = len(payload)
	}
	if length < 0 {
		length = 0
	}

	data := make([]byte, len(payload)+FrameOverhead)

	ctrl := uint16(frameType&0x07) << 13
	if retry {
		ctrl |= 1 << 12
	}
	ctrl |= uint16(seq & seqMask)
	binary.BigEndian.PutUint16(data[0:2], ctrl)
	binary.BigEndian.PutUint16(data[2:4], uint16(dest))
	binary.BigEndian.PutUint16(data[4:6], uint16(src))

	// Only DATA and BEACON frames carry payload bytes on the air.
	if frameType == FrameTypeData || frameType == FrameTypeBeacon {
		copy(data[HeaderSize:HeaderSize+length], payload[:length])
	}

	crc := crc32.ChecksumIEEE(data[:len(data)-CRCSize])
	binary.BigEndian.PutUint32(data[len(data)-CRCSize:], crc)

	return data
}

// DecodeFrame parses on-air bytes back into a Frame. It returns nil only
// for input too short to hold the fixed overhead; everything else decodes,
// with CRCOK recording whether the trailing CRC32 matched. Callers decide
// what to do with a frame that failed its CRC check.
func DecodeFrame(data []byte) *Frame {
	if len(data) < FrameOverhead {
		return nil
	}

	ctrl := binary.BigEndian.Uint16(data[0:2])

	f := &Frame{
		Type:  int(ctrl >> 13),
		Retry: ctrl&(1<<12) != 0,
		Seq:   int(ctrl & seqMask),
		Dest:  int16(binary.BigEndian.Uint16(data[2:4])),
		Src:   int16(binary.BigEndian.Uint16(data[4:6])),
	}

	payloadLen := len(data) - FrameOverhead
	if (f.Type == FrameTypeData || f.Type == FrameTypeBeacon) && payloadLen > 0 {
		f.Payload = make([]byte, payloadLen)
		copy(f.Payload, data[HeaderSize:HeaderSize+payloadLen])
	} else {
		f.Payload = make([]byte, 0)
	}

	f.CRC = binary.BigEndian.Uint32(data[len(data)-CRCSize:])
	f.CRCOK = f.CRC == crc32.ChecksumIEEE(data[:len(data)-CRCSize])

	return f
}

// String renders a frame for log output, e.g. <DATA 0 3 17 -> 23 ["hi"] (1234)>.
func (f *Frame) String() string {
	var name string
	switch f.Type {
	case FrameTypeData:
		name = "DATA"
	case FrameTypeAck:
		name = "ACK"
	case FrameTypeBeacon:
		name = "BEACON"
	case FrameTypeCTS:
		name = "CTS"
	case FrameTypeRTS:
		name = "RTS"
	default:
		name = "UNKNOWN"
	}

	retry := 0
	if f.Retry {
		retry = 1
	}

	s := fmt.Sprintf("<%s %d %d %d -> %d [", name, retry, f.Seq, f.Src, f.Dest)

	switch {
	case f.Type == FrameTypeBeacon && len(f.Payload) == BeaconPayloadSize:
		s += "\"" + strconv.FormatInt(BytesToTimestamp(f.Payload), 10) + "\"]"
	case f.Type == FrameTypeData && len(f.Payload) > 0:
		s += strconv.Quote(string(f.Payload)) + "] "
	default:
		s += "] "
	}

	return s + fmt.Sprintf("(%d)>", f.CRC)
}
