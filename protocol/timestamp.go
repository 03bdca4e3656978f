package protocol

import "encoding/binary"

// Beacon timestamps follow IEEE practice: 8 bytes, most significant first.

// TimestampToBytes encodes a millisecond timestamp for a beacon payload.
func TimestampToBytes(t int64) []byte {
	b := make([]byte, BeaconPayloadSize)
	binary.BigEndian.PutUint64(b, uint64(t))
	return b
}

// BytesToTimestamp recovers the millisecond timestamp from a beacon payload.
// Short input yields 0.
func BytesToTimestamp(b []byte) int64 {
	if len(b) < BeaconPayloadSize {
		return 0
	}
	return int64(binary.BigEndian.Uint64(b[:BeaconPayloadSize]))
}
