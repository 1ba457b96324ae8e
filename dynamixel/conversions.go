package dynamixel

import (
	"encoding/binary"
)

// BytesToInt32 converts 4 bytes (little-endian) to an int32.
func BytesToInt32(data []byte) int32 {
	if len(data) < 4 {
		return 0
	}
	return int32(binary.LittleEndian.Uint32(data))
}

// Int32ToBytes converts an int32 to 4 bytes (little-endian): low byte of the
// low word first, high byte of the high word last.
func Int32ToBytes(val int32) []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, uint32(val))
	return buf
}

// ValidID reports whether id can address a servo on the bus.
func ValidID(id int) bool {
	return id >= 0 && id <= MaxID
}

// EncodePosition packs a raw position into n little-endian bytes (2 or 4).
func EncodePosition(val int, n uint16) []byte {
	if n == 2 {
		buf := make([]byte, 2)
		binary.LittleEndian.PutUint16(buf, uint16(val))
		return buf
	}
	return Int32ToBytes(int32(val))
}

// DecodePosition unpacks a raw position of n bytes. Two-byte registers are
// unsigned.
func DecodePosition(data []byte, n uint16) int {
	if n == 2 {
		if len(data) < 2 {
			return 0
		}
		return int(binary.LittleEndian.Uint16(data))
	}
	return int(BytesToInt32(data))
}
