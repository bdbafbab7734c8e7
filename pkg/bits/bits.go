// Package bits provides byte-level helpers using the ISO/IEC 7816 numbering
// convention: bits are numbered 1 (least significant) to 8 (most significant).
package bits

// Bit returns a byte with only the n-th bit set (1 to 8).
func Bit(n uint) byte {
	if n < 1 || n > 8 {
		return 0
	}
	return 1 << (n - 1)
}

// IsSet checks if the n-th bit is set (1 to 8).
func IsSet(b byte, n uint) bool {
	return b&Bit(n) != 0
}

// GetRange extracts the value from a range of bits (e.g., bits 4 to 3).
// Example: GetRange(0b00001100, 4, 3) returns 3 (0b11)
func GetRange(b byte, high, low uint) byte {
	if high < low || high > 8 || low < 1 {
		return 0
	}

	width := high - low + 1
	mask := byte((1 << width) - 1)

	return (b >> (low - 1)) & mask
}

// SetRange writes v into bits high..low of b, leaving the other bits untouched.
// Bits of v above the range width are dropped.
func SetRange(b byte, high, low uint, v byte) byte {
	if high < low || high > 8 || low < 1 {
		return b
	}

	width := high - low + 1
	mask := byte((1<<width)-1) << (low - 1)

	return (b &^ mask) | ((v << (low - 1)) & mask)
}

// Set sets the n-th bit.
func Set(b byte, n uint) byte {
	return b | Bit(n)
}

// Clear resets the n-th bit.
func Clear(b byte, n uint) byte {
	return b &^ Bit(n)
}

// HighNibble returns bits 8-5.
func HighNibble(b byte) byte {
	return b >> 4
}

// LowNibble returns bits 4-1.
func LowNibble(b byte) byte {
	return b & 0x0F
}

// Nibbles assembles a byte from two 4-bit halves.
func Nibbles(high, low byte) byte {
	return (high&0x0F)<<4 | low&0x0F
}

// XOR folds data with exclusive-or. An empty slice yields 0.
func XOR(data []byte) byte {
	var acc byte
	for _, b := range data {
		acc ^= b
	}
	return acc
}
