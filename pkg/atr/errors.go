package atr

import "fmt"

// FormatError reports a malformed or truncated ATR byte stream.
type FormatError struct {
	// Field names the element being read: "TS", "TB1", "historical bytes", "TCK"...
	Field string
	// Offset is the position in the input where the element was expected.
	Offset int
	Reason string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("atr: malformed %s at offset %d: %s", e.Field, e.Offset, e.Reason)
}

// ChecksumError reports a TCK that does not match the exclusive-or of T0..TK.
type ChecksumError struct {
	Expected byte
	Actual   byte
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("atr: checksum mismatch: TCK is 0x%02X, computed 0x%02X", e.Actual, e.Expected)
}

// InvalidOperationError reports a mutation that would break the ATR structure.
type InvalidOperationError struct {
	Op     string
	Reason string
}

func (e *InvalidOperationError) Error() string {
	return fmt.Sprintf("atr: %s: %s", e.Op, e.Reason)
}

func invalidOp(op, format string, args ...interface{}) error {
	return &InvalidOperationError{Op: op, Reason: fmt.Sprintf(format, args...)}
}
