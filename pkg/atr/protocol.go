package atr

import (
	"fmt"
	"strconv"
	"strings"
)

// ProtocolType is the value T carried in the low nibble of a TD byte.
type ProtocolType byte

// Protocol types defined or reserved by ISO/IEC 7816-3.
const (
	T0 ProtocolType = iota
	T1
	T2
	T3
	T4
	T5
	T6
	T7
	T8
	T9
	T10
	T11
	T12
	T13
	T14
	// T15 is not a transmission protocol: it qualifies global interface bytes.
	T15
)

func (p ProtocolType) String() string {
	return "T=" + strconv.Itoa(int(p))
}

// Description returns the ISO/IEC 7816-3 name of the protocol.
func (p ProtocolType) Description() string {
	switch {
	case p == T0:
		return "Asynchronous half duplex character transmission"
	case p == T1:
		return "Asynchronous half duplex block transmission"
	case p == T2 || p == T3:
		return "Reserved for future full duplex operations"
	case p == T4:
		return "Reserved for an enhanced half duplex character transmission"
	case p >= T5 && p <= T13:
		return "Reserved for future use"
	case p == T14:
		return "Not standardized by ISO/IEC JTC 1/SC 17"
	case p == T15:
		return "Global interface bytes qualifier"
	default:
		return fmt.Sprintf("Invalid protocol type %d", byte(p))
	}
}

func (p ProtocolType) valid() bool {
	return p <= T15
}

// IsTransmission reports whether p names a transmission protocol (anything but T=15).
func (p ProtocolType) IsTransmission() bool {
	return p < T15
}

// ParseProtocol accepts "T=1", "T1", "t=1" or "1".
func ParseProtocol(s string) (ProtocolType, error) {
	clean := strings.ToUpper(strings.TrimSpace(s))
	clean = strings.TrimPrefix(clean, "T")
	clean = strings.TrimPrefix(clean, "=")

	n, err := strconv.Atoi(clean)
	if err != nil || n < 0 || n > int(T15) {
		return 0, fmt.Errorf("invalid protocol %q: expected T=0 to T=15", s)
	}
	return ProtocolType(n), nil
}

// Convention is the initial character TS.
type Convention byte

const (
	// DirectConvention: logic one is high level, least significant bit first.
	DirectConvention Convention = 0x3B
	// InverseConvention: logic one is low level, most significant bit first.
	InverseConvention Convention = 0x3F
)

func (c Convention) String() string {
	switch c {
	case DirectConvention:
		return "Direct convention"
	case InverseConvention:
		return "Inverse convention"
	default:
		return fmt.Sprintf("Invalid convention (0x%02X)", byte(c))
	}
}

func (c Convention) valid() bool {
	return c == DirectConvention || c == InverseConvention
}
