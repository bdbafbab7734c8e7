package atr

import (
	"fmt"

	"github.com/gregLibert/smart-card-atr/pkg/bits"
)

// INTERFACE GROUPS:
// Group i holds the optional bytes TAi, TBi, TCi and TDi, always transmitted
// in that order. Which of them are present is announced by a 4-bit indicator
// Yi carried by the previous byte:
//
//	Y1   = T0   bits 8-5
//	Yi+1 = TDi  bits 8-5
//
// Bit 5 of the carrier flags TA, bit 6 TB, bit 7 TC and bit 8 TD. Once shifted
// down to a nibble the same mask reads TA=0x1, TB=0x2, TC=0x4, TD=0x8, which is
// how InterfaceGroup stores it.

// InterfaceByteKind identifies one of the four interface bytes of a group.
type InterfaceByteKind uint8

// Interface byte kinds, in transmission order within a group.
const (
	TA InterfaceByteKind = iota
	TB
	TC
	TD
)

var kindNames = [...]string{"TA", "TB", "TC", "TD"}

func (k InterfaceByteKind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("InterfaceByteKind(%d)", uint8(k))
}

// bit is the position of k's presence flag in a Y nibble.
func (k InterfaceByteKind) bit() uint {
	return uint(k) + 1
}

func (k InterfaceByteKind) mask() byte {
	return bits.Bit(k.bit())
}

func (k InterfaceByteKind) valid() bool {
	return k <= TD
}

// InterfaceByte is a value destined for a given slot of an interface group.
type InterfaceByte struct {
	Kind  InterfaceByteKind
	Value byte
}

// InterfaceGroup is a fixed-shape record of the four optional interface bytes.
// The zero value is an empty group.
type InterfaceGroup struct {
	present byte
	values  [4]byte
}

// Presence returns the Y nibble announcing this group.
func (g InterfaceGroup) Presence() byte {
	return g.present
}

// Has reports whether the byte of the given kind is present.
func (g InterfaceGroup) Has(k InterfaceByteKind) bool {
	return k.valid() && g.present&k.mask() != 0
}

// Byte returns the value of the given interface byte.
func (g InterfaceGroup) Byte(k InterfaceByteKind) (byte, bool) {
	if !g.Has(k) {
		return 0, false
	}
	return g.values[k], true
}

// Protocol returns the protocol announced by TD, if any.
func (g InterfaceGroup) Protocol() (ProtocolType, bool) {
	td, ok := g.Byte(TD)
	if !ok {
		return 0, false
	}
	return ProtocolType(bits.LowNibble(td)), true
}

// IsEmpty reports whether the group carries no byte at all.
func (g InterfaceGroup) IsEmpty() bool {
	return g.present == 0
}

func (g *InterfaceGroup) set(k InterfaceByteKind, v byte) {
	g.present = bits.Set(g.present, k.bit())
	g.values[k] = v
}

func (g *InterfaceGroup) clear(k InterfaceByteKind) {
	g.present = bits.Clear(g.present, k.bit())
	g.values[k] = 0
}

// setProtocol rewrites the low nibble of TD, creating TD if needed.
func (g *InterfaceGroup) setProtocol(p ProtocolType) {
	td, _ := g.Byte(TD)
	g.set(TD, bits.SetRange(td, 4, 1, byte(p)))
}

// appendTo writes the present bytes in transmission order.
func (g InterfaceGroup) appendTo(out []byte) []byte {
	for k := TA; k <= TD; k++ {
		if g.Has(k) {
			out = append(out, g.values[k])
		}
	}
	return out
}

// String renders the group as "TA=11 TD=81".
func (g InterfaceGroup) String() string {
	s := ""
	for k := TA; k <= TD; k++ {
		if v, ok := g.Byte(k); ok {
			if s != "" {
				s += " "
			}
			s += fmt.Sprintf("%s=%02X", k, v)
		}
	}
	return s
}
