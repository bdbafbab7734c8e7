package atr

import (
	"fmt"
	"strings"

	"github.com/gregLibert/smart-card-atr/pkg/bits"
)

// INTERFACE BYTE MEANING (ISO/IEC 7816-3, clause 8.3 and 11.4):
//
// Global interface bytes:
//   - TA1: Fi (bits 8-5, clock rate conversion) and Di (bits 4-1, baud rate adjustment). Default 0x11.
//   - TB1, TB2: Programming voltage, deprecated. Kept raw.
//   - TC1: Extra guard time N. Default 0.
//   - TA2: Specific mode byte. Present = specific mode, absent = negotiable mode.
//     Bit 8: unable to change mode. Bit 5: parameters implicitly defined. Bits 4-1: protocol T.
//   - After a TD indicating T=15: TA = clock stop (bits 8-7) and class (bits 6-1), TB = SPU.
//
// Specific interface bytes:
//   - T=0: TC2 = waiting time integer WI. Default 10.
//   - T=1: first TA = IFSC (default 32), first TB = BWI (bits 8-5, default 4) and
//     CWI (bits 4-1, default 13), first TC bit 1 = error detection code (0 LRC, 1 CRC).

// Values assumed when the corresponding interface byte is absent.
const (
	DefaultTA1  byte = 0x11
	DefaultWI   byte = 10
	DefaultIFSC      = 32
	DefaultBWI  byte = 4
	DefaultCWI  byte = 13
)

type clockRate struct {
	fi   int
	fMax float64 // MHz
}

// Index = Fi nibble. Zero values are reserved for future use.
var clockRates = [16]clockRate{
	{372, 4}, {372, 5}, {558, 6}, {744, 8}, {1116, 12}, {1488, 16}, {1860, 20}, {}, {},
	{512, 5}, {768, 7.5}, {1024, 10}, {1536, 15}, {2048, 20}, {}, {},
}

// Index = Di nibble. Zero values are reserved for future use.
var baudRateAdjustments = [16]int{0, 1, 2, 4, 8, 16, 32, 64, 12, 20, 0, 0, 0, 0, 0, 0}

// SpecificMode decodes TA2.
type SpecificMode struct {
	Protocol ProtocolType
	// CanChange is false when bit 8 is set: the card cannot leave specific mode.
	CanChange bool
	// ImplicitParameters is set when bit 5 says Fi/Di are implicitly defined.
	ImplicitParameters bool
}

// GlobalParameters holds the transmission parameters valid for every protocol.
type GlobalParameters struct {
	TA1 byte

	Fi   int     // 0 when the Fi nibble is RFU
	FMax float64 // MHz, 0 when RFU
	Di   int     // 0 when the Di nibble is RFU

	// ExtraGuardTime is N from TC1. 255 means a reduced guard time.
	ExtraGuardTime byte

	// SpecificMode is nil in negotiable mode (TA2 absent).
	SpecificMode *SpecificMode
}

// CyclesPerETU returns Fi/Di, the number of clock cycles per elementary time unit.
// It returns 0 when either factor is reserved.
func (g GlobalParameters) CyclesPerETU() float64 {
	if g.Fi == 0 || g.Di == 0 {
		return 0
	}
	return float64(g.Fi) / float64(g.Di)
}

// T0Parameters holds the protocol T=0 specific parameters.
type T0Parameters struct {
	WI byte
}

// ErrorDetection is the T=1 epilogue code.
type ErrorDetection uint8

// Error detection codes selected by bit 1 of the first T=1 TC.
const (
	LRC ErrorDetection = iota
	CRC
)

func (e ErrorDetection) String() string {
	if e == CRC {
		return "CRC"
	}
	return "LRC"
}

// T1Parameters holds the protocol T=1 specific parameters.
type T1Parameters struct {
	IFSC           int
	BWI            byte
	CWI            byte
	ErrorDetection ErrorDetection
}

// ClockStop is the clock stop indicator X of the first TA for T=15.
type ClockStop uint8

// Clock stop indicator values, in encoding order.
const (
	ClockStopNotSupported ClockStop = iota
	ClockStopStateL
	ClockStopStateH
	ClockStopNoPreference
)

func (c ClockStop) String() string {
	switch c {
	case ClockStopStateL:
		return "State L"
	case ClockStopStateH:
		return "State H"
	case ClockStopNoPreference:
		return "No preference"
	default:
		return "Not supported"
	}
}

// T15Parameters holds the global bytes qualified by T=15.
type T15Parameters struct {
	// Present is false when no TA or TB follows a T=15 indication; the other
	// fields then hold the defaults (clock stop not supported, class A only).
	Present   bool
	ClockStop ClockStop
	// Classes is the class indicator Y: bit 1 class A (5 V), bit 2 class B
	// (3 V), bit 3 class C (1.8 V).
	Classes byte
	// SPU is the standard or proprietary use contact byte. Nil when absent.
	SPU *byte
}

// ClassNames lists the supported operating classes, e.g. "A (5V)".
func (t T15Parameters) ClassNames() []string {
	names := []string{"A (5V)", "B (3V)", "C (1.8V)"}
	var out []string
	for i, name := range names {
		if bits.IsSet(t.Classes, uint(i+1)) {
			out = append(out, name)
		}
	}
	return out
}

// scope tells which protocol the TA/TB/TC bytes of group i (0-based) qualify.
// specific is false for global bytes.
func (s *structure) scope(i int) (p ProtocolType, specific bool) {
	if i < 1 {
		return 0, false
	}
	prev, _ := s.groups[i-1].Protocol()
	if i == 1 {
		// TA2, TB2 global; TC2 qualifies T=0.
		return prev, prev == T0
	}
	if prev == T15 {
		return T15, false
	}
	return prev, true
}

// firstQualified returns the first byte of kind k in a group qualifying p
// (groups 3 and beyond, or TC2 for T=0).
func (s *structure) firstQualified(p ProtocolType, k InterfaceByteKind) (byte, bool) {
	for i := 1; i < len(s.groups); i++ {
		q, _ := s.groups[i-1].Protocol()
		if q != p {
			continue
		}
		if i == 1 && !(p == T0 && k == TC) {
			continue
		}
		if v, ok := s.groups[i].Byte(k); ok {
			return v, true
		}
	}
	return 0, false
}

// Global interprets the global interface bytes.
func (a *Atr) Global() GlobalParameters {
	ta1, ok := a.InterfaceByte(1, TA)
	if !ok {
		ta1 = DefaultTA1
	}

	rate := clockRates[bits.HighNibble(ta1)]
	g := GlobalParameters{
		TA1:  ta1,
		Fi:   rate.fi,
		FMax: rate.fMax,
		Di:   baudRateAdjustments[bits.LowNibble(ta1)],
	}

	if tc1, ok := a.InterfaceByte(1, TC); ok {
		g.ExtraGuardTime = tc1
	}

	if ta2, ok := a.InterfaceByte(2, TA); ok {
		g.SpecificMode = &SpecificMode{
			Protocol:           ProtocolType(bits.LowNibble(ta2)),
			CanChange:          !bits.IsSet(ta2, 8),
			ImplicitParameters: bits.IsSet(ta2, 5),
		}
	}

	return g
}

// T0Params interprets the bytes specific to T=0.
func (a *Atr) T0Params() T0Parameters {
	p := T0Parameters{WI: DefaultWI}
	if wi, ok := a.firstQualified(T0, TC); ok {
		p.WI = wi
	}
	return p
}

// T1Params interprets the bytes specific to T=1.
func (a *Atr) T1Params() T1Parameters {
	p := T1Parameters{IFSC: DefaultIFSC, BWI: DefaultBWI, CWI: DefaultCWI}

	if ifsc, ok := a.firstQualified(T1, TA); ok {
		p.IFSC = int(ifsc)
	}
	if tb, ok := a.firstQualified(T1, TB); ok {
		p.BWI = bits.HighNibble(tb)
		p.CWI = bits.LowNibble(tb)
	}
	if tc, ok := a.firstQualified(T1, TC); ok && bits.IsSet(tc, 1) {
		p.ErrorDetection = CRC
	}
	return p
}

// T15Params interprets the global bytes qualified by T=15.
func (a *Atr) T15Params() T15Parameters {
	p := T15Parameters{Classes: 0x01}

	if ta, ok := a.firstQualified(T15, TA); ok {
		p.Present = true
		p.ClockStop = ClockStop(bits.GetRange(ta, 8, 7))
		p.Classes = bits.GetRange(ta, 6, 1)
	}
	if tb, ok := a.firstQualified(T15, TB); ok {
		p.Present = true
		spu := tb
		p.SPU = &spu
	}
	return p
}

// describeByte explains a single interface byte of group i (0-based).
func (s *structure) describeByte(i int, k InterfaceByteKind, v byte) string {
	if k == TD {
		p := ProtocolType(bits.LowNibble(v))
		return fmt.Sprintf("Y%d=%04b, %s", i+2, bits.HighNibble(v), p)
	}

	p, specific := s.scope(i)
	switch {
	case i == 0 && k == TA:
		rate := clockRates[bits.HighNibble(v)]
		return fmt.Sprintf("Fi=%s, Di=%s, f(max)=%s", rfu(rate.fi), rfu(baudRateAdjustments[bits.LowNibble(v)]), mhz(rate.fMax))
	case i == 0 && k == TB, i == 1 && k == TB:
		return "Programming voltage (deprecated)"
	case i == 0 && k == TC:
		if v == 0xFF {
			return "Extra guard time N=255 (minimum guard time)"
		}
		return fmt.Sprintf("Extra guard time N=%d", v)
	case i == 1 && k == TA:
		mode := "changeable"
		if bits.IsSet(v, 8) {
			mode = "fixed"
		}
		return fmt.Sprintf("Specific mode %s, %s", ProtocolType(bits.LowNibble(v)), mode)
	case specific && p == T0 && k == TC:
		return fmt.Sprintf("T=0 waiting time integer WI=%d", v)
	case specific && p == T1 && k == TA:
		return fmt.Sprintf("T=1 IFSC=%d", v)
	case specific && p == T1 && k == TB:
		return fmt.Sprintf("T=1 BWI=%d, CWI=%d", bits.HighNibble(v), bits.LowNibble(v))
	case specific && p == T1 && k == TC:
		return fmt.Sprintf("T=1 error detection %s", ErrorDetection(v&0x01))
	case !specific && p == T15 && k == TA:
		t15 := T15Parameters{ClockStop: ClockStop(bits.GetRange(v, 8, 7)), Classes: bits.GetRange(v, 6, 1)}
		return fmt.Sprintf("Clock stop: %s, Classes: %s", t15.ClockStop, strings.Join(t15.ClassNames(), ", "))
	case !specific && p == T15 && k == TB:
		return fmt.Sprintf("SPU=%02X", v)
	case specific:
		return fmt.Sprintf("Specific to %s", p)
	default:
		return "Global, RFU"
	}
}

func rfu(n int) string {
	if n == 0 {
		return "RFU"
	}
	return fmt.Sprintf("%d", n)
}

func mhz(f float64) string {
	if f == 0 {
		return "RFU"
	}
	return fmt.Sprintf("%gMHz", f)
}
