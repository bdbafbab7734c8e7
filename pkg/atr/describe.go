package atr

import (
	"fmt"
	"strings"

	"github.com/gregLibert/smart-card-atr/pkg/bits"
	"github.com/gregLibert/smart-card-atr/pkg/tlv"
)

// Describe generates a detailed, ASCII-formatted report of the ATR.
func (a *Atr) Describe() string {
	var sb strings.Builder

	sb.WriteString("=== ATR REPORT ===\n")
	sb.WriteString(fmt.Sprintf("    + Raw:  %s\n", a))
	sb.WriteString("\n")

	t0 := a.t0()
	sb.WriteString("[1] Structure\n")
	sb.WriteString(fmt.Sprintf("    + TS:   %02X -> %s\n", byte(a.ts), a.ts))
	sb.WriteString(fmt.Sprintf("    + T0:   %02X -> Y1=%04b, K=%d\n", t0, bits.HighNibble(t0), bits.LowNibble(t0)))

	for i, g := range a.groups {
		for k := TA; k <= TD; k++ {
			v, ok := g.Byte(k)
			if !ok {
				continue
			}
			sb.WriteString(fmt.Sprintf("    + %s%d:  %02X -> %s\n", k, i+1, v, a.describeByte(i, k, v)))
		}
	}

	if len(a.historical) > 0 {
		sb.WriteString(fmt.Sprintf("    + Historical: %s\n", tlv.FormatHex(a.historical)))
	}

	if tck, ok := a.Checksum(); ok {
		state := "[OK]"
		if !a.ChecksumValid() {
			state = fmt.Sprintf("[!!] expected %02X", bits.XOR(a.body()[1:]))
		}
		sb.WriteString(fmt.Sprintf("    + TCK:  %02X %s\n", tck, state))
	}
	sb.WriteString("\n")

	sb.WriteString("[2] Protocols\n")
	names := make([]string, 0, 2)
	for _, p := range a.Protocols() {
		names = append(names, p.String())
	}
	offer := strings.Join(names, ", ")
	if a.IsProtocolImplicit() {
		offer += " (implicit)"
	}
	sb.WriteString(fmt.Sprintf("    + Offered: %s\n", offer))
	sb.WriteString(fmt.Sprintf("    + Default: %s\n", a.DefaultProtocol()))

	g := a.Global()
	sb.WriteString(fmt.Sprintf("    + Fi/Di:   %s/%s (%s cycles per ETU, f(max) %s)\n",
		rfu(g.Fi), rfu(g.Di), etu(g.CyclesPerETU()), mhz(g.FMax)))
	if g.SpecificMode != nil {
		sb.WriteString(fmt.Sprintf("    + Mode:    Specific, %s\n", g.SpecificMode.Protocol))
	} else {
		sb.WriteString("    + Mode:    Negotiable\n")
	}

	if a.Indicates(T0) {
		sb.WriteString(fmt.Sprintf("    + T=0:     WI=%d\n", a.T0Params().WI))
	}
	if a.Indicates(T1) {
		t1 := a.T1Params()
		sb.WriteString(fmt.Sprintf("    + T=1:     IFSC=%d, BWI=%d, CWI=%d, %s\n", t1.IFSC, t1.BWI, t1.CWI, t1.ErrorDetection))
	}
	if t15 := a.T15Params(); t15.Present {
		sb.WriteString(fmt.Sprintf("    + T=15:    Clock stop %s, Classes %s\n", t15.ClockStop, strings.Join(t15.ClassNames(), ", ")))
	}
	sb.WriteString("\n")

	if h, err := a.Historical(); err != nil {
		sb.WriteString(fmt.Sprintf("[=] Historical bytes could not be decoded: %v\n", err))
	} else {
		sb.WriteString(h.Describe())
	}

	return strings.TrimRight(sb.String(), "\n")
}

func etu(v float64) string {
	if v == 0 {
		return "RFU"
	}
	return fmt.Sprintf("%g", v)
}
