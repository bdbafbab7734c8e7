package atr

import (
	"bytes"

	"github.com/gregLibert/smart-card-atr/pkg/bits"
)

// EDITING RULES:
//
// The chain is kept consistent by relink() after every edit:
//   - trailing groups without any byte are dropped,
//   - every TDi high nibble is rewritten to the presence mask of group i+1,
//   - T0 (Y1 and K) and TCK are computed on serialisation.
//
// Protocol declarations follow ISO/IEC 7816-3 8.2.3: the bytes of group i+1
// qualify the protocol announced by TDi, except TA2 and TB2 which are global
// whatever TD1 says.

// mutate applies fn to a copy of the structure and publishes it on success.
// Observers are notified only when the serialised form changes.
func (a *Atr) mutate(fn func(s *structure) error) error {
	next := a.structure.clone()
	if err := fn(&next); err != nil {
		return err
	}
	next.relink()

	changed := !bytes.Equal(a.body(), next.body())
	a.structure = next
	if changed {
		a.checksumMismatch = false
		a.notify()
	}
	return nil
}

func (s *structure) relink() {
	for len(s.groups) > 0 && s.groups[len(s.groups)-1].IsEmpty() {
		s.groups = s.groups[:len(s.groups)-1]
	}

	for i := range s.groups {
		td, ok := s.groups[i].Byte(TD)
		if !ok {
			// A group without TD ends the chain.
			s.groups = s.groups[:i+1]
			break
		}
		var y byte
		if i+1 < len(s.groups) {
			y = s.groups[i+1].Presence()
		}
		s.groups[i].set(TD, bits.SetRange(td, 8, 5, y))
	}

	if p, ok := s.firstProtocol(); !ok || p != T0 {
		s.td1Synthesized = false
	}
}

func (s *structure) firstProtocol() (ProtocolType, bool) {
	if len(s.groups) == 0 {
		return 0, false
	}
	return s.groups[0].Protocol()
}

// IndicateProtocol adds p to the offered protocols. It is a no-op when p is
// already offered, including the implicit T=0.
//
// The new TD is chained after the current last group. When T=0 was only
// implied by the absence of TD1, TD1 is created first to keep offering it.
// Optional params (TA, TB, TC) are placed in a group following the new TD,
// where they qualify p.
func (a *Atr) IndicateProtocol(p ProtocolType, params ...InterfaceByte) error {
	const op = "indicate protocol"

	if !p.valid() {
		return invalidOp(op, "protocol type %d out of range", byte(p))
	}

	var specific InterfaceGroup
	for _, param := range params {
		if !param.Kind.valid() || param.Kind == TD {
			return invalidOp(op, "%s cannot be supplied as a protocol parameter", param.Kind)
		}
		if specific.Has(param.Kind) {
			return invalidOp(op, "%s supplied twice", param.Kind)
		}
		specific.set(param.Kind, param.Value)
	}

	return a.mutate(func(s *structure) error {
		if s.indicates(p) {
			return nil
		}

		n := len(s.groups)
		switch {
		case n == 0:
			s.groups = append(s.groups, InterfaceGroup{})
			s.groups[0].setProtocol(T0)
			s.td1Synthesized = true
		case !s.groups[n-1].Has(TD) && n == 1:
			s.groups[0].setProtocol(T0)
			s.td1Synthesized = true
		case !s.groups[n-1].Has(TD):
			// The trailing bytes already qualify the protocol of TD(n-1);
			// a TD on this group is enough to announce p.
			s.groups[n-1].setProtocol(p)
			if !specific.IsEmpty() {
				s.groups = append(s.groups, specific)
			}
			return nil
		}

		var declaration InterfaceGroup
		declaration.setProtocol(p)
		s.groups = append(s.groups, declaration)
		if !specific.IsEmpty() {
			s.groups = append(s.groups, specific)
		}
		return nil
	})
}

// RemoveProtocol withdraws every declaration of p together with the interface
// bytes that qualify it. It is a no-op when p is not offered.
//
// Removing the implicit T=0 or the last offered transmission protocol fails
// with an *InvalidOperationError. When TD1 had been created only to keep an
// implicit T=0 and nothing else remains, TD1 is dropped again.
func (a *Atr) RemoveProtocol(p ProtocolType) error {
	const op = "remove protocol"

	if !p.valid() {
		return invalidOp(op, "protocol type %d out of range", byte(p))
	}

	return a.mutate(func(s *structure) error {
		if !s.explicit() {
			if p == T0 {
				return invalidOp(op, "T=0 is implied by the absence of TD1 and cannot be removed")
			}
			return nil
		}
		if !s.indicates(p) {
			return nil
		}

		var remaining []ProtocolType
		for _, d := range s.declared() {
			if d != p && d.IsTransmission() {
				remaining = append(remaining, d)
			}
		}
		if p.IsTransmission() && len(remaining) == 0 {
			return invalidOp(op, "%s is the only offered protocol", p)
		}
		replacement := T0
		if len(remaining) > 0 {
			replacement = remaining[0]
		}

		for j := len(s.groups) - 1; j >= 0; j-- {
			if d, ok := s.groups[j].Protocol(); !ok || d != p {
				continue
			}
			s.withdraw(j, replacement)
		}
		s.relink()

		if s.td1Synthesized && len(s.groups) == 1 {
			if first, ok := s.firstProtocol(); ok && first == T0 {
				s.groups[0].clear(TD)
				s.td1Synthesized = false
			}
		}
		return nil
	})
}

// withdraw removes the declaration carried by TD of group j (0-based).
func (s *structure) withdraw(j int, replacement ProtocolType) {
	qualified := j + 1
	if qualified >= len(s.groups) {
		s.groups[j].clear(TD)
		return
	}

	// TA2 and TB2 are global and survive the withdrawal of TD1's protocol.
	var kept InterfaceGroup
	if qualified == 1 {
		for _, k := range []InterfaceByteKind{TA, TB} {
			if v, ok := s.groups[qualified].Byte(k); ok {
				kept.set(k, v)
			}
		}
	}

	// Group 2 stays in place while group 3 follows it: moving group 3 up
	// would turn its specific bytes into TA2/TB2.
	anchored := qualified == 1 && qualified+1 < len(s.groups)

	if kept.IsEmpty() && !anchored {
		// Splice: TDj takes over the declaration of the removed group.
		if td, ok := s.groups[qualified].Byte(TD); ok {
			s.groups[j].set(TD, td)
		} else {
			s.groups[j].clear(TD)
		}
		s.groups = append(s.groups[:qualified], s.groups[qualified+1:]...)
		return
	}

	if td, ok := s.groups[qualified].Byte(TD); ok {
		kept.set(TD, td)
	}
	s.groups[qualified] = kept
	s.groups[j].setProtocol(replacement)
}

// SetHistoricalBytes replaces the historical bytes. T0's K nibble follows.
func (a *Atr) SetHistoricalBytes(data []byte) error {
	if len(data) > MaxHistoricalBytes {
		return invalidOp("set historical bytes", "%d bytes exceed the maximum of %d", len(data), MaxHistoricalBytes)
	}

	return a.mutate(func(s *structure) error {
		s.historical = append([]byte(nil), data...)
		return nil
	})
}

// SetConvention replaces TS.
func (a *Atr) SetConvention(c Convention) error {
	if !c.valid() {
		return invalidOp("set convention", "invalid initial character 0x%02X", byte(c))
	}

	return a.mutate(func(s *structure) error {
		s.ts = c
		return nil
	})
}

// SetInterfaceByte sets TA, TB or TC of an existing group (1-based). Group 1
// may always be addressed. TD bytes are managed by the protocol operations.
func (a *Atr) SetInterfaceByte(group int, kind InterfaceByteKind, value byte) error {
	const op = "set interface byte"

	if err := checkSlot(op, group, kind); err != nil {
		return err
	}

	return a.mutate(func(s *structure) error {
		if group == 1 && len(s.groups) == 0 {
			s.groups = append(s.groups, InterfaceGroup{})
		}
		if group > len(s.groups) {
			return invalidOp(op, "group %d does not exist (ATR has %d)", group, len(s.groups))
		}
		s.groups[group-1].set(kind, value)
		return nil
	})
}

// ClearInterfaceByte removes TA, TB or TC from a group. Clearing an absent
// byte is a no-op. A trailing group left empty disappears from the chain.
func (a *Atr) ClearInterfaceByte(group int, kind InterfaceByteKind) error {
	const op = "clear interface byte"

	if err := checkSlot(op, group, kind); err != nil {
		return err
	}

	return a.mutate(func(s *structure) error {
		if group > len(s.groups) {
			return nil
		}
		s.groups[group-1].clear(kind)
		return nil
	})
}

func checkSlot(op string, group int, kind InterfaceByteKind) error {
	if group < 1 {
		return invalidOp(op, "group index %d, groups are numbered from 1", group)
	}
	if !kind.valid() {
		return invalidOp(op, "unknown interface byte kind %d", uint8(kind))
	}
	if kind == TD {
		return invalidOp(op, "TD bytes are managed by IndicateProtocol and RemoveProtocol")
	}
	return nil
}
