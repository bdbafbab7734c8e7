package atr

import (
	"bytes"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/gregLibert/smart-card-atr/pkg/bits"
	"github.com/gregLibert/smart-card-atr/pkg/tlv"
)

// Real-world and hand-built ATRs accepted by Parse.
var validATRs = []struct {
	name string
	hex  string
}{
	{"Minimal, implicit T=0", "3B 00"},
	{"Historical bytes only", "3B 02 14 50"},
	{"Inverse convention, TC1", "3F 42 00 21 45"},
	{"Explicit T=0 then T=1", "3F C2 00 80 01 21 45 27"},
	{"T=1 with T=15 global bytes", "3B DA 18 FF 81 B1 FE 75 1F 03 00 31 C5 73 C0 01 40 00 90 00 0C"},
	{"PC/SC contactless MIFARE 1K", "3B 8F 80 01 80 4F 0C A0 00 00 03 06 03 00 01 00 00 00 00 6A"},
	{"T=1 with IFSC, proprietary historical", "3B F8 13 00 00 81 31 FE 15 59 75 62 69 6B 65 79 34 D4"},
	{"T=0 and T=1, status at end", "3B 8A 80 01 00 31 C1 73 C8 40 00 00 90 00 90"},
	{"Specific mode TA2", "3B 90 96 91 10 00 87"},
}

func TestParse_RoundTrip(t *testing.T) {
	for _, tt := range validATRs {
		t.Run(tt.name, func(t *testing.T) {
			raw := tlv.Hex(tt.hex)

			a, err := Parse(raw)
			if err != nil {
				t.Fatalf("Parse(%s) failed: %v", tt.hex, err)
			}

			if got := a.Bytes(); !bytes.Equal(got, raw) {
				t.Errorf("Round-trip mismatch\nExpected: %X\nGot:      %X", raw, got)
			}
			if a.String() != tt.hex {
				t.Errorf("String() = %q, want %q", a.String(), tt.hex)
			}
		})
	}
}

func TestParse_Invariants(t *testing.T) {
	for _, tt := range validATRs {
		t.Run(tt.name, func(t *testing.T) {
			a := MustParse(tlv.Hex(tt.hex))
			out := a.Bytes()

			if k := int(bits.LowNibble(a.T0())); k != len(a.HistoricalBytes()) {
				t.Errorf("T0 announces %d historical bytes, model holds %d", k, len(a.HistoricalBytes()))
			}

			if a.HasChecksum() {
				if x := bits.XOR(out[1:]); x != 0 {
					t.Errorf("XOR of T0..TCK = %02X, want 00", x)
				}
			}
		})
	}
}

func TestParse_Structure(t *testing.T) {
	a := MustParse(tlv.Hex("3B DA 18 FF 81 B1 FE 75 1F 03 00 31 C5 73 C0 01 40 00 90 00 0C"))

	if a.Convention() != DirectConvention {
		t.Errorf("Convention() = %v, want direct", a.Convention())
	}

	wantGroups := []string{
		"TA=18 TC=FF TD=81",
		"TD=B1",
		"TA=FE TB=75 TD=1F",
		"TA=03",
	}
	var gotGroups []string
	for _, g := range a.Groups() {
		gotGroups = append(gotGroups, g.String())
	}
	if diff := cmp.Diff(wantGroups, gotGroups); diff != "" {
		t.Errorf("Groups mismatch (-want +got):\n%s", diff)
	}

	if diff := cmp.Diff([]ProtocolType{T1, T15}, a.Protocols()); diff != "" {
		t.Errorf("Protocols mismatch (-want +got):\n%s", diff)
	}
	if a.IsProtocolImplicit() {
		t.Error("Protocols are declared by TD1, not implicit")
	}
	if a.DefaultProtocol() != T1 {
		t.Errorf("DefaultProtocol() = %v, want T=1", a.DefaultProtocol())
	}

	if v, ok := a.InterfaceByte(3, TB); !ok || v != 0x75 {
		t.Errorf("TB3 = %02X (%v), want 75", v, ok)
	}
	if _, ok := a.InterfaceByte(1, TB); ok {
		t.Error("TB1 should be absent")
	}
	if _, ok := a.Group(5); ok {
		t.Error("Group 5 should not exist")
	}

	if tck, ok := a.Checksum(); !ok || tck != 0x0C {
		t.Errorf("Checksum() = %02X (%v), want 0C", tck, ok)
	}
}

func TestParse_ImplicitProtocol(t *testing.T) {
	a := MustParse(tlv.Hex("3F 42 00 21 45"))

	if !a.IsProtocolImplicit() {
		t.Error("Without TD1 the protocol should be implicit")
	}
	if diff := cmp.Diff([]ProtocolType{T0}, a.Protocols()); diff != "" {
		t.Errorf("Protocols mismatch (-want +got):\n%s", diff)
	}
	if !a.Indicates(T0) || a.Indicates(T1) {
		t.Error("Only T=0 should be indicated")
	}
	if a.HasChecksum() {
		t.Error("T=0 only ATR must not carry TCK")
	}
	if _, ok := a.Checksum(); ok {
		t.Error("Checksum() should report absence")
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name       string
		hex        string
		wantField  string
		wantOffset int
	}{
		{"Empty input", "", "TS", 0},
		{"Invalid TS", "00 00", "TS", 0},
		{"TS only", "3B", "T0", 1},
		{"Missing TA1", "3B 10", "TA1", 2},
		{"Missing TD2 announced by TD1", "3B 80 80", "TD2", 3},
		{"Truncated historical bytes", "3B 02 14", "historical bytes", 2},
		{"Missing TCK", "3B 80 01", "TCK", 3},
		{"Trailing bytes", "3B 00 00", "end of ATR", 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := Parse(tlv.Hex(tt.hex))
			if err == nil {
				t.Fatalf("Parse(%s) should fail, got %s", tt.hex, a)
			}
			if a != nil {
				t.Error("No partial result should be returned")
			}

			var fe *FormatError
			if !errors.As(err, &fe) {
				t.Fatalf("Expected *FormatError, got %T: %v", err, err)
			}
			if fe.Field != tt.wantField || fe.Offset != tt.wantOffset {
				t.Errorf("FormatError at %s/%d, want %s/%d (%v)", fe.Field, fe.Offset, tt.wantField, tt.wantOffset, err)
			}
		})
	}
}

func TestParse_ChecksumMismatch(t *testing.T) {
	raw := tlv.Hex("3F C2 00 80 01 21 45 28")

	t.Run("Strict", func(t *testing.T) {
		_, err := Parse(raw)

		var ce *ChecksumError
		if !errors.As(err, &ce) {
			t.Fatalf("Expected *ChecksumError, got %T: %v", err, err)
		}
		if ce.Expected != 0x27 || ce.Actual != 0x28 {
			t.Errorf("ChecksumError = %+v, want expected 27 actual 28", ce)
		}
	})

	t.Run("Lenient keeps received TCK until modified", func(t *testing.T) {
		a, err := Parse(raw, WithLenientChecksum())
		if err != nil {
			t.Fatalf("Lenient parse failed: %v", err)
		}
		if a.ChecksumValid() {
			t.Error("ChecksumValid() should be false")
		}
		if !bytes.Equal(a.Bytes(), raw) {
			t.Errorf("Lenient round-trip = %X, want %X", a.Bytes(), raw)
		}

		// Same content: nothing changes, TCK stays as received.
		if err := a.SetHistoricalBytes(tlv.Hex("21 45")); err != nil {
			t.Fatal(err)
		}
		if a.ChecksumValid() {
			t.Error("A no-op edit must not repair the checksum")
		}

		if err := a.SetHistoricalBytes(tlv.Hex("21 46")); err != nil {
			t.Fatal(err)
		}
		if !a.ChecksumValid() {
			t.Error("Checksum should be recomputed after an edit")
		}
		if want := tlv.Hex("3F C2 00 80 01 21 46 24"); !bytes.Equal(a.Bytes(), want) {
			t.Errorf("Bytes() = %X, want %X", a.Bytes(), want)
		}
	})
}

func TestMustParse_Panics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("MustParse should panic on invalid input")
		}
	}()
	MustParse([]byte{0x00})
}

func TestClone_IsIndependent(t *testing.T) {
	a := MustParse(tlv.Hex("3F 42 00 21 45"))
	calls := 0
	a.OnChange(func() { calls++ })

	c := a.Clone()
	if !c.Equal(a) {
		t.Fatalf("Clone differs: %s vs %s", c, a)
	}

	if err := c.IndicateProtocol(T1); err != nil {
		t.Fatal(err)
	}
	if a.Indicates(T1) {
		t.Error("Mutating the clone changed the original")
	}
	if calls != 0 {
		t.Error("Observers must not follow the clone")
	}
}
