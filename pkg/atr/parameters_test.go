package atr

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/gregLibert/smart-card-atr/pkg/tlv"
)

func TestGlobal(t *testing.T) {
	tests := []struct {
		name string
		atr  string
		want GlobalParameters
	}{
		{
			name: "Defaults without TA1",
			atr:  "3B 00",
			want: GlobalParameters{TA1: 0x11, Fi: 372, FMax: 5, Di: 1},
		},
		{
			name: "TA1=13, TB1 and TC1 zero",
			atr:  "3B F8 13 00 00 81 31 FE 15 59 75 62 69 6B 65 79 34 D4",
			want: GlobalParameters{TA1: 0x13, Fi: 372, FMax: 5, Di: 4},
		},
		{
			name: "TA1=18 with minimum guard time",
			atr:  "3B DA 18 FF 81 B1 FE 75 1F 03 00 31 C5 73 C0 01 40 00 90 00 0C",
			want: GlobalParameters{TA1: 0x18, Fi: 372, FMax: 5, Di: 12, ExtraGuardTime: 255},
		},
		{
			name: "Specific mode from TA2",
			atr:  "3B 90 96 91 10 00 87",
			want: GlobalParameters{
				TA1: 0x96, Fi: 512, FMax: 5, Di: 32,
				SpecificMode: &SpecificMode{Protocol: T0, CanChange: true, ImplicitParameters: true},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MustParse(tlv.Hex(tt.atr)).Global()
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Global() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestGlobal_CyclesPerETU(t *testing.T) {
	tests := []struct {
		ta1  byte
		want float64
	}{
		{0x11, 372},
		{0x13, 93},
		{0x96, 16},
		{0x70, 0}, // Fi and Di reserved
	}

	for _, tt := range tests {
		a := MustParse(tlv.Hex("3B 00"))
		if err := a.SetInterfaceByte(1, TA, tt.ta1); err != nil {
			t.Fatal(err)
		}
		if got := a.Global().CyclesPerETU(); got != tt.want {
			t.Errorf("TA1=%02X: CyclesPerETU() = %g, want %g", tt.ta1, got, tt.want)
		}
	}
}

func TestT0Params(t *testing.T) {
	tests := []struct {
		name string
		atr  string
		want byte
	}{
		{"Default", "3B 00", DefaultWI},
		{"TC2 qualifies T=0", "3B 80 40 0F", 0x0F},
		{"TC2 absent", "3B 8A 80 01 00 31 C1 73 C8 40 00 00 90 00 90", DefaultWI},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MustParse(tlv.Hex(tt.atr)).T0Params().WI; got != tt.want {
				t.Errorf("WI = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestT1Params(t *testing.T) {
	tests := []struct {
		name string
		atr  string
		want T1Parameters
	}{
		{
			name: "Defaults",
			atr:  "3B 80 01 81",
			want: T1Parameters{IFSC: 32, BWI: 4, CWI: 13, ErrorDetection: LRC},
		},
		{
			name: "TA3 and TB3",
			atr:  "3B F8 13 00 00 81 31 FE 15 59 75 62 69 6B 65 79 34 D4",
			want: T1Parameters{IFSC: 254, BWI: 1, CWI: 5, ErrorDetection: LRC},
		},
		{
			name: "Bytes behind T=15 are not T=1 bytes",
			atr:  "3B DA 18 FF 81 B1 FE 75 1F 03 00 31 C5 73 C0 01 40 00 90 00 0C",
			want: T1Parameters{IFSC: 254, BWI: 7, CWI: 5, ErrorDetection: LRC},
		},
		{
			name: "CRC from TC3",
			atr:  "3B 80 80 41 01 40",
			want: T1Parameters{IFSC: 32, BWI: 4, CWI: 13, ErrorDetection: CRC},
		},
		{
			name: "TA2 is global, not IFSC",
			atr:  "3B 90 96 91 10 00 87",
			want: T1Parameters{IFSC: 32, BWI: 4, CWI: 13, ErrorDetection: LRC},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MustParse(tlv.Hex(tt.atr)).T1Params()
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("T1Params() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestT15Params(t *testing.T) {
	spu := byte(0xAA)

	tests := []struct {
		name      string
		atr       string
		want      T15Parameters
		wantNames []string
	}{
		{
			name:      "Absent",
			atr:       "3B 00",
			want:      T15Parameters{Classes: 0x01},
			wantNames: []string{"A (5V)"},
		},
		{
			name:      "Classes A and B, no clock stop",
			atr:       "3B DA 18 FF 81 B1 FE 75 1F 03 00 31 C5 73 C0 01 40 00 90 00 0C",
			want:      T15Parameters{Present: true, ClockStop: ClockStopNotSupported, Classes: 0x03},
			wantNames: []string{"A (5V)", "B (3V)"},
		},
		{
			name:      "Clock stop and SPU",
			atr:       "3B 80 80 3F C7 AA 52",
			want:      T15Parameters{Present: true, ClockStop: ClockStopNoPreference, Classes: 0x07, SPU: &spu},
			wantNames: []string{"A (5V)", "B (3V)", "C (1.8V)"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MustParse(tlv.Hex(tt.atr)).T15Params()
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("T15Params() mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(tt.wantNames, got.ClassNames()); diff != "" {
				t.Errorf("ClassNames() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestIndicatedParametersAreInterpreted(t *testing.T) {
	a := MustParse(tlv.Hex("3B 00"))

	err := a.IndicateProtocol(T1,
		InterfaceByte{Kind: TA, Value: 0xFE},
		InterfaceByte{Kind: TB, Value: 0x45},
	)
	if err != nil {
		t.Fatal(err)
	}

	want := T1Parameters{IFSC: 254, BWI: 4, CWI: 5, ErrorDetection: LRC}
	if diff := cmp.Diff(want, a.T1Params()); diff != "" {
		t.Errorf("T1Params() mismatch (-want +got):\n%s", diff)
	}
	if a.Global().SpecificMode != nil {
		t.Error("Protocol parameters must not land in TA2")
	}
}
