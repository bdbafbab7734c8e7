package tlv

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/moov-io/bertlv"
)

type mockHistorical struct {
	ServiceData []byte `tlv:"43" fmt:"bits"`
	IssuerData  []byte `tlv:"45" fmt:"ascii"`
	Priority    []byte `tlv:"87" fmt:"int"`
	RawData     []byte // No tag
	EmptyField  []byte `tlv:"46"`
	Unknown     []bertlv.TLV
	Ignored     string
}

func TestWriteStructFields(t *testing.T) {
	mock := mockHistorical{
		ServiceData: []byte{0xA1},
		IssuerData:  []byte{'A', 'C', 'M', 'E', 0x00},
		Priority:    []byte{0x01, 0x00},
		RawData:     []byte{0xCA, 0xFE},
		Unknown: []bertlv.TLV{
			{Tag: "4e", Value: []byte{0x12, 0x34}},
		},
	}

	tests := []struct {
		name          string
		prefix        string
		input         interface{}
		expectedLines []string
	}{
		{
			name:   "Struct Pointer Input",
			prefix: "Hist",
			input:  &mock,
			expectedLines: []string{
				"    - Hist.ServiceData (43): A1 (10100001)",
				`    - Hist.IssuerData (45): 41434D4500 ("ACME.")`,
				"    - Hist.Priority (87): 0100 (Dec: 256)",
				"    - Hist.RawData: CAFE",
				"    - Hist.Unknown Tag 4E: 1234",
			},
		},
		{
			name:   "Struct Value Input",
			prefix: "Val",
			input:  mock,
			expectedLines: []string{
				"    - Val.ServiceData (43): A1 (10100001)",
				`    - Val.IssuerData (45): 41434D4500 ("ACME.")`,
				"    - Val.Priority (87): 0100 (Dec: 256)",
				"    - Val.RawData: CAFE",
				"    - Val.Unknown Tag 4E: 1234",
			},
		},
		{
			name:          "Nil Pointer",
			prefix:        "Nil",
			input:         (*mockHistorical)(nil),
			expectedLines: []string{""},
		},
		{
			name:          "Not A Struct",
			prefix:        "Scalar",
			input:         42,
			expectedLines: []string{""},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var sb strings.Builder
			WriteStructFields(&sb, tt.prefix, tt.input)
			actualLines := strings.Split(sb.String(), "\n")

			if diff := cmp.Diff(tt.expectedLines, actualLines); diff != "" {
				t.Errorf("Mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestWriteStructFields_SeparatesBlocks(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("=== HEADER ===")
	WriteStructFields(&sb, "A", mockHistorical{RawData: []byte{0x01}})

	want := "=== HEADER ===\n    - A.RawData: 01"
	if sb.String() != want {
		t.Errorf("got %q, want %q", sb.String(), want)
	}
}

func TestMakeSafeASCII(t *testing.T) {
	input := []byte{0x41, 0x42, 0x00, 0x1F, 0x7F, 0x43} // AB, null, US, DEL, C
	want := "AB...C"                                    // 0x7F (127) is > 126, so it becomes dot

	got := MakeSafeASCII(input)
	if got != want {
		t.Errorf("MakeSafeASCII() = %q, want %q", got, want)
	}
}
