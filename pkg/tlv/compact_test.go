package tlv

import (
	"bytes"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/moov-io/bertlv"
)

func TestDecodeCompact(t *testing.T) {
	tests := []struct {
		name    string
		input   []byte
		want    []bertlv.TLV
		wantErr bool
	}{
		{
			name:  "Card service data and capabilities",
			input: Hex("31 C0", "73 00 01 80"),
			want: []bertlv.TLV{
				{Tag: "43", Value: []byte{0xC0}},
				{Tag: "47", Value: []byte{0x00, 0x01, 0x80}},
			},
		},
		{
			name:  "Zero length object",
			input: Hex("50"),
			want: []bertlv.TLV{
				{Tag: "45", Value: []byte{}},
			},
		},
		{
			name:  "Application identifier uses tag F",
			input: Hex("F2 A0 00"),
			want: []bertlv.TLV{
				{Tag: "4F", Value: []byte{0xA0, 0x00}},
			},
		},
		{
			name:    "Truncated value",
			input:   Hex("33 01 02"),
			wantErr: true,
		},
		{
			name:  "Empty input",
			input: nil,
			want:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeCompact(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("DecodeCompact() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if diff := cmp.Diff(flatten(tt.want), flatten(got)); diff != "" {
				t.Errorf("Mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

type tagValue struct {
	Tag   string
	Value string
}

func flatten(objects []bertlv.TLV) []tagValue {
	var out []tagValue
	for _, o := range objects {
		out = append(out, tagValue{Tag: o.Tag, Value: FormatHex(o.Value)})
	}
	return out
}

func TestEncodeCompact(t *testing.T) {
	objects := []bertlv.TLV{
		{Tag: "43", Value: []byte{0xC0}},
		{Tag: "47", Value: []byte{0x00, 0x01, 0x80}},
	}

	got, err := EncodeCompact(objects)
	if err != nil {
		t.Fatalf("EncodeCompact failed: %v", err)
	}
	if want := Hex("31 C0 73 00 01 80"); !bytes.Equal(got, want) {
		t.Errorf("EncodeCompact() = %X, want %X", got, want)
	}

	t.Run("Non interindustry tag", func(t *testing.T) {
		if _, err := EncodeCompact([]bertlv.TLV{{Tag: "9F02"}}); err == nil {
			t.Error("Expected error for tag without compact form")
		}
	})

	t.Run("Value too long", func(t *testing.T) {
		if _, err := EncodeCompact([]bertlv.TLV{{Tag: "45", Value: make([]byte, 16)}}); err == nil {
			t.Error("Expected error for 16 byte value")
		}
	})
}

func TestUnmarshalCompact(t *testing.T) {
	var target struct {
		ServiceData  []byte `tlv:"43"`
		Capabilities []byte `tlv:"47"`
		Unknown      []bertlv.TLV
	}

	if err := UnmarshalCompact(Hex("31 C0 73 00 01 80 21 55"), &target); err != nil {
		t.Fatalf("UnmarshalCompact failed: %v", err)
	}
	if !bytes.Equal(target.ServiceData, []byte{0xC0}) {
		t.Errorf("ServiceData = %X, want C0", target.ServiceData)
	}
	if !bytes.Equal(target.Capabilities, Hex("000180")) {
		t.Errorf("Capabilities = %X, want 000180", target.Capabilities)
	}
	if len(target.Unknown) != 1 || target.Unknown[0].Tag != "42" {
		t.Errorf("Unknown = %+v, want single tag 42", target.Unknown)
	}
}
