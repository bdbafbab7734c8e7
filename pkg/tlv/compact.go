package tlv

import (
	"fmt"
	"strconv"

	"github.com/gregLibert/smart-card-atr/pkg/bits"
	"github.com/moov-io/bertlv"
)

// COMPACT-TLV (ISO/IEC 7816-4, 8.1.1.2):
//
// Used in the historical bytes of the ATR where space is scarce. Every data
// object starts with a single header byte:
//
//	Bits 8-5: tag number (0x0 to 0xF)
//	Bits 4-1: length of the value field (0 to 15)
//
// A COMPACT-TLV object with tag number X is equivalent to the BER-TLV
// interindustry data object with tag '4X' and the same value, e.g. the card
// capabilities '7X' are BER-TLV '47'.

// CompactTag converts a COMPACT-TLV tag number into its BER-TLV tag string.
func CompactTag(number byte) string {
	return fmt.Sprintf("4%X", number&0x0F)
}

// DecodeCompact splits data into COMPACT-TLV objects and returns them as
// BER-TLV equivalents.
func DecodeCompact(data []byte) ([]bertlv.TLV, error) {
	var out []bertlv.TLV

	for pos := 0; pos < len(data); {
		header := data[pos]
		length := int(bits.LowNibble(header))
		tag := CompactTag(bits.HighNibble(header))

		start := pos + 1
		end := start + length
		if end > len(data) {
			return out, fmt.Errorf("compact tag %s at offset %d: declares %d bytes, only %d left",
				tag, pos, length, len(data)-start)
		}

		value := make([]byte, length)
		copy(value, data[start:end])
		out = append(out, bertlv.TLV{Tag: tag, Value: value})

		pos = end
	}

	return out, nil
}

// EncodeCompact serialises BER-TLV objects with '4X' tags as COMPACT-TLV.
func EncodeCompact(objects []bertlv.TLV) ([]byte, error) {
	var out []byte

	for _, o := range objects {
		if len(o.Tag) != 2 || o.Tag[0] != '4' {
			return nil, fmt.Errorf("tag %s has no compact form", o.Tag)
		}
		number, err := strconv.ParseUint(o.Tag[1:], 16, 4)
		if err != nil {
			return nil, fmt.Errorf("tag %s has no compact form", o.Tag)
		}
		if len(o.Value) > 0x0F {
			return nil, fmt.Errorf("tag %s: value of %d bytes exceeds compact limit of 15", o.Tag, len(o.Value))
		}
		out = append(out, bits.Nibbles(byte(number), byte(len(o.Value))))
		out = append(out, o.Value...)
	}

	return out, nil
}

// UnmarshalCompact decodes COMPACT-TLV data and maps it into target.
func UnmarshalCompact(data []byte, target interface{}) error {
	packets, err := DecodeCompact(data)
	if err != nil {
		return err
	}
	return UnmarshalFromPackets(packets, target)
}
