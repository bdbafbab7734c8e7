package tlv

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// hexSeparators are stripped from textual hex input. ATR dumps come as
// "3B 8F 80", "3B:8F:80" or "3b8f80" depending on the tool.
var hexSeparators = strings.NewReplacer(" ", "", ":", "", "-", "", "\t", "", "\n", "")

// ParseHex decodes a hex string, tolerating common separators.
func ParseHex(s string) ([]byte, error) {
	clean := hexSeparators.Replace(strings.TrimSpace(s))
	clean = strings.TrimPrefix(strings.TrimPrefix(clean, "0x"), "0X")

	data, err := hex.DecodeString(clean)
	if err != nil {
		return nil, fmt.Errorf("invalid hex input %q: %w", s, err)
	}
	return data, nil
}

// Hex constructs a byte slice from a series of hex strings.
// It panics on invalid input and is meant for fixtures.
func Hex(parts ...string) []byte {
	data, err := ParseHex(strings.Join(parts, ""))
	if err != nil {
		panic(err.Error())
	}
	return data
}

// FormatHex renders data as upper-case hex pairs separated by spaces.
func FormatHex(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	var sb strings.Builder
	for i, b := range data {
		if i > 0 {
			sb.WriteByte(' ')
		}
		fmt.Fprintf(&sb, "%02X", b)
	}
	return sb.String()
}
