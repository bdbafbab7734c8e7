package atr

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/gregLibert/smart-card-atr/pkg/tlv"
	"github.com/moov-io/bertlv"
)

// HISTORICAL BYTES (ISO/IEC 7816-4, clause 8.1.1):
//
// The first historical byte is the category indicator:
//   - '00': COMPACT-TLV data objects followed by a mandatory 3-byte status indicator (LCS, SW1, SW2).
//   - '10': The next byte is a DIR data reference.
//   - '80': COMPACT-TLV data objects; the status indicator, if any, is a data object ('8X').
//   - '81'-'8F': Reserved for future use.
//   - Anything else: Proprietary format.
//
// PC/SC Part 3 readers synthesise an ATR for contactless cards whose historical
// bytes read '80 4F 0C' followed by RID 'A0 00 00 03 06', the standard byte SS,
// the card name NN NN and four RFU bytes. Despite the '80' indicator, '4F 0C'
// is a BER-TLV application identifier there.

// Category indicator values.
const (
	CategoryStatusAtEnd  byte = 0x00
	CategoryDIRReference byte = 0x10
	CategoryCompactTLV   byte = 0x80
)

// pcscRID is the registered application provider identifier of the PC/SC workgroup.
var pcscRID = []byte{0xA0, 0x00, 0x00, 0x03, 0x06}

// HistoricalObjects are the interindustry data objects that may appear in the
// historical bytes, keyed by their BER-TLV tag.
type HistoricalObjects struct {
	CountryCode       []byte `tlv:"41"`
	IssuerID          []byte `tlv:"42"`
	CardServiceData   []byte `tlv:"43" fmt:"bits"`
	InitialAccessData []byte `tlv:"44"`
	CardIssuerData    []byte `tlv:"45" fmt:"ascii"`
	PreIssuingData    []byte `tlv:"46"`
	CardCapabilities  []byte `tlv:"47" fmt:"bits"`
	StatusIndicator   []byte `tlv:"48"`
	ApplicationID     []byte `tlv:"4F"`

	Unknown []bertlv.TLV `tlv:",unknown"`
}

// ContactlessCard is the PC/SC Part 3 description of a contactless card.
type ContactlessCard struct {
	Standard byte
	CardName uint16
}

var contactlessStandards = map[byte]string{
	0x01: "ISO 14443 A, part 1",
	0x02: "ISO 14443 A, part 2",
	0x03: "ISO 14443 A, part 3",
	0x05: "ISO 14443 B, part 1",
	0x06: "ISO 14443 B, part 2",
	0x07: "ISO 14443 B, part 3",
	0x09: "ISO 15693, part 1",
	0x0A: "ISO 15693, part 2",
	0x0B: "ISO 15693, part 3",
	0x0C: "ISO 15693, part 4",
	0x11: "FeliCa",
}

var contactlessCardNames = map[uint16]string{
	0x0001: "MIFARE Classic 1K",
	0x0002: "MIFARE Classic 4K",
	0x0003: "MIFARE Ultralight",
	0x0026: "MIFARE Mini",
	0x003A: "MIFARE Ultralight C",
}

// StandardName returns the name of the RF standard, or "Unknown".
func (c ContactlessCard) StandardName() string {
	if name, ok := contactlessStandards[c.Standard]; ok {
		return name
	}
	return "Unknown"
}

// Name returns the card name, or "Unknown".
func (c ContactlessCard) Name() string {
	if name, ok := contactlessCardNames[c.CardName]; ok {
		return name
	}
	return "Unknown"
}

// Historical is the decoded content of the historical bytes.
type Historical struct {
	Raw      []byte
	Category byte

	Objects HistoricalObjects

	// Status holds LCS, SW1, SW2 (or a subset) when a status indicator is present.
	Status []byte
	// DIRReference is set for category '10'.
	DIRReference []byte
	// Proprietary holds the bytes of a proprietary or RFU category.
	Proprietary []byte
	// Contactless is set for PC/SC Part 3 synthesised ATRs.
	Contactless *ContactlessCard
}

// IsProprietary reports whether the category indicator is outside the ISO range.
func (h *Historical) IsProprietary() bool {
	return h.Proprietary != nil
}

// ParseHistorical decodes historical bytes. Empty input yields an empty result.
func ParseHistorical(data []byte) (*Historical, error) {
	h := &Historical{Raw: append([]byte(nil), data...)}
	if len(data) == 0 {
		return h, nil
	}

	h.Category = data[0]
	payload := data[1:]

	switch {
	case h.Category == CategoryStatusAtEnd:
		if len(payload) < 3 {
			return nil, fmt.Errorf("category 00 requires a 3-byte status indicator, got %d bytes", len(payload))
		}
		cut := len(payload) - 3
		h.Status = append([]byte(nil), payload[cut:]...)
		if err := tlv.UnmarshalCompact(payload[:cut], &h.Objects); err != nil {
			return nil, fmt.Errorf("category 00 data objects: %w", err)
		}

	case h.Category == CategoryDIRReference:
		if len(payload) != 1 {
			return nil, fmt.Errorf("category 10 expects a single DIR data reference byte, got %d", len(payload))
		}
		h.DIRReference = append([]byte(nil), payload...)

	case h.Category == CategoryCompactTLV:
		if isPCSCContactless(payload) {
			if err := h.parsePCSC(payload); err != nil {
				return nil, err
			}
			return h, nil
		}
		if err := tlv.UnmarshalCompact(payload, &h.Objects); err != nil {
			return nil, fmt.Errorf("category 80 data objects: %w", err)
		}
		h.Status = h.Objects.StatusIndicator

	default:
		h.Proprietary = make([]byte, len(payload))
		copy(h.Proprietary, payload)
	}

	return h, nil
}

// CompactHistorical builds category '80' historical bytes from interindustry
// data objects. Tags must be '4X' and values at most 15 bytes long; a status
// indicator is passed as object '48'.
func CompactHistorical(objects []bertlv.TLV) ([]byte, error) {
	body, err := tlv.EncodeCompact(objects)
	if err != nil {
		return nil, fmt.Errorf("category 80 data objects: %w", err)
	}
	return append([]byte{CategoryCompactTLV}, body...), nil
}

func isPCSCContactless(payload []byte) bool {
	return len(payload) >= 2+len(pcscRID) &&
		payload[0] == 0x4F &&
		int(payload[1]) <= len(payload)-2 &&
		bytes.HasPrefix(payload[2:], pcscRID)
}

func (h *Historical) parsePCSC(payload []byte) error {
	packets, err := bertlv.Decode(payload)
	if err != nil {
		return fmt.Errorf("PC/SC historical bytes: BER-TLV decode failed: %w", err)
	}
	if err := tlv.UnmarshalFromPackets(packets, &h.Objects); err != nil {
		return fmt.Errorf("PC/SC historical bytes: %w", err)
	}

	aid := h.Objects.ApplicationID
	if len(aid) >= len(pcscRID)+3 {
		n := len(pcscRID)
		h.Contactless = &ContactlessCard{
			Standard: aid[n],
			CardName: uint16(aid[n+1])<<8 | uint16(aid[n+2]),
		}
	}
	return nil
}

// Historical decodes the historical bytes of the ATR.
func (a *Atr) Historical() (*Historical, error) {
	return ParseHistorical(a.historical)
}

// Describe renders the decoded historical bytes.
func (h *Historical) Describe() string {
	var sb strings.Builder
	sb.WriteString("=== HISTORICAL BYTES ===\n")

	if len(h.Raw) == 0 {
		sb.WriteString("    - None")
		return sb.String()
	}

	sb.WriteString(fmt.Sprintf("    + Raw:      %X (%q)\n", h.Raw, tlv.MakeSafeASCII(h.Raw)))
	sb.WriteString(fmt.Sprintf("    + Category: %02X -> %s", h.Category, h.categoryName()))

	if h.Contactless != nil {
		sb.WriteString(fmt.Sprintf("\n    + Standard: %02X -> %s", h.Contactless.Standard, h.Contactless.StandardName()))
		sb.WriteString(fmt.Sprintf("\n    + Card:     %04X -> %s", h.Contactless.CardName, h.Contactless.Name()))
	}
	if len(h.DIRReference) > 0 {
		sb.WriteString(fmt.Sprintf("\n    + DIR data reference: %X", h.DIRReference))
	}
	if len(h.Status) > 0 {
		sb.WriteString(fmt.Sprintf("\n    + Status:   %X", h.Status))
	}

	tlv.WriteStructFields(&sb, "Historical", &h.Objects)

	return strings.TrimRight(sb.String(), "\n")
}

func (h *Historical) categoryName() string {
	switch {
	case h.Contactless != nil:
		return "PC/SC contactless storage card"
	case h.Category == CategoryStatusAtEnd:
		return "COMPACT-TLV, status indicator at end"
	case h.Category == CategoryDIRReference:
		return "DIR data reference"
	case h.Category == CategoryCompactTLV:
		return "COMPACT-TLV"
	case h.Category > CategoryCompactTLV && h.Category <= 0x8F:
		return "Reserved for future use"
	default:
		return "Proprietary"
	}
}
