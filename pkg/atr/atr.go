package atr

import (
	"bytes"
	"fmt"

	"github.com/gregLibert/smart-card-atr/pkg/bits"
	"github.com/gregLibert/smart-card-atr/pkg/tlv"
)

// MaxHistoricalBytes is the largest count K encodable in T0.
const MaxHistoricalBytes = 15

// structure is the editable content of an ATR. Mutations work on a copy and
// only replace the live one when they succeed.
type structure struct {
	ts         Convention
	groups     []InterfaceGroup
	historical []byte

	// td1Synthesized is set when TD1 was added only to keep an implicit T=0
	// offer explicit. Removing the last other protocol drops it again.
	td1Synthesized bool
}

func (s structure) clone() structure {
	c := s
	c.groups = append([]InterfaceGroup(nil), s.groups...)
	c.historical = append([]byte(nil), s.historical...)
	return c
}

// t0 computes the format byte from the current groups and historical bytes.
func (s *structure) t0() byte {
	var y1 byte
	if len(s.groups) > 0 {
		y1 = s.groups[0].Presence()
	}
	return bits.Nibbles(y1, byte(len(s.historical)))
}

// body serialises TS through the last historical byte.
func (s *structure) body() []byte {
	out := make([]byte, 0, 2+4*len(s.groups)+len(s.historical)+1)
	out = append(out, byte(s.ts), s.t0())
	for _, g := range s.groups {
		out = g.appendTo(out)
	}
	return append(out, s.historical...)
}

// explicit reports whether TD1 exists, i.e. protocols are declared rather
// than implied.
func (s *structure) explicit() bool {
	return len(s.groups) > 0 && s.groups[0].Has(TD)
}

// declared lists the protocol nibble of every TD byte in chain order.
func (s *structure) declared() []ProtocolType {
	var out []ProtocolType
	for _, g := range s.groups {
		if p, ok := g.Protocol(); ok {
			out = append(out, p)
		}
	}
	return out
}

func (s *structure) indicates(p ProtocolType) bool {
	if !s.explicit() {
		return p == T0
	}
	for _, d := range s.declared() {
		if d == p {
			return true
		}
	}
	return false
}

// needsChecksum applies ISO/IEC 7816-3 8.2.5: TCK is absent if only T=0 is
// indicated and present otherwise.
func (s *structure) needsChecksum() bool {
	for _, p := range s.declared() {
		if p != T0 {
			return true
		}
	}
	return false
}

// Atr is an editable Answer-To-Reset.
//
// It is not internally synchronized.
type Atr struct {
	structure

	// receivedTCK is re-emitted while checksumMismatch is set, so that a
	// leniently parsed ATR still round-trips byte for byte.
	receivedTCK      byte
	checksumMismatch bool

	observers      []observer
	nextObserverID int
}

type observer struct {
	id int
	fn func()
}

type parseConfig struct {
	lenientChecksum bool
}

// ParseOption tunes Parse.
type ParseOption func(*parseConfig)

// WithLenientChecksum accepts an ATR whose TCK does not match. The mismatch is
// reported by ChecksumValid and the received TCK is kept until the next mutation.
func WithLenientChecksum() ParseOption {
	return func(c *parseConfig) {
		c.lenientChecksum = true
	}
}

// byteReader walks the raw ATR and produces FormatErrors naming the element
// being read.
type byteReader struct {
	data []byte
	pos  int
}

func (r *byteReader) next(field string) (byte, error) {
	if r.pos >= len(r.data) {
		return 0, &FormatError{Field: field, Offset: r.pos, Reason: "unexpected end of data"}
	}
	b := r.data[r.pos]
	r.pos++
	return b, nil
}

func (r *byteReader) take(field string, n int) ([]byte, error) {
	if left := len(r.data) - r.pos; left < n {
		return nil, &FormatError{
			Field:  field,
			Offset: r.pos,
			Reason: fmt.Sprintf("%d bytes declared, only %d available", n, left),
		}
	}
	out := make([]byte, n)
	copy(out, r.data[r.pos:r.pos+n])
	r.pos += n
	return out, nil
}

// Parse decodes a raw ATR.
//
// It fails with a *FormatError on an invalid TS, a truncated stream or
// trailing bytes, and with a *ChecksumError when TCK does not match (unless
// WithLenientChecksum is given). No partial result is returned.
func Parse(raw []byte, opts ...ParseOption) (*Atr, error) {
	var cfg parseConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	r := &byteReader{data: raw}

	ts, err := r.next("TS")
	if err != nil {
		return nil, err
	}
	if !Convention(ts).valid() {
		return nil, &FormatError{Field: "TS", Offset: 0, Reason: fmt.Sprintf("invalid initial character 0x%02X", ts)}
	}

	t0, err := r.next("T0")
	if err != nil {
		return nil, err
	}

	a := &Atr{structure: structure{ts: Convention(ts)}}

	y := bits.HighNibble(t0)
	for i := 1; y != 0; i++ {
		var g InterfaceGroup
		for k := TA; k <= TD; k++ {
			if y&k.mask() == 0 {
				continue
			}
			v, err := r.next(fmt.Sprintf("%s%d", k, i))
			if err != nil {
				return nil, err
			}
			g.set(k, v)
		}
		a.groups = append(a.groups, g)

		y = 0
		if td, ok := g.Byte(TD); ok {
			y = bits.HighNibble(td)
		}
	}

	if a.historical, err = r.take("historical bytes", int(bits.LowNibble(t0))); err != nil {
		return nil, err
	}

	if a.needsChecksum() {
		tck, err := r.next("TCK")
		if err != nil {
			return nil, err
		}
		if want := bits.XOR(raw[1 : r.pos-1]); tck != want {
			if !cfg.lenientChecksum {
				return nil, &ChecksumError{Expected: want, Actual: tck}
			}
			a.receivedTCK = tck
			a.checksumMismatch = true
		}
	}

	if r.pos < len(raw) {
		return nil, &FormatError{
			Field:  "end of ATR",
			Offset: r.pos,
			Reason: fmt.Sprintf("%d unexpected trailing bytes", len(raw)-r.pos),
		}
	}

	return a, nil
}

// MustParse is like Parse but panics on error.
func MustParse(raw []byte) *Atr {
	a, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return a
}

// Bytes serialises the ATR, recomputing T0 and TCK.
func (a *Atr) Bytes() []byte {
	out := a.body()
	if !a.needsChecksum() {
		return out
	}
	if a.checksumMismatch {
		return append(out, a.receivedTCK)
	}
	return append(out, bits.XOR(out[1:]))
}

// String renders the ATR as space separated hex pairs.
func (a *Atr) String() string {
	return tlv.FormatHex(a.Bytes())
}

// Equal reports whether both ATRs serialise to the same bytes.
func (a *Atr) Equal(other *Atr) bool {
	if a == nil || other == nil {
		return a == other
	}
	return bytes.Equal(a.Bytes(), other.Bytes())
}

// Clone returns an independent copy without observers.
func (a *Atr) Clone() *Atr {
	return &Atr{
		structure:        a.structure.clone(),
		receivedTCK:      a.receivedTCK,
		checksumMismatch: a.checksumMismatch,
	}
}

// Convention returns the initial character TS.
func (a *Atr) Convention() Convention {
	return a.ts
}

// T0 returns the format byte.
func (a *Atr) T0() byte {
	return a.t0()
}

// Groups returns a copy of the interface groups, group 1 first.
func (a *Atr) Groups() []InterfaceGroup {
	return append([]InterfaceGroup(nil), a.groups...)
}

// Group returns interface group i (1-based).
func (a *Atr) Group(i int) (InterfaceGroup, bool) {
	if i < 1 || i > len(a.groups) {
		return InterfaceGroup{}, false
	}
	return a.groups[i-1], true
}

// InterfaceByte returns e.g. TB1 as InterfaceByte(1, TB).
func (a *Atr) InterfaceByte(group int, kind InterfaceByteKind) (byte, bool) {
	g, ok := a.Group(group)
	if !ok {
		return 0, false
	}
	return g.Byte(kind)
}

// HistoricalBytes returns a copy of the historical bytes.
func (a *Atr) HistoricalBytes() []byte {
	return append([]byte(nil), a.historical...)
}

// Protocols lists the offered protocols in order of first declaration.
// Without TD1 the only offer is the implicit T=0.
func (a *Atr) Protocols() []ProtocolType {
	if !a.explicit() {
		return []ProtocolType{T0}
	}
	var out []ProtocolType
	seen := make(map[ProtocolType]bool)
	for _, p := range a.declared() {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	return out
}

// DefaultProtocol is the first offered protocol, used when no PPS exchange
// takes place.
func (a *Atr) DefaultProtocol() ProtocolType {
	for _, p := range a.Protocols() {
		if p.IsTransmission() {
			return p
		}
	}
	return T0
}

// IsProtocolImplicit reports whether T=0 is offered only by the absence of TD1.
func (a *Atr) IsProtocolImplicit() bool {
	return !a.explicit()
}

// Indicates reports whether p is offered, explicitly or implicitly.
func (a *Atr) Indicates(p ProtocolType) bool {
	return a.indicates(p)
}

// HasChecksum reports whether the serialised form ends with TCK.
func (a *Atr) HasChecksum() bool {
	return a.needsChecksum()
}

// Checksum returns the TCK that Bytes emits.
func (a *Atr) Checksum() (byte, bool) {
	if !a.needsChecksum() {
		return 0, false
	}
	b := a.Bytes()
	return b[len(b)-1], true
}

// ChecksumValid is false only for an ATR parsed WithLenientChecksum whose TCK
// did not match and that has not been modified since.
func (a *Atr) ChecksumValid() bool {
	return !a.checksumMismatch
}

// OnChange registers fn to be called after every mutation that changes the
// serialised ATR. The returned function unregisters it.
func (a *Atr) OnChange(fn func()) (cancel func()) {
	id := a.nextObserverID
	a.nextObserverID++
	a.observers = append(a.observers, observer{id: id, fn: fn})

	return func() {
		for i, o := range a.observers {
			if o.id == id {
				a.observers = append(a.observers[:i:i], a.observers[i+1:]...)
				return
			}
		}
	}
}

func (a *Atr) notify() {
	snapshot := append([]observer(nil), a.observers...)
	for _, o := range snapshot {
		o.fn()
	}
}
