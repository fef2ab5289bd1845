package telemetry

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/Velocidex/ordereddict"
)

// CCSDS primary header layout. The seven fields total 6 bytes.
const (
	HeaderLengthBytes = 6
	MaxPacketBytes    = HeaderLengthBytes + 65536
)

// HeaderField names one fixed-width field of the CCSDS primary header.
type HeaderField struct {
	Name  string
	NBits int
}

// HeaderFields is the CCSDS primary header, in wire order.
var HeaderFields = []HeaderField{
	{"VERSION", 3},
	{"TYPE", 1},
	{"SEC_HDR_FLG", 1},
	{"PKT_APID", 11},
	{"SEQ_FLGS", 2},
	{"SRC_SEQ_CTR", 14},
	{"PKT_LEN", 16},
}

// Value is a single decoded parameter: the raw value as extracted from
// the packet plus an optional derived (calibrated) value.
type Value struct {
	Raw        any
	Calibrated any // nil when no calibration applied
	Unit       string

	// UnrecognizedEnum is set when an enumerated parameter's raw value
	// had no label in the enumeration.
	UnrecognizedEnum bool
}

// Derived returns the calibrated value when present, the raw value
// otherwise.
func (v Value) Derived() any {
	if v.Calibrated != nil {
		return v.Calibrated
	}
	return v.Raw
}

// MarshalJSON emits raw and calibrated values, hex-encoding binary raws.
func (v Value) MarshalJSON() ([]byte, error) {
	out := map[string]any{"raw": jsonValue(v.Raw)}
	if v.Calibrated != nil {
		out["calibrated"] = jsonValue(v.Calibrated)
	}
	if v.Unit != "" {
		out["unit"] = v.Unit
	}
	if v.UnrecognizedEnum {
		out["unrecognized_enum"] = true
	}
	return json.Marshal(out)
}

func jsonValue(v any) any {
	if b, ok := v.([]byte); ok {
		return hex.EncodeToString(b)
	}
	return v
}

// Packet holds the decoded parameters of one CCSDS packet in
// declaration order, along with the raw packet bytes.
type Packet struct {
	// Raw is the full framed packet: primary header plus user data.
	Raw []byte

	// Trailing holds bytes past the last consumed bit when the
	// definition did not account for the whole packet.
	Trailing []byte

	values *ordereddict.Dict
}

// NewPacket creates an empty packet for the given raw bytes.
func NewPacket(raw []byte) *Packet {
	return &Packet{Raw: raw, values: ordereddict.NewDict()}
}

// Set appends or replaces the named parameter value.
func (p *Packet) Set(name string, v Value) {
	p.values.Set(name, v)
}

// Get looks up a parameter by name.
func (p *Packet) Get(name string) (Value, bool) {
	raw, ok := p.values.Get(name)
	if !ok {
		return Value{}, false
	}
	return raw.(Value), true
}

// Names returns the parameter names in declaration order.
func (p *Packet) Names() []string {
	return p.values.Keys()
}

// Len returns the number of decoded parameters.
func (p *Packet) Len() int {
	return p.values.Len()
}

// Header returns the first seven parameters, the CCSDS primary header.
func (p *Packet) Header() *ordereddict.Dict {
	return p.slice(0, HeaderFieldCount())
}

// UserData returns every parameter after the primary header.
func (p *Packet) UserData() *ordereddict.Dict {
	return p.slice(HeaderFieldCount(), p.values.Len())
}

// HeaderFieldCount returns the number of primary header fields.
func HeaderFieldCount() int { return len(HeaderFields) }

func (p *Packet) slice(lo, hi int) *ordereddict.Dict {
	out := ordereddict.NewDict()
	keys := p.values.Keys()
	if hi > len(keys) {
		hi = len(keys)
	}
	if lo > hi {
		lo = hi
	}
	for _, k := range keys[lo:hi] {
		v, _ := p.values.Get(k)
		out.Set(k, v)
	}
	return out
}

// APID returns the application process identifier, looking up the
// field under name, or "PKT_APID" when name is empty.
func (p *Packet) APID(name string) (uint64, bool) {
	if name == "" {
		name = "PKT_APID"
	}
	v, ok := p.Get(name)
	if !ok {
		return 0, false
	}
	u, ok := asUint(v.Raw)
	return u, ok
}

func asUint(v any) (uint64, bool) {
	switch n := v.(type) {
	case uint64:
		return n, true
	case int64:
		if n < 0 {
			return 0, false
		}
		return uint64(n), true
	default:
		return 0, false
	}
}

// MarshalJSON emits the parameters as a JSON object in declaration order.
func (p *Packet) MarshalJSON() ([]byte, error) {
	return p.values.MarshalJSON()
}

// String summarizes the packet for logs.
func (p *Packet) String() string {
	apid, _ := p.APID("")
	return fmt.Sprintf("Packet(apid=%d, params=%d, bytes=%d)", apid, p.values.Len(), len(p.Raw))
}
