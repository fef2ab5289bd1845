package xtce

import (
	"bytes"
	"math"

	"github.com/medley56/space-packet-parser/internal/bitstream"
	"github.com/medley56/space-packet-parser/internal/telemetry"
)

// ParseContext is the per-packet state shared by data encodings: the
// packet being filled (for dynamic length references) and the cursor
// into its bytes.
type ParseContext struct {
	Packet *telemetry.Packet
	Cursor *bitstream.Cursor

	// WordSizeBits, when nonzero, pads binary fields to the next word
	// boundary after reading.
	WordSizeBits int
}

// DataEncoding reads one raw value from the packet cursor, applying
// any calibration the encoding carries.
type DataEncoding interface {
	Parse(ctx *ParseContext) (telemetry.Value, error)
}

// DynamicValue computes a field width from a previously parsed
// parameter: adjusted = Intercept + Slope·value.
type DynamicValue struct {
	ParameterRef  string
	UseCalibrated bool
	Slope         float64
	Intercept     float64
}

// Resolve evaluates the dynamic value against the current context.
// Referencing a parameter that has not been parsed yet is an
// evaluation error.
func (d *DynamicValue) Resolve(pkt *telemetry.Packet) (int, error) {
	v, ok := pkt.Get(d.ParameterRef)
	if !ok {
		return 0, evalErrorf("dynamic value references parameter %q which has not been parsed", d.ParameterRef)
	}
	src := v.Raw
	if d.UseCalibrated && v.Calibrated != nil {
		src = v.Calibrated
	}
	base, ok := toFloat(src)
	if !ok {
		return 0, evalErrorf("dynamic value reference %q is not numeric (%T)", d.ParameterRef, src)
	}
	adjusted := d.Intercept + d.Slope*base
	if adjusted != math.Trunc(adjusted) || adjusted < 0 {
		return 0, evalErrorf("dynamic size %v from %q is not a non-negative integer", adjusted, d.ParameterRef)
	}
	return int(adjusted), nil
}

// IntegerDataEncoding reads a fixed-width integer.
type IntegerDataEncoding struct {
	SizeInBits         int
	Signedness         bitstream.Signedness
	LSBFirst           bool // byte order of multi-byte values
	DefaultCalibrator  Calibrator
	ContextCalibrators []ContextCalibrator
}

func (e *IntegerDataEncoding) Parse(ctx *ParseContext) (telemetry.Value, error) {
	bits, err := ctx.Cursor.ReadUint(e.SizeInBits)
	if err != nil {
		return telemetry.Value{}, err
	}
	if e.LSBFirst {
		bits = bitstream.ReverseBytes(bits, e.SizeInBits)
	}

	var raw any
	var rawF float64
	if e.Signedness == bitstream.Unsigned {
		raw = bits
		rawF = float64(bits)
	} else {
		i := bitstream.DecodeInt(bits, e.SizeInBits, e.Signedness)
		raw = i
		rawF = float64(i)
	}

	cal, applied, err := applyCalibration(rawF, raw, e.ContextCalibrators, e.DefaultCalibrator, ctx.Packet)
	if err != nil {
		return telemetry.Value{}, err
	}
	v := telemetry.Value{Raw: raw}
	if applied {
		v.Calibrated = cal
	}
	return v, nil
}

// FloatDataEncoding reads a 16/32/64-bit IEEE 754 value.
type FloatDataEncoding struct {
	SizeInBits         int
	LSBFirst           bool
	DefaultCalibrator  Calibrator
	ContextCalibrators []ContextCalibrator
}

func (e *FloatDataEncoding) Parse(ctx *ParseContext) (telemetry.Value, error) {
	bits, err := ctx.Cursor.ReadUint(e.SizeInBits)
	if err != nil {
		return telemetry.Value{}, err
	}
	if e.LSBFirst {
		bits = bitstream.ReverseBytes(bits, e.SizeInBits)
	}
	raw, err := bitstream.DecodeFloat(bits, e.SizeInBits)
	if err != nil {
		return telemetry.Value{}, err
	}

	cal, applied, err := applyCalibration(raw, raw, e.ContextCalibrators, e.DefaultCalibrator, ctx.Packet)
	if err != nil {
		return telemetry.Value{}, err
	}
	v := telemetry.Value{Raw: raw}
	if applied {
		v.Calibrated = cal
	}
	return v, nil
}

// StringDataEncoding reads a string whose raw buffer length comes from
// a fixed size, a dynamic value, or a discrete lookup, or whose extent
// is delimited by a termination character. Within a sized buffer, a
// leading length field or termination character selects the derived
// substring.
type StringDataEncoding struct {
	Charset          bitstream.Charset
	FixedRawSizeBits int
	DynamicLength    *DynamicValue
	LookupLength     []DiscreteLookup

	// LeadingSizeBits is the width of a length prefix inside the raw
	// buffer giving the derived string length in bits.
	LeadingSizeBits int

	// TerminationChar is one character in the target charset (one byte
	// for single-byte charsets, one 2-byte code unit for UTF-16).
	TerminationChar []byte
}

func (e *StringDataEncoding) Parse(ctx *ParseContext) (telemetry.Value, error) {
	if e.FixedRawSizeBits == 0 && e.DynamicLength == nil && e.LookupLength == nil {
		return e.parseTerminated(ctx)
	}

	nbits, err := e.rawSizeBits(ctx)
	if err != nil {
		return telemetry.Value{}, err
	}
	raw, err := ctx.Cursor.ReadBytes(nbits)
	if err != nil {
		return telemetry.Value{}, err
	}

	derived := raw
	switch {
	case e.LeadingSizeBits > 0:
		sub := bitstream.NewCursor(raw)
		strBits, err := sub.ReadUint(e.LeadingSizeBits)
		if err != nil {
			return telemetry.Value{}, err
		}
		if strBits%8 != 0 {
			return telemetry.Value{}, evalErrorf("string length prefix gives %d bits, not a whole number of bytes", strBits)
		}
		derived, err = sub.ReadBytes(int(strBits))
		if err != nil {
			return telemetry.Value{}, err
		}
	case e.TerminationChar != nil:
		idx := indexTerminator(raw, e.TerminationChar)
		if idx < 0 {
			return telemetry.Value{}, evalErrorf("termination character %x not found in %d-byte string buffer", e.TerminationChar, len(raw))
		}
		derived = raw[:idx]
	}

	s, err := bitstream.DecodeString(derived, e.Charset)
	if err != nil {
		return telemetry.Value{}, evalErrorf("%v", err)
	}
	return telemetry.Value{Raw: raw, Calibrated: s}, nil
}

// parseTerminated reads forward until the termination character when
// the encoding carries no raw length at all. The terminator is
// consumed but excluded from the derived string.
func (e *StringDataEncoding) parseTerminated(ctx *ParseContext) (telemetry.Value, error) {
	if e.TerminationChar == nil {
		return telemetry.Value{}, evalErrorf("string encoding specifies no length and no termination character")
	}
	unit := len(e.TerminationChar)
	var raw []byte
	for {
		chunk, err := ctx.Cursor.ReadBytes(unit * 8)
		if err != nil {
			return telemetry.Value{}, err
		}
		raw = append(raw, chunk...)
		if bytes.Equal(chunk, e.TerminationChar) {
			break
		}
	}
	s, err := bitstream.DecodeString(raw[:len(raw)-unit], e.Charset)
	if err != nil {
		return telemetry.Value{}, evalErrorf("%v", err)
	}
	return telemetry.Value{Raw: raw, Calibrated: s}, nil
}

func (e *StringDataEncoding) rawSizeBits(ctx *ParseContext) (int, error) {
	switch {
	case e.FixedRawSizeBits > 0:
		return e.FixedRawSizeBits, nil
	case e.DynamicLength != nil:
		return e.DynamicLength.Resolve(ctx.Packet)
	case e.LookupLength != nil:
		n, ok, err := EvaluateLookups(e.LookupLength, ctx.Packet, nil)
		if err != nil {
			return 0, err
		}
		if !ok {
			return 0, evalErrorf("no discrete lookup matched for string length")
		}
		return int(n), nil
	}
	return 0, evalErrorf("string encoding has no raw length specifier")
}

// indexTerminator finds the terminator on character boundaries: every
// byte for single-byte charsets, every 2 bytes for UTF-16 code units.
func indexTerminator(buf, term []byte) int {
	unit := len(term)
	for i := 0; i+unit <= len(buf); i += unit {
		if bytes.Equal(buf[i:i+unit], term) {
			return i
		}
	}
	return -1
}

// BinaryDataEncoding reads a raw byte field with a fixed, dynamic, or
// lookup-determined bit length.
type BinaryDataEncoding struct {
	FixedSizeBits int
	DynamicSize   *DynamicValue
	LookupSize    []DiscreteLookup
}

func (e *BinaryDataEncoding) Parse(ctx *ParseContext) (telemetry.Value, error) {
	var nbits int
	switch {
	case e.DynamicSize != nil:
		n, err := e.DynamicSize.Resolve(ctx.Packet)
		if err != nil {
			return telemetry.Value{}, err
		}
		nbits = n
	case e.LookupSize != nil:
		n, ok, err := EvaluateLookups(e.LookupSize, ctx.Packet, nil)
		if err != nil {
			return telemetry.Value{}, err
		}
		if !ok {
			return telemetry.Value{}, evalErrorf("no discrete lookup matched for binary field length")
		}
		nbits = int(n)
	default:
		nbits = e.FixedSizeBits
	}

	raw, err := ctx.Cursor.ReadBytes(nbits)
	if err != nil {
		return telemetry.Value{}, err
	}
	if ws := ctx.WordSizeBits; ws > 0 {
		if pad := (ws - ctx.Cursor.Position()%ws) % ws; pad > 0 && pad <= ctx.Cursor.Remaining() {
			if err := ctx.Cursor.Skip(pad); err != nil {
				return telemetry.Value{}, err
			}
		}
	}
	return telemetry.Value{Raw: raw}, nil
}
