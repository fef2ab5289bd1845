package xtce

import (
	"github.com/medley56/space-packet-parser/internal/telemetry"
)

// ParameterType decodes one value from the packet cursor. Each type
// owns exactly one data encoding describing the raw bit layout.
type ParameterType interface {
	TypeName() string
	UnitName() string
	Parse(ctx *ParseContext) (telemetry.Value, error)
}

// baseType carries the fields shared by all parameter types.
type baseType struct {
	Name string
	Unit string
}

func (b baseType) TypeName() string { return b.Name }
func (b baseType) UnitName() string { return b.Unit }

// IntegerParameterType is an integer-encoded parameter.
type IntegerParameterType struct {
	baseType
	Encoding *IntegerDataEncoding
}

func NewIntegerParameterType(name, unit string, enc *IntegerDataEncoding) *IntegerParameterType {
	return &IntegerParameterType{baseType{name, unit}, enc}
}

func (t *IntegerParameterType) Parse(ctx *ParseContext) (telemetry.Value, error) {
	v, err := t.Encoding.Parse(ctx)
	v.Unit = t.Unit
	return v, err
}

// FloatParameterType is an IEEE-float or integer encoded parameter
// producing a floating point value.
type FloatParameterType struct {
	baseType
	Encoding DataEncoding
}

func NewFloatParameterType(name, unit string, enc DataEncoding) *FloatParameterType {
	return &FloatParameterType{baseType{name, unit}, enc}
}

func (t *FloatParameterType) Parse(ctx *ParseContext) (telemetry.Value, error) {
	v, err := t.Encoding.Parse(ctx)
	v.Unit = t.Unit
	return v, err
}

// EnumeratedParameterType maps raw integers to labels. Lookup operates
// on raw values only; a raw value with no label yields no calibrated
// value and sets the unrecognized-enum flag.
type EnumeratedParameterType struct {
	baseType
	Encoding *IntegerDataEncoding
	Labels   map[int64]string
}

func NewEnumeratedParameterType(name, unit string, enc *IntegerDataEncoding, labels map[int64]string) *EnumeratedParameterType {
	return &EnumeratedParameterType{baseType{name, unit}, enc, labels}
}

func (t *EnumeratedParameterType) Parse(ctx *ParseContext) (telemetry.Value, error) {
	v, err := t.Encoding.Parse(ctx)
	if err != nil {
		return v, err
	}
	v.Unit = t.Unit
	var key int64
	switch raw := v.Raw.(type) {
	case uint64:
		key = int64(raw)
	case int64:
		key = raw
	default:
		return v, evalErrorf("enumerated parameter %q raw value is not an integer (%T)", t.Name, v.Raw)
	}
	if label, ok := t.Labels[key]; ok {
		v.Calibrated = label
	} else {
		v.Calibrated = nil
		v.UnrecognizedEnum = true
	}
	return v, nil
}

// StringParameterType is a byte-encoded string parameter.
type StringParameterType struct {
	baseType
	Encoding *StringDataEncoding
}

func NewStringParameterType(name, unit string, enc *StringDataEncoding) *StringParameterType {
	return &StringParameterType{baseType{name, unit}, enc}
}

func (t *StringParameterType) Parse(ctx *ParseContext) (telemetry.Value, error) {
	v, err := t.Encoding.Parse(ctx)
	v.Unit = t.Unit
	return v, err
}

// BinaryParameterType is a raw byte field.
type BinaryParameterType struct {
	baseType
	Encoding *BinaryDataEncoding
}

func NewBinaryParameterType(name, unit string, enc *BinaryDataEncoding) *BinaryParameterType {
	return &BinaryParameterType{baseType{name, unit}, enc}
}

func (t *BinaryParameterType) Parse(ctx *ParseContext) (telemetry.Value, error) {
	v, err := t.Encoding.Parse(ctx)
	v.Unit = t.Unit
	return v, err
}

// BooleanParameterType maps raw {0, 1} integers to false/true. Any
// nonzero raw value is truthy.
type BooleanParameterType struct {
	baseType
	Encoding *IntegerDataEncoding
}

func NewBooleanParameterType(name, unit string, enc *IntegerDataEncoding) *BooleanParameterType {
	return &BooleanParameterType{baseType{name, unit}, enc}
}

func (t *BooleanParameterType) Parse(ctx *ParseContext) (telemetry.Value, error) {
	v, err := t.Encoding.Parse(ctx)
	if err != nil {
		return v, err
	}
	v.Unit = t.Unit
	switch raw := v.Raw.(type) {
	case uint64:
		v.Calibrated = raw != 0
	case int64:
		v.Calibrated = raw != 0
	}
	return v, nil
}

// TimeParameterType is the shared shape of absolute and relative time
// parameters: a numeric encoding with an epoch and an optional scale
// folded into the encoding's calibrator at load time.
type TimeParameterType struct {
	baseType
	Encoding   DataEncoding
	Epoch      string
	OffsetFrom string
}

func (t *TimeParameterType) Parse(ctx *ParseContext) (telemetry.Value, error) {
	v, err := t.Encoding.Parse(ctx)
	v.Unit = t.Unit
	return v, err
}

// AbsoluteTimeParameterType counts from a fixed epoch.
type AbsoluteTimeParameterType struct {
	TimeParameterType
}

func NewAbsoluteTimeParameterType(name, unit string, enc DataEncoding, epoch, offsetFrom string) *AbsoluteTimeParameterType {
	return &AbsoluteTimeParameterType{TimeParameterType{baseType{name, unit}, enc, epoch, offsetFrom}}
}

// RelativeTimeParameterType is a duration relative to another time.
type RelativeTimeParameterType struct {
	TimeParameterType
}

func NewRelativeTimeParameterType(name, unit string, enc DataEncoding, epoch, offsetFrom string) *RelativeTimeParameterType {
	return &RelativeTimeParameterType{TimeParameterType{baseType{name, unit}, enc, epoch, offsetFrom}}
}

// Parameter binds a name to a parameter type.
type Parameter struct {
	Name             string
	Type             ParameterType
	ShortDescription string
}
