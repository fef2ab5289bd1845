package xtce

import (
	"strconv"
	"strings"

	"github.com/medley56/space-packet-parser/internal/telemetry"
)

// Operator is a comparison operator from a match criteria element.
type Operator int

const (
	OpEq Operator = iota
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
)

// operatorNames accepts both symbolic and bash-style spellings, the
// way they appear in XTCE documents.
var operatorNames = map[string]Operator{
	"==": OpEq, "eq": OpEq,
	"!=": OpNe, "neq": OpNe,
	"<": OpLt, "lt": OpLt, "&lt;": OpLt,
	"<=": OpLe, "leq": OpLe, "&lt;=": OpLe,
	">": OpGt, "gt": OpGt, "&gt;": OpGt,
	">=": OpGe, "geq": OpGe, "&gt;=": OpGe,
}

// ParseOperator converts an XML operator spelling to an Operator.
func ParseOperator(s string) (Operator, error) {
	op, ok := operatorNames[s]
	if !ok {
		return 0, defErrorf("unrecognized comparison operator %q", s)
	}
	return op, nil
}

func (op Operator) String() string {
	switch op {
	case OpEq:
		return "=="
	case OpNe:
		return "!="
	case OpLt:
		return "<"
	case OpLe:
		return "<="
	case OpGt:
		return ">"
	case OpGe:
		return ">="
	}
	return "?"
}

// apply maps a three-way comparison result onto the operator.
func (op Operator) apply(cmp int) bool {
	switch op {
	case OpEq:
		return cmp == 0
	case OpNe:
		return cmp != 0
	case OpLt:
		return cmp < 0
	case OpLe:
		return cmp <= 0
	case OpGt:
		return cmp > 0
	case OpGe:
		return cmp >= 0
	}
	return false
}

// MatchCriteria is any criteria that evaluates to a boolean against a
// partial parse context. current carries the raw value of the
// parameter currently being parsed (context calibrator conditions may
// reference their own raw value before it enters the packet); it is
// nil otherwise.
type MatchCriteria interface {
	Evaluate(pkt *telemetry.Packet, current any) (bool, error)
}

// Comparison is a single parameterRef/operator/value criterion.
type Comparison struct {
	ParameterRef  string
	Operator      Operator
	Value         string // literal, coerced to the referenced type at evaluation
	UseCalibrated bool
}

// Evaluate looks the referenced parameter up in the context. A
// reference to a parameter that has not been parsed is an evaluation
// error unless a current candidate value is supplied.
func (c *Comparison) Evaluate(pkt *telemetry.Packet, current any) (bool, error) {
	var comparand any
	if v, ok := pkt.Get(c.ParameterRef); ok {
		if c.UseCalibrated && v.Calibrated != nil {
			comparand = v.Calibrated
		} else {
			comparand = v.Raw
		}
	} else if current != nil {
		// Self-reference from a context calibrator: the candidate raw
		// value has not been inserted into the packet yet.
		comparand = current
	} else {
		return false, evalErrorf("comparison references parameter %q which has not been parsed", c.ParameterRef)
	}

	cmp, err := compareWithLiteral(comparand, c.Value)
	if err != nil {
		return false, err
	}
	return c.Operator.apply(cmp), nil
}

// compareWithLiteral coerces literal to the type of parsed and returns
// a three-way comparison result.
func compareWithLiteral(parsed any, literal string) (int, error) {
	switch v := parsed.(type) {
	case uint64:
		u, err := strconv.ParseUint(literal, 10, 64)
		if err != nil {
			return 0, evalErrorf("cannot coerce literal %q to unsigned integer: %v", literal, err)
		}
		return cmpOrdered(v, u), nil
	case int64:
		i, err := strconv.ParseInt(literal, 10, 64)
		if err != nil {
			return 0, evalErrorf("cannot coerce literal %q to integer: %v", literal, err)
		}
		return cmpOrdered(v, i), nil
	case float64:
		f, err := strconv.ParseFloat(literal, 64)
		if err != nil {
			return 0, evalErrorf("cannot coerce literal %q to float: %v", literal, err)
		}
		return cmpOrdered(v, f), nil
	case string:
		return strings.Compare(v, literal), nil
	case bool:
		b, err := strconv.ParseBool(literal)
		if err != nil {
			return 0, evalErrorf("cannot coerce literal %q to bool: %v", literal, err)
		}
		if v == b {
			return 0, nil
		}
		if !v {
			return -1, nil
		}
		return 1, nil
	default:
		return 0, evalErrorf("cannot compare value of type %T", parsed)
	}
}

func cmpOrdered[T uint64 | int64 | float64](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// ComparisonList is the AND of its comparisons.
type ComparisonList []MatchCriteria

func (l ComparisonList) Evaluate(pkt *telemetry.Packet, current any) (bool, error) {
	for _, c := range l {
		ok, err := c.Evaluate(pkt, current)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

// Condition is a BooleanExpression leaf: parameter vs parameter or
// parameter vs fixed value, with per-side calibration selection.
type Condition struct {
	LeftParam          string
	LeftUseCalibrated  bool
	Operator           Operator
	RightParam         string // empty when RightValue is used
	RightUseCalibrated bool
	RightValue         string
}

func (c *Condition) Evaluate(pkt *telemetry.Packet, _ any) (bool, error) {
	left, err := lookupComparand(pkt, c.LeftParam, c.LeftUseCalibrated)
	if err != nil {
		return false, err
	}

	if c.RightParam != "" {
		right, err := lookupComparand(pkt, c.RightParam, c.RightUseCalibrated)
		if err != nil {
			return false, err
		}
		cmp, err := compareValues(left, right)
		if err != nil {
			return false, err
		}
		return c.Operator.apply(cmp), nil
	}

	cmp, err := compareWithLiteral(left, c.RightValue)
	if err != nil {
		return false, err
	}
	return c.Operator.apply(cmp), nil
}

func lookupComparand(pkt *telemetry.Packet, name string, useCalibrated bool) (any, error) {
	v, ok := pkt.Get(name)
	if !ok {
		return nil, evalErrorf("condition references parameter %q which has not been parsed", name)
	}
	if useCalibrated && v.Calibrated != nil {
		return v.Calibrated, nil
	}
	return v.Raw, nil
}

// compareValues compares two context values, promoting mixed numeric
// types to float64.
func compareValues(a, b any) (int, error) {
	if as, aok := a.(string); aok {
		bs, bok := b.(string)
		if !bok {
			return 0, evalErrorf("cannot compare string with %T", b)
		}
		return strings.Compare(as, bs), nil
	}
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if !aok || !bok {
		return 0, evalErrorf("cannot compare values of types %T and %T", a, b)
	}
	return cmpOrdered(af, bf), nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case uint64:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

// Anded is the conjunction node of a BooleanExpression tree.
type Anded struct {
	Conditions []*Condition
	Ors        []*Ored
}

// Ored is the disjunction node of a BooleanExpression tree.
type Ored struct {
	Conditions []*Condition
	Ands       []*Anded
}

// BooleanExpression is a tree of ANDed/ORed conditions.
type BooleanExpression struct {
	// Exactly one of the three is set.
	Condition *Condition
	Anded     *Anded
	Ored      *Ored
}

func (b *BooleanExpression) Evaluate(pkt *telemetry.Packet, current any) (bool, error) {
	switch {
	case b.Condition != nil:
		return b.Condition.Evaluate(pkt, current)
	case b.Anded != nil:
		return evalAnded(b.Anded, pkt)
	case b.Ored != nil:
		return evalOred(b.Ored, pkt)
	}
	return false, evalErrorf("empty boolean expression")
}

func evalAnded(a *Anded, pkt *telemetry.Packet) (bool, error) {
	for _, c := range a.Conditions {
		ok, err := c.Evaluate(pkt, nil)
		if err != nil || !ok {
			return false, err
		}
	}
	for _, o := range a.Ors {
		ok, err := evalOred(o, pkt)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func evalOred(o *Ored, pkt *telemetry.Packet) (bool, error) {
	for _, c := range o.Conditions {
		ok, err := c.Evaluate(pkt, nil)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	for _, a := range o.Ands {
		ok, err := evalAnded(a, pkt)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// DiscreteLookup pairs match criteria with a value to produce when the
// criteria hold.
type DiscreteLookup struct {
	Criteria ComparisonList
	Value    float64
}

// EvaluateLookups scans lookups in order and returns the value of the
// first whose criteria match.
func EvaluateLookups(lookups []DiscreteLookup, pkt *telemetry.Packet, current any) (float64, bool, error) {
	for _, l := range lookups {
		ok, err := l.Criteria.Evaluate(pkt, current)
		if err != nil {
			return 0, false, err
		}
		if ok {
			return l.Value, true, nil
		}
	}
	return 0, false, nil
}
