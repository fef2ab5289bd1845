package xtce

import (
	"sort"

	"github.com/medley56/space-packet-parser/internal/telemetry"
)

// Calibrator maps a raw encoded value to an engineering-units value.
type Calibrator interface {
	Calibrate(x float64) (float64, error)
}

// PolynomialTerm is one coefficient·xⁿ term.
type PolynomialTerm struct {
	Coefficient float64
	Exponent    int
}

// PolynomialCalibrator evaluates y = Σ cᵢ·xⁱ.
type PolynomialCalibrator struct {
	Terms []PolynomialTerm
}

func (p *PolynomialCalibrator) Calibrate(x float64) (float64, error) {
	var y float64
	for _, t := range p.Terms {
		y += t.Coefficient * intPow(x, t.Exponent)
	}
	return y, nil
}

func intPow(x float64, n int) float64 {
	if n < 0 {
		return 1 / intPow(x, -n)
	}
	y := 1.0
	for ; n > 0; n-- {
		y *= x
	}
	return y
}

// SplinePoint is one (raw, calibrated) knot.
type SplinePoint struct {
	Raw        float64
	Calibrated float64
}

// SplineCalibrator interpolates between ordered knots. Order 0 uses the
// nearest lower knot, order 1 interpolates linearly. When Extrapolate
// is false a query outside the knot range is an evaluation error;
// order-0 extrapolation clamps to the end knots, order-1 extends the
// end segments.
type SplineCalibrator struct {
	Order       int
	Extrapolate bool
	Points      []SplinePoint // sorted ascending by Raw at load time
}

func (s *SplineCalibrator) Calibrate(x float64) (float64, error) {
	pts := s.Points
	if len(pts) < 2 {
		return 0, evalErrorf("spline calibrator requires at least two points")
	}
	lo, hi := pts[0].Raw, pts[len(pts)-1].Raw
	if x < lo || x > hi {
		if !s.Extrapolate {
			return 0, evalErrorf("spline query %v outside knot range [%v, %v] and extrapolation is disabled", x, lo, hi)
		}
		switch {
		case s.Order == 0 && x < lo:
			return pts[0].Calibrated, nil
		case s.Order == 0:
			return pts[len(pts)-1].Calibrated, nil
		case x < lo:
			return linearThrough(x, pts[0], pts[1]), nil
		default:
			return linearThrough(x, pts[len(pts)-2], pts[len(pts)-1]), nil
		}
	}

	// First knot strictly greater than x; the segment is [i-1, i].
	i := sort.Search(len(pts), func(j int) bool { return pts[j].Raw > x })
	if i == 0 {
		i = 1
	}
	if i == len(pts) {
		i = len(pts) - 1
	}
	if s.Order == 0 {
		return pts[i-1].Calibrated, nil
	}
	return linearThrough(x, pts[i-1], pts[i]), nil
}

func linearThrough(x float64, p0, p1 SplinePoint) float64 {
	slope := (p1.Calibrated - p0.Calibrated) / (p1.Raw - p0.Raw)
	return p0.Calibrated + slope*(x-p0.Raw)
}

// ContextCalibrator pairs match criteria with a calibrator; the first
// context whose criteria match wins.
type ContextCalibrator struct {
	Criteria   ComparisonList
	Calibrator Calibrator
}

// applyCalibration runs context calibrators then the default calibrator
// against a raw numeric value. Returns (calibrated, applied, error).
// current is the raw value itself, made available to context
// comparisons that reference the parameter being calibrated.
func applyCalibration(raw float64, current any, contexts []ContextCalibrator, def Calibrator, pkt *telemetry.Packet) (float64, bool, error) {
	for _, cc := range contexts {
		ok, err := cc.Criteria.Evaluate(pkt, current)
		if err != nil {
			return 0, false, err
		}
		if ok {
			y, err := cc.Calibrator.Calibrate(raw)
			return y, err == nil, err
		}
	}
	if def != nil {
		y, err := def.Calibrate(raw)
		return y, err == nil, err
	}
	return 0, false, nil
}
