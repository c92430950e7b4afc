package sensor

import "fmt"

// Calibration holds the two reference (reading, value) pairs defining
// the affine conversion from raw readings to the physical quantity.
//
// The upstream constants label V1 as the reading at the high value and
// V2 as the reading at the low value, but the conversion formula pairs
// them the other way around: with the reference constants
// (TLow=0, THigh=50, V1=2100, V2=1558) a raw reading of 2100 converts
// to 0.0 and 1558 converts to 50.0. The formula's algebra is
// authoritative here; the labels are known to disagree and the
// mismatch is flagged to the system owner rather than silently
// corrected. Tests pin the algebraic pairing.
type Calibration struct {
	TLow  float64
	THigh float64
	V1    float64
	V2    float64
}

// Converter maps raw readings to the calibrated quantity via a
// two-point affine transform. The slope is computed once at
// construction; Convert performs no clamping, so readings outside the
// calibrated range extrapolate.
type Converter struct {
	tLow  float64
	v1    float64
	slope float64
}

// NewConverter builds a Converter from cal. It fails if the reference
// pairs are degenerate (equal values or equal readings), which would
// make the transform undefined.
func NewConverter(cal Calibration) (*Converter, error) {
	if cal.THigh == cal.TLow {
		return nil, fmt.Errorf("calibration reference values are equal (%v)", cal.TLow)
	}
	if cal.V2 == cal.V1 {
		return nil, fmt.Errorf("calibration reference readings are equal (%v)", cal.V1)
	}
	return &Converter{
		tLow:  cal.TLow,
		v1:    cal.V1,
		slope: (cal.V2 - cal.V1) / (cal.THigh - cal.TLow),
	}, nil
}

// Convert maps one raw reading to the physical quantity.
func (c *Converter) Convert(raw uint16) float64 {
	return (float64(raw)-c.v1)/c.slope + c.tLow
}
