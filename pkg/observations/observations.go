// Package observations defines the immutable observation containers that
// feed a fit: radial-velocity time series for one or both components and
// relative astrometric positions with error ellipses.
package observations

import (
	"errors"
	"fmt"
	"math"

	"github.com/astrokit/orbitfit/pkg/constants"
	"github.com/astrokit/orbitfit/pkg/params"
)

// ErrInvalid indicates malformed or inconsistent observation data. It is
// detected eagerly at DataSet construction.
var ErrInvalid = errors.New("invalid observation data")

// Component distinguishes the two stars of the binary.
type Component int

const (
	Primary Component = iota
	Secondary
)

func (c Component) String() string {
	if c == Primary {
		return "primary"
	}
	return "secondary"
}

// RV is a single radial-velocity measurement.
type RV struct {
	Epoch    float64 // observation time (day)
	Velocity float64 // km/s
	Sigma    float64 // 1-sigma uncertainty (km/s)
}

// AS is a single relative astrometric measurement with its error ellipse.
// The position angle of the ellipse's major axis is east of north, degrees.
type AS struct {
	Epoch float64
	East  float64 // eastward separation (mas)
	North float64 // northward separation (mas)
	Major float64 // error-ellipse semi-major axis (mas)
	Minor float64 // error-ellipse semi-minor axis (mas)
	Angle float64 // major-axis position angle (deg)
}

// ASFromPolar builds an astrometric observation from separation /
// position-angle form. The position angle is east of north, degrees.
func ASFromPolar(epoch, sep, pa, major, minor, angle float64) AS {
	sinPA, cosPA := math.Sincos(pa * constants.Deg2Rad)
	return AS{
		Epoch: epoch,
		East:  sep * sinPA,
		North: sep * cosPA,
		Major: major,
		Minor: minor,
		Angle: angle,
	}
}

// DataSet is a read-only collection of all observations participating in a
// fit. Construct once from parsed input; it is never mutated afterwards.
type DataSet struct {
	rv1 []RV
	rv2 []RV
	as  []AS
}

// NewDataSet validates and captures the observation collections. Any of the
// three may be empty, but not all of them.
func NewDataSet(rv1, rv2 []RV, as []AS) (*DataSet, error) {
	if len(rv1) == 0 && len(rv2) == 0 && len(as) == 0 {
		return nil, fmt.Errorf("%w: no observations supplied", ErrInvalid)
	}
	for i, o := range rv1 {
		if err := validateRV(o); err != nil {
			return nil, fmt.Errorf("primary RV observation %d: %w", i, err)
		}
	}
	for i, o := range rv2 {
		if err := validateRV(o); err != nil {
			return nil, fmt.Errorf("secondary RV observation %d: %w", i, err)
		}
	}
	for i, o := range as {
		if err := validateAS(o); err != nil {
			return nil, fmt.Errorf("astrometric observation %d: %w", i, err)
		}
	}
	d := &DataSet{
		rv1: make([]RV, len(rv1)),
		rv2: make([]RV, len(rv2)),
		as:  make([]AS, len(as)),
	}
	copy(d.rv1, rv1)
	copy(d.rv2, rv2)
	copy(d.as, as)
	return d, nil
}

func validateRV(o RV) error {
	for _, v := range []float64{o.Epoch, o.Velocity, o.Sigma} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: non-finite value", ErrInvalid)
		}
	}
	if o.Sigma <= 0 {
		return fmt.Errorf("%w: uncertainty %v must be positive", ErrInvalid, o.Sigma)
	}
	return nil
}

func validateAS(o AS) error {
	for _, v := range []float64{o.Epoch, o.East, o.North, o.Major, o.Minor, o.Angle} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: non-finite value", ErrInvalid)
		}
	}
	if o.Minor <= 0 || o.Major < o.Minor {
		return fmt.Errorf("%w: error ellipse requires major (%v) >= minor (%v) > 0",
			ErrInvalid, o.Major, o.Minor)
	}
	return nil
}

// RV1 returns the primary's RV observations. The slice must not be modified.
func (d *DataSet) RV1() []RV { return d.rv1 }

// RV2 returns the secondary's RV observations. The slice must not be modified.
func (d *DataSet) RV2() []RV { return d.rv2 }

// AS returns the astrometric observations. The slice must not be modified.
func (d *DataSet) AS() []AS { return d.as }

// HasAstrometry reports whether any astrometric observations are present.
func (d *DataSet) HasAstrometry() bool { return len(d.as) > 0 }

// ResidualLen is the length of the residual vector this dataset produces:
// one entry per RV observation and two per astrometric observation.
func (d *DataSet) ResidualLen() int {
	return len(d.rv1) + len(d.rv2) + 2*len(d.as)
}

// Mode derives the fit mode from which collections are non-empty.
// Secondary-only RV data has no supported mode.
func (d *DataSet) Mode() (params.FitMode, error) {
	switch {
	case len(d.rv1) > 0 && len(d.rv2) > 0:
		return params.SB2, nil
	case len(d.rv1) > 0:
		return params.SB1, nil
	case len(d.rv2) > 0:
		return 0, fmt.Errorf("%w: secondary RV data without primary RV data", ErrInvalid)
	case len(d.as) > 0:
		return params.ASOnly, nil
	default:
		return 0, fmt.Errorf("%w: no observations supplied", ErrInvalid)
	}
}
