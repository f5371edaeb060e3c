// Package derived computes physical quantities (component masses, the mass
// function, semi-major axes) from a fitted orbital parameter vector. Which
// quantities are determined depends on the fit mode.
package derived

import (
	"errors"
	"fmt"
	"math"

	"github.com/astrokit/orbitfit/pkg/constants"
	"github.com/astrokit/orbitfit/pkg/params"
)

// ErrUndetermined indicates the active fit mode does not constrain the
// requested quantity.
var ErrUndetermined = errors.New("quantity undetermined in active fit mode")

// Calculator derives physical quantities for one fitted parameter vector.
type Calculator struct {
	p     params.Parameters
	mode  params.FitMode
	hasAS bool
}

// NewCalculator captures the fit result the quantities derive from.
func NewCalculator(p params.Parameters, mode params.FitMode, hasAstrometry bool) *Calculator {
	return &Calculator{p: p, mode: mode, hasAS: hasAstrometry}
}

// periodSec returns the orbital period in seconds.
func (c *Calculator) periodSec() float64 {
	return c.p.Period * constants.Day2Sec
}

// massPrefactor is the common factor (1-e^2)^(3/2) * P / (2 pi G |sin i|^3),
// which multiplied by velocity-cubed combinations yields masses in kg.
func (c *Calculator) massPrefactor() float64 {
	sini := math.Abs(math.Sin(c.p.Incl * constants.Deg2Rad))
	return math.Pow(1-c.p.Ecc*c.p.Ecc, 1.5) * c.periodSec() /
		(2 * math.Pi * constants.G * sini * sini * sini)
}

// PrimaryMass returns the primary's mass in solar masses. Determined only by
// a double-lined (SB2) fit.
func (c *Calculator) PrimaryMass() (float64, error) {
	if c.mode != params.SB2 {
		return 0, fmt.Errorf("%w: primary mass requires both RV semiamplitudes (%s)",
			ErrUndetermined, c.mode)
	}
	k1, k2 := math.Abs(c.p.K1), math.Abs(c.p.K2)
	return c.massPrefactor() * (k1 + k2) * (k1 + k2) * k2 / constants.MSun, nil
}

// SecondaryMass returns the secondary's mass in solar masses. Determined
// only by a double-lined (SB2) fit.
func (c *Calculator) SecondaryMass() (float64, error) {
	if c.mode != params.SB2 {
		return 0, fmt.Errorf("%w: secondary mass requires both RV semiamplitudes (%s)",
			ErrUndetermined, c.mode)
	}
	k1, k2 := math.Abs(c.p.K1), math.Abs(c.p.K2)
	return c.massPrefactor() * (k1 + k2) * (k1 + k2) * k1 / constants.MSun, nil
}

// TotalMass returns the system's total dynamical mass in solar masses: from
// the two semiamplitudes in SB2 mode, otherwise from the apparent orbit and
// distance via Kepler's third law when astrometry is present.
func (c *Calculator) TotalMass() (float64, error) {
	switch {
	case c.mode == params.SB2:
		k := math.Abs(c.p.K1) + math.Abs(c.p.K2)
		return c.massPrefactor() * k * k * k / constants.MSun, nil
	case c.hasAS:
		aKM, err := c.apparentOrbitKM()
		if err != nil {
			return 0, err
		}
		pSec := c.periodSec()
		return 4 * math.Pi * math.Pi * aKM * aKM * aKM /
			(constants.G * pSec * pSec) / constants.MSun, nil
	default:
		return 0, fmt.Errorf("%w: total mass requires either both semiamplitudes or astrometry (%s)",
			ErrUndetermined, c.mode)
	}
}

// MassFunction returns the spectroscopic mass function f(m) in solar masses,
// from the primary semiamplitude, period and eccentricity. It requires
// primary RV data.
func (c *Calculator) MassFunction() (float64, error) {
	if c.mode == params.ASOnly {
		return 0, fmt.Errorf("%w: mass function requires primary RV data (%s)",
			ErrUndetermined, c.mode)
	}
	k1 := math.Abs(c.p.K1)
	return math.Pow(1-c.p.Ecc*c.p.Ecc, 1.5) * k1 * k1 * k1 * c.periodSec() /
		(2 * math.Pi * constants.G) / constants.MSun, nil
}

// SemiMajorAxis returns the physical semi-major axis of the relative orbit
// in AU: from the semiamplitudes in SB2 mode, otherwise from the total mass
// and period when astrometry fixes the scale.
func (c *Calculator) SemiMajorAxis() (float64, error) {
	if c.mode == params.SB2 {
		sini := math.Abs(math.Sin(c.p.Incl * constants.Deg2Rad))
		if sini == 0 {
			return 0, fmt.Errorf("%w: semi-major axis diverges at zero inclination",
				ErrUndetermined)
		}
		k := math.Abs(c.p.K1) + math.Abs(c.p.K2)
		aKM := c.periodSec() * k * math.Sqrt(1-c.p.Ecc*c.p.Ecc) / (2 * math.Pi * sini)
		return aKM / constants.AU2KM, nil
	}
	if c.hasAS {
		aKM, err := c.apparentOrbitKM()
		if err != nil {
			return 0, err
		}
		return aKM / constants.AU2KM, nil
	}
	return 0, fmt.Errorf("%w: semi-major axis requires both semiamplitudes or astrometry (%s)",
		ErrUndetermined, c.mode)
}

// apparentOrbitKM is the semi-major axis (km) implied by the total mass and
// period through Kepler's third law.
func (c *Calculator) apparentOrbitKM() (float64, error) {
	if c.p.MTot <= 0 {
		return 0, fmt.Errorf("%w: total mass %v must be positive", ErrUndetermined, c.p.MTot)
	}
	pSec := c.periodSec()
	return math.Cbrt(c.p.MTot * constants.MSun * constants.G * pSec * pSec /
		(4 * math.Pi * math.Pi)), nil
}

// All returns every quantity the active mode determines, keyed by name.
// Undetermined quantities are simply absent.
func (c *Calculator) All() map[string]float64 {
	out := make(map[string]float64)
	if v, err := c.PrimaryMass(); err == nil {
		out["m1 (Msun)"] = v
	}
	if v, err := c.SecondaryMass(); err == nil {
		out["m2 (Msun)"] = v
	}
	if v, err := c.TotalMass(); err == nil {
		out["mtotal (Msun)"] = v
	}
	if v, err := c.MassFunction(); err == nil {
		out["f(m) (Msun)"] = v
	}
	if v, err := c.SemiMajorAxis(); err == nil {
		out["a (AU)"] = v
	}
	return out
}
