package orbit

import (
	"fmt"
	"math"

	"github.com/astrokit/orbitfit/pkg/constants"
	"github.com/astrokit/orbitfit/pkg/params"
)

// System precomputes everything needed to evaluate the model observables of
// a binary at arbitrary epochs. A System is immutable after construction and
// safe for concurrent use.
type System struct {
	par    params.Parameters
	solver Solver

	ecc      float64
	sqOneMe2 float64 // sqrt(1 - e^2)
	t0       float64
	period   float64

	primary   component
	secondary component

	// Thiele-Innes constants of the relative orbit, in mas.
	thA, thB, thF, thG float64

	// apparent semi-major axis of the relative orbit (mas)
	aMas float64
}

// component holds the per-star pieces of the radial velocity prediction.
type component struct {
	k, gamma   float64
	sino, coso float64
}

func (c component) velocity(trueAnom, ecc float64) float64 {
	// RV = gamma + k*(cos(omega+nu) + e*cos(omega))
	return c.gamma + c.k*(math.Cos(trueAnom)*c.coso-math.Sin(trueAnom)*c.sino+ecc*c.coso)
}

// NewSystem validates the parameters and precomputes the trigonometric
// factors shared by all epochs. The primary's argument of periastron is
// offset 180 degrees from the relative orbit's, per the usual convention
// that omega describes the secondary.
func NewSystem(p params.Parameters, solver Solver) (*System, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	incl := p.Incl * constants.Deg2Rad
	node := p.Node * constants.Deg2Rad
	omega := p.Omega * constants.Deg2Rad
	_, cosi := math.Sincos(incl)
	sinO, cosO := math.Sincos(node)
	sino, coso := math.Sincos(omega)

	s := &System{
		par:      p,
		solver:   solver,
		ecc:      p.Ecc,
		sqOneMe2: math.Sqrt(1 - p.Ecc*p.Ecc),
		t0:       p.T0,
		period:   p.Period,
		secondary: component{
			k: math.Abs(p.K2), gamma: p.Gamma2, sino: sino, coso: coso,
		},
	}

	// primary: omega - 180 deg, so sin and cos both flip sign
	s.primary = component{
		k: math.Abs(p.K1), gamma: p.Gamma1, sino: -sino, coso: -coso,
	}

	// Apparent size of the relative orbit from the total mass via Kepler's
	// third law, projected to the sky using the distance.
	if p.Distance > 0 {
		pSec := p.Period * constants.Day2Sec
		aKM := math.Cbrt(p.MTot * constants.MSun * constants.G * pSec * pSec /
			(4 * math.Pi * math.Pi))
		s.aMas = aKM / (p.Distance * constants.PC2KM) * constants.Rad2Mas
	}

	s.thA = s.aMas * (cosO*coso - sinO*sino*cosi)
	s.thB = s.aMas * (sinO*coso + cosO*sino*cosi)
	s.thF = s.aMas * (-cosO*sino - sinO*coso*cosi)
	s.thG = s.aMas * (-sinO*sino + cosO*coso*cosi)

	return s, nil
}

// Params returns the parameters the system was built from.
func (s *System) Params() params.Parameters { return s.par }

// ApparentSemiMajorAxis returns the apparent semi-major axis of the relative
// orbit in mas, as derived from the total mass and distance.
func (s *System) ApparentSemiMajorAxis() float64 { return s.aMas }

// Phase reduces an epoch to orbital phase in [0, 1).
func (s *System) Phase(t float64) float64 {
	ph := math.Mod((t-s.t0)/s.period, 1)
	if ph < 0 {
		ph++
	}
	return ph
}

// EccentricAnomaly solves Kepler's equation at epoch t.
func (s *System) EccentricAnomaly(t float64) (float64, error) {
	e, err := s.solver.Solve(2*math.Pi*s.Phase(t), s.ecc)
	if err != nil {
		return 0, fmt.Errorf("epoch %v: %w", t, err)
	}
	return e, nil
}

// TrueAnomaly converts an eccentric anomaly to a true anomaly.
func (s *System) TrueAnomaly(eccAnom float64) float64 {
	return 2 * math.Atan2(
		math.Sqrt(1+s.ecc)*math.Sin(eccAnom/2),
		math.Sqrt(1-s.ecc)*math.Cos(eccAnom/2))
}

// PrimaryVelocity predicts the primary's radial velocity (km/s) at epoch t.
func (s *System) PrimaryVelocity(t float64) (float64, error) {
	ea, err := s.EccentricAnomaly(t)
	if err != nil {
		return 0, err
	}
	return s.primary.velocity(s.TrueAnomaly(ea), s.ecc), nil
}

// SecondaryVelocity predicts the secondary's radial velocity (km/s) at epoch t.
func (s *System) SecondaryVelocity(t float64) (float64, error) {
	ea, err := s.EccentricAnomaly(t)
	if err != nil {
		return 0, err
	}
	return s.secondary.velocity(s.TrueAnomaly(ea), s.ecc), nil
}

// RelativePosition predicts the separation (mas) of the secondary relative
// to the primary at epoch t, east of north on the sky. A single Kepler solve
// feeds both coordinates.
func (s *System) RelativePosition(t float64) (east, north float64, err error) {
	ea, err := s.EccentricAnomaly(t)
	if err != nil {
		return 0, 0, err
	}
	x := math.Cos(ea) - s.ecc
	y := s.sqOneMe2 * math.Sin(ea)
	north = s.thA*x + s.thF*y
	east = s.thB*x + s.thG*y
	return east, north, nil
}

// Separation returns the total angular separation (mas) at epoch t.
func (s *System) Separation(t float64) (float64, error) {
	e, n, err := s.RelativePosition(t)
	if err != nil {
		return 0, err
	}
	return math.Hypot(e, n), nil
}

// PositionAngle returns the position angle east of north (deg, in [0,360))
// of the secondary at epoch t.
func (s *System) PositionAngle(t float64) (float64, error) {
	e, n, err := s.RelativePosition(t)
	if err != nil {
		return 0, err
	}
	pa := math.Atan2(e, n) * constants.Rad2Deg
	if pa < 0 {
		pa += 360
	}
	return pa, nil
}

// VelocityCurve samples both components' radial velocities over one period
// starting at t0, for an external plotting collaborator. n must be positive.
func (s *System) VelocityCurve(n int) (times, rv1, rv2 []float64, err error) {
	if n <= 0 {
		return nil, nil, nil, fmt.Errorf("curve sample count %d must be positive", n)
	}
	times = make([]float64, n)
	rv1 = make([]float64, n)
	rv2 = make([]float64, n)
	for i := 0; i < n; i++ {
		t := s.t0 + s.period*float64(i)/float64(n)
		times[i] = t
		if rv1[i], err = s.PrimaryVelocity(t); err != nil {
			return nil, nil, nil, err
		}
		if rv2[i], err = s.SecondaryVelocity(t); err != nil {
			return nil, nil, nil, err
		}
	}
	return times, rv1, rv2, nil
}
