// Package orbit implements the Keplerian two-body model: solving Kepler's
// equation and predicting radial velocities and relative astrometric
// positions for a binary system at arbitrary epochs.
package orbit

import (
	"errors"
	"fmt"
	"math"
)

// ErrNonConvergence indicates the Kepler solver exhausted its iteration
// budget without meeting the requested tolerance.
var ErrNonConvergence = errors.New("kepler solver did not converge")

// Solver finds the eccentric anomaly from a mean anomaly by Newton-Raphson
// iteration on f(E) = E - e*sin(E) - M. The zero value is not usable; use
// DefaultSolver or construct with explicit settings.
type Solver struct {
	// Tolerance is the bound on |E - e*sin(E) - M| at which iteration stops.
	Tolerance float64
	// MaxIterations caps the Newton steps before reporting non-convergence.
	MaxIterations int
}

// DefaultSolver converges to near machine precision for any bound orbit.
var DefaultSolver = Solver{Tolerance: 1e-12, MaxIterations: 50}

// Solve returns the eccentric anomaly E for mean anomaly m (radians) and
// eccentricity ecc. It never returns a poor estimate silently: if the
// iteration budget runs out first, the error wraps ErrNonConvergence.
func (s Solver) Solve(m, ecc float64) (float64, error) {
	if ecc < 0 || ecc >= 1 {
		return 0, fmt.Errorf("%w: eccentricity %v outside [0,1)", ErrNonConvergence, ecc)
	}
	if s.Tolerance <= 0 || s.MaxIterations <= 0 {
		return 0, fmt.Errorf("%w: solver not configured", ErrNonConvergence)
	}

	// Reduce to [0, 2pi) so the Danby-style seed stays well behaved.
	m = math.Mod(m, 2*math.Pi)
	if m < 0 {
		m += 2 * math.Pi
	}

	// Seed with M; nudge toward the periastron side for high eccentricity
	// where the plain seed converges slowly.
	e0 := m
	if ecc > 0.8 {
		e0 = m + 0.85*ecc*sign(math.Sin(m))
	}

	e := e0
	for i := 0; i < s.MaxIterations; i++ {
		f := e - ecc*math.Sin(e) - m
		if math.Abs(f) < s.Tolerance {
			return e, nil
		}
		e -= f / (1 - ecc*math.Cos(e))
	}
	return 0, fmt.Errorf("%w after %d iterations (M=%v, e=%v)",
		ErrNonConvergence, s.MaxIterations, m, ecc)
}

func sign(x float64) float64 {
	if x < 0 {
		return -1
	}
	return 1
}
