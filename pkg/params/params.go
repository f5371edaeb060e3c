// Package params defines the orbital parameter vector for a binary system,
// the free/fixed flags that drive a fit, and the reduced parameter space the
// minimizer and sampler actually search.
package params

import (
	"errors"
	"fmt"
	"math"
)

// Slot identifies one component of the parameter vector.
type Slot int

// Parameter slots, in canonical order.
const (
	SlotEcc Slot = iota // eccentricity
	SlotIncl
	SlotOmega // argument of periastron
	SlotNode  // longitude of the ascending node
	SlotT0
	SlotPeriod
	SlotDistance
	SlotK1
	SlotK2
	SlotGamma1
	SlotGamma2
	SlotMTot

	// NumSlots is the total number of parameter slots.
	NumSlots
)

var slotNames = [NumSlots]string{
	"e", "i", "omega", "Omega", "t0", "p", "d", "k1", "k2", "gamma1",
	"gamma2", "mt",
}

// String returns the conventional short name of the slot.
func (s Slot) String() string {
	if s < 0 || s >= NumSlots {
		return fmt.Sprintf("slot(%d)", int(s))
	}
	return slotNames[s]
}

// SlotByName resolves a conventional short name to a slot. The ascending
// node additionally answers to "node", for config keys that are case-folded
// and would otherwise collide with the argument of periastron.
func SlotByName(name string) (Slot, error) {
	if name == "node" {
		return SlotNode, nil
	}
	for s, n := range slotNames {
		if n == name {
			return Slot(s), nil
		}
	}
	return 0, fmt.Errorf("%w: unknown parameter %q", ErrInvalid, name)
}

// ErrInvalid indicates malformed or inconsistent parameter input.
var ErrInvalid = errors.New("invalid parameter input")

// ErrDegenerate indicates a reduced parameter space with no free dimensions.
var ErrDegenerate = errors.New("degenerate parameter space: no free parameters")

// Parameters is the physical parameter vector of a binary orbit. Angles are
// in degrees, epochs and periods in days, velocities in km/s, the distance in
// parsec and the total mass in solar masses.
type Parameters struct {
	Ecc      float64 // eccentricity
	Incl     float64 // inclination (deg)
	Omega    float64 // argument of periastron (deg)
	Node     float64 // longitude of the ascending node, east of north (deg)
	T0       float64 // epoch of periastron passage (day)
	Period   float64 // orbital period (day)
	Distance float64 // distance to the system (pc)
	K1       float64 // primary RV semiamplitude (km/s)
	K2       float64 // secondary RV semiamplitude (km/s)
	Gamma1   float64 // primary systemic velocity (km/s)
	Gamma2   float64 // secondary systemic velocity (km/s)
	MTot     float64 // total dynamical mass (Msun)
}

// Vector returns the parameters as a slot-indexed array.
func (p Parameters) Vector() [NumSlots]float64 {
	return [NumSlots]float64{
		p.Ecc, p.Incl, p.Omega, p.Node, p.T0, p.Period, p.Distance,
		p.K1, p.K2, p.Gamma1, p.Gamma2, p.MTot,
	}
}

// FromVector builds Parameters from a slot-indexed array.
func FromVector(v [NumSlots]float64) Parameters {
	return Parameters{
		Ecc: v[SlotEcc], Incl: v[SlotIncl], Omega: v[SlotOmega],
		Node: v[SlotNode], T0: v[SlotT0], Period: v[SlotPeriod],
		Distance: v[SlotDistance], K1: v[SlotK1], K2: v[SlotK2],
		Gamma1: v[SlotGamma1], Gamma2: v[SlotGamma2], MTot: v[SlotMTot],
	}
}

// Get returns the value of a single slot.
func (p Parameters) Get(s Slot) float64 {
	return p.Vector()[s]
}

// Set returns a copy of p with slot s replaced by v.
func (p Parameters) Set(s Slot, v float64) Parameters {
	vec := p.Vector()
	vec[s] = v
	return FromVector(vec)
}

// Validate checks the structural invariants that hold in every fit mode.
func (p Parameters) Validate() error {
	vec := p.Vector()
	for s, v := range vec {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: parameter %s is not finite", ErrInvalid, Slot(s))
		}
	}
	if p.Ecc < 0 || p.Ecc >= 1 {
		return fmt.Errorf("%w: eccentricity %v outside [0,1)", ErrInvalid, p.Ecc)
	}
	if p.Period <= 0 {
		return fmt.Errorf("%w: period %v must be positive", ErrInvalid, p.Period)
	}
	return nil
}

// Normalized returns a copy with the angular parameters reduced to
// [0, 360) degrees.
func (p Parameters) Normalized() Parameters {
	norm := func(a float64) float64 {
		a = math.Mod(a, 360)
		if a < 0 {
			a += 360
		}
		return a
	}
	p.Incl = norm(p.Incl)
	p.Omega = norm(p.Omega)
	p.Node = norm(p.Node)
	return p
}

// FreeFlags marks which slots the optimizer may vary.
type FreeFlags [NumSlots]bool

// Count returns the number of slots flagged free.
func (f FreeFlags) Count() int {
	n := 0
	for _, b := range f {
		if b {
			n++
		}
	}
	return n
}

// FitMode identifies which datasets constrain the fit and therefore which
// parameter slots are physically meaningful.
type FitMode int

const (
	// SB2 is a double-lined spectroscopic fit: both components have RV data.
	SB2 FitMode = iota
	// SB1 is a single-lined spectroscopic fit: only the primary has RV data.
	SB1
	// ASOnly is a purely astrometric fit.
	ASOnly
)

func (m FitMode) String() string {
	switch m {
	case SB2:
		return "SB2"
	case SB1:
		return "SB1"
	case ASOnly:
		return "AS-only"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ActiveSlots reports which parameter slots are physically meaningful for a
// mode, given whether astrometric data is present. Inactive slots are held
// at their guess value regardless of free flags.
func ActiveSlots(mode FitMode, hasAstrometry bool) [NumSlots]bool {
	var active [NumSlots]bool
	for i := range active {
		active[i] = true
	}
	switch mode {
	case SB2:
		if !hasAstrometry {
			active[SlotDistance] = false
			active[SlotIncl] = false
			active[SlotNode] = false
			active[SlotMTot] = false
		}
	case SB1:
		active[SlotK2] = false
		active[SlotGamma2] = false
		active[SlotDistance] = false
		if !hasAstrometry {
			active[SlotIncl] = false
			active[SlotNode] = false
			active[SlotMTot] = false
		}
	case ASOnly:
		active[SlotK1] = false
		active[SlotGamma1] = false
		active[SlotK2] = false
		active[SlotGamma2] = false
	}
	return active
}
