package params

import (
	"fmt"
	"math"
)

// eccMax keeps the eccentricity strictly below one during the search, as an
// orbit with e = 1 is no longer bound.
const eccMax = 1 - 1e-5

// Space maps between the full physical parameter vector and the reduced
// vector of free, mode-active parameters that the optimizer searches. Fixed
// slots always retain the guess captured at construction.
type Space struct {
	guess  Parameters
	flags  FreeFlags
	mode   FitMode
	hasAS  bool
	active [NumSlots]bool
	free   []Slot
}

// NewSpace builds the reduced parameter space for a fit. It fails with
// ErrDegenerate when no slot is both free and active in the given mode.
func NewSpace(guess Parameters, flags FreeFlags, mode FitMode, hasAstrometry bool) (*Space, error) {
	if err := guess.Validate(); err != nil {
		return nil, fmt.Errorf("parameter guess: %w", err)
	}
	if hasAstrometry && guess.Distance <= 0 {
		return nil, fmt.Errorf("%w: distance %v must be positive when astrometry is fitted",
			ErrInvalid, guess.Distance)
	}
	active := ActiveSlots(mode, hasAstrometry)
	var free []Slot
	for s := Slot(0); s < NumSlots; s++ {
		if flags[s] && active[s] {
			free = append(free, s)
		}
	}
	if len(free) == 0 {
		return nil, ErrDegenerate
	}
	return &Space{
		guess:  guess,
		flags:  flags,
		mode:   mode,
		hasAS:  hasAstrometry,
		active: active,
		free:   free,
	}, nil
}

// Dim returns the number of free dimensions.
func (sp *Space) Dim() int { return len(sp.free) }

// Mode returns the fit mode the space was constructed for.
func (sp *Space) Mode() FitMode { return sp.mode }

// HasAstrometry reports whether astrometric data participates in the fit.
func (sp *Space) HasAstrometry() bool { return sp.hasAS }

// Guess returns the full parameter vector captured at construction.
func (sp *Space) Guess() Parameters { return sp.guess }

// FreeSlots returns the free, mode-active slots in canonical order.
func (sp *Space) FreeSlots() []Slot {
	out := make([]Slot, len(sp.free))
	copy(out, sp.free)
	return out
}

// Reduce extracts the free components of a full parameter vector.
func (sp *Space) Reduce(p Parameters) []float64 {
	vec := p.Vector()
	out := make([]float64, len(sp.free))
	for i, s := range sp.free {
		out[i] = vec[s]
	}
	return out
}

// Expand rebuilds a full parameter vector from a reduced one. Fixed and
// mode-inactive slots come from the original guess, never from the
// optimizer's candidate.
func (sp *Space) Expand(x []float64) Parameters {
	vec := sp.guess.Vector()
	for i, s := range sp.free {
		vec[s] = x[i]
	}
	return FromVector(vec)
}

// lowerBounds holds the physical lower bound per slot, or -Inf when the slot
// is unbounded below. Matches the bounds the search is allowed to explore.
var lowerBounds = func() [NumSlots]float64 {
	var lo [NumSlots]float64
	for i := range lo {
		lo[i] = math.Inf(-1)
	}
	lo[SlotEcc] = 0
	lo[SlotPeriod] = 0
	lo[SlotDistance] = 0
	lo[SlotK1] = 0
	lo[SlotK2] = 0
	lo[SlotMTot] = 0
	return lo
}()

// Clamp projects a reduced candidate onto the physically allowed region.
// The eccentricity additionally gets an upper bound just below one.
func (sp *Space) Clamp(x []float64) []float64 {
	out := make([]float64, len(x))
	for i, s := range sp.free {
		v := x[i]
		if lo := lowerBounds[s]; v < lo {
			v = lo
		}
		if s == SlotEcc && v > eccMax {
			v = eccMax
		}
		out[i] = v
	}
	return out
}

// InRange reports whether a reduced candidate lies inside the allowed
// physical region. The sampler uses this as its flat prior support: e in
// [0,1), positive period, and positive distance when astrometry is fitted.
func (sp *Space) InRange(x []float64) bool {
	for i, s := range sp.free {
		v := x[i]
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
		switch s {
		case SlotEcc:
			if v < 0 || v >= 1 {
				return false
			}
		case SlotPeriod:
			if v <= 0 {
				return false
			}
		case SlotDistance:
			if sp.hasAS && v <= 0 {
				return false
			}
		case SlotK1, SlotK2, SlotMTot:
			if v < 0 {
				return false
			}
		}
	}
	return true
}
