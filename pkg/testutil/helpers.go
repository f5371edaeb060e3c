// Package testutil provides common utility functions for testing.
package testutil

import (
	"testing"

	"github.com/astrokit/orbitfit/pkg/observations"
	"github.com/astrokit/orbitfit/pkg/orbit"
	"github.com/astrokit/orbitfit/pkg/params"
)

// Synthesize builds a noiseless dataset of n epochs spread over one orbital
// period of p, so the chi-squared surface over those observations has its
// minimum exactly at p. RV uncertainties are 0.5 km/s; astrometric error
// ellipses are circular with 0.5 mas axes.
func Synthesize(t *testing.T, p params.Parameters, n int, withRV2, withAS bool) *observations.DataSet {
	t.Helper()
	sys, err := orbit.NewSystem(p, orbit.DefaultSolver)
	if err != nil {
		t.Fatalf("NewSystem: %v", err)
	}
	var rv1, rv2 []observations.RV
	var as []observations.AS
	// slightly under one full period, so no epoch repeats the phase of t0
	denom := float64(n) - 0.7
	for i := 0; i < n; i++ {
		te := p.T0 + p.Period*float64(i)/denom
		v1, err := sys.PrimaryVelocity(te)
		if err != nil {
			t.Fatalf("PrimaryVelocity(%v): %v", te, err)
		}
		rv1 = append(rv1, observations.RV{Epoch: te, Velocity: v1, Sigma: 0.5})
		if withRV2 {
			v2, err := sys.SecondaryVelocity(te)
			if err != nil {
				t.Fatalf("SecondaryVelocity(%v): %v", te, err)
			}
			rv2 = append(rv2, observations.RV{Epoch: te, Velocity: v2, Sigma: 0.5})
		}
		if withAS {
			east, north, err := sys.RelativePosition(te)
			if err != nil {
				t.Fatalf("RelativePosition(%v): %v", te, err)
			}
			as = append(as, observations.AS{
				Epoch: te, East: east, North: north,
				Major: 0.5, Minor: 0.5, Angle: 0,
			})
		}
	}
	ds, err := observations.NewDataSet(rv1, rv2, as)
	if err != nil {
		t.Fatalf("NewDataSet: %v", err)
	}
	return ds
}

// FreeFlags marks the given slots free and everything else fixed.
func FreeFlags(slots ...params.Slot) params.FreeFlags {
	var f params.FreeFlags
	for _, s := range slots {
		f[s] = true
	}
	return f
}
