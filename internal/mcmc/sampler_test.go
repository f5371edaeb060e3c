package mcmc

import (
	"context"
	"errors"
	"math"
	"testing"

	"golang.org/x/exp/rand"

	"github.com/astrokit/orbitfit/pkg/orbit"
	"github.com/astrokit/orbitfit/pkg/params"
	"github.com/astrokit/orbitfit/pkg/residuals"
	"github.com/astrokit/orbitfit/pkg/testutil"
)

func truthParams() params.Parameters {
	return params.Parameters{
		Ecc:      0.4,
		Incl:     60,
		Omega:    45,
		Node:     120,
		T0:       100,
		Period:   365,
		Distance: 100,
		K1:       30,
		K2:       50,
		Gamma1:   0,
		Gamma2:   0,
		MTot:     25,
	}
}

func testSetup(t *testing.T, free ...params.Slot) (*residuals.Model, *params.Space) {
	t.Helper()
	truth := truthParams()
	ds := testutil.Synthesize(t, truth, 15, true, false)
	model, err := residuals.NewModel(ds, 1, orbit.DefaultSolver)
	if err != nil {
		t.Fatalf("NewModel: %v", err)
	}
	space, err := params.NewSpace(truth, testutil.FreeFlags(free...), params.SB2, false)
	if err != nil {
		t.Fatalf("NewSpace: %v", err)
	}
	return model, space
}

func TestSamplePosteriorBracketsOptimum(t *testing.T) {
	model, space := testSetup(t, params.SlotK1, params.SlotGamma1)
	eng := NewEngine(nil, Settings{
		Walkers: 10,
		Steps:   300,
		Burn:    100,
		Seed:    42,
	}, nil)

	res, err := eng.Sample(context.Background(), model, space, truthParams())
	if err != nil {
		t.Fatalf("Sample: %v", err)
	}
	if len(res.Chain) != 300 {
		t.Fatalf("chain length = %d, want 300", len(res.Chain))
	}
	if len(res.Chain[0]) != 10 || len(res.Chain[0][0]) != 2 {
		t.Fatalf("chain shape = [%d][%d], want [10][2]",
			len(res.Chain[0]), len(res.Chain[0][0]))
	}
	if res.AcceptanceRate <= 0 || res.AcceptanceRate > 1 {
		t.Errorf("acceptance rate = %v, want in (0, 1]", res.AcceptanceRate)
	}

	truth := truthParams()
	want := map[params.Slot]float64{
		params.SlotK1:     truth.K1,
		params.SlotGamma1: truth.Gamma1,
	}
	for slot, val := range want {
		pc, ok := res.Percentiles[slot]
		if !ok {
			t.Fatalf("missing percentiles for %s", slot)
		}
		if !(pc.P16 <= pc.P50 && pc.P50 <= pc.P84) {
			t.Errorf("%s percentiles out of order: %+v", slot, pc)
		}
		// Sampling started at the optimum of noiseless data, so the
		// posterior stays tightly around the truth.
		if math.Abs(pc.P50-val) > 0.25 {
			t.Errorf("%s median = %v, want near %v", slot, pc.P50, val)
		}
		if pc.P16 > val || pc.P84 < val {
			t.Errorf("%s credible interval [%v, %v] misses %v", slot, pc.P16, pc.P84, val)
		}
	}
}

func TestSampleReproducibleWithSeed(t *testing.T) {
	model, space := testSetup(t, params.SlotK1, params.SlotGamma1)
	settings := Settings{Walkers: 8, Steps: 50, Seed: 7}

	run := func() *Result {
		res, err := NewEngine(nil, settings, rand.New(rand.NewSource(7))).
			Sample(context.Background(), model, space, truthParams())
		if err != nil {
			t.Fatalf("Sample: %v", err)
		}
		return res
	}
	a, b := run(), run()
	for step := range a.Chain {
		for k := range a.Chain[step] {
			for j := range a.Chain[step][k] {
				if a.Chain[step][k][j] != b.Chain[step][k][j] {
					t.Fatalf("chains diverge at step %d walker %d", step, k)
				}
			}
		}
	}
}

func TestSampleConfigValidation(t *testing.T) {
	model, space := testSetup(t, params.SlotK1, params.SlotGamma1)
	tests := []struct {
		name     string
		settings Settings
	}{
		{"too few walkers", Settings{Walkers: 3, Steps: 10}},
		{"zero steps", Settings{Walkers: 10, Steps: 0}},
		{"burn beyond steps", Settings{Walkers: 10, Steps: 10, Burn: 10}},
		{"negative burn", Settings{Walkers: 10, Steps: 10, Burn: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eng := NewEngine(nil, tt.settings, nil)
			if _, err := eng.Sample(context.Background(), model, space, truthParams()); !errors.Is(err, ErrBadConfig) {
				t.Errorf("Sample error = %v, want ErrBadConfig", err)
			}
		})
	}
}

func TestSampleRejectsBadStart(t *testing.T) {
	model, space := testSetup(t, params.SlotK1, params.SlotGamma1)
	bad := truthParams()
	bad.Ecc = 1.2
	eng := NewEngine(nil, Settings{Walkers: 10, Steps: 10}, nil)
	if _, err := eng.Sample(context.Background(), model, space, bad); err == nil {
		t.Error("Sample accepted an unphysical starting point")
	}
}

func TestSampleHonorsCancellation(t *testing.T) {
	model, space := testSetup(t, params.SlotK1, params.SlotGamma1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	eng := NewEngine(nil, Settings{Walkers: 10, Steps: 100}, nil)
	if _, err := eng.Sample(ctx, model, space, truthParams()); !errors.Is(err, context.Canceled) {
		t.Errorf("Sample error = %v, want context.Canceled", err)
	}
}
