package fit

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/astrokit/orbitfit/pkg/observations"
	"github.com/astrokit/orbitfit/pkg/orbit"
	"github.com/astrokit/orbitfit/pkg/params"
	"github.com/astrokit/orbitfit/pkg/residuals"
	"github.com/astrokit/orbitfit/pkg/testutil"
)

func truthParams() params.Parameters {
	return params.Parameters{
		Ecc:      0.5,
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

func TestFitRecoversSpectroscopicOrbit(t *testing.T) {
	truth := truthParams()
	ds := testutil.Synthesize(t, truth, 20, true, false)
	model, err := residuals.NewModel(ds, 1, orbit.DefaultSolver)
	if err != nil {
		t.Fatalf("NewModel: %v", err)
	}

	guess := truth
	guess.Ecc += 0.03
	guess.Omega += 3
	guess.T0 += 2
	guess.K1 *= 1.05
	guess.K2 *= 0.95
	guess.Gamma1 += 0.5
	guess.Gamma2 -= 0.5

	flags := testutil.FreeFlags(params.SlotEcc, params.SlotOmega, params.SlotT0,
		params.SlotK1, params.SlotK2, params.SlotGamma1, params.SlotGamma2)
	space, err := params.NewSpace(guess, flags, params.SB2, false)
	if err != nil {
		t.Fatalf("NewSpace: %v", err)
	}

	res, err := NewEngine(nil, Settings{}).Fit(context.Background(), model, space)
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}
	if !res.Converged {
		t.Fatal("fit did not report convergence")
	}
	if res.ReducedChiSq > 1e-6 {
		t.Errorf("reduced chi-squared = %v, want ~0 on noiseless data", res.ReducedChiSq)
	}

	checks := []struct {
		name      string
		got, want float64
		tol       float64
	}{
		{"eccentricity", res.Params.Ecc, truth.Ecc, 1e-4},
		{"omega", res.Params.Omega, truth.Omega, 1e-2},
		{"t0", res.Params.T0, truth.T0, 1e-2},
		{"k1", res.Params.K1, truth.K1, 1e-3},
		{"k2", res.Params.K2, truth.K2, 1e-3},
		{"gamma1", res.Params.Gamma1, truth.Gamma1, 1e-3},
		{"gamma2", res.Params.Gamma2, truth.Gamma2, 1e-3},
	}
	for _, c := range checks {
		if math.Abs(c.got-c.want) > c.tol {
			t.Errorf("recovered %s = %v, want %v (tol %v)", c.name, c.got, c.want, c.tol)
		}
	}

	// Fixed slots stay at the guess values.
	if res.Params.Period != guess.Period || res.Params.Incl != guess.Incl {
		t.Errorf("fixed parameters moved: period=%v incl=%v", res.Params.Period, res.Params.Incl)
	}

	for _, s := range space.FreeSlots() {
		sigma, ok := res.Uncertainties[s]
		if !ok {
			t.Errorf("missing uncertainty for %s", s)
			continue
		}
		if math.IsNaN(sigma) || sigma < 0 {
			t.Errorf("uncertainty for %s = %v", s, sigma)
		}
	}
}

func TestFitRecoversVisualElements(t *testing.T) {
	truth := truthParams()
	ds := testutil.Synthesize(t, truth, 20, true, true)
	model, err := residuals.NewModel(ds, 1, orbit.DefaultSolver)
	if err != nil {
		t.Fatalf("NewModel: %v", err)
	}

	guess := truth
	guess.Incl += 2
	guess.Node += 3
	guess.MTot *= 1.1

	flags := testutil.FreeFlags(params.SlotIncl, params.SlotNode, params.SlotMTot)
	space, err := params.NewSpace(guess, flags, params.SB2, true)
	if err != nil {
		t.Fatalf("NewSpace: %v", err)
	}

	res, err := NewEngine(nil, Settings{}).Fit(context.Background(), model, space)
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}
	if math.Abs(res.Params.Incl-truth.Incl) > 0.01 {
		t.Errorf("recovered inclination = %v, want %v", res.Params.Incl, truth.Incl)
	}
	if math.Abs(res.Params.Node-truth.Node) > 0.01 {
		t.Errorf("recovered node = %v, want %v", res.Params.Node, truth.Node)
	}
	if math.Abs(res.Params.MTot-truth.MTot) > 0.05 {
		t.Errorf("recovered total mass = %v, want %v", res.Params.MTot, truth.MTot)
	}
}

func TestFitInsufficientData(t *testing.T) {
	truth := truthParams()
	sys, err := orbit.NewSystem(truth, orbit.DefaultSolver)
	if err != nil {
		t.Fatalf("NewSystem: %v", err)
	}
	v, err := sys.PrimaryVelocity(150)
	if err != nil {
		t.Fatalf("PrimaryVelocity: %v", err)
	}
	ds, err := observations.NewDataSet(
		[]observations.RV{{Epoch: 150, Velocity: v, Sigma: 1}}, nil, nil)
	if err != nil {
		t.Fatalf("NewDataSet: %v", err)
	}
	model, err := residuals.NewModel(ds, 1, orbit.DefaultSolver)
	if err != nil {
		t.Fatalf("NewModel: %v", err)
	}
	space, err := params.NewSpace(truth,
		testutil.FreeFlags(params.SlotK1, params.SlotGamma1, params.SlotT0), params.SB1, false)
	if err != nil {
		t.Fatalf("NewSpace: %v", err)
	}
	if _, err := NewEngine(nil, Settings{}).Fit(context.Background(), model, space); !errors.Is(err, residuals.ErrInsufficientData) {
		t.Errorf("Fit error = %v, want ErrInsufficientData", err)
	}
}

func TestFitHonorsCancellation(t *testing.T) {
	truth := truthParams()
	ds := testutil.Synthesize(t, truth, 20, true, false)
	model, err := residuals.NewModel(ds, 1, orbit.DefaultSolver)
	if err != nil {
		t.Fatalf("NewModel: %v", err)
	}
	guess := truth
	guess.Ecc += 0.1
	space, err := params.NewSpace(guess,
		testutil.FreeFlags(params.SlotEcc, params.SlotT0), params.SB2, false)
	if err != nil {
		t.Fatalf("NewSpace: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewEngine(nil, Settings{}).Fit(ctx, model, space); !errors.Is(err, context.Canceled) {
		t.Errorf("Fit error = %v, want context.Canceled", err)
	}
}

func TestFitDoesNotMutateGuess(t *testing.T) {
	truth := truthParams()
	ds := testutil.Synthesize(t, truth, 20, true, false)
	model, err := residuals.NewModel(ds, 1, orbit.DefaultSolver)
	if err != nil {
		t.Fatalf("NewModel: %v", err)
	}
	guess := truth
	guess.K1 *= 1.1
	space, err := params.NewSpace(guess,
		testutil.FreeFlags(params.SlotK1, params.SlotGamma1), params.SB2, false)
	if err != nil {
		t.Fatalf("NewSpace: %v", err)
	}
	if _, err := NewEngine(nil, Settings{}).Fit(context.Background(), model, space); err != nil {
		t.Fatalf("Fit: %v", err)
	}
	if space.Guess() != guess {
		t.Error("fit mutated the stored guess")
	}
}
