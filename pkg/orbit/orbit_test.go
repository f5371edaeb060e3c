package orbit

import (
	"math"
	"testing"

	"github.com/astrokit/orbitfit/pkg/constants"
	"github.com/astrokit/orbitfit/pkg/params"
)

func testParams() params.Parameters {
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

func TestNewSystemRejectsBadParameters(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*params.Parameters)
	}{
		{"zero period", func(p *params.Parameters) { p.Period = 0 }},
		{"negative period", func(p *params.Parameters) { p.Period = -10 }},
		{"eccentricity at one", func(p *params.Parameters) { p.Ecc = 1 }},
		{"non-finite value", func(p *params.Parameters) { p.K1 = math.NaN() }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := testParams()
			tt.mutate(&p)
			if _, err := NewSystem(p, DefaultSolver); err == nil {
				t.Errorf("NewSystem accepted invalid parameters")
			}
		})
	}
}

func TestPhaseReduction(t *testing.T) {
	sys, err := NewSystem(testParams(), DefaultSolver)
	if err != nil {
		t.Fatalf("NewSystem: %v", err)
	}
	tests := []struct {
		name     string
		t        float64
		expected float64
	}{
		{"at periastron", 100, 0},
		{"half period later", 100 + 365.0/2, 0.5},
		{"one and a half periods", 100 + 1.5*365, 0.5},
		{"before periastron epoch", 100 - 0.25*365, 0.75},
		{"far in the past", 100 - 10.25*365, 0.75},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sys.Phase(tt.t); math.Abs(got-tt.expected) > 1e-12 {
				t.Errorf("Phase(%v) = %v, want %v", tt.t, got, tt.expected)
			}
		})
	}
}

func TestSeparationMinimalAtPeriastron(t *testing.T) {
	p := testParams()
	sys, err := NewSystem(p, DefaultSolver)
	if err != nil {
		t.Fatalf("NewSystem: %v", err)
	}

	periSep, err := sys.Separation(p.T0)
	if err != nil {
		t.Fatalf("Separation at periastron: %v", err)
	}
	want := sys.ApparentSemiMajorAxis() * (1 - p.Ecc)
	if math.Abs(periSep-want) > 1e-9*want {
		t.Errorf("separation at periastron = %v, want a(1-e) = %v", periSep, want)
	}

	// For e > 0 the periastron separation is the orbit-wide minimum.
	for ph := 0.01; ph < 1; ph += 0.01 {
		sep, err := sys.Separation(p.T0 + ph*p.Period)
		if err != nil {
			t.Fatalf("Separation at phase %v: %v", ph, err)
		}
		if sep < periSep-1e-9 {
			t.Errorf("separation %v at phase %v below periastron separation %v", sep, ph, periSep)
		}
	}
}

func TestVelocitiesAntiPhased(t *testing.T) {
	p := testParams()
	p.Gamma1 = -4
	p.Gamma2 = 7
	sys, err := NewSystem(p, DefaultSolver)
	if err != nil {
		t.Fatalf("NewSystem: %v", err)
	}
	// The two stars orbit the common center of mass, so their systemic-
	// velocity-subtracted RVs are proportional with opposite sign.
	for _, epoch := range []float64{100, 150, 222, 300, 401.5} {
		v1, err := sys.PrimaryVelocity(epoch)
		if err != nil {
			t.Fatalf("PrimaryVelocity(%v): %v", epoch, err)
		}
		v2, err := sys.SecondaryVelocity(epoch)
		if err != nil {
			t.Fatalf("SecondaryVelocity(%v): %v", epoch, err)
		}
		lhs := (v1 - p.Gamma1) / p.K1
		rhs := -(v2 - p.Gamma2) / p.K2
		if math.Abs(lhs-rhs) > 1e-9 {
			t.Errorf("epoch %v: scaled primary RV %v != negated scaled secondary RV %v", epoch, lhs, rhs)
		}
	}
}

func TestVelocityAtPeriastron(t *testing.T) {
	p := testParams()
	sys, err := NewSystem(p, DefaultSolver)
	if err != nil {
		t.Fatalf("NewSystem: %v", err)
	}
	v2, err := sys.SecondaryVelocity(p.T0)
	if err != nil {
		t.Fatalf("SecondaryVelocity: %v", err)
	}
	// At periastron the true anomaly is zero: RV = gamma + k(1+e)cos(omega).
	want := p.Gamma2 + p.K2*(1+p.Ecc)*math.Cos(p.Omega*constants.Deg2Rad)
	if math.Abs(v2-want) > 1e-9 {
		t.Errorf("secondary RV at periastron = %v, want %v", v2, want)
	}
}

func TestPositionAngleRange(t *testing.T) {
	p := testParams()
	sys, err := NewSystem(p, DefaultSolver)
	if err != nil {
		t.Fatalf("NewSystem: %v", err)
	}
	for ph := 0.0; ph < 1; ph += 0.05 {
		pa, err := sys.PositionAngle(p.T0 + ph*p.Period)
		if err != nil {
			t.Fatalf("PositionAngle: %v", err)
		}
		if pa < 0 || pa >= 360 {
			t.Errorf("position angle %v at phase %v outside [0, 360)", pa, ph)
		}
	}
}

func TestVelocityCurve(t *testing.T) {
	sys, err := NewSystem(testParams(), DefaultSolver)
	if err != nil {
		t.Fatalf("NewSystem: %v", err)
	}
	times, rv1, rv2, err := sys.VelocityCurve(100)
	if err != nil {
		t.Fatalf("VelocityCurve: %v", err)
	}
	if len(times) != 100 || len(rv1) != 100 || len(rv2) != 100 {
		t.Fatalf("VelocityCurve lengths = %d/%d/%d, want 100", len(times), len(rv1), len(rv2))
	}
	if _, _, _, err := sys.VelocityCurve(0); err == nil {
		t.Error("VelocityCurve(0) should fail")
	}
}
