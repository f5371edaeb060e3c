// Package residuals builds the weighted residual vector that fuses
// radial-velocity and astrometric observations against the orbital model for
// a candidate parameter vector.
package residuals

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/astrokit/orbitfit/pkg/constants"
	"github.com/astrokit/orbitfit/pkg/observations"
	"github.com/astrokit/orbitfit/pkg/orbit"
	"github.com/astrokit/orbitfit/pkg/params"
)

// ErrInsufficientData indicates the fit has no degrees of freedom left.
var ErrInsufficientData = errors.New("insufficient data: degrees of freedom <= 0")

// solveFailedResidual stands in for residual components whose model
// evaluation did not converge. Large enough to repel the optimizer, finite
// so finite-difference gradients stay informative.
const solveFailedResidual = 1e6

// Model evaluates the weighted residual vector for candidate parameters.
// The observation set and weighting are fixed at construction; evaluation is
// pure and safe for concurrent use.
type Model struct {
	data   *observations.DataSet
	weight float64
	solver orbit.Solver

	// per-ellipse rotation factors, precomputed from the position angles
	sinTheta, cosTheta []float64
}

// NewModel captures the dataset and the astrometric weight factor. A weight
// of 1 leaves the residuals purely uncertainty-scaled; values below or above
// 1 de-emphasize or emphasize the astrometry relative to the RV data.
func NewModel(data *observations.DataSet, weight float64, solver orbit.Solver) (*Model, error) {
	if data == nil {
		return nil, fmt.Errorf("%w: nil dataset", observations.ErrInvalid)
	}
	if weight < 0 || math.IsNaN(weight) || math.IsInf(weight, 0) {
		return nil, fmt.Errorf("%w: astrometric weight %v must be a non-negative finite scalar",
			observations.ErrInvalid, weight)
	}
	m := &Model{data: data, weight: weight, solver: solver}
	as := data.AS()
	m.sinTheta = make([]float64, len(as))
	m.cosTheta = make([]float64, len(as))
	for i, o := range as {
		m.sinTheta[i], m.cosTheta[i] = math.Sincos(o.Angle * constants.Deg2Rad)
	}
	return m, nil
}

// Data returns the dataset the model evaluates against.
func (m *Model) Data() *observations.DataSet { return m.data }

// Len is the length of the residual vector.
func (m *Model) Len() int { return m.data.ResidualLen() }

// DegreesOfFreedom returns the residual count minus the free parameter
// count, failing with ErrInsufficientData when the difference is not
// positive.
func (m *Model) DegreesOfFreedom(freeParams int) (int, error) {
	dof := m.Len() - freeParams
	if dof <= 0 {
		return 0, fmt.Errorf("%w (%d residuals, %d free parameters)",
			ErrInsufficientData, m.Len(), freeParams)
	}
	return dof, nil
}

// Residuals evaluates the full weighted residual vector, ordered primary RV,
// secondary RV, then per astrometric point its major- and minor-axis
// components in the error ellipse frame. A Kepler convergence failure is
// returned as an error; use Penalized inside search loops.
func (m *Model) Residuals(p params.Parameters) ([]float64, error) {
	return m.eval(p, false)
}

// Penalized evaluates the residual vector, replacing components whose model
// evaluation failed to converge with a large finite penalty.
func (m *Model) Penalized(p params.Parameters) []float64 {
	res, _ := m.eval(p, true)
	return res
}

func (m *Model) eval(p params.Parameters, penalize bool) ([]float64, error) {
	sys, err := orbit.NewSystem(p, m.solver)
	if err != nil {
		if !penalize {
			return nil, err
		}
		res := make([]float64, m.Len())
		for i := range res {
			res[i] = solveFailedResidual
		}
		return res, nil
	}

	res := make([]float64, 0, m.Len())

	for _, o := range m.data.RV1() {
		v, err := sys.PrimaryVelocity(o.Epoch)
		if err != nil {
			if !penalize {
				return nil, fmt.Errorf("primary RV residual: %w", err)
			}
			res = append(res, solveFailedResidual)
			continue
		}
		res = append(res, (v-o.Velocity)/o.Sigma)
	}
	for _, o := range m.data.RV2() {
		v, err := sys.SecondaryVelocity(o.Epoch)
		if err != nil {
			if !penalize {
				return nil, fmt.Errorf("secondary RV residual: %w", err)
			}
			res = append(res, solveFailedResidual)
			continue
		}
		res = append(res, (v-o.Velocity)/o.Sigma)
	}
	for i, o := range m.data.AS() {
		east, north, err := sys.RelativePosition(o.Epoch)
		if err != nil {
			if !penalize {
				return nil, fmt.Errorf("astrometric residual: %w", err)
			}
			res = append(res, solveFailedResidual, solveFailedResidual)
			continue
		}
		de := east - o.East
		dn := north - o.North
		// Rotate the residual vector into the ellipse's principal-axis
		// frame, then scale each axis by its own semi-axis. The major axis
		// points along the ellipse position angle, east of north.
		alongMajor := de*m.sinTheta[i] + dn*m.cosTheta[i]
		alongMinor := de*m.cosTheta[i] - dn*m.sinTheta[i]
		res = append(res,
			m.weight*alongMajor/o.Major,
			m.weight*alongMinor/o.Minor)
	}
	return res, nil
}

// ChiSquared is the sum of squared residual components.
func ChiSquared(res []float64) float64 {
	return floats.Dot(res, res)
}

// RMS computes per-dataset root-mean-square deviations of the unweighted
// model-minus-observation differences, for reporting alongside a fit.
func (m *Model) RMS(p params.Parameters) (rv1, rv2, as float64, err error) {
	sys, err := orbit.NewSystem(p, m.solver)
	if err != nil {
		return 0, 0, 0, err
	}
	if obs := m.data.RV1(); len(obs) > 0 {
		var sum float64
		for _, o := range obs {
			v, err := sys.PrimaryVelocity(o.Epoch)
			if err != nil {
				return 0, 0, 0, err
			}
			sum += (v - o.Velocity) * (v - o.Velocity)
		}
		rv1 = math.Sqrt(sum / float64(len(obs)))
	}
	if obs := m.data.RV2(); len(obs) > 0 {
		var sum float64
		for _, o := range obs {
			v, err := sys.SecondaryVelocity(o.Epoch)
			if err != nil {
				return 0, 0, 0, err
			}
			sum += (v - o.Velocity) * (v - o.Velocity)
		}
		rv2 = math.Sqrt(sum / float64(len(obs)))
	}
	if obs := m.data.AS(); len(obs) > 0 {
		var sum float64
		for _, o := range obs {
			east, north, err := sys.RelativePosition(o.Epoch)
			if err != nil {
				return 0, 0, 0, err
			}
			sum += (east-o.East)*(east-o.East) + (north-o.North)*(north-o.North)
		}
		as = math.Sqrt(sum / float64(2*len(obs)))
	}
	return rv1, rv2, as, nil
}
