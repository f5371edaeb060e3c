// Package fit drives the nonlinear least-squares search for the orbital
// parameters that best reproduce the observations.
package fit

import (
	"context"
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/astrokit/orbitfit/pkg/params"
	"github.com/astrokit/orbitfit/pkg/residuals"
)

// ErrNonConvergence indicates the minimizer exhausted its iteration budget
// without meeting its stopping criteria.
var ErrNonConvergence = errors.New("minimizer did not converge")

// Settings controls the Levenberg-Marquardt iteration.
type Settings struct {
	// MaxIterations caps the number of accepted or rejected damping steps.
	MaxIterations int
	// Tolerance is the relative chi-squared decrease below which the search
	// is considered converged.
	Tolerance float64
	// GradientTolerance stops the search when the scaled gradient norm
	// drops below it.
	GradientTolerance float64
	// LambdaInit seeds the damping factor.
	LambdaInit float64
}

// DefaultSettings mirror typical least-squares driver defaults.
var DefaultSettings = Settings{
	MaxIterations:     200,
	Tolerance:         1e-10,
	GradientTolerance: 1e-10,
	LambdaInit:        1e-3,
}

// Result is the outcome of a fit.
type Result struct {
	// Params is the best-fit parameter vector, angles normalized to
	// [0, 360) degrees. It is a snapshot, never aliased into search state.
	Params params.Parameters
	// Uncertainties holds the 1-sigma uncertainty per free slot, from the
	// covariance diagonal scaled by the reduced chi-squared.
	Uncertainties map[params.Slot]float64
	// ChiSquared and ReducedChiSq describe the fit quality.
	ChiSquared   float64
	ReducedChiSq float64
	Dof          int
	// Residuals is the weighted residual vector at the optimum.
	Residuals []float64
	// RMSRV1, RMSRV2 and RMSAS are per-dataset root-mean-square deviations.
	RMSRV1, RMSRV2, RMSAS float64

	Iterations int
	Converged  bool
}

// Engine wraps the minimizer with logging and settings.
type Engine struct {
	logger   *zap.Logger
	settings Settings
}

// NewEngine constructs a fit engine. A nil logger is replaced with a no-op.
func NewEngine(logger *zap.Logger, settings Settings) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if settings.MaxIterations <= 0 {
		settings.MaxIterations = DefaultSettings.MaxIterations
	}
	if settings.Tolerance <= 0 {
		settings.Tolerance = DefaultSettings.Tolerance
	}
	if settings.GradientTolerance <= 0 {
		settings.GradientTolerance = DefaultSettings.GradientTolerance
	}
	if settings.LambdaInit <= 0 {
		settings.LambdaInit = DefaultSettings.LambdaInit
	}
	return &Engine{logger: logger, settings: settings}
}

// Fit minimizes the model's chi-squared over the free parameters of space,
// starting from the guess captured in space. The guess itself is never
// mutated. Cancellation is checked between damping steps.
func (e *Engine) Fit(ctx context.Context, model *residuals.Model, space *params.Space) (*Result, error) {
	dof, err := model.DegreesOfFreedom(space.Dim())
	if err != nil {
		return nil, err
	}

	x := space.Reduce(space.Guess())

	// A failure at the initial guess is fatal; inside the loop, failed
	// evaluations are penalized instead.
	r, err := model.Residuals(space.Expand(x))
	if err != nil {
		return nil, fmt.Errorf("residual evaluation at initial guess: %w", err)
	}
	chi := residuals.ChiSquared(r)

	e.logger.Info("starting minimization",
		zap.String("mode", space.Mode().String()),
		zap.Int("freeParameters", space.Dim()),
		zap.Int("residuals", model.Len()),
		zap.Float64("initialChiSquared", chi),
	)

	n := space.Dim()
	m := model.Len()
	lambda := e.settings.LambdaInit
	converged := false
	iterations := 0

	jac := mat.NewDense(m, n, nil)
	var jtj, aug mat.Dense
	grad := mat.NewVecDense(n, nil)
	step := mat.NewVecDense(n, nil)

	for iterations < e.settings.MaxIterations {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		iterations++

		e.jacobian(jac, model, space, x, r)
		jtj.Mul(jac.T(), jac)
		grad.MulVec(jac.T(), mat.NewVecDense(m, r))

		if normInf(grad) < e.settings.GradientTolerance {
			converged = true
			break
		}

		// Damped normal equations: (JtJ + lambda*diag(JtJ)) step = Jt r.
		aug.CloneFrom(&jtj)
		for i := 0; i < n; i++ {
			d := jtj.At(i, i)
			if d == 0 {
				d = 1
			}
			aug.Set(i, i, jtj.At(i, i)+lambda*d)
		}
		if err := step.SolveVec(&aug, grad); err != nil {
			// Singular system: raise damping and retry.
			lambda *= 10
			if lambda > 1e12 {
				break
			}
			continue
		}

		trial := make([]float64, n)
		for i := range trial {
			trial[i] = x[i] - step.AtVec(i)
		}
		trial = space.Clamp(trial)

		rTrial := model.Penalized(space.Expand(trial))
		chiTrial := residuals.ChiSquared(rTrial)

		if chiTrial < chi {
			drop := chi - chiTrial
			x = trial
			r = rTrial
			e.logger.Debug("step accepted",
				zap.Int("iteration", iterations),
				zap.Float64("chiSquared", chiTrial),
				zap.Float64("lambda", lambda),
			)
			chi = chiTrial
			lambda = math.Max(lambda/10, 1e-12)
			if drop < e.settings.Tolerance*(chi+e.settings.Tolerance) {
				converged = true
				break
			}
		} else {
			lambda *= 10
			if lambda > 1e12 {
				// Damping saturated: no downhill direction remains.
				converged = true
				break
			}
		}
	}

	if !converged {
		return nil, fmt.Errorf("%w after %d iterations (chi-squared %v)",
			ErrNonConvergence, iterations, chi)
	}

	redChi := chi / float64(dof)
	best := space.Expand(x).Normalized()

	sigmas := e.covariance(model, space, x, r, redChi)

	rms1, rms2, rmsAS, err := model.RMS(best)
	if err != nil {
		e.logger.Warn("rms evaluation failed at optimum", zap.Error(err))
	}

	e.logger.Info("minimization complete",
		zap.Int("iterations", iterations),
		zap.Float64("chiSquared", chi),
		zap.Float64("reducedChiSquared", redChi),
		zap.Int("degreesOfFreedom", dof),
	)

	return &Result{
		Params:        best,
		Uncertainties: sigmas,
		ChiSquared:    chi,
		ReducedChiSq:  redChi,
		Dof:           dof,
		Residuals:     r,
		RMSRV1:        rms1,
		RMSRV2:        rms2,
		RMSAS:         rmsAS,
		Iterations:    iterations,
		Converged:     true,
	}, nil
}

// jacobian fills jac with forward finite differences of the penalized
// residual vector around x, reusing the residuals r already evaluated there.
func (e *Engine) jacobian(jac *mat.Dense, model *residuals.Model, space *params.Space, x, r []float64) {
	n := len(x)
	for j := 0; j < n; j++ {
		h := 1e-8 * math.Max(math.Abs(x[j]), 1)
		xp := make([]float64, n)
		copy(xp, x)
		xp[j] += h
		rp := model.Penalized(space.Expand(xp))
		for i := range rp {
			jac.Set(i, j, (rp[i]-r[i])/h)
		}
	}
}

// covariance estimates 1-sigma uncertainties from the Jacobian at the
// optimum: sqrt(diag((JtJ)^-1)) scaled by sqrt(reduced chi-squared).
func (e *Engine) covariance(model *residuals.Model, space *params.Space, x, r []float64, redChi float64) map[params.Slot]float64 {
	n := len(x)
	jac := mat.NewDense(len(r), n, nil)
	e.jacobian(jac, model, space, x, r)

	var jtj, cov mat.Dense
	jtj.Mul(jac.T(), jac)

	sigmas := make(map[params.Slot]float64, n)
	if err := cov.Inverse(&jtj); err != nil {
		e.logger.Warn("covariance matrix is singular; uncertainties unavailable",
			zap.Error(err))
		for _, s := range space.FreeSlots() {
			sigmas[s] = math.NaN()
		}
		return sigmas
	}
	for i, s := range space.FreeSlots() {
		v := cov.At(i, i) * redChi
		if v < 0 {
			v = 0
		}
		sigmas[s] = math.Sqrt(v)
	}
	return sigmas
}

func normInf(v *mat.VecDense) float64 {
	max := 0.0
	for i := 0; i < v.Len(); i++ {
		if a := math.Abs(v.AtVec(i)); a > max {
			max = a
		}
	}
	return max
}
