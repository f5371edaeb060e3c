// Package mcmc characterizes parameter uncertainty by affine-invariant
// ensemble sampling (the Goodman-Weare stretch move) over the same
// chi-squared surface the fit engine minimizes.
package mcmc

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat"

	"github.com/astrokit/orbitfit/pkg/params"
	"github.com/astrokit/orbitfit/pkg/residuals"
)

// ErrDivergence indicates the whole ensemble collapsed: no proposal was ever
// accepted, so the chain carries no uncertainty information.
var ErrDivergence = errors.New("sampler diverged: ensemble collapsed with zero acceptance")

// ErrBadConfig indicates an unusable sampler configuration.
var ErrBadConfig = errors.New("invalid sampler configuration")

// relative jitter used to scatter the initial ensemble around the optimum
const initJitter = 1e-4

// Rand is the randomness the sampler consumes, satisfied by
// golang.org/x/exp/rand.Rand. Injecting it keeps runs reproducible.
type Rand interface {
	Float64() float64
	NormFloat64() float64
	Intn(n int) int
}

// Settings configures a sampling run.
type Settings struct {
	// Walkers is the ensemble size; must be at least twice the number of
	// free parameters for the stretch move to be well-posed.
	Walkers int
	// Steps is the number of iterations each walker performs.
	Steps int
	// Burn discards that many leading steps from the percentile estimates.
	// Zero keeps the whole chain.
	Burn int
	// StretchA is the stretch-move scale parameter; 2 is the standard choice.
	StretchA float64
	// Seed initializes the random source when Rand is nil.
	Seed uint64
}

// Percentiles is the [16th, 50th, 84th] percentile triple of one parameter's
// posterior samples.
type Percentiles struct {
	P16, P50, P84 float64
}

// Result holds the posterior chain and its summary.
type Result struct {
	// Chain is indexed [step][walker][free-parameter].
	Chain [][][]float64
	// FreeSlots names the reduced-vector components of the chain.
	FreeSlots []params.Slot
	// Percentiles summarizes the post-burn-in posterior per free slot.
	Percentiles map[params.Slot]Percentiles
	// AcceptanceRate is the fraction of accepted proposals over the run.
	AcceptanceRate float64
}

// Engine runs the ensemble sampler.
type Engine struct {
	logger   *zap.Logger
	settings Settings
	rnd      Rand
}

// NewEngine constructs a sampler engine. A nil logger is replaced with a
// no-op; a nil rnd gets a seeded source from Settings.Seed.
func NewEngine(logger *zap.Logger, settings Settings, rnd Rand) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if settings.StretchA <= 1 {
		settings.StretchA = 2
	}
	if rnd == nil {
		rnd = rand.New(rand.NewSource(settings.Seed))
	}
	return &Engine{logger: logger, settings: settings, rnd: rnd}
}

// Sample runs the ensemble starting from small perturbations around start
// (normally the fit engine's optimum). The log-probability is -chi²/2 with a
// flat prior over the allowed physical ranges; out-of-range proposals get
// -Inf and are rejected. Walker likelihoods are evaluated concurrently.
func (e *Engine) Sample(ctx context.Context, model *residuals.Model, space *params.Space, start params.Parameters) (*Result, error) {
	dim := space.Dim()
	if e.settings.Walkers < 2*dim {
		return nil, fmt.Errorf("%w: %d walkers for %d free parameters; need at least %d",
			ErrBadConfig, e.settings.Walkers, dim, 2*dim)
	}
	if e.settings.Steps <= 0 {
		return nil, fmt.Errorf("%w: step count %d must be positive", ErrBadConfig, e.settings.Steps)
	}
	if e.settings.Burn < 0 || e.settings.Burn >= e.settings.Steps {
		return nil, fmt.Errorf("%w: burn-in %d must lie in [0, steps)", ErrBadConfig, e.settings.Burn)
	}
	if _, err := model.DegreesOfFreedom(dim); err != nil {
		return nil, err
	}

	// Fatal if the chain cannot even start.
	if _, err := model.Residuals(start); err != nil {
		return nil, fmt.Errorf("residual evaluation at sampler start: %w", err)
	}

	x0 := space.Reduce(start)
	nw := e.settings.Walkers

	walkers := make([][]float64, nw)
	logp := make([]float64, nw)
	for k := 0; k < nw; k++ {
		w := make([]float64, dim)
		for j := 0; j < dim; j++ {
			scale := math.Abs(x0[j])
			if scale == 0 {
				scale = 1
			}
			w[j] = x0[j] + initJitter*scale*e.rnd.NormFloat64()
		}
		walkers[k] = space.Clamp(w)
		logp[k] = e.logProb(model, space, walkers[k])
	}

	e.logger.Info("starting MCMC sampling",
		zap.Int("walkers", nw),
		zap.Int("steps", e.settings.Steps),
		zap.Int("freeParameters", dim),
	)

	chain := make([][][]float64, e.settings.Steps)
	accepted := 0
	total := 0
	a := e.settings.StretchA

	type proposal struct {
		y    []float64
		logz float64
	}

	for step := 0; step < e.settings.Steps; step++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		// Update each half of the ensemble using the other half as the
		// complementary set, so moves within a half stay independent and
		// can be evaluated in parallel.
		for _, half := range [][2]int{{0, nw / 2}, {nw / 2, nw}} {
			lo, hi := half[0], half[1]
			cLo, cHi := nw/2, nw
			if lo != 0 {
				cLo, cHi = 0, nw/2
			}

			props := make([]proposal, hi-lo)
			for k := lo; k < hi; k++ {
				partner := walkers[cLo+e.rnd.Intn(cHi-cLo)]
				u := e.rnd.Float64()
				z := (u*(a-1) + 1) * (u*(a-1) + 1) / a
				y := make([]float64, dim)
				for j := 0; j < dim; j++ {
					y[j] = partner[j] + z*(walkers[k][j]-partner[j])
				}
				props[k-lo] = proposal{y: y, logz: float64(dim-1) * math.Log(z)}
			}

			logpY := make([]float64, hi-lo)
			var wg sync.WaitGroup
			for i := range props {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					logpY[i] = e.logProb(model, space, props[i].y)
				}(i)
			}
			wg.Wait()

			for k := lo; k < hi; k++ {
				i := k - lo
				total++
				if math.Log(e.rnd.Float64()) < props[i].logz+logpY[i]-logp[k] {
					walkers[k] = props[i].y
					logp[k] = logpY[i]
					accepted++
				}
			}
		}

		snap := make([][]float64, nw)
		for k := range walkers {
			s := make([]float64, dim)
			copy(s, walkers[k])
			snap[k] = s
		}
		chain[step] = snap
	}

	if accepted == 0 {
		return nil, ErrDivergence
	}

	rate := float64(accepted) / float64(total)
	e.logger.Info("MCMC sampling complete",
		zap.Float64("acceptanceRate", rate),
	)

	return &Result{
		Chain:          chain,
		FreeSlots:      space.FreeSlots(),
		Percentiles:    e.percentiles(chain, space),
		AcceptanceRate: rate,
	}, nil
}

// logProb is -chi²/2 under a flat prior over the allowed physical ranges.
func (e *Engine) logProb(model *residuals.Model, space *params.Space, x []float64) float64 {
	if !space.InRange(x) {
		return math.Inf(-1)
	}
	res := model.Penalized(space.Expand(x))
	return -0.5 * residuals.ChiSquared(res)
}

// percentiles computes the [16, 50, 84] percentile triple per free slot
// from the post-burn-in chain.
func (e *Engine) percentiles(chain [][][]float64, space *params.Space) map[params.Slot]Percentiles {
	slots := space.FreeSlots()
	out := make(map[params.Slot]Percentiles, len(slots))
	post := chain[e.settings.Burn:]
	for j, s := range slots {
		samples := make([]float64, 0, len(post)*len(post[0]))
		for _, stepSnap := range post {
			for _, w := range stepSnap {
				samples = append(samples, w[j])
			}
		}
		sort.Float64s(samples)
		out[s] = Percentiles{
			P16: stat.Quantile(0.16, stat.Empirical, samples, nil),
			P50: stat.Quantile(0.50, stat.Empirical, samples, nil),
			P84: stat.Quantile(0.84, stat.Empirical, samples, nil),
		}
	}
	return out
}
