package sampler

import (
	"math"
	"math/rand"

	"github.com/rotisserie/eris"
	"gonum.org/v1/gonum/mat"
)

// bootstrap perturbs the base forecast with resampled insample residual
// cross-sections and reconciles every perturbed path through W. Drawing a
// whole historical column at a time preserves the dependence between series
// observed at the same timestamp.
type bootstrap struct {
	w      *mat.Dense // n x n
	base   *mat.Dense // n x h base forecasts
	resid  *mat.Dense // n x T insample residuals
	usable []int      // residual columns with no missing values
	seed   int64
}

func newBootstrap(cfg Config) (*bootstrap, error) {
	if cfg.W == nil || cfg.BaseYHat == nil || cfg.Residuals == nil {
		return nil, eris.New("sampler: bootstrap needs reconciliation weights, base forecasts and insample residuals")
	}
	n, _ := cfg.BaseYHat.Dims()
	if wr, wc := cfg.W.Dims(); wr != n || wc != n {
		return nil, eris.Errorf("sampler: weights are %dx%d, want %dx%d", wr, wc, n, n)
	}
	rr, rc := cfg.Residuals.Dims()
	if rr != n {
		return nil, eris.Errorf("sampler: residuals cover %d series, forecasts cover %d", rr, n)
	}

	var usable []int
	for t := 0; t < rc; t++ {
		complete := true
		for i := 0; i < rr; i++ {
			if v := cfg.Residuals.At(i, t); math.IsNaN(v) || math.IsInf(v, 0) {
				complete = false
				break
			}
		}
		if complete {
			usable = append(usable, t)
		}
	}
	if len(usable) == 0 {
		return nil, eris.New("sampler: bootstrap found no complete insample residual cross-sections")
	}

	return &bootstrap{w: cfg.W, base: cfg.BaseYHat, resid: cfg.Residuals, usable: usable, seed: cfg.Seed}, nil
}

func (s *bootstrap) draw(rng *rand.Rand, num int) *mat.Dense {
	n, h := s.base.Dims()
	out := mat.NewDense(n*h, num, nil)
	perturbed := make([]float64, n)
	for k := 0; k < num; k++ {
		for t := 0; t < h; t++ {
			tau := s.usable[rng.Intn(len(s.usable))]
			for j := 0; j < n; j++ {
				perturbed[j] = s.base.At(j, t) + s.resid.At(j, tau)
			}
			for i := 0; i < n; i++ {
				row := s.w.RawRowView(i)
				var v float64
				for j, wij := range row {
					if wij != 0 {
						v += wij * perturbed[j]
					}
				}
				out.Set(i*h+t, k, v)
			}
		}
	}
	return out
}

func (s *bootstrap) Quantiles(levels []float64) (*mat.Dense, error) {
	if len(levels) == 0 {
		return nil, eris.New("sampler: no confidence levels requested")
	}
	draws := s.draw(stream(s.seed, "bootstrap.quantiles"), quantileDraws)
	return empiricalQuantiles(draws, Probs(levels)), nil
}

func (s *bootstrap) Sample(num int) (*mat.Dense, error) {
	if num <= 0 {
		return nil, eris.Errorf("sampler: sample count must be positive, got %d", num)
	}
	return s.draw(stream(s.seed, "bootstrap.samples"), num), nil
}
