package sampler

import (
	"math"
	"math/rand"
	"sort"

	"github.com/rotisserie/eris"
	"gonum.org/v1/gonum/mat"
)

// permbu draws normal noise per bottom series from the base sigmas, then
// permutes each joint draw so its cross-series ranks follow a resampled
// historical residual cross-section. Marginals stay parametric, dependence
// comes from the empirical copula, and aggregation through S keeps every
// path coherent.
type permbu struct {
	s          *mat.Dense // n x nb summing matrix
	bottomMean *mat.Dense // nb x h reconciled bottom means
	bottomSig  *mat.Dense // nb x h base std deviations of the bottom series
	usable     []int      // residual columns complete across the bottom
	rank       [][]int    // per bottom series: rank of each usable column
	seed       int64
}

func newPermBU(cfg Config) (*permbu, error) {
	if cfg.S == nil || cfg.Mean == nil || cfg.Sigma == nil || cfg.Residuals == nil || len(cfg.BottomIdx) == 0 {
		return nil, eris.New("sampler: permbu needs the summing matrix, a reconciled mean, base sigmas, insample residuals and the bottom index")
	}
	n, nb := cfg.S.Dims()
	mr, h := cfg.Mean.Dims()
	if mr != n {
		return nil, eris.Errorf("sampler: mean covers %d series, summing matrix has %d rows", mr, n)
	}
	if sr, sc := cfg.Sigma.Dims(); sr != n || sc != h {
		return nil, eris.Errorf("sampler: sigma is %dx%d, want %dx%d", sr, sc, n, h)
	}
	if len(cfg.BottomIdx) != nb {
		return nil, eris.Errorf("sampler: bottom index has %d entries, summing matrix has %d columns", len(cfg.BottomIdx), nb)
	}

	_, rT := cfg.Residuals.Dims()
	bottomMean := mat.NewDense(nb, h, nil)
	bottomSig := mat.NewDense(nb, h, nil)
	residB := mat.NewDense(nb, rT, nil)
	for j, row := range cfg.BottomIdx {
		bottomMean.SetRow(j, cfg.Mean.RawRowView(row))
		bottomSig.SetRow(j, cfg.Sigma.RawRowView(row))
		residB.SetRow(j, cfg.Residuals.RawRowView(row))
	}

	var usable []int
	for t := 0; t < rT; t++ {
		complete := true
		for j := 0; j < nb; j++ {
			if v := residB.At(j, t); math.IsNaN(v) || math.IsInf(v, 0) {
				complete = false
				break
			}
		}
		if complete {
			usable = append(usable, t)
		}
	}
	if len(usable) == 0 {
		return nil, eris.New("sampler: permbu found no complete bottom-level residual cross-sections")
	}

	// Rank every usable residual within its series once; draws only need
	// the rank pattern, not the residual values.
	rank := make([][]int, nb)
	for j := 0; j < nb; j++ {
		vals := make([]float64, len(usable))
		for u, t := range usable {
			vals[u] = residB.At(j, t)
		}
		order := make([]int, len(vals))
		for i := range order {
			order[i] = i
		}
		sort.SliceStable(order, func(a, b int) bool { return vals[order[a]] < vals[order[b]] })

		rank[j] = make([]int, len(vals))
		for r, u := range order {
			rank[j][u] = r
		}
	}

	return &permbu{
		s:          cfg.S,
		bottomMean: bottomMean,
		bottomSig:  bottomSig,
		usable:     usable,
		rank:       rank,
		seed:       cfg.Seed,
	}, nil
}

func (s *permbu) draw(rng *rand.Rand, num int) *mat.Dense {
	n, nb := s.s.Dims()
	_, h := s.bottomMean.Dims()
	nu := len(s.usable)

	out := mat.NewDense(n*h, num, nil)
	pools := make([][]float64, nb)
	bottom := make([]float64, nb)
	for t := 0; t < h; t++ {
		// Fresh normal pools per horizon, sorted so a rank maps straight to
		// a pool position.
		for j := 0; j < nb; j++ {
			pool := make([]float64, num)
			sd := s.bottomSig.At(j, t)
			for k := range pool {
				pool[k] = rng.NormFloat64() * sd
			}
			sort.Float64s(pool)
			pools[j] = pool
		}
		for k := 0; k < num; k++ {
			u := rng.Intn(nu)
			for j := 0; j < nb; j++ {
				pos := s.rank[j][u] * num / nu
				bottom[j] = s.bottomMean.At(j, t) + pools[j][pos]
			}
			for i := 0; i < n; i++ {
				row := s.s.RawRowView(i)
				var v float64
				for j, sij := range row {
					if sij != 0 {
						v += sij * bottom[j]
					}
				}
				out.Set(i*h+t, k, v)
			}
		}
	}
	return out
}

func (s *permbu) Quantiles(levels []float64) (*mat.Dense, error) {
	if len(levels) == 0 {
		return nil, eris.New("sampler: no confidence levels requested")
	}
	draws := s.draw(stream(s.seed, "permbu.quantiles"), quantileDraws)
	return empiricalQuantiles(draws, Probs(levels)), nil
}

func (s *permbu) Sample(num int) (*mat.Dense, error) {
	if num <= 0 {
		return nil, eris.Errorf("sampler: sample count must be positive, got %d", num)
	}
	return s.draw(stream(s.seed, "permbu.samples"), num), nil
}
