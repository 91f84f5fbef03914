package sampler

import (
	"math"

	"github.com/rotisserie/eris"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// normality propagates base-forecast variance through the reconciliation
// weights. Quantiles are analytic; samples draw independent normal noise per
// base series and push it through W, so every path stays coherent.
type normality struct {
	w        *mat.Dense // n x n
	mean     *mat.Dense // n x h
	sigma    *mat.Dense // n x h base std deviations
	sigmaRec *mat.Dense // n x h reconciled std deviations
	seed     int64
}

func newNormality(cfg Config) (*normality, error) {
	if cfg.W == nil || cfg.Mean == nil || cfg.Sigma == nil {
		return nil, eris.New("sampler: normality needs reconciliation weights, a reconciled mean and base sigmas")
	}
	n, h := cfg.Mean.Dims()
	if wr, wc := cfg.W.Dims(); wr != n || wc != n {
		return nil, eris.Errorf("sampler: weights are %dx%d, want %dx%d", wr, wc, n, n)
	}
	if sr, sc := cfg.Sigma.Dims(); sr != n || sc != h {
		return nil, eris.Errorf("sampler: sigma is %dx%d, want %dx%d", sr, sc, n, h)
	}

	s := &normality{w: cfg.W, mean: cfg.Mean, sigma: cfg.Sigma, seed: cfg.Seed}
	s.sigmaRec = s.reconcileSigma(n, h)
	return s, nil
}

// reconcileSigma computes sqrt(sum_j W[i,j]^2 sigma[j,t]^2), the standard
// deviation of row i under independent base-forecast errors.
func (s *normality) reconcileSigma(n, h int) *mat.Dense {
	out := mat.NewDense(n, h, nil)
	for i := 0; i < n; i++ {
		row := s.w.RawRowView(i)
		for t := 0; t < h; t++ {
			var sum float64
			for j, wij := range row {
				if wij == 0 {
					continue
				}
				sv := s.sigma.At(j, t)
				sum += wij * wij * sv * sv
			}
			out.Set(i, t, math.Sqrt(sum))
		}
	}
	return out
}

func (s *normality) Quantiles(levels []float64) (*mat.Dense, error) {
	if len(levels) == 0 {
		return nil, eris.New("sampler: no confidence levels requested")
	}
	probs := Probs(levels)
	dist := distuv.Normal{Mu: 0, Sigma: 1}
	zs := make([]float64, len(probs))
	for k, p := range probs {
		zs[k] = dist.Quantile(p)
	}

	n, h := s.mean.Dims()
	out := mat.NewDense(n*h, len(probs), nil)
	for i := 0; i < n; i++ {
		for t := 0; t < h; t++ {
			mu := s.mean.At(i, t)
			sd := s.sigmaRec.At(i, t)
			for k, z := range zs {
				out.Set(i*h+t, k, mu+z*sd)
			}
		}
	}
	return out, nil
}

func (s *normality) Sample(num int) (*mat.Dense, error) {
	if num <= 0 {
		return nil, eris.Errorf("sampler: sample count must be positive, got %d", num)
	}
	n, h := s.mean.Dims()
	rng := stream(s.seed, "normality.samples")

	out := mat.NewDense(n*h, num, nil)
	z := make([]float64, n)
	scaled := make([]float64, n)
	for k := 0; k < num; k++ {
		for t := 0; t < h; t++ {
			for j := 0; j < n; j++ {
				z[j] = rng.NormFloat64()
				scaled[j] = s.sigma.At(j, t) * z[j]
			}
			for i := 0; i < n; i++ {
				row := s.w.RawRowView(i)
				v := s.mean.At(i, t)
				for j, wij := range row {
					if wij != 0 {
						v += wij * scaled[j]
					}
				}
				out.Set(i*h+t, k, v)
			}
		}
	}
	return out, nil
}
