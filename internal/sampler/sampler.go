// Package sampler implements the probabilistic side of reconciliation: given
// a reconciled point forecast it produces prediction-interval quantiles and
// coherent sample paths under one of three strategies.
package sampler

import (
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Method selects the interval-estimation strategy.
type Method string

const (
	// Normality treats base forecasts as independent normals and propagates
	// their variance through the reconciliation weights.
	Normality Method = "normality"
	// Bootstrap resamples insample residual cross-sections and reconciles
	// each perturbed base forecast.
	Bootstrap Method = "bootstrap"
	// PermBU draws parametric bottom-level noise and restores the
	// historical cross-series rank dependence before aggregating.
	PermBU Method = "permbu"
)

// ParseMethod resolves a strategy from its configuration token.
func ParseMethod(s string) (Method, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "normality":
		return Normality, nil
	case "bootstrap":
		return Bootstrap, nil
	case "permbu", "permutation-bootstrap":
		return PermBU, nil
	}
	return "", eris.Errorf("sampler: unknown intervals method %q", s)
}

// Valid reports whether m is a known strategy.
func (m Method) Valid() bool {
	return m == Normality || m == Bootstrap || m == PermBU
}

// Resampling reports whether the strategy draws from insample residuals and
// therefore requires historical values.
func (m Method) Resampling() bool {
	return m == Bootstrap || m == PermBU
}

func (m Method) String() string { return string(m) }

// quantileDraws is the number of internal sample paths the resampling
// strategies use to estimate quantiles.
const quantileDraws = 200

// Probs converts confidence levels to the emitted quantile probabilities:
// lower tails for levels in descending order, then upper tails ascending.
// The result is ascending overall.
func Probs(levels []float64) []float64 {
	asc := append([]float64(nil), levels...)
	sort.Float64s(asc)

	probs := make([]float64, 0, 2*len(asc))
	for i := len(asc) - 1; i >= 0; i-- {
		probs = append(probs, (100-asc[i])/200)
	}
	for _, l := range asc {
		probs = append(probs, 0.5+l/200)
	}
	return probs
}

// Sampler produces reconciled quantiles and coherent sample paths. Rows of
// every returned matrix are (series, horizon) pairs flattened series-major.
type Sampler interface {
	// Quantiles returns a (series*horizon) x (2*len(levels)) matrix with
	// columns ordered by ascending probability.
	Quantiles(levels []float64) (*mat.Dense, error)
	// Sample returns num coherent sample paths as a
	// (series*horizon) x num matrix.
	Sample(num int) (*mat.Dense, error)
}

// Config carries the inputs a strategy may consume. New validates that the
// fields the chosen strategy needs are present.
type Config struct {
	Method Method
	// S is the dense summing matrix (series x bottom).
	S *mat.Dense
	// W holds the reconciliation weights S*P (series x series).
	W *mat.Dense
	// Mean is the reconciled point forecast (series x horizon).
	Mean *mat.Dense
	// BaseYHat is the unreconciled base forecast (series x horizon).
	BaseYHat *mat.Dense
	// Sigma holds base standard deviations (series x horizon).
	Sigma *mat.Dense
	// Residuals are insample residuals (series x timestamps), NaN where a
	// series has no observation.
	Residuals *mat.Dense
	// BottomIdx maps bottom columns to their series rows.
	BottomIdx []int
	Seed      int64
}

// New builds the sampler for the configured strategy.
func New(cfg Config) (Sampler, error) {
	switch cfg.Method {
	case Normality:
		return newNormality(cfg)
	case Bootstrap:
		return newBootstrap(cfg)
	case PermBU:
		return newPermBU(cfg)
	}
	return nil, eris.Errorf("sampler: unknown intervals method %q", cfg.Method)
}

// empiricalQuantiles reduces sample paths to per-row quantiles at the given
// probabilities using linear interpolation.
func empiricalQuantiles(samples *mat.Dense, probs []float64) *mat.Dense {
	rows, num := samples.Dims()
	out := mat.NewDense(rows, len(probs), nil)
	buf := make([]float64, num)
	for r := 0; r < rows; r++ {
		copy(buf, samples.RawRowView(r))
		sort.Float64s(buf)
		for k, p := range probs {
			out.Set(r, k, stat.Quantile(p, stat.LinInterp, buf, nil))
		}
	}
	return out
}
