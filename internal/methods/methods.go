// Package methods implements the canonical reconcilers: BottomUp, TopDown,
// MiddleOut and MinTrace. All are linear, producing a coherent mean S*P*yhat
// plus optional intervals and sample paths through the configured strategy.
package methods

import (
	"math"

	"github.com/rotisserie/eris"
	"gonum.org/v1/gonum/mat"

	"github.com/sells-group/hts/internal/reconcile"
	"github.com/sells-group/hts/internal/sampler"
)

// denseOf returns m as *mat.Dense, copying only when it is a sparse view.
func denseOf(m mat.Matrix) *mat.Dense {
	if d, ok := m.(*mat.Dense); ok {
		return d
	}
	return mat.DenseCopyOf(m)
}

// bottomRows extracts the bottom-series rows of a (series x k) matrix in
// canonical bottom order.
func bottomRows(m *mat.Dense, bottomIdx []int) *mat.Dense {
	_, k := m.Dims()
	out := mat.NewDense(len(bottomIdx), k, nil)
	for j, row := range bottomIdx {
		out.SetRow(j, m.RawRowView(row))
	}
	return out
}

// residuals computes insample minus fitted values. NaN propagates where a
// series has no observation.
func residuals(insample, fitted *mat.Dense) *mat.Dense {
	if insample == nil || fitted == nil {
		return nil
	}
	r, c := insample.Dims()
	out := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		for t := 0; t < c; t++ {
			out.Set(i, t, insample.At(i, t)-fitted.At(i, t))
		}
	}
	return out
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// state is the retained fit of a linear reconciler: the coherent mean plus
// an optional interval strategy.
type state struct {
	mean *mat.Dense
	smp  sampler.Sampler
}

func (s *state) Predict(levels []float64) (*reconcile.Forecast, error) {
	fc := &reconcile.Forecast{Mean: s.mean}
	if len(levels) > 0 {
		if s.smp == nil {
			return nil, eris.New("methods: no interval strategy was fit")
		}
		q, err := s.smp.Quantiles(levels)
		if err != nil {
			return nil, err
		}
		fc.Quantiles = q
	}
	return fc, nil
}

func (s *state) Sample(num int) (*mat.Dense, error) {
	if s.smp == nil {
		return nil, eris.New("methods: no interval strategy was fit")
	}
	return s.smp.Sample(num)
}

// fitState wires the reconciled outputs into the requested interval
// strategy. w holds the reconciliation weights S*P and may be nil when no
// levels were requested.
func fitState(args reconcile.Args, mean, w *mat.Dense) (*state, error) {
	st := &state{mean: mean}
	if len(args.Levels) > 0 {
		smp, err := sampler.New(sampler.Config{
			Method:    args.Intervals,
			S:         denseOf(args.S),
			W:         w,
			Mean:      mean,
			BaseYHat:  args.YHat,
			Sigma:     args.Sigma,
			Residuals: residuals(args.Insample, args.Fitted),
			BottomIdx: args.BottomIdx,
			Seed:      args.Seed,
		})
		if err != nil {
			return nil, err
		}
		st.smp = smp
	}
	return st, nil
}

// finish assembles the combined-mode forecast.
func finish(args reconcile.Args, mean, w *mat.Dense) (*reconcile.Forecast, error) {
	st, err := fitState(args, mean, w)
	if err != nil {
		return nil, err
	}
	return st.Predict(args.Levels)
}
