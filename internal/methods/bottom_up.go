package methods

import (
	"gonum.org/v1/gonum/mat"

	"github.com/sells-group/hts/internal/hierarchy"
	"github.com/sells-group/hts/internal/reconcile"
)

// BottomUp aggregates bottom-level base forecasts up the hierarchy,
// discarding every aggregate-level base forecast.
type BottomUp struct {
	name string
}

// NewBottomUp returns the bottom-up reconciler.
func NewBottomUp() *BottomUp {
	return &BottomUp{name: reconcile.BuildName("BottomUp")}
}

func (b *BottomUp) Name() string { return b.name }

func (b *BottomUp) Capabilities() reconcile.Capabilities {
	return reconcile.Capabilities{UsesLevels: true}
}

func (b *BottomUp) FitPredict(args reconcile.Args) (*reconcile.Forecast, error) {
	mean, w, err := b.solve(args)
	if err != nil {
		return nil, err
	}
	return finish(args, mean, w)
}

func (b *BottomUp) Fit(args reconcile.Args) (reconcile.Fitted, error) {
	mean, w, err := b.solve(args)
	if err != nil {
		return nil, err
	}
	return fitState(args, mean, w)
}

func (b *BottomUp) solve(args reconcile.Args) (*mat.Dense, *mat.Dense, error) {
	s := denseOf(args.S)
	yb := bottomRows(args.YHat, args.BottomIdx)

	var mean mat.Dense
	mean.Mul(s, yb)

	var w *mat.Dense
	if len(args.Levels) > 0 {
		w = bottomUpWeights(s, args.BottomIdx)
	}
	return &mean, w, nil
}

// bottomUpWeights expands S into the full weights S*P where P selects the
// bottom rows: column bottomIdx[j] of W carries column j of S.
func bottomUpWeights(s *mat.Dense, bottomIdx []int) *mat.Dense {
	n, nb := s.Dims()
	w := mat.NewDense(n, n, nil)
	for j := 0; j < nb; j++ {
		col := bottomIdx[j]
		for i := 0; i < n; i++ {
			if v := s.At(i, j); v != 0 {
				w.Set(i, col, v)
			}
		}
	}
	return w
}

// BottomUpSparse is BottomUp running the aggregation over the compressed
// sparse row form of the summing matrix.
type BottomUpSparse struct {
	name string
}

// NewBottomUpSparse returns the sparse bottom-up reconciler.
func NewBottomUpSparse() *BottomUpSparse {
	return &BottomUpSparse{name: reconcile.BuildName("BottomUpSparse")}
}

func (b *BottomUpSparse) Name() string { return b.name }

func (b *BottomUpSparse) Capabilities() reconcile.Capabilities {
	return reconcile.Capabilities{UsesLevels: true, WantsSparse: true}
}

func (b *BottomUpSparse) FitPredict(args reconcile.Args) (*reconcile.Forecast, error) {
	mean, w, err := b.solve(args)
	if err != nil {
		return nil, err
	}
	return finish(args, mean, w)
}

func (b *BottomUpSparse) Fit(args reconcile.Args) (reconcile.Fitted, error) {
	mean, w, err := b.solve(args)
	if err != nil {
		return nil, err
	}
	return fitState(args, mean, w)
}

func (b *BottomUpSparse) solve(args reconcile.Args) (*mat.Dense, *mat.Dense, error) {
	yb := bottomRows(args.YHat, args.BottomIdx)

	var mean *mat.Dense
	if csr, ok := args.S.(*hierarchy.CSR); ok {
		m, err := csr.MulDense(yb)
		if err != nil {
			return nil, nil, err
		}
		mean = m
	} else {
		// Dense fallback when the sparse conversion failed upstream.
		mean = &mat.Dense{}
		mean.Mul(denseOf(args.S), yb)
	}

	// The probabilistic path runs dense either way.
	var w *mat.Dense
	if len(args.Levels) > 0 {
		w = bottomUpWeights(denseOf(args.S), args.BottomIdx)
	}
	return mean, w, nil
}
