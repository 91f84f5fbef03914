// Package reconcile orchestrates hierarchical forecast reconciliation: it
// aligns base forecasts with a summing matrix, dispatches them to a set of
// reconcilers and assembles coherent point, interval and sample outputs.
package reconcile

import (
	"gonum.org/v1/gonum/mat"

	"github.com/sells-group/hts/internal/sampler"
)

// Capabilities declares which dispatch arguments a reconciler consumes. The
// engine only populates the arguments a reconciler advertises.
type Capabilities struct {
	// NeedsInsample marks reconcilers that fit on historical values.
	NeedsInsample bool
	// UsesFitted marks reconcilers that consume the model's insample fitted
	// values (for residual-based weight estimation).
	UsesFitted bool
	// UsesLevels marks reconcilers able to produce interval forecasts.
	UsesLevels bool
	// UsesTags marks reconcilers that consume the tag-level index groups.
	UsesTags bool
	// WantsSparse asks for the compressed sparse row form of the summing
	// matrix when it is available.
	WantsSparse bool
}

// Args carries the dispatch arguments for one (reconciler, model) pair.
// Fields beyond S, BottomIdx, YHat and Seed are populated only when the
// reconciler's capabilities advertise them.
type Args struct {
	// S is the summing matrix in row-canonical order, dense or sparse.
	S mat.Matrix
	// BottomIdx maps each bottom column of S to its series row.
	BottomIdx []int
	// Tags maps tag level names to series row indices.
	Tags map[string][]int
	// YHat is the base forecast (series x horizon).
	YHat *mat.Dense
	// Insample holds historical values (series x timestamps), NaN filled.
	Insample *mat.Dense
	// Fitted holds the model's insample fitted values, same shape as
	// Insample.
	Fitted *mat.Dense
	// Sigma holds base-forecast standard deviations (series x horizon).
	Sigma *mat.Dense
	// Levels are the requested confidence levels, ascending.
	Levels []float64
	// Intervals is the interval-estimation strategy.
	Intervals sampler.Method
	// NumSamples is the number of sample paths requested, 0 when samples
	// are not wanted.
	NumSamples int
	// Seed initializes every random stream a reconciler derives.
	Seed int64
}

// Forecast is the reconciled output for one (reconciler, model) pair.
type Forecast struct {
	// Mean holds coherent point forecasts (series x horizon).
	Mean *mat.Dense
	// Quantiles holds interval forecasts as a (series*horizon) x
	// (2*len(levels)) matrix ordered by ascending probability, nil when no
	// levels were requested.
	Quantiles *mat.Dense
}

// Fitted is a reconciler fit to one model, able to produce predictions and
// coherent sample paths from the retained state.
type Fitted interface {
	Predict(levels []float64) (*Forecast, error)
	// Sample returns num coherent sample paths as a (series*horizon) x num
	// matrix.
	Sample(num int) (*mat.Dense, error)
}

// Reconciler turns base forecasts into coherent ones. Implementations must
// be safe for concurrent use: the engine may dispatch models in parallel.
type Reconciler interface {
	// Name returns the resolved reconciler name, derived once at
	// construction from the algorithm kind and its non-default parameters.
	Name() string
	Capabilities() Capabilities
	// FitPredict runs the combined path used when no sample paths are
	// requested.
	FitPredict(args Args) (*Forecast, error)
	// Fit retains state for the stateful predict-then-sample path.
	Fit(args Args) (Fitted, error)
}
