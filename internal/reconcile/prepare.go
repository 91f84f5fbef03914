package reconcile

import (
	"math"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"gonum.org/v1/gonum/mat"

	"github.com/sells-group/hts/internal/frame"
	"github.com/sells-group/hts/internal/hierarchy"
	"github.com/sells-group/hts/internal/sampler"
)

// Options configures one reconciliation run.
type Options struct {
	// IntervalsMethod selects the interval-estimation strategy.
	IntervalsMethod sampler.Method
	// Levels are confidence levels in [0, 100); empty disables intervals.
	Levels []float64
	// NumSamples enables coherent sample emission when positive.
	NumSamples int
	// Seed initializes all random streams.
	Seed int64
	// Sort re-sorts input frames by hierarchy order then timestamp. When
	// false, frames must already be sorted series-contiguously.
	Sort bool
	// Balanced marks historical frames where every series covers identical
	// timestamps, enabling a pivot fast path.
	Balanced bool
	// Workers bounds dispatch parallelism; values below 2 run sequentially.
	Workers int
}

// DefaultOptions returns the baseline run configuration.
func DefaultOptions() Options {
	return Options{IntervalsMethod: sampler.Normality, Sort: true, Workers: 1}
}

// Request carries the inputs of one reconciliation run. The engine never
// mutates the supplied frames or matrix.
type Request struct {
	// Forecasts holds base forecasts: one column per model, optional
	// -lo-/-hi- interval columns.
	Forecasts *frame.Frame
	// Actuals holds historical values in the y column plus, per model, its
	// insample fitted values. Required by insample reconcilers and
	// resampling strategies.
	Actuals *frame.Frame
	// Hierarchy is the summing matrix.
	Hierarchy *hierarchy.Matrix
	// Tags groups series ids by aggregation level.
	Tags    map[string][]string
	Options Options
}

// prepared is the aligned, validated view of a request every dispatch runs
// from. All fields are read-only after prepare returns.
type prepared struct {
	forecasts *frame.Frame
	actuals   *frame.Frame
	matrix    *hierarchy.Matrix
	order     []string
	models    []string
	bottomIdx []int
	tagIdx    map[string][]int
	horizon   int
	insample  *mat.Dense
	levels    []float64
	balanced  bool
}

// prepare runs every fatal check before any reconciler executes: a run
// either fails here or produces a complete result.
func (e *Engine) prepare(req *Request) (*prepared, error) {
	opts := req.Options
	if req.Forecasts == nil || req.Forecasts.Len() == 0 {
		return nil, eris.Wrap(ErrMissingInput, "reconcile: empty forecast frame")
	}
	if req.Hierarchy == nil {
		return nil, eris.Wrap(ErrMissingInput, "reconcile: no summing matrix")
	}
	if !opts.IntervalsMethod.Valid() {
		return nil, eris.Wrapf(ErrConfig, "reconcile: unknown intervals method %q", opts.IntervalsMethod)
	}

	resampling := opts.IntervalsMethod.Resampling()
	if req.Actuals == nil {
		if e.needsInsample {
			return nil, eris.Wrap(ErrMissingInput, "reconcile: configured reconcilers fit on historical values, pass an actuals frame")
		}
		if resampling {
			return nil, eris.Wrapf(ErrMissingInput, "reconcile: %s intervals resample insample residuals, pass an actuals frame", opts.IntervalsMethod)
		}
	}

	// Bootstrap draws nothing parametric, so any level is quantile-able;
	// the other strategies turn levels into normal z-scores.
	if len(opts.Levels) > 0 && !resamplingOnly(opts.IntervalsMethod) {
		for _, l := range opts.Levels {
			if l < 0 || l >= 100 || math.IsNaN(l) {
				return nil, eris.Wrapf(ErrLevelDomain, "reconcile: confidence level %g outside [0, 100)", l)
			}
		}
	}

	fc := req.Forecasts
	ac := req.Actuals
	if opts.Sort {
		fc = fc.SortByOrder(req.Hierarchy.Rows())
		if ac != nil {
			ac = ac.SortByOrder(req.Hierarchy.Rows())
		}
	}

	var models []string
	for _, c := range fc.Columns() {
		if c == frame.TargetColumn || strings.Contains(c, "-lo-") ||
			strings.Contains(c, "-hi-") || strings.Contains(c, "-median") {
			continue
		}
		models = append(models, c)
	}
	if len(models) == 0 {
		return nil, eris.Wrap(ErrSchema, "reconcile: forecast frame has no model columns")
	}
	for _, m := range models {
		vals, err := fc.Column(m)
		if err != nil {
			return nil, err
		}
		var nulls, nonFinite int
		for _, v := range vals {
			switch {
			case math.IsNaN(v):
				nulls++
			case math.IsInf(v, 0):
				nonFinite++
			}
		}
		if nulls > 0 {
			return nil, eris.Wrapf(ErrSchema, "reconcile: model column %q has %d null values", m, nulls)
		}
		if nonFinite > 0 {
			return nil, eris.Wrapf(ErrSchema, "reconcile: model column %q has %d non-finite values", m, nonFinite)
		}
	}

	uids := fc.UniqueIDs()
	missing, extra := diffSets(req.Hierarchy.Rows(), uids)
	if len(missing) > 0 || len(extra) > 0 {
		return nil, eris.Wrapf(ErrAlignment,
			"reconcile: series mismatch between hierarchy and forecasts: %d hierarchy series missing from forecasts, %d forecast series unknown to hierarchy",
			len(missing), len(extra))
	}

	if ac != nil {
		if !ac.HasColumn(frame.TargetColumn) {
			return nil, eris.Wrapf(ErrSchema, "reconcile: actuals frame has no %q column", frame.TargetColumn)
		}
		amissing, aextra := diffSets(uids, ac.UniqueIDs())
		if len(amissing) > 0 || len(aextra) > 0 {
			return nil, eris.Wrapf(ErrAlignment,
				"reconcile: series mismatch between forecasts and actuals: %d missing from actuals, %d extra in actuals",
				len(amissing), len(aextra))
		}
		if resampling || e.usesFitted {
			var absent []string
			for _, m := range models {
				if !ac.HasColumn(m) {
					absent = append(absent, m)
				}
			}
			if len(absent) > 0 {
				return nil, eris.Wrapf(ErrSchema, "reconcile: actuals frame is missing fitted columns for models %v", absent)
			}
		}
	}

	matrix, err := req.Hierarchy.Reorder(uids)
	if err != nil {
		return nil, eris.Wrap(err, "reconcile: reorder summing matrix")
	}

	tagIdx := make(map[string][]int, len(req.Tags))
	for key, ids := range req.Tags {
		idx := make([]int, len(ids))
		for i, id := range ids {
			ri, ok := matrix.RowIndex(id)
			if !ok {
				return nil, eris.Wrapf(ErrAlignment, "reconcile: tag %q references unknown series %q", key, id)
			}
			idx[i] = ri
		}
		tagIdx[key] = idx
	}

	first, err := fc.Reshape(models[0], uids)
	if err != nil {
		return nil, eris.Wrapf(ErrAlignment, "reconcile: forecast frame: %v", err)
	}
	_, horizon := first.Dims()

	var insample *mat.Dense
	if ac != nil {
		if opts.Balanced {
			insample, err = ac.Reshape(frame.TargetColumn, uids)
			if err != nil {
				return nil, eris.Wrapf(ErrAlignment, "reconcile: actuals frame marked balanced: %v", err)
			}
		} else {
			insample, _, err = ac.Pivot(frame.TargetColumn, uids)
			if err != nil {
				return nil, eris.Wrap(err, "reconcile: actuals frame")
			}
		}
	}

	var levels []float64
	if len(opts.Levels) > 0 {
		levels = append([]float64(nil), opts.Levels...)
		sort.Float64s(levels)
	}

	return &prepared{
		forecasts: fc,
		actuals:   ac,
		matrix:    matrix,
		order:     uids,
		models:    models,
		bottomIdx: matrix.BottomIndex(),
		tagIdx:    tagIdx,
		horizon:   horizon,
		insample:  insample,
		levels:    levels,
		balanced:  opts.Balanced,
	}, nil
}

// fittedFor pivots one model's insample fitted values.
func (p *prepared) fittedFor(model string) (*mat.Dense, error) {
	if p.actuals == nil || !p.actuals.HasColumn(model) {
		return nil, nil
	}
	if p.balanced {
		return p.actuals.Reshape(model, p.order)
	}
	m, _, err := p.actuals.Pivot(model, p.order)
	return m, err
}

func resamplingOnly(m sampler.Method) bool {
	return m == sampler.Bootstrap
}

func diffSets(a, b []string) (onlyA, onlyB []string) {
	inA := make(map[string]bool, len(a))
	for _, s := range a {
		inA[s] = true
	}
	inB := make(map[string]bool, len(b))
	for _, s := range b {
		inB[s] = true
		if !inA[s] {
			onlyB = append(onlyB, s)
		}
	}
	for _, s := range a {
		if !inB[s] {
			onlyA = append(onlyA, s)
		}
	}
	return onlyA, onlyB
}
