package reconcile

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"

	"github.com/sells-group/hts/internal/frame"
	"github.com/sells-group/hts/internal/hierarchy"
	"github.com/sells-group/hts/internal/sampler"
)

// Engine dispatches base forecasts to a fixed set of reconcilers. It holds
// no per-run state: every invocation returns its own Result.
type Engine struct {
	reconcilers   []Reconciler
	needsInsample bool
	usesFitted    bool
	wantsSparse   bool
}

// New builds an engine over the given reconcilers. Resolved names must be
// unique, they key every output column and registry.
func New(reconcilers ...Reconciler) (*Engine, error) {
	if len(reconcilers) == 0 {
		return nil, eris.Wrap(ErrConfig, "reconcile: at least one reconciler is required")
	}
	e := &Engine{reconcilers: reconcilers}
	seen := make(map[string]bool, len(reconcilers))
	for _, r := range reconcilers {
		name := r.Name()
		if seen[name] {
			return nil, eris.Wrapf(ErrConfig, "reconcile: duplicate reconciler name %q", name)
		}
		seen[name] = true

		caps := r.Capabilities()
		e.needsInsample = e.needsInsample || caps.NeedsInsample
		e.usesFitted = e.usesFitted || caps.UsesFitted
		e.wantsSparse = e.wantsSparse || caps.WantsSparse
	}
	return e, nil
}

// Reconcilers returns the resolved names in dispatch order.
func (e *Engine) Reconcilers() []string {
	names := make([]string, len(e.reconcilers))
	for i, r := range e.reconcilers {
		names[i] = r.Name()
	}
	return names
}

// Result is the output of one run.
type Result struct {
	RunID string
	// Forecasts extends the (sorted) input frame with one column per
	// (model, reconciler) pair plus interval and sample columns.
	Forecasts *frame.Frame
	// ExecutionTimes records per-pair timing keyed model/reconciler.
	ExecutionTimes map[string]time.Duration
	// IntervalColumns records the interval column names emitted per pair.
	IntervalColumns map[string][]string
	// SampleColumns records the sample column names emitted per pair.
	SampleColumns map[string][]string
}

// Reconcile validates and aligns the request, runs every configured
// reconciler against every model column and assembles the coherent output.
func (e *Engine) Reconcile(ctx context.Context, req Request) (*Result, error) {
	runID := uuid.NewString()
	log := zap.L().With(
		zap.String("component", "reconcile.engine"),
		zap.String("run_id", runID),
	)

	prep, err := e.prepare(&req)
	if err != nil {
		return nil, err
	}
	return e.run(ctx, prep, req.Options, runID, log)
}

type task struct {
	rec   Reconciler
	model string
	key   string
}

type outCol struct {
	name string
	vals []float64
}

type taskResult struct {
	cols          []outCol
	intervalNames []string
	sampleNames   []string
	elapsed       time.Duration
}

func (e *Engine) run(ctx context.Context, prep *prepared, opts Options, runID string, log *zap.Logger) (*Result, error) {
	log.Info("reconciliation started",
		zap.Int("series", len(prep.order)),
		zap.Int("horizon", prep.horizon),
		zap.Strings("models", prep.models),
		zap.Strings("reconcilers", e.Reconcilers()),
		zap.String("intervals_method", opts.IntervalsMethod.String()),
		zap.Int64("seed", opts.Seed))

	// One sparse conversion per run, shared read-only by every task.
	var sparse *hierarchy.CSR
	if e.wantsSparse {
		var err error
		sparse, err = prep.matrix.CSR()
		if err != nil {
			log.Warn("sparse conversion failed, using dense summing matrix", zap.Error(err))
			sparse = nil
		}
	}

	tasks := make([]task, 0, len(e.reconcilers)*len(prep.models))
	for _, rec := range e.reconcilers {
		for _, m := range prep.models {
			tasks = append(tasks, task{rec: rec, model: m, key: m + "/" + rec.Name()})
		}
	}

	results := make([]*taskResult, len(tasks))
	start := time.Now()

	if opts.Workers > 1 {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(opts.Workers)
		for i := range tasks {
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return eris.Wrap(err, "reconcile: cancelled")
				}
				taskStart := time.Now()
				r, err := e.runTask(prep, opts, tasks[i], sparse)
				if err != nil {
					return eris.Wrapf(err, "reconcile: %s", tasks[i].key)
				}
				r.elapsed = time.Since(taskStart)
				results[i] = r
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	} else {
		for i := range tasks {
			select {
			case <-ctx.Done():
				return nil, eris.Wrap(ctx.Err(), "reconcile: cancelled")
			default:
			}
			r, err := e.runTask(prep, opts, tasks[i], sparse)
			if err != nil {
				return nil, eris.Wrapf(err, "reconcile: %s", tasks[i].key)
			}
			// Cumulative from run start, so times ascend in dispatch order.
			r.elapsed = time.Since(start)
			results[i] = r
		}
	}

	// Assembly follows task order, so output columns are deterministic no
	// matter how workers were scheduled.
	out := prep.forecasts.Copy()
	times := make(map[string]time.Duration, len(tasks))
	intervalCols := make(map[string][]string)
	sampleCols := make(map[string][]string)
	for i, t := range tasks {
		r := results[i]
		for _, c := range r.cols {
			if err := out.AddColumn(c.name, c.vals); err != nil {
				return nil, eris.Wrapf(err, "reconcile: %s", t.key)
			}
		}
		times[t.key] = r.elapsed
		if len(r.intervalNames) > 0 {
			intervalCols[t.key] = r.intervalNames
		}
		if len(r.sampleNames) > 0 {
			sampleCols[t.key] = r.sampleNames
		}
		log.Info("reconciled",
			zap.String("model", t.model),
			zap.String("reconciler", t.rec.Name()),
			zap.Int("columns", len(r.cols)),
			zap.Duration("elapsed", r.elapsed))
	}

	log.Info("reconciliation complete",
		zap.Int("pairs", len(tasks)),
		zap.Duration("elapsed", time.Since(start)))

	return &Result{
		RunID:           runID,
		Forecasts:       out,
		ExecutionTimes:  times,
		IntervalColumns: intervalCols,
		SampleColumns:   sampleCols,
	}, nil
}

// runTask executes one (reconciler, model) pair. Arguments are assembled
// from the reconciler's capability descriptor, unadvertised fields stay nil.
func (e *Engine) runTask(prep *prepared, opts Options, t task, sparse *hierarchy.CSR) (*taskResult, error) {
	caps := t.rec.Capabilities()

	yHat, err := prep.forecasts.Reshape(t.model, prep.order)
	if err != nil {
		return nil, eris.Wrap(err, "base forecasts")
	}

	args := Args{BottomIdx: prep.bottomIdx, YHat: yHat, Seed: opts.Seed}
	if caps.WantsSparse && sparse != nil {
		args.S = sparse
	} else {
		args.S = prep.matrix.Dense()
	}
	if caps.UsesTags {
		args.Tags = prep.tagIdx
	}

	wantProb := len(prep.levels) > 0 && caps.UsesLevels
	resampling := opts.IntervalsMethod.Resampling()
	if caps.NeedsInsample || caps.UsesFitted || (wantProb && resampling) {
		args.Insample = prep.insample
		fitted, err := prep.fittedFor(t.model)
		if err != nil {
			return nil, eris.Wrap(err, "fitted values")
		}
		args.Fitted = fitted
	}
	if wantProb {
		args.Levels = prep.levels
		args.Intervals = opts.IntervalsMethod
		args.NumSamples = max(opts.NumSamples, 0)
		if opts.IntervalsMethod == sampler.Normality || opts.IntervalsMethod == sampler.PermBU {
			sigma, err := reverseEngineerSigma(prep.forecasts, yHat, t.model, prep.order)
			if err != nil {
				return nil, err
			}
			args.Sigma = sigma
		}
	}

	var (
		fc      *Forecast
		samples *mat.Dense
	)
	if wantProb && opts.NumSamples > 0 {
		fitted, err := t.rec.Fit(args)
		if err != nil {
			return nil, err
		}
		if fc, err = fitted.Predict(prep.levels); err != nil {
			return nil, err
		}
		if samples, err = fitted.Sample(opts.NumSamples); err != nil {
			return nil, err
		}
	} else if fc, err = t.rec.FitPredict(args); err != nil {
		return nil, err
	}

	n, h := len(prep.order), prep.horizon
	if fc == nil || fc.Mean == nil {
		return nil, eris.New("reconciler returned no mean forecast")
	}
	if mr, mc := fc.Mean.Dims(); mr != n || mc != h {
		return nil, eris.Errorf("reconciler returned a %dx%d mean, want %dx%d", mr, mc, n, h)
	}

	res := &taskResult{cols: []outCol{{name: t.key, vals: flatten(fc.Mean)}}}
	if wantProb {
		if fc.Quantiles == nil {
			return nil, eris.New("reconciler advertised interval support but returned no quantiles")
		}
		if qr, qc := fc.Quantiles.Dims(); qr != n*h || qc != 2*len(prep.levels) {
			return nil, eris.Errorf("reconciler returned %dx%d quantiles, want %dx%d", qr, qc, n*h, 2*len(prep.levels))
		}
		names := intervalNames(t.key, prep.levels)
		for k, nm := range names {
			res.cols = append(res.cols, outCol{name: nm, vals: matCol(fc.Quantiles, k)})
		}
		res.intervalNames = names
	}
	if samples != nil {
		if sr, sc := samples.Dims(); sr != n*h || sc != opts.NumSamples {
			return nil, eris.Errorf("reconciler returned %dx%d samples, want %dx%d", sr, sc, n*h, opts.NumSamples)
		}
		for k := 0; k < opts.NumSamples; k++ {
			nm := fmt.Sprintf("%s-sample-%d", t.key, k)
			res.cols = append(res.cols, outCol{name: nm, vals: matCol(samples, k)})
			res.sampleNames = append(res.sampleNames, nm)
		}
	}
	return res, nil
}

// intervalNames orders interval columns as all lower bounds for descending
// levels, then all upper bounds ascending, matching ascending quantile
// probabilities.
func intervalNames(key string, levels []float64) []string {
	names := make([]string, 0, 2*len(levels))
	for i := len(levels) - 1; i >= 0; i-- {
		names = append(names, key+"-lo-"+formatLevel(levels[i]))
	}
	for _, l := range levels {
		names = append(names, key+"-hi-"+formatLevel(l))
	}
	return names
}

func formatLevel(l float64) string {
	return strconv.FormatFloat(l, 'g', -1, 64)
}

func flatten(m *mat.Dense) []float64 {
	r, c := m.Dims()
	out := make([]float64, 0, r*c)
	for i := 0; i < r; i++ {
		out = append(out, m.RawRowView(i)...)
	}
	return out
}

func matCol(m *mat.Dense, k int) []float64 {
	r, _ := m.Dims()
	out := make([]float64, r)
	for i := 0; i < r; i++ {
		out[i] = m.At(i, k)
	}
	return out
}
