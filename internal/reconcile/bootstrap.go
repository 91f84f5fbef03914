package reconcile

import (
	"context"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// SeedColumn records which seed produced each output row of a bootstrap run.
const SeedColumn = "seed"

// BootstrapReconcile runs the full reconciliation once per seed in
// [0, numSeeds) over a single validated view of the inputs, and stacks the
// per-seed outputs row-wise with a seed column. Every seed must produce the
// identical column layout; drift is an error rather than something to paper
// over. Execution times accumulate across seeds.
func (e *Engine) BootstrapReconcile(ctx context.Context, req Request, numSeeds int) (*Result, error) {
	if numSeeds < 1 {
		return nil, eris.Wrapf(ErrConfig, "reconcile: num seeds must be at least 1, got %d", numSeeds)
	}

	runID := uuid.NewString()
	log := zap.L().With(
		zap.String("component", "reconcile.engine"),
		zap.String("run_id", runID),
		zap.Int("num_seeds", numSeeds),
	)

	prep, err := e.prepare(&req)
	if err != nil {
		return nil, err
	}

	var (
		combined *Result
		layout   []string
	)
	for seed := 0; seed < numSeeds; seed++ {
		opts := req.Options
		opts.Seed = int64(seed)

		res, err := e.run(ctx, prep, opts, runID, log.With(zap.Int("seed", seed)))
		if err != nil {
			return nil, err
		}

		seedVals := make([]float64, res.Forecasts.Len())
		for i := range seedVals {
			seedVals[i] = float64(seed)
		}
		if err := res.Forecasts.AddColumn(SeedColumn, seedVals); err != nil {
			return nil, eris.Wrap(err, "reconcile: seed column")
		}

		if seed == 0 {
			combined = res
			layout = res.Forecasts.Columns()
			continue
		}
		if !equalStrings(res.Forecasts.Columns(), layout) {
			return nil, eris.Errorf("reconcile: seed %d produced a different column layout than seed 0", seed)
		}
		if err := combined.Forecasts.Append(res.Forecasts); err != nil {
			return nil, eris.Wrapf(err, "reconcile: stack seed %d", seed)
		}
		for k, v := range res.ExecutionTimes {
			combined.ExecutionTimes[k] += v
		}
	}

	log.Info("bootstrap reconciliation complete", zap.Int("rows", combined.Forecasts.Len()))
	return combined, nil
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
