package main

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/hts/internal/frame"
	"github.com/sells-group/hts/internal/hierarchy"
	"github.com/sells-group/hts/internal/methods"
	"github.com/sells-group/hts/internal/reconcile"
	"github.com/sells-group/hts/internal/sampler"
)

// loadFrame reads a forecast or actuals frame, choosing the codec by file
// extension.
func loadFrame(path string) (*frame.Frame, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		return frame.ReadXLSX(path)
	default:
		return frame.ReadCSV(path)
	}
}

// loadHierarchy reads a labels CSV, one row per bottom series and one column
// per aggregation level, and builds the summing matrix. levels narrows or
// reorders the label columns; empty takes them in header order.
func loadHierarchy(path string, levels []string) (*hierarchy.Matrix, map[string][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, eris.Wrapf(err, "open hierarchy file %s", path)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.LazyQuotes = true
	records, err := r.ReadAll()
	if err != nil {
		return nil, nil, eris.Wrapf(err, "parse hierarchy file %s", path)
	}
	if len(records) < 2 {
		return nil, nil, eris.Errorf("hierarchy file %s has no data rows", path)
	}

	header := make([]string, len(records[0]))
	colIdx := make(map[string]int, len(records[0]))
	for i, h := range records[0] {
		header[i] = strings.TrimSpace(h)
		colIdx[header[i]] = i
	}
	if len(levels) == 0 {
		levels = header
	}
	for _, lvl := range levels {
		if _, ok := colIdx[lvl]; !ok {
			return nil, nil, eris.Errorf("hierarchy file %s has no column %q", path, lvl)
		}
	}

	series := make([]hierarchy.Labels, 0, len(records)-1)
	for _, rec := range records[1:] {
		lbl := make(hierarchy.Labels, len(levels))
		for _, lvl := range levels {
			if i := colIdx[lvl]; i < len(rec) {
				lbl[lvl] = rec[i]
			}
		}
		series = append(series, lbl)
	}
	return hierarchy.Aggregate(levels, series)
}

// methodSpecs resolves the reconciler pipeline: an explicit spec file wins
// over config, and with neither the pipeline is a single bottom_up.
func methodSpecs(path string) ([]methods.Spec, error) {
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, eris.Wrapf(err, "read methods file %s", path)
		}
		var specs []methods.Spec
		if err := yaml.Unmarshal(data, &specs); err != nil {
			return nil, eris.Wrapf(err, "parse methods file %s", path)
		}
		if len(specs) == 0 {
			return nil, eris.Errorf("methods file %s declares no methods", path)
		}
		return specs, nil
	}
	if len(cfg.Methods) > 0 {
		specs := make([]methods.Spec, len(cfg.Methods))
		for i, mc := range cfg.Methods {
			specs[i] = methods.Spec{Kind: mc.Kind, Params: mc.Params}
		}
		return specs, nil
	}
	return []methods.Spec{{Kind: "bottom_up"}}, nil
}

// runFlags are the input and run options shared by reconcile and bootstrap.
type runFlags struct {
	forecasts  string
	actuals    string
	hierFile   string
	levelCols  []string
	methods    string
	out        string
	intervals  string
	levels     []float64
	numSamples int
	seed       int64
	workers    int
	noSort     bool
	balanced   bool
}

func (f *runFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.forecasts, "forecasts", "", "base forecasts file, CSV or XLSX (required)")
	cmd.Flags().StringVar(&f.actuals, "actuals", "", "historical actuals file with insample fitted columns")
	cmd.Flags().StringVar(&f.hierFile, "hierarchy", "", "bottom-series labels CSV (required)")
	cmd.Flags().StringSliceVar(&f.levelCols, "level-columns", nil, "label columns to aggregate on, top to bottom (default: header order)")
	cmd.Flags().StringVar(&f.methods, "methods", "", "reconciler pipeline YAML file (default: config)")
	cmd.Flags().StringVar(&f.out, "out", "", "output CSV path (default: stdout)")
	cmd.Flags().StringVar(&f.intervals, "intervals", "", "interval strategy: normality, bootstrap or permbu (default: config)")
	cmd.Flags().Float64SliceVar(&f.levels, "levels", nil, "confidence levels in [0,100), e.g. 80,95")
	cmd.Flags().IntVar(&f.numSamples, "num-samples", 0, "coherent sample paths to emit per model")
	cmd.Flags().Int64Var(&f.seed, "seed", 0, "random seed")
	cmd.Flags().IntVar(&f.workers, "workers", 0, "parallel reconciliation tasks (default: config)")
	cmd.Flags().BoolVar(&f.noSort, "no-sort", false, "inputs are already sorted by hierarchy order")
	cmd.Flags().BoolVar(&f.balanced, "balanced", false, "actuals cover identical timestamps per series")
	_ = cmd.MarkFlagRequired("forecasts")
	_ = cmd.MarkFlagRequired("hierarchy")
}

// buildRequest loads all inputs and merges flag and config options.
func (f *runFlags) buildRequest(cmd *cobra.Command) (*reconcile.Request, []reconcile.Reconciler, error) {
	forecasts, err := loadFrame(f.forecasts)
	if err != nil {
		return nil, nil, eris.Wrap(err, "load forecasts")
	}
	var actuals *frame.Frame
	if f.actuals != "" {
		if actuals, err = loadFrame(f.actuals); err != nil {
			return nil, nil, eris.Wrap(err, "load actuals")
		}
	}
	matrix, tags, err := loadHierarchy(f.hierFile, f.levelCols)
	if err != nil {
		return nil, nil, eris.Wrap(err, "load hierarchy")
	}

	specs, err := methodSpecs(f.methods)
	if err != nil {
		return nil, nil, err
	}
	pipeline, err := methods.BuildAll(specs)
	if err != nil {
		return nil, nil, err
	}

	rc := cfg.Reconcile
	opts := reconcile.DefaultOptions()
	opts.Sort = rc.Sort && !f.noSort
	opts.Balanced = f.balanced || rc.Balanced
	opts.Seed = rc.Seed
	opts.NumSamples = rc.NumSamples
	opts.Workers = rc.Workers
	opts.Levels = rc.Levels

	method := f.intervals
	if method == "" {
		method = rc.Intervals
	}
	if opts.IntervalsMethod, err = sampler.ParseMethod(method); err != nil {
		return nil, nil, err
	}
	if cmd.Flags().Changed("levels") {
		opts.Levels = f.levels
	}
	if cmd.Flags().Changed("num-samples") {
		opts.NumSamples = f.numSamples
	}
	if cmd.Flags().Changed("seed") {
		opts.Seed = f.seed
	}
	if cmd.Flags().Changed("workers") {
		opts.Workers = f.workers
	}

	return &reconcile.Request{
		Forecasts: forecasts,
		Actuals:   actuals,
		Hierarchy: matrix,
		Tags:      tags,
		Options:   opts,
	}, pipeline, nil
}

// writeResult emits the reconciled frame as CSV to the output path or stdout.
func writeResult(res *reconcile.Result, out string) error {
	if out != "" {
		return res.Forecasts.WriteCSV(out)
	}
	return res.Forecasts.WriteCSVTo(os.Stdout)
}
