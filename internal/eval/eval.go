// Package eval scores reconciled forecasts against realized actuals.
package eval

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/montanaflynn/stats"
	"github.com/rotisserie/eris"

	"github.com/sells-group/hts/internal/frame"
)

// Options adjust how Evaluate scores a reconciled frame.
type Options struct {
	// Insample supplies historical actuals for the MASE denominator. When
	// nil, MASE is reported as NaN.
	Insample *frame.Frame
	// Season is the seasonal lag of the MASE naive baseline. Zero means 1.
	Season int
	// Tags adds one group per hierarchy level, restricted to that level's
	// series, in addition to the overall group.
	Tags map[string][]string
}

// ColumnMetrics scores one point-forecast column over the matched rows.
type ColumnMetrics struct {
	Column string  `json:"column"`
	N      int     `json:"n"`
	MSE    float64 `json:"mse"`
	MAE    float64 `json:"mae"`
	RMSE   float64 `json:"rmse"`
	MASE   float64 `json:"mase"`
}

// IntervalCoverage reports how often actuals fell inside one lo/hi pair.
type IntervalCoverage struct {
	Column   string  `json:"column"`
	Level    float64 `json:"level"`
	N        int     `json:"n"`
	Observed float64 `json:"observed"`
	Nominal  float64 `json:"nominal"`
}

// Group is one evaluation slice, either overall or a single hierarchy level.
type Group struct {
	Name     string             `json:"name"`
	Series   int                `json:"series"`
	Metrics  []ColumnMetrics    `json:"metrics"`
	Coverage []IntervalCoverage `json:"coverage,omitempty"`
}

// Report is the full evaluation output.
type Report struct {
	Groups []Group `json:"groups"`
}

type obsKey struct {
	id string
	ts int64
}

type intervalPair struct {
	base  string
	level float64
	lo    string
	hi    string
}

type groupSpec struct {
	name   string
	member map[string]bool // nil means every series
}

// Evaluate matches reconciled rows to actuals on (series, timestamp) and
// scores every forecast column. Rows present on only one side are ignored.
func Evaluate(reconciled, actuals *frame.Frame, opts Options) (*Report, error) {
	if reconciled == nil || actuals == nil {
		return nil, eris.New("eval: reconciled and actuals frames are required")
	}
	y, err := actuals.Column(frame.TargetColumn)
	if err != nil {
		return nil, eris.Wrap(err, "eval: actuals frame")
	}

	truth := make(map[obsKey]float64, actuals.Len())
	aIDs, aTimes := actuals.IDs(), actuals.Times()
	for i := range aIDs {
		truth[obsKey{aIDs[i], aTimes[i].UnixNano()}] = y[i]
	}

	meanCols, pairs := classifyColumns(reconciled.Columns())
	if len(meanCols) == 0 {
		return nil, eris.New("eval: reconciled frame has no forecast columns")
	}

	season := opts.Season
	if season <= 0 {
		season = 1
	}
	var scale map[string]float64
	if opts.Insample != nil {
		scale, err = naiveScale(opts.Insample, season)
		if err != nil {
			return nil, err
		}
	}

	groups := []groupSpec{{name: "overall"}}
	for _, level := range sortedKeys(opts.Tags) {
		member := make(map[string]bool, len(opts.Tags[level]))
		for _, id := range opts.Tags[level] {
			member[id] = true
		}
		groups = append(groups, groupSpec{name: level, member: member})
	}

	rep := &Report{Groups: make([]Group, 0, len(groups))}
	for _, g := range groups {
		grp, err := evalGroup(reconciled, truth, meanCols, pairs, scale, g)
		if err != nil {
			return nil, err
		}
		rep.Groups = append(rep.Groups, grp)
	}
	return rep, nil
}

// classifyColumns splits output columns into point forecasts and matched
// interval bound pairs. Sample columns are ignored.
func classifyColumns(cols []string) ([]string, []intervalPair) {
	his := make(map[string]string)
	var mean []string
	for _, c := range cols {
		if c == frame.TargetColumn || strings.Contains(c, "-sample-") {
			continue
		}
		if base, lvl, ok := splitBound(c, "-hi-"); ok {
			his[base+"\x00"+formatLevel(lvl)] = c
			continue
		}
		if _, _, ok := splitBound(c, "-lo-"); ok {
			continue
		}
		mean = append(mean, c)
	}

	var pairs []intervalPair
	for _, c := range cols {
		base, lvl, ok := splitBound(c, "-lo-")
		if !ok {
			continue
		}
		hi, ok := his[base+"\x00"+formatLevel(lvl)]
		if !ok {
			continue
		}
		pairs = append(pairs, intervalPair{base: base, level: lvl, lo: c, hi: hi})
	}
	return mean, pairs
}

func splitBound(col, marker string) (string, float64, bool) {
	i := strings.LastIndex(col, marker)
	if i < 0 {
		return "", 0, false
	}
	lvl, err := strconv.ParseFloat(col[i+len(marker):], 64)
	if err != nil {
		return "", 0, false
	}
	return col[:i], lvl, true
}

func formatLevel(lvl float64) string {
	return strconv.FormatFloat(lvl, 'g', -1, 64)
}

func evalGroup(f *frame.Frame, truth map[obsKey]float64, meanCols []string, pairs []intervalPair, scale map[string]float64, g groupSpec) (Group, error) {
	ids, times := f.IDs(), f.Times()

	seriesSeen := make(map[string]bool)
	for i := range ids {
		if g.member != nil && !g.member[ids[i]] {
			continue
		}
		seriesSeen[ids[i]] = true
	}

	grp := Group{Name: g.name, Series: len(seriesSeen)}
	for _, col := range meanCols {
		vals, err := f.Column(col)
		if err != nil {
			return Group{}, eris.Wrap(err, "eval: reconciled frame")
		}

		var sq, abs []float64
		var seriesOrder []string
		perSeries := make(map[string][]float64)
		for i := range ids {
			if g.member != nil && !g.member[ids[i]] {
				continue
			}
			actual, ok := truth[obsKey{ids[i], times[i].UnixNano()}]
			if !ok || !finite(actual) || !finite(vals[i]) {
				continue
			}
			e := vals[i] - actual
			sq = append(sq, e*e)
			abs = append(abs, math.Abs(e))
			if _, ok := perSeries[ids[i]]; !ok {
				seriesOrder = append(seriesOrder, ids[i])
			}
			perSeries[ids[i]] = append(perSeries[ids[i]], math.Abs(e))
		}

		m := ColumnMetrics{Column: col, N: len(sq), MSE: math.NaN(), MAE: math.NaN(), RMSE: math.NaN(), MASE: math.NaN()}
		if len(sq) > 0 {
			if m.MSE, err = stats.Mean(sq); err != nil {
				return Group{}, eris.Wrapf(err, "eval: column %s", col)
			}
			if m.MAE, err = stats.Mean(abs); err != nil {
				return Group{}, eris.Wrapf(err, "eval: column %s", col)
			}
			m.RMSE = math.Sqrt(m.MSE)
			m.MASE = maseOver(seriesOrder, perSeries, scale)
		}
		grp.Metrics = append(grp.Metrics, m)
	}

	for _, p := range pairs {
		lo, err := f.Column(p.lo)
		if err != nil {
			return Group{}, eris.Wrap(err, "eval: reconciled frame")
		}
		hi, err := f.Column(p.hi)
		if err != nil {
			return Group{}, eris.Wrap(err, "eval: reconciled frame")
		}

		var n, inside int
		for i := range ids {
			if g.member != nil && !g.member[ids[i]] {
				continue
			}
			actual, ok := truth[obsKey{ids[i], times[i].UnixNano()}]
			if !ok || !finite(actual) || !finite(lo[i]) || !finite(hi[i]) {
				continue
			}
			n++
			if actual >= lo[i] && actual <= hi[i] {
				inside++
			}
		}
		cov := IntervalCoverage{Column: p.base, Level: p.level, N: n, Observed: math.NaN(), Nominal: p.level / 100}
		if n > 0 {
			cov.Observed = float64(inside) / float64(n)
		}
		grp.Coverage = append(grp.Coverage, cov)
	}
	return grp, nil
}

// maseOver averages per-series MASE ratios. Series without a usable naive
// scale are skipped; with no scale data at all the result is NaN.
func maseOver(order []string, perSeries map[string][]float64, scale map[string]float64) float64 {
	if len(scale) == 0 {
		return math.NaN()
	}
	var ratios []float64
	for _, id := range order {
		s, ok := scale[id]
		if !ok {
			continue
		}
		m, err := stats.Mean(perSeries[id])
		if err != nil {
			continue
		}
		ratios = append(ratios, m/s)
	}
	if len(ratios) == 0 {
		return math.NaN()
	}
	out, err := stats.Mean(ratios)
	if err != nil {
		return math.NaN()
	}
	return out
}

// naiveScale computes the per-series MASE denominator: the mean absolute
// seasonal-naive error over the insample history.
func naiveScale(insample *frame.Frame, season int) (map[string]float64, error) {
	y, err := insample.Column(frame.TargetColumn)
	if err != nil {
		return nil, eris.Wrap(err, "eval: insample frame")
	}

	type point struct {
		ts  int64
		val float64
	}
	byID := make(map[string][]point)
	ids, times := insample.IDs(), insample.Times()
	for i := range ids {
		byID[ids[i]] = append(byID[ids[i]], point{times[i].UnixNano(), y[i]})
	}

	out := make(map[string]float64, len(byID))
	for id, pts := range byID {
		sort.Slice(pts, func(a, b int) bool { return pts[a].ts < pts[b].ts })
		var diffs []float64
		for t := season; t < len(pts); t++ {
			d := pts[t].val - pts[t-season].val
			if finite(d) {
				diffs = append(diffs, math.Abs(d))
			}
		}
		if len(diffs) == 0 {
			continue
		}
		m, err := stats.Mean(diffs)
		if err != nil || m == 0 {
			continue
		}
		out[id] = m
	}
	return out, nil
}

func sortedKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
