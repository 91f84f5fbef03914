package methods

import (
	"math"

	"github.com/rotisserie/eris"
	"gonum.org/v1/gonum/mat"

	"github.com/sells-group/hts/internal/reconcile"
)

// Disaggregation strategies shared by TopDown and MiddleOut.
const (
	// ForecastProportions splits by per-horizon shares of the bottom base
	// forecasts.
	ForecastProportions = "forecast_proportions"
	// AverageProportions averages the historical child/parent ratios.
	AverageProportions = "average_proportions"
	// ProportionAverages divides the historical child mean by the parent
	// mean.
	ProportionAverages = "proportion_averages"
)

func validProportionMethod(method string) bool {
	switch method {
	case ForecastProportions, AverageProportions, ProportionAverages:
		return true
	}
	return false
}

// TopDown disaggregates the top-level base forecast onto the bottom series
// and rebuilds every aggregate from there.
type TopDown struct {
	name   string
	method string
}

// NewTopDown returns a top-down reconciler using the given disaggregation
// strategy.
func NewTopDown(method string) (*TopDown, error) {
	if !validProportionMethod(method) {
		return nil, eris.Errorf("methods: unknown top down method %q", method)
	}
	return &TopDown{
		method: method,
		name:   reconcile.BuildName("TopDown", reconcile.Param{Name: "method", Value: method}),
	}, nil
}

func (td *TopDown) Name() string { return td.name }

func (td *TopDown) Capabilities() reconcile.Capabilities {
	insample := td.method != ForecastProportions
	// Forecast proportions vary per horizon, so no fixed weights exist for
	// the interval strategies.
	return reconcile.Capabilities{NeedsInsample: insample, UsesLevels: insample}
}

func (td *TopDown) FitPredict(args reconcile.Args) (*reconcile.Forecast, error) {
	mean, w, err := td.solve(args)
	if err != nil {
		return nil, err
	}
	return finish(args, mean, w)
}

func (td *TopDown) Fit(args reconcile.Args) (reconcile.Fitted, error) {
	mean, w, err := td.solve(args)
	if err != nil {
		return nil, err
	}
	return fitState(args, mean, w)
}

func (td *TopDown) solve(args reconcile.Args) (*mat.Dense, *mat.Dense, error) {
	s := denseOf(args.S)
	nb := len(args.BottomIdx)
	_, h := args.YHat.Dims()

	top, err := topRow(s)
	if err != nil {
		return nil, nil, err
	}

	bottom := mat.NewDense(nb, h, nil)
	var p []float64
	if td.method == ForecastProportions {
		yb := bottomRows(args.YHat, args.BottomIdx)
		for t := 0; t < h; t++ {
			var total float64
			for j := 0; j < nb; j++ {
				total += yb.At(j, t)
			}
			if total == 0 {
				return nil, nil, eris.Errorf("methods: bottom base forecasts sum to zero at horizon %d", t)
			}
			topVal := args.YHat.At(top, t)
			for j := 0; j < nb; j++ {
				bottom.Set(j, t, yb.At(j, t)/total*topVal)
			}
		}
	} else {
		p, err = insampleProportions(td.method, args.Insample, args.BottomIdx, top)
		if err != nil {
			return nil, nil, err
		}
		for t := 0; t < h; t++ {
			topVal := args.YHat.At(top, t)
			for j := 0; j < nb; j++ {
				bottom.Set(j, t, p[j]*topVal)
			}
		}
	}

	var mean mat.Dense
	mean.Mul(s, bottom)

	var w *mat.Dense
	if len(args.Levels) > 0 && p != nil {
		w = topDownWeights(s, p, top)
	}
	return &mean, w, nil
}

// topRow picks the hierarchy's total series: the row with the largest
// summing weight.
func topRow(s *mat.Dense) (int, error) {
	n, nb := s.Dims()
	best, bestSum := -1, math.Inf(-1)
	for i := 0; i < n; i++ {
		var sum float64
		for j := 0; j < nb; j++ {
			sum += s.At(i, j)
		}
		if sum > bestSum {
			best, bestSum = i, sum
		}
	}
	if best < 0 {
		return 0, eris.New("methods: summing matrix has no rows")
	}
	return best, nil
}

// insampleProportions derives fixed disaggregation proportions from
// historical values.
func insampleProportions(method string, insample *mat.Dense, childRows []int, parentRow int) ([]float64, error) {
	if insample == nil {
		return nil, eris.Errorf("methods: %s proportions need insample values", method)
	}
	parent := insample.RawRowView(parentRow)
	p := make([]float64, len(childRows))

	switch method {
	case AverageProportions:
		for j, cr := range childRows {
			child := insample.RawRowView(cr)
			var sum float64
			var cnt int
			for t, pv := range parent {
				cv := child[t]
				if isFinite(pv) && isFinite(cv) && pv != 0 {
					sum += cv / pv
					cnt++
				}
			}
			if cnt == 0 {
				return nil, eris.Errorf("methods: series row %d shares no usable insample observations with its parent", cr)
			}
			p[j] = sum / float64(cnt)
		}
	case ProportionAverages:
		var parentSum float64
		var parentCnt int
		for _, pv := range parent {
			if isFinite(pv) {
				parentSum += pv
				parentCnt++
			}
		}
		if parentCnt == 0 || parentSum == 0 {
			return nil, eris.New("methods: parent series has no usable insample observations or a zero mean")
		}
		parentMean := parentSum / float64(parentCnt)
		for j, cr := range childRows {
			child := insample.RawRowView(cr)
			var sum float64
			var cnt int
			for _, cv := range child {
				if isFinite(cv) {
					sum += cv
					cnt++
				}
			}
			if cnt == 0 {
				return nil, eris.Errorf("methods: series row %d has no usable insample observations", cr)
			}
			p[j] = sum / float64(cnt) / parentMean
		}
	default:
		return nil, eris.Errorf("methods: unknown proportion method %q", method)
	}
	return p, nil
}

// topDownWeights builds W = S*P where P routes proportion p[j] of the top
// series onto bottom row j: only column top of W is nonzero.
func topDownWeights(s *mat.Dense, p []float64, top int) *mat.Dense {
	n, nb := s.Dims()
	w := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		var v float64
		for j := 0; j < nb; j++ {
			v += s.At(i, j) * p[j]
		}
		w.Set(i, top, v)
	}
	return w
}
