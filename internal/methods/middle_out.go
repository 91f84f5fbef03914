package methods

import (
	"sort"

	"github.com/rotisserie/eris"
	"gonum.org/v1/gonum/mat"

	"github.com/sells-group/hts/internal/reconcile"
)

// MiddleOut anchors reconciliation at one aggregation level: forecasts at
// the middle level are disaggregated top-down onto their bottom series, and
// everything above is rebuilt bottom-up.
type MiddleOut struct {
	name          string
	middleLevel   string
	topDownMethod string
}

// NewMiddleOut returns a middle-out reconciler anchored at the named tag
// level.
func NewMiddleOut(middleLevel, topDownMethod string) (*MiddleOut, error) {
	if middleLevel == "" {
		return nil, eris.New("methods: middle out needs a middle level")
	}
	if !validProportionMethod(topDownMethod) {
		return nil, eris.Errorf("methods: unknown top down method %q", topDownMethod)
	}
	return &MiddleOut{
		middleLevel:   middleLevel,
		topDownMethod: topDownMethod,
		name: reconcile.BuildName("MiddleOut",
			reconcile.Param{Name: "middle_level", Value: middleLevel},
			reconcile.Param{Name: "top_down_method", Value: topDownMethod},
		),
	}, nil
}

func (mo *MiddleOut) Name() string { return mo.name }

func (mo *MiddleOut) Capabilities() reconcile.Capabilities {
	return reconcile.Capabilities{
		NeedsInsample: mo.topDownMethod != ForecastProportions,
		UsesTags:      true,
	}
}

func (mo *MiddleOut) FitPredict(args reconcile.Args) (*reconcile.Forecast, error) {
	mean, err := mo.solve(args)
	if err != nil {
		return nil, err
	}
	return finish(args, mean, nil)
}

func (mo *MiddleOut) Fit(args reconcile.Args) (reconcile.Fitted, error) {
	mean, err := mo.solve(args)
	if err != nil {
		return nil, err
	}
	return fitState(args, mean, nil)
}

func (mo *MiddleOut) solve(args reconcile.Args) (*mat.Dense, error) {
	middle, ok := args.Tags[mo.middleLevel]
	if !ok {
		keys := make([]string, 0, len(args.Tags))
		for k := range args.Tags {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return nil, eris.Errorf("methods: middle level %q not found in tags %v", mo.middleLevel, keys)
	}

	s := denseOf(args.S)
	nb := len(args.BottomIdx)
	_, h := args.YHat.Dims()

	bottom := mat.NewDense(nb, h, nil)
	covered := make([]bool, nb)
	for _, m := range middle {
		// The subtree of a middle series is its nonzero summing columns.
		var cols []int
		for j := 0; j < nb; j++ {
			if s.At(m, j) != 0 {
				cols = append(cols, j)
			}
		}
		if len(cols) == 0 {
			return nil, eris.Errorf("methods: middle series row %d covers no bottom series", m)
		}
		for _, j := range cols {
			if covered[j] {
				return nil, eris.Errorf("methods: middle level %q does not partition the bottom series", mo.middleLevel)
			}
			covered[j] = true
		}

		if mo.topDownMethod == ForecastProportions {
			for t := 0; t < h; t++ {
				var total float64
				for _, j := range cols {
					total += args.YHat.At(args.BottomIdx[j], t)
				}
				if total == 0 {
					return nil, eris.Errorf("methods: bottom base forecasts under middle series row %d sum to zero at horizon %d", m, t)
				}
				mv := args.YHat.At(m, t)
				for _, j := range cols {
					bottom.Set(j, t, args.YHat.At(args.BottomIdx[j], t)/total*mv)
				}
			}
			continue
		}

		childRows := make([]int, len(cols))
		for i, j := range cols {
			childRows[i] = args.BottomIdx[j]
		}
		p, err := insampleProportions(mo.topDownMethod, args.Insample, childRows, m)
		if err != nil {
			return nil, err
		}
		for t := 0; t < h; t++ {
			mv := args.YHat.At(m, t)
			for i, j := range cols {
				bottom.Set(j, t, p[i]*mv)
			}
		}
	}

	for j, ok := range covered {
		if !ok {
			return nil, eris.Errorf("methods: bottom column %d is under no %q series", j, mo.middleLevel)
		}
	}

	var mean mat.Dense
	mean.Mul(s, bottom)
	return &mean, nil
}
