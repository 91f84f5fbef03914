package reconcile

import (
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/sells-group/hts/internal/frame"
)

// reverseEngineerSigma recovers the base-forecast standard deviation of one
// model from a prediction interval it shipped with its forecasts. The first
// column prefixed {model}-lo- or {model}-hi- wins; with interval half-width
// w at confidence level L, sigma = w / Phi^-1(0.5 + L/200). Lower bounds
// flip the sign so sigma comes out positive either way.
func reverseEngineerSigma(f *frame.Frame, yHat *mat.Dense, model string, order []string) (*mat.Dense, error) {
	var col, marker string
	sign := 1.0
	for _, c := range f.Columns() {
		switch {
		case strings.HasPrefix(c, model+"-lo-"):
			col, marker, sign = c, "-lo-", -1
		case strings.HasPrefix(c, model+"-hi-"):
			col, marker, sign = c, "-hi-", 1
		default:
			continue
		}
		break
	}
	if col == "" {
		return nil, eris.Wrapf(ErrMissingInterval, "reconcile: model %q has no -lo-/-hi- columns to derive sigma from", model)
	}

	lvl, err := strconv.ParseFloat(col[len(model)+len(marker):], 64)
	if err != nil {
		return nil, eris.Wrapf(ErrSchema, "reconcile: cannot parse confidence level from column %q", col)
	}

	bound, err := f.Reshape(col, order)
	if err != nil {
		return nil, eris.Wrapf(err, "reconcile: interval column %q", col)
	}

	z := distuv.Normal{Mu: 0, Sigma: 1}.Quantile(0.5 + lvl/200)
	n, h := yHat.Dims()
	sigma := mat.NewDense(n, h, nil)
	for i := 0; i < n; i++ {
		for t := 0; t < h; t++ {
			sigma.Set(i, t, sign*(bound.At(i, t)-yHat.At(i, t))/z)
		}
	}
	return sigma, nil
}
