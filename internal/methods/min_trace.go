package methods

import (
	"math"

	"github.com/rotisserie/eris"
	"gonum.org/v1/gonum/mat"

	"github.com/sells-group/hts/internal/reconcile"
)

// MinTrace weight estimators.
const (
	// MinTraceOLS weights every series equally.
	MinTraceOLS = "ols"
	// MinTraceWLSStruct weights by the number of bottom series aggregated.
	MinTraceWLSStruct = "wls_struct"
	// MinTraceWLSVar weights by insample residual variance.
	MinTraceWLSVar = "wls_var"
	// MinTraceShrink uses a shrunk full residual covariance.
	MinTraceShrink = "mint_shrink"
)

// defaultMintShrinkRidge stabilizes the shrunk covariance diagonal.
const defaultMintShrinkRidge = 2e-8

// MinTraceConfig configures a MinTrace reconciler.
type MinTraceConfig struct {
	Method string
	// Nonnegative clips negative reconciled bottom values to zero before
	// re-aggregating.
	Nonnegative bool
	// MintShrRidge is added to the shrunk covariance diagonal; zero selects
	// the default.
	MintShrRidge float64
}

// MinTrace reconciles by minimizing the trace of the coherent forecast
// error covariance: P = (S' W^-1 S)^-1 S' W^-1 with W per the configured
// estimator.
type MinTrace struct {
	name string
	cfg  MinTraceConfig
}

// NewMinTrace returns a MinTrace reconciler.
func NewMinTrace(cfg MinTraceConfig) (*MinTrace, error) {
	switch cfg.Method {
	case MinTraceOLS, MinTraceWLSStruct, MinTraceWLSVar, MinTraceShrink:
	default:
		return nil, eris.Errorf("methods: unknown min trace method %q", cfg.Method)
	}
	if cfg.MintShrRidge == 0 {
		cfg.MintShrRidge = defaultMintShrinkRidge
	}

	params := []reconcile.Param{
		{Name: "method", Value: cfg.Method},
		{Name: "nonnegative", Value: cfg.Nonnegative, Default: false},
	}
	if cfg.Method == MinTraceShrink {
		params = append(params, reconcile.Param{
			Name: "mint_shr_ridge", Value: cfg.MintShrRidge, Default: defaultMintShrinkRidge,
		})
	}
	return &MinTrace{cfg: cfg, name: reconcile.BuildName("MinTrace", params...)}, nil
}

func (m *MinTrace) Name() string { return m.name }

func (m *MinTrace) Capabilities() reconcile.Capabilities {
	insample := m.cfg.Method == MinTraceWLSVar || m.cfg.Method == MinTraceShrink
	return reconcile.Capabilities{
		NeedsInsample: insample,
		UsesFitted:    insample,
		UsesLevels:    true,
	}
}

func (m *MinTrace) FitPredict(args reconcile.Args) (*reconcile.Forecast, error) {
	mean, w, err := m.solve(args)
	if err != nil {
		return nil, err
	}
	return finish(args, mean, w)
}

func (m *MinTrace) Fit(args reconcile.Args) (reconcile.Fitted, error) {
	mean, w, err := m.solve(args)
	if err != nil {
		return nil, err
	}
	return fitState(args, mean, w)
}

func (m *MinTrace) solve(args reconcile.Args) (*mat.Dense, *mat.Dense, error) {
	s := denseOf(args.S)
	n, _ := s.Dims()

	// X = W^-1 S without forming W^-1: diagonal estimators scale rows, the
	// shrunk covariance goes through a solve.
	var x mat.Dense
	switch m.cfg.Method {
	case MinTraceOLS:
		x.CloneFrom(s)
	case MinTraceWLSStruct:
		diag := make([]float64, n)
		for i := 0; i < n; i++ {
			var sum float64
			for _, v := range s.RawRowView(i) {
				sum += v
			}
			if sum <= 0 {
				return nil, nil, eris.Errorf("methods: series row %d has non-positive structural weight", i)
			}
			diag[i] = sum
		}
		scaleRowsInv(&x, s, diag)
	case MinTraceWLSVar:
		res := residuals(args.Insample, args.Fitted)
		if res == nil {
			return nil, nil, eris.New("methods: wls_var needs insample and fitted values")
		}
		diag, err := residualVariances(res)
		if err != nil {
			return nil, nil, err
		}
		scaleRowsInv(&x, s, diag)
	case MinTraceShrink:
		res := residuals(args.Insample, args.Fitted)
		if res == nil {
			return nil, nil, eris.New("methods: mint_shrink needs insample and fitted values")
		}
		cov, err := shrunkCovariance(res, m.cfg.MintShrRidge)
		if err != nil {
			return nil, nil, err
		}
		if err := x.Solve(cov, s); err != nil {
			return nil, nil, eris.Wrap(err, "methods: shrunk covariance is singular")
		}
	}

	var a mat.Dense
	a.Mul(s.T(), &x)

	// P = A^-1 X' since S' W^-1 = (W^-1 S)' for symmetric W.
	var p mat.Dense
	if err := p.Solve(&a, x.T()); err != nil {
		return nil, nil, eris.Wrapf(err, "methods: min trace normal equations are singular (method %s)", m.cfg.Method)
	}

	var bottom mat.Dense
	bottom.Mul(&p, args.YHat)
	if m.cfg.Nonnegative {
		clipNegative(&bottom)
	}

	var mean mat.Dense
	mean.Mul(s, &bottom)

	var w *mat.Dense
	if len(args.Levels) > 0 {
		w = &mat.Dense{}
		w.Mul(s, &p)
	}
	return &mean, w, nil
}

// scaleRowsInv sets dst to s with row i divided by diag[i].
func scaleRowsInv(dst *mat.Dense, s *mat.Dense, diag []float64) {
	n, nb := s.Dims()
	dst.ReuseAs(n, nb)
	for i := 0; i < n; i++ {
		src := s.RawRowView(i)
		out := dst.RawRowView(i)
		for j, v := range src {
			out[j] = v / diag[i]
		}
	}
}

// residualVariances computes per-series variance over observed residuals.
func residualVariances(res *mat.Dense) ([]float64, error) {
	n, T := res.Dims()
	diag := make([]float64, n)
	for i := 0; i < n; i++ {
		var sum float64
		var cnt int
		for t := 0; t < T; t++ {
			if v := res.At(i, t); isFinite(v) {
				sum += v
				cnt++
			}
		}
		if cnt < 2 {
			return nil, eris.Errorf("methods: series row %d has fewer than 2 insample residuals", i)
		}
		mean := sum / float64(cnt)

		var ss float64
		for t := 0; t < T; t++ {
			if v := res.At(i, t); isFinite(v) {
				d := v - mean
				ss += d * d
			}
		}
		v := ss / float64(cnt-1)
		if v == 0 {
			return nil, eris.Errorf("methods: series row %d has zero residual variance", i)
		}
		diag[i] = v
	}
	return diag, nil
}

// shrunkCovariance estimates the residual covariance over complete
// cross-sections, shrinking off-diagonals toward zero with the
// Schafer-Strimmer intensity on correlations and adding a ridge to the
// diagonal.
func shrunkCovariance(res *mat.Dense, ridge float64) (*mat.Dense, error) {
	n, T := res.Dims()
	var usable []int
	for t := 0; t < T; t++ {
		complete := true
		for i := 0; i < n; i++ {
			if !isFinite(res.At(i, t)) {
				complete = false
				break
			}
		}
		if complete {
			usable = append(usable, t)
		}
	}
	tu := len(usable)
	if tu < 2 {
		return nil, eris.Errorf("methods: mint_shrink needs at least 2 complete residual cross-sections, found %d", tu)
	}

	centered := mat.NewDense(n, tu, nil)
	for i := 0; i < n; i++ {
		var sum float64
		for _, t := range usable {
			sum += res.At(i, t)
		}
		mean := sum / float64(tu)
		for u, t := range usable {
			centered.Set(i, u, res.At(i, t)-mean)
		}
	}

	cov := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		xi := centered.RawRowView(i)
		for j := i; j < n; j++ {
			xj := centered.RawRowView(j)
			var sum float64
			for u := range xi {
				sum += xi[u] * xj[u]
			}
			c := sum / float64(tu-1)
			cov.Set(i, j, c)
			cov.Set(j, i, c)
		}
	}

	sd := make([]float64, n)
	for i := 0; i < n; i++ {
		sd[i] = math.Sqrt(cov.At(i, i))
	}

	// Shrinkage intensity from the variance of the correlation estimates.
	var num, den float64
	scale := float64(tu) / math.Pow(float64(tu-1), 3)
	for i := 0; i < n; i++ {
		if sd[i] == 0 {
			continue
		}
		xi := centered.RawRowView(i)
		for j := i + 1; j < n; j++ {
			if sd[j] == 0 {
				continue
			}
			xj := centered.RawRowView(j)
			r := cov.At(i, j) / (sd[i] * sd[j])

			wbar := r * float64(tu-1) / float64(tu)
			var ss float64
			for u := range xi {
				w := xi[u] * xj[u] / (sd[i] * sd[j])
				d := w - wbar
				ss += d * d
			}
			num += scale * ss
			den += r * r
		}
	}
	lambda := 1.0
	if den > 0 {
		lambda = math.Min(1, math.Max(0, num/den))
	}

	out := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		out.Set(i, i, cov.At(i, i)+ridge)
		for j := i + 1; j < n; j++ {
			v := (1 - lambda) * cov.At(i, j)
			out.Set(i, j, v)
			out.Set(j, i, v)
		}
	}
	return out, nil
}

func clipNegative(m *mat.Dense) {
	r, c := m.Dims()
	for i := 0; i < r; i++ {
		row := m.RawRowView(i)
		for j := 0; j < c; j++ {
			if row[j] < 0 {
				row[j] = 0
			}
		}
	}
}
