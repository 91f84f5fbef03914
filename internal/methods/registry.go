package methods

import (
	"sort"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/hts/internal/reconcile"
)

// Spec declares a reconciler by kind plus keyword parameters, the shape
// method lists take in config files.
type Spec struct {
	Kind   string         `mapstructure:"kind" yaml:"kind" json:"kind"`
	Params map[string]any `mapstructure:"params" yaml:"params" json:"params,omitempty"`
}

// factory builds a reconciler from keyword parameters.
type factory func(p *params) (reconcile.Reconciler, error)

var factories = map[string]factory{
	"bottom_up": func(*params) (reconcile.Reconciler, error) {
		return NewBottomUp(), nil
	},
	"bottom_up_sparse": func(*params) (reconcile.Reconciler, error) {
		return NewBottomUpSparse(), nil
	},
	"top_down": func(p *params) (reconcile.Reconciler, error) {
		method, err := p.str("method")
		if err != nil {
			return nil, err
		}
		return NewTopDown(method)
	},
	"middle_out": func(p *params) (reconcile.Reconciler, error) {
		level, err := p.str("middle_level")
		if err != nil {
			return nil, err
		}
		method, err := p.str("top_down_method")
		if err != nil {
			return nil, err
		}
		return NewMiddleOut(level, method)
	},
	"min_trace": func(p *params) (reconcile.Reconciler, error) {
		method, err := p.str("method")
		if err != nil {
			return nil, err
		}
		nonneg, err := p.optBool("nonnegative", false)
		if err != nil {
			return nil, err
		}
		ridge, err := p.optFloat("mint_shr_ridge", 0)
		if err != nil {
			return nil, err
		}
		return NewMinTrace(MinTraceConfig{Method: method, Nonnegative: nonneg, MintShrRidge: ridge})
	},
}

// Build constructs the reconciler a spec describes. Unknown kinds and
// unknown or mistyped parameters are errors.
func Build(spec Spec) (reconcile.Reconciler, error) {
	f, ok := factories[spec.Kind]
	if !ok {
		return nil, eris.Errorf("methods: unknown reconciler kind %q (known: %s)", spec.Kind, strings.Join(Kinds(), ", "))
	}
	p := &params{kind: spec.Kind, values: spec.Params, seen: make(map[string]bool)}
	r, err := f(p)
	if err != nil {
		return nil, err
	}
	if err := p.unused(); err != nil {
		return nil, err
	}
	return r, nil
}

// BuildAll constructs one reconciler per spec, in order.
func BuildAll(specs []Spec) ([]reconcile.Reconciler, error) {
	out := make([]reconcile.Reconciler, 0, len(specs))
	for i, spec := range specs {
		r, err := Build(spec)
		if err != nil {
			return nil, eris.Wrapf(err, "methods: spec %d", i)
		}
		out = append(out, r)
	}
	return out, nil
}

// Kinds returns the known reconciler kinds, sorted.
func Kinds() []string {
	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// params tracks which keys a factory consumed so leftovers can be rejected.
type params struct {
	kind   string
	values map[string]any
	seen   map[string]bool
}

func (p *params) str(key string) (string, error) {
	v, ok := p.values[key]
	if !ok {
		return "", eris.Errorf("methods: %s requires parameter %q", p.kind, key)
	}
	p.seen[key] = true
	s, ok := v.(string)
	if !ok {
		return "", eris.Errorf("methods: %s parameter %q must be a string, got %T", p.kind, key, v)
	}
	return s, nil
}

func (p *params) optBool(key string, def bool) (bool, error) {
	v, ok := p.values[key]
	if !ok {
		return def, nil
	}
	p.seen[key] = true
	b, ok := v.(bool)
	if !ok {
		return false, eris.Errorf("methods: %s parameter %q must be a bool, got %T", p.kind, key, v)
	}
	return b, nil
}

func (p *params) optFloat(key string, def float64) (float64, error) {
	v, ok := p.values[key]
	if !ok {
		return def, nil
	}
	p.seen[key] = true
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	default:
		return 0, eris.Errorf("methods: %s parameter %q must be a number, got %T", p.kind, key, v)
	}
}

func (p *params) unused() error {
	var extra []string
	for k := range p.values {
		if !p.seen[k] {
			extra = append(extra, k)
		}
	}
	if len(extra) == 0 {
		return nil
	}
	sort.Strings(extra)
	return eris.Errorf("methods: %s does not accept parameters: %s", p.kind, strings.Join(extra, ", "))
}
