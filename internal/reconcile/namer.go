package reconcile

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// Param describes one reconciler parameter for name resolution.
type Param struct {
	Name string
	// Value is the configured value, Default the value the parameter takes
	// when omitted. A parameter at its default contributes no token;
	// required parameters use a nil Default so they always contribute.
	Value   any
	Default any
	// Wiring parameters configure execution rather than the algorithm and
	// never contribute to the name.
	Wiring bool
}

// BuildName derives the canonical reconciler name: the algorithm kind plus a
// name-value token for every non-default, non-wiring parameter, joined with
// underscores. Identical configurations always resolve to identical names.
func BuildName(kind string, params ...Param) string {
	parts := []string{kind}
	for _, p := range params {
		if p.Wiring || reflect.DeepEqual(p.Value, p.Default) {
			continue
		}
		parts = append(parts, p.Name+"-"+formatParam(p.Value))
	}
	return strings.Join(parts, "_")
}

func formatParam(v any) string {
	switch x := v.(type) {
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'g', -1, 32)
	default:
		return fmt.Sprintf("%v", v)
	}
}
