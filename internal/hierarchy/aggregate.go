package hierarchy

import (
	"strings"

	"github.com/rotisserie/eris"
)

// RootID is the id of the synthetic top-level series every aggregated
// hierarchy includes.
const RootID = "total"

// Labels maps a level name to its value for one bottom-level series, e.g.
// {"state": "CA", "store": "s1"}.
type Labels map[string]string

// Aggregate builds a summing matrix and its tag groups from bottom-series
// labels. Levels are ordered top to bottom; ids are the "/"-joined label
// prefixes ("CA", "CA/s1") and a root RootID row sums every bottom series.
// Tag keys are the "/"-joined level-name prefixes plus RootID.
func Aggregate(levels []string, series []Labels) (*Matrix, map[string][]string, error) {
	if len(levels) == 0 {
		return nil, nil, eris.New("hierarchy: aggregate needs at least one level")
	}
	if len(series) == 0 {
		return nil, nil, eris.New("hierarchy: aggregate needs at least one bottom series")
	}

	type group struct {
		ids     []string
		members map[string][]int // id -> bottom column indices
	}
	groups := make([]group, len(levels))
	for k := range groups {
		groups[k].members = make(map[string][]int)
	}

	bottom := make([]string, 0, len(series))
	seen := make(map[string]bool, len(series))
	for col, s := range series {
		parts := make([]string, 0, len(levels))
		for _, lvl := range levels {
			v := strings.TrimSpace(s[lvl])
			if v == "" {
				return nil, nil, eris.Errorf("hierarchy: series %d has no value for level %q", col, lvl)
			}
			if strings.Contains(v, "/") {
				return nil, nil, eris.Errorf("hierarchy: label %q for level %q contains the id separator", v, lvl)
			}
			parts = append(parts, v)

			id := strings.Join(parts, "/")
			k := len(parts) - 1
			if _, ok := groups[k].members[id]; !ok {
				groups[k].ids = append(groups[k].ids, id)
			}
			groups[k].members[id] = append(groups[k].members[id], col)
		}

		id := strings.Join(parts, "/")
		if seen[id] {
			return nil, nil, eris.Errorf("hierarchy: duplicate bottom series %q", id)
		}
		seen[id] = true
		bottom = append(bottom, id)
	}

	rows := make([]string, 0, 1+len(series)*2)
	rows = append(rows, RootID)
	for _, g := range groups {
		rows = append(rows, g.ids...)
	}

	nb := len(bottom)
	data := make([]float64, len(rows)*nb)
	for j := 0; j < nb; j++ {
		data[j] = 1 // root row
	}
	r := 1
	for _, g := range groups {
		for _, id := range g.ids {
			for _, col := range g.members[id] {
				data[r*nb+col] = 1
			}
			r++
		}
	}

	m, err := New(rows, bottom, data)
	if err != nil {
		return nil, nil, err
	}

	tags := make(map[string][]string, len(levels)+1)
	tags[RootID] = []string{RootID}
	for k, g := range groups {
		key := strings.Join(levels[:k+1], "/")
		tags[key] = append([]string(nil), g.ids...)
	}
	return m, tags, nil
}
