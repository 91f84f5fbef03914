package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildName(t *testing.T) {
	cases := []struct {
		name   string
		kind   string
		params []Param
		want   string
	}{
		{
			name: "kind only",
			kind: "bottom_up",
			want: "bottom_up",
		},
		{
			name: "required param always contributes",
			kind: "top_down",
			params: []Param{
				{Name: "method", Value: "forecast_proportions", Default: nil},
			},
			want: "top_down_method-forecast_proportions",
		},
		{
			name: "default values are omitted",
			kind: "min_trace",
			params: []Param{
				{Name: "method", Value: "ols", Default: nil},
				{Name: "nonnegative", Value: false, Default: false},
			},
			want: "min_trace_method-ols",
		},
		{
			name: "bool renders as true",
			kind: "min_trace",
			params: []Param{
				{Name: "method", Value: "ols", Default: nil},
				{Name: "nonnegative", Value: true, Default: false},
			},
			want: "min_trace_method-ols_nonnegative-true",
		},
		{
			name: "float renders compactly",
			kind: "min_trace",
			params: []Param{
				{Name: "method", Value: "mint_shrink", Default: nil},
				{Name: "mint_shr_ridge", Value: 1e-6, Default: 2e-8},
			},
			want: "min_trace_method-mint_shrink_mint_shr_ridge-1e-06",
		},
		{
			name: "float at default is omitted",
			kind: "min_trace",
			params: []Param{
				{Name: "method", Value: "mint_shrink", Default: nil},
				{Name: "mint_shr_ridge", Value: 2e-8, Default: 2e-8},
			},
			want: "min_trace_method-mint_shrink",
		},
		{
			name: "wiring params never contribute",
			kind: "bottom_up",
			params: []Param{
				{Name: "workers", Value: 8, Default: 1, Wiring: true},
			},
			want: "bottom_up",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, BuildName(tc.kind, tc.params...))
		})
	}
}

func TestBuildName_Deterministic(t *testing.T) {
	a := BuildName("middle_out",
		Param{Name: "middle_level", Value: "state", Default: nil},
		Param{Name: "top_down_method", Value: "average_proportions", Default: nil},
	)
	b := BuildName("middle_out",
		Param{Name: "middle_level", Value: "state", Default: nil},
		Param{Name: "top_down_method", Value: "average_proportions", Default: nil},
	)
	assert.Equal(t, a, b)
	assert.Equal(t, "middle_out_middle_level-state_top_down_method-average_proportions", a)
}
