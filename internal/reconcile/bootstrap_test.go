package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEngine_BootstrapReconcile_StacksSeedRuns(t *testing.T) {
	req := engineFixture(t, false)
	e, err := New(&fakeReconciler{name: "ident"})
	require.NoError(t, err)

	res, err := e.BootstrapReconcile(context.Background(), req, 3)
	require.NoError(t, err)

	assert.Equal(t, 18, res.Forecasts.Len())
	assert.Equal(t, []string{"model", "model/ident", SeedColumn}, res.Forecasts.Columns())

	seeds, err := res.Forecasts.Column(SeedColumn)
	require.NoError(t, err)
	want := make([]float64, 0, 18)
	for s := 0; s < 3; s++ {
		for i := 0; i < 6; i++ {
			want = append(want, float64(s))
		}
	}
	assert.Equal(t, want, seeds)

	// Every seed block repeats the same row order.
	ids := res.Forecasts.IDs()
	assert.Equal(t, ids[:6], ids[6:12])
	assert.Equal(t, ids[:6], ids[12:18])
}

func TestEngine_BootstrapReconcile_SeedsReachReconcilers(t *testing.T) {
	req := engineFixture(t, false)
	req.Options.Seed = 99 // overridden per run
	rec := &fakeReconciler{name: "ident"}
	e, err := New(rec)
	require.NoError(t, err)

	_, err = e.BootstrapReconcile(context.Background(), req, 3)
	require.NoError(t, err)

	calls := rec.seen()
	require.Len(t, calls, 3)
	for i, c := range calls {
		assert.Equal(t, int64(i), c.Seed)
	}
}

func TestEngine_BootstrapReconcile_TimesAccumulate(t *testing.T) {
	req := engineFixture(t, false)
	e, err := New(&fakeReconciler{name: "slow", delay: 5 * time.Millisecond})
	require.NoError(t, err)

	res, err := e.BootstrapReconcile(context.Background(), req, 2)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, res.ExecutionTimes["model/slow"], 10*time.Millisecond)
}

func TestEngine_BootstrapReconcile_RequiresAtLeastOneSeed(t *testing.T) {
	req := engineFixture(t, false)
	e, err := New(&fakeReconciler{name: "ident"})
	require.NoError(t, err)

	_, err = e.BootstrapReconcile(context.Background(), req, 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConfig))
}
