package sampler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// bottomUpWeights is S*P for the (total, a, b) hierarchy with bottom rows
// a and b.
func bottomUpWeights() *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		0, 1, 1,
		0, 1, 0,
		0, 0, 1,
	})
}

func normalityFixture(t *testing.T, seed int64) Sampler {
	t.Helper()
	s, err := New(Config{
		Method: Normality,
		W:      bottomUpWeights(),
		Mean:   mat.NewDense(3, 1, []float64{30, 10, 20}),
		Sigma:  mat.NewDense(3, 1, []float64{5, 3, 4}),
		Seed:   seed,
	})
	require.NoError(t, err)
	return s
}

func TestNormality_Quantiles(t *testing.T) {
	s := normalityFixture(t, 0)

	q, err := s.Quantiles([]float64{80})
	require.NoError(t, err)
	r, c := q.Dims()
	assert.Equal(t, 3, r)
	assert.Equal(t, 2, c)

	// z(0.9) = 1.2815515655446004. The total's reconciled sigma is
	// sqrt(3^2 + 4^2) = 5, independent of its own base sigma.
	const z80 = 1.2815515655446004
	assert.InDelta(t, 30-5*z80, q.At(0, 0), 1e-9)
	assert.InDelta(t, 30+5*z80, q.At(0, 1), 1e-9)
	assert.InDelta(t, 10-3*z80, q.At(1, 0), 1e-9)
	assert.InDelta(t, 10+3*z80, q.At(1, 1), 1e-9)
	assert.InDelta(t, 20-4*z80, q.At(2, 0), 1e-9)
	assert.InDelta(t, 20+4*z80, q.At(2, 1), 1e-9)
}

func TestNormality_Quantiles_TwoLevels(t *testing.T) {
	s := normalityFixture(t, 0)

	q, err := s.Quantiles([]float64{80, 95})
	require.NoError(t, err)
	_, c := q.Dims()
	require.Equal(t, 4, c)

	// Columns follow ascending probability: lo-95, lo-80, hi-80, hi-95.
	const (
		z80 = 1.2815515655446004
		z95 = 1.9599639845400545
	)
	assert.InDelta(t, 30-5*z95, q.At(0, 0), 1e-9)
	assert.InDelta(t, 30-5*z80, q.At(0, 1), 1e-9)
	assert.InDelta(t, 30+5*z80, q.At(0, 2), 1e-9)
	assert.InDelta(t, 30+5*z95, q.At(0, 3), 1e-9)
}

func TestNormality_Quantiles_NoLevels(t *testing.T) {
	s := normalityFixture(t, 0)
	_, err := s.Quantiles(nil)
	require.Error(t, err)
}

func TestNormality_Sample_CoherentAndDeterministic(t *testing.T) {
	s := normalityFixture(t, 7)

	got, err := s.Sample(50)
	require.NoError(t, err)
	r, c := got.Dims()
	require.Equal(t, 3, r)
	require.Equal(t, 50, c)

	// Noise flows through the same weights as the mean, so total = a + b on
	// every path.
	for k := 0; k < c; k++ {
		assert.InDelta(t, got.At(1, k)+got.At(2, k), got.At(0, k), 1e-9, "sample %d", k)
	}

	again, err := normalityFixture(t, 7).Sample(50)
	require.NoError(t, err)
	assert.True(t, mat.Equal(got, again), "same seed must reproduce samples")

	other, err := normalityFixture(t, 8).Sample(50)
	require.NoError(t, err)
	assert.False(t, mat.Equal(got, other), "different seeds must differ")
}

func TestNormality_Sample_InvalidCount(t *testing.T) {
	s := normalityFixture(t, 0)
	_, err := s.Sample(0)
	require.Error(t, err)
}

func TestNewNormality_Validates(t *testing.T) {
	_, err := New(Config{Method: Normality})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "normality needs")

	_, err = New(Config{
		Method: Normality,
		W:      mat.NewDense(2, 2, nil),
		Mean:   mat.NewDense(3, 1, nil),
		Sigma:  mat.NewDense(3, 1, nil),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "weights are 2x2")
}
