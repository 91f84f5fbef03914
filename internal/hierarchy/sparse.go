package hierarchy

import (
	"github.com/rotisserie/eris"
	"gonum.org/v1/gonum/mat"
)

// CSR is a compressed sparse row view of a summing matrix. Summing matrices
// are mostly zeros for any realistic hierarchy, so row-compressed products
// beat dense ones for the pure aggregation methods. CSR implements
// mat.Matrix and is safe for concurrent reads.
type CSR struct {
	r, c    int
	indptr  []int
	indices []int
	values  []float64
}

// CSR converts the matrix to compressed sparse row form.
func (m *Matrix) CSR() (*CSR, error) {
	return newCSR(m.data)
}

func newCSR(d *mat.Dense) (*CSR, error) {
	r, c := d.Dims()
	if r == 0 || c == 0 {
		return nil, eris.New("hierarchy: cannot build a sparse view of an empty matrix")
	}

	s := &CSR{r: r, c: c, indptr: make([]int, r+1)}
	for i := 0; i < r; i++ {
		row := d.RawRowView(i)
		for j, v := range row {
			if v != 0 {
				s.indices = append(s.indices, j)
				s.values = append(s.values, v)
			}
		}
		s.indptr[i+1] = len(s.indices)
	}
	if len(s.values) == 0 {
		return nil, eris.New("hierarchy: summing matrix has no nonzero entries")
	}
	return s, nil
}

// Dims returns the matrix dimensions.
func (s *CSR) Dims() (int, int) { return s.r, s.c }

// At returns the value at (i, j).
func (s *CSR) At(i, j int) float64 {
	for k := s.indptr[i]; k < s.indptr[i+1]; k++ {
		if s.indices[k] == j {
			return s.values[k]
		}
	}
	return 0
}

// T returns the transpose view.
func (s *CSR) T() mat.Matrix { return mat.Transpose{Matrix: s} }

// NNZ returns the number of stored nonzero entries.
func (s *CSR) NNZ() int { return len(s.values) }

// MulDense computes s @ x for a dense right-hand side.
func (s *CSR) MulDense(x *mat.Dense) (*mat.Dense, error) {
	xr, xc := x.Dims()
	if xr != s.c {
		return nil, eris.Errorf("hierarchy: sparse product dimension mismatch: %dx%d by %dx%d", s.r, s.c, xr, xc)
	}

	out := mat.NewDense(s.r, xc, nil)
	for i := 0; i < s.r; i++ {
		dst := out.RawRowView(i)
		for k := s.indptr[i]; k < s.indptr[i+1]; k++ {
			j, v := s.indices[k], s.values[k]
			src := x.RawRowView(j)
			for t := 0; t < xc; t++ {
				dst[t] += v * src[t]
			}
		}
	}
	return out, nil
}
