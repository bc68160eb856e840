package space

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"orthoview/internal/models"
	"orthoview/pkg/volerr"
)

// SingularEpsilon is the determinant magnitude below which a transform is
// treated as non-invertible.
const SingularEpsilon = 1e-12

// BottomRowEpsilon bounds the deviation of a reconstructed bottom row from
// [0 0 0 1].
const BottomRowEpsilon = 1e-8

// Matrix12 is a 3x4 affine matrix in row-major order with an implicit
// bottom row of [0 0 0 1].
type Matrix12 [12]float64

// Identity12 is the identity transform.
var Identity12 = Matrix12{1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1, 0}

// Apply returns M*p + t.
func (m Matrix12) Apply(p models.Point3D) models.Point3D {
	return models.Point3D{
		X: p.X*m[0] + p.Y*m[1] + p.Z*m[2] + m[3],
		Y: p.X*m[4] + p.Y*m[5] + p.Z*m[6] + m[7],
		Z: p.X*m[8] + p.Y*m[9] + p.Z*m[10] + m[11],
	}
}

// Dense returns m as a 4x4 gonum matrix including the implicit bottom row.
func (m Matrix12) Dense() *mat.Dense {
	data := make([]float64, 16)
	copy(data, m[:])
	data[15] = 1
	return mat.NewDense(4, 4, data)
}

// EqualApprox reports whether all coefficients of m and o are within tol.
func (m Matrix12) EqualApprox(o Matrix12, tol float64) bool {
	return floats.EqualApprox(m[:], o[:], tol)
}

func (m Matrix12) String() string {
	return fmt.Sprintf("[%g %g %g %g; %g %g %g %g; %g %g %g %g]",
		m[0], m[1], m[2], m[3], m[4], m[5], m[6], m[7], m[8], m[9], m[10], m[11])
}

// inversion is the result of invert12 before any logging decision.
type inversion struct {
	inverse  Matrix12
	det      float64
	bottom   [4]float64
	bottomOK bool
}

// invert12 inverts m with the adjugate/determinant method: the inverse is
// the transposed cofactor matrix divided by the determinant.
func invert12(m Matrix12) (inversion, error) {
	var res inversion

	a := m.Dense()
	res.det = mat.Det(a)
	if math.Abs(res.det) < SingularEpsilon || math.IsNaN(res.det) {
		return res, volerr.SingularMatrix(res.det)
	}

	var full [4][4]float64
	minor := mat.NewDense(3, 3, nil)
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			fillMinor(minor, a, i, j)
			cofactor := mat.Det(minor)
			if (i+j)%2 == 1 {
				cofactor = -cofactor
			}
			// adjugate is the transpose of the cofactor matrix
			full[j][i] = cofactor / res.det
		}
	}

	copy(res.inverse[0:4], full[0][:])
	copy(res.inverse[4:8], full[1][:])
	copy(res.inverse[8:12], full[2][:])
	res.bottom = full[3]
	res.bottomOK = floats.EqualApprox(full[3][:], []float64{0, 0, 0, 1}, BottomRowEpsilon)
	return res, nil
}

// fillMinor writes a with row r and column c removed into dst.
func fillMinor(dst *mat.Dense, a *mat.Dense, r, c int) {
	di := 0
	for i := 0; i < 4; i++ {
		if i == r {
			continue
		}
		dj := 0
		for j := 0; j < 4; j++ {
			if j == c {
				continue
			}
			dst.Set(di, dj, a.At(i, j))
			dj++
		}
		di++
	}
}

// ComposeDirectionCosines folds volume orientations into a transform that
// was computed without them. The 3x3 part of t is right-multiplied by pre
// (translation unchanged) and the whole 3x4 result is left-multiplied by
// post. Both cosine matrices are row-major with one axis vector per row.
func ComposeDirectionCosines(t Matrix12, pre, post []float64) Matrix12 {
	linear := mat.NewDense(3, 3, []float64{
		t[0], t[1], t[2],
		t[4], t[5], t[6],
		t[8], t[9], t[10],
	})

	var rotated mat.Dense
	rotated.Mul(linear, mat.NewDense(3, 3, pre))

	tmp := mat.NewDense(3, 4, nil)
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			tmp.Set(r, c, rotated.At(r, c))
		}
		tmp.Set(r, 3, t[r*4+3])
	}

	var out mat.Dense
	out.Mul(mat.NewDense(3, 3, post), tmp)

	var res Matrix12
	for r := 0; r < 3; r++ {
		for c := 0; c < 4; c++ {
			res[r*4+c] = out.At(r, c)
		}
	}
	return res
}
