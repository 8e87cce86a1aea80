package sim

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// PriorVecLen is the number of unique entries of a symmetric 4x4 matrix.
const PriorVecLen = 10

// PureQuat embeds v as an xyzw quaternion with zero scalar part.
func PureQuat(v r3.Vec) [4]float64 {
	return [4]float64{v.X, v.Y, v.Z, 0}
}

// OmegaLeft returns the 4x4 matrix L(q) with L(q)·p = q ⊗ p, xyzw ordering.
func OmegaLeft(q [4]float64) *mat.Dense {
	x, y, z, w := q[0], q[1], q[2], q[3]
	return mat.NewDense(4, 4, []float64{
		w, -z, y, x,
		z, w, -x, y,
		-y, x, w, z,
		-x, -y, -z, w,
	})
}

// OmegaRight returns the 4x4 matrix R(q) with R(q)·p = p ⊗ q, xyzw ordering.
func OmegaRight(q [4]float64) *mat.Dense {
	x, y, z, w := q[0], q[1], q[2], q[3]
	return mat.NewDense(4, 4, []float64{
		w, z, -y, x,
		-z, w, x, y,
		y, -x, w, z,
		-x, -y, -z, w,
	})
}

// BuildPrior accumulates the quadratic form A whose minimum eigenvector is
// the maximum likelihood quaternion for set under per-point variances sigmaSq:
//
//	A = Σ_i [(‖x2_i‖² + ‖x1_i‖²)·I + 2·Ω_l(x2_i)·Ω_r(x1_i)] / σ²_i
//
// For unit q, qᵀA_iq = ‖x2_i - R(q)·x1_i‖² / σ²_i. Ω_l and Ω_r of pure
// quaternions are skew-symmetric and commute, so their product and A are
// exactly symmetric. A zero variance yields non-finite entries.
func BuildPrior(set CorrespondenceSet, sigmaSq []float64) *mat.SymDense {
	acc := accumulatePrior(set, sigmaSq)
	a := mat.NewSymDense(4, nil)
	for i := 0; i < 4; i++ {
		for j := i; j < 4; j++ {
			a.SetSym(i, j, acc.At(i, j))
		}
	}
	return a
}

// accumulatePrior sums the dense per-point contributions without assuming symmetry.
func accumulatePrior(set CorrespondenceSet, sigmaSq []float64) *mat.Dense {
	acc := mat.NewDense(4, 4, nil)
	var prod mat.Dense
	for i := range set.X1 {
		x1, x2 := set.X1[i], set.X2[i]
		prod.Mul(OmegaLeft(PureQuat(x2)), OmegaRight(PureQuat(x1)))
		diag := r3.Norm2(x2) + r3.Norm2(x1)
		for r := 0; r < 4; r++ {
			for c := 0; c < 4; c++ {
				v := 2 * prod.At(r, c)
				if r == c {
					v += diag
				}
				acc.Set(r, c, acc.At(r, c)+v/sigmaSq[i])
			}
		}
	}
	return acc
}

// SolvePrior returns the unit quaternion minimizing qᵀAq, the eigenvector of
// the smallest eigenvalue of A, with a non-negative scalar part.
func SolvePrior(a mat.Symmetric) (Quaternion, error) {
	var es mat.EigenSym
	if ok := es.Factorize(a, true); !ok {
		return Quaternion{}, fmt.Errorf("eigen decomposition of prior matrix failed")
	}
	var vecs mat.Dense
	es.VectorsTo(&vecs)

	// Eigenvalues are returned in ascending order.
	q := NormalizeQuat(Quaternion{
		Imag: vecs.At(0, 0),
		Jmag: vecs.At(1, 0),
		Kmag: vecs.At(2, 0),
		Real: vecs.At(3, 0),
	})
	if q.Real < 0 {
		q = Quaternion{Real: -q.Real, Imag: -q.Imag, Jmag: -q.Jmag, Kmag: -q.Kmag}
	}
	return q, nil
}

// PriorVec returns the upper triangle of A in row major order.
func PriorVec(a mat.Symmetric) [PriorVecLen]float64 {
	var v [PriorVecLen]float64
	k := 0
	for i := 0; i < 4; i++ {
		for j := i; j < 4; j++ {
			v[k] = a.At(i, j)
			k++
		}
	}
	return v
}

// PriorFromVec rebuilds A from its upper triangle.
func PriorFromVec(v []float64) *mat.SymDense {
	a := mat.NewSymDense(4, nil)
	k := 0
	for i := 0; i < 4; i++ {
		for j := i; j < 4; j++ {
			a.SetSym(i, j, v[k])
			k++
		}
	}
	return a
}

// PriorVecs converts a flat (batch, 4, 4) buffer into a flat (batch, 10) buffer.
func PriorVecs(a []float64) []float64 {
	n := len(a) / 16
	out := make([]float64, 0, PriorVecLen*n)
	for i := 0; i < n; i++ {
		m := mat.NewDense(4, 4, a[16*i:16*i+16])
		for r := 0; r < 4; r++ {
			for c := r; c < 4; c++ {
				out = append(out, m.At(r, c))
			}
		}
	}
	return out
}
