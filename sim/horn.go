package sim

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// SolveHorn computes the least-squares rotation R minimizing Σ‖x2_i - R·x1_i‖²
// from the SVD of the cross-covariance M = Σ x2_i·x1_iᵀ = U·S·Vᵀ:
//
//	R = U·diag(1, 1, det(U·Vᵀ))·Vᵀ
//
// The determinant correction keeps R a proper rotation when the raw SVD
// solution is a reflection. Rank-deficient inputs are not special-cased.
func SolveHorn(set CorrespondenceSet) (Rotation, error) {
	m := mat.NewDense(3, 3, nil)
	for i := range set.X1 {
		a := [3]float64{set.X2[i].X, set.X2[i].Y, set.X2[i].Z}
		b := [3]float64{set.X1[i].X, set.X1[i].Y, set.X1[i].Z}
		for r := 0; r < 3; r++ {
			for c := 0; c < 3; c++ {
				m.Set(r, c, m.At(r, c)+a[r]*b[c])
			}
		}
	}

	var svd mat.SVD
	if ok := svd.Factorize(m, mat.SVDFull); !ok {
		return IdentityRotation(), fmt.Errorf("horn: svd factorization failed")
	}
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	var uvt mat.Dense
	uvt.Mul(&u, v.T())
	d := 1.0
	if mat.Det(&uvt) < 0 {
		d = -1
	}

	var ud, rd mat.Dense
	ud.Mul(&u, mat.NewDiagDense(3, []float64{1, 1, d}))
	rd.Mul(&ud, v.T())

	var rot Rotation
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			rot[3*r+c] = rd.At(r, c)
		}
	}
	return rot, nil
}

// MeanHornError returns the mean angular error in degrees of the Horn
// estimate against the ground truth quaternion of every sample in d.
func MeanHornError(d *Dataset) (float64, error) {
	if d.N == 0 {
		return 0, nil
	}
	est := make([]float64, 0, 4*d.N)
	for i := 0; i < d.N; i++ {
		rot, err := SolveHorn(d.Set(i))
		if err != nil {
			return 0, fmt.Errorf("sample %d: %w", i, err)
		}
		q := QuatXYZW(RotationToQuat(rot))
		est = append(est, q[:]...)
	}
	return QuatAngleDiff(est, d.Q), nil
}
