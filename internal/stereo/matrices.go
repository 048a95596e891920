package stereo

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"
)

// Matrices are stored as flat row-major float64 arrays so they serialize
// to plain JSON lists and compare cheaply. The gonum wrappers below are
// used only inside the solver.

func mat3(a [9]float64) *mat.Dense {
	return mat.NewDense(3, 3, a[:])
}

func arr3(m mat.Matrix) [9]float64 {
	var a [9]float64
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			a[r*3+c] = m.At(r, c)
		}
	}
	return a
}

func arr34(m mat.Matrix) [12]float64 {
	var a [12]float64
	for r := 0; r < 3; r++ {
		for c := 0; c < 4; c++ {
			a[r*4+c] = m.At(r, c)
		}
	}
	return a
}

func mat34(a [12]float64) *mat.Dense {
	return mat.NewDense(3, 4, a[:])
}

// mul3 multiplies two row-major 3x3 matrices.
func mul3(a, b [9]float64) [9]float64 {
	var out [9]float64
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			out[r*3+c] = a[r*3]*b[c] + a[r*3+1]*b[3+c] + a[r*3+2]*b[6+c]
		}
	}
	return out
}

// mulVec3 applies a row-major 3x3 matrix to a vector.
func mulVec3(a [9]float64, v [3]float64) [3]float64 {
	return [3]float64{
		a[0]*v[0] + a[1]*v[1] + a[2]*v[2],
		a[3]*v[0] + a[4]*v[1] + a[5]*v[2],
		a[6]*v[0] + a[7]*v[1] + a[8]*v[2],
	}
}

// transpose3 transposes a row-major 3x3 matrix.
func transpose3(a [9]float64) [9]float64 {
	return [9]float64{
		a[0], a[3], a[6],
		a[1], a[4], a[7],
		a[2], a[5], a[8],
	}
}

func cross(a, b [3]float64) [3]float64 {
	return [3]float64{
		a[1]*b[2] - a[2]*b[1],
		a[2]*b[0] - a[0]*b[2],
		a[0]*b[1] - a[1]*b[0],
	}
}

func norm3(v [3]float64) float64 {
	return math.Sqrt(v[0]*v[0] + v[1]*v[1] + v[2]*v[2])
}

// skew returns the cross-product matrix [v]x.
func skew(v [3]float64) [9]float64 {
	return [9]float64{
		0, -v[2], v[1],
		v[2], 0, -v[0],
		-v[1], v[0], 0,
	}
}

// rodriguesToMatrix converts an axis-angle rotation vector to a rotation
// matrix.
func rodriguesToMatrix(r [3]float64) [9]float64 {
	theta := norm3(r)
	if theta < 1e-12 {
		return [9]float64{1, 0, 0, 0, 1, 0, 0, 0, 1}
	}
	k := [3]float64{r[0] / theta, r[1] / theta, r[2] / theta}
	kx := skew(k)
	kx2 := mul3(kx, kx)
	s, c := math.Sin(theta), math.Cos(theta)
	var out [9]float64
	for i := 0; i < 9; i++ {
		out[i] = kx[i]*s + kx2[i]*(1-c)
	}
	out[0] += 1
	out[4] += 1
	out[8] += 1
	return out
}

// matrixToRodrigues converts a rotation matrix to an axis-angle vector.
func matrixToRodrigues(m [9]float64) [3]float64 {
	tr := m[0] + m[4] + m[8]
	cosTheta := (tr - 1) / 2
	if cosTheta > 1 {
		cosTheta = 1
	} else if cosTheta < -1 {
		cosTheta = -1
	}
	theta := math.Acos(cosTheta)
	if theta < 1e-12 {
		return [3]float64{}
	}
	if math.Pi-theta < 1e-6 {
		// Near 180 degrees the off-diagonal difference vanishes; recover
		// the axis from the diagonal instead.
		ax := math.Sqrt(math.Max(0, (m[0]+1)/2))
		ay := math.Sqrt(math.Max(0, (m[4]+1)/2))
		az := math.Sqrt(math.Max(0, (m[8]+1)/2))
		if m[1] < 0 {
			ay = -ay
		}
		if m[2] < 0 {
			az = -az
		}
		return [3]float64{theta * ax, theta * ay, theta * az}
	}
	scale := theta / (2 * math.Sin(theta))
	return [3]float64{
		scale * (m[7] - m[5]),
		scale * (m[2] - m[6]),
		scale * (m[3] - m[1]),
	}
}

// matrixToQuat converts a rotation matrix to a unit quaternion using
// Shepperd's method.
func matrixToQuat(m [9]float64) quat.Number {
	tr := m[0] + m[4] + m[8]
	var q quat.Number
	switch {
	case tr > 0:
		s := math.Sqrt(tr+1) * 2
		q.Real = s / 4
		q.Imag = (m[7] - m[5]) / s
		q.Jmag = (m[2] - m[6]) / s
		q.Kmag = (m[3] - m[1]) / s
	case m[0] > m[4] && m[0] > m[8]:
		s := math.Sqrt(1+m[0]-m[4]-m[8]) * 2
		q.Real = (m[7] - m[5]) / s
		q.Imag = s / 4
		q.Jmag = (m[1] + m[3]) / s
		q.Kmag = (m[2] + m[6]) / s
	case m[4] > m[8]:
		s := math.Sqrt(1+m[4]-m[0]-m[8]) * 2
		q.Real = (m[2] - m[6]) / s
		q.Imag = (m[1] + m[3]) / s
		q.Jmag = s / 4
		q.Kmag = (m[5] + m[7]) / s
	default:
		s := math.Sqrt(1+m[8]-m[0]-m[4]) * 2
		q.Real = (m[3] - m[1]) / s
		q.Imag = (m[2] + m[6]) / s
		q.Jmag = (m[5] + m[7]) / s
		q.Kmag = s / 4
	}
	return q
}

// quatToMatrix converts a unit quaternion to a rotation matrix.
func quatToMatrix(q quat.Number) [9]float64 {
	w, x, y, z := q.Real, q.Imag, q.Jmag, q.Kmag
	return [9]float64{
		1 - 2*(y*y+z*z), 2 * (x*y - w*z), 2 * (x*z + w*y),
		2 * (x*y + w*z), 1 - 2*(x*x+z*z), 2 * (y*z - w*x),
		2 * (x*z - w*y), 2 * (y*z + w*x), 1 - 2*(x*x+y*y),
	}
}

// averageRotations computes the mean of a set of rotation matrices via
// sign-aligned quaternion averaging. Valid for rotations that are close
// together, which holds for per-view estimates of one fixed rig.
func averageRotations(ms [][9]float64) [9]float64 {
	if len(ms) == 0 {
		return [9]float64{1, 0, 0, 0, 1, 0, 0, 0, 1}
	}
	ref := matrixToQuat(ms[0])
	sum := quat.Number{}
	for _, m := range ms {
		q := matrixToQuat(m)
		// q and -q encode the same rotation; align hemispheres before
		// summing.
		if q.Real*ref.Real+q.Imag*ref.Imag+q.Jmag*ref.Jmag+q.Kmag*ref.Kmag < 0 {
			q = quat.Scale(-1, q)
		}
		sum = quat.Add(sum, q)
	}
	n := quat.Abs(sum)
	if n < 1e-12 {
		return ms[0]
	}
	return quatToMatrix(quat.Scale(1/n, sum))
}

// orthonormalize projects an approximate rotation matrix onto SO(3) via
// SVD, forcing det +1.
func orthonormalize(m [9]float64) ([9]float64, error) {
	var svd mat.SVD
	if !svd.Factorize(mat3(m), mat.SVDFull) {
		return m, solveDivergence("rotation orthonormalization failed")
	}
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)
	var r mat.Dense
	r.Mul(&u, v.T())
	if mat.Det(&r) < 0 {
		// Flip the last column of U to land on a proper rotation.
		for i := 0; i < 3; i++ {
			u.Set(i, 2, -u.At(i, 2))
		}
		r.Mul(&u, v.T())
	}
	return arr3(&r), nil
}

// smallestSingularVector factorizes a and returns the right singular
// vector paired with the smallest singular value, the classic nullspace
// estimate for homogeneous least squares.
func smallestSingularVector(a *mat.Dense) ([]float64, error) {
	var svd mat.SVD
	if !svd.Factorize(a, mat.SVDFull) {
		return nil, solveDivergence("SVD factorization failed")
	}
	var v mat.Dense
	svd.VTo(&v)
	rows, cols := v.Dims()
	out := make([]float64, rows)
	for i := 0; i < rows; i++ {
		out[i] = v.At(i, cols-1)
	}
	return out, nil
}
