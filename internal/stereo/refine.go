package stereo

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Nonlinear refinement of the closed-form bootstrap: damped Gauss-Newton
// over the full reprojection residual. Rotations travel through the
// parameter vector as Rodrigues vectors so the optimizer stays on SO(3).

// residualFunc evaluates the stacked reprojection residual for a
// parameter vector. Residuals are predicted minus observed pixels.
type residualFunc func(p []float64) []float64

func sumSquares(r []float64) float64 {
	var s float64
	for _, v := range r {
		s += v * v
	}
	return s
}

// numericJacobian builds the forward-difference Jacobian of fn at p,
// reusing the already-evaluated residual r0.
func numericJacobian(p, r0 []float64, fn residualFunc) *mat.Dense {
	m, n := len(r0), len(p)
	j := mat.NewDense(m, n, nil)
	for col := 0; col < n; col++ {
		step := 1e-6 * math.Max(1, math.Abs(p[col]))
		saved := p[col]
		p[col] = saved + step
		r1 := fn(p)
		p[col] = saved
		inv := 1 / step
		for row := 0; row < m; row++ {
			j.Set(row, col, (r1[row]-r0[row])*inv)
		}
	}
	return j
}

// levenbergMarquardt minimizes ||fn(p)||^2 starting from p0. It returns
// the refined parameters and the final sum of squared residuals. A
// failure to improve is not an error: the caller judges convergence by
// the resulting RMS. Only a non-finite residual is fatal.
func levenbergMarquardt(p0 []float64, fn residualFunc, maxIter int) ([]float64, float64, error) {
	p := append([]float64(nil), p0...)
	r := fn(p)
	cost := sumSquares(r)
	if math.IsNaN(cost) || math.IsInf(cost, 0) {
		return nil, 0, solveDivergence("initial reprojection residual is not finite")
	}
	lambda := 1e-3
	for iter := 0; iter < maxIter; iter++ {
		if cost < 1e-16 {
			break
		}
		j := numericJacobian(p, r, fn)
		var jtj mat.Dense
		jtj.Mul(j.T(), j)
		rv := mat.NewVecDense(len(r), r)
		var jtr mat.VecDense
		jtr.MulVec(j.T(), rv)

		n := len(p)
		improved := false
		for tries := 0; tries < 8 && !improved; tries++ {
			a := mat.NewDense(n, n, nil)
			a.Copy(&jtj)
			for i := 0; i < n; i++ {
				a.Set(i, i, jtj.At(i, i)+lambda*(jtj.At(i, i)+1e-9))
			}
			var delta mat.VecDense
			if err := delta.SolveVec(a, &jtr); err != nil {
				lambda *= 10
				continue
			}
			trial := make([]float64, n)
			for i := range trial {
				trial[i] = p[i] - delta.AtVec(i)
			}
			tr := fn(trial)
			tc := sumSquares(tr)
			if !math.IsNaN(tc) && !math.IsInf(tc, 0) && tc < cost {
				p, r, cost = trial, tr, tc
				lambda = math.Max(lambda*0.3, 1e-12)
				improved = true
			} else {
				lambda *= 10
			}
		}
		if !improved {
			break
		}
	}
	return p, cost, nil
}

// packMono lays out one camera's parameters:
// [fx fy cx cy k1 k2, then rx ry rz tx ty tz per view].
func packMono(in Intrinsics, views []viewExtrinsics) []float64 {
	p := make([]float64, 0, 6+6*len(views))
	p = append(p, in.Fx, in.Fy, in.Cx, in.Cy, in.K1, in.K2)
	for _, v := range views {
		r := matrixToRodrigues(v.R)
		p = append(p, r[0], r[1], r[2], v.T[0], v.T[1], v.T[2])
	}
	return p
}

func unpackMono(p []float64) (Intrinsics, []viewExtrinsics) {
	in := Intrinsics{Fx: p[0], Fy: p[1], Cx: p[2], Cy: p[3], K1: p[4], K2: p[5]}
	nviews := (len(p) - 6) / 6
	views := make([]viewExtrinsics, nviews)
	for i := 0; i < nviews; i++ {
		base := 6 + 6*i
		views[i] = viewExtrinsics{
			R: rodriguesToMatrix([3]float64{p[base], p[base+1], p[base+2]}),
			T: [3]float64{p[base+3], p[base+4], p[base+5]},
		}
	}
	return in, views
}

// refineCamera jointly refines one camera's intrinsics, distortion and
// per-view extrinsics against the observed corners. Returns the refined
// estimate plus the final sum of squared pixel residuals.
func refineCamera(obj []Point3, imgViews [][]Point2, in Intrinsics, views []viewExtrinsics, maxIter int) (Intrinsics, []viewExtrinsics, float64, error) {
	fn := func(p []float64) []float64 {
		cin, cviews := unpackMono(p)
		res := make([]float64, 0, 2*len(imgViews)*len(obj))
		for v, img := range imgViews {
			for i, observed := range img {
				pred := projectPoint(obj[i], cin, cviews[v].R, cviews[v].T)
				res = append(res, pred.X-observed.X, pred.Y-observed.Y)
			}
		}
		return res
	}
	p, cost, err := levenbergMarquardt(packMono(in, views), fn, maxIter)
	if err != nil {
		return in, views, 0, err
	}
	rin, rviews := unpackMono(p)
	if err := rin.Validate(); err != nil {
		return in, views, 0, solveDivergence("refined intrinsics invalid: %v", err)
	}
	return rin, rviews, cost, nil
}

// refineStereoPose refines the left-to-right rig transform with both
// cameras' intrinsics and the left extrinsics held fixed. The right
// camera pose for view v is derived as Rr = R*Rl, Tr = R*Tl + T.
func refineStereoPose(obj []Point3, rightViews [][]Point2, right Intrinsics, leftExtr []viewExtrinsics, r0 [9]float64, t0 [3]float64, maxIter int) ([9]float64, [3]float64, float64, error) {
	om := matrixToRodrigues(r0)
	p0 := []float64{om[0], om[1], om[2], t0[0], t0[1], t0[2]}
	fn := func(p []float64) []float64 {
		rRel := rodriguesToMatrix([3]float64{p[0], p[1], p[2]})
		tRel := [3]float64{p[3], p[4], p[5]}
		res := make([]float64, 0, 2*len(rightViews)*len(obj))
		for v, img := range rightViews {
			rr := mul3(rRel, leftExtr[v].R)
			tr := mulVec3(rRel, leftExtr[v].T)
			tr[0] += tRel[0]
			tr[1] += tRel[1]
			tr[2] += tRel[2]
			for i, observed := range img {
				pred := projectPoint(obj[i], right, rr, tr)
				res = append(res, pred.X-observed.X, pred.Y-observed.Y)
			}
		}
		return res
	}
	p, cost, err := levenbergMarquardt(p0, fn, maxIter)
	if err != nil {
		return r0, t0, 0, err
	}
	r := rodriguesToMatrix([3]float64{p[0], p[1], p[2]})
	t := [3]float64{p[3], p[4], p[5]}
	return r, t, cost, nil
}
