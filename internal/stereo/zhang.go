package stereo

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Closed-form calibration bootstrap after Zhang: per-view planar
// homographies give linear constraints on the image of the absolute
// conic, from which the intrinsics fall out in closed form. The result
// only needs to be good enough to seed the nonlinear refinement in
// refine.go.

// viewExtrinsics is one camera's pose for a single board view.
type viewExtrinsics struct {
	R [9]float64
	T [3]float64
}

// normalizingTransform returns a similarity transform moving the
// centroid of pts to the origin and scaling the mean distance from it
// to sqrt(2). Conditioning the DLT this way is what keeps the
// homography estimate numerically stable.
func normalizingTransform(pts []Point2) [9]float64 {
	var cx, cy float64
	for _, p := range pts {
		cx += p.X
		cy += p.Y
	}
	n := float64(len(pts))
	cx /= n
	cy /= n
	var meanDist float64
	for _, p := range pts {
		meanDist += math.Hypot(p.X-cx, p.Y-cy)
	}
	meanDist /= n
	s := 1.0
	if meanDist > 1e-12 {
		s = math.Sqrt2 / meanDist
	}
	return [9]float64{
		s, 0, -s * cx,
		0, s, -s * cy,
		0, 0, 1,
	}
}

// invertSimilarity inverts a transform produced by normalizingTransform.
func invertSimilarity(t [9]float64) [9]float64 {
	s := t[0]
	return [9]float64{
		1 / s, 0, -t[2] / s,
		0, 1 / s, -t[5] / s,
		0, 0, 1,
	}
}

// homography estimates the 3x3 projective map from planar object
// coordinates (board frame, z dropped) to image pixels using the
// normalized DLT.
func homography(obj, img []Point2) ([9]float64, error) {
	var h [9]float64
	if len(obj) != len(img) || len(obj) < 4 {
		return h, solveDivergence("homography needs at least 4 matched points, got %d/%d", len(obj), len(img))
	}
	tObj := normalizingTransform(obj)
	tImg := normalizingTransform(img)

	a := mat.NewDense(2*len(obj), 9, nil)
	for i := range obj {
		ox := tObj[0]*obj[i].X + tObj[2]
		oy := tObj[4]*obj[i].Y + tObj[5]
		ix := tImg[0]*img[i].X + tImg[2]
		iy := tImg[4]*img[i].Y + tImg[5]
		a.SetRow(2*i, []float64{-ox, -oy, -1, 0, 0, 0, ix * ox, ix * oy, ix})
		a.SetRow(2*i+1, []float64{0, 0, 0, -ox, -oy, -1, iy * ox, iy * oy, iy})
	}
	hv, err := smallestSingularVector(a)
	if err != nil {
		return h, err
	}
	var hn [9]float64
	copy(hn[:], hv)

	// Denormalize: H = Timg^-1 * Hn * Tobj.
	full := mul3(invertSimilarity(tImg), mul3(hn, tObj))
	if math.Abs(full[8]) < 1e-12 {
		return h, solveDivergence("degenerate homography (vanishing scale)")
	}
	for i := 0; i < 9; i++ {
		full[i] /= full[8]
	}
	return full, nil
}

// vij builds the absolute-conic constraint vector for columns i and j
// of a homography.
func vij(h [9]float64, i, j int) [6]float64 {
	hi := [3]float64{h[i], h[3+i], h[6+i]}
	hj := [3]float64{h[j], h[3+j], h[6+j]}
	return [6]float64{
		hi[0] * hj[0],
		hi[0]*hj[1] + hi[1]*hj[0],
		hi[1] * hj[1],
		hi[2]*hj[0] + hi[0]*hj[2],
		hi[2]*hj[1] + hi[1]*hj[2],
		hi[2] * hj[2],
	}
}

// intrinsicsFromHomographies recovers pinhole parameters from the
// stacked conic constraints of all views. Skew
// is solved for but dropped; the rig's cameras have square sensors.
func intrinsicsFromHomographies(hs [][9]float64) (Intrinsics, error) {
	var in Intrinsics
	if len(hs) < 3 {
		return in, insufficientObservations("intrinsics need at least 3 homographies, got %d", len(hs))
	}
	v := mat.NewDense(2*len(hs), 6, nil)
	for i, h := range hs {
		v12 := vij(h, 0, 1)
		v11 := vij(h, 0, 0)
		v22 := vij(h, 1, 1)
		v.SetRow(2*i, v12[:])
		v.SetRow(2*i+1, []float64{
			v11[0] - v22[0], v11[1] - v22[1], v11[2] - v22[2],
			v11[3] - v22[3], v11[4] - v22[4], v11[5] - v22[5],
		})
	}
	b, err := smallestSingularVector(v)
	if err != nil {
		return in, err
	}
	// The SVD fixes b only up to sign; B must be positive definite.
	if b[0] < 0 {
		for i := range b {
			b[i] = -b[i]
		}
	}
	b11, b12, b22, b13, b23, b33 := b[0], b[1], b[2], b[3], b[4], b[5]

	den := b11*b22 - b12*b12
	if b11 < 1e-18 || math.Abs(den) < 1e-24 {
		return in, solveDivergence("conic constraints are rank deficient")
	}
	v0 := (b12*b13 - b11*b23) / den
	lambda := b33 - (b13*b13+v0*(b12*b13-b11*b23))/b11
	if lambda/b11 <= 0 {
		return in, solveDivergence("negative focal estimate (views may lack angular spread)")
	}
	alpha := math.Sqrt(lambda / b11)
	betaSq := lambda * b11 / den
	if betaSq <= 0 {
		return in, solveDivergence("negative focal estimate (views may lack angular spread)")
	}
	beta := math.Sqrt(betaSq)
	gamma := -b12 * alpha * alpha * beta / lambda
	u0 := gamma*v0/beta - b13*alpha*alpha/lambda

	in = Intrinsics{Fx: alpha, Fy: beta, Cx: u0, Cy: v0}
	if err := in.Validate(); err != nil {
		return in, solveDivergence("closed-form intrinsics invalid: %v", err)
	}
	return in, nil
}

// kinv returns the inverse of the camera matrix built from in.
func kinv(in Intrinsics) [9]float64 {
	return [9]float64{
		1 / in.Fx, 0, -in.Cx / in.Fx,
		0, 1 / in.Fy, -in.Cy / in.Fy,
		0, 0, 1,
	}
}

// extrinsicsFromHomography recovers one board pose from its homography
// and the camera intrinsics.
func extrinsicsFromHomography(h [9]float64, in Intrinsics) (viewExtrinsics, error) {
	ki := kinv(in)
	h1 := [3]float64{h[0], h[3], h[6]}
	h2 := [3]float64{h[1], h[4], h[7]}
	h3 := [3]float64{h[2], h[5], h[8]}
	r1 := mulVec3(ki, h1)
	r2 := mulVec3(ki, h2)
	t := mulVec3(ki, h3)

	n1, n2 := norm3(r1), norm3(r2)
	if n1 < 1e-12 || n2 < 1e-12 {
		return viewExtrinsics{}, solveDivergence("homography columns collapse under K inverse")
	}
	lam := 2 / (n1 + n2)
	for i := 0; i < 3; i++ {
		r1[i] *= lam
		r2[i] *= lam
		t[i] *= lam
	}
	// The board must sit in front of the camera.
	if t[2] < 0 {
		for i := 0; i < 3; i++ {
			r1[i] = -r1[i]
			r2[i] = -r2[i]
			t[i] = -t[i]
		}
	}
	r3 := cross(r1, r2)
	approx := [9]float64{
		r1[0], r2[0], r3[0],
		r1[1], r2[1], r3[1],
		r1[2], r2[2], r3[2],
	}
	r, err := orthonormalize(approx)
	if err != nil {
		return viewExtrinsics{}, err
	}
	return viewExtrinsics{R: r, T: t}, nil
}

// projectPoint projects a world point through one camera, applying the
// radial distortion model.
func projectPoint(p Point3, in Intrinsics, r [9]float64, t [3]float64) Point2 {
	c := mulVec3(r, [3]float64{p.X, p.Y, p.Z})
	c[0] += t[0]
	c[1] += t[1]
	c[2] += t[2]
	x := c[0] / c[2]
	y := c[1] / c[2]
	r2 := x*x + y*y
	d := 1 + in.K1*r2 + in.K2*r2*r2
	return Point2{
		X: in.Fx*x*d + in.Cx,
		Y: in.Fy*y*d + in.Cy,
	}
}

// estimateDistortion solves the linear least squares for the two radial
// coefficients given fixed intrinsics and extrinsics. Returns zeros if
// the system is unsolvable; the nonlinear refinement recovers from a
// zero start.
func estimateDistortion(obj []Point3, views []viewExtrinsics, imgViews [][]Point2, in Intrinsics) (k1, k2 float64) {
	rows := 0
	for _, img := range imgViews {
		rows += 2 * len(img)
	}
	if rows < 2 {
		return 0, 0
	}
	d := mat.NewDense(rows, 2, nil)
	rhs := mat.NewVecDense(rows, nil)
	row := 0
	for v, img := range imgViews {
		for i, observed := range img {
			c := mulVec3(views[v].R, [3]float64{obj[i].X, obj[i].Y, obj[i].Z})
			c[0] += views[v].T[0]
			c[1] += views[v].T[1]
			c[2] += views[v].T[2]
			x := c[0] / c[2]
			y := c[1] / c[2]
			r2 := x*x + y*y
			r4 := r2 * r2
			uIdeal := in.Fx*x + in.Cx
			vIdeal := in.Fy*y + in.Cy
			d.SetRow(row, []float64{(uIdeal - in.Cx) * r2, (uIdeal - in.Cx) * r4})
			rhs.SetVec(row, observed.X-uIdeal)
			row++
			d.SetRow(row, []float64{(vIdeal - in.Cy) * r2, (vIdeal - in.Cy) * r4})
			rhs.SetVec(row, observed.Y-vIdeal)
			row++
		}
	}
	var k mat.VecDense
	if err := k.SolveVec(d, rhs); err != nil {
		return 0, 0
	}
	k1, k2 = k.AtVec(0), k.AtVec(1)
	if math.IsNaN(k1) || math.IsNaN(k2) {
		return 0, 0
	}
	return k1, k2
}
