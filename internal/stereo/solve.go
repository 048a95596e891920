package stereo

import (
	"math"
	"time"
)

// SolveOptions tune the calibration solve. Zero values select the
// defaults.
type SolveOptions struct {
	// MinViews is the minimum number of paired board detections. Six is
	// the practical floor; twenty well-spread views are recommended.
	MinViews int
	// MaxRMS is the reprojection RMS limit in pixels. A solve whose
	// refined model reprojects worse than this is rejected as diverged.
	MaxRMS float64
	// MaxIterations caps the nonlinear refinement.
	MaxIterations int
}

func (o SolveOptions) withDefaults() SolveOptions {
	if o.MinViews == 0 {
		o.MinViews = 6
	}
	if o.MaxRMS == 0 {
		o.MaxRMS = 1.0
	}
	if o.MaxIterations == 0 {
		o.MaxIterations = 30
	}
	return o
}

// Solve calibrates the stereo rig from matched chessboard detections.
//
// Pipeline: per-view homographies seed closed-form intrinsics and
// extrinsics for each camera independently, radial distortion starts
// from a linear fit, then damped Gauss-Newton refines each camera and
// finally the left-to-right rig transform. The solve fails with
// ReasonInsufficientObservations when too few views are supplied and
// with ReasonSolveDivergence when refinement cannot reach the RMS
// limit.
func Solve(obs *ObservationSet, opts SolveOptions) (*Calibration, error) {
	opts = opts.withDefaults()
	if err := obs.Validate(); err != nil {
		return nil, err
	}
	if len(obs.Views) < opts.MinViews {
		return nil, insufficientObservations("need at least %d chessboard views, got %d", opts.MinViews, len(obs.Views))
	}

	obj := obs.Board.ObjectPoints()
	objXY := make([]Point2, len(obj))
	for i, p := range obj {
		objXY[i] = Point2{X: p.X, Y: p.Y}
	}
	leftImgs := make([][]Point2, len(obs.Views))
	rightImgs := make([][]Point2, len(obs.Views))
	for i, v := range obs.Views {
		leftImgs[i] = v.Left
		rightImgs[i] = v.Right
	}

	left, leftViews, leftCost, err := calibrateCamera(obj, objXY, leftImgs, opts)
	if err != nil {
		return nil, err
	}
	debugf("left camera refined: fx=%.2f fy=%.2f cx=%.2f cy=%.2f k1=%.4f k2=%.4f",
		left.Fx, left.Fy, left.Cx, left.Cy, left.K1, left.K2)
	right, rightViews, _, err := calibrateCamera(obj, objXY, rightImgs, opts)
	if err != nil {
		return nil, err
	}
	debugf("right camera refined: fx=%.2f fy=%.2f cx=%.2f cy=%.2f k1=%.4f k2=%.4f",
		right.Fx, right.Fy, right.Cx, right.Cy, right.K1, right.K2)

	// Each view yields an independent estimate of the fixed rig
	// transform; average them for the refinement seed.
	rels := make([][9]float64, len(obs.Views))
	var tSum [3]float64
	for i := range obs.Views {
		rRel := mul3(rightViews[i].R, transpose3(leftViews[i].R))
		tRel := mulVec3(rRel, leftViews[i].T)
		rels[i] = rRel
		tSum[0] += rightViews[i].T[0] - tRel[0]
		tSum[1] += rightViews[i].T[1] - tRel[1]
		tSum[2] += rightViews[i].T[2] - tRel[2]
	}
	n := float64(len(obs.Views))
	r0 := averageRotations(rels)
	t0 := [3]float64{tSum[0] / n, tSum[1] / n, tSum[2] / n}

	r, t, rightCost, err := refineStereoPose(obj, rightImgs, right, leftViews, r0, t0, opts.MaxIterations)
	if err != nil {
		return nil, err
	}

	totalPoints := float64(2 * len(obs.Views) * len(obj))
	rms := math.Sqrt((leftCost + rightCost) / totalPoints)
	debugf("stereo pose refined: baseline=%.2fmm rms=%.4fpx over %d views", norm3(t), rms, len(obs.Views))
	if math.IsNaN(rms) || rms > opts.MaxRMS {
		return nil, solveDivergence("reprojection RMS %.4fpx exceeds limit %.4fpx", rms, opts.MaxRMS)
	}
	if norm3(t) < 1e-9 {
		return nil, solveDivergence("zero baseline (cameras coincide)")
	}

	cal := &Calibration{
		Version:         CalibrationVersion,
		SolvedAt:        time.Now().UTC(),
		Views:           len(obs.Views),
		ImageWidth:      obs.ImageWidth,
		ImageHeight:     obs.ImageHeight,
		Left:            left,
		Right:           right,
		R:               r,
		T:               t,
		ReprojectionRMS: rms,
		TablePose:       IdentityPose(),
	}
	cal.E = mul3(skew(t), r)
	cal.F = fundamentalFromEssential(cal.E, left, right)
	if err := Rectify(cal); err != nil {
		return nil, err
	}
	if err := cal.Validate(); err != nil {
		return nil, solveDivergence("solved model failed validation: %v", err)
	}
	return cal, nil
}

// calibrateCamera runs the mono pipeline for one camera: homographies,
// closed-form intrinsics and extrinsics, linear distortion seed, then
// nonlinear refinement.
func calibrateCamera(obj []Point3, objXY []Point2, imgViews [][]Point2, opts SolveOptions) (Intrinsics, []viewExtrinsics, float64, error) {
	hs := make([][9]float64, len(imgViews))
	for i, img := range imgViews {
		h, err := homography(objXY, img)
		if err != nil {
			return Intrinsics{}, nil, 0, err
		}
		hs[i] = h
	}
	in, err := intrinsicsFromHomographies(hs)
	if err != nil {
		return Intrinsics{}, nil, 0, err
	}
	views := make([]viewExtrinsics, len(hs))
	for i, h := range hs {
		v, err := extrinsicsFromHomography(h, in)
		if err != nil {
			return Intrinsics{}, nil, 0, err
		}
		views[i] = v
	}
	in.K1, in.K2 = estimateDistortion(obj, views, imgViews, in)
	return refineCamera(obj, imgViews, in, views, opts.MaxIterations)
}

// fundamentalFromEssential maps E through the camera matrices:
// F = Kr^-T * E * Kl^-1, normalized so F[2][2] == 1 when possible.
func fundamentalFromEssential(e [9]float64, left, right Intrinsics) [9]float64 {
	f := mul3(transpose3(kinv(right)), mul3(e, kinv(left)))
	if math.Abs(f[8]) > 1e-12 {
		for i := 0; i < 9; i++ {
			f[i] /= f[8]
		}
	}
	return f
}
