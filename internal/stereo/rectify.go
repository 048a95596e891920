package stereo

import (
	"fmt"
	"math"
)

// Rectify derives R1/R2/P1/P2/Q in place from the solved intrinsics and
// rig transform, using Bouguet's construction: split the inter-camera
// rotation into two half rotations so both images rotate equally, then
// add the rotation that lands the baseline on the image x axis. The
// rectified projections share one focal length and one principal point,
// so corresponding points share a row and the disparity-to-depth map Q
// has zero disparity at infinity.
func Rectify(c *Calibration) error {
	om := matrixToRodrigues(c.R)
	// Half rotation applied to the right camera; its transpose applies
	// to the left.
	rr := rodriguesToMatrix([3]float64{-om[0] / 2, -om[1] / 2, -om[2] / 2})
	t := mulVec3(rr, c.T)
	nt := norm3(t)
	if nt < 1e-12 {
		return fmt.Errorf("cannot rectify: zero baseline")
	}
	if math.Abs(t[1]) > math.Abs(t[0]) {
		return fmt.Errorf("cannot rectify: vertically stacked cameras are not supported")
	}

	// Rotate the translation onto the x axis.
	var uu [3]float64
	if t[0] >= 0 {
		uu[0] = 1
	} else {
		uu[0] = -1
	}
	ww := cross(t, uu)
	if nw := norm3(ww); nw > 1e-12 {
		scale := math.Acos(math.Abs(t[0])/nt) / nw
		ww[0] *= scale
		ww[1] *= scale
		ww[2] *= scale
	}
	wr := rodriguesToMatrix(ww)

	c.R1 = mul3(wr, transpose3(rr))
	c.R2 = mul3(wr, rr)
	tNew := mulVec3(c.R2, c.T)

	f := (c.Left.Fy + c.Right.Fy) / 2
	cx := (c.Left.Cx + c.Right.Cx) / 2
	cy := (c.Left.Cy + c.Right.Cy) / 2

	c.P1 = [12]float64{
		f, 0, cx, 0,
		0, f, cy, 0,
		0, 0, 1, 0,
	}
	c.P2 = [12]float64{
		f, 0, cx, tNew[0] * f,
		0, f, cy, 0,
		0, 0, 1, 0,
	}
	c.Q = [16]float64{
		1, 0, 0, -cx,
		0, 1, 0, -cy,
		0, 0, 0, f,
		0, 0, -1 / tNew[0], 0,
	}
	return nil
}
