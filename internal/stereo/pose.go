package stereo

import "math"

// Point2 is a pixel coordinate in one camera image.
type Point2 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Point3 is a position in millimeters. In the table frame, x runs along
// the table edge, z away from the cameras, and y increases downward so
// that the table surface sits at y == table height.
type Point3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Pose is a rigid transform stored as a 4x4 row-major matrix. The
// calibration file carries one pose mapping the rectified left camera
// frame into the table frame.
type Pose [16]float64

// IdentityPose returns the identity transform.
func IdentityPose() Pose {
	return Pose{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
}

// Apply transforms p by the pose.
func (m Pose) Apply(p Point3) Point3 {
	return Point3{
		X: m[0]*p.X + m[1]*p.Y + m[2]*p.Z + m[3],
		Y: m[4]*p.X + m[5]*p.Y + m[6]*p.Z + m[7],
		Z: m[8]*p.X + m[9]*p.Y + m[10]*p.Z + m[11],
	}
}

// IsValid checks that the pose is a proper rigid transform: the last row
// must be [0 0 0 1] and the rotation block must have determinant 1
// within a small tolerance.
func (m Pose) IsValid() bool {
	for i := 0; i < 16; i++ {
		if math.IsNaN(m[i]) || math.IsInf(m[i], 0) {
			return false
		}
	}
	if m[12] != 0 || m[13] != 0 || m[14] != 0 || m[15] != 1 {
		return false
	}
	det := m[0]*(m[5]*m[10]-m[6]*m[9]) -
		m[1]*(m[4]*m[10]-m[6]*m[8]) +
		m[2]*(m[4]*m[9]-m[5]*m[8])
	return math.Abs(det-1) < 0.01
}

// IsZero reports whether the pose is entirely unset, which the loader
// replaces with the identity.
func (m Pose) IsZero() bool {
	for i := 0; i < 16; i++ {
		if m[i] != 0 {
			return false
		}
	}
	return true
}
