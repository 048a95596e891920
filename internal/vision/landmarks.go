package vision

// LandmarkCount is the size of the fixed landmark set every detector
// reports per hand.
const LandmarkCount = 21

// Landmark indices in the standard hand model order. Detectors must
// emit landmarks in exactly this order; the wire codec and the
// triangulation path both index into it.
const (
	LandmarkWrist = iota
	LandmarkThumbCMC
	LandmarkThumbMCP
	LandmarkThumbIP
	LandmarkThumbTip
	LandmarkIndexFingerMCP
	LandmarkIndexFingerPIP
	LandmarkIndexFingerDIP
	LandmarkIndexFingerTip
	LandmarkMiddleFingerMCP
	LandmarkMiddleFingerPIP
	LandmarkMiddleFingerDIP
	LandmarkMiddleFingerTip
	LandmarkRingFingerMCP
	LandmarkRingFingerPIP
	LandmarkRingFingerDIP
	LandmarkRingFingerTip
	LandmarkPinkyMCP
	LandmarkPinkyPIP
	LandmarkPinkyDIP
	LandmarkPinkyTip
)
