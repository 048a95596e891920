package vision

import "math"

// DefaultWristMatchFraction bounds how far apart, as a fraction of
// image height, two wrists may sit vertically and still be treated as
// the same physical hand.
const DefaultWristMatchFraction = 0.1

// MatchHands picks the left/right hand pair most likely to be the same
// physical hand: the pair with the smallest vertical wrist offset,
// normalized by image height. Rectified views put the same hand on
// (nearly) the same row, so a large offset means two different hands
// or a spurious detection. Returns ok=false when either view is empty
// or no pair clears maxFraction.
func MatchHands(left, right []Hand, imageHeight int, maxFraction float64) (l, r Hand, ok bool) {
	if len(left) == 0 || len(right) == 0 || imageHeight <= 0 {
		return Hand{}, Hand{}, false
	}
	if maxFraction <= 0 {
		maxFraction = DefaultWristMatchFraction
	}

	best := math.Inf(1)
	for _, lh := range left {
		for _, rh := range right {
			frac := math.Abs(lh.Wrist().Y-rh.Wrist().Y) / float64(imageHeight)
			if frac < best {
				best = frac
				l, r = lh, rh
			}
		}
	}
	if best > maxFraction {
		debugf("hand match rejected: wrist offset %.3f of image height exceeds %.3f", best, maxFraction)
		return Hand{}, Hand{}, false
	}
	return l, r, true
}
