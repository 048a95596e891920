package haptics

import (
	"math"

	"github.com/haptable/haptable/internal/scene"
)

// MapIntensities converts collisions into per-motor levels. Collisions
// arrive sorted nearest-first, and motor m takes collision m modulo the
// collision count, so a single touched curve drives every motor and two
// touched curves interleave across the array. No collisions means every
// motor is zero.
func MapIntensities(collisions []scene.Collision, motorCount int) []int {
	if motorCount <= 0 {
		return nil
	}

	levels := make([]int, motorCount)
	if len(collisions) == 0 {
		return levels
	}

	for m := range levels {
		c := collisions[m%len(collisions)]
		levels[m] = collisionLevel(c)
	}
	return levels
}

// collisionLevel maps distance from the curve centreline to a level:
// 100 on the centreline falling linearly to 0 at the edge of the touch band
// (half the curve thickness).
func collisionLevel(c scene.Collision) int {
	threshold := c.Curve.Thickness() / 2
	if threshold <= 0 {
		if c.Distance <= 0 {
			return 100
		}
		return 0
	}

	level := 100 * (1 - c.Distance/threshold)
	return clampLevel(int(math.Round(level)))
}
