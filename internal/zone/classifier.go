// Package zone classifies an absolute USD offset into a threshold
// bucket, the deadband, or a breach.
package zone

import (
	"math"

	"lphedge/internal/coretypes"
)

// Classify returns ZoneNone if |offsetUSD| is below min, ZoneBreach if
// it is above max, otherwise the bucket index floor((|offsetUSD|-min)/step).
func Classify(offsetUSD, min, max, step float64) coretypes.Zone {
	abs := math.Abs(offsetUSD)
	if abs < min {
		return coretypes.ZoneNone
	}
	if abs > max {
		return coretypes.ZoneBreach
	}
	bucket := int(math.Floor((abs - min) / step))
	return coretypes.ZoneBucket(bucket)
}
