package route

import (
	"math"

	"ecomap-navigation/internal/geo"
)

const (
	// BearingThreshold is the bearing delta (degrees) beyond which a new
	// segment is started.
	BearingThreshold = 25.0

	// DefaultMaxSegmentLength caps segment length in meters so long straight
	// roads still yield periodic progress segments.
	DefaultMaxSegmentLength = 200.0
)

// SplitIntoSegments groups a dense polyline into legs of roughly constant
// bearing, each at most maxSegmentLength meters long. Fewer than 2
// coordinates yields no segments; that is a valid result, not an error.
func SplitIntoSegments(coords []geo.Point, maxSegmentLength float64) []Segment {
	if len(coords) < 2 {
		return nil
	}

	var segments []Segment
	current := Segment{
		StartIndex:  0,
		EndIndex:    1,
		Coordinates: []geo.Point{coords[0], coords[1]},
		Distance:    geo.Distance(coords[0], coords[1]),
		Bearing:     geo.Bearing(coords[0], coords[1]),
	}

	for i := 2; i < len(coords); i++ {
		prev := coords[i-1]
		cur := coords[i]
		stepDistance := geo.Distance(prev, cur)
		stepBearing := geo.Bearing(prev, cur)

		// Start a new segment when the bearing changes significantly or the
		// current one would grow past the length cap.
		if math.Abs(stepBearing-current.Bearing) > BearingThreshold ||
			current.Distance+stepDistance > maxSegmentLength {
			segments = append(segments, current)
			current = Segment{
				StartIndex:  i - 1,
				EndIndex:    i,
				Coordinates: []geo.Point{prev, cur},
				Distance:    stepDistance,
				Bearing:     stepBearing,
			}
		} else {
			current.Coordinates = append(current.Coordinates, cur)
			current.Distance += stepDistance
			current.EndIndex = i
		}
	}

	return append(segments, current)
}
