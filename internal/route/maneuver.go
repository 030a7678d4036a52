package route

import (
	"fmt"

	"ecomap-navigation/internal/geo"
)

// AnnotateManeuvers populates the instruction and maneuver of every segment.
// Index 0 is always a departure, the last index always an arrival; interior
// segments are classified by the turn angle against the previous segment.
// The input slice is not modified.
func AnnotateManeuvers(segments []Segment) []Segment {
	out := make([]Segment, len(segments))
	for i, seg := range segments {
		switch {
		case i == 0:
			seg.Maneuver = ManeuverDepart
			seg.Instruction = fmt.Sprintf("Head %s for %s",
				geo.BearingToCardinal(seg.Bearing), geo.FormatDistance(seg.Distance))
		case i == len(segments)-1:
			seg.Maneuver = ManeuverArrive
			seg.Instruction = "You have arrived at your destination"
		default:
			turnAngle := normalizeTurnAngle(seg.Bearing - segments[i-1].Bearing)
			seg.Maneuver = classifyTurn(turnAngle)
			seg.Instruction = turnInstruction(seg.Maneuver, seg.Distance)
		}
		out[i] = seg
	}
	return out
}

// normalizeTurnAngle folds an angle into [-180, 180].
func normalizeTurnAngle(angle float64) float64 {
	for angle > 180 {
		angle -= 360
	}
	for angle < -180 {
		angle += 360
	}
	return angle
}

// classifyTurn maps a normalized turn angle to a maneuver:
//
//	(135, 180]   turn-sharp-right
//	(45, 135]    turn-right
//	(15, 45]     turn-slight-right
//	[-15, 15]    continue
//	[-45, -15)   turn-slight-left
//	[-135, -45)  turn-left
//	[-180, -135) turn-sharp-left
func classifyTurn(angle float64) Maneuver {
	switch {
	case angle > 135:
		return ManeuverSharpRight
	case angle < -135:
		return ManeuverSharpLeft
	case angle > 45:
		return ManeuverTurnRight
	case angle < -45:
		return ManeuverTurnLeft
	case angle > 15:
		return ManeuverSlightRight
	case angle < -15:
		return ManeuverSlightLeft
	default:
		return ManeuverContinue
	}
}

func turnInstruction(m Maneuver, distance float64) string {
	dist := geo.FormatDistance(distance)
	switch m {
	case ManeuverTurnRight:
		return "Turn right and continue for " + dist
	case ManeuverTurnLeft:
		return "Turn left and continue for " + dist
	case ManeuverSharpRight:
		return "Take a sharp right and continue for " + dist
	case ManeuverSharpLeft:
		return "Take a sharp left and continue for " + dist
	case ManeuverSlightRight:
		return "Take a slight right and continue for " + dist
	case ManeuverSlightLeft:
		return "Take a slight left and continue for " + dist
	default:
		return "Continue straight for " + dist
	}
}
