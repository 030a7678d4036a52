package route

import (
	"ecomap-navigation/internal/geo"
)

// Maneuver is the classified turn type attached to a segment.
type Maneuver string

const (
	ManeuverDepart      Maneuver = "depart"
	ManeuverContinue    Maneuver = "continue"
	ManeuverTurnLeft    Maneuver = "turn-left"
	ManeuverTurnRight   Maneuver = "turn-right"
	ManeuverSlightLeft  Maneuver = "turn-slight-left"
	ManeuverSlightRight Maneuver = "turn-slight-right"
	ManeuverSharpLeft   Maneuver = "turn-sharp-left"
	ManeuverSharpRight  Maneuver = "turn-sharp-right"
	ManeuverArrive      Maneuver = "arrive"
)

// Segment is a contiguous run of the route polyline sharing one approximate
// bearing. Segments partition the polyline: segment[i].EndIndex equals
// segment[i+1].StartIndex.
type Segment struct {
	StartIndex  int         `json:"start_index"`
	EndIndex    int         `json:"end_index"`
	Coordinates []geo.Point `json:"coordinates"`
	Distance    float64     `json:"distance"`
	Bearing     float64     `json:"bearing"`
	Instruction string      `json:"instruction,omitempty"`
	Maneuver    Maneuver    `json:"maneuver,omitempty"`
}

// Route is an immutable computed route. It is replaced wholesale whenever a
// new route is calculated.
type Route struct {
	Geometry []geo.Point `json:"geometry"`
	Distance float64     `json:"distance"`
	Duration float64     `json:"duration"`
	Segments []Segment   `json:"segments"`
}

// Step is one turn-by-turn entry presented to the user.
type Step struct {
	Instruction string   `json:"instruction"`
	Distance    float64  `json:"distance"`
	Duration    float64  `json:"duration"`
	Maneuver    Maneuver `json:"maneuver,omitempty"`
}

// averageSpeed in m/s used to estimate per-step durations when the routing
// provider gives none.
const averageSpeed = 15

// Steps flattens the annotated segments into presentation steps.
func (r Route) Steps() []Step {
	steps := make([]Step, len(r.Segments))
	for i, seg := range r.Segments {
		instruction := seg.Instruction
		if instruction == "" {
			instruction = "Continue"
		}
		steps[i] = Step{
			Instruction: instruction,
			Distance:    seg.Distance,
			Duration:    float64(int(seg.Distance/averageSpeed + 0.5)),
			Maneuver:    seg.Maneuver,
		}
	}
	return steps
}

// New segments and annotates the given polyline into a navigable route.
func New(geometry []geo.Point, distance, duration float64) Route {
	segments := AnnotateManeuvers(SplitIntoSegments(geometry, DefaultMaxSegmentLength))
	return Route{
		Geometry: geometry,
		Distance: distance,
		Duration: duration,
		Segments: segments,
	}
}
