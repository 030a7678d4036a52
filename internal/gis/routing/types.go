package routing

import (
	"errors"
	"strings"

	"ecomap-navigation/internal/route"
)

// ErrNoRoute signals an empty routes array from the provider. It is a
// user-visible "no route found" condition, not retried automatically.
var ErrNoRoute = errors.New("no route found")

// Result is a computed route plus its presentation steps. Synthesized is
// true when the provider returned no step list and the instructions were
// generated from the polyline.
type Result struct {
	Route       route.Route
	Steps       []route.Step
	Synthesized bool
}

// RouteResponse mirrors the provider's wire format.
type RouteResponse struct {
	Routes []TripResponse `json:"routes"`
}

type TripResponse struct {
	Geometry GeometryResponse `json:"geometry"`
	Distance float64          `json:"distance"`
	Duration float64          `json:"duration"`
	Legs     []LegResponse    `json:"legs"`
}

type GeometryResponse struct {
	Coordinates [][]float64 `json:"coordinates"`
}

type LegResponse struct {
	Steps []StepResponse `json:"steps"`
}

type StepResponse struct {
	Name     string           `json:"name"`
	Distance float64          `json:"distance"`
	Duration float64          `json:"duration"`
	Maneuver ManeuverResponse `json:"maneuver"`
}

type ManeuverResponse struct {
	Type     string `json:"type"`
	Modifier string `json:"modifier"`
}

func providerSteps(steps []StepResponse) []route.Step {
	out := make([]route.Step, len(steps))
	for i, s := range steps {
		out[i] = route.Step{
			Instruction: stepInstruction(s),
			Distance:    s.Distance,
			Duration:    s.Duration,
			Maneuver:    stepManeuver(s.Maneuver),
		}
	}
	return out
}

func stepInstruction(s StepResponse) string {
	var b strings.Builder
	switch {
	case s.Maneuver.Type == "depart":
		b.WriteString("Depart")
	case s.Maneuver.Type == "arrive":
		b.WriteString("Arrive at your destination")
	case s.Maneuver.Modifier != "":
		b.WriteString("Turn ")
		b.WriteString(s.Maneuver.Modifier)
	default:
		b.WriteString("Continue")
	}
	if s.Name != "" && s.Maneuver.Type != "arrive" {
		b.WriteString(" onto ")
		b.WriteString(s.Name)
	}
	return b.String()
}

func stepManeuver(m ManeuverResponse) route.Maneuver {
	switch m.Type {
	case "depart":
		return route.ManeuverDepart
	case "arrive":
		return route.ManeuverArrive
	}
	switch m.Modifier {
	case "left":
		return route.ManeuverTurnLeft
	case "right":
		return route.ManeuverTurnRight
	case "slight left":
		return route.ManeuverSlightLeft
	case "slight right":
		return route.ManeuverSlightRight
	case "sharp left":
		return route.ManeuverSharpLeft
	case "sharp right":
		return route.ManeuverSharpRight
	}
	return route.ManeuverContinue
}
