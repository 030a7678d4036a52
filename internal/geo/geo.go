package geo

import (
	"fmt"
	"math"
)

// EarthRadius in meters
const EarthRadius = 6371000

// Degrees to radians conversion
const degToRad = math.Pi / 180

// Point is a WGS84 coordinate in degrees.
type Point struct {
	Lon float64 `json:"lon"`
	Lat float64 `json:"lat"`
}

// Distance returns the equirectangular approximation of the distance
// between a and b in meters. Accurate enough at city scale, which is all
// maneuver geometry needs.
func Distance(a, b Point) float64 {
	dLat := (b.Lat - a.Lat) * degToRad
	dLon := (b.Lon - a.Lon) * degToRad
	meanLat := (a.Lat + b.Lat) / 2 * degToRad

	x := dLon * math.Cos(meanLat)
	y := dLat
	return math.Sqrt(x*x+y*y) * EarthRadius
}

// Bearing returns the forward azimuth from a to b in degrees, in [0, 360).
func Bearing(a, b Point) float64 {
	lat1 := a.Lat * degToRad
	lat2 := b.Lat * degToRad
	dLon := (b.Lon - a.Lon) * degToRad

	y := math.Sin(dLon) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(dLon)

	deg := math.Atan2(y, x) / degToRad
	return math.Mod(deg+360, 360)
}

var cardinals = [8]string{
	"north", "northeast", "east", "southeast",
	"south", "southwest", "west", "northwest",
}

// BearingToCardinal maps a bearing in degrees to one of the 8 compass words.
func BearingToCardinal(bearing float64) string {
	return cardinals[int(math.Round(bearing/45))%8]
}

// FormatDistance renders meters as "1.5 km" above one kilometer,
// "250 meters" otherwise.
func FormatDistance(meters float64) string {
	if meters > 1000 {
		return fmt.Sprintf("%.1f km", meters/1000)
	}
	return fmt.Sprintf("%d meters", int(math.Round(meters)))
}

// DistanceToPolyline returns the minimum distance (in meters) from p to the
// polyline. An empty polyline yields +Inf.
func DistanceToPolyline(p Point, polyline []Point) float64 {
	if len(polyline) == 0 {
		return math.Inf(1)
	}
	if len(polyline) == 1 {
		return Distance(p, polyline[0])
	}

	min := math.Inf(1)
	for i := 0; i < len(polyline)-1; i++ {
		if d := DistanceToSegment(p, polyline[i], polyline[i+1]); d < min {
			min = d
		}
	}
	return min
}

// DistanceToSegment calculates the minimum distance (in meters) from point P
// to the segment [A, B].
func DistanceToSegment(p, a, b Point) float64 {
	// Project into local Cartesian coordinates around a reference latitude.
	// Cross-track distance would be more exact, but this precision is enough
	// for on-route checks.
	// https://www.movable-type.co.uk/scripts/latlong.html
	lat1 := a.Lat * degToRad
	lon1 := a.Lon * degToRad
	lat2 := b.Lat * degToRad
	lon2 := b.Lon * degToRad
	latP := p.Lat * degToRad
	lonP := p.Lon * degToRad

	latRef := (lat1 + lat2) / 2
	cosLatRef := math.Cos(latRef)

	xA, yA := lon1*EarthRadius*cosLatRef, lat1*EarthRadius
	xB, yB := lon2*EarthRadius*cosLatRef, lat2*EarthRadius
	xP, yP := lonP*EarthRadius*cosLatRef, latP*EarthRadius

	dx, dy := xB-xA, yB-yA

	// Degenerate segment case (A == B)
	if dx == 0 && dy == 0 {
		return math.Hypot(xP-xA, yP-yA)
	}

	t := ((xP-xA)*dx + (yP-yA)*dy) / (dx*dx + dy*dy)
	t = math.Max(0, math.Min(1, t))
	xProj := xA + t*dx
	yProj := yA + t*dy

	return math.Hypot(xP-xProj, yP-yProj)
}
