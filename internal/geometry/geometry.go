// Package geometry holds the bone and measurement maths used by the overlay.
//
// Everything here is a pure function. Degenerate inputs (vertical, horizontal or
// zero-length segments) never panic and always produce finite guide points.
package geometry

import (
	"math"

	"github.com/colourskel/skeleton-server/pkg/types"
)

// Distance returns the Euclidean distance between two joints in sensor units.
// The positions are used whatever the joints' tracking state.
func Distance(a, b types.Joint) float64 {
	return a.Position.Distance(b.Position)
}

// Midpoint returns the arithmetic mean of two image points.
func Midpoint(p1, p2 types.ImagePoint) types.ImagePoint {
	return types.ImagePoint{
		X: (p1.X + p2.X) / 2,
		Y: (p1.Y + p2.Y) / 2,
	}
}

// PerpendicularSlope returns the slope of a line perpendicular to p1-p2.
// A vertical segment (equal X, including zero length) yields 0.
// A horizontal segment yields +Inf.
func PerpendicularSlope(p1, p2 types.ImagePoint) float64 {
	dx := p2.X - p1.X
	dy := p2.Y - p1.Y
	if dx == 0 {
		return 0
	}
	if dy == 0 {
		return math.Inf(1)
	}
	return -dx / dy
}

// PointOnLine evaluates the line through origin with the given slope at x.
// An infinite slope has no single point at x, so origin is returned.
func PointOnLine(origin types.ImagePoint, slope, x float64) types.ImagePoint {
	if math.IsInf(slope, 0) || math.IsNaN(slope) {
		return origin
	}
	return types.ImagePoint{X: x, Y: origin.Y + slope*(x-origin.X)}
}

// PerpendicularSegment returns the endpoints of the guide line crossing p1-p2
// at its midpoint. For sloped segments the endpoints lie on the perpendicular at
// the X of p1 and p2. Vertical and horizontal segments get an axis-aligned guide
// as long as the segment itself.
func PerpendicularSegment(p1, p2 types.ImagePoint) (types.ImagePoint, types.ImagePoint) {
	mid := Midpoint(p1, p2)
	half := math.Hypot(p2.X-p1.X, p2.Y-p1.Y) / 2

	if p1.X == p2.X {
		return types.ImagePoint{X: mid.X - half, Y: mid.Y}, types.ImagePoint{X: mid.X + half, Y: mid.Y}
	}

	slope := PerpendicularSlope(p1, p2)
	if math.IsInf(slope, 0) {
		return types.ImagePoint{X: mid.X, Y: mid.Y - half}, types.ImagePoint{X: mid.X, Y: mid.Y + half}
	}

	return PointOnLine(mid, slope, p1.X), PointOnLine(mid, slope, p2.X)
}
