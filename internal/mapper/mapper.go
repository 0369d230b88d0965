// Package mapper projects sensor-space skeleton points into image pixel space.
package mapper

import (
	"github.com/golang/geo/r3"

	"github.com/colourskel/skeleton-server/pkg/types"
)

// Calibration converts sensor-space points to image points for a given stream format.
// Implementations are provided by the sensor and treated as opaque.
type Calibration interface {
	MapSkeletonPointToColorPoint(p r3.Vector, res types.Resolution) types.ImagePoint
	MapSkeletonPointToDepthPoint(p r3.Vector, res types.Resolution) types.ImagePoint
}

// Project maps p into the colour image of resolution res.
// Nothing is cached. A resolution that differs from the active colour stream
// gives wrong but finite coordinates.
func Project(cal Calibration, p r3.Vector, res types.Resolution) types.ImagePoint {
	return cal.MapSkeletonPointToColorPoint(p, res)
}

// ProjectDepth maps p into the depth image of resolution res.
func ProjectDepth(cal Calibration, p r3.Vector, res types.Resolution) types.ImagePoint {
	return cal.MapSkeletonPointToDepthPoint(p, res)
}

// Nominal focal lengths in pixels at the reference widths
const (
	ColorFocalLength = 531.15 // at 640x480
	ColorRefWidth    = 640

	DepthFocalLength = 285.63 // at 320x240
	DepthRefWidth    = 320
)

// Pinhole is a stateless calibration using nominal intrinsics.
// Sensor space is metres with Y up and Z pointing away from the sensor.
type Pinhole struct{}

// MapSkeletonPointToColorPoint implements Calibration.
func (Pinhole) MapSkeletonPointToColorPoint(p r3.Vector, res types.Resolution) types.ImagePoint {
	return project(p, res, ColorFocalLength, ColorRefWidth)
}

// MapSkeletonPointToDepthPoint implements Calibration.
func (Pinhole) MapSkeletonPointToDepthPoint(p r3.Vector, res types.Resolution) types.ImagePoint {
	return project(p, res, DepthFocalLength, DepthRefWidth)
}

func project(p r3.Vector, res types.Resolution, focal float64, refWidth int) types.ImagePoint {
	w, h := res.Size()
	cx, cy := float64(w)/2, float64(h)/2
	if p.Z <= 0 {
		return types.ImagePoint{X: cx, Y: cy}
	}

	f := focal * float64(w) / float64(refWidth)
	return types.ImagePoint{
		X: cx + f*p.X/p.Z,
		Y: cy - f*p.Y/p.Z,
	}
}
