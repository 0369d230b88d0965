package sim

import (
	"github.com/golang/geo/r3"

	"github.com/colourskel/skeleton-server/internal/mapper"
	"github.com/colourskel/skeleton-server/pkg/types"
)

// standingPose holds joint offsets in metres from the hip centre
var standingPose = [types.JointCount]r3.Vector{
	types.HipCenter:      {X: 0, Y: 0, Z: 0},
	types.Spine:          {X: 0, Y: 0.2, Z: 0.02},
	types.ShoulderCenter: {X: 0, Y: 0.45, Z: 0.01},
	types.Head:           {X: 0, Y: 0.62, Z: 0},
	types.ShoulderLeft:   {X: -0.18, Y: 0.4, Z: 0.02},
	types.ElbowLeft:      {X: -0.25, Y: 0.15, Z: 0.04},
	types.WristLeft:      {X: -0.28, Y: -0.07, Z: 0.02},
	types.HandLeft:       {X: -0.29, Y: -0.14, Z: 0},
	types.ShoulderRight:  {X: 0.18, Y: 0.4, Z: 0.02},
	types.ElbowRight:     {X: 0.25, Y: 0.15, Z: 0.04},
	types.WristRight:     {X: 0.28, Y: -0.07, Z: 0.02},
	types.HandRight:      {X: 0.29, Y: -0.14, Z: 0},
	types.HipLeft:        {X: -0.1, Y: -0.05, Z: 0},
	types.KneeLeft:       {X: -0.11, Y: -0.45, Z: 0.02},
	types.AnkleLeft:      {X: -0.12, Y: -0.82, Z: 0.04},
	types.FootLeft:       {X: -0.12, Y: -0.87, Z: -0.08},
	types.HipRight:       {X: 0.1, Y: -0.05, Z: 0},
	types.KneeRight:      {X: 0.11, Y: -0.45, Z: 0.02},
	types.AnkleRight:     {X: 0.12, Y: -0.82, Z: 0.04},
	types.FootRight:      {X: 0.12, Y: -0.87, Z: -0.08},
}

// minDistance keeps approaching subjects in front of the sensor
const minDistance = 0.8

// skeletonAt builds the skeleton of s at loop tick t
func skeletonAt(s Subject, t int, cal mapper.Calibration, res types.Resolution) types.Skeleton {
	z := s.Distance - s.Approach*float64(t-s.Enter)
	if z < minDistance {
		z = minDistance
	}
	hip := r3.Vector{X: s.OffsetX, Y: 0, Z: z}

	skel := types.Skeleton{
		TrackingID:    s.ID,
		TrackingState: types.SkeletonTracked,
		Position:      hip,
	}
	if s.PositionOnly {
		skel.TrackingState = types.SkeletonPositionOnly
		return skel
	}

	for i, off := range standingPose {
		skel.Joints[i] = types.Joint{
			Type:          types.JointType(i),
			TrackingState: types.JointTracked,
			Position:      hip.Add(off),
		}
	}
	for _, d := range s.Dropouts {
		if t >= d.From && t < d.To && d.Joint.Valid() {
			state, _ := dropoutState(d.State)
			skel.Joints[d.Joint].TrackingState = state
		}
	}
	skel.ClippedEdges = clippedEdges(&skel, cal, res)
	return skel
}

// clippedEdges flags every image edge a joint projects past
func clippedEdges(s *types.Skeleton, cal mapper.Calibration, res types.Resolution) types.FrameEdges {
	w, h := res.Size()
	var edges types.FrameEdges
	for _, j := range s.Joints {
		p := mapper.Project(cal, j.Position, res)
		switch {
		case p.X < 0:
			edges |= types.EdgeLeft
		case p.X >= float64(w):
			edges |= types.EdgeRight
		}
		switch {
		case p.Y < 0:
			edges |= types.EdgeTop
		case p.Y >= float64(h):
			edges |= types.EdgeBottom
		}
	}
	return edges
}
