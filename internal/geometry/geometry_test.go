package geometry

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"

	"github.com/colourskel/skeleton-server/pkg/types"
)

func joint(t types.JointType, s types.JointTrackingState, x, y, z float64) types.Joint {
	return types.Joint{Type: t, TrackingState: s, Position: r3.Vector{X: x, Y: y, Z: z}}
}

func finite(p types.ImagePoint) bool {
	return !math.IsNaN(p.X) && !math.IsInf(p.X, 0) && !math.IsNaN(p.Y) && !math.IsInf(p.Y, 0)
}

func TestDistance(t *testing.T) {
	a := joint(types.ShoulderLeft, types.JointTracked, 0, 0, 2)
	b := joint(types.ElbowLeft, types.JointTracked, 0.3, 0.4, 2)
	assert.InDelta(t, 0.5, Distance(a, b), 1e-12)

	// Untracked joints still measure from their last position
	b.TrackingState = types.JointNotTracked
	assert.InDelta(t, 0.5, Distance(a, b), 1e-12)

	assert.Zero(t, Distance(a, a))
}

func TestMidpoint(t *testing.T) {
	got := Midpoint(types.ImagePoint{X: 10, Y: 20}, types.ImagePoint{X: 30, Y: 60})
	assert.Equal(t, types.ImagePoint{X: 20, Y: 40}, got)
}

func TestPerpendicularSlope(t *testing.T) {
	tests := []struct {
		name   string
		p1, p2 types.ImagePoint
		want   float64
	}{
		{"vertical", types.ImagePoint{X: 5, Y: 0}, types.ImagePoint{X: 5, Y: 10}, 0},
		{"zero length", types.ImagePoint{X: 5, Y: 5}, types.ImagePoint{X: 5, Y: 5}, 0},
		{"horizontal", types.ImagePoint{X: 0, Y: 5}, types.ImagePoint{X: 10, Y: 5}, math.Inf(1)},
		{"diagonal", types.ImagePoint{X: 0, Y: 0}, types.ImagePoint{X: 10, Y: 10}, -1},
		{"shallow", types.ImagePoint{X: 0, Y: 0}, types.ImagePoint{X: 4, Y: 2}, -2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PerpendicularSlope(tt.p1, tt.p2)
			assert.False(t, math.IsNaN(got))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPointOnLine(t *testing.T) {
	origin := types.ImagePoint{X: 10, Y: 10}
	assert.Equal(t, types.ImagePoint{X: 12, Y: 6}, PointOnLine(origin, -2, 12))
	assert.Equal(t, origin, PointOnLine(origin, math.Inf(1), 10))
}

func TestPerpendicularSegment(t *testing.T) {
	tests := []struct {
		name   string
		p1, p2 types.ImagePoint
		wantA  types.ImagePoint
		wantB  types.ImagePoint
	}{
		{
			"vertical bone gives horizontal guide",
			types.ImagePoint{X: 100, Y: 100}, types.ImagePoint{X: 100, Y: 140},
			types.ImagePoint{X: 80, Y: 120}, types.ImagePoint{X: 120, Y: 120},
		},
		{
			"horizontal bone gives vertical guide",
			types.ImagePoint{X: 100, Y: 100}, types.ImagePoint{X: 160, Y: 100},
			types.ImagePoint{X: 130, Y: 70}, types.ImagePoint{X: 130, Y: 130},
		},
		{
			"zero length collapses to midpoint",
			types.ImagePoint{X: 50, Y: 50}, types.ImagePoint{X: 50, Y: 50},
			types.ImagePoint{X: 50, Y: 50}, types.ImagePoint{X: 50, Y: 50},
		},
		{
			"diagonal bone",
			types.ImagePoint{X: 0, Y: 0}, types.ImagePoint{X: 10, Y: 10},
			types.ImagePoint{X: 0, Y: 10}, types.ImagePoint{X: 10, Y: 0},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, b := PerpendicularSegment(tt.p1, tt.p2)
			require.True(t, finite(a) && finite(b))
			assert.InDelta(t, tt.wantA.X, a.X, 1e-9)
			assert.InDelta(t, tt.wantA.Y, a.Y, 1e-9)
			assert.InDelta(t, tt.wantB.X, b.X, 1e-9)
			assert.InDelta(t, tt.wantB.Y, b.Y, 1e-9)
		})
	}
}

func TestClassifyBone(t *testing.T) {
	tr, inf, nt := types.JointTracked, types.JointInferred, types.JointNotTracked
	tests := []struct {
		s0, s1 types.JointTrackingState
		want   BoneStyle
	}{
		{tr, tr, BoneTracked},
		{tr, inf, BoneInferred},
		{inf, tr, BoneInferred},
		{inf, inf, BoneSuppressed},
		{tr, nt, BoneSuppressed},
		{nt, tr, BoneSuppressed},
		{nt, nt, BoneSuppressed},
		{inf, nt, BoneSuppressed},
	}
	for _, tt := range tests {
		t.Run(tt.s0.String()+"/"+tt.s1.String(), func(t *testing.T) {
			got := ClassifyBone(
				joint(types.ShoulderLeft, tt.s0, 0, 0, 0),
				joint(types.ElbowLeft, tt.s1, 0, 0, 0),
			)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBonesCoverEveryJoint(t *testing.T) {
	seen := map[types.JointType]bool{}
	for _, b := range Bones {
		require.NotEqual(t, b.A, b.B)
		seen[b.A] = true
		seen[b.B] = true
	}
	assert.Len(t, seen, types.JointCount)
}

func TestMeasure(t *testing.T) {
	var skel types.Skeleton
	skel.Joints[types.ShoulderLeft] = joint(types.ShoulderLeft, types.JointTracked, 0, 0, 2)
	skel.Joints[types.ElbowLeft] = joint(types.ElbowLeft, types.JointTracked, 0.2876, 0, 2)

	got := Measure(&skel, types.ShoulderLeft, types.ElbowLeft, nil)

	assert.Equal(t, types.ShoulderLeft, got.JointA)
	assert.Equal(t, types.ElbowLeft, got.JointB)
	assert.InDelta(t, 0.2876, got.Distance, 1e-12)
	assert.Equal(t, "Between: ShoulderLeft and ElbowLeft - 0.2876", got.Label)
}

func TestMeasureZeroDistanceIsValid(t *testing.T) {
	var skel types.Skeleton
	got := Measure(&skel, types.Head, types.ShoulderCenter, NewFormatter(language.English, 2))

	assert.Zero(t, got.Distance)
	assert.Equal(t, "Between: Head and ShoulderCenter - 0.00", got.Label)
}
