package tracker

import (
	"testing"

	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"

	"github.com/colourskel/skeleton-server/pkg/types"
)

func skel(id int, state types.SkeletonTrackingState, z float64) types.Skeleton {
	return types.Skeleton{
		TrackingID:    id,
		TrackingState: state,
		Position:      r3.Vector{X: 0, Y: 0, Z: z},
	}
}

func TestChooseNearestOnAcquire(t *testing.T) {
	skeletons := []types.Skeleton{
		skel(1, types.SkeletonTracked, 2.5),
		skel(2, types.SkeletonTracked, 1.1),
		skel(3, types.SkeletonTracked, 3.0),
	}

	got, changed := Choose(State{}, skeletons)

	assert.True(t, changed)
	assert.Equal(t, State{ID: 2, Selected: true}, got)
}

func TestChooseSticksToCurrentSubject(t *testing.T) {
	skeletons := []types.Skeleton{
		skel(5, types.SkeletonTracked, 3.0),
		skel(7, types.SkeletonTracked, 1.0),
	}

	got, changed := Choose(State{ID: 5, Selected: true}, skeletons)

	assert.False(t, changed)
	assert.Equal(t, 5, got.ID)
}

func TestChooseSwitchesWhenCurrentLeaves(t *testing.T) {
	skeletons := []types.Skeleton{
		skel(5, types.SkeletonPositionOnly, 1.0),
		skel(7, types.SkeletonTracked, 2.0),
		skel(9, types.SkeletonTracked, 2.2),
	}

	got, changed := Choose(State{ID: 5, Selected: true}, skeletons)

	assert.True(t, changed)
	assert.Equal(t, State{ID: 7, Selected: true}, got)
}

func TestChooseNoCandidateKeepsState(t *testing.T) {
	tests := []struct {
		name      string
		state     State
		skeletons []types.Skeleton
	}{
		{"empty with selection", State{ID: 4, Selected: true}, nil},
		{"empty without selection", State{}, []types.Skeleton{}},
		{"only untracked", State{ID: 4, Selected: true}, []types.Skeleton{
			skel(4, types.SkeletonPositionOnly, 1.0),
			skel(0, types.SkeletonNotTracked, 0),
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, changed := Choose(tt.state, tt.skeletons)
			assert.False(t, changed)
			assert.Equal(t, tt.state, got)
		})
	}
}

func TestChooseEqualDepthFirstWins(t *testing.T) {
	skeletons := []types.Skeleton{
		skel(8, types.SkeletonTracked, 2.0),
		skel(3, types.SkeletonTracked, 2.0),
	}

	got, _ := Choose(State{}, skeletons)

	assert.Equal(t, 8, got.ID)
}

func TestTrackerOnChange(t *testing.T) {
	tr := New()
	var calls []State
	tr.OnChange = func(s State) { calls = append(calls, s) }

	ticks := [][]types.Skeleton{
		{skel(5, types.SkeletonTracked, 2.0), skel(7, types.SkeletonTracked, 2.5)},
		{skel(5, types.SkeletonTracked, 2.6), skel(7, types.SkeletonTracked, 1.0)},
		{skel(7, types.SkeletonTracked, 1.0)},
		{},
	}
	var ids []int
	for _, tick := range ticks {
		ids = append(ids, tr.Update(tick).ID)
	}

	assert.Equal(t, []int{5, 5, 7, 7}, ids)
	assert.Equal(t, []State{{ID: 5, Selected: true}, {ID: 7, Selected: true}}, calls)

	tr.Reset()
	assert.Equal(t, "none", tr.State().String())
}
