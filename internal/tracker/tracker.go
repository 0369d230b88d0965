// Package tracker keeps a single selected subject stable across frames.
//
// Selection sticks to the current subject while it stays Tracked and otherwise
// falls back to the Tracked skeleton nearest to the sensor.
package tracker

import (
	"strconv"

	"github.com/colourskel/skeleton-server/internal/logger"
	"github.com/colourskel/skeleton-server/pkg/types"
)

// State is the selected subject carried from one tick to the next
type State struct {
	ID       int  // Tracking id of the selected subject
	Selected bool // False until a subject has been chosen
}

func (s State) String() string {
	if !s.Selected {
		return "none"
	}
	return strconv.Itoa(s.ID)
}

// Choose returns the next selection for the given skeleton slots.
//
// If the current subject is among the Tracked skeletons it is kept. Otherwise the
// Tracked skeleton with the smallest Z wins, ties going to the first in slot order.
// With no Tracked skeleton the state is returned unchanged. The bool reports
// whether the selection changed.
func Choose(state State, skeletons []types.Skeleton) (State, bool) {
	nearest := -1
	nearestZ := 0.0

	for i := range skeletons {
		s := &skeletons[i]
		if s.TrackingState != types.SkeletonTracked {
			continue
		}
		if state.Selected && s.TrackingID == state.ID {
			return state, false
		}
		if nearest < 0 || s.Position.Z < nearestZ {
			nearest = i
			nearestZ = s.Position.Z
		}
	}

	if nearest < 0 {
		return state, false
	}

	next := State{ID: skeletons[nearest].TrackingID, Selected: true}
	return next, next != state
}

// Tracker holds the selection for one session
type Tracker struct {
	state State

	// OnChange is called with the new state whenever the selection changes.
	OnChange func(State)
}

// New creates a Tracker with no subject selected
func New() *Tracker {
	return &Tracker{}
}

// Update applies Choose to the tracker's state and returns the result.
func (t *Tracker) Update(skeletons []types.Skeleton) State {
	next, changed := Choose(t.state, skeletons)
	if !changed {
		return t.state
	}

	logger.Debug("Tracker", "Subject %s -> %s", t.state, next)
	t.state = next
	if t.OnChange != nil {
		t.OnChange(next)
	}
	return next
}

// State returns the current selection
func (t *Tracker) State() State {
	return t.state
}

// Reset clears the selection without notifying OnChange
func (t *Tracker) Reset() {
	t.state = State{}
}
