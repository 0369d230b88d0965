// Package removal separates tracked people from the background of the colour feed.
package removal

import (
	"github.com/colourskel/skeleton-server/pkg/types"
)

// Engine consumes one tick of depth, colour and skeleton data and emits
// foreground frames through the frame-ready handler.
//
// Calls must be made depth, colour, skeleton for each tick. Every method
// returns an error wrapping sensor.ErrInvalidState once the engine is closed.
type Engine interface {
	ProcessDepth(pixels []uint16, timestamp int64) error
	ProcessColor(pixels []byte, timestamp int64) error
	ProcessSkeleton(skeletons []types.Skeleton, timestamp int64) error

	// SetForegroundSubject restricts the foreground to one tracking id.
	SetForegroundSubject(trackingID int) error

	// SetFrameReadyHandler installs the output callback; nil detaches it.
	// The frame's pixels are only valid for the duration of the call.
	SetFrameReadyHandler(fn func(types.ForegroundFrame))

	Close() error
}
