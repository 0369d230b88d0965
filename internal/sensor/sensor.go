// Package sensor defines the boundary to the body-tracking device.
//
// A Sensor delivers one FrameSource per frame-ready tick. Each stream handle is
// opened, copied and closed by the consumer; a nil handle means the stream did
// not produce a frame this tick.
package sensor

import (
	"errors"

	"github.com/colourskel/skeleton-server/internal/mapper"
	"github.com/colourskel/skeleton-server/pkg/types"
)

// ErrInvalidState is returned when the device rejects an operation because it
// is mid-teardown or otherwise not ready. Callers treat it as transient.
var ErrInvalidState = errors.New("sensor: invalid state")

// Stream names one of the sensor's frame streams
type Stream int

// Stream constants
const (
	StreamDepth Stream = iota
	StreamColor
	StreamSkeleton
)

func (s Stream) String() string {
	switch s {
	case StreamDepth:
		return "depth"
	case StreamColor:
		return "color"
	case StreamSkeleton:
		return "skeleton"
	default:
		return "unknown"
	}
}

// DepthFrame is an open depth frame handle
type DepthFrame interface {
	Width() int
	Height() int
	Timestamp() int64
	PixelDataLength() int
	CopyPixelDataTo(dst []uint16) error
	Close() error
}

// ColorFrame is an open color frame handle (BGRA)
type ColorFrame interface {
	Width() int
	Height() int
	Timestamp() int64
	PixelDataLength() int
	CopyPixelDataTo(dst []byte) error
	Close() error
}

// SkeletonFrame is an open skeleton frame handle
type SkeletonFrame interface {
	Timestamp() int64
	SkeletonArrayLength() int
	CopySkeletonDataTo(dst []types.Skeleton) error
	Close() error
}

// FrameSource gives access to the frames of a single tick.
// Each Open call returns a nil handle and nil error when the stream has no frame.
type FrameSource interface {
	OpenDepth() (DepthFrame, error)
	OpenColor() (ColorFrame, error)
	OpenSkeleton() (SkeletonFrame, error)
}

// Sensor is a body-tracking device
type Sensor interface {
	// Start enables the streams and begins delivering ticks.
	Start(cfg types.StreamConfig) error
	// Stop disables the streams. It returns once no tick is in flight.
	Stop() error
	// SetFrameHandler installs the tick callback. It runs on the sensor's goroutine.
	SetFrameHandler(fn func(FrameSource))
	// ClearFrameHandler detaches the tick callback and waits for an in-flight tick.
	ClearFrameHandler()
	// Calibration returns the device's coordinate mapping.
	Calibration() mapper.Calibration
}
