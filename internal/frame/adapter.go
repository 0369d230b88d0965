// Package frame turns a sensor tick into an owned FrameBundle.
package frame

import (
	"errors"

	"github.com/colourskel/skeleton-server/internal/logger"
	"github.com/colourskel/skeleton-server/internal/metrics"
	"github.com/colourskel/skeleton-server/internal/sensor"
	"github.com/colourskel/skeleton-server/pkg/types"
)

// Adapter copies each stream out of its frame handle and closes the handle.
//
// Pixel and skeleton buffers are owned by the adapter and reused across ticks,
// so a bundle is only valid until the next Extract. Nothing is carried over
// from one tick to the next; a missing stream is nil in the bundle.
type Adapter struct {
	metrics *metrics.Metrics

	depth     []uint16
	color     []byte
	skeletons []types.Skeleton

	depthPayload    types.DepthPayload
	colorPayload    types.ColorPayload
	skeletonPayload types.SkeletonPayload
}

// NewAdapter creates an Adapter. m may be nil.
func NewAdapter(m *metrics.Metrics) *Adapter {
	return &Adapter{metrics: m}
}

// Extract builds the bundle for one tick.
func (a *Adapter) Extract(src sensor.FrameSource) types.FrameBundle {
	var b types.FrameBundle
	if src == nil {
		return b
	}

	if p, err := a.extractDepth(src); err != nil {
		a.fault(sensor.StreamDepth, err)
	} else {
		b.Depth = p
	}

	if p, err := a.extractColor(src); err != nil {
		a.fault(sensor.StreamColor, err)
	} else {
		b.Color = p
	}

	if p, err := a.extractSkeletons(src); err != nil {
		a.fault(sensor.StreamSkeleton, err)
	} else {
		b.Skeletons = p
	}

	return b
}

func (a *Adapter) fault(stream sensor.Stream, err error) {
	if errors.Is(err, sensor.ErrInvalidState) {
		logger.Debug("Frame", "%s stream unavailable: %v", stream, err)
	} else {
		logger.Warn("Frame", "%s stream copy failed: %v", stream, err)
	}
	if a.metrics != nil {
		a.metrics.StreamFault(stream.String())
	}
}

func closeFrame(stream sensor.Stream, c interface{ Close() error }) {
	if err := c.Close(); err != nil {
		logger.Debug("Frame", "%s frame close: %v", stream, err)
	}
}

func (a *Adapter) extractDepth(src sensor.FrameSource) (*types.DepthPayload, error) {
	f, err := src.OpenDepth()
	if err != nil || f == nil {
		return nil, err
	}
	defer closeFrame(sensor.StreamDepth, f)

	n := f.PixelDataLength()
	if cap(a.depth) < n {
		a.depth = make([]uint16, n)
	}
	a.depth = a.depth[:n]
	if err := f.CopyPixelDataTo(a.depth); err != nil {
		return nil, err
	}

	a.depthPayload = types.DepthPayload{
		Pixels:    a.depth,
		Width:     f.Width(),
		Height:    f.Height(),
		Timestamp: f.Timestamp(),
	}
	if a.metrics != nil {
		a.metrics.DepthFrames.Add(1)
	}
	return &a.depthPayload, nil
}

func (a *Adapter) extractColor(src sensor.FrameSource) (*types.ColorPayload, error) {
	f, err := src.OpenColor()
	if err != nil || f == nil {
		return nil, err
	}
	defer closeFrame(sensor.StreamColor, f)

	n := f.PixelDataLength()
	if cap(a.color) < n {
		a.color = make([]byte, n)
	}
	a.color = a.color[:n]
	if err := f.CopyPixelDataTo(a.color); err != nil {
		return nil, err
	}

	a.colorPayload = types.ColorPayload{
		Pixels:    a.color,
		Width:     f.Width(),
		Height:    f.Height(),
		Timestamp: f.Timestamp(),
	}
	if a.metrics != nil {
		a.metrics.ColorFrames.Add(1)
	}
	return &a.colorPayload, nil
}

func (a *Adapter) extractSkeletons(src sensor.FrameSource) (*types.SkeletonPayload, error) {
	f, err := src.OpenSkeleton()
	if err != nil || f == nil {
		return nil, err
	}
	defer closeFrame(sensor.StreamSkeleton, f)

	n := f.SkeletonArrayLength()
	if cap(a.skeletons) < n {
		a.skeletons = make([]types.Skeleton, n)
	}
	a.skeletons = a.skeletons[:n]
	if err := f.CopySkeletonDataTo(a.skeletons); err != nil {
		return nil, err
	}

	a.skeletonPayload = types.SkeletonPayload{
		Skeletons: a.skeletons,
		Timestamp: f.Timestamp(),
	}
	if a.metrics != nil {
		a.metrics.SkeletonFrames.Add(1)
	}
	return &a.skeletonPayload, nil
}
