// Package compositor drives the background-removal engine and owns the foreground image.
package compositor

import (
	"errors"
	"fmt"
	"image"

	"github.com/colourskel/skeleton-server/internal/logger"
	"github.com/colourskel/skeleton-server/internal/metrics"
	"github.com/colourskel/skeleton-server/internal/removal"
	"github.com/colourskel/skeleton-server/internal/sensor"
	"github.com/colourskel/skeleton-server/internal/tracker"
	"github.com/colourskel/skeleton-server/pkg/types"
)

// Compositor feeds each tick into an Engine and keeps a copy of its output.
//
// The foreground image is allocated on the first frame and again only when the
// frame dimensions change. It is not safe for concurrent use.
type Compositor struct {
	engine  removal.Engine
	metrics *metrics.Metrics

	img       *image.RGBA
	reallocs  int
	frames    uint64
	timestamp int64
}

// New creates a Compositor over engine. m may be nil.
func New(engine removal.Engine, m *metrics.Metrics) *Compositor {
	return &Compositor{engine: engine, metrics: m}
}

// Attach registers HandleFrame as the engine's frame-ready handler
func (c *Compositor) Attach() {
	c.engine.SetFrameReadyHandler(c.HandleFrame)
}

// Detach removes the frame-ready handler
func (c *Compositor) Detach() {
	c.engine.SetFrameReadyHandler(nil)
}

// Process feeds depth and colour, then the selected subject, then skeletons,
// skipping absent payloads. The subject goes in before the skeletons so the frame
// composited from them already shows the new selection. An engine fault wrapping sensor.ErrInvalidState ends the tick
// early and leaves the previous image in place; it is not returned.
func (c *Compositor) Process(b types.FrameBundle, subject tracker.State) error {
	err := c.process(b, subject)
	if err == nil {
		return nil
	}
	if errors.Is(err, sensor.ErrInvalidState) {
		logger.Debug("Compositor", "Tick skipped: %v", err)
		if c.metrics != nil {
			c.metrics.CompositorSkipped.Add(1)
		}
		return nil
	}
	return err
}

func (c *Compositor) process(b types.FrameBundle, subject tracker.State) error {
	if b.Depth != nil {
		if err := c.engine.ProcessDepth(b.Depth.Pixels, b.Depth.Timestamp); err != nil {
			return fmt.Errorf("process depth: %w", err)
		}
	}
	if b.Color != nil {
		if err := c.engine.ProcessColor(b.Color.Pixels, b.Color.Timestamp); err != nil {
			return fmt.Errorf("process color: %w", err)
		}
	}
	if subject.Selected {
		if err := c.engine.SetForegroundSubject(subject.ID); err != nil {
			return fmt.Errorf("set foreground subject: %w", err)
		}
	}
	if b.Skeletons != nil {
		if err := c.engine.ProcessSkeleton(b.Skeletons.Skeletons, b.Skeletons.Timestamp); err != nil {
			return fmt.Errorf("process skeleton: %w", err)
		}
	}
	return nil
}

// HandleFrame copies an engine frame into the owned image.
func (c *Compositor) HandleFrame(f types.ForegroundFrame) {
	if f.Width <= 0 || f.Height <= 0 || len(f.Pixels) < f.Width*f.Height*4 {
		logger.Warn("Compositor", "Dropping malformed foreground frame %dx%d (%d bytes)", f.Width, f.Height, len(f.Pixels))
		return
	}

	if c.img == nil || c.img.Rect.Dx() != f.Width || c.img.Rect.Dy() != f.Height {
		c.img = image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))
		c.reallocs++
		if c.metrics != nil {
			c.metrics.BufferReallocs.Add(1)
		}
		logger.Debug("Compositor", "Foreground buffer allocated at %dx%d", f.Width, f.Height)
	}

	copy(c.img.Pix, f.Pixels[:f.Width*f.Height*4])
	c.timestamp = f.Timestamp
	c.frames++
	if c.metrics != nil {
		c.metrics.CompositedFrames.Add(1)
	}
}

// Image returns the owned foreground image, or nil before the first frame.
// Callers must not modify it.
func (c *Compositor) Image() *image.RGBA {
	return c.img
}

// Timestamp returns the colour timestamp of the current image
func (c *Compositor) Timestamp() int64 {
	return c.timestamp
}

// Frames returns how many engine frames have been copied in
func (c *Compositor) Frames() uint64 {
	return c.frames
}

// Reallocations returns how many times the image buffer was allocated
func (c *Compositor) Reallocations() int {
	return c.reallocs
}

// Close releases the image buffer
func (c *Compositor) Close() {
	c.img = nil
}
