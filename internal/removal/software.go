package removal

import (
	"fmt"
	"image"
	"sync"

	"golang.org/x/image/draw"

	"github.com/colourskel/skeleton-server/internal/logger"
	"github.com/colourskel/skeleton-server/internal/sensor"
	"github.com/colourskel/skeleton-server/pkg/types"
)

// Software is an in-process Engine.
//
// The player index in the low bits of each depth pixel marks which skeleton
// slot the pixel belongs to (index = slot + 1). The mask is registered onto the
// colour frame by nearest-neighbour scaling and background pixels get alpha 0.
// A frame is emitted on ProcessSkeleton once a depth and a colour frame have
// arrived since the previous one.
type Software struct {
	mu sync.Mutex

	depthW, depthH int
	colorW, colorH int

	// Player indices at depth resolution and the registered mask at colour resolution
	players *image.Gray
	mask    *image.Gray

	color   []byte // BGRA as received
	out     []byte // RGBA output, reused
	colorTS int64

	haveDepth bool
	haveColor bool

	subject    int
	hasSubject bool

	onFrame func(types.ForegroundFrame)
	closed  bool
}

// NewSoftware creates a Software engine for the given stream formats.
func NewSoftware(depth, color types.Resolution) (*Software, error) {
	dw, dh := depth.Size()
	cw, ch := color.Size()
	if dw == 0 || cw == 0 {
		return nil, fmt.Errorf("unsupported stream formats: depth %s, color %s", depth, color)
	}

	return &Software{
		depthW:  dw,
		depthH:  dh,
		colorW:  cw,
		colorH:  ch,
		players: image.NewGray(image.Rect(0, 0, dw, dh)),
		mask:    image.NewGray(image.Rect(0, 0, cw, ch)),
		color:   make([]byte, cw*ch*4),
		out:     make([]byte, cw*ch*4),
	}, nil
}

func (e *Software) closedErr() error {
	return fmt.Errorf("background removal engine closed: %w", sensor.ErrInvalidState)
}

// ProcessDepth implements Engine.
func (e *Software) ProcessDepth(pixels []uint16, timestamp int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return e.closedErr()
	}
	if len(pixels) != e.depthW*e.depthH {
		return fmt.Errorf("depth frame has %d pixels, want %d", len(pixels), e.depthW*e.depthH)
	}

	for i, px := range pixels {
		e.players.Pix[i] = uint8(px & types.DepthPlayerIndexMask)
	}
	e.haveDepth = true
	return nil
}

// ProcessColor implements Engine.
func (e *Software) ProcessColor(pixels []byte, timestamp int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return e.closedErr()
	}
	if len(pixels) != len(e.color) {
		return fmt.Errorf("color frame has %d bytes, want %d", len(pixels), len(e.color))
	}

	copy(e.color, pixels)
	e.colorTS = timestamp
	e.haveColor = true
	return nil
}

// ProcessSkeleton implements Engine.
func (e *Software) ProcessSkeleton(skeletons []types.Skeleton, timestamp int64) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return e.closedErr()
	}
	if !e.haveDepth || !e.haveColor {
		e.mu.Unlock()
		return nil
	}

	e.compose(e.foregroundIndex(skeletons))
	e.haveDepth, e.haveColor = false, false

	frame := types.ForegroundFrame{
		Pixels:    e.out,
		Width:     e.colorW,
		Height:    e.colorH,
		Timestamp: e.colorTS,
	}
	onFrame := e.onFrame
	e.mu.Unlock()

	if onFrame != nil {
		onFrame(frame)
	}
	return nil
}

// foregroundIndex returns the player index of the selected subject,
// or 0 to keep every player.
func (e *Software) foregroundIndex(skeletons []types.Skeleton) uint8 {
	if !e.hasSubject {
		return 0
	}
	for slot := range skeletons {
		if skeletons[slot].TrackingState != types.SkeletonNotTracked && skeletons[slot].TrackingID == e.subject {
			return uint8(slot + 1)
		}
	}
	return 0
}

func (e *Software) compose(player uint8) {
	draw.NearestNeighbor.Scale(e.mask, e.mask.Bounds(), e.players, e.players.Bounds(), draw.Src, nil)

	for i, idx := range e.mask.Pix {
		o := i * 4
		fg := idx != 0 && (player == 0 || idx == player)
		if !fg {
			e.out[o], e.out[o+1], e.out[o+2], e.out[o+3] = 0, 0, 0, 0
			continue
		}
		// BGRA -> RGBA
		e.out[o] = e.color[o+2]
		e.out[o+1] = e.color[o+1]
		e.out[o+2] = e.color[o]
		e.out[o+3] = 0xff
	}
}

// SetForegroundSubject implements Engine.
func (e *Software) SetForegroundSubject(trackingID int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return e.closedErr()
	}
	if !e.hasSubject || e.subject != trackingID {
		logger.Debug("Removal", "Foreground subject set to %d", trackingID)
	}
	e.subject = trackingID
	e.hasSubject = true
	return nil
}

// SetFrameReadyHandler implements Engine.
func (e *Software) SetFrameReadyHandler(fn func(types.ForegroundFrame)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onFrame = fn
}

// Close implements Engine. It is safe to call more than once.
func (e *Software) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true
	e.onFrame = nil
	e.color, e.out = nil, nil
	logger.Debug("Removal", "Engine closed")
	return nil
}
