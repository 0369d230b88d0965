package types

import "fmt"

// DepthPlayerIndexBits is the number of low bits in a raw depth pixel that carry the player index.
// The remaining high bits carry the depth in millimetres.
const DepthPlayerIndexBits = 3

// DepthPlayerIndexMask extracts the player index from a raw depth pixel.
const DepthPlayerIndexMask = (1 << DepthPlayerIndexBits) - 1

// DepthPayload is a copied raw depth frame
type DepthPayload struct {
	Pixels    []uint16 // Raw depth pixels (depth<<3 | playerIndex)
	Width     int      // Frame width
	Height    int      // Frame height
	Timestamp int64    // Sensor timestamp in milliseconds
}

// ColorPayload is a copied raw color frame
type ColorPayload struct {
	Pixels    []byte // BGRA pixels, 4 bytes per pixel
	Width     int    // Frame width
	Height    int    // Frame height
	Timestamp int64  // Sensor timestamp in milliseconds
}

// SkeletonPayload is a copied skeleton frame
type SkeletonPayload struct {
	Skeletons []Skeleton // Skeleton slots in sensor order
	Timestamp int64      // Sensor timestamp in milliseconds
}

// FrameBundle is the per-tick snapshot of every stream.
// A nil field means the sensor did not produce that stream this tick.
type FrameBundle struct {
	Depth     *DepthPayload
	Color     *ColorPayload
	Skeletons *SkeletonPayload
}

// Empty reports whether no stream produced a payload.
func (b FrameBundle) Empty() bool {
	return b.Depth == nil && b.Color == nil && b.Skeletons == nil
}

// ForegroundFrame is a composited RGBA frame emitted by the background-removal engine
type ForegroundFrame struct {
	Pixels    []byte // RGBA pixels, background alpha = 0
	Width     int    // Frame width
	Height    int    // Frame height
	Timestamp int64  // Timestamp of the color frame it was built from
}

// ImagePoint is a point in 2D image pixel space
type ImagePoint struct {
	X float64
	Y float64
}

func (p ImagePoint) String() string {
	return fmt.Sprintf("(%.1f, %.1f)", p.X, p.Y)
}

// Resolution identifies a stream image format
type Resolution int

// Resolution constants
const (
	ResolutionUnknown Resolution = iota
	Resolution80x60
	Resolution320x240
	Resolution640x480
	Resolution1280x960
)

var resolutionSizes = map[Resolution][2]int{
	Resolution80x60:    {80, 60},
	Resolution320x240:  {320, 240},
	Resolution640x480:  {640, 480},
	Resolution1280x960: {1280, 960},
}

// Size returns the width and height of the resolution, or 0, 0 if unknown.
func (r Resolution) Size() (width, height int) {
	s, ok := resolutionSizes[r]
	if !ok {
		return 0, 0
	}
	return s[0], s[1]
}

func (r Resolution) String() string {
	w, h := r.Size()
	if w == 0 {
		return "unknown"
	}
	return fmt.Sprintf("%dx%d", w, h)
}

// ParseResolution parses a "WxH" string.
func ParseResolution(s string) (Resolution, error) {
	for r := range resolutionSizes {
		if r.String() == s {
			return r, nil
		}
	}
	return ResolutionUnknown, fmt.Errorf("invalid resolution: %s", s)
}

// StreamConfig selects the formats the sensor should deliver
type StreamConfig struct {
	Depth Resolution // Depth stream format (e.g. 320x240)
	Color Resolution // Color stream format (e.g. 640x480)
	FPS   int        // Frames per second
}

// DefaultStreamConfig mirrors the formats the background-removal engine expects.
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		Depth: Resolution320x240,
		Color: Resolution640x480,
		FPS:   30,
	}
}
