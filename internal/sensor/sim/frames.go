package sim

import (
	"math"

	"github.com/golang/geo/r3"

	"github.com/colourskel/skeleton-server/internal/mapper"
	"github.com/colourskel/skeleton-server/internal/sensor"
	"github.com/colourskel/skeleton-server/pkg/types"
)

// Depth values in millimetres
const (
	backgroundDepthMM = 4000
	maxDepthMM        = 1<<(16-types.DepthPlayerIndexBits) - 1
)

// silhouette margins in metres around the joint bounding box
const (
	silhouetteMarginX = 0.08
	silhouetteMarginY = 0.1
)

// framer renders scenario ticks into sensor payloads
type framer struct {
	scenario *Scenario
	cal      mapper.Calibration
	cfg      types.StreamConfig
}

// frames builds the payloads of absolute tick n
func (f *framer) frames(n int) *sensor.StaticSource {
	t := f.scenario.tickInLoop(n)
	ts := int64(n)
	if f.cfg.FPS > 0 {
		ts = int64(n) * 1000 / int64(f.cfg.FPS)
	}

	skeletons := make([]types.Skeleton, MaxSlots)
	for _, s := range f.scenario.Subjects {
		if s.visible(t) {
			skeletons[s.Slot] = skeletonAt(s, t, f.cal, f.cfg.Color)
		}
	}

	return &sensor.StaticSource{
		Depth:     f.depth(skeletons, ts),
		Color:     f.color(t, ts),
		Skeletons: &types.SkeletonPayload{Skeletons: skeletons, Timestamp: ts},
	}
}

// depth paints a box silhouette per visible subject, nearest subject on top
func (f *framer) depth(skeletons []types.Skeleton, ts int64) *types.DepthPayload {
	w, h := f.cfg.Depth.Size()
	px := make([]uint16, w*h)
	for i := range px {
		px[i] = backgroundDepthMM << types.DepthPlayerIndexBits
	}

	for slot := range skeletons {
		s := &skeletons[slot]
		if s.TrackingState == types.SkeletonNotTracked {
			continue
		}
		mm := uint16(math.Min(math.Round(s.Position.Z*1000), maxDepthMM))
		value := mm<<types.DepthPlayerIndexBits | uint16(slot+1)

		x0, y0, x1, y1 := f.silhouette(s, w, h)
		for y := y0; y < y1; y++ {
			row := px[y*w : (y+1)*w]
			for x := x0; x < x1; x++ {
				if row[x]>>types.DepthPlayerIndexBits > mm {
					row[x] = value
				}
			}
		}
	}

	return &types.DepthPayload{Pixels: px, Width: w, Height: h, Timestamp: ts}
}

// silhouette returns the depth-image rectangle covering the subject
func (f *framer) silhouette(s *types.Skeleton, w, h int) (x0, y0, x1, y1 int) {
	minX, maxX := s.Position.X-0.3, s.Position.X+0.3
	minY, maxY := s.Position.Y-0.9, s.Position.Y+0.7
	if s.TrackingState == types.SkeletonTracked {
		minX, maxX = math.Inf(1), math.Inf(-1)
		minY, maxY = math.Inf(1), math.Inf(-1)
		for _, j := range s.Joints {
			minX, maxX = math.Min(minX, j.Position.X), math.Max(maxX, j.Position.X)
			minY, maxY = math.Min(minY, j.Position.Y), math.Max(maxY, j.Position.Y)
		}
	}

	z := s.Position.Z
	topLeft := mapper.ProjectDepth(f.cal, r3.Vector{X: minX - silhouetteMarginX, Y: maxY + silhouetteMarginY, Z: z}, f.cfg.Depth)
	bottomRight := mapper.ProjectDepth(f.cal, r3.Vector{X: maxX + silhouetteMarginX, Y: minY - silhouetteMarginY, Z: z}, f.cfg.Depth)

	x0 = clamp(int(topLeft.X), 0, w)
	y0 = clamp(int(topLeft.Y), 0, h)
	x1 = clamp(int(math.Ceil(bottomRight.X)), 0, w)
	y1 = clamp(int(math.Ceil(bottomRight.Y)), 0, h)
	return x0, y0, x1, y1
}

// color renders a BGRA gradient whose red channel drifts with time
func (f *framer) color(t int, ts int64) *types.ColorPayload {
	w, h := f.cfg.Color.Size()
	px := make([]byte, w*h*4)
	red := byte(t * 2)
	for y := 0; y < h; y++ {
		g := byte(y * 255 / h)
		for x := 0; x < w; x++ {
			o := (y*w + x) * 4
			px[o] = byte(x * 255 / w)
			px[o+1] = g
			px[o+2] = red
			px[o+3] = 0xff
		}
	}
	return &types.ColorPayload{Pixels: px, Width: w, Height: h, Timestamp: ts}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
