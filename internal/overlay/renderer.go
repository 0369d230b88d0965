// Package overlay draws skeletons, the measurement guide and its label over the colour feed.
package overlay

import (
	"image"
	"image/color"

	"github.com/golang/geo/r3"
	"golang.org/x/image/draw"

	"github.com/colourskel/skeleton-server/internal/geometry"
	"github.com/colourskel/skeleton-server/internal/mapper"
	"github.com/colourskel/skeleton-server/internal/tracker"
	"github.com/colourskel/skeleton-server/pkg/types"
)

// Drawing constants
const (
	JointRadius       = 3.0
	BodyCenterRadius  = 10.0
	ClipEdgeThickness = 10.0
	TrackedBoneWidth  = 6.0
	InferredBoneWidth = 1.0
	GuideLineWidth    = 3.0
)

// Palette
var (
	ColorTrackedBone   = color.RGBA{R: 0, G: 128, B: 0, A: 255}
	ColorInferredBone  = color.RGBA{R: 128, G: 128, B: 128, A: 255}
	ColorTrackedJoint  = color.RGBA{R: 68, G: 192, B: 68, A: 255}
	ColorInferredJoint = color.RGBA{R: 255, G: 255, B: 0, A: 255}
	ColorBodyCenter    = color.RGBA{R: 0, G: 0, B: 255, A: 255}
	ColorClipEdge      = color.RGBA{R: 255, G: 0, B: 0, A: 255}
	ColorGuide         = color.RGBA{R: 255, G: 0, B: 0, A: 255}
	ColorLabel         = color.RGBA{R: 255, G: 255, B: 255, A: 255}
)

// Options configures a Renderer
type Options struct {
	Width      int              // Render width in pixels
	Height     int              // Render height in pixels
	Resolution types.Resolution // Colour format joints are projected into
	Guide      geometry.Bone    // Bone that gets the perpendicular guide
}

// DefaultOptions renders at 640x480 with the guide on the left upper arm.
func DefaultOptions() Options {
	return Options{
		Width:      640,
		Height:     480,
		Resolution: types.Resolution640x480,
		Guide:      geometry.Bone{A: types.ShoulderLeft, B: types.ElbowLeft},
	}
}

// Renderer composes one overlay frame per tick
type Renderer struct {
	canvas Canvas
	cal    mapper.Calibration
	opts   Options

	scaled *image.RGBA
}

// NewRenderer creates a Renderer drawing on canvas.
func NewRenderer(canvas Canvas, cal mapper.Calibration, opts Options) *Renderer {
	return &Renderer{canvas: canvas, cal: cal, opts: opts}
}

// Options returns the renderer configuration
func (r *Renderer) Options() Options {
	return r.opts
}

// Render draws the colour feed (black when nil), every skeleton slot and, for the
// selected subject, the guide line and measurement label.
func (r *Renderer) Render(feed *image.RGBA, skeletons []types.Skeleton, selected tracker.State, m *geometry.MeasurementResult) *image.RGBA {
	r.canvas.Reset(r.opts.Width, r.opts.Height, r.background(feed))

	for i := range skeletons {
		s := &skeletons[i]
		r.clippedEdges(s)

		switch s.TrackingState {
		case types.SkeletonTracked:
			r.bonesAndJoints(s)
			if selected.Selected && s.TrackingID == selected.ID {
				r.guide(s)
			}
		case types.SkeletonPositionOnly:
			r.canvas.Dot(r.project(s.Position), BodyCenterRadius, ColorBodyCenter)
		}
	}

	if m != nil && m.Label != "" {
		r.canvas.Text(m.Label, 10, float64(r.opts.Height)-12, ColorLabel)
	}

	return r.canvas.Image()
}

func (r *Renderer) background(feed *image.RGBA) image.Image {
	if feed == nil {
		return nil
	}
	if feed.Rect.Dx() == r.opts.Width && feed.Rect.Dy() == r.opts.Height {
		return feed
	}
	if r.scaled == nil {
		r.scaled = image.NewRGBA(image.Rect(0, 0, r.opts.Width, r.opts.Height))
	}
	draw.ApproxBiLinear.Scale(r.scaled, r.scaled.Bounds(), feed, feed.Bounds(), draw.Src, nil)
	return r.scaled
}

func (r *Renderer) project(p r3.Vector) types.ImagePoint {
	return mapper.Project(r.cal, p, r.opts.Resolution)
}

func (r *Renderer) clippedEdges(s *types.Skeleton) {
	w, h := float64(r.opts.Width), float64(r.opts.Height)
	if s.ClippedEdges.Has(types.EdgeBottom) {
		r.canvas.FillRect(0, h-ClipEdgeThickness, w, ClipEdgeThickness, ColorClipEdge)
	}
	if s.ClippedEdges.Has(types.EdgeTop) {
		r.canvas.FillRect(0, 0, w, ClipEdgeThickness, ColorClipEdge)
	}
	if s.ClippedEdges.Has(types.EdgeLeft) {
		r.canvas.FillRect(0, 0, ClipEdgeThickness, h, ColorClipEdge)
	}
	if s.ClippedEdges.Has(types.EdgeRight) {
		r.canvas.FillRect(w-ClipEdgeThickness, 0, ClipEdgeThickness, h, ColorClipEdge)
	}
}

func (r *Renderer) bonesAndJoints(s *types.Skeleton) {
	for _, b := range geometry.Bones {
		r.bone(s, b)
	}

	for _, j := range s.Joints {
		switch j.TrackingState {
		case types.JointTracked:
			r.canvas.Dot(r.project(j.Position), JointRadius, ColorTrackedJoint)
		case types.JointInferred:
			r.canvas.Dot(r.project(j.Position), JointRadius, ColorInferredJoint)
		}
	}
}

func (r *Renderer) bone(s *types.Skeleton, b geometry.Bone) {
	j0, j1 := s.Joint(b.A), s.Joint(b.B)

	switch geometry.ClassifyBone(j0, j1) {
	case geometry.BoneTracked:
		r.canvas.Line(r.project(j0.Position), r.project(j1.Position), TrackedBoneWidth, ColorTrackedBone)
	case geometry.BoneInferred:
		r.canvas.Line(r.project(j0.Position), r.project(j1.Position), InferredBoneWidth, ColorInferredBone)
	}
}

func (r *Renderer) guide(s *types.Skeleton) {
	j0, j1 := s.Joint(r.opts.Guide.A), s.Joint(r.opts.Guide.B)
	if geometry.ClassifyBone(j0, j1) == geometry.BoneSuppressed {
		return
	}

	a, b := geometry.PerpendicularSegment(r.project(j0.Position), r.project(j1.Position))
	r.canvas.Line(a, b, GuideLineWidth, ColorGuide)
}

// Close releases the canvas
func (r *Renderer) Close() error {
	r.scaled = nil
	return r.canvas.Close()
}
