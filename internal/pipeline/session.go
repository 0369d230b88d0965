// Package pipeline runs the per-tick data flow from sensor to display surface.
package pipeline

import (
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/colourskel/skeleton-server/internal/compositor"
	"github.com/colourskel/skeleton-server/internal/frame"
	"github.com/colourskel/skeleton-server/internal/geometry"
	"github.com/colourskel/skeleton-server/internal/logger"
	"github.com/colourskel/skeleton-server/internal/metrics"
	"github.com/colourskel/skeleton-server/internal/overlay"
	"github.com/colourskel/skeleton-server/internal/removal"
	"github.com/colourskel/skeleton-server/internal/sensor"
	"github.com/colourskel/skeleton-server/internal/tracker"
	"github.com/colourskel/skeleton-server/pkg/types"
)

// Options configures a Session
type Options struct {
	Stream    types.StreamConfig
	Measure   geometry.Bone       // Joint pair measured on the selected subject
	Formatter *geometry.Formatter // nil = English, default precision
}

// Session owns one sensor run and everything processed from it.
//
// Ticks arrive on the sensor's goroutine and are processed synchronously;
// tick state is not locked. Outputs reach other goroutines only via Surface.
type Session struct {
	id       string
	opts     Options
	sensor   sensor.Sensor
	engine   removal.Engine
	renderer *overlay.Renderer
	metrics  *metrics.Metrics

	adapter    *frame.Adapter
	tracker    *tracker.Tracker
	compositor *compositor.Compositor
	surface    *Surface

	color       *image.RGBA      // Latest colour feed, reused
	skeletons   []types.Skeleton // Latest skeleton payload, reused
	measurement *geometry.MeasurementResult
	composited  uint64 // Compositor frame count at the last publish
	ticks       uint64

	mu      sync.Mutex
	running bool
	stopped bool
}

// NewSession wires a session. The session takes ownership of engine and
// renderer and closes them on Stop. m may be nil.
func NewSession(s sensor.Sensor, engine removal.Engine, renderer *overlay.Renderer, m *metrics.Metrics, opts Options) *Session {
	sess := &Session{
		id:         uuid.NewString(),
		opts:       opts,
		sensor:     s,
		engine:     engine,
		renderer:   renderer,
		metrics:    m,
		adapter:    frame.NewAdapter(m),
		tracker:    tracker.New(),
		compositor: compositor.New(engine, m),
		surface:    NewSurface(),
	}
	sess.tracker.OnChange = sess.subjectChanged
	return sess
}

// ID returns the session id
func (s *Session) ID() string {
	return s.id
}

// Surface returns the display surface fed by this session
func (s *Session) Surface() *Surface {
	return s.surface
}

// Start attaches the handlers and enables the sensor streams.
func (s *Session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return fmt.Errorf("session %s already stopped: %w", s.id, sensor.ErrInvalidState)
	}
	if s.running {
		return nil
	}

	s.compositor.Attach()
	s.sensor.SetFrameHandler(s.HandleTick)
	if err := s.sensor.Start(s.opts.Stream); err != nil {
		s.sensor.ClearFrameHandler()
		s.compositor.Detach()
		return fmt.Errorf("failed to start sensor: %w", err)
	}
	s.running = true

	logger.Info("Session", "Session %s started (measuring %s-%s)", s.id, s.opts.Measure.A, s.opts.Measure.B)
	return nil
}

// Stop detaches the handlers, disables the streams and then releases the
// engine, compositor and renderer. It is safe to call more than once.
func (s *Session) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return nil
	}
	s.stopped = true
	s.running = false

	// Detach first so no callback reaches a released resource
	s.sensor.ClearFrameHandler()
	s.compositor.Detach()

	var firstErr error
	if err := s.sensor.Stop(); err != nil {
		firstErr = fmt.Errorf("failed to stop sensor: %w", err)
	}

	if err := s.engine.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("failed to close engine: %w", err)
	}
	s.compositor.Close()
	if err := s.renderer.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("failed to close renderer: %w", err)
	}
	s.surface.closeSubscribers()

	logger.Info("Session", "Session %s stopped after %d ticks", s.id, s.ticks)
	return firstErr
}

// HandleTick processes one frame-ready notification.
//
// A tick without a skeleton payload leaves every skeleton-derived output as it
// was: selection, subjects, bones and measurement. A tick that composites no
// frame leaves the published foreground as it was.
func (s *Session) HandleTick(src sensor.FrameSource) {
	start := time.Now()

	bundle := s.adapter.Extract(src)
	selected := s.tracker.State()
	if bundle.Skeletons != nil {
		s.skeletons = append(s.skeletons[:0], bundle.Skeletons.Skeletons...)
		selected = s.tracker.Update(s.skeletons)
		s.measurement = s.measure(s.skeletons, selected)
	}

	if err := s.compositor.Process(bundle, selected); err != nil {
		logger.Warn("Session", "Compositor failed: %v", err)
	}
	var fg *image.RGBA
	if n := s.compositor.Frames(); n != s.composited {
		s.composited = n
		fg = s.compositor.Image()
	}

	if bundle.Color != nil {
		s.color = frame.ColorImage(bundle.Color, s.color)
	}
	ov := s.renderer.Render(s.color, s.skeletons, selected, s.measurement)

	s.ticks++
	latency := time.Since(start)
	s.surface.publish(fg, ov, s.measurement, s.status(bundle, s.skeletons, selected, latency))

	if s.metrics != nil {
		s.metrics.Ticks.Add(1)
		s.metrics.UpdateTickLatency(latency)
		if bundle.Skeletons != nil && s.measurement != nil {
			s.metrics.UpdateDistance(s.measurement.Distance)
		}
	}
	logger.Debug("Session", "Tick %d: subject %s, %d slots, %v", s.ticks, selected, len(s.skeletons), latency)
}

// measure returns the designated bone length of the selected subject, or nil
// when it is not among the Tracked skeletons of this tick.
func (s *Session) measure(skeletons []types.Skeleton, selected tracker.State) *geometry.MeasurementResult {
	if !selected.Selected {
		return nil
	}
	for i := range skeletons {
		sk := &skeletons[i]
		if sk.TrackingState == types.SkeletonTracked && sk.TrackingID == selected.ID {
			r := geometry.Measure(sk, s.opts.Measure.A, s.opts.Measure.B, s.opts.Formatter)
			return &r
		}
	}
	return nil
}

func (s *Session) status(b types.FrameBundle, skeletons []types.Skeleton, selected tracker.State, latency time.Duration) Status {
	st := Status{
		SessionID:  s.id,
		Tick:       s.ticks,
		Selected:   selected.Selected,
		SelectedID: selected.ID,
		Foreground: s.compositor.Image() != nil,
		LatencyMs:  float64(latency.Microseconds()) / 1000,
		UpdatedAt:  time.Now(),
	}
	switch {
	case b.Color != nil:
		st.Timestamp = b.Color.Timestamp
	case b.Skeletons != nil:
		st.Timestamp = b.Skeletons.Timestamp
	}

	for slot := range skeletons {
		sk := &skeletons[slot]
		if sk.TrackingState == types.SkeletonNotTracked {
			continue
		}
		st.Subjects = append(st.Subjects, SubjectStatus{
			Slot:         slot,
			TrackingID:   sk.TrackingID,
			State:        sk.TrackingState.String(),
			Position:     [3]float64{sk.Position.X, sk.Position.Y, sk.Position.Z},
			ClippedEdges: sk.ClippedEdges,
		})
	}
	return st
}

func (s *Session) subjectChanged(next tracker.State) {
	logger.Info("Session", "Selected subject is now %s", next)
	if s.metrics != nil {
		s.metrics.SubjectSwitches.Add(1)
		s.metrics.UpdateSelection(next.ID, next.Selected)
	}
}

// Selected returns the tracker state. Only safe from the tick goroutine or
// while the sensor is stopped.
func (s *Session) Selected() tracker.State {
	return s.tracker.State()
}
