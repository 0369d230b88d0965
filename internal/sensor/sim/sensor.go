// Package sim provides a simulated body-tracking sensor that replays a scenario.
package sim

import (
	"fmt"
	"sync"
	"time"

	"github.com/colourskel/skeleton-server/internal/logger"
	"github.com/colourskel/skeleton-server/internal/mapper"
	"github.com/colourskel/skeleton-server/internal/sensor"
	"github.com/colourskel/skeleton-server/pkg/types"
)

// Sensor implements sensor.Sensor over a Scenario.
//
// With a positive FPS ticks are delivered from a time.Ticker goroutine.
// With FPS 0 nothing runs on its own and ticks are produced by Step.
type Sensor struct {
	scenario *Scenario
	cal      mapper.Calibration

	mu      sync.Mutex // guards handler and lifecycle fields
	handler func(sensor.FrameSource)
	running bool
	framer  *framer
	tick    int
	stopCh  chan struct{}
	doneCh  chan struct{}

	deliverMu sync.Mutex // held while a tick is delivered
}

var _ sensor.Sensor = (*Sensor)(nil)

// New creates a simulated sensor for sc
func New(sc *Scenario) *Sensor {
	return &Sensor{
		scenario: sc,
		cal:      mapper.Pinhole{},
	}
}

// Calibration implements sensor.Sensor.
func (s *Sensor) Calibration() mapper.Calibration {
	return s.cal
}

// SetFrameHandler implements sensor.Sensor.
func (s *Sensor) SetFrameHandler(fn func(sensor.FrameSource)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = fn
}

// ClearFrameHandler implements sensor.Sensor. It waits for an in-flight tick.
func (s *Sensor) ClearFrameHandler() {
	s.mu.Lock()
	s.handler = nil
	s.mu.Unlock()

	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()
}

// Start implements sensor.Sensor.
func (s *Sensor) Start(cfg types.StreamConfig) error {
	if w, _ := cfg.Depth.Size(); w == 0 {
		return fmt.Errorf("unsupported depth format: %s", cfg.Depth)
	}
	if w, _ := cfg.Color.Size(); w == 0 {
		return fmt.Errorf("unsupported color format: %s", cfg.Color)
	}
	if cfg.FPS < 0 {
		return fmt.Errorf("fps must be >= 0, got %d", cfg.FPS)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("sensor already started: %w", sensor.ErrInvalidState)
	}
	s.running = true
	s.framer = &framer{scenario: s.scenario, cal: s.cal, cfg: cfg}
	s.tick = 0

	if cfg.FPS > 0 {
		s.stopCh = make(chan struct{})
		s.doneCh = make(chan struct{})
		go s.loop(time.Second/time.Duration(cfg.FPS), s.stopCh, s.doneCh)
	}

	logger.Info("Sim", "Started scenario %q: depth %s, color %s, %d fps", s.scenario.Name, cfg.Depth, cfg.Color, cfg.FPS)
	return nil
}

func (s *Sensor) loop(interval time.Duration, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := s.Step(); err != nil {
				logger.Debug("Sim", "Tick skipped: %v", err)
			}
		}
	}
}

// Step produces and delivers the next tick synchronously.
func (s *Sensor) Step() error {
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()

	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return fmt.Errorf("sensor not started: %w", sensor.ErrInvalidState)
	}
	n := s.tick
	s.tick++
	f := s.framer
	handler := s.handler
	s.mu.Unlock()

	if handler == nil {
		return nil
	}
	handler(f.frames(n))
	return nil
}

// Frames returns the payloads of absolute tick n without delivering them.
func (s *Sensor) Frames(n int, cfg types.StreamConfig) *sensor.StaticSource {
	f := &framer{scenario: s.scenario, cal: s.cal, cfg: cfg}
	return f.frames(n)
}

// Ticks returns how many ticks have been produced since Start
func (s *Sensor) Ticks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tick
}

// Stop implements sensor.Sensor. It is safe to call more than once.
func (s *Sensor) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	stop, done := s.stopCh, s.doneCh
	s.stopCh, s.doneCh = nil, nil
	s.mu.Unlock()

	if stop != nil {
		close(stop)
		<-done
	}

	logger.Info("Sim", "Stopped after %d ticks", s.Ticks())
	return nil
}
