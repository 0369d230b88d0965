// Package app wires a configured pipeline out of the simulated sensor, the
// software removal engine and the gg overlay renderer.
package app

import (
	"fmt"
	"io"

	"github.com/gogpu/gg"

	"github.com/colourskel/skeleton-server/internal/config"
	"github.com/colourskel/skeleton-server/internal/geometry"
	"github.com/colourskel/skeleton-server/internal/logger"
	"github.com/colourskel/skeleton-server/internal/metrics"
	"github.com/colourskel/skeleton-server/internal/overlay"
	"github.com/colourskel/skeleton-server/internal/pipeline"
	"github.com/colourskel/skeleton-server/internal/removal"
	"github.com/colourskel/skeleton-server/internal/sensor/sim"
	"github.com/colourskel/skeleton-server/pkg/types"
)

// InitLogging sets up the global logger and routes gg's diagnostics into it.
func InitLogging(cfg config.LogConfig, w io.Writer) (logger.LogLevel, error) {
	level, err := logger.ParseLevel(cfg.Level)
	if err != nil {
		return 0, err
	}
	logger.Init(level, w, cfg.Color)
	gg.SetLogger(logger.Default().Slog("gg"))
	return level, nil
}

// Pipeline is a session together with the simulated sensor driving it
type Pipeline struct {
	Sensor  *sim.Sensor
	Session *pipeline.Session
	Stream  types.StreamConfig
}

// Build creates the sensor, engine and renderer described by cfg and wires
// them into a session. The session is not started. m may be nil.
func Build(cfg *config.Config, m *metrics.Metrics) (*Pipeline, error) {
	stream, err := cfg.StreamConfig()
	if err != nil {
		return nil, err
	}

	sc := sim.DefaultScenario()
	if cfg.Sensor.Scenario != "" {
		sc, err = sim.LoadScenario(cfg.Sensor.Scenario)
		if err != nil {
			return nil, err
		}
	}
	sens := sim.New(sc)

	engine, err := removal.NewSoftware(stream.Depth, stream.Color)
	if err != nil {
		return nil, fmt.Errorf("failed to create removal engine: %w", err)
	}

	canvas, err := overlay.NewGGCanvas(cfg.Pipeline.FontSize)
	if err != nil {
		engine.Close()
		return nil, fmt.Errorf("failed to create overlay canvas: %w", err)
	}

	bone := geometry.Bone{A: cfg.Measurement.JointA, B: cfg.Measurement.JointB}
	renderer := overlay.NewRenderer(canvas, sens.Calibration(), overlay.Options{
		Width:      cfg.Pipeline.Width,
		Height:     cfg.Pipeline.Height,
		Resolution: stream.Color,
		Guide:      bone,
	})

	session := pipeline.NewSession(sens, engine, renderer, m, pipeline.Options{
		Stream:    stream,
		Measure:   bone,
		Formatter: geometry.NewFormatter(cfg.Measurement.Tag(), cfg.Measurement.Precision),
	})

	logger.Info("App", "Session %s: depth %s, color %s, %d fps, measuring %s-%s",
		session.ID(), stream.Depth, stream.Color, stream.FPS, bone.A, bone.B)

	return &Pipeline{Sensor: sens, Session: session, Stream: stream}, nil
}
