// Command snapshot steps the simulated pipeline a fixed number of ticks, prints
// the measurement of every tick and writes the last overlay and foreground as PNG.
package main

import (
	"flag"
	"fmt"
	"image"
	"image/png"
	"log"
	"os"
	"path/filepath"

	"github.com/colourskel/skeleton-server/internal/app"
	"github.com/colourskel/skeleton-server/internal/config"
	"github.com/colourskel/skeleton-server/internal/logger"
)

func main() {
	var (
		configPath string
		scenario   string
		measure    string
		outDir     string
		ticks      int
		logLevel   string
	)

	flag.StringVar(&configPath, "config", "", "YAML config file (defaults when empty)")
	flag.StringVar(&scenario, "scenario", "", "Simulated sensor scenario file (built-in when empty)")
	flag.StringVar(&measure, "measure", "", "Measured joint pair, e.g. ShoulderLeft,ElbowLeft")
	flag.StringVar(&outDir, "out", ".", "Output directory for overlay.png and foreground.png")
	flag.IntVar(&ticks, "ticks", 30, "Number of ticks to run")
	flag.StringVar(&logLevel, "log-level", "warn", "Log level (debug, info, warn, error, silent)")
	flag.Parse()

	cfg := config.Default()
	if configPath != "" {
		var err error
		if cfg, err = config.Load(configPath); err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
	}
	cfg.Sensor.FPS = 0 // Ticks are stepped by hand
	cfg.Log.Level = logLevel
	if scenario != "" {
		cfg.Sensor.Scenario = scenario
	}
	if measure != "" {
		a, b, err := config.ParseJointPair(measure)
		if err != nil {
			log.Fatalf("Invalid -measure: %v", err)
		}
		cfg.Measurement.JointA, cfg.Measurement.JointB = a, b
	}
	if ticks <= 0 {
		log.Fatalf("-ticks must be > 0, got %d", ticks)
	}

	if _, err := app.InitLogging(cfg.Log, os.Stderr); err != nil {
		log.Fatalf("Invalid log level: %v", err)
	}

	if err := run(cfg, ticks, outDir); err != nil {
		log.Fatalf("Snapshot failed: %v", err)
	}
}

func run(cfg *config.Config, ticks int, outDir string) error {
	p, err := app.Build(cfg, nil)
	if err != nil {
		return err
	}
	if err := p.Session.Start(); err != nil {
		return err
	}
	defer p.Session.Stop()

	surface := p.Session.Surface()
	for range ticks {
		if err := p.Sensor.Step(); err != nil {
			return fmt.Errorf("step failed: %w", err)
		}
		st := surface.Status()
		label := "no measurement"
		if st.Measurement != nil {
			label = st.Measurement.Label
		}
		fmt.Printf("tick %4d  subjects %d  selected %-5v %s\n", st.Tick, len(st.Subjects), selected(st.Selected, st.SelectedID), label)
	}

	if err := os.MkdirAll(outDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := writePNG(filepath.Join(outDir, "overlay.png"), surface.Overlay()); err != nil {
		return err
	}
	if err := writePNG(filepath.Join(outDir, "foreground.png"), surface.Foreground()); err != nil {
		return err
	}
	logger.Info("Snapshot", "Wrote images to %s", outDir)
	return nil
}

func selected(ok bool, id int) string {
	if !ok {
		return "none"
	}
	return fmt.Sprint(id)
}

func writePNG(path string, img *image.RGBA) error {
	if img == nil {
		logger.Warn("Snapshot", "No image for %s", path)
		return nil
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	return f.Close()
}
