package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"github.com/colourskel/skeleton-server/internal/logger"
	"github.com/colourskel/skeleton-server/pkg/types"
)

// Config is the complete server configuration
type Config struct {
	Sensor      SensorConfig      `yaml:"sensor"`
	Pipeline    PipelineConfig    `yaml:"pipeline"`
	Measurement MeasurementConfig `yaml:"measurement"`
	HTTP        HTTPConfig        `yaml:"http"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	MQTT        MQTTConfig        `yaml:"mqtt"`
	Recorder    RecorderConfig    `yaml:"recorder"`
	Log         LogConfig         `yaml:"log"`
}

// SensorConfig selects stream formats and the simulated scenario
type SensorConfig struct {
	Depth    string `yaml:"depth"`    // 80x60, 320x240, 640x480
	Color    string `yaml:"color"`    // 640x480, 1280x960
	FPS      int    `yaml:"fps"`      // 0 = manual stepping
	Scenario string `yaml:"scenario"` // Scenario file, empty = built-in
}

// PipelineConfig controls the overlay output
type PipelineConfig struct {
	Width    int     `yaml:"width"`
	Height   int     `yaml:"height"`
	FontSize float64 `yaml:"font_size"` // Label size in points
}

// MeasurementConfig picks the measured bone and its label format
type MeasurementConfig struct {
	JointA    types.JointType `yaml:"joint_a"`
	JointB    types.JointType `yaml:"joint_b"`
	Precision int             `yaml:"precision"` // Decimals in the label
	Language  string          `yaml:"language"`  // BCP 47 tag for number formatting
}

// HTTPConfig configures the display surfaces
type HTTPConfig struct {
	Addr           string        `yaml:"addr"`
	MJPEGInterval  time.Duration `yaml:"mjpeg_interval"`
	StatusInterval time.Duration `yaml:"status_interval"`
	JPEGQuality    int           `yaml:"jpeg_quality"`
	MaxClients     int           `yaml:"max_clients"` // WebRTC peers
	STUNServers    []string      `yaml:"stun_servers"`
}

// MetricsConfig configures the Prometheus and pprof listeners
type MetricsConfig struct {
	Addr      string `yaml:"addr"`
	PprofAddr string `yaml:"pprof_addr"` // Empty disables pprof
}

// MQTTConfig contains MQTT broker settings
type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`    // Empty = generated
	TopicPrefix string `yaml:"topic_prefix"` // Measurements go to <prefix>/measurements
	Encoding    string `yaml:"encoding"`     // json or msgpack
	QoS         byte   `yaml:"qos"`
}

// RecorderConfig configures the JSON-lines measurement recorder
type RecorderConfig struct {
	Path      string `yaml:"path"`
	AutoStart bool   `yaml:"auto_start"`
}

// LogConfig configures the logger
type LogConfig struct {
	Level string `yaml:"level"`
	Color bool   `yaml:"color"`
}

// Default returns the configuration used when no file is given
func Default() *Config {
	return &Config{
		Sensor: SensorConfig{
			Depth: "320x240",
			Color: "640x480",
			FPS:   30,
		},
		Pipeline: PipelineConfig{
			Width:    640,
			Height:   480,
			FontSize: 16,
		},
		Measurement: MeasurementConfig{
			JointA:    types.ShoulderLeft,
			JointB:    types.ElbowLeft,
			Precision: 4,
			Language:  "en",
		},
		HTTP: HTTPConfig{
			Addr:           ":8080",
			MJPEGInterval:  33 * time.Millisecond,
			StatusInterval: 200 * time.Millisecond,
			JPEGQuality:    80,
			MaxClients:     10,
			STUNServers:    []string{"stun:stun.l.google.com:19302"},
		},
		Metrics: MetricsConfig{
			Addr:      ":9090",
			PprofAddr: ":6060",
		},
		MQTT: MQTTConfig{
			Broker:      "tcp://localhost:1883",
			TopicPrefix: "skeleton",
			Encoding:    "json",
		},
		Recorder: RecorderConfig{
			Path: "./recordings",
		},
		Log: LogConfig{
			Level: "info",
			Color: true,
		},
	}
}

// Load reads a YAML file over the defaults
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks the configuration for consistency
func Validate(cfg *Config) error {
	if _, err := cfg.StreamConfig(); err != nil {
		return err
	}
	if cfg.Sensor.FPS < 0 || cfg.Sensor.FPS > 120 {
		return fmt.Errorf("sensor.fps must be between 0 and 120, got %d", cfg.Sensor.FPS)
	}

	if cfg.Pipeline.Width <= 0 || cfg.Pipeline.Height <= 0 {
		return fmt.Errorf("pipeline render size must be positive, got %dx%d", cfg.Pipeline.Width, cfg.Pipeline.Height)
	}
	if cfg.Pipeline.FontSize <= 0 {
		return fmt.Errorf("pipeline.font_size must be positive")
	}

	m := cfg.Measurement
	if !m.JointA.Valid() || !m.JointB.Valid() {
		return fmt.Errorf("measurement joints must be valid joint types")
	}
	if m.JointA == m.JointB {
		return fmt.Errorf("measurement joints must differ, both are %s", m.JointA)
	}
	if m.Precision < 0 || m.Precision > 9 {
		return fmt.Errorf("measurement.precision must be between 0 and 9, got %d", m.Precision)
	}
	if _, err := language.Parse(m.Language); err != nil {
		return fmt.Errorf("measurement.language: %w", err)
	}

	if cfg.HTTP.JPEGQuality < 1 || cfg.HTTP.JPEGQuality > 100 {
		return fmt.Errorf("http.jpeg_quality must be between 1 and 100, got %d", cfg.HTTP.JPEGQuality)
	}
	if cfg.HTTP.MJPEGInterval <= 0 || cfg.HTTP.StatusInterval <= 0 {
		return fmt.Errorf("http intervals must be positive")
	}

	if cfg.MQTT.Enabled {
		if cfg.MQTT.Broker == "" {
			return fmt.Errorf("mqtt.broker is required when mqtt is enabled")
		}
		switch cfg.MQTT.Encoding {
		case "json", "msgpack":
		default:
			return fmt.Errorf("mqtt.encoding must be json or msgpack, got %q", cfg.MQTT.Encoding)
		}
		if cfg.MQTT.QoS > 2 {
			return fmt.Errorf("mqtt.qos must be 0, 1 or 2, got %d", cfg.MQTT.QoS)
		}
	}

	if _, err := logger.ParseLevel(cfg.Log.Level); err != nil {
		return err
	}

	return nil
}

// StreamConfig converts the sensor section to stream formats
func (cfg *Config) StreamConfig() (types.StreamConfig, error) {
	depth, err := types.ParseResolution(cfg.Sensor.Depth)
	if err != nil {
		return types.StreamConfig{}, fmt.Errorf("sensor.depth: %w", err)
	}
	color, err := types.ParseResolution(cfg.Sensor.Color)
	if err != nil {
		return types.StreamConfig{}, fmt.Errorf("sensor.color: %w", err)
	}
	return types.StreamConfig{Depth: depth, Color: color, FPS: cfg.Sensor.FPS}, nil
}

// Tag returns the parsed label language, English if unset
func (m MeasurementConfig) Tag() language.Tag {
	tag, err := language.Parse(m.Language)
	if err != nil {
		return language.English
	}
	return tag
}

// ParseJointPair parses "ShoulderLeft,ElbowLeft" or "ShoulderLeft-ElbowLeft"
func ParseJointPair(s string) (types.JointType, types.JointType, error) {
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == '-' || r == ':' })
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid joint pair %q: want A,B", s)
	}
	a, err := types.ParseJointType(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, 0, err
	}
	b, err := types.ParseJointType(strings.TrimSpace(parts[1]))
	if err != nil {
		return 0, 0, err
	}
	return a, b, nil
}
