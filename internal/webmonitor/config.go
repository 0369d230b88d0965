package webmonitor

import (
	"time"

	"github.com/colourskel/skeleton-server/internal/config"
)

// Config defines the runtime configuration for the web monitor server.
type Config struct {
	Addr           string
	MJPEGInterval  time.Duration
	StatusInterval time.Duration
	JPEGQuality    int
}

// DefaultConfig returns the monitor defaults of config.Default.
func DefaultConfig() Config {
	return FromHTTPConfig(config.Default().HTTP)
}

// FromHTTPConfig picks the monitor settings out of the http section.
func FromHTTPConfig(c config.HTTPConfig) Config {
	return Config{
		Addr:           c.Addr,
		MJPEGInterval:  c.MJPEGInterval,
		StatusInterval: c.StatusInterval,
		JPEGQuality:    c.JPEGQuality,
	}
}

// withDefaults fills zero fields from DefaultConfig
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.MJPEGInterval <= 0 {
		c.MJPEGInterval = def.MJPEGInterval
	}
	if c.StatusInterval <= 0 {
		c.StatusInterval = def.StatusInterval
	}
	if c.JPEGQuality <= 0 || c.JPEGQuality > 100 {
		c.JPEGQuality = def.JPEGQuality
	}
	return c
}
