package config

import (
	"fmt"
	"time"
)

// HTTPConfig configures the REST surface and /metrics.
type HTTPConfig struct {
	// Addr is the listen address; "off" disables the server.
	Addr       string        `json:"addr"`
	RateLimit  int           `json:"rate_limit"`
	RateWindow time.Duration `json:"rate_window"`
}

func (c *HTTPConfig) SetDefaults() {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
	if c.RateLimit == 0 {
		c.RateLimit = 120
	}
	if c.RateWindow == 0 {
		c.RateWindow = time.Minute
	}
}

func (c HTTPConfig) Validate() error {
	if c.RateLimit < 0 {
		return fmt.Errorf("http: rate_limit must not be negative")
	}
	if c.RateWindow < 0 {
		return fmt.Errorf("http: rate_window must not be negative")
	}
	return nil
}

// Enabled reports whether the HTTP server should run.
func (c HTTPConfig) Enabled() bool { return c.Addr != "off" }
