package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

const (
	EnvEventsBrokers      = "TALLY_EVENTS_BROKERS"
	EnvEventsTopic        = "TALLY_EVENTS_TOPIC"
	EnvEventsWriteTimeout = "TALLY_EVENTS_WRITE_TIMEOUT"
	EnvMetricsNamespace   = "TALLY_METRICS_NAMESPACE"
	EnvMetricsPath        = "TALLY_METRICS_PATH"
)

// EventsConfig configures the audit event stream. With no brokers,
// events are only logged.
type EventsConfig struct {
	Brokers      []string `toml:"brokers"`
	Topic        string   `toml:"topic"`
	WriteTimeout string   `toml:"write_timeout"`
}

// WriteTimeoutDuration returns WriteTimeout as a time.Duration.
func (c *EventsConfig) WriteTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.WriteTimeout)
	return d
}

// Finalize applies defaults, environment variable overrides, and validation.
func (c *EventsConfig) Finalize() error {
	if c.Topic == "" {
		c.Topic = "tally.audit"
	}
	if c.WriteTimeout == "" {
		c.WriteTimeout = "5s"
	}

	if v := os.Getenv(EnvEventsBrokers); v != "" {
		c.Brokers = nil
		for _, b := range strings.Split(v, ",") {
			if trimmed := strings.TrimSpace(b); trimmed != "" {
				c.Brokers = append(c.Brokers, trimmed)
			}
		}
	}
	if v := os.Getenv(EnvEventsTopic); v != "" {
		c.Topic = v
	}
	if v := os.Getenv(EnvEventsWriteTimeout); v != "" {
		c.WriteTimeout = v
	}

	if _, err := time.ParseDuration(c.WriteTimeout); err != nil {
		return fmt.Errorf("invalid write_timeout: %w", err)
	}
	return nil
}

// Merge overwrites non-zero fields from overlay.
func (c *EventsConfig) Merge(overlay *EventsConfig) {
	if overlay.Brokers != nil {
		c.Brokers = overlay.Brokers
	}
	if overlay.Topic != "" {
		c.Topic = overlay.Topic
	}
	if overlay.WriteTimeout != "" {
		c.WriteTimeout = overlay.WriteTimeout
	}
}

// MetricsConfig configures the Prometheus exposition endpoint.
type MetricsConfig struct {
	Namespace string `toml:"namespace"`
	Path      string `toml:"path"`
}

// Finalize applies defaults, environment variable overrides, and validation.
func (c *MetricsConfig) Finalize() error {
	if c.Namespace == "" {
		c.Namespace = "tally"
	}
	if c.Path == "" {
		c.Path = "/metrics"
	}
	if v := os.Getenv(EnvMetricsNamespace); v != "" {
		c.Namespace = v
	}
	if v := os.Getenv(EnvMetricsPath); v != "" {
		c.Path = v
	}
	if !strings.HasPrefix(c.Path, "/") {
		return fmt.Errorf("path must start with /: %s", c.Path)
	}
	return nil
}

// Merge overwrites non-zero fields from overlay.
func (c *MetricsConfig) Merge(overlay *MetricsConfig) {
	if overlay.Namespace != "" {
		c.Namespace = overlay.Namespace
	}
	if overlay.Path != "" {
		c.Path = overlay.Path
	}
}
