// Package config loads the service configuration from a JSON or YAML
// file with optional environment overrides.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/medbox-iot/medbox/core/dispense"
	"github.com/medbox-iot/medbox/core/livestate"
	"github.com/medbox-iot/medbox/core/planner"
	"github.com/medbox-iot/medbox/infra/mqtt"
	"github.com/medbox-iot/medbox/infra/store"
)

type Config struct {
	MQTT      mqtt.Config    `json:"mqtt"`
	Dispense  DispenseConfig `json:"dispense"`
	Scheduler planner.Config `json:"scheduler"`
	Bridge    BridgeConfig   `json:"bridge"`
	Store     store.Config   `json:"store"`
	Metrics   MetricsConfig  `json:"metrics"`
}

// DispenseConfig tunes the command coordinator.
type DispenseConfig struct {
	// DefaultBox receives commands that do not name a box.
	DefaultBox string `json:"default_box"`
	// AckTimeoutSeconds bounds the wait for a device acknowledgment.
	AckTimeoutSeconds int `json:"ack_timeout_seconds"`
}

func (c *DispenseConfig) SetDefaults() {
	if c.DefaultBox == "" {
		c.DefaultBox = "01"
	}
	if c.AckTimeoutSeconds == 0 {
		c.AckTimeoutSeconds = int(dispense.DefaultAckTimeout / time.Second)
	}
}

// AckTimeout returns the configured timeout as a duration.
func (c DispenseConfig) AckTimeout() time.Duration {
	return time.Duration(c.AckTimeoutSeconds) * time.Second
}

// BridgeConfig tunes the dispense inbox poller.
type BridgeConfig struct {
	IntervalSeconds int `json:"interval_seconds"`
}

func (c *BridgeConfig) SetDefaults() {
	if c.IntervalSeconds == 0 {
		c.IntervalSeconds = int(livestate.DefaultBridgeInterval / time.Second)
	}
}

func (c BridgeConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}

// MetricsConfig selects the observability sinks.
type MetricsConfig struct {
	PrometheusEnabled bool   `json:"prometheus_enabled"`
	PrometheusAddr    string `json:"prometheus_addr"`

	InfluxEnabled bool   `json:"influx_enabled"`
	InfluxURL     string `json:"influx_url"`
	InfluxToken   string `json:"influx_token"`
	InfluxOrg     string `json:"influx_org"`
	InfluxBucket  string `json:"influx_bucket"`
}

func (c *MetricsConfig) SetDefaults() {
	if c.PrometheusAddr == "" {
		c.PrometheusAddr = ":9090"
	}
}

// Load reads the configuration file, applies MEDBOX_ environment
// overrides and fills defaults. Nested keys use double underscores,
// e.g. MEDBOX_MQTT__BROKER.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	ext := strings.ToLower(filepath.Ext(path))
	var parser koanf.Parser
	switch ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, err
	}
	if err := k.Load(env.Provider("MEDBOX_", "__", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "medbox_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetDefaults fills every section's defaults.
func (c *Config) SetDefaults() {
	c.MQTT.SetDefaults()
	c.Dispense.SetDefaults()
	c.Scheduler.SetDefaults()
	c.Bridge.SetDefaults()
	c.Store.SetDefaults()
	c.Metrics.SetDefaults()
}

// Validate rejects configurations the service cannot run with.
func (c *Config) Validate() error {
	if c.MQTT.Broker == "" {
		return fmt.Errorf("mqtt.broker is required")
	}
	if c.Dispense.AckTimeoutSeconds < 0 {
		return fmt.Errorf("dispense.ack_timeout_seconds must not be negative")
	}
	if c.Metrics.InfluxEnabled && c.Metrics.InfluxURL == "" {
		return fmt.Errorf("metrics.influx_url is required when influx is enabled")
	}
	return nil
}
