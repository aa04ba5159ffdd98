package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := `mqtt:
  broker: "tcp://localhost:1883"
  client_id: "medbox-test"
  topic_prefix: "medbox"
  use_tls: false
dispense:
  default_box: "02"
  ack_timeout_seconds: 5
scheduler:
  interval_seconds: 30
store:
  path: "/tmp/medbox-test.db"
metrics:
  prometheus_enabled: true
  prometheus_addr: ":9100"
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	checks := []struct {
		name string
		got  any
		want any
	}{
		{"broker", cfg.MQTT.Broker, "tcp://localhost:1883"},
		{"client_id", cfg.MQTT.ClientID, "medbox-test"},
		{"topic_prefix", cfg.MQTT.TopicPrefix, "medbox"},
		{"default_box", cfg.Dispense.DefaultBox, "02"},
		{"ack_timeout", cfg.Dispense.AckTimeout(), 5 * time.Second},
		{"scheduler_interval", cfg.Scheduler.Interval(), 30 * time.Second},
		{"bridge_interval_default", cfg.Bridge.Interval(), time.Second},
		{"store_path", cfg.Store.Path, "/tmp/medbox-test.db"},
		{"prom_addr", cfg.Metrics.PrometheusAddr, ":9100"},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s: got %v want %v", c.name, c.got, c.want)
		}
	}
}

func TestLoadEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	data := `{"mqtt":{"broker":"tcp://localhost:1883"}}`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("MEDBOX_MQTT__BROKER", "tcp://broker:1883")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	if cfg.MQTT.Broker != "tcp://broker:1883" {
		t.Errorf("env override ignored: %s", cfg.MQTT.Broker)
	}
}

func TestLoadRejectsUnknownExtension(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte("x = 1"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestLoadRequiresBroker(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(`{}`), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error for missing broker")
	}
}
