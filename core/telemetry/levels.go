// Package telemetry turns inbound box messages into live-state writes.
// Each monitor self-filters by topic, parses its payload and drops
// malformed input with a log line; nothing here ever propagates an
// error into the dispatch loop.
package telemetry

import (
	"encoding/json"
	"time"

	"github.com/medbox-iot/medbox/core/events"
	"github.com/medbox-iot/medbox/core/livestate"
	"github.com/medbox-iot/medbox/core/logger"
	"github.com/medbox-iot/medbox/core/model"
	coremqtt "github.com/medbox-iot/medbox/core/mqtt"
	"github.com/medbox-iot/medbox/internal/eventbus"
)

// LevelMonitor ingests reservoir snapshots from {prefix}/{boxId}/levels.
type LevelMonitor struct {
	store  livestate.Store
	prefix string
	bus    eventbus.EventBus
	log    logger.Logger
	clock  func() time.Time
}

// NewLevelMonitor creates a LevelMonitor. The bus may be nil.
func NewLevelMonitor(store livestate.Store, prefix string, bus eventbus.EventBus, log logger.Logger) *LevelMonitor {
	return &LevelMonitor{store: store, prefix: prefix, bus: bus, log: log, clock: time.Now}
}

// Handle is registered on the connector's broadcast registry.
func (m *LevelMonitor) Handle(topic string, payload []byte) {
	tp, err := coremqtt.ParseTopic(topic)
	if err != nil || tp.Prefix != m.prefix || tp.Kind != coremqtt.KindLevels {
		return
	}

	// Expected payload: {"mag1_mm": 45, "mag2_mm": 120}
	var readings map[string]float64
	if err := json.Unmarshal(payload, &readings); err != nil {
		m.log.Warnf("dropping malformed level payload for box %s: %v", tp.BoxID, err)
		return
	}

	now := m.clock()
	snap := model.LevelSnapshot{Readings: readings, LastUpdated: now}
	if err := m.store.SetLevels(tp.BoxID, snap); err != nil {
		m.log.Errorf("level write for box %s failed: %v", tp.BoxID, err)
		return
	}
	m.log.Debugw("level update", map[string]any{"box_id": tp.BoxID, "sensors": len(readings)})
	if m.bus != nil {
		m.bus.Publish(events.LevelEvent{BoxID: tp.BoxID, Readings: readings, Time: now})
	}
}
