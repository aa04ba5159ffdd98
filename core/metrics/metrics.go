// Package metrics defines the observability sinks fed by dispense,
// status and level events.
package metrics

import (
	"github.com/medbox-iot/medbox/core/events"
)

// Sink records dispense outcomes for observability purposes.
type Sink interface {
	RecordDispense(ev events.DispenseEvent) error
}

// StatusRecorder records box connectivity changes.
type StatusRecorder interface {
	RecordStatus(ev events.StatusEvent) error
}

// LevelRecorder records reservoir sensor snapshots.
type LevelRecorder interface {
	RecordLevels(ev events.LevelEvent) error
}

// NopSink implements Sink and all optional recorders with no-op methods.
type NopSink struct{}

func (NopSink) RecordDispense(events.DispenseEvent) error { return nil }
func (NopSink) RecordStatus(events.StatusEvent) error     { return nil }
func (NopSink) RecordLevels(events.LevelEvent) error      { return nil }

var (
	_ Sink           = NopSink{}
	_ StatusRecorder = NopSink{}
	_ LevelRecorder  = NopSink{}
)
