package metrics

import (
	"github.com/medbox-iot/medbox/core/events"
	coremetrics "github.com/medbox-iot/medbox/core/metrics"
)

// MultiSink fans events out to multiple sinks.
type MultiSink struct {
	Sinks []coremetrics.Sink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...coremetrics.Sink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordDispense forwards the event to all sinks, returning the first
// error encountered.
func (m *MultiSink) RecordDispense(ev events.DispenseEvent) error {
	for _, s := range m.Sinks {
		if err := s.RecordDispense(ev); err != nil {
			return err
		}
	}
	return nil
}

// RecordStatus forwards connectivity events to sinks that support them.
func (m *MultiSink) RecordStatus(ev events.StatusEvent) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(coremetrics.StatusRecorder); ok {
			if err := rec.RecordStatus(ev); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordLevels forwards reservoir snapshots to sinks that support them.
func (m *MultiSink) RecordLevels(ev events.LevelEvent) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(coremetrics.LevelRecorder); ok {
			if err := rec.RecordLevels(ev); err != nil {
				return err
			}
		}
	}
	return nil
}
