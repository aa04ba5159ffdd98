package events

import (
	"time"

	"github.com/medbox-iot/medbox/core/model"
)

// DispenseEvent is published for each completed dispense attempt.
type DispenseEvent struct {
	BoxID   string
	Origin  model.Origin
	Status  model.HistoryStatus
	Items   []model.PlanItem
	Latency time.Duration
	Time    time.Time
}

// StatusEvent is published when a box goes online or offline.
type StatusEvent struct {
	BoxID  string
	Online bool
	Time   time.Time
}

// LevelEvent is published for each reservoir snapshot ingested.
type LevelEvent struct {
	BoxID    string
	Readings map[string]float64
	Time     time.Time
}
