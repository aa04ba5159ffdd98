package model

import "time"

// BoxStatus is the live online state of a dispensing device.
type BoxStatus struct {
	Online      bool      `json:"online"`
	LastChanged time.Time `json:"lastChanged"`
}

// LevelSnapshot is the last full reservoir report of a box. A device
// report is a complete snapshot: each write replaces the previous one,
// keys that disappear from the payload disappear from the snapshot.
type LevelSnapshot struct {
	// Readings maps sensor key (e.g. "mag1_mm") to the raw distance
	// measurement in millimeters.
	Readings    map[string]float64 `json:"readings"`
	LastUpdated time.Time          `json:"lastUpdated"`
}

// DispenseCommand is a transient inbox entry written by the dashboard
// and consumed by the command bridge.
type DispenseCommand struct {
	ID        string     `json:"id"`
	BoxID     string     `json:"boxId"`
	Amounts   []PlanItem `json:"amounts"`
	Timestamp time.Time  `json:"timestamp"`
}
