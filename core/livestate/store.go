// Package livestate defines the low-latency store read by the
// dashboard: last telemetry snapshots keyed by box, plus the transient
// dispense-command inbox the dashboard writes into.
package livestate

import "github.com/medbox-iot/medbox/core/model"

// Store is the live key-value store. The storage engine is external;
// writes are at-least-once and carry no transactions.
type Store interface {
	// SetLevels replaces the entire levels node for the box. Overwrite
	// semantics: keys absent from snap are gone afterwards.
	SetLevels(boxID string, snap model.LevelSnapshot) error
	Levels(boxID string) (model.LevelSnapshot, bool)

	SetStatus(boxID string, st model.BoxStatus) error
	Status(boxID string) (model.BoxStatus, bool)

	// PushCommand appends a transient dispense command to the inbox and
	// returns its generated id.
	PushCommand(cmd model.DispenseCommand) (string, error)
	// ConsumeCommands removes and returns all pending inbox entries,
	// oldest first.
	ConsumeCommands() ([]model.DispenseCommand, error)
}
