package model

import "time"

// HistoryStatus is the recorded outcome of one dispense attempt.
type HistoryStatus string

const (
	HistoryCompleted HistoryStatus = "COMPLETED"
	HistoryError     HistoryStatus = "ERROR"
	HistoryBusy      HistoryStatus = "BUSY"
)

// Origin tags whether a dispense attempt was triggered by hand or by
// the scheduler.
type Origin string

const (
	OriginManual    Origin = "Manual"
	OriginScheduled Origin = "Scheduled"
)

// HistoryRecord is one immutable entry in the append-only outcome log.
type HistoryRecord struct {
	ID        uint          `json:"-" gorm:"primaryKey;autoIncrement"`
	BoxID     string        `json:"boxId"`
	Timestamp time.Time     `json:"timestamp" gorm:"index"`
	Amounts   []PlanItem    `json:"amounts" gorm:"serializer:json"`
	Status    HistoryStatus `json:"status"`
	Origin    Origin        `json:"type"`
}
