package model

import (
	"time"
)

// PlanType discriminates one-shot from recurring dispense plans.
type PlanType string

const (
	PlanOnce      PlanType = "ONCE"
	PlanRecurring PlanType = "RECURRING"
)

// PlanStatus is the lifecycle state of a plan. Transitions are
// PENDING -> DISPENSING -> {COMPLETED|ERROR} for ONCE plans and
// PENDING -> DISPENSING -> PENDING for RECURRING plans.
type PlanStatus string

const (
	PlanPending    PlanStatus = "PENDING"
	PlanDispensing PlanStatus = "DISPENSING"
	PlanCompleted  PlanStatus = "COMPLETED"
	PlanError      PlanStatus = "ERROR"
)

// PlanItem is one line of a dispense intent: how many units to release
// from which magazine.
type PlanItem struct {
	MagazineID   int    `json:"magazineId"`
	MagazineName string `json:"magazineName"`
	Amount       int    `json:"amount"`
}

// Plan is a scheduled or manual intent to dispense. Items keep their
// creation order; the device receives them as an ordered list.
type Plan struct {
	ID     string     `json:"id" gorm:"primaryKey"`
	BoxID  string     `json:"boxId" gorm:"index"`
	Items  []PlanItem `json:"items" gorm:"serializer:json"`
	Type   PlanType   `json:"type"`
	Status PlanStatus `json:"status" gorm:"index"`

	ScheduledAt time.Time `json:"scheduledAt" gorm:"index"`
	// TimeOfDay is "HH:MM" for recurring plans.
	TimeOfDay string `json:"timeOfDay,omitempty"`
	// RecurringDays holds allowed weekdays, 0 (Sunday) through 6.
	RecurringDays []int `json:"recurringDays,omitempty" gorm:"serializer:json"`

	LastDispensedAt *time.Time `json:"lastDispensedAt,omitempty"`
	DispensedAt     *time.Time `json:"dispensedAt,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Recurring reports whether the plan cycles back to PENDING after a
// dispense instead of terminating.
func (p Plan) Recurring() bool { return p.Type == PlanRecurring }
