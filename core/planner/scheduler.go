// Package planner detects due dispense plans on a fixed period and
// drives each through its lifecycle. Plan status transitions are
// written as conditional updates keyed on the expected prior status so
// two overlapping ticks can never double-dispense the same plan.
package planner

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/medbox-iot/medbox/core/logger"
	"github.com/medbox-iot/medbox/core/model"
)

// DefaultInterval is the scheduler tick period.
const DefaultInterval = time.Minute

// PlanStore is the durable plan collection as the scheduler sees it.
type PlanStore interface {
	// DuePlans returns plans with status PENDING and scheduledAt <= now,
	// in scheduledAt order.
	DuePlans(ctx context.Context, now time.Time) ([]model.Plan, error)
	// TransitionStatus moves the plan from one status to another and
	// reports whether the conditional update matched.
	TransitionStatus(ctx context.Context, id string, from, to model.PlanStatus) (bool, error)
	// Reschedule returns a recurring plan to PENDING with a new
	// scheduledAt and records when it last dispensed.
	Reschedule(ctx context.Context, id string, next, dispensedAt time.Time) error
	// Complete terminates a ONCE plan.
	Complete(ctx context.Context, id string, dispensedAt time.Time) error
	// MarkError parks the plan for manual review.
	MarkError(ctx context.Context, id string) error
}

// Dispenser runs one dispense attempt and reports its outcome.
type Dispenser interface {
	Dispense(ctx context.Context, boxID string, items []model.PlanItem, origin model.Origin) error
}

// Scheduler periodically queries for due plans and processes them
// sequentially. Plans are independent: one plan's failure never aborts
// the rest of the batch.
type Scheduler struct {
	store    PlanStore
	disp     Dispenser
	interval time.Duration
	log      logger.Logger
	clock    func() time.Time
	ticking  atomic.Bool
}

// Config defines scheduler parameters loaded from configuration.
type Config struct {
	IntervalSeconds int `json:"interval_seconds"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.IntervalSeconds <= 0 {
		c.IntervalSeconds = int(DefaultInterval / time.Second)
	}
}

// Interval returns the configured tick period as a duration.
func (c Config) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}

// New creates a Scheduler. A non-positive interval selects the default
// of one minute.
func New(store PlanStore, disp Dispenser, interval time.Duration, log logger.Logger) (*Scheduler, error) {
	if store == nil || disp == nil || log == nil {
		return nil, fmt.Errorf("planner: nil parameter provided to New")
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Scheduler{store: store, disp: disp, interval: interval, log: log, clock: time.Now}, nil
}

// Run ticks until the context is canceled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.Tick(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// Tick processes one batch of due plans. A tick that overruns into the
// next ticker fire is skipped rather than run concurrently.
func (s *Scheduler) Tick(ctx context.Context) {
	if !s.ticking.CompareAndSwap(false, true) {
		s.log.Warnf("previous tick still running, skipping")
		return
	}
	defer s.ticking.Store(false)

	now := s.clock()
	plans, err := s.store.DuePlans(ctx, now)
	if err != nil {
		s.log.Errorf("due plan query failed: %v", err)
		return
	}
	if len(plans) == 0 {
		return
	}
	s.log.Infof("found %d due plans", len(plans))
	for _, plan := range plans {
		s.process(ctx, plan, now)
	}
}

// process drives one plan through PENDING -> DISPENSING -> terminal or
// back to PENDING. Every failure path lands the plan in ERROR and
// returns; the caller moves on to the next plan.
func (s *Scheduler) process(ctx context.Context, plan model.Plan, now time.Time) {
	claimed, err := s.store.TransitionStatus(ctx, plan.ID, model.PlanPending, model.PlanDispensing)
	if err != nil {
		s.log.Errorf("plan %s: claim failed: %v", plan.ID, err)
		return
	}
	if !claimed {
		// another tick got there first
		s.log.Debugf("plan %s already claimed", plan.ID)
		return
	}

	if err := s.disp.Dispense(ctx, plan.BoxID, plan.Items, model.OriginScheduled); err != nil {
		s.fail(ctx, plan.ID, fmt.Errorf("dispense: %w", err))
		return
	}

	if plan.Recurring() {
		next, err := NextOccurrence(plan.TimeOfDay, plan.RecurringDays, now)
		if err != nil {
			s.log.Warnf("plan %s cannot recur: %v", plan.ID, err)
			s.fail(ctx, plan.ID, err)
			return
		}
		if err := s.store.Reschedule(ctx, plan.ID, next, now); err != nil {
			s.fail(ctx, plan.ID, fmt.Errorf("reschedule: %w", err))
			return
		}
		s.log.Infof("plan %s rescheduled to %s", plan.ID, next.Format(time.RFC3339))
		return
	}

	if err := s.store.Complete(ctx, plan.ID, now); err != nil {
		s.fail(ctx, plan.ID, fmt.Errorf("complete: %w", err))
		return
	}
	s.log.Infof("plan %s completed", plan.ID)
}

func (s *Scheduler) fail(ctx context.Context, id string, cause error) {
	s.log.Errorf("plan %s failed: %v", id, cause)
	if err := s.store.MarkError(ctx, id); err != nil {
		s.log.Errorf("plan %s: marking error failed: %v", id, err)
	}
}
