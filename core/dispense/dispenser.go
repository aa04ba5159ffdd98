package dispense

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/medbox-iot/medbox/core/events"
	"github.com/medbox-iot/medbox/core/history"
	"github.com/medbox-iot/medbox/core/logger"
	"github.com/medbox-iot/medbox/core/model"
	"github.com/medbox-iot/medbox/internal/eventbus"
)

// Sender issues one hardware command and resolves its outcome.
type Sender interface {
	Send(ctx context.Context, boxID string, items []model.PlanItem) (Result, error)
}

// Dispenser wraps the Coordinator with the bookkeeping every dispense
// attempt shares: one history record per attempt and one event on the
// bus. Both are best-effort and never change the protocol outcome.
type Dispenser struct {
	sender  Sender
	history *history.Recorder
	bus     eventbus.EventBus
	log     logger.Logger
	clock   func() time.Time
}

// NewDispenser creates a Dispenser. The bus may be nil.
func NewDispenser(sender Sender, rec *history.Recorder, bus eventbus.EventBus, log logger.Logger) (*Dispenser, error) {
	if sender == nil || rec == nil || log == nil {
		return nil, fmt.Errorf("dispense: nil parameter provided to NewDispenser")
	}
	return &Dispenser{sender: sender, history: rec, bus: bus, log: log, clock: time.Now}, nil
}

// Dispense runs one dispense attempt for boxID and records its outcome.
// It returns a non-nil error for every attempt that did not end in a
// successful device acknowledgment.
func (d *Dispenser) Dispense(ctx context.Context, boxID string, items []model.PlanItem, origin model.Origin) error {
	res, err := d.sender.Send(ctx, boxID, items)

	status := model.HistoryError
	switch {
	case err == nil && res.Success:
		status = model.HistoryCompleted
	case errors.Is(err, ErrBusy):
		status = model.HistoryBusy
	}
	if err == nil && !res.Success {
		err = ErrDispenseFailed
	}
	if err != nil {
		d.log.Warnf("dispense for box %s failed: %v", boxID, err)
	}

	now := d.clock()
	d.history.Record(ctx, model.HistoryRecord{
		BoxID:     boxID,
		Timestamp: now,
		Amounts:   items,
		Status:    status,
		Origin:    origin,
	})
	if d.bus != nil {
		d.bus.Publish(events.DispenseEvent{
			BoxID:   boxID,
			Origin:  origin,
			Status:  status,
			Items:   items,
			Latency: res.Latency,
			Time:    now,
		})
	}
	return err
}
