package livestate

import (
	"context"
	"fmt"
	"time"

	"github.com/medbox-iot/medbox/core/logger"
	"github.com/medbox-iot/medbox/core/model"
)

// DefaultBridgeInterval is the inbox poll period.
const DefaultBridgeInterval = time.Second

// Dispenser runs one dispense attempt and reports its outcome.
type Dispenser interface {
	Dispense(ctx context.Context, boxID string, items []model.PlanItem, origin model.Origin) error
}

// Bridge feeds dashboard-written dispense_commands entries into the
// dispenser. Entries are consumed-then-deleted; a failed dispense is
// already recorded in history, so the entry is not retried.
type Bridge struct {
	store      Store
	disp       Dispenser
	defaultBox string
	interval   time.Duration
	log        logger.Logger
}

// NewBridge creates a Bridge. defaultBox is used for inbox entries that
// do not name a box. A non-positive interval selects one second.
func NewBridge(store Store, disp Dispenser, defaultBox string, interval time.Duration, log logger.Logger) (*Bridge, error) {
	if store == nil || disp == nil || log == nil {
		return nil, fmt.Errorf("livestate: nil parameter provided to NewBridge")
	}
	if interval <= 0 {
		interval = DefaultBridgeInterval
	}
	return &Bridge{store: store, disp: disp, defaultBox: defaultBox, interval: interval, log: log}, nil
}

// Run polls the inbox until the context is canceled.
func (b *Bridge) Run(ctx context.Context) {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			b.Drain(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// Drain consumes and dispatches all pending inbox entries.
func (b *Bridge) Drain(ctx context.Context) {
	cmds, err := b.store.ConsumeCommands()
	if err != nil {
		b.log.Errorf("inbox read failed: %v", err)
		return
	}
	for _, cmd := range cmds {
		boxID := cmd.BoxID
		if boxID == "" {
			boxID = b.defaultBox
		}
		b.log.Infof("manual dispense %s for box %s", cmd.ID, boxID)
		if err := b.disp.Dispense(ctx, boxID, cmd.Amounts, model.OriginManual); err != nil {
			// outcome already recorded by the dispenser
			b.log.Warnf("manual dispense %s failed: %v", cmd.ID, err)
		}
	}
}
