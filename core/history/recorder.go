// Package history appends one outcome record per dispense attempt.
// History is best-effort observability: a failed write is logged and
// never fails the dispense itself.
package history

import (
	"context"

	"github.com/medbox-iot/medbox/core/logger"
	"github.com/medbox-iot/medbox/core/model"
)

// Store is the durable append-only sink for history records.
type Store interface {
	AppendHistory(ctx context.Context, rec model.HistoryRecord) error
}

// Recorder writes dispense outcomes to the durable store.
type Recorder struct {
	store Store
	log   logger.Logger
}

// NewRecorder creates a Recorder.
func NewRecorder(store Store, log logger.Logger) *Recorder {
	return &Recorder{store: store, log: log}
}

// Record appends the record. Persistence failures are contained here.
func (r *Recorder) Record(ctx context.Context, rec model.HistoryRecord) {
	if r.store == nil {
		return
	}
	if err := r.store.AppendHistory(ctx, rec); err != nil {
		r.log.Errorf("history write failed for box %s: %v", rec.BoxID, err)
	}
}
