package history

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/medbox-iot/medbox/core/model"
	"github.com/medbox-iot/medbox/infra/logger"
)

type fakeStore struct {
	recs []model.HistoryRecord
	err  error
}

func (f *fakeStore) AppendHistory(_ context.Context, rec model.HistoryRecord) error {
	if f.err != nil {
		return f.err
	}
	f.recs = append(f.recs, rec)
	return nil
}

func TestRecorderAppends(t *testing.T) {
	store := &fakeStore{}
	rec := NewRecorder(store, logger.NopLogger{})
	rec.Record(context.Background(), model.HistoryRecord{BoxID: "01", Status: model.HistoryCompleted, Timestamp: time.Now()})
	if len(store.recs) != 1 {
		t.Fatalf("expected 1 record got %d", len(store.recs))
	}
	if store.recs[0].Status != model.HistoryCompleted {
		t.Fatalf("wrong status %s", store.recs[0].Status)
	}
}

func TestRecorderSwallowsWriteFailure(t *testing.T) {
	store := &fakeStore{err: errors.New("disk full")}
	rec := NewRecorder(store, logger.NopLogger{})
	// must not panic or propagate
	rec.Record(context.Background(), model.HistoryRecord{BoxID: "01", Status: model.HistoryError})
	if len(store.recs) != 0 {
		t.Fatalf("expected no records")
	}
}

func TestRecorderNilStore(t *testing.T) {
	rec := NewRecorder(nil, logger.NopLogger{})
	rec.Record(context.Background(), model.HistoryRecord{BoxID: "01"})
}
