package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medbox-iot/medbox/core/model"
	infralog "github.com/medbox-iot/medbox/infra/logger"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Config{Path: filepath.Join(t.TempDir(), "test.db")}, infralog.NopLogger{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpenSeedsDefaultMagazines(t *testing.T) {
	s := openTestStore(t)

	mags, err := s.Magazines(context.Background())
	require.NoError(t, err)
	require.Len(t, mags, 2)
	assert.Equal(t, "Morning Mix", mags[0].Name)
	assert.Equal(t, "mag2_mm", mags[1].SensorKey)
}

func TestCreatePlanFillsDefaults(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	plan := &model.Plan{
		BoxID:       "01",
		Type:        model.PlanOnce,
		Items:       []model.PlanItem{{MagazineID: 1, MagazineName: "Morning Mix", Amount: 2}},
		ScheduledAt: time.Now().Add(time.Hour),
	}
	require.NoError(t, s.CreatePlan(ctx, plan))
	assert.NotEmpty(t, plan.ID)

	got, err := s.Plan(ctx, plan.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PlanPending, got.Status)
	assert.Equal(t, plan.Items, got.Items)
}

func TestDuePlansFiltersAndOrders(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now()

	later := &model.Plan{ID: "later", BoxID: "01", Type: model.PlanOnce, ScheduledAt: now.Add(-time.Minute)}
	earlier := &model.Plan{ID: "earlier", BoxID: "01", Type: model.PlanOnce, ScheduledAt: now.Add(-time.Hour)}
	future := &model.Plan{ID: "future", BoxID: "01", Type: model.PlanOnce, ScheduledAt: now.Add(time.Hour)}
	claimed := &model.Plan{ID: "claimed", BoxID: "01", Type: model.PlanOnce, Status: model.PlanDispensing, ScheduledAt: now.Add(-time.Hour)}
	for _, p := range []*model.Plan{later, earlier, future, claimed} {
		require.NoError(t, s.CreatePlan(ctx, p))
	}

	due, err := s.DuePlans(ctx, now)
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, "earlier", due[0].ID)
	assert.Equal(t, "later", due[1].ID)
}

func TestTransitionStatusIsConditional(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	plan := &model.Plan{ID: "p1", BoxID: "01", Type: model.PlanOnce, ScheduledAt: time.Now()}
	require.NoError(t, s.CreatePlan(ctx, plan))

	ok, err := s.TransitionStatus(ctx, "p1", model.PlanPending, model.PlanDispensing)
	require.NoError(t, err)
	assert.True(t, ok)

	// second claim loses the race
	ok, err = s.TransitionStatus(ctx, "p1", model.PlanPending, model.PlanDispensing)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCompleteRecordsDispensedAt(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	plan := &model.Plan{ID: "p1", BoxID: "01", Type: model.PlanOnce, Status: model.PlanDispensing, ScheduledAt: time.Now()}
	require.NoError(t, s.CreatePlan(ctx, plan))

	at := time.Now().Truncate(time.Second)
	require.NoError(t, s.Complete(ctx, "p1", at))

	got, err := s.Plan(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, model.PlanCompleted, got.Status)
	require.NotNil(t, got.DispensedAt)
	assert.WithinDuration(t, at, *got.DispensedAt, time.Second)

	// completing a plan that is not DISPENSING fails
	assert.Error(t, s.Complete(ctx, "p1", at))
}

func TestRescheduleReturnsPlanToPending(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	plan := &model.Plan{ID: "p1", BoxID: "01", Type: model.PlanRecurring, Status: model.PlanDispensing, ScheduledAt: time.Now()}
	require.NoError(t, s.CreatePlan(ctx, plan))

	next := time.Now().Add(24 * time.Hour)
	at := time.Now()
	require.NoError(t, s.Reschedule(ctx, "p1", next, at))

	got, err := s.Plan(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, model.PlanPending, got.Status)
	assert.WithinDuration(t, next, got.ScheduledAt, time.Second)
	require.NotNil(t, got.LastDispensedAt)
}

func TestMarkError(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	plan := &model.Plan{ID: "p1", BoxID: "01", Type: model.PlanOnce, Status: model.PlanDispensing, ScheduledAt: time.Now()}
	require.NoError(t, s.CreatePlan(ctx, plan))
	require.NoError(t, s.MarkError(ctx, "p1"))

	got, err := s.Plan(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, model.PlanError, got.Status)
}

func TestHistoryNewestFirstWithLimit(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)

	for i := 0; i < 3; i++ {
		rec := model.HistoryRecord{
			BoxID:     "01",
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Amounts:   []model.PlanItem{{MagazineID: 1, Amount: i + 1}},
			Status:    model.HistoryCompleted,
			Origin:    model.OriginManual,
		}
		require.NoError(t, s.AppendHistory(ctx, rec))
	}

	recs, err := s.History(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, 3, recs[0].Amounts[0].Amount)
	assert.Equal(t, 2, recs[1].Amounts[0].Amount)
}
