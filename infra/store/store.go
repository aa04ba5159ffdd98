// Package store persists plans, magazines and history in a relational
// database via GORM. It is the durable source of truth; the live-state
// cache is derived and disposable.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/medbox-iot/medbox/core/logger"
	"github.com/medbox-iot/medbox/core/model"
)

// Config defines the durable store settings.
type Config struct {
	// Path is the sqlite database file.
	Path string `json:"path"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.Path == "" {
		c.Path = "medbox.db"
	}
}

// Store wraps the gorm handle with the collections the coordinator and
// scheduler rely on.
type Store struct {
	db  *gorm.DB
	log logger.Logger
}

// Open connects to the database, runs migrations and seeds default
// magazines on first run.
func Open(cfg Config, log logger.Logger) (*Store, error) {
	cfg.SetDefaults()
	db, err := gorm.Open(sqlite.Open(cfg.Path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.AutoMigrate(&model.Magazine{}, &model.Plan{}, &model.HistoryRecord{}); err != nil {
		return nil, fmt.Errorf("automigrate: %w", err)
	}
	s := &Store{db: db, log: log}
	if err := s.seedMagazines(); err != nil {
		return nil, err
	}
	return s, nil
}

// defaultMagazines are installed when the magazines table is empty so a
// fresh box is usable without an admin step.
var defaultMagazines = []model.Magazine{
	{ID: 1, Name: "Morning Mix", Type: "Multivitamin", SensorKey: "mag1_mm", Color: "bg-emerald-500", MinDist: 30, MaxDist: 150},
	{ID: 2, Name: "Pain Relief", Type: "Ibuprofen", SensorKey: "mag2_mm", Color: "bg-amber-500", MinDist: 30, MaxDist: 150},
}

func (s *Store) seedMagazines() error {
	var count int64
	if err := s.db.Model(&model.Magazine{}).Count(&count).Error; err != nil {
		return fmt.Errorf("count magazines: %w", err)
	}
	if count > 0 {
		return nil
	}
	s.log.Infof("magazines collection empty, seeding %d defaults", len(defaultMagazines))
	if err := s.db.Create(&defaultMagazines).Error; err != nil {
		return fmt.Errorf("seed magazines: %w", err)
	}
	return nil
}

// Magazines returns all reservoir definitions in id order.
func (s *Store) Magazines(ctx context.Context) ([]model.Magazine, error) {
	var mags []model.Magazine
	err := s.db.WithContext(ctx).Order("id").Find(&mags).Error
	return mags, err
}

// CreatePlan inserts a new plan. A missing id or status is filled in.
func (s *Store) CreatePlan(ctx context.Context, plan *model.Plan) error {
	if plan.ID == "" {
		plan.ID = uuid.NewString()
	}
	if plan.Status == "" {
		plan.Status = model.PlanPending
	}
	return s.db.WithContext(ctx).Create(plan).Error
}

// Plan fetches one plan by id.
func (s *Store) Plan(ctx context.Context, id string) (model.Plan, error) {
	var plan model.Plan
	err := s.db.WithContext(ctx).First(&plan, "id = ?", id).Error
	return plan, err
}

// DuePlans returns plans with status PENDING and scheduledAt <= now in
// scheduledAt order.
func (s *Store) DuePlans(ctx context.Context, now time.Time) ([]model.Plan, error) {
	var plans []model.Plan
	err := s.db.WithContext(ctx).
		Where("status = ? AND scheduled_at <= ?", model.PlanPending, now).
		Order("scheduled_at").
		Find(&plans).Error
	return plans, err
}

// TransitionStatus performs a conditional status update keyed on the
// expected prior status and reports whether it matched. Two overlapping
// scheduler ticks race on this update; only one wins.
func (s *Store) TransitionStatus(ctx context.Context, id string, from, to model.PlanStatus) (bool, error) {
	res := s.db.WithContext(ctx).Model(&model.Plan{}).
		Where("id = ? AND status = ?", id, from).
		Update("status", to)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// Reschedule returns a recurring plan to PENDING with its next
// occurrence, guarded on the plan still being in DISPENSING.
func (s *Store) Reschedule(ctx context.Context, id string, next, dispensedAt time.Time) error {
	res := s.db.WithContext(ctx).Model(&model.Plan{}).
		Where("id = ? AND status = ?", id, model.PlanDispensing).
		Updates(map[string]any{
			"status":            model.PlanPending,
			"scheduled_at":      next,
			"last_dispensed_at": dispensedAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("plan %s not in DISPENSING", id)
	}
	return nil
}

// Complete terminates a ONCE plan, guarded on DISPENSING.
func (s *Store) Complete(ctx context.Context, id string, dispensedAt time.Time) error {
	res := s.db.WithContext(ctx).Model(&model.Plan{}).
		Where("id = ? AND status = ?", id, model.PlanDispensing).
		Updates(map[string]any{
			"status":       model.PlanCompleted,
			"dispensed_at": dispensedAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("plan %s not in DISPENSING", id)
	}
	return nil
}

// MarkError parks the plan for manual review.
func (s *Store) MarkError(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Model(&model.Plan{}).
		Where("id = ?", id).
		Update("status", model.PlanError).Error
}

// AppendHistory adds one immutable outcome record.
func (s *Store) AppendHistory(ctx context.Context, rec model.HistoryRecord) error {
	return s.db.WithContext(ctx).Create(&rec).Error
}

// History returns the most recent outcome records, newest first.
func (s *Store) History(ctx context.Context, limit int) ([]model.HistoryRecord, error) {
	var recs []model.HistoryRecord
	q := s.db.WithContext(ctx).Order("timestamp DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&recs).Error
	return recs, err
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
