package repositories

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/bbernstein/runofshow-go/internal/database/models"
)

// TimerRepository handles event_timers access.
type TimerRepository struct {
	db *gorm.DB
}

// NewTimerRepository creates a new TimerRepository.
func NewTimerRepository(db *gorm.DB) *TimerRepository {
	return &TimerRepository{db: db}
}

// FindByEventID returns the timers of an event keyed by kind.
func (r *TimerRepository) FindByEventID(ctx context.Context, eventID string) (map[string]models.EventTimer, error) {
	var rows []models.EventTimer
	result := r.db.WithContext(ctx).
		Where("event_id = ?", eventID).
		Find(&rows)
	if result.Error != nil {
		return nil, result.Error
	}
	out := make(map[string]models.EventTimer, len(rows))
	for _, row := range rows {
		out[row.Kind] = row
	}
	return out, nil
}

// Upsert writes every column of the timer.
func (r *TimerRepository) Upsert(ctx context.Context, t *models.EventTimer) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(t).Error
}

// FindRunning returns every running timer across events.
func (r *TimerRepository) FindRunning(ctx context.Context) ([]models.EventTimer, error) {
	var rows []models.EventTimer
	result := r.db.WithContext(ctx).
		Where("timer_state = ?", "running").
		Order("event_id ASC, kind ASC").
		Find(&rows)
	return rows, result.Error
}
