// Package repositories provides data access for the run-of-show tables.
package repositories

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/bbernstein/runofshow-go/internal/database/models"
)

// EventRepository handles event data access.
type EventRepository struct {
	db *gorm.DB
}

// NewEventRepository creates a new EventRepository.
func NewEventRepository(db *gorm.DB) *EventRepository {
	return &EventRepository{db: db}
}

// FindByID returns an event by ID.
func (r *EventRepository) FindByID(ctx context.Context, id string) (*models.Event, error) {
	var event models.Event
	result := r.db.WithContext(ctx).First(&event, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return &event, nil
}

// Upsert creates the event or overwrites its scalars.
func (r *EventRepository) Upsert(ctx context.Context, event *models.Event) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"version", "start_cue_id", "show_start_overtime", "scheduled_time", "actual_time", "updated_at"}),
		}).
		Create(event).Error
}

// FindAllIDs returns every event ID in ascending order.
func (r *EventRepository) FindAllIDs(ctx context.Context) ([]string, error) {
	var ids []string
	result := r.db.WithContext(ctx).
		Model(&models.Event{}).
		Order("id ASC").
		Pluck("id", &ids)
	return ids, result.Error
}

// Delete deletes an event row by ID.
func (r *EventRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Delete(&models.Event{}, "id = ?", id).Error
}
