package repositories

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/bbernstein/runofshow-go/internal/database/models"
)

// ScheduleRepository handles run_of_show_data access.
type ScheduleRepository struct {
	db *gorm.DB
}

// NewScheduleRepository creates a new ScheduleRepository.
func NewScheduleRepository(db *gorm.DB) *ScheduleRepository {
	return &ScheduleRepository{db: db}
}

// FindByEventID returns the stored schedule of an event.
func (r *ScheduleRepository) FindByEventID(ctx context.Context, eventID string) (*models.RunOfShowData, error) {
	var data models.RunOfShowData
	result := r.db.WithContext(ctx).First(&data, "event_id = ?", eventID)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return &data, nil
}

// Upsert stores the schedule, replacing any previous one.
func (r *ScheduleRepository) Upsert(ctx context.Context, data *models.RunOfShowData) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "event_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"schedule_items", "day_start_times", "master_start_time", "updated_at"}),
		}).
		Create(data).Error
}

// FindAllEventIDs returns the IDs of events with a schedule.
func (r *ScheduleRepository) FindAllEventIDs(ctx context.Context) ([]string, error) {
	var ids []string
	result := r.db.WithContext(ctx).
		Model(&models.RunOfShowData{}).
		Order("event_id ASC").
		Pluck("event_id", &ids)
	return ids, result.Error
}
