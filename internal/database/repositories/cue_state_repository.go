package repositories

import (
	"context"

	"github.com/lucsky/cuid"
	"gorm.io/gorm"

	"github.com/bbernstein/runofshow-go/internal/database/models"
)

// OvertimeRepository handles overtime_minutes access.
type OvertimeRepository struct {
	db *gorm.DB
}

// NewOvertimeRepository creates a new OvertimeRepository.
func NewOvertimeRepository(db *gorm.DB) *OvertimeRepository {
	return &OvertimeRepository{db: db}
}

// FindByEventID returns the ledger entries of an event ordered by item.
func (r *OvertimeRepository) FindByEventID(ctx context.Context, eventID string) ([]models.OvertimeMinute, error) {
	var rows []models.OvertimeMinute
	result := r.db.WithContext(ctx).
		Where("event_id = ?", eventID).
		Order("item_id ASC").
		Find(&rows)
	return rows, result.Error
}

// ReplaceForEvent swaps the whole ledger of an event. Run it inside a transaction.
func (r *OvertimeRepository) ReplaceForEvent(ctx context.Context, eventID string, rows []models.OvertimeMinute) error {
	db := r.db.WithContext(ctx)
	if err := db.Where("event_id = ?", eventID).Delete(&models.OvertimeMinute{}).Error; err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}
	for i := range rows {
		rows[i].EventID = eventID
		if rows[i].ID == "" {
			rows[i].ID = cuid.New()
		}
	}
	return db.Create(&rows).Error
}

// IndentedCueRepository handles indented_cues access.
type IndentedCueRepository struct {
	db *gorm.DB
}

// NewIndentedCueRepository creates a new IndentedCueRepository.
func NewIndentedCueRepository(db *gorm.DB) *IndentedCueRepository {
	return &IndentedCueRepository{db: db}
}

// FindByEventID returns the indentation relation of an event.
func (r *IndentedCueRepository) FindByEventID(ctx context.Context, eventID string) ([]models.IndentedCue, error) {
	var rows []models.IndentedCue
	result := r.db.WithContext(ctx).
		Where("event_id = ?", eventID).
		Order("item_id ASC").
		Find(&rows)
	return rows, result.Error
}

// ReplaceForEvent swaps the whole relation of an event. Run it inside a transaction.
func (r *IndentedCueRepository) ReplaceForEvent(ctx context.Context, eventID string, rows []models.IndentedCue) error {
	db := r.db.WithContext(ctx)
	if err := db.Where("event_id = ?", eventID).Delete(&models.IndentedCue{}).Error; err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}
	for i := range rows {
		rows[i].EventID = eventID
		if rows[i].ID == "" {
			rows[i].ID = cuid.New()
		}
	}
	return db.Create(&rows).Error
}

// CompletedCueRepository handles completed_cues access.
type CompletedCueRepository struct {
	db *gorm.DB
}

// NewCompletedCueRepository creates a new CompletedCueRepository.
func NewCompletedCueRepository(db *gorm.DB) *CompletedCueRepository {
	return &CompletedCueRepository{db: db}
}

// FindByEventID returns the completed cues of an event.
func (r *CompletedCueRepository) FindByEventID(ctx context.Context, eventID string) ([]models.CompletedCue, error) {
	var rows []models.CompletedCue
	result := r.db.WithContext(ctx).
		Where("event_id = ?", eventID).
		Order("item_id ASC").
		Find(&rows)
	return rows, result.Error
}

// ReplaceForEvent swaps the completed set of an event. Run it inside a transaction.
func (r *CompletedCueRepository) ReplaceForEvent(ctx context.Context, eventID string, rows []models.CompletedCue) error {
	db := r.db.WithContext(ctx)
	if err := db.Where("event_id = ?", eventID).Delete(&models.CompletedCue{}).Error; err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}
	for i := range rows {
		rows[i].EventID = eventID
		if rows[i].ID == "" {
			rows[i].ID = cuid.New()
		}
	}
	return db.Create(&rows).Error
}
