package repository

import (
	"errors"
	"fmt"

	"github.com/camden-git/faceserver/models"
	"gorm.io/gorm"
)

// SampleRepository handles database operations for Sample entities. The
// samples table is the index half of the sample store; the paired image files
// are owned by services.SampleStore, which keeps both sides consistent.
type SampleRepository struct {
	DB *gorm.DB
}

// NewSampleRepository creates a new instance of SampleRepository
func NewSampleRepository(db *gorm.DB) *SampleRepository {
	return &SampleRepository{DB: db}
}

// Create inserts a new sample row
func (r *SampleRepository) Create(sample *models.Sample) error {
	err := r.DB.Create(sample).Error
	if err != nil {
		return fmt.Errorf("failed to create sample for label %d at %s: %w", sample.LabelID, sample.Path, err)
	}
	return nil
}

// CountByLabel returns the number of live samples for a label
func (r *SampleRepository) CountByLabel(labelID uint) (int64, error) {
	var count int64
	err := r.DB.Model(&models.Sample{}).Where("label_id = ?", labelID).Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count samples for label %d: %w", labelID, err)
	}
	return count, nil
}

// ListByLabel retrieves all samples for a label ordered by creation
func (r *SampleRepository) ListByLabel(labelID uint) ([]models.Sample, error) {
	var samples []models.Sample
	err := r.DB.Where("label_id = ?", labelID).Order("id ASC").Find(&samples).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list samples for label %d: %w", labelID, err)
	}
	return samples, nil
}

// ListAll retrieves the full sample corpus with labels preloaded, ordered by
// label then creation, for training
func (r *SampleRepository) ListAll() ([]models.Sample, error) {
	var samples []models.Sample
	err := r.DB.Preload("Label").Order("label_id ASC, id ASC").Find(&samples).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list samples: %w", err)
	}
	return samples, nil
}

// GetByPath retrieves a sample by its unique storage path
func (r *SampleRepository) GetByPath(path string) (*models.Sample, error) {
	var sample models.Sample
	err := r.DB.Where("path = ?", path).First(&sample).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get sample by path %s: %w", path, err)
	}
	return &sample, nil
}

// DeleteByLabel removes every sample row for a label in one transaction so a
// quota reset never leaves a partial set behind
func (r *SampleRepository) DeleteByLabel(labelID uint) (int64, error) {
	result := r.DB.Where("label_id = ?", labelID).Delete(&models.Sample{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to delete samples for label %d: %w", labelID, result.Error)
	}
	return result.RowsAffected, nil
}

// DeleteByID removes a single sample row
func (r *SampleRepository) DeleteByID(id uint) error {
	result := r.DB.Delete(&models.Sample{}, id)
	if result.Error != nil {
		return fmt.Errorf("failed to delete sample ID %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
