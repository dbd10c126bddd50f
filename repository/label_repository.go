package repository

import (
	"errors"
	"fmt"
	"time"

	"github.com/camden-git/faceserver/models"
	"gorm.io/gorm"
)

// LabelRepository handles database operations for Label entities. Label names
// are unique and label IDs are the join key the classifier is trained on, so
// rows are never updated after creation.
type LabelRepository struct {
	DB *gorm.DB
}

// NewLabelRepository creates a new instance of LabelRepository
func NewLabelRepository(db *gorm.DB) *LabelRepository {
	return &LabelRepository{DB: db}
}

// GetOrCreate returns the label with the given name, creating it on first
// enrollment. The operation is idempotent: if a concurrent caller wins the
// insert race, the unique index rejects ours and the winner's row is returned.
func (r *LabelRepository) GetOrCreate(name string) (*models.Label, error) {
	var label models.Label
	err := r.DB.Where("name = ?", name).First(&label).Error
	if err == nil {
		return &label, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to look up label %q: %w", name, err)
	}

	label = models.Label{Name: name, CreatedAt: time.Now().Unix()}
	if createErr := r.DB.Create(&label).Error; createErr != nil {
		// lost the race: another writer inserted the same name first
		if refetchErr := r.DB.Where("name = ?", name).First(&label).Error; refetchErr == nil {
			return &label, nil
		}
		return nil, fmt.Errorf("failed to create label %q: %w", name, createErr)
	}
	return &label, nil
}

// GetByID retrieves a label by its ID. A gorm.ErrRecordNotFound from a
// prediction resolution signals a classifier/registry desynchronization and is
// passed through for the caller to report.
func (r *LabelRepository) GetByID(id uint) (*models.Label, error) {
	var label models.Label
	err := r.DB.First(&label, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get label by ID %d: %w", id, err)
	}
	return &label, nil
}

// GetByName retrieves a label by its unique name
func (r *LabelRepository) GetByName(name string) (*models.Label, error) {
	var label models.Label
	err := r.DB.Where("name = ?", name).First(&label).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get label by name %q: %w", name, err)
	}
	return &label, nil
}

// ListAll retrieves all labels ordered by name
func (r *LabelRepository) ListAll() ([]models.Label, error) {
	var labels []models.Label
	err := r.DB.Order("name ASC").Find(&labels).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list labels: %w", err)
	}
	return labels, nil
}
