package repository

import (
	"github.com/camden-git/faceserver/models"
)

// LabelRepositoryInterface defines the methods for label data operations
type LabelRepositoryInterface interface {
	GetOrCreate(name string) (*models.Label, error)
	GetByID(id uint) (*models.Label, error)
	GetByName(name string) (*models.Label, error)
	ListAll() ([]models.Label, error)
}

// SampleRepositoryInterface defines the methods for sample data operations
type SampleRepositoryInterface interface {
	Create(sample *models.Sample) error
	CountByLabel(labelID uint) (int64, error)
	ListByLabel(labelID uint) ([]models.Sample, error)
	ListAll() ([]models.Sample, error)
	GetByPath(path string) (*models.Sample, error)
	DeleteByLabel(labelID uint) (int64, error)
	DeleteByID(id uint) error
}
