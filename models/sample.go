package models

// Sample represents one normalized, stored face image belonging to exactly
// one Label, using GORM. It corresponds to the 'samples' table. A Sample row
// exists if and only if the file at Path exists on disk; the sample store
// creates and removes both together.
type Sample struct {
	ID        uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	LabelID   uint   `gorm:"not null;index" json:"label_id"`
	Path      string `gorm:"not null;uniqueIndex" json:"path"`
	CreatedAt int64  `gorm:"not null" json:"created_at"` // Stored as INTEGER in SQLite, Unix timestamp

	Label *Label `gorm:"foreignKey:LabelID" json:"label,omitempty"` // Belongs to Label
}

// TableName explicitly sets the table name for GORM.
func (Sample) TableName() string {
	return "samples"
}
