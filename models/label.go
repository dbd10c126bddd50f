package models

// Label represents a registered identity using GORM.
// It corresponds to the 'labels' table. The numeric ID is the join key used
// by the classifier and is immutable once assigned.
type Label struct {
	ID        uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	Name      string `gorm:"not null;uniqueIndex" json:"name"`
	CreatedAt int64  `gorm:"not null" json:"created_at"` // Stored as INTEGER in SQLite, Unix timestamp

	Samples []Sample `gorm:"foreignKey:LabelID;constraint:OnDelete:CASCADE" json:"samples,omitempty"`
}

// TableName explicitly sets the table name for GORM.
func (Label) TableName() string {
	return "labels"
}
