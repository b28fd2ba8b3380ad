package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// WatchEvent records how long a user watched a video after leaving it.
// WatchDuration is in seconds. ImpressionID is nullable: a watch signal
// without a matching impression is still stored (fail-open; see the ledger
// service for the data-quality check).
type WatchEvent struct {
	ID            uuid.UUID   `gorm:"type:uuid;primaryKey" json:"id"`
	UserID        uuid.UUID   `gorm:"type:uuid;not null;index" json:"user_id"`
	VideoID       uuid.UUID   `gorm:"type:uuid;not null;index" json:"video_id"`
	WatchDuration int         `gorm:"not null" json:"watch_duration"`
	Completed     bool        `gorm:"not null;default:false" json:"completed"`
	ImpressionID  *uuid.UUID  `gorm:"type:uuid;index" json:"impression_id,omitempty"`
	Impression    *Impression `gorm:"constraint:OnDelete:SET NULL;foreignKey:ImpressionID;references:ID" json:"impression,omitempty"`
	CreatedAt     time.Time   `gorm:"not null;index" json:"created_at"`
}

func (WatchEvent) TableName() string { return "watch_event" }

func (w *WatchEvent) BeforeCreate(tx *gorm.DB) error {
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	return nil
}
