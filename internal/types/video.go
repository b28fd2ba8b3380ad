package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Video struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Title        string    `gorm:"not null;index" json:"title"`
	Description  string    `json:"description"`
	VideoName    string    `gorm:"uniqueIndex;not null" json:"video_name"`
	UploaderID   uuid.UUID `gorm:"type:uuid;not null;index" json:"uploader_id"`
	Status       string    `gorm:"not null;default:'active';index" json:"status"`
	Duration     int       `json:"duration"`
	Views        int64     `gorm:"not null;default:0" json:"views"`
	VideoURL     string    `json:"video_url"`
	ThumbnailURL string    `json:"thumbnail_url"`
	// Free-form pipeline output (codec info, moderation labels, caption
	// language). Never queried relationally.
	Metadata   datatypes.JSON `json:"metadata,omitempty"`
	UploadDate time.Time      `gorm:"not null;index" json:"upload_date"`
	CreatedAt  time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt  time.Time      `gorm:"not null" json:"updated_at"`
}

func (Video) TableName() string { return "video" }

func (v *Video) BeforeCreate(tx *gorm.DB) error {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	if v.UploadDate.IsZero() {
		v.UploadDate = time.Now().UTC()
	}
	return nil
}

const (
	VideoStatusActive     = "active"
	VideoStatusProcessing = "processing"
	VideoStatusDeleted    = "deleted"
)
