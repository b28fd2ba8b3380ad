package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Impression is one row of the append-only exposure ledger: a video shown to
// a user for at least the dwell threshold. Rows are never updated.
type Impression struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID       uuid.UUID `gorm:"type:uuid;not null;index:idx_impression_user_shown" json:"user_id"`
	VideoID      uuid.UUID `gorm:"type:uuid;not null;index" json:"video_id"`
	Video        *Video    `gorm:"constraint:OnDelete:CASCADE;foreignKey:VideoID;references:ID" json:"video,omitempty"`
	SessionID    uuid.UUID `gorm:"type:uuid;not null;index" json:"session_id"`
	Position     int       `gorm:"not null" json:"position"`
	Source       string    `gorm:"not null" json:"source"`
	ModelVersion string    `json:"model_version"`
	ShownAt      time.Time `gorm:"not null;index:idx_impression_user_shown" json:"shown_at"`
}

func (Impression) TableName() string { return "impression" }

func (i *Impression) BeforeCreate(tx *gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	if i.ShownAt.IsZero() {
		i.ShownAt = time.Now().UTC()
	}
	return nil
}

const (
	ImpressionSourcePersonal = "personal"
	ImpressionSourceTrending = "trending"
	ImpressionSourceRandom   = "random"
	ImpressionSourceFresh    = "fresh"
)

func ValidImpressionSource(source string) bool {
	switch source {
	case ImpressionSourcePersonal, ImpressionSourceTrending, ImpressionSourceRandom, ImpressionSourceFresh:
		return true
	default:
		return false
	}
}
