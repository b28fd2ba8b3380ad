package types

import (
	"time"

	"github.com/google/uuid"
)

// EngagementStat is derived, never authoritative. Each aggregation run
// replaces the whole trailing window wholesale so late-arriving watch events
// cannot leave incremental drift behind.
type EngagementStat struct {
	VideoID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"video_id"`
	WindowDays       int       `gorm:"primaryKey" json:"window_days"`
	ImpressionCount  int64     `gorm:"not null;default:0" json:"impression_count"`
	WatchCount       int64     `gorm:"not null;default:0" json:"watch_count"`
	Watch10sCount    int64     `gorm:"not null;default:0" json:"watch_10s_count"`
	CompletionCount  int64     `gorm:"not null;default:0" json:"completion_count"`
	AvgWatchDuration float64   `gorm:"not null;default:0" json:"avg_watch_duration"`
	Watch10sRate     float64   `gorm:"not null;default:0" json:"watch_10s_rate"`
	PopularityScore  float64   `gorm:"not null;default:0;index" json:"popularity_score"`
	ComputedAt       time.Time `gorm:"not null" json:"computed_at"`
}

func (EngagementStat) TableName() string { return "engagement_stat" }
