package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/clipiq/clipiq-backend/internal/logger"
	"github.com/clipiq/clipiq-backend/internal/types"
)

type EngagementStatRepo interface {
	ReplaceWindow(ctx context.Context, tx *gorm.DB, windowDays int, stats []*types.EngagementStat) error
	GetByVideo(ctx context.Context, tx *gorm.DB, videoID uuid.UUID, windowDays int) (*types.EngagementStat, error)
	TopByPopularity(ctx context.Context, tx *gorm.DB, windowDays int, minImpressions int64, limit int) ([]*types.EngagementStat, error)
}

type engagementStatRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewEngagementStatRepo(db *gorm.DB, baseLog *logger.Logger) EngagementStatRepo {
	return &engagementStatRepo{db: db, log: baseLog.With("repo", "EngagementStatRepo")}
}

// ReplaceWindow swaps out the whole trailing window in one transaction so
// readers never observe a half-written aggregation run.
func (r *engagementStatRepo) ReplaceWindow(ctx context.Context, tx *gorm.DB, windowDays int, stats []*types.EngagementStat) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	return transaction.WithContext(ctx).Transaction(func(inner *gorm.DB) error {
		if err := inner.
			Where("window_days = ?", windowDays).
			Delete(&types.EngagementStat{}).Error; err != nil {
			return err
		}
		if len(stats) == 0 {
			return nil
		}
		return inner.CreateInBatches(&stats, 500).Error
	})
}

func (r *engagementStatRepo) GetByVideo(ctx context.Context, tx *gorm.DB, videoID uuid.UUID, windowDays int) (*types.EngagementStat, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var result types.EngagementStat
	if err := transaction.WithContext(ctx).
		Where("video_id = ?", videoID).
		Where("window_days = ?", windowDays).
		First(&result).Error; err != nil {
		return nil, err
	}
	return &result, nil
}

func (r *engagementStatRepo) TopByPopularity(ctx context.Context, tx *gorm.DB, windowDays int, minImpressions int64, limit int) ([]*types.EngagementStat, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*types.EngagementStat
	if limit <= 0 {
		return results, nil
	}

	if err := transaction.WithContext(ctx).
		Where("window_days = ?", windowDays).
		Where("impression_count >= ?", minImpressions).
		Order("popularity_score DESC, video_id ASC").
		Limit(limit).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
