package repos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/clipiq/clipiq-backend/internal/logger"
	"github.com/clipiq/clipiq-backend/internal/types"
)

// VideoWatchAggregate is one row of the per-video watch rollup for a trailing
// window. TotalDuration is in seconds, same unit as WatchEvent.
type VideoWatchAggregate struct {
	VideoID         uuid.UUID `json:"video_id"`
	WatchCount      int64     `json:"watch_count"`
	Watch10sCount   int64     `json:"watch_10s_count"`
	CompletionCount int64     `json:"completion_count"`
	TotalDuration   int64     `json:"total_duration"`
}

type WatchEventRepo interface {
	Create(ctx context.Context, tx *gorm.DB, event *types.WatchEvent) (*types.WatchEvent, error)
	GetByImpressionIDs(ctx context.Context, tx *gorm.DB, impressionIDs []uuid.UUID) ([]*types.WatchEvent, error)
	RecentPositive(ctx context.Context, tx *gorm.DB, userID uuid.UUID, minDuration int, limit int) ([]*types.WatchEvent, error)
	AggregateSince(ctx context.Context, tx *gorm.DB, since time.Time) ([]VideoWatchAggregate, error)
	StatsForVideoSince(ctx context.Context, tx *gorm.DB, videoID uuid.UUID, since time.Time) (*VideoWatchAggregate, error)
	DeleteOlderThan(ctx context.Context, tx *gorm.DB, cutoff time.Time, batchSize int) (int64, error)
}

type watchEventRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewWatchEventRepo(db *gorm.DB, baseLog *logger.Logger) WatchEventRepo {
	return &watchEventRepo{db: db, log: baseLog.With("repo", "WatchEventRepo")}
}

func (r *watchEventRepo) Create(ctx context.Context, tx *gorm.DB, event *types.WatchEvent) (*types.WatchEvent, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if err := transaction.WithContext(ctx).Create(event).Error; err != nil {
		return nil, err
	}
	return event, nil
}

func (r *watchEventRepo) GetByImpressionIDs(ctx context.Context, tx *gorm.DB, impressionIDs []uuid.UUID) ([]*types.WatchEvent, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*types.WatchEvent
	if len(impressionIDs) == 0 {
		return results, nil
	}

	if err := transaction.WithContext(ctx).
		Where("impression_id IN ?", impressionIDs).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// RecentPositive returns the user's most recent watch events at or above
// minDuration, keeping only the newest event per video. The taste profile is
// built from these.
func (r *watchEventRepo) RecentPositive(ctx context.Context, tx *gorm.DB, userID uuid.UUID, minDuration int, limit int) ([]*types.WatchEvent, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if limit <= 0 {
		return []*types.WatchEvent{}, nil
	}

	// Overfetch, then collapse to one event per video in memory. Keeps the
	// query portable across postgres and sqlite.
	var rows []*types.WatchEvent
	if err := transaction.WithContext(ctx).
		Where("user_id = ?", userID).
		Where("watch_duration >= ?", minDuration).
		Order("created_at DESC").
		Limit(limit * 4).
		Find(&rows).Error; err != nil {
		return nil, err
	}

	seen := make(map[uuid.UUID]bool, limit)
	results := make([]*types.WatchEvent, 0, limit)
	for _, row := range rows {
		if seen[row.VideoID] {
			continue
		}
		seen[row.VideoID] = true
		results = append(results, row)
		if len(results) >= limit {
			break
		}
	}
	return results, nil
}

func (r *watchEventRepo) AggregateSince(ctx context.Context, tx *gorm.DB, since time.Time) ([]VideoWatchAggregate, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var results []VideoWatchAggregate
	if err := transaction.WithContext(ctx).
		Model(&types.WatchEvent{}).
		Select(`video_id,
      COUNT(*) AS watch_count,
      SUM(CASE WHEN watch_duration >= 10 THEN 1 ELSE 0 END) AS watch_10s_count,
      SUM(CASE WHEN completed THEN 1 ELSE 0 END) AS completion_count,
      SUM(watch_duration) AS total_duration`).
		Where("created_at >= ?", since).
		Group("video_id").
		Scan(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *watchEventRepo) StatsForVideoSince(ctx context.Context, tx *gorm.DB, videoID uuid.UUID, since time.Time) (*VideoWatchAggregate, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var result VideoWatchAggregate
	if err := transaction.WithContext(ctx).
		Model(&types.WatchEvent{}).
		Select(`COUNT(*) AS watch_count,
      SUM(CASE WHEN watch_duration >= 10 THEN 1 ELSE 0 END) AS watch_10s_count,
      SUM(CASE WHEN completed THEN 1 ELSE 0 END) AS completion_count,
      COALESCE(SUM(watch_duration), 0) AS total_duration`).
		Where("video_id = ?", videoID).
		Where("created_at >= ?", since).
		Scan(&result).Error; err != nil {
		return nil, err
	}
	result.VideoID = videoID
	return &result, nil
}

func (r *watchEventRepo) DeleteOlderThan(ctx context.Context, tx *gorm.DB, cutoff time.Time, batchSize int) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if batchSize <= 0 {
		batchSize = 1000
	}

	var total int64
	for {
		var ids []uuid.UUID
		if err := transaction.WithContext(ctx).
			Model(&types.WatchEvent{}).
			Where("created_at < ?", cutoff).
			Limit(batchSize).
			Pluck("id", &ids).Error; err != nil {
			return total, err
		}
		if len(ids) == 0 {
			return total, nil
		}

		result := transaction.WithContext(ctx).
			Where("id IN ?", ids).
			Delete(&types.WatchEvent{})
		if result.Error != nil {
			return total, result.Error
		}
		total += result.RowsAffected
		if len(ids) < batchSize {
			return total, nil
		}
	}
}
