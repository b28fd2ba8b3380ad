package repos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/clipiq/clipiq-backend/internal/logger"
	"github.com/clipiq/clipiq-backend/internal/types"
)

// VideoImpressionCount is one row of the per-video impression rollup used by
// the engagement aggregator.
type VideoImpressionCount struct {
	VideoID uuid.UUID `json:"video_id"`
	Count   int64     `json:"count"`
}

type ImpressionRepo interface {
	Create(ctx context.Context, tx *gorm.DB, impression *types.Impression) (*types.Impression, error)
	CreateBatch(ctx context.Context, tx *gorm.DB, impressions []*types.Impression) error
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Impression, error)
	SeenVideoIDs(ctx context.Context, tx *gorm.DB, userID uuid.UUID, sessionID uuid.UUID, since time.Time) ([]uuid.UUID, error)
	ListByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID, limit int, offset int) ([]*types.Impression, error)
	CountByVideoSince(ctx context.Context, tx *gorm.DB, videoID uuid.UUID, since time.Time) (int64, error)
	AggregateSince(ctx context.Context, tx *gorm.DB, since time.Time) ([]VideoImpressionCount, error)
	DeleteOlderThan(ctx context.Context, tx *gorm.DB, cutoff time.Time, batchSize int) (int64, error)
}

type impressionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewImpressionRepo(db *gorm.DB, baseLog *logger.Logger) ImpressionRepo {
	return &impressionRepo{db: db, log: baseLog.With("repo", "ImpressionRepo")}
}

func (r *impressionRepo) Create(ctx context.Context, tx *gorm.DB, impression *types.Impression) (*types.Impression, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if err := transaction.WithContext(ctx).Create(impression).Error; err != nil {
		return nil, err
	}
	return impression, nil
}

func (r *impressionRepo) CreateBatch(ctx context.Context, tx *gorm.DB, impressions []*types.Impression) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if len(impressions) == 0 {
		return nil
	}
	return transaction.WithContext(ctx).Create(&impressions).Error
}

func (r *impressionRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Impression, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var result types.Impression
	if err := transaction.WithContext(ctx).
		Where("id = ?", id).
		First(&result).Error; err != nil {
		return nil, err
	}
	return &result, nil
}

// SeenVideoIDs returns every video the user saw in the given session plus
// everything shown to them since the cutoff, deduplicated. Feed composition
// excludes these before interleaving.
func (r *impressionRepo) SeenVideoIDs(ctx context.Context, tx *gorm.DB, userID uuid.UUID, sessionID uuid.UUID, since time.Time) ([]uuid.UUID, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var results []uuid.UUID
	if err := transaction.WithContext(ctx).
		Model(&types.Impression{}).
		Distinct("video_id").
		Where("user_id = ?", userID).
		Where("session_id = ? OR shown_at >= ?", sessionID, since).
		Pluck("video_id", &results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *impressionRepo) ListByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID, limit int, offset int) ([]*types.Impression, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	var results []*types.Impression
	if err := transaction.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("shown_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *impressionRepo) CountByVideoSince(ctx context.Context, tx *gorm.DB, videoID uuid.UUID, since time.Time) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var count int64
	if err := transaction.WithContext(ctx).
		Model(&types.Impression{}).
		Where("video_id = ?", videoID).
		Where("shown_at >= ?", since).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *impressionRepo) AggregateSince(ctx context.Context, tx *gorm.DB, since time.Time) ([]VideoImpressionCount, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var results []VideoImpressionCount
	if err := transaction.WithContext(ctx).
		Model(&types.Impression{}).
		Select("video_id, COUNT(*) AS count").
		Where("shown_at >= ?", since).
		Group("video_id").
		Scan(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// DeleteOlderThan removes expired ledger rows in bounded batches so retention
// runs never hold long row locks. Returns the total rows removed.
func (r *impressionRepo) DeleteOlderThan(ctx context.Context, tx *gorm.DB, cutoff time.Time, batchSize int) (int64, error) {
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
			Model(&types.Impression{}).
			Where("shown_at < ?", cutoff).
			Limit(batchSize).
			Pluck("id", &ids).Error; err != nil {
			return total, err
		}
		if len(ids) == 0 {
			return total, nil
		}

		result := transaction.WithContext(ctx).
			Where("id IN ?", ids).
			Delete(&types.Impression{})
		if result.Error != nil {
			return total, result.Error
		}
		total += result.RowsAffected
		if len(ids) < batchSize {
			return total, nil
		}
	}
}
