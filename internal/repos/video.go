package repos

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/clipiq/clipiq-backend/internal/logger"
	"github.com/clipiq/clipiq-backend/internal/types"
)

// TitleMatch is one relational text-match hit. Score is the match rank the
// SQL expression assigns (title hits above description hits); it is only
// comparable to other TitleMatch scores, never to other backends.
type TitleMatch struct {
	ID        uuid.UUID `json:"id"`
	Title     string    `json:"title"`
	VideoName string    `json:"video_name"`
	Score     float64   `json:"score"`
}

type VideoRepo interface {
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Video, error)
	GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.Video, error)
	GetByVideoNames(ctx context.Context, tx *gorm.DB, names []string) ([]*types.Video, error)
	SearchByText(ctx context.Context, tx *gorm.DB, query string, limit int) ([]TitleMatch, error)
	RecentActive(ctx context.Context, tx *gorm.DB, since time.Time, excludeIDs []uuid.UUID, limit int) ([]*types.Video, error)
	IncrementViews(ctx context.Context, tx *gorm.DB, id uuid.UUID) error
	SetStatus(ctx context.Context, tx *gorm.DB, id uuid.UUID, status string) error
}

type videoRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewVideoRepo(db *gorm.DB, baseLog *logger.Logger) VideoRepo {
	return &videoRepo{db: db, log: baseLog.With("repo", "VideoRepo")}
}

func (r *videoRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Video, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var result types.Video
	if err := transaction.WithContext(ctx).
		Where("id = ?", id).
		First(&result).Error; err != nil {
		return nil, err
	}
	return &result, nil
}

func (r *videoRepo) GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.Video, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*types.Video
	if len(ids) == 0 {
		return results, nil
	}

	if err := transaction.WithContext(ctx).
		Where("id IN ?", ids).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *videoRepo) GetByVideoNames(ctx context.Context, tx *gorm.DB, names []string) ([]*types.Video, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*types.Video
	if len(names) == 0 {
		return results, nil
	}

	if err := transaction.WithContext(ctx).
		Where("video_name IN ?", names).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *videoRepo) SearchByText(ctx context.Context, tx *gorm.DB, query string, limit int) ([]TitleMatch, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	q := strings.TrimSpace(strings.ToLower(query))
	if q == "" || limit <= 0 {
		return []TitleMatch{}, nil
	}
	pattern := "%" + q + "%"

	var results []TitleMatch
	if err := transaction.WithContext(ctx).Raw(`
    SELECT id, title, video_name,
      (CASE WHEN lower(title) LIKE ? THEN 2.0 ELSE 0.0 END +
       CASE WHEN lower(description) LIKE ? THEN 1.0 ELSE 0.0 END) AS score
    FROM video
    WHERE status = ?
      AND (lower(title) LIKE ? OR lower(description) LIKE ?)
    ORDER BY score DESC, upload_date DESC
    LIMIT ?`,
		pattern, pattern, types.VideoStatusActive, pattern, pattern, limit,
	).Scan(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *videoRepo) RecentActive(ctx context.Context, tx *gorm.DB, since time.Time, excludeIDs []uuid.UUID, limit int) ([]*types.Video, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*types.Video
	if limit <= 0 {
		return results, nil
	}

	q := transaction.WithContext(ctx).
		Where("status = ?", types.VideoStatusActive).
		Where("upload_date >= ?", since)
	if len(excludeIDs) > 0 {
		q = q.Where("id NOT IN ?", excludeIDs)
	}
	if err := q.Order("upload_date DESC").Limit(limit).Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *videoRepo) IncrementViews(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	return transaction.WithContext(ctx).
		Model(&types.Video{}).
		Where("id = ?", id).
		UpdateColumn("views", gorm.Expr("views + 1")).Error
}

func (r *videoRepo) SetStatus(ctx context.Context, tx *gorm.DB, id uuid.UUID, status string) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	result := transaction.WithContext(ctx).
		Model(&types.Video{}).
		Where("id = ?", id).
		UpdateColumn("status", status)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
