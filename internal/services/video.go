package services

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/clipiq/clipiq-backend/internal/logger"
	"github.com/clipiq/clipiq-backend/internal/platform/qdrant"
	"github.com/clipiq/clipiq-backend/internal/repos"
	"github.com/clipiq/clipiq-backend/internal/types"
)

// VideoService handles catalog lifecycle changes that ripple into the
// search backends.
type VideoService interface {
	RemoveVideo(ctx context.Context, videoID uuid.UUID) error
}

type videoService struct {
	log         *logger.Logger
	videoRepo   repos.VideoRepo
	vectorStore qdrant.VectorStore
}

func NewVideoService(log *logger.Logger, videoRepo repos.VideoRepo, vectorStore qdrant.VectorStore) VideoService {
	return &videoService{
		log:         log.With("service", "VideoService"),
		videoRepo:   videoRepo,
		vectorStore: vectorStore,
	}
}

// RemoveVideo takes a video out of circulation: the row is marked deleted
// so feeds and search stop surfacing it, and its frame embeddings are
// purged from the vector index. Embedding cleanup is best effort; a
// missing vector store or a failed purge leaves orphaned points that the
// excludeIDs filter already keeps out of results.
func (s *videoService) RemoveVideo(ctx context.Context, videoID uuid.UUID) error {
	if videoID == uuid.Nil {
		return &ValidationError{Field: "video_id", Message: "required"}
	}

	video, err := s.videoRepo.GetByID(ctx, nil, videoID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &ValidationError{Field: "video_id", Message: "video not found", Code: ValidationCodeNotFound}
		}
		return err
	}
	if video.Status == types.VideoStatusDeleted {
		return nil
	}

	if err := s.videoRepo.SetStatus(ctx, nil, videoID, types.VideoStatusDeleted); err != nil {
		return err
	}

	if s.vectorStore != nil {
		if err := s.vectorStore.DeleteVideoVectors(ctx, videoID); err != nil {
			s.log.Warn("failed to purge video embeddings",
				"video_id", videoID.String(),
				"error", err,
			)
		}
	}

	s.log.Info("video removed", "video_id", videoID.String())
	return nil
}
