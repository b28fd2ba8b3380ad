package services

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/clipiq/clipiq-backend/internal/repos"
	"github.com/clipiq/clipiq-backend/internal/types"
)

func newVideoService(t *testing.T, db *gorm.DB, store *stubVectorStore) VideoService {
	t.Helper()
	log := newTestLogger(t)
	return NewVideoService(log, repos.NewVideoRepo(db, log), store)
}

func TestRemoveVideoMarksDeletedAndPurgesVectors(t *testing.T) {
	db := newTestDB(t)
	store := &stubVectorStore{}
	s := newVideoService(t, db, store)
	video := seedVideo(t, db, "takedown clip", types.VideoStatusActive)

	if err := s.RemoveVideo(context.Background(), video.ID); err != nil {
		t.Fatalf("RemoveVideo: %v", err)
	}

	var reloaded types.Video
	if err := db.First(&reloaded, "id = ?", video.ID).Error; err != nil {
		t.Fatalf("reload video: %v", err)
	}
	if reloaded.Status != types.VideoStatusDeleted {
		t.Fatalf("status: want=%s got=%s", types.VideoStatusDeleted, reloaded.Status)
	}
	if len(store.deleted) != 1 || store.deleted[0] != video.ID {
		t.Fatalf("vector purge: want=[%s] got=%v", video.ID, store.deleted)
	}
}

func TestRemoveVideoUnknownID(t *testing.T) {
	db := newTestDB(t)
	s := newVideoService(t, db, &stubVectorStore{})

	err := s.RemoveVideo(context.Background(), uuid.New())
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("unknown video: want validation error got=%v", err)
	}
	if ve.Code != ValidationCodeNotFound {
		t.Fatalf("code: want=%q got=%q", ValidationCodeNotFound, ve.Code)
	}
}

func TestRemoveVideoIdempotent(t *testing.T) {
	db := newTestDB(t)
	store := &stubVectorStore{}
	s := newVideoService(t, db, store)
	video := seedVideo(t, db, "already removed", types.VideoStatusDeleted)

	if err := s.RemoveVideo(context.Background(), video.ID); err != nil {
		t.Fatalf("RemoveVideo: %v", err)
	}
	if len(store.deleted) != 0 {
		t.Fatalf("vector purge on already-deleted video: got=%v", store.deleted)
	}
}

func TestRemoveVideoSurvivesVectorPurgeFailure(t *testing.T) {
	db := newTestDB(t)
	store := &stubVectorStore{deleteErr: fmt.Errorf("qdrant down")}
	s := newVideoService(t, db, store)
	video := seedVideo(t, db, "flaky purge clip", types.VideoStatusActive)

	if err := s.RemoveVideo(context.Background(), video.ID); err != nil {
		t.Fatalf("RemoveVideo: %v", err)
	}

	var reloaded types.Video
	if err := db.First(&reloaded, "id = ?", video.ID).Error; err != nil {
		t.Fatalf("reload video: %v", err)
	}
	if reloaded.Status != types.VideoStatusDeleted {
		t.Fatalf("status: want=%s got=%s", types.VideoStatusDeleted, reloaded.Status)
	}
}

func TestRemoveVideoWithoutVectorStore(t *testing.T) {
	db := newTestDB(t)
	log := newTestLogger(t)
	s := NewVideoService(log, repos.NewVideoRepo(db, log), nil)
	video := seedVideo(t, db, "no index clip", types.VideoStatusActive)

	if err := s.RemoveVideo(context.Background(), video.ID); err != nil {
		t.Fatalf("RemoveVideo: %v", err)
	}
}
