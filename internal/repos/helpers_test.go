package repos

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/clipiq/clipiq-backend/internal/logger"
	"github.com/clipiq/clipiq-backend/internal/types"
)

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	t.Cleanup(func() {
		log.Sync()
	})
	return log
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("gorm.Open: %v", err)
	}
	if err := db.AutoMigrate(
		&types.Video{},
		&types.Impression{},
		&types.WatchEvent{},
		&types.EngagementStat{},
	); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
	return db
}

func createVideo(t *testing.T, db *gorm.DB, video *types.Video) *types.Video {
	t.Helper()
	if video.ID == uuid.Nil {
		video.ID = uuid.New()
	}
	if video.VideoName == "" {
		video.VideoName = video.ID.String() + ".mp4"
	}
	if video.UploaderID == uuid.Nil {
		video.UploaderID = uuid.New()
	}
	if video.Status == "" {
		video.Status = types.VideoStatusActive
	}
	if video.UploadDate.IsZero() {
		video.UploadDate = time.Now().UTC()
	}
	if err := db.Create(video).Error; err != nil {
		t.Fatalf("create video: %v", err)
	}
	return video
}
