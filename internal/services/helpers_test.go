package services

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

// newTestDB opens an in-memory sqlite database unique to the test. The
// shared-cache DSN keeps every pooled connection on the same database.
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

func seedVideo(t *testing.T, db *gorm.DB, title string, status string) *types.Video {
	t.Helper()
	video := &types.Video{
		ID:         uuid.New(),
		Title:      title,
		VideoName:  fmt.Sprintf("%s.mp4", uuid.New().String()),
		UploaderID: uuid.New(),
		Status:     status,
		Duration:   30,
		UploadDate: time.Now().UTC(),
	}
	if err := db.Create(video).Error; err != nil {
		t.Fatalf("seed video: %v", err)
	}
	return video
}
