package repos

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/clipiq/clipiq-backend/internal/types"
)

func createWatch(t *testing.T, repo WatchEventRepo, userID, videoID uuid.UUID, duration int, completed bool, createdAt time.Time) *types.WatchEvent {
	t.Helper()
	created, err := repo.Create(context.Background(), nil, &types.WatchEvent{
		UserID:        userID,
		VideoID:       videoID,
		WatchDuration: duration,
		Completed:     completed,
		CreatedAt:     createdAt,
	})
	if err != nil {
		t.Fatalf("create watch: %v", err)
	}
	return created
}

func TestRecentPositiveFiltersAndDeduplicates(t *testing.T) {
	db := newTestDB(t)
	repo := NewWatchEventRepo(db, newTestLogger(t))
	now := time.Now().UTC()

	userID := uuid.New()
	long := createVideo(t, db, &types.Video{Title: "long watch"})
	repeated := createVideo(t, db, &types.Video{Title: "rewatched"})
	short := createVideo(t, db, &types.Video{Title: "skipped"})

	createWatch(t, repo, userID, long.ID, 15, true, now.Add(-time.Hour))
	// Two qualifying watches of the same video collapse to the newest one.
	createWatch(t, repo, userID, repeated.ID, 11, false, now.Add(-2*time.Hour))
	newest := createWatch(t, repo, userID, repeated.ID, 20, true, now.Add(-time.Minute))
	createWatch(t, repo, userID, short.ID, 3, false, now)
	createWatch(t, repo, uuid.New(), long.ID, 15, false, now)

	events, err := repo.RecentPositive(context.Background(), nil, userID, 10, 10)
	if err != nil {
		t.Fatalf("RecentPositive: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("events length: want=2 got=%d", len(events))
	}
	if events[0].ID != newest.ID {
		t.Fatalf("first event: want newest %s got=%s", newest.ID, events[0].ID)
	}
	for _, e := range events {
		if e.VideoID == short.ID {
			t.Fatalf("short watch included: %+v", e)
		}
	}
}

func TestRecentPositiveHonorsLimit(t *testing.T) {
	db := newTestDB(t)
	repo := NewWatchEventRepo(db, newTestLogger(t))
	now := time.Now().UTC()

	userID := uuid.New()
	for i := 0; i < 4; i++ {
		video := createVideo(t, db, &types.Video{Title: "watched"})
		createWatch(t, repo, userID, video.ID, 12, false, now.Add(-time.Duration(i)*time.Minute))
	}

	events, err := repo.RecentPositive(context.Background(), nil, userID, 10, 2)
	if err != nil {
		t.Fatalf("RecentPositive: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("events length: want=2 got=%d", len(events))
	}
}

func TestWatchAggregateSince(t *testing.T) {
	db := newTestDB(t)
	repo := NewWatchEventRepo(db, newTestLogger(t))
	now := time.Now().UTC()

	video := createVideo(t, db, &types.Video{Title: "aggregated"})
	createWatch(t, repo, uuid.New(), video.ID, 12, true, now.Add(-time.Hour))
	createWatch(t, repo, uuid.New(), video.ID, 11, false, now.Add(-time.Hour))
	createWatch(t, repo, uuid.New(), video.ID, 2, false, now.Add(-time.Hour))
	// Outside the window.
	createWatch(t, repo, uuid.New(), video.ID, 30, true, now.AddDate(0, 0, -10))

	rows, err := repo.AggregateSince(context.Background(), nil, now.AddDate(0, 0, -7))
	if err != nil {
		t.Fatalf("AggregateSince: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("rows length: want=1 got=%d", len(rows))
	}
	agg := rows[0]
	if agg.VideoID != video.ID {
		t.Fatalf("video: want=%s got=%s", video.ID, agg.VideoID)
	}
	if agg.WatchCount != 3 || agg.Watch10sCount != 2 || agg.CompletionCount != 1 {
		t.Fatalf("counts: want=(3,2,1) got=(%d,%d,%d)", agg.WatchCount, agg.Watch10sCount, agg.CompletionCount)
	}
	if agg.TotalDuration != 25 {
		t.Fatalf("total duration: want=25 got=%d", agg.TotalDuration)
	}
}

func TestStatsForVideoSinceEmptyWindow(t *testing.T) {
	db := newTestDB(t)
	repo := NewWatchEventRepo(db, newTestLogger(t))

	video := createVideo(t, db, &types.Video{Title: "unwatched"})
	agg, err := repo.StatsForVideoSince(context.Background(), nil, video.ID, time.Now().UTC().AddDate(0, 0, -7))
	if err != nil {
		t.Fatalf("StatsForVideoSince: %v", err)
	}
	if agg.WatchCount != 0 || agg.TotalDuration != 0 {
		t.Fatalf("empty window: want zeros got=%+v", agg)
	}
	if agg.VideoID != video.ID {
		t.Fatalf("video: want=%s got=%s", video.ID, agg.VideoID)
	}
}
