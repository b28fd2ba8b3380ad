package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/clipiq/clipiq-backend/internal/clients/redis"
	"github.com/clipiq/clipiq-backend/internal/config"
	"github.com/clipiq/clipiq-backend/internal/logger"
	"github.com/clipiq/clipiq-backend/internal/repos"
	"github.com/clipiq/clipiq-backend/internal/types"
)

const trendingCacheTTL = 60 * time.Second

// TrendingVideo is one entry of the popularity ranking with its hydrated
// video row.
type TrendingVideo struct {
	Video           *types.Video `json:"video"`
	PopularityScore float64      `json:"popularity_score"`
}

type EngagementService interface {
	RebuildStats(ctx context.Context) error
	GetVideoStats(ctx context.Context, videoID uuid.UUID, windowDays int) (*types.EngagementStat, error)
	TrendingVideos(ctx context.Context, limit int) ([]TrendingVideo, error)
}

type engagementService struct {
	log            *logger.Logger
	impressionRepo repos.ImpressionRepo
	watchRepo      repos.WatchEventRepo
	statRepo       repos.EngagementStatRepo
	videoRepo      repos.VideoRepo
	cache          redis.RankingCache
	cfg            config.LedgerConfig
}

func NewEngagementService(
	log *logger.Logger,
	impressionRepo repos.ImpressionRepo,
	watchRepo repos.WatchEventRepo,
	statRepo repos.EngagementStatRepo,
	videoRepo repos.VideoRepo,
	cache redis.RankingCache,
	cfg config.LedgerConfig,
) EngagementService {
	return &engagementService{
		log:            log.With("service", "EngagementService"),
		impressionRepo: impressionRepo,
		watchRepo:      watchRepo,
		statRepo:       statRepo,
		videoRepo:      videoRepo,
		cache:          cache,
		cfg:            cfg,
	}
}

// RebuildStats recomputes the whole trailing window from the raw ledger and
// swaps it in atomically. Always a full rebuild; late watch events are
// picked up on the next run without any incremental bookkeeping.
func (s *engagementService) RebuildStats(ctx context.Context) error {
	windowDays := s.cfg.StatsWindowDays
	since := time.Now().UTC().AddDate(0, 0, -windowDays)

	impressionCounts, err := s.impressionRepo.AggregateSince(ctx, nil, since)
	if err != nil {
		return fmt.Errorf("aggregate impressions: %w", err)
	}
	watchAggregates, err := s.watchRepo.AggregateSince(ctx, nil, since)
	if err != nil {
		return fmt.Errorf("aggregate watch events: %w", err)
	}

	impressionsByVideo := make(map[uuid.UUID]int64, len(impressionCounts))
	for _, row := range impressionCounts {
		impressionsByVideo[row.VideoID] = row.Count
	}

	computedAt := time.Now().UTC()
	stats := make([]*types.EngagementStat, 0, len(impressionCounts))
	seen := make(map[uuid.UUID]bool, len(watchAggregates))

	for _, agg := range watchAggregates {
		seen[agg.VideoID] = true
		stats = append(stats, buildStat(agg.VideoID, windowDays, impressionsByVideo[agg.VideoID], &agg, computedAt))
	}
	for _, row := range impressionCounts {
		if seen[row.VideoID] {
			continue
		}
		stats = append(stats, buildStat(row.VideoID, windowDays, row.Count, nil, computedAt))
	}

	if err := s.statRepo.ReplaceWindow(ctx, nil, windowDays, stats); err != nil {
		return fmt.Errorf("replace stats window: %w", err)
	}

	if s.cache != nil {
		if err := s.cache.Delete(ctx, trendingCacheKey(windowDays)); err != nil {
			s.log.Warn("failed to invalidate trending cache", "error", err)
		}
	}

	s.log.Info("engagement stats rebuilt",
		"window_days", windowDays,
		"videos", len(stats),
	)
	return nil
}

func buildStat(
	videoID uuid.UUID,
	windowDays int,
	impressionCount int64,
	agg *repos.VideoWatchAggregate,
	computedAt time.Time,
) *types.EngagementStat {
	stat := &types.EngagementStat{
		VideoID:         videoID,
		WindowDays:      windowDays,
		ImpressionCount: impressionCount,
		ComputedAt:      computedAt,
	}
	if agg != nil {
		stat.WatchCount = agg.WatchCount
		stat.Watch10sCount = agg.Watch10sCount
		stat.CompletionCount = agg.CompletionCount
		if agg.WatchCount > 0 {
			stat.AvgWatchDuration = float64(agg.TotalDuration) / float64(agg.WatchCount)
		}
	}
	if impressionCount > 0 {
		stat.Watch10sRate = float64(stat.Watch10sCount) / float64(impressionCount)
	}
	stat.PopularityScore = popularityScore(stat)
	return stat
}

// popularityScore blends depth of engagement with a dampened volume term so
// a handful of perfect watches cannot outrank sustained interest forever.
func popularityScore(stat *types.EngagementStat) float64 {
	completionRate := 0.0
	if stat.WatchCount > 0 {
		completionRate = float64(stat.CompletionCount) / float64(stat.WatchCount)
	}
	volume := math.Min(1, math.Log10(1+float64(stat.WatchCount)))
	return 0.5*stat.Watch10sRate + 0.3*completionRate + 0.2*volume
}

// GetVideoStats prefers the precomputed row and falls back to computing the
// window on demand for videos the last rebuild has not seen yet, or when the
// caller asks for a window other than the precomputed one. windowDays <= 0
// means the configured default.
func (s *engagementService) GetVideoStats(ctx context.Context, videoID uuid.UUID, windowDays int) (*types.EngagementStat, error) {
	if videoID == uuid.Nil {
		return nil, &ValidationError{Field: "video_id", Message: "required"}
	}
	if windowDays <= 0 {
		windowDays = s.cfg.StatsWindowDays
	}

	stat, err := s.statRepo.GetByVideo(ctx, nil, videoID, windowDays)
	if err == nil {
		return stat, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	since := time.Now().UTC().AddDate(0, 0, -windowDays)
	impressionCount, err := s.impressionRepo.CountByVideoSince(ctx, nil, videoID, since)
	if err != nil {
		return nil, err
	}
	agg, err := s.watchRepo.StatsForVideoSince(ctx, nil, videoID, since)
	if err != nil {
		return nil, err
	}
	return buildStat(videoID, windowDays, impressionCount, agg, time.Now().UTC()), nil
}

// TrendingVideos serves from the short-lived cache when it can and always
// falls through to the database when it cannot. Cache trouble is logged,
// never surfaced.
func (s *engagementService) TrendingVideos(ctx context.Context, limit int) ([]TrendingVideo, error) {
	if limit <= 0 {
		return []TrendingVideo{}, nil
	}

	cacheKey := trendingCacheKey(s.cfg.StatsWindowDays)
	if s.cache != nil {
		var cached []TrendingVideo
		found, err := s.cache.GetJSON(ctx, cacheKey, &cached)
		if err != nil {
			s.log.Warn("trending cache read failed", "error", err)
		} else if found && len(cached) >= limit {
			return cached[:limit], nil
		}
	}

	stats, err := s.statRepo.TopByPopularity(ctx, nil, s.cfg.StatsWindowDays, int64(s.cfg.MinImpressions), limit*2)
	if err != nil {
		return nil, err
	}
	if len(stats) == 0 {
		return []TrendingVideo{}, nil
	}

	ids := make([]uuid.UUID, 0, len(stats))
	for _, stat := range stats {
		ids = append(ids, stat.VideoID)
	}
	videos, err := s.videoRepo.GetByIDs(ctx, nil, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[uuid.UUID]*types.Video, len(videos))
	for _, video := range videos {
		byID[video.ID] = video
	}

	out := make([]TrendingVideo, 0, limit)
	for _, stat := range stats {
		video, ok := byID[stat.VideoID]
		if !ok || video.Status != types.VideoStatusActive {
			continue
		}
		out = append(out, TrendingVideo{Video: video, PopularityScore: stat.PopularityScore})
		if len(out) >= limit {
			break
		}
	}

	if s.cache != nil && len(out) > 0 {
		if err := s.cache.SetJSON(ctx, cacheKey, out, trendingCacheTTL); err != nil {
			s.log.Warn("trending cache write failed", "error", err)
		}
	}
	return out, nil
}

func trendingCacheKey(windowDays int) string {
	return fmt.Sprintf("trending:%dd", windowDays)
}
