package services

import (
	"context"
	"hash/fnv"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/clipiq/clipiq-backend/internal/config"
	"github.com/clipiq/clipiq-backend/internal/logger"
	"github.com/clipiq/clipiq-backend/internal/platform/qdrant"
	"github.com/clipiq/clipiq-backend/internal/repos"
	"github.com/clipiq/clipiq-backend/internal/types"
)

const (
	ModelVersionPersonal = "v1_personal"
	ModelVersionTrending = "v1_trending"

	// Watches at or above this many seconds count as positive taste signal.
	tasteSignalMinSeconds = 10
	// Profile vector is pooled from at most this many recent watches.
	tasteSignalMaxWatches = 20
)

// FeedItem is one slot of a composed feed page.
type FeedItem struct {
	Video    *types.Video `json:"video"`
	Source   string       `json:"source"`
	Position int          `json:"position"`
}

type FeedService interface {
	ComposePersonalFeed(ctx context.Context, userID uuid.UUID, sessionID uuid.UUID, limit int) ([]FeedItem, error)
	ComposeTrendingFeed(ctx context.Context, userID uuid.UUID, sessionID uuid.UUID, limit int) ([]FeedItem, error)
}

type feedService struct {
	log            *logger.Logger
	videoRepo      repos.VideoRepo
	watchRepo      repos.WatchEventRepo
	impressionRepo repos.ImpressionRepo
	engagement     EngagementService
	vectorStore    qdrant.VectorStore
	cfg            config.FeedConfig
	ledgerCfg      config.LedgerConfig
}

func NewFeedService(
	log *logger.Logger,
	videoRepo repos.VideoRepo,
	watchRepo repos.WatchEventRepo,
	impressionRepo repos.ImpressionRepo,
	engagement EngagementService,
	vectorStore qdrant.VectorStore,
	cfg config.FeedConfig,
	ledgerCfg config.LedgerConfig,
) FeedService {
	return &feedService{
		log:            log.With("service", "FeedService"),
		videoRepo:      videoRepo,
		watchRepo:      watchRepo,
		impressionRepo: impressionRepo,
		engagement:     engagement,
		vectorStore:    vectorStore,
		cfg:            cfg,
		ledgerCfg:      ledgerCfg,
	}
}

// ComposePersonalFeed gathers the personal, trending and fresh pools in
// parallel, interleaves them by the configured ratio and records the page as
// impressions. A pool that fails contributes nothing; the page only fails
// when every pool is empty AND an error occurred.
func (s *feedService) ComposePersonalFeed(ctx context.Context, userID uuid.UUID, sessionID uuid.UUID, limit int) ([]FeedItem, error) {
	if userID == uuid.Nil {
		return nil, &ValidationError{Field: "user_id", Message: "required"}
	}
	if sessionID == uuid.Nil {
		return nil, &ValidationError{Field: "session_id", Message: "required"}
	}
	if limit <= 0 {
		return []FeedItem{}, nil
	}

	seen, err := s.seenSet(ctx, userID, sessionID)
	if err != nil {
		s.log.Warn("seen lookup failed, composing without history dedupe",
			"user_id", userID.String(),
			"error", err,
		)
		seen = map[uuid.UUID]bool{}
	}

	poolSize := limit * 2
	var personal, trending, fresh []*types.Video
	var mu sync.Mutex

	g, groupCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		pool, err := s.personalPool(groupCtx, userID, seen, poolSize)
		if err != nil {
			s.log.Warn("personal pool failed", "user_id", userID.String(), "error", err)
			return nil
		}
		mu.Lock()
		personal = pool
		mu.Unlock()
		return nil
	})
	g.Go(func() error {
		pool, err := s.trendingPool(groupCtx, seen, poolSize)
		if err != nil {
			s.log.Warn("trending pool failed", "error", err)
			return nil
		}
		mu.Lock()
		trending = pool
		mu.Unlock()
		return nil
	})
	g.Go(func() error {
		pool, err := s.freshPool(groupCtx, seen, poolSize)
		if err != nil {
			s.log.Warn("fresh pool failed", "error", err)
			return nil
		}
		mu.Lock()
		fresh = pool
		mu.Unlock()
		return nil
	})
	_ = g.Wait()
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	rng := sessionRand(userID, sessionID)
	shuffleVideos(personal, rng)
	shuffleVideos(trending, rng)
	shuffleVideos(fresh, rng)

	items := s.interleave(
		[]videoPool{
			{source: types.ImpressionSourcePersonal, weight: s.cfg.PersonalRatio, videos: personal},
			{source: types.ImpressionSourceTrending, weight: s.cfg.TrendingRatio, videos: trending},
			{source: types.ImpressionSourceFresh, weight: s.cfg.FreshRatio, videos: fresh},
		},
		limit,
		rng,
	)

	s.recordPage(ctx, userID, sessionID, items, ModelVersionPersonal)
	return items, nil
}

// ComposeTrendingFeed serves the popularity ranking alone. History dedupe
// and impression recording only apply when the caller identifies a user and
// session.
func (s *feedService) ComposeTrendingFeed(ctx context.Context, userID uuid.UUID, sessionID uuid.UUID, limit int) ([]FeedItem, error) {
	if limit <= 0 {
		return []FeedItem{}, nil
	}

	seen := map[uuid.UUID]bool{}
	identified := userID != uuid.Nil && sessionID != uuid.Nil
	if identified {
		looked, err := s.seenSet(ctx, userID, sessionID)
		if err != nil {
			s.log.Warn("seen lookup failed, composing without history dedupe",
				"user_id", userID.String(),
				"error", err,
			)
		} else {
			seen = looked
		}
	}

	pool, err := s.trendingPool(ctx, seen, limit*2)
	if err != nil {
		return nil, err
	}

	rng := sessionRand(userID, sessionID)
	shuffleVideos(pool, rng)

	items := s.interleave(
		[]videoPool{
			{source: types.ImpressionSourceTrending, weight: 1, videos: pool},
		},
		limit,
		rng,
	)

	if identified {
		s.recordPage(ctx, userID, sessionID, items, ModelVersionTrending)
	}
	return items, nil
}

func (s *feedService) seenSet(ctx context.Context, userID uuid.UUID, sessionID uuid.UUID) (map[uuid.UUID]bool, error) {
	since := time.Now().UTC().Add(-time.Duration(s.cfg.SeenWindowHours) * time.Hour)
	ids, err := s.impressionRepo.SeenVideoIDs(ctx, nil, userID, sessionID, since)
	if err != nil {
		return nil, err
	}
	seen := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		seen[id] = true
	}
	return seen, nil
}

// personalPool searches the embedding index around the user's taste profile.
// An empty profile (cold start) is not an error; the pool is just empty and
// the ratio shifts to trending and fresh.
func (s *feedService) personalPool(ctx context.Context, userID uuid.UUID, seen map[uuid.UUID]bool, poolSize int) ([]*types.Video, error) {
	if s.vectorStore == nil {
		return nil, nil
	}

	profile, err := s.profileVector(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(profile) == 0 {
		return nil, nil
	}

	exclude := make([]uuid.UUID, 0, len(seen))
	for id := range seen {
		exclude = append(exclude, id)
	}
	matches, err := s.vectorStore.SearchVideos(ctx, profile, poolSize, exclude)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, nil
	}

	ids := make([]uuid.UUID, 0, len(matches))
	for _, m := range matches {
		ids = append(ids, m.VideoID)
	}
	videos, err := s.videoRepo.GetByIDs(ctx, nil, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[uuid.UUID]*types.Video, len(videos))
	for _, video := range videos {
		byID[video.ID] = video
	}

	pool := make([]*types.Video, 0, len(matches))
	for _, m := range matches {
		video, ok := byID[m.VideoID]
		if !ok || video.Status != types.VideoStatusActive || seen[video.ID] {
			continue
		}
		pool = append(pool, video)
	}
	return pool, nil
}

// profileVector pools the embeddings of the user's recent long watches,
// weighted by watch duration, into one unit vector.
func (s *feedService) profileVector(ctx context.Context, userID uuid.UUID) ([]float32, error) {
	watches, err := s.watchRepo.RecentPositive(ctx, nil, userID, tasteSignalMinSeconds, tasteSignalMaxWatches)
	if err != nil {
		return nil, err
	}
	if len(watches) == 0 {
		return nil, nil
	}

	var vectors [][]float32
	var weights []float64
	for _, watch := range watches {
		frames, err := s.vectorStore.RetrieveVideoVectors(ctx, watch.VideoID)
		if err != nil {
			s.log.Warn("failed to retrieve embeddings for watched video",
				"user_id", userID.String(),
				"video_id", watch.VideoID.String(),
				"error", err,
			)
			continue
		}
		videoVec := MeanPool(frames, nil)
		if videoVec == nil {
			continue
		}
		vectors = append(vectors, videoVec)
		weights = append(weights, float64(watch.WatchDuration))
	}

	return L2Normalize(MeanPool(vectors, weights)), nil
}

func (s *feedService) trendingPool(ctx context.Context, seen map[uuid.UUID]bool, poolSize int) ([]*types.Video, error) {
	ranked, err := s.engagement.TrendingVideos(ctx, poolSize)
	if err != nil {
		return nil, err
	}
	pool := make([]*types.Video, 0, len(ranked))
	for _, entry := range ranked {
		if seen[entry.Video.ID] {
			continue
		}
		pool = append(pool, entry.Video)
	}
	return pool, nil
}

// freshPool surfaces recent uploads that have barely been shown to anyone
// yet. A video that already crossed the trending impression floor has had
// its exposure chance and competes on engagement instead.
func (s *feedService) freshPool(ctx context.Context, seen map[uuid.UUID]bool, poolSize int) ([]*types.Video, error) {
	since := time.Now().UTC().AddDate(0, 0, -s.cfg.FreshWindowDays)
	exclude := make([]uuid.UUID, 0, len(seen))
	for id := range seen {
		exclude = append(exclude, id)
	}
	recent, err := s.videoRepo.RecentActive(ctx, nil, since, exclude, poolSize*2)
	if err != nil {
		return nil, err
	}
	if len(recent) == 0 {
		return recent, nil
	}

	counts, err := s.impressionRepo.AggregateSince(ctx, nil, since)
	if err != nil {
		s.log.Warn("fresh pool exposure lookup failed, serving unfiltered", "error", err)
		if len(recent) > poolSize {
			recent = recent[:poolSize]
		}
		return recent, nil
	}
	shown := make(map[uuid.UUID]int64, len(counts))
	for _, row := range counts {
		shown[row.VideoID] = row.Count
	}

	pool := make([]*types.Video, 0, len(recent))
	for _, video := range recent {
		if shown[video.ID] >= int64(s.ledgerCfg.MinImpressions) {
			continue
		}
		pool = append(pool, video)
		if len(pool) >= poolSize {
			break
		}
	}
	return pool, nil
}

type videoPool struct {
	source string
	weight float64
	videos []*types.Video
}

// interleave fills the page slot by slot, choosing the next pool by weighted
// draw among pools that still have videos. A pool running dry shifts its
// share to the others instead of shortening the page. The per-uploader cap
// keeps one channel from monopolizing a page.
func (s *feedService) interleave(pools []videoPool, limit int, rng *rand.Rand) []FeedItem {
	picked := map[uuid.UUID]bool{}
	perUploader := map[uuid.UUID]int{}
	cursors := make([]int, len(pools))
	items := make([]FeedItem, 0, limit)

	admissible := func(video *types.Video) bool {
		if picked[video.ID] {
			return false
		}
		if s.cfg.PerUploaderCap > 0 && video.UploaderID != uuid.Nil &&
			perUploader[video.UploaderID] >= s.cfg.PerUploaderCap {
			return false
		}
		return true
	}

	advance := func(i int) *types.Video {
		for cursors[i] < len(pools[i].videos) {
			video := pools[i].videos[cursors[i]]
			cursors[i]++
			if admissible(video) {
				return video
			}
		}
		return nil
	}

	for len(items) < limit {
		var liveIdx []int
		var liveWeight float64
		for i := range pools {
			if cursors[i] < len(pools[i].videos) {
				liveIdx = append(liveIdx, i)
				liveWeight += pools[i].weight
			}
		}
		if len(liveIdx) == 0 {
			break
		}

		chosen := liveIdx[0]
		if len(liveIdx) > 1 && liveWeight > 0 {
			draw := rng.Float64() * liveWeight
			for _, i := range liveIdx {
				draw -= pools[i].weight
				if draw <= 0 {
					chosen = i
					break
				}
				chosen = i
			}
		}

		video := advance(chosen)
		if video == nil {
			continue
		}
		picked[video.ID] = true
		if video.UploaderID != uuid.Nil {
			perUploader[video.UploaderID]++
		}
		items = append(items, FeedItem{
			Video:    video,
			Source:   pools[chosen].source,
			Position: len(items),
		})
	}
	return items
}

// recordPage writes the served page to the exposure ledger. Failure to
// record never fails the page.
func (s *feedService) recordPage(ctx context.Context, userID uuid.UUID, sessionID uuid.UUID, items []FeedItem, modelVersion string) {
	if len(items) == 0 {
		return
	}
	shownAt := time.Now().UTC()
	rows := make([]*types.Impression, 0, len(items))
	for _, item := range items {
		rows = append(rows, &types.Impression{
			UserID:       userID,
			VideoID:      item.Video.ID,
			SessionID:    sessionID,
			Position:     item.Position,
			Source:       item.Source,
			ModelVersion: modelVersion,
			ShownAt:      shownAt,
		})
	}
	if err := s.impressionRepo.CreateBatch(ctx, nil, rows); err != nil {
		s.log.Warn("failed to record page impressions",
			"user_id", userID.String(),
			"session_id", sessionID.String(),
			"count", len(rows),
			"error", err,
		)
	}
}

func sessionRand(userID uuid.UUID, sessionID uuid.UUID) *rand.Rand {
	h := fnv.New64a()
	_, _ = h.Write(userID[:])
	_, _ = h.Write(sessionID[:])
	return rand.New(rand.NewSource(int64(h.Sum64())))
}

func shuffleVideos(videos []*types.Video, rng *rand.Rand) {
	rng.Shuffle(len(videos), func(i, j int) {
		videos[i], videos[j] = videos[j], videos[i]
	})
}
