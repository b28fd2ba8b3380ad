package services

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/clipiq/clipiq-backend/internal/config"
	"github.com/clipiq/clipiq-backend/internal/logger"
	"github.com/clipiq/clipiq-backend/internal/repos"
	"github.com/clipiq/clipiq-backend/internal/types"
)

// SearchResult is one ranked search hit with its hydrated video row.
type SearchResult struct {
	Video   *types.Video `json:"video"`
	Score   float64      `json:"score"`
	Sources []string     `json:"sources"`
}

type SearchService interface {
	SearchVideos(ctx context.Context, query string, limit int) ([]SearchResult, error)
}

type searchService struct {
	log        *logger.Logger
	classifier QueryClassifier
	adapters   []RetrievalAdapter
	videoRepo  repos.VideoRepo
	weights    FusionWeights
	timeout    time.Duration
}

func NewSearchService(
	log *logger.Logger,
	classifier QueryClassifier,
	adapters []RetrievalAdapter,
	videoRepo repos.VideoRepo,
	cfg config.FusionConfig,
) SearchService {
	return &searchService{
		log:        log.With("service", "SearchService"),
		classifier: classifier,
		adapters:   adapters,
		videoRepo:  videoRepo,
		weights:    FusionWeightsFromConfig(cfg),
		timeout:    time.Duration(cfg.AdapterTimeoutMS) * time.Millisecond,
	}
}

// SearchVideos fans the classified sub-queries out to every backend in
// parallel and fuses whatever came back. A backend that fails or times out
// contributes nothing; the search only fails when the caller's context is
// done or hydration fails.
func (s *searchService) SearchVideos(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	q := strings.TrimSpace(query)
	if q == "" || limit <= 0 {
		return []SearchResult{}, nil
	}

	sub := s.classifier.Classify(ctx, q)

	perAdapter := make([][]Candidate, len(s.adapters))
	var mu sync.Mutex

	g, groupCtx := errgroup.WithContext(ctx)
	for i, adapter := range s.adapters {
		i, adapter := i, adapter
		g.Go(func() error {
			adapterCtx := groupCtx
			if s.timeout > 0 {
				var cancel context.CancelFunc
				adapterCtx, cancel = context.WithTimeout(groupCtx, s.timeout)
				defer cancel()
			}

			candidates, err := adapter.Retrieve(adapterCtx, sub, limit*2)
			if err != nil {
				// One backend going down degrades the result set, never the search.
				s.log.Warn("retrieval backend failed",
					"adapter", adapter.Name(),
					"error", err,
				)
				return nil
			}
			mu.Lock()
			perAdapter[i] = candidates
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	var all []Candidate
	for _, candidates := range perAdapter {
		all = append(all, candidates...)
	}

	fused := FuseCandidates(all, s.weights)
	if len(fused) > limit {
		fused = fused[:limit]
	}
	return s.hydrate(ctx, fused)
}

func (s *searchService) hydrate(ctx context.Context, fused []FusedResult) ([]SearchResult, error) {
	if len(fused) == 0 {
		return []SearchResult{}, nil
	}

	ids := make([]uuid.UUID, 0, len(fused))
	for _, f := range fused {
		ids = append(ids, f.VideoID)
	}
	videos, err := s.videoRepo.GetByIDs(ctx, nil, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[uuid.UUID]*types.Video, len(videos))
	for _, video := range videos {
		byID[video.ID] = video
	}

	out := make([]SearchResult, 0, len(fused))
	for _, f := range fused {
		video, ok := byID[f.VideoID]
		if !ok || video.Status != types.VideoStatusActive {
			continue
		}
		out = append(out, SearchResult{
			Video:   video,
			Score:   f.Score,
			Sources: f.Sources,
		})
	}
	return out, nil
}
