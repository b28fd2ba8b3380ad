package services

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/clipiq/clipiq-backend/internal/logger"
	"github.com/clipiq/clipiq-backend/internal/platform/elastic"
	"github.com/clipiq/clipiq-backend/internal/platform/qdrant"
	"github.com/clipiq/clipiq-backend/internal/repos"
)

// RetrievalAdapter runs one search backend. An adapter that has nothing to
// do for the given sub-queries returns an empty slice, not an error.
type RetrievalAdapter interface {
	Name() string
	Retrieve(ctx context.Context, sub SubQueries, topK int) ([]Candidate, error)
}

// ---- Title ----

type titleAdapter struct {
	log       *logger.Logger
	videoRepo repos.VideoRepo
}

func NewTitleAdapter(log *logger.Logger, videoRepo repos.VideoRepo) RetrievalAdapter {
	return &titleAdapter{
		log:       log.With("adapter", SourceTitle),
		videoRepo: videoRepo,
	}
}

func (a *titleAdapter) Name() string { return SourceTitle }

func (a *titleAdapter) Retrieve(ctx context.Context, sub SubQueries, topK int) ([]Candidate, error) {
	q := strings.TrimSpace(sub.Title)
	if q == "" {
		return []Candidate{}, nil
	}
	matches, err := a.videoRepo.SearchByText(ctx, nil, q, topK)
	if err != nil {
		return nil, err
	}
	out := make([]Candidate, 0, len(matches))
	for _, m := range matches {
		out = append(out, Candidate{
			VideoID: m.ID,
			Source:  SourceTitle,
			Score:   m.Score,
		})
	}
	return out, nil
}

// ---- Semantic ----

type semanticAdapter struct {
	log         *logger.Logger
	ai          AIClient
	vectorStore qdrant.VectorStore
}

func NewSemanticAdapter(log *logger.Logger, ai AIClient, vectorStore qdrant.VectorStore) RetrievalAdapter {
	return &semanticAdapter{
		log:         log.With("adapter", SourceSemantic),
		ai:          ai,
		vectorStore: vectorStore,
	}
}

func (a *semanticAdapter) Name() string { return SourceSemantic }

func (a *semanticAdapter) Retrieve(ctx context.Context, sub SubQueries, topK int) ([]Candidate, error) {
	q := strings.TrimSpace(sub.Semantic)
	if q == "" || a.ai == nil || a.vectorStore == nil {
		return []Candidate{}, nil
	}
	embeddings, err := a.ai.Embed(ctx, []string{q})
	if err != nil {
		return nil, err
	}
	if len(embeddings) == 0 || len(embeddings[0]) == 0 {
		return []Candidate{}, nil
	}
	matches, err := a.vectorStore.SearchVideos(ctx, embeddings[0], topK, nil)
	if err != nil {
		return nil, err
	}
	out := make([]Candidate, 0, len(matches))
	for _, m := range matches {
		out = append(out, Candidate{
			VideoID: m.VideoID,
			Source:  SourceSemantic,
			Score:   m.Score,
		})
	}
	return out, nil
}

// ---- OCR ----

type ocrAdapter struct {
	log       *logger.Logger
	searcher  elastic.OCRSearcher
	videoRepo repos.VideoRepo
}

func NewOCRAdapter(log *logger.Logger, searcher elastic.OCRSearcher, videoRepo repos.VideoRepo) RetrievalAdapter {
	return &ocrAdapter{
		log:       log.With("adapter", SourceOCR),
		searcher:  searcher,
		videoRepo: videoRepo,
	}
}

func (a *ocrAdapter) Name() string { return SourceOCR }

// Retrieve resolves OCR hits to canonical video ids before returning them.
// The OCR index keys frames by storage name, not video id; a hit whose name
// no longer resolves is dropped here so it can never reach fusion with a
// made-up identity.
func (a *ocrAdapter) Retrieve(ctx context.Context, sub SubQueries, topK int) ([]Candidate, error) {
	q := strings.TrimSpace(sub.OCR)
	if q == "" || a.searcher == nil {
		return []Candidate{}, nil
	}
	hits, err := a.searcher.SearchOCR(ctx, q, topK)
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		return []Candidate{}, nil
	}

	nameSet := map[string]bool{}
	names := make([]string, 0, len(hits))
	for _, hit := range hits {
		if !nameSet[hit.VideoName] {
			nameSet[hit.VideoName] = true
			names = append(names, hit.VideoName)
		}
	}

	videos, err := a.videoRepo.GetByVideoNames(ctx, nil, names)
	if err != nil {
		return nil, err
	}
	idByName := make(map[string]uuid.UUID, len(videos))
	for _, video := range videos {
		idByName[video.VideoName] = video.ID
	}

	out := make([]Candidate, 0, len(hits))
	for _, hit := range hits {
		videoID, ok := idByName[hit.VideoName]
		if !ok {
			a.log.Warn("dropping OCR hit with unresolvable video name",
				"video_name", hit.VideoName,
				"derived_id", hit.DerivedID,
			)
			continue
		}
		out = append(out, Candidate{
			VideoID: videoID,
			Source:  SourceOCR,
			Score:   hit.Score,
		})
	}
	return out, nil
}
