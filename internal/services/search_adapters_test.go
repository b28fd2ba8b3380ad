package services

import (
	"context"
	"testing"

	"github.com/clipiq/clipiq-backend/internal/platform/elastic"
	"github.com/clipiq/clipiq-backend/internal/platform/qdrant"
	"github.com/clipiq/clipiq-backend/internal/repos"
	"github.com/clipiq/clipiq-backend/internal/types"
)

type stubOCRSearcher struct {
	hits []elastic.OCRHit
	err  error
}

func (s *stubOCRSearcher) SearchOCR(ctx context.Context, query string, topK int) ([]elastic.OCRHit, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.hits, nil
}

func TestOCRAdapterResolvesVideoNames(t *testing.T) {
	db := newTestDB(t)
	videoRepo := repos.NewVideoRepo(db, newTestLogger(t))
	video := seedVideo(t, db, "captioned clip", types.VideoStatusActive)

	searcher := &stubOCRSearcher{hits: []elastic.OCRHit{
		{DerivedID: video.VideoName + "_3", VideoName: video.VideoName, FrameOffset: 3, Score: 4.2},
	}}
	a := NewOCRAdapter(newTestLogger(t), searcher, videoRepo)

	candidates, err := a.Retrieve(context.Background(), SubQueries{OCR: "sale ends friday"}, 10)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(candidates) != 1 {
		t.Fatalf("candidates length: want=1 got=%d", len(candidates))
	}
	if candidates[0].VideoID != video.ID {
		t.Fatalf("resolved id: want=%s got=%s", video.ID, candidates[0].VideoID)
	}
	if candidates[0].Source != SourceOCR || candidates[0].Score != 4.2 {
		t.Fatalf("candidate: got=%+v", candidates[0])
	}
}

func TestOCRAdapterDropsUnresolvableHits(t *testing.T) {
	db := newTestDB(t)
	videoRepo := repos.NewVideoRepo(db, newTestLogger(t))
	video := seedVideo(t, db, "resolvable clip", types.VideoStatusActive)

	searcher := &stubOCRSearcher{hits: []elastic.OCRHit{
		{DerivedID: "ghost.mp4_0", VideoName: "ghost.mp4", FrameOffset: 0, Score: 9.9},
		{DerivedID: video.VideoName + "_1", VideoName: video.VideoName, FrameOffset: 1, Score: 2.0},
	}}
	a := NewOCRAdapter(newTestLogger(t), searcher, videoRepo)

	candidates, err := a.Retrieve(context.Background(), SubQueries{OCR: "limited offer"}, 10)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	// The hit whose storage name no longer resolves is dropped, not guessed at.
	if len(candidates) != 1 {
		t.Fatalf("candidates length: want=1 got=%d", len(candidates))
	}
	if candidates[0].VideoID != video.ID {
		t.Fatalf("resolved id: want=%s got=%s", video.ID, candidates[0].VideoID)
	}
}

func TestOCRAdapterSkipsEmptySubQuery(t *testing.T) {
	db := newTestDB(t)
	videoRepo := repos.NewVideoRepo(db, newTestLogger(t))
	a := NewOCRAdapter(newTestLogger(t), &stubOCRSearcher{}, videoRepo)

	candidates, err := a.Retrieve(context.Background(), SubQueries{OCR: ""}, 10)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(candidates) != 0 {
		t.Fatalf("candidates length: want=0 got=%d", len(candidates))
	}
}

func TestSemanticAdapterWithoutBackends(t *testing.T) {
	a := NewSemanticAdapter(newTestLogger(t), nil, nil)
	candidates, err := a.Retrieve(context.Background(), SubQueries{Semantic: "a dog running"}, 10)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(candidates) != 0 {
		t.Fatalf("candidates length: want=0 got=%d", len(candidates))
	}
}

func TestSemanticAdapterEmbedsAndSearches(t *testing.T) {
	video := seedVideo(t, newTestDB(t), "embedded clip", types.VideoStatusActive)
	store := &stubVectorStore{matches: []qdrant.VideoMatch{{VideoID: video.ID, Score: 0.8}}}

	ai := &stubAIClient{
		embedFn: func(ctx context.Context, inputs []string) ([][]float32, error) {
			if len(inputs) != 1 || inputs[0] != "a dog running" {
				t.Fatalf("embed inputs: got=%v", inputs)
			}
			return [][]float32{{0.1, 0.2}}, nil
		},
	}
	a := NewSemanticAdapter(newTestLogger(t), ai, store)

	candidates, err := a.Retrieve(context.Background(), SubQueries{Semantic: "a dog running"}, 10)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(candidates) != 1 {
		t.Fatalf("candidates length: want=1 got=%d", len(candidates))
	}
	if candidates[0].VideoID != video.ID || candidates[0].Source != SourceSemantic {
		t.Fatalf("candidate: got=%+v", candidates[0])
	}
}

func TestTitleAdapterQueriesRepo(t *testing.T) {
	db := newTestDB(t)
	videoRepo := repos.NewVideoRepo(db, newTestLogger(t))
	video := seedVideo(t, db, "skateboard trick compilation", types.VideoStatusActive)

	a := NewTitleAdapter(newTestLogger(t), videoRepo)
	candidates, err := a.Retrieve(context.Background(), SubQueries{Title: "skateboard"}, 10)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(candidates) != 1 || candidates[0].VideoID != video.ID {
		t.Fatalf("candidates: want %s got=%+v", video.ID, candidates)
	}
	if candidates[0].Source != SourceTitle {
		t.Fatalf("source: want=%s got=%s", SourceTitle, candidates[0].Source)
	}
}
