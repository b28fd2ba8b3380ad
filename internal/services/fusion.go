package services

import (
	"sort"

	"github.com/google/uuid"

	"github.com/clipiq/clipiq-backend/internal/config"
)

const (
	SourceTitle    = "title"
	SourceSemantic = "semantic"
	SourceOCR      = "ocr"
)

// Candidate is one backend hit after identity resolution: a canonical video
// id, the backend that produced it and that backend's raw score. Raw scores
// are only comparable within one backend.
type Candidate struct {
	VideoID uuid.UUID
	Source  string
	Score   float64
}

// FusedResult is one video after cross-backend fusion. Score is the fused
// relevance; Sources lists the distinct backends that surfaced the video.
type FusedResult struct {
	VideoID uuid.UUID `json:"video_id"`
	Score   float64   `json:"score"`
	Sources []string  `json:"sources"`
}

// FusionWeights controls how much each backend contributes to the fused
// score and the multiplier applied when several backends agree.
type FusionWeights struct {
	Title            float64
	Semantic         float64
	OCR              float64
	MultiSourceBoost float64
}

func FusionWeightsFromConfig(cfg config.FusionConfig) FusionWeights {
	return FusionWeights{
		Title:            cfg.TitleWeight,
		Semantic:         cfg.SemanticWeight,
		OCR:              cfg.OCRWeight,
		MultiSourceBoost: cfg.MultiSourceBoost,
	}
}

func (w FusionWeights) weightFor(source string) float64 {
	switch source {
	case SourceTitle:
		return w.Title
	case SourceSemantic:
		return w.Semantic
	case SourceOCR:
		return w.OCR
	default:
		return 0
	}
}

// FuseCandidates merges per-backend candidate lists into one ranked list.
//
// Scores are first normalized within each backend by that backend's maximum,
// so the top hit of every backend lands at 1.0 regardless of score scale.
// A video surfaced several times by the same backend keeps only its best
// normalized score there; duplicate frame hits never stack. The fused score
// is the weighted sum of per-backend best scores, multiplied by the
// agreement boost when two or more distinct backends surfaced the video.
func FuseCandidates(candidates []Candidate, weights FusionWeights) []FusedResult {
	if len(candidates) == 0 {
		return []FusedResult{}
	}

	maxBySource := map[string]float64{}
	for _, c := range candidates {
		if c.Score > maxBySource[c.Source] {
			maxBySource[c.Source] = c.Score
		}
	}
	for source, max := range maxBySource {
		if max <= 0 {
			maxBySource[source] = 1
		}
	}

	type videoEntry struct {
		bestNorm map[string]float64
	}
	byVideo := map[uuid.UUID]*videoEntry{}
	order := []uuid.UUID{}
	for _, c := range candidates {
		if c.VideoID == uuid.Nil {
			continue
		}
		norm := c.Score / maxBySource[c.Source]
		entry, ok := byVideo[c.VideoID]
		if !ok {
			entry = &videoEntry{bestNorm: map[string]float64{}}
			byVideo[c.VideoID] = entry
			order = append(order, c.VideoID)
		}
		if norm > entry.bestNorm[c.Source] {
			entry.bestNorm[c.Source] = norm
		}
	}

	results := make([]FusedResult, 0, len(byVideo))
	for _, videoID := range order {
		entry := byVideo[videoID]
		score := 0.0
		sources := make([]string, 0, len(entry.bestNorm))
		for _, source := range []string{SourceTitle, SourceSemantic, SourceOCR} {
			norm, ok := entry.bestNorm[source]
			if !ok {
				continue
			}
			score += norm * weights.weightFor(source)
			sources = append(sources, source)
		}
		if len(sources) >= 2 {
			score *= weights.MultiSourceBoost
		}
		results = append(results, FusedResult{
			VideoID: videoID,
			Score:   score,
			Sources: sources,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if len(results[i].Sources) != len(results[j].Sources) {
			return len(results[i].Sources) > len(results[j].Sources)
		}
		return results[i].VideoID.String() < results[j].VideoID.String()
	})
	return results
}
