package services

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/clipiq/clipiq-backend/internal/logger"
)

// SubQueries is the per-backend decomposition of one raw search query.
// An empty field means that backend is skipped for this search.
type SubQueries struct {
	Title    string `json:"title"`
	Semantic string `json:"semantic"`
	OCR      string `json:"ocr"`
}

// QueryClassifier splits a raw query into backend-specific sub-queries.
type QueryClassifier interface {
	Classify(ctx context.Context, query string) SubQueries
}

type queryClassifier struct {
	log *logger.Logger
	ai  AIClient
}

const classifierSystemPrompt = `You decompose short-video search queries for a multi-backend search engine.
Given a user query, produce three sub-queries:
- "title": words likely to appear in a video title or description. Empty if none.
- "semantic": a natural-language description of the visual content the user wants. Empty if none.
- "ocr": text the user expects to see rendered on screen in the video (captions, signs, labels). Empty unless the query clearly asks for on-screen text.
Keep each sub-query short. Do not invent terms absent from the query.`

var classifierSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"title":    map[string]any{"type": "string"},
		"semantic": map[string]any{"type": "string"},
		"ocr":      map[string]any{"type": "string"},
	},
	"required":             []string{"title", "semantic", "ocr"},
	"additionalProperties": false,
}

func NewQueryClassifier(log *logger.Logger, ai AIClient) QueryClassifier {
	return &queryClassifier{
		log: log.With("service", "QueryClassifier"),
		ai:  ai,
	}
}

// Classify never fails the search: any classifier problem degrades to
// sending the raw query to the title backend only. Queries shorter than
// two runes are never worth a model round-trip and go straight to title.
func (s *queryClassifier) Classify(ctx context.Context, query string) SubQueries {
	q := strings.TrimSpace(query)
	if q == "" {
		return SubQueries{}
	}
	fallback := SubQueries{Title: q}
	if utf8.RuneCountInString(q) < 2 {
		return fallback
	}
	if s == nil || s.ai == nil {
		return fallback
	}

	obj, err := s.ai.GenerateJSON(ctx, classifierSystemPrompt, q, "search_sub_queries", classifierSchema)
	if err != nil {
		s.log.Warn("query classification failed, using raw query for title search", "error", err)
		return fallback
	}

	out := SubQueries{
		Title:    stringField(obj, "title"),
		Semantic: stringField(obj, "semantic"),
		OCR:      stringField(obj, "ocr"),
	}
	if out.Title == "" && out.Semantic == "" && out.OCR == "" {
		s.log.Warn("query classification returned no sub-queries, using raw query")
		return fallback
	}
	return out
}

func stringField(obj map[string]any, key string) string {
	if obj == nil {
		return ""
	}
	if raw, ok := obj[key].(string); ok {
		return strings.TrimSpace(raw)
	}
	return ""
}
