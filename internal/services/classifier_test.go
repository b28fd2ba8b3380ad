package services

import (
	"context"
	"fmt"
	"testing"
)

type stubAIClient struct {
	embedFn    func(ctx context.Context, inputs []string) ([][]float32, error)
	generateFn func(ctx context.Context, system string, user string, schemaName string, schema map[string]any) (map[string]any, error)
}

func (s *stubAIClient) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	if s.embedFn == nil {
		return nil, fmt.Errorf("embed not stubbed")
	}
	return s.embedFn(ctx, inputs)
}

func (s *stubAIClient) GenerateJSON(ctx context.Context, system string, user string, schemaName string, schema map[string]any) (map[string]any, error) {
	if s.generateFn == nil {
		return nil, fmt.Errorf("generate not stubbed")
	}
	return s.generateFn(ctx, system, user, schemaName, schema)
}

func TestClassifySplitsQuery(t *testing.T) {
	ai := &stubAIClient{
		generateFn: func(ctx context.Context, system string, user string, schemaName string, schema map[string]any) (map[string]any, error) {
			if user != "dog catching frisbee" {
				t.Fatalf("user query: got=%q", user)
			}
			return map[string]any{
				"title":    "dog frisbee",
				"semantic": "a dog catching a frisbee outdoors",
				"ocr":      "",
			}, nil
		},
	}
	c := NewQueryClassifier(newTestLogger(t), ai)

	sub := c.Classify(context.Background(), "dog catching frisbee")
	if sub.Title != "dog frisbee" {
		t.Fatalf("title: got=%q", sub.Title)
	}
	if sub.Semantic != "a dog catching a frisbee outdoors" {
		t.Fatalf("semantic: got=%q", sub.Semantic)
	}
	if sub.OCR != "" {
		t.Fatalf("ocr: want empty got=%q", sub.OCR)
	}
}

func TestClassifyFallsBackOnError(t *testing.T) {
	ai := &stubAIClient{
		generateFn: func(ctx context.Context, system string, user string, schemaName string, schema map[string]any) (map[string]any, error) {
			return nil, fmt.Errorf("model unavailable")
		},
	}
	c := NewQueryClassifier(newTestLogger(t), ai)

	sub := c.Classify(context.Background(), "running dog")
	if sub.Title != "running dog" {
		t.Fatalf("fallback title: got=%q", sub.Title)
	}
	if sub.Semantic != "" || sub.OCR != "" {
		t.Fatalf("fallback must be title-only: got=%+v", sub)
	}
}

func TestClassifySkipsModelForTinyQueries(t *testing.T) {
	ai := &stubAIClient{
		generateFn: func(ctx context.Context, system string, user string, schemaName string, schema map[string]any) (map[string]any, error) {
			t.Fatalf("single-rune query must not reach the model")
			return nil, nil
		},
	}
	c := NewQueryClassifier(newTestLogger(t), ai)

	sub := c.Classify(context.Background(), "a")
	if sub.Title != "a" || sub.Semantic != "" || sub.OCR != "" {
		t.Fatalf("tiny query: got=%+v", sub)
	}
}

func TestClassifyFallsBackOnEmptyResult(t *testing.T) {
	ai := &stubAIClient{
		generateFn: func(ctx context.Context, system string, user string, schemaName string, schema map[string]any) (map[string]any, error) {
			return map[string]any{"title": "", "semantic": "", "ocr": ""}, nil
		},
	}
	c := NewQueryClassifier(newTestLogger(t), ai)

	sub := c.Classify(context.Background(), "sunset timelapse")
	if sub.Title != "sunset timelapse" || sub.Semantic != "" {
		t.Fatalf("fallback: got=%+v", sub)
	}
}

func TestClassifyWithoutAIClient(t *testing.T) {
	c := NewQueryClassifier(newTestLogger(t), nil)
	sub := c.Classify(context.Background(), "cooking pasta")
	if sub.Title != "cooking pasta" || sub.Semantic != "" || sub.OCR != "" {
		t.Fatalf("fallback: got=%+v", sub)
	}
}

func TestClassifyEmptyQuery(t *testing.T) {
	c := NewQueryClassifier(newTestLogger(t), nil)
	sub := c.Classify(context.Background(), "   ")
	if sub.Title != "" || sub.Semantic != "" || sub.OCR != "" {
		t.Fatalf("empty query: got=%+v", sub)
	}
}
