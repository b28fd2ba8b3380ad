package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"testing"

	"github.com/google/uuid"

	"github.com/clipiq/clipiq-backend/internal/logger"
)

func TestVectorStoreUpsertRequestShape(t *testing.T) {
	videoID := uuid.MustParse("3f1f9a52-8f63-4a5e-9a36-5b3e2c1d7e40")

	var captured map[string]any
	s := newTestVectorStore(t, func(r *http.Request) (*http.Response, error) {
		if r.Method != http.MethodPut {
			t.Fatalf("method: want=%s got=%s", http.MethodPut, r.Method)
		}
		if r.URL.Path != "/collections/clipiq_videos/points" {
			t.Fatalf("path: want=%q got=%q", "/collections/clipiq_videos/points", r.URL.Path)
		}
		if r.URL.RawQuery != "wait=true" {
			t.Fatalf("query: want=%q got=%q", "wait=true", r.URL.RawQuery)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		return okResponse(t, map[string]any{"status": "acknowledged"}), nil
	})

	err := s.UpsertVideoVectors(context.Background(), videoID, []FrameVector{
		{Offset: 0, Values: []float32{1, 2, 3}},
		{Offset: 5, Values: []float32{4, 5, 6}},
	})
	if err != nil {
		t.Fatalf("UpsertVideoVectors: %v", err)
	}

	pointsRaw, ok := captured["points"].([]any)
	if !ok {
		t.Fatalf("points type: got=%T", captured["points"])
	}
	if len(pointsRaw) != 2 {
		t.Fatalf("points length: want=2 got=%d", len(pointsRaw))
	}

	first, ok := pointsRaw[0].(map[string]any)
	if !ok {
		t.Fatalf("point[0] type: got=%T", pointsRaw[0])
	}
	if first["id"] != s.pointID(videoID, 0) {
		t.Fatalf("point id mismatch: got=%v", first["id"])
	}
	payload, ok := first["payload"].(map[string]any)
	if !ok {
		t.Fatalf("payload type: got=%T", first["payload"])
	}
	if payload[payloadVideoIDKey] != videoID.String() {
		t.Fatalf("payload video id: want=%q got=%v", videoID.String(), payload[payloadVideoIDKey])
	}
	if offset, ok := payload[payloadFrameOffsetKey].(float64); !ok || offset != 0 {
		t.Fatalf("payload frame offset: got=%v", payload[payloadFrameOffsetKey])
	}
}

func TestVectorStoreSearchCollapsesFramesToBestScorePerVideo(t *testing.T) {
	videoA := uuid.MustParse("11111111-1111-4111-8111-111111111111")
	videoB := uuid.MustParse("22222222-2222-4222-8222-222222222222")

	s := newTestVectorStore(t, func(r *http.Request) (*http.Response, error) {
		if r.URL.Path != "/collections/clipiq_videos/points/search" {
			t.Fatalf("path: want=%q got=%q", "/collections/clipiq_videos/points/search", r.URL.Path)
		}
		return okResponse(t, []map[string]any{
			{
				"id":      "frame-a-0",
				"score":   0.72,
				"payload": map[string]any{payloadVideoIDKey: videoA.String(), payloadFrameOffsetKey: 0},
			},
			{
				"id":      "frame-a-5",
				"score":   0.91,
				"payload": map[string]any{payloadVideoIDKey: videoA.String(), payloadFrameOffsetKey: 5},
			},
			{
				"id":      "frame-b-0",
				"score":   0.80,
				"payload": map[string]any{payloadVideoIDKey: videoB.String(), payloadFrameOffsetKey: 0},
			},
		}), nil
	})

	matches, err := s.SearchVideos(context.Background(), []float32{1, 2, 3}, 5, nil)
	if err != nil {
		t.Fatalf("SearchVideos: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("matches length: want=2 got=%d", len(matches))
	}
	if matches[0].VideoID != videoA || matches[0].Score != 0.91 {
		t.Fatalf("best match: want=(%s, 0.91) got=(%s, %v)", videoA, matches[0].VideoID, matches[0].Score)
	}
	if matches[1].VideoID != videoB || matches[1].Score != 0.80 {
		t.Fatalf("second match: want=(%s, 0.80) got=(%s, %v)", videoB, matches[1].VideoID, matches[1].Score)
	}
}

func TestVectorStoreSearchExcludeFilter(t *testing.T) {
	excluded := uuid.MustParse("33333333-3333-4333-8333-333333333333")

	var captured map[string]any
	s := newTestVectorStore(t, func(r *http.Request) (*http.Response, error) {
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		return okResponse(t, []map[string]any{}), nil
	})

	_, err := s.SearchVideos(context.Background(), []float32{1, 2, 3}, 5, []uuid.UUID{excluded})
	if err != nil {
		t.Fatalf("SearchVideos: %v", err)
	}

	filter, ok := captured["filter"].(map[string]any)
	if !ok {
		t.Fatalf("filter type: got=%T", captured["filter"])
	}
	mustNot, ok := filter["must_not"].([]any)
	if !ok {
		t.Fatalf("must_not type: got=%T", filter["must_not"])
	}
	if len(mustNot) != 1 {
		t.Fatalf("must_not length: want=1 got=%d", len(mustNot))
	}
	cond, ok := mustNot[0].(map[string]any)
	if !ok {
		t.Fatalf("condition type: got=%T", mustNot[0])
	}
	if cond["key"] != payloadVideoIDKey {
		t.Fatalf("condition key: want=%q got=%v", payloadVideoIDKey, cond["key"])
	}
	match, ok := cond["match"].(map[string]any)
	if !ok || match["value"] != excluded.String() {
		t.Fatalf("condition match: got=%v", cond["match"])
	}
}

func TestVectorStoreSearchDimensionMismatch(t *testing.T) {
	s := newTestVectorStore(t, func(r *http.Request) (*http.Response, error) {
		t.Fatalf("unexpected request: %s %s", r.Method, r.URL.Path)
		return nil, nil
	})

	_, err := s.SearchVideos(context.Background(), []float32{1, 2}, 5, nil)
	if err == nil {
		t.Fatalf("SearchVideos: expected error, got nil")
	}
	var opErr *OperationError
	if !errors.As(err, &opErr) {
		t.Fatalf("expected OperationError, got=%T", err)
	}
	if opErr.Code != OperationErrorValidation {
		t.Fatalf("error code: want=%q got=%q", OperationErrorValidation, opErr.Code)
	}
}

func TestVectorStoreRetrieveVideoVectorsScrollsAllPages(t *testing.T) {
	videoID := uuid.MustParse("44444444-4444-4444-8444-444444444444")

	calls := 0
	s := newTestVectorStore(t, func(r *http.Request) (*http.Response, error) {
		if r.URL.Path != "/collections/clipiq_videos/points/scroll" {
			t.Fatalf("path: want=%q got=%q", "/collections/clipiq_videos/points/scroll", r.URL.Path)
		}
		calls++
		if calls == 1 {
			return okResponse(t, map[string]any{
				"points": []map[string]any{
					{"id": "p1", "vector": []float32{1, 0, 0}},
					{"id": "p2", "vector": []float32{0, 1, 0}},
				},
				"next_page_offset": "p2",
			}), nil
		}
		return okResponse(t, map[string]any{
			"points": []map[string]any{
				{"id": "p3", "vector": []float32{0, 0, 1}},
			},
			"next_page_offset": nil,
		}), nil
	})

	vectors, err := s.RetrieveVideoVectors(context.Background(), videoID)
	if err != nil {
		t.Fatalf("RetrieveVideoVectors: %v", err)
	}
	if calls != 2 {
		t.Fatalf("scroll calls: want=2 got=%d", calls)
	}
	if len(vectors) != 3 {
		t.Fatalf("vectors length: want=3 got=%d", len(vectors))
	}
}

func TestVectorStoreRetrieveVideoVectorsReadsLargePage(t *testing.T) {
	videoID := uuid.MustParse("66666666-6666-4666-8666-666666666666")

	// A full 256-point scroll page serializes to well over 10KB; the whole
	// body must be decoded, not a truncated prefix.
	points := make([]map[string]any, 0, 256)
	for i := 0; i < 256; i++ {
		points = append(points, map[string]any{
			"id":     fmt.Sprintf("p%d", i),
			"vector": []float32{float32(i), float32(i) + 0.25, float32(i) + 0.5},
		})
	}
	s := newTestVectorStore(t, func(r *http.Request) (*http.Response, error) {
		return okResponse(t, map[string]any{
			"points":           points,
			"next_page_offset": nil,
		}), nil
	})

	vectors, err := s.RetrieveVideoVectors(context.Background(), videoID)
	if err != nil {
		t.Fatalf("RetrieveVideoVectors: %v", err)
	}
	if len(vectors) != 256 {
		t.Fatalf("vectors length: want=256 got=%d", len(vectors))
	}
	if vectors[255][0] != 255 {
		t.Fatalf("last vector: got=%v", vectors[255])
	}
}

func TestVectorStoreEuclidScoreNormalization(t *testing.T) {
	videoID := uuid.MustParse("55555555-5555-4555-8555-555555555555")

	s := newTestVectorStore(t, func(r *http.Request) (*http.Response, error) {
		return okResponse(t, []map[string]any{
			{
				"id":      "frame-0",
				"score":   1.0,
				"payload": map[string]any{payloadVideoIDKey: videoID.String()},
			},
		}), nil
	})
	s.distance = "euclid"

	matches, err := s.SearchVideos(context.Background(), []float32{1, 2, 3}, 1, nil)
	if err != nil {
		t.Fatalf("SearchVideos: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("matches length: want=1 got=%d", len(matches))
	}
	if matches[0].Score != 0.5 {
		t.Fatalf("normalized score: want=0.5 got=%v", matches[0].Score)
	}
}

func TestClassifyHTTPCallErrorTimeout(t *testing.T) {
	err := classifyHTTPCallError("search", "timeout", context.DeadlineExceeded)
	var opErr *OperationError
	if !errors.As(err, &opErr) {
		t.Fatalf("expected OperationError, got=%T", err)
	}
	if opErr.Code != OperationErrorTimeout {
		t.Fatalf("error code: want=%q got=%q", OperationErrorTimeout, opErr.Code)
	}
}

func TestClassifyHTTPCallErrorTransport(t *testing.T) {
	err := classifyHTTPCallError("search", "transport", fmt.Errorf("boom"))
	var opErr *OperationError
	if !errors.As(err, &opErr) {
		t.Fatalf("expected OperationError, got=%T", err)
	}
	if opErr.Code != OperationErrorTransportFailed {
		t.Fatalf("error code: want=%q got=%q", OperationErrorTransportFailed, opErr.Code)
	}
}

func newTestVectorStore(t *testing.T, roundTrip func(*http.Request) (*http.Response, error)) *vectorStore {
	t.Helper()
	client := &http.Client{
		Transport: roundTripFunc(roundTrip),
	}
	return &vectorStore{
		log:      newTestLogger(t),
		cfg:      Config{Collection: "clipiq_videos", VectorDim: 3},
		baseURL:  "http://qdrant.local",
		http:     client,
		distance: "cosine",
	}
}

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

func okResponse(t *testing.T, result any) *http.Response {
	t.Helper()
	payload := map[string]any{
		"result": result,
		"status": "ok",
		"time":   0.001,
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal response: %v", err)
	}
	return &http.Response{
		StatusCode: http.StatusOK,
		Header:     make(http.Header),
		Body:       io.NopCloser(bytes.NewReader(raw)),
	}
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}
