package elastic

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"testing"

	"github.com/clipiq/clipiq-backend/internal/logger"
)

func TestSearchOCRRequestShapeAndHitMapping(t *testing.T) {
	var captured map[string]any
	s := newTestOCRSearcher(t, func(r *http.Request) (*http.Response, error) {
		if r.Method != http.MethodPost {
			t.Fatalf("method: want=%s got=%s", http.MethodPost, r.Method)
		}
		if r.URL.Path != "/clipiq_ocr/_search" {
			t.Fatalf("path: want=%q got=%q", "/clipiq_ocr/_search", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		return esResponse(t, []map[string]any{
			{
				"_id":     "clip_abc_12",
				"_score":  4.2,
				"_source": map[string]any{"video_name": "clip_abc", "frame_offset": 12},
			},
			{
				"_id":     "clip_def_0",
				"_score":  1.1,
				"_source": map[string]any{"video_name": "clip_def", "frame_offset": 0},
			},
		}), nil
	})

	hits, err := s.SearchOCR(context.Background(), "running dog", 10)
	if err != nil {
		t.Fatalf("SearchOCR: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("hits length: want=2 got=%d", len(hits))
	}
	if hits[0].DerivedID != "clip_abc_12" || hits[0].VideoName != "clip_abc" || hits[0].Score != 4.2 {
		t.Fatalf("hit[0] mismatch: got=%+v", hits[0])
	}
	if hits[1].FrameOffset != 0 {
		t.Fatalf("hit[1] frame offset: want=0 got=%d", hits[1].FrameOffset)
	}

	query, ok := captured["query"].(map[string]any)
	if !ok {
		t.Fatalf("query type: got=%T", captured["query"])
	}
	match, ok := query["match"].(map[string]any)
	if !ok {
		t.Fatalf("match type: got=%T", query["match"])
	}
	if match["ocr_text"] != "running dog" {
		t.Fatalf("match text: want=%q got=%v", "running dog", match["ocr_text"])
	}
	if size, ok := captured["size"].(float64); !ok || size != 10 {
		t.Fatalf("size: want=10 got=%v", captured["size"])
	}
}

func TestSearchOCRSkipsHitsWithoutVideoName(t *testing.T) {
	s := newTestOCRSearcher(t, func(r *http.Request) (*http.Response, error) {
		return esResponse(t, []map[string]any{
			{
				"_id":     "orphan_3",
				"_score":  2.0,
				"_source": map[string]any{"video_name": "", "frame_offset": 3},
			},
			{
				"_id":     "clip_ok_1",
				"_score":  1.0,
				"_source": map[string]any{"video_name": "clip_ok", "frame_offset": 1},
			},
		}), nil
	})

	hits, err := s.SearchOCR(context.Background(), "text", 5)
	if err != nil {
		t.Fatalf("SearchOCR: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("hits length: want=1 got=%d", len(hits))
	}
	if hits[0].VideoName != "clip_ok" {
		t.Fatalf("video name: want=%q got=%q", "clip_ok", hits[0].VideoName)
	}
}

func TestSearchOCREmptyQueryShortCircuits(t *testing.T) {
	s := newTestOCRSearcher(t, func(r *http.Request) (*http.Response, error) {
		t.Fatalf("unexpected request: %s %s", r.Method, r.URL.Path)
		return nil, nil
	})

	hits, err := s.SearchOCR(context.Background(), "   ", 5)
	if err != nil {
		t.Fatalf("SearchOCR: %v", err)
	}
	if len(hits) != 0 {
		t.Fatalf("hits length: want=0 got=%d", len(hits))
	}
}

func TestSearchOCRQueryFailedStatus(t *testing.T) {
	s := newTestOCRSearcher(t, func(r *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: http.StatusServiceUnavailable,
			Header:     make(http.Header),
			Body:       io.NopCloser(bytes.NewReader([]byte(`{"error":"unavailable"}`))),
		}, nil
	})

	_, err := s.SearchOCR(context.Background(), "text", 5)
	if err == nil {
		t.Fatalf("SearchOCR: expected error, got nil")
	}
	var opErr *OperationError
	if !errors.As(err, &opErr) {
		t.Fatalf("expected OperationError, got=%T", err)
	}
	if opErr.Code != OperationErrorQueryFailed {
		t.Fatalf("error code: want=%q got=%q", OperationErrorQueryFailed, opErr.Code)
	}
	if opErr.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status: want=%d got=%d", http.StatusServiceUnavailable, opErr.StatusCode)
	}
}

func TestResolveConfigFromEnvDefaultsIndex(t *testing.T) {
	t.Setenv("ELASTIC_URL", "http://elasticsearch:9200")
	t.Setenv("ELASTIC_OCR_INDEX", "")

	cfg, err := ResolveConfigFromEnv()
	if err != nil {
		t.Fatalf("ResolveConfigFromEnv: %v", err)
	}
	if cfg.OCRIndex != "clipiq_ocr" {
		t.Fatalf("OCRIndex: want=%q got=%q", "clipiq_ocr", cfg.OCRIndex)
	}
}

func TestResolveConfigFromEnvMissingURL(t *testing.T) {
	t.Setenv("ELASTIC_URL", "")

	_, err := ResolveConfigFromEnv()
	if err == nil {
		t.Fatalf("ResolveConfigFromEnv: expected error, got nil")
	}
	cfgErr, ok := err.(*ConfigError)
	if !ok {
		t.Fatalf("expected *ConfigError, got=%T", err)
	}
	if cfgErr.Code != ConfigErrorMissingURL {
		t.Fatalf("code: want=%q got=%q", ConfigErrorMissingURL, cfgErr.Code)
	}
}

func newTestOCRSearcher(t *testing.T, roundTrip func(*http.Request) (*http.Response, error)) *ocrSearcher {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	t.Cleanup(func() {
		log.Sync()
	})
	return &ocrSearcher{
		log:     log,
		cfg:     Config{URL: "http://elastic.local", OCRIndex: "clipiq_ocr"},
		baseURL: "http://elastic.local",
		http: &http.Client{
			Transport: roundTripFunc(roundTrip),
		},
	}
}

func esResponse(t *testing.T, hits []map[string]any) *http.Response {
	t.Helper()
	payload := map[string]any{
		"hits": map[string]any{
			"hits": hits,
		},
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
