package elastic

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/clipiq/clipiq-backend/internal/logger"
)

const maxErrorBodyBytes = 1024

// OCRHit is one frame-level OCR match. VideoName is the storage key the
// indexer wrote, not a canonical video id; callers must resolve it before
// mixing OCR hits with other backends.
type OCRHit struct {
	DerivedID   string
	VideoName   string
	FrameOffset int
	Score       float64
}

// OCRSearcher queries the on-screen text index.
type OCRSearcher interface {
	SearchOCR(ctx context.Context, query string, topK int) ([]OCRHit, error)
}

type ocrSearcher struct {
	log     *logger.Logger
	cfg     Config
	baseURL string
	http    *http.Client
}

type esSearchResponse struct {
	Hits struct {
		Hits []struct {
			ID     string   `json:"_id"`
			Score  *float64 `json:"_score"`
			Source struct {
				VideoName   string `json:"video_name"`
				FrameOffset int    `json:"frame_offset"`
			} `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

func NewOCRSearcher(log *logger.Logger, cfg Config) (OCRSearcher, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}

	s := &ocrSearcher{
		log:     log.With("service", "ElasticOCRSearcher"),
		cfg:     cfg,
		baseURL: strings.TrimRight(cfg.URL, "/"),
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
	}

	if err := s.verifyReady(context.Background()); err != nil {
		return nil, err
	}

	log.Info(
		"Elastic OCR searcher ready",
		"url", s.baseURL,
		"index", cfg.OCRIndex,
	)
	return s, nil
}

func (s *ocrSearcher) SearchOCR(ctx context.Context, query string, topK int) ([]OCRHit, error) {
	if s == nil {
		return nil, fmt.Errorf("ocr searcher unavailable")
	}
	const op = "search"

	q := strings.TrimSpace(query)
	if q == "" {
		return []OCRHit{}, nil
	}
	if topK <= 0 {
		topK = 10
	}

	req := map[string]any{
		"size": topK,
		"query": map[string]any{
			"match": map[string]any{
				"ocr_text": q,
			},
		},
		"_source": []string{"video_name", "frame_offset"},
	}

	var resp esSearchResponse
	if err := s.doJSON(
		ctx,
		op,
		http.MethodPost,
		"/"+s.cfg.OCRIndex+"/_search",
		req,
		&resp,
	); err != nil {
		return nil, err
	}

	out := make([]OCRHit, 0, len(resp.Hits.Hits))
	for _, hit := range resp.Hits.Hits {
		name := strings.TrimSpace(hit.Source.VideoName)
		if name == "" {
			continue
		}
		score := 0.0
		if hit.Score != nil {
			score = *hit.Score
		}
		derivedID := strings.TrimSpace(hit.ID)
		if derivedID == "" {
			derivedID = fmt.Sprintf("%s_%d", name, hit.Source.FrameOffset)
		}
		out = append(out, OCRHit{
			DerivedID:   derivedID,
			VideoName:   name,
			FrameOffset: hit.Source.FrameOffset,
			Score:       score,
		})
	}
	return out, nil
}

func (s *ocrSearcher) verifyReady(ctx context.Context) error {
	const op = "bootstrap_verify"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/_cluster/health", nil)
	if err != nil {
		return opErr(op, OperationErrorTransportFailed, "build health request failed", err)
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return classifyHTTPCallError(op, "elastic health check failed", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &OperationError{
			Code:       OperationErrorQueryFailed,
			Operation:  op,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("elastic health check returned status=%d", resp.StatusCode),
		}
	}
	return nil
}

func (s *ocrSearcher) doJSON(ctx context.Context, op, method, path string, in any, out any) error {
	var body io.Reader
	if in != nil {
		var buf bytes.Buffer
		if err := json.NewEncoder(&buf).Encode(in); err != nil {
			return opErr(op, OperationErrorEncodeFailed, "encode request failed", err)
		}
		body = &buf
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, body)
	if err != nil {
		return opErr(op, OperationErrorTransportFailed, "build request failed", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return classifyHTTPCallError(op, "elastic request failed", err)
	}
	defer resp.Body.Close()

	raw, readErr := io.ReadAll(io.LimitReader(resp.Body, 10*maxErrorBodyBytes))
	if readErr != nil {
		return opErr(op, OperationErrorDecodeFailed, "read response failed", readErr)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &OperationError{
			Code:       OperationErrorQueryFailed,
			Operation:  op,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("elastic http status=%d body=%q", resp.StatusCode, truncateBody(raw)),
		}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return opErr(op, OperationErrorDecodeFailed, "decode elastic response failed", err)
	}
	return nil
}

func classifyHTTPCallError(op, message string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return opErr(op, OperationErrorTimeout, message, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return opErr(op, OperationErrorTimeout, message, err)
	}
	return opErr(op, OperationErrorTransportFailed, message, err)
}

func truncateBody(raw []byte) string {
	if len(raw) <= maxErrorBodyBytes {
		return string(raw)
	}
	return string(raw[:maxErrorBodyBytes]) + "..."
}
