package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/clipiq/clipiq-backend/internal/logger"
)

const (
	payloadVideoIDKey     = "video_id"
	payloadFrameOffsetKey = "frame_offset"
	maxErrorBodyBytes     = 1024
)

var pointIDNamespaceUUID = uuid.MustParse("7d3b9c4a-16e2-4c8f-9d5a-0b6f2e8a1c33")

// VideoMatch is one video-level semantic hit. Points in the collection are
// frame embeddings; a match carries the best frame score for the video.
type VideoMatch struct {
	VideoID uuid.UUID
	Score   float64
}

// FrameVector is one frame embedding keyed by its offset within the video.
type FrameVector struct {
	Offset int
	Values []float32
}

// VectorStore is the video embedding index. Search collapses frame-level
// hits to video level before returning.
type VectorStore interface {
	SearchVideos(ctx context.Context, query []float32, topK int, excludeIDs []uuid.UUID) ([]VideoMatch, error)
	RetrieveVideoVectors(ctx context.Context, videoID uuid.UUID) ([][]float32, error)
	UpsertVideoVectors(ctx context.Context, videoID uuid.UUID, frames []FrameVector) error
	DeleteVideoVectors(ctx context.Context, videoID uuid.UUID) error
}

type vectorStore struct {
	log      *logger.Logger
	cfg      Config
	baseURL  string
	distance string
	http     *http.Client
}

type qdrantEnvelope struct {
	Result json.RawMessage `json:"result"`
	Status json.RawMessage `json:"status"`
	Time   float64         `json:"time"`
}

type qdrantSearchResultItem struct {
	ID      json.RawMessage `json:"id"`
	Score   float64         `json:"score"`
	Payload map[string]any  `json:"payload"`
	Vector  []float32       `json:"vector"`
}

func NewVectorStore(log *logger.Logger, cfg Config) (VectorStore, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if err := ValidateConfig(cfg, true); err != nil {
		return nil, err
	}

	s := &vectorStore{
		log:     log.With("service", "QdrantVectorStore"),
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
		"Qdrant vector store ready",
		"url", s.baseURL,
		"collection", cfg.Collection,
		"vector_dim", cfg.VectorDim,
		"distance", s.distance,
	)
	return s, nil
}

func (s *vectorStore) SearchVideos(ctx context.Context, query []float32, topK int, excludeIDs []uuid.UUID) ([]VideoMatch, error) {
	if s == nil {
		return nil, fmt.Errorf("vector store unavailable")
	}
	const op = "search"
	if len(query) == 0 {
		return nil, opErr(op, OperationErrorValidation, "query vector required", nil)
	}
	if s.cfg.VectorDim > 0 && len(query) != s.cfg.VectorDim {
		return nil, opErr(
			op,
			OperationErrorValidation,
			fmt.Sprintf("query vector dimension mismatch: expected=%d got=%d", s.cfg.VectorDim, len(query)),
			nil,
		)
	}
	if topK <= 0 {
		topK = 10
	}

	req := map[string]any{
		// Overfetch frames so collapsing to one score per video still fills topK.
		"vector":       query,
		"limit":        topK * 4,
		"with_payload": true,
		"with_vector":  false,
	}
	if filter := excludeFilter(excludeIDs); filter != nil {
		req["filter"] = filter
	}

	var rawResults []qdrantSearchResultItem
	if err := s.doJSON(
		ctx,
		op,
		http.MethodPost,
		s.collectionPath("/points/search"),
		req,
		&rawResults,
	); err != nil {
		return nil, err
	}

	best := make(map[uuid.UUID]float64, len(rawResults))
	for _, item := range rawResults {
		videoID, ok := extractVideoID(item.Payload)
		if !ok {
			continue
		}
		score := s.normalizeScore(item.Score)
		if existing, seen := best[videoID]; !seen || score > existing {
			best[videoID] = score
		}
	}

	out := make([]VideoMatch, 0, len(best))
	for videoID, score := range best {
		out = append(out, VideoMatch{VideoID: videoID, Score: score})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score == out[j].Score {
			return out[i].VideoID.String() < out[j].VideoID.String()
		}
		return out[i].Score > out[j].Score
	})
	if len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}

// RetrieveVideoVectors scrolls every frame embedding stored for one video.
// The taste profile is pooled from these.
func (s *vectorStore) RetrieveVideoVectors(ctx context.Context, videoID uuid.UUID) ([][]float32, error) {
	if s == nil {
		return nil, fmt.Errorf("vector store unavailable")
	}
	const op = "retrieve"

	var vectors [][]float32
	var offset json.RawMessage
	for {
		req := map[string]any{
			"limit":        256,
			"with_payload": false,
			"with_vector":  true,
			"filter": map[string]any{
				"must": []any{matchCondition(payloadVideoIDKey, videoID.String())},
			},
		}
		if len(offset) > 0 && string(offset) != "null" {
			req["offset"] = offset
		}

		var page struct {
			Points         []qdrantSearchResultItem `json:"points"`
			NextPageOffset json.RawMessage          `json:"next_page_offset"`
		}
		if err := s.doJSON(
			ctx,
			op,
			http.MethodPost,
			s.collectionPath("/points/scroll"),
			req,
			&page,
		); err != nil {
			return nil, err
		}

		for _, point := range page.Points {
			if len(point.Vector) > 0 {
				vectors = append(vectors, point.Vector)
			}
		}
		if len(page.NextPageOffset) == 0 || string(page.NextPageOffset) == "null" {
			return vectors, nil
		}
		offset = page.NextPageOffset
	}
}

func (s *vectorStore) UpsertVideoVectors(ctx context.Context, videoID uuid.UUID, frames []FrameVector) error {
	if s == nil {
		return nil
	}
	const op = "upsert"
	if len(frames) == 0 {
		return nil
	}

	points := make([]map[string]any, 0, len(frames))
	for _, frame := range frames {
		if len(frame.Values) == 0 {
			return opErr(
				op,
				OperationErrorValidation,
				fmt.Sprintf("frame %d of video %s has empty values", frame.Offset, videoID),
				nil,
			)
		}
		if s.cfg.VectorDim > 0 && len(frame.Values) != s.cfg.VectorDim {
			return opErr(
				op,
				OperationErrorValidation,
				fmt.Sprintf(
					"frame %d of video %s dimension mismatch: expected=%d got=%d",
					frame.Offset,
					videoID,
					s.cfg.VectorDim,
					len(frame.Values),
				),
				nil,
			)
		}
		points = append(points, map[string]any{
			"id":     s.pointID(videoID, frame.Offset),
			"vector": frame.Values,
			"payload": map[string]any{
				payloadVideoIDKey:     videoID.String(),
				payloadFrameOffsetKey: frame.Offset,
			},
		})
	}

	req := map[string]any{"points": points}
	return s.doJSON(ctx, op, http.MethodPut, s.collectionPath("/points?wait=true"), req, nil)
}

func (s *vectorStore) DeleteVideoVectors(ctx context.Context, videoID uuid.UUID) error {
	if s == nil {
		return nil
	}
	const op = "delete"

	req := map[string]any{
		"filter": map[string]any{
			"must": []any{matchCondition(payloadVideoIDKey, videoID.String())},
		},
	}
	return s.doJSON(
		ctx,
		op,
		http.MethodPost,
		s.collectionPath("/points/delete?wait=true"),
		req,
		nil,
	)
}

func (s *vectorStore) verifyReady(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("qdrant vector store not initialized")
	}
	const op = "bootstrap_verify"

	readyReq, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/readyz", nil)
	if err != nil {
		return opErr(op, OperationErrorTransportFailed, "build ready request failed", err)
	}
	readyResp, err := s.http.Do(readyReq)
	if err != nil {
		return classifyHTTPCallError(op, "qdrant ready check failed", err)
	}
	_ = readyResp.Body.Close()
	if readyResp.StatusCode < 200 || readyResp.StatusCode >= 300 {
		return &OperationError{
			Code:       OperationErrorQueryFailed,
			Operation:  op,
			StatusCode: readyResp.StatusCode,
			Message:    fmt.Sprintf("qdrant ready check returned status=%d", readyResp.StatusCode),
		}
	}

	var result struct {
		Config struct {
			Params struct {
				Vectors struct {
					Size     int    `json:"size"`
					Distance string `json:"distance"`
				} `json:"vectors"`
			} `json:"params"`
		} `json:"config"`
	}
	if err := s.doJSON(
		ctx,
		op,
		http.MethodGet,
		s.collectionPath(""),
		nil,
		&result,
	); err != nil {
		return err
	}

	size := result.Config.Params.Vectors.Size
	if size != 0 && size != s.cfg.VectorDim {
		return &OperationError{
			Code:      OperationErrorValidation,
			Operation: op,
			Message: fmt.Sprintf(
				"qdrant collection %q vector size mismatch: expected=%d actual=%d",
				s.cfg.Collection,
				s.cfg.VectorDim,
				size,
			),
		}
	}
	s.distance = strings.TrimSpace(result.Config.Params.Vectors.Distance)
	return nil
}

func (s *vectorStore) doJSON(ctx context.Context, op, method, path string, in any, out any) error {
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
		return classifyHTTPCallError(op, "qdrant request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Only error bodies are capped; success bodies carry result pages of
		// arbitrary size and must be read in full.
		raw, readErr := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes+1))
		if readErr != nil {
			return opErr(op, OperationErrorDecodeFailed, "read response failed", readErr)
		}
		return &OperationError{
			Code:       OperationErrorQueryFailed,
			Operation:  op,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("qdrant http status=%d body=%q", resp.StatusCode, truncateBody(raw)),
		}
	}

	raw, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return opErr(op, OperationErrorDecodeFailed, "read response failed", readErr)
	}

	var envelope qdrantEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return opErr(op, OperationErrorDecodeFailed, "decode qdrant envelope failed", err)
	}
	if statusErr := parseEnvelopeStatus(envelope.Status); statusErr != "" {
		return &OperationError{
			Code:       OperationErrorQueryFailed,
			Operation:  op,
			StatusCode: resp.StatusCode,
			Message:    statusErr,
		}
	}

	if out == nil {
		return nil
	}
	if len(envelope.Result) == 0 || string(envelope.Result) == "null" {
		return nil
	}
	if err := json.Unmarshal(envelope.Result, out); err != nil {
		return opErr(op, OperationErrorDecodeFailed, "decode qdrant result failed", err)
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

func parseEnvelopeStatus(raw json.RawMessage) string {
	status := strings.TrimSpace(string(raw))
	if status == "" || status == "null" {
		return ""
	}

	var statusString string
	if err := json.Unmarshal(raw, &statusString); err == nil {
		if strings.EqualFold(statusString, "ok") {
			return ""
		}
		return fmt.Sprintf("qdrant status=%q", statusString)
	}

	var statusObject struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &statusObject); err == nil {
		if strings.TrimSpace(statusObject.Error) != "" {
			return strings.TrimSpace(statusObject.Error)
		}
	}

	return fmt.Sprintf("qdrant status=%s", status)
}

func truncateBody(raw []byte) string {
	if len(raw) <= maxErrorBodyBytes {
		return string(raw)
	}
	return string(raw[:maxErrorBodyBytes]) + "..."
}

func matchCondition(key string, value any) map[string]any {
	return map[string]any{
		"key":   key,
		"match": map[string]any{"value": value},
	}
}

func excludeFilter(excludeIDs []uuid.UUID) map[string]any {
	if len(excludeIDs) == 0 {
		return nil
	}
	mustNot := make([]any, 0, len(excludeIDs))
	for _, id := range excludeIDs {
		mustNot = append(mustNot, matchCondition(payloadVideoIDKey, id.String()))
	}
	return map[string]any{"must_not": mustNot}
}

func extractVideoID(payload map[string]any) (uuid.UUID, bool) {
	raw, ok := payload[payloadVideoIDKey].(string)
	if !ok {
		return uuid.Nil, false
	}
	parsed, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return uuid.Nil, false
	}
	return parsed, true
}

func (s *vectorStore) pointID(videoID uuid.UUID, frameOffset int) string {
	deterministic := uuid.NewSHA1(pointIDNamespaceUUID, []byte(fmt.Sprintf("%s|%d", videoID, frameOffset)))
	return deterministic.String()
}

func (s *vectorStore) collectionPath(suffix string) string {
	path := "/collections/" + s.cfg.Collection
	if strings.TrimSpace(suffix) == "" {
		return path
	}
	return path + suffix
}

func (s *vectorStore) normalizeScore(score float64) float64 {
	switch strings.ToLower(strings.TrimSpace(s.distance)) {
	case "euclid", "manhattan":
		if score < 0 {
			score = -score
		}
		return 1.0 / (1.0 + score)
	default:
		return score
	}
}
