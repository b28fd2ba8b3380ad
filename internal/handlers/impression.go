package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/clipiq/clipiq-backend/internal/logger"
	"github.com/clipiq/clipiq-backend/internal/services"
)

type ImpressionHandler struct {
	log           *logger.Logger
	impressionSvc services.ImpressionService
}

func NewImpressionHandler(log *logger.Logger, impressionSvc services.ImpressionService) *ImpressionHandler {
	return &ImpressionHandler{
		log:           log.With("handler", "ImpressionHandler"),
		impressionSvc: impressionSvc,
	}
}

// POST /api/impressions
// { user_id, video_id, session_id, position, source, model_version, dwell_ms }
func (h *ImpressionHandler) RecordImpression(c *gin.Context) {
	var req struct {
		UserID       string `json:"user_id"`
		VideoID      string `json:"video_id"`
		SessionID    string `json:"session_id"`
		Position     int    `json:"position"`
		Source       string `json:"source"`
		ModelVersion string `json:"model_version"`
		DwellMS      int    `json:"dwell_ms"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", fmt.Errorf("invalid request body"))
		return
	}

	input := services.RecordImpressionInput{
		UserID:       optionalUUID(req.UserID),
		VideoID:      optionalUUID(req.VideoID),
		SessionID:    optionalUUID(req.SessionID),
		Position:     req.Position,
		Source:       req.Source,
		ModelVersion: req.ModelVersion,
		DwellMS:      req.DwellMS,
	}

	impression, err := h.impressionSvc.RecordImpression(c.Request.Context(), input)
	if err != nil {
		var ve *services.ValidationError
		if errors.As(err, &ve) {
			if ve.Code == services.ValidationCodeNotFound {
				RespondError(c, http.StatusNotFound, "video_not_found", err)
				return
			}
			RespondError(c, http.StatusBadRequest, "validation_failed", err)
			return
		}
		h.log.Error("record impression failed", "error", err)
		RespondError(c, http.StatusInternalServerError, "record_failed", err)
		return
	}
	RespondCreated(c, impression)
}

// POST /api/watch
// { user_id, video_id, watch_duration, completed, impression_id? }
func (h *ImpressionHandler) RecordWatch(c *gin.Context) {
	var req struct {
		UserID        string `json:"user_id"`
		VideoID       string `json:"video_id"`
		WatchDuration int    `json:"watch_duration"`
		Completed     bool   `json:"completed"`
		ImpressionID  string `json:"impression_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", fmt.Errorf("invalid request body"))
		return
	}

	var impressionID *uuid.UUID
	if strings.TrimSpace(req.ImpressionID) != "" {
		parsed, err := uuid.Parse(strings.TrimSpace(req.ImpressionID))
		if err != nil {
			RespondError(c, http.StatusBadRequest, "invalid_impression_id", fmt.Errorf("impression_id must be a uuid"))
			return
		}
		impressionID = &parsed
	}

	event, err := h.impressionSvc.RecordWatch(c.Request.Context(), services.RecordWatchInput{
		UserID:        optionalUUID(req.UserID),
		VideoID:       optionalUUID(req.VideoID),
		WatchDuration: req.WatchDuration,
		Completed:     req.Completed,
		ImpressionID:  impressionID,
	})
	if err != nil {
		if services.IsValidationError(err) {
			RespondError(c, http.StatusBadRequest, "validation_failed", err)
			return
		}
		h.log.Error("record watch failed", "error", err)
		RespondError(c, http.StatusInternalServerError, "record_failed", err)
		return
	}
	RespondCreated(c, event)
}

// GET /api/impressions?user_id=&limit=&offset=
func (h *ImpressionHandler) GetUserImpressions(c *gin.Context) {
	userID, err := uuid.Parse(strings.TrimSpace(c.Query("user_id")))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_user_id", fmt.Errorf("user_id must be a uuid"))
		return
	}
	limit := parseLimit(c.Query("limit"), 50)
	offset := 0
	if raw := strings.TrimSpace(c.Query("offset")); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			offset = parsed
		}
	}

	history, err := h.impressionSvc.UserImpressions(c.Request.Context(), userID, limit, offset)
	if err != nil {
		h.log.Error("impression history failed", "user_id", userID.String(), "error", err)
		RespondError(c, http.StatusInternalServerError, "history_failed", err)
		return
	}
	RespondOK(c, gin.H{"impressions": history, "count": len(history)})
}
