package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/clipiq/clipiq-backend/internal/logger"
	"github.com/clipiq/clipiq-backend/internal/services"
)

type StatsHandler struct {
	log           *logger.Logger
	engagementSvc services.EngagementService
}

func NewStatsHandler(log *logger.Logger, engagementSvc services.EngagementService) *StatsHandler {
	return &StatsHandler{
		log:           log.With("handler", "StatsHandler"),
		engagementSvc: engagementSvc,
	}
}

// GET /api/videos/:id/stats?window_days=
func (h *StatsHandler) GetVideoStats(c *gin.Context) {
	videoID, err := uuid.Parse(strings.TrimSpace(c.Param("id")))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_video_id", fmt.Errorf("video id must be a uuid"))
		return
	}

	windowDays := 0
	if raw := strings.TrimSpace(c.Query("window_days")); raw != "" {
		windowDays, err = strconv.Atoi(raw)
		if err != nil || windowDays <= 0 {
			RespondError(c, http.StatusBadRequest, "invalid_window_days", fmt.Errorf("window_days must be a positive integer"))
			return
		}
	}

	stat, err := h.engagementSvc.GetVideoStats(c.Request.Context(), videoID, windowDays)
	if err != nil {
		if services.IsValidationError(err) {
			RespondError(c, http.StatusBadRequest, "validation_failed", err)
			return
		}
		h.log.Error("video stats failed", "video_id", videoID.String(), "error", err)
		RespondError(c, http.StatusInternalServerError, "stats_failed", err)
		return
	}
	RespondOK(c, stat)
}

// GET /api/videos/trending?limit=
func (h *StatsHandler) GetTrendingVideos(c *gin.Context) {
	limit := parseLimit(c.Query("limit"), defaultFeedLimit)

	trending, err := h.engagementSvc.TrendingVideos(c.Request.Context(), limit)
	if err != nil {
		h.log.Error("trending videos failed", "error", err)
		RespondError(c, http.StatusInternalServerError, "trending_failed", err)
		return
	}
	RespondOK(c, gin.H{"videos": trending, "count": len(trending)})
}
