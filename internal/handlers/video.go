package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/clipiq/clipiq-backend/internal/logger"
	"github.com/clipiq/clipiq-backend/internal/services"
)

type VideoHandler struct {
	log      *logger.Logger
	videoSvc services.VideoService
}

func NewVideoHandler(log *logger.Logger, videoSvc services.VideoService) *VideoHandler {
	return &VideoHandler{
		log:      log.With("handler", "VideoHandler"),
		videoSvc: videoSvc,
	}
}

// DELETE /api/videos/:id
func (h *VideoHandler) RemoveVideo(c *gin.Context) {
	videoID, err := uuid.Parse(strings.TrimSpace(c.Param("id")))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_video_id", fmt.Errorf("video id must be a uuid"))
		return
	}

	if err := h.videoSvc.RemoveVideo(c.Request.Context(), videoID); err != nil {
		var ve *services.ValidationError
		if errors.As(err, &ve) {
			if ve.Code == services.ValidationCodeNotFound {
				RespondError(c, http.StatusNotFound, "video_not_found", err)
				return
			}
			RespondError(c, http.StatusBadRequest, "validation_failed", err)
			return
		}
		h.log.Error("remove video failed", "video_id", videoID.String(), "error", err)
		RespondError(c, http.StatusInternalServerError, "remove_failed", err)
		return
	}
	RespondOK(c, gin.H{"removed": videoID.String()})
}
