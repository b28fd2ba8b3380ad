package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/clipiq/clipiq-backend/internal/logger"
	"github.com/clipiq/clipiq-backend/internal/services"
)

const defaultFeedLimit = 20

type FeedHandler struct {
	log     *logger.Logger
	feedSvc services.FeedService
}

func NewFeedHandler(log *logger.Logger, feedSvc services.FeedService) *FeedHandler {
	return &FeedHandler{
		log:     log.With("handler", "FeedHandler"),
		feedSvc: feedSvc,
	}
}

// GET /api/feed/personal?user_id=&session_id=&limit=
func (h *FeedHandler) GetPersonalFeed(c *gin.Context) {
	userID, err := uuid.Parse(strings.TrimSpace(c.Query("user_id")))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_user_id", fmt.Errorf("user_id must be a uuid"))
		return
	}
	sessionID, err := uuid.Parse(strings.TrimSpace(c.Query("session_id")))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_session_id", fmt.Errorf("session_id must be a uuid"))
		return
	}
	limit := parseLimit(c.Query("limit"), defaultFeedLimit)

	items, err := h.feedSvc.ComposePersonalFeed(c.Request.Context(), userID, sessionID, limit)
	if err != nil {
		if services.IsValidationError(err) {
			RespondError(c, http.StatusBadRequest, "validation_failed", err)
			return
		}
		h.log.Error("personal feed failed", "user_id", userID.String(), "error", err)
		RespondError(c, http.StatusInternalServerError, "feed_failed", err)
		return
	}
	RespondOK(c, gin.H{"items": items, "count": len(items)})
}

// GET /api/feed/trending?limit=[&user_id=&session_id=]
// user_id/session_id are optional; without them the page is anonymous and
// no impressions are recorded.
func (h *FeedHandler) GetTrendingFeed(c *gin.Context) {
	userID := optionalUUID(c.Query("user_id"))
	sessionID := optionalUUID(c.Query("session_id"))
	limit := parseLimit(c.Query("limit"), defaultFeedLimit)

	items, err := h.feedSvc.ComposeTrendingFeed(c.Request.Context(), userID, sessionID, limit)
	if err != nil {
		h.log.Error("trending feed failed", "error", err)
		RespondError(c, http.StatusInternalServerError, "feed_failed", err)
		return
	}
	RespondOK(c, gin.H{"items": items, "count": len(items)})
}

func optionalUUID(raw string) uuid.UUID {
	parsed, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return uuid.Nil
	}
	return parsed
}
