package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/clipiq/clipiq-backend/internal/logger"
	"github.com/clipiq/clipiq-backend/internal/services"
)

const defaultSearchLimit = 20

type SearchHandler struct {
	log       *logger.Logger
	searchSvc services.SearchService
}

func NewSearchHandler(log *logger.Logger, searchSvc services.SearchService) *SearchHandler {
	return &SearchHandler{
		log:       log.With("handler", "SearchHandler"),
		searchSvc: searchSvc,
	}
}

// GET /api/search?q=&limit=
// Best-effort: degraded backends shrink the list, they never 500.
func (h *SearchHandler) Search(c *gin.Context) {
	query := strings.TrimSpace(c.Query("q"))
	if query == "" {
		RespondError(c, http.StatusBadRequest, "missing_query", fmt.Errorf("q is required"))
		return
	}
	limit := parseLimit(c.Query("limit"), defaultSearchLimit)

	results, err := h.searchSvc.SearchVideos(c.Request.Context(), query, limit)
	if err != nil {
		h.log.Error("search failed", "error", err)
		RespondError(c, http.StatusInternalServerError, "search_failed", err)
		return
	}
	RespondOK(c, gin.H{"results": results, "count": len(results)})
}

func parseLimit(raw string, fallback int) int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return fallback
	}
	if limit > 100 {
		return 100
	}
	return limit
}
