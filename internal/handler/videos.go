package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"reelstream/internal/catalog"
	"reelstream/internal/config"
)

// VideosHandler serves the catalog listing.
type VideosHandler struct {
	store        *catalog.Store
	defaultLimit int
	maxLimit     int
	logger       *slog.Logger
}

// NewVideosHandler creates a VideosHandler.
func NewVideosHandler(store *catalog.Store, cfg *config.Config, logger *slog.Logger) *VideosHandler {
	return &VideosHandler{
		store:        store,
		defaultLimit: cfg.Catalog.DefaultLimit,
		maxLimit:     cfg.Catalog.MaxLimit,
		logger:       logger.With("component", "videos_handler"),
	}
}

// List serves GET /videos?page=&limit=.
func (h *VideosHandler) List(c echo.Context) error {
	page, err := positiveParam(c.QueryParam("page"), 1)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "page must be a positive integer",
		})
	}
	limit, err := positiveParam(c.QueryParam("limit"), h.defaultLimit)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "limit must be a positive integer",
		})
	}
	if h.maxLimit > 0 && limit > h.maxLimit {
		limit = h.maxLimit
	}

	videos, err := h.store.List(c.Request().Context(), page, limit)
	if err != nil {
		h.logger.Error("list videos", "err", err, "page", page, "limit", limit)
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": "failed to fetch videos",
		})
	}
	return c.JSON(http.StatusOK, videos)
}

// Get serves GET /videos/:id.
func (h *VideosHandler) Get(c echo.Context) error {
	id := c.Param("id")
	video, err := h.store.Get(c.Request().Context(), id)
	if errors.Is(err, catalog.ErrNotFound) {
		return c.JSON(http.StatusNotFound, map[string]string{
			"error": "video not found",
		})
	}
	if err != nil {
		h.logger.Error("get video", "err", err, "id", id)
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": "failed to fetch video",
		})
	}
	return c.JSON(http.StatusOK, video)
}

// positiveParam parses raw as an integer >= 1, returning def when raw is empty.
func positiveParam(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, err
	}
	if v < 1 {
		return 0, strconv.ErrRange
	}
	return v, nil
}
