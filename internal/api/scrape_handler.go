package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"conectabio/internal/api/middleware"
	"conectabio/internal/scrape"
)

// ScrapeHandler 代理外站抓取，给前端的"从链接导入资料"功能用。
type ScrapeHandler struct {
	scraper *scrape.Scraper
	logger  *slog.Logger
}

// NewScrapeHandler 构造 ScrapeHandler。
func NewScrapeHandler(scraper *scrape.Scraper, logger *slog.Logger) *ScrapeHandler {
	return &ScrapeHandler{
		scraper: scraper,
		logger:  logger,
	}
}

type scrapeRequest struct {
	URL string `json:"url" binding:"required,url"`
}

// Scrape 抓取目标页面并返回能识别出的站点名称与头像地址。
func (h *ScrapeHandler) Scrape(c *gin.Context) {
	var req scrapeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	result, err := h.scraper.Scrape(c.Request.Context(), req.URL)
	if err != nil {
		if errors.Is(err, scrape.ErrNothingExtracted) {
			Error(c, http.StatusUnprocessableEntity, "nothing could be extracted from the page")
			return
		}
		h.loggerFromContext(c).Info("scrape failed",
			slog.String("url", req.URL),
			slog.Any("error", err),
		)
		BadRequest(c, "failed to fetch the page")
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *ScrapeHandler) loggerFromContext(c *gin.Context) *slog.Logger {
	if logger := middleware.LoggerFromContext(c); logger != nil {
		return logger
	}
	if h.logger != nil {
		return h.logger
	}
	return slog.Default()
}
