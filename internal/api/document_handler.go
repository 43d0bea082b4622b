package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"conectabio/internal/api/middleware"
	"conectabio/internal/database"
	"conectabio/internal/layout"
	"conectabio/internal/obscure"
	"conectabio/internal/storage"
)

// DocumentHandler 处理文档卡片的上传遮挡与下载链接。
type DocumentHandler struct {
	db           *gorm.DB
	obscure      *obscure.Service
	storage      *storage.Client
	logger       *slog.Logger
	presignTTL   time.Duration
	maxDocumentB int64
}

// NewDocumentHandler 构造 DocumentHandler。
func NewDocumentHandler(db *gorm.DB, obscureService *obscure.Service, storageClient *storage.Client, logger *slog.Logger, presignTTL time.Duration, maxDocumentBytes int64) *DocumentHandler {
	return &DocumentHandler{
		db:           db,
		obscure:      obscureService,
		storage:      storageClient,
		logger:       logger,
		presignTTL:   presignTTL,
		maxDocumentB: maxDocumentBytes,
	}
}

type uploadDocumentRequest struct {
	Payload    string `json:"payload" binding:"required"`
	Percentage *int   `json:"percentage" binding:"required"`
}

// UploadDocument 接收 data URI 形式的 PDF，按比例生成预览后把两个对象键
// 与比例写回卡片。卡片必须归属调用者且类型为 document。
func (h *DocumentHandler) UploadDocument(c *gin.Context) {
	var req uploadDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	if h.maxDocumentB > 0 && int64(len(req.Payload)) > h.maxDocumentB {
		Error(c, http.StatusRequestEntityTooLarge, "document too large")
		return
	}

	ctx := c.Request.Context()
	logger := h.loggerFromContext(c)

	card, err := h.getCardForUser(c, c.Param("id"), userID)
	if err != nil {
		return
	}
	if card.Type != string(layout.CardDocument) {
		BadRequest(c, "card is not a document card")
		return
	}

	result, err := h.obscure.Process(ctx, userID, card.ID, req.Payload, *req.Percentage)
	if err != nil {
		switch {
		case errors.Is(err, obscure.ErrBadPayload),
			errors.Is(err, obscure.ErrBadPercentage),
			errors.Is(err, obscure.ErrEmptyPreview):
			BadRequest(c, err.Error())
		default:
			logger.Error("document obscuration failed",
				slog.Uint64("card_id", uint64(card.ID)),
				slog.Any("error", err),
			)
			Internal(c, "failed to process document")
		}
		return
	}

	settings, err := json.Marshal(map[string]int{"percentage": *req.Percentage})
	if err != nil {
		logger.Error("encode obscuration settings failed", slog.Any("error", err))
		Internal(c, "failed to process document")
		return
	}

	if err := h.db.WithContext(ctx).Model(card).Updates(map[string]any{
		"original_file_path":   result.OriginalKey,
		"processed_file_path":  result.ProcessedKey,
		"obscuration_settings": datatypes.JSON(settings),
	}).Error; err != nil {
		logger.Error("persist document keys failed",
			slog.Uint64("card_id", uint64(card.ID)),
			slog.Any("error", err),
		)
		Internal(c, "failed to persist document")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"original_key":  result.OriginalKey,
		"processed_key": result.ProcessedKey,
		"total_pages":   result.TotalPages,
		"preview_pages": result.PreviewPages,
	})
}

// GetPreviewLink 为预览件生成预签名链接，任何登录用户可取。
func (h *DocumentHandler) GetPreviewLink(c *gin.Context) {
	ctx := c.Request.Context()

	card, err := h.getDocumentCard(c, c.Param("id"))
	if err != nil {
		return
	}
	if card.ProcessedFilePath == nil || *card.ProcessedFilePath == "" {
		Conflict(c, "document preview not ready")
		return
	}

	signedURL, err := h.storage.GeneratePresignedURL(ctx, *card.ProcessedFilePath, h.presignTTL)
	if err != nil {
		h.loggerFromContext(c).Error("presign preview failed", slog.Any("error", err))
		Internal(c, "failed to generate download link")
		return
	}

	c.JSON(http.StatusOK, gin.H{"url": signedURL})
}

// GetOriginalLink 为原件生成预签名链接，仅卡片所有者可取。
func (h *DocumentHandler) GetOriginalLink(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	ctx := c.Request.Context()

	card, err := h.getCardForUser(c, c.Param("id"), userID)
	if err != nil {
		return
	}
	if card.OriginalFilePath == nil || *card.OriginalFilePath == "" {
		Conflict(c, "document not uploaded")
		return
	}

	signedURL, err := h.storage.GeneratePresignedURL(ctx, *card.OriginalFilePath, h.presignTTL)
	if err != nil {
		h.loggerFromContext(c).Error("presign original failed", slog.Any("error", err))
		Internal(c, "failed to generate download link")
		return
	}

	c.JSON(http.StatusOK, gin.H{"url": signedURL})
}

func (h *DocumentHandler) getCardForUser(c *gin.Context, idParam string, userID uint) (*database.Card, error) {
	card, err := getCardForUser(c.Request.Context(), h.db, idParam, userID)
	if err != nil {
		switch {
		case errors.Is(err, errInvalidCardID):
			BadRequest(c, "invalid card id")
		case errors.Is(err, gorm.ErrRecordNotFound):
			NotFound(c, "card not found")
		default:
			h.loggerFromContext(c).Error("query card failed", slog.Any("error", err))
			Internal(c, "failed to query card")
		}
		return nil, err
	}
	return card, nil
}

func (h *DocumentHandler) getDocumentCard(c *gin.Context, idParam string) (*database.Card, error) {
	cardID, err := parseCardID(idParam)
	if err != nil {
		BadRequest(c, "invalid card id")
		return nil, err
	}

	var card database.Card
	if err := h.db.WithContext(c.Request.Context()).First(&card, cardID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, "card not found")
		} else {
			h.loggerFromContext(c).Error("query card failed", slog.Any("error", err))
			Internal(c, "failed to query card")
		}
		return nil, err
	}
	return &card, nil
}

func (h *DocumentHandler) loggerFromContext(c *gin.Context) *slog.Logger {
	if logger := middleware.LoggerFromContext(c); logger != nil {
		return logger
	}
	if h.logger != nil {
		return h.logger
	}
	return slog.Default()
}
