package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"conectabio/internal/api/middleware"
	"conectabio/internal/database"
	"conectabio/internal/layout"
)

// CardHandler 负责卡片的增删改。
type CardHandler struct {
	db       *gorm.DB
	logger   *slog.Logger
	maxCards int
}

// NewCardHandler 构造 CardHandler。
func NewCardHandler(db *gorm.DB, logger *slog.Logger, maxCards int) *CardHandler {
	return &CardHandler{
		db:       db,
		logger:   logger,
		maxCards: maxCards,
	}
}

var errInvalidCardID = errors.New("invalid card id")

type createCardRequest struct {
	Type            string   `json:"type" binding:"required"`
	Title           *string  `json:"title"`
	Content         *string  `json:"content"`
	Link            *string  `json:"link"`
	BackgroundImage *string  `json:"background_image"`
	BackgroundColor *string  `json:"background_color"`
	TextColor       *string  `json:"text_color"`
	Price           *float64 `json:"price"`
	PaymentLink     *string  `json:"payment_link"`
}

type updateCardRequest struct {
	Title           *string  `json:"title"`
	Content         *string  `json:"content"`
	Link            *string  `json:"link"`
	BackgroundImage *string  `json:"background_image"`
	BackgroundColor *string  `json:"background_color"`
	TextColor       *string  `json:"text_color"`
	Price           *float64 `json:"price"`
	PaymentLink     *string  `json:"payment_link"`
}

type cardResponse struct {
	ID                  uint           `json:"id"`
	Type                string         `json:"type"`
	Title               string         `json:"title"`
	Content             string         `json:"content,omitempty"`
	Link                string         `json:"link,omitempty"`
	BackgroundImage     string         `json:"background_image,omitempty"`
	BackgroundColor     *string        `json:"background_color,omitempty"`
	TextColor           *string        `json:"text_color,omitempty"`
	Price               *float64       `json:"price,omitempty"`
	PaymentLink         *string        `json:"payment_link,omitempty"`
	ObscurationSettings datatypes.JSON `json:"obscuration_settings,omitempty"`
	ProcessedFilePath   *string        `json:"processed_file_path,omitempty"`
	CreatedAt           time.Time      `json:"created_at"`
	UpdatedAt           time.Time      `json:"updated_at"`
}

// CreateCard 新建卡片，未提供的字段按类型补默认值。
func (h *CardHandler) CreateCard(c *gin.Context) {
	var req createCardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	cardType, ok := layout.ParseCardType(req.Type)
	if !ok {
		BadRequest(c, "unknown card type")
		return
	}

	ctx := c.Request.Context()

	var count int64
	if err := h.db.WithContext(ctx).
		Model(&database.Card{}).
		Where("user_id = ?", userID).
		Count(&count).Error; err != nil {
		h.loggerFromContext(c).Error("count cards failed", slog.Any("error", err))
		Internal(c, "failed to create card")
		return
	}
	if h.maxCards > 0 && count >= int64(h.maxCards) {
		Forbidden(c, "card limit reached")
		return
	}

	card := database.Card{
		UserID: userID,
		Type:   string(cardType),
		Title:  cardType.DefaultTitle(),
	}
	if req.Title != nil {
		card.Title = *req.Title
	}
	if req.Content != nil {
		card.Content = *req.Content
	}
	if req.Link != nil {
		card.Link = *req.Link
	}
	if req.BackgroundImage != nil {
		card.BackgroundImage = *req.BackgroundImage
	}
	card.BackgroundColor = req.BackgroundColor
	card.TextColor = req.TextColor
	card.Price = req.Price
	card.PaymentLink = req.PaymentLink

	if err := h.db.WithContext(ctx).Create(&card).Error; err != nil {
		h.loggerFromContext(c).Error("create card failed", slog.Any("error", err))
		Internal(c, "failed to create card")
		return
	}

	c.JSON(http.StatusCreated, newCardResponse(card))
}

// UpdateCard 只更新请求中出现的字段。
func (h *CardHandler) UpdateCard(c *gin.Context) {
	var req updateCardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	card, err := getCardForUser(c.Request.Context(), h.db, c.Param("id"), userID)
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
		return
	}

	updates := map[string]any{}
	if req.Title != nil {
		updates["title"] = *req.Title
	}
	if req.Content != nil {
		updates["content"] = *req.Content
	}
	if req.Link != nil {
		updates["link"] = *req.Link
	}
	if req.BackgroundImage != nil {
		updates["background_image"] = *req.BackgroundImage
	}
	if req.BackgroundColor != nil {
		updates["background_color"] = *req.BackgroundColor
	}
	if req.TextColor != nil {
		updates["text_color"] = *req.TextColor
	}
	if req.Price != nil {
		updates["price"] = *req.Price
	}
	if req.PaymentLink != nil {
		updates["payment_link"] = *req.PaymentLink
	}

	ctx := c.Request.Context()
	if len(updates) > 0 {
		if err := h.db.WithContext(ctx).Model(card).Updates(updates).Error; err != nil {
			h.loggerFromContext(c).Error("update card failed", slog.Any("error", err))
			Internal(c, "failed to update card")
			return
		}
		if err := h.db.WithContext(ctx).First(card, card.ID).Error; err != nil {
			h.loggerFromContext(c).Error("reload card failed", slog.Any("error", err))
			Internal(c, "failed to reload card")
			return
		}
	}

	c.JSON(http.StatusOK, newCardResponse(*card))
}

// DeleteCard 删除卡片，并在同一事务里从档案布局中摘除它的占位，
// 避免布局里残留指向已删卡片的条目。
func (h *CardHandler) DeleteCard(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	card, err := getCardForUser(c.Request.Context(), h.db, c.Param("id"), userID)
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
		return
	}

	ctx := c.Request.Context()
	if err := h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&database.Card{}, card.ID).Error; err != nil {
			return err
		}

		var profile database.Profile
		if err := tx.Where("user_id = ?", userID).First(&profile).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}
		if len(profile.Layout) == 0 {
			return nil
		}

		saved, err := layout.ParseLayout(profile.Layout)
		if err != nil {
			// 布局已损坏时不阻塞删除，留给下次归并收拾。
			return nil
		}
		pruned := layout.RemoveFromLayout(saved, card.ID)
		if len(pruned) == len(saved) {
			return nil
		}

		raw, err := layout.MarshalSavedLayout(pruned)
		if err != nil {
			return err
		}
		return tx.Model(&profile).Update("layout", datatypes.JSON(raw)).Error
	}); err != nil {
		h.loggerFromContext(c).Error("delete card failed", slog.Any("error", err))
		Internal(c, "failed to delete card")
		return
	}

	c.Status(http.StatusNoContent)
}

func parseCardID(idParam string) (uint, error) {
	cardID, err := strconv.ParseUint(idParam, 10, 64)
	if err != nil {
		return 0, errInvalidCardID
	}
	return uint(cardID), nil
}

func getCardForUser(ctx context.Context, db *gorm.DB, idParam string, userID uint) (*database.Card, error) {
	cardID, err := parseCardID(idParam)
	if err != nil {
		return nil, err
	}

	var card database.Card
	if err := db.WithContext(ctx).
		Where("id = ? AND user_id = ?", cardID, userID).
		First(&card).Error; err != nil {
		return nil, err
	}

	return &card, nil
}

func (h *CardHandler) loggerFromContext(c *gin.Context) *slog.Logger {
	if logger := middleware.LoggerFromContext(c); logger != nil {
		return logger
	}
	if h.logger != nil {
		return h.logger
	}
	return slog.Default()
}

func newCardResponse(card database.Card) cardResponse {
	return cardResponse{
		ID:                  card.ID,
		Type:                card.Type,
		Title:               card.Title,
		Content:             card.Content,
		Link:                card.Link,
		BackgroundImage:     card.BackgroundImage,
		BackgroundColor:     card.BackgroundColor,
		TextColor:           card.TextColor,
		Price:               card.Price,
		PaymentLink:         card.PaymentLink,
		ObscurationSettings: card.ObscurationSettings,
		ProcessedFilePath:   card.ProcessedFilePath,
		CreatedAt:           card.CreatedAt,
		UpdatedAt:           card.UpdatedAt,
	}
}

func userIDFromContext(c *gin.Context) (uint, bool) {
	value, exists := c.Get("userID")
	if !exists {
		return 0, false
	}

	switch v := value.(type) {
	case uint:
		return v, true
	case int:
		if v < 0 {
			return 0, false
		}
		return uint(v), true
	case uint64:
		return uint(v), true
	case int64:
		if v < 0 {
			return 0, false
		}
		return uint(v), true
	default:
		return 0, false
	}
}
