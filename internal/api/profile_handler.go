package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"conectabio/internal/api/middleware"
	"conectabio/internal/database"
	"conectabio/internal/layout"
	"conectabio/internal/tasks"
)

// ProfileHandler 负责当前用户档案与公开主页的读取和保存。
type ProfileHandler struct {
	db          *gorm.DB
	asynqClient *asynq.Client
	logger      *slog.Logger
}

// NewProfileHandler 构造 ProfileHandler。
func NewProfileHandler(db *gorm.DB, asynqClient *asynq.Client, logger *slog.Logger) *ProfileHandler {
	return &ProfileHandler{
		db:          db,
		asynqClient: asynqClient,
		logger:      logger,
	}
}

type profileResponse struct {
	Username    string             `json:"username"`
	DisplayName string             `json:"display_name"`
	Bio         string             `json:"bio"`
	AvatarKey   string             `json:"avatar_key,omitempty"`
	SnapshotKey string             `json:"snapshot_key,omitempty"`
	Role        string             `json:"role"`
	Cards       []cardResponse     `json:"cards"`
	Layout      []layout.Placement `json:"layout"`
}

type updateProfileRequest struct {
	DisplayName *string         `json:"display_name"`
	Bio         *string         `json:"bio"`
	AvatarKey   *string         `json:"avatar_key"`
	Layout      json.RawMessage `json:"layout"`
}

// GetMyProfile 返回当前用户的档案、卡片集与归并后的布局。
// 档案与卡片并行加载；卡片查询失败时降级为空集，不挡住档案本身。
func (h *ProfileHandler) GetMyProfile(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	ctx := c.Request.Context()
	logger := h.loggerFromContext(c)

	var profile database.Profile
	var cards []database.Card

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return h.db.WithContext(gctx).Where("user_id = ?", userID).First(&profile).Error
	})
	g.Go(func() error {
		if err := h.db.WithContext(gctx).
			Where("user_id = ?", userID).
			Order("created_at ASC").
			Find(&cards).Error; err != nil {
			logger.Warn("card fetch degraded to empty set", slog.Any("error", err))
			cards = nil
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, "profile not found")
			return
		}
		logger.Error("load profile failed", slog.Any("error", err))
		Internal(c, "failed to load profile")
		return
	}

	c.JSON(http.StatusOK, h.newProfileResponse(profile, cards))
}

// UpdateMyProfile 保存展示名、简介与布局，成功后入队主页快照任务。
func (h *ProfileHandler) UpdateMyProfile(c *gin.Context) {
	var req updateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	ctx := c.Request.Context()
	logger := h.loggerFromContext(c)

	var profile database.Profile
	if err := h.db.WithContext(ctx).Where("user_id = ?", userID).First(&profile).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, "profile not found")
			return
		}
		logger.Error("load profile failed", slog.Any("error", err))
		Internal(c, "failed to load profile")
		return
	}

	updates := map[string]any{}
	if req.DisplayName != nil {
		updates["display_name"] = *req.DisplayName
	}
	if req.Bio != nil {
		updates["bio"] = *req.Bio
	}
	if req.AvatarKey != nil {
		// 头像引用的对象键必须落在本人的资产前缀下。
		if *req.AvatarKey != "" && !isValidUserAssetObjectKey(userID, *req.AvatarKey) {
			BadRequest(c, "invalid avatar key")
			return
		}
		updates["avatar_key"] = *req.AvatarKey
	}
	if len(req.Layout) > 0 {
		// 布局必须是合法的占位 JSON，坏数据不落库。
		if _, err := layout.ParseLayout(req.Layout); err != nil {
			BadRequest(c, "invalid layout")
			return
		}
		updates["layout"] = datatypes.JSON(req.Layout)
	}

	if len(updates) > 0 {
		if err := h.db.WithContext(ctx).Model(&profile).Updates(updates).Error; err != nil {
			logger.Error("update profile failed", slog.Any("error", err))
			Internal(c, "failed to update profile")
			return
		}
		if err := h.db.WithContext(ctx).First(&profile, profile.ID).Error; err != nil {
			logger.Error("reload profile failed", slog.Any("error", err))
			Internal(c, "failed to reload profile")
			return
		}
	}

	h.enqueueSnapshot(c, profile.ID)

	var cards []database.Card
	if err := h.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at ASC").
		Find(&cards).Error; err != nil {
		logger.Warn("card fetch degraded to empty set", slog.Any("error", err))
		cards = nil
	}

	c.JSON(http.StatusOK, h.newProfileResponse(profile, cards))
}

// GetPublicPage 返回公开主页。用户名大小写不敏感；拼写与规范形式不同时
// 301 跳转到规范地址，保证公开链接唯一。
func (h *ProfileHandler) GetPublicPage(c *gin.Context) {
	routed := strings.TrimSpace(c.Param("username"))
	if routed == "" {
		NotFound(c, "page not found")
		return
	}

	ctx := c.Request.Context()
	logger := h.loggerFromContext(c)

	var profile database.Profile
	if err := h.db.WithContext(ctx).
		Where("LOWER(username) = ?", strings.ToLower(routed)).
		First(&profile).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, "page not found")
			return
		}
		logger.Error("load public page failed", slog.Any("error", err))
		Internal(c, "failed to load page")
		return
	}

	if profile.Username != routed {
		c.Redirect(http.StatusMovedPermanently, "/v1/pages/"+profile.Username)
		return
	}

	var cards []database.Card
	if err := h.db.WithContext(ctx).
		Where("user_id = ?", profile.UserID).
		Order("created_at ASC").
		Find(&cards).Error; err != nil {
		logger.Warn("card fetch degraded to empty set", slog.Any("error", err))
		cards = nil
	}

	c.JSON(http.StatusOK, h.newProfileResponse(profile, cards))
}

// TriggerSnapshot 供内部调用（运维脚本、定时刷新）重新生成某个档案的快照。
func (h *ProfileHandler) TriggerSnapshot(c *gin.Context) {
	profileID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		BadRequest(c, "invalid profile id")
		return
	}

	var profile database.Profile
	if err := h.db.WithContext(c.Request.Context()).First(&profile, uint(profileID)).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, "profile not found")
			return
		}
		h.loggerFromContext(c).Error("load profile failed", slog.Any("error", err))
		Internal(c, "failed to load profile")
		return
	}

	h.enqueueSnapshot(c, profile.ID)
	c.JSON(http.StatusAccepted, gin.H{"message": "snapshot scheduled"})
}

func (h *ProfileHandler) enqueueSnapshot(c *gin.Context, profileID uint) {
	if h.asynqClient == nil {
		return
	}
	task, err := tasks.NewPageSnapshotTask(profileID, middleware.GetCorrelationID(c))
	if err != nil {
		h.loggerFromContext(c).Error("create snapshot task failed", slog.Any("error", err))
		return
	}
	// 快照是锦上添花，入队失败只记日志不影响保存结果。
	if _, err := h.asynqClient.Enqueue(task, asynq.MaxRetry(3)); err != nil {
		h.loggerFromContext(c).Error("enqueue snapshot task failed", slog.Any("error", err))
	}
}

func (h *ProfileHandler) newProfileResponse(profile database.Profile, cards []database.Card) profileResponse {
	saved, err := layout.ParseLayout(profile.Layout)
	if err != nil {
		saved = nil
	}

	items := make([]cardResponse, 0, len(cards))
	for _, card := range cards {
		items = append(items, newCardResponse(card))
	}

	return profileResponse{
		Username:    profile.Username,
		DisplayName: profile.DisplayName,
		Bio:         profile.Bio,
		AvatarKey:   profile.AvatarKey,
		SnapshotKey: profile.SnapshotKey,
		Role:        profile.Role,
		Cards:       items,
		Layout:      layout.Reconcile(cards, saved),
	}
}

func (h *ProfileHandler) loggerFromContext(c *gin.Context) *slog.Logger {
	if logger := middleware.LoggerFromContext(c); logger != nil {
		return logger
	}
	if h.logger != nil {
		return h.logger
	}
	return slog.Default()
}
