package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"conectabio/internal/database"
	"conectabio/internal/errcode"
	"conectabio/internal/storage"
	"conectabio/internal/tasks"
)

// SnapshotTaskHandler 消费主页快照任务：渲染 /{username} 公开页，
// 截图存入对象存储，把对象键写回 Profile 并通知前端。
type SnapshotTaskHandler struct {
	db              *gorm.DB
	storage         *storage.Client
	redisClient     *redis.Client
	logger          *slog.Logger
	publicPagesBase string
}

// NewSnapshotTaskHandler 创建任务处理器。
func NewSnapshotTaskHandler(
	db *gorm.DB,
	storageClient *storage.Client,
	redisClient *redis.Client,
	logger *slog.Logger,
	publicPagesBase string,
) *SnapshotTaskHandler {
	return &SnapshotTaskHandler{
		db:              db,
		storage:         storageClient,
		redisClient:     redisClient,
		logger:          logger,
		publicPagesBase: strings.TrimRight(strings.TrimSpace(publicPagesBase), "/"),
	}
}

// ProcessTask 实现 asynq.Handler。
func (h *SnapshotTaskHandler) ProcessTask(ctx context.Context, t *asynq.Task) (retErr error) {
	log := h.logger

	var payload tasks.PageSnapshotPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		log.Error("unmarshal task payload failed", slog.Any("error", err))
		return err
	}

	log = log.With(
		slog.String("correlation_id", payload.CorrelationID),
		slog.Int("profile_id", int(payload.ProfileID)),
	)
	log.Info("Starting public page snapshot task...")

	var profile database.Profile
	if err := h.db.WithContext(ctx).First(&profile, payload.ProfileID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Warn("profile not found, skipping task")
			return nil
		}
		log.Error("query profile failed", slog.Any("error", err))
		return err
	}

	log = log.With(slog.String("username", profile.Username))

	defer func() {
		if retErr == nil {
			return
		}
		if !isFinalAsynqAttempt(ctx) {
			return
		}
		notify := PageSnapshotNotifyMessage{
			Status:        "error",
			ProfileID:     profile.ID,
			CorrelationID: payload.CorrelationID,
			ErrorCode:     errcode.SystemError,
			ErrorMessage:  strings.TrimSpace(retErr.Error()),
		}
		if err := h.publishSnapshotNotify(ctx, profile.UserID, notify); err != nil {
			log.Error("publish snapshot error notification failed", slog.Any("error", err))
		}
	}()

	targetURL := fmt.Sprintf("%s/%s", h.publicPagesBase, profile.Username)
	page, cleanup, err := renderPublicPage(log, targetURL)
	if err != nil {
		log.Error("render public page failed", slog.Any("error", err))
		return err
	}
	defer cleanup()

	const snapshotQuality = 80
	snapshotBytes, err := captureSnapshot(page, snapshotQuality)
	if err != nil {
		log.Error("capture snapshot failed", slog.Any("error", err))
		return err
	}

	objectName := fmt.Sprintf("thumbnails/profile/%d/snapshot.jpg", profile.ID)
	if _, err := h.storage.UploadBytes(ctx, objectName, snapshotBytes, "image/jpeg"); err != nil {
		log.Error("upload snapshot to minio failed", slog.Any("error", err))
		return err
	}

	if err := h.db.WithContext(ctx).Model(&profile).Update("snapshot_key", objectName).Error; err != nil {
		log.Error("update profile snapshot key failed", slog.Any("error", err))
		return err
	}

	notify := PageSnapshotNotifyMessage{
		Status:        "completed",
		ProfileID:     profile.ID,
		SnapshotKey:   objectName,
		CorrelationID: payload.CorrelationID,
		ErrorCode:     errcode.OK,
	}
	if err := h.publishSnapshotNotify(ctx, profile.UserID, notify); err != nil {
		log.Error("publish redis notification failed", slog.Any("error", err))
		return err
	}

	log.Info("Public page snapshot task completed successfully.")
	return nil
}

func (h *SnapshotTaskHandler) publishSnapshotNotify(ctx context.Context, userID uint, notify PageSnapshotNotifyMessage) error {
	data, err := json.Marshal(notify)
	if err != nil {
		return fmt.Errorf("marshal notification payload: %w", err)
	}
	channel := fmt.Sprintf("user_notify:%d", userID)
	if err := h.redisClient.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("publish redis notification to %q: %w", channel, err)
	}
	return nil
}

func isFinalAsynqAttempt(ctx context.Context) bool {
	retryCount, ok1 := asynq.GetRetryCount(ctx)
	maxRetry, ok2 := asynq.GetMaxRetry(ctx)
	if !ok1 || !ok2 {
		return false
	}
	return retryCount >= maxRetry
}
