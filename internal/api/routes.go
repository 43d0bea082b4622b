package api

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"conectabio/internal/api/middleware"
	"conectabio/internal/auth"
	"conectabio/internal/config"
	"conectabio/internal/obscure"
	"conectabio/internal/scrape"
	"conectabio/internal/storage"
)

// RegisterRoutes 注册 API 路由，不包含 /api 前缀。
func RegisterRoutes(
	router *gin.Engine,
	cfg *config.Config,
	db *gorm.DB,
	asynqClient *asynq.Client,
	authService *auth.AuthService,
	redisClient *redis.Client,
	logger *slog.Logger,
	storageClient *storage.Client,
) {
	router.Use(middleware.CorrelationIDMiddleware(), middleware.SlogLoggerMiddleware(logger))

	authHandler := NewAuthHandler(db, authService, redisClient, logger,
		cfg.Auth.LoginRatePerHour, cfg.Auth.LoginLockThreshold, cfg.Auth.LoginLockTTL(), cfg.API.CookieDomain)
	profileHandler := NewProfileHandler(db, asynqClient, logger)
	cardHandler := NewCardHandler(db, logger, cfg.Limits.MaxCardsPerProfile)
	obscureService := obscure.NewService(storageClient, logger)
	documentHandler := NewDocumentHandler(db, obscureService, storageClient, logger,
		cfg.Limits.PresignTTL(), cfg.Limits.MaxDocumentBytes)
	scrapeHandler := NewScrapeHandler(scrape.New(), logger)
	assetHandler := NewAssetHandler(storageClient, logger, cfg.Clamd.Addr, cfg.Limits.MaxAssetBytes)
	wsHandler := NewWsHandler(redisClient, authService, logger, allowedOrigins(cfg))
	authMiddleware := middleware.AuthMiddleware(authService)

	v1 := router.Group("/v1")
	{
		v1.GET("/ws", wsHandler.HandleConnection)

		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/register", authHandler.Register)
			authGroup.POST("/login", authHandler.Login)
			authGroup.POST("/refresh", authHandler.Refresh)
			authGroup.POST("/logout", authMiddleware, authHandler.Logout)
		}

		// 公开主页，无需登录。
		v1.GET("/pages/:username", profileHandler.GetPublicPage)
		v1.GET("/cards/:id/document/preview-link", documentHandler.GetPreviewLink)

		profileGroup := v1.Group("/profiles")
		profileGroup.Use(authMiddleware)
		{
			profileGroup.GET("/me", profileHandler.GetMyProfile)
			profileGroup.PUT("/me", profileHandler.UpdateMyProfile)
		}

		cardGroup := v1.Group("/cards")
		cardGroup.Use(authMiddleware)
		{
			cardGroup.POST("", cardHandler.CreateCard)
			cardGroup.PATCH("/:id", cardHandler.UpdateCard)
			cardGroup.DELETE("/:id", cardHandler.DeleteCard)
			cardGroup.POST("/:id/document", documentHandler.UploadDocument)
			cardGroup.GET("/:id/document/original-link", documentHandler.GetOriginalLink)
		}

		v1.POST("/scrape", authMiddleware, scrapeHandler.Scrape)

		assetGroup := v1.Group("/assets")
		assetGroup.Use(authMiddleware)
		{
			assetGroup.POST("/upload", assetHandler.UploadAsset)
			assetGroup.GET("", assetHandler.ListAssets)
			assetGroup.GET("/view", assetHandler.GetAssetURL)
		}
	}

	internalGroup := router.Group("/internal")
	internalGroup.Use(middleware.InternalSecretMiddleware(cfg.API.InternalSecret))
	{
		internalGroup.POST("/profiles/:id/snapshot", profileHandler.TriggerSnapshot)
	}
}

func allowedOrigins(cfg *config.Config) []string {
	if cfg.API.AllowedOrigin == "" {
		return nil
	}
	return []string{cfg.API.AllowedOrigin}
}
