// Package main runs the Open Badges HTTP server with graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/openbadges/backend/config"
	"github.com/openbadges/backend/internal/api"
	"github.com/openbadges/backend/internal/assertions"
	"github.com/openbadges/backend/internal/auth"
	"github.com/openbadges/backend/internal/badges"
	"github.com/openbadges/backend/internal/emaillogs"
	"github.com/openbadges/backend/internal/endorsements"
	"github.com/openbadges/backend/internal/issuers"
	"github.com/openbadges/backend/internal/middleware"
	"github.com/openbadges/backend/internal/openbadges"
	"github.com/openbadges/backend/pkg/database"
	"github.com/openbadges/backend/pkg/queue"
	"github.com/openbadges/backend/pkg/redis"
	"github.com/openbadges/backend/pkg/response"
	"github.com/openbadges/backend/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	var s3Client *storage.S3
	if cfg.AWS.Region != "" {
		s3Cfg := storage.S3Config{
			Region:          cfg.AWS.Region,
			AccessKeyID:     cfg.AWS.AccessKeyID,
			SecretAccessKey: cfg.AWS.SecretAccessKey,
			ImagesBucket:    cfg.AWS.ImagesBucket,
		}
		s3Client, err = storage.NewS3(ctx, s3Cfg, logger)
		if err != nil {
			logger.Warn("s3 disabled", zap.Error(err))
		}
	}

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	jobQueue := queue.NewQueue(rdb.Client, logger)

	// Auth
	authRepo := auth.NewRepository(pool)
	authHandler := auth.NewHandler(authRepo, jwtService, jobQueue, cfg.Server.BaseURL, logger)

	// Issuers
	issuerRepo := issuers.NewRepository(pool)
	issuerHandler := issuers.NewHandler(issuerRepo, logger)

	// Badges
	badgeRepo := badges.NewRepository(pool)
	badgeHandler := badges.NewHandler(badgeRepo, issuerRepo, s3Client, logger)

	// Credential document cache, invalidated by assertion and
	// endorsement writes below.
	credentialCache := api.NewCache(rdb.Client, pool, logger)

	// Assertions
	assertionRepo := assertions.NewRepository(pool)
	assertionHandler := assertions.NewHandler(assertionRepo, badgeRepo, issuerRepo, authRepo,
		credentialCache, cfg.Server.BaseURL, logger)

	// Endorsements
	endorsementRepo := endorsements.NewRepository(pool)
	endorsementHandler := endorsements.NewHandler(endorsementRepo, credentialCache, logger)

	// Read API: stored image references resolve to public S3 URLs.
	resolver := openbadges.ImageResolver(nil)
	if s3Client != nil {
		resolver = func(ref string) (string, bool) {
			return s3Client.PublicObjectURL(ref), true
		}
	}
	assembler := openbadges.NewAssembler(resolver)
	apiHandler := api.NewHandler(assertionRepo, badgeRepo, endorsementRepo, assembler, credentialCache, logger)

	emailLogsRepo := emaillogs.NewRepository(pool)
	emailLogsHandler := emaillogs.NewHandler(emailLogsRepo)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	// Health
	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })

	// Auth (public)
	authGroup := router.Group("/auth")
	{
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/register", authHandler.Register)
		authGroup.GET("/verify-email/:token", authHandler.VerifyEmail)
	}

	// Public reads
	router.GET("/issuers", issuerHandler.List)
	router.GET("/issuers/:id", issuerHandler.Get)
	router.GET("/issuers/:id/members", issuerHandler.ListMembers)
	router.GET("/badges", badgeHandler.List)
	router.GET("/badges/public", middleware.OptionalJWT(jwtService), badgeHandler.PublicList)
	router.GET("/badges/:id", badgeHandler.Get)
	router.GET("/badges/:id/image", badgeHandler.DownloadImage)
	router.GET("/badges/:id/alignments", badgeHandler.ListAlignments)
	router.GET("/assertions/:id", assertionHandler.Get)
	router.GET("/endorsements/resolve", endorsementHandler.Resolve)
	router.GET("/endorsements", endorsementHandler.List)

	// Read-only JSON-LD API (raw documents, no envelope)
	v3 := router.Group("/api/v3")
	{
		v3.GET("/badges/", apiHandler.ListCredentials)
		v3.GET("/badges/:id/", apiHandler.GetCredential)
		v3.GET("/badges/:id/achievement/", apiHandler.GetAchievement)
		v3.GET("/badge-with-endorsements/", apiHandler.BadgeWithEndorsements)
	}

	// Protected API (JWT required)
	protected := router.Group("")
	protected.Use(middleware.JWT(jwtService))
	{
		protected.GET("/users", middleware.RequireStaff(), authHandler.List)
		protected.GET("/users/me", authHandler.Me)
		protected.PUT("/users/me", authHandler.UpdateMe)
		protected.POST("/auth/resend-verification", authHandler.ResendVerification)

		protected.POST("/issuers", issuerHandler.Create)
		protected.PUT("/issuers/:id", issuerHandler.Update)
		protected.DELETE("/issuers/:id", issuerHandler.Delete)
		protected.POST("/issuers/:id/join", issuerHandler.Join)
		protected.POST("/issuers/:id/leave", issuerHandler.Leave)
		protected.POST("/issuers/:id/keys", issuerHandler.GenerateKeys)

		protected.POST("/badges", badgeHandler.Create)
		protected.PUT("/badges/:id", badgeHandler.Update)
		protected.DELETE("/badges/:id", badgeHandler.Delete)
		protected.POST("/badges/:id/image", badgeHandler.UploadImage)
		protected.POST("/badges/:id/alignments", badgeHandler.AddAlignment)
		protected.DELETE("/badges/:id/alignments/:alignmentID", badgeHandler.DeleteAlignment)

		protected.POST("/assertions", assertionHandler.Award)
		protected.GET("/assertions", middleware.RequireStaff(), assertionHandler.List)
		protected.GET("/assertions/mine", assertionHandler.ListMine)
		protected.POST("/assertions/:id/revoke", assertionHandler.Revoke)

		protected.POST("/endorsements", endorsementHandler.Create)
		protected.PUT("/endorsements/:id", endorsementHandler.Update)
		protected.DELETE("/endorsements/:id", endorsementHandler.Delete)

		protected.GET("/email-logs", middleware.RequireStaff(), emailLogsHandler.List)
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
