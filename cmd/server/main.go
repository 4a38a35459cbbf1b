// Package main runs the attendance tracker HTTP server with WebSocket and graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/attendtrack/backend/config"
	"github.com/attendtrack/backend/internal/attendance"
	"github.com/attendtrack/backend/internal/audio"
	"github.com/attendtrack/backend/internal/auth"
	"github.com/attendtrack/backend/internal/middleware"
	"github.com/attendtrack/backend/internal/notify"
	"github.com/attendtrack/backend/internal/worker"
	"github.com/attendtrack/backend/pkg/database"
	"github.com/attendtrack/backend/pkg/queue"
	"github.com/attendtrack/backend/pkg/redis"
	"github.com/attendtrack/backend/pkg/response"
	"github.com/attendtrack/backend/pkg/storage"
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
			Region:               cfg.AWS.Region,
			AccessKeyID:          cfg.AWS.AccessKeyID,
			SecretAccessKey:      cfg.AWS.SecretAccessKey,
			ArchiveBucket:        cfg.AWS.ArchiveBucket,
			PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
		}
		s3Client, err = storage.NewS3(ctx, s3Cfg, logger)
		if err != nil {
			logger.Warn("s3 disabled", zap.Error(err))
		}
	}

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)

	// Auth
	authRepo := auth.NewRepository(pool)
	authHandler := auth.NewHandler(authRepo, jwtService, logger)

	// Stop notifications (websocket hub + Redis fan-out across instances)
	redisPubSub := notify.NewRedisPubSub(rdb.Client, logger)
	hub := notify.NewHub(redisPubSub, logger)
	go redisPubSub.Subscribe(ctx, hub)

	// Audio pipeline
	audioRepo := audio.NewRepository(pool)
	transcoder := audio.NewFFmpegTranscoder(
		cfg.Audio.FFmpegPath, cfg.Audio.FFprobePath,
		cfg.Audio.BitrateKbps, cfg.Audio.SampleRate,
		time.Duration(cfg.Audio.TranscodeTimeoutSec)*time.Second, logger,
	)
	mergeEngine := audio.NewMergeEngine(audioRepo, transcoder, cfg.Audio.StorageRoot, cfg.Audio.BitrateKbps, logger)
	tracker := audio.NewTracker(audioRepo, logger)
	enforcer := audio.NewEnforcer(audioRepo, cfg.Audio.StorageRoot, cfg.Retention.MaxTotalBytes, cfg.Retention.MaxAgeDays, logger)

	jobQueue := queue.NewQueue(rdb.Client, logger)

	// Attendance (check-in activates recording; check-out stops it)
	attendanceRepo := attendance.NewRepository(pool)
	fence := attendance.Geofence{
		Latitude:     cfg.Office.Latitude,
		Longitude:    cfg.Office.Longitude,
		RadiusMeters: cfg.Office.RadiusMeters,
	}
	attendanceHandler := attendance.NewHandler(attendanceRepo, tracker, fence, logger)

	audioHandler := audio.NewHandler(audioRepo, mergeEngine, tracker, enforcer, attendanceRepo, hub, jobQueue, logger)

	// Background archive worker (upload stopped masters to S3)
	archiveProcessor := worker.NewArchiveProcessor(audioRepo, enforcer, s3Client, jobQueue, cfg.Audio.StorageRoot, logger)

	wsValidate := func(token string) (uuid.UUID, error) {
		claims, err := jwtService.Validate(token)
		if err != nil {
			return uuid.Nil, err
		}
		return claims.UserID, nil
	}

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
	}

	// Protected API (JWT required, bearer or cookie)
	api := router.Group("")
	api.Use(middleware.Auth(jwtService, cfg.JWT.CookieName))
	{
		api.GET("/users", middleware.RequireRole("admin"), authHandler.List)

		api.POST("/attendance/check-in", attendanceHandler.CheckIn)
		api.POST("/attendance/check-out", attendanceHandler.CheckOut)
		api.GET("/attendance/current", attendanceHandler.Current)
		api.GET("/attendance/history", attendanceHandler.History)

		uploadGroup := api.Group("")
		if cfg.Audio.DeviceBinding {
			uploadGroup.Use(middleware.DeviceBinding(authRepo, logger))
		}
		uploadGroup.POST("/audio/upload", audioHandler.Upload)

		api.GET("/audio/files/:dir/:file", audioHandler.Serve)
		api.GET("/audio/recordings", middleware.RequireRole("admin"), audioHandler.List)
		api.GET("/audio/active", middleware.RequireRole("admin"), audioHandler.Active)
		api.POST("/audio/sessions/:id/stop", middleware.RequireRole("admin"), audioHandler.Stop)
		api.POST("/audio/cleanup", middleware.RequireRole("admin"), audioHandler.Cleanup)
		api.DELETE("/audio/recordings/:id", middleware.RequireRole("admin"), audioHandler.Delete)
	}

	// WebSocket (token in query; no Authorization header required)
	router.GET("/ws", notify.ServeWS(hub, wsValidate, logger))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()
	if s3Client != nil {
		go archiveProcessor.Run(workerCtx)
		logger.Info("archive worker started")
	}

	// Periodic retention sweep (age purge + quota)
	go func() {
		interval := time.Duration(cfg.Retention.SweepIntervalMin) * time.Minute
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-workerCtx.Done():
				return
			case <-ticker.C:
				if n, err := enforcer.PurgeExpired(workerCtx); err != nil {
					logger.Error("retention purge", zap.Error(err))
				} else if n > 0 {
					logger.Info("retention purge", zap.Int("removed", n))
				}
				if err := enforcer.EnforceQuota(workerCtx); err != nil {
					logger.Error("retention quota", zap.Error(err))
				}
			}
		}
	}()

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	workerCancel()
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
