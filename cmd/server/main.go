package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	redisClient "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"shortlink-platform/internal/config"
	"shortlink-platform/internal/handler"
	"shortlink-platform/internal/middleware"
	"shortlink-platform/internal/reclaimer"
	"shortlink-platform/internal/service"
	"shortlink-platform/internal/shortcode"
	"shortlink-platform/internal/store"
	"shortlink-platform/pkg/database"
	"shortlink-platform/pkg/geoip"
	"shortlink-platform/pkg/logger"
	"shortlink-platform/pkg/redis"
)

func main() {
	cfg, err := config.Load("configs/config.yaml")
	if err != nil {
		fmt.Println("配置加载失败:", err)
		os.Exit(1)
	}

	logger.InitLogger(cfg.Log.Path, cfg.Log.Level)
	defer func() {
		if err := logger.Logger.Sync(); err != nil {
			fmt.Println("日志同步失败:", err)
		}
	}()
	sugaredLogger := zap.S()

	db, err := openDatabase(cfg)
	if err != nil {
		sugaredLogger.Fatalf("数据库初始化失败: %v", err)
	}
	sugaredLogger.Info("✅ 数据库连接成功")

	linkStore := store.New(db)
	if err := linkStore.AutoMigrate(); err != nil {
		sugaredLogger.Fatalf("数据库迁移失败: %v", err)
	}
	sugaredLogger.Info("✅ 数据库迁移成功")

	var rdb *redisClient.Client
	if cfg.Cache.Host != "" {
		rdb, err = redis.NewRedisClient(&redis.Options{
			Host: cfg.Cache.Host, Port: cfg.Cache.Port, Password: cfg.Cache.Password, DB: cfg.Cache.DB,
		})
		if err != nil {
			sugaredLogger.Warnf("缓存连接失败，降级为纯数据库查询: %v", err)
		} else {
			defer func() {
				if err := rdb.Close(); err != nil {
					sugaredLogger.Errorf("关闭 Redis 连接失败: %v", err)
				}
			}()
			sugaredLogger.Info("✅ 缓存连接成功")
		}
	}

	var geoResolver *geoip.Resolver
	if cfg.GeoIP.DBPath != "" {
		geoResolver, err = geoip.Open(cfg.GeoIP.DBPath)
		if err != nil {
			sugaredLogger.Warnf("GeoIP 数据库加载失败，访问记录将不含地理信息: %v", err)
		} else {
			defer geoResolver.Close()
			sugaredLogger.Info("✅ GeoIP 数据库加载成功")
		}
	}

	linkService := service.New(linkStore, shortcode.NewGenerator(), geoResolver, cfg.Server.BaseURL, sugaredLogger)

	// 后台清理过期链接
	cleaner := reclaimer.New(linkStore, time.Duration(cfg.Cleanup.IntervalSeconds)*time.Second, sugaredLogger)
	cleaner.Start()
	defer cleaner.Stop()

	if cfg.App.Mode == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(middleware.GinZapRecovery(logger.Logger, true))
	router.Use(middleware.GinZapLogger(logger.Logger))

	linkHandler := handler.NewLinkHandler(linkService, rdb, sugaredLogger)
	registerRoutes(router, cfg, linkHandler)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		sugaredLogger.Infof("🚀 服务启动成功, 访问 http://localhost:%d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			sugaredLogger.Fatalf("服务启动失败: %v", err)
		}
	}()

	// 等待退出信号，优雅关停
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	sugaredLogger.Info("收到退出信号，开始关闭服务...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		sugaredLogger.Errorf("服务关闭异常: %v", err)
	}
	sugaredLogger.Info("服务已退出")
}

// openDatabase 按配置选择数据库驱动，默认 SQLite
func openDatabase(cfg *config.Config) (*gorm.DB, error) {
	switch cfg.Database.Driver {
	case "mysql":
		return database.InitMySQL(cfg.Database.Host, cfg.Database.Port,
			cfg.Database.User, cfg.Database.Password, cfg.Database.Name)
	case "", "sqlite":
		return database.InitSQLite(cfg.Database.Path)
	default:
		return nil, fmt.Errorf("不支持的数据库驱动: %s", cfg.Database.Driver)
	}
}

func registerRoutes(router *gin.Engine, cfg *config.Config, linkHandler *handler.LinkHandler) {
	authMiddleware := middleware.BearerAuth(cfg.Auth.Token)
	rateLimitMiddleware := middleware.RateLimit(&cfg.RateLimit)

	router.GET("/health", linkHandler.Health)
	router.GET("/:code", linkHandler.Redirect)

	api := router.Group("/api")
	{
		api.POST("/shorten", rateLimitMiddleware, authMiddleware, linkHandler.CreateLink)
		api.GET("/analytics/:code", authMiddleware, linkHandler.Analytics)
		api.DELETE("/links/:code", authMiddleware, linkHandler.DeleteLink)
	}
}
