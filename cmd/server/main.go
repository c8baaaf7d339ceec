package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/SlpAus/tictac-duel-backend/api"
	"github.com/SlpAus/tictac-duel-backend/internal/broadcast"
	"github.com/SlpAus/tictac-duel-backend/internal/platform/config"
	"github.com/SlpAus/tictac-duel-backend/internal/platform/database"
	"github.com/SlpAus/tictac-duel-backend/internal/platform/health"
	"github.com/SlpAus/tictac-duel-backend/internal/platform/shutdown"
	"github.com/SlpAus/tictac-duel-backend/internal/platform/startup"
	"github.com/SlpAus/tictac-duel-backend/pkg/lifecycle"
	"github.com/SlpAus/tictac-duel-backend/pkg/token"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		panic(fmt.Sprintf("无法加载配置: %v", err))
	}

	token.InitializeKey(cfg.Auth.Secret)
	database.InitDB(cfg.Database.Sqlite)
	database.InitRedis(cfg.Database.Redis)

	// 阻塞式获取初始Run ID
	health.InitializeRunID()

	// 执行应用首次启动初始化流程
	if err := startup.InitializeApplication(); err != nil {
		panic(fmt.Sprintf("应用初始化失败，无法启动: %v", err))
	}

	// 创建两阶段停机的生命周期管理器，并启动后台服务
	gracefulMgr := lifecycle.NewManager()
	forcefulMgr := lifecycle.NewManager()

	broadcasterGraceful, err := gracefulMgr.NewServiceHandle("broadcast-publisher")
	if err != nil {
		panic(err)
	}
	broadcasterForceful, err := forcefulMgr.NewServiceHandle("broadcast-publisher")
	if err != nil {
		panic(err)
	}
	go broadcast.StartPublisher(broadcasterGraceful, broadcasterForceful)

	healthHandle, err := gracefulMgr.NewServiceHandle("redis-health-checker")
	if err != nil {
		panic(err)
	}
	go health.StartRedisHealthCheck(healthHandle)

	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.Default()
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.Server.Cors.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	api.SetupRoutes(r)

	server := &http.Server{
		Addr:    cfg.Server.Address,
		Handler: r,
	}

	go func() {
		fmt.Printf("服务器已准备就绪，开始监听 %s\n", cfg.Server.Address)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			panic("Failed to start server: " + err.Error())
		}
	}()

	coordinator := shutdown.NewCoordinator(gracefulMgr, forcefulMgr)
	coordinator.ListenForSignalsAndShutdown(server)
}
