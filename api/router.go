package api

import (
	"github.com/SlpAus/tictac-duel-backend/internal/game"
	"github.com/SlpAus/tictac-duel-backend/internal/user"
	"github.com/SlpAus/tictac-duel-backend/internal/wallet"
	"github.com/gin-gonic/gin"
)

// SetupRoutes 注册项目的所有API路由
func SetupRoutes(router *gin.Engine) {
	api := router.Group("/api")
	api.Use(user.EnsureUserCookieMiddleware(), user.ResolveIdentityMiddleware())
	{
		// 房间相关的路由组 /api/rooms
		// 所有写操作都要求Redis处于健康状态
		roomRoutes := api.Group("/rooms", game.RequireRedisHealthy())
		{
			roomRoutes.POST("/:code/join", game.Join)
			roomRoutes.POST("/:code/move", game.Move)
			roomRoutes.POST("/:code/reset", game.Reset)
			roomRoutes.POST("/:code/authping", game.AuthPing)
			roomRoutes.POST("/:code/mode", game.ToggleMode)
			roomRoutes.POST("/:code/claim", game.Claim)
			roomRoutes.GET("/:code/state", game.State)
		}

		// 钱包相关的路由 /api/wallet
		walletRoutes := api.Group("/wallet")
		{
			walletRoutes.GET("/balance", wallet.GetBalance)
			walletRoutes.GET("/transactions", wallet.GetTransactions)
		}
	}
}
