package api

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/taoyao-code/vmc-middleware/internal/api/middleware"
	cfgpkg "github.com/taoyao-code/vmc-middleware/internal/config"
	"github.com/taoyao-code/vmc-middleware/internal/service"
	"github.com/taoyao-code/vmc-middleware/internal/storage"
)

// RegisterRoutes 注册请求面路由
// 写操作统一支持 ?wait=true 的同步形态（队列之上的便利层）
func RegisterRoutes(r *gin.Engine, store storage.Store, cfg cfgpkg.APIConfig, logger *zap.Logger) {
	if r == nil || store == nil {
		return
	}

	waiter := service.NewCommandWaiter(store, cfg.WaitInterval, cfg.WaitTimeout)
	handler := NewHandler(store, waiter, logger)

	api := r.Group("/api")
	api.Use(middleware.RequestID())
	api.Use(middleware.RateLimit(cfg.RateLimit, cfg.RateBurst))

	// 售卖与交易
	api.POST("/buy", handler.Buy)
	api.POST("/drive", handler.Drive)
	api.POST("/deduct", handler.Deduct)
	api.POST("/cancel", handler.Cancel)

	// 货道配置
	api.POST("/sync", handler.Sync)
	api.POST("/products/price", handler.SetPrice)
	api.POST("/products/inventory", handler.SetInventory)
	api.POST("/products/capacity", handler.SetCapacity)

	// 实时查询（经指令队列走串口）
	api.GET("/config/selection/:id", handler.QuerySlotConfig)
	api.GET("/sales/daily", handler.QueryDailySales)
	api.GET("/status/query", handler.QueryStatus)

	// 投影缓存读取（不触碰串口）
	api.GET("/products", handler.ListProducts)
	api.GET("/status", handler.MachineStatus)
	api.GET("/command/:id", handler.CommandStatus)

	logger.Info("api routes registered", zap.Int("endpoints", 14))
}
