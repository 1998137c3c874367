package router

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"imweb_order_sync/internal/controller"
	"imweb_order_sync/internal/middleware"
)

// Options 路由选项
type Options struct {
	SyncToken      string        // /internal/* 访问令牌，为空时拒绝所有请求
	ManualCooldown time.Duration // GET /orders 冷却时间，0 表示不限制
	Logger         *zap.Logger
}

// New 创建 gin 引擎并注册中间件与路由
func New(syncCtl *controller.SyncController, opts Options) *gin.Engine {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	r := gin.New()
	r.Use(middleware.RequestLog(log), gin.Recovery())

	InitRoutes(r, syncCtl, opts)
	return r
}

// InitRoutes 注册所有路由
func InitRoutes(r *gin.Engine, syncCtl *controller.SyncController, opts Options) {
	limiter := middleware.NewCooldownLimiter()

	// GET /healthz
	r.GET("/healthz", syncCtl.Health)

	// GET /orders 手动同步，全局冷却
	r.GET("/orders", middleware.Cooldown(limiter, "orders", opts.ManualCooldown), syncCtl.Orders)

	// 内部接口组，需要 sync_token
	internal := r.Group("/internal", middleware.SyncTokenAuth(opts.SyncToken))
	{
		// GET /internal/orders-sync
		internal.GET("/orders-sync", syncCtl.OrdersSync)
		// POST /internal/send-invite
		internal.POST("/send-invite", syncCtl.SendInvite)
		// POST /internal/webhook-invite
		internal.POST("/webhook-invite", syncCtl.WebhookInvite)
		// POST /internal/token/reload
		internal.POST("/token/reload", syncCtl.ReloadToken)
		// GET /internal/runs
		internal.GET("/runs", syncCtl.ListRuns)
	}
}
