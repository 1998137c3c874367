package controller

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"imweb_order_sync/internal/api/dto"
	"imweb_order_sync/internal/model"
	"imweb_order_sync/internal/repository"
	"imweb_order_sync/internal/service"
	"imweb_order_sync/internal/task"
	"imweb_order_sync/pkg/net"
)

// ==================== 依赖接口 ====================

// SyncTrigger 同步/发送触发 (task.OrderSyncTask)
type SyncTrigger interface {
	RunNow(ctx context.Context, trigger model.RunTrigger) (*dto.RunReport, error)
	DispatchNow(ctx context.Context) (*dto.RunReport, error)
	SendRowNow(ctx context.Context, req dto.WebhookInviteRequest) (*dto.NotifyResult, error)
}

// TokenAdmin 令牌管理 (service.TokenService)
type TokenAdmin interface {
	Reload(ctx context.Context) error
	Seed(ctx context.Context, refreshToken string) error
	Status() service.TokenStatus
}

// SyncController 同步控制器
type SyncController struct {
	trigger SyncTrigger
	tokens  TokenAdmin
	runs    repository.SyncRunRepository // 可为 nil
	logger  *zap.Logger
}

// NewSyncController 创建同步控制器
func NewSyncController(trigger SyncTrigger, tokens TokenAdmin, runs repository.SyncRunRepository, log *zap.Logger) *SyncController {
	if log == nil {
		log = zap.NewNop()
	}
	return &SyncController{trigger: trigger, tokens: tokens, runs: runs, logger: log}
}

// ==================== Handler 实现 ====================

// Orders 手动同步 (同步执行，结束后返回结果)
// GET /orders
func (c *SyncController) Orders(ctx *gin.Context) {
	report, err := c.trigger.RunNow(ctx.Request.Context(), model.RunTriggerManual)
	c.respondRun(ctx, report, err, "订单同步完成")
}

// OrdersSync 外部调度器触发的同步
// GET /internal/orders-sync?sync_token=
func (c *SyncController) OrdersSync(ctx *gin.Context) {
	report, err := c.trigger.RunNow(ctx.Request.Context(), model.RunTriggerScheduled)
	c.respondRun(ctx, report, err, "订单同步完成")
}

// SendInvite 只发送 AlimTalk
// POST /internal/send-invite?sync_token=
func (c *SyncController) SendInvite(ctx *gin.Context) {
	report, err := c.trigger.DispatchNow(ctx.Request.Context())
	c.respondRun(ctx, report, err, "AlimTalk 发送完成")
}

// WebhookInvite 外部触发的单行发送，成功后写 C 列标记
// POST /internal/webhook-invite?sync_token=  {"row": 5, "phone": "...", "link": "..."}
func (c *SyncController) WebhookInvite(ctx *gin.Context) {
	var req dto.WebhookInviteRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"code": 400, "message": "参数错误: " + err.Error()})
		return
	}

	res, err := c.trigger.SendRowNow(ctx.Request.Context(), req)
	if err != nil {
		status := StatusFor(err)
		if status >= http.StatusInternalServerError {
			c.logger.Error("单行发送失败", zap.Int("row", req.Row), zap.Error(err))
		}
		body := gin.H{"code": status, "message": err.Error()}
		if res != nil {
			body["data"] = res
		}
		ctx.JSON(status, body)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"code":    200,
		"message": "AlimTalk 发送完成",
		"data":    res,
	})
}

// ReloadToken 重新加载令牌，传入 refresh_token 时直接安装
// POST /internal/token/reload?sync_token=
func (c *SyncController) ReloadToken(ctx *gin.Context) {
	var req dto.TokenReloadRequest
	if err := ctx.ShouldBind(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"code": 400, "message": "参数错误: " + err.Error()})
		return
	}

	var err error
	if req.RefreshToken != "" {
		err = c.tokens.Seed(ctx.Request.Context(), req.RefreshToken)
	} else {
		err = c.tokens.Reload(ctx.Request.Context())
	}
	if err != nil {
		c.respondError(ctx, err, nil)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"code":    200,
		"message": "令牌已重新加载",
		"data":    c.tokens.Status(),
	})
}

// ListRuns 最近的运行记录与 24 小时统计
// GET /internal/runs?sync_token=&limit=
func (c *SyncController) ListRuns(ctx *gin.Context) {
	if c.runs == nil {
		ctx.JSON(http.StatusServiceUnavailable, gin.H{"code": 503, "message": "未启用运行记录"})
		return
	}

	var req dto.ListRunsRequest
	if err := ctx.ShouldBindQuery(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"code": 400, "message": "参数错误: " + err.Error()})
		return
	}

	runs, err := c.runs.ListRecent(ctx.Request.Context(), req.Limit)
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"code": 500, "message": err.Error()})
		return
	}
	stats, err := c.runs.GetStats(ctx.Request.Context(), time.Now().Add(-24*time.Hour))
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"code": 500, "message": err.Error()})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"code":    200,
		"message": "success",
		"data": gin.H{
			"runs":  runs,
			"stats": stats,
		},
	})
}

// Health 健康检查
// GET /healthz
func (c *SyncController) Health(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{
		"code":    200,
		"message": "ok",
		"data": gin.H{
			"token": c.tokens.Status(),
		},
	})
}

// ==================== 响应 ====================

func (c *SyncController) respondRun(ctx *gin.Context, report *dto.RunReport, err error, okMsg string) {
	if err != nil {
		c.respondError(ctx, err, report)
		return
	}

	msg := okMsg
	if report != nil && report.Degraded {
		msg = okMsg + " (AlimTalk 发送失败)"
	}
	ctx.JSON(http.StatusOK, gin.H{
		"code":    200,
		"message": msg,
		"data":    report,
	})
}

func (c *SyncController) respondError(ctx *gin.Context, err error, report *dto.RunReport) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		c.logger.Error("请求处理失败", zap.String("path", ctx.Request.URL.Path), zap.Error(err))
	}

	body := gin.H{
		"code":    status,
		"message": err.Error(),
	}
	if report != nil {
		body["data"] = report
	}
	ctx.JSON(status, body)
}

// StatusFor 错误 -> HTTP 状态码
// 外层错误优先: 发送/存储错误内部可能包着网络错误
func StatusFor(err error) int {
	var (
		authErr     *service.AuthError
		upErr       *service.UpstreamError
		netErr      *net.NetworkError
		storeErr    *service.StoreError
		dispatchErr *service.DispatchError
	)
	switch {
	case errors.Is(err, task.ErrRunInProgress):
		return http.StatusConflict
	case errors.Is(err, service.ErrNotifyDisabled):
		return http.StatusServiceUnavailable
	case errors.Is(err, service.ErrAlreadyNotified):
		return http.StatusConflict
	case errors.Is(err, service.ErrNoPhone):
		return http.StatusBadRequest
	case errors.As(err, &dispatchErr):
		return http.StatusBadGateway
	case errors.As(err, &storeErr):
		return http.StatusInternalServerError
	case errors.As(err, &authErr):
		return http.StatusUnauthorized
	case errors.As(err, &upErr):
		return http.StatusBadGateway
	case errors.As(err, &netErr), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}
