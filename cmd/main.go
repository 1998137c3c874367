package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"imweb_order_sync/internal/api/dto"
	"imweb_order_sync/internal/config"
	"imweb_order_sync/internal/controller"
	"imweb_order_sync/internal/model"
	"imweb_order_sync/internal/repository"
	"imweb_order_sync/internal/router"
	"imweb_order_sync/internal/service"
	"imweb_order_sync/internal/task"
	"imweb_order_sync/pkg/database"
	"imweb_order_sync/pkg/gsheet"
	"imweb_order_sync/pkg/logger"
	"imweb_order_sync/pkg/net"
)

func main() {
	app := &cli.App{
		Name:  "imweb-order-sync",
		Usage: "imweb 订单 -> Google 表格同步与 AlimTalk 通知",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "配置文件路径 (默认查找 ./config.yaml)",
				EnvVars: []string{"CONFIG_FILE"},
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "启动 HTTP 服务与定时任务",
				Action: runServe,
			},
			{
				Name:   "sync",
				Usage:  "执行一轮同步 + 发送后退出",
				Action: runSync,
			},
			{
				Name:   "dispatch",
				Usage:  "只发送 AlimTalk 后退出",
				Action: runDispatch,
			},
			{
				Name:  "token",
				Usage: "imweb 令牌管理",
				Subcommands: []*cli.Command{
					{
						Name:   "reload",
						Usage:  "从凭证库重新加载并刷新访问令牌",
						Action: runTokenReload,
					},
					{
						Name:      "seed",
						Usage:     "安装新的 refresh token",
						ArgsUsage: "<refresh_token>",
						Action:    runTokenSeed,
					},
				},
			},
		},
		// 不带子命令时等同 serve
		Action: runServe,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("❌ %v", err)
	}
}

// ==================== 依赖容器 ====================

// Dependencies 依赖容器
type Dependencies struct {
	Config   *config.Config
	Logger   *zap.Logger
	DB       *gorm.DB
	Repos    *Repositories
	Tokens   *service.TokenService
	Pipeline *service.Pipeline
}

// Repositories 仓库集合
type Repositories struct {
	Credential repository.CredentialRepository
	SyncRun    repository.SyncRunRepository
}

// Close 释放资源
func (d *Dependencies) Close() {
	if d.DB != nil {
		if sqlDB, err := d.DB.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	_ = d.Logger.Sync()
}

// ==================== 初始化函数 ====================

// initDependencies 初始化所有依赖
func initDependencies(c *cli.Context) (*Dependencies, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}
	if err := cfg.ValidateSync(); err != nil {
		return nil, err
	}

	zl, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}

	// -------- 数据库 & Repo 层 --------
	db, err := database.InitDB(cfg.DB.DSN, cfg.DB.Debug, zl.Named("db"),
		&model.Credential{}, &model.SyncRun{},
	)
	if err != nil {
		return nil, err
	}
	repos := &Repositories{
		Credential: repository.NewCredentialRepository(db),
		SyncRun:    repository.NewSyncRunRepository(db),
	}
	deps := &Dependencies{Config: cfg, Logger: zl, DB: db, Repos: repos}

	// -------- 出站客户端 --------
	retrier := net.NewRetrier(net.RetryPolicy{
		MaxAttempts: cfg.Retry.MaxAttempts,
		BaseDelay:   cfg.Retry.BaseDelay,
		MaxJitter:   cfg.Retry.MaxJitter,
	}, zl.Named("retry"))
	httpClient := net.NewClient(cfg.Retry.HTTPTimeout, retrier)

	values, err := initSheetValues(c.Context, cfg, retrier, zl.Named("sheet"))
	if err != nil {
		deps.Close()
		return nil, err
	}

	// -------- 业务服务 --------
	deps.Tokens = service.NewTokenService(service.TokenConfig{
		BaseURL:          cfg.Imweb.BaseURL,
		ClientID:         cfg.Imweb.ClientID,
		ClientSecret:     cfg.Imweb.ClientSecret,
		RedirectURI:      cfg.Imweb.RedirectURI,
		SeedRefreshToken: cfg.Imweb.RefreshToken,
	}, httpClient, repos.Credential, zl.Named("token"))
	if err := deps.Tokens.Reload(c.Context); err != nil {
		deps.Close()
		return nil, err
	}

	source := service.NewImwebOrderSource(cfg.Imweb.BaseURL, httpClient, deps.Tokens, cfg.Location(), zl.Named("imweb"))
	store := service.NewSheetStore(values, cfg.Sheet.StoreTab, zl.Named("sheet_store"))
	syncSvc := service.NewOrderSyncService(
		source,
		service.NewSheetIndex(values, cfg.Sheet.LedgerTab, zl.Named("sheet_index")),
		store,
		service.OrderSyncConfig{
			SiteCode:  cfg.Imweb.SiteCode,
			PageLimit: cfg.Imweb.PageLimit,
			Location:  cfg.Location(),
		},
		zl.Named("order_sync"),
	)

	notifySvc, err := initNotifyService(cfg, store, httpClient, zl)
	if err != nil {
		deps.Close()
		return nil, err
	}

	deps.Pipeline = service.NewPipeline(deps.Tokens, syncSvc, notifySvc, repos.SyncRun, zl.Named("pipeline"))
	return deps, nil
}

// initSheetValues 表格后端: google 或 memory (本地演练)
func initSheetValues(ctx context.Context, cfg *config.Config, retrier *net.Retrier, log *zap.Logger) (gsheet.Values, error) {
	if cfg.Sheet.Backend == "memory" {
		log.Warn("使用内存表格后端，数据不会持久化")
		return gsheet.NewMemory(), nil
	}

	svc, err := gsheet.NewService(ctx, gsheet.Credentials{
		JSON:     cfg.Sheet.CredentialsJSON,
		File:     cfg.Sheet.CredentialsFile,
		Endpoint: cfg.Sheet.Endpoint,
	})
	if err != nil {
		return nil, err
	}

	read := retrier.WithPolicy(net.RetryPolicy{
		MaxAttempts: cfg.Retry.SheetReadAttempts,
		BaseDelay:   cfg.Retry.SheetReadBaseDelay,
		MaxJitter:   cfg.Retry.MaxJitter,
	})
	write := retrier.WithPolicy(net.RetryPolicy{
		MaxAttempts: cfg.Retry.SheetWriteAttempts,
		BaseDelay:   cfg.Retry.SheetWriteBaseDelay,
		MaxJitter:   cfg.Retry.MaxJitter,
	})
	return gsheet.NewClient(svc, cfg.Sheet.ID, read, write, log), nil
}

// initNotifyService 未配置服务商时返回 nil
func initNotifyService(cfg *config.Config, store *service.SheetStore, client *net.Client, zl *zap.Logger) (*service.NotifyService, error) {
	if cfg.Notify.Provider == "" {
		zl.Warn("未配置通知服务商，只同步不发送")
		return nil, nil
	}
	if err := cfg.ValidateNotify(); err != nil {
		return nil, err
	}
	policy, err := model.ParseDispatchPolicy(cfg.Notify.Policy)
	if err != nil {
		return nil, err
	}

	var sender service.Sender
	switch cfg.Notify.Provider {
	case "aligo":
		a := cfg.Aligo
		sender = service.NewAligoSender(service.AligoConfig{
			BaseURL:    a.BaseURL,
			APIKey:     a.APIKey,
			UserID:     a.UserID,
			SenderKey:  a.SenderKey,
			TplCode:    a.TplCode,
			Sender:     a.Sender,
			Subject:    a.Subject,
			Emtitle:    a.Emtitle,
			Message:    a.Message,
			ButtonName: a.ButtonName,
			ButtonURL:  a.ButtonURL,
			TestMode:   a.TestMode,
		}, client, zl.Named("aligo"))
	case "directsend":
		d := cfg.DirectSend
		sender = service.NewDirectSendSender(service.DirectSendConfig{
			BaseURL:    d.BaseURL,
			Username:   d.Username,
			APIKey:     d.APIKey,
			PlusID:     d.PlusID,
			TemplateNo: d.TemplateNo,
		}, client, zl.Named("directsend"))
	default:
		return nil, fmt.Errorf("未知的通知服务商 %q", cfg.Notify.Provider)
	}

	return service.NewNotifyService(store, sender, service.NotifyConfig{
		Policy:    policy,
		BatchSize: cfg.Notify.BatchSize,
	}, zl.Named("notify")), nil
}

// initTasks 初始化定时任务
func initTasks(deps *Dependencies) *task.TaskManager {
	cfg := deps.Config
	return task.NewTaskManager(deps.Pipeline, deps.Tokens, deps.Repos.SyncRun, &task.TaskManagerConfig{
		OrderEnabled: cfg.Cron.Enabled,
		OrderSpec:    cfg.Cron.Spec,
		OrderTimeout: cfg.Cron.Timeout,
		RunOnStart:   cfg.Cron.Enabled,
		TokenSpec:    cfg.Cron.TokenSpec,

		RetentionSpec: cfg.Cron.RetentionSpec,
		Retention:     cfg.Cron.Retention,
	}, deps.Logger.Named("task"))
}

// ==================== 命令 ====================

func runServe(c *cli.Context) error {
	deps, err := initDependencies(c)
	if err != nil {
		return err
	}
	defer deps.Close()
	cfg := deps.Config

	// 1. 启动定时任务
	tm := initTasks(deps)
	if err := tm.Start(); err != nil {
		return err
	}
	defer tm.Stop()

	// 2. 初始化路由
	gin.SetMode(cfg.Server.GinMode)
	syncCtl := controller.NewSyncController(tm.Orders(), deps.Tokens, deps.Repos.SyncRun, deps.Logger.Named("http"))
	r := router.New(syncCtl, router.Options{
		SyncToken:      cfg.SyncToken,
		ManualCooldown: cfg.Server.ManualCooldown,
		Logger:         deps.Logger.Named("http"),
	})
	if cfg.SyncToken == "" {
		deps.Logger.Warn("未配置 SYNC_TOKEN，/internal/* 接口将全部拒绝")
	}

	// 3. 启动服务
	return startServer(r, cfg.Server.Port, deps.Logger)
}

func runSync(c *cli.Context) error {
	deps, err := initDependencies(c)
	if err != nil {
		return err
	}
	defer deps.Close()

	report, err := deps.Pipeline.Run(c.Context, model.RunTriggerCLI)
	printReport(deps.Logger, report)
	return err
}

func runDispatch(c *cli.Context) error {
	deps, err := initDependencies(c)
	if err != nil {
		return err
	}
	defer deps.Close()

	report, err := deps.Pipeline.DispatchOnly(c.Context)
	printReport(deps.Logger, report)
	return err
}

func runTokenReload(c *cli.Context) error {
	deps, err := initDependencies(c)
	if err != nil {
		return err
	}
	defer deps.Close()

	// Reload 已在初始化时执行，这里强制换一次访问令牌
	deps.Tokens.Invalidate()
	if _, err := deps.Tokens.Token(c.Context); err != nil {
		return err
	}
	st := deps.Tokens.Status()
	deps.Logger.Info("令牌已刷新", zap.Time("expires_at", st.ExpiresAt))
	return nil
}

func runTokenSeed(c *cli.Context) error {
	rt := c.Args().First()
	if rt == "" {
		return cli.Exit("缺少 refresh_token 参数", 2)
	}

	deps, err := initDependencies(c)
	if err != nil {
		return err
	}
	defer deps.Close()

	if err := deps.Tokens.Seed(c.Context, rt); err != nil {
		return err
	}
	_, err = deps.Tokens.Token(c.Context)
	return err
}

func printReport(zl *zap.Logger, report *dto.RunReport) {
	if report == nil {
		return
	}
	zl.Info("运行结束", zap.Any("report", report))
}

// ==================== HTTP 服务 ====================

// startServer 启动 HTTP 服务 (支持优雅关闭)
func startServer(r *gin.Engine, port string, zl *zap.Logger) error {
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}

	errCh := make(chan error, 1)
	go func() {
		zl.Info("🚀 服务启动", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return fmt.Errorf("服务启动失败: %w", err)
	case <-quit:
	}
	zl.Info("正在关闭服务...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("服务强制关闭: %w", err)
	}
	zl.Info("服务已退出")
	return nil
}
