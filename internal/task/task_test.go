package task

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"imweb_order_sync/internal/api/dto"
	"imweb_order_sync/internal/model"
)

// ==================== 测试替身 ====================

// blockingRunner Run 在 release 关闭前阻塞
type blockingRunner struct {
	started  chan struct{}
	release  chan struct{}
	runs     int32
	triggers []model.RunTrigger
	mu       sync.Mutex
	err      error
}

func newBlockingRunner() *blockingRunner {
	return &blockingRunner{started: make(chan struct{}, 10), release: make(chan struct{})}
}

func (r *blockingRunner) Run(ctx context.Context, trigger model.RunTrigger) (*dto.RunReport, error) {
	atomic.AddInt32(&r.runs, 1)
	r.mu.Lock()
	r.triggers = append(r.triggers, trigger)
	r.mu.Unlock()
	r.started <- struct{}{}
	<-r.release
	if r.err != nil {
		return nil, r.err
	}
	return &dto.RunReport{Trigger: string(trigger)}, nil
}

func (r *blockingRunner) DispatchOnly(ctx context.Context) (*dto.RunReport, error) {
	atomic.AddInt32(&r.runs, 1)
	r.started <- struct{}{}
	<-r.release
	return &dto.RunReport{Trigger: string(model.RunTriggerDispatch)}, nil
}

func (r *blockingRunner) SendRow(ctx context.Context, req dto.WebhookInviteRequest) (*dto.NotifyResult, error) {
	atomic.AddInt32(&r.runs, 1)
	return &dto.NotifyResult{Success: true, Code: "1"}, nil
}

type countingTokens struct {
	calls int32
	err   error
}

func (c *countingTokens) Token(ctx context.Context) (string, error) {
	atomic.AddInt32(&c.calls, 1)
	return "tok", c.err
}

// ==================== OrderSyncTask 测试 ====================

func TestOrderSyncTask_OverlappingRunRejected(t *testing.T) {
	runner := newBlockingRunner()
	task := NewOrderSyncTask(runner, "", 0, nil)

	done := make(chan error, 1)
	go func() {
		_, err := task.RunNow(context.Background(), model.RunTriggerManual)
		done <- err
	}()
	<-runner.started

	if _, err := task.RunNow(context.Background(), model.RunTriggerManual); !errors.Is(err, ErrRunInProgress) {
		t.Errorf("重叠的 RunNow err = %v, want ErrRunInProgress", err)
	}
	if _, err := task.DispatchNow(context.Background()); !errors.Is(err, ErrRunInProgress) {
		t.Errorf("重叠的 DispatchNow err = %v, want ErrRunInProgress", err)
	}

	close(runner.release)
	if err := <-done; err != nil {
		t.Fatalf("第一轮 err = %v", err)
	}

	// 锁释放后可以再次执行
	report, err := task.RunNow(context.Background(), model.RunTriggerCLI)
	if err != nil {
		t.Fatalf("RunNow err = %v", err)
	}
	if report.Trigger != string(model.RunTriggerCLI) {
		t.Errorf("Trigger = %s, want cli", report.Trigger)
	}
	if got := atomic.LoadInt32(&runner.runs); got != 2 {
		t.Errorf("runs = %d, want 2", got)
	}
}

func TestOrderSyncTask_SendRowSharesRunLock(t *testing.T) {
	runner := newBlockingRunner()
	task := NewOrderSyncTask(runner, "", time.Minute, nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = task.RunNow(context.Background(), model.RunTriggerManual)
	}()
	<-runner.started

	if _, err := task.SendRowNow(context.Background(), dto.WebhookInviteRequest{Row: 2}); !errors.Is(err, ErrRunInProgress) {
		t.Errorf("SendRowNow during run err = %v, want ErrRunInProgress", err)
	}
	close(runner.release)
	<-done

	res, err := task.SendRowNow(context.Background(), dto.WebhookInviteRequest{Row: 2})
	if err != nil {
		t.Fatalf("SendRowNow err = %v", err)
	}
	if !res.Success {
		t.Error("Success = false, want true")
	}
}

func TestOrderSyncTask_RunScheduledUsesTrigger(t *testing.T) {
	runner := newBlockingRunner()
	close(runner.release)
	task := NewOrderSyncTask(runner, "", time.Minute, nil)

	task.runScheduled()

	runner.mu.Lock()
	defer runner.mu.Unlock()
	if len(runner.triggers) != 1 || runner.triggers[0] != model.RunTriggerScheduled {
		t.Errorf("triggers = %v, want [scheduled]", runner.triggers)
	}
}

func TestOrderSyncTask_RunScheduledSwallowsErrors(t *testing.T) {
	runner := newBlockingRunner()
	runner.err = errors.New("upstream down")
	close(runner.release)
	task := NewOrderSyncTask(runner, "", time.Minute, nil)

	// 失败只记录日志
	task.runScheduled()
	if got := atomic.LoadInt32(&runner.runs); got != 1 {
		t.Errorf("runs = %d, want 1", got)
	}
}

func TestOrderSyncTask_InvalidSpec(t *testing.T) {
	task := NewOrderSyncTask(newBlockingRunner(), "every ten minutes", 0, nil)
	if err := task.Start(); err == nil {
		t.Error("无效的 cron 表达式应返回错误")
	}
}

func TestOrderSyncTask_StartWithoutInitialRun(t *testing.T) {
	runner := newBlockingRunner()
	close(runner.release)
	task := NewOrderSyncTask(runner, "0 0 0 1 1 *", 0, nil)
	task.SetRunOnStart(false)

	if err := task.Start(); err != nil {
		t.Fatalf("Start err = %v", err)
	}
	task.Stop()

	if got := atomic.LoadInt32(&runner.runs); got != 0 {
		t.Errorf("runs = %d, want 0", got)
	}
}

// ==================== TokenTask 测试 ====================

func TestTokenTask_RefreshJob(t *testing.T) {
	tokens := &countingTokens{}
	task := NewTokenTask(tokens, "", nil)

	task.refreshJob()
	tokens.err = errors.New("rejected")
	task.refreshJob()

	if got := atomic.LoadInt32(&tokens.calls); got != 2 {
		t.Errorf("calls = %d, want 2", got)
	}
}

// ==================== TaskManager 测试 ====================

func TestTaskManager_Status(t *testing.T) {
	cfg := DefaultConfig()
	cfg.OrderEnabled = false
	cfg.RunOnStart = false
	tm := NewTaskManager(newBlockingRunner(), &countingTokens{}, nil, cfg, nil)

	status := tm.Status()
	if status["order_schedule"] {
		t.Error("order_schedule = true, want false")
	}
	if !status["token"] {
		t.Error("token = false, want true")
	}
	if status["retention"] {
		t.Error("retention = true, want false (未提供仓储)")
	}
	if tm.Orders() == nil {
		t.Fatal("关闭定时同步时仍应提供手动触发入口")
	}
}

func TestTaskManager_NoTokenTaskWithoutSpec(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TokenSpec = ""
	tm := NewTaskManager(newBlockingRunner(), &countingTokens{}, nil, cfg, nil)
	if tm.Status()["token"] {
		t.Error("TokenSpec 为空时不应创建保活任务")
	}
}

func TestTaskManager_StartStop(t *testing.T) {
	runner := newBlockingRunner()
	close(runner.release)
	cfg := &TaskManagerConfig{
		OrderEnabled: true,
		OrderSpec:    "0 0 0 1 1 *",
		RunOnStart:   false,
		TokenSpec:    "0 0 0 1 1 *",

		RetentionSpec: "0 0 0 1 1 *",
	}
	tm := NewTaskManager(runner, &countingTokens{}, &fakePruner{}, cfg, nil)
	if err := tm.Start(); err != nil {
		t.Fatalf("Start err = %v", err)
	}
	tm.Stop()
}

// ==================== RetentionTask 测试 ====================

type fakePruner struct {
	before time.Time
	calls  int
	err    error
}

func (f *fakePruner) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	f.calls++
	f.before = before
	return 3, f.err
}

func TestRetentionTask_PruneJob(t *testing.T) {
	pruner := &fakePruner{}
	task := NewRetentionTask(pruner, "0 30 4 * * *", 48*time.Hour, nil)
	now := time.Date(2025, 3, 10, 4, 30, 0, 0, time.UTC)
	task.now = func() time.Time { return now }

	task.pruneJob()
	pruner.err = errors.New("db down")
	task.pruneJob()

	if pruner.calls != 2 {
		t.Errorf("calls = %d, want 2", pruner.calls)
	}
	if want := now.Add(-48 * time.Hour); !pruner.before.Equal(want) {
		t.Errorf("before = %v, want %v", pruner.before, want)
	}
}

func TestRetentionTask_DefaultRetention(t *testing.T) {
	task := NewRetentionTask(&fakePruner{}, "0 30 4 * * *", 0, nil)
	if task.retention != 30*24*time.Hour {
		t.Errorf("retention = %v, want 720h", task.retention)
	}
}
