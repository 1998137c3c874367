package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"imweb_order_sync/internal/api/dto"
	"imweb_order_sync/internal/model"
	"imweb_order_sync/pkg/gsheet"
	"imweb_order_sync/pkg/net"
)

// ==================== 测试辅助 ====================

const (
	testStoreTab  = "통합시트"
	testLedgerTab = "주문번호"
)

// newFastClient 重试间隔 1ms，无抖动
func newFastClient(attempts int) *net.Client {
	r := net.NewRetrier(net.RetryPolicy{MaxAttempts: attempts, BaseDelay: time.Millisecond}, nil)
	return net.NewClient(5*time.Second, r)
}

func setupServiceTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("连接测试数据库失败: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("获取底层 SQL DB 失败: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(&model.Credential{}, &model.SyncRun{}); err != nil {
		t.Fatalf("数据库迁移失败: %v", err)
	}
	return db
}

// newTestSheets 带表头的内存表格
func newTestSheets() *gsheet.Memory {
	mem := gsheet.NewMemory()
	mem.SetRows(testStoreTab, 1, [][]string{{"메모", "링크", "발송", "주문번호", "상태", "상품명", "이름", "이메일", "전화", "금액", "시작일", "종료일"}})
	mem.SetRows(testLedgerTab, 1, [][]string{{"주문번호"}})
	return mem
}

// storeRow 构造一行存储表单元格 (A..L)
func storeRow(link, flag, orderID, label, name, phone string) []string {
	return []string{"", link, flag, orderID, label, "상품", name, "", phone, "", "", ""}
}

// fakeTokens 固定令牌
type fakeTokens struct {
	mu          sync.Mutex
	tokens      []string
	err         error
	calls       int
	invalidated int
}

func (f *fakeTokens) Token(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	if len(f.tokens) == 0 {
		return "tok", nil
	}
	// 每次 Invalidate 后换下一个令牌
	idx := min(f.invalidated, len(f.tokens)-1)
	return f.tokens[idx], nil
}

func (f *fakeTokens) Invalidate() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidated++
}

// fakeSource 固定的一页订单
type fakeSource struct {
	orders []model.Order
	err    error
	calls  int
}

func (f *fakeSource) FetchPage(ctx context.Context, siteCode string, page, limit int) ([]model.Order, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.orders, nil
}

// fakeSender 按手机号决定结果
type fakeSender struct {
	mu       sync.Mutex
	sent     []dto.NotifyMessage
	batches  int
	failFor  map[string]bool  // phone -> 服务商拒绝
	errFor   map[string]error // phone -> 请求失败
	batchErr error
}

func (f *fakeSender) Name() string { return "fake" }

func (f *fakeSender) Send(ctx context.Context, msg dto.NotifyMessage) (*dto.NotifyResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	if err := f.errFor[msg.Phone]; err != nil {
		return nil, err
	}
	if f.failFor[msg.Phone] {
		return &dto.NotifyResult{Success: false, Code: "-99", Message: "rejected"}, nil
	}
	return &dto.NotifyResult{Success: true, Code: "1"}, nil
}

func (f *fakeSender) SendBatch(ctx context.Context, msgs []dto.NotifyMessage) ([]dto.NotifyResult, error) {
	f.mu.Lock()
	f.batches++
	batchErr := f.batchErr
	f.mu.Unlock()
	if batchErr != nil {
		return nil, batchErr
	}
	out := make([]dto.NotifyResult, 0, len(msgs))
	for _, m := range msgs {
		res, err := f.Send(ctx, m)
		if err != nil {
			out = append(out, dto.NotifyResult{Success: false, Message: err.Error()})
			continue
		}
		out = append(out, *res)
	}
	return out, nil
}

func (f *fakeSender) sentOrderIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]string, len(f.sent))
	for i, m := range f.sent {
		ids[i] = m.OrderID
	}
	return ids
}

func paidAt(s string) *time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return &t
}
