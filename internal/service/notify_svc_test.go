package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imweb_order_sync/internal/api/dto"
	"imweb_order_sync/internal/model"
	"imweb_order_sync/pkg/gsheet"
)

func newTestNotify(mem *gsheet.Memory, sender Sender, cfg NotifyConfig) *NotifyService {
	return NewNotifyService(NewSheetStore(mem, testStoreTab, nil), sender, cfg, nil)
}

func TestNotify_SkipRules(t *testing.T) {
	mem := newTestSheets()
	mem.SetRows(testStoreTab, 2, [][]string{
		storeRow("https://l/2", "o", "100", "배송중", "a", "010-1111-1111"),                // 已发送，无论状态
		storeRow("https://l/3", "", "200", model.StatusLabelPaid, "b", "010-2222-2222"), // 发送
		storeRow("https://l/4", "", "300", "배송중", "c", "010-3333-3333"),                 // 状态不符
		storeRow("https://l/5", "", "400", model.StatusLabelPaid, "d", "없음"),            // 无数字
		storeRow("https://l/6", "", "", model.StatusLabelPaid, "e", "010-5555-5555"),    // 订单号为空
		storeRow("https://l/7", " O ", "500", model.StatusLabelPaid, "f", "010-6666"),   // 大写 + 空白也算已发送
		storeRow("https://l/8", "", "100", model.StatusLabelPaid, "g", "010-7777-7777"), // 同一订单已发送
	})
	sender := &fakeSender{}

	report, err := newTestNotify(mem, sender, NotifyConfig{}).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"200"}, sender.sentOrderIDs())
	assert.Equal(t, 1, report.Attempted)
	assert.Equal(t, 1, report.Sent)
	assert.Equal(t, 6, report.Skipped)
	assert.Equal(t, model.NotifiedMark, mem.Cell(testStoreTab, 3, 3))
	assert.Equal(t, "", mem.Cell(testStoreTab, 4, 3))

	msg := sender.sent[0]
	assert.Equal(t, 3, msg.Row)
	assert.Equal(t, "01022222222", msg.Phone)
	assert.Equal(t, "https://l/3", msg.Link)
	assert.Equal(t, "b", msg.Name)
}

func TestNotify_FlagOnce(t *testing.T) {
	mem := newTestSheets()
	mem.SetRows(testStoreTab, 2, [][]string{
		storeRow("l", "", "1", model.StatusLabelPaid, "a", "010-1"),
		storeRow("l", "", "2", model.StatusLabelPaid, "b", "010-2"),
	})
	sender := &fakeSender{}
	svc := newTestNotify(mem, sender, NotifyConfig{})

	_, err := svc.Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, sender.sent, 2)
	assert.Equal(t, 1, mem.Calls(gsheet.OpBatchUpdate))

	report, err := svc.Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, sender.sent, 2, "第二轮不应再发送")
	assert.Equal(t, 0, report.Attempted)
	assert.Equal(t, 2, report.Skipped)
}

func TestNotify_DuplicateOrderIDSentOnce(t *testing.T) {
	mem := newTestSheets()
	mem.SetRows(testStoreTab, 2, [][]string{
		storeRow("l", "", "9", model.StatusLabelPaid, "a", "010-1"),
		storeRow("l", "", "9", model.StatusLabelPaid, "a", "010-1"),
	})
	sender := &fakeSender{}

	report, err := newTestNotify(mem, sender, NotifyConfig{}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"9"}, sender.sentOrderIDs())
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, model.NotifiedMark, mem.Cell(testStoreTab, 2, 3))
	assert.Equal(t, "", mem.Cell(testStoreTab, 3, 3))
}

func TestNotify_ContinuePolicy(t *testing.T) {
	mem := newTestSheets()
	mem.SetRows(testStoreTab, 2, [][]string{
		storeRow("l", "", "1", model.StatusLabelPaid, "a", "010-1"),
		storeRow("l", "", "2", model.StatusLabelPaid, "b", "010-2"),
		storeRow("l", "", "3", model.StatusLabelPaid, "c", "010-3"),
	})
	sender := &fakeSender{
		failFor: map[string]bool{"0102": true},
	}

	report, err := newTestNotify(mem, sender, NotifyConfig{Policy: model.DispatchPolicyContinue}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, report.Attempted)
	assert.Equal(t, 2, report.Sent)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, model.NotifiedMark, mem.Cell(testStoreTab, 2, 3))
	assert.Equal(t, "", mem.Cell(testStoreTab, 3, 3), "失败行不标记")
	assert.Equal(t, model.NotifiedMark, mem.Cell(testStoreTab, 4, 3))
}

func TestNotify_AbortPolicy(t *testing.T) {
	mem := newTestSheets()
	mem.SetRows(testStoreTab, 2, [][]string{
		storeRow("l", "", "1", model.StatusLabelPaid, "a", "010-1"),
		storeRow("l", "", "2", model.StatusLabelPaid, "b", "010-2"),
		storeRow("l", "", "3", model.StatusLabelPaid, "c", "010-3"),
	})
	sendErr := errors.New("connection reset")
	sender := &fakeSender{errFor: map[string]error{"0102": sendErr}}

	report, err := newTestNotify(mem, sender, NotifyConfig{Policy: model.DispatchPolicyAbort}).Run(context.Background())

	var dispatchErr *DispatchError
	require.True(t, errors.As(err, &dispatchErr), "err = %v", err)
	assert.Equal(t, 3, dispatchErr.Row)
	assert.Equal(t, "2", dispatchErr.OrderID)
	assert.ErrorIs(t, err, sendErr)

	assert.Equal(t, []string{"1", "2"}, sender.sentOrderIDs(), "中止后不再发送")
	assert.Equal(t, 1, report.Sent)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, model.NotifiedMark, mem.Cell(testStoreTab, 2, 3), "中止前的成功行仍写回")
	assert.Equal(t, "", mem.Cell(testStoreTab, 4, 3))
}

func TestNotify_ProviderRejectionIsFailure(t *testing.T) {
	mem := newTestSheets()
	mem.SetRows(testStoreTab, 2, [][]string{storeRow("l", "", "1", model.StatusLabelPaid, "a", "010-1")})
	sender := &fakeSender{failFor: map[string]bool{"0101": true}}

	_, err := newTestNotify(mem, sender, NotifyConfig{Policy: model.DispatchPolicyAbort}).Run(context.Background())
	assert.ErrorIs(t, err, ErrProviderRejected)
	assert.Equal(t, 0, mem.Calls(gsheet.OpBatchUpdate), "没有成功行时不写回")
}

func TestNotify_BatchMode(t *testing.T) {
	mem := newTestSheets()
	mem.SetRows(testStoreTab, 2, [][]string{
		storeRow("l", "", "1", model.StatusLabelPaid, "a", "010-1"),
		storeRow("l", "", "2", model.StatusLabelPaid, "b", "010-2"),
		storeRow("l", "", "2", model.StatusLabelPaid, "b", "010-2"),
		storeRow("l", "", "3", model.StatusLabelPaid, "c", "010-3"),
		storeRow("l", "o", "4", model.StatusLabelPaid, "d", "010-4"),
	})
	sender := &fakeSender{failFor: map[string]bool{"0103": true}}

	report, err := newTestNotify(mem, sender, NotifyConfig{BatchSize: 2}).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, sender.batches)
	assert.Equal(t, []string{"1", "2", "3"}, sender.sentOrderIDs())
	assert.Equal(t, 3, report.Attempted)
	assert.Equal(t, 2, report.Sent)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 2, report.Skipped)
	assert.Equal(t, model.NotifiedMark, mem.Cell(testStoreTab, 2, 3))
	assert.Equal(t, model.NotifiedMark, mem.Cell(testStoreTab, 3, 3))
	assert.Equal(t, "", mem.Cell(testStoreTab, 4, 3))
	assert.Equal(t, "", mem.Cell(testStoreTab, 5, 3))
}

func TestNotify_BatchRequestFailure(t *testing.T) {
	mem := newTestSheets()
	mem.SetRows(testStoreTab, 2, [][]string{
		storeRow("l", "", "1", model.StatusLabelPaid, "a", "010-1"),
		storeRow("l", "", "2", model.StatusLabelPaid, "b", "010-2"),
	})
	batchErr := errors.New("gateway down")
	sender := &fakeSender{batchErr: batchErr}

	report, err := newTestNotify(mem, sender, NotifyConfig{BatchSize: 10, Policy: model.DispatchPolicyAbort}).Run(context.Background())
	assert.ErrorIs(t, err, batchErr)
	assert.Equal(t, 2, report.Failed)
	assert.Equal(t, 0, report.Sent)
}

func TestNotify_MarkFailureIsStoreError(t *testing.T) {
	mem := newTestSheets()
	mem.SetRows(testStoreTab, 2, [][]string{storeRow("l", "", "1", model.StatusLabelPaid, "a", "010-1")})
	mem.SetFault(gsheet.OpBatchUpdate, errors.New("quota"))
	sender := &fakeSender{}

	report, err := newTestNotify(mem, sender, NotifyConfig{}).Run(context.Background())
	var storeErr *StoreError
	require.True(t, errors.As(err, &storeErr), "err = %v", err)
	assert.Equal(t, 1, report.Sent)
}

// ==================== 单行发送 ====================

func TestNotify_SendRow(t *testing.T) {
	mem := newTestSheets()
	mem.SetRows(testStoreTab, 2, [][]string{
		storeRow("https://l/2", "", "100", model.StatusLabelPaid, "a", "010-1111-1111"),
		storeRow("https://l/3", "", "200", "배송중", "b", "010-2222-2222"),
	})
	sender := &fakeSender{}
	svc := newTestNotify(mem, sender, NotifyConfig{})

	res, err := svc.SendRow(context.Background(), dto.WebhookInviteRequest{Row: 3, Phone: "010-9999-0000", Link: "https://form/x"})
	require.NoError(t, err)
	assert.True(t, res.Success)

	require.Len(t, sender.sent, 1)
	msg := sender.sent[0]
	assert.Equal(t, 3, msg.Row)
	assert.Equal(t, "200", msg.OrderID)
	assert.Equal(t, "01099990000", msg.Phone)
	assert.Equal(t, "https://form/x", msg.Link)
	assert.Equal(t, model.NotifiedMark, mem.Cell(testStoreTab, 3, 3))
	assert.Equal(t, "", mem.Cell(testStoreTab, 2, 3))
}

func TestNotify_SendRowFallsBackToSheet(t *testing.T) {
	mem := newTestSheets()
	mem.SetRows(testStoreTab, 2, [][]string{
		storeRow("https://l/2", "", "100", model.StatusLabelPaid, "a", "010-1111-1111"),
	})
	sender := &fakeSender{}

	_, err := newTestNotify(mem, sender, NotifyConfig{}).SendRow(context.Background(), dto.WebhookInviteRequest{Row: 2})
	require.NoError(t, err)
	require.Len(t, sender.sent, 1)
	assert.Equal(t, "01011111111", sender.sent[0].Phone)
	assert.Equal(t, "https://l/2", sender.sent[0].Link)
}

func TestNotify_SendRowAlreadyNotified(t *testing.T) {
	mem := newTestSheets()
	mem.SetRows(testStoreTab, 2, [][]string{
		storeRow("l", " o ", "100", model.StatusLabelPaid, "a", "010-1"),
	})
	sender := &fakeSender{}

	_, err := newTestNotify(mem, sender, NotifyConfig{}).SendRow(context.Background(), dto.WebhookInviteRequest{Row: 2, Phone: "010-1"})
	assert.ErrorIs(t, err, ErrAlreadyNotified)
	assert.Empty(t, sender.sent)
	assert.Equal(t, 0, mem.Calls(gsheet.OpBatchUpdate))
}

func TestNotify_SendRowNoPhone(t *testing.T) {
	mem := newTestSheets()
	sender := &fakeSender{}

	_, err := newTestNotify(mem, sender, NotifyConfig{}).SendRow(context.Background(), dto.WebhookInviteRequest{Row: 7})
	assert.ErrorIs(t, err, ErrNoPhone)
	assert.Empty(t, sender.sent)
}

func TestNotify_SendRowRejectedNotFlagged(t *testing.T) {
	mem := newTestSheets()
	mem.SetRows(testStoreTab, 2, [][]string{
		storeRow("l", "", "100", model.StatusLabelPaid, "a", "010-1"),
	})
	sender := &fakeSender{failFor: map[string]bool{"0101": true}}

	_, err := newTestNotify(mem, sender, NotifyConfig{}).SendRow(context.Background(), dto.WebhookInviteRequest{Row: 2})
	var dispatchErr *DispatchError
	require.ErrorAs(t, err, &dispatchErr)
	assert.Equal(t, 2, dispatchErr.Row)
	assert.ErrorIs(t, err, ErrProviderRejected)
	assert.Equal(t, "", mem.Cell(testStoreTab, 2, 3))
}
