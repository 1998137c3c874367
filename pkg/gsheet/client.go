package gsheet

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"imweb_order_sync/pkg/net"
)

// Credentials 服务账号凭证来源，JSON 优先于文件
type Credentials struct {
	// JSON 原文或其 base64 编码
	JSON string
	File string
	// Endpoint 覆盖 API 地址 (测试/代理)
	Endpoint string
}

// NewService 创建 Sheets API 服务
func NewService(ctx context.Context, creds Credentials, opts ...option.ClientOption) (*sheets.Service, error) {
	all := []option.ClientOption{option.WithScopes(sheets.SpreadsheetsScope)}

	switch {
	case creds.JSON != "":
		raw, err := decodeCredentials(creds.JSON)
		if err != nil {
			return nil, err
		}
		all = append(all, option.WithCredentialsJSON(raw))
	case creds.File != "":
		all = append(all, option.WithCredentialsFile(creds.File))
	}
	if creds.Endpoint != "" {
		all = append(all, option.WithEndpoint(creds.Endpoint))
	}
	all = append(all, opts...)

	svc, err := sheets.NewService(ctx, all...)
	if err != nil {
		return nil, fmt.Errorf("创建 Sheets 服务失败: %w", err)
	}
	return svc, nil
}

func decodeCredentials(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "{") {
		return []byte(s), nil
	}
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("服务账号凭证既不是 JSON 也不是 base64: %w", err)
	}
	return raw, nil
}

// ==================== Google Sheets 后端 ====================

// Client 绑定到单个表格文件的 Values 实现
// 读写分别使用不同的重试策略
type Client struct {
	svc           *sheets.Service
	spreadsheetID string
	read          *net.Retrier
	write         *net.Retrier
	logger        *zap.Logger
}

// NewClient 创建表格客户端
func NewClient(svc *sheets.Service, spreadsheetID string, read, write *net.Retrier, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		read:          read,
		write:         write,
		logger:        logger,
	}
}

func (c *Client) Get(ctx context.Context, rng string) ([][]string, error) {
	var out [][]string
	err := c.read.Do(ctx, "sheets.get "+rng, func(ctx context.Context) error {
		resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
		if err != nil {
			return convertError(err)
		}
		out = toStrings(resp.Values)
		return nil
	})
	if err != nil {
		return nil, err
	}
	c.logger.Debug("读取区域", zap.String("range", rng), zap.Int("rows", len(out)))
	return out, nil
}

func (c *Client) Update(ctx context.Context, rng string, rows [][]interface{}) error {
	return c.write.Do(ctx, "sheets.update "+rng, func(ctx context.Context) error {
		_, err := c.svc.Spreadsheets.Values.
			Update(c.spreadsheetID, rng, &sheets.ValueRange{Values: rows}).
			ValueInputOption(ValueInputOption).
			Context(ctx).
			Do()
		return convertError(err)
	})
}

func (c *Client) Append(ctx context.Context, rng string, rows [][]interface{}) error {
	return c.write.Do(ctx, "sheets.append "+rng, func(ctx context.Context) error {
		_, err := c.svc.Spreadsheets.Values.
			Append(c.spreadsheetID, rng, &sheets.ValueRange{Values: rows}).
			ValueInputOption(ValueInputOption).
			Context(ctx).
			Do()
		return convertError(err)
	})
}

func (c *Client) BatchUpdate(ctx context.Context, data []RangeValues) error {
	if len(data) == 0 {
		return nil
	}
	req := &sheets.BatchUpdateValuesRequest{ValueInputOption: ValueInputOption}
	for _, d := range data {
		req.Data = append(req.Data, &sheets.ValueRange{Range: d.Range, Values: d.Values})
	}
	return c.write.Do(ctx, fmt.Sprintf("sheets.batchUpdate x%d", len(data)), func(ctx context.Context) error {
		_, err := c.svc.Spreadsheets.Values.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do()
		return convertError(err)
	})
}

// convertError googleapi.Error 转为带状态码的错误，交给重试器分类
func convertError(err error) error {
	if err == nil {
		return nil
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return &net.StatusError{StatusCode: gerr.Code, Body: net.Truncate(gerr.Message), Err: err}
	}
	return err
}

func toStrings(values [][]interface{}) [][]string {
	out := make([][]string, len(values))
	for i, row := range values {
		cells := make([]string, len(row))
		for j, v := range row {
			if v != nil {
				cells[j] = fmt.Sprint(v)
			}
		}
		out[i] = cells
	}
	return out
}
