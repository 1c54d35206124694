// Package records 持久化已确认的转账记录，供审计与历史查询使用。
// 记录中只保留公开信息：地址、链、金额与交易哈希，绝不落盘任何私钥。
package records

import (
	"context"
	"time"
)

// Record 表示一笔已确认的转账。
type Record struct {
	ID          string `json:"id"`
	SessionID   string `json:"sessionId"`
	ChainKey    string `json:"chain"`
	FromAddress string `json:"from"`
	ToAddress   string `json:"to"`
	Amount      string `json:"amount"`
	Symbol      string `json:"symbol"`
	TxHash      string `json:"txHash"`
	CreatedAt   int64  `json:"createdAt"`
}

// Store 抽象转账记录的持久化接口。
type Store interface {
	Save(ctx context.Context, record Record) error
	ListLatest(ctx context.Context, limit int) ([]Record, error)
	Close() error
}

// NopStore 丢弃所有记录，存储功能关闭时使用。
type NopStore struct{}

// Save 丢弃记录。
func (NopStore) Save(context.Context, Record) error { return nil }

// ListLatest 返回空列表。
func (NopStore) ListLatest(context.Context, int) ([]Record, error) { return nil, nil }

// Close 无操作。
func (NopStore) Close() error { return nil }

// Stamp 返回记录用的时间戳。
func Stamp() int64 {
	return time.Now().Unix()
}
