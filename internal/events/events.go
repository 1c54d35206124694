// Package events 向外广播代理的关键动作：钱包绑定、转账确认、工具失败等。
// 事件是尽力而为的旁路信号，发布失败不影响对话主流程。
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Type 标识事件种类。
type Type string

const (
	TypeWalletConnected    Type = "wallet.connected"
	TypeWalletDisconnected Type = "wallet.disconnected"
	TypeTransferConfirmed  Type = "transfer.confirmed"
	TypeToolFailed         Type = "tool.failed"
)

// Event 是一条已经发生的代理动作记录。Payload 中不允许出现任何私钥
// 或凭证内容，只记录地址、链名、交易哈希这类公开信息。
type Event struct {
	ID        string            `json:"id"`
	Type      Type              `json:"type"`
	SessionID string            `json:"sessionId"`
	ChainKey  string            `json:"chainKey,omitempty"`
	Payload   map[string]string `json:"payload,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// New 创建带有 ID 和时间戳的事件。
func New(eventType Type, sessionID, chainKey string, payload map[string]string) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		SessionID: sessionID,
		ChainKey:  chainKey,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}
}

// Publisher 负责向下游投递事件。
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// NoopPublisher 丢弃所有事件，事件功能关闭时使用。
type NoopPublisher struct{}

// Publish 丢弃事件。
func (NoopPublisher) Publish(context.Context, Event) error { return nil }

// Close 无操作。
func (NoopPublisher) Close() error { return nil }
