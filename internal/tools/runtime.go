// Package tools 定义代理可调用的工具目录。每个工具是一个独立可测的单元，
// 声明自己的 JSON 参数模式，执行后返回一段面向用户的英文文本。
package tools

import (
	"context"
	"log/slog"

	"github.com/NikhilRaikwar/Nexis/internal/chain"
	"github.com/NikhilRaikwar/Nexis/internal/chain/evm"
	"github.com/NikhilRaikwar/Nexis/internal/chain/solana"
	"github.com/NikhilRaikwar/Nexis/internal/events"
	"github.com/NikhilRaikwar/Nexis/internal/llm"
	"github.com/NikhilRaikwar/Nexis/internal/price"
	"github.com/NikhilRaikwar/Nexis/internal/records"
	"github.com/NikhilRaikwar/Nexis/internal/wallet"
	"github.com/NikhilRaikwar/Nexis/pkg/logger"
)

// Runtime 汇集一次请求中工具执行所需的全部依赖。
// Session 按请求方隔离，链客户端与价格客户端可跨会话共享。
type Runtime struct {
	Registry  *chain.Registry
	Catalog   *chain.Catalog
	Session   *wallet.Session
	SessionID string
	EVM       *evm.Dialer
	Solana    *solana.Dialer
	Prices    *price.Client
	Extractor llm.Client
	Events    events.Publisher
	Records   records.Store
	Log       *slog.Logger
}

func (rt *Runtime) logger() *slog.Logger {
	if rt.Log != nil {
		return rt.Log
	}
	return logger.Named("tools")
}

// publish 尽力而为地发布事件，失败只记日志，不影响工具结果。
func (rt *Runtime) publish(ctx context.Context, eventType events.Type, chainKey string, payload map[string]string) {
	if rt.Events == nil {
		return
	}
	event := events.New(eventType, rt.SessionID, chainKey, payload)
	if err := rt.Events.Publish(ctx, event); err != nil {
		rt.logger().Warn("事件发布失败", "type", string(eventType), "error", err)
	}
}

// audit 写入审计日志。只记录地址、链与交易哈希等公开信息。
func (rt *Runtime) audit(msg string, args ...any) {
	logger.Audit().Info(msg, append([]any{"session", rt.SessionID}, args...)...)
}

// saveRecord 尽力而为地落库转账记录。
func (rt *Runtime) saveRecord(ctx context.Context, record records.Record) {
	if rt.Records == nil {
		return
	}
	if err := rt.Records.Save(ctx, record); err != nil {
		rt.logger().Warn("转账记录写入失败", "chain", record.ChainKey, "error", err)
	}
}
