package llm

import (
	"context"
	"encoding/json"
)

// Role 标识会话消息的发送方。
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message 是会话中的一条消息。工具结果消息通过 ToolCallID 关联请求。
type Message struct {
	Role       Role
	Content    string
	ToolCalls  []ToolCall
	ToolCallID string
}

// ToolCall 描述模型请求的一次工具调用，Arguments 为原始 JSON。
type ToolCall struct {
	ID        string
	Name      string
	Arguments json.RawMessage
}

// ToolSpec 向模型声明一个可调用的工具及其参数模式。
type ToolSpec struct {
	Name        string
	Description string
	Parameters  json.RawMessage
}

// Request 描述一次推理请求：完整的消息历史加上可用的工具目录。
type Request struct {
	Messages []Message
	Tools    []ToolSpec
}

// Response 是模型的一次回复：要么给出最终文本，要么请求若干工具调用。
type Response struct {
	Content   string
	ToolCalls []ToolCall
}

// Terminal 判断回复是否为最终答案（不再请求任何工具）。
func (r *Response) Terminal() bool {
	return r != nil && len(r.ToolCalls) == 0
}

// Client 定义了调用大模型的统一接口。
type Client interface {
	Chat(ctx context.Context, req Request) (*Response, error)
}
