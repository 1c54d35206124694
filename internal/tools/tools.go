package tools

import (
	"context"
	"encoding/json"

	xerrors "github.com/NikhilRaikwar/Nexis/internal/errors"
	"github.com/NikhilRaikwar/Nexis/internal/llm"
)

// Tool 是一个可被模型调用的命名操作。
type Tool struct {
	Name        string
	Description string
	Parameters  json.RawMessage
	Run         func(ctx context.Context, rt *Runtime, args json.RawMessage) (string, error)
}

// Set 以注册顺序保存工具目录。
type Set struct {
	order  []string
	byName map[string]*Tool
}

// NewSet 用给定工具构建目录，重名的后注册者被忽略。
func NewSet(entries ...*Tool) *Set {
	s := &Set{byName: make(map[string]*Tool, len(entries))}
	for _, tool := range entries {
		if tool == nil || tool.Name == "" {
			continue
		}
		if _, dup := s.byName[tool.Name]; dup {
			continue
		}
		s.byName[tool.Name] = tool
		s.order = append(s.order, tool.Name)
	}
	return s
}

// DefaultSet 返回完整的工具目录。
func DefaultSet() *Set {
	s := NewSet(
		connectWalletTool(),
		disconnectWalletTool(),
		getWalletAddressTool(),
		getBalanceTool(),
		getAllBalancesTool(),
		transferTokensTool(),
		smartTransferTool(),
		getGasPricesTool(),
		getTokenPricesTool(),
		getFaucetTokensTool(),
	)
	// help 需要读取目录本身，最后注册。
	s.register(helpTool(s))
	return s
}

func (s *Set) register(tool *Tool) {
	if tool == nil || tool.Name == "" {
		return
	}
	if _, dup := s.byName[tool.Name]; dup {
		return
	}
	s.byName[tool.Name] = tool
	s.order = append(s.order, tool.Name)
}

// Specs 按注册顺序导出提供给模型的工具声明。
func (s *Set) Specs() []llm.ToolSpec {
	specs := make([]llm.ToolSpec, 0, len(s.order))
	for _, name := range s.order {
		tool := s.byName[name]
		specs = append(specs, llm.ToolSpec{
			Name:        tool.Name,
			Description: tool.Description,
			Parameters:  tool.Parameters,
		})
	}
	return specs
}

// Names 按注册顺序返回工具名。
func (s *Set) Names() []string {
	names := make([]string, len(s.order))
	copy(names, s.order)
	return names
}

// Execute 执行一次模型请求的工具调用。
func (s *Set) Execute(ctx context.Context, rt *Runtime, call llm.ToolCall) (string, error) {
	tool, ok := s.byName[call.Name]
	if !ok {
		return "", xerrors.Newf(xerrors.CodeInvalidArgument, "unknown tool %q", call.Name)
	}
	args := call.Arguments
	if len(args) == 0 {
		args = json.RawMessage(`{}`)
	}
	return tool.Run(ctx, rt, args)
}

// decodeArgs 解析工具参数，格式非法时返回 INVALID_ARGUMENT。
func decodeArgs(raw json.RawMessage, out any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return xerrors.Wrap(xerrors.CodeInvalidArgument, err, "invalid tool arguments")
	}
	return nil
}
