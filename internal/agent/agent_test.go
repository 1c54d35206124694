package agent

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"

	"github.com/NikhilRaikwar/Nexis/internal/chain"
	"github.com/NikhilRaikwar/Nexis/internal/chain/evm"
	"github.com/NikhilRaikwar/Nexis/internal/chain/solana"
	xerrors "github.com/NikhilRaikwar/Nexis/internal/errors"
	"github.com/NikhilRaikwar/Nexis/internal/events"
	"github.com/NikhilRaikwar/Nexis/internal/llm"
	"github.com/NikhilRaikwar/Nexis/internal/tools"
	"github.com/NikhilRaikwar/Nexis/internal/wallet"
)

// scriptedModel 按脚本逐轮返回回复；脚本耗尽后重复最后一条。
type scriptedModel struct {
	mu        sync.Mutex
	responses []*llm.Response
	requests  []llm.Request
}

func (m *scriptedModel) Chat(_ context.Context, req llm.Request) (*llm.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	idx := len(m.requests) - 1
	if idx >= len(m.responses) {
		idx = len(m.responses) - 1
	}
	return m.responses[idx], nil
}

func (m *scriptedModel) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

func newRuntime() *tools.Runtime {
	registry := chain.NewRegistry()
	return &tools.Runtime{
		Registry:  registry,
		Catalog:   chain.NewCatalogFrom(nil),
		Session:   wallet.NewSession(registry),
		SessionID: "session-test",
		EVM:       evm.NewDialer(),
		Solana:    solana.NewDialer(),
		Events:    events.NewMemoryPublisher(16),
	}
}

func TestRespondTerminalAnswer(t *testing.T) {
	model := &scriptedModel{responses: []*llm.Response{{Content: "Hello! How can I help?"}}}
	engine := New(model, tools.DefaultSet())

	result, err := engine.Respond(context.Background(), newRuntime(), Request{SessionID: "s", Input: "hi"})
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if result.Answer != "Hello! How can I help?" || result.Rounds != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestRespondRejectsEmptyInput(t *testing.T) {
	engine := New(&scriptedModel{responses: []*llm.Response{{Content: "x"}}}, tools.DefaultSet())

	_, err := engine.Respond(context.Background(), newRuntime(), Request{Input: "   "})
	if xerrors.CodeOf(err) != xerrors.CodeInvalidArgument {
		t.Fatalf("expected INVALID_ARGUMENT, got %v", err)
	}
}

func TestRespondExecutesToolsInOrder(t *testing.T) {
	model := &scriptedModel{responses: []*llm.Response{
		{ToolCalls: []llm.ToolCall{
			{ID: "call_1", Name: "help", Arguments: json.RawMessage(`{}`)},
			{ID: "call_2", Name: "no_such_tool", Arguments: json.RawMessage(`{}`)},
		}},
		{Content: "done"},
	}}
	engine := New(model, tools.DefaultSet())

	result, err := engine.Respond(context.Background(), newRuntime(), Request{SessionID: "s", Input: "what can you do"})
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if result.Answer != "done" || result.Rounds != 2 {
		t.Fatalf("unexpected result: %+v", result)
	}

	// 第二次模型调用携带：system、user、assistant、两条按请求顺序排列的工具结果。
	second := model.requests[1].Messages
	if len(second) != 5 {
		t.Fatalf("expected 5 messages in second request, got %d", len(second))
	}
	if second[2].Role != llm.RoleAssistant || len(second[2].ToolCalls) != 2 {
		t.Fatalf("expected assistant message with tool calls, got %+v", second[2])
	}
	if second[3].Role != llm.RoleTool || second[3].ToolCallID != "call_1" {
		t.Fatalf("expected first tool result for call_1, got %+v", second[3])
	}
	if !strings.Contains(second[3].Content, "Available tools") {
		t.Fatalf("expected help output, got %q", second[3].Content)
	}
	if second[4].ToolCallID != "call_2" || !strings.Contains(second[4].Content, "failed") {
		t.Fatalf("expected failure text for unknown tool, got %+v", second[4])
	}
}

func TestRespondToolFailureDoesNotAbort(t *testing.T) {
	model := &scriptedModel{responses: []*llm.Response{
		{ToolCalls: []llm.ToolCall{{ID: "call_1", Name: "transfer_tokens", Arguments: json.RawMessage(`{"chain": "baseSepolia", "recipient": "0x000000000000000000000000000000000000dEaD", "amount": "0.1"}`)}}},
		{Content: "sorry, connect a wallet first"},
	}}
	engine := New(model, tools.DefaultSet())
	rt := newRuntime()

	result, err := engine.Respond(context.Background(), rt, Request{SessionID: "s", Input: "send money"})
	if err != nil {
		t.Fatalf("tool failure must not escape the loop: %v", err)
	}
	if result.Answer != "sorry, connect a wallet first" {
		t.Fatalf("unexpected answer: %q", result.Answer)
	}

	toolMsg := model.requests[1].Messages[3]
	if !strings.Contains(toolMsg.Content, "no wallet connected") {
		t.Fatalf("expected sanitized failure text, got %q", toolMsg.Content)
	}
}

func TestRespondForcedTermination(t *testing.T) {
	model := &scriptedModel{responses: []*llm.Response{
		{ToolCalls: []llm.ToolCall{{ID: "call_loop", Name: "help", Arguments: json.RawMessage(`{}`)}}},
	}}
	engine := New(model, tools.DefaultSet(), WithMaxRounds(3))

	result, err := engine.Respond(context.Background(), newRuntime(), Request{SessionID: "s", Input: "loop forever"})
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if model.callCount() != 3 {
		t.Fatalf("expected exactly 3 model calls, got %d", model.callCount())
	}
	if !strings.Contains(result.Answer, "wasn't able to complete") {
		t.Fatalf("expected degraded answer, got %q", result.Answer)
	}
	if result.Rounds != 3 {
		t.Fatalf("expected rounds == cap, got %d", result.Rounds)
	}
}
