package agent

import (
	"context"
	stdErrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	xerrors "github.com/NikhilRaikwar/Nexis/internal/errors"
	"github.com/NikhilRaikwar/Nexis/internal/events"
	"github.com/NikhilRaikwar/Nexis/internal/llm"
	"github.com/NikhilRaikwar/Nexis/internal/observability/metrics"
	"github.com/NikhilRaikwar/Nexis/internal/tools"
	"github.com/NikhilRaikwar/Nexis/pkg/logger"
)

// defaultMaxRounds 限制单次请求内模型请求工具的轮数上限。
// 一直要求调用工具的模型会被强制终止，避免无限循环。
const defaultMaxRounds = 10

// Request 描述一次对话请求。
type Request struct {
	SessionID string
	Input     string
	History   []llm.Message
}

// Result 汇总一次对话的最终输出。
type Result struct {
	Answer string `json:"answer"`
	Rounds int    `json:"rounds"`
}

// Engine 驱动模型与工具之间的调度循环，是系统的业务核心。
// 循环只有两个状态：等待模型决策，或执行模型请求的工具。
type Engine struct {
	model        llm.Client
	tools        *tools.Set
	maxRounds    int
	modelTimeout time.Duration
	log          *slog.Logger
}

// Option 定义可选的 Engine 配置。
type Option func(*Engine)

// WithMaxRounds 设置工具调用轮数上限。
func WithMaxRounds(rounds int) Option {
	return func(e *Engine) {
		if rounds > 0 {
			e.maxRounds = rounds
		}
	}
}

// WithModelTimeout 设置单次模型调用的超时时间。
func WithModelTimeout(timeout time.Duration) Option {
	return func(e *Engine) {
		if timeout > 0 {
			e.modelTimeout = timeout
		}
	}
}

// WithLogger 注入日志器。
func WithLogger(log *slog.Logger) Option {
	return func(e *Engine) {
		if log != nil {
			e.log = log
		}
	}
}

// New 创建调度引擎。
func New(model llm.Client, set *tools.Set, opts ...Option) *Engine {
	e := &Engine{
		model:     model,
		tools:     set,
		maxRounds: defaultMaxRounds,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	if e.log == nil {
		e.log = logger.Named("agent")
	}
	return e
}

// systemPrompt 是每次会话的第一条消息。
const systemPrompt = `You are Nexis, an assistant for blockchain test networks.
You help users manage wallets, check balances, transfer native currency, and look up gas and token prices.
Supported chains: %s.
Use the provided tools to act. Never ask the user to repeat a private key back to you, and never include private keys in your replies.
When a tool fails, explain the failure in plain language and suggest what the user can do next.`

// Respond 运行调度循环直到模型给出最终答案或达到轮数上限。
func (e *Engine) Respond(ctx context.Context, rt *tools.Runtime, req Request) (*Result, error) {
	if e.model == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "未配置模型客户端")
	}
	if strings.TrimSpace(req.Input) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "input is required")
	}

	messages := make([]llm.Message, 0, len(req.History)+2)
	messages = append(messages, llm.Message{
		Role:    llm.RoleSystem,
		Content: fmt.Sprintf(systemPrompt, strings.Join(rt.Registry.Keys(), ", ")),
	})
	messages = append(messages, req.History...)
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: req.Input})

	specs := e.tools.Specs()
	for round := 1; round <= e.maxRounds; round++ {
		resp, err := e.callModel(ctx, llm.Request{Messages: messages, Tools: specs})
		if err != nil {
			return nil, err
		}
		if resp.Terminal() {
			return &Result{Answer: resp.Content, Rounds: round}, nil
		}

		messages = append(messages, llm.Message{
			Role:      llm.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})
		// 同一轮的工具互不依赖，可以并发执行；结果严格按请求顺序回填，
		// 保证模型看到的会话是确定的。
		for _, msg := range e.executeRound(ctx, rt, resp.ToolCalls) {
			messages = append(messages, msg)
		}
	}

	e.log.Warn("调度循环达到轮数上限", "session", req.SessionID, "maxRounds", e.maxRounds)
	return &Result{
		Answer: "I wasn't able to complete your request within the allowed number of steps. Please try again with a simpler request.",
		Rounds: e.maxRounds,
	}, nil
}

func (e *Engine) callModel(ctx context.Context, req llm.Request) (*llm.Response, error) {
	modelCtx := ctx
	if e.modelTimeout > 0 {
		var cancel context.CancelFunc
		modelCtx, cancel = context.WithTimeout(ctx, e.modelTimeout)
		defer cancel()
	}
	resp, err := e.model.Chat(modelCtx, req)
	if err != nil {
		if stdErrors.Is(err, context.DeadlineExceeded) {
			return nil, xerrors.Wrap(xerrors.CodeTimeout, err, "模型推理超时")
		}
		return nil, xerrors.Wrap(xerrors.CodeExecutorFailure, err, "模型推理失败")
	}
	return resp, nil
}

// executeRound 并发执行一轮工具调用。单个工具失败被转换为字符串结果，
// 既不影响同轮的其他工具，也不会中断循环。
func (e *Engine) executeRound(ctx context.Context, rt *tools.Runtime, calls []llm.ToolCall) []llm.Message {
	results := make([]string, len(calls))
	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(i int, call llm.ToolCall) {
			defer wg.Done()
			output, err := e.tools.Execute(ctx, rt, call)
			if err != nil {
				metrics.ObserveToolExecution(call.Name, "error")
				results[i] = e.failureText(ctx, rt, call, err)
				return
			}
			metrics.ObserveToolExecution(call.Name, "ok")
			results[i] = output
		}(i, call)
	}
	wg.Wait()

	messages := make([]llm.Message, 0, len(calls))
	for i, call := range calls {
		messages = append(messages, llm.Message{
			Role:       llm.RoleTool,
			Content:    results[i],
			ToolCallID: call.ID,
		})
	}
	return messages
}

// failureText 把工具错误转换为安全的会话文本。类型化错误自带的消息
// 不含任何凭证材料，其余错误一律给出笼统提示。
func (e *Engine) failureText(ctx context.Context, rt *tools.Runtime, call llm.ToolCall, err error) string {
	e.log.Warn("工具执行失败", "tool", call.Name, "code", string(xerrors.CodeOf(err)), "error", err)
	if rt.Events != nil {
		event := events.New(events.TypeToolFailed, rt.SessionID, "", map[string]string{
			"tool": call.Name,
			"code": string(xerrors.CodeOf(err)),
		})
		_ = rt.Events.Publish(ctx, event)
	}

	if typed, ok := xerrors.From(err); ok {
		return fmt.Sprintf("The %s tool failed: %s", call.Name, typed.Message())
	}
	return fmt.Sprintf("The %s tool failed unexpectedly. Please try again.", call.Name)
}
