package api

import (
	"context"
	"encoding/json"
	stdErrors "errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/NikhilRaikwar/Nexis/internal/agent"
	"github.com/NikhilRaikwar/Nexis/internal/chain"
	"github.com/NikhilRaikwar/Nexis/internal/chain/evm"
	"github.com/NikhilRaikwar/Nexis/internal/chain/solana"
	xerrors "github.com/NikhilRaikwar/Nexis/internal/errors"
	"github.com/NikhilRaikwar/Nexis/internal/events"
	"github.com/NikhilRaikwar/Nexis/internal/llm"
	"github.com/NikhilRaikwar/Nexis/internal/observability/metrics"
	"github.com/NikhilRaikwar/Nexis/internal/price"
	"github.com/NikhilRaikwar/Nexis/internal/records"
	"github.com/NikhilRaikwar/Nexis/internal/tools"
	"github.com/NikhilRaikwar/Nexis/internal/wallet"
)

// sessionHeader 标识会话的请求头。缺失时每次请求使用一次性会话。
const sessionHeader = "X-Session-Id"

// defaultRequestTimeout 是单次对话请求的整体超时。
const defaultRequestTimeout = 30 * time.Second

// Dependencies 汇集服务运行所需的共享组件。链客户端与价格客户端
// 不含会话状态，可以跨请求共享；钱包状态经 Manager 按会话隔离。
type Dependencies struct {
	Registry  *chain.Registry
	Catalog   *chain.Catalog
	Wallets   *wallet.Manager
	EVM       *evm.Dialer
	Solana    *solana.Dialer
	Prices    *price.Client
	Extractor llm.Client
	Events    events.Publisher
	Records   records.Store
}

// Server 暴露对话接口与健康检查。
type Server struct {
	addr    string
	engine  *agent.Engine
	deps    Dependencies
	timeout time.Duration
}

// ServerOption 定义可选的 Server 配置。
type ServerOption func(*Server)

// WithRequestTimeout 设置单次请求的整体超时。
func WithRequestTimeout(timeout time.Duration) ServerOption {
	return func(s *Server) {
		if timeout > 0 {
			s.timeout = timeout
		}
	}
}

// NewServer 构造 API 服务实例。
func NewServer(addr string, engine *agent.Engine, deps Dependencies, opts ...ServerOption) *Server {
	s := &Server{
		addr:    addr,
		engine:  engine,
		deps:    deps,
		timeout: defaultRequestTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Handler 返回完整的路由，测试直接挂到 httptest 上。
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/agent", instrument("agent", s.handleAgent))
	mux.HandleFunc("/api/v1/transfers", instrument("transfers", s.handleTransfers))
	mux.HandleFunc("/health", instrument("health", s.handleHealth))
	mux.Handle("/metrics", metrics.Handler())
	return mux
}

// Start 启动 HTTP 服务，直到上下文取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !stdErrors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

type agentRequest struct {
	Input       string       `json:"input"`
	Credentials *credentials `json:"credentials,omitempty"`
}

// credentials 承载一次性传入的私钥材料。它只用于在循环开始前绑定
// 会话签名器，绝不进入会话历史，也绝不回显。
type credentials struct {
	EVMKey    string `json:"evmKey,omitempty"`
	NonEVMKey string `json:"nonEvmKey,omitempty"`
}

type agentResponse struct {
	Response        string   `json:"response"`
	Timestamp       string   `json:"timestamp"`
	SupportedChains []string `json:"supportedChains"`
}

type errorResponse struct {
	Error     string `json:"error"`
	Timestamp string `json:"timestamp"`
}

func (s *Server) handleAgent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "only POST is supported")
		return
	}
	if s.engine == nil {
		writeError(w, http.StatusServiceUnavailable, "agent is not initialized")
		return
	}

	var req agentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "request body is not valid JSON")
		return
	}
	if strings.TrimSpace(req.Input) == "" {
		writeError(w, http.StatusBadRequest, "input is required")
		return
	}

	session, sessionID := s.deps.Wallets.Acquire(r.Header.Get(sessionHeader))
	w.Header().Set(sessionHeader, sessionID)

	// 随请求传入的密钥直接绑定签名器，不进入发给模型的会话content。
	if req.Credentials != nil {
		if strings.TrimSpace(req.Credentials.EVMKey) != "" {
			if _, err := session.ConnectEVM(req.Credentials.EVMKey); err != nil {
				writeError(w, http.StatusBadRequest, sanitizedMessage(err))
				return
			}
		}
		if strings.TrimSpace(req.Credentials.NonEVMKey) != "" {
			if _, err := session.ConnectSolana(req.Credentials.NonEVMKey); err != nil {
				writeError(w, http.StatusBadRequest, sanitizedMessage(err))
				return
			}
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	rt := &tools.Runtime{
		Registry:  s.deps.Registry,
		Catalog:   s.deps.Catalog,
		Session:   session,
		SessionID: sessionID,
		EVM:       s.deps.EVM,
		Solana:    s.deps.Solana,
		Prices:    s.deps.Prices,
		Extractor: s.deps.Extractor,
		Events:    s.deps.Events,
		Records:   s.deps.Records,
	}

	result, err := s.engine.Respond(ctx, rt, agent.Request{
		SessionID: sessionID,
		Input:     req.Input,
	})
	if err != nil {
		status, message := classify(err)
		writeError(w, status, message)
		return
	}

	writeJSON(w, http.StatusOK, agentResponse{
		Response:        result.Answer,
		Timestamp:       time.Now().UTC().Format(time.RFC3339),
		SupportedChains: s.deps.Registry.Keys(),
	})
}

func (s *Server) handleTransfers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "only GET is supported")
		return
	}
	if s.deps.Records == nil {
		writeJSON(w, http.StatusOK, []records.Record{})
		return
	}

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	results, err := s.deps.Records.ListLatest(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, sanitizedMessage(err))
		return
	}
	if results == nil {
		results = []records.Record{}
	}
	writeJSON(w, http.StatusOK, results)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "only GET is supported")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// classify 把循环级错误映射到 HTTP 状态与脱敏消息。
func classify(err error) (int, string) {
	if stdErrors.Is(err, context.DeadlineExceeded) || xerrors.CodeOf(err) == xerrors.CodeTimeout {
		return http.StatusGatewayTimeout, "The request timed out. Upstream services may be cold starting, please retry in a moment."
	}
	switch xerrors.CodeOf(err) {
	case xerrors.CodeInvalidArgument:
		return http.StatusBadRequest, sanitizedMessage(err)
	case xerrors.CodeInitializationFailure:
		return http.StatusServiceUnavailable, sanitizedMessage(err)
	default:
		return http.StatusInternalServerError, "Something went wrong while handling your request. Please try again."
	}
}

// sanitizedMessage 只暴露类型化错误自带的消息，绝不包含底层原因链，
// 避免凭证或上游密钥随错误泄漏。
func sanitizedMessage(err error) string {
	if typed, ok := xerrors.From(err); ok {
		return typed.Message()
	}
	return "unexpected error"
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{
		Error:     message,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// instrument 封装处理器以记录请求量与时延。
func instrument(name string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		handler(recorder, r)
		metrics.ObserveHTTPRequest(name, r.Method, recorder.status, time.Since(started))
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
