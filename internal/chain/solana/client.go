// Package solana implements chain access for the Solana devnet via its JSON
// RPC interface. The agent only needs balance reads and native transfers, so
// the RPC surface is hand-rolled instead of pulling a full SDK.
package solana

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/mr-tron/base58"

	"github.com/NikhilRaikwar/Nexis/internal/chain"
	xerrors "github.com/NikhilRaikwar/Nexis/internal/errors"
)

// LamportsPerSOL 是 SOL 与最小单位的换算比例。
const LamportsPerSOL = 1_000_000_000

// statusPollInterval controls how often signature confirmation is polled.
const statusPollInterval = 2 * time.Second

// Client issues JSON-RPC calls against one Solana endpoint.
type Client struct {
	desc       chain.Descriptor
	endpoint   string
	httpClient *http.Client
	nextID     atomic.Uint64
}

// NewClient constructs a client for the descriptor's RPC endpoint.
func NewClient(desc chain.Descriptor) (*Client, error) {
	endpoint := strings.TrimSpace(desc.RPCEndpoint)
	if endpoint == "" {
		return nil, xerrors.Newf(xerrors.CodeConfiguration, "链 %s 未配置 RPC 端点", desc.Key)
	}
	return &Client{
		desc:       desc,
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// SetHTTPClient 覆盖底层 HTTP 客户端，测试用。
func (c *Client) SetHTTPClient(httpClient *http.Client) {
	if httpClient != nil {
		c.httpClient = httpClient
	}
}

// SetEndpoint 覆盖 RPC 端点，测试用。
func (c *Client) SetEndpoint(endpoint string) {
	if strings.TrimSpace(endpoint) != "" {
		c.endpoint = endpoint
	}
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// call 发送一次 JSON-RPC 请求并把 result 解码到 out。
func (c *Client) call(ctx context.Context, method string, params any, out any) error {
	body := map[string]any{
		"jsonrpc": "2.0",
		"id":      c.nextID.Add(1),
		"method":  method,
	}
	if params != nil {
		body["params"] = params
	}
	encoded, err := json.Marshal(body)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeExecutorFailure, err, "序列化 RPC 请求失败")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(encoded))
	if err != nil {
		return xerrors.Wrap(xerrors.CodeExecutorFailure, err, "构建 RPC 请求失败")
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeUpstreamFailure, err, fmt.Sprintf("请求 %s 节点失败", c.desc.Key))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return xerrors.Newf(xerrors.CodeUpstreamFailure, "%s 节点返回状态 %d: %s", c.desc.Key, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var envelope struct {
		Result json.RawMessage `json:"result"`
		Error  *rpcError       `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return xerrors.Wrap(xerrors.CodeUpstreamFailure, err, "解析 RPC 响应失败")
	}
	if envelope.Error != nil {
		return xerrors.Newf(xerrors.CodeUpstreamFailure, "RPC 错误 %d: %s", envelope.Error.Code, envelope.Error.Message)
	}
	if out != nil {
		if err := json.Unmarshal(envelope.Result, out); err != nil {
			return xerrors.Wrap(xerrors.CodeUpstreamFailure, err, "解析 RPC result 失败")
		}
	}
	return nil
}

// Balance 查询账户余额，单位 lamports。
func (c *Client) Balance(ctx context.Context, address string) (uint64, error) {
	if err := ValidateAddress(address); err != nil {
		return 0, err
	}
	var result struct {
		Value uint64 `json:"value"`
	}
	if err := c.call(ctx, "getBalance", []any{address}, &result); err != nil {
		return 0, err
	}
	return result.Value, nil
}

// latestBlockhash 获取最近的 blockhash，交易构建使用。
func (c *Client) latestBlockhash(ctx context.Context) (string, error) {
	var result struct {
		Value struct {
			Blockhash string `json:"blockhash"`
		} `json:"value"`
	}
	if err := c.call(ctx, "getLatestBlockhash", []any{map[string]string{"commitment": "finalized"}}, &result); err != nil {
		return "", err
	}
	if result.Value.Blockhash == "" {
		return "", xerrors.New(xerrors.CodeUpstreamFailure, "节点未返回 blockhash")
	}
	return result.Value.Blockhash, nil
}

// TransferResult captures the outcome of a confirmed transfer.
type TransferResult struct {
	Signature   string
	ExplorerURL string
}

// TransferNative 构建、签名并发送一笔系统转账，等待确认后返回。
func (c *Client) TransferNative(ctx context.Context, key ed25519.PrivateKey, recipient string, lamports uint64) (*TransferResult, error) {
	if len(key) != ed25519.PrivateKeySize {
		return nil, xerrors.New(xerrors.CodeNoWalletBound, "no wallet connected for "+c.desc.Key)
	}
	if err := ValidateAddress(recipient); err != nil {
		return nil, err
	}
	if lamports == 0 {
		return nil, xerrors.New(xerrors.CodeInvalidAmount, "transfer amount must be positive")
	}

	blockhash, err := c.latestBlockhash(ctx)
	if err != nil {
		return nil, err
	}

	encoded, err := buildTransferTransaction(key, recipient, lamports, blockhash)
	if err != nil {
		return nil, err
	}

	var signature string
	params := []any{encoded, map[string]string{"encoding": "base64"}}
	if err := c.call(ctx, "sendTransaction", params, &signature); err != nil {
		return nil, err
	}

	if err := c.awaitConfirmation(ctx, signature); err != nil {
		return nil, err
	}

	return &TransferResult{
		Signature:   signature,
		ExplorerURL: c.desc.ExplorerTxURL(signature),
	}, nil
}

// awaitConfirmation 轮询签名状态直到确认或上下文取消。
func (c *Client) awaitConfirmation(ctx context.Context, signature string) error {
	ticker := time.NewTicker(statusPollInterval)
	defer ticker.Stop()

	for {
		var result struct {
			Value []*struct {
				ConfirmationStatus string          `json:"confirmationStatus"`
				Err                json.RawMessage `json:"err"`
			} `json:"value"`
		}
		err := c.call(ctx, "getSignatureStatuses", []any{[]string{signature}}, &result)
		if err == nil && len(result.Value) > 0 && result.Value[0] != nil {
			status := result.Value[0]
			if len(status.Err) > 0 && string(status.Err) != "null" {
				return xerrors.Newf(xerrors.CodeExecutorFailure, "交易 %s 执行失败: %s", signature, status.Err)
			}
			if status.ConfirmationStatus == "confirmed" || status.ConfirmationStatus == "finalized" {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			return xerrors.Wrap(xerrors.CodeTimeout, ctx.Err(), "等待交易确认超时")
		case <-ticker.C:
		}
	}
}

// ValidateAddress 校验 base58 地址是否为合法的 32 字节公钥。
func ValidateAddress(address string) error {
	decoded, err := base58.Decode(strings.TrimSpace(address))
	if err != nil || len(decoded) != ed25519.PublicKeySize {
		return xerrors.Newf(xerrors.CodeInvalidAddress, "invalid recipient address %q", address)
	}
	return nil
}

// FormatLamports 将 lamports 格式化为 SOL 字符串。
func FormatLamports(lamports uint64) string {
	value := new(big.Rat).SetFrac(new(big.Int).SetUint64(lamports), big.NewInt(LamportsPerSOL))
	formatted := strings.TrimRight(strings.TrimRight(value.FloatString(9), "0"), ".")
	if formatted == "" {
		return "0"
	}
	return formatted
}
