// Package evm implements chain access for EVM compatible networks on top of
// go-ethereum. One client wraps one RPC endpoint; callers obtain clients
// through the Dialer so tests can substitute stub backends.
package evm

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	gethcore "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	coretypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/NikhilRaikwar/Nexis/internal/chain"
	xerrors "github.com/NikhilRaikwar/Nexis/internal/errors"
)

// nativeTransferGasLimit is the fixed cost of a plain value transfer.
const nativeTransferGasLimit = 21000

// receiptPollInterval controls how often transaction confirmation is polled.
const receiptPollInterval = 2 * time.Second

// Backend mirrors the subset of ethclient methods the agent needs. The
// narrow interface keeps tests free of live RPC endpoints.
type Backend interface {
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	CallContract(ctx context.Context, call gethcore.CallMsg, blockNumber *big.Int) ([]byte, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SendTransaction(ctx context.Context, tx *coretypes.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*coretypes.Receipt, error)
}

// Client executes reads and native transfers against a single EVM chain.
type Client struct {
	desc    chain.Descriptor
	backend Backend
	closer  func()
}

// Dial connects to the chain's configured RPC endpoint.
func Dial(ctx context.Context, desc chain.Descriptor) (*Client, error) {
	endpoint := strings.TrimSpace(desc.RPCEndpoint)
	if endpoint == "" {
		return nil, xerrors.Newf(xerrors.CodeConfiguration, "链 %s 未配置 RPC 端点", desc.Key)
	}
	eth, err := ethclient.DialContext(ctx, endpoint)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeUpstreamFailure, err, fmt.Sprintf("连接 %s 节点失败", desc.Key))
	}
	return &Client{desc: desc, backend: eth, closer: eth.Close}, nil
}

// NewClientWithBackend wires an arbitrary backend, used by tests.
func NewClientWithBackend(desc chain.Descriptor, backend Backend) *Client {
	return &Client{desc: desc, backend: backend}
}

// Close releases the underlying RPC connection.
func (c *Client) Close() {
	if c != nil && c.closer != nil {
		c.closer()
	}
}

// Descriptor returns the chain metadata this client serves.
func (c *Client) Descriptor() chain.Descriptor {
	return c.desc
}

// NativeBalance fetches the latest native currency balance in wei.
func (c *Client) NativeBalance(ctx context.Context, address string) (*big.Int, error) {
	if !common.IsHexAddress(address) {
		return nil, xerrors.Newf(xerrors.CodeInvalidAddress, "地址格式不合法")
	}
	balance, err := c.backend.BalanceAt(ctx, common.HexToAddress(address), nil)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeUpstreamFailure, err, fmt.Sprintf("查询 %s 余额失败", c.desc.Key))
	}
	return balance, nil
}

// SuggestGasPrice returns the node's current gas price estimate in wei.
func (c *Client) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	price, err := c.backend.SuggestGasPrice(ctx)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeUpstreamFailure, err, fmt.Sprintf("查询 %s gas 价格失败", c.desc.Key))
	}
	return price, nil
}

// TransferResult captures the outcome of a confirmed native transfer.
type TransferResult struct {
	TxHash      string
	BlockNumber uint64
	ExplorerURL string
}

// TransferNative signs and submits a native currency transfer, then blocks
// until the transaction is mined or the context expires.
func (c *Client) TransferNative(ctx context.Context, key *ecdsa.PrivateKey, recipient string, amountWei *big.Int) (*TransferResult, error) {
	if key == nil {
		return nil, xerrors.New(xerrors.CodeNoWalletBound, "no wallet connected for "+c.desc.Key)
	}
	if !common.IsHexAddress(recipient) {
		return nil, xerrors.Newf(xerrors.CodeInvalidAddress, "invalid recipient address %q", recipient)
	}
	if amountWei == nil || amountWei.Sign() <= 0 {
		return nil, xerrors.New(xerrors.CodeInvalidAmount, "transfer amount must be positive")
	}

	from := crypto.PubkeyToAddress(key.PublicKey)
	nonce, err := c.backend.PendingNonceAt(ctx, from)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeUpstreamFailure, err, "查询 nonce 失败")
	}
	gasPrice, err := c.backend.SuggestGasPrice(ctx)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeUpstreamFailure, err, "查询 gas 价格失败")
	}

	to := common.HexToAddress(recipient)
	tx := coretypes.NewTx(&coretypes.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    amountWei,
		Gas:      nativeTransferGasLimit,
		GasPrice: gasPrice,
	})

	chainID := big.NewInt(c.desc.ChainID)
	signed, err := coretypes.SignTx(tx, coretypes.LatestSignerForChainID(chainID), key)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeExecutorFailure, err, "签名交易失败")
	}
	if err := c.backend.SendTransaction(ctx, signed); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeUpstreamFailure, err, "广播交易失败")
	}

	receipt, err := c.waitMined(ctx, signed.Hash())
	if err != nil {
		return nil, err
	}
	if receipt.Status != coretypes.ReceiptStatusSuccessful {
		return nil, xerrors.Newf(xerrors.CodeExecutorFailure, "交易 %s 执行被回滚", signed.Hash().Hex())
	}

	return &TransferResult{
		TxHash:      signed.Hash().Hex(),
		BlockNumber: receipt.BlockNumber.Uint64(),
		ExplorerURL: c.desc.ExplorerTxURL(signed.Hash().Hex()),
	}, nil
}

// waitMined polls for the transaction receipt until the context expires.
func (c *Client) waitMined(ctx context.Context, txHash common.Hash) (*coretypes.Receipt, error) {
	ticker := time.NewTicker(receiptPollInterval)
	defer ticker.Stop()

	for {
		receipt, err := c.backend.TransactionReceipt(ctx, txHash)
		if err == nil && receipt != nil {
			return receipt, nil
		}
		if err != nil && !errors.Is(err, gethcore.NotFound) {
			return nil, xerrors.Wrap(xerrors.CodeUpstreamFailure, err, "查询交易回执失败")
		}
		select {
		case <-ctx.Done():
			return nil, xerrors.Wrap(xerrors.CodeTimeout, ctx.Err(), "等待交易确认超时")
		case <-ticker.C:
		}
	}
}

// Dialer hands out clients per chain. Live dialing is the default; tests
// install a factory returning stub backends.
type Dialer struct {
	mu      sync.Mutex
	factory func(ctx context.Context, desc chain.Descriptor) (*Client, error)
	clients map[string]*Client
}

// NewDialer creates a dialer using live RPC connections.
func NewDialer() *Dialer {
	return &Dialer{factory: Dial, clients: make(map[string]*Client)}
}

// NewDialerWithFactory creates a dialer with a custom client factory.
func NewDialerWithFactory(factory func(ctx context.Context, desc chain.Descriptor) (*Client, error)) *Dialer {
	return &Dialer{factory: factory, clients: make(map[string]*Client)}
}

// Client returns a (cached) client for the descriptor.
func (d *Dialer) Client(ctx context.Context, desc chain.Descriptor) (*Client, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if client, ok := d.clients[desc.Key]; ok {
		return client, nil
	}
	client, err := d.factory(ctx, desc)
	if err != nil {
		return nil, err
	}
	d.clients[desc.Key] = client
	return client, nil
}

// Close releases every cached client.
func (d *Dialer) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for key, client := range d.clients {
		client.Close()
		delete(d.clients, key)
	}
}
