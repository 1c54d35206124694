package evm

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"

	gethcore "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	xerrors "github.com/NikhilRaikwar/Nexis/internal/errors"
)

// erc20ABIJSON covers the read-only subset of the ERC-20 interface the agent
// needs: balances and the decimals metadata fetched per call.
const erc20ABIJSON = `[
  {"constant":true,"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"type":"function"},
  {"constant":true,"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"type":"function"},
  {"constant":true,"inputs":[],"name":"symbol","outputs":[{"name":"","type":"string"}],"type":"function"}
]`

var (
	erc20ABIOnce sync.Once
	erc20ABI     abi.ABI
	erc20ABIErr  error
)

func loadERC20ABI() (abi.ABI, error) {
	erc20ABIOnce.Do(func() {
		erc20ABI, erc20ABIErr = abi.JSON(strings.NewReader(erc20ABIJSON))
	})
	return erc20ABI, erc20ABIErr
}

// TokenBalance reads balanceOf and decimals for an ERC-20 style contract.
// Decimals come from the contract on every call rather than a hardcoded
// table, so registry drift cannot misreport amounts.
func (c *Client) TokenBalance(ctx context.Context, contractAddress, holder string) (*big.Int, uint8, error) {
	if !common.IsHexAddress(contractAddress) {
		return nil, 0, xerrors.Newf(xerrors.CodeInvalidAddress, "代币合约地址不合法")
	}
	if !common.IsHexAddress(holder) {
		return nil, 0, xerrors.Newf(xerrors.CodeInvalidAddress, "持有人地址不合法")
	}

	parsed, err := loadERC20ABI()
	if err != nil {
		return nil, 0, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "解析 ERC-20 ABI 失败")
	}

	contract := common.HexToAddress(contractAddress)

	balanceRaw, err := c.callContract(ctx, parsed, contract, "balanceOf", common.HexToAddress(holder))
	if err != nil {
		return nil, 0, err
	}
	balanceOut, err := parsed.Unpack("balanceOf", balanceRaw)
	if err != nil || len(balanceOut) == 0 {
		return nil, 0, xerrors.Wrap(xerrors.CodeUpstreamFailure, err, "解码 balanceOf 返回值失败")
	}
	balance, ok := balanceOut[0].(*big.Int)
	if !ok {
		return nil, 0, xerrors.New(xerrors.CodeUpstreamFailure, "balanceOf 返回类型不符")
	}

	decimalsRaw, err := c.callContract(ctx, parsed, contract, "decimals")
	if err != nil {
		return nil, 0, err
	}
	decimalsOut, err := parsed.Unpack("decimals", decimalsRaw)
	if err != nil || len(decimalsOut) == 0 {
		return nil, 0, xerrors.Wrap(xerrors.CodeUpstreamFailure, err, "解码 decimals 返回值失败")
	}
	decimals, ok := decimalsOut[0].(uint8)
	if !ok {
		return nil, 0, xerrors.New(xerrors.CodeUpstreamFailure, "decimals 返回类型不符")
	}

	return balance, decimals, nil
}

func (c *Client) callContract(ctx context.Context, parsed abi.ABI, contract common.Address, method string, args ...any) ([]byte, error) {
	input, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeExecutorFailure, err, fmt.Sprintf("编码 %s 调用失败", method))
	}
	output, err := c.backend.CallContract(ctx, gethcore.CallMsg{To: &contract, Data: input}, nil)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeUpstreamFailure, err, fmt.Sprintf("调用 %s 失败", method))
	}
	return output, nil
}
