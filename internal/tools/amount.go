package tools

import (
	"math/big"
	"strings"

	xerrors "github.com/NikhilRaikwar/Nexis/internal/errors"
)

// parseAmount 把十进制金额字符串换算到链的最小单位。
// 非法、非正或精度超出链支持范围的金额一律拒绝，且不发起任何网络请求。
func parseAmount(text string, decimals int) (*big.Int, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, xerrors.New(xerrors.CodeInvalidAmount, "transfer amount must be positive")
	}
	value, ok := new(big.Rat).SetString(trimmed)
	if !ok {
		return nil, xerrors.Newf(xerrors.CodeInvalidAmount, "invalid amount %q", trimmed)
	}
	if value.Sign() <= 0 {
		return nil, xerrors.New(xerrors.CodeInvalidAmount, "transfer amount must be positive")
	}

	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	scaled := new(big.Rat).Mul(value, new(big.Rat).SetInt(scale))
	if !scaled.IsInt() {
		return nil, xerrors.Newf(xerrors.CodeInvalidAmount, "amount %q exceeds %d decimal places", trimmed, decimals)
	}
	return new(big.Int).Set(scaled.Num()), nil
}

// lamportsToBig 把 lamports 数值提升为大整数，便于统一格式化。
func lamportsToBig(lamports uint64) *big.Int {
	return new(big.Int).SetUint64(lamports)
}

// formatUnits 把最小单位的整数余额格式化为十进制字符串。
func formatUnits(value *big.Int, decimals int) string {
	if value == nil {
		return "0"
	}
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	formatted := new(big.Rat).SetFrac(value, scale).FloatString(decimals)
	formatted = strings.TrimRight(strings.TrimRight(formatted, "0"), ".")
	if formatted == "" || formatted == "-" {
		return "0"
	}
	return formatted
}
