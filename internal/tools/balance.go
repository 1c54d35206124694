package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/NikhilRaikwar/Nexis/internal/chain"
)

func getBalanceTool() *Tool {
	return &Tool{
		Name:        "get_balance",
		Description: "Fetch the native and known token balances on one chain, for the bound wallet or for an explicit address.",
		Parameters: json.RawMessage(`{
  "type": "object",
  "properties": {
    "chain": {"type": "string", "description": "Chain key, e.g. sepolia or solanaDevnet"},
    "address": {"type": "string", "description": "Optional address override; defaults to the bound wallet"}
  },
  "required": ["chain"]
}`),
		Run: runGetBalance,
	}
}

func runGetBalance(ctx context.Context, rt *Runtime, raw json.RawMessage) (string, error) {
	var args struct {
		Chain   string `json:"chain"`
		Address string `json:"address"`
	}
	if err := decodeArgs(raw, &args); err != nil {
		return "", err
	}

	desc, err := rt.Registry.Lookup(args.Chain)
	if err != nil {
		return "", err
	}

	address := strings.TrimSpace(args.Address)
	if address == "" {
		if signer := rt.Session.Signer(desc.Key); signer != nil {
			address = signer.Address()
		}
	}
	if address == "" {
		return fmt.Sprintf("No wallet connected for %s and no address provided. Use connect_wallet or pass an address.", desc.DisplayName), nil
	}

	return rt.balanceReport(ctx, desc, address)
}

func getAllBalancesTool() *Tool {
	return &Tool{
		Name:        "get_all_balances",
		Description: "Fetch balances on every chain that has a wallet bound in this session.",
		Parameters:  json.RawMessage(`{"type": "object", "properties": {}}`),
		Run:         runGetAllBalances,
	}
}

func runGetAllBalances(ctx context.Context, rt *Runtime, _ json.RawMessage) (string, error) {
	bound := rt.Session.Addresses()
	if len(bound) == 0 {
		return "No wallet connected. Use connect_wallet to bind one first.", nil
	}

	var sections []string
	for _, entry := range bound {
		desc, err := rt.Registry.Lookup(entry.ChainKey)
		if err != nil {
			continue
		}
		report, err := rt.balanceReport(ctx, desc, entry.Address)
		if err != nil {
			// 单条链失败不拖垮整体结果。
			sections = append(sections, fmt.Sprintf("Balances on %s: unable to fetch", desc.DisplayName))
			continue
		}
		sections = append(sections, report)
	}
	return strings.Join(sections, "\n\n"), nil
}

// balanceReport 产出一条链上的余额清单：原生币在前，代币按目录顺序。
// 单个代币查询失败降级为一行提示，不影响其余资产。
func (rt *Runtime) balanceReport(ctx context.Context, desc chain.Descriptor, address string) (string, error) {
	lines := []string{fmt.Sprintf("Balances on %s for %s:", desc.DisplayName, address)}

	switch desc.Family {
	case chain.FamilySolana:
		client, err := rt.Solana.Client(desc)
		if err != nil {
			return "", err
		}
		lamports, err := client.Balance(ctx, address)
		if err != nil {
			return "", err
		}
		lines = append(lines, fmt.Sprintf("%s: %s", desc.CurrencySymbol, formatUnits(lamportsToBig(lamports), desc.CurrencyDecimals)))
	default:
		client, err := rt.EVM.Client(ctx, desc)
		if err != nil {
			return "", err
		}
		native, err := client.NativeBalance(ctx, address)
		if err != nil {
			return "", err
		}
		lines = append(lines, fmt.Sprintf("%s: %s", desc.CurrencySymbol, formatUnits(native, desc.CurrencyDecimals)))

		for _, token := range rt.Catalog.TokensFor(desc.Key) {
			balance, decimals, err := client.TokenBalance(ctx, token.ContractAddress, address)
			if err != nil {
				lines = append(lines, fmt.Sprintf("%s: unable to fetch", token.Symbol))
				continue
			}
			lines = append(lines, fmt.Sprintf("%s: %s", token.Symbol, formatUnits(balance, int(decimals))))
		}
	}

	return strings.Join(lines, "\n"), nil
}
