package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/NikhilRaikwar/Nexis/internal/chain"
)

func getGasPricesTool() *Tool {
	return &Tool{
		Name:        "get_gas_prices",
		Description: "Fetch the current gas price on one EVM chain, or on every EVM chain when no chain is given.",
		Parameters: json.RawMessage(`{
  "type": "object",
  "properties": {
    "chain": {"type": "string", "description": "EVM chain key; omit for all EVM chains"}
  }
}`),
		Run: runGetGasPrices,
	}
}

func runGetGasPrices(ctx context.Context, rt *Runtime, raw json.RawMessage) (string, error) {
	var args struct {
		Chain string `json:"chain"`
	}
	if err := decodeArgs(raw, &args); err != nil {
		return "", err
	}

	var targets []chain.Descriptor
	if strings.TrimSpace(args.Chain) != "" {
		desc, err := rt.Registry.Lookup(args.Chain)
		if err != nil {
			return "", err
		}
		if desc.Family != chain.FamilyEVM {
			return fmt.Sprintf("Gas prices are only tracked for EVM networks; %s is not one.", desc.DisplayName), nil
		}
		targets = []chain.Descriptor{desc}
	} else {
		targets = rt.Registry.Family(chain.FamilyEVM)
	}

	lines := make([]string, 0, len(targets))
	failures := 0
	for _, desc := range targets {
		price, err := rt.gasPrice(ctx, desc)
		if err != nil {
			failures++
			lines = append(lines, fmt.Sprintf("%s: unable to fetch", desc.DisplayName))
			continue
		}
		lines = append(lines, fmt.Sprintf("%s: %s gwei", desc.DisplayName, price))
	}
	if failures == len(targets) {
		return "Unable to fetch gas prices right now, please try again later.", nil
	}
	return "Current gas prices:\n" + strings.Join(lines, "\n"), nil
}

func (rt *Runtime) gasPrice(ctx context.Context, desc chain.Descriptor) (string, error) {
	client, err := rt.EVM.Client(ctx, desc)
	if err != nil {
		return "", err
	}
	wei, err := client.SuggestGasPrice(ctx)
	if err != nil {
		return "", err
	}
	// gwei = wei / 1e9
	return formatUnits(wei, 9), nil
}

func getTokenPricesTool() *Tool {
	return &Tool{
		Name:        "get_token_prices",
		Description: "Fetch current USD prices for a comma-separated list of tokens, e.g. \"ETH,SOL,bitcoin\".",
		Parameters: json.RawMessage(`{
  "type": "object",
  "properties": {
    "tokens": {"type": "string", "description": "Comma-separated token symbols or names"}
  },
  "required": ["tokens"]
}`),
		Run: runGetTokenPrices,
	}
}

func runGetTokenPrices(ctx context.Context, rt *Runtime, raw json.RawMessage) (string, error) {
	var args struct {
		Tokens string `json:"tokens"`
	}
	if err := decodeArgs(raw, &args); err != nil {
		return "", err
	}

	var tokens []string
	for _, part := range strings.Split(args.Tokens, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			tokens = append(tokens, trimmed)
		}
	}
	if len(tokens) == 0 {
		return "No tokens given. Pass a comma-separated list like \"ETH,SOL\".", nil
	}

	quotes, err := rt.Prices.Quotes(ctx, tokens)
	if err != nil {
		return "", err
	}

	currency := strings.ToUpper(rt.Prices.Currency())
	lines := make([]string, 0, len(quotes))
	for _, quote := range quotes {
		if !quote.Found {
			lines = append(lines, fmt.Sprintf("Price not found for %s", quote.Query))
			continue
		}
		lines = append(lines, fmt.Sprintf("%s: %s %s", quote.Query, strconv.FormatFloat(quote.Price, 'f', -1, 64), currency))
	}
	return strings.Join(lines, "\n"), nil
}
