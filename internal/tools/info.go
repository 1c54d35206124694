package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

func getFaucetTokensTool() *Tool {
	return &Tool{
		Name:        "get_faucet_tokens",
		Description: "List testnet faucet links for one or more chains. Purely informational, never calls a faucet API.",
		Parameters: json.RawMessage(`{
  "type": "object",
  "properties": {
    "chains": {"type": "string", "description": "Comma-separated chain keys; omit for all chains"}
  }
}`),
		Run: runGetFaucetTokens,
	}
}

func runGetFaucetTokens(_ context.Context, rt *Runtime, raw json.RawMessage) (string, error) {
	var args struct {
		Chains string `json:"chains"`
	}
	if err := decodeArgs(raw, &args); err != nil {
		return "", err
	}

	keys := rt.Registry.Keys()
	if strings.TrimSpace(args.Chains) != "" {
		keys = keys[:0]
		for _, part := range strings.Split(args.Chains, ",") {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				keys = append(keys, trimmed)
			}
		}
	}

	lines := []string{"Testnet faucets:"}
	for _, key := range keys {
		desc, err := rt.Registry.Lookup(key)
		if err != nil {
			return "", err
		}
		line := fmt.Sprintf("%s: %s", desc.DisplayName, desc.FaucetURL)
		if signer := rt.Session.Signer(desc.Key); signer != nil {
			line += fmt.Sprintf(" (your address: %s)", signer.Address())
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n"), nil
}

func helpTool(s *Set) *Tool {
	return &Tool{
		Name:        "help",
		Description: "List every available tool and how to use it.",
		Parameters:  json.RawMessage(`{"type": "object", "properties": {}}`),
		Run: func(_ context.Context, _ *Runtime, _ json.RawMessage) (string, error) {
			lines := []string{"Available tools:"}
			for _, name := range s.Names() {
				lines = append(lines, fmt.Sprintf("- %s: %s", name, s.byName[name].Description))
			}
			return strings.Join(lines, "\n"), nil
		},
	}
}
