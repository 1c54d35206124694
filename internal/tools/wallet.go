package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/NikhilRaikwar/Nexis/internal/chain"
	"github.com/NikhilRaikwar/Nexis/internal/events"
)

func connectWalletTool() *Tool {
	return &Tool{
		Name:        "connect_wallet",
		Description: "Connect a wallet for this session. Accepts an EVM private key (hex) and/or a Solana private key (base58 or JSON array). The EVM key is bound to every EVM network at once.",
		Parameters: json.RawMessage(`{
  "type": "object",
  "properties": {
    "evmPrivateKey": {"type": "string", "description": "Hex-encoded EVM private key, with or without 0x prefix"},
    "solanaPrivateKey": {"type": "string", "description": "Solana private key as base58 text or a JSON byte array"}
  }
}`),
		Run: runConnectWallet,
	}
}

func runConnectWallet(ctx context.Context, rt *Runtime, raw json.RawMessage) (string, error) {
	var args struct {
		EVMPrivateKey    string `json:"evmPrivateKey"`
		SolanaPrivateKey string `json:"solanaPrivateKey"`
	}
	if err := decodeArgs(raw, &args); err != nil {
		return "", err
	}

	if strings.TrimSpace(args.EVMPrivateKey) == "" && strings.TrimSpace(args.SolanaPrivateKey) == "" {
		return "No private key provided. Please supply an EVM private key, a Solana private key, or both to connect a wallet.", nil
	}

	var lines []string
	if strings.TrimSpace(args.EVMPrivateKey) != "" {
		address, err := rt.Session.ConnectEVM(args.EVMPrivateKey)
		if err != nil {
			return "", err
		}
		chains := familyKeys(rt.Registry, chain.FamilyEVM)
		lines = append(lines, fmt.Sprintf("EVM wallet %s connected to %s.", address, strings.Join(chains, ", ")))
		rt.publish(ctx, events.TypeWalletConnected, "", map[string]string{"family": "evm", "address": address})
		rt.audit("wallet connected", "family", "evm", "address", address)
	}
	if strings.TrimSpace(args.SolanaPrivateKey) != "" {
		address, err := rt.Session.ConnectSolana(args.SolanaPrivateKey)
		if err != nil {
			return "", err
		}
		chains := familyKeys(rt.Registry, chain.FamilySolana)
		lines = append(lines, fmt.Sprintf("Solana wallet %s connected to %s.", address, strings.Join(chains, ", ")))
		rt.publish(ctx, events.TypeWalletConnected, "", map[string]string{"family": "solana", "address": address})
		rt.audit("wallet connected", "family", "solana", "address", address)
	}

	return "Wallet connected successfully.\n" + strings.Join(lines, "\n"), nil
}

func disconnectWalletTool() *Tool {
	return &Tool{
		Name:        "disconnect_wallet",
		Description: "Disconnect the wallet bound to one chain, or every chain when no chain is given. Safe to call when nothing is connected.",
		Parameters: json.RawMessage(`{
  "type": "object",
  "properties": {
    "chain": {"type": "string", "description": "Chain key to disconnect; omit to disconnect everywhere"}
  }
}`),
		Run: runDisconnectWallet,
	}
}

func runDisconnectWallet(ctx context.Context, rt *Runtime, raw json.RawMessage) (string, error) {
	var args struct {
		Chain string `json:"chain"`
	}
	if err := decodeArgs(raw, &args); err != nil {
		return "", err
	}

	if strings.TrimSpace(args.Chain) == "" {
		rt.Session.Disconnect("")
		rt.publish(ctx, events.TypeWalletDisconnected, "", nil)
		rt.audit("wallet disconnected", "chain", "all")
		return "All wallets disconnected.", nil
	}

	desc, err := rt.Registry.Lookup(args.Chain)
	if err != nil {
		return "", err
	}
	rt.Session.Disconnect(desc.Key)
	rt.publish(ctx, events.TypeWalletDisconnected, desc.Key, nil)
	rt.audit("wallet disconnected", "chain", desc.Key)
	return fmt.Sprintf("Wallet disconnected from %s.", desc.DisplayName), nil
}

func getWalletAddressTool() *Tool {
	return &Tool{
		Name:        "get_wallet_address",
		Description: "Show the wallet address bound to one chain, or every bound address when no chain is given.",
		Parameters: json.RawMessage(`{
  "type": "object",
  "properties": {
    "chain": {"type": "string", "description": "Chain key to inspect; omit to list every bound chain"}
  }
}`),
		Run: runGetWalletAddress,
	}
}

func runGetWalletAddress(_ context.Context, rt *Runtime, raw json.RawMessage) (string, error) {
	var args struct {
		Chain string `json:"chain"`
	}
	if err := decodeArgs(raw, &args); err != nil {
		return "", err
	}

	if strings.TrimSpace(args.Chain) != "" {
		desc, err := rt.Registry.Lookup(args.Chain)
		if err != nil {
			return "", err
		}
		signer := rt.Session.Signer(desc.Key)
		if signer == nil {
			return fmt.Sprintf("No wallet connected for %s. Use connect_wallet to bind one.", desc.DisplayName), nil
		}
		return fmt.Sprintf("%s: %s", desc.Key, signer.Address()), nil
	}

	bound := rt.Session.Addresses()
	if len(bound) == 0 {
		return "No wallet connected. Use connect_wallet to bind one.", nil
	}
	lines := make([]string, 0, len(bound))
	for _, entry := range bound {
		lines = append(lines, fmt.Sprintf("%s: %s", entry.ChainKey, entry.Address))
	}
	return strings.Join(lines, "\n"), nil
}

// familyKeys 按注册顺序返回某个签名体系的链标识。
func familyKeys(registry *chain.Registry, family chain.Family) []string {
	descriptors := registry.Family(family)
	keys := make([]string, 0, len(descriptors))
	for _, desc := range descriptors {
		keys = append(keys, desc.Key)
	}
	return keys
}
