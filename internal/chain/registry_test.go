package chain

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	xerrors "github.com/NikhilRaikwar/Nexis/internal/errors"
)

func TestLookupIsCaseInsensitive(t *testing.T) {
	registry := NewRegistry()

	for _, key := range registry.Keys() {
		t.Run(key, func(t *testing.T) {
			upper, err := registry.Lookup(key)
			if err != nil {
				t.Fatalf("lookup %q: %v", key, err)
			}
			lower, err := registry.Lookup("  " + key + " ")
			if err != nil {
				t.Fatalf("lookup padded %q: %v", key, err)
			}
			if upper.Key != lower.Key {
				t.Fatalf("descriptor mismatch: %q vs %q", upper.Key, lower.Key)
			}
		})
	}

	desc, err := registry.Lookup("BASESEPOLIA")
	if err != nil {
		t.Fatalf("uppercase lookup: %v", err)
	}
	if desc.Key != "baseSepolia" {
		t.Fatalf("unexpected key: %q", desc.Key)
	}
}

func TestLookupUnknownChain(t *testing.T) {
	registry := NewRegistry()

	_, err := registry.Lookup("nonexistent")
	if err == nil {
		t.Fatal("expected error for unknown chain")
	}
	if !errors.Is(err, xerrors.New(xerrors.CodeUnknownChain, "")) {
		t.Fatalf("expected UNKNOWN_CHAIN, got %v", err)
	}
}

func TestKeysPreserveRegistrationOrder(t *testing.T) {
	registry, err := NewRegistryFrom([]Descriptor{
		{Key: "zeta", Family: FamilyEVM},
		{Key: "alpha", Family: FamilyEVM},
		{Key: "mid", Family: FamilySolana},
	})
	if err != nil {
		t.Fatalf("build registry: %v", err)
	}

	keys := registry.Keys()
	want := []string{"zeta", "alpha", "mid"}
	if len(keys) != len(want) {
		t.Fatalf("unexpected key count: %d", len(keys))
	}
	for i, key := range want {
		if keys[i] != key {
			t.Fatalf("keys[%d] = %q, want %q", i, keys[i], key)
		}
	}
}

func TestNewRegistryFromRejectsDuplicates(t *testing.T) {
	_, err := NewRegistryFrom([]Descriptor{
		{Key: "sepolia", Family: FamilyEVM},
		{Key: "Sepolia", Family: FamilyEVM},
	})
	if err == nil {
		t.Fatal("expected duplicate key error")
	}
}

func TestFamilyFiltersInOrder(t *testing.T) {
	registry := NewRegistry()

	evm := registry.Family(FamilyEVM)
	if len(evm) == 0 {
		t.Fatal("expected at least one EVM chain")
	}
	for _, desc := range evm {
		if desc.Family != FamilyEVM {
			t.Fatalf("chain %s is not EVM", desc.Key)
		}
	}

	sol := registry.Family(FamilySolana)
	if len(sol) != 1 || sol[0].Key != "solanaDevnet" {
		t.Fatalf("unexpected solana chains: %+v", sol)
	}
}

func TestLoadRegistryFromYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "chains.yaml")
	content := []byte(`chains:
  - key: localnet
    name: Local Devnet
    family: evm
    rpc_url: http://127.0.0.1:8545
    explorer_url: http://127.0.0.1:4000
    currency_symbol: ETH
    chain_id: 1337
`)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write chains.yaml: %v", err)
	}

	registry, err := LoadRegistry(path)
	if err != nil {
		t.Fatalf("load registry: %v", err)
	}
	desc, err := registry.Lookup("localnet")
	if err != nil {
		t.Fatalf("lookup localnet: %v", err)
	}
	if desc.ChainID != 1337 || desc.CurrencyDecimals != 18 {
		t.Fatalf("unexpected descriptor: %+v", desc)
	}
}

func TestExplorerTxURL(t *testing.T) {
	desc := Descriptor{ExplorerBaseURL: "https://sepolia.basescan.org/", Family: FamilyEVM}
	got := desc.ExplorerTxURL("0xabc")
	if got != "https://sepolia.basescan.org/tx/0xabc" {
		t.Fatalf("unexpected explorer url: %s", got)
	}
}

func TestCatalogDedupesAndOrders(t *testing.T) {
	catalog := NewCatalogFrom([]Token{
		{ChainKey: "sepolia", Symbol: "usdc", ContractAddress: "0x1"},
		{ChainKey: "sepolia", Symbol: "LINK", ContractAddress: "0x2"},
		{ChainKey: "Sepolia", Symbol: "USDC", ContractAddress: "0x3"},
	})

	tokens := catalog.TokensFor("SEPOLIA")
	if len(tokens) != 2 {
		t.Fatalf("unexpected token count: %d", len(tokens))
	}
	if tokens[0].Symbol != "USDC" || tokens[0].ContractAddress != "0x1" {
		t.Fatalf("unexpected first token: %+v", tokens[0])
	}
	if tokens[1].Symbol != "LINK" {
		t.Fatalf("unexpected second token: %+v", tokens[1])
	}

	if _, ok := catalog.Find("sepolia", "link"); !ok {
		t.Fatal("expected to find LINK")
	}
	if _, ok := catalog.Find("sepolia", "DAI"); ok {
		t.Fatal("did not expect to find DAI")
	}
}
