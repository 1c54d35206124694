package tools

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	gethcore "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	coretypes "github.com/ethereum/go-ethereum/core/types"

	"github.com/NikhilRaikwar/Nexis/internal/chain"
	"github.com/NikhilRaikwar/Nexis/internal/chain/evm"
	"github.com/NikhilRaikwar/Nexis/internal/chain/solana"
	xerrors "github.com/NikhilRaikwar/Nexis/internal/errors"
	"github.com/NikhilRaikwar/Nexis/internal/events"
	"github.com/NikhilRaikwar/Nexis/internal/llm"
	"github.com/NikhilRaikwar/Nexis/internal/price"
	"github.com/NikhilRaikwar/Nexis/internal/records"
	"github.com/NikhilRaikwar/Nexis/internal/wallet"
)

// 公开的 hardhat 测试私钥，仅用于单元测试。
const testEVMKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

const testRecipient = "0x000000000000000000000000000000000000dEaD"

// stubBackend 记录网络调用次数并返回固定回执。
type stubBackend struct {
	networkCalls int
	sent         []*coretypes.Transaction
	gasPrice     *big.Int
	balance      *big.Int
	failGas      bool
}

func (s *stubBackend) BalanceAt(context.Context, common.Address, *big.Int) (*big.Int, error) {
	s.networkCalls++
	if s.balance == nil {
		return big.NewInt(0), nil
	}
	return s.balance, nil
}

func (s *stubBackend) CallContract(context.Context, gethcore.CallMsg, *big.Int) ([]byte, error) {
	s.networkCalls++
	return nil, xerrors.New(xerrors.CodeUpstreamFailure, "no contract data")
}

func (s *stubBackend) SuggestGasPrice(context.Context) (*big.Int, error) {
	s.networkCalls++
	if s.failGas {
		return nil, xerrors.New(xerrors.CodeUpstreamFailure, "gas oracle down")
	}
	if s.gasPrice == nil {
		return big.NewInt(2_000_000_000), nil
	}
	return s.gasPrice, nil
}

func (s *stubBackend) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	s.networkCalls++
	return 1, nil
}

func (s *stubBackend) SendTransaction(_ context.Context, tx *coretypes.Transaction) error {
	s.networkCalls++
	s.sent = append(s.sent, tx)
	return nil
}

func (s *stubBackend) TransactionReceipt(context.Context, common.Hash) (*coretypes.Receipt, error) {
	s.networkCalls++
	return &coretypes.Receipt{Status: coretypes.ReceiptStatusSuccessful, BlockNumber: big.NewInt(7)}, nil
}

type stubModel struct {
	response *llm.Response
	err      error
}

func (s *stubModel) Chat(context.Context, llm.Request) (*llm.Response, error) {
	return s.response, s.err
}

func newTestRuntime(t *testing.T, backend *stubBackend) *Runtime {
	t.Helper()
	registry := chain.NewRegistry()
	return &Runtime{
		Registry:  registry,
		Catalog:   chain.NewCatalogFrom(nil),
		Session:   wallet.NewSession(registry),
		SessionID: "session-test",
		EVM: evm.NewDialerWithFactory(func(_ context.Context, desc chain.Descriptor) (*evm.Client, error) {
			return evm.NewClientWithBackend(desc, backend), nil
		}),
		Solana: solana.NewDialer(),
		Events: events.NewMemoryPublisher(16),
	}
}

func connectEVM(t *testing.T, rt *Runtime) string {
	t.Helper()
	address, err := rt.Session.ConnectEVM(testEVMKey)
	if err != nil {
		t.Fatalf("ConnectEVM: %v", err)
	}
	return address
}

func TestConnectWalletRequiresKey(t *testing.T) {
	rt := newTestRuntime(t, &stubBackend{})
	set := DefaultSet()

	out, err := set.Execute(context.Background(), rt, llm.ToolCall{Name: "connect_wallet", Arguments: json.RawMessage(`{}`)})
	if err != nil {
		t.Fatalf("expected user-facing message, got error %v", err)
	}
	if !strings.Contains(out, "No private key provided") {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestConnectWalletBindsAllEVMChains(t *testing.T) {
	rt := newTestRuntime(t, &stubBackend{})
	set := DefaultSet()

	out, err := set.Execute(context.Background(), rt, llm.ToolCall{
		Name:      "connect_wallet",
		Arguments: json.RawMessage(`{"evmPrivateKey": "` + testEVMKey + `"}`),
	})
	if err != nil {
		t.Fatalf("connect_wallet: %v", err)
	}
	for _, key := range []string{"sepolia", "baseSepolia", "arbitrumSepolia", "optimismSepolia"} {
		if !strings.Contains(out, key) {
			t.Fatalf("output missing chain %s: %q", key, out)
		}
	}

	// 所有 EVM 链报告同一个派生地址。
	addrOut, err := set.Execute(context.Background(), rt, llm.ToolCall{Name: "get_wallet_address", Arguments: json.RawMessage(`{}`)})
	if err != nil {
		t.Fatalf("get_wallet_address: %v", err)
	}
	lines := strings.Split(addrOut, "\n")
	if len(lines) != 4 {
		t.Fatalf("expected 4 address lines, got %q", addrOut)
	}
}

func TestDisconnectThenAddressReportsNoWallet(t *testing.T) {
	rt := newTestRuntime(t, &stubBackend{})
	set := DefaultSet()
	connectEVM(t, rt)

	if _, err := set.Execute(context.Background(), rt, llm.ToolCall{Name: "disconnect_wallet", Arguments: json.RawMessage(`{}`)}); err != nil {
		t.Fatalf("disconnect_wallet: %v", err)
	}
	out, err := set.Execute(context.Background(), rt, llm.ToolCall{Name: "get_wallet_address", Arguments: json.RawMessage(`{"chain": "sepolia"}`)})
	if err != nil {
		t.Fatalf("get_wallet_address: %v", err)
	}
	if !strings.Contains(out, "No wallet connected") {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestGetBalanceWithoutWalletOrAddress(t *testing.T) {
	rt := newTestRuntime(t, &stubBackend{})
	set := DefaultSet()

	out, err := set.Execute(context.Background(), rt, llm.ToolCall{Name: "get_balance", Arguments: json.RawMessage(`{"chain": "sepolia"}`)})
	if err != nil {
		t.Fatalf("expected explanatory message, got error %v", err)
	}
	if !strings.Contains(out, "No wallet connected") {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestGetBalanceReportsNativeFirst(t *testing.T) {
	backend := &stubBackend{balance: big.NewInt(1_500_000_000_000_000_000)}
	rt := newTestRuntime(t, backend)
	connectEVM(t, rt)
	set := DefaultSet()

	out, err := set.Execute(context.Background(), rt, llm.ToolCall{Name: "get_balance", Arguments: json.RawMessage(`{"chain": "sepolia"}`)})
	if err != nil {
		t.Fatalf("get_balance: %v", err)
	}
	if !strings.Contains(out, "ETH: 1.5") {
		t.Fatalf("expected native balance line, got %q", out)
	}
}

func TestGetBalanceDegradesPerToken(t *testing.T) {
	backend := &stubBackend{balance: big.NewInt(1_000_000_000_000_000_000)}
	rt := newTestRuntime(t, backend)
	rt.Catalog = chain.NewCatalogFrom([]chain.Token{
		{ChainKey: "sepolia", Symbol: "USDC", ContractAddress: "0x1c7D4B196Cb0C7B01d743Fbc6116a902379C7238"},
	})
	connectEVM(t, rt)
	set := DefaultSet()

	out, err := set.Execute(context.Background(), rt, llm.ToolCall{Name: "get_balance", Arguments: json.RawMessage(`{"chain": "sepolia"}`)})
	if err != nil {
		t.Fatalf("get_balance: %v", err)
	}
	if !strings.Contains(out, "ETH: 1") {
		t.Fatalf("expected native line, got %q", out)
	}
	if !strings.Contains(out, "USDC: unable to fetch") {
		t.Fatalf("expected degraded token line, got %q", out)
	}
}

func TestTransferValidatesBeforeNetwork(t *testing.T) {
	cases := []struct {
		name string
		args string
		code xerrors.Code
	}{
		{"zero amount", `{"chain": "baseSepolia", "recipient": "` + testRecipient + `", "amount": "0"}`, xerrors.CodeInvalidAmount},
		{"negative amount", `{"chain": "baseSepolia", "recipient": "` + testRecipient + `", "amount": "-1"}`, xerrors.CodeInvalidAmount},
		{"garbage amount", `{"chain": "baseSepolia", "recipient": "` + testRecipient + `", "amount": "lots"}`, xerrors.CodeInvalidAmount},
		{"bad recipient", `{"chain": "baseSepolia", "recipient": "not-an-address", "amount": "0.1"}`, xerrors.CodeInvalidAddress},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			backend := &stubBackend{}
			rt := newTestRuntime(t, backend)
			connectEVM(t, rt)
			set := DefaultSet()

			_, err := set.Execute(context.Background(), rt, llm.ToolCall{Name: "transfer_tokens", Arguments: json.RawMessage(tc.args)})
			if xerrors.CodeOf(err) != tc.code {
				t.Fatalf("expected %s, got %v", tc.code, err)
			}
			if backend.networkCalls != 0 {
				t.Fatalf("expected zero network calls, got %d", backend.networkCalls)
			}
		})
	}
}

func TestTransferWithoutWallet(t *testing.T) {
	rt := newTestRuntime(t, &stubBackend{})
	set := DefaultSet()

	_, err := set.Execute(context.Background(), rt, llm.ToolCall{
		Name:      "transfer_tokens",
		Arguments: json.RawMessage(`{"chain": "baseSepolia", "recipient": "` + testRecipient + `", "amount": "0.1"}`),
	})
	if xerrors.CodeOf(err) != xerrors.CodeNoWalletBound {
		t.Fatalf("expected NO_WALLET_BOUND, got %v", err)
	}
}

func TestTransferConfirmedOutput(t *testing.T) {
	backend := &stubBackend{}
	rt := newTestRuntime(t, backend)
	publisher := events.NewMemoryPublisher(16)
	rt.Events = publisher
	store, err := records.NewMemoryStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewMemoryStore: %v", err)
	}
	rt.Records = store
	connectEVM(t, rt)
	set := DefaultSet()

	out, err := set.Execute(context.Background(), rt, llm.ToolCall{
		Name:      "transfer_tokens",
		Arguments: json.RawMessage(`{"chain": "baseSepolia", "recipient": "` + testRecipient + `", "amount": "0.1"}`),
	})
	if err != nil {
		t.Fatalf("transfer_tokens: %v", err)
	}

	if len(backend.sent) != 1 {
		t.Fatalf("expected one submitted transaction, got %d", len(backend.sent))
	}
	txHash := backend.sent[0].Hash().Hex()
	if !strings.Contains(out, "0.1") || !strings.Contains(out, testRecipient) {
		t.Fatalf("output missing amount or recipient: %q", out)
	}
	if !strings.Contains(out, "https://sepolia.basescan.org/tx/"+txHash) {
		t.Fatalf("output missing explorer URL: %q", out)
	}

	fired := publisher.Events()
	if len(fired) != 1 || fired[0].Type != events.TypeTransferConfirmed {
		t.Fatalf("expected a transfer.confirmed event, got %+v", fired)
	}
	saved, err := store.ListLatest(context.Background(), 1)
	if err != nil || len(saved) != 1 || saved[0].TxHash != txHash {
		t.Fatalf("expected persisted record, got %+v err %v", saved, err)
	}
}

func TestSmartTransferExtractsThenTransfers(t *testing.T) {
	backend := &stubBackend{}
	rt := newTestRuntime(t, backend)
	connectEVM(t, rt)
	rt.Extractor = &stubModel{response: &llm.Response{
		Content: "```json\n{\"chain\": \"baseSepolia\", \"recipient\": \"" + testRecipient + "\", \"amount\": \"0.1\"}\n```",
	}}
	set := DefaultSet()

	out, err := set.Execute(context.Background(), rt, llm.ToolCall{
		Name:      "smart_transfer",
		Arguments: json.RawMessage(`{"instruction": "send 0.1 ETH to ` + testRecipient + ` on baseSepolia"}`),
	})
	if err != nil {
		t.Fatalf("smart_transfer: %v", err)
	}
	if !strings.Contains(out, testRecipient) || !strings.Contains(out, "Base Sepolia") {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestSmartTransferRejectsIncompleteExtraction(t *testing.T) {
	backend := &stubBackend{}
	rt := newTestRuntime(t, backend)
	connectEVM(t, rt)
	rt.Extractor = &stubModel{response: &llm.Response{
		Content: `{"chain": "baseSepolia", "recipient": "", "amount": "0.1"}`,
	}}
	set := DefaultSet()

	_, err := set.Execute(context.Background(), rt, llm.ToolCall{
		Name:      "smart_transfer",
		Arguments: json.RawMessage(`{"instruction": "send money"}`),
	})
	if xerrors.CodeOf(err) != xerrors.CodeInvalidArgument {
		t.Fatalf("expected INVALID_ARGUMENT, got %v", err)
	}
	if backend.networkCalls != 0 {
		t.Fatalf("expected zero network calls on failed extraction, got %d", backend.networkCalls)
	}
}

func TestGasPricesDegradePerChain(t *testing.T) {
	backend := &stubBackend{failGas: true}
	rt := newTestRuntime(t, backend)
	set := DefaultSet()

	out, err := set.Execute(context.Background(), rt, llm.ToolCall{Name: "get_gas_prices", Arguments: json.RawMessage(`{}`)})
	if err != nil {
		t.Fatalf("get_gas_prices: %v", err)
	}
	if !strings.Contains(out, "Unable to fetch gas prices") {
		t.Fatalf("expected whole-call degradation, got %q", out)
	}
}

func TestGasPricesSingleChain(t *testing.T) {
	backend := &stubBackend{gasPrice: big.NewInt(1_500_000_000)}
	rt := newTestRuntime(t, backend)
	set := DefaultSet()

	out, err := set.Execute(context.Background(), rt, llm.ToolCall{Name: "get_gas_prices", Arguments: json.RawMessage(`{"chain": "sepolia"}`)})
	if err != nil {
		t.Fatalf("get_gas_prices: %v", err)
	}
	if !strings.Contains(out, "Ethereum Sepolia: 1.5 gwei") {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestTokenPricesReportMissingIndividually(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]map[string]float64{
			"bitcoin": {"usd": 65000.5},
		})
	}))
	defer srv.Close()

	rt := newTestRuntime(t, &stubBackend{})
	client := price.NewClient(price.Config{BaseURL: srv.URL})
	client.SetHTTPClient(srv.Client())
	rt.Prices = client
	set := DefaultSet()

	out, err := set.Execute(context.Background(), rt, llm.ToolCall{
		Name:      "get_token_prices",
		Arguments: json.RawMessage(`{"tokens": "bitcoin,doesnotexist"}`),
	})
	if err != nil {
		t.Fatalf("get_token_prices: %v", err)
	}
	if !strings.Contains(out, "bitcoin: 65000.5 USD") {
		t.Fatalf("expected priced line, got %q", out)
	}
	if !strings.Contains(out, "Price not found for doesnotexist") {
		t.Fatalf("expected missing-price line, got %q", out)
	}
}

func TestFaucetInfoIncludesBoundAddress(t *testing.T) {
	rt := newTestRuntime(t, &stubBackend{})
	address := connectEVM(t, rt)
	set := DefaultSet()

	out, err := set.Execute(context.Background(), rt, llm.ToolCall{Name: "get_faucet_tokens", Arguments: json.RawMessage(`{"chains": "sepolia"}`)})
	if err != nil {
		t.Fatalf("get_faucet_tokens: %v", err)
	}
	if !strings.Contains(out, "https://sepoliafaucet.com") || !strings.Contains(out, address) {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestHelpListsEveryTool(t *testing.T) {
	rt := newTestRuntime(t, &stubBackend{})
	set := DefaultSet()

	out, err := set.Execute(context.Background(), rt, llm.ToolCall{Name: "help"})
	if err != nil {
		t.Fatalf("help: %v", err)
	}
	for _, name := range set.Names() {
		if !strings.Contains(out, name) {
			t.Fatalf("help output missing %s: %q", name, out)
		}
	}
}

func TestExecuteUnknownTool(t *testing.T) {
	rt := newTestRuntime(t, &stubBackend{})
	set := DefaultSet()

	_, err := set.Execute(context.Background(), rt, llm.ToolCall{Name: "no_such_tool"})
	if xerrors.CodeOf(err) != xerrors.CodeInvalidArgument {
		t.Fatalf("expected INVALID_ARGUMENT, got %v", err)
	}
}

func TestParseAmount(t *testing.T) {
	if _, err := parseAmount("0.1", 18); err != nil {
		t.Fatalf("parseAmount(0.1): %v", err)
	}
	wei, err := parseAmount("1.5", 18)
	if err != nil {
		t.Fatalf("parseAmount(1.5): %v", err)
	}
	if wei.String() != "1500000000000000000" {
		t.Fatalf("unexpected wei: %s", wei)
	}
	if _, err := parseAmount("0.0000000001", 9); xerrors.CodeOf(err) != xerrors.CodeInvalidAmount {
		t.Fatalf("expected precision rejection, got %v", err)
	}
}

func TestFormatUnits(t *testing.T) {
	cases := []struct {
		value    *big.Int
		decimals int
		want     string
	}{
		{big.NewInt(1_500_000_000_000_000_000), 18, "1.5"},
		{big.NewInt(0), 18, "0"},
		{big.NewInt(1), 18, "0.000000000000000001"},
		{big.NewInt(42), 0, "42"},
	}
	for _, tc := range cases {
		if got := formatUnits(tc.value, tc.decimals); got != tc.want {
			t.Fatalf("formatUnits(%s, %d) = %q, want %q", tc.value, tc.decimals, got, tc.want)
		}
	}
}
