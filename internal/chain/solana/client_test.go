package solana

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mr-tron/base58"

	"github.com/NikhilRaikwar/Nexis/internal/chain"
	xerrors "github.com/NikhilRaikwar/Nexis/internal/errors"
)

func devnetDescriptor() chain.Descriptor {
	return chain.Descriptor{
		Key:              "solanaDevnet",
		DisplayName:      "Solana Devnet",
		Family:           chain.FamilySolana,
		RPCEndpoint:      "https://api.devnet.solana.com",
		ExplorerBaseURL:  "https://explorer.solana.com",
		CurrencySymbol:   "SOL",
		CurrencyDecimals: 9,
	}
}

func testKeypair() (ed25519.PrivateKey, string) {
	key := ed25519.NewKeyFromSeed(bytes.Repeat([]byte{9}, ed25519.SeedSize))
	return key, base58.Encode(key.Public().(ed25519.PublicKey))
}

// rpcHarness 按方法名返回固定的 result。
func rpcHarness(t *testing.T, results map[string]any, calls *[]string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		var req struct {
			ID     any    `json:"id"`
			Method string `json:"method"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode rpc request: %v", err)
		}
		if calls != nil {
			*calls = append(*calls, req.Method)
		}
		result, ok := results[req.Method]
		if !ok {
			t.Fatalf("unexpected rpc method %q", req.Method)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"result":  result,
		})
	}))
}

func newTestClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	client, err := NewClient(devnetDescriptor())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	client.SetEndpoint(srv.URL)
	client.SetHTTPClient(srv.Client())
	return client
}

func TestBalance(t *testing.T) {
	_, address := testKeypair()
	srv := rpcHarness(t, map[string]any{
		"getBalance": map[string]any{"value": uint64(2_500_000_000)},
	}, nil)
	defer srv.Close()

	client := newTestClient(t, srv)
	lamports, err := client.Balance(context.Background(), address)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if lamports != 2_500_000_000 {
		t.Fatalf("unexpected lamports: %d", lamports)
	}
}

func TestBalanceRejectsInvalidAddress(t *testing.T) {
	client, err := NewClient(devnetDescriptor())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	_, err = client.Balance(context.Background(), "not-base58-0OIl")
	if xerrors.CodeOf(err) != xerrors.CodeInvalidAddress {
		t.Fatalf("expected INVALID_ADDRESS, got %v", err)
	}
}

func TestTransferNative(t *testing.T) {
	key, _ := testKeypair()
	recipient := base58.Encode(bytes.Repeat([]byte{3}, ed25519.PublicKeySize))
	blockhash := base58.Encode(bytes.Repeat([]byte{5}, 32))

	var calls []string
	srv := rpcHarness(t, map[string]any{
		"getLatestBlockhash": map[string]any{"value": map[string]any{"blockhash": blockhash}},
		"sendTransaction":    "5igned5ignature",
		"getSignatureStatuses": map[string]any{
			"value": []any{map[string]any{"confirmationStatus": "confirmed"}},
		},
	}, &calls)
	defer srv.Close()

	client := newTestClient(t, srv)
	result, err := client.TransferNative(context.Background(), key, recipient, 1_000_000)
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if result.Signature != "5igned5ignature" {
		t.Fatalf("unexpected signature: %s", result.Signature)
	}
	if result.ExplorerURL != "https://explorer.solana.com/tx/5igned5ignature?cluster=devnet" {
		t.Fatalf("unexpected explorer url: %s", result.ExplorerURL)
	}

	want := []string{"getLatestBlockhash", "sendTransaction", "getSignatureStatuses"}
	if len(calls) != len(want) {
		t.Fatalf("unexpected rpc calls: %v", calls)
	}
	for i, method := range want {
		if calls[i] != method {
			t.Fatalf("calls[%d] = %s, want %s", i, calls[i], method)
		}
	}
}

func TestTransferNativeValidatesBeforeNetwork(t *testing.T) {
	key, _ := testKeypair()
	srv := rpcHarness(t, map[string]any{}, nil)
	defer srv.Close()
	client := newTestClient(t, srv)

	t.Run("invalid recipient", func(t *testing.T) {
		_, err := client.TransferNative(context.Background(), key, "???", 1)
		if xerrors.CodeOf(err) != xerrors.CodeInvalidAddress {
			t.Fatalf("expected INVALID_ADDRESS, got %v", err)
		}
	})

	t.Run("zero amount", func(t *testing.T) {
		recipient := base58.Encode(bytes.Repeat([]byte{3}, ed25519.PublicKeySize))
		_, err := client.TransferNative(context.Background(), key, recipient, 0)
		if xerrors.CodeOf(err) != xerrors.CodeInvalidAmount {
			t.Fatalf("expected INVALID_AMOUNT, got %v", err)
		}
	})

	t.Run("missing signer", func(t *testing.T) {
		recipient := base58.Encode(bytes.Repeat([]byte{3}, ed25519.PublicKeySize))
		_, err := client.TransferNative(context.Background(), nil, recipient, 1)
		if xerrors.CodeOf(err) != xerrors.CodeNoWalletBound {
			t.Fatalf("expected NO_WALLET_BOUND, got %v", err)
		}
	})
}

func TestBuildTransferTransactionShape(t *testing.T) {
	key, _ := testKeypair()
	recipient := base58.Encode(bytes.Repeat([]byte{3}, ed25519.PublicKeySize))
	blockhash := base58.Encode(bytes.Repeat([]byte{5}, 32))

	encoded, err := buildTransferTransaction(key, recipient, 42, blockhash)
	if err != nil {
		t.Fatalf("build tx: %v", err)
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		t.Fatalf("decode tx: %v", err)
	}

	// 1 个签名 + 消息体。
	if raw[0] != 1 {
		t.Fatalf("expected one signature, got %d", raw[0])
	}
	signature := raw[1:65]
	message := raw[65:]
	if !ed25519.Verify(key.Public().(ed25519.PublicKey), message, signature) {
		t.Fatal("message signature does not verify")
	}

	// header 后是账户表：from、to、system program。
	if message[0] != 1 || message[1] != 0 || message[2] != 1 {
		t.Fatalf("unexpected header: %v", message[:3])
	}
	if message[3] != 3 {
		t.Fatalf("unexpected account count: %d", message[3])
	}
	from := message[4:36]
	if !bytes.Equal(from, key.Public().(ed25519.PublicKey)) {
		t.Fatal("first account must be the fee payer")
	}
}

func TestBuildTransferRejectsSelfSend(t *testing.T) {
	key, address := testKeypair()
	blockhash := base58.Encode(bytes.Repeat([]byte{5}, 32))

	if _, err := buildTransferTransaction(key, address, 1, blockhash); err == nil {
		t.Fatal("expected self-send to be rejected")
	}
}

func TestFormatLamports(t *testing.T) {
	cases := map[uint64]string{
		0:             "0",
		1:             "0.000000001",
		1_000_000_000: "1",
		2_500_000_000: "2.5",
	}
	for lamports, want := range cases {
		if got := FormatLamports(lamports); got != want {
			t.Fatalf("FormatLamports(%d) = %s, want %s", lamports, got, want)
		}
	}
}
