package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/NikhilRaikwar/Nexis/sdk/go/nexis"
)

func main() {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/agent", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("X-Session-Id", "demo-session")
		_ = json.NewEncoder(w).Encode(nexis.Reply{
			Response:        "Your Sepolia balance is 1.5 ETH.",
			Timestamp:       time.Now().UTC().Format(time.RFC3339),
			SupportedChains: []string{"sepolia", "baseSepolia", "arbitrumSepolia", "optimismSepolia", "solanaDevnet"},
		})
	})
	mux.HandleFunc("/api/v1/transfers", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]nexis.Transfer{{
			ID:       "transfer-demo",
			ChainKey: "sepolia",
			Amount:   "0.01",
			Symbol:   "ETH",
			TxHash:   "0xabc",
		}})
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	client, err := nexis.NewClient(srv.URL, srv.Client())
	if err != nil {
		panic(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	reply, err := client.Chat(ctx, "what is my balance on sepolia?", nil)
	if err != nil {
		panic(err)
	}
	fmt.Printf("agent replied: %s (session=%s)\n", reply.Response, client.SessionID())

	transfers, err := client.Transfers(ctx, 5)
	if err != nil {
		panic(err)
	}
	for _, transfer := range transfers {
		fmt.Printf("recorded transfer %s: %s %s on %s (%s)\n",
			transfer.ID, transfer.Amount, transfer.Symbol, transfer.ChainKey, transfer.TxHash)
	}
}
