package nexis

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestChatTracksSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/agent" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Fatalf("unexpected method: %s", r.Method)
		}
		var payload struct {
			Input string `json:"input"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("unexpected body: %v", err)
		}
		if payload.Input != "hello" {
			t.Fatalf("unexpected input: %q", payload.Input)
		}
		w.Header().Set("X-Session-Id", "session-1")
		_ = json.NewEncoder(w).Encode(Reply{Response: "hi there"})
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL, srv.Client())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	reply, err := client.Chat(context.Background(), "hello", nil)
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if reply.Response != "hi there" {
		t.Fatalf("unexpected reply: %q", reply.Response)
	}
	if got := client.SessionID(); got != "session-1" {
		t.Fatalf("expected session id to be stored, got %q", got)
	}
}

func TestChatSendsStoredSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("X-Session-Id"); got != "session-7" {
			t.Fatalf("expected stored session header, got %q", got)
		}
		_ = json.NewEncoder(w).Encode(Reply{Response: "ok"})
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL, srv.Client())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	client.SetSessionID("session-7")

	if _, err := client.Chat(context.Background(), "balance please", nil); err != nil {
		t.Fatalf("chat: %v", err)
	}
}

func TestChatSurfacesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"error":     "input is required",
			"timestamp": "2026-01-01T00:00:00Z",
		})
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL, srv.Client())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	_, err = client.Chat(context.Background(), "", nil)
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusBadRequest || apiErr.Message != "input is required" {
		t.Fatalf("unexpected api error: %+v", apiErr)
	}
}

func TestTransfersPassesLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/transfers" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("limit"); got != "5" {
			t.Fatalf("unexpected limit: %q", got)
		}
		_ = json.NewEncoder(w).Encode([]Transfer{{ID: "t-1", ChainKey: "sepolia"}})
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL, srv.Client())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	transfers, err := client.Transfers(context.Background(), 5)
	if err != nil {
		t.Fatalf("transfers: %v", err)
	}
	if len(transfers) != 1 || transfers[0].ID != "t-1" {
		t.Fatalf("unexpected transfers: %+v", transfers)
	}
}
