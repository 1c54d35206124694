// Package nexis provides a small Go client for the Nexis conversational
// agent API. The client tracks the session identifier issued by the server
// so that wallet state survives across calls.
package nexis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"sync"
	"time"
)

// DefaultHTTPTimeout defines the timeout used by clients created without a
// custom http.Client. Agent calls can take a while, so it is generous.
const DefaultHTTPTimeout = 60 * time.Second

const sessionHeader = "X-Session-Id"

// Client wraps the HTTP interactions with the Nexis REST API.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client

	mu        sync.RWMutex
	sessionID string
}

// Credentials carries private key material bound to the session on the next
// call. Keys travel only in the request body and are never echoed back.
type Credentials struct {
	EVMKey    string `json:"evmKey,omitempty"`
	NonEVMKey string `json:"nonEvmKey,omitempty"`
}

// Reply is the agent's answer to a chat turn.
type Reply struct {
	Response        string   `json:"response"`
	Timestamp       string   `json:"timestamp"`
	SupportedChains []string `json:"supportedChains"`
}

// Health reports the service status.
type Health struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// Transfer is one recorded transfer returned by the history endpoint.
type Transfer struct {
	ID          string `json:"id"`
	SessionID   string `json:"sessionId"`
	ChainKey    string `json:"chain"`
	FromAddress string `json:"from"`
	ToAddress   string `json:"to"`
	Amount      string `json:"amount"`
	Symbol      string `json:"symbol"`
	TxHash      string `json:"txHash"`
	CreatedAt   int64  `json:"createdAt"`
}

// APIError represents server side validation or internal errors.
type APIError struct {
	StatusCode int
	Message    string `json:"error"`
	Timestamp  string `json:"timestamp"`
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("nexis api error (%d): %s", e.StatusCode, e.Message)
}

// NewClient instantiates a client for the Nexis API. When httpClient is nil,
// a default client with a sensible timeout is used.
func NewClient(rawURL string, httpClient *http.Client) (*Client, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &Client{baseURL: parsed, httpClient: httpClient}, nil
}

// Chat sends one natural language turn to the agent. Credentials may be nil.
func (c *Client) Chat(ctx context.Context, input string, creds *Credentials) (Reply, error) {
	payload := struct {
		Input       string       `json:"input"`
		Credentials *Credentials `json:"credentials,omitempty"`
	}{Input: input, Credentials: creds}

	var reply Reply
	if err := c.post(ctx, "/api/v1/agent", payload, &reply); err != nil {
		return Reply{}, err
	}
	return reply, nil
}

// CheckHealth queries the service health endpoint.
func (c *Client) CheckHealth(ctx context.Context) (Health, error) {
	var health Health
	if err := c.get(ctx, "/health", nil, &health); err != nil {
		return Health{}, err
	}
	return health, nil
}

// Transfers returns the most recent recorded transfers, newest first.
func (c *Client) Transfers(ctx context.Context, limit int) ([]Transfer, error) {
	query := url.Values{}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	var transfers []Transfer
	if err := c.get(ctx, "/api/v1/transfers", query, &transfers); err != nil {
		return nil, err
	}
	return transfers, nil
}

// SessionID returns the session identifier issued by the server, empty until
// the first successful call.
func (c *Client) SessionID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessionID
}

// SetSessionID resumes a previously issued session.
func (c *Client) SetSessionID(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessionID = id
}

func (c *Client) post(ctx context.Context, endpoint string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, endpoint, nil, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, endpoint string, query url.Values, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, endpoint, query, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, query url.Values, body io.Reader) (*http.Request, error) {
	rel := &url.URL{Path: path.Join(c.baseURL.Path, endpoint)}
	u := c.baseURL.ResolveReference(rel)
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if session := c.SessionID(); session != "" {
		req.Header.Set(sessionHeader, session)
	}
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if session := resp.Header.Get(sessionHeader); session != "" {
		c.SetSessionID(session)
	}

	if resp.StatusCode >= 400 {
		apiErr := APIError{StatusCode: resp.StatusCode}
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read error response: %w", err)
		}
		if len(data) > 0 {
			_ = json.Unmarshal(data, &apiErr)
		}
		if apiErr.Message == "" {
			apiErr.Message = string(bytes.TrimSpace(data))
		}
		return &apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
