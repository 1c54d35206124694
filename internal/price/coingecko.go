// Package price resolves token identifiers against the CoinGecko simple
// price API. Lookups are batched into a single upstream call and can be
// cached with a short TTL.
package price

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	xerrors "github.com/NikhilRaikwar/Nexis/internal/errors"
)

const (
	defaultBaseURL  = "https://api.coingecko.com/api/v3"
	defaultCurrency = "usd"
	defaultTimeout  = 15 * time.Second
)

// synonyms 把用户常用的符号映射到 CoinGecko 的标准 ID。
var synonyms = map[string]string{
	"eth":      "ethereum",
	"ether":    "ethereum",
	"ethereum": "ethereum",
	"btc":      "bitcoin",
	"bitcoin":  "bitcoin",
	"sol":      "solana",
	"solana":   "solana",
	"usdc":     "usd-coin",
	"usdt":     "tether",
	"link":     "chainlink",
	"matic":    "matic-network",
	"pol":      "matic-network",
	"bnb":      "binancecoin",
	"arb":      "arbitrum",
	"op":       "optimism",
	"avax":     "avalanche-2",
	"doge":     "dogecoin",
	"ada":      "cardano",
}

// Resolve 将符号或名称规范化为 CoinGecko ID。未知符号按小写原样返回，
// 交由上游判定是否存在。
func Resolve(token string) string {
	normalized := strings.ToLower(strings.TrimSpace(token))
	if id, ok := synonyms[normalized]; ok {
		return id
	}
	return normalized
}

// Quote 是一次价格查询的结果。Found 为 false 表示上游不认识该代币。
type Quote struct {
	Query string
	ID    string
	Price float64
	Found bool
}

// Config 描述价格客户端的连接参数。
type Config struct {
	BaseURL  string
	Currency string
	Timeout  time.Duration
}

// Client 调用 CoinGecko 获取批量报价。
type Client struct {
	baseURL    string
	currency   string
	httpClient *http.Client
	cache      Cache
	cacheTTL   time.Duration
}

// Option 定义可选的客户端配置。
type Option func(*Client)

// WithCache 启用报价缓存。
func WithCache(cache Cache, ttl time.Duration) Option {
	return func(c *Client) {
		if cache != nil && ttl > 0 {
			c.cache = cache
			c.cacheTTL = ttl
		}
	}
}

// NewClient 创建价格客户端。
func NewClient(cfg Config, opts ...Option) *Client {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	currency := strings.ToLower(strings.TrimSpace(cfg.Currency))
	if currency == "" {
		currency = defaultCurrency
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	client := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		currency:   currency,
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client
}

// SetHTTPClient 覆盖底层 HTTP 客户端，测试用。
func (c *Client) SetHTTPClient(httpClient *http.Client) {
	if httpClient != nil {
		c.httpClient = httpClient
	}
}

// Quotes 批量查询报价，结果顺序与查询顺序一致。
// 单个代币查不到不算错误；只有传输层故障才让整个调用失败。
func (c *Client) Quotes(ctx context.Context, tokens []string) ([]Quote, error) {
	quotes := make([]Quote, 0, len(tokens))
	pending := make([]string, 0, len(tokens))

	for _, token := range tokens {
		query := strings.TrimSpace(token)
		if query == "" {
			continue
		}
		quote := Quote{Query: query, ID: Resolve(query)}
		if price, ok := c.cachedPrice(ctx, quote.ID); ok {
			quote.Price = price
			quote.Found = true
		} else {
			pending = append(pending, quote.ID)
		}
		quotes = append(quotes, quote)
	}
	if len(pending) == 0 {
		return quotes, nil
	}

	prices, err := c.fetch(ctx, pending)
	if err != nil {
		return nil, err
	}

	for i := range quotes {
		if quotes[i].Found {
			continue
		}
		if price, ok := prices[quotes[i].ID]; ok {
			quotes[i].Price = price
			quotes[i].Found = true
			c.storePrice(ctx, quotes[i].ID, price)
		}
	}
	return quotes, nil
}

// Currency 返回报价使用的法币单位。
func (c *Client) Currency() string {
	return c.currency
}

func (c *Client) fetch(ctx context.Context, ids []string) (map[string]float64, error) {
	query := url.Values{}
	query.Set("ids", strings.Join(ids, ","))
	query.Set("vs_currencies", c.currency)
	endpoint := c.baseURL + "/simple/price?" + query.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeExecutorFailure, err, "构建价格请求失败")
	}
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeUpstreamFailure, err, "请求价格服务失败")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, xerrors.Newf(xerrors.CodeUpstreamFailure, "价格服务返回状态 %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var decoded map[string]map[string]float64
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeUpstreamFailure, err, "解析价格响应失败")
	}

	prices := make(map[string]float64, len(decoded))
	for id, currencies := range decoded {
		if price, ok := currencies[c.currency]; ok {
			prices[id] = price
		}
	}
	return prices, nil
}

func (c *Client) cacheKey(id string) string {
	return fmt.Sprintf("nexis:price:%s:%s", id, c.currency)
}

func (c *Client) cachedPrice(ctx context.Context, id string) (float64, bool) {
	if c.cache == nil {
		return 0, false
	}
	raw, ok := c.cache.Get(ctx, c.cacheKey(id))
	if !ok {
		return 0, false
	}
	price, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return price, true
}

func (c *Client) storePrice(ctx context.Context, id string, price float64) {
	if c.cache == nil {
		return
	}
	c.cache.Set(ctx, c.cacheKey(id), strconv.FormatFloat(price, 'f', -1, 64), c.cacheTTL)
}
