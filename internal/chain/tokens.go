package chain

import (
	"encoding/json"
	"os"
	"strings"

	xerrors "github.com/NikhilRaikwar/Nexis/internal/errors"
)

// Token 描述某条链上的一种同质化代币。
// Decimals 不在这里维护，余额查询时从合约实时读取，避免元数据漂移。
type Token struct {
	ChainKey        string `json:"chain"`
	Symbol          string `json:"symbol"`
	ContractAddress string `json:"address"`
}

// Catalog 按链保存已知代币，顺序与登记顺序一致。
type Catalog struct {
	byChain map[string][]Token
}

// defaultTokens 是内置的测试网代币列表。
var defaultTokens = []Token{
	{ChainKey: "sepolia", Symbol: "USDC", ContractAddress: "0x1c7D4B196Cb0C7B01d743Fbc6116a902379C7238"},
	{ChainKey: "sepolia", Symbol: "LINK", ContractAddress: "0x779877A7B0D9E8603169DdbD7836e478b4624789"},
	{ChainKey: "baseSepolia", Symbol: "USDC", ContractAddress: "0x036CbD53842c5426634e7929541eC2318f3dCF7e"},
	{ChainKey: "arbitrumSepolia", Symbol: "USDC", ContractAddress: "0x75faf114eafb1BDbe2F0316DF893fd58CE46AA4d"},
	{ChainKey: "optimismSepolia", Symbol: "USDC", ContractAddress: "0x5fd84259d66Cd46123540766Be93DFE6D43130D7"},
}

// NewCatalog 基于内置代币表构建目录。
func NewCatalog() *Catalog {
	return NewCatalogFrom(defaultTokens)
}

// NewCatalogFrom 基于调用方提供的代币表构建目录。
// 同一条链上重复的符号只保留首次登记的条目。
func NewCatalogFrom(tokens []Token) *Catalog {
	c := &Catalog{byChain: make(map[string][]Token)}
	seen := make(map[string]struct{}, len(tokens))
	for _, token := range tokens {
		chainKey := normalizeKey(token.ChainKey)
		symbol := strings.ToUpper(strings.TrimSpace(token.Symbol))
		if chainKey == "" || symbol == "" || strings.TrimSpace(token.ContractAddress) == "" {
			continue
		}
		dedupeKey := chainKey + ":" + symbol
		if _, dup := seen[dedupeKey]; dup {
			continue
		}
		seen[dedupeKey] = struct{}{}
		token.Symbol = symbol
		c.byChain[chainKey] = append(c.byChain[chainKey], token)
	}
	return c
}

// LoadCatalog 从 JSON 文件加载代币条目，路径为空时退回内置列表。
func LoadCatalog(path string) (*Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return NewCatalog(), nil
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeConfiguration, err, "读取代币目录失败")
	}
	defer file.Close()

	var entries []Token
	if err := json.NewDecoder(file).Decode(&entries); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeConfiguration, err, "解析代币目录失败")
	}
	return NewCatalogFrom(entries), nil
}

// TokensFor 返回指定链上已知的代币，按登记顺序排列。
func (c *Catalog) TokensFor(chainKey string) []Token {
	if c == nil {
		return nil
	}
	tokens := c.byChain[normalizeKey(chainKey)]
	result := make([]Token, len(tokens))
	copy(result, tokens)
	return result
}

// Find 按链与符号检索代币。
func (c *Catalog) Find(chainKey, symbol string) (Token, bool) {
	if c == nil {
		return Token{}, false
	}
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	for _, token := range c.byChain[normalizeKey(chainKey)] {
		if token.Symbol == symbol {
			return token, true
		}
	}
	return Token{}, false
}
