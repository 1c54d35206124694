package chain

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	xerrors "github.com/NikhilRaikwar/Nexis/internal/errors"
)

// Family 表示链所属的签名体系。
type Family string

const (
	FamilyEVM    Family = "evm"
	FamilySolana Family = "solana"
)

// Descriptor 描述一条受支持的网络。
type Descriptor struct {
	Key              string
	DisplayName      string
	Family           Family
	RPCEndpoint      string
	ExplorerBaseURL  string
	FaucetURL        string
	CurrencySymbol   string
	CurrencyDecimals int
	ChainID          int64
}

// Registry 以注册顺序保存链描述，启动后不再变更。
type Registry struct {
	order []string
	byKey map[string]Descriptor
}

// Definitions models the structure of configs/chains.yaml.
type Definitions struct {
	Chains []Definition `yaml:"chains"`
}

// Definition describes a single chain entry in the YAML file.
type Definition struct {
	Key              string `yaml:"key"`
	Name             string `yaml:"name"`
	Family           string `yaml:"family"`
	RPCURL           string `yaml:"rpc_url"`
	ExplorerURL      string `yaml:"explorer_url"`
	FaucetURL        string `yaml:"faucet_url"`
	CurrencySymbol   string `yaml:"currency_symbol"`
	CurrencyDecimals int    `yaml:"currency_decimals"`
	ChainID          int64  `yaml:"chain_id"`
}

// defaultDescriptors 是内置的测试网列表，未提供配置文件时直接使用。
var defaultDescriptors = []Descriptor{
	{
		Key:              "sepolia",
		DisplayName:      "Ethereum Sepolia",
		Family:           FamilyEVM,
		RPCEndpoint:      "https://ethereum-sepolia-rpc.publicnode.com",
		ExplorerBaseURL:  "https://sepolia.etherscan.io",
		FaucetURL:        "https://sepoliafaucet.com",
		CurrencySymbol:   "ETH",
		CurrencyDecimals: 18,
		ChainID:          11155111,
	},
	{
		Key:              "baseSepolia",
		DisplayName:      "Base Sepolia",
		Family:           FamilyEVM,
		RPCEndpoint:      "https://sepolia.base.org",
		ExplorerBaseURL:  "https://sepolia.basescan.org",
		FaucetURL:        "https://www.alchemy.com/faucets/base-sepolia",
		CurrencySymbol:   "ETH",
		CurrencyDecimals: 18,
		ChainID:          84532,
	},
	{
		Key:              "arbitrumSepolia",
		DisplayName:      "Arbitrum Sepolia",
		Family:           FamilyEVM,
		RPCEndpoint:      "https://sepolia-rollup.arbitrum.io/rpc",
		ExplorerBaseURL:  "https://sepolia.arbiscan.io",
		FaucetURL:        "https://www.alchemy.com/faucets/arbitrum-sepolia",
		CurrencySymbol:   "ETH",
		CurrencyDecimals: 18,
		ChainID:          421614,
	},
	{
		Key:              "optimismSepolia",
		DisplayName:      "Optimism Sepolia",
		Family:           FamilyEVM,
		RPCEndpoint:      "https://sepolia.optimism.io",
		ExplorerBaseURL:  "https://sepolia-optimism.etherscan.io",
		FaucetURL:        "https://www.alchemy.com/faucets/optimism-sepolia",
		CurrencySymbol:   "ETH",
		CurrencyDecimals: 18,
		ChainID:          11155420,
	},
	{
		Key:              "solanaDevnet",
		DisplayName:      "Solana Devnet",
		Family:           FamilySolana,
		RPCEndpoint:      "https://api.devnet.solana.com",
		ExplorerBaseURL:  "https://explorer.solana.com",
		FaucetURL:        "https://faucet.solana.com",
		CurrencySymbol:   "SOL",
		CurrencyDecimals: 9,
	},
}

// NewRegistry 基于内置链表构建注册表。
func NewRegistry() *Registry {
	registry, err := NewRegistryFrom(defaultDescriptors)
	if err != nil {
		// 内置链表在编译期保证合法。
		panic(err)
	}
	return registry
}

// NewRegistryFrom 基于调用方提供的链表构建注册表。
func NewRegistryFrom(descriptors []Descriptor) (*Registry, error) {
	r := &Registry{byKey: make(map[string]Descriptor, len(descriptors))}
	for _, desc := range descriptors {
		key := strings.TrimSpace(desc.Key)
		if key == "" {
			return nil, xerrors.New(xerrors.CodeConfiguration, "链标识不能为空")
		}
		normalized := normalizeKey(key)
		if _, exists := r.byKey[normalized]; exists {
			return nil, xerrors.Newf(xerrors.CodeConfiguration, "链标识 %s 重复注册", key)
		}
		switch desc.Family {
		case FamilyEVM, FamilySolana:
		default:
			return nil, xerrors.Newf(xerrors.CodeConfiguration, "链 %s 使用了不支持的类型 %s", key, desc.Family)
		}
		desc.Key = key
		r.byKey[normalized] = desc
		r.order = append(r.order, key)
	}
	if len(r.order) == 0 {
		return nil, xerrors.New(xerrors.CodeConfiguration, "未配置任何链")
	}
	return r, nil
}

// LoadRegistry 解析 YAML 链配置文件，路径为空时退回内置链表。
func LoadRegistry(path string) (*Registry, error) {
	if strings.TrimSpace(path) == "" {
		return NewRegistry(), nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeConfiguration, err, "读取链配置失败")
	}

	var defs Definitions
	if err := yaml.Unmarshal(content, &defs); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeConfiguration, err, "解析链配置失败")
	}
	if len(defs.Chains) == 0 {
		return NewRegistry(), nil
	}

	descriptors := make([]Descriptor, 0, len(defs.Chains))
	for _, def := range defs.Chains {
		family := Family(strings.ToLower(strings.TrimSpace(def.Family)))
		if family == "" {
			family = FamilyEVM
		}
		decimals := def.CurrencyDecimals
		if decimals <= 0 {
			if family == FamilySolana {
				decimals = 9
			} else {
				decimals = 18
			}
		}
		descriptors = append(descriptors, Descriptor{
			Key:              def.Key,
			DisplayName:      def.Name,
			Family:           family,
			RPCEndpoint:      def.RPCURL,
			ExplorerBaseURL:  def.ExplorerURL,
			FaucetURL:        def.FaucetURL,
			CurrencySymbol:   def.CurrencySymbol,
			CurrencyDecimals: decimals,
			ChainID:          def.ChainID,
		})
	}
	return NewRegistryFrom(descriptors)
}

// Lookup 返回指定链的描述，键不区分大小写。
func (r *Registry) Lookup(key string) (Descriptor, error) {
	if r == nil {
		return Descriptor{}, xerrors.New(xerrors.CodeInitializationFailure, "链注册表未初始化")
	}
	desc, ok := r.byKey[normalizeKey(key)]
	if !ok {
		return Descriptor{}, xerrors.New(
			xerrors.CodeUnknownChain,
			fmt.Sprintf("unknown chain %q, supported chains: %s", strings.TrimSpace(key), strings.Join(r.Keys(), ", ")),
		)
	}
	return desc, nil
}

// Keys 按注册顺序返回所有链标识。
func (r *Registry) Keys() []string {
	if r == nil {
		return nil
	}
	keys := make([]string, len(r.order))
	copy(keys, r.order)
	return keys
}

// Family 按注册顺序返回属于指定签名体系的链。
func (r *Registry) Family(family Family) []Descriptor {
	if r == nil {
		return nil
	}
	descriptors := make([]Descriptor, 0, len(r.order))
	for _, key := range r.order {
		desc := r.byKey[normalizeKey(key)]
		if desc.Family == family {
			descriptors = append(descriptors, desc)
		}
	}
	return descriptors
}

// ExplorerTxURL 拼接交易详情页地址。
func (d Descriptor) ExplorerTxURL(txHash string) string {
	base := strings.TrimRight(d.ExplorerBaseURL, "/")
	if d.Family == FamilySolana {
		return base + "/tx/" + txHash + "?cluster=devnet"
	}
	return base + "/tx/" + txHash
}

func normalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}
