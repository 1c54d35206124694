package wallet

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"encoding/json"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/mr-tron/base58"

	"github.com/NikhilRaikwar/Nexis/internal/chain"
	xerrors "github.com/NikhilRaikwar/Nexis/internal/errors"
)

// Signer 持有某个签名体系的私钥与派生地址。
// 私钥材料只存在于内存中，断开连接后立即丢弃。
type Signer struct {
	family  chain.Family
	address string
	evmKey  *ecdsa.PrivateKey
	solKey  ed25519.PrivateKey
}

// Family 返回签名体系。
func (s *Signer) Family() chain.Family {
	if s == nil {
		return ""
	}
	return s.family
}

// Address 返回派生地址。
func (s *Signer) Address() string {
	if s == nil {
		return ""
	}
	return s.address
}

// ECDSA 返回 EVM 私钥，仅对 EVM 签名器有效。
func (s *Signer) ECDSA() *ecdsa.PrivateKey {
	if s == nil {
		return nil
	}
	return s.evmKey
}

// Ed25519 返回 Solana 私钥，仅对 Solana 签名器有效。
func (s *Signer) Ed25519() ed25519.PrivateKey {
	if s == nil {
		return nil
	}
	return s.solKey
}

// Session 是单个会话的钱包视图：链标识到签名器的内存映射。
// 并发的工具调用共享同一个会话，所有访问都经过读写锁。
type Session struct {
	mu       sync.RWMutex
	registry *chain.Registry
	signers  map[string]*Signer
}

// NewSession 创建空会话。
func NewSession(registry *chain.Registry) *Session {
	return &Session{
		registry: registry,
		signers:  make(map[string]*Signer),
	}
}

// ConnectEVM 解析十六进制私钥，并一次性绑定到注册表中的所有 EVM 链。
func (s *Session) ConnectEVM(privateKeyHex string) (string, error) {
	material := strings.TrimSpace(privateKeyHex)
	material = strings.TrimPrefix(material, "0x")
	if material == "" {
		return "", xerrors.New(xerrors.CodeInvalidCredential, "EVM 私钥不能为空")
	}

	key, err := crypto.HexToECDSA(material)
	if err != nil {
		// 不回显输入内容。
		return "", xerrors.New(xerrors.CodeInvalidCredential, "无法解析 EVM 私钥")
	}
	address := crypto.PubkeyToAddress(key.PublicKey).Hex()
	signer := &Signer{family: chain.FamilyEVM, address: address, evmKey: key}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, desc := range s.registry.Family(chain.FamilyEVM) {
		s.signers[normalize(desc.Key)] = signer
	}
	return address, nil
}

// ConnectSolana 解析 base58 或 JSON 数字数组形式的私钥，绑定到 Solana 链。
func (s *Session) ConnectSolana(secret string) (string, error) {
	key, err := parseSolanaSecret(secret)
	if err != nil {
		return "", err
	}
	address := base58.Encode(key.Public().(ed25519.PublicKey))
	signer := &Signer{family: chain.FamilySolana, address: address, solKey: key}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, desc := range s.registry.Family(chain.FamilySolana) {
		s.signers[normalize(desc.Key)] = signer
	}
	return address, nil
}

// Signer 返回指定链当前绑定的签名器，未绑定时返回 nil。
func (s *Session) Signer(chainKey string) *Signer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.signers[normalize(chainKey)]
}

// Addresses 按注册顺序返回所有已绑定链的地址。
func (s *Session) Addresses() []BoundAddress {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var bound []BoundAddress
	for _, key := range s.registry.Keys() {
		if signer, ok := s.signers[normalize(key)]; ok {
			bound = append(bound, BoundAddress{ChainKey: key, Address: signer.address})
		}
	}
	return bound
}

// BoundAddress 表示某条链上已绑定的地址。
type BoundAddress struct {
	ChainKey string
	Address  string
}

// Disconnect 清除指定链的签名器；chainKey 为空时清除全部。
// 对未绑定的会话调用是无害的空操作。
func (s *Session) Disconnect(chainKey string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(chainKey) == "" {
		for key, signer := range s.signers {
			zero(signer)
			delete(s.signers, key)
		}
		return
	}
	key := normalize(chainKey)
	if signer, ok := s.signers[key]; ok {
		// 同一签名器可能绑定在多条链上，仅在最后一处解除时清零。
		delete(s.signers, key)
		still := false
		for _, remaining := range s.signers {
			if remaining == signer {
				still = true
				break
			}
		}
		if !still {
			zero(signer)
		}
	}
}

// zero 尽量擦除私钥材料。ECDSA 私钥由 GC 回收，ed25519 切片就地清零。
func zero(signer *Signer) {
	if signer == nil {
		return
	}
	for i := range signer.solKey {
		signer.solKey[i] = 0
	}
	signer.solKey = nil
	signer.evmKey = nil
}

// parseSolanaSecret 接受两种密钥格式：base58 字符串或 JSON 数字数组。
func parseSolanaSecret(secret string) (ed25519.PrivateKey, error) {
	material := strings.TrimSpace(secret)
	if material == "" {
		return nil, xerrors.New(xerrors.CodeInvalidCredential, "Solana 私钥不能为空")
	}

	var raw []byte
	if strings.HasPrefix(material, "[") {
		var numbers []int
		if err := json.Unmarshal([]byte(material), &numbers); err != nil {
			return nil, xerrors.New(xerrors.CodeInvalidCredential, "无法解析 JSON 数组形式的 Solana 私钥")
		}
		raw = make([]byte, 0, len(numbers))
		for _, n := range numbers {
			if n < 0 || n > 255 {
				return nil, xerrors.New(xerrors.CodeInvalidCredential, "Solana 私钥字节越界")
			}
			raw = append(raw, byte(n))
		}
	} else {
		decoded, err := base58.Decode(material)
		if err != nil {
			return nil, xerrors.New(xerrors.CodeInvalidCredential, "无法解析 base58 形式的 Solana 私钥")
		}
		raw = decoded
	}

	switch len(raw) {
	case ed25519.PrivateKeySize:
		return ed25519.PrivateKey(raw), nil
	case ed25519.SeedSize:
		return ed25519.NewKeyFromSeed(raw), nil
	default:
		return nil, xerrors.New(xerrors.CodeInvalidCredential, "Solana 私钥长度不合法")
	}
}

func normalize(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}
