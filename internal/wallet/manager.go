package wallet

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/NikhilRaikwar/Nexis/internal/chain"
)

// defaultSessionTTL 控制空闲会话的保留时长。
const defaultSessionTTL = 30 * time.Minute

// Manager 按会话 ID 隔离钱包状态，避免并发用户互相看到对方的签名器。
type Manager struct {
	mu       sync.Mutex
	registry *chain.Registry
	ttl      time.Duration
	sessions map[string]*entry
	now      func() time.Time
}

type entry struct {
	session  *Session
	lastSeen time.Time
}

// ManagerOption 定义可选的 Manager 配置。
type ManagerOption func(*Manager)

// WithSessionTTL 设置空闲会话的过期时间。
func WithSessionTTL(ttl time.Duration) ManagerOption {
	return func(m *Manager) {
		if ttl > 0 {
			m.ttl = ttl
		}
	}
}

// WithClock 注入时钟，便于测试过期逻辑。
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// NewManager 创建会话管理器。
func NewManager(registry *chain.Registry, opts ...ManagerOption) *Manager {
	m := &Manager{
		registry: registry,
		ttl:      defaultSessionTTL,
		sessions: make(map[string]*entry),
		now:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

// Acquire 返回指定 ID 的会话，不存在时创建。ID 为空时生成一次性会话，
// 钱包状态仅在本次请求内有效。
func (m *Manager) Acquire(sessionID string) (*Session, string) {
	id := strings.TrimSpace(sessionID)
	if id == "" {
		id = uuid.NewString()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.sweepLocked()

	if existing, ok := m.sessions[id]; ok {
		existing.lastSeen = m.now()
		return existing.session, id
	}
	session := NewSession(m.registry)
	m.sessions[id] = &entry{session: session, lastSeen: m.now()}
	return session, id
}

// Release 立即销毁指定会话并丢弃其签名器。
func (m *Manager) Release(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.sessions[sessionID]; ok {
		existing.session.Disconnect("")
		delete(m.sessions, sessionID)
	}
}

// Len 返回存活的会话数量。
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// sweepLocked 清理超过 TTL 未活动的会话，调用方需持有锁。
func (m *Manager) sweepLocked() {
	cutoff := m.now().Add(-m.ttl)
	for id, existing := range m.sessions {
		if existing.lastSeen.Before(cutoff) {
			existing.session.Disconnect("")
			delete(m.sessions, id)
		}
	}
}
