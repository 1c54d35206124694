package price

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache 是报价缓存的最小接口。实现不保证持久化，丢失缓存只会
// 多打一次上游请求。
type Cache interface {
	Get(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, key, value string, ttl time.Duration)
}

// MemoryCache 是进程内缓存,按过期时间惰性淘汰。
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	value    string
	expireAt time.Time
}

// NewMemoryCache 创建空的内存缓存。
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

// SetClock 覆盖时间源，测试用。
func (m *MemoryCache) SetClock(now func() time.Time) {
	if now != nil {
		m.now = now
	}
}

// Get 返回未过期的缓存值。
func (m *MemoryCache) Get(_ context.Context, key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[key]
	if !ok {
		return "", false
	}
	if m.now().After(entry.expireAt) {
		delete(m.entries, key)
		return "", false
	}
	return entry.value, true
}

// Set 写入缓存。ttl 非正数时忽略写入。
func (m *MemoryCache) Set(_ context.Context, key, value string, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = memoryEntry{value: value, expireAt: m.now().Add(ttl)}
}

// RedisCache 基于 Redis 的报价缓存。Redis 故障时静默降级为未命中。
type RedisCache struct {
	client redis.UniversalClient
}

// NewRedisCache 包装已有的 Redis 客户端。
func NewRedisCache(client redis.UniversalClient) *RedisCache {
	return &RedisCache{client: client}
}

// Get 读取缓存值。
func (r *RedisCache) Get(ctx context.Context, key string) (string, bool) {
	value, err := r.client.Get(ctx, key).Result()
	if err != nil {
		return "", false
	}
	return value, true
}

// Set 写入缓存值。
func (r *RedisCache) Set(ctx context.Context, key, value string, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	_ = r.client.Set(ctx, key, value, ttl).Err()
}
