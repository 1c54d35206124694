package events

import (
	"context"
	"sync"

	xerrors "github.com/NikhilRaikwar/Nexis/internal/errors"
)

// MemoryPublisher 把事件保存在进程内，主要用于测试和单机部署。
type MemoryPublisher struct {
	mu     sync.Mutex
	events []Event
	limit  int
	closed bool
}

// NewMemoryPublisher 创建内存发布器。limit 限制保留的事件条数，
// 超出时淘汰最旧的事件。
func NewMemoryPublisher(limit int) *MemoryPublisher {
	if limit <= 0 {
		limit = 256
	}
	return &MemoryPublisher{limit: limit}
}

// Publish 追加事件。
func (p *MemoryPublisher) Publish(_ context.Context, event Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return xerrors.New(xerrors.CodeQueueFailure, "事件发布器已关闭")
	}
	p.events = append(p.events, event)
	if len(p.events) > p.limit {
		p.events = p.events[len(p.events)-p.limit:]
	}
	return nil
}

// Events 返回当前保留的事件快照。
func (p *MemoryPublisher) Events() []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	snapshot := make([]Event, len(p.events))
	copy(snapshot, p.events)
	return snapshot
}

// Close 关闭发布器。
func (p *MemoryPublisher) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return nil
}
