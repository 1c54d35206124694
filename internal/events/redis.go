package events

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"

	xerrors "github.com/NikhilRaikwar/Nexis/internal/errors"
)

// RedisConfig 描述 Redis 事件流的连接参数。
type RedisConfig struct {
	Address  string
	Password string
	DB       int
	Stream   string
}

// RedisPublisher 把事件写入 Redis list，消费方可以按需 BRPOP。
type RedisPublisher struct {
	client *redis.Client
	stream string
}

// NewRedisPublisher 创建 Redis 事件发布器。
func NewRedisPublisher(cfg RedisConfig) (*RedisPublisher, error) {
	if cfg.Address == "" {
		return nil, xerrors.New(xerrors.CodeConfiguration, "Redis address 不能为空")
	}
	stream := cfg.Stream
	if stream == "" {
		stream = "nexis:events"
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "连接 Redis 失败")
	}
	return &RedisPublisher{client: client, stream: stream}, nil
}

// Publish 序列化事件并写入 Redis。
func (p *RedisPublisher) Publish(ctx context.Context, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeQueueFailure, err, "序列化事件失败")
	}
	if err := p.client.LPush(ctx, p.stream, body).Err(); err != nil {
		return xerrors.Wrap(xerrors.CodeQueueFailure, err, "Redis 发布事件失败")
	}
	return nil
}

// Close 关闭 Redis 连接。
func (p *RedisPublisher) Close() error {
	if p == nil || p.client == nil {
		return nil
	}
	return p.client.Close()
}
