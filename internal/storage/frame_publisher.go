package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/yellow-pitaya/frontend-sub000/pkg/protocol"
)

// Publisher 发布采集帧, 只做 pub/sub 不保存历史
type Publisher interface {
	Publish(ctx context.Context, frame *protocol.Frame) error
	Close() error
}

// pubsub go-redis 客户端中用到的部分
type pubsub interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	Pipeline() redis.Pipeliner
	Close() error
}

type FramePublisher struct {
	client  pubsub
	channel string
	log     *logrus.Logger
}

func NewFramePublisher(ctx context.Context, addr, password, channel string, db int, poolSize int, log *logrus.Logger) (*FramePublisher, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
		PoolSize: poolSize,
	})

	// 测试连接
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("连接Redis失败: %w", err)
	}

	log.Infof("Redis连接成功: %s, 频道: %s", addr, channel)

	return &FramePublisher{
		client:  client,
		channel: channel,
		log:     log,
	}, nil
}

// Publish 发布一帧到 Redis 频道
func (fp *FramePublisher) Publish(ctx context.Context, frame *protocol.Frame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("序列化数据失败: %w", err)
	}

	if err := fp.client.Publish(ctx, fp.channel, data).Err(); err != nil {
		return fmt.Errorf("发布消息失败: %w", err)
	}
	return nil
}

// PublishBatch 一次刷新中多个通道的帧走同一个 pipeline
func (fp *FramePublisher) PublishBatch(ctx context.Context, frames []*protocol.Frame) error {
	pipe := fp.client.Pipeline()

	for _, frame := range frames {
		data, err := json.Marshal(frame)
		if err != nil {
			fp.log.Errorf("序列化数据失败: %v", err)
			continue
		}
		pipe.Publish(ctx, fp.channel, data)
	}

	_, err := pipe.Exec(ctx)
	return err
}

// Close 关闭连接
func (fp *FramePublisher) Close() error {
	return fp.client.Close()
}

// Discard 未启用 Redis 时使用
type Discard struct{}

func (Discard) Publish(context.Context, *protocol.Frame) error { return nil }

func (Discard) Close() error { return nil }
