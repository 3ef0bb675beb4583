// Package progress 提供工作流执行进度的事件流
// 基于Watermill的GoChannel Pub/Sub实现进程内事件总线，供CLI渲染和WebSocket推送消费
package progress

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"

	"github.com/LENAX/toolflow/pkg/core/workflow"
)

// TopicTaskStatus 任务状态事件主题
const TopicTaskStatus = "toolflow.task.status"

// Event 任务状态变更事件（对外导出）
// 每当某个任务的状态发生迁移时发出一条
type Event struct {
	ID        string              `json:"id"`         // 事件ID（UUID）
	RunID     string              `json:"run_id"`     // 本次运行ID
	TaskID    string              `json:"task_id"`    // 任务ID
	Status    workflow.TaskStatus `json:"status"`     // 迁移后的状态
	SkipCause workflow.SkipCause  `json:"skip_cause,omitempty"`
	Attempts  int                 `json:"attempts"`  // 截至当前的尝试次数
	Wave      int                 `json:"wave"`      // 就绪波次索引
	Error     string              `json:"error,omitempty"`
	Timestamp time.Time           `json:"timestamp"`
}

// Bus 进度事件总线（对外导出）
type Bus struct {
	pubsub *gochannel.GoChannel
	logger watermill.LoggerAdapter
}

// NewBus 创建进度事件总线（对外导出）
func NewBus(debug bool) *Bus {
	logger := watermill.NewStdLogger(debug, false)
	pubsub := gochannel.NewGoChannel(
		gochannel.Config{
			Persistent:                     false,
			BlockPublishUntilSubscriberAck: false,
			OutputChannelBuffer:            256,
		},
		logger,
	)
	return &Bus{
		pubsub: pubsub,
		logger: logger,
	}
}

// Publish 发布任务状态事件（对外导出）
func (b *Bus) Publish(event *Event) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("序列化事件失败: %w", err)
	}

	msg := message.NewMessage(event.ID, payload)
	msg.Metadata.Set("run_id", event.RunID)
	msg.Metadata.Set("task_id", event.TaskID)
	msg.Metadata.Set("status", string(event.Status))

	if err := b.pubsub.Publish(TopicTaskStatus, msg); err != nil {
		return fmt.Errorf("发布事件失败: %w", err)
	}
	return nil
}

// Subscribe 订阅任务状态事件（对外导出）
// 返回的channel在ctx取消或总线关闭后关闭
func (b *Bus) Subscribe(ctx context.Context) (<-chan *Event, error) {
	messages, err := b.pubsub.Subscribe(ctx, TopicTaskStatus)
	if err != nil {
		return nil, fmt.Errorf("订阅事件失败: %w", err)
	}

	events := make(chan *Event, 64)
	go func() {
		defer close(events)
		for msg := range messages {
			var event Event
			if err := json.Unmarshal(msg.Payload, &event); err != nil {
				msg.Nack()
				continue
			}
			msg.Ack()
			select {
			case events <- &event:
			case <-ctx.Done():
				return
			}
		}
	}()
	return events, nil
}

// Callback 返回引擎可直接挂载的进度回调（对外导出）
// 发布失败只记录不中断执行
func (b *Bus) Callback() func(Event) {
	return func(event Event) {
		if err := b.Publish(&event); err != nil {
			b.logger.Error("发布进度事件失败", err, watermill.LogFields{
				"run_id":  event.RunID,
				"task_id": event.TaskID,
			})
		}
	}
}

// Close 关闭事件总线（对外导出）
func (b *Bus) Close() error {
	return b.pubsub.Close()
}
