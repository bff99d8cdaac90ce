package app

import (
	"context"
	"encoding/json"
	"time"

	"video_transcode_service/internal/transcode/domain"
	"video_transcode_service/pkg/logger"

	"github.com/segmentio/kafka-go"
)

// TaskEvent 任務生命週期事件，發到 Kafka 供下游消費
type TaskEvent struct {
	TaskID  string           `json:"task_id"`
	FileID  string           `json:"file_id"`
	State   domain.TaskState `json:"state"`
	Attempt int              `json:"attempt"`
	At      time.Time        `json:"at"`
}

// EventPublisher definition task event feed
type EventPublisher interface {
	Publish(ctx context.Context, ev TaskEvent)
}

// KafkaEventPublisher 透過 Kafka Writer 發佈事件
// 事件失敗只記 log，絕不影響任務流程
type KafkaEventPublisher struct {
	writer *kafka.Writer
}

// NewKafkaEventPublisher create KafkaEventPublisher，writer 可為 nil（未配置 Kafka）
func NewKafkaEventPublisher(writer *kafka.Writer) *KafkaEventPublisher {
	return &KafkaEventPublisher{writer: writer}
}

// Publish 發佈一筆狀態事件，key 用 task_id 保持同任務有序
func (p *KafkaEventPublisher) Publish(ctx context.Context, ev TaskEvent) {
	if p == nil || p.writer == nil {
		return
	}

	data, err := json.Marshal(ev)
	if err != nil {
		logger.Log.Errorf("task event 序列化失敗:", err)
		return
	}

	if err := p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(ev.TaskID),
		Value: data,
	}); err != nil {
		logger.Log.Errorf("task event 發佈失敗:", err)
	}
}
