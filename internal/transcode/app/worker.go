package app

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"video_transcode_service/internal/transcode/domain"
	"video_transcode_service/pkg/database"
	"video_transcode_service/pkg/logger"

	"github.com/streadway/amqp"
)

// Consumer 定義佇列消費者，將所有必要的依賴注入進來
type Consumer struct {
	rabbit    database.RabbitRepo
	executor  JobExecutor // 重試時重新發佈工作訊息用
	pipeline  AttemptRunner
	queueName string
	workers   int
}

// NewConsumer 建構 Consumer 實例
func NewConsumer(rabbit database.RabbitRepo, executor JobExecutor, pipeline AttemptRunner, queueName string, workers int) *Consumer {
	if workers <= 0 {
		workers = 1
	}
	return &Consumer{
		rabbit:    rabbit,
		executor:  executor,
		pipeline:  pipeline,
		queueName: queueName,
		workers:   workers,
	}
}

// StartConsumer 開始消費訊息，N 個 worker 共吃同一條 delivery channel
func (c *Consumer) StartConsumer(ctx context.Context) error {
	msgs, err := c.rabbit.Consume(c.queueName)
	if err != nil {
		return fmt.Errorf("無法開始消費 RabbitMQ 訊息: %w", err)
	}

	logger.Log.Info(fmt.Sprintf("Consumer 已啟動 (%d workers)，等待轉碼工作訊息...", c.workers))

	var wg sync.WaitGroup
	for i := 0; i < c.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.runWorker(ctx, msgs)
		}()
	}
	wg.Wait()
	return nil
}

func (c *Consumer) runWorker(ctx context.Context, msgs <-chan amqp.Delivery) {
	for {
		select {
		case d, ok := <-msgs:
			if !ok {
				logger.Log.Warn("RabbitMQ 消費 channel 已關閉")
				return
			}
			c.handleDelivery(ctx, d)
		case <-ctx.Done():
			logger.Log.Info("Consumer 收到停止訊號")
			return
		}
	}
}

// handleDelivery 處理單筆投遞並依結果 ack/nack
func (c *Consumer) handleDelivery(ctx context.Context, d amqp.Delivery) {
	var job domain.JobDescriptor
	if err := json.Unmarshal(d.Body, &job); err != nil {
		// 壞訊息重投也不會變好，確認後丟棄
		logger.Log.Errorf("解析轉碼工作訊息失敗:", err)
		if err := d.Ack(false); err != nil {
			logger.Log.Errorf("Ack 訊息失敗:", err)
		}
		return
	}

	switch c.pipeline.Process(ctx, job) {
	case OutcomeDone, OutcomeDrop:
		if err := d.Ack(false); err != nil {
			logger.Log.Errorf("確認訊息失敗:", err)
		}

	case OutcomeRetry:
		// 狀態已退回 PENDING：發佈一筆新訊息再確認舊的，
		// 讓 attempt_count 留在 state store 作為唯一的次數依據
		if err := c.executor.Dispatch(ctx, job); err != nil {
			logger.Log.Errorf(fmt.Sprintf("taskID[%s] 重新投遞失敗，退回 broker:", job.TaskID), err)
			if err := d.Nack(false, true); err != nil {
				logger.Log.Errorf("Nack 訊息失敗:", err)
			}
			return
		}
		if err := d.Ack(false); err != nil {
			logger.Log.Errorf("確認訊息失敗:", err)
		}

	case OutcomeRedeliver:
		// 基礎設施問題，稍等一下讓 broker 重投原訊息
		time.Sleep(10 * time.Second)
		if err := d.Nack(false, true); err != nil {
			logger.Log.Errorf("Nack 訊息失敗:", err)
		}
	}
}
