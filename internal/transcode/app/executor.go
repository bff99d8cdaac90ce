package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"video_transcode_service/internal/transcode/domain"
	"video_transcode_service/pkg/logger"

	"github.com/streadway/amqp"
)

// Availability 可用性探測的明確結果，不用全域可變開關
type Availability int

const (
	//Unavailable queue 不可達，Dispatcher 應改走 inline
	Unavailable Availability = iota
	//Available queue 可正常收件
	Available
)

// JobExecutor definition job dispatch behaviors
// queued 與 inline 兩條路徑藏在同一個介面後面，client contract 不變
type JobExecutor interface {
	Probe(ctx context.Context) Availability
	Dispatch(ctx context.Context, job domain.JobDescriptor) error
}

// QueueExecutor 把工作訊息發佈到 RabbitMQ durable queue
type QueueExecutor struct {
	rabbit    RabbitPublisher
	queueName string
}

// RabbitPublisher 發佈端需要的最小 rabbit 行為
type RabbitPublisher interface {
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	IsClosed() bool
}

// NewQueueExecutor create QueueExecutor, rabbit 可為 nil（啟動時 broker 就不在）
func NewQueueExecutor(rabbit RabbitPublisher, queueName string) *QueueExecutor {
	return &QueueExecutor{rabbit: rabbit, queueName: queueName}
}

// Probe check broker 連線是否存活
func (q *QueueExecutor) Probe(ctx context.Context) Availability {
	if q.rabbit == nil || q.rabbit.IsClosed() {
		return Unavailable
	}
	return Available
}

// Dispatch 發佈 JSON 工作描述，失敗一律視為 queue 不可用
func (q *QueueExecutor) Dispatch(ctx context.Context, job domain.JobDescriptor) error {
	if q.rabbit == nil {
		return domain.ErrQueueUnavailable
	}

	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("job JSON 訊息序列化失敗: %w", err)
	}

	err = q.rabbit.Publish(
		"",          // 預設 exchange
		q.queueName, // queue 名稱
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         data,
		},
	)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrQueueUnavailable, err)
	}
	return nil
}

// AttemptRunner 執行單次嘗試，回報該筆工作接下來怎麼處理
type AttemptRunner interface {
	Process(ctx context.Context, job domain.JobDescriptor) Outcome
}

// InlineExecutor 有界的背景執行器，queue 不可用時的 fallback 路徑
// 固定數量的 goroutine 吃一條有界 channel，滿了就對 Dispatch 施加背壓
type InlineExecutor struct {
	jobs   chan domain.JobDescriptor
	runner AttemptRunner
	wg     sync.WaitGroup

	// Dispatch 持讀鎖送件，Close 持寫鎖關 channel，兩者不會交錯
	mu     sync.RWMutex
	closed bool
}

// NewInlineExecutor create InlineExecutor and start its workers
func NewInlineExecutor(runner AttemptRunner, workers, queueSize int) *InlineExecutor {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = workers
	}

	e := &InlineExecutor{
		jobs:   make(chan domain.JobDescriptor, queueSize),
		runner: runner,
	}

	for i := 0; i < workers; i++ {
		e.wg.Add(1)
		go e.runWorker()
	}
	return e
}

// Probe inline 路徑永遠可用
func (e *InlineExecutor) Probe(ctx context.Context) Availability {
	return Available
}

// Dispatch 送進有界佇列，滿載時阻塞直到有空位或 ctx 取消
// 已關閉則拒收，不會往關閉的 channel 送件
func (e *InlineExecutor) Dispatch(ctx context.Context, job domain.JobDescriptor) error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return errors.New("inline executor 已關閉，拒收新工作")
	}

	select {
	case e.jobs <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close 停收新工作並等既有工作跑完
func (e *InlineExecutor) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	close(e.jobs)
	e.mu.Unlock()

	e.wg.Wait()
}

func (e *InlineExecutor) runWorker() {
	defer e.wg.Done()

	for job := range e.jobs {
		// inline 路徑沒有 broker 幫忙重投遞，重試就地再跑一輪
		for {
			outcome := e.runner.Process(context.Background(), job)
			if outcome != OutcomeRetry {
				if outcome == OutcomeRedeliver {
					logger.Log.Warn(fmt.Sprintf("taskID[%s] inline 執行遇到基礎設施錯誤，放棄本輪", job.TaskID))
				}
				break
			}
		}
	}
}
