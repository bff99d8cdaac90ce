package app

import (
	"context"
	"encoding/json"
	"testing"

	"video_transcode_service/internal/transcode/domain"
	"video_transcode_service/pkg/logger"

	"github.com/streadway/amqp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func jobDelivery(t *testing.T, ack *fakeAcknowledger) amqp.Delivery {
	t.Helper()
	body, err := json.Marshal(domain.JobDescriptor{
		TaskID:      "task-1",
		FileID:      "abc123",
		InputObject: "abc123.mp4",
		Config:      domain.TranscodeConfig{Resolution: "1280:720", Format: domain.FormatHLS},
	})
	assert.NoError(t, err)
	return amqp.Delivery{Acknowledger: ack, Body: body}
}

// 測試 handleDelivery 的 ack/nack 決策
func TestHandleDelivery(t *testing.T) {
	logger.SetNewNop()
	ctx := context.Background()

	// **情境 1: 終態已寫入，確認訊息**
	t.Run("終態已寫入確認訊息", func(t *testing.T) {
		ack := &fakeAcknowledger{}
		mockRunner := new(MockRunner)
		mockRunner.On("Process", ctx, mock.Anything).Return(OutcomeDone).Once()

		consumer := NewConsumer(nil, new(MockExecutor), mockRunner, domain.QueueName, 1)
		consumer.handleDelivery(ctx, jobDelivery(t, ack))

		assert.True(t, ack.acked)
		assert.False(t, ack.nacked)
	})

	// **情境 2: 重複投遞，確認後丟棄**
	t.Run("重複投遞確認後丟棄", func(t *testing.T) {
		ack := &fakeAcknowledger{}
		mockRunner := new(MockRunner)
		mockRunner.On("Process", ctx, mock.Anything).Return(OutcomeDrop).Once()

		consumer := NewConsumer(nil, new(MockExecutor), mockRunner, domain.QueueName, 1)
		consumer.handleDelivery(ctx, jobDelivery(t, ack))

		assert.True(t, ack.acked)
	})

	// **情境 3: 需要重試，先發新訊息再確認舊的**
	t.Run("重試發佈新訊息再確認", func(t *testing.T) {
		ack := &fakeAcknowledger{}
		mockRunner := new(MockRunner)
		mockExecutor := new(MockExecutor)
		mockRunner.On("Process", ctx, mock.Anything).Return(OutcomeRetry).Once()
		mockExecutor.On("Dispatch", ctx, mock.MatchedBy(func(job domain.JobDescriptor) bool {
			return job.TaskID == "task-1"
		})).Return(nil).Once()

		consumer := NewConsumer(nil, mockExecutor, mockRunner, domain.QueueName, 1)
		consumer.handleDelivery(ctx, jobDelivery(t, ack))

		assert.True(t, ack.acked)
		assert.False(t, ack.nacked)
		mockExecutor.AssertExpectations(t)
	})

	// **情境 4: 重試但重新投遞失敗，退回 broker**
	t.Run("重新投遞失敗退回 broker", func(t *testing.T) {
		ack := &fakeAcknowledger{}
		mockRunner := new(MockRunner)
		mockExecutor := new(MockExecutor)
		mockRunner.On("Process", ctx, mock.Anything).Return(OutcomeRetry).Once()
		mockExecutor.On("Dispatch", ctx, mock.Anything).Return(domain.ErrQueueUnavailable).Once()

		consumer := NewConsumer(nil, mockExecutor, mockRunner, domain.QueueName, 1)
		consumer.handleDelivery(ctx, jobDelivery(t, ack))

		assert.False(t, ack.acked)
		assert.True(t, ack.nacked)
		assert.True(t, ack.requeued)
	})

	// **情境 5: 壞訊息重投也不會變好，確認後丟棄**
	t.Run("壞訊息確認後丟棄", func(t *testing.T) {
		ack := &fakeAcknowledger{}
		mockRunner := new(MockRunner)

		consumer := NewConsumer(nil, new(MockExecutor), mockRunner, domain.QueueName, 1)
		consumer.handleDelivery(ctx, amqp.Delivery{Acknowledger: ack, Body: []byte("not json")})

		assert.True(t, ack.acked)
		mockRunner.AssertNotCalled(t, "Process", mock.Anything, mock.Anything)
	})
}
