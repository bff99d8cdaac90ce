package app

import (
	"context"
	"testing"
	"time"

	"video_transcode_service/internal/transcode/domain"
	"video_transcode_service/pkg/logger"

	"github.com/stretchr/testify/mock"
)

// 測試 sweep：擱淺 PROGRESS 任務的巡檢
func TestSweep(t *testing.T) {
	logger.SetNewNop()
	ctx := context.Background()
	hardTimeout := time.Hour

	// **情境 1: 還有次數的擱淺任務退回 PENDING 並經 queue 重新投遞**
	t.Run("還有次數退回並重新投遞", func(t *testing.T) {
		mockTasks := new(MockTaskRepo)
		mockQueued := new(MockExecutor)
		mockInline := new(MockExecutor)
		reconciler := NewReconciler(mockTasks, mockQueued, mockInline, time.Minute, hardTimeout, 3)

		mockTasks.On("ListStranded", ctx, hardTimeout).Return([]*domain.Task{progressTask(1)}, nil).Once()
		mockTasks.On("Requeue", ctx, "task-1", mock.Anything).Return(nil).Once()
		mockQueued.On("Probe", ctx).Return(Available).Once()
		mockQueued.On("Dispatch", ctx, mock.MatchedBy(func(job domain.JobDescriptor) bool {
			return job.TaskID == "task-1"
		})).Return(nil).Once()

		reconciler.sweep(ctx)

		mockTasks.AssertExpectations(t)
		mockQueued.AssertExpectations(t)
		mockInline.AssertNotCalled(t, "Dispatch", mock.Anything, mock.Anything)
	})

	// **情境 2: 次數用盡的擱淺任務直接終態 FAILURE**
	t.Run("次數用盡終態 FAILURE", func(t *testing.T) {
		mockTasks := new(MockTaskRepo)
		reconciler := NewReconciler(mockTasks, new(MockExecutor), new(MockExecutor), time.Minute, hardTimeout, 3)

		mockTasks.On("ListStranded", ctx, hardTimeout).Return([]*domain.Task{progressTask(3)}, nil).Once()
		mockTasks.On("MarkFailure", ctx, "task-1", mock.Anything).Return(nil).Once()

		reconciler.sweep(ctx)

		mockTasks.AssertExpectations(t)
		mockTasks.AssertNotCalled(t, "Requeue", mock.Anything, mock.Anything, mock.Anything)
	})

	// **情境 3: queue 不可達時改走 inline 重新投遞**
	t.Run("queue 不可達改走 inline", func(t *testing.T) {
		mockTasks := new(MockTaskRepo)
		mockQueued := new(MockExecutor)
		mockInline := new(MockExecutor)
		reconciler := NewReconciler(mockTasks, mockQueued, mockInline, time.Minute, hardTimeout, 3)

		mockTasks.On("ListStranded", ctx, hardTimeout).Return([]*domain.Task{progressTask(2)}, nil).Once()
		mockTasks.On("Requeue", ctx, "task-1", mock.Anything).Return(nil).Once()
		mockQueued.On("Probe", ctx).Return(Unavailable).Once()
		mockInline.On("Dispatch", ctx, mock.Anything).Return(nil).Once()

		reconciler.sweep(ctx)

		mockInline.AssertExpectations(t)
		mockQueued.AssertNotCalled(t, "Dispatch", mock.Anything, mock.Anything)
	})

	// **情境 4: 退回失敗屬正常競態，跳過不投遞**
	t.Run("退回失敗跳過投遞", func(t *testing.T) {
		mockTasks := new(MockTaskRepo)
		mockQueued := new(MockExecutor)
		mockInline := new(MockExecutor)
		reconciler := NewReconciler(mockTasks, mockQueued, mockInline, time.Minute, hardTimeout, 3)

		mockTasks.On("ListStranded", ctx, hardTimeout).Return([]*domain.Task{progressTask(1)}, nil).Once()
		mockTasks.On("Requeue", ctx, "task-1", mock.Anything).Return(domain.ErrStaleTransition).Once()

		reconciler.sweep(ctx)

		mockQueued.AssertNotCalled(t, "Dispatch", mock.Anything, mock.Anything)
		mockInline.AssertNotCalled(t, "Dispatch", mock.Anything, mock.Anything)
	})
}
