package app

import (
	"context"
	"fmt"
	"time"

	"video_transcode_service/internal/transcode/domain"
	"video_transcode_service/internal/transcode/repository"
	"video_transcode_service/pkg/logger"
)

// Reconciler 巡檢擱淺任務：worker 掛掉會留下過期的 PROGRESS 紀錄，
// updated_at 超過硬性時限就視為一次失敗的嘗試，退回重試或終態失敗
type Reconciler struct {
	tasks       repository.TaskRepo
	queued      JobExecutor
	inline      JobExecutor
	interval    time.Duration
	hardTimeout time.Duration
	maxAttempts int
}

// NewReconciler create Reconciler
func NewReconciler(tasks repository.TaskRepo,
	queued JobExecutor,
	inline JobExecutor,
	interval, hardTimeout time.Duration,
	maxAttempts int,
) *Reconciler {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if maxAttempts <= 0 {
		maxAttempts = domain.DefaultMaxAttempts
	}
	return &Reconciler{
		tasks:       tasks,
		queued:      queued,
		inline:      inline,
		interval:    interval,
		hardTimeout: hardTimeout,
		maxAttempts: maxAttempts,
	}
}

// Start 以固定間隔巡檢，直到 ctx 結束
func (r *Reconciler) Start(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.sweep(ctx)
		case <-ctx.Done():
			logger.Log.Info("Reconciler 收到停止訊號")
			return
		}
	}
}

// sweep 單輪巡檢
func (r *Reconciler) sweep(ctx context.Context) {
	stranded, err := r.tasks.ListStranded(ctx, r.hardTimeout)
	if err != nil {
		logger.Log.Errorf("巡檢擱淺任務失敗:", err)
		return
	}

	for _, task := range stranded {
		cause := fmt.Sprintf("attempt %d/%d: worker 逾時未回報，視為 crash", task.AttemptCount, r.maxAttempts)

		if task.AttemptCount >= r.maxAttempts {
			if err := r.tasks.MarkFailure(ctx, task.TaskID, cause); err != nil {
				logger.Log.Errorf(fmt.Sprintf("taskID[%s] 擱淺任務寫入 FAILURE 失敗:", task.TaskID), err)
			}
			continue
		}

		// 退回 PENDING 再重新投遞（認領時 attempt_count 會再 +1）
		if err := r.tasks.Requeue(ctx, task.TaskID, cause); err != nil {
			// 可能剛好被原 worker 收尾了，屬正常競態
			logger.Log.Warn(fmt.Sprintf("taskID[%s] 擱淺任務退回 PENDING 失敗: %v", task.TaskID, err))
			continue
		}

		job := task.Descriptor()
		executor := r.inline
		if r.queued != nil && r.queued.Probe(ctx) == Available {
			executor = r.queued
		}
		if err := executor.Dispatch(ctx, job); err != nil {
			logger.Log.Errorf(fmt.Sprintf("taskID[%s] 擱淺任務重新投遞失敗:", task.TaskID), err)
			continue
		}
		logger.Log.Warn(fmt.Sprintf("taskID[%s] 擱淺任務已重新排隊 (attempt %d)", task.TaskID, task.AttemptCount))
	}
}
