package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"video_transcode_service/internal/transcode/domain"
	"video_transcode_service/internal/transcode/repository"
	"video_transcode_service/pkg/database"
	"video_transcode_service/pkg/logger"

	"github.com/sethvargo/go-retry"
)

// Outcome 單次處理結果，queued / inline 兩端各自決定後續動作
type Outcome int

const (
	//OutcomeDone 終態已寫入（SUCCESS 或 FAILURE），訊息可確認
	OutcomeDone Outcome = iota
	//OutcomeRetry 已轉回 PENDING，需要重新投遞
	OutcomeRetry
	//OutcomeDrop 重複投遞或任務已消失，直接丟棄
	OutcomeDrop
	//OutcomeRedeliver 基礎設施錯誤（state store 讀不到），稍後原訊息重投
	OutcomeRedeliver
)

// Pipeline 負責一次完整的 claim-execute-report 循環：
// 1. 認領任務（單飛保證，輸家丟棄訊息）
// 2. 從 MinIO 下載原始檔
// 3. 呼叫外部轉碼工具（軟硬兩段時限）
// 4. 上傳輸出、寫入終態；失敗則分類後重試或終態失敗
// 5. 無論成敗清理本地暫存檔
type Pipeline struct {
	tasks       repository.TaskRepo
	blob        database.MinIOClientRepo
	tool        Transcoder
	events      EventPublisher
	scratchDir  string
	maxAttempts int
}

// NewPipeline create Pipeline
func NewPipeline(tasks repository.TaskRepo,
	blob database.MinIOClientRepo,
	tool Transcoder,
	events EventPublisher,
	scratchDir string,
	maxAttempts int,
) *Pipeline {
	if maxAttempts <= 0 {
		maxAttempts = domain.DefaultMaxAttempts
	}
	if scratchDir == "" {
		scratchDir = "./tmp"
	}
	return &Pipeline{
		tasks:       tasks,
		blob:        blob,
		tool:        tool,
		events:      events,
		scratchDir:  scratchDir,
		maxAttempts: maxAttempts,
	}
}

// Process 處理一筆工作訊息
func (p *Pipeline) Process(ctx context.Context, job domain.JobDescriptor) Outcome {
	// 1. 認領：PENDING -> PROGRESS，同一瞬間恰好一個 worker 成功
	task, err := p.tasks.Claim(ctx, job.TaskID)
	if err != nil {
		if errors.Is(err, domain.ErrStaleTransition) {
			// 重複投遞：另一個 worker 已認領，或任務已終態
			logger.Log.Warn(fmt.Sprintf("taskID[%s] 偵測到重複投遞，丟棄訊息", job.TaskID))
			return OutcomeDrop
		}
		if errors.Is(err, domain.ErrTaskNotFound) {
			logger.Log.Warn(fmt.Sprintf("taskID[%s] 查無任務紀錄，丟棄訊息", job.TaskID))
			return OutcomeDrop
		}
		logger.Log.Errorf(fmt.Sprintf("taskID[%s] 認領失敗:", job.TaskID), err)
		return OutcomeRedeliver
	}

	p.publishEvent(ctx, task, domain.TaskProgress)
	logger.Log.Info(fmt.Sprintf("taskID[%s] 開始第 %d 次轉碼 (file_id=%s, format=%s)",
		task.TaskID, task.AttemptCount, task.FileID, task.Config.Format))

	// 2~4. 執行一次嘗試
	execErr := p.runAttempt(ctx, task, job)
	if execErr == nil {
		result := domain.TaskResult{
			OutputName: task.Config.OutputName(task.FileID),
			Format:     task.Config.Format,
		}
		if err := p.tasks.MarkSuccess(ctx, task.TaskID, result); err != nil {
			logger.Log.Errorf(fmt.Sprintf("taskID[%s] 寫入 SUCCESS 失敗:", task.TaskID), err)
			return OutcomeRedeliver
		}
		p.publishEvent(ctx, task, domain.TaskSuccess)
		logger.Log.Info(fmt.Sprintf("taskID[%s] 轉碼完成: %s", task.TaskID, result.OutputName))
		return OutcomeDone
	}

	// 5. 失敗分類：暫時性且還有次數就退回 PENDING，否則終態 FAILURE
	cause := fmt.Sprintf("attempt %d/%d: %v", task.AttemptCount, p.maxAttempts, execErr)
	if domain.IsRetryable(execErr) && task.AttemptCount < p.maxAttempts {
		if err := p.tasks.Requeue(ctx, task.TaskID, cause); err != nil {
			logger.Log.Errorf(fmt.Sprintf("taskID[%s] 退回 PENDING 失敗:", task.TaskID), err)
			return OutcomeRedeliver
		}
		p.publishEvent(ctx, task, domain.TaskPending)
		logger.Log.Warn(fmt.Sprintf("taskID[%s] 第 %d 次嘗試失敗，重新排隊: %v",
			task.TaskID, task.AttemptCount, execErr))
		return OutcomeRetry
	}

	if err := p.tasks.MarkFailure(ctx, task.TaskID, cause); err != nil {
		logger.Log.Errorf(fmt.Sprintf("taskID[%s] 寫入 FAILURE 失敗:", task.TaskID), err)
		return OutcomeRedeliver
	}
	p.publishEvent(ctx, task, domain.TaskFailure)
	logger.Log.Error(fmt.Sprintf("taskID[%s] 轉碼終態失敗: %v", task.TaskID, execErr))
	return OutcomeDone
}

// runAttempt 單次嘗試：下載 -> 轉碼 -> 上傳，暫存檔在離開前一定清掉
func (p *Pipeline) runAttempt(ctx context.Context, task *domain.Task, job domain.JobDescriptor) error {
	scratch := filepath.Join(p.scratchDir, fmt.Sprintf("%s_attempt%d", task.TaskID, task.AttemptCount))
	if err := os.MkdirAll(scratch, 0755); err != nil {
		return domain.NewRetryableError(fmt.Sprintf("建立暫存目錄失敗: %v", err))
	}
	// 成功或失敗都要清理本地暫存
	defer func() {
		if err := os.RemoveAll(scratch); err != nil {
			logger.Log.Warn(fmt.Sprintf("taskID[%s] 清理暫存目錄失敗: %v", task.TaskID, err))
		}
	}()

	// 下載原始檔
	inputPath := filepath.Join(scratch, filepath.Base(job.InputObject))
	if err := p.blob.DownloadFile(ctx, job.InputObject, inputPath); err != nil {
		return domain.NewRetryableError(fmt.Sprintf("下載原始影片失敗: %v", err))
	}

	// 呼叫轉碼工具（錯誤已在 Transcoder 內分類）
	outDir := filepath.Join(scratch, "out")
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return domain.NewRetryableError(fmt.Sprintf("建立轉碼輸出目錄失敗: %v", err))
	}
	outputs, err := p.tool.Run(ctx, inputPath, outDir, task.FileID, task.Config)
	if err != nil {
		return err
	}

	// 上傳輸出（hls/dash 是一組檔案），單檔失敗用退避重試
	for _, outputPath := range outputs {
		if err := p.uploadWithRetry(ctx, outputPath); err != nil {
			return domain.NewRetryableError(fmt.Sprintf("上傳轉碼結果失敗: %v", err))
		}
	}
	return nil
}

// uploadWithRetry 上傳單一輸出檔，指數退避最多重試 3 次
func (p *Pipeline) uploadWithRetry(ctx context.Context, outputPath string) error {
	objectName := filepath.Base(outputPath)
	backoff := retry.WithMaxRetries(3, retry.NewExponential(500*time.Millisecond))

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := p.blob.UploadFile(ctx, objectName, outputPath, getContentType(objectName)); err != nil {
			logger.Log.Warn(fmt.Sprintf("上傳 %s 失敗，準備重試: %v", objectName, err))
			return retry.RetryableError(err)
		}
		return nil
	})
}

func (p *Pipeline) publishEvent(ctx context.Context, task *domain.Task, state domain.TaskState) {
	if p.events == nil {
		return
	}
	p.events.Publish(ctx, TaskEvent{
		TaskID:  task.TaskID,
		FileID:  task.FileID,
		State:   state,
		Attempt: task.AttemptCount,
		At:      time.Now().UTC(),
	})
}
