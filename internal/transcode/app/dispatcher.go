package app

import (
	"context"
	"errors"
	"fmt"

	"video_transcode_service/internal/transcode/domain"
	"video_transcode_service/internal/transcode/repository"
	"video_transcode_service/pkg/database"
	errprocess "video_transcode_service/pkg/err"
	"video_transcode_service/pkg/logger"

	"gorm.io/gorm"
)

// DispatcherUseCase 這裡封裝了對外提供的提交服務
type DispatcherUseCase interface {
	Submit(ctx context.Context, fileID string, cfg domain.TranscodeConfig) (*domain.SubmitResult, error)
}

type dispatcherUseCase struct {
	files  repository.FileRepo
	tasks  repository.TaskRepo
	blob   database.MinIOClientRepo
	queued JobExecutor // RabbitMQ 路徑
	inline JobExecutor // 有界背景執行的 fallback 路徑
	events EventPublisher
}

// NewDispatcherUseCase 建立一個新的 DispatcherUseCase
func NewDispatcherUseCase(files repository.FileRepo,
	tasks repository.TaskRepo,
	blob database.MinIOClientRepo,
	queued JobExecutor,
	inline JobExecutor,
	events EventPublisher,
) DispatcherUseCase {
	return &dispatcherUseCase{
		files:  files,
		tasks:  tasks,
		blob:   blob,
		queued: queued,
		inline: inline,
		events: events,
	}
}

// Submit 驗證請求、建立 PENDING 任務並投遞工作訊息
// queue 不可達時改走 inline 路徑，呼叫端拿到的契約完全相同：
// 一律回 task_id，一律輪詢同一個狀態介面
func (d *dispatcherUseCase) Submit(ctx context.Context, fileID string, cfg domain.TranscodeConfig) (*domain.SubmitResult, error) {
	// 1. 驗證轉碼參數，擋下後不建任何任務紀錄
	if err := cfg.Validate(); err != nil {
		errMsg := fmt.Sprintf("fileID[%s] 轉碼參數不合法 : %v", fileID, err)
		return nil, errprocess.Wrap(errMsg, err)
	}

	// 2. 確認來源檔存在，找不到一樣不建任務
	inputObject, err := d.resolveSource(ctx, fileID)
	if err != nil {
		errMsg := fmt.Sprintf("fileID[%s] 找不到來源影片 : %v", fileID, err)
		return nil, errprocess.Wrap(errMsg, domain.ErrFileNotFound)
	}

	// 3. 產生 task_id 並寫入初始 PENDING 紀錄（每次呼叫都是新任務）
	task := domain.NewTask(fileID, inputObject, cfg)
	if err := d.tasks.Create(ctx, task); err != nil {
		errMsg := fmt.Sprintf("fileID[%s] 建立任務紀錄失敗 : %v", fileID, err)
		return nil, errprocess.Set(errMsg)
	}
	if d.events != nil {
		d.events.Publish(ctx, TaskEvent{TaskID: task.TaskID, FileID: fileID, State: domain.TaskPending, At: task.CreatedAt})
	}

	// 4. 投遞：先探測 queue 可用性，明確拿 Available/Unavailable 再分流
	job := task.Descriptor()
	if d.queued != nil && d.queued.Probe(ctx) == Available {
		if err := d.queued.Dispatch(ctx, job); err == nil {
			return submitResult(task), nil
		} else if !errors.Is(err, domain.ErrQueueUnavailable) {
			errMsg := fmt.Sprintf("taskID[%s] 投遞工作訊息失敗 : %v", task.TaskID, err)
			return nil, errprocess.Set(errMsg)
		}
		// ErrQueueUnavailable 掉進 fallback，絕不回給呼叫端
	}

	// 5. fallback：標記後交給有界的 inline 執行器，同一套狀態機與 state store
	logger.Log.Warn(fmt.Sprintf("taskID[%s] Job Queue 不可達，改走 inline fallback", task.TaskID))
	if err := d.tasks.SetFallback(ctx, task.TaskID); err != nil {
		logger.Log.Errorf(fmt.Sprintf("taskID[%s] 標記 fallback 失敗:", task.TaskID), err)
	}
	if err := d.inline.Dispatch(ctx, job); err != nil {
		errMsg := fmt.Sprintf("taskID[%s] inline 投遞失敗 : %v", task.TaskID, err)
		return nil, errprocess.Set(errMsg)
	}

	return submitResult(task), nil
}

// resolveSource 先查來源檔目錄，沒有紀錄再退回用前綴掃 MinIO
// （上傳時 object key 固定是 {file_id}{副檔名}，前綴掃一定找得到）
func (d *dispatcherUseCase) resolveSource(ctx context.Context, fileID string) (string, error) {
	if d.files != nil {
		f, err := d.files.GetByID(fileID)
		if err == nil {
			return f.ObjectName, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			logger.Log.Warn(fmt.Sprintf("fileID[%s] 查詢來源檔目錄失敗: %v", fileID, err))
		}
	}

	infos, err := d.blob.ListObjects(ctx, fileID)
	if err != nil {
		return "", err
	}
	if len(infos) == 0 {
		return "", domain.ErrFileNotFound
	}
	return infos[0].Key, nil
}

func submitResult(task *domain.Task) *domain.SubmitResult {
	return &domain.SubmitResult{
		TaskID:     task.TaskID,
		FileID:     task.FileID,
		OutputName: task.Config.OutputName(task.FileID),
		Resolution: task.Config.Resolution,
		Format:     task.Config.Format,
		Status:     "processing",
	}
}
