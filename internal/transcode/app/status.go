package app

import (
	"context"
	"errors"
	"fmt"

	"video_transcode_service/internal/transcode/domain"
	"video_transcode_service/internal/transcode/repository"
	"video_transcode_service/pkg/database"
	errprocess "video_transcode_service/pkg/err"
)

// StatusUseCase 狀態查詢，純讀取，絕不等 worker
type StatusUseCase interface {
	GetStatus(ctx context.Context, taskID string) (*domain.TaskStatusRes, error)
	GetStatusByFile(ctx context.Context, fileID, format string) (*domain.FileStatusRes, error)
}

type statusUseCase struct {
	tasks repository.TaskRepo
	blob  database.MinIOClientRepo
}

// NewStatusUseCase 建立一個新的 StatusUseCase
func NewStatusUseCase(tasks repository.TaskRepo, blob database.MinIOClientRepo) StatusUseCase {
	return &statusUseCase{tasks: tasks, blob: blob}
}

// GetStatus 以 task_id 查詢任務狀態（主要介面）
func (s *statusUseCase) GetStatus(ctx context.Context, taskID string) (*domain.TaskStatusRes, error) {
	task, err := s.tasks.Get(ctx, taskID)
	if err != nil {
		if errors.Is(err, domain.ErrTaskNotFound) {
			return nil, domain.ErrTaskNotFound
		}
		errMsg := fmt.Sprintf("taskID[%s] 查詢任務狀態失敗 : %v", taskID, err)
		return nil, errprocess.Set(errMsg)
	}

	res := &domain.TaskStatusRes{
		TaskID:       task.TaskID,
		State:        task.State,
		AttemptCount: task.AttemptCount,
		Fallback:     task.Fallback,
		Result:       task.Result,
	}
	if task.Error != nil {
		res.Error = task.Error.Message
	}
	return res, nil
}

// GetStatusByFile 以 file_id 推斷狀態（legacy 介面，僅為相容保留）
// 只看輸出檔在不在，所以分不出「還沒開始」跟「失敗」——
// 這是舊設計的已知限制，新呼叫端請一律改用 GetStatus
func (s *statusUseCase) GetStatusByFile(ctx context.Context, fileID, format string) (*domain.FileStatusRes, error) {
	cfg := domain.TranscodeConfig{Format: format}
	outputName := cfg.OutputName(fileID)

	exists, err := s.blob.ObjectExists(ctx, outputName)
	if err != nil {
		errMsg := fmt.Sprintf("fileID[%s] 檢查輸出檔失敗 : %v", fileID, err)
		return nil, errprocess.Set(errMsg)
	}

	if exists {
		return &domain.FileStatusRes{
			FileID:     fileID,
			Status:     "completed",
			OutputName: outputName,
			Format:     format,
			StreamURL:  "/videos/stream/" + outputName,
		}, nil
	}
	return &domain.FileStatusRes{
		FileID:  fileID,
		Status:  "processing",
		Format:  format,
		Message: "Video is still being transcoded",
	}, nil
}
