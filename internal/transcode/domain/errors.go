package domain

import "errors"

// 提交期錯誤會同步回給呼叫端，執行期錯誤只寫進 Task State Store，
// 由輪詢查到，絕不回拋給已結束的請求連線。
var (
	//ErrInvalidConfig 不認識的解析度或格式，提交時擋下，不建任務
	ErrInvalidConfig = errors.New("invalid transcode config")
	//ErrFileNotFound 找不到來源檔，提交時擋下，不建任務
	ErrFileNotFound = errors.New("video file not found")
	//ErrQueueUnavailable Job Queue 不可達，觸發 inline fallback，不回給呼叫端
	ErrQueueUnavailable = errors.New("job queue unavailable")
	//ErrTaskNotFound 查無此 task_id
	ErrTaskNotFound = errors.New("task not found")
	//ErrStaleTransition 對已終態或已被認領的任務做轉移，用於偵測重複投遞，內部使用
	ErrStaleTransition = errors.New("stale task transition")
)

// ExecutionError 執行期失敗的分類結果
// Retryable=true 走 PROGRESS->PENDING 重試，否則直接 FAILURE
type ExecutionError struct {
	Cause     string
	Retryable bool
	Timeout   bool
}

func (e *ExecutionError) Error() string {
	return e.Cause
}

// NewRetryableError transient cause (tool crash, storage hiccup)
func NewRetryableError(cause string) *ExecutionError {
	return &ExecutionError{Cause: cause, Retryable: true}
}

// NewTerminalError malformed-input cause, or unclassified
// 未分類的失敗一律視為不可重試，避免壞檔造成無限重試
func NewTerminalError(cause string) *ExecutionError {
	return &ExecutionError{Cause: cause, Retryable: false}
}

// NewTimeoutError hard timeout 強制終止，可重試並帶 timeout 標記
func NewTimeoutError(cause string) *ExecutionError {
	return &ExecutionError{Cause: cause, Retryable: true, Timeout: true}
}

// IsRetryable check err is a retryable execution error
func IsRetryable(err error) bool {
	var execErr *ExecutionError
	if errors.As(err, &execErr) {
		return execErr.Retryable
	}
	return false
}
