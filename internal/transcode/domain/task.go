package domain

import (
	"fmt"
	"path"
	"time"

	"github.com/google/uuid"
)

const (
	//QueueName definition queue name
	QueueName = "transcode"
)

// TaskState definition task state
type TaskState string

const (
	//TaskPending 已入隊，尚未被 worker 認領
	TaskPending TaskState = "PENDING"
	//TaskProgress 已被某個 worker 認領，執行中（或重試間隔中）
	TaskProgress TaskState = "PROGRESS"
	//TaskSuccess 轉碼完成，輸出已寫入 MinIO
	TaskSuccess TaskState = "SUCCESS"
	//TaskFailure 終態失敗，不再重試
	TaskFailure TaskState = "FAILURE"
)

// Terminal check state is terminal
// 進入 SUCCESS / FAILURE 後不允許任何再轉移
func (s TaskState) Terminal() bool {
	return s == TaskSuccess || s == TaskFailure
}

// ValidTransition check state machine transition
// 合法轉移：
//
//	PENDING  -> PROGRESS （worker 認領）
//	PROGRESS -> SUCCESS  （工具執行成功且輸出已落地）
//	PROGRESS -> PENDING  （可重試失敗且尚有剩餘次數）
//	PROGRESS -> FAILURE  （不可重試或次數用盡）
func ValidTransition(from, to TaskState) bool {
	switch from {
	case TaskPending:
		return to == TaskProgress
	case TaskProgress:
		return to == TaskSuccess || to == TaskPending || to == TaskFailure
	default:
		return false
	}
}

// 預設執行限制，可由 worker 設定覆寫
const (
	//DefaultMaxAttempts 單一任務最多執行次數
	DefaultMaxAttempts = 3
	//DefaultSoftTimeout 軟性時限，先請 ffmpeg 自行收尾
	DefaultSoftTimeout = 55 * time.Minute
	//DefaultHardTimeout 硬性時限，強制終止並視為失敗
	DefaultHardTimeout = 60 * time.Minute
)

// Output formats
const (
	//FormatHLS hls output (.m3u8 + .ts)
	FormatHLS = "hls"
	//FormatDASH dash output (.mpd + .m4s)
	FormatDASH = "dash"
	//FormatMP4 mp4 output (single file)
	FormatMP4 = "mp4"
)

// SupportedResolutions 允許的轉碼解析度（scale 參數）
var SupportedResolutions = []string{
	"3840:2160", // 4K UHD
	"2560:1440", // 2K QHD
	"1920:1080", // 1080p Full HD
	"1280:720",  // 720p HD
	"854:480",   // 480p SD
	"640:360",   // 360p
	"426:240",   // 240p
}

// SupportedFormats 允許的輸出格式
var SupportedFormats = []string{FormatHLS, FormatDASH, FormatMP4}

// TranscodeConfig 定義一次轉碼的目標參數，任務建立後不可變
type TranscodeConfig struct {
	Resolution string `json:"resolution"`
	Format     string `json:"format"`
}

// Validate check resolution and format against the whitelists
func (c TranscodeConfig) Validate() error {
	if !contains(SupportedResolutions, c.Resolution) {
		return fmt.Errorf("%w: resolution[%s]", ErrInvalidConfig, c.Resolution)
	}
	if !contains(SupportedFormats, c.Format) {
		return fmt.Errorf("%w: format[%s]", ErrInvalidConfig, c.Format)
	}
	return nil
}

// OutputName 依 file_id 與格式組出固定輸出名稱
// 命名必須是可重算的，legacy 狀態查詢靠它推斷輸出是否存在
func (c TranscodeConfig) OutputName(fileID string) string {
	switch c.Format {
	case FormatHLS:
		return fileID + "_transcoded.m3u8"
	case FormatDASH:
		return fileID + "_transcoded.mpd"
	default:
		return fileID + "_transcoded.mp4"
	}
}

// OutputStem 輸出檔名去掉副檔名，segment 檔都以它為前綴
func (c TranscodeConfig) OutputStem(fileID string) string {
	name := c.OutputName(fileID)
	return name[:len(name)-len(path.Ext(name))]
}

func contains(slice []string, val string) bool {
	for _, v := range slice {
		if v == val {
			return true
		}
	}
	return false
}

// TaskResult 只在 SUCCESS 時填入
type TaskResult struct {
	OutputName string `json:"output_name"`
	Format     string `json:"format"`
}

// TaskError 只在 FAILURE 時填入
type TaskError struct {
	Message string `json:"message"`
	Attempt int    `json:"attempt"`
}

// Task 定義一筆轉碼任務的完整生命週期紀錄
type Task struct {
	TaskID      string          `json:"task_id"`
	FileID      string          `json:"file_id"`
	InputObject string          `json:"input_object"` // 原始檔在 MinIO 上的 object key
	Config      TranscodeConfig `json:"config"`
	State       TaskState       `json:"state"`
	// AttemptCount 已執行（含執行中）的次數，認領時 +1，永遠 <= max attempts
	AttemptCount int         `json:"attempt_count"`
	Fallback     bool        `json:"fallback"` // true 表示走 queue-less 的 inline 路徑
	Result       *TaskResult `json:"result,omitempty"`
	Error        *TaskError  `json:"error,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

// NewTask create a PENDING task, task_id 由此一次性產生且不重用
func NewTask(fileID, inputObject string, cfg TranscodeConfig) *Task {
	now := time.Now().UTC()
	return &Task{
		TaskID:      uuid.NewString(),
		FileID:      fileID,
		InputObject: inputObject,
		Config:      cfg,
		State:       TaskPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// JobDescriptor 定義送進 Job Queue 的轉碼工作訊息
type JobDescriptor struct {
	TaskID      string          `json:"task_id"`
	FileID      string          `json:"file_id"`
	InputObject string          `json:"input_object"`
	Config      TranscodeConfig `json:"config"`
}

// Descriptor build the queue message for this task
func (t *Task) Descriptor() JobDescriptor {
	return JobDescriptor{
		TaskID:      t.TaskID,
		FileID:      t.FileID,
		InputObject: t.InputObject,
		Config:      t.Config,
	}
}

// SubmitResult usecase submit response
type SubmitResult struct {
	TaskID     string `json:"task_id"`
	FileID     string `json:"file_id"`
	OutputName string `json:"output_name"`
	Resolution string `json:"resolution"`
	Format     string `json:"format"`
	Status     string `json:"status"`
}

// TaskStatusRes usecase get status response
type TaskStatusRes struct {
	TaskID       string      `json:"task_id"`
	State        TaskState   `json:"state"`
	AttemptCount int         `json:"attempt_count"`
	Fallback     bool        `json:"fallback"`
	Result       *TaskResult `json:"result,omitempty"`
	Error        string      `json:"error,omitempty"`
}

// FileStatusRes usecase legacy status-by-file response
type FileStatusRes struct {
	FileID     string `json:"file_id"`
	Status     string `json:"status"`
	OutputName string `json:"output_name,omitempty"`
	Format     string `json:"format"`
	StreamURL  string `json:"stream_url,omitempty"`
	Message    string `json:"message,omitempty"`
}
