package repository

import (
	"testing"
	"time"

	"video_transcode_service/internal/transcode/domain"

	"github.com/stretchr/testify/assert"
)

func baseHash() map[string]string {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	return map[string]string{
		"task_id":       "task-1",
		"file_id":       "abc123",
		"input_object":  "abc123.mp4",
		"resolution":    "1280:720",
		"format":        "hls",
		"state":         "PENDING",
		"attempt_count": "0",
		"fallback":      "0",
		"created_at":    now,
		"updated_at":    now,
	}
}

// 測試 taskFromMap：redis hash 還原為 Task
func TestTaskFromMap(t *testing.T) {
	// **情境 1: PENDING 紀錄完整還原**
	t.Run("PENDING 紀錄完整還原", func(t *testing.T) {
		task, err := taskFromMap(baseHash())

		assert.NoError(t, err)
		assert.Equal(t, "task-1", task.TaskID)
		assert.Equal(t, "abc123", task.FileID)
		assert.Equal(t, domain.TaskPending, task.State)
		assert.Equal(t, 0, task.AttemptCount)
		assert.False(t, task.Fallback)
		assert.Nil(t, task.Result)
		assert.Nil(t, task.Error)
	})

	// **情境 2: SUCCESS 紀錄帶輸出結果**
	t.Run("SUCCESS 紀錄帶輸出結果", func(t *testing.T) {
		m := baseHash()
		m["state"] = "SUCCESS"
		m["attempt_count"] = "1"
		m["output_name"] = "abc123_transcoded.m3u8"
		m["result_format"] = "hls"

		task, err := taskFromMap(m)

		assert.NoError(t, err)
		assert.Equal(t, domain.TaskSuccess, task.State)
		assert.NotNil(t, task.Result)
		assert.Equal(t, "abc123_transcoded.m3u8", task.Result.OutputName)
		assert.Equal(t, "hls", task.Result.Format)
		assert.Nil(t, task.Error)
	})

	// **情境 3: FAILURE 紀錄帶錯誤與嘗試次數**
	t.Run("FAILURE 紀錄帶錯誤與嘗試次數", func(t *testing.T) {
		m := baseHash()
		m["state"] = "FAILURE"
		m["attempt_count"] = "3"
		m["error"] = "attempt 3/3: boom"
		m["error_attempt"] = "3"

		task, err := taskFromMap(m)

		assert.NoError(t, err)
		assert.Equal(t, domain.TaskFailure, task.State)
		assert.NotNil(t, task.Error)
		assert.Equal(t, "attempt 3/3: boom", task.Error.Message)
		assert.Equal(t, 3, task.Error.Attempt)
		assert.Nil(t, task.Result)
	})

	// **情境 4: fallback 標記還原**
	t.Run("fallback 標記還原", func(t *testing.T) {
		m := baseHash()
		m["fallback"] = "1"

		task, err := taskFromMap(m)

		assert.NoError(t, err)
		assert.True(t, task.Fallback)
	})

	// **情境 5: 壞掉的欄位回錯誤**
	t.Run("壞掉的欄位回錯誤", func(t *testing.T) {
		m := baseHash()
		m["attempt_count"] = "not-a-number"

		task, err := taskFromMap(m)

		assert.Error(t, err)
		assert.Nil(t, task)
	})
}

// 測試 transitionResult：Lua script 回傳值約定
func TestTransitionResult(t *testing.T) {
	assert.ErrorIs(t, transitionResult(-2), domain.ErrTaskNotFound)
	assert.ErrorIs(t, transitionResult(-1), domain.ErrStaleTransition)
	assert.NoError(t, transitionResult(0))
	assert.NoError(t, transitionResult(1))
}

func TestTaskKey(t *testing.T) {
	assert.Equal(t, "transcode:task:task-1", taskKey("task-1"))
}
