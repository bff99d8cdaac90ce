package repository

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"video_transcode_service/internal/transcode/domain"

	"github.com/go-redis/redis/v8"
)

const taskKeyPrefix = "transcode:task:"

// TaskRepo definition task state store behaviors
// 所有狀態轉移都要是原子的：同一瞬間只能有一個 worker 認領成功
type TaskRepo interface {
	Create(ctx context.Context, task *domain.Task) error
	Get(ctx context.Context, taskID string) (*domain.Task, error)
	// Claim PENDING -> PROGRESS，attempt_count +1，恰好一個呼叫者成功
	Claim(ctx context.Context, taskID string) (*domain.Task, error)
	// Requeue PROGRESS -> PENDING，可重試失敗用，attempt_count 不再加（認領時已計）
	Requeue(ctx context.Context, taskID, cause string) error
	MarkSuccess(ctx context.Context, taskID string, result domain.TaskResult) error
	MarkFailure(ctx context.Context, taskID, cause string) error
	SetFallback(ctx context.Context, taskID string) error
	// ListStranded 找出 updated_at 超過 cutoff 仍卡在 PROGRESS 的任務（worker 掛掉）
	ListStranded(ctx context.Context, olderThan time.Duration) ([]*domain.Task, error)
}

// 轉移全部走 Lua script，讀狀態與改狀態之間不允許插入其他指令
// 回傳值約定：-2 任務不存在、-1 狀態不符（stale）、>=0 成功
var (
	claimScript = redis.NewScript(`
local state = redis.call('HGET', KEYS[1], 'state')
if not state then return -2 end
if state ~= 'PENDING' then return -1 end
redis.call('HSET', KEYS[1], 'state', 'PROGRESS', 'updated_at', ARGV[1])
return redis.call('HINCRBY', KEYS[1], 'attempt_count', 1)
`)

	requeueScript = redis.NewScript(`
local state = redis.call('HGET', KEYS[1], 'state')
if not state then return -2 end
if state ~= 'PROGRESS' then return -1 end
redis.call('HSET', KEYS[1], 'state', 'PENDING', 'last_error', ARGV[2], 'updated_at', ARGV[1])
return 1
`)

	successScript = redis.NewScript(`
local state = redis.call('HGET', KEYS[1], 'state')
if not state then return -2 end
if state ~= 'PROGRESS' then return -1 end
redis.call('HSET', KEYS[1], 'state', 'SUCCESS', 'output_name', ARGV[2], 'result_format', ARGV[3], 'updated_at', ARGV[1])
return 1
`)

	failureScript = redis.NewScript(`
local state = redis.call('HGET', KEYS[1], 'state')
if not state then return -2 end
if state ~= 'PROGRESS' then return -1 end
local attempt = redis.call('HGET', KEYS[1], 'attempt_count')
redis.call('HSET', KEYS[1], 'state', 'FAILURE', 'error', ARGV[2], 'error_attempt', attempt, 'updated_at', ARGV[1])
return 1
`)
)

type redisTaskRepo struct {
	client *redis.Client
}

// NewTaskRepo create TaskRepo backed by redis
func NewTaskRepo(client *redis.Client) TaskRepo {
	return &redisTaskRepo{client: client}
}

func taskKey(taskID string) string {
	return taskKeyPrefix + taskID
}

// Create 寫入初始 PENDING 紀錄，task_id 為 uuid 不會撞 key
func (r *redisTaskRepo) Create(ctx context.Context, task *domain.Task) error {
	fields := map[string]interface{}{
		"task_id":       task.TaskID,
		"file_id":       task.FileID,
		"input_object":  task.InputObject,
		"resolution":    task.Config.Resolution,
		"format":        task.Config.Format,
		"state":         string(task.State),
		"attempt_count": task.AttemptCount,
		"fallback":      boolField(task.Fallback),
		"created_at":    task.CreatedAt.Format(time.RFC3339Nano),
		"updated_at":    task.UpdatedAt.Format(time.RFC3339Nano),
	}
	return r.client.HSet(ctx, taskKey(task.TaskID), fields).Err()
}

func (r *redisTaskRepo) Get(ctx context.Context, taskID string) (*domain.Task, error) {
	m, err := r.client.HGetAll(ctx, taskKey(taskID)).Result()
	if err != nil {
		return nil, fmt.Errorf("get task[%s] failed: %w", taskID, err)
	}
	if len(m) == 0 {
		return nil, domain.ErrTaskNotFound
	}
	return taskFromMap(m)
}

func (r *redisTaskRepo) Claim(ctx context.Context, taskID string) (*domain.Task, error) {
	res, err := claimScript.Run(ctx, r.client, []string{taskKey(taskID)},
		time.Now().UTC().Format(time.RFC3339Nano)).Int64()
	if err != nil {
		return nil, fmt.Errorf("claim task[%s] failed: %w", taskID, err)
	}
	switch {
	case res == -2:
		return nil, domain.ErrTaskNotFound
	case res == -1:
		// 已被別的 worker 認領或已終態，重複投遞走這裡
		return nil, domain.ErrStaleTransition
	}
	return r.Get(ctx, taskID)
}

func (r *redisTaskRepo) Requeue(ctx context.Context, taskID, cause string) error {
	return r.runTransition(ctx, requeueScript, taskID, cause)
}

func (r *redisTaskRepo) MarkSuccess(ctx context.Context, taskID string, result domain.TaskResult) error {
	res, err := successScript.Run(ctx, r.client, []string{taskKey(taskID)},
		time.Now().UTC().Format(time.RFC3339Nano), result.OutputName, result.Format).Int64()
	if err != nil {
		return fmt.Errorf("mark task[%s] success failed: %w", taskID, err)
	}
	return transitionResult(res)
}

func (r *redisTaskRepo) MarkFailure(ctx context.Context, taskID, cause string) error {
	return r.runTransition(ctx, failureScript, taskID, cause)
}

func (r *redisTaskRepo) runTransition(ctx context.Context, script *redis.Script, taskID, cause string) error {
	res, err := script.Run(ctx, r.client, []string{taskKey(taskID)},
		time.Now().UTC().Format(time.RFC3339Nano), cause).Int64()
	if err != nil {
		return fmt.Errorf("transition task[%s] failed: %w", taskID, err)
	}
	return transitionResult(res)
}

func transitionResult(res int64) error {
	switch res {
	case -2:
		return domain.ErrTaskNotFound
	case -1:
		return domain.ErrStaleTransition
	default:
		return nil
	}
}

// SetFallback 標記此任務走 inline 路徑，不動狀態機
func (r *redisTaskRepo) SetFallback(ctx context.Context, taskID string) error {
	return r.client.HSet(ctx, taskKey(taskID),
		"fallback", "1",
		"updated_at", time.Now().UTC().Format(time.RFC3339Nano),
	).Err()
}

func (r *redisTaskRepo) ListStranded(ctx context.Context, olderThan time.Duration) ([]*domain.Task, error) {
	cutoff := time.Now().UTC().Add(-olderThan)

	var stranded []*domain.Task
	var cursor uint64
	for {
		keys, next, err := r.client.Scan(ctx, cursor, taskKeyPrefix+"*", 100).Result()
		if err != nil {
			return nil, fmt.Errorf("scan tasks failed: %w", err)
		}
		for _, key := range keys {
			m, err := r.client.HGetAll(ctx, key).Result()
			if err != nil || len(m) == 0 {
				continue
			}
			task, err := taskFromMap(m)
			if err != nil {
				continue
			}
			if task.State == domain.TaskProgress && task.UpdatedAt.Before(cutoff) {
				stranded = append(stranded, task)
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return stranded, nil
}

func boolField(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// taskFromMap 還原 redis hash 為 Task
func taskFromMap(m map[string]string) (*domain.Task, error) {
	attempt, err := strconv.Atoi(m["attempt_count"])
	if err != nil {
		return nil, fmt.Errorf("bad attempt_count[%s]: %w", m["attempt_count"], err)
	}
	createdAt, err := time.Parse(time.RFC3339Nano, m["created_at"])
	if err != nil {
		return nil, fmt.Errorf("bad created_at[%s]: %w", m["created_at"], err)
	}
	updatedAt, err := time.Parse(time.RFC3339Nano, m["updated_at"])
	if err != nil {
		return nil, fmt.Errorf("bad updated_at[%s]: %w", m["updated_at"], err)
	}

	task := &domain.Task{
		TaskID:      m["task_id"],
		FileID:      m["file_id"],
		InputObject: m["input_object"],
		Config: domain.TranscodeConfig{
			Resolution: m["resolution"],
			Format:     m["format"],
		},
		State:        domain.TaskState(m["state"]),
		AttemptCount: attempt,
		Fallback:     m["fallback"] == "1",
		CreatedAt:    createdAt,
		UpdatedAt:    updatedAt,
	}

	if task.State == domain.TaskSuccess {
		task.Result = &domain.TaskResult{
			OutputName: m["output_name"],
			Format:     m["result_format"],
		}
	}
	if task.State == domain.TaskFailure {
		errAttempt, _ := strconv.Atoi(m["error_attempt"])
		task.Error = &domain.TaskError{
			Message: m["error"],
			Attempt: errAttempt,
		}
	}
	return task, nil
}
