package app

import (
	"context"
	"io"
	"time"

	"video_transcode_service/internal/transcode/domain"

	"github.com/minio/minio-go/v7"
	"github.com/streadway/amqp"
	"github.com/stretchr/testify/mock"
)

// MockTaskRepo 是 TaskRepo 的 Mock
type MockTaskRepo struct {
	mock.Mock
}

func (m *MockTaskRepo) Create(ctx context.Context, task *domain.Task) error {
	args := m.Called(ctx, task)
	return args.Error(0)
}

func (m *MockTaskRepo) Get(ctx context.Context, taskID string) (*domain.Task, error) {
	args := m.Called(ctx, taskID)
	if task, ok := args.Get(0).(*domain.Task); ok {
		return task, args.Error(1)
	}
	return nil, args.Error(1)
}

// Claim 模擬認領：PENDING -> PROGRESS
func (m *MockTaskRepo) Claim(ctx context.Context, taskID string) (*domain.Task, error) {
	args := m.Called(ctx, taskID)
	if task, ok := args.Get(0).(*domain.Task); ok {
		return task, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockTaskRepo) Requeue(ctx context.Context, taskID, cause string) error {
	args := m.Called(ctx, taskID, cause)
	return args.Error(0)
}

func (m *MockTaskRepo) MarkSuccess(ctx context.Context, taskID string, result domain.TaskResult) error {
	args := m.Called(ctx, taskID, result)
	return args.Error(0)
}

func (m *MockTaskRepo) MarkFailure(ctx context.Context, taskID, cause string) error {
	args := m.Called(ctx, taskID, cause)
	return args.Error(0)
}

func (m *MockTaskRepo) SetFallback(ctx context.Context, taskID string) error {
	args := m.Called(ctx, taskID)
	return args.Error(0)
}

func (m *MockTaskRepo) ListStranded(ctx context.Context, olderThan time.Duration) ([]*domain.Task, error) {
	args := m.Called(ctx, olderThan)
	if tasks, ok := args.Get(0).([]*domain.Task); ok {
		return tasks, args.Error(1)
	}
	return nil, args.Error(1)
}

// MockFileRepo 是 FileRepo 的 Mock
type MockFileRepo struct {
	mock.Mock
}

func (m *MockFileRepo) AutoMigrate() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockFileRepo) Create(file *domain.SourceFile) error {
	args := m.Called(file)
	return args.Error(0)
}

func (m *MockFileRepo) GetByID(fileID string) (*domain.SourceFile, error) {
	args := m.Called(fileID)
	if f, ok := args.Get(0).(*domain.SourceFile); ok {
		return f, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockFileRepo) DeleteByObjectName(objectName string) error {
	args := m.Called(objectName)
	return args.Error(0)
}

// MockMinIOClient 是 MinIOClientRepo 的 Mock
type MockMinIOClient struct {
	mock.Mock
}

// UploadFile 模擬 MinIO 上傳行為
func (m *MockMinIOClient) UploadFile(ctx context.Context, objectName, filePath, contentType string) error {
	args := m.Called(ctx, objectName, filePath, contentType)
	return args.Error(0)
}

// UploadStream 模擬 MinIO 串流上傳行為
func (m *MockMinIOClient) UploadStream(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) error {
	args := m.Called(ctx, objectName, reader, size, contentType)
	return args.Error(0)
}

// DownloadFile 模擬 MinIO 下載行為
func (m *MockMinIOClient) DownloadFile(ctx context.Context, objectName, destPath string) error {
	args := m.Called(ctx, objectName, destPath)
	return args.Error(0)
}

// GetObject 模擬 MinIO 取得object
func (m *MockMinIOClient) GetObject(ctx context.Context, objectName string, opts minio.GetObjectOptions) (io.ReadCloser, error) {
	args := m.Called(ctx, objectName, opts)
	if r, ok := args.Get(0).(io.ReadCloser); ok {
		return r, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockMinIOClient) StatObject(ctx context.Context, objectName string) (minio.ObjectInfo, error) {
	args := m.Called(ctx, objectName)
	return args.Get(0).(minio.ObjectInfo), args.Error(1)
}

func (m *MockMinIOClient) ObjectExists(ctx context.Context, objectName string) (bool, error) {
	args := m.Called(ctx, objectName)
	return args.Bool(0), args.Error(1)
}

func (m *MockMinIOClient) ListObjects(ctx context.Context, prefix string) ([]minio.ObjectInfo, error) {
	args := m.Called(ctx, prefix)
	if infos, ok := args.Get(0).([]minio.ObjectInfo); ok {
		return infos, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockMinIOClient) RemoveObject(ctx context.Context, objectName string) error {
	args := m.Called(ctx, objectName)
	return args.Error(0)
}

// PresignGetURL 模擬 MinIO presign url
func (m *MockMinIOClient) PresignGetURL(ctx context.Context, objectName string, expiry time.Duration) (string, error) {
	args := m.Called(ctx, objectName, expiry)
	return args.Get(0).(string), args.Error(1)
}

// MockExecutor 是 JobExecutor 的 Mock
type MockExecutor struct {
	mock.Mock
}

func (m *MockExecutor) Probe(ctx context.Context) Availability {
	args := m.Called(ctx)
	return args.Get(0).(Availability)
}

func (m *MockExecutor) Dispatch(ctx context.Context, job domain.JobDescriptor) error {
	args := m.Called(ctx, job)
	return args.Error(0)
}

// MockRunner 是 AttemptRunner 的 Mock
type MockRunner struct {
	mock.Mock
}

func (m *MockRunner) Process(ctx context.Context, job domain.JobDescriptor) Outcome {
	args := m.Called(ctx, job)
	return args.Get(0).(Outcome)
}

// MockRabbitPublisher 是 RabbitPublisher 的 Mock
type MockRabbitPublisher struct {
	mock.Mock
}

func (m *MockRabbitPublisher) Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	args := m.Called(exchange, key, mandatory, immediate, msg)
	return args.Error(0)
}

func (m *MockRabbitPublisher) IsClosed() bool {
	args := m.Called()
	return args.Bool(0)
}

// MockTranscoder 是 Transcoder 的 Mock
type MockTranscoder struct {
	mock.Mock
}

func (m *MockTranscoder) Run(ctx context.Context, inputPath, outputDir, fileID string, cfg domain.TranscodeConfig) ([]string, error) {
	args := m.Called(ctx, inputPath, outputDir, fileID, cfg)
	if outputs, ok := args.Get(0).([]string); ok {
		return outputs, args.Error(1)
	}
	return nil, args.Error(1)
}

// fakeAcknowledger 記錄 amqp delivery 的 ack/nack 呼叫
type fakeAcknowledger struct {
	acked    bool
	nacked   bool
	requeued bool
}

func (a *fakeAcknowledger) Ack(tag uint64, multiple bool) error {
	a.acked = true
	return nil
}

func (a *fakeAcknowledger) Nack(tag uint64, multiple, requeue bool) error {
	a.nacked = true
	a.requeued = requeue
	return nil
}

func (a *fakeAcknowledger) Reject(tag uint64, requeue bool) error {
	a.nacked = true
	a.requeued = requeue
	return nil
}
