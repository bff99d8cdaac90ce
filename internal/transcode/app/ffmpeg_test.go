package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"video_transcode_service/internal/transcode/domain"
	"video_transcode_service/pkg/logger"

	"github.com/stretchr/testify/assert"
)

// 測試 BuildFFmpegArgs
func TestBuildFFmpegArgs(t *testing.T) {
	fileID := "abc123"

	// **情境 1: hls 參數帶分段與播放清單**
	t.Run("hls 參數", func(t *testing.T) {
		args := BuildFFmpegArgs("/tmp/in.mp4", "/tmp/out", fileID,
			domain.TranscodeConfig{Resolution: "1280:720", Format: domain.FormatHLS})

		assert.Contains(t, args, "scale=1280:720")
		assert.Contains(t, args, "-hls_time")
		assert.Contains(t, args, "/tmp/out/abc123_transcoded.m3u8")
	})

	// **情境 2: dash 參數帶 manifest 與 template**
	t.Run("dash 參數", func(t *testing.T) {
		args := BuildFFmpegArgs("/tmp/in.mp4", "/tmp/out", fileID,
			domain.TranscodeConfig{Resolution: "1920:1080", Format: domain.FormatDASH})

		assert.Contains(t, args, "dash")
		assert.Contains(t, args, "-seg_duration")
		assert.Contains(t, args, "/tmp/out/abc123_transcoded.mpd")
	})

	// **情境 3: mp4 單檔輸出帶 faststart**
	t.Run("mp4 參數", func(t *testing.T) {
		args := BuildFFmpegArgs("/tmp/in.mp4", "/tmp/out", fileID,
			domain.TranscodeConfig{Resolution: "854:480", Format: domain.FormatMP4})

		assert.Contains(t, args, "+faststart")
		assert.Contains(t, args, "/tmp/out/abc123_transcoded.mp4")
	})
}

// 測試 classifyToolError
func TestClassifyToolError(t *testing.T) {
	// **情境 1: 來源檔壞掉的輸出片段，不可重試**
	t.Run("來源檔壞掉不可重試", func(t *testing.T) {
		execErr := classifyToolError(errors.New("exit status 1"),
			"abc123.mp4: Invalid data found when processing input")

		assert.False(t, execErr.Retryable)
	})

	// **情境 2: moov atom 缺失，不可重試**
	t.Run("moov atom 缺失不可重試", func(t *testing.T) {
		execErr := classifyToolError(errors.New("exit status 1"),
			"moov atom not found")

		assert.False(t, execErr.Retryable)
	})

	// **情境 3: 未分類的失敗一律視為不可重試**
	t.Run("未分類失敗不可重試", func(t *testing.T) {
		execErr := classifyToolError(errors.New("exit status 1"), "some unknown output")

		assert.False(t, execErr.Retryable)
	})
}

// writeStubTool 產生一個假的轉碼指令供 Run 測試
func writeStubTool(t *testing.T, script string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fake_transcoder.sh")
	assert.NoError(t, os.WriteFile(path, []byte(script), 0755))
	return path
}

// 測試 Run 的軟硬時限機制
func TestFFmpegTranscoderRun(t *testing.T) {
	logger.SetNewNop()
	ctx := context.Background()
	cfg := domain.TranscodeConfig{Resolution: "1280:720", Format: domain.FormatMP4}

	// **情境 1: 超過軟性時限收尾退出，視為可重試的超時**
	t.Run("軟性時限收尾視為可重試超時", func(t *testing.T) {
		// 收到 SIGINT 後收尾退出，退出碼非 0
		bin := writeStubTool(t, `#!/bin/sh
trap 'exit 255' INT
sleep 60 >/dev/null 2>&1 &
wait $!
`)
		tool := &FFmpegTranscoder{Bin: bin, SoftTimeout: 200 * time.Millisecond, HardTimeout: 10 * time.Second}

		outputs, err := tool.Run(ctx, "/tmp/in.mp4", t.TempDir(), "abc123", cfg)

		assert.Nil(t, outputs)
		var execErr *domain.ExecutionError
		assert.True(t, errors.As(err, &execErr))
		assert.True(t, execErr.Timeout)
		assert.True(t, execErr.Retryable)
	})

	// **情境 2: 無視收尾請求，硬性時限強制終止，一樣是可重試的超時**
	t.Run("硬性時限強制終止視為可重試超時", func(t *testing.T) {
		bin := writeStubTool(t, `#!/bin/sh
trap '' INT
sleep 60 >/dev/null 2>&1 &
wait $!
`)
		tool := &FFmpegTranscoder{Bin: bin, SoftTimeout: 100 * time.Millisecond, HardTimeout: 400 * time.Millisecond}

		outputs, err := tool.Run(ctx, "/tmp/in.mp4", t.TempDir(), "abc123", cfg)

		assert.Nil(t, outputs)
		var execErr *domain.ExecutionError
		assert.True(t, errors.As(err, &execErr))
		assert.True(t, execErr.Timeout)
		assert.True(t, execErr.Retryable)
	})

	// **情境 3: 正常結束收集輸出目錄內的產物**
	t.Run("正常結束收集輸出產物", func(t *testing.T) {
		bin := writeStubTool(t, "#!/bin/sh\nexit 0\n")
		outDir := t.TempDir()
		assert.NoError(t, os.WriteFile(filepath.Join(outDir, "abc123_transcoded.mp4"), []byte("data"), 0644))

		tool := &FFmpegTranscoder{Bin: bin, SoftTimeout: 10 * time.Second, HardTimeout: 20 * time.Second}
		outputs, err := tool.Run(ctx, "/tmp/in.mp4", outDir, "abc123", cfg)

		assert.NoError(t, err)
		assert.Equal(t, []string{filepath.Join(outDir, "abc123_transcoded.mp4")}, outputs)
	})

	// **情境 4: 結束但沒有任何輸出檔，不可重試**
	t.Run("結束但沒有輸出檔不可重試", func(t *testing.T) {
		bin := writeStubTool(t, "#!/bin/sh\nexit 0\n")

		tool := &FFmpegTranscoder{Bin: bin, SoftTimeout: 10 * time.Second, HardTimeout: 20 * time.Second}
		outputs, err := tool.Run(ctx, "/tmp/in.mp4", t.TempDir(), "abc123", cfg)

		assert.Nil(t, outputs)
		var execErr *domain.ExecutionError
		assert.True(t, errors.As(err, &execErr))
		assert.False(t, execErr.Retryable)
	})
}

// 測試 getContentType
func TestGetContentType(t *testing.T) {
	assert.Equal(t, "application/vnd.apple.mpegurl", getContentType("abc_transcoded.m3u8"))
	assert.Equal(t, "application/dash+xml", getContentType("abc_transcoded.mpd"))
	assert.Equal(t, "video/mp2t", getContentType("abc_transcoded_000.ts"))
	assert.Equal(t, "video/iso.segment", getContentType("abc_chunk_0_1.m4s"))
	assert.Equal(t, "video/mp4", getContentType("abc_transcoded.mp4"))
	assert.Equal(t, "application/octet-stream", getContentType("abc.unknown"))
}
