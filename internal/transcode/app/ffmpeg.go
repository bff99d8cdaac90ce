package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"video_transcode_service/internal/transcode/domain"
	"video_transcode_service/pkg/logger"
)

// Transcoder definition external transcode tool invocation
// 輸入本地檔與目標參數，輸出目錄裡的產物路徑清單
type Transcoder interface {
	Run(ctx context.Context, inputPath, outputDir, fileID string, cfg domain.TranscodeConfig) ([]string, error)
}

// FFmpegTranscoder 以外部 ffmpeg 指令實作 Transcoder
// soft timeout 先送 SIGINT 請 ffmpeg 收尾，hard timeout 由 ctx 直接 kill
type FFmpegTranscoder struct {
	Bin         string
	SoftTimeout time.Duration
	HardTimeout time.Duration
}

// NewFFmpegTranscoder create FFmpegTranscoder
func NewFFmpegTranscoder(soft, hard time.Duration) *FFmpegTranscoder {
	return &FFmpegTranscoder{
		Bin:         "ffmpeg",
		SoftTimeout: soft,
		HardTimeout: hard,
	}
}

// Run 執行一次轉碼，錯誤一律回 *domain.ExecutionError 供重試分類
func (f *FFmpegTranscoder) Run(ctx context.Context, inputPath, outputDir, fileID string, cfg domain.TranscodeConfig) ([]string, error) {
	args := BuildFFmpegArgs(inputPath, outputDir, fileID, cfg)
	logger.Log.Infof("執行 FFmpeg:", fmt.Sprintf("%s %v", f.Bin, args))

	hardCtx, cancel := context.WithTimeout(ctx, f.HardTimeout)
	defer cancel()

	cmd := exec.CommandContext(hardCtx, f.Bin, args...)
	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	if err := cmd.Start(); err != nil {
		return nil, domain.NewRetryableError(fmt.Sprintf("ffmpeg 啟動失敗: %v", err))
	}

	// 軟性時限到先請 ffmpeg 自己收尾（SIGINT 會讓它 flush 已寫的輸出）
	var softFired atomic.Bool
	softTimer := time.AfterFunc(f.SoftTimeout, func() {
		softFired.Store(true)
		if cmd.Process != nil {
			_ = cmd.Process.Signal(os.Interrupt)
		}
	})
	defer softTimer.Stop()

	err := cmd.Wait()

	if hardCtx.Err() == context.DeadlineExceeded {
		return nil, domain.NewTimeoutError(fmt.Sprintf("ffmpeg 超過硬性時限 %s 被強制終止", f.HardTimeout))
	}
	if err != nil {
		// 軟性時限收尾的退出碼因版本而異，不能交給未分類的預設，
		// 這裡明確知道是超時，一律算暫時性
		if softFired.Load() {
			return nil, domain.NewTimeoutError(fmt.Sprintf("ffmpeg 超過軟性時限 %s，已收尾退出", f.SoftTimeout))
		}
		return nil, classifyToolError(err, output.String())
	}

	outputs, err := collectOutputs(outputDir)
	if err != nil {
		return nil, domain.NewRetryableError(fmt.Sprintf("讀取轉碼輸出目錄失敗: %v", err))
	}
	if len(outputs) == 0 {
		return nil, domain.NewTerminalError("ffmpeg 結束但沒有任何輸出檔")
	}
	return outputs, nil
}

// BuildFFmpegArgs 依輸出格式組出 ffmpeg 參數
func BuildFFmpegArgs(inputPath, outputDir, fileID string, cfg domain.TranscodeConfig) []string {
	stem := cfg.OutputStem(fileID)

	common := []string{
		"-i", inputPath,
		"-vf", fmt.Sprintf("scale=%s", cfg.Resolution),
		"-c:v", "libx264",
		"-preset", "medium",
		"-crf", "23",
		"-c:a", "aac",
		"-b:a", "128k",
	}

	switch cfg.Format {
	case domain.FormatHLS:
		// HLS 輸出 .m3u8 播放清單與 .ts 分段
		return append(common,
			"-hls_time", "10",
			"-hls_playlist_type", "vod",
			"-hls_segment_filename", filepath.Join(outputDir, stem+"_%03d.ts"),
			"-y",
			filepath.Join(outputDir, stem+".m3u8"),
		)
	case domain.FormatDASH:
		// DASH 輸出 .mpd manifest 與 .m4s 分段
		return append(common,
			"-f", "dash",
			"-seg_duration", "10",
			"-use_template", "1",
			"-use_timeline", "1",
			"-init_seg_name", stem+"_init_$RepresentationID$.m4s",
			"-media_seg_name", stem+"_chunk_$RepresentationID$_$Number$.m4s",
			"-y",
			filepath.Join(outputDir, stem+".mpd"),
		)
	default:
		return append(common,
			"-movflags", "+faststart",
			"-y",
			filepath.Join(outputDir, cfg.OutputName(fileID)),
		)
	}
}

// 判斷為來源檔壞掉的 ffmpeg 輸出片段，遇到就不重試
var terminalToolMarkers = []string{
	"Invalid data found",
	"moov atom not found",
	"could not find codec",
	"Unsupported codec",
	"Invalid argument",
}

// classifyToolError 分類工具失敗：訊號終止算暫時性，壞輸入與未分類一律終態
func classifyToolError(err error, output string) *domain.ExecutionError {
	for _, marker := range terminalToolMarkers {
		if strings.Contains(output, marker) {
			return domain.NewTerminalError(fmt.Sprintf("ffmpeg 來源檔無法處理: %s", marker))
		}
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() == -1 {
		// 被訊號終止（crash 或被收尾），視為暫時性
		return domain.NewRetryableError(fmt.Sprintf("ffmpeg 被訊號終止: %v", err))
	}

	return domain.NewTerminalError(fmt.Sprintf("ffmpeg 執行失敗: %v", err))
}

// collectOutputs 收集輸出目錄內所有產物
func collectOutputs(outputDir string) ([]string, error) {
	entries, err := os.ReadDir(outputDir)
	if err != nil {
		return nil, err
	}
	var outputs []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		outputs = append(outputs, filepath.Join(outputDir, entry.Name()))
	}
	return outputs, nil
}

// getContentType 依副檔名給 MinIO 的 content type
func getContentType(filename string) string {
	switch filepath.Ext(filename) {
	case ".m3u8":
		return "application/vnd.apple.mpegurl"
	case ".mpd":
		return "application/dash+xml"
	case ".ts":
		return "video/mp2t"
	case ".m4s":
		return "video/iso.segment"
	case ".mp4":
		return "video/mp4"
	default:
		return "application/octet-stream"
	}
}
