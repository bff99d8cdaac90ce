package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"video_transcode_service/internal/transcode/app"
	"video_transcode_service/internal/transcode/domain"
	"video_transcode_service/internal/transcode/repository"
	"video_transcode_service/pkg/database"
	"video_transcode_service/pkg/logger"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
)

// TranscodeHandler definition transcode handler
// 薄薄一層 HTTP adapter，所有決策都在 usecase
type TranscodeHandler struct {
	Dispatcher app.DispatcherUseCase
	Status     app.StatusUseCase
	Blob       database.MinIOClientRepo
	Files      repository.FileRepo
}

// TranscodeReq transcode request body
type TranscodeReq struct {
	Resolution string `json:"resolution"`
	Format     string `json:"format"`
}

// UploadVideo 上傳原始影片到 MinIO 並建立來源檔紀錄
func (h *TranscodeHandler) UploadVideo(c *fiber.Ctx) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "未檢測到檔案"})
	}

	contentType := fileHeader.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "video/") {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "File must be a video"})
	}

	fileID := uuid.NewString()
	ext := filepath.Ext(fileHeader.Filename)
	if ext == "" {
		ext = ".mp4"
	}
	objectName := fileID + ext

	src, err := fileHeader.Open()
	if err != nil {
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "讀取上傳檔案失敗"})
	}
	defer src.Close()

	if err := h.Blob.UploadStream(c.Context(), objectName, src, fileHeader.Size, contentType); err != nil {
		logger.Log.Errorf("上傳 MinIO 失敗:", err)
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "上傳 MinIO 失敗"})
	}

	if err := h.Files.Create(&domain.SourceFile{
		FileID:      fileID,
		ObjectName:  objectName,
		ContentType: contentType,
		Size:        fileHeader.Size,
	}); err != nil {
		logger.Log.Errorf("建立來源檔紀錄失敗:", err)
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "資料庫建立來源檔失敗"})
	}

	return c.JSON(fiber.Map{
		"file_id":  fileID,
		"filename": objectName,
		"message":  "Video uploaded successfully",
	})
}

// Transcode 建立轉碼任務，回 task_id 供輪詢
func (h *TranscodeHandler) Transcode(c *fiber.Ctx) error {
	fileID := c.Params("file_id")

	// 預設 720p / mp4，與舊 API 相容
	req := TranscodeReq{Resolution: "1280:720", Format: domain.FormatMP4}
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "請求內容解析失敗"})
		}
	}

	res, err := h.Dispatcher.Submit(c.Context(), fileID, domain.TranscodeConfig{
		Resolution: req.Resolution,
		Format:     req.Format,
	})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidConfig):
			return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		case errors.Is(err, domain.ErrFileNotFound):
			return c.Status(http.StatusNotFound).JSON(fiber.Map{"error": "Video file not found"})
		default:
			return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		}
	}
	return c.JSON(res)
}

// GetTaskStatus 以 task_id 查任務狀態（主要介面）
func (h *TranscodeHandler) GetTaskStatus(c *fiber.Ctx) error {
	res, err := h.Status.GetStatus(c.Context(), c.Params("task_id"))
	if err != nil {
		if errors.Is(err, domain.ErrTaskNotFound) {
			return c.Status(http.StatusNotFound).JSON(fiber.Map{"error": "task not found"})
		}
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(res)
}

// GetFileStatus 以 file_id 推斷狀態（legacy 介面）
func (h *TranscodeHandler) GetFileStatus(c *fiber.Ctx) error {
	format := c.Query("format", domain.FormatMP4)
	res, err := h.Status.GetStatusByFile(c.Context(), c.Params("file_id"), format)
	if err != nil {
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(res)
}

// StreamVideo 代理回傳影片內容
func (h *TranscodeHandler) StreamVideo(c *fiber.Ctx) error {
	filename := c.Params("filename")

	stat, err := h.Blob.StatObject(c.Context(), filename)
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return c.Status(http.StatusNotFound).JSON(fiber.Map{"error": "Video not found"})
		}
		return c.Status(http.StatusInternalServerError).SendString("無法取得影片: " + err.Error())
	}

	obj, err := h.Blob.GetObject(c.Context(), filename, minio.GetObjectOptions{})
	if err != nil {
		return c.Status(http.StatusInternalServerError).SendString("無法取得影片: " + err.Error())
	}

	c.Set("Content-Type", contentTypeByName(filename))
	c.Set("Content-Disposition", fmt.Sprintf("inline; filename=%s", filename))
	c.Set("Accept-Ranges", "bytes")
	return c.SendStream(obj, int(stat.Size))
}

// DownloadVideo 下載影片
func (h *TranscodeHandler) DownloadVideo(c *fiber.Ctx) error {
	filename := c.Params("filename")

	stat, err := h.Blob.StatObject(c.Context(), filename)
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return c.Status(http.StatusNotFound).JSON(fiber.Map{"error": "Video not found"})
		}
		return c.Status(http.StatusInternalServerError).SendString("無法取得影片: " + err.Error())
	}

	obj, err := h.Blob.GetObject(c.Context(), filename, minio.GetObjectOptions{})
	if err != nil {
		return c.Status(http.StatusInternalServerError).SendString("無法取得影片: " + err.Error())
	}

	c.Set("Content-Type", contentTypeByName(filename))
	c.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))
	return c.SendStream(obj, int(stat.Size))
}

// ListVideos 列出 bucket 內的影片
func (h *TranscodeHandler) ListVideos(c *fiber.Ctx) error {
	infos, err := h.Blob.ListObjects(c.Context(), c.Query("prefix"))
	if err != nil {
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	files := make([]fiber.Map, 0, len(infos))
	for _, info := range infos {
		files = append(files, fiber.Map{
			"name":          info.Key,
			"size":          info.Size,
			"last_modified": info.LastModified,
		})
	}
	return c.JSON(fiber.Map{"count": len(files), "files": files})
}

// DeleteVideo 刪除影片與對應的來源檔紀錄
func (h *TranscodeHandler) DeleteVideo(c *fiber.Ctx) error {
	filename := c.Params("filename")

	if err := h.Blob.RemoveObject(c.Context(), filename); err != nil {
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	if err := h.Files.DeleteByObjectName(filename); err != nil {
		logger.Log.Warn("清理來源檔紀錄失敗: " + err.Error())
	}
	return c.JSON(fiber.Map{
		"message":  "Deleted " + filename,
		"filename": filename,
	})
}

// Health health check endpoint for Docker or load balancer
func (h *TranscodeHandler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

func contentTypeByName(filename string) string {
	switch filepath.Ext(filename) {
	case ".m3u8":
		return "application/vnd.apple.mpegurl"
	case ".mpd":
		return "application/dash+xml"
	case ".ts":
		return "video/mp2t"
	case ".m4s":
		return "video/iso.segment"
	default:
		return "video/mp4"
	}
}
