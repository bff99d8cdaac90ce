package router

import (
	"video_transcode_service/internal/transcode/api/handlers"

	"github.com/gofiber/fiber/v2"
)

// RegisterRoutes 注册影片转码相关的路由
func RegisterRoutes(app *fiber.App, h *handlers.TranscodeHandler) {
	app.Post("/videos/upload", h.UploadVideo)
	app.Post("/videos/transcode/:file_id", h.Transcode)
	app.Get("/videos/status/task/:task_id", h.GetTaskStatus)
	app.Get("/videos/status/:file_id", h.GetFileStatus)
	app.Get("/videos/stream/:filename", h.StreamVideo)
	app.Get("/videos/download/:filename", h.DownloadVideo)
	app.Get("/videos/list", h.ListVideos)
	app.Delete("/videos/:filename", h.DeleteVideo)
	app.Get("/health", h.Health)
}
