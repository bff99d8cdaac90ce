package domain

import "time"

// SourceFile 定義上傳來源檔的目錄紀錄
// file_id 是對外識別碼，ObjectName 才是 MinIO 上實際的 object key
type SourceFile struct {
	FileID      string `gorm:"primaryKey;column:file_id" json:"file_id"`
	ObjectName  string `json:"object_name"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
	CreatedAt   time.Time
}
