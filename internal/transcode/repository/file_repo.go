package repository

import (
	"video_transcode_service/internal/transcode/domain"

	"gorm.io/gorm"
)

// FileRepo definition source file catalog
type FileRepo interface {
	AutoMigrate() error
	Create(file *domain.SourceFile) error
	GetByID(fileID string) (*domain.SourceFile, error)
	DeleteByObjectName(objectName string) error
}

type fileRepo struct {
	db *gorm.DB
}

// NewFileRepo create FileRepo
func NewFileRepo(db *gorm.DB) FileRepo {
	return &fileRepo{db: db}
}

func (r *fileRepo) AutoMigrate() error {
	return r.db.AutoMigrate(&domain.SourceFile{})
}

func (r *fileRepo) Create(file *domain.SourceFile) error {
	return r.db.Create(file).Error
}

// GetByID get SourceFile by file_id
func (r *fileRepo) GetByID(fileID string) (*domain.SourceFile, error) {
	var f domain.SourceFile
	if err := r.db.First(&f, "file_id = ?", fileID).Error; err != nil {
		return nil, err
	}
	return &f, nil
}

// DeleteByObjectName 刪除 object 時順帶清掉目錄紀錄
func (r *fileRepo) DeleteByObjectName(objectName string) error {
	return r.db.Where("object_name = ?", objectName).Delete(&domain.SourceFile{}).Error
}
