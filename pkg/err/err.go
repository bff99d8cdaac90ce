package errprocess

import (
	"errors"

	"video_transcode_service/pkg/logger"
)

// Set set err info
func Set(errMsg string) error {
	logger.Log.Error(errMsg)
	return errors.New(errMsg)
}

// Wrap log errMsg but keep the original error for errors.Is/As
// 提交期的類型化錯誤（config/not found）要能被上層判斷，不能只剩字串
func Wrap(errMsg string, err error) error {
	logger.Log.Error(errMsg)
	return err
}
