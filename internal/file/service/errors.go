package service

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lk2023060901/filevault-backend/internal/file/biz"
	apperrors "github.com/lk2023060901/filevault-backend/internal/pkg/errors"
)

// toAppError 将业务错误映射为带错误码的 AppError
func toAppError(err error) error {
	var tooLarge *http.MaxBytesError
	var refErr *biz.ReferencedError

	switch {
	case errors.As(err, &tooLarge):
		return apperrors.Wrap(err, apperrors.ErrFileTooLarge, "upload exceeds server limit")
	case errors.As(err, &refErr):
		return apperrors.Wrap(err, apperrors.ErrFileHasDuplicates, refErr.Error()).
			WithData(gin.H{"file_id": refErr.FileID, "referents": refErr.Referents})
	case errors.Is(err, biz.ErrContentMissing):
		return apperrors.Wrap(err, apperrors.ErrFileContentMissing)
	case errors.Is(err, biz.ErrNotFound):
		return apperrors.Wrap(err, apperrors.ErrFileNotFound, "file not found")
	case errors.Is(err, biz.ErrInvalidInput):
		return apperrors.Wrap(err, apperrors.ErrFileInvalidUpload, err.Error())
	case errors.Is(err, biz.ErrConflict):
		return apperrors.Wrap(err, apperrors.ErrConflict, err.Error())
	case errors.Is(err, biz.ErrStorageMedium):
		return apperrors.Wrap(err, apperrors.ErrFileStorageFailed)
	default:
		return apperrors.Wrap(err, apperrors.ErrInternalServer)
	}
}
