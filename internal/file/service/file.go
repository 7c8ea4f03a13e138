package service

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/lk2023060901/filevault-backend/internal/file/biz"
	"github.com/lk2023060901/filevault-backend/internal/pkg/database"
	apperrors "github.com/lk2023060901/filevault-backend/internal/pkg/errors"
	"github.com/lk2023060901/filevault-backend/internal/pkg/logger"
	"github.com/lk2023060901/filevault-backend/internal/pkg/response"
	"go.uber.org/zap"
)

// multipart 表单在内存中缓冲的上限，超出部分落盘
const multipartMemory = 8 << 20

// FileService 文件 HTTP 接口
type FileService struct {
	files          *biz.FileUseCase
	stats          *biz.StatsUseCase
	maxUploadBytes int64
	logger         *logger.Logger
}

// NewFileService 创建文件接口。maxUploadBytes <= 0 表示不限制。
func NewFileService(files *biz.FileUseCase, stats *biz.StatsUseCase, maxUploadBytes int64, log *logger.Logger) *FileService {
	return &FileService{
		files:          files,
		stats:          stats,
		maxUploadBytes: maxUploadBytes,
		logger:         log.Named("file.http"),
	}
}

// RegisterRoutes 注册路由
func (s *FileService) RegisterRoutes(r *gin.RouterGroup) {
	files := r.Group("/files")
	{
		files.POST("", s.Upload)
		files.POST("/batch", s.BatchUpload)
		files.GET("", s.List)
		files.GET("/stats", s.Stats)
		files.POST("/stats/recompute", s.RecomputeStats)
		files.GET("/file_types", s.FileTypes)
		files.GET("/size_ranges", s.SizeRanges)
		files.GET("/date_ranges", s.DateRanges)
		files.GET("/:id", s.Get)
		files.GET("/:id/download", s.Download)
		files.DELETE("/:id", s.Delete)
	}
}

func (s *FileService) limitBody(c *gin.Context) {
	if s.maxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.maxUploadBytes)
	}
}

func (s *FileService) fail(c *gin.Context, err error) {
	appErr := toAppError(err)
	if !apperrors.IsClientError(apperrors.ExtractCode(appErr)) {
		s.logger.WithContext(c.Request.Context()).Error("request failed",
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
	}
	response.HandleError(c, appErr)
}

// Upload 单文件上传，multipart 字段名为 file。
// 直接读取 multipart 流，字节只经过一次哈希与暂存。
func (s *FileService) Upload(c *gin.Context) {
	s.limitBody(c)

	mr, err := c.Request.MultipartReader()
	if err != nil {
		s.fail(c, fmt.Errorf("%w: expected multipart/form-data", biz.ErrInvalidInput))
		return
	}

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			s.fail(c, fmt.Errorf("%w: field 'file' is required", biz.ErrInvalidInput))
			return
		}
		if err != nil {
			s.fail(c, fmt.Errorf("%w: %w", biz.ErrInvalidInput, err))
			return
		}
		if part.FormName() != "file" || part.FileName() == "" {
			_ = part.Close()
			continue
		}

		res, err := s.files.Upload(c.Request.Context(), &biz.UploadInput{
			Reader:       part,
			Filename:     part.FileName(),
			ContentType:  part.Header.Get("Content-Type"),
			DeclaredSize: declaredSize(part.Header.Get("Content-Length")),
		})
		_ = part.Close()
		if err != nil {
			s.fail(c, err)
			return
		}

		response.Created(c, toUploadResponse(res))
		return
	}
}

// declaredSize reads an optional per-part Content-Length; most clients omit it
func declaredSize(v string) int64 {
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// BatchUpload 批量上传，multipart 字段名为 files，每个文件独立成功或失败
func (s *FileService) BatchUpload(c *gin.Context) {
	s.limitBody(c)

	if err := c.Request.ParseMultipartForm(multipartMemory); err != nil {
		s.fail(c, fmt.Errorf("%w: %w", biz.ErrInvalidInput, err))
		return
	}
	defer func() {
		if c.Request.MultipartForm != nil {
			_ = c.Request.MultipartForm.RemoveAll()
		}
	}()

	headers := c.Request.MultipartForm.File["files"]
	if len(headers) == 0 {
		s.fail(c, fmt.Errorf("%w: field 'files' is required", biz.ErrInvalidInput))
		return
	}

	inputs := make([]*biz.UploadInput, len(headers))
	opened := make([]multipart.File, 0, len(headers))
	defer func() {
		for _, f := range opened {
			_ = f.Close()
		}
	}()
	for i, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			s.fail(c, fmt.Errorf("%w: open %s: %w", biz.ErrInvalidInput, fh.Filename, err))
			return
		}
		opened = append(opened, f)
		inputs[i] = &biz.UploadInput{
			Reader:       f,
			Filename:     fh.Filename,
			ContentType:  fh.Header.Get("Content-Type"),
			DeclaredSize: fh.Size,
		}
	}

	items, err := s.files.BatchUpload(c.Request.Context(), inputs)
	if err != nil {
		if errors.Is(err, biz.ErrInvalidInput) {
			response.HandleError(c, apperrors.Wrap(err, apperrors.ErrFileBatchTooLarge, err.Error()))
			return
		}
		s.fail(c, err)
		return
	}

	resp := BatchUploadResponse{Items: make([]BatchItemResponse, 0, len(items))}
	for _, it := range items {
		item := BatchItemResponse{Filename: it.Filename}
		if it.Err != nil {
			appErr := toAppError(it.Err)
			item.Code = apperrors.ExtractCode(appErr)
			item.Error = apperrors.GetMessage(item.Code)
			if apperrors.IsClientError(item.Code) {
				item.Error = apperrors.FormatError(item.Code, apperrors.GetDetails(appErr))
			}
			resp.Failed++
		} else {
			item.Success = true
			item.Result = toUploadResponse(it.Result)
			resp.Succeeded++
		}
		resp.Items = append(resp.Items, item)
	}
	response.Success(c, resp)
}

// List 文件列表
func (s *FileService) List(c *gin.Context) {
	var req ListFilesRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.HandleError(c, apperrors.Wrap(err, apperrors.ErrFileInvalidQuery, err.Error()))
		return
	}

	q, err := req.toListQuery()
	if err != nil {
		response.HandleError(c, apperrors.Wrap(err, apperrors.ErrFileInvalidQuery, err.Error()))
		return
	}

	records, total, err := s.files.List(c.Request.Context(), q)
	if err != nil {
		s.fail(c, err)
		return
	}

	items := make([]*FileResponse, 0, len(records))
	for _, rec := range records {
		items = append(items, toFileResponse(rec))
	}
	page, pageSize := database.NormalizePage(q.Page, q.PageSize)
	response.Success(c, response.PageData{
		Items:      items,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: database.TotalPages(total, pageSize),
	})
}

// Get 获取文件记录
func (s *FileService) Get(c *gin.Context) {
	rec, err := s.files.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	response.Success(c, toFileResponse(rec))
}

// Download 下载文件内容，重复记录返回所有者的字节，文件名使用记录自身的名称
func (s *FileService) Download(c *gin.Context) {
	d, err := s.files.Open(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	defer d.Reader.Close()

	c.Header("X-Accel-Buffering", "no")
	c.DataFromReader(http.StatusOK, d.Size, d.ContentType, d.Reader, map[string]string{
		"Content-Disposition": contentDisposition(d.Filename),
	})
}

// Delete 删除文件记录
func (s *FileService) Delete(c *gin.Context) {
	if err := s.files.Delete(c.Request.Context(), c.Param("id")); err != nil {
		s.fail(c, err)
		return
	}
	response.NoContent(c)
}

// Stats 存储统计
func (s *FileService) Stats(c *gin.Context) {
	snap, err := s.stats.Snapshot(c.Request.Context())
	if err != nil {
		s.logger.WithContext(c.Request.Context()).Error("failed to load stats", zap.Error(err))
		response.ErrorWithCode(c, apperrors.ErrFileStatsFailed)
		return
	}
	response.Success(c, toStatsResponse(snap))
}

// RecomputeStats 从文件记录重建统计
func (s *FileService) RecomputeStats(c *gin.Context) {
	snap, err := s.stats.Rebuild(c.Request.Context())
	if err != nil {
		s.logger.WithContext(c.Request.Context()).Error("failed to rebuild stats", zap.Error(err))
		response.ErrorWithCode(c, apperrors.ErrFileStatsFailed)
		return
	}
	response.Success(c, toStatsResponse(snap))
}

// FileTypes 已出现的内容类型
func (s *FileService) FileTypes(c *gin.Context) {
	types, err := s.files.ContentTypes(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	response.Success(c, types)
}

// SizeRanges 文件大小分布
func (s *FileService) SizeRanges(c *gin.Context) {
	buckets, err := s.files.SizeRanges(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	response.Success(c, toRangeCounts(buckets))
}

// DateRanges 上传时间分布
func (s *FileService) DateRanges(c *gin.Context) {
	buckets, err := s.files.DateRanges(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	response.Success(c, toRangeCounts(buckets))
}
