package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	apperrors "bambu-slicer-advisor/internal/errors"
	"bambu-slicer-advisor/internal/logger"
	"bambu-slicer-advisor/internal/models"
	"bambu-slicer-advisor/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// AnalyzeHandler 處理圖片上傳與分析
type AnalyzeHandler struct {
	service    *services.AnalyzeService
	timeout    time.Duration
	cookieName string
}

// NewAnalyzeHandler timeout 為 0 時不另外設定期限
func NewAnalyzeHandler(service *services.AnalyzeService, timeout time.Duration, cookieName string) *AnalyzeHandler {
	if service == nil {
		logger.Logger.Panic("AnalyzeHandler：AnalyzeService 不得為空")
	}
	return &AnalyzeHandler{service: service, timeout: timeout, cookieName: cookieName}
}

// Analyze POST /api/analyze (multipart: image, filament, temperature)
func (h *AnalyzeHandler) Analyze(c *gin.Context) {
	id := sessionID(c, h.cookieName)
	log := logger.WithFields(logrus.Fields{"session_id": id, "ip": c.ClientIP()})
	log.Info("資訊：[AnalyzeHandler] 收到圖片分析請求")

	img, err := h.readImage(c)
	if err != nil {
		respondError(c, err)
		return
	}

	filament := strings.TrimSpace(c.PostForm("filament"))
	if filament == "" {
		filament = h.service.DefaultFilament()
	}
	var settings services.AnalysisSettings
	if raw := strings.TrimSpace(c.PostForm("temperature")); raw != "" {
		v, err := strconv.ParseFloat(raw, 32)
		if err != nil {
			respondError(c, apperrors.NewValidationError("temperature 必須是 0 到 1 之間的數字", err))
			return
		}
		t := float32(v)
		settings.Temperature = &t
	}

	ctx := c.Request.Context()
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	result, err := h.service.RunSession(ctx, id, *img, filament, settings)
	if err != nil {
		respondError(c, err)
		return
	}
	log.WithField("settings", result.SettingCount()).Info("資訊：[AnalyzeHandler] 圖片分析完成")
	c.JSON(http.StatusOK, result)
}

// readImage 優先讀取檔案欄位 image，沒有檔案時改讀 data URL 欄位 imageDataUrl
func (h *AnalyzeHandler) readImage(c *gin.Context) (*models.EncodedImage, error) {
	fh, err := c.FormFile("image")
	if err == nil {
		return h.service.Ingestor().FromMultipart(fh)
	}
	if errors.Is(err, http.ErrMissingFile) {
		if dataURL := c.PostForm("imageDataUrl"); strings.TrimSpace(dataURL) != "" {
			return h.service.Ingestor().FromDataURL(dataURL, "")
		}
	}
	return nil, uploadError(err)
}

func uploadError(err error) error {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.Is(err, http.ErrMissingFile):
		return apperrors.NewValidationError("請上傳圖片 (表單欄位 image)", err)
	case errors.As(err, &tooLarge):
		return apperrors.NewValidationError("上傳內容超過大小上限", err)
	default:
		return apperrors.NewValidationError("無法解析上傳表單", err)
	}
}
