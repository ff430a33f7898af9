package handlers

import (
	"bytes"
	"fmt"
	"html/template"
	"net/http"
	"path/filepath"

	"bambu-slicer-advisor/internal/logger"
	"bambu-slicer-advisor/internal/models"
	"bambu-slicer-advisor/internal/services"

	"github.com/gin-gonic/gin"
)

// PageData 用於傳遞給 HTML 範本的數據
type PageData struct {
	AppName            string
	Filaments          []string
	DefaultFilament    string
	DefaultTemperature float32
	MaxUploadMB        int64
	ModelDisplay       string
	Session            services.SessionSnapshot
	Analyzing          bool
}

// PageHandler 顯示上傳頁面與目前 session 的結果
type PageHandler struct {
	service    *services.AnalyzeService
	tpl        *template.Template
	appName    string
	cookieName string
}

// NewPageHandler 從 templateBasePath 載入 index.html
func NewPageHandler(service *services.AnalyzeService, templateBasePath string, appName string, cookieName string) (*PageHandler, error) {
	if service == nil {
		return nil, fmt.Errorf("PageHandler：AnalyzeService 不得為空")
	}
	tplPath := filepath.Join(templateBasePath, "index.html")
	tpl, err := template.New("index.html").Funcs(template.FuncMap{
		"statusLabel": statusLabel,
	}).ParseFiles(tplPath)
	if err != nil {
		return nil, fmt.Errorf("無法解析範本 '%s': %w", tplPath, err)
	}
	logger.WithField("template", tplPath).Info("資訊：[PageHandler] 範本載入完成。")
	return &PageHandler{service: service, tpl: tpl, appName: appName, cookieName: cookieName}, nil
}

// Index GET /
func (h *PageHandler) Index(c *gin.Context) {
	id := sessionID(c, h.cookieName)
	snap := h.service.Sessions().Snapshot(id)

	data := PageData{
		AppName:            h.appName,
		Filaments:          h.service.Catalog().Names(),
		DefaultFilament:    h.service.DefaultFilament(),
		DefaultTemperature: h.service.DefaultTemperature(),
		MaxUploadMB:        h.service.Ingestor().MaxBytes() >> 20,
		ModelDisplay:       h.service.ModelDisplay(),
		Session:            snap,
		Analyzing:          snap.Status == models.StatusAnalyzing,
	}
	if snap.Filament != "" {
		data.DefaultFilament = snap.Filament
	}

	// 先渲染到緩衝區，範本錯誤時才能回傳 500
	var buf bytes.Buffer
	if err := h.tpl.Execute(&buf, data); err != nil {
		logger.WithError(err).Error("錯誤：[PageHandler] 渲染範本失敗")
		c.String(http.StatusInternalServerError, "無法渲染頁面")
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", buf.Bytes())
}

func statusLabel(status models.AnalysisStatus) string {
	switch status {
	case models.StatusAnalyzing:
		return "分析中"
	case models.StatusSuccess:
		return "分析完成"
	case models.StatusError:
		return "分析失败"
	default:
		return "等待上传"
	}
}
