package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"bambu-slicer-advisor/internal/config"
	apperrors "bambu-slicer-advisor/internal/errors"
	"bambu-slicer-advisor/internal/ingest"
	"bambu-slicer-advisor/internal/logger"
	"bambu-slicer-advisor/internal/models"

	"github.com/sirupsen/logrus"
)

// AnalysisSettings 使用者在提交時可調整的參數
// Temperature 為 nil 時使用設定檔中的預設值
type AnalysisSettings struct {
	Temperature *float32
}

// AnalyzeService 結構
type AnalyzeService struct {
	cfg      *config.Config
	ingestor *ingest.Ingestor
	builder  RequestBuilder
	analyzer ImageAnalyzer
	sessions *SessionRegistry
	catalog  *models.FilamentCatalog
}

// NewAnalyzeService 建立 AnalyzeService 實例
func NewAnalyzeService(
	cfg *config.Config,
	ingestor *ingest.Ingestor,
	builder RequestBuilder,
	analyzer ImageAnalyzer,
	sessions *SessionRegistry,
) (*AnalyzeService, error) {
	if cfg == nil {
		return nil, fmt.Errorf("AnalyzeService：設定不得為空")
	}
	if ingestor == nil {
		return nil, fmt.Errorf("AnalyzeService：圖片驗證器不得為空")
	}
	if builder == nil {
		return nil, fmt.Errorf("AnalyzeService：請求建構器不得為空")
	}
	if analyzer == nil {
		return nil, fmt.Errorf("AnalyzeService：圖片分析客戶端不得為空")
	}
	if sessions == nil {
		return nil, fmt.Errorf("AnalyzeService：SessionRegistry 不得為空")
	}
	logger.Info("資訊：AnalyzeService 初始化完成。")
	return &AnalyzeService{
		cfg:      cfg,
		ingestor: ingestor,
		builder:  builder,
		analyzer: analyzer,
		sessions: sessions,
		catalog:  models.NewFilamentCatalog(cfg.Analysis.Filaments),
	}, nil
}

// Catalog 回傳支援的耗材清單
func (s *AnalyzeService) Catalog() *models.FilamentCatalog {
	return s.catalog
}

// DefaultFilament 設定檔中的預設耗材
func (s *AnalyzeService) DefaultFilament() string {
	return s.cfg.Analysis.DefaultFilament
}

// DefaultTemperature 設定檔中的預設 temperature
func (s *AnalyzeService) DefaultTemperature() float32 {
	return s.cfg.Analysis.DefaultTemperature
}

// ModelDisplay 頁面上顯示的模型名稱
func (s *AnalyzeService) ModelDisplay() string {
	return s.cfg.Analysis.ModelDisplay
}

// Ingestor 回傳圖片驗證器，供 HTTP 上傳使用
func (s *AnalyzeService) Ingestor() *ingest.Ingestor {
	return s.ingestor
}

// Sessions 回傳 session 狀態表
func (s *AnalyzeService) Sessions() *SessionRegistry {
	return s.sessions
}

// SubmitImage 驗證原始圖片後送出分析，圖片未通過驗證時不會呼叫推論服務
func (s *AnalyzeService) SubmitImage(ctx context.Context, data []byte, mimeType string, filament string, settings AnalysisSettings) (*models.AnalysisResult, error) {
	img, err := s.ingestor.FromBytes(data, mimeType)
	if err != nil {
		return nil, err
	}
	return s.Submit(ctx, *img, filament, settings)
}

// Submit 對已驗證的圖片發出一次分析
func (s *AnalyzeService) Submit(ctx context.Context, img models.EncodedImage, filament string, settings AnalysisSettings) (*models.AnalysisResult, error) {
	canonical, err := s.ResolveFilament(filament)
	if err != nil {
		return nil, err
	}
	temperature, err := s.ResolveTemperature(settings)
	if err != nil {
		return nil, err
	}

	req, err := s.builder.Build(models.AnalysisRequest{
		Image:               img,
		Filament:            canonical,
		SamplingTemperature: temperature,
	})
	if err != nil {
		return nil, err
	}

	log := logger.WithFields(logrus.Fields{
		"filament":       canonical,
		"temperature":    temperature,
		"mime_type":      img.MIMEType,
		"prompt_version": req.PromptVersion,
	})
	log.Info("資訊：[AnalyzeService] 開始圖片分析...")
	start := time.Now()

	result, err := s.analyzer.Analyze(ctx, req)
	if err != nil {
		log.WithError(err).WithField("error_type", apperrors.GetType(err)).Error("錯誤：[AnalyzeService] 圖片分析失敗")
		return nil, err
	}
	log.WithFields(logrus.Fields{
		"duration_ms": time.Since(start).Milliseconds(),
		"settings":    result.SettingCount(),
	}).Info("資訊：[AnalyzeService] 圖片分析完成。")
	return result, nil
}

// RunSession 在指定 session 中執行一次分析並記錄結果
// 分析期間 session 被重設時，結果會被丟棄並回傳 conflict 錯誤
func (s *AnalyzeService) RunSession(ctx context.Context, sessionID string, img models.EncodedImage, filament string, settings AnalysisSettings) (*models.AnalysisResult, error) {
	// 輸入不合法時不改動 session
	canonical, err := s.ResolveFilament(filament)
	if err != nil {
		return nil, err
	}
	temperature, err := s.ResolveTemperature(settings)
	if err != nil {
		return nil, err
	}
	seq, err := s.sessions.Begin(sessionID, canonical)
	if err != nil {
		return nil, err
	}

	result, err := s.Submit(ctx, img, canonical, AnalysisSettings{Temperature: &temperature})
	if !s.sessions.Complete(sessionID, seq, result, err) {
		return nil, apperrors.NewConflictError("分析期間 session 已被重設，結果已丟棄。", err)
	}
	return result, err
}

// ResolveTemperature 未指定時使用設定檔預設值，超出 [0, 1] 回傳 validation 錯誤
func (s *AnalyzeService) ResolveTemperature(settings AnalysisSettings) (float32, error) {
	temperature := s.cfg.Analysis.DefaultTemperature
	if settings.Temperature != nil {
		temperature = *settings.Temperature
	}
	if temperature < 0 || temperature > 1 {
		return 0, apperrors.NewValidationError(fmt.Sprintf("temperature %.2f 超出範圍 [0, 1]", temperature), nil)
	}
	return temperature, nil
}

// ResolveFilament 將耗材名稱轉為清單中的標準名稱
// strictFilament 關閉時，任何非空字串都會原樣通過
func (s *AnalyzeService) ResolveFilament(filament string) (string, error) {
	filament = strings.TrimSpace(filament)
	if filament == "" {
		return "", apperrors.NewValidationError("耗材不得為空", nil)
	}
	if canonical, ok := s.catalog.Normalize(filament); ok {
		return canonical, nil
	}
	if !s.cfg.Analysis.StrictFilament {
		return filament, nil
	}
	if suggestion, ok := s.catalog.Suggest(filament); ok {
		return "", apperrors.NewValidationError(fmt.Sprintf("不支援的耗材 '%s'，您是否要選擇 '%s'？", filament, suggestion), nil)
	}
	return "", apperrors.NewValidationError(
		fmt.Sprintf("不支援的耗材 '%s'，可選擇: %s", filament, strings.Join(s.catalog.Names(), ", ")), nil)
}
