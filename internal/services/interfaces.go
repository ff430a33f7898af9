package services

import (
	"context"

	"bambu-slicer-advisor/internal/analysis"
	"bambu-slicer-advisor/internal/models"
)

// ImageAnalyzer 推論客戶端需要提供的方法 (由 gemini.Client 實作)
type ImageAnalyzer interface {
	Analyze(ctx context.Context, req analysis.Request) (*models.AnalysisResult, error)
}

// RequestBuilder 將驗證後的輸入組合成推論請求 (由 analysis.Builder 實作)
type RequestBuilder interface {
	Build(req models.AnalysisRequest) (analysis.Request, error)
}
