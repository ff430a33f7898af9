package models

// AnalysisStatus 分析流程的狀態
type AnalysisStatus string

const (
	StatusIdle      AnalysisStatus = "IDLE"
	StatusAnalyzing AnalysisStatus = "ANALYZING"
	StatusSuccess   AnalysisStatus = "SUCCESS"
	StatusError     AnalysisStatus = "ERROR"
)

// EncodedImage 通過格式驗證後、可直接送出的圖片
type EncodedImage struct {
	MIMEType string
	Data     []byte
	Base64   string
}

// AnalysisRequest 每次上傳建立一次，結果 (或錯誤) 回傳後即丟棄
type AnalysisRequest struct {
	Image               EncodedImage
	Filament            string
	SamplingTemperature float32
}
