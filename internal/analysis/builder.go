package analysis

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	apperrors "bambu-slicer-advisor/internal/errors"
	"bambu-slicer-advisor/internal/logger"
	"bambu-slicer-advisor/internal/models"

	"github.com/google/generative-ai-go/genai"
)

// Request 送往推論服務的一次完整請求
type Request struct {
	Instruction   string
	Image         models.EncodedImage
	Schema        *genai.Schema
	Temperature   float32
	Filament      string
	PromptVersion string
}

type promptData struct {
	Filament string
}

// Builder 依設定的 Prompt 版本組合分析請求
type Builder struct {
	tpl     *template.Template
	version string
}

// NewBuilder 解析目前版本的 Prompt 範本
// 找不到指定版本 (或內容為空) 時使用內建範本；範本語法錯誤則回傳錯誤
func NewBuilder(versions map[string]string, currentVersion string) (*Builder, error) {
	version := strings.TrimSpace(currentVersion)
	text := lookupVersion(versions, version)
	if strings.TrimSpace(text) == "" {
		if version != "" && version != DefaultPromptVersion {
			logger.WithField("version", version).Warn("警告：[AnalysisBuilder] 設定檔中找不到此 Prompt 版本或內容為空，改用內建 Prompt。")
		}
		version, text = DefaultPromptVersion, DefaultPromptTemplate
	}

	tpl, err := template.New(version).Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("無法解析 Prompt 範本 (版本: %s): %w", version, err)
	}
	logger.WithField("version", version).Info("資訊：[AnalysisBuilder] Prompt 範本載入完成。")
	return &Builder{tpl: tpl, version: version}, nil
}

// lookupVersion viper 會把 map 的 key 轉成小寫，因此兩種寫法都要查
func lookupVersion(versions map[string]string, version string) string {
	if version == "" {
		return ""
	}
	if text, ok := versions[version]; ok {
		return text
	}
	return versions[strings.ToLower(version)]
}

// Version 回傳正在使用的 Prompt 版本
func (b *Builder) Version() string {
	return b.version
}

// Instruction 產生指定耗材的指令文字；相同輸入永遠得到相同輸出
func (b *Builder) Instruction(filament string) (string, error) {
	var buf bytes.Buffer
	if err := b.tpl.Execute(&buf, promptData{Filament: filament}); err != nil {
		return "", fmt.Errorf("產生 Prompt 失敗 (版本: %s): %w", b.version, err)
	}
	return strings.TrimSpace(buf.String()), nil
}

// Build 組合指令、圖片、schema 與 temperature
func (b *Builder) Build(req models.AnalysisRequest) (Request, error) {
	if strings.TrimSpace(req.Filament) == "" {
		return Request{}, apperrors.NewValidationError("耗材不得為空", nil)
	}
	if req.SamplingTemperature < 0 || req.SamplingTemperature > 1 {
		return Request{}, apperrors.NewValidationError(fmt.Sprintf("temperature %.2f 超出範圍 [0, 1]", req.SamplingTemperature), nil)
	}
	if len(req.Image.Data) == 0 || req.Image.MIMEType == "" {
		return Request{}, apperrors.NewValidationError("圖片尚未通過驗證", nil)
	}

	instruction, err := b.Instruction(req.Filament)
	if err != nil {
		return Request{}, apperrors.NewInternalError("產生分析指令失敗", err)
	}
	return Request{
		Instruction:   instruction,
		Image:         req.Image,
		Schema:        ResponseSchema(),
		Temperature:   req.SamplingTemperature,
		Filament:      req.Filament,
		PromptVersion: b.version,
	}, nil
}
