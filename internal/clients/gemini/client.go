package gemini

import (
	"context"
	"fmt"
	"strings"

	"bambu-slicer-advisor/internal/analysis"
	apperrors "bambu-slicer-advisor/internal/errors"
	"bambu-slicer-advisor/internal/logger"
	"bambu-slicer-advisor/internal/models"

	"github.com/google/generative-ai-go/genai"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/option"
)

// DefaultModelName 未設定模型名稱時使用
const DefaultModelName = "gemini-2.5-flash"

// generator 為 *genai.GenerativeModel 的最小介面，方便測試時替換
type generator interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

// Client 結構用於與 Gemini API 互動
type Client struct {
	sdk       *genai.Client
	modelName string
	// 每次呼叫都以該次的 GenerationConfig 建立新的 model，避免共用狀態
	newModel func(cfg genai.GenerationConfig) generator
}

// NewClient 建立一個 Gemini 客戶端實例
func NewClient(ctx context.Context, apiKey string, modelName string) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("Gemini API Key 不得為空")
	}
	modelName = strings.TrimSpace(modelName)
	if modelName == "" {
		modelName = DefaultModelName
		logger.WithField("model", modelName).Warn("警告：[Gemini Client] 未提供模型名稱，使用預設值。")
	}

	sdk, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("無法建立 Gemini GenAI SDK 客戶端: %w", err)
	}
	logger.WithField("model", modelName).Info("資訊：[Gemini Client] 圖片分析模型初始化成功。")

	return &Client{
		sdk:       sdk,
		modelName: modelName,
		newModel: func(cfg genai.GenerationConfig) generator {
			m := sdk.GenerativeModel(modelName)
			m.GenerationConfig = cfg
			return m
		},
	}, nil
}

// ModelName 回傳使用中的模型名稱
func (c *Client) ModelName() string {
	return c.modelName
}

// Close 關閉底層 SDK 連線
func (c *Client) Close() error {
	if c.sdk != nil {
		logger.Info("資訊：[Gemini Client] 正在關閉 Gemini 連線...")
		return c.sdk.Close()
	}
	return nil
}

// Analyze 對 Gemini 發出一次請求並回傳通過驗證的結果
// 不重試、不補預設值；任何失敗都不會產生部分結果
func (c *Client) Analyze(ctx context.Context, req analysis.Request) (*models.AnalysisResult, error) {
	log := logger.WithFields(logrus.Fields{
		"model":          c.modelName,
		"filament":       req.Filament,
		"mime_type":      req.Image.MIMEType,
		"image_bytes":    len(req.Image.Data),
		"temperature":    req.Temperature,
		"prompt_version": req.PromptVersion,
	})
	log.WithField("prompt_preview", firstNChars(req.Instruction, 100)).Info("資訊：[Gemini Client] Analyze - 正在向 Gemini API 發送圖片分析請求...")

	temperature := req.Temperature
	model := c.newModel(genai.GenerationConfig{
		Temperature:      &temperature,
		ResponseMIMEType: "application/json",
		ResponseSchema:   req.Schema,
	})
	requestParts := []genai.Part{
		genai.Text(req.Instruction),
		genai.Blob{MIMEType: req.Image.MIMEType, Data: req.Image.Data},
	}

	resp, err := model.GenerateContent(ctx, requestParts...)
	if err != nil {
		log.WithError(err).Error("錯誤：[Gemini Client] Analyze - GenerateContent 失敗")
		return nil, apperrors.NewTransportFailureError("Gemini API 圖片分析請求失敗", err)
	}

	rawText, err := responseText(resp)
	if err != nil {
		log.WithError(err).Warn("警告：[Gemini Client] Analyze - 回應沒有內容")
		return nil, err
	}
	log.WithField("raw_length", len(rawText)).Debug("資訊：[Gemini Client] Analyze - 收到 API 的原始文字回應")

	result, err := models.DecodeAnalysisResult([]byte(stripCodeFences(rawText)))
	if err != nil {
		log.WithError(err).WithField("raw_text", firstNChars(rawText, 500)).Error("錯誤：[Gemini Client] Analyze - 回應不符合宣告的結構")
		return nil, apperrors.NewMalformedResponseError("Gemini API 回應無法解析為分析結果", err)
	}

	log.WithFields(logrus.Fields{
		"is_failed_print": result.IsFailedPrint,
		"categories":      len(result.Categories),
		"settings":        result.SettingCount(),
		"warnings":        len(result.Warnings),
	}).Info("資訊：[Gemini Client] Analyze - JSON 回應解析成功。")
	return result, nil
}

// responseText 串接第一個候選回應中的所有文字 Part
func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		if resp != nil && resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != genai.BlockReasonUnspecified {
			return "", apperrors.NewEmptyResponseError(
				fmt.Sprintf("Gemini API 拒絕了請求，原因: %s", resp.PromptFeedback.BlockReason.String()), nil)
		}
		return "", apperrors.NewEmptyResponseError("Gemini API 回應無效或為空 (nil response or no candidates)", nil)
	}

	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		if candidate.FinishReason != genai.FinishReasonStop && candidate.FinishReason != genai.FinishReasonUnspecified {
			for _, rating := range candidate.SafetyRatings {
				logger.WithFields(logrus.Fields{
					"category":    rating.Category.String(),
					"probability": rating.Probability.String(),
				}).Warn("警告：[Gemini Client] 安全評級")
			}
			return "", apperrors.NewEmptyResponseError(
				fmt.Sprintf("Gemini API 回應內容被阻止，原因: %s", candidate.FinishReason.String()), nil)
		}
		return "", apperrors.NewEmptyResponseError(
			fmt.Sprintf("Gemini API 回應沒有內容 (FinishReason: %s)", candidate.FinishReason.String()), nil)
	}

	var sb strings.Builder
	for _, part := range candidate.Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			sb.WriteString(string(txt))
		} else {
			logger.WithField("part_type", fmt.Sprintf("%T", part)).Warn("警告：[Gemini Client] 收到非預期的 Part 類型")
		}
	}
	text := sb.String()
	if strings.TrimSpace(text) == "" {
		return "", apperrors.NewEmptyResponseError("Gemini API 回傳的文字內容為空", nil)
	}
	return text, nil
}

// stripCodeFences 移除可能的 markdown 代碼塊標記與 BOM，其餘內容不做修補
func stripCodeFences(raw string) string {
	cleaned := strings.TrimSpace(strings.TrimPrefix(raw, "\uFEFF"))
	if strings.HasPrefix(cleaned, "```") {
		cleaned = strings.TrimPrefix(cleaned, "```json")
		cleaned = strings.TrimPrefix(cleaned, "```")
		cleaned = strings.TrimSuffix(strings.TrimSpace(cleaned), "```")
	}
	return strings.TrimSpace(cleaned)
}

// firstNChars 取前 n 個字元 (以 rune 計)，供日誌使用
func firstNChars(s string, n int) string {
	runes := []rune(s)
	if n > 0 && len(runes) > n {
		return string(runes[:n])
	}
	return s
}
