package analysis

import "github.com/google/generative-ai-go/genai"

// 回應分類固定為五個 Bambu Studio 分頁
var CategoryTaxonomy = []string{"质量", "强度", "速度", "支撑", "冷却"}

// ResponseSchema 回傳送給 Gemini 的結構化輸出 schema，欄位需與 models.AnalysisResult 一致
// 每個物件的欄位皆列在 Required 中
func ResponseSchema() *genai.Schema {
	setting := &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"name": {
				Type:        genai.TypeString,
				Description: "Bambu Studio 中该参数的中文名称，例如 层高、墙层数、支撑阈值角度。",
			},
			"value": {
				Type:        genai.TypeString,
				Description: "推荐的具体数值，需精确，例如 \"0.20mm 标准\"、\"Gyroid\"、\"Tree(auto)\"。",
			},
			"reason": {
				Type:        genai.TypeString,
				Description: "推荐这个数值的理由，不得为空。",
			},
		},
		Required: []string{"name", "value", "reason"},
	}

	category := &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"categoryName": {
				Type:        genai.TypeString,
				Description: "Bambu Studio 的分页名称：质量、强度、速度、支撑、冷却 之一。",
			},
			"settings": {
				Type:        genai.TypeArray,
				Description: "该分页下至少一条参数建议。",
				Items:       setting,
			},
		},
		Required: []string{"categoryName", "settings"},
	}

	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"isFailedPrint": {
				Type:        genai.TypeBoolean,
				Description: "图片是失败的打印件 (如拉丝、炒面、翘边、层间分离) 时为 true；数字模型截图或成功的打印件为 false。",
			},
			"modelName": {
				Type:        genai.TypeString,
				Description: "识别出的物体的简短中文名称。",
			},
			"materialSuggestion": {
				Type:        genai.TypeString,
				Description: "建议使用的耗材 (PLA、PETG、ABS 等)，必须基于耗材的物理特性以及模型几何或可见特征，用中文说明。",
			},
			"summary": {
				Type:        genai.TypeString,
				Description: "分析结论与整体建议的简短中文摘要。",
			},
			"categories": {
				Type:        genai.TypeArray,
				Description: "按 Bambu Studio 分页分组的参数建议；不需要调整时可为空数组。",
				Items:       category,
			},
			"warnings": {
				Type:        genai.TypeArray,
				Description: "关于几何结构、悬垂、热床附着等方面的具体中文警告；没有时为空数组。",
				Items:       &genai.Schema{Type: genai.TypeString},
			},
		},
		Required: []string{"isFailedPrint", "modelName", "materialSuggestion", "summary", "categories", "warnings"},
	}
}
