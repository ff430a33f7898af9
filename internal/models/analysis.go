package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// BambuSetting 單一 Bambu Studio 參數建議，三個欄位皆必填且不得為空
type BambuSetting struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Reason string `json:"reason"`
}

// SettingCategory 對應 Bambu Studio 的一個分頁 (質量、強度、速度、支撐、冷卻)
type SettingCategory struct {
	CategoryName string         `json:"categoryName"`
	Settings     []BambuSetting `json:"settings"`
}

// AnalysisResult 模型回傳的結構化分析結果
// categories 與 warnings 的順序即為顯示順序
type AnalysisResult struct {
	IsFailedPrint      bool              `json:"isFailedPrint"`
	ModelName          string            `json:"modelName"`
	MaterialSuggestion string            `json:"materialSuggestion"`
	Summary            string            `json:"summary"`
	Categories         []SettingCategory `json:"categories"`
	Warnings           []string          `json:"warnings"`
}

// Validate 檢查不變條件：每個分類至少一項設定，每項設定的 name/value/reason 皆不為空
func (r *AnalysisResult) Validate() error {
	if r == nil {
		return errors.New("分析結果為 nil")
	}
	for i, c := range r.Categories {
		if strings.TrimSpace(c.CategoryName) == "" {
			return fmt.Errorf("categories[%d].categoryName 為空", i)
		}
		if len(c.Settings) == 0 {
			return fmt.Errorf("分類 '%s' 沒有任何設定", c.CategoryName)
		}
		for j, s := range c.Settings {
			switch {
			case strings.TrimSpace(s.Name) == "":
				return fmt.Errorf("categories[%d].settings[%d].name 為空", i, j)
			case strings.TrimSpace(s.Value) == "":
				return fmt.Errorf("設定 '%s' 的 value 為空", s.Name)
			case strings.TrimSpace(s.Reason) == "":
				return fmt.Errorf("設定 '%s' 缺少 reason", s.Name)
			}
		}
	}
	return nil
}

// FindCategory 以名稱 (不分大小寫、包含比對) 尋找分類
func (r *AnalysisResult) FindCategory(keyword string) (SettingCategory, bool) {
	keyword = strings.ToLower(strings.TrimSpace(keyword))
	if r == nil || keyword == "" {
		return SettingCategory{}, false
	}
	for _, c := range r.Categories {
		if strings.Contains(strings.ToLower(c.CategoryName), keyword) {
			return c, true
		}
	}
	return SettingCategory{}, false
}

// SettingCount 回傳所有分類的設定總數
func (r *AnalysisResult) SettingCount() int {
	if r == nil {
		return 0
	}
	n := 0
	for _, c := range r.Categories {
		n += len(c.Settings)
	}
	return n
}

// wire* 以指標欄位接收 JSON，用來分辨「缺少欄位」與「零值」
type wireSetting struct {
	Name   *string `json:"name"`
	Value  *string `json:"value"`
	Reason *string `json:"reason"`
}

type wireCategory struct {
	CategoryName *string        `json:"categoryName"`
	Settings     *[]wireSetting `json:"settings"`
}

type wireResult struct {
	IsFailedPrint      *bool           `json:"isFailedPrint"`
	ModelName          *string         `json:"modelName"`
	MaterialSuggestion *string         `json:"materialSuggestion"`
	Summary            *string         `json:"summary"`
	Categories         *[]wireCategory `json:"categories"`
	Warnings           *[]string       `json:"warnings"`
}

// DecodeAnalysisResult 嚴格解析模型回傳的 JSON
// 任何缺少的必填欄位、未知欄位、多餘內容或違反不變條件都會回傳錯誤，不會產生部分結果
func DecodeAnalysisResult(data []byte) (*AnalysisResult, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var w wireResult
	if err := dec.Decode(&w); err != nil {
		return nil, fmt.Errorf("JSON 解析失敗: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("JSON 物件之後仍有多餘內容")
	}

	var missing []string
	if w.IsFailedPrint == nil {
		missing = append(missing, "isFailedPrint")
	}
	if w.ModelName == nil {
		missing = append(missing, "modelName")
	}
	if w.MaterialSuggestion == nil {
		missing = append(missing, "materialSuggestion")
	}
	if w.Summary == nil {
		missing = append(missing, "summary")
	}
	if w.Categories == nil {
		missing = append(missing, "categories")
	}
	if w.Warnings == nil {
		missing = append(missing, "warnings")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("缺少必填欄位: %s", strings.Join(missing, ", "))
	}

	result := &AnalysisResult{
		IsFailedPrint:      *w.IsFailedPrint,
		ModelName:          *w.ModelName,
		MaterialSuggestion: *w.MaterialSuggestion,
		Summary:            *w.Summary,
		Categories:         make([]SettingCategory, 0, len(*w.Categories)),
		Warnings:           append([]string{}, (*w.Warnings)...),
	}
	for i, wc := range *w.Categories {
		if wc.CategoryName == nil || wc.Settings == nil {
			return nil, fmt.Errorf("categories[%d] 缺少 categoryName 或 settings", i)
		}
		category := SettingCategory{
			CategoryName: *wc.CategoryName,
			Settings:     make([]BambuSetting, 0, len(*wc.Settings)),
		}
		for j, ws := range *wc.Settings {
			if ws.Name == nil || ws.Value == nil || ws.Reason == nil {
				return nil, fmt.Errorf("categories[%d].settings[%d] 缺少 name、value 或 reason", i, j)
			}
			category.Settings = append(category.Settings, BambuSetting{Name: *ws.Name, Value: *ws.Value, Reason: *ws.Reason})
		}
		result.Categories = append(result.Categories, category)
	}

	if err := result.Validate(); err != nil {
		return nil, err
	}
	return result, nil
}
