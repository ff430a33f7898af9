package models

import (
	"strings"

	"github.com/arbovm/levenshtein"
)

// DefaultFilaments 介面提供的耗材清單
var DefaultFilaments = []string{"PLA", "PLA Matte", "PETG", "ABS", "ASA", "TPU", "PC", "PA-CF"}

// FilamentCatalog 支援的耗材清單 (保持設定檔中的順序)
type FilamentCatalog struct {
	names []string
	index map[string]string
}

// NewFilamentCatalog 建立耗材清單，空白與重複項目會被忽略
func NewFilamentCatalog(names []string) *FilamentCatalog {
	c := &FilamentCatalog{index: make(map[string]string)}
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		key := filamentKey(n)
		if _, exists := c.index[key]; exists {
			continue
		}
		c.index[key] = n
		c.names = append(c.names, n)
	}
	return c
}

// Names 回傳清單副本
func (c *FilamentCatalog) Names() []string {
	return append([]string(nil), c.names...)
}

// Contains 判斷耗材是否在清單中
func (c *FilamentCatalog) Contains(name string) bool {
	_, ok := c.Normalize(name)
	return ok
}

// Normalize 將輸入轉為清單中的標準名稱，例如 "pla  matte" -> "PLA Matte"、"pa cf" -> "PA-CF"
func (c *FilamentCatalog) Normalize(name string) (string, bool) {
	canonical, ok := c.index[filamentKey(name)]
	return canonical, ok
}

// Suggest 回傳編輯距離最接近的耗材名稱；距離超過名稱長度一半時視為沒有建議
func (c *FilamentCatalog) Suggest(name string) (string, bool) {
	key := filamentKey(name)
	if key == "" || len(c.names) == 0 {
		return "", false
	}
	best, bestDist := "", -1
	for _, n := range c.names {
		d := levenshtein.Distance(key, filamentKey(n))
		if bestDist < 0 || d < bestDist {
			best, bestDist = n, d
		}
	}
	if bestDist > (len(key)+1)/2 {
		return "", false
	}
	return best, true
}

// filamentKey 忽略大小寫以及空白、連字號、底線
func filamentKey(name string) string {
	var sb strings.Builder
	for _, r := range strings.ToUpper(name) {
		switch r {
		case ' ', '-', '_', '\t':
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}
