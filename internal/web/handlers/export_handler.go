package handlers

import (
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	apperrors "bambu-slicer-advisor/internal/errors"
	"bambu-slicer-advisor/internal/logger"
	"bambu-slicer-advisor/internal/models"
	"bambu-slicer-advisor/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"
)

const (
	settingsSheet = "切片设置"
	warningsSheet = "警告"
	xlsxMIME      = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

var exportHeaders = []string{"分类", "设置项", "建议值", "原因"}

// ExportHandler 負責把目前 session 的分析結果匯出成表格
type ExportHandler struct {
	sessions   *services.SessionRegistry
	cookieName string
	now        func() time.Time
}

// NewExportHandler 建立一個 ExportHandler 實例
func NewExportHandler(sessions *services.SessionRegistry, cookieName string) *ExportHandler {
	if sessions == nil {
		logger.Logger.Panic("ExportHandler：SessionRegistry 不得為空")
	}
	return &ExportHandler{sessions: sessions, cookieName: cookieName, now: time.Now}
}

// Export GET /api/export?format=csv|xlsx
func (h *ExportHandler) Export(c *gin.Context) {
	id := sessionID(c, h.cookieName)
	format := strings.ToLower(c.DefaultQuery("format", "csv"))
	log := logger.WithFields(logrus.Fields{"session_id": id, "format": format})

	snap := h.sessions.Snapshot(id)
	if snap.Result == nil {
		respondError(c, apperrors.NewNotFoundError("目前沒有可匯出的分析結果", nil))
		return
	}

	filename := fmt.Sprintf("bambu_settings_%s.%s", h.now().Format("2006-01-02"), format)
	switch format {
	case "csv":
		c.Header("Content-Type", "text/csv; charset=utf-8")
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))
		c.Status(http.StatusOK)
		if err := writeCSV(c.Writer, snap.Result); err != nil {
			log.WithError(err).Error("錯誤：[ExportHandler] 寫入 CSV 失敗")
			return
		}
	case "xlsx":
		data, err := buildXLSX(snap.Result)
		if err != nil {
			respondError(c, apperrors.NewInternalError("產生 XLSX 失敗", err))
			return
		}
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))
		c.Data(http.StatusOK, xlsxMIME, data)
	default:
		respondError(c, apperrors.NewValidationError(fmt.Sprintf("不支援的匯出格式 '%s'，可用: csv, xlsx", format), nil))
		return
	}
	log.WithField("settings", snap.Result.SettingCount()).Info("資訊：[ExportHandler] 匯出完成")
}

// settingRows 每個設置一列
func settingRows(result *models.AnalysisResult) [][]string {
	rows := make([][]string, 0, result.SettingCount()+len(result.Warnings))
	for _, category := range result.Categories {
		for _, s := range category.Settings {
			rows = append(rows, []string{category.CategoryName, s.Name, s.Value, s.Reason})
		}
	}
	return rows
}

func writeCSV(w io.Writer, result *models.AnalysisResult) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(exportHeaders); err != nil {
		return err
	}
	if err := writer.WriteAll(settingRows(result)); err != nil {
		return err
	}
	for _, warning := range result.Warnings {
		if err := writer.Write([]string{warningsSheet, "", "", warning}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func buildXLSX(result *models.AnalysisResult) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", settingsSheet); err != nil {
		return nil, err
	}
	if err := writeSheetRows(f, settingsSheet, exportHeaders, settingRows(result)); err != nil {
		return nil, err
	}

	if _, err := f.NewSheet(warningsSheet); err != nil {
		return nil, err
	}
	warningRows := make([][]string, 0, len(result.Warnings)+3)
	warningRows = append(warningRows,
		[]string{"模型", result.ModelName},
		[]string{"材料建议", result.MaterialSuggestion},
		[]string{"总结", result.Summary},
	)
	for _, w := range result.Warnings {
		warningRows = append(warningRows, []string{warningsSheet, w})
	}
	if err := writeSheetRows(f, warningsSheet, []string{"项目", "内容"}, warningRows); err != nil {
		return nil, err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeSheetRows(f *excelize.File, sheet string, headers []string, rows [][]string) error {
	all := append([][]string{headers}, rows...)
	for i, row := range all {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		values := make([]interface{}, len(row))
		for j, v := range row {
			values[j] = v
		}
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return err
		}
	}
	return nil
}
