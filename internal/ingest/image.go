package ingest

import (
	"encoding/base64"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"

	apperrors "bambu-slicer-advisor/internal/errors"
	"bambu-slicer-advisor/internal/logger"
	"bambu-slicer-advisor/internal/models"

	"github.com/gabriel-vasile/mimetype"
	"github.com/sirupsen/logrus"
)

// DefaultMaxBytes Gemini 內嵌圖片的上限
const DefaultMaxBytes int64 = 20 << 20

// SupportedMIMETypes 可送往 Gemini 的圖片格式
var SupportedMIMETypes = []string{"image/png", "image/jpeg", "image/webp", "image/heic", "image/heif"}

var extensionMIMETypes = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".webp": "image/webp",
	".heic": "image/heic",
	".heif": "image/heif",
}

// Ingestor 驗證使用者上傳的圖片並編碼，不會發出任何網路請求
type Ingestor struct {
	maxBytes int64
	allowed  map[string]bool
}

// New 建立 Ingestor；maxBytes <= 0 時使用 DefaultMaxBytes
func New(maxBytes int64) *Ingestor {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	allowed := make(map[string]bool, len(SupportedMIMETypes))
	for _, m := range SupportedMIMETypes {
		allowed[m] = true
	}
	return &Ingestor{maxBytes: maxBytes, allowed: allowed}
}

// MaxBytes 回傳單張圖片的大小上限
func (i *Ingestor) MaxBytes() int64 {
	return i.maxBytes
}

// FromBytes 驗證原始位元組與宣告的 MIME 類型，成功時回傳 base64 編碼結果
func (i *Ingestor) FromBytes(data []byte, declaredMIME string) (*models.EncodedImage, error) {
	if len(data) == 0 {
		return nil, apperrors.NewUnsupportedMediaTypeError("上傳的檔案是空的", nil)
	}
	if int64(len(data)) > i.maxBytes {
		return nil, apperrors.NewValidationError(fmt.Sprintf("圖片大小 %d bytes 超過上限 %d bytes", len(data), i.maxBytes), nil)
	}

	declared := normalizeMIME(declaredMIME)
	detected := normalizeMIME(mimetype.Detect(data).String())

	effective := declared
	if declared == "" || declared == "application/octet-stream" {
		// 沒有可信的宣告類型時改用內容偵測結果
		effective = detected
	}
	if !strings.HasPrefix(effective, "image/") || !i.allowed[effective] {
		logger.WithFields(logrus.Fields{
			"declared": declaredMIME,
			"detected": detected,
		}).Warn("警告：[Ingest] 拒絕不支援的檔案格式")
		return nil, apperrors.NewUnsupportedMediaTypeError(
			fmt.Sprintf("不支援的檔案格式 '%s'，請上傳 PNG、JPG、WEBP 或 HEIC 圖片", displayMIME(declaredMIME, detected)), nil)
	}
	// 宣告為圖片但內容明顯是文字或 PDF
	if strings.HasPrefix(detected, "text/") || detected == "application/pdf" {
		return nil, apperrors.NewUnsupportedMediaTypeError(
			fmt.Sprintf("檔案宣告為 '%s'，但內容為 '%s'", effective, detected), nil)
	}
	// 內容可辨識為其他圖片格式時以偵測結果為準
	if strings.HasPrefix(detected, "image/") && !sameFamily(effective, detected) {
		if !i.allowed[detected] {
			return nil, apperrors.NewUnsupportedMediaTypeError(
				fmt.Sprintf("檔案宣告為 '%s'，但內容為不支援的 '%s'", effective, detected), nil)
		}
		logger.WithFields(logrus.Fields{
			"declared": effective,
			"detected": detected,
		}).Warn("警告：[Ingest] 宣告類型與內容不符，改用偵測到的類型")
		effective = detected
	}

	return &models.EncodedImage{
		MIMEType: effective,
		Data:     data,
		Base64:   base64.StdEncoding.EncodeToString(data),
	}, nil
}

// FromDataURL 處理 "data:image/png;base64,..." 格式；沒有逗號時整個字串視為 base64
// explicitMIME 不為空時優先於 data URL 標頭中的類型
func (i *Ingestor) FromDataURL(dataURL string, explicitMIME string) (*models.EncodedImage, error) {
	payload := strings.TrimSpace(dataURL)
	headerMIME := ""
	if strings.HasPrefix(payload, "data:") {
		comma := strings.IndexByte(payload, ',')
		if comma < 0 {
			return nil, apperrors.NewValidationError("data URL 缺少內容", nil)
		}
		meta := payload[len("data:"):comma]
		if !strings.HasSuffix(meta, ";base64") {
			return nil, apperrors.NewValidationError("data URL 必須使用 base64 編碼", nil)
		}
		headerMIME = strings.TrimSuffix(meta, ";base64")
		payload = payload[comma+1:]
	} else if comma := strings.IndexByte(payload, ','); comma >= 0 {
		payload = payload[comma+1:]
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		if raw, rawErr := base64.RawStdEncoding.DecodeString(payload); rawErr == nil {
			data = raw
		} else {
			return nil, apperrors.NewValidationError("圖片內容不是有效的 base64", err)
		}
	}

	declared := explicitMIME
	if strings.TrimSpace(declared) == "" {
		declared = headerMIME
	}
	return i.FromBytes(data, declared)
}

// FromMultipart 讀取表單上傳的檔案
func (i *Ingestor) FromMultipart(fh *multipart.FileHeader) (*models.EncodedImage, error) {
	if fh == nil {
		return nil, apperrors.NewValidationError("缺少圖片檔案", nil)
	}
	if fh.Size > i.maxBytes {
		return nil, apperrors.NewValidationError(fmt.Sprintf("圖片大小 %d bytes 超過上限 %d bytes", fh.Size, i.maxBytes), nil)
	}
	f, err := fh.Open()
	if err != nil {
		return nil, apperrors.NewInternalError("無法開啟上傳的檔案", err)
	}
	defer f.Close()

	data, err := i.readLimited(f)
	if err != nil {
		return nil, err
	}
	declared := fh.Header.Get("Content-Type")
	if declared == "" {
		declared = extensionMIMETypes[strings.ToLower(filepath.Ext(fh.Filename))]
	}
	return i.FromBytes(data, declared)
}

// FromFile 讀取本機圖片檔，宣告類型由副檔名推得
func (i *Ingestor) FromFile(path string) (*models.EncodedImage, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, apperrors.NewValidationError(fmt.Sprintf("無法讀取圖片檔案 '%s'", path), err)
	}
	if info.IsDir() {
		return nil, apperrors.NewValidationError(fmt.Sprintf("'%s' 是目錄", path), nil)
	}
	if info.Size() > i.maxBytes {
		return nil, apperrors.NewValidationError(fmt.Sprintf("圖片大小 %d bytes 超過上限 %d bytes", info.Size(), i.maxBytes), nil)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.NewValidationError(fmt.Sprintf("無法讀取圖片檔案 '%s'", path), err)
	}
	return i.FromBytes(data, extensionMIMETypes[strings.ToLower(filepath.Ext(path))])
}

func (i *Ingestor) readLimited(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, i.maxBytes+1))
	if err != nil {
		return nil, apperrors.NewInternalError("讀取上傳的檔案失敗", err)
	}
	if int64(len(data)) > i.maxBytes {
		return nil, apperrors.NewValidationError(fmt.Sprintf("圖片大小超過上限 %d bytes", i.maxBytes), nil)
	}
	return data, nil
}

// normalizeMIME 去除參數並轉小寫；image/jpg 視為 image/jpeg
func normalizeMIME(m string) string {
	if semi := strings.IndexByte(m, ';'); semi >= 0 {
		m = m[:semi]
	}
	m = strings.ToLower(strings.TrimSpace(m))
	if m == "image/jpg" || m == "image/pjpeg" {
		return "image/jpeg"
	}
	return m
}

// sameFamily HEIC 與 HEIF 共用同一種容器，彼此不視為不符
func sameFamily(a, b string) bool {
	if a == b {
		return true
	}
	heif := map[string]bool{"image/heic": true, "image/heif": true}
	return heif[a] && heif[b]
}

func displayMIME(declared, detected string) string {
	if strings.TrimSpace(declared) != "" {
		return declared
	}
	return detected
}
