package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorType 代表錯誤的分類
type ErrorType string

const (
	// 上傳的檔案不是允許的圖片格式，於送出網路請求前即被拒絕
	ErrorTypeUnsupportedMediaType ErrorType = "unsupported_media_type"
	// 與 Gemini 服務的呼叫無法完成
	ErrorTypeTransportFailure ErrorType = "transport_failure"
	// 服務回應成功但沒有任何文字內容
	ErrorTypeEmptyResponse ErrorType = "empty_response"
	// 有文字內容但無法解析為宣告的結構
	ErrorTypeMalformedResponse ErrorType = "malformed_response"

	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeConflict   ErrorType = "conflict"
	ErrorTypeNotFound   ErrorType = "not_found"
	ErrorTypeInternal   ErrorType = "internal"
)

// AppError 結構化的應用程式錯誤
type AppError struct {
	Type       ErrorType `json:"type"`
	Message    string    `json:"message"`
	Details    string    `json:"details,omitempty"`
	StatusCode int       `json:"status_code"`
	Cause      error     `json:"-"`
}

// Error 實現 error 介面
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap 回傳底層錯誤
func (e *AppError) Unwrap() error {
	return e.Cause
}

func newError(t ErrorType, status int, message string, cause error) *AppError {
	return &AppError{Type: t, Message: message, StatusCode: status, Cause: cause}
}

// NewUnsupportedMediaTypeError 建立格式不支援錯誤
func NewUnsupportedMediaTypeError(message string, cause error) *AppError {
	return newError(ErrorTypeUnsupportedMediaType, http.StatusUnsupportedMediaType, message, cause)
}

// NewTransportFailureError 建立傳輸失敗錯誤，底層錯誤原樣保留
func NewTransportFailureError(message string, cause error) *AppError {
	return newError(ErrorTypeTransportFailure, http.StatusBadGateway, message, cause)
}

// NewEmptyResponseError 建立空回應錯誤
func NewEmptyResponseError(message string, cause error) *AppError {
	return newError(ErrorTypeEmptyResponse, http.StatusBadGateway, message, cause)
}

// NewMalformedResponseError 建立回應格式錯誤
func NewMalformedResponseError(message string, cause error) *AppError {
	return newError(ErrorTypeMalformedResponse, http.StatusBadGateway, message, cause)
}

// NewValidationError 建立輸入驗證錯誤
func NewValidationError(message string, cause error) *AppError {
	return newError(ErrorTypeValidation, http.StatusBadRequest, message, cause)
}

// NewConflictError 建立狀態衝突錯誤 (例如分析仍在進行中)
func NewConflictError(message string, cause error) *AppError {
	return newError(ErrorTypeConflict, http.StatusConflict, message, cause)
}

// NewNotFoundError 建立找不到資源錯誤
func NewNotFoundError(message string, cause error) *AppError {
	return newError(ErrorTypeNotFound, http.StatusNotFound, message, cause)
}

// NewInternalError 建立內部錯誤
func NewInternalError(message string, cause error) *AppError {
	return newError(ErrorTypeInternal, http.StatusInternalServerError, message, cause)
}

// WithDetails 附加細節說明後回傳同一個錯誤
func (e *AppError) WithDetails(details string) *AppError {
	e.Details = details
	return e
}

// As 從錯誤鏈中取出 *AppError
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// IsType 檢查錯誤鏈中是否有指定類型的 AppError
func IsType(err error, errorType ErrorType) bool {
	if appErr, ok := As(err); ok {
		return appErr.Type == errorType
	}
	return false
}

// GetStatusCode 從錯誤中取得 HTTP 狀態碼
func GetStatusCode(err error) int {
	if appErr, ok := As(err); ok {
		return appErr.StatusCode
	}
	return http.StatusInternalServerError
}

// GetType 從錯誤中取得分類，非 AppError 時視為內部錯誤
func GetType(err error) ErrorType {
	if appErr, ok := As(err); ok {
		return appErr.Type
	}
	return ErrorTypeInternal
}
