package handlers

import (
	"net/http"

	apperrors "bambu-slicer-advisor/internal/errors"
	"bambu-slicer-advisor/internal/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// SessionHeader 客戶端可用此標頭指定 session，優先於 cookie
const SessionHeader = "X-Session-ID"

// ErrorBody 錯誤回應內容
type ErrorBody struct {
	Type    apperrors.ErrorType `json:"type"`
	Message string              `json:"message"`
}

// ErrorResponse 所有 API 錯誤的回應格式
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// respondError 依錯誤類型決定狀態碼並寫出 JSON
func respondError(c *gin.Context, err error) {
	code := apperrors.GetStatusCode(err)
	body := ErrorBody{Type: apperrors.GetType(err), Message: err.Error()}
	if appErr, ok := apperrors.As(err); ok {
		body.Message = appErr.Message
	}

	entry := logger.WithError(err).WithFields(logrus.Fields{
		"status_code": code,
		"error_type":  body.Type,
		"path":        c.Request.URL.Path,
	})
	if code >= http.StatusInternalServerError {
		entry.Error("錯誤：[HTTP] 請求處理失敗")
	} else {
		entry.Warn("警告：[HTTP] 請求被拒絕")
	}
	c.AbortWithStatusJSON(code, ErrorResponse{Error: body})
}

// sessionID 依序從標頭、cookie 取得 session ID；都沒有時建立新的並寫入 cookie
func sessionID(c *gin.Context, cookieName string) string {
	id := c.GetHeader(SessionHeader)
	if id == "" {
		if v, err := c.Cookie(cookieName); err == nil {
			id = v
		}
	}
	if id == "" {
		id = uuid.NewString()
		c.SetCookie(cookieName, id, 0, "/", "", false, true)
		logger.WithField("session_id", id).Debug("資訊：[HTTP] 建立新的 session")
	}
	c.Header(SessionHeader, id)
	return id
}
