package handlers

import (
	"net/http"

	"bambu-slicer-advisor/internal/logger"
	"bambu-slicer-advisor/internal/services"

	"github.com/gin-gonic/gin"
)

// SessionHandler 查詢與重設 session 狀態
type SessionHandler struct {
	sessions   *services.SessionRegistry
	cookieName string
}

// NewSessionHandler 建立 SessionHandler 實例
func NewSessionHandler(sessions *services.SessionRegistry, cookieName string) *SessionHandler {
	if sessions == nil {
		logger.Logger.Panic("SessionHandler：SessionRegistry 不得為空")
	}
	return &SessionHandler{sessions: sessions, cookieName: cookieName}
}

// Status GET /api/status
func (h *SessionHandler) Status(c *gin.Context) {
	id := sessionID(c, h.cookieName)
	c.JSON(http.StatusOK, h.sessions.Snapshot(id))
}

// Reset POST /api/reset，回到 IDLE 後可重新提交
func (h *SessionHandler) Reset(c *gin.Context) {
	id := sessionID(c, h.cookieName)
	snap := h.sessions.Reset(id)
	logger.WithField("session_id", id).Info("資訊：[SessionHandler] session 已重設")
	c.JSON(http.StatusOK, snap)
}
