package web

import (
	"fmt"
	"net/http"
	"time"

	"bambu-slicer-advisor/internal/config"
	apperrors "bambu-slicer-advisor/internal/errors"
	"bambu-slicer-advisor/internal/logger"
	"bambu-slicer-advisor/internal/services"
	"bambu-slicer-advisor/internal/web/handlers"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// multipart 表單本身的額外空間
const formOverheadBytes = 1 << 20

// SetupRouter 建立 HTTP 路由
func SetupRouter(appConfig *config.Config, analyzeService *services.AnalyzeService) (http.Handler, error) {
	if appConfig == nil {
		return nil, fmt.Errorf("SetupRouter：設定不得為空")
	}
	if analyzeService == nil {
		return nil, fmt.Errorf("SetupRouter：AnalyzeService 不得為空")
	}
	cookieName := appConfig.Sessions.CookieName

	pageHandler, err := handlers.NewPageHandler(analyzeService, appConfig.Server.TemplatePath, appConfig.AppName, cookieName)
	if err != nil {
		return nil, err
	}
	analyzeHandler := handlers.NewAnalyzeHandler(analyzeService, appConfig.Server.RequestTimeout, cookieName)
	sessionHandler := handlers.NewSessionHandler(analyzeService.Sessions(), cookieName)
	exportHandler := handlers.NewExportHandler(analyzeService.Sessions(), cookieName)

	r := gin.New()
	r.Use(
		gin.Recovery(),
		requestLogger(),
		requestSizeLimiter(analyzeService.Ingestor().MaxBytes()+formOverheadBytes),
	)
	r.MaxMultipartMemory = analyzeService.Ingestor().MaxBytes() + formOverheadBytes

	r.GET("/", pageHandler.Index)
	r.GET("/health", healthCheck)

	api := r.Group("/api")
	api.GET("/filaments", handlers.Filaments(analyzeService))
	api.POST("/analyze", analyzeHandler.Analyze)
	api.GET("/status", sessionHandler.Status)
	api.POST("/reset", sessionHandler.Reset)
	api.GET("/export", exportHandler.Export)

	r.NoRoute(func(c *gin.Context) {
		logger.WithField("path", c.Request.URL.Path).Warn("警告：未匹配的路由")
		c.JSON(http.StatusNotFound, handlers.ErrorResponse{Error: handlers.ErrorBody{Type: apperrors.ErrorTypeNotFound, Message: "找不到此路徑"}})
	})

	logger.Info("資訊：HTTP 路由設定完成。")
	return r, nil
}

func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "available",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func requestSizeLimiter(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.WithFields(logrus.Fields{
			"method":      c.Request.Method,
			"path":        c.Request.URL.Path,
			"status":      c.Writer.Status(),
			"duration_ms": time.Since(start).Milliseconds(),
			"ip":          c.ClientIP(),
		}).Info("資訊：[HTTP] 請求完成")
	}
}
