package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"bambu-slicer-advisor/internal/analysis"
	"bambu-slicer-advisor/internal/clients/gemini"
	"bambu-slicer-advisor/internal/config"
	"bambu-slicer-advisor/internal/ingest"
	"bambu-slicer-advisor/internal/logger"
	"bambu-slicer-advisor/internal/scheduler"
	"bambu-slicer-advisor/internal/services"
	"bambu-slicer-advisor/internal/web"

	"github.com/gin-gonic/gin"
)

func main() {
	cfg, err := config.Load("./configs", "config")
	if err != nil {
		logger.WithError(err).Fatal("錯誤：無法載入設定")
	}
	logger.SetLevel(cfg.Log.Level)
	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx := context.Background()
	geminiClient, err := gemini.NewClient(ctx, cfg.GeminiClient.APIKey, cfg.GeminiClient.Model)
	if err != nil {
		logger.WithError(err).Fatal("錯誤：初始化 Gemini 客戶端失敗")
	}
	defer geminiClient.Close()

	builder, err := analysis.NewBuilder(cfg.Prompts.ImageAnalysis.Versions, cfg.Prompts.ImageAnalysis.CurrentVersion)
	if err != nil {
		logger.WithError(err).Fatal("錯誤：初始化 Prompt 失敗")
	}

	sessions := services.NewSessionRegistry()
	analyzeSvc, err := services.NewAnalyzeService(cfg, ingest.New(cfg.Upload.MaxBytes), builder, geminiClient, sessions)
	if err != nil {
		logger.WithError(err).Fatal("錯誤：初始化圖片分析服務失敗")
	}

	if cfg.Scheduler.Enabled {
		logger.Info("資訊：排程器已在設定檔中啟用，正在初始化...")
		appScheduler, err := scheduler.NewScheduler(sessions, cfg.Sessions.IdleTTL, cfg.Scheduler.SweepCronSpec)
		if err != nil {
			logger.WithError(err).Fatal("錯誤：初始化排程器失敗")
		}
		appScheduler.Start()
		defer appScheduler.Stop()
	} else {
		logger.Info("資訊：排程器已在設定檔中禁用。")
	}

	router, err := web.SetupRouter(cfg, analyzeSvc)
	if err != nil {
		logger.WithError(err).Fatal("錯誤：設定 HTTP 路由失敗")
	}
	server := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: router,
	}

	go func() {
		logger.WithField("addr", server.Addr).Info("資訊：HTTP 伺服器正在監聽")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("錯誤：HTTP 伺服器監聽失敗")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("資訊：收到關閉訊號，正在關閉應用程式...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("錯誤：HTTP 伺服器優雅關閉失敗")
		return
	}
	logger.Info("資訊：HTTP 伺服器已關閉。")
	logger.Info("資訊：應用程式已成功關閉。")
}
