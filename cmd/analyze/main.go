package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"bambu-slicer-advisor/internal/analysis"
	"bambu-slicer-advisor/internal/clients/gemini"
	"bambu-slicer-advisor/internal/config"
	apperrors "bambu-slicer-advisor/internal/errors"
	"bambu-slicer-advisor/internal/ingest"
	"bambu-slicer-advisor/internal/logger"
	"bambu-slicer-advisor/internal/services"

	"github.com/spf13/pflag"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func newFlagSet() *pflag.FlagSet {
	flags := pflag.NewFlagSet("analyze", pflag.ContinueOnError)
	flags.String("image", "", "要分析的圖片路徑 (PNG / JPG / WEBP / HEIC)")
	flags.String("filament", "", "耗材種類，例如 PLA、PETG；未指定時使用設定檔預設值")
	flags.Float32("temperature", 0.4, "取樣 temperature，介於 0 與 1 之間；未指定時使用設定檔預設值")
	flags.String("model", "", "覆蓋設定檔中的 Gemini 模型名稱")
	flags.String("log-level", "", "覆蓋設定檔中的日誌等級")
	flags.String("config", "./configs", "設定檔目錄")
	return flags
}

// flagBindings 只綁定不需要逐次驗證的設定鍵，耗材與 temperature 由 submitSettings 處理
var flagBindings = map[string]string{
	"geminiClient.model": "model",
	"log.level":          "log-level",
}

// submitSettings 明確指定的旗標原樣交給 AnalyzeService 驗證，未指定時沿用設定檔
func submitSettings(flags *pflag.FlagSet, cfg *config.Config) (string, services.AnalysisSettings, error) {
	filament := cfg.Analysis.DefaultFilament
	if flags.Changed("filament") {
		v, err := flags.GetString("filament")
		if err != nil {
			return "", services.AnalysisSettings{}, err
		}
		filament = v
	}

	var settings services.AnalysisSettings
	if flags.Changed("temperature") {
		v, err := flags.GetFloat32("temperature")
		if err != nil {
			return "", services.AnalysisSettings{}, err
		}
		settings.Temperature = &v
	}
	return filament, settings, nil
}

func run(args []string) int {
	flags := newFlagSet()
	if err := flags.Parse(args); err != nil {
		return 2
	}
	imagePath, _ := flags.GetString("image")
	configDir, _ := flags.GetString("config")
	if imagePath == "" {
		fmt.Fprintln(os.Stderr, "錯誤：必須以 --image 指定圖片")
		flags.PrintDefaults()
		return 2
	}

	cfg, err := config.LoadWithFlags(configDir, "config", flags, flagBindings)
	if err != nil {
		fmt.Fprintf(os.Stderr, "錯誤：無法載入設定: %v\n", err)
		return 1
	}
	logger.SetLevel(cfg.Log.Level)

	ctx := context.Background()
	ingestor := ingest.New(cfg.Upload.MaxBytes)
	img, err := ingestor.FromFile(imagePath)
	if err != nil {
		return fail(err)
	}

	client, err := gemini.NewClient(ctx, cfg.GeminiClient.APIKey, cfg.GeminiClient.Model)
	if err != nil {
		fmt.Fprintf(os.Stderr, "錯誤：%v\n", err)
		return 1
	}
	defer client.Close()

	builder, err := analysis.NewBuilder(cfg.Prompts.ImageAnalysis.Versions, cfg.Prompts.ImageAnalysis.CurrentVersion)
	if err != nil {
		fmt.Fprintf(os.Stderr, "錯誤：%v\n", err)
		return 1
	}
	svc, err := services.NewAnalyzeService(cfg, ingestor, builder, client, services.NewSessionRegistry())
	if err != nil {
		fmt.Fprintf(os.Stderr, "錯誤：%v\n", err)
		return 1
	}

	filament, settings, err := submitSettings(flags, cfg)
	if err != nil {
		return fail(err)
	}
	result, err := svc.SubmitImage(ctx, img.Data, img.MIMEType, filament, settings)
	if err != nil {
		return fail(err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(result); err != nil {
		fmt.Fprintf(os.Stderr, "錯誤：輸出結果失敗: %v\n", err)
		return 1
	}
	return 0
}

func fail(err error) int {
	fmt.Fprintf(os.Stderr, "錯誤 [%s]：%v\n", apperrors.GetType(err), err)
	return 1
}
