package config

import (
	"fmt"
	"strings"
	"time"

	"bambu-slicer-advisor/internal/analysis"
	"bambu-slicer-advisor/internal/logger"
	"bambu-slicer-advisor/internal/models"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// ImageAnalysisPrompts 圖片分析 Prompt 的版本設定
type ImageAnalysisPrompts struct {
	CurrentVersion string            `mapstructure:"currentVersion"`
	Versions       map[string]string `mapstructure:"versions"`
}

// PromptConfig 所有 Prompt 設定
type PromptConfig struct {
	ImageAnalysis ImageAnalysisPrompts `mapstructure:"imageAnalysis"`
}

// SchedulerConfig 排程設定
type SchedulerConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	SweepCronSpec string `mapstructure:"sweepCronSpec"`
}

// Config 應用程式設定
type Config struct {
	AppName      string             `mapstructure:"appName"`
	Server       ServerConfig       `mapstructure:"server"`
	GeminiClient GeminiClientConfig `mapstructure:"geminiClient"`
	Analysis     AnalysisConfig     `mapstructure:"analysis"`
	Upload       UploadConfig       `mapstructure:"upload"`
	Prompts      PromptConfig       `mapstructure:"prompts"`
	Sessions     SessionConfig      `mapstructure:"sessions"`
	Scheduler    SchedulerConfig    `mapstructure:"scheduler"`
	Log          LogConfig          `mapstructure:"log"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	RequestTimeout  time.Duration `mapstructure:"requestTimeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdownTimeout"`
	TemplatePath    string        `mapstructure:"templatePath"`
}

type GeminiClientConfig struct {
	APIKey string `mapstructure:"apiKey"`
	Model  string `mapstructure:"model"`
}

// AnalysisConfig 耗材與推論參數
// StrictFilament 為 true 時只接受清單內的耗材
type AnalysisConfig struct {
	DefaultTemperature float32  `mapstructure:"defaultTemperature"`
	DefaultFilament    string   `mapstructure:"defaultFilament"`
	Filaments          []string `mapstructure:"filaments"`
	StrictFilament     bool     `mapstructure:"strictFilament"`
	ModelDisplay       string   `mapstructure:"modelDisplay"`
}

type UploadConfig struct {
	MaxBytes int64 `mapstructure:"maxBytes"`
}

type SessionConfig struct {
	IdleTTL    time.Duration `mapstructure:"idleTTL"`
	CookieName string        `mapstructure:"cookieName"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

// Load 從設定檔與環境變數載入設定
func Load(configPath string, configName string) (*Config, error) {
	return LoadWithFlags(configPath, configName, nil, nil)
}

// LoadWithFlags 與 Load 相同，另外把命令列旗標綁定到設定鍵 (key: 設定鍵, value: 旗標名稱)
// 旗標只有在使用者明確指定時才會覆蓋設定檔
func LoadWithFlags(configPath string, configName string, flags *pflag.FlagSet, bindings map[string]string) (*Config, error) {
	// .env 不存在時忽略
	_ = godotenv.Load()

	v := viper.New()
	v.AddConfigPath(configPath)
	v.SetConfigName(configName)
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("geminiClient.apiKey", "GEMINI_API_KEY", "API_KEY"); err != nil {
		return nil, fmt.Errorf("綁定 Gemini API Key 環境變數失敗: %w", err)
	}
	if err := v.BindEnv("log.level", "LOG_LEVEL"); err != nil {
		return nil, fmt.Errorf("綁定 LOG_LEVEL 環境變數失敗: %w", err)
	}

	// 設定預設值
	v.SetDefault("appName", "Bambu-Slicer-Advisor")
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.requestTimeout", "2m")
	v.SetDefault("server.shutdownTimeout", "30s")
	v.SetDefault("server.templatePath", "internal/web/templates")
	v.SetDefault("geminiClient.apiKey", "")
	v.SetDefault("geminiClient.model", "gemini-2.5-flash")
	v.SetDefault("analysis.defaultTemperature", 0.4)
	v.SetDefault("analysis.defaultFilament", "PLA")
	v.SetDefault("analysis.filaments", models.DefaultFilaments)
	v.SetDefault("analysis.strictFilament", true)
	v.SetDefault("analysis.modelDisplay", "Gemini")
	v.SetDefault("upload.maxBytes", 20<<20)
	v.SetDefault("prompts.imageAnalysis.currentVersion", analysis.DefaultPromptVersion)
	v.SetDefault("sessions.idleTTL", "30m")
	v.SetDefault("sessions.cookieName", "bambu_session")
	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.sweepCronSpec", "0 */5 * * * *")
	v.SetDefault("log.level", "info")

	if flags != nil {
		for key, flagName := range bindings {
			flag := flags.Lookup(flagName)
			if flag == nil {
				return nil, fmt.Errorf("找不到命令列旗標 '%s'", flagName)
			}
			if err := v.BindPFlag(key, flag); err != nil {
				return nil, fmt.Errorf("綁定命令列旗標 '%s' 失敗: %w", flagName, err)
			}
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			logger.Warn("警告：找不到設定檔，將使用預設值和環境變數。")
		} else {
			return nil, fmt.Errorf("讀取設定檔時發生錯誤: %w", err)
		}
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("無法解析設定檔到結構: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.GeminiClient.APIKey == "" {
		logger.Warn("警告：Gemini API Key 未設定！")
	}
	if !v.IsSet("prompts.imageAnalysis.versions") {
		logger.Info("資訊：未設定 Prompt 版本，使用內建 Prompt。")
	}

	logger.WithField("appName", cfg.AppName).Info("資訊：設定載入成功。")
	return &cfg, nil
}

// Validate 檢查設定值是否合理
func (c *Config) Validate() error {
	if c.Analysis.DefaultTemperature < 0 || c.Analysis.DefaultTemperature > 1 {
		return fmt.Errorf("analysis.defaultTemperature 必須介於 0 與 1 之間，目前為 %.2f", c.Analysis.DefaultTemperature)
	}
	catalog := models.NewFilamentCatalog(c.Analysis.Filaments)
	if len(catalog.Names()) == 0 {
		return fmt.Errorf("analysis.filaments 不得為空")
	}
	if c.Analysis.StrictFilament && !catalog.Contains(c.Analysis.DefaultFilament) {
		return fmt.Errorf("analysis.defaultFilament '%s' 不在 analysis.filaments 清單中", c.Analysis.DefaultFilament)
	}
	if c.Upload.MaxBytes <= 0 {
		return fmt.Errorf("upload.maxBytes 必須大於 0")
	}
	if c.Sessions.IdleTTL <= 0 {
		return fmt.Errorf("sessions.idleTTL 必須大於 0")
	}
	return nil
}
