package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Config holds every runtime knob. Zero values are never used directly; Load fills defaults.
type Config struct {
	Port        string
	LogLevel    string
	LogFormat   string
	CORSOrigins []string

	Timezone     string
	LookbackDays int
	// LookbackPinned is set when lookback_days comes from the environment or a
	// config file rather than the built-in default. A pinned value overrides each
	// source's own lookback_days.
	LookbackPinned bool
	SourcesFile    string

	HTTPTimeout   time.Duration
	DetailTimeout time.Duration
	ImageTimeout  time.Duration
	AITimeout     time.Duration

	ScoreMode         string
	Threshold         float64
	SummaryMinContent int
	SelectMode        string

	AIProvider       string
	GeminiAPIKey     string
	GeminiModel      string
	OpenAIAPIKey     string
	OpenAIModel      string
	OpenAIURL        string
	OllamaHost       string
	OllamaModel      string
	OllamaEmbedModel string

	OCREnabled    bool
	OCRThreshold  int
	OCRLang       string
	OCRPSM        int
	TesseractPath string
	OCRMaxImages  int

	BoardWorkers    int
	FetchEngine     string
	FetchRPS        float64
	FetchMaxRetries int

	StoreDriver string
	DatabaseURL string
	SQLitePath  string

	KakaoBaseURL      string
	KakaoAppKey       string
	KakaoSecretKey    string
	KakaoSenderKey    string
	KakaoTemplateCode string

	NotionToken      string
	NotionDatabaseID string

	JWTSecret       string
	AdminSecret     string
	AdminSecretHash string
}

var defaults = map[string]any{
	"port":                "8081",
	"log_level":           "info",
	"log_format":          "text",
	"cors_origins":        "http://localhost:4200",
	"timezone":            "Asia/Seoul",
	"lookback_days":       7,
	"sources_file":        "",
	"http_timeout":        "15s",
	"detail_timeout":      "15s",
	"image_timeout":       "15s",
	"ai_timeout":          "20s",
	"score_mode":          "binary",
	"relevance_threshold": 0.7,
	"summary_min_content": 50,
	"select_mode":         "best",
	"ai_provider":         "gemini",
	"gemini_api_key":      "",
	"gemini_model":        "gemini-1.5-flash",
	"openai_api_key":      "",
	"openai_model":        "gpt-4o-mini",
	"openai_api_url":      "https://api.openai.com/v1/chat/completions",
	"ollama_host":         "http://localhost:11434",
	"ollama_model":        "qwen2.5:14b",
	"ollama_embed_model":  "nomic-embed-text",
	"ocr_enabled":         true,
	"ocr_threshold":       180,
	"ocr_lang":            "kor+eng",
	"ocr_psm":             6,
	"tesseract_path":      "tesseract",
	"ocr_max_images":      5,
	"board_workers":       4,
	"fetch_engine":        "http",
	"fetch_rps":           2.0,
	"fetch_max_retries":   3,
	"store_driver":        "none",
	"database_url":        "",
	"sqlite_path":         "campus-notice.db",
	"kakao_base_url":      "https://api-alimtalk.cloud.toast.com",
	"kakao_app_key":       "",
	"kakao_secret_key":    "",
	"kakao_sender_key":    "",
	"kakao_template_code": "send-article",
	"notion_token":        "",
	"notion_db_id":        "",
	"jwt_secret":          "",
	"admin_secret":        "",
	"admin_secret_hash":   "",
}

// Load reads .env, the environment and an optional YAML file. An empty path looks for
// $HOME/.campus-notice.yaml and silently skips it when absent.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else if home, err := homedir.Dir(); err == nil {
		v.SetConfigFile(filepath.Join(home, ".campus-notice.yaml"))
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !isMissingFile(err) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := fromViper(v)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func fromViper(v *viper.Viper) *Config {
	return &Config{
		Port:        v.GetString("port"),
		LogLevel:    v.GetString("log_level"),
		LogFormat:   v.GetString("log_format"),
		CORSOrigins: splitCSV(v.GetString("cors_origins")),

		Timezone:       v.GetString("timezone"),
		LookbackDays:   v.GetInt("lookback_days"),
		LookbackPinned: explicit(v, "lookback_days"),
		SourcesFile:    v.GetString("sources_file"),

		HTTPTimeout:   durationOrSeconds(v, "http_timeout"),
		DetailTimeout: durationOrSeconds(v, "detail_timeout"),
		ImageTimeout:  durationOrSeconds(v, "image_timeout"),
		AITimeout:     durationOrSeconds(v, "ai_timeout"),

		ScoreMode:         strings.ToLower(v.GetString("score_mode")),
		Threshold:         v.GetFloat64("relevance_threshold"),
		SummaryMinContent: v.GetInt("summary_min_content"),
		SelectMode:        strings.ToLower(v.GetString("select_mode")),

		AIProvider:       strings.ToLower(v.GetString("ai_provider")),
		GeminiAPIKey:     v.GetString("gemini_api_key"),
		GeminiModel:      v.GetString("gemini_model"),
		OpenAIAPIKey:     v.GetString("openai_api_key"),
		OpenAIModel:      v.GetString("openai_model"),
		OpenAIURL:        v.GetString("openai_api_url"),
		OllamaHost:       v.GetString("ollama_host"),
		OllamaModel:      v.GetString("ollama_model"),
		OllamaEmbedModel: v.GetString("ollama_embed_model"),

		OCREnabled:    v.GetBool("ocr_enabled"),
		OCRThreshold:  v.GetInt("ocr_threshold"),
		OCRLang:       v.GetString("ocr_lang"),
		OCRPSM:        v.GetInt("ocr_psm"),
		TesseractPath: v.GetString("tesseract_path"),
		OCRMaxImages:  v.GetInt("ocr_max_images"),

		BoardWorkers:    v.GetInt("board_workers"),
		FetchEngine:     strings.ToLower(v.GetString("fetch_engine")),
		FetchRPS:        v.GetFloat64("fetch_rps"),
		FetchMaxRetries: v.GetInt("fetch_max_retries"),

		StoreDriver: strings.ToLower(v.GetString("store_driver")),
		DatabaseURL: v.GetString("database_url"),
		SQLitePath:  v.GetString("sqlite_path"),

		KakaoBaseURL:      v.GetString("kakao_base_url"),
		KakaoAppKey:       v.GetString("kakao_app_key"),
		KakaoSecretKey:    v.GetString("kakao_secret_key"),
		KakaoSenderKey:    v.GetString("kakao_sender_key"),
		KakaoTemplateCode: v.GetString("kakao_template_code"),

		NotionToken:      v.GetString("notion_token"),
		NotionDatabaseID: strings.ReplaceAll(strings.TrimSpace(v.GetString("notion_db_id")), "-", ""),

		JWTSecret:       v.GetString("jwt_secret"),
		AdminSecret:     v.GetString("admin_secret"),
		AdminSecretHash: v.GetString("admin_secret_hash"),
	}
}

// durationOrSeconds accepts "15s" style durations and bare numbers of seconds ("15").
func durationOrSeconds(v *viper.Viper, key string) time.Duration {
	raw := strings.TrimSpace(v.GetString(key))
	if raw == "" {
		return 0
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	secs := v.GetFloat64(key)
	return time.Duration(secs * float64(time.Second))
}

// explicit reports whether key was set by the environment or the config file.
func explicit(v *viper.Viper, key string) bool {
	if v.InConfig(key) {
		return true
	}
	_, ok := os.LookupEnv(strings.ToUpper(key))
	return ok
}

func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func isMissingFile(err error) bool {
	return strings.Contains(err.Error(), "no such file")
}

// Validate rejects values the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.LookbackDays <= 0 {
		return fmt.Errorf("lookback_days must be positive, got %d", c.LookbackDays)
	}
	if math.IsNaN(c.Threshold) || c.Threshold < 0 || c.Threshold > 1 {
		return fmt.Errorf("relevance_threshold must be within [0,1], got %v", c.Threshold)
	}
	switch c.ScoreMode {
	case "binary", "scored":
	default:
		return fmt.Errorf("unknown score_mode %q", c.ScoreMode)
	}
	switch c.AIProvider {
	case "gemini", "openai", "ollama":
	default:
		return fmt.Errorf("unknown ai_provider %q", c.AIProvider)
	}
	switch c.SelectMode {
	case "best", "all":
	default:
		return fmt.Errorf("unknown select_mode %q", c.SelectMode)
	}
	switch c.StoreDriver {
	case "", "none", "postgres", "sqlite":
	default:
		return fmt.Errorf("unknown store_driver %q", c.StoreDriver)
	}
	if c.OCRThreshold < 0 || c.OCRThreshold > 255 {
		return fmt.Errorf("ocr_threshold must be within [0,255], got %d", c.OCRThreshold)
	}
	if c.BoardWorkers <= 0 {
		c.BoardWorkers = 1
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("timezone %q: %w", c.Timezone, err)
	}
	return nil
}

// Location returns the source timezone. Validate guarantees it loads.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
