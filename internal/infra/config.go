package infra

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

const (
	ProviderGemini    = "gemini"
	ProviderQwen      = "qwen"
	ProviderSynthetic = "synthetic"
)

// Config represents application configuration loaded from environment
// variables, optionally layered over a file named by CONFIG_PATH.
type Config struct {
	AppEnv string `yaml:"app_env" env:"APP_ENV" env-default:"development"`
	Port   string `yaml:"port" env:"PORT" env-default:"8080"`

	EditorProvider string        `yaml:"editor_provider" env:"EDITOR_PROVIDER" env-default:"gemini"`
	EditorTimeout  time.Duration `yaml:"editor_timeout" env:"EDITOR_TIMEOUT" env-default:"90s"`
	GeminiAPIKey   string        `yaml:"gemini_api_key" env:"GEMINI_API_KEY"`
	GeminiModel    string        `yaml:"gemini_model" env:"GEMINI_MODEL" env-default:"gemini-2.5-flash-image-preview"`
	GeminiBaseURL  string        `yaml:"gemini_base_url" env:"GEMINI_BASE_URL" env-default:"https://generativelanguage.googleapis.com/v1beta"`
	QwenAPIKey     string        `yaml:"qwen_api_key" env:"QWEN_API_KEY"`
	QwenModel      string        `yaml:"qwen_model" env:"QWEN_MODEL" env-default:"qwen-image-edit"`
	QwenBaseURL    string        `yaml:"qwen_base_url" env:"QWEN_BASE_URL" env-default:"https://dashscope-intl.aliyuncs.com/api/v1"`

	SyntheticLatency time.Duration `yaml:"synthetic_latency" env:"SYNTHETIC_LATENCY" env-default:"1s"`

	HTTPReadTimeout    time.Duration `yaml:"http_read_timeout" env:"HTTP_READ_TIMEOUT" env-default:"30s"`
	HTTPWriteTimeout   time.Duration `yaml:"http_write_timeout" env:"HTTP_WRITE_TIMEOUT" env-default:"120s"`
	HTTPIdleTimeout    time.Duration `yaml:"http_idle_timeout" env:"HTTP_IDLE_TIMEOUT" env-default:"60s"`
	RateLimitPerMin    int           `yaml:"rate_limit_per_minute" env:"RATE_LIMIT_PER_MINUTE" env-default:"30"`
	CORSAllowedOrigins []string      `yaml:"cors_allowed_origins" env:"CORS_ALLOWED_ORIGINS" env-separator:","`
	MaxUploadBytes     int64         `yaml:"max_upload_bytes" env:"MAX_UPLOAD_BYTES" env-default:"10485760"`

	TemplatesPath    string        `yaml:"templates_path" env:"TEMPLATES_PATH"`
	SessionTTL       time.Duration `yaml:"session_ttl" env:"SESSION_TTL" env-default:"30m"`
	SessionSweepSpec string        `yaml:"session_sweep_spec" env:"SESSION_SWEEP_SPEC" env-default:"@every 1m"`

	TelegramBotToken string `yaml:"telegram_bot_token" env:"TELEGRAM_BOT_TOKEN"`
}

// LoadConfig loads configuration from the environment (and CONFIG_PATH when
// set) and validates the selected editor provider.
func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if path := strings.TrimSpace(os.Getenv("CONFIG_PATH")); path != "" {
		if err := cleanenv.ReadConfig(path, cfg); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, fmt.Errorf("read env: %w", err)
	}

	cfg.EditorProvider = strings.ToLower(strings.TrimSpace(cfg.EditorProvider))
	cfg.GeminiAPIKey = strings.TrimSpace(cfg.GeminiAPIKey)
	cfg.QwenAPIKey = strings.TrimSpace(cfg.QwenAPIKey)
	cfg.CORSAllowedOrigins = normalizeOrigins(cfg.CORSAllowedOrigins)

	switch cfg.EditorProvider {
	case ProviderGemini:
		if cfg.GeminiAPIKey == "" {
			return nil, fmt.Errorf("GEMINI_API_KEY is required when EDITOR_PROVIDER=gemini")
		}
	case ProviderQwen:
		if cfg.QwenAPIKey == "" {
			return nil, fmt.Errorf("QWEN_API_KEY is required when EDITOR_PROVIDER=qwen")
		}
	case ProviderSynthetic:
	default:
		return nil, fmt.Errorf("EDITOR_PROVIDER must be one of gemini, qwen, synthetic (got %q)", cfg.EditorProvider)
	}

	if cfg.RateLimitPerMin <= 0 {
		cfg.RateLimitPerMin = 30
	}
	if cfg.SessionTTL <= 0 {
		return nil, fmt.Errorf("SESSION_TTL must be positive")
	}

	return cfg, nil
}

// Description renders the supported environment variables for --help output.
func Description() string {
	desc, err := cleanenv.GetDescription(&Config{}, nil)
	if err != nil {
		return ""
	}
	return desc
}

func normalizeOrigins(origins []string) []string {
	seen := make(map[string]struct{}, len(origins))
	out := make([]string, 0, len(origins))
	for _, origin := range origins {
		origin = strings.TrimRight(strings.TrimSpace(origin), "/")
		if origin == "" {
			continue
		}
		if origin != "*" {
			if u, err := url.Parse(origin); err != nil || u.Scheme == "" || u.Host == "" {
				continue
			}
		}
		if _, ok := seen[origin]; ok {
			continue
		}
		seen[origin] = struct{}{}
		out = append(out, origin)
	}
	return out
}
