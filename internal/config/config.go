package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino-ext/components/model/ollama"
	"github.com/cloudwego/eino/components/model"

	"github.com/mkarlsen/voiceloop/internal/service/pipeline"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server   ServerConfig
	AI       AIConfig
	Speech   SpeechConfig
	Pipeline PipelineConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	speech, err := loadSpeechConfig()
	if err != nil {
		return nil, err
	}

	pipe, err := loadPipelineConfig()
	if err != nil {
		return nil, err
	}

	return &Config{Server: server, AI: ai, Speech: speech, Pipeline: pipe}, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr   string
	WebDir string
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	webDir := getEnvOrDefault("WEB_DIR", "")

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return ServerConfig{Addr: port, WebDir: webDir}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port, WebDir: webDir}, nil
}

// Supported AI_PROVIDER values.
const (
	ProviderOllama = "ollama"
	ProviderArk    = "ark"
)

// AIConfig 描述大模型相关配置。
type AIConfig struct {
	Provider     string
	Model        string
	BaseURL      string
	SystemPrompt string
	Timeout      int

	// Ark credentials, unused for the local ollama provider.
	APIKey    string
	AccessKey string
	SecretKey string
	Region    string

	Temperature *float64
	TopP        *float64
	MaxTokens   *int
}

// NewChatModel 使用配置创建一个模型实例。
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	switch c.Provider {
	case ProviderOllama:
		return ollama.NewChatModel(ctx, &ollama.ChatModelConfig{
			BaseURL: c.BaseURL,
			Model:   c.Model,
			Timeout: time.Duration(c.Timeout) * time.Second,
		})
	case ProviderArk:
		if c.APIKey == "" && (c.AccessKey == "" || c.SecretKey == "") {
			return nil, fmt.Errorf("ark provider requires ARK_API_KEY or the ARK_ACCESS_KEY/ARK_SECRET_KEY pair")
		}

		var temperature *float32
		if c.Temperature != nil {
			val := float32(*c.Temperature)
			temperature = &val
		}

		var topP *float32
		if c.TopP != nil {
			val := float32(*c.TopP)
			topP = &val
		}

		return ark.NewChatModel(ctx, &ark.ChatModelConfig{
			BaseURL:     c.BaseURL,
			Region:      c.Region,
			APIKey:      c.APIKey,
			AccessKey:   c.AccessKey,
			SecretKey:   c.SecretKey,
			Model:       c.Model,
			MaxTokens:   c.MaxTokens,
			Temperature: temperature,
			TopP:        topP,
		})
	default:
		return nil, fmt.Errorf("unknown AI provider %q", c.Provider)
	}
}

func loadAIConfig() (AIConfig, error) {
	provider := strings.ToLower(getEnvOrDefault("AI_PROVIDER", ProviderOllama))

	temperature, err := parseOptionalFloatEnv("AI_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}

	topP, err := parseOptionalFloatEnv("AI_TOP_P")
	if err != nil {
		return AIConfig{}, err
	}

	maxTokens, err := parseOptionalIntEnv("AI_MAX_TOKENS")
	if err != nil {
		return AIConfig{}, err
	}

	timeout := 120
	if timeoutOverride, err := parseOptionalIntEnv("AI_TIMEOUT"); err != nil {
		return AIConfig{}, err
	} else if timeoutOverride != nil {
		timeout = *timeoutOverride
	}

	baseURL := strings.TrimSpace(os.Getenv("AI_BASE_URL"))
	if baseURL == "" {
		switch provider {
		case ProviderArk:
			baseURL = "https://ark.cn-beijing.volces.com/api/v3"
		default:
			baseURL = "http://localhost:11434"
		}
	}

	return AIConfig{
		Provider:     provider,
		Model:        getEnvOrDefault("AI_MODEL", "llama3.2"),
		BaseURL:      baseURL,
		SystemPrompt: strings.TrimSpace(os.Getenv("AI_SYSTEM_PROMPT")),
		Timeout:      timeout,
		APIKey:       strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		AccessKey:    strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		SecretKey:    strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		Region:       getEnvOrDefault("ARK_REGION", "cn-beijing"),
		Temperature:  temperature,
		TopP:         topP,
		MaxTokens:    maxTokens,
	}, nil
}

// SpeechConfig 描述语音引擎相关配置。
type SpeechConfig struct {
	STTBaseURL string
	TTSBaseURL string
	TTSVoice   string
	Timeout    int
}

func loadSpeechConfig() (SpeechConfig, error) {
	timeoutSeconds := 30
	if timeout, err := parseOptionalIntEnv("SPEECH_TIMEOUT"); err != nil {
		return SpeechConfig{}, err
	} else if timeout != nil {
		timeoutSeconds = *timeout
	}

	return SpeechConfig{
		STTBaseURL: getEnvOrDefault("SPEECH_STT_URL", "http://localhost:8090"),
		TTSBaseURL: getEnvOrDefault("SPEECH_TTS_URL", ""),
		TTSVoice:   getEnvOrDefault("SPEECH_TTS_VOICE", ""),
		Timeout:    timeoutSeconds,
	}, nil
}

// PipelineConfig 描述会话流水线的调优参数。
type PipelineConfig struct {
	SilenceThreshold float64
	TargetSampleRate int
	IdleIntervalMS   int
}

func loadPipelineConfig() (PipelineConfig, error) {
	cfg := PipelineConfig{
		SilenceThreshold: pipeline.DefaultSilenceThreshold,
		TargetSampleRate: pipeline.DefaultTargetRate,
		IdleIntervalMS:   int(pipeline.DefaultIdleInterval / time.Millisecond),
	}

	if threshold, err := parseOptionalFloatEnv("PIPELINE_SILENCE_THRESHOLD"); err != nil {
		return PipelineConfig{}, err
	} else if threshold != nil {
		if *threshold <= 0 || *threshold >= 1 {
			return PipelineConfig{}, fmt.Errorf("PIPELINE_SILENCE_THRESHOLD must be in (0, 1), got %v", *threshold)
		}
		cfg.SilenceThreshold = *threshold
	}

	if rate, err := parseOptionalIntEnv("PIPELINE_TARGET_RATE"); err != nil {
		return PipelineConfig{}, err
	} else if rate != nil {
		if *rate <= 0 {
			return PipelineConfig{}, fmt.Errorf("PIPELINE_TARGET_RATE must be positive, got %d", *rate)
		}
		cfg.TargetSampleRate = *rate
	}

	if idle, err := parseOptionalIntEnv("PIPELINE_IDLE_INTERVAL_MS"); err != nil {
		return PipelineConfig{}, err
	} else if idle != nil {
		if *idle <= 0 {
			return PipelineConfig{}, fmt.Errorf("PIPELINE_IDLE_INTERVAL_MS must be positive, got %d", *idle)
		}
		cfg.IdleIntervalMS = *idle
	}

	return cfg, nil
}

// Options 将流水线配置转换为会话参数。
func (c PipelineConfig) Options() pipeline.Options {
	return pipeline.Options{
		SilenceThreshold: c.SilenceThreshold,
		TargetSampleRate: c.TargetSampleRate,
		IdleInterval:     time.Duration(c.IdleIntervalMS) * time.Millisecond,
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
