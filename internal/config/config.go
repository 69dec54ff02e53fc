// Package config holds the aivoice configuration: the OneBot connection, the
// LLM provider, gateway behaviour, voice and pipeline policies, command
// triggers, the settings backend, logging and telemetry.
package config

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

// Config is the root configuration.
type Config struct {
	OneBot    OneBotConfig    `json:"onebot" yaml:"onebot"`
	Provider  ProviderConfig  `json:"provider" yaml:"provider"`
	Gateway   GatewayConfig   `json:"gateway" yaml:"gateway"`
	Voice     VoiceConfig     `json:"voice" yaml:"voice"`
	Pipeline  PipelineConfig  `json:"pipeline" yaml:"pipeline"`
	Commands  CommandsConfig  `json:"commands" yaml:"commands"`
	Store     StoreConfig     `json:"store" yaml:"store"`
	Logging   LoggingConfig   `json:"logging" yaml:"logging"`
	Telemetry TelemetryConfig `json:"telemetry" yaml:"telemetry"`
}

// OneBotConfig is the forward-WebSocket connection to the OneBot implementation.
type OneBotConfig struct {
	WSURL               string  `json:"wsUrl" yaml:"wsUrl" validate:"required,url"`
	AccessToken         string  `json:"accessToken,omitempty" yaml:"accessToken,omitempty"`
	ReconnectIntervalMs int     `json:"reconnectIntervalMs" yaml:"reconnectIntervalMs" validate:"gte=0"`
	ActionRatePerSec    float64 `json:"actionRatePerSec" yaml:"actionRatePerSec" validate:"gte=0"`
}

// ProviderConfig selects the chat model.
type ProviderConfig struct {
	Type         string  `json:"type" yaml:"type" validate:"oneof=openai dashscope"`
	APIBase      string  `json:"apiBase,omitempty" yaml:"apiBase,omitempty" validate:"omitempty,url"`
	APIKey       string  `json:"apiKey,omitempty" yaml:"apiKey,omitempty"`
	Model        string  `json:"model,omitempty" yaml:"model,omitempty"`
	SystemPrompt string  `json:"systemPrompt,omitempty" yaml:"systemPrompt,omitempty"`
	Temperature  float64 `json:"temperature" yaml:"temperature" validate:"gte=0,lte=2"`
	TimeoutMs    int     `json:"timeoutMs" yaml:"timeoutMs" validate:"gte=0"`
}

// GatewayConfig controls which messages reach the model.
type GatewayConfig struct {
	RequireMention bool `json:"requireMention" yaml:"requireMention"`
	GroupRPM       int  `json:"groupRpm" yaml:"groupRpm" validate:"gte=0"`
	GroupBurst     int  `json:"groupBurst" yaml:"groupBurst" validate:"gte=0"`
	DebounceMs     int  `json:"debounceMs" yaml:"debounceMs" validate:"gte=0"`
	DedupeTTLMs    int  `json:"dedupeTtlMs" yaml:"dedupeTtlMs" validate:"gte=0"`
	HistoryLimit   int  `json:"historyLimit" yaml:"historyLimit" validate:"gte=0"`
	MaxConcurrent  int  `json:"maxConcurrent" yaml:"maxConcurrent" validate:"gte=0"`
}

// VoiceConfig bounds the voice side channel.
type VoiceConfig struct {
	CatalogTimeoutMs  int `json:"catalogTimeoutMs" yaml:"catalogTimeoutMs" validate:"gte=0"`
	DispatchTimeoutMs int `json:"dispatchTimeoutMs" yaml:"dispatchTimeoutMs" validate:"gte=0"`
	MaxChars          int `json:"maxChars" yaml:"maxChars" validate:"gte=0"`
}

// PipelineConfig holds the response pipeline policies.
type PipelineConfig struct {
	EmptyPolicy  string `json:"emptyPolicy" yaml:"emptyPolicy" validate:"omitempty,oneof=passthrough placeholder"`
	Placeholder  string `json:"placeholder,omitempty" yaml:"placeholder,omitempty"`
	CoSendChain  string `json:"coSendChain" yaml:"coSendChain" validate:"omitempty,oneof=clear keep"`
	SpeechPrompt string `json:"speechPrompt,omitempty" yaml:"speechPrompt,omitempty"`
}

// CommandsConfig holds the command trigger words. An empty trigger disables
// that command.
type CommandsConfig struct {
	Prefix         string `json:"prefix" yaml:"prefix"`
	ListCharacters string `json:"listCharacters" yaml:"listCharacters"`
	ToggleSpeech   string `json:"toggleSpeech" yaml:"toggleSpeech"`
	SetDefault     string `json:"setDefault" yaml:"setDefault"`
	ToggleCoSend   string `json:"toggleCoSend" yaml:"toggleCoSend"`
	Help           string `json:"help" yaml:"help"`
}

// StoreConfig selects the per-group settings backend.
type StoreConfig struct {
	Backend               string `json:"backend" yaml:"backend" validate:"oneof=file sqlite postgres redis badger"`
	Path                  string `json:"path,omitempty" yaml:"path,omitempty" validate:"required_if=Backend file,required_if=Backend sqlite,required_if=Backend badger"`
	PostgresDSN           string `json:"postgresDsn,omitempty" yaml:"postgresDsn,omitempty" validate:"required_if=Backend postgres"`
	RedisURL              string `json:"redisUrl,omitempty" yaml:"redisUrl,omitempty" validate:"required_if=Backend redis"`
	RedisPrefix           string `json:"redisPrefix,omitempty" yaml:"redisPrefix,omitempty"`
	PersistCharacterCache bool   `json:"persistCharacterCache" yaml:"persistCharacterCache"`
	CacheSize             int    `json:"cacheSize" yaml:"cacheSize" validate:"gte=0"`
	WriteQueue            int    `json:"writeQueue" yaml:"writeQueue" validate:"gte=0"`
}

// LoggingConfig configures the slog handler.
type LoggingConfig struct {
	Level  string `json:"level" yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	Format string `json:"format" yaml:"format" validate:"omitempty,oneof=text json"`
}

// TelemetryConfig configures OTLP trace export.
type TelemetryConfig struct {
	Enabled     bool              `json:"enabled" yaml:"enabled"`
	Endpoint    string            `json:"endpoint,omitempty" yaml:"endpoint,omitempty" validate:"required_if=Enabled true"`
	Protocol    string            `json:"protocol,omitempty" yaml:"protocol,omitempty" validate:"omitempty,oneof=grpc http"`
	Insecure    bool              `json:"insecure" yaml:"insecure"`
	ServiceName string            `json:"serviceName,omitempty" yaml:"serviceName,omitempty"`
	Headers     map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
}

// Default returns a config with every field at its default value.
func Default() *Config {
	return &Config{
		OneBot: OneBotConfig{
			WSURL:               "ws://127.0.0.1:3001",
			ReconnectIntervalMs: 5000,
		},
		Provider: ProviderConfig{
			Type:         "openai",
			Model:        "gpt-4o-mini",
			SystemPrompt: "你是群聊里的 AI 助手，回答简洁友好。",
			Temperature:  0.7,
			TimeoutMs:    60000,
		},
		Gateway: GatewayConfig{
			RequireMention: true,
			GroupRPM:       20,
			GroupBurst:     5,
			DebounceMs:     0,
			DedupeTTLMs:    20 * 60 * 1000,
			HistoryLimit:   20,
			MaxConcurrent:  8,
		},
		Voice: VoiceConfig{
			CatalogTimeoutMs:  10000,
			DispatchTimeoutMs: 10000,
			MaxChars:          500,
		},
		Pipeline: PipelineConfig{
			EmptyPolicy:  "passthrough",
			Placeholder:  "[内容已过滤]",
			CoSendChain:  "clear",
			SpeechPrompt: "你的回复会被转换成语音发送。请使用口语化的短句，不要使用 Markdown、表格、代码块或括号里的动作描写。",
		},
		Commands: CommandsConfig{
			Prefix:         "/",
			ListCharacters: "ai人物列表",
			ToggleSpeech:   "切换语音模式",
			SetDefault:     "设置默认模型",
			ToggleCoSend:   "切换文字同发",
			Help:           "语音帮助",
		},
		Store: StoreConfig{
			Backend:               "file",
			Path:                  "~/.aivoice/settings.json",
			RedisPrefix:           "aivoice",
			PersistCharacterCache: true,
			CacheSize:             1024,
			WriteQueue:            64,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Telemetry: TelemetryConfig{
			Protocol:    "grpc",
			ServiceName: "aivoice",
		},
	}
}

// Ms converts a millisecond setting to a duration.
func Ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

// Hash is a content hash of the config, used to skip no-op reloads.
func (c *Config) Hash() string {
	data, _ := json.Marshal(c)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// ConfigPath is $AIVOICE_CONFIG, or ~/.aivoice/config.json5.
func ConfigPath() string {
	if p := os.Getenv("AIVOICE_CONFIG"); p != "" {
		return ExpandHome(p)
	}
	return ExpandHome("~/.aivoice/config.json5")
}

// ExpandHome replaces a leading "~" with the user's home directory.
func ExpandHome(path string) string {
	if path == "~" || (len(path) > 1 && path[0] == '~' && (path[1] == '/' || path[1] == filepath.Separator)) {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[1:])
	}
	return path
}
