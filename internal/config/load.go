package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/titanous/json5"
	"gopkg.in/yaml.v3"
)

// Environment variables that override secrets from the file.
const (
	EnvOneBotToken    = "AIVOICE_ONEBOT_TOKEN"
	EnvOneBotURL      = "AIVOICE_ONEBOT_WS_URL"
	EnvProviderAPIKey = "AIVOICE_PROVIDER_API_KEY"
	EnvPostgresDSN    = "AIVOICE_POSTGRES_DSN"
	EnvRedisURL       = "AIVOICE_REDIS_URL"
)

const maskedValue = "***"

var validate = validator.New()

// Load reads the config at path on top of Default(). A missing file yields
// the defaults. A .env file next to the config (or in the working directory)
// is loaded first; it never overrides variables already set.
func Load(path string) (*Config, error) {
	loadDotEnv(path)

	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	default:
		if err := decode(path, data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.ApplyEnvOverrides()
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadDotEnv(configPath string) {
	candidates := []string{".env"}
	if dir := filepath.Dir(configPath); dir != "." {
		candidates = append([]string{filepath.Join(dir, ".env")}, candidates...)
	}
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			_ = godotenv.Load(p)
		}
	}
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

func decode(path string, data []byte, cfg *Config) error {
	if isYAML(path) {
		return yaml.Unmarshal(data, cfg)
	}
	return json5.Unmarshal(data, cfg)
}

// Save writes cfg to path (YAML for .yaml/.yml, JSON otherwise) with 0600
// permissions, creating the directory if needed.
func Save(path string, cfg *Config) error {
	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(cfg)
	} else {
		data, err = json.MarshalIndent(cfg, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return os.Rename(tmp, path)
}

// ApplyEnvOverrides replaces secrets and connection strings with their
// environment values when set.
func (c *Config) ApplyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	envStr(EnvOneBotToken, &c.OneBot.AccessToken)
	envStr(EnvOneBotURL, &c.OneBot.WSURL)
	envStr(EnvProviderAPIKey, &c.Provider.APIKey)
	envStr(EnvPostgresDSN, &c.Store.PostgresDSN)
	envStr(EnvRedisURL, &c.Store.RedisURL)
}

// Validate checks field constraints and reports every violation.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("invalid config: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.TrimPrefix(fe.Namespace(), "Config.")
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s: failed %s=%s", field, fe.Tag(), fe.Param()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s: failed %s", field, fe.Tag()))
		}
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

// MaskedCopy returns a deep copy with secrets replaced by "***", safe to
// print or log.
func (c *Config) MaskedCopy() *Config {
	cp := *c
	mask := func(s *string) {
		if *s != "" {
			*s = maskedValue
		}
	}
	mask(&cp.OneBot.AccessToken)
	mask(&cp.Provider.APIKey)
	mask(&cp.Store.PostgresDSN)
	mask(&cp.Store.RedisURL)
	if c.Telemetry.Headers != nil {
		cp.Telemetry.Headers = make(map[string]string, len(c.Telemetry.Headers))
		for k := range c.Telemetry.Headers {
			cp.Telemetry.Headers[k] = maskedValue
		}
	}
	return &cp
}
