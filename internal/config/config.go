// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v10"
	"github.com/rs/zerolog"

	"github.com/jeranaias/visionary/internal/storage"
	"github.com/jeranaias/visionary/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete visionary configuration.
type Config struct {
	Storage      StorageConfig      `toml:"storage" json:"storage" envPrefix:"STORAGE_"`
	Gemini       GeminiConfig       `toml:"gemini" json:"gemini" envPrefix:"GEMINI_"`
	OpenAI       OpenAIConfig       `toml:"openai" json:"openai" envPrefix:"OPENAI_"`
	Email        EmailConfig        `toml:"email" json:"email" envPrefix:"EMAIL_"`
	Verification VerificationConfig `toml:"verification" json:"verification" envPrefix:"VERIFICATION_"`
	UI           UIConfig           `toml:"ui" json:"ui" envPrefix:"UI_"`
	Log          LogConfig          `toml:"log" json:"log" envPrefix:"LOG_"`
}

// StorageConfig selects the persistent key/value backend.
type StorageConfig struct {
	// Backend is one of "file", "sqlite", "bolt" or "memory".
	Backend string `toml:"backend" json:"backend" env:"BACKEND"`
	// Dir holds the backend's files; empty means the config directory.
	Dir string `toml:"dir" json:"dir" env:"DIR"`
}

// GeminiConfig configures the Gemini backend.
type GeminiConfig struct {
	APIKey            string `toml:"api_key" json:"api_key" env:"API_KEY"`
	BaseURL           string `toml:"base_url" json:"base_url" env:"BASE_URL"`
	ImageModel        string `toml:"image_model" json:"image_model" env:"IMAGE_MODEL"`
	SystemInstruction string `toml:"system_instruction" json:"system_instruction" env:"SYSTEM_INSTRUCTION"`
	// ThinkingBudget limits reasoning tokens; 0 disables thinking.
	ThinkingBudget int `toml:"thinking_budget" json:"thinking_budget" env:"THINKING_BUDGET"`
	TimeoutSecs    int `toml:"timeout_secs" json:"timeout_secs" env:"TIMEOUT_SECS"`
}

// OpenAIConfig configures the OpenAI-compatible backend.
type OpenAIConfig struct {
	APIKey      string `toml:"api_key" json:"api_key" env:"API_KEY"`
	BaseURL     string `toml:"base_url" json:"base_url" env:"BASE_URL"`
	ImageModel  string `toml:"image_model" json:"image_model" env:"IMAGE_MODEL"`
	TimeoutSecs int    `toml:"timeout_secs" json:"timeout_secs" env:"TIMEOUT_SECS"`
}

// EmailConfig configures delivery of verification codes.
type EmailConfig struct {
	// Provider is "emailjs" or "none". With "none", or with missing keys,
	// codes are shown on screen instead.
	Provider    string `toml:"provider" json:"provider" env:"PROVIDER"`
	Endpoint    string `toml:"endpoint" json:"endpoint" env:"ENDPOINT"`
	PublicKey   string `toml:"public_key" json:"public_key" env:"PUBLIC_KEY"`
	PrivateKey  string `toml:"private_key" json:"private_key" env:"PRIVATE_KEY"`
	ServiceID   string `toml:"service_id" json:"service_id" env:"SERVICE_ID"`
	TemplateID  string `toml:"template_id" json:"template_id" env:"TEMPLATE_ID"`
	TimeoutSecs int    `toml:"timeout_secs" json:"timeout_secs" env:"TIMEOUT_SECS"`
}

// VerificationConfig tunes the login verification flow.
type VerificationConfig struct {
	// CodeSource is "random" or "hotp".
	CodeSource         string `toml:"code_source" json:"code_source" env:"CODE_SOURCE"`
	CodeLength         int    `toml:"code_length" json:"code_length" env:"CODE_LENGTH"`
	ResendCooldownSecs int    `toml:"resend_cooldown_secs" json:"resend_cooldown_secs" env:"RESEND_COOLDOWN_SECS"`
	// MaxAttempts invalidates a code after this many wrong entries; 0 is unlimited.
	MaxAttempts int `toml:"max_attempts" json:"max_attempts" env:"MAX_ATTEMPTS"`
}

// UIConfig contains terminal front end settings.
type UIConfig struct {
	// Language selects the message catalog ("en" or "ru").
	Language       string `toml:"language" json:"language" env:"LANGUAGE"`
	RenderMarkdown bool   `toml:"render_markdown" json:"render_markdown" env:"RENDER_MARKDOWN"`
}

// LogConfig configures the zerolog logger.
type LogConfig struct {
	Level string `toml:"level" json:"level" env:"LEVEL"`
	// Format is "console" or "json".
	Format string `toml:"format" json:"format" env:"FORMAT"`
	// File receives log output; "-" means stderr.
	File string `toml:"file" json:"file" env:"FILE"`
}

// GeminiTimeout returns the per-request timeout for Gemini calls.
func (c *Config) GeminiTimeout() time.Duration {
	return time.Duration(c.Gemini.TimeoutSecs) * time.Second
}

// OpenAITimeout returns the per-request timeout for OpenAI calls.
func (c *Config) OpenAITimeout() time.Duration {
	return time.Duration(c.OpenAI.TimeoutSecs) * time.Second
}

// EmailTimeout returns the per-request timeout for mail delivery.
func (c *Config) EmailTimeout() time.Duration {
	return time.Duration(c.Email.TimeoutSecs) * time.Second
}

// ResendCooldown returns the verification resend cooldown.
func (c *Config) ResendCooldown() time.Duration {
	return time.Duration(c.Verification.ResendCooldownSecs) * time.Second
}

// =============================================================================
// DEFAULT CONFIGURATION
// =============================================================================

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Storage: StorageConfig{
			Backend: storage.BackendFile,
		},
		Gemini: GeminiConfig{
			ImageModel:  "gemini-2.5-flash-image",
			TimeoutSecs: 120,
		},
		OpenAI: OpenAIConfig{
			ImageModel:  "dall-e-3",
			TimeoutSecs: 120,
		},
		Email: EmailConfig{
			Provider:    "emailjs",
			Endpoint:    "https://api.emailjs.com",
			TimeoutSecs: 15,
		},
		Verification: VerificationConfig{
			CodeSource:         "random",
			CodeLength:         6,
			ResendCooldownSecs: 60,
		},
		UI: UIConfig{
			Language:       "en",
			RenderMarkdown: true,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the visionary configuration directory path.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".visionary"), nil
}

// ConfigPathTOML returns the path to the TOML config file.
func ConfigPathTOML() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// ConfigPathJSON returns the path to the JSON config file.
func ConfigPathJSON() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// Locate returns the config file that Load would read, or the TOML path
// when neither file exists yet.
func Locate() (string, error) {
	tomlPath, err := ConfigPathTOML()
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(tomlPath); err == nil {
		return tomlPath, nil
	}
	jsonPath, err := ConfigPathJSON()
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(jsonPath); err == nil {
		return jsonPath, nil
	}
	return tomlPath, nil
}

// EnsureConfigDir ensures the config directory exists.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0o700)
}

// ensureSecurePermissions checks and fixes permissions on config files.
// SECURITY: Config files hold API keys and should be 0600.
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if mode := info.Mode().Perm(); mode != 0o600 {
		if err := os.Chmod(path, 0o600); err != nil {
			return fmt.Errorf("failed to fix insecure permissions (was %o): %w", mode, err)
		}
	}
	return nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads configuration from the config file(s).
// Tries TOML first, then JSON, and falls back to defaults.
// Environment overrides are applied last.
func Load() (*Config, error) {
	path, err := Locate()
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return finish(Default())
	}
	return LoadFromPath(path)
}

// LoadFromPath loads configuration from a specific file path with full validation.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	// SECURITY: Check and fix file permissions if needed
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}

	if strings.HasSuffix(path, ".json") {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read JSON file: %w", err)
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to decode JSON config from %s: %w", path, err)
		}
	} else {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to decode TOML config from %s: %w", path, err)
		}
	}
	return finish(cfg)
}

// finish applies environment overrides, defaults and validation.
func finish(cfg *Config) (*Config, error) {
	if err := cfg.ApplyEnvOverrides(); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save saves the configuration to the default TOML file.
func Save(cfg *Config) error {
	path, err := ConfigPathTOML()
	if err != nil {
		return err
	}
	return SaveTOML(cfg, path)
}

// SaveTOML saves the configuration to a TOML file.
// SECURITY: Written with 0600 permissions (owner read/write only).
// RELIABILITY: Atomic write with fsync prevents a torn file on crash.
func SaveTOML(cfg *Config, path string) error {
	var buf strings.Builder
	buf.WriteString("# visionary configuration file\n")
	buf.WriteString("# Generated by visionary - edit with care\n\n")
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.AtomicWriteFile(path, []byte(buf.String()), 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// SaveJSON saves the configuration to a JSON file.
func SaveJSON(cfg *Config, path string) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.AtomicWriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 1 {
		return e[0].Error()
	}
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("%d config errors: %s", len(e), strings.Join(msgs, "; "))
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	var errs ValidateErrors
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if !slices.Contains(storage.Backends, strings.ToLower(c.Storage.Backend)) {
		add("storage.backend", "invalid backend '%s', must be one of: %s", c.Storage.Backend, strings.Join(storage.Backends, ", "))
	}

	for field, raw := range map[string]string{
		"gemini.base_url": c.Gemini.BaseURL,
		"openai.base_url": c.OpenAI.BaseURL,
		"email.endpoint":  c.Email.Endpoint,
	} {
		if raw == "" {
			continue
		}
		if u, err := url.Parse(raw); err != nil || u.Scheme == "" || u.Host == "" {
			add(field, "invalid URL '%s'", raw)
		}
	}

	if c.Gemini.ThinkingBudget < 0 {
		add("gemini.thinking_budget", "cannot be negative, got %d", c.Gemini.ThinkingBudget)
	}
	for field, secs := range map[string]int{
		"gemini.timeout_secs": c.Gemini.TimeoutSecs,
		"openai.timeout_secs": c.OpenAI.TimeoutSecs,
		"email.timeout_secs":  c.Email.TimeoutSecs,
	} {
		if secs < 0 {
			add(field, "cannot be negative, got %d", secs)
		}
	}

	switch strings.ToLower(c.Email.Provider) {
	case "emailjs", "none":
	default:
		add("email.provider", "invalid provider '%s', must be one of: emailjs, none", c.Email.Provider)
	}

	switch strings.ToLower(c.Verification.CodeSource) {
	case "random", "hotp":
	default:
		add("verification.code_source", "invalid source '%s', must be one of: random, hotp", c.Verification.CodeSource)
	}
	// Both code sources produce six digits.
	if c.Verification.CodeLength != 6 {
		add("verification.code_length", "only 6-digit codes are supported, got %d", c.Verification.CodeLength)
	}
	if c.Verification.ResendCooldownSecs < 1 || c.Verification.ResendCooldownSecs > 3600 {
		add("verification.resend_cooldown_secs", "must be 1-3600, got %d", c.Verification.ResendCooldownSecs)
	}
	if c.Verification.MaxAttempts < 0 {
		add("verification.max_attempts", "cannot be negative, got %d", c.Verification.MaxAttempts)
	}

	if _, err := zerolog.ParseLevel(strings.ToLower(c.Log.Level)); err != nil {
		add("log.level", "invalid level '%s'", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "console", "json":
	default:
		add("log.format", "invalid format '%s', must be one of: console, json", c.Log.Format)
	}

	if len(errs) > 0 {
		slices.SortFunc(errs, func(a, b ValidationError) int { return strings.Compare(a.Field, b.Field) })
		return errs
	}
	return nil
}

// SetDefaults sets default values for any missing or zero-value configuration fields.
func (c *Config) SetDefaults() {
	d := Default()

	if c.Storage.Backend == "" {
		c.Storage.Backend = d.Storage.Backend
	}
	if c.Storage.Dir == "" {
		if dir, err := ConfigDir(); err == nil {
			c.Storage.Dir = dir
		}
	}
	if c.Gemini.ImageModel == "" {
		c.Gemini.ImageModel = d.Gemini.ImageModel
	}
	if c.OpenAI.ImageModel == "" {
		c.OpenAI.ImageModel = d.OpenAI.ImageModel
	}
	if c.Email.Provider == "" {
		c.Email.Provider = d.Email.Provider
	}
	if c.Email.Endpoint == "" {
		c.Email.Endpoint = d.Email.Endpoint
	}
	if c.Verification.CodeSource == "" {
		c.Verification.CodeSource = d.Verification.CodeSource
	}
	if c.Verification.CodeLength == 0 {
		c.Verification.CodeLength = d.Verification.CodeLength
	}
	if c.Verification.ResendCooldownSecs == 0 {
		c.Verification.ResendCooldownSecs = d.Verification.ResendCooldownSecs
	}
	if c.UI.Language == "" {
		c.UI.Language = d.UI.Language
	}
	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = d.Log.Format
	}
	if c.Log.File == "" {
		if dir, err := ConfigDir(); err == nil {
			c.Log.File = filepath.Join(dir, "visionary.log")
		}
	}
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// EnvPrefix prefixes every structured environment override, for example
// VISIONARY_GEMINI_API_KEY or VISIONARY_STORAGE_BACKEND.
const EnvPrefix = "VISIONARY_"

// bareKeys are the unprefixed key variables that the hosted build of the
// app reads. Prefixed variables take precedence.
type bareKeys struct {
	APIKey       string `env:"API_KEY"`
	GeminiAPIKey string `env:"GEMINI_API_KEY"`
	OpenAIAPIKey string `env:"OPENAI_API_KEY"`
}

// ApplyEnvOverrides applies environment variable overrides to the config.
//
// Supported environment variables:
//   - API_KEY, GEMINI_API_KEY: override gemini.api_key
//   - OPENAI_API_KEY: overrides openai.api_key
//   - VISIONARY_<SECTION>_<KEY>: overrides any field, e.g. VISIONARY_LOG_LEVEL
func (c *Config) ApplyEnvOverrides() error {
	var bare bareKeys
	if err := env.Parse(&bare); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	if bare.APIKey != "" {
		c.Gemini.APIKey = bare.APIKey
	}
	if bare.GeminiAPIKey != "" {
		c.Gemini.APIKey = bare.GeminiAPIKey
	}
	if bare.OpenAIAPIKey != "" {
		c.OpenAI.APIKey = bare.OpenAIAPIKey
	}

	if err := env.ParseWithOptions(c, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// Clone creates a copy of the configuration. Config holds only value
// fields, so a struct copy is deep.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}

// String returns a string representation of the config for debugging.
// SECURITY: Redacts API keys and mail credentials.
func (c *Config) String() string {
	safe := c.Clone()
	for _, s := range []*string{&safe.Gemini.APIKey, &safe.OpenAI.APIKey, &safe.Email.PrivateKey} {
		if *s != "" {
			*s = "[REDACTED]"
		}
	}
	var buf strings.Builder
	_ = toml.NewEncoder(&buf).Encode(safe)
	return buf.String()
}
