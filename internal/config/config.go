// Package config provides configuration loading, validation, and management
// for the chatlog service. It handles reading from YAML files and the
// environment, setting default values, and validating configuration parameters.
package config

import (
	"errors"
	"fmt"
	"time"
)

// ErrConfiguration wraps every loading or validation failure.
var ErrConfiguration = errors.New("configuration error")

// Config defines the application configuration parameters for all components.
type Config struct {
	Log       LogConfig       `mapstructure:"log"`
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Messages  MessagesConfig  `mapstructure:"messages"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Challenge ChallengeConfig `mapstructure:"challenge"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Tutor     TutorConfig     `mapstructure:"tutor"`
	AI        AIConfig        `mapstructure:"ai"`
}

type LogConfig struct {
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`
	JSON  bool   `mapstructure:"json"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"             validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"     validate:"min=1s"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"    validate:"min=1s"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"min=1s"`
	MaxBodyBytes    int64         `mapstructure:"max_body_bytes"   validate:"min=1024"`
}

// Addr returns the listen address for the HTTP server.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf(":%d", s.Port)
}

// DatabaseConfig holds the backing store location and the connection policy.
//
// FailFast and RetryOnStartupFailure select how startup behaves when the first
// connection attempt fails: exit, keep retrying in the background, or (both
// false) serve traffic and reconnect lazily on the next request. SelfHeal
// selects whether a failed liveness probe triggers reconnection or is only logged.
type DatabaseConfig struct {
	Driver                string        `mapstructure:"driver"                   validate:"oneof=sqlite postgres"`
	URI                   string        `mapstructure:"uri"                      validate:"required"`
	OperationTimeout      time.Duration `mapstructure:"operation_timeout"        validate:"min=100ms,max=1m"`
	ConnectTimeout        time.Duration `mapstructure:"connect_timeout"          validate:"min=100ms,max=5m"`
	RetryInterval         time.Duration `mapstructure:"retry_interval"           validate:"min=10ms"`
	FailFast              bool          `mapstructure:"fail_fast"`
	RetryOnStartupFailure bool          `mapstructure:"retry_on_startup_failure"`
	SelfHeal              bool          `mapstructure:"self_heal"`
	MaxOpenConns          int           `mapstructure:"max_open_conns"           validate:"min=1"`
	MaxIdleConns          int           `mapstructure:"max_idle_conns"           validate:"min=0"`
	ConnMaxLifetime       time.Duration `mapstructure:"conn_max_lifetime"`
}

// MessagesConfig holds the required-field policy and the history window.
type MessagesConfig struct {
	RequiredFields      []string `mapstructure:"required_fields"       validate:"dive,oneof=user_id message_text bot_response message_type"`
	DefaultHistoryLimit int      `mapstructure:"default_history_limit" validate:"min=1"`
	MaxHistoryLimit     int      `mapstructure:"max_history_limit"     validate:"min=1,gtefield=DefaultHistoryLimit"`
}

type SchedulerConfig struct {
	Tasks map[string]TaskConfig `mapstructure:"tasks" validate:"dive"`
}

type TaskConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Schedule string `mapstructure:"schedule"`
}

// ChallengeConfig configures the daily challenge relay.
type ChallengeConfig struct {
	Level         string        `mapstructure:"level"          validate:"oneof=beginner intermediate advanced"`
	NotifyURL     string        `mapstructure:"notify_url"     validate:"omitempty,url"`
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisKey      string        `mapstructure:"redis_key"      validate:"required"`
	Subscribers   []string      `mapstructure:"subscribers"`
	MaxAttempts   int           `mapstructure:"max_attempts"   validate:"min=1,max=10"`
	Concurrency   int           `mapstructure:"concurrency"    validate:"min=1"`
	RetryInterval time.Duration `mapstructure:"retry_interval" validate:"min=10ms"`
	Timeout       time.Duration `mapstructure:"timeout"        validate:"min=1s"`
}

// TelegramConfig configures the inbound messaging adapter.
type TelegramConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	Token         string `mapstructure:"token"`
	WebhookSecret string `mapstructure:"webhook_secret"`
	WebhookPath   string `mapstructure:"webhook_path" validate:"startswith=/"`
}

// TutorConfig configures the per-user learning modes. Sessions live in
// Redis when RedisAddr is set and in process memory otherwise.
type TutorConfig struct {
	DefaultMode   string        `mapstructure:"default_mode"   validate:"oneof=passive active constructive interactive"`
	Level         string        `mapstructure:"level"          validate:"oneof=beginner intermediate advanced"`
	Cooldown      time.Duration `mapstructure:"cooldown"       validate:"min=0"`
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	SessionPrefix string        `mapstructure:"session_prefix" validate:"required"`
	SessionTTL    time.Duration `mapstructure:"session_ttl"    validate:"min=0"`
}

// AIConfig configures reply and challenge generation.
type AIConfig struct {
	Provider          string        `mapstructure:"provider"           validate:"oneof=static gemini openai"`
	APIKey            string        `mapstructure:"api_key"`
	BaseURL           string        `mapstructure:"base_url"           validate:"omitempty,url"`
	Model             string        `mapstructure:"model"`
	CodeModel         string        `mapstructure:"code_model"`
	Temperature       float32       `mapstructure:"temperature"        validate:"min=0,max=2"`
	MaxTokens         int           `mapstructure:"max_tokens"         validate:"min=1"`
	SystemInstruction string        `mapstructure:"system_instruction"`
	Timeout           time.Duration `mapstructure:"timeout"            validate:"min=1s,max=10m"`
	HistoryLimit      int           `mapstructure:"history_limit"      validate:"min=0"`
}

// Validate runs the cross-field rules that struct tags cannot express.
func (c *Config) Validate() error {
	if c.Database.FailFast && c.Database.RetryOnStartupFailure {
		return errors.New("database.fail_fast and database.retry_on_startup_failure are mutually exclusive")
	}
	if c.Telegram.Enabled && c.Telegram.Token == "" {
		return errors.New("telegram.token is required when telegram.enabled is set")
	}
	if c.AI.Provider != "static" && c.AI.APIKey == "" {
		return fmt.Errorf("ai.api_key is required for provider %q", c.AI.Provider)
	}
	for name, task := range c.Scheduler.Tasks {
		if task.Enabled && task.Schedule == "" {
			return fmt.Errorf("scheduler task %q is enabled but has no schedule", name)
		}
	}
	return nil
}
