package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of every environment variable the loader reads,
// e.g. CHATLOG_DATABASE_DRIVER for database.driver.
const EnvPrefix = "CHATLOG"

// Load loads and validates configuration from:
//  1. Default values
//  2. the YAML file at path (optional, missing file is not an error)
//  3. CHATLOG_* environment variables, plus PORT and DATABASE_URI (or MONGO_URI)
func Load(path string) (*Config, error) {
	startTime := time.Now()

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Unprefixed names set by most hosting platforms.
	if err := v.BindEnv("server.port", EnvPrefix+"_SERVER_PORT", "PORT"); err != nil {
		return nil, fmt.Errorf("%w: bind server.port: %v", ErrConfiguration, err)
	}
	if err := v.BindEnv("database.uri", EnvPrefix+"_DATABASE_URI", "DATABASE_URI", "MONGO_URI"); err != nil {
		return nil, fmt.Errorf("%w: bind database.uri: %v", ErrConfiguration, err)
	}

	if err := readConfigFile(v, path); err != nil {
		return nil, fmt.Errorf("%w: failed to load config file: %v", ErrConfiguration, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("%w: failed to parse config: %v", ErrConfiguration, err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	slog.Debug("configuration loaded",
		"path", path,
		"database_driver", cfg.Database.Driver,
		"fail_fast", cfg.Database.FailFast,
		"self_heal", cfg.Database.SelfHeal,
		"ai_provider", cfg.AI.Provider,
		"duration_ms", time.Since(startTime).Milliseconds())

	return cfg, nil
}

// readConfigFile reads path into v. A missing file means defaults plus
// environment only.
func readConfigFile(v *viper.Viper, path string) error {
	if path == "" {
		return nil
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist) {
			slog.Info("Configuration file not found, using defaults and environment", "path", path)
			return nil
		}
		return err
	}
	return nil
}

// setDefaults sets default values for optional configuration parameters
func setDefaults(v *viper.Viper) {
	// Log defaults
	v.SetDefault("log.level", DefaultLogLevel)
	v.SetDefault("log.json", DefaultLogJSON)

	// Server defaults
	v.SetDefault("server.port", DefaultServerPort)
	v.SetDefault("server.read_timeout", DefaultServerReadTimeout)
	v.SetDefault("server.write_timeout", DefaultServerWriteTimeout)
	v.SetDefault("server.shutdown_timeout", DefaultServerShutdownTimeout)
	v.SetDefault("server.max_body_bytes", DefaultServerMaxBodyBytes)

	// Database defaults
	v.SetDefault("database.driver", DefaultDBDriver)
	v.SetDefault("database.uri", DefaultDBURI)
	v.SetDefault("database.operation_timeout", DefaultDBOperationTimeout)
	v.SetDefault("database.connect_timeout", DefaultDBConnectTimeout)
	v.SetDefault("database.retry_interval", DefaultDBRetryInterval)
	v.SetDefault("database.fail_fast", DefaultDBFailFast)
	v.SetDefault("database.retry_on_startup_failure", false)
	v.SetDefault("database.self_heal", DefaultDBSelfHeal)
	v.SetDefault("database.max_open_conns", DefaultDBMaxOpenConns)
	v.SetDefault("database.max_idle_conns", DefaultDBMaxIdleConns)
	v.SetDefault("database.conn_max_lifetime", DefaultDBConnMaxLifetime)

	// Message defaults
	v.SetDefault("messages.required_fields", DefaultRequiredFields)
	v.SetDefault("messages.default_history_limit", DefaultHistoryLimit)
	v.SetDefault("messages.max_history_limit", DefaultMaxHistoryLimit)

	// Scheduler defaults
	v.SetDefault("scheduler.tasks."+TaskStoreProbe+".enabled", true)
	v.SetDefault("scheduler.tasks."+TaskStoreProbe+".schedule", DefaultStoreProbeSchedule)
	v.SetDefault("scheduler.tasks."+TaskDailyChallenge+".enabled", false)
	v.SetDefault("scheduler.tasks."+TaskDailyChallenge+".schedule", DefaultChallengeSchedule)

	// Challenge defaults
	v.SetDefault("challenge.level", DefaultChallengeLevel)
	v.SetDefault("challenge.notify_url", "")
	v.SetDefault("challenge.redis_addr", "")
	v.SetDefault("challenge.redis_password", "")
	v.SetDefault("challenge.redis_key", DefaultChallengeRedisKey)
	v.SetDefault("challenge.subscribers", []string{})
	v.SetDefault("challenge.max_attempts", DefaultChallengeAttempts)
	v.SetDefault("challenge.concurrency", DefaultChallengeWorkers)
	v.SetDefault("challenge.retry_interval", DefaultChallengeRetryDelay)
	v.SetDefault("challenge.timeout", DefaultChallengeTimeout)

	// Telegram defaults
	v.SetDefault("telegram.enabled", false)
	v.SetDefault("telegram.token", "")
	v.SetDefault("telegram.webhook_secret", "")
	v.SetDefault("telegram.webhook_path", DefaultTelegramWebhookPath)

	// Tutor defaults
	v.SetDefault("tutor.default_mode", DefaultTutorMode)
	v.SetDefault("tutor.level", DefaultTutorLevel)
	v.SetDefault("tutor.cooldown", DefaultTutorCooldown)
	v.SetDefault("tutor.redis_addr", "")
	v.SetDefault("tutor.redis_password", "")
	v.SetDefault("tutor.session_prefix", DefaultTutorSessionPrefix)
	v.SetDefault("tutor.session_ttl", DefaultTutorSessionTTL)

	// AI defaults
	v.SetDefault("ai.provider", DefaultAIProvider)
	v.SetDefault("ai.api_key", "")
	v.SetDefault("ai.base_url", "")
	v.SetDefault("ai.model", DefaultAIModel)
	v.SetDefault("ai.code_model", "")
	v.SetDefault("ai.temperature", DefaultAITemperature)
	v.SetDefault("ai.max_tokens", DefaultAIMaxTokens)
	v.SetDefault("ai.system_instruction", DefaultAIInstruction)
	v.SetDefault("ai.timeout", DefaultAITimeout)
	v.SetDefault("ai.history_limit", DefaultAIHistoryLimit)
}
