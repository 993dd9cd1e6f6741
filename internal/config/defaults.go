package config

import "time"

// Default values for configuration
const (
	// Log defaults
	DefaultLogLevel = "info"
	DefaultLogJSON  = true

	// Server defaults
	DefaultServerPort            = 3000
	DefaultServerReadTimeout     = 15 * time.Second
	DefaultServerWriteTimeout    = 30 * time.Second
	DefaultServerShutdownTimeout = 10 * time.Second
	DefaultServerMaxBodyBytes    = 1 << 20

	// Database defaults
	DefaultDBDriver           = "sqlite"
	DefaultDBURI              = "file:chatlog.db?_pragma=busy_timeout(5000)&_time_format=sqlite"
	DefaultDBOperationTimeout = 5 * time.Second
	DefaultDBConnectTimeout   = 10 * time.Second
	DefaultDBRetryInterval    = 5 * time.Second
	DefaultDBFailFast         = true
	DefaultDBSelfHeal         = true
	DefaultDBMaxOpenConns     = 10
	DefaultDBMaxIdleConns     = 5
	DefaultDBConnMaxLifetime  = time.Hour

	// Message defaults
	DefaultHistoryLimit    = 20
	DefaultMaxHistoryLimit = 100

	// Scheduler defaults
	TaskStoreProbe             = "store_probe"
	TaskDailyChallenge         = "daily_challenge"
	DefaultStoreProbeSchedule  = "0 */5 * * * *"
	DefaultChallengeSchedule   = "0 0 9 * * *"
	DefaultChallengeLevel      = "beginner"
	DefaultChallengeRedisKey   = "chatlog:challenge:subscribers"
	DefaultChallengeAttempts   = 3
	DefaultChallengeWorkers    = 8
	DefaultChallengeRetryDelay = 2 * time.Second
	DefaultChallengeTimeout    = 10 * time.Second

	// Telegram defaults
	DefaultTelegramWebhookPath = "/callback"

	// Tutor defaults
	DefaultTutorMode          = "passive"
	DefaultTutorLevel         = "beginner"
	DefaultTutorCooldown      = 5 * time.Second
	DefaultTutorSessionPrefix = "chatlog:tutor:session:"
	DefaultTutorSessionTTL    = 7 * 24 * time.Hour

	// AI defaults
	DefaultAIProvider     = "static"
	DefaultAIModel        = "gemini-2.0-flash"
	DefaultAITemperature  = 0.7
	DefaultAIMaxTokens    = 500
	DefaultAITimeout      = 30 * time.Second
	DefaultAIHistoryLimit = 10
	DefaultAIInstruction  = "You are a friendly C programming tutor. Answer in Traditional Chinese or English, keep replies short and remember the conversation history."
)

// DefaultRequiredFields is the canonical required-field policy.
var DefaultRequiredFields = []string{"user_id"}
