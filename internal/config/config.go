/**
 * @description
 * This package handles the configuration management for the service. It uses the
 * Viper library to read configuration from environment variables and an optional
 * .env file, then normalizes the values so the rest of the service can trust them.
 *
 * @dependencies
 * - github.com/spf13/viper: configuration loading and env binding.
 */

package config

import (
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all the configuration variables for fundlink-service.
type Config struct {
	ServerPort     string `mapstructure:"SERVER_PORT"`
	DatabaseURL    string `mapstructure:"DATABASE_URL"`
	RedisURL       string `mapstructure:"REDIS_URL"`
	RedisKeyPrefix string `mapstructure:"REDIS_KEY_PREFIX"`
	RabbitMQURL    string `mapstructure:"RABBITMQ_URL"`
	EventExchange  string `mapstructure:"EVENT_EXCHANGE"`
	EventQueue     string `mapstructure:"EVENT_QUEUE"`

	JWTSecret     string `mapstructure:"JWT_SECRET"`
	JWTTTLMinutes int    `mapstructure:"JWT_TTL_MINUTES"`

	PaymentWebhookSecret    string `mapstructure:"PAYMENT_WEBHOOK_SECRET"`
	MinContribution         int64  `mapstructure:"MIN_CONTRIBUTION"`
	PaymentIntentTTLMinutes int    `mapstructure:"PAYMENT_INTENT_TTL_MINUTES"`

	KVBackend     string `mapstructure:"KV_BACKEND"`
	MongoURI      string `mapstructure:"MONGO_URI"`
	MongoDatabase string `mapstructure:"MONGO_DATABASE"`

	GeminiAPIKey string `mapstructure:"GEMINI_API_KEY"`
	GeminiModel  string `mapstructure:"GEMINI_MODEL"`

	CloudinaryURL    string `mapstructure:"CLOUDINARY_URL"`
	CloudinaryFolder string `mapstructure:"CLOUDINARY_FOLDER"`

	CORSAllowedOrigins    string `mapstructure:"CORS_ALLOWED_ORIGINS"`
	MessageWaitMaxSeconds int    `mapstructure:"MESSAGE_WAIT_MAX_SECONDS"`

	LoginRateLimitPerMinute   int `mapstructure:"LOGIN_RATE_LIMIT_PER_MINUTE"`
	MessageRateLimitPerMinute int `mapstructure:"MESSAGE_RATE_LIMIT_PER_MINUTE"`

	PostReminderSchedule     string `mapstructure:"POST_REMINDER_SCHEDULE"`
	LedgerReconcileSchedule  string `mapstructure:"LEDGER_RECONCILE_SCHEDULE"`
	IntentExpirySchedule     string `mapstructure:"INTENT_EXPIRY_SCHEDULE"`
	CampaignDeadlineSchedule string `mapstructure:"CAMPAIGN_DEADLINE_SCHEDULE"`
}

const (
	defaultRedisKeyPrefix   = "fundlink"
	defaultMinContribution  = 10
	defaultJWTTTLMinutes    = 24 * 60
	defaultIntentTTLMinutes = 60
	defaultWaitMaxSeconds   = 25
)

// LoadConfig reads configuration from environment variables and an optional .env
// file in path.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("REDIS_KEY_PREFIX", defaultRedisKeyPrefix)
	viper.SetDefault("EVENT_EXCHANGE", "fundlink.events")
	viper.SetDefault("EVENT_QUEUE", "fundlink_service.notifications")
	viper.SetDefault("JWT_TTL_MINUTES", defaultJWTTTLMinutes)
	viper.SetDefault("MIN_CONTRIBUTION", defaultMinContribution)
	viper.SetDefault("PAYMENT_INTENT_TTL_MINUTES", defaultIntentTTLMinutes)
	viper.SetDefault("KV_BACKEND", "memory")
	viper.SetDefault("MONGO_DATABASE", "fundlink")
	viper.SetDefault("GEMINI_MODEL", "gemini-2.5-flash")
	viper.SetDefault("CLOUDINARY_FOLDER", "payment_settings")
	viper.SetDefault("CORS_ALLOWED_ORIGINS", "*")
	viper.SetDefault("MESSAGE_WAIT_MAX_SECONDS", defaultWaitMaxSeconds)
	viper.SetDefault("LOGIN_RATE_LIMIT_PER_MINUTE", 10)
	viper.SetDefault("MESSAGE_RATE_LIMIT_PER_MINUTE", 60)
	viper.SetDefault("POST_REMINDER_SCHEDULE", "@every 1m")
	viper.SetDefault("LEDGER_RECONCILE_SCHEDULE", "@every 15m")
	viper.SetDefault("INTENT_EXPIRY_SCHEDULE", "@every 5m")
	viper.SetDefault("CAMPAIGN_DEADLINE_SCHEDULE", "0 * * * *")

	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("REDIS_URL")
	_ = viper.BindEnv("REDIS_KEY_PREFIX")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("EVENT_EXCHANGE")
	_ = viper.BindEnv("EVENT_QUEUE")
	_ = viper.BindEnv("JWT_SECRET", "JWT_SECRET", "AUTH_JWT_SECRET")
	_ = viper.BindEnv("JWT_TTL_MINUTES")
	_ = viper.BindEnv("PAYMENT_WEBHOOK_SECRET")
	_ = viper.BindEnv("MIN_CONTRIBUTION")
	_ = viper.BindEnv("PAYMENT_INTENT_TTL_MINUTES")
	_ = viper.BindEnv("KV_BACKEND")
	_ = viper.BindEnv("MONGO_URI")
	_ = viper.BindEnv("MONGO_DATABASE")
	_ = viper.BindEnv("GEMINI_API_KEY", "GEMINI_API_KEY", "GOOGLE_API_KEY")
	_ = viper.BindEnv("GEMINI_MODEL")
	_ = viper.BindEnv("CLOUDINARY_URL")
	_ = viper.BindEnv("CLOUDINARY_FOLDER")
	_ = viper.BindEnv("CORS_ALLOWED_ORIGINS")
	_ = viper.BindEnv("MESSAGE_WAIT_MAX_SECONDS")
	_ = viper.BindEnv("LOGIN_RATE_LIMIT_PER_MINUTE")
	_ = viper.BindEnv("MESSAGE_RATE_LIMIT_PER_MINUTE")
	_ = viper.BindEnv("POST_REMINDER_SCHEDULE")
	_ = viper.BindEnv("LEDGER_RECONCILE_SCHEDULE")
	_ = viper.BindEnv("INTENT_EXPIRY_SCHEDULE")
	_ = viper.BindEnv("CAMPAIGN_DEADLINE_SCHEDULE")

	// A missing .env file is fine; anything else is worth a warning.
	if err = viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("failed to read config file; using environment values", "component", "config", "error", err)
		}
	}

	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}
	config.DatabaseURL = strings.TrimSpace(config.DatabaseURL)
	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RabbitMQURL = strings.TrimSpace(config.RabbitMQURL)
	config.JWTSecret = strings.TrimSpace(config.JWTSecret)
	config.PaymentWebhookSecret = strings.TrimSpace(config.PaymentWebhookSecret)
	config.GeminiAPIKey = strings.TrimSpace(config.GeminiAPIKey)
	config.CloudinaryURL = strings.TrimSpace(config.CloudinaryURL)

	config.RedisKeyPrefix = strings.TrimSuffix(strings.TrimSpace(config.RedisKeyPrefix), ":")
	if config.RedisKeyPrefix == "" {
		config.RedisKeyPrefix = defaultRedisKeyPrefix
	}

	config.KVBackend = strings.ToLower(strings.TrimSpace(config.KVBackend))
	switch config.KVBackend {
	case "memory", "redis", "mongo":
	default:
		slog.Warn("unknown kv backend; using memory", "component", "config", "kv_backend", config.KVBackend)
		config.KVBackend = "memory"
	}

	if config.MinContribution <= 0 {
		slog.Warn("non-positive minimum contribution configured; using default", "component", "config", "min_contribution", config.MinContribution)
		config.MinContribution = defaultMinContribution
	}
	if config.JWTTTLMinutes <= 0 {
		config.JWTTTLMinutes = defaultJWTTTLMinutes
	}
	if config.PaymentIntentTTLMinutes <= 0 {
		config.PaymentIntentTTLMinutes = defaultIntentTTLMinutes
	}
	if config.MessageWaitMaxSeconds <= 0 {
		config.MessageWaitMaxSeconds = defaultWaitMaxSeconds
	}
	if config.MessageWaitMaxSeconds > 55 {
		config.MessageWaitMaxSeconds = 55
	}
	if config.LoginRateLimitPerMinute < 0 {
		config.LoginRateLimitPerMinute = 0
	}
	if config.MessageRateLimitPerMinute < 0 {
		config.MessageRateLimitPerMinute = 0
	}

	return
}

// AllowedOrigins splits CORS_ALLOWED_ORIGINS on commas.
func (c Config) AllowedOrigins() []string {
	var origins []string
	for _, origin := range strings.Split(c.CORSAllowedOrigins, ",") {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}

// KVKeyPrefix namespaces key-value records in Redis next to the rate limiter
// and notifier keys, e.g. "fundlink:kv:posts:...".
func (c Config) KVKeyPrefix() string {
	return c.RedisKeyPrefix + ":kv:"
}

// SharedKV reports whether the key-value backend is visible to every process.
// The memory backend lives inside one process, so scheduled jobs must run in
// the same process as the API to see its posts and write its notifications.
func (c Config) SharedKV() bool {
	return c.KVBackend != "memory"
}
