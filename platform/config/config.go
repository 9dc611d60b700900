// Package config provides application configuration loading.
// This is part of the platform layer and contains no business logic.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// =============================================================================
// Module-Specific Config Interfaces (Principle of Least Privilege)
// =============================================================================

// DatabaseConfig provides database connection settings.
type DatabaseConfig interface {
	GetDatabaseURL() string
}

// JWTConfig provides token validation settings for the auth middleware.
// Tokens are issued by the external identity service; this backend only
// verifies them.
type JWTConfig interface {
	GetJWTAccessSecret() string
}

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSAllowAll() bool
	GetCORSOrigins() []string
	GetCORSAllowCreds() bool
}

// LifecycleConfig provides tunables for the request lifecycle engine.
type LifecycleConfig interface {
	GetRepairerJobCap() int
	GetRejectionFeeCents() int64
	GetTransitionMaxRetries() int
}

// CompletionConfig provides settings for the completion-code gate.
type CompletionConfig interface {
	GetCompletionCodeTTL() time.Duration
	GetCompletionCodeMaxAttempts() int
}

// SettlementConfig provides settings for the settlement engine.
type SettlementConfig interface {
	GetCommissionRateBps() int
	GetRejectionFeeCents() int64
	GetPaymentPendingTTL() time.Duration
}

// GatewayConfig provides settings for the payment gateway client.
type GatewayConfig interface {
	GetGatewayBaseURL() string
	GetGatewayKeyID() string
	GetGatewayKeySecret() string
	GetGatewayWebhookSecret() string
	GetCurrency() string
	IsGatewayEnabled() bool
}

// RedisConfig provides settings for Redis-backed components
// (scheduler queue, completion-code attempt guard).
type RedisConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
}

// SchedulerConfig provides settings for the asynq scheduler.
type SchedulerConfig interface {
	RedisConfig
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
}

// EmailConfig provides SMTP settings for receipt emails.
type EmailConfig interface {
	GetSMTPHost() string
	GetSMTPPort() int
	GetSMTPUsername() string
	GetSMTPPassword() string
	GetEmailFromName() string
	GetEmailFromAddress() string
	IsEmailEnabled() bool
}

// SMSConfig provides settings for the SMS delivery collaborator.
type SMSConfig interface {
	GetSMSServiceURL() string
	GetSMSServiceKey() string
	IsSMSEnabled() bool
}

// DirectoryConfig provides settings for the identity directory collaborator,
// used to resolve contact details for actors.
type DirectoryConfig interface {
	GetDirectoryServiceURL() string
	GetDirectoryServiceKey() string
	IsDirectoryEnabled() bool
}

// ChatConfig provides settings for the conversation collaborator.
type ChatConfig interface {
	GetChatServiceURL() string
	GetChatServiceKey() string
	IsChatEnabled() bool
}

// MinIOConfig provides settings for completion-evidence object storage.
type MinIOConfig interface {
	GetMinIOEndpoint() string
	GetMinIOAccessKey() string
	GetMinIOSecretKey() string
	GetMinIOUseSSL() bool
	GetMinIOMaxFileSize() int64
	GetMinioBucketCompletionEvidence() string
	IsMinIOEnabled() bool
}

// NotificationConfig provides settings for the notification module.
type NotificationConfig interface {
	GetAppBaseURL() string
}

// =============================================================================
// Main Config Struct
// =============================================================================

// Config holds all application configuration values.
type Config struct {
	Env                           string
	HTTPAddr                      string
	DatabaseURL                   string
	JWTAccessSecret               string
	CORSAllowAll                  bool
	CORSOrigins                   []string
	CORSAllowCreds                bool
	AppBaseURL                    string
	RepairerJobCap                int
	RejectionFeeCents             int64
	CommissionRateBps             int
	TransitionMaxRetries          int
	CompletionCodeTTL             time.Duration
	CompletionCodeMaxAttempts     int
	PaymentPendingTTL             time.Duration
	Currency                      string
	GatewayBaseURL                string
	GatewayKeyID                  string
	GatewayKeySecret              string
	GatewayWebhookSecret          string
	RedisURL                      string
	RedisTLSInsecure              bool
	AsynqQueueName                string
	AsynqConcurrency              int
	EmailEnabled                  bool
	SMTPHost                      string
	SMTPPort                      int
	SMTPUsername                  string
	SMTPPassword                  string
	EmailFromName                 string
	EmailFromAddress              string
	SMSServiceURL                 string
	SMSServiceKey                 string
	DirectoryServiceURL           string
	DirectoryServiceKey           string
	ChatServiceURL                string
	ChatServiceKey                string
	MinIOEndpoint                 string
	MinIOAccessKey                string
	MinIOSecretKey                string
	MinIOUseSSL                   bool
	MinIOMaxFileSize              int64
	MinioBucketCompletionEvidence string
}

// =============================================================================
// Interface Implementations
// =============================================================================

// DatabaseConfig implementation
func (c *Config) GetDatabaseURL() string { return c.DatabaseURL }

// JWTConfig implementation
func (c *Config) GetJWTAccessSecret() string { return c.JWTAccessSecret }

// HTTPConfig implementation
func (c *Config) GetHTTPAddr() string      { return c.HTTPAddr }
func (c *Config) GetCORSAllowAll() bool    { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string { return c.CORSOrigins }
func (c *Config) GetCORSAllowCreds() bool  { return c.CORSAllowCreds }

// LifecycleConfig implementation
func (c *Config) GetRepairerJobCap() int       { return c.RepairerJobCap }
func (c *Config) GetRejectionFeeCents() int64  { return c.RejectionFeeCents }
func (c *Config) GetTransitionMaxRetries() int { return c.TransitionMaxRetries }

// CompletionConfig implementation
func (c *Config) GetCompletionCodeTTL() time.Duration { return c.CompletionCodeTTL }
func (c *Config) GetCompletionCodeMaxAttempts() int   { return c.CompletionCodeMaxAttempts }

// SettlementConfig implementation
func (c *Config) GetCommissionRateBps() int           { return c.CommissionRateBps }
func (c *Config) GetPaymentPendingTTL() time.Duration { return c.PaymentPendingTTL }

// GatewayConfig implementation
func (c *Config) GetGatewayBaseURL() string       { return c.GatewayBaseURL }
func (c *Config) GetGatewayKeyID() string         { return c.GatewayKeyID }
func (c *Config) GetGatewayKeySecret() string     { return c.GatewayKeySecret }
func (c *Config) GetGatewayWebhookSecret() string { return c.GatewayWebhookSecret }
func (c *Config) GetCurrency() string             { return c.Currency }
func (c *Config) IsGatewayEnabled() bool          { return c.GatewayBaseURL != "" }

// RedisConfig implementation
func (c *Config) GetRedisURL() string      { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool { return c.RedisTLSInsecure }

// SchedulerConfig implementation
func (c *Config) GetAsynqQueueName() string { return c.AsynqQueueName }
func (c *Config) GetAsynqConcurrency() int  { return c.AsynqConcurrency }

// EmailConfig implementation
func (c *Config) GetSMTPHost() string         { return c.SMTPHost }
func (c *Config) GetSMTPPort() int            { return c.SMTPPort }
func (c *Config) GetSMTPUsername() string     { return c.SMTPUsername }
func (c *Config) GetSMTPPassword() string     { return c.SMTPPassword }
func (c *Config) GetEmailFromName() string    { return c.EmailFromName }
func (c *Config) GetEmailFromAddress() string { return c.EmailFromAddress }
func (c *Config) IsEmailEnabled() bool        { return c.EmailEnabled && c.SMTPHost != "" }

// SMSConfig implementation
func (c *Config) GetSMSServiceURL() string { return c.SMSServiceURL }
func (c *Config) GetSMSServiceKey() string { return c.SMSServiceKey }
func (c *Config) IsSMSEnabled() bool       { return c.SMSServiceURL != "" }

// DirectoryConfig implementation
func (c *Config) GetDirectoryServiceURL() string { return c.DirectoryServiceURL }
func (c *Config) GetDirectoryServiceKey() string { return c.DirectoryServiceKey }
func (c *Config) IsDirectoryEnabled() bool       { return c.DirectoryServiceURL != "" }

// ChatConfig implementation
func (c *Config) GetChatServiceURL() string { return c.ChatServiceURL }
func (c *Config) GetChatServiceKey() string { return c.ChatServiceKey }
func (c *Config) IsChatEnabled() bool       { return c.ChatServiceURL != "" }

// MinIOConfig implementation
func (c *Config) GetMinIOEndpoint() string   { return c.MinIOEndpoint }
func (c *Config) GetMinIOAccessKey() string  { return c.MinIOAccessKey }
func (c *Config) GetMinIOSecretKey() string  { return c.MinIOSecretKey }
func (c *Config) GetMinIOUseSSL() bool       { return c.MinIOUseSSL }
func (c *Config) GetMinIOMaxFileSize() int64 { return c.MinIOMaxFileSize }
func (c *Config) GetMinioBucketCompletionEvidence() string {
	return c.MinioBucketCompletionEvidence
}
func (c *Config) IsMinIOEnabled() bool { return c.MinIOEndpoint != "" }

// NotificationConfig implementation
func (c *Config) GetAppBaseURL() string { return c.AppBaseURL }

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	corsOrigins := splitCSV(getEnv("CORS_ORIGINS", "http://localhost:4200"))
	corsAllowAll := strings.EqualFold(getEnv("CORS_ALLOW_ALL", "false"), "true")
	if containsWildcard(corsOrigins) {
		corsAllowAll = true
	}

	cfg := &Config{
		Env:                           getEnv("APP_ENV", "development"),
		HTTPAddr:                      getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL:                   getEnv("DATABASE_URL", ""),
		JWTAccessSecret:               getEnv("JWT_ACCESS_SECRET", ""),
		CORSAllowAll:                  corsAllowAll,
		CORSOrigins:                   corsOrigins,
		CORSAllowCreds:                strings.EqualFold(getEnv("CORS_ALLOW_CREDENTIALS", "true"), "true"),
		AppBaseURL:                    getEnv("APP_BASE_URL", "http://localhost:4200"),
		RepairerJobCap:                mustInt(getEnv("REPAIRER_JOB_CAP", "5")),
		RejectionFeeCents:             mustInt64(getEnv("REJECTION_FEE_CENTS", "15000")),
		CommissionRateBps:             mustInt(getEnv("COMMISSION_RATE_BPS", "1000")),
		TransitionMaxRetries:          mustInt(getEnv("TRANSITION_MAX_RETRIES", "3")),
		CompletionCodeTTL:             mustDuration(getEnv("COMPLETION_CODE_TTL", "5m")),
		CompletionCodeMaxAttempts:     mustInt(getEnv("COMPLETION_CODE_MAX_ATTEMPTS", "5")),
		PaymentPendingTTL:             mustDuration(getEnv("PAYMENT_PENDING_TTL", "30m")),
		Currency:                      getEnv("CURRENCY", "INR"),
		GatewayBaseURL:                getEnv("GATEWAY_BASE_URL", ""),
		GatewayKeyID:                  getEnv("GATEWAY_KEY_ID", ""),
		GatewayKeySecret:              getEnv("GATEWAY_KEY_SECRET", ""),
		GatewayWebhookSecret:          getEnv("GATEWAY_WEBHOOK_SECRET", ""),
		RedisURL:                      getEnv("REDIS_URL", ""),
		RedisTLSInsecure:              strings.EqualFold(getEnv("REDIS_TLS_INSECURE", "false"), "true"),
		AsynqQueueName:                getEnv("ASYNQ_QUEUE", "repairlink"),
		AsynqConcurrency:              mustInt(getEnv("ASYNQ_CONCURRENCY", "10")),
		EmailEnabled:                  strings.EqualFold(getEnv("EMAIL_ENABLED", "false"), "true"),
		SMTPHost:                      getEnv("SMTP_HOST", ""),
		SMTPPort:                      mustInt(getEnv("SMTP_PORT", "587")),
		SMTPUsername:                  getEnv("SMTP_USERNAME", ""),
		SMTPPassword:                  getEnv("SMTP_PASSWORD", ""),
		EmailFromName:                 getEnv("EMAIL_FROM_NAME", "RepairLink"),
		EmailFromAddress:              getEnv("EMAIL_FROM_ADDRESS", ""),
		SMSServiceURL:                 getEnv("SMS_SERVICE_URL", ""),
		SMSServiceKey:                 getEnv("SMS_SERVICE_KEY", ""),
		DirectoryServiceURL:           getEnv("DIRECTORY_SERVICE_URL", ""),
		DirectoryServiceKey:           getEnv("DIRECTORY_SERVICE_KEY", ""),
		ChatServiceURL:                getEnv("CHAT_SERVICE_URL", ""),
		ChatServiceKey:                getEnv("CHAT_SERVICE_KEY", ""),
		MinIOEndpoint:                 getEnv("MINIO_ENDPOINT", ""),
		MinIOAccessKey:                getEnv("MINIO_ACCESS_KEY", ""),
		MinIOSecretKey:                getEnv("MINIO_SECRET_KEY", ""),
		MinIOUseSSL:                   strings.EqualFold(getEnv("MINIO_USE_SSL", "false"), "true"),
		MinIOMaxFileSize:              mustInt64(getEnv("MINIO_MAX_FILE_SIZE", "20971520")),
		MinioBucketCompletionEvidence: getEnv("MINIO_BUCKET_COMPLETION_EVIDENCE", "completion-evidence"),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.JWTAccessSecret == "" {
		return nil, fmt.Errorf("JWT_ACCESS_SECRET is required")
	}
	if cfg.RepairerJobCap < 1 {
		return nil, fmt.Errorf("REPAIRER_JOB_CAP must be at least 1")
	}
	if cfg.CommissionRateBps < 0 || cfg.CommissionRateBps >= 10000 {
		return nil, fmt.Errorf("COMMISSION_RATE_BPS must be in [0, 10000)")
	}
	if cfg.RejectionFeeCents <= 0 {
		return nil, fmt.Errorf("REJECTION_FEE_CENTS must be positive")
	}
	if cfg.IsGatewayEnabled() && cfg.GatewayWebhookSecret == "" {
		return nil, fmt.Errorf("GATEWAY_WEBHOOK_SECRET is required when the gateway is configured")
	}
	if cfg.CORSAllowAll && cfg.CORSAllowCreds {
		return nil, fmt.Errorf("CORS_ALLOW_CREDENTIALS cannot be true when CORS_ALLOW_ALL is true")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func mustDuration(value string) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0
	}
	return d
}

func mustInt(value string) int {
	result, err := strconv.Atoi(value)
	if err != nil {
		return 0
	}
	return result
}

func mustInt64(value string) int64 {
	result, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0
	}
	return result
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	results := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			results = append(results, trimmed)
		}
	}
	return results
}

func containsWildcard(values []string) bool {
	for _, value := range values {
		if value == "*" {
			return true
		}
	}
	return false
}
