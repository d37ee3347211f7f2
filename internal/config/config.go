package config

import (
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all runtime configuration loaded from environment variables.
type Config struct {
	AppPort        string   `env:"APP_PORT" env-default:"3000"`
	AppEnv         string   `env:"APP_ENV" env-default:"development"`
	LogLevel       string   `env:"LOG_LEVEL" env-default:"info" env-description:"debug, info, warn, error"`
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" env-default:"*" env-separator:","`

	// TrustProxyHeaders keys the rate limiter on X-Forwarded-For / X-Real-Ip.
	// Enable only behind a proxy that overwrites them.
	TrustProxyHeaders bool `env:"TRUST_PROXY_HEADERS" env-default:"false"`

	AWSRegion      string `env:"AWS_REGION" env-default:"us-east-1"`
	AWSEndpointURL string `env:"AWS_ENDPOINT_URL" env-description:"empty in prod, LocalStack URL in dev"`
	AWSAccessKeyID string `env:"AWS_ACCESS_KEY_ID"`
	AWSSecretKey   string `env:"AWS_SECRET_ACCESS_KEY"`
	DynamoTables   DynamoTables

	SMTP SMTPConfig
	SNS  SNSConfig

	// JWTPublicKeyPath points at the identity provider's RS256 public key.
	// Reminder routes are left unauthenticated when it is empty.
	JWTPublicKeyPath string `env:"JWT_PUBLIC_KEY_PATH"`

	Dispatch     DispatchConfig
	Verification VerificationConfig
}

// DynamoTables holds the DynamoDB table name for each entity.
type DynamoTables struct {
	Reminders         string `env:"DYNAMO_TABLE_REMINDERS" env-default:"reminders"`
	VerificationCodes string `env:"DYNAMO_TABLE_VERIFICATION_CODES" env-default:"verification_codes"`
	Users             string `env:"DYNAMO_TABLE_USERS" env-default:"users"`
}

type SMTPConfig struct {
	Host     string `env:"SMTP_HOST" env-default:"localhost"`
	Port     int    `env:"SMTP_PORT" env-default:"1025"`
	From     string `env:"SMTP_FROM" env-default:"noreply@example.com"`
	Username string `env:"SMTP_USERNAME"`
	Password string `env:"SMTP_PASSWORD"`

	// Timeout bounds one whole SMTP session, dial included.
	Timeout time.Duration `env:"SMTP_TIMEOUT" env-default:"10s"`
}

type SNSConfig struct {
	Enabled  bool   `env:"SNS_ENABLED" env-default:"false"`
	Region   string `env:"SNS_REGION" env-default:"us-east-1"`
	SenderID string `env:"SMS_SENDER_ID"`
}

// DispatchConfig tunes the reminder dispatch scheduler.
type DispatchConfig struct {
	Interval    time.Duration `env:"DISPATCH_INTERVAL" env-default:"1m"`
	Concurrency int           `env:"DISPATCH_CONCURRENCY" env-default:"8"`
	SendTimeout time.Duration `env:"SEND_TIMEOUT" env-default:"10s"`
}

// VerificationConfig tunes verification code issuance and validation.
type VerificationConfig struct {
	Cooldown   time.Duration `env:"VERIFICATION_COOLDOWN" env-default:"60s"`
	Validity   time.Duration `env:"VERIFICATION_VALIDITY" env-default:"30m"`
	CodeDigits int           `env:"VERIFICATION_CODE_DIGITS" env-default:"6"`

	// Channel carries codes to the subject. Subjects are email addresses,
	// so email is the only channel accepted.
	Channel string `env:"VERIFICATION_CHANNEL" env-default:"email"`
}

// Load reads all configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("read config from environment: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch {
	case c.Dispatch.Interval <= 0:
		return fmt.Errorf("DISPATCH_INTERVAL must be positive, got %s", c.Dispatch.Interval)
	case c.Dispatch.Concurrency < 1:
		return fmt.Errorf("DISPATCH_CONCURRENCY must be at least 1, got %d", c.Dispatch.Concurrency)
	case c.Dispatch.SendTimeout <= 0:
		return fmt.Errorf("SEND_TIMEOUT must be positive, got %s", c.Dispatch.SendTimeout)
	case c.Verification.Cooldown <= 0:
		return fmt.Errorf("VERIFICATION_COOLDOWN must be positive, got %s", c.Verification.Cooldown)
	case c.Verification.Validity <= 0:
		return fmt.Errorf("VERIFICATION_VALIDITY must be positive, got %s", c.Verification.Validity)
	case c.Verification.CodeDigits < 4 || c.Verification.CodeDigits > 10:
		return fmt.Errorf("VERIFICATION_CODE_DIGITS must be between 4 and 10, got %d", c.Verification.CodeDigits)
	}
	if c.Verification.Channel != "email" {
		return fmt.Errorf("VERIFICATION_CHANNEL must be email, got %q", c.Verification.Channel)
	}
	if c.SMTP.Timeout <= 0 {
		return fmt.Errorf("SMTP_TIMEOUT must be positive, got %s", c.SMTP.Timeout)
	}
	return nil
}

// IsProduction reports whether the app runs with APP_ENV=production.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}
