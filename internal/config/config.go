package config

import (
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds all runtime configuration loaded from environment variables.
type Config struct {
	AppPort string `env:"APP_PORT" envDefault:"3000"`
	AppEnv  string `env:"APP_ENV" envDefault:"development"`

	AWSRegion      string `env:"AWS_REGION" envDefault:"us-east-1"`
	AWSEndpointURL string `env:"AWS_ENDPOINT_URL"` // empty in prod, set to LocalStack URL in dev
	AWSAccessKeyID string `env:"AWS_ACCESS_KEY_ID"`
	AWSSecretKey   string `env:"AWS_SECRET_ACCESS_KEY"`

	DynamoTables DynamoTables `envPrefix:"DYNAMO_TABLE_"`

	S3BucketName      string `env:"S3_BUCKET_NAME" envDefault:"wave-reference"`
	CountryCatalogKey string `env:"COUNTRY_CATALOG_KEY"` // empty = embedded catalog

	JWTPrivateKeyPath string        `env:"JWT_PRIVATE_KEY_PATH" envDefault:"./private_key.pem"`
	JWTPublicKeyPath  string        `env:"JWT_PUBLIC_KEY_PATH" envDefault:"./public_key.pem"`
	JWTExpiry         time.Duration `env:"JWT_EXPIRY" envDefault:"168h"`

	SNSRegion string `env:"SNS_REGION" envDefault:"us-east-1"`

	OTPDevMode     bool          `env:"OTP_DEV_MODE" envDefault:"false"`
	OTPExpiry      time.Duration `env:"OTP_EXPIRY" envDefault:"10m"`
	OTPMaxAttempts int           `env:"OTP_MAX_ATTEMPTS" envDefault:"5"`
	OTPRateWindow  time.Duration `env:"OTP_RATE_WINDOW" envDefault:"10m"`
	OTPRateMax     int           `env:"OTP_RATE_MAX" envDefault:"3"`

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	AttestationMode       string        `env:"ATTESTATION_MODE" envDefault:"debug"` // platform | google | debug | off
	AttestationDebugToken string        `env:"ATTESTATION_DEBUG_TOKEN"`
	AttestationTTL        time.Duration `env:"ATTESTATION_TTL" envDefault:"1h"`
	GoogleClientID        string        `env:"GOOGLE_CLIENT_ID"`

	DeviceIdleTimeout time.Duration `env:"DEVICE_IDLE_TIMEOUT" envDefault:"30m"`
	AllowedOrigins    []string      `env:"ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`
	TrustProxyHeaders bool          `env:"TRUST_PROXY_HEADERS" envDefault:"false"` // behind a load balancer that sets X-Forwarded-For
}

// DynamoTables holds the DynamoDB table name for each entity.
type DynamoTables struct {
	Accounts      string `env:"ACCOUNTS" envDefault:"accounts"`
	Identities    string `env:"IDENTITIES" envDefault:"identities"`
	Messages      string `env:"MESSAGES" envDefault:"messages"`
	Verifications string `env:"VERIFICATIONS" envDefault:"verifications"`
}

// Load reads all configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// IsProduction reports whether the service runs with production defaults.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}
