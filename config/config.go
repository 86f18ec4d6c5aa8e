package config

import (
	"fmt"
	"log"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

type Config struct {
	Port          string `env:"PORT" env-default:"8080"`
	AppURL        string `env:"APP_URL" env-default:"http://localhost:5173"`
	PublicBaseURL string `env:"PUBLIC_BASE_URL"`
	CORSOrigin    string `env:"CORS_ORIGIN" env-default:"http://localhost:5173"`
	DBURL         string `env:"DB_URL" env-required:"true"`
	JWTSecret     string `env:"JWT_SECRET" env-required:"true"`
	LogLevel      string `env:"LOG_LEVEL" env-default:"info"`

	DefaultCurrency      string        `env:"DEFAULT_CURRENCY" env-default:"EUR"`
	InvoiceDueDays       int           `env:"INVOICE_DUE_DAYS" env-default:"7"`
	GatewayTimeout       time.Duration `env:"GATEWAY_TIMEOUT" env-default:"15s"`
	NotifyTimeout        time.Duration `env:"NOTIFY_TIMEOUT" env-default:"10s"`
	TransferInstructions string        `env:"TRANSFER_INSTRUCTIONS"`

	Stripe  StripeConfig
	Paylink PaylinkConfig
	Storage StorageConfig
	Mail    MailConfig
	Kafka   KafkaConfig

	RedisURL string `env:"REDIS_URL"`
}

type StripeConfig struct {
	SecretKey     string `env:"STRIPE_SECRET_KEY"`
	WebhookSecret string `env:"STRIPE_WEBHOOK_SECRET"`
	APIURL        string `env:"STRIPE_API_URL"`
}

type PaylinkConfig struct {
	BaseURL       string `env:"PAYLINK_BASE_URL"`
	APIKey        string `env:"PAYLINK_API_KEY"`
	WebhookSecret string `env:"PAYLINK_WEBHOOK_SECRET"`
}

type StorageConfig struct {
	UploadDir     string `env:"UPLOAD_DIR" env-default:"./uploads"`
	MaxProofBytes int64  `env:"MAX_PROOF_BYTES" env-default:"5242880"`
	S3Bucket      string `env:"S3_BUCKET"`
	S3Region      string `env:"S3_REGION" env-default:"us-east-1"`
	S3Endpoint    string `env:"S3_ENDPOINT"`
	S3AccessKey   string `env:"S3_ACCESS_KEY"`
	S3SecretKey   string `env:"S3_SECRET_KEY"`
}

type MailConfig struct {
	PostmarkToken string `env:"POSTMARK_API_TOKEN"`
	From          string `env:"EMAIL_SENDER"`
	AdminEmail    string `env:"ADMIN_EMAIL"`
	SMTPHost      string `env:"SMTP_HOST"`
	SMTPPort      string `env:"SMTP_PORT" env-default:"587"`
	SMTPUser      string `env:"SMTP_FROM"`
	SMTPPassword  string `env:"SMTP_PASSWORD"`
}

type KafkaConfig struct {
	Brokers []string `env:"KAFKA_BROKERS" env-separator:","`
	Topic   string   `env:"KAFKA_TOPIC" env-default:"payment-events"`
}

// StripeEnabled reports whether both halves of the Stripe integration are
// configured. A gateway without a webhook secret is never registered.
func (c *Config) StripeEnabled() bool {
	return c.Stripe.SecretKey != "" && c.Stripe.WebhookSecret != ""
}

func (c *Config) PaylinkEnabled() bool {
	return c.Paylink.BaseURL != "" && c.Paylink.APIKey != "" && c.Paylink.WebhookSecret != ""
}

func (c *Config) S3Enabled() bool {
	return c.Storage.S3Bucket != ""
}

func (c *Config) InvoiceDue() time.Duration {
	return time.Duration(c.InvoiceDueDays) * 24 * time.Hour
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found. Using system environment variables.")
	}

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}
	if cfg.InvoiceDueDays <= 0 {
		return nil, fmt.Errorf("INVOICE_DUE_DAYS must be positive, got %d", cfg.InvoiceDueDays)
	}
	if cfg.Storage.MaxProofBytes <= 0 {
		return nil, fmt.Errorf("MAX_PROOF_BYTES must be positive, got %d", cfg.Storage.MaxProofBytes)
	}
	return &cfg, nil
}
