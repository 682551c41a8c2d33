package config

import (
	"fmt"
	"net/mail"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Logger   LoggerConfig
	Auth     AuthConfig
	Stripe   StripeConfig
	Email    EmailConfig
	Store    StoreConfig
	Shipping ShippingConfig
	Kafka    KafkaConfig
	Outbox   OutboxConfig
	S3       S3Config
}

// ServerConfig holds server-related configuration.
type ServerConfig struct {
	Host            string
	Port            int
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
}

// DatabaseConfig holds database-related configuration.
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	MaxConnections  int
	MinConnections  int
	MaxConnLifetime int // seconds
	AutoMigrate     bool

	// Zero leaves the server default. Stock and order rows are locked
	// while a cancellation waits on the gateway.
	LockTimeout      time.Duration
	StatementTimeout time.Duration
}

// LoggerConfig holds logger-related configuration.
type LoggerConfig struct {
	Level  string
	Format string // "json" or "console"
}

// AuthConfig holds the admin API key.
type AuthConfig struct {
	APIKey string
}

// StripeConfig holds payment gateway credentials.
type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
}

// EmailConfig holds transactional email settings.
// An empty ResendAPIKey selects the logging sender.
type EmailConfig struct {
	ResendAPIKey    string
	From            string
	AdminRecipients []string
	SendDelay       time.Duration
}

// StoreConfig holds storefront business settings.
type StoreConfig struct {
	BaseURL           string
	Currency          string
	TaxRate           string
	LowStockThreshold int
	ReturnWindowDays  int
	DocumentsDir      string
	Name              string
	ReturnAddress     ReturnAddress
}

// ReturnAddress is where customers send returns.
type ReturnAddress struct {
	Street     string
	City       string
	PostalCode string
	Country    string
}

// ShippingConfig holds shipping fees in minor units.
type ShippingConfig struct {
	Standard      int64
	Express       int64
	FreeThreshold int64
}

// KafkaConfig holds event publishing settings. No brokers disables publishing.
type KafkaConfig struct {
	Brokers  []string
	Topic    string
	ClientID string
}

// OutboxConfig holds notification dispatcher settings.
type OutboxConfig struct {
	PollInterval time.Duration
	BatchSize    int
	MaxAttempts  int
	BaseBackoff  time.Duration
}

// S3Config holds AWS S3 configuration for coupon catalogues and return labels.
type S3Config struct {
	Enabled         bool
	Bucket          string
	Region          string
	Prefix          string // coupon catalogue prefix within bucket (e.g., "coupons/")
	DocumentsPrefix string // label prefix within bucket (e.g., "labels/")
}

// Load loads configuration from an optional .env file and environment variables.
func Load() (*Config, error) {
	// Missing .env is fine; real environment variables take precedence.
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getEnvAsInt("SERVER_PORT", 8080),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 15*time.Second),
			AllowedOrigins:  getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		},
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnvAsInt("DB_PORT", 5432),
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", ""),
			Database:        getEnv("DB_NAME", "storefront"),
			MaxConnections:  getEnvAsInt("DB_MAX_CONNECTIONS", 25),
			MinConnections:  getEnvAsInt("DB_MIN_CONNECTIONS", 5),
			MaxConnLifetime: getEnvAsInt("DB_MAX_CONN_LIFETIME", 300),
			AutoMigrate:     getEnvAsBool("DB_AUTO_MIGRATE", true),

			LockTimeout:      getEnvAsDuration("DB_LOCK_TIMEOUT", 10*time.Second),
			StatementTimeout: getEnvAsDuration("DB_STATEMENT_TIMEOUT", 30*time.Second),
		},
		Logger: LoggerConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Auth: AuthConfig{
			APIKey: getEnv("API_KEY", ""),
		},
		Stripe: StripeConfig{
			SecretKey:     getEnv("STRIPE_SECRET_KEY", ""),
			WebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),
		},
		Email: EmailConfig{
			ResendAPIKey:    getEnv("RESEND_API_KEY", ""),
			From:            getEnv("EMAIL_FROM", "Tienda <pedidos@example.com>"),
			AdminRecipients: getEnvAsList("ADMIN_EMAILS", nil),
			SendDelay:       getEnvAsDuration("EMAIL_SEND_DELAY", 600*time.Millisecond),
		},
		Store: StoreConfig{
			BaseURL:           strings.TrimRight(getEnv("STORE_BASE_URL", "http://localhost:3000"), "/"),
			Currency:          strings.ToLower(getEnv("STORE_CURRENCY", "eur")),
			TaxRate:           getEnv("TAX_RATE", "0.21"),
			LowStockThreshold: getEnvAsInt("LOW_STOCK_THRESHOLD", 5),
			ReturnWindowDays:  getEnvAsInt("RETURN_WINDOW_DAYS", 30),
			DocumentsDir:      getEnv("DOCUMENTS_DIR", "data/documents"),
			Name:              getEnv("STORE_NAME", "Tienda"),
			ReturnAddress: ReturnAddress{
				Street:     getEnv("RETURN_ADDRESS_STREET", ""),
				City:       getEnv("RETURN_ADDRESS_CITY", ""),
				PostalCode: getEnv("RETURN_ADDRESS_POSTAL_CODE", ""),
				Country:    getEnv("RETURN_ADDRESS_COUNTRY", "ES"),
			},
		},
		Shipping: ShippingConfig{
			Standard:      int64(getEnvAsInt("SHIPPING_STANDARD", 495)),
			Express:       int64(getEnvAsInt("SHIPPING_EXPRESS", 995)),
			FreeThreshold: int64(getEnvAsInt("SHIPPING_FREE_THRESHOLD", 5000)),
		},
		Kafka: KafkaConfig{
			Brokers:  getEnvAsList("KAFKA_BROKERS", nil),
			Topic:    getEnv("KAFKA_TOPIC", "storefront.events"),
			ClientID: getEnv("KAFKA_CLIENT_ID", "storefront"),
		},
		Outbox: OutboxConfig{
			PollInterval: getEnvAsDuration("OUTBOX_POLL_INTERVAL", 2*time.Second),
			BatchSize:    getEnvAsInt("OUTBOX_BATCH_SIZE", 20),
			MaxAttempts:  getEnvAsInt("OUTBOX_MAX_ATTEMPTS", 5),
			BaseBackoff:  getEnvAsDuration("OUTBOX_BASE_BACKOFF", 100*time.Millisecond),
		},
		S3: S3Config{
			Enabled:         getEnvAsBool("S3_ENABLED", false),
			Bucket:          getEnv("S3_BUCKET", ""),
			Region:          getEnv("S3_REGION", "eu-west-1"),
			Prefix:          getEnv("S3_PREFIX", "coupons/"),
			DocumentsPrefix: getEnv("S3_DOCUMENTS_PREFIX", "labels/"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if c.Database.Port < 1 || c.Database.Port > 65535 {
		return fmt.Errorf("invalid database port: %d", c.Database.Port)
	}

	if c.Database.User == "" {
		return fmt.Errorf("database user is required")
	}

	if c.Database.Database == "" {
		return fmt.Errorf("database name is required")
	}

	if c.Database.MaxConnections < 1 {
		return fmt.Errorf("database max connections must be at least 1")
	}

	if c.Database.MinConnections < 1 {
		return fmt.Errorf("database min connections must be at least 1")
	}

	if c.Database.MinConnections > c.Database.MaxConnections {
		return fmt.Errorf("database min connections cannot exceed max connections")
	}

	if c.Database.LockTimeout < 0 || c.Database.StatementTimeout < 0 {
		return fmt.Errorf("database timeouts cannot be negative")
	}

	if c.Auth.APIKey == "" {
		return fmt.Errorf("API key is required")
	}

	if c.Stripe.SecretKey == "" {
		return fmt.Errorf("stripe secret key is required")
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}

	if !validLogLevels[c.Logger.Level] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logger.Level)
	}

	if c.Logger.Format != "json" && c.Logger.Format != "console" {
		return fmt.Errorf("invalid log format: %s (must be json or console)", c.Logger.Format)
	}

	for _, addr := range c.Email.AdminRecipients {
		if _, err := mail.ParseAddress(addr); err != nil {
			return fmt.Errorf("invalid admin email %q: %w", addr, err)
		}
	}

	rate, err := c.Store.TaxRateDecimal()
	if err != nil {
		return fmt.Errorf("invalid tax rate %q: %w", c.Store.TaxRate, err)
	}
	if rate.IsNegative() || rate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return fmt.Errorf("tax rate must be in [0, 1): %s", c.Store.TaxRate)
	}

	if c.Store.ReturnWindowDays < 1 {
		return fmt.Errorf("return window must be at least 1 day")
	}

	if c.Shipping.Standard < 0 || c.Shipping.Express < 0 || c.Shipping.FreeThreshold < 0 {
		return fmt.Errorf("shipping amounts cannot be negative")
	}

	if c.Outbox.BatchSize < 1 {
		return fmt.Errorf("outbox batch size must be at least 1")
	}

	if c.Outbox.MaxAttempts < 1 {
		return fmt.Errorf("outbox max attempts must be at least 1")
	}

	if c.Outbox.PollInterval <= 0 {
		return fmt.Errorf("outbox poll interval must be positive")
	}

	if c.S3.Enabled {
		if c.S3.Bucket == "" {
			return fmt.Errorf("S3 bucket is required when S3 is enabled")
		}
		if c.S3.Region == "" {
			return fmt.Errorf("S3 region is required when S3 is enabled")
		}
	}

	return nil
}

// ConnectionString returns the PostgreSQL connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.User,
		c.Password,
		c.Host,
		c.Port,
		c.Database,
	)
}

// Address returns the server address.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// TaxRateDecimal parses the configured tax rate.
func (c *StoreConfig) TaxRateDecimal() (decimal.Decimal, error) {
	return decimal.NewFromString(c.TaxRate)
}

// ReturnWindow returns the return window as a duration.
func (c *StoreConfig) ReturnWindow() time.Duration {
	return time.Duration(c.ReturnWindowDays) * 24 * time.Hour
}

// getEnv retrieves an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value.
func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value.
func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvAsDuration retrieves an environment variable as a time.Duration or returns a default value.
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvAsList retrieves a comma-separated environment variable or returns a default value.
func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
