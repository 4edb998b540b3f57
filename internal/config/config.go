package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

type Config struct {
	Port          string
	Environment   string
	StorageDriver string
	SeedFile      string
	Database      DatabaseConfig
	Redis         RedisConfig
	RabbitMQ      RabbitMQConfig
	Gateway       GatewayConfig
	Pricing       PricingConfig
	API           APIConfig
	LogLevel      string
}

type DatabaseConfig struct {
	Host         string
	Port         string
	User         string
	Password     string
	DBName       string
	SSLMode      string
	MaxOpenConns int
}

// DSN builds a lib/pq connection string
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type RabbitMQConfig struct {
	URL      string
	Exchange string
}

type GatewayConfig struct {
	BaseURL          string
	SecretKey        string
	WebhookSecret    string
	Currency         string
	Timeout          time.Duration
	WebhookTolerance time.Duration
}

type PricingConfig struct {
	ShippingFee           decimal.Decimal
	FreeShippingThreshold decimal.Decimal
}

type APIConfig struct {
	JWTSecret      string
	RequestTimeout time.Duration
	IdempotencyTTL time.Duration
}

func Load() (*Config, error) {
	viper.SetConfigType("env")
	viper.SetConfigName(".env")
	viper.AddConfigPath(".")
	viper.AddConfigPath("..")
	viper.AddConfigPath("../..")

	// Set defaults
	viper.SetDefault("PORT", "8080")
	viper.SetDefault("ENVIRONMENT", "development")
	viper.SetDefault("STORAGE_DRIVER", "postgres")
	viper.SetDefault("DB_PORT", "5432")
	viper.SetDefault("DB_SSLMODE", "disable")
	viper.SetDefault("LOG_LEVEL", "info")

	// Read from environment variables
	viper.AutomaticEnv()

	// Try to read .env file (optional)
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	shippingFee, err := getDecimal("SHIPPING_FEE", "5.00")
	if err != nil {
		return nil, err
	}
	freeShipping, err := getDecimal("FREE_SHIPPING_THRESHOLD", "50.00")
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Port:          getEnvOrViper("PORT", "8080"),
		Environment:   getEnvOrViper("ENVIRONMENT", "development"),
		StorageDriver: getEnvOrViper("STORAGE_DRIVER", "postgres"),
		SeedFile:      getEnvOrViper("SEED_FILE", ""),
		Database: DatabaseConfig{
			Host:         getEnvOrViper("DB_HOST", "localhost"),
			Port:         getEnvOrViper("DB_PORT", "5432"),
			User:         getEnvOrViper("DB_USER", "postgres"),
			Password:     getEnvOrViper("DB_PASSWORD", "postgres"),
			DBName:       getEnvOrViper("DB_NAME", "orderengine"),
			SSLMode:      getEnvOrViper("DB_SSLMODE", "disable"),
			MaxOpenConns: getInt("DB_MAX_OPEN_CONNS", 25),
		},
		Redis: RedisConfig{
			Addr:     getEnvOrViper("REDIS_ADDR", ""),
			Password: getEnvOrViper("REDIS_PASSWORD", ""),
			DB:       getInt("REDIS_DB", 0),
		},
		RabbitMQ: RabbitMQConfig{
			URL:      getEnvOrViper("RABBITMQ_URL", ""),
			Exchange: getEnvOrViper("RABBITMQ_EXCHANGE", "orders"),
		},
		Gateway: GatewayConfig{
			BaseURL:          getEnvOrViper("GATEWAY_BASE_URL", "https://api.stripe.com"),
			SecretKey:        getEnvOrViper("GATEWAY_SECRET_KEY", ""),
			WebhookSecret:    getEnvOrViper("GATEWAY_WEBHOOK_SECRET", ""),
			Currency:         getEnvOrViper("GATEWAY_CURRENCY", "usd"),
			Timeout:          getDuration("GATEWAY_TIMEOUT", 10*time.Second),
			WebhookTolerance: getDuration("WEBHOOK_TOLERANCE", 5*time.Minute),
		},
		Pricing: PricingConfig{
			ShippingFee:           shippingFee,
			FreeShippingThreshold: freeShipping,
		},
		API: APIConfig{
			JWTSecret:      getEnvOrViper("JWT_SECRET", ""),
			RequestTimeout: getDuration("REQUEST_TIMEOUT", 15*time.Second),
			IdempotencyTTL: getDuration("IDEMPOTENCY_TTL", 24*time.Hour),
		},
		LogLevel: getEnvOrViper("LOG_LEVEL", "info"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks required fields
func (c *Config) Validate() error {
	if c.API.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.Gateway.WebhookSecret == "" {
		return fmt.Errorf("GATEWAY_WEBHOOK_SECRET is required")
	}
	if c.StorageDriver != "postgres" && c.StorageDriver != "memory" {
		return fmt.Errorf("STORAGE_DRIVER must be postgres or memory, got %q", c.StorageDriver)
	}
	if c.Pricing.ShippingFee.IsNegative() || c.Pricing.FreeShippingThreshold.IsNegative() {
		return fmt.Errorf("SHIPPING_FEE and FREE_SHIPPING_THRESHOLD must not be negative")
	}
	return nil
}

func getEnvOrViper(key, defaultValue string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	if viper.IsSet(key) {
		return viper.GetString(key)
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	v, err := strconv.Atoi(getEnvOrViper(key, strconv.Itoa(defaultValue)))
	if err != nil {
		return defaultValue
	}
	return v
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	d, err := time.ParseDuration(getEnvOrViper(key, defaultValue.String()))
	if err != nil {
		return defaultValue
	}
	return d
}

func getDecimal(key, defaultValue string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(getEnvOrViper(key, defaultValue))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s must be a decimal amount: %w", key, err)
	}
	return d, nil
}
