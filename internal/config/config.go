package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config представляет структуру конфигурации для приложения.
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	GRPC     GRPCConfig     `mapstructure:"grpc"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Gateway  GatewayConfig  `mapstructure:"gateway"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Billing  BillingConfig  `mapstructure:"billing"`
}

// AppConfig общие параметры сервиса
type AppConfig struct {
	Name     string `mapstructure:"name"`
	Env      string `mapstructure:"env"`
	LogLevel string `mapstructure:"logLevel"`
	// LogJSON включает JSON-формат логов
	LogJSON bool `mapstructure:"logJSON"`
}

// HTTPConfig конфигурация HTTP сервера
type HTTPConfig struct {
	Port            string        `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"readTimeout"`
	WriteTimeout    time.Duration `mapstructure:"writeTimeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdownTimeout"`
}

// GRPCConfig конфигурация gRPC сервера
type GRPCConfig struct {
	Port              string        `mapstructure:"port"`
	MaxConnectionIdle time.Duration `mapstructure:"maxConnectionIdle"`
	KeepaliveTime     time.Duration `mapstructure:"keepaliveTime"`
	KeepaliveTimeout  time.Duration `mapstructure:"keepaliveTimeout"`
}

// DatabaseConfig конфигурация базы данных
type DatabaseConfig struct {
	DSN            string        `mapstructure:"dsn"`
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	User           string        `mapstructure:"user"`
	Password       string        `mapstructure:"password"`
	Database       string        `mapstructure:"name"`
	SSLMode        string        `mapstructure:"sslMode"`
	MaxConns       int32         `mapstructure:"maxConns"`
	ConnectTimeout time.Duration `mapstructure:"connectTimeout"`
	Migrate        bool          `mapstructure:"migrate"`
}

// GetDSN возвращает строку подключения к базе данных
func (c *DatabaseConfig) GetDSN() string {
	if c.DSN != "" {
		return c.DSN
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// RedisConfig конфигурация Redis. Пустой Addr отключает Redis.
type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	CacheTTL time.Duration `mapstructure:"cacheTTL"`
	LockTTL  time.Duration `mapstructure:"lockTTL"`
	LockWait time.Duration `mapstructure:"lockWait"`
}

// KafkaConfig конфигурация Kafka. Пустой список брокеров отключает события.
type KafkaConfig struct {
	Brokers      []string `mapstructure:"brokers"`
	ClientID     string   `mapstructure:"clientId"`
	EnsureTopics bool     `mapstructure:"ensureTopics"`
}

// GatewayConfig конфигурация эквайринга
type GatewayConfig struct {
	BaseURL        string        `mapstructure:"baseUrl"`
	TerminalKey    string        `mapstructure:"terminalKey"`
	TerminalSecret string        `mapstructure:"terminalSecret"`
	ConnectTimeout time.Duration `mapstructure:"connectTimeout"`
	ReadTimeout    time.Duration `mapstructure:"readTimeout"`
}

// AuthConfig параметры проверки JWT клиентов и администраторов
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwtSecret"`
}

// BillingConfig параметры расчетов, планировщика и очереди
type BillingConfig struct {
	MaxCorrectionIterations int           `mapstructure:"maxCorrectionIterations"`
	ConfirmAfter            time.Duration `mapstructure:"confirmAfter"`
	PaymentDescription      string        `mapstructure:"paymentDescription"`

	ReceiptEnabled  bool   `mapstructure:"receiptEnabled"`
	ReceiptEmail    string `mapstructure:"receiptEmail"`
	ReceiptTaxation string `mapstructure:"receiptTaxation"`
	ReceiptTax      string `mapstructure:"receiptTax"`
	ReceiptItemName string `mapstructure:"receiptItemName"`

	GenerateSpec      string        `mapstructure:"generateSpec"`
	ConfirmSpec       string        `mapstructure:"confirmSpec"`
	SweepConcurrency  int           `mapstructure:"sweepConcurrency"`
	JobTimeout        time.Duration `mapstructure:"jobTimeout"`
	SweepTimeout      time.Duration `mapstructure:"sweepTimeout"`
	DispatcherWorkers int           `mapstructure:"dispatcherWorkers"`
	DispatcherQueue   int           `mapstructure:"dispatcherQueue"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "parking-payments")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.logLevel", "info")
	v.SetDefault("app.logJSON", false)

	v.SetDefault("http.port", "8080")
	v.SetDefault("http.readTimeout", 15*time.Second)
	v.SetDefault("http.writeTimeout", 15*time.Second)
	v.SetDefault("http.shutdownTimeout", 30*time.Second)

	v.SetDefault("grpc.port", "9090")
	v.SetDefault("grpc.maxConnectionIdle", 5*time.Minute)
	v.SetDefault("grpc.keepaliveTime", 2*time.Hour)
	v.SetDefault("grpc.keepaliveTimeout", 20*time.Second)

	v.SetDefault("database.dsn", "")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.name", "parking")
	v.SetDefault("database.sslMode", "disable")
	v.SetDefault("database.maxConns", 10)
	v.SetDefault("database.connectTimeout", 30*time.Second)
	v.SetDefault("database.migrate", true)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.cacheTTL", 5*time.Minute)
	v.SetDefault("redis.lockTTL", 30*time.Second)
	v.SetDefault("redis.lockWait", 5*time.Second)

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.clientId", "parking-payments")
	v.SetDefault("kafka.ensureTopics", true)

	v.SetDefault("gateway.terminalKey", "")
	v.SetDefault("gateway.terminalSecret", "")
	v.SetDefault("gateway.baseUrl", "https://securepay.tinkoff.ru/v2")
	v.SetDefault("gateway.connectTimeout", 5*time.Second)
	v.SetDefault("gateway.readTimeout", 15*time.Second)

	v.SetDefault("auth.jwtSecret", "")

	v.SetDefault("billing.maxCorrectionIterations", 5)
	v.SetDefault("billing.confirmAfter", 72*time.Hour)
	v.SetDefault("billing.paymentDescription", "Оплата парковки")
	v.SetDefault("billing.receiptEnabled", false)
	v.SetDefault("billing.receiptEmail", "")
	v.SetDefault("billing.receiptTaxation", "osn")
	v.SetDefault("billing.receiptTax", "none")
	v.SetDefault("billing.receiptItemName", "Парковка")
	v.SetDefault("billing.generateSpec", "@every 30s")
	v.SetDefault("billing.confirmSpec", "@every 1h")
	v.SetDefault("billing.sweepConcurrency", 8)
	v.SetDefault("billing.jobTimeout", time.Minute)
	v.SetDefault("billing.sweepTimeout", 10*time.Minute)
	v.SetDefault("billing.dispatcherWorkers", 4)
	v.SetDefault("billing.dispatcherQueue", 256)
}

// LoadConfig загружает конфигурацию из config.yaml в каталоге path и переменных
// окружения (APP_ENV, HTTP_PORT, BILLING_CONFIRMAFTER, ...). Вне production
// предварительно читается .env, если он есть.
func LoadConfig(path string) (*Config, error) {
	if os.Getenv("APP_ENV") != "production" {
		if err := godotenv.Load(filepath.Join(path, ".env")); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load .env: %w", err)
		}
	}

	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(path)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv() // Чтение переменных окружения

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate проверяет обязательные параметры
func (c *Config) Validate() error {
	var errs []error
	if c.Gateway.TerminalKey == "" {
		errs = append(errs, errors.New("gateway.terminalKey is required"))
	}
	if c.Gateway.TerminalSecret == "" {
		errs = append(errs, errors.New("gateway.terminalSecret is required"))
	}
	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("auth.jwtSecret is required"))
	}
	if c.Billing.MaxCorrectionIterations <= 0 {
		errs = append(errs, errors.New("billing.maxCorrectionIterations must be positive"))
	}
	return errors.Join(errs...)
}

// IsProduction сообщает, запущен ли сервис в production
func (c *Config) IsProduction() bool {
	return c.App.Env == "production"
}
