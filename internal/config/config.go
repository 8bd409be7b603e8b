package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type AppConfig struct {
	Name string `yaml:"name"`
	Port string `yaml:"port"`
	Env  string `yaml:"env"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            string        `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	DBName          string        `yaml:"dbname"`
	SSLMode         string        `yaml:"sslmode"`
	MaxConns        int32         `yaml:"max_conns"`
	MinConns        int32         `yaml:"min_conns"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"`
	MigrationsPath  string        `yaml:"migrations_path"`
}

type BankAccountConfig struct {
	BankName    string `yaml:"bank_name"`
	AccountName string `yaml:"account_name"`
	IBAN        string `yaml:"iban"`
	SwiftCode   string `yaml:"swift_code"`
}

// SandboxConfig drives the in-memory card, wallet and PayPal gateways. Their charges do not
// survive a restart, so they are refused when the app runs in production.
type SandboxConfig struct {
	Enabled           bool   `yaml:"enabled"`
	DeclineCardSuffix string `yaml:"decline_card_suffix"`
	RedirectBaseURL   string `yaml:"redirect_base_url"`
}

type PaymentConfig struct {
	DefaultCurrency string                   `yaml:"default_currency"`
	TTL             time.Duration            `yaml:"ttl"`
	MethodTTL       map[string]time.Duration `yaml:"method_ttl"`
	BankAccount     BankAccountConfig        `yaml:"bank_account"`
	WebhookSecrets  map[string]string        `yaml:"webhook_secrets"`
	Sandbox         SandboxConfig            `yaml:"sandbox"`
}

type Config struct {
	App      AppConfig      `yaml:"app"`
	Log      LogConfig      `yaml:"log"`
	Postgres PostgresConfig `yaml:"postgres"`
	Payment  PaymentConfig  `yaml:"payment"`
}

// webhookProviders lists the providers whose secrets may come from WEBHOOK_SECRET_<PROVIDER>.
var webhookProviders = []string{"sandbox", "paypal", "wallet", "card"}

func defaults() *Config {
	cfg := &Config{}
	cfg.App.Name = "storefront-service"
	cfg.App.Port = "8080"
	cfg.App.Env = "development"
	cfg.Log.Level = "info"
	cfg.Postgres.Port = "5432"
	cfg.Postgres.SSLMode = "disable"
	cfg.Postgres.MaxConns = 10
	cfg.Postgres.MinConns = 2
	cfg.Postgres.MaxConnLifetime = 30 * time.Minute
	cfg.Postgres.MigrationsPath = "migrations"
	cfg.Payment.DefaultCurrency = "EGP"
	cfg.Payment.TTL = 30 * time.Minute
	cfg.Payment.MethodTTL = map[string]time.Duration{
		"bank_transfer":    72 * time.Hour,
		"cash_on_delivery": 14 * 24 * time.Hour,
	}
	cfg.Payment.WebhookSecrets = map[string]string{}
	cfg.Payment.Sandbox.Enabled = true
	cfg.Payment.Sandbox.DeclineCardSuffix = "0002"
	cfg.Payment.Sandbox.RedirectBaseURL = "http://localhost:8080/sandbox"
	return cfg
}

// Load builds the configuration from defaults, the optional YAML file at path,
// an optional .env file and finally the process environment.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("invalid config file %s: %w", path, err)
			}
		case errors.Is(err, fs.ErrNotExist):
		default:
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func applyEnv(cfg *Config) error {
	setString(&cfg.App.Port, "APP_PORT")
	setString(&cfg.App.Env, "APP_ENV")
	setString(&cfg.Log.Level, "LOG_LEVEL")
	setString(&cfg.Postgres.Host, "DB_HOST")
	setString(&cfg.Postgres.Port, "DB_PORT")
	setString(&cfg.Postgres.User, "DB_USER")
	setString(&cfg.Postgres.Password, "DB_PASSWORD")
	setString(&cfg.Postgres.DBName, "DB_NAME")
	setString(&cfg.Postgres.SSLMode, "DB_SSLMODE")
	setString(&cfg.Postgres.MigrationsPath, "DB_MIGRATIONS_PATH")
	setString(&cfg.Payment.DefaultCurrency, "PAYMENT_DEFAULT_CURRENCY")

	if v := os.Getenv("LOG_PRETTY"); v != "" {
		pretty, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("LOG_PRETTY: %w", err)
		}
		cfg.Log.Pretty = pretty
	}
	if v := os.Getenv("DB_MAX_CONNS"); v != "" {
		n, err := strconv.ParseInt(v, 10, 32)
		if err != nil {
			return fmt.Errorf("DB_MAX_CONNS: %w", err)
		}
		cfg.Postgres.MaxConns = int32(n)
	}
	if v := os.Getenv("PAYMENT_SANDBOX_ENABLED"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("PAYMENT_SANDBOX_ENABLED: %w", err)
		}
		cfg.Payment.Sandbox.Enabled = enabled
	}
	if v := os.Getenv("PAYMENT_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("PAYMENT_TTL: %w", err)
		}
		cfg.Payment.TTL = d
	}

	if cfg.Payment.WebhookSecrets == nil {
		cfg.Payment.WebhookSecrets = map[string]string{}
	}
	for _, provider := range webhookProviders {
		if v := os.Getenv("WEBHOOK_SECRET_" + strings.ToUpper(provider)); v != "" {
			cfg.Payment.WebhookSecrets[provider] = v
		}
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func (c *Config) Validate() error {
	var missing []string
	if c.Postgres.Host == "" {
		missing = append(missing, "DB_HOST")
	}
	if c.Postgres.User == "" {
		missing = append(missing, "DB_USER")
	}
	if c.Postgres.Password == "" {
		missing = append(missing, "DB_PASSWORD")
	}
	if c.Postgres.DBName == "" {
		missing = append(missing, "DB_NAME")
	}
	if len(missing) > 0 {
		return fmt.Errorf("config: missing required settings: %s", strings.Join(missing, ", "))
	}
	if c.Payment.TTL <= 0 {
		return errors.New("config: payment ttl must be positive")
	}
	if len(c.Payment.DefaultCurrency) != 3 {
		return fmt.Errorf("config: invalid default currency %q", c.Payment.DefaultCurrency)
	}
	c.Payment.DefaultCurrency = strings.ToUpper(c.Payment.DefaultCurrency)
	if c.App.Env == "production" && c.Payment.Sandbox.Enabled {
		return errors.New("config: sandbox gateways cannot run in production, set PAYMENT_SANDBOX_ENABLED=false")
	}
	return nil
}

// PaymentTTL returns the expiry window for payments made with method.
func (c PaymentConfig) PaymentTTL(method string) time.Duration {
	if ttl, ok := c.MethodTTL[method]; ok && ttl > 0 {
		return ttl
	}
	return c.TTL
}
