// Package config загружает настройки бота: значения по умолчанию, config.yaml и переменные окружения.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/Rhymond/go-money"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Стратегии извлечения расходов
const (
	StrategyRule = "rule"
	StrategyAI   = "ai"
)

// EnvPrefix префикс переменных окружения
const EnvPrefix = "EXPENSE_BOT"

// Config полная конфигурация приложения
type Config struct {
	Log struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	} `mapstructure:"log"`

	Telegram struct {
		Token         string `mapstructure:"token"`
		WebhookSecret string `mapstructure:"webhook_secret"`
		Debug         bool   `mapstructure:"debug"`
		PollTimeout   int    `mapstructure:"poll_timeout"`
	} `mapstructure:"telegram"`

	Supabase struct {
		URL                 string `mapstructure:"url"`
		Key                 string `mapstructure:"key"`
		ExpensesTable       string `mapstructure:"expenses_table"`
		CategoriesTable     string `mapstructure:"categories_table"`
		PaymentMethodsTable string `mapstructure:"payment_methods_table"`
		PageSize            int    `mapstructure:"page_size"`
	} `mapstructure:"supabase"`

	Extraction struct {
		Strategy string `mapstructure:"strategy"`
	} `mapstructure:"extraction"`

	AI struct {
		APIKey            string `mapstructure:"api_key"`
		Model             string `mapstructure:"model"`
		VisionModel       string `mapstructure:"vision_model"`
		RequestsPerMinute int    `mapstructure:"requests_per_minute"`
		TimeoutSeconds    int    `mapstructure:"timeout_seconds"`
	} `mapstructure:"ai"`

	Vocabulary struct {
		DefaultCategory      string `mapstructure:"default_category"`
		DefaultPaymentMethod string `mapstructure:"default_payment_method"`
	} `mapstructure:"vocabulary"`

	Report struct {
		SummaryMonths int    `mapstructure:"summary_months"`
		TimeZone      string `mapstructure:"time_zone"`
		Currency      string `mapstructure:"currency"`
		Charts        bool   `mapstructure:"charts"`
	} `mapstructure:"report"`

	Server struct {
		Addr                   string `mapstructure:"addr"`
		ShutdownTimeoutSeconds int    `mapstructure:"shutdown_timeout_seconds"`
	} `mapstructure:"server"`
}

// LoadEnv подгружает .env, если он есть; отсутствие файла не ошибка
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	return nil
}

// LoadConfig читает конфигурацию: значения по умолчанию, затем файл, затем окружение
func LoadConfig() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("$HOME/.expense-bot")
	v.AddConfigPath(".expense-bot")
	v.AddConfigPath(".")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file %s: %w", v.ConfigFileUsed(), err)
		}
	}

	// Секреты по привычке берутся из переменных без префикса
	bindings := map[string]string{
		"telegram.token": "TELEGRAM_TOKEN",
		"supabase.url":   "SUPABASE_URL",
		"supabase.key":   "SUPABASE_KEY",
		"ai.api_key":     "GEMINI_API_KEY",
	}
	for key, env := range bindings {
		if err := v.BindEnv(key, EnvPrefix+"_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("telegram.token", "")
	v.SetDefault("telegram.webhook_secret", "")
	v.SetDefault("telegram.debug", false)
	v.SetDefault("telegram.poll_timeout", 60)

	v.SetDefault("supabase.url", "")
	v.SetDefault("supabase.key", "")
	v.SetDefault("supabase.expenses_table", "expenses")
	v.SetDefault("supabase.categories_table", "categories")
	v.SetDefault("supabase.payment_methods_table", "payment_methods")
	v.SetDefault("supabase.page_size", 100)

	v.SetDefault("extraction.strategy", StrategyRule)

	v.SetDefault("ai.api_key", "")
	v.SetDefault("ai.model", "gemini-2.0-flash")
	v.SetDefault("ai.vision_model", "gemini-2.0-flash")
	v.SetDefault("ai.requests_per_minute", 15)
	v.SetDefault("ai.timeout_seconds", 30)

	v.SetDefault("vocabulary.default_category", "Прочее")
	v.SetDefault("vocabulary.default_payment_method", "Наличные")

	v.SetDefault("report.summary_months", 3)
	v.SetDefault("report.time_zone", "Europe/Moscow")
	v.SetDefault("report.currency", money.RUB)
	v.SetDefault("report.charts", true)

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.shutdown_timeout_seconds", 10)
}

// Validate проверяет значения конфигурации
func (c *Config) Validate() error {
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("invalid log level: %s", c.Log.Level)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("invalid log format: %s (must be 'text' or 'json')", c.Log.Format)
	}

	switch c.Extraction.Strategy {
	case StrategyRule:
	case StrategyAI:
		if c.AI.APIKey == "" {
			return errors.New("GEMINI_API_KEY required when extraction.strategy is 'ai'")
		}
		if c.AI.RequestsPerMinute < 1 || c.AI.RequestsPerMinute > 1000 {
			return fmt.Errorf("ai.requests_per_minute must be between 1 and 1000, got: %d", c.AI.RequestsPerMinute)
		}
		if c.AI.TimeoutSeconds < 1 || c.AI.TimeoutSeconds > 300 {
			return fmt.Errorf("ai.timeout_seconds must be between 1 and 300, got: %d", c.AI.TimeoutSeconds)
		}
	default:
		return fmt.Errorf("invalid extraction strategy: %s (must be '%s' or '%s')", c.Extraction.Strategy, StrategyRule, StrategyAI)
	}

	if c.Vocabulary.DefaultCategory == "" || c.Vocabulary.DefaultPaymentMethod == "" {
		return errors.New("vocabulary defaults must not be empty")
	}

	if c.Report.SummaryMonths < 1 || c.Report.SummaryMonths > 24 {
		return fmt.Errorf("report.summary_months must be between 1 and 24, got: %d", c.Report.SummaryMonths)
	}
	if _, err := time.LoadLocation(c.Report.TimeZone); err != nil {
		return fmt.Errorf("invalid report.time_zone %q: %w", c.Report.TimeZone, err)
	}
	if money.GetCurrency(c.Report.Currency) == nil {
		return fmt.Errorf("unknown report.currency: %s", c.Report.Currency)
	}

	if c.Supabase.PageSize < 1 || c.Supabase.PageSize > 1000 {
		return fmt.Errorf("supabase.page_size must be between 1 and 1000, got: %d", c.Supabase.PageSize)
	}

	return nil
}

// RequireRuntime проверяет секреты, без которых бот не запустится
func (c *Config) RequireRuntime() error {
	var missing []string
	if c.Telegram.Token == "" {
		missing = append(missing, "TELEGRAM_TOKEN")
	}
	if c.Supabase.URL == "" {
		missing = append(missing, "SUPABASE_URL")
	}
	if c.Supabase.Key == "" {
		missing = append(missing, "SUPABASE_KEY")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required settings: %s", strings.Join(missing, ", "))
	}
	return nil
}

// Location часовой пояс для вычисления "текущего месяца"
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Report.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// AITimeout таймаут одного запроса к модели
func (c *Config) AITimeout() time.Duration {
	return time.Duration(c.AI.TimeoutSeconds) * time.Second
}

// ShutdownTimeout время на корректную остановку HTTP-сервера
func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.Server.ShutdownTimeoutSeconds) * time.Second
}
