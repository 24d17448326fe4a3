// Package app собирает компоненты бота по конфигурации.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/ivanoskov/expense_bot/internal/bot"
	"github.com/ivanoskov/expense_bot/internal/charts"
	"github.com/ivanoskov/expense_bot/internal/config"
	"github.com/ivanoskov/expense_bot/internal/dispatcher"
	"github.com/ivanoskov/expense_bot/internal/extraction"
	"github.com/ivanoskov/expense_bot/internal/logging"
	"github.com/ivanoskov/expense_bot/internal/metrics"
	"github.com/ivanoskov/expense_bot/internal/model"
	"github.com/ivanoskov/expense_bot/internal/reply"
	"github.com/ivanoskov/expense_bot/internal/repository"
	"github.com/ivanoskov/expense_bot/internal/server"
	"github.com/ivanoskov/expense_bot/internal/service"
	"github.com/ivanoskov/expense_bot/internal/session"
	"github.com/ivanoskov/expense_bot/internal/vocabulary"
)

// Options переопределения для локального запуска и тестов
type Options struct {
	// InMemory хранит расходы в памяти процесса вместо Supabase
	InMemory bool
	// API готовый клиент Telegram; nil означает подключение по токену
	API    bot.API
	Logger logging.Logger
}

// App собранное приложение
type App struct {
	Config     *config.Config
	Logger     logging.Logger
	Registry   *prometheus.Registry
	Metrics    *metrics.Metrics
	Bot        *bot.Bot
	Dispatcher *dispatcher.Dispatcher

	closers []func() error
}

// DemoVocabulary справочник для запуска без Supabase
var DemoVocabulary = model.Vocabulary{
	Categories:     []string{"Прочее", "Еда", "Транспорт", "Дом", "Здоровье", "Развлечения"},
	PaymentMethods: []string{"Наличные", "Карта", "СБП"},
}

// New создает все компоненты. После использования нужно вызвать Close.
func New(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	if err := requireSettings(cfg, opts); err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.NewLogrusAdapter(cfg.Log.Level, cfg.Log.Format)
	}

	a := &App{Config: cfg, Logger: logger, Registry: prometheus.NewRegistry()}
	a.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.Metrics = metrics.New(a.Registry)

	loc := cfg.Location()

	repo, err := a.repository(cfg, opts)
	if err != nil {
		return nil, err
	}

	extractor, err := a.extractor(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}

	api := opts.API
	if api == nil {
		botAPI, err := bot.NewBotAPI(cfg.Telegram.Token, cfg.Telegram.Debug)
		if err != nil {
			a.Close()
			return nil, err
		}
		api = botAPI
	}

	a.Bot = bot.NewBot(api, nil, bot.Options{
		PollTimeout: cfg.Telegram.PollTimeout,
		Metrics:     a.Metrics,
		Logger:      logger,
	})

	formatter := reply.NewFormatter(cfg.Report.Currency)
	deps := dispatcher.Deps{
		Vocabulary:    vocabulary.NewProvider(repo, cfg.Vocabulary.DefaultCategory, cfg.Vocabulary.DefaultPaymentMethod, logger),
		Extractor:     extractor,
		Sessions:      session.NewStore(),
		Gateway:       service.NewExpenseTracker(repo, loc, logger),
		Images:        a.Bot,
		Formatter:     formatter,
		Metrics:       a.Metrics,
		Logger:        logger,
		SummaryMonths: cfg.Report.SummaryMonths,
	}
	if cfg.Report.Charts {
		deps.Charts = charts.NewChartGenerator(formatter.Amount)
	}

	a.Dispatcher = dispatcher.New(deps)
	a.Bot.SetHandler(a.Dispatcher)

	logger.Info("Bot assembled",
		logging.Field{Key: logging.FieldStrategy, Value: extractor.Name()},
		logging.Field{Key: "in_memory", Value: opts.InMemory})
	return a, nil
}

// requireSettings проверяет секреты. Токен не нужен, когда клиент Telegram передан готовым,
// а Supabase не нужен при хранении в памяти.
func requireSettings(cfg *config.Config, opts Options) error {
	var missing []string
	if opts.API == nil && cfg.Telegram.Token == "" {
		missing = append(missing, "TELEGRAM_TOKEN")
	}
	if !opts.InMemory {
		if cfg.Supabase.URL == "" {
			missing = append(missing, "SUPABASE_URL")
		}
		if cfg.Supabase.Key == "" {
			missing = append(missing, "SUPABASE_KEY")
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required settings: %s", strings.Join(missing, ", "))
	}
	return nil
}

func (a *App) repository(cfg *config.Config, opts Options) (repository.Repository, error) {
	if opts.InMemory {
		return repository.NewMemoryRepository(DemoVocabulary), nil
	}

	repo, err := repository.NewSupabaseRepository(repository.SupabaseConfig{
		URL:                 cfg.Supabase.URL,
		Key:                 cfg.Supabase.Key,
		ExpensesTable:       cfg.Supabase.ExpensesTable,
		CategoriesTable:     cfg.Supabase.CategoriesTable,
		PaymentMethodsTable: cfg.Supabase.PaymentMethodsTable,
		PageSize:            cfg.Supabase.PageSize,
		Location:            cfg.Location(),
	}, a.Logger)
	if err != nil {
		return nil, err
	}
	return repo, nil
}

func (a *App) extractor(ctx context.Context, cfg *config.Config) (extraction.Extractor, error) {
	if cfg.Extraction.Strategy != config.StrategyAI {
		return extraction.NewRuleExtractor(nil, cfg.Location()), nil
	}

	backend, err := extraction.NewGeminiBackend(ctx, extraction.GeminiConfig{
		APIKey:            cfg.AI.APIKey,
		Model:             cfg.AI.Model,
		VisionModel:       cfg.AI.VisionModel,
		RequestsPerMinute: cfg.AI.RequestsPerMinute,
		Timeout:           cfg.AITimeout(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini backend: %w", err)
	}
	a.closers = append(a.closers, backend.Close)

	return extraction.NewAIExtractor(backend, cfg.Location(), a.Logger), nil
}

// Router HTTP-маршруты webhook, здоровья и метрик
func (a *App) Router() *gin.Engine {
	mode := gin.ReleaseMode
	if a.Config.Telegram.Debug {
		mode = gin.DebugMode
	}
	return server.NewRouter(server.Config{
		Secret: a.Config.Telegram.WebhookSecret,
		Mode:   mode,
	}, a.Bot, a.Registry, a.Logger)
}

// Close освобождает клиентов внешних сервисов
func (a *App) Close() error {
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c())
	}
	a.closers = nil
	return errors.Join(errs...)
}
