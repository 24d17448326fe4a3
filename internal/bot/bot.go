// Package bot связывает Telegram с диспетчером диалога.
package bot

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/ivanoskov/expense_bot/internal/dispatcher"
	"github.com/ivanoskov/expense_bot/internal/logging"
	"github.com/ivanoskov/expense_bot/internal/metrics"
	"github.com/ivanoskov/expense_bot/internal/reply"
)

// API методы Telegram Bot API, которые использует бот; *tgbotapi.BotAPI их реализует
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	MakeRequest(endpoint string, params tgbotapi.Params) (*tgbotapi.APIResponse, error)
	GetFileDirectURL(fileID string) (string, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Handler обрабатывает входящее сообщение
type Handler interface {
	Handle(ctx context.Context, in dispatcher.Inbound) reply.Reply
}

// Options необязательные параметры бота
type Options struct {
	// Workers число параллельных обработчиков в режиме polling
	Workers int
	// PollTimeout таймаут long polling в секундах
	PollTimeout int
	HTTPClient  *http.Client
	Metrics     *metrics.Metrics
	Logger      logging.Logger
}

type Bot struct {
	api     API
	handler Handler
	client  *http.Client
	workers int
	timeout int
	metrics *metrics.Metrics
	logger  logging.Logger
}

// NewBotAPI подключается к Telegram по токену
func NewBotAPI(token string, debug bool) (*tgbotapi.BotAPI, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to telegram: %w", err)
	}
	api.Debug = debug
	return api, nil
}

func NewBot(api API, handler Handler, opts Options) *Bot {
	b := &Bot{
		api:     api,
		handler: handler,
		client:  opts.HTTPClient,
		workers: opts.Workers,
		timeout: opts.PollTimeout,
		metrics: opts.Metrics,
		logger:  opts.Logger,
	}
	if b.client == nil {
		b.client = &http.Client{Timeout: 30 * time.Second}
	}
	if b.workers < 1 {
		b.workers = 4
	}
	if b.timeout < 1 {
		b.timeout = 60
	}
	if b.metrics == nil {
		b.metrics = metrics.Discard()
	}
	if b.logger == nil {
		b.logger = logging.NewDiscardLogger()
	}
	return b
}

// SetHandler подключает обработчик. Нужен, когда обработчику самому нужен бот как ImageFetcher.
func (b *Bot) SetHandler(handler Handler) {
	b.handler = handler
}

// Start запускает бота в режиме long polling и блокируется до отмены ctx
func (b *Bot) Start(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = b.timeout

	updates := b.api.GetUpdatesChan(u)
	go func() {
		<-ctx.Done()
		b.api.StopReceivingUpdates()
	}()

	b.logger.Info("Polling for updates", logging.Field{Key: "workers", Value: b.workers})
	b.HandleUpdates(ctx, updates)
	return nil
}

// HandleUpdates обрабатывает поток обновлений несколькими воркерами.
// Обновления одного чата попадают к одному воркеру и обрабатываются по порядку.
func (b *Bot) HandleUpdates(ctx context.Context, updates <-chan tgbotapi.Update) {
	queues := make([]chan tgbotapi.Update, b.workers)
	var wg sync.WaitGroup
	for i := range queues {
		queues[i] = make(chan tgbotapi.Update, 16)
		wg.Add(1)
		go func(queue <-chan tgbotapi.Update) {
			defer wg.Done()
			for update := range queue {
				b.ProcessUpdate(ctx, update)
			}
		}(queues[i])
	}

	for update := range updates {
		queues[shard(chatID(update), b.workers)] <- update
	}

	for _, queue := range queues {
		close(queue)
	}
	wg.Wait()
}

func shard(chatID int64, n int) int {
	if chatID < 0 {
		chatID = -chatID
	}
	return int(chatID % int64(n))
}

// HandleWebhook обрабатывает тело webhook-запроса Telegram
func (b *Bot) HandleWebhook(ctx context.Context, body []byte) error {
	var update tgbotapi.Update
	if err := json.Unmarshal(body, &update); err != nil {
		return fmt.Errorf("failed to decode update: %w", err)
	}

	b.ProcessUpdate(ctx, update)
	return nil
}

// send отправляет ответ: текст с кнопками, затем график, если он есть
func (b *Bot) send(chatID int64, r reply.Reply) error {
	msg := tgbotapi.NewMessage(chatID, r.Text)
	if markup := replyMarkup(r.QuickReplies); markup != nil {
		msg.ReplyMarkup = markup
	}
	if _, err := b.api.Send(msg); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}

	if len(r.Image) == 0 {
		return nil
	}

	name := r.ImageName
	if name == "" {
		name = "chart.png"
	}
	photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileBytes{Name: name, Bytes: r.Image})
	if _, err := b.api.Send(photo); err != nil {
		return fmt.Errorf("failed to send chart: %w", err)
	}
	return nil
}

// SetWebhook регистрирует адрес webhook. Telegram будет присылать secret в
// заголовке X-Telegram-Bot-Api-Secret-Token.
func (b *Bot) SetWebhook(url, secret string) error {
	params := tgbotapi.Params{"url": url}
	params.AddNonEmpty("secret_token", secret)

	if _, err := b.api.MakeRequest("setWebhook", params); err != nil {
		return fmt.Errorf("failed to set webhook: %w", err)
	}
	return nil
}

// DeleteWebhook отключает webhook; без этого Telegram не отдает обновления через polling
func (b *Bot) DeleteWebhook() error {
	if _, err := b.api.MakeRequest("deleteWebhook", tgbotapi.Params{}); err != nil {
		return fmt.Errorf("failed to delete webhook: %w", err)
	}
	return nil
}

// SetCommands публикует список команд в меню Telegram
func (b *Bot) SetCommands() error {
	cfg := tgbotapi.NewSetMyCommands(
		tgbotapi.BotCommand{Command: "help", Description: "Как пользоваться"},
		tgbotapi.BotCommand{Command: "summary", Description: "Итоги по месяцам"},
		tgbotapi.BotCommand{Command: "breakdown", Description: "Расходы по категориям"},
		tgbotapi.BotCommand{Command: "delete", Description: "Удалить последние записи"},
		tgbotapi.BotCommand{Command: "edit", Description: "Изменить последние записи"},
		tgbotapi.BotCommand{Command: "reload", Description: "Перечитать справочник"},
		tgbotapi.BotCommand{Command: "cancel", Description: "Отменить действие"},
	)
	if _, err := b.api.Request(cfg); err != nil {
		return fmt.Errorf("failed to set commands: %w", err)
	}
	return nil
}
