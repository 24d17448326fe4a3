package main

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
	"sync"

	"github.com/ivanoskov/expense_bot/internal/app"
	"github.com/ivanoskov/expense_bot/internal/config"
	"github.com/ivanoskov/expense_bot/internal/server"
)

// Request структура входящего запроса от API Gateway
type Request struct {
	Body    string            `json:"body"`
	Headers map[string]string `json:"headers,omitempty"`
}

// Response структура ответа для API Gateway
type Response struct {
	StatusCode int               `json:"statusCode"`
	Body       string            `json:"body"`
	Headers    map[string]string `json:"headers,omitempty"`
}

// Приложение собирается один раз на теплый экземпляр функции
var (
	mu       sync.Mutex
	instance *app.App
	build    = func(ctx context.Context) (*app.App, error) {
		if err := config.LoadEnv(); err != nil {
			return nil, err
		}
		cfg, err := config.LoadConfig()
		if err != nil {
			return nil, err
		}
		if err := cfg.RequireRuntime(); err != nil {
			return nil, err
		}
		return app.New(ctx, cfg, app.Options{})
	}
)

func getApp(ctx context.Context) (*app.App, error) {
	mu.Lock()
	defer mu.Unlock()

	if instance != nil {
		return instance, nil
	}
	a, err := build(ctx)
	if err != nil {
		return nil, err
	}
	instance = a
	return instance, nil
}

// Handler обрабатывает webhook-обновление. Ответ всегда 200, кроме неверного секрета:
// иначе Telegram будет бесконечно повторять одно и то же обновление.
func Handler(ctx context.Context, request Request) (*Response, error) {
	a, err := getApp(ctx)
	if err != nil {
		// Логгер еще не создан, поэтому ошибка уходит в ответ для логов платформы
		return response(http.StatusOK, err.Error()), nil
	}

	if secret := a.Config.Telegram.WebhookSecret; secret != "" {
		if subtle.ConstantTimeCompare([]byte(header(request.Headers, server.SecretHeader)), []byte(secret)) != 1 {
			return response(http.StatusUnauthorized, ""), nil
		}
	}

	if err := a.Bot.HandleWebhook(ctx, []byte(request.Body)); err != nil {
		a.Logger.WithError(err).Warn("Failed to handle webhook")
	}
	return response(http.StatusOK, ""), nil
}

// header ищет заголовок без учета регистра: шлюзы по-разному нормализуют имена
func header(headers map[string]string, name string) string {
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

func response(status int, body string) *Response {
	return &Response{
		StatusCode: status,
		Body:       body,
		Headers: map[string]string{
			"Content-Type": "application/json",
		},
	}
}

func main() {
	// Точка входа для локального тестирования
}
