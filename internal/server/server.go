// Package server HTTP-вход для webhook Telegram, проверки здоровья и метрик.
package server

import (
	"context"
	"crypto/subtle"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ivanoskov/expense_bot/internal/logging"
)

// SecretHeader заголовок, в котором Telegram присылает секрет webhook
const SecretHeader = "X-Telegram-Bot-Api-Secret-Token"

// maxBodySize ограничение размера тела webhook-запроса
const maxBodySize = 1 << 20

// WebhookHandler обрабатывает тело обновления Telegram
type WebhookHandler interface {
	HandleWebhook(ctx context.Context, body []byte) error
}

// Config параметры HTTP-сервера
type Config struct {
	Secret string
	// Mode режим gin: debug, release или test
	Mode string
}

// HealthResponse ответ GET /health
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// NewRouter собирает маршруты. gatherer может быть nil, тогда /metrics не регистрируется.
func NewRouter(cfg Config, webhook WebhookHandler, gatherer prometheus.Gatherer, logger logging.Logger) *gin.Engine {
	if cfg.Mode != "" {
		gin.SetMode(cfg.Mode)
	}

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(logger))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, HealthResponse{
			Status:    "ok",
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		})
	})

	if gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	r.POST("/webhook", webhookHandler(cfg.Secret, webhook, logger))
	return r
}

// webhookHandler всегда отвечает 200 на корректный запрос, иначе Telegram
// будет повторять доставку одного и того же обновления.
func webhookHandler(secret string, webhook WebhookHandler, logger logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret != "" && subtle.ConstantTimeCompare([]byte(c.GetHeader(SecretHeader)), []byte(secret)) != 1 {
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}

		body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodySize))
		if err != nil {
			logger.WithError(err).Warn("Failed to read webhook body")
			c.Status(http.StatusOK)
			return
		}

		if err := webhook.HandleWebhook(c.Request.Context(), body); err != nil {
			logger.WithError(err).Warn("Failed to handle webhook")
		}
		c.Status(http.StatusOK)
	}
}

func requestLogger(logger logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("HTTP request",
			logging.Field{Key: "method", Value: c.Request.Method},
			logging.Field{Key: "path", Value: c.FullPath()},
			logging.Field{Key: "status", Value: c.Writer.Status()},
			logging.Field{Key: logging.FieldDuration, Value: time.Since(start).Milliseconds()})
	}
}

// Run запускает сервер и останавливает его с таймаутом после отмены ctx
func Run(ctx context.Context, addr string, handler http.Handler, shutdownTimeout time.Duration, logger logging.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", logging.Field{Key: "addr", Value: addr})
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
