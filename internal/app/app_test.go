package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ivanoskov/expense_bot/internal/config"
	"github.com/ivanoskov/expense_bot/internal/logging"
)

type fakeAPI struct {
	mu   sync.Mutex
	sent []tgbotapi.Chattable
}

func (f *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, c)
	return tgbotapi.Message{}, nil
}

func (f *fakeAPI) Request(tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeAPI) MakeRequest(string, tgbotapi.Params) (*tgbotapi.APIResponse, error) {
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeAPI) GetFileDirectURL(string) (string, error) { return "", nil }

func (f *fakeAPI) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return make(chan tgbotapi.Update)
}

func (f *fakeAPI) StopReceivingUpdates() {}

func testConfig() *config.Config {
	var c config.Config
	c.Log.Level = "info"
	c.Log.Format = "text"
	c.Extraction.Strategy = config.StrategyRule
	c.Vocabulary.DefaultCategory = "Прочее"
	c.Vocabulary.DefaultPaymentMethod = "Наличные"
	c.Report.SummaryMonths = 3
	c.Report.TimeZone = "Europe/Moscow"
	c.Report.Currency = "RUB"
	c.Report.Charts = true
	c.Telegram.WebhookSecret = "s3cret"
	return &c
}

func webhook(t *testing.T, a *App, text string) int {
	t.Helper()
	body := `{"update_id":1,"message":{"message_id":1,"date":0,"chat":{"id":10,"type":"private"},"from":{"id":7,"is_bot":false,"first_name":"A"},"text":"` + text + `"}}`
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	req.Header.Set("X-Telegram-Bot-Api-Secret-Token", "s3cret")
	w := httptest.NewRecorder()
	a.Router().ServeHTTP(w, req)
	return w.Code
}

func TestNew_InMemoryEndToEnd(t *testing.T) {
	api := &fakeAPI{}
	a, err := New(context.Background(), testConfig(), Options{InMemory: true, API: api, Logger: logging.NewDiscardLogger()})
	require.NoError(t, err)
	defer a.Close()

	require.Equal(t, http.StatusOK, webhook(t, a, "Такси 450 картой"))
	require.Equal(t, http.StatusOK, webhook(t, a, "Итоги"))

	require.Len(t, api.sent, 3)
	registered, ok := api.sent[0].(tgbotapi.MessageConfig)
	require.True(t, ok)
	assert.Contains(t, registered.Text, "Записано")
	assert.Contains(t, registered.Text, "Транспорт")
	assert.Contains(t, registered.Text, "Карта")

	_, ok = api.sent[2].(tgbotapi.PhotoConfig)
	assert.True(t, ok, "summary chart should follow the summary text")
}

func TestNew_RequiresSecrets(t *testing.T) {
	_, err := New(context.Background(), testConfig(), Options{Logger: logging.NewDiscardLogger()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TELEGRAM_TOKEN")
	assert.Contains(t, err.Error(), "SUPABASE_URL")

	_, err = New(context.Background(), testConfig(), Options{InMemory: true, Logger: logging.NewDiscardLogger()})
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "SUPABASE_URL")
}
