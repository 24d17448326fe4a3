// Package vocabulary кэширует справочник категорий и способов оплаты.
package vocabulary

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ivanoskov/expense_bot/internal/logging"
	"github.com/ivanoskov/expense_bot/internal/model"
)

// ErrUpstreamUnavailable внешнее хранилище справочника недоступно
var ErrUpstreamUnavailable = errors.New("vocabulary source unavailable")

// Source внешний источник справочника
type Source interface {
	FetchVocabulary(ctx context.Context) (model.Vocabulary, error)
}

// Provider хранит справочник до явной инвалидации; TTL нет
type Provider struct {
	source          Source
	logger          logging.Logger
	defaultCategory string
	defaultPayment  string

	mu     sync.Mutex
	cached *model.Vocabulary
}

// NewProvider создает провайдер справочника с запасными значениями на случай пустых списков
func NewProvider(source Source, defaultCategory, defaultPayment string, logger logging.Logger) *Provider {
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	return &Provider{
		source:          source,
		logger:          logger,
		defaultCategory: defaultCategory,
		defaultPayment:  defaultPayment,
	}
}

// Get возвращает справочник из кэша или загружает его.
// Загрузка выполняется под мьютексом, поэтому одновременные вызовы не делают повторных запросов.
func (p *Provider) Get(ctx context.Context) (model.Vocabulary, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cached != nil {
		return *p.cached, nil
	}

	fetched, err := p.source.FetchVocabulary(ctx)
	if err != nil {
		return model.Vocabulary{}, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}

	vocab := fetched.WithDefaults(p.defaultCategory, p.defaultPayment)
	p.cached = &vocab

	p.logger.Info("Vocabulary loaded",
		logging.Field{Key: "categories", Value: len(vocab.Categories)},
		logging.Field{Key: "payment_methods", Value: len(vocab.PaymentMethods)})

	return vocab, nil
}

// Invalidate сбрасывает кэш; следующий Get пойдет в источник
func (p *Provider) Invalidate() {
	p.mu.Lock()
	p.cached = nil
	p.mu.Unlock()
}
