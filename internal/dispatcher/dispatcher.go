// Package dispatcher решает, что делать с входящим сообщением: продолжить
// незавершенный диалог, выполнить команду или записать расход.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ivanoskov/expense_bot/internal/extraction"
	"github.com/ivanoskov/expense_bot/internal/logging"
	"github.com/ivanoskov/expense_bot/internal/metrics"
	"github.com/ivanoskov/expense_bot/internal/model"
	"github.com/ivanoskov/expense_bot/internal/reply"
	"github.com/ivanoskov/expense_bot/internal/service"
	"github.com/ivanoskov/expense_bot/internal/session"
)

// ImageRef ссылка на изображение в мессенджере
type ImageRef struct {
	FileID   string
	MIMEType string
}

// Inbound входящее сообщение. UserID 0 означает, что пользователь неизвестен:
// тогда команды удаления и изменения недоступны.
type Inbound struct {
	UserID int64
	Text   string
	Image  *ImageRef
}

// ImageFetcher загружает изображение по ссылке
type ImageFetcher interface {
	FetchImage(ctx context.Context, ref ImageRef) (data []byte, mimeType string, err error)
}

// VocabularyProvider кэш справочника
type VocabularyProvider interface {
	Get(ctx context.Context) (model.Vocabulary, error)
	Invalidate()
}

// Gateway пакетные операции с расходами и отчеты
type Gateway interface {
	RegisterBatch(ctx context.Context, expenses []model.Expense) ([]string, error)
	LoadBatch(ctx context.Context, ids []string) ([]model.Expense, error)
	ArchiveBatch(ctx context.Context, ids []string) (int, error)
	UpdateBatch(ctx context.Context, ids []string, update model.ExpenseUpdate) (int, error)
	MonthlyTotals(ctx context.Context, months int) (*service.Summary, error)
	CategoryBreakdown(ctx context.Context) (*service.Breakdown, error)
}

// ChartRenderer рисует графики к отчетам
type ChartRenderer interface {
	GenerateCategoryPieChart(b *service.Breakdown) ([]byte, error)
	GenerateMonthlyBarChart(s *service.Summary) ([]byte, error)
}

// Deps зависимости диспетчера. Images и Charts необязательны.
type Deps struct {
	Vocabulary    VocabularyProvider
	Extractor     extraction.Extractor
	Sessions      *session.Store
	Gateway       Gateway
	Images        ImageFetcher
	Charts        ChartRenderer
	Formatter     *reply.Formatter
	Metrics       *metrics.Metrics
	Logger        logging.Logger
	SummaryMonths int
}

// Dispatcher конечный автомат диалога
type Dispatcher struct {
	vocab         VocabularyProvider
	extractor     extraction.Extractor
	sessions      *session.Store
	gateway       Gateway
	images        ImageFetcher
	charts        ChartRenderer
	format        *reply.Formatter
	metrics       *metrics.Metrics
	logger        logging.Logger
	summaryMonths int
}

// New создает диспетчер
func New(deps Deps) *Dispatcher {
	d := &Dispatcher{
		vocab:         deps.Vocabulary,
		extractor:     deps.Extractor,
		sessions:      deps.Sessions,
		gateway:       deps.Gateway,
		images:        deps.Images,
		charts:        deps.Charts,
		format:        deps.Formatter,
		metrics:       deps.Metrics,
		logger:        deps.Logger,
		summaryMonths: deps.SummaryMonths,
	}
	if d.sessions == nil {
		d.sessions = session.NewStore()
	}
	if d.format == nil {
		d.format = reply.NewFormatter("RUB")
	}
	if d.metrics == nil {
		d.metrics = metrics.Discard()
	}
	if d.logger == nil {
		d.logger = logging.NewDiscardLogger()
	}
	if d.summaryMonths < 1 {
		d.summaryMonths = 3
	}
	return d
}

// Handle обрабатывает одно сообщение и всегда возвращает ответ.
// Сообщения одного пользователя обрабатываются строго по очереди.
func (d *Dispatcher) Handle(ctx context.Context, in Inbound) reply.Reply {
	start := time.Now()
	defer func() {
		d.metrics.DispatchDuration.Observe(time.Since(start).Seconds())
	}()

	logger := d.logger.WithField(logging.FieldUserID, in.UserID)

	if in.UserID != 0 {
		unlock := d.sessions.Lock(in.UserID)
		defer unlock()
	}

	vocab, err := d.vocab.Get(ctx)
	if err != nil {
		logger.WithError(err).Error("Failed to load vocabulary")
		return d.format.UpstreamUnavailable()
	}

	// Фото всегда означает новый чек, даже посреди диалога
	if in.Image != nil {
		d.metrics.Events.WithLabelValues(metrics.EventImage).Inc()
		return d.handleImage(ctx, logger, in.UserID, *in.Image, vocab)
	}

	text := strings.TrimSpace(in.Text)

	// Открытый диалог поглощает любое сообщение, в том числе пустое
	if in.UserID != 0 {
		if sess, ok := d.sessions.Get(in.UserID); ok && !sess.Pending.IsIdle() {
			d.metrics.Events.WithLabelValues(metrics.EventContinuation).Inc()
			return d.continueDialog(ctx, logger, in.UserID, sess, text, vocab)
		}
	}

	if text == "" {
		d.metrics.Events.WithLabelValues(metrics.EventIgnored).Inc()
		return d.format.Help(vocab)
	}

	if cmd := parseCommand(text); cmd != cmdNone {
		d.metrics.Events.WithLabelValues(metrics.EventCommand).Inc()
		return d.runCommand(ctx, logger, in.UserID, cmd, vocab)
	}

	d.metrics.Events.WithLabelValues(metrics.EventText).Inc()
	expenses, err := d.extractor.ExtractText(ctx, text, vocab)
	if err != nil {
		return d.extractionFailed(logger, err)
	}
	return d.register(ctx, logger, in.UserID, expenses)
}

func (d *Dispatcher) handleImage(ctx context.Context, logger logging.Logger, userID int64, ref ImageRef, vocab model.Vocabulary) reply.Reply {
	if d.images == nil {
		return d.extractionFailed(logger, fmt.Errorf("%w: no image fetcher configured", extraction.ErrImageFetchFailed))
	}

	data, mimeType, err := d.images.FetchImage(ctx, ref)
	if err != nil {
		return d.extractionFailed(logger, fmt.Errorf("%w: %v", extraction.ErrImageFetchFailed, err))
	}
	if mimeType == "" {
		mimeType = ref.MIMEType
	}

	expenses, err := d.extractor.ExtractImage(ctx, data, mimeType, vocab)
	if err != nil {
		return d.extractionFailed(logger, err)
	}
	return d.register(ctx, logger, userID, expenses)
}

func (d *Dispatcher) extractionFailed(logger logging.Logger, err error) reply.Reply {
	reason := "other"
	var failed *extraction.FailedError
	switch {
	case errors.Is(err, extraction.ErrNoAmountFound):
		reason = "no_amount"
	case errors.Is(err, extraction.ErrImageFetchFailed):
		reason = "image_fetch"
	case errors.Is(err, extraction.ErrImageUnsupported):
		reason = "image_unsupported"
	case errors.As(err, &failed):
		reason = "failed"
	}
	d.metrics.ExtractionFailures.WithLabelValues(reason).Inc()

	logger.WithFields(
		logging.Field{Key: logging.FieldStrategy, Value: d.extractor.Name()},
		logging.Field{Key: logging.FieldReason, Value: reason},
	).WithError(err).Info("Extraction failed")

	return d.format.ExtractionFailed(err)
}

// register записывает пакет; при успехе он становится последним пакетом пользователя
func (d *Dispatcher) register(ctx context.Context, logger logging.Logger, userID int64, expenses []model.Expense) reply.Reply {
	ids, err := d.gateway.RegisterBatch(ctx, expenses)
	if err != nil {
		logger.WithError(err).Error("Failed to register expenses",
			logging.Field{Key: logging.FieldCount, Value: len(ids)})
		return d.format.OperationFailed("сохранить расходы")
	}

	d.metrics.ExpensesRegistered.Add(float64(len(ids)))
	if userID != 0 {
		d.sessions.SetLastRegistered(userID, ids)
		d.sessions.SetPendingAction(userID, model.NoPendingAction)
	}

	logger.Info("Expenses registered", logging.Field{Key: logging.FieldCount, Value: len(ids)})
	return d.format.Registered(expenses)
}

func (d *Dispatcher) runCommand(ctx context.Context, logger logging.Logger, userID int64, cmd command, vocab model.Vocabulary) reply.Reply {
	switch cmd {
	case cmdHelp:
		return d.format.Help(vocab)
	case cmdRefresh:
		return d.refresh(ctx, logger)
	case cmdSummary:
		return d.summary(ctx, logger)
	case cmdBreakdown:
		return d.breakdown(ctx, logger)
	case cmdDelete:
		return d.startDelete(ctx, logger, userID)
	case cmdModify:
		return d.startModify(ctx, logger, userID)
	default:
		return d.format.Help(vocab)
	}
}

func (d *Dispatcher) refresh(ctx context.Context, logger logging.Logger) reply.Reply {
	d.vocab.Invalidate()
	d.metrics.VocabularyRefreshes.Inc()

	vocab, err := d.vocab.Get(ctx)
	if err != nil {
		logger.WithError(err).Error("Failed to reload vocabulary")
		return d.format.UpstreamUnavailable()
	}
	return d.format.VocabularyRefreshed(vocab)
}

func (d *Dispatcher) summary(ctx context.Context, logger logging.Logger) reply.Reply {
	s, err := d.gateway.MonthlyTotals(ctx, d.summaryMonths)
	if err != nil {
		logger.WithError(err).Error("Failed to build summary")
		return d.format.OperationFailed("получить итоги")
	}

	r := d.format.Summary(s)
	if d.charts != nil {
		d.attach(logger, &r, "summary.png", func() ([]byte, error) { return d.charts.GenerateMonthlyBarChart(s) })
	}
	return r
}

func (d *Dispatcher) breakdown(ctx context.Context, logger logging.Logger) reply.Reply {
	b, err := d.gateway.CategoryBreakdown(ctx)
	if err != nil {
		logger.WithError(err).Error("Failed to build breakdown")
		return d.format.OperationFailed("получить структуру расходов")
	}

	r := d.format.Breakdown(b)
	if d.charts != nil {
		d.attach(logger, &r, "breakdown.png", func() ([]byte, error) { return d.charts.GenerateCategoryPieChart(b) })
	}
	return r
}

// attach прикладывает график; ошибка рисования не мешает текстовому ответу
func (d *Dispatcher) attach(logger logging.Logger, r *reply.Reply, name string, render func() ([]byte, error)) {
	png, err := render()
	if err != nil {
		logger.WithError(err).Warn("Failed to render chart")
		return
	}
	if len(png) > 0 {
		r.Image = png
		r.ImageName = name
	}
}

// loadLast загружает последний пакет пользователя, отбрасывая исчезнувшие записи.
// Пустой результат очищает список последних записей.
func (d *Dispatcher) loadLast(ctx context.Context, userID int64) ([]model.Expense, error) {
	sess, _ := d.sessions.Get(userID)
	if len(sess.LastRegisteredIDs) == 0 {
		return nil, nil
	}

	expenses, err := d.gateway.LoadBatch(ctx, sess.LastRegisteredIDs)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(expenses))
	for _, e := range expenses {
		ids = append(ids, e.ID)
	}
	if len(ids) != len(sess.LastRegisteredIDs) {
		d.sessions.SetLastRegistered(userID, ids)
	}
	return expenses, nil
}

func (d *Dispatcher) startDelete(ctx context.Context, logger logging.Logger, userID int64) reply.Reply {
	if userID == 0 {
		return d.format.UnknownUser()
	}

	expenses, err := d.loadLast(ctx, userID)
	if err != nil {
		logger.WithError(err).Error("Failed to load expenses for delete")
		return d.format.OperationFailed("загрузить последние записи")
	}
	if len(expenses) == 0 {
		return d.format.NothingToDelete()
	}

	d.sessions.SetPendingAction(userID, model.PendingAction{Kind: model.PendingConfirmDelete})
	return d.format.ConfirmDelete(expenses)
}

func (d *Dispatcher) startModify(ctx context.Context, logger logging.Logger, userID int64) reply.Reply {
	if userID == 0 {
		return d.format.UnknownUser()
	}

	expenses, err := d.loadLast(ctx, userID)
	if err != nil {
		logger.WithError(err).Error("Failed to load expenses for modify")
		return d.format.OperationFailed("загрузить последние записи")
	}
	if len(expenses) == 0 {
		return d.format.NothingToModify()
	}

	d.sessions.SetPendingAction(userID, model.PendingAction{Kind: model.PendingModifyField})
	return d.format.ChooseField(expenses)
}
