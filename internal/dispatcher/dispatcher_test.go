package dispatcher

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ivanoskov/expense_bot/internal/extraction"
	"github.com/ivanoskov/expense_bot/internal/logging"
	"github.com/ivanoskov/expense_bot/internal/metrics"
	"github.com/ivanoskov/expense_bot/internal/model"
	"github.com/ivanoskov/expense_bot/internal/reply"
	"github.com/ivanoskov/expense_bot/internal/repository"
	"github.com/ivanoskov/expense_bot/internal/service"
	"github.com/ivanoskov/expense_bot/internal/session"
	"github.com/ivanoskov/expense_bot/internal/vocabulary"
)

const user int64 = 42

var testVocab = model.Vocabulary{
	Categories:     []string{"Food", "Transport", "Health"},
	PaymentMethods: []string{"Cash", "Card"},
}

// scriptedExtractor возвращает заранее заданный результат
type scriptedExtractor struct {
	expenses []model.Expense
	err      error
	calls    int
}

func (s *scriptedExtractor) Name() string { return "scripted" }

func (s *scriptedExtractor) ExtractText(context.Context, string, model.Vocabulary) ([]model.Expense, error) {
	s.calls++
	return s.expenses, s.err
}

func (s *scriptedExtractor) ExtractImage(context.Context, []byte, string, model.Vocabulary) ([]model.Expense, error) {
	s.calls++
	return s.expenses, s.err
}

type stubImages struct {
	data []byte
	err  error
}

func (s stubImages) FetchImage(context.Context, ImageRef) ([]byte, string, error) {
	return s.data, "image/jpeg", s.err
}

type countingSource struct {
	repo  *repository.MemoryRepository
	calls int
	err   error
}

func (c *countingSource) FetchVocabulary(ctx context.Context) (model.Vocabulary, error) {
	c.calls++
	if c.err != nil {
		return model.Vocabulary{}, c.err
	}
	return c.repo.FetchVocabulary(ctx)
}

type stubCharts struct{}

func (stubCharts) GenerateCategoryPieChart(*service.Breakdown) ([]byte, error) {
	return []byte("pie"), nil
}

func (stubCharts) GenerateMonthlyBarChart(*service.Summary) ([]byte, error) {
	return []byte("bar"), nil
}

type harness struct {
	d        *Dispatcher
	repo     *repository.MemoryRepository
	source   *countingSource
	sessions *session.Store
	metrics  *metrics.Metrics
	logger   *logging.MockLogger
}

func newHarness(t *testing.T, extractor extraction.Extractor, opts ...func(*Deps)) *harness {
	t.Helper()

	repo := repository.NewMemoryRepository(testVocab)
	source := &countingSource{repo: repo}
	logger := logging.NewMockLogger()
	m := metrics.New(prometheus.NewRegistry())
	sessions := session.NewStore()

	if extractor == nil {
		rule := extraction.NewRuleExtractor(nil, time.UTC)
		extractor = rule
	}

	deps := Deps{
		Vocabulary:    vocabulary.NewProvider(source, "Прочее", "Наличные", logger),
		Extractor:     extractor,
		Sessions:      sessions,
		Gateway:       service.NewExpenseTracker(repo, time.UTC, logger),
		Formatter:     reply.NewFormatter("RUB"),
		Metrics:       m,
		Logger:        logger,
		SummaryMonths: 3,
	}
	for _, opt := range opts {
		opt(&deps)
	}

	return &harness{d: New(deps), repo: repo, source: source, sessions: sessions, metrics: m, logger: logger}
}

func (h *harness) send(text string) reply.Reply {
	return h.d.Handle(context.Background(), Inbound{UserID: user, Text: text})
}

func (h *harness) session(t *testing.T) model.UserSession {
	t.Helper()
	sess, _ := h.sessions.Get(user)
	return sess
}

func twoExpenses() []model.Expense {
	day := time.Now().UTC()
	return []model.Expense{
		{Amount: 300, Category: "Food", PaymentMethod: "Cash", Description: "coffee", Date: day},
		{Amount: 150, Category: "Transport", PaymentMethod: "Card", Description: "bus", Date: day},
	}
}

func TestHandle_RegistersTextExpense(t *testing.T) {
	h := newHarness(t, nil)

	r := h.send("Lunch 800 cash")

	assert.Contains(t, r.Text, "Записано")
	assert.Contains(t, r.Text, "Food")
	assert.Equal(t, reply.MainMenu(), r.QuickReplies)

	sess := h.session(t)
	require.Len(t, sess.LastRegisteredIDs, 1)
	assert.True(t, sess.Pending.IsIdle())

	saved, err := h.repo.GetExpense(context.Background(), sess.LastRegisteredIDs[0])
	require.NoError(t, err)
	assert.Equal(t, int64(800), saved.Amount)
	assert.Equal(t, "Cash", saved.PaymentMethod)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.ExpensesRegistered))
}

func TestHandle_NoAmount(t *testing.T) {
	h := newHarness(t, nil)

	r := h.send("просто текст")

	assert.Contains(t, r.Text, "Не нашел сумму")
	assert.Empty(t, h.session(t).LastRegisteredIDs)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.ExtractionFailures.WithLabelValues("no_amount")))
}

func TestHandle_EmptyTextShowsHelp(t *testing.T) {
	h := newHarness(t, nil)

	r := h.send("   ")
	assert.Equal(t, h.d.format.Help(testVocab).Text, r.Text)
}

func TestHandle_CommandsWithBotSuffix(t *testing.T) {
	h := newHarness(t, nil)

	r := h.send("/help@ExpenseBot")
	assert.Equal(t, h.d.format.Help(testVocab).Text, r.Text)
}

func TestHandle_DeleteFlow(t *testing.T) {
	ext := &scriptedExtractor{expenses: twoExpenses()}
	h := newHarness(t, ext)

	r := h.send("coffee and bus")
	assert.Contains(t, r.Text, "Записано 2 записи")
	ids := h.session(t).LastRegisteredIDs
	require.Len(t, ids, 2)

	r = h.send(reply.CmdDelete)
	assert.Contains(t, r.Text, "Удалить 2 записи?")
	assert.Equal(t, model.PendingConfirmDelete, h.session(t).Pending.Kind)

	r = h.send(reply.CmdConfirmDelete)
	assert.Contains(t, r.Text, "Удалено 2 записи")

	sess := h.session(t)
	assert.True(t, sess.Pending.IsIdle())
	assert.Empty(t, sess.LastRegisteredIDs)
	for _, id := range ids {
		assert.True(t, h.repo.IsArchived(id))
	}

	r = h.send("/delete")
	assert.Equal(t, h.d.format.NothingToDelete().Text, r.Text)
}

func TestHandle_DeleteNotConfirmed(t *testing.T) {
	h := newHarness(t, nil)
	h.send("Lunch 800 cash")
	h.send(reply.CmdDelete)

	// Команда посреди диалога не выполняется, а отменяет удаление
	r := h.send(reply.CmdSummary)
	assert.Equal(t, h.d.format.DeleteCancelled().Text, r.Text)

	sess := h.session(t)
	assert.True(t, sess.Pending.IsIdle())
	require.Len(t, sess.LastRegisteredIDs, 1)
	assert.False(t, h.repo.IsArchived(sess.LastRegisteredIDs[0]))
}

func TestHandle_CancelKeepsLastRegistered(t *testing.T) {
	states := []struct {
		name  string
		enter []string
		kind  model.PendingKind
	}{
		{name: "confirm delete", enter: []string{reply.CmdDelete}, kind: model.PendingConfirmDelete},
		{name: "modify field", enter: []string{reply.CmdModify}, kind: model.PendingModifyField},
		{name: "modify value", enter: []string{reply.CmdModify, reply.LabelCategory}, kind: model.PendingModifyValue},
	}
	for _, st := range states {
		for _, literal := range []string{reply.CmdCancel, "cancel", "/cancel"} {
			t.Run(st.name+"/"+literal, func(t *testing.T) {
				h := newHarness(t, nil)
				h.send("Lunch 800 cash")
				ids := h.session(t).LastRegisteredIDs
				require.Len(t, ids, 1)
				before, err := h.repo.GetExpense(context.Background(), ids[0])
				require.NoError(t, err)

				for _, text := range st.enter {
					h.send(text)
				}
				require.Equal(t, st.kind, h.session(t).Pending.Kind)

				r := h.send(literal)
				assert.Equal(t, h.d.format.Cancelled().Text, r.Text)

				sess := h.session(t)
				assert.True(t, sess.Pending.IsIdle())
				assert.Equal(t, ids, sess.LastRegisteredIDs)
				assert.False(t, h.repo.IsArchived(ids[0]))

				after, err := h.repo.GetExpense(context.Background(), ids[0])
				require.NoError(t, err)
				assert.Equal(t, before, after)
				assert.Equal(t, "Food", after.Category)
				assert.EqualValues(t, 800, after.Amount)
			})
		}
	}
}

func TestHandle_BlankTextInsideDialog(t *testing.T) {
	t.Run("confirm delete", func(t *testing.T) {
		h := newHarness(t, nil)
		h.send("Lunch 800 cash")
		id := h.session(t).LastRegisteredIDs[0]
		h.send(reply.CmdDelete)

		r := h.send("   ")
		assert.Equal(t, h.d.format.DeleteCancelled().Text, r.Text)
		assert.True(t, h.session(t).Pending.IsIdle())
		assert.False(t, h.repo.IsArchived(id))
	})

	t.Run("modify description", func(t *testing.T) {
		h := newHarness(t, nil)
		h.send("Lunch 800 cash")
		id := h.session(t).LastRegisteredIDs[0]
		before, err := h.repo.GetExpense(context.Background(), id)
		require.NoError(t, err)
		h.send(reply.CmdModify)
		h.send(reply.LabelDescription)

		r := h.send("   ")
		assert.Equal(t, h.d.format.EmptyDescription().Text, r.Text)
		assert.Equal(t, model.PendingAction{Kind: model.PendingModifyValue, Field: model.FieldDescription}, h.session(t).Pending)

		after, err := h.repo.GetExpense(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, before, after)
	})

	t.Run("idle gets help", func(t *testing.T) {
		h := newHarness(t, nil)
		r := h.send("   ")
		assert.Equal(t, h.d.format.Help(testVocab).Text, r.Text)
		assert.True(t, h.session(t).Pending.IsIdle())
	})
}

func TestHandle_ModifyCategory(t *testing.T) {
	h := newHarness(t, nil)
	h.send("Lunch 800 cash")
	id := h.session(t).LastRegisteredIDs[0]

	r := h.send(reply.CmdModify)
	assert.Contains(t, r.Text, "Что исправить?")

	r = h.send(reply.LabelCategory)
	assert.Equal(t, "Выберите новую категорию", r.Text)
	assert.Equal(t, model.PendingAction{Kind: model.PendingModifyValue, Field: model.FieldCategory}, h.session(t).Pending)

	r = h.send("Health")
	assert.Contains(t, r.Text, "«Health»")
	assert.True(t, h.session(t).Pending.IsIdle())

	saved, err := h.repo.GetExpense(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "Health", saved.Category)
}

func TestHandle_ModifyInvalidValueKeepsState(t *testing.T) {
	h := newHarness(t, nil)
	h.send("Lunch 800 cash")
	id := h.session(t).LastRegisteredIDs[0]
	h.send(reply.CmdModify)
	h.send(reply.LabelCategory)

	r := h.send("Helth")
	assert.Contains(t, r.Text, "не подходит")
	assert.Contains(t, r.Text, "«Health»")
	assert.Equal(t, model.PendingAction{Kind: model.PendingModifyValue, Field: model.FieldCategory}, h.session(t).Pending)

	saved, err := h.repo.GetExpense(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "Food", saved.Category)
}

func TestHandle_ModifyAmount(t *testing.T) {
	h := newHarness(t, nil)
	h.send("Lunch 800 cash")
	id := h.session(t).LastRegisteredIDs[0]
	h.send("/edit")
	h.send(reply.LabelAmount)

	r := h.send("ноль")
	assert.Equal(t, h.d.format.InvalidAmount().Text, r.Text)
	assert.Equal(t, model.PendingModifyValue, h.session(t).Pending.Kind)

	h.send("1 200 руб")
	saved, err := h.repo.GetExpense(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, int64(1200), saved.Amount)
	assert.True(t, h.session(t).Pending.IsIdle())
}

func TestHandle_ModifyUnknownFieldCancels(t *testing.T) {
	h := newHarness(t, nil)
	h.send("Lunch 800 cash")
	h.send(reply.CmdModify)

	r := h.send("Цвет")
	assert.Equal(t, h.d.format.ModifyCancelled().Text, r.Text)
	assert.True(t, h.session(t).Pending.IsIdle())
}

func TestHandle_SkipsMissingRecords(t *testing.T) {
	ext := &scriptedExtractor{expenses: twoExpenses()}
	h := newHarness(t, ext)
	h.send("coffee and bus")
	ids := h.session(t).LastRegisteredIDs
	h.repo.Delete(ids[0])

	r := h.send(reply.CmdDelete)
	assert.Contains(t, r.Text, "Удалить эту запись?")
	assert.Equal(t, []string{ids[1]}, h.session(t).LastRegisteredIDs)

	h.send(reply.CmdConfirmDelete)
	assert.True(t, h.repo.IsArchived(ids[1]))
}

func TestHandle_ModifyAfterRecordsVanished(t *testing.T) {
	h := newHarness(t, nil)
	h.send("Lunch 800 cash")
	id := h.session(t).LastRegisteredIDs[0]
	h.send(reply.CmdModify)
	h.send(reply.LabelDescription)
	h.repo.Delete(id)

	r := h.send("обед")
	assert.Equal(t, h.d.format.NothingToModify().Text, r.Text)

	sess := h.session(t)
	assert.True(t, sess.Pending.IsIdle())
	assert.Empty(t, sess.LastRegisteredIDs)
	assert.NotEmpty(t, h.logger.EntriesByLevel("WARN"))
}

func TestHandle_UnknownUser(t *testing.T) {
	h := newHarness(t, nil)

	for _, cmd := range []string{reply.CmdDelete, reply.CmdModify} {
		r := h.d.Handle(context.Background(), Inbound{Text: cmd})
		assert.Equal(t, h.d.format.UnknownUser().Text, r.Text)
	}

	r := h.d.Handle(context.Background(), Inbound{Text: "Lunch 800 cash"})
	assert.Contains(t, r.Text, "Записано")
	assert.Zero(t, h.sessions.Len())
}

func TestHandle_ImageBypassesDialog(t *testing.T) {
	ext := &scriptedExtractor{expenses: twoExpenses()[:1]}
	h := newHarness(t, ext, func(d *Deps) { d.Images = stubImages{data: []byte{0xff, 0xd8}} })
	h.send("first")
	h.send(reply.CmdDelete)
	require.Equal(t, model.PendingConfirmDelete, h.session(t).Pending.Kind)

	r := h.d.Handle(context.Background(), Inbound{UserID: user, Image: &ImageRef{FileID: "f1"}})
	assert.Contains(t, r.Text, "Записано")
	assert.True(t, h.session(t).Pending.IsIdle())
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.Events.WithLabelValues(metrics.EventImage)))
}

func TestHandle_ImageFetchFailure(t *testing.T) {
	ext := &scriptedExtractor{expenses: twoExpenses()}
	h := newHarness(t, ext, func(d *Deps) { d.Images = stubImages{err: errors.New("404")} })

	r := h.d.Handle(context.Background(), Inbound{UserID: user, Image: &ImageRef{FileID: "f1"}})
	assert.Contains(t, r.Text, "Не удалось загрузить изображение")
	assert.Zero(t, ext.calls)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.ExtractionFailures.WithLabelValues("image_fetch")))
}

func TestHandle_ImageWithRuleStrategy(t *testing.T) {
	h := newHarness(t, nil, func(d *Deps) { d.Images = stubImages{data: []byte{1}} })

	r := h.d.Handle(context.Background(), Inbound{UserID: user, Image: &ImageRef{FileID: "f1"}})
	assert.Contains(t, r.Text, "Распознавание чеков отключено")
}

func TestHandle_RefreshInvalidatesVocabulary(t *testing.T) {
	h := newHarness(t, nil)
	h.send("Lunch 800 cash")
	require.Equal(t, 1, h.source.calls)

	h.repo.SetVocabulary(model.Vocabulary{Categories: []string{"Cafe"}, PaymentMethods: []string{"Cash"}})
	r := h.send(reply.CmdRefresh)
	assert.Contains(t, r.Text, "Справочник обновлен")
	assert.Contains(t, r.Text, "Cafe")
	assert.Equal(t, 2, h.source.calls)

	h.send("Lunch 500 cash")
	assert.Equal(t, 2, h.source.calls)
}

func TestHandle_VocabularyUnavailable(t *testing.T) {
	h := newHarness(t, nil)
	h.source.err = errors.New("connection refused")

	r := h.send("Lunch 800 cash")
	assert.Equal(t, h.d.format.UpstreamUnavailable().Text, r.Text)
	assert.Empty(t, h.session(t).LastRegisteredIDs)
}

func TestHandle_ReportsWithCharts(t *testing.T) {
	h := newHarness(t, nil, func(d *Deps) { d.Charts = stubCharts{} })
	h.send("Lunch 800 cash")

	r := h.send(reply.CmdSummary)
	assert.Contains(t, r.Text, "Расходы за 3 месяца")
	assert.Equal(t, []byte("bar"), r.Image)

	r = h.send("/breakdown")
	assert.Contains(t, r.Text, "Food")
	assert.Equal(t, []byte("pie"), r.Image)
	assert.Equal(t, "breakdown.png", r.ImageName)
}

func TestHandle_ReportsWithoutCharts(t *testing.T) {
	h := newHarness(t, nil)

	r := h.send(reply.CmdBreakdown)
	assert.Contains(t, r.Text, "Расходов пока нет")
	assert.Nil(t, r.Image)
}
