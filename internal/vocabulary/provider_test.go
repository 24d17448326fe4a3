package vocabulary

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ivanoskov/expense_bot/internal/logging"
	"github.com/ivanoskov/expense_bot/internal/model"
)

type fakeSource struct {
	calls atomic.Int32
	vocab model.Vocabulary
	err   error
}

func (f *fakeSource) FetchVocabulary(ctx context.Context) (model.Vocabulary, error) {
	f.calls.Add(1)
	return f.vocab, f.err
}

func newTestProvider(src Source) *Provider {
	return NewProvider(src, "Прочее", "Наличные", logging.NewMockLogger())
}

func TestProvider_CachesUntilInvalidated(t *testing.T) {
	src := &fakeSource{vocab: model.Vocabulary{
		Categories:     []string{"Food", "Transport"},
		PaymentMethods: []string{"Cash"},
	}}
	p := newTestProvider(src)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		v, err := p.Get(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"Food", "Transport"}, v.Categories)
	}
	assert.Equal(t, int32(1), src.calls.Load())

	p.Invalidate()
	p.Invalidate()

	_, err := p.Get(ctx)
	require.NoError(t, err)
	_, err = p.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(2), src.calls.Load(), "double invalidation must cost exactly one fetch")
}

func TestProvider_SubstitutesDefaultsForEmptyLists(t *testing.T) {
	src := &fakeSource{vocab: model.Vocabulary{Categories: []string{"", "Food", "Food"}}}
	p := newTestProvider(src)

	v, err := p.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Food"}, v.Categories)
	assert.Equal(t, []string{"Наличные"}, v.PaymentMethods)
}

func TestProvider_WrapsUpstreamErrors(t *testing.T) {
	src := &fakeSource{err: errors.New("connection refused")}
	p := newTestProvider(src)

	_, err := p.Get(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUpstreamUnavailable)
	assert.Contains(t, err.Error(), "connection refused")

	// Ошибка не кэшируется
	src.err = nil
	src.vocab = model.Vocabulary{Categories: []string{"Food"}, PaymentMethods: []string{"Card"}}
	v, err := p.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Card", v.DefaultPaymentMethod())
	assert.Equal(t, int32(2), src.calls.Load())
}

func TestProvider_ConcurrentGetFetchesOnce(t *testing.T) {
	src := &fakeSource{vocab: model.Vocabulary{Categories: []string{"Food"}, PaymentMethods: []string{"Cash"}}}
	p := newTestProvider(src)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := p.Get(context.Background())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), src.calls.Load())
}
