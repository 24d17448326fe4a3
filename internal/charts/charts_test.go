package charts

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ivanoskov/expense_bot/internal/service"
)

var pngMagic = []byte("\x89PNG")

func TestGenerateCategoryPieChart(t *testing.T) {
	g := NewChartGenerator(nil)

	png, err := g.GenerateCategoryPieChart(&service.Breakdown{
		Period: "Март 2025",
		Items: []service.CategoryStat{
			{Category: "Food", Amount: 1000, Percent: 67},
			{Category: "Transport", Amount: 500, Percent: 33},
		},
		Total: 1500,
	})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(png, pngMagic))
}

func TestGenerateMonthlyBarChart(t *testing.T) {
	g := NewChartGenerator(func(n int64) string { return "₽" })

	png, err := g.GenerateMonthlyBarChart(&service.Summary{
		Months: []service.MonthTotal{
			{Label: "Январь 2025", Total: 1200},
			{Label: "Февраль 2025", Total: 0},
			{Label: "Март 2025", Total: 800},
		},
		Total: 2000,
	})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(png, pngMagic))
}

func TestCharts_NoDataReturnsNil(t *testing.T) {
	g := NewChartGenerator(nil)

	png, err := g.GenerateCategoryPieChart(&service.Breakdown{Period: "Март 2025"})
	require.NoError(t, err)
	assert.Nil(t, png)

	png, err = g.GenerateMonthlyBarChart(&service.Summary{Months: []service.MonthTotal{{Label: "Март 2025"}}})
	require.NoError(t, err)
	assert.Nil(t, png)

	png, err = g.GenerateCategoryPieChart(nil)
	require.NoError(t, err)
	assert.Nil(t, png)
}
