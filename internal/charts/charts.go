// Package charts рисует графики для отчетов.
package charts

import (
	"bytes"
	"fmt"

	"github.com/wcharczuk/go-chart/v2"

	"github.com/ivanoskov/expense_bot/internal/service"
)

// AmountFormatter форматирует сумму для подписи
type AmountFormatter func(int64) string

// ChartGenerator генерирует графики в PNG
type ChartGenerator struct {
	format AmountFormatter
}

// NewChartGenerator создает новый генератор графиков
func NewChartGenerator(format AmountFormatter) *ChartGenerator {
	if format == nil {
		format = func(n int64) string { return fmt.Sprintf("%d", n) }
	}
	return &ChartGenerator{format: format}
}

func background() chart.Style {
	return chart.Style{
		Padding: chart.Box{
			Top:    50,
			Left:   50,
			Right:  50,
			Bottom: 50,
		},
		FillColor: chart.ColorWhite,
	}
}

// GenerateCategoryPieChart создает круговую диаграмму распределения по категориям.
// Возвращает nil, если в месяце нет расходов.
func (g *ChartGenerator) GenerateCategoryPieChart(b *service.Breakdown) ([]byte, error) {
	if b == nil || b.Total <= 0 {
		return nil, nil
	}

	values := make([]chart.Value, 0, len(b.Items))
	// Добавляем только категории с существенной долей (>=1%)
	for _, item := range b.Items {
		if item.Percent < 1 {
			continue
		}
		values = append(values, chart.Value{
			Label: fmt.Sprintf("%s: %s (%d%%)", item.Category, g.format(item.Amount), item.Percent),
			Value: float64(item.Amount),
			Style: chart.Style{
				FontSize:  12,
				FontColor: chart.ColorBlack,
			},
		})
	}
	if len(values) == 0 {
		return nil, nil
	}

	pie := chart.PieChart{
		Title:      b.Period,
		Width:      800,
		Height:     800,
		Values:     values,
		Background: background(),
	}

	buffer := bytes.NewBuffer([]byte{})
	if err := pie.Render(chart.PNG, buffer); err != nil {
		return nil, fmt.Errorf("failed to render category pie chart: %w", err)
	}
	return buffer.Bytes(), nil
}

// GenerateMonthlyBarChart создает столбчатую диаграмму расходов по месяцам.
// Возвращает nil, если за период нет расходов.
func (g *ChartGenerator) GenerateMonthlyBarChart(s *service.Summary) ([]byte, error) {
	if s == nil || s.Total <= 0 {
		return nil, nil
	}

	bars := make([]chart.Value, 0, len(s.Months))
	for _, m := range s.Months {
		bars = append(bars, chart.Value{
			Label: m.Label,
			Value: float64(m.Total),
			Style: chart.Style{
				FillColor:   chart.ColorBlue,
				StrokeColor: chart.ColorBlue,
			},
		})
	}

	graph := chart.BarChart{
		Title:      "Расходы по месяцам",
		Width:      1000,
		Height:     600,
		BarWidth:   80,
		Background: background(),
		XAxis: chart.Style{
			FontSize:  12,
			FontColor: chart.ColorBlack,
		},
		YAxis: chart.YAxis{
			ValueFormatter: func(v interface{}) string {
				if f, ok := v.(float64); ok {
					return g.format(int64(f))
				}
				return ""
			},
			Style: chart.Style{
				FontSize:  12,
				FontColor: chart.ColorBlack,
			},
		},
		Bars: bars,
	}

	buffer := bytes.NewBuffer([]byte{})
	if err := graph.Render(chart.PNG, buffer); err != nil {
		return nil, fmt.Errorf("failed to render monthly bar chart: %w", err)
	}
	return buffer.Bytes(), nil
}
