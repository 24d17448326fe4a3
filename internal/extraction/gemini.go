package extraction

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"
)

// GeminiConfig настройки клиента Gemini
type GeminiConfig struct {
	APIKey            string
	Model             string
	VisionModel       string
	RequestsPerMinute int
	Timeout           time.Duration
}

// GeminiBackend реализует Backend поверх Google Gemini
type GeminiBackend struct {
	client  *genai.Client
	cfg     GeminiConfig
	limiter *rate.Limiter
}

// NewGeminiBackend создает клиента; Close освобождает соединение
func NewGeminiBackend(ctx context.Context, cfg GeminiConfig) (*GeminiBackend, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini api key is not configured")
	}
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = 15
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.VisionModel == "" {
		cfg.VisionModel = cfg.Model
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return &GeminiBackend{
		client:  client,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), 1),
	}, nil
}

// Close закрывает клиента
func (g *GeminiBackend) Close() error {
	return g.client.Close()
}

func (g *GeminiBackend) model(name, systemPrompt string) *genai.GenerativeModel {
	m := g.client.GenerativeModel(name)
	m.SetTemperature(0)
	m.ResponseMIMEType = "application/json"
	m.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(systemPrompt)}}
	return m
}

// CompleteText отправляет текст пользователя
func (g *GeminiBackend) CompleteText(ctx context.Context, systemPrompt, text string) ([]byte, error) {
	return g.generate(ctx, g.model(g.cfg.Model, systemPrompt), genai.Text(text))
}

// CompleteVision отправляет изображение чека
func (g *GeminiBackend) CompleteVision(ctx context.Context, systemPrompt string, image []byte, mimeType string) ([]byte, error) {
	format := strings.TrimPrefix(mimeType, "image/")
	if format == "" {
		format = "jpeg"
	}
	return g.generate(ctx, g.model(g.cfg.VisionModel, systemPrompt),
		genai.ImageData(format, image),
		genai.Text("Извлеки расходы с этого чека."))
}

func (g *GeminiBackend) generate(ctx context.Context, m *genai.GenerativeModel, parts ...genai.Part) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	if err := g.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	resp, err := m.GenerateContent(ctx, parts...)
	if err != nil {
		return nil, fmt.Errorf("failed to generate content: %w", err)
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, fmt.Errorf("empty response from gemini")
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}
	if sb.Len() == 0 {
		return nil, fmt.Errorf("no text content in response")
	}
	return []byte(sb.String()), nil
}
