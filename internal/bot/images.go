package bot

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/ivanoskov/expense_bot/internal/dispatcher"
)

// maxImageSize предел размера файла, который Bot API отдает ботам
const maxImageSize = 20 << 20

// FetchImage скачивает файл из Telegram по его идентификатору
func (b *Bot) FetchImage(ctx context.Context, ref dispatcher.ImageRef) ([]byte, string, error) {
	url, err := b.api.GetFileDirectURL(ref.FileID)
	if err != nil {
		return nil, "", fmt.Errorf("failed to resolve file %s: %w", ref.FileID, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", err
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("failed to download file %s: %w", ref.FileID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("failed to download file %s: status %d", ref.FileID, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageSize+1))
	if err != nil {
		return nil, "", fmt.Errorf("failed to read file %s: %w", ref.FileID, err)
	}
	if len(data) > maxImageSize {
		return nil, "", fmt.Errorf("file %s is larger than %d bytes", ref.FileID, maxImageSize)
	}

	return data, imageType(ref.MIMEType, resp.Header.Get("Content-Type"), data), nil
}

// imageType выбирает MIME-тип: из сообщения, из заголовка ответа или по содержимому
func imageType(declared, header string, data []byte) string {
	for _, t := range []string{declared, header} {
		if strings.HasPrefix(t, "image/") {
			return t
		}
	}
	return http.DetectContentType(data)
}
