package notify

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"tradePilot/internal/domain"
)

const telegramAPI = "https://api.telegram.org"

// TelegramNotifier posts alerts through the Bot API sendMessage method.
type TelegramNotifier struct {
	token   string
	chatID  string
	apiBase string
	client  *http.Client
}

func NewTelegramNotifier(token, chatID string) *TelegramNotifier {
	return &TelegramNotifier{
		token:   token,
		chatID:  chatID,
		apiBase: telegramAPI,
		client:  &http.Client{Timeout: defaultTimeout},
	}
}

func (t *TelegramNotifier) Notify(ctx context.Context, title, message string, level domain.AlertLevel, metadata map[string]string) error {
	emoji := "ℹ️"
	switch level {
	case domain.AlertWarning:
		emoji = "⚠️"
	case domain.AlertCritical:
		emoji = "🚨"
	}
	text := fmt.Sprintf("%s *%s*\n\n%s%s", emoji, title, message, formatMetadata(metadata))

	data := url.Values{}
	data.Set("chat_id", t.chatID)
	data.Set("text", text)
	data.Set("parse_mode", "Markdown")

	apiURL := fmt.Sprintf("%s/bot%s/sendMessage", t.apiBase, t.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, strings.NewReader(data.Encode()))
	if err != nil {
		return fmt.Errorf("telegram: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram: %w", err)
	}
	defer resp.Body.Close()
	return checkStatus("telegram API", resp)
}
