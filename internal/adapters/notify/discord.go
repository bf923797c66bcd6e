package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"tradePilot/internal/domain"
)

// Embed colours per alert level.
var discordColors = map[domain.AlertLevel]int{
	domain.AlertInfo:     0x2ECC71,
	domain.AlertWarning:  0xF1C40F,
	domain.AlertCritical: 0xE74C3C,
}

// DiscordNotifier sends alerts to a Discord webhook as embeds.
type DiscordNotifier struct {
	webhookURL string
	client     *http.Client
	now        func() time.Time
}

func NewDiscordNotifier(webhookURL string) *DiscordNotifier {
	return &DiscordNotifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: defaultTimeout},
		now:        time.Now,
	}
}

func (d *DiscordNotifier) Notify(ctx context.Context, title, message string, level domain.AlertLevel, metadata map[string]string) error {
	fields := make([]map[string]interface{}, 0, len(metadata))
	for _, k := range sortedKeys(metadata) {
		fields = append(fields, map[string]interface{}{"name": k, "value": metadata[k], "inline": true})
	}
	payload := map[string]interface{}{
		"embeds": []map[string]interface{}{
			{
				"title":       fmt.Sprintf("[%s] %s", level, title),
				"description": message,
				"color":       discordColors[level],
				"fields":      fields,
				"footer":      map[string]string{"text": "tradePilot"},
				"timestamp":   d.now().UTC().Format(time.RFC3339),
			},
		},
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("discord: encode payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.webhookURL, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("discord: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("discord: %w", err)
	}
	defer resp.Body.Close()
	return checkStatus("discord webhook", resp)
}
