package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const (
	colorWarning  = 0xF1C40F
	colorCritical = 0xE74C3C
)

// Discord posts an embed to a webhook. An empty URL disables it.
type Discord struct {
	webhookURL string
	client     *http.Client
	// Critical marks subjects rendered in red; everything else is amber.
	Critical map[string]bool
}

func NewDiscord(webhookURL string) *Discord {
	return &Discord{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
		Critical:   map[string]bool{},
	}
}

func (d *Discord) Notify(recipient, subject, body string) error {
	if d.webhookURL == "" {
		return nil
	}
	color := colorWarning
	if d.Critical[subject] {
		color = colorCritical
	}
	payload := map[string]interface{}{
		"content": recipient,
		"embeds": []map[string]interface{}{
			{
				"title":       subject,
				"description": body,
				"color":       color,
				"footer": map[string]string{
					"text": "gotrend",
				},
				"timestamp": time.Now().UTC().Format(time.RFC3339),
			},
		},
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	resp, err := d.client.Post(d.webhookURL, "application/json", bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("discord: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("discord returned status: %d", resp.StatusCode)
	}
	return nil
}
