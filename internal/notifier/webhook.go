package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"netmon-alert/internal/models"
)

// WebhookSender 通用 webhook 通道（POST JSON，可选 HMAC 签名）
type WebhookSender struct {
	url     string
	secret  string
	headers map[string]string
	client  *http.Client
}

// NewWebhookSender 根据通道配置创建 webhook 发送器
func NewWebhookSender(ch *models.NotificationChannel) *WebhookSender {
	return &WebhookSender{
		url:     ch.WebhookURL,
		secret:  ch.Secret,
		headers: ch.Headers,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// webhookPayload webhook 请求体
type webhookPayload struct {
	EventType string        `json:"event_type"`
	Message   string        `json:"message"`
	Alert     *models.Alert `json:"alert"`
	Timestamp int64         `json:"timestamp"`
}

// Send 投递 webhook
func (s *WebhookSender) Send(ctx context.Context, alert *models.Alert, eventType, message string, recipients []string) error {
	payload := webhookPayload{
		EventType: eventType,
		Message:   message,
		Alert:     alert,
		Timestamp: time.Now().Unix(),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build webhook request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	for k, v := range s.headers {
		req.Header.Set(k, v)
	}
	if s.secret != "" {
		req.Header.Set("X-Signature", Sign(s.secret, body))
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	return nil
}
